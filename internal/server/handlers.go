package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/cogmem/cogmem/internal/engine"
	"github.com/cogmem/cogmem/internal/storage"
	"github.com/cogmem/cogmem/pkg/types"
)

// ErrorResponse is the standard error response format for the API.
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Handlers contains the REST handlers for the memory API.
type Handlers struct {
	engine *engine.Engine
	hub    *Hub
}

// NewHandlers creates the handler set. The hub may be nil, in which case no
// events are published.
func NewHandlers(eng *engine.Engine, hub *Hub) *Handlers {
	return &Handlers{engine: eng, hub: hub}
}

// AddTurnsRequest is the request body for POST /api/conversations/{id}/turns.
type AddTurnsRequest struct {
	Turns []types.Turn `json:"turns"`
}

// AddTurns ingests new conversation turns and runs the extraction pipeline.
func (h *Handlers) AddTurns(w http.ResponseWriter, r *http.Request) {
	conversationID := r.PathValue("id")
	if conversationID == "" {
		respondError(w, http.StatusBadRequest, "conversation ID is required", nil)
		return
	}

	var req AddTurnsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if len(req.Turns) == 0 {
		respondError(w, http.StatusBadRequest, "at least one turn is required", nil)
		return
	}
	for i, turn := range req.Turns {
		if !types.IsValidRole(turn.Role) {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid role %q in turn %d", turn.Role, i), nil)
			return
		}
		if turn.Content == "" {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("empty content in turn %d", i), nil)
			return
		}
	}

	result, err := h.engine.Add(r.Context(), conversationID, req.Turns)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to process turns", err)
		return
	}

	h.publish(EventMemoriesExtracted, conversationID, result)
	respondJSON(w, http.StatusOK, result)
}

// Search handles GET /api/conversations/{id}/search.
// Query parameters: q (required), limit, connections.
func (h *Handlers) Search(w http.ResponseWriter, r *http.Request) {
	conversationID := r.PathValue("id")
	if conversationID == "" {
		respondError(w, http.StatusBadRequest, "conversation ID is required", nil)
		return
	}

	query := r.URL.Query().Get("q")
	if query == "" {
		respondError(w, http.StatusBadRequest, "query parameter q is required", nil)
		return
	}
	limit := parseInt(r.URL.Query().Get("limit"), 0)
	includeConnections := parseBool(r.URL.Query().Get("connections"))

	response, err := h.engine.Search(r.Context(), conversationID, query, limit, includeConnections)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "search failed", err)
		return
	}

	respondJSON(w, http.StatusOK, response)
}

// GetMemory handles GET /api/memories/{id}.
func (h *Handlers) GetMemory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "memory ID is required", nil)
		return
	}

	memory, err := h.engine.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, "memory not found", err)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to get memory", err)
		return
	}

	respondJSON(w, http.StatusOK, memory)
}

// UpdateMemoryRequest is the request body for PATCH /api/memories/{id}.
type UpdateMemoryRequest struct {
	Text string `json:"text"`
}

// UpdateMemory rewrites a memory's text and re-embeds it.
func (h *Handlers) UpdateMemory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "memory ID is required", nil)
		return
	}

	var req UpdateMemoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Text == "" {
		respondError(w, http.StatusBadRequest, "text is required", nil)
		return
	}

	memory, err := h.engine.Update(r.Context(), id, req.Text)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, "memory not found", err)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to update memory", err)
		return
	}

	h.publish(EventMemoryUpdated, memory.ConversationID, memory)
	respondJSON(w, http.StatusOK, memory)
}

// DeleteMemory soft-deletes a memory and removes it from retrieval.
func (h *Handlers) DeleteMemory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "memory ID is required", nil)
		return
	}

	memory, err := h.engine.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, "memory not found", err)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to get memory", err)
		return
	}

	if err := h.engine.Delete(r.Context(), id); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to delete memory", err)
		return
	}

	h.publish(EventMemoryDeleted, memory.ConversationID, map[string]string{"id": id})
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": id})
}

// Health handles GET /api/health.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *Handlers) publish(eventType, conversationID string, payload interface{}) {
	if h.hub == nil {
		return
	}
	h.hub.Publish(eventType, conversationID, payload)
}

func parseInt(s string, defaultValue int) int {
	if s == "" {
		return defaultValue
	}
	val, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return val
}

func parseBool(s string) bool {
	val, err := strconv.ParseBool(s)
	if err != nil {
		return false
	}
	return val
}

// respondJSON writes a JSON response with the given status code.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers already sent, nothing more to do.
		fmt.Printf("failed to encode JSON response: %v\n", err)
	}
}

// respondError writes an error response with the given status code.
func respondError(w http.ResponseWriter, statusCode int, message string, err error) {
	errResp := ErrorResponse{
		Error: message,
		Code:  http.StatusText(statusCode),
	}
	if err != nil {
		errResp.Details = map[string]interface{}{"error": err.Error()}
	}
	respondJSON(w, statusCode, errResp)
}
