package engine

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/cogmem/cogmem/pkg/types"
)

// Result types tag how an entry earned its place in the response.
const (
	ResultSemantic  = "semantic"
	ResultBubble    = "bubble"
	ResultConnected = "connected"
)

const (
	// maxNeighborsPerResult caps connection expansion per kept result.
	maxNeighborsPerResult = 2

	// maxConnectedResults caps connection expansion across the whole response.
	maxConnectedResults = 3
)

// SearchResult is one retrieved memory.
type SearchResult struct {
	MemoryID    string     `json:"memory_id"`
	Memory      string     `json:"memory"`
	Type        string     `json:"type"`
	OccurredAt  *time.Time `json:"occurred_at,omitempty"`
	Score       float64    `json:"score"`
	Connections []string   `json:"connections"`
}

// SearchResponse is the full retrieval response for one query.
type SearchResponse struct {
	Query   string         `json:"query"`
	Total   int            `json:"total"`
	Results []SearchResult `json:"results"`
}

// Search retrieves the memories most relevant to the query, ranked by
// similarity x importance x recency. With includeConnections, each kept
// result pulls in up to two of its connected bubbles (three across the
// response) at score 0, tagged "connected".
func (e *Engine) Search(ctx context.Context, conversationID, query string, limit int, includeConnections bool) (*SearchResponse, error) {
	if limit <= 0 {
		limit = e.cfg.SearchLimit
	}
	if limit <= 0 {
		limit = 5
	}

	response := &SearchResponse{Query: query, Results: []SearchResult{}}

	embedding, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	ix, err := e.index(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	// Overfetch: inactive rows are filtered after the id lookup, and
	// scoring reorders what survives.
	hits, err := ix.Search(embedding, limit*2)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return response, nil
	}

	ids := make([]string, len(hits))
	similarity := make(map[string]float64, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
		similarity[h.ID] = h.Score
	}

	memories, err := e.store.GetMany(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load search results: %w", err)
	}
	if len(memories) == 0 {
		return response, nil
	}

	now := time.Now().UTC()
	type scored struct {
		score  float64
		memory *types.Memory
	}
	ranked := make([]scored, 0, len(memories))
	for _, m := range memories {
		ranked = append(ranked, scored{
			score:  finalScore(similarity[m.ID], m, now, e.decayRate()),
			memory: m,
		})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	seen := make(map[string]bool, len(ranked))
	for _, r := range ranked {
		seen[r.memory.ID] = true
	}

	var connected []*types.Memory
	if includeConnections {
		for _, r := range ranked {
			if len(connected) == maxConnectedResults {
				break
			}
			neighbors := r.memory.Connections
			if len(neighbors) > maxNeighborsPerResult {
				neighbors = neighbors[:maxNeighborsPerResult]
			}
			for _, edge := range neighbors {
				if seen[edge.ID] {
					continue
				}
				neighbor, err := e.store.Get(ctx, edge.ID)
				if err != nil || !neighbor.IsActive {
					continue
				}
				connected = append(connected, neighbor)
				seen[edge.ID] = true
				if len(connected) == maxConnectedResults {
					break
				}
			}
		}
	}

	for _, r := range ranked {
		response.Results = append(response.Results, SearchResult{
			MemoryID:    r.memory.ID,
			Memory:      r.memory.Text,
			Type:        resultType(r.memory),
			OccurredAt:  r.memory.OccurredAt,
			Score:       roundScore(r.score),
			Connections: connectionIDs(r.memory),
		})
	}
	for _, m := range connected {
		response.Results = append(response.Results, SearchResult{
			MemoryID:    m.ID,
			Memory:      m.Text,
			Type:        ResultConnected,
			OccurredAt:  m.OccurredAt,
			Score:       0,
			Connections: []string{},
		})
	}

	response.Total = len(response.Results)
	return response, nil
}

func (e *Engine) decayRate() float64 {
	if e.cfg.RecencyDecayRate > 0 {
		return e.cfg.RecencyDecayRate
	}
	return DefaultRecencyDecayRate
}

func resultType(m *types.Memory) string {
	if m.IsEpisodic() {
		return ResultBubble
	}
	return ResultSemantic
}

func connectionIDs(m *types.Memory) []string {
	ids := make([]string, len(m.Connections))
	for i, c := range m.Connections {
		ids[i] = c.ID
	}
	return ids
}

func roundScore(score float64) float64 {
	return math.Round(score*10000) / 10000
}
