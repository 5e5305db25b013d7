// Package types defines the core data structures for the CogMem memory
// system: memories, conversation turns, extraction results, and the
// decisions produced by the action classifier.
package types

import "time"

// MemoryKind classifies a memory as a stable fact or a time-bound event.
type MemoryKind string

const (
	// KindSemantic is a stable, long-term fact about the user.
	KindSemantic MemoryKind = "semantic"

	// KindEpisodic is a time-bound, significant moment ("bubble") whose
	// relevance decays over time.
	KindEpisodic MemoryKind = "episodic"
)

// DefaultImportance is used when a memory carries no explicit importance.
const DefaultImportance = 0.5

// Connection is one side of a symmetric similarity edge between two
// episodic memories. If memory A lists B at score s, B lists A at the
// same score; both sides are written explicitly by connection discovery.
type Connection struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// Memory is a single stored fact or event, scoped to one conversation.
//
// The embedding is recomputed whenever Text changes; a memory is never
// indexed without one. Memories are soft-deleted only: IsActive=false
// excludes them from retrieval but the row (and its index slot) persist.
type Memory struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversation_id"`
	Text           string     `json:"text"`
	Embedding      []float32  `json:"embedding,omitempty"`
	Kind           MemoryKind `json:"kind"`

	// Importance is in [0,1]. Only meaningful for episodic memories but
	// stored for all; defaults to DefaultImportance.
	Importance float64 `json:"importance"`

	// OccurredAt is set only for episodic memories and drives recency decay.
	OccurredAt *time.Time `json:"occurred_at,omitempty"`

	IsActive bool `json:"is_active"`

	// Connections holds the episodic connection graph edges for this memory.
	Connections []Connection `json:"connections,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsEpisodic reports whether the memory is an episodic bubble.
func (m *Memory) IsEpisodic() bool {
	return m.Kind == KindEpisodic
}

// HasConnection reports whether the memory already lists the given id
// in its connection set.
func (m *Memory) HasConnection(id string) bool {
	for _, c := range m.Connections {
		if c.ID == id {
			return true
		}
	}
	return false
}

// AddConnection appends an edge to the connection set if not already present.
// Returns true if the edge was added.
func (m *Memory) AddConnection(id string, score float64) bool {
	if m.HasConnection(id) {
		return false
	}
	m.Connections = append(m.Connections, Connection{ID: id, Score: score})
	return true
}

// EffectiveImportance returns the memory's importance, falling back to
// DefaultImportance when unset.
func (m *Memory) EffectiveImportance() float64 {
	if m.Importance <= 0 {
		return DefaultImportance
	}
	return m.Importance
}
