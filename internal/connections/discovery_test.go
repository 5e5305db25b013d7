package connections

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/cogmem/cogmem/internal/storage/sqlite"
	"github.com/cogmem/cogmem/internal/vector"
	"github.com/cogmem/cogmem/pkg/types"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.NewStore(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func storeBubble(t *testing.T, store *sqlite.Store, index *vector.Index, text string, embedding []float32) *types.Memory {
	t.Helper()
	now := time.Now().UTC()
	bubble := &types.Memory{
		ID:             uuid.NewString(),
		ConversationID: "conv-1",
		Text:           text,
		Embedding:      embedding,
		Kind:           types.KindEpisodic,
		Importance:     0.7,
		OccurredAt:     &now,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := store.Store(context.Background(), bubble); err != nil {
		t.Fatalf("failed to store bubble: %v", err)
	}
	if err := index.Add(bubble.ID, embedding); err != nil {
		t.Fatalf("failed to index bubble: %v", err)
	}
	return bubble
}

func TestConnectBidirectional(t *testing.T) {
	store := newTestStore(t)
	index := vector.New(3)
	finder := NewFinder(store, 0.6, 5)

	existing := storeBubble(t, store, index, "debugging JWT validation", []float32{1, 0.1, 0})
	bubble := storeBubble(t, store, index, "still stuck on JWT tokens", []float32{1, 0, 0})

	connections, err := finder.Connect(context.Background(), index, bubble)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if len(connections) != 1 || connections[0].ID != existing.ID {
		t.Fatalf("connections = %v, want one edge to existing bubble", connections)
	}

	// Both sides must list each other at the same score.
	stored, err := store.Get(context.Background(), bubble.ID)
	if err != nil {
		t.Fatal(err)
	}
	neighbor, err := store.Get(context.Background(), existing.ID)
	if err != nil {
		t.Fatal(err)
	}

	if !stored.HasConnection(existing.ID) {
		t.Error("new bubble is missing the forward edge")
	}
	if !neighbor.HasConnection(bubble.ID) {
		t.Error("neighbor is missing the reverse edge")
	}
	if len(stored.Connections) != 1 || len(neighbor.Connections) != 1 {
		t.Fatalf("unexpected edge counts: %d and %d", len(stored.Connections), len(neighbor.Connections))
	}
	if stored.Connections[0].Score != neighbor.Connections[0].Score {
		t.Errorf("edge scores differ: %v vs %v",
			stored.Connections[0].Score, neighbor.Connections[0].Score)
	}
}

func TestConnectExcludesSelfAndWeakMatches(t *testing.T) {
	store := newTestStore(t)
	index := vector.New(3)
	finder := NewFinder(store, 0.6, 5)

	// Orthogonal, so similarity 0 and below the threshold.
	storeBubble(t, store, index, "unrelated topic", []float32{0, 1, 0})
	bubble := storeBubble(t, store, index, "a new event", []float32{1, 0, 0})

	connections, err := finder.Connect(context.Background(), index, bubble)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if len(connections) != 0 {
		t.Errorf("connections = %v, want none (self excluded, weak match filtered)", connections)
	}
}

func TestConnectCapsEdgeCount(t *testing.T) {
	store := newTestStore(t)
	index := vector.New(3)
	finder := NewFinder(store, 0.6, 2)

	for i := 0; i < 4; i++ {
		storeBubble(t, store, index, "similar event", []float32{1, 0.01 * float32(i), 0})
	}
	bubble := storeBubble(t, store, index, "another similar event", []float32{1, 0, 0})

	connections, err := finder.Connect(context.Background(), index, bubble)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if len(connections) != 2 {
		t.Errorf("got %d connections, want cap of 2", len(connections))
	}
}

func TestConnectNoEmbedding(t *testing.T) {
	store := newTestStore(t)
	index := vector.New(3)
	finder := NewFinder(store, 0, 0)

	bubble := &types.Memory{ID: uuid.NewString(), ConversationID: "conv-1", Kind: types.KindEpisodic}
	connections, err := finder.Connect(context.Background(), index, bubble)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if connections != nil {
		t.Errorf("connections = %v, want nil for unembedded bubble", connections)
	}
}

func TestConnectIsIdempotentPerEdge(t *testing.T) {
	store := newTestStore(t)
	index := vector.New(3)
	finder := NewFinder(store, 0.6, 5)

	existing := storeBubble(t, store, index, "event A", []float32{1, 0, 0})
	bubble := storeBubble(t, store, index, "event B", []float32{1, 0.05, 0})

	for i := 0; i < 2; i++ {
		if _, err := finder.Connect(context.Background(), index, bubble); err != nil {
			t.Fatalf("Connect failed: %v", err)
		}
	}

	neighbor, err := store.Get(context.Background(), existing.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(neighbor.Connections) != 1 {
		t.Errorf("neighbor has %d edges, want 1 (no duplicates on reconnect)", len(neighbor.Connections))
	}
}
