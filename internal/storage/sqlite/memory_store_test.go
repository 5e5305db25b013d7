package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cogmem/cogmem/internal/storage"
	"github.com/cogmem/cogmem/pkg/types"
)

// newTestStore creates an in-memory SQLite store for testing.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testMemory(id, conv string) *types.Memory {
	return &types.Memory{
		ID:             id,
		ConversationID: conv,
		Text:           "User lives in Berlin",
		Embedding:      []float32{0.1, 0.2, 0.3},
		Kind:           types.KindSemantic,
		Importance:     0.5,
		IsActive:       true,
	}
}

func TestStoreAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	occurred := time.Now().UTC().Truncate(time.Second)
	mem := testMemory("mem-1", "conv-1")
	mem.Kind = types.KindEpisodic
	mem.OccurredAt = &occurred
	mem.Connections = []types.Connection{{ID: "mem-2", Score: 0.81}}

	if err := store.Store(ctx, mem); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	got, err := store.Get(ctx, "mem-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if got.Text != mem.Text {
		t.Errorf("text = %q, want %q", got.Text, mem.Text)
	}
	if got.Kind != types.KindEpisodic {
		t.Errorf("kind = %q, want episodic", got.Kind)
	}
	if got.OccurredAt == nil || !got.OccurredAt.Equal(occurred) {
		t.Errorf("occurred_at = %v, want %v", got.OccurredAt, occurred)
	}
	if len(got.Embedding) != 3 || got.Embedding[1] != 0.2 {
		t.Errorf("embedding = %v, want %v", got.Embedding, mem.Embedding)
	}
	if len(got.Connections) != 1 || got.Connections[0].ID != "mem-2" {
		t.Errorf("connections = %v, want one edge to mem-2", got.Connections)
	}
}

func TestGetNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Get(context.Background(), "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateNotFound(t *testing.T) {
	store := newTestStore(t)

	err := store.Update(context.Background(), testMemory("missing", "conv-1"))
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSoftDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Store(ctx, testMemory("mem-1", "conv-1")); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if err := store.Delete(ctx, "mem-1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	// Row persists but is flagged inactive.
	got, err := store.Get(ctx, "mem-1")
	if err != nil {
		t.Fatalf("Get after delete failed: %v", err)
	}
	if got.IsActive {
		t.Error("memory should be inactive after delete")
	}

	// GetMany filters inactive rows.
	active, err := store.GetMany(ctx, []string{"mem-1"})
	if err != nil {
		t.Fatalf("GetMany failed: %v", err)
	}
	if len(active) != 0 {
		t.Errorf("GetMany returned %d memories, want 0", len(active))
	}

	if err := store.Delete(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound deleting missing id, got %v", err)
	}
}

func TestGetManyPreservesOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if err := store.Store(ctx, testMemory(id, "conv-1")); err != nil {
			t.Fatalf("Store failed: %v", err)
		}
	}

	got, err := store.GetMany(ctx, []string{"c", "missing", "a"})
	if err != nil {
		t.Fatalf("GetMany failed: %v", err)
	}
	if len(got) != 2 || got[0].ID != "c" || got[1].ID != "a" {
		t.Errorf("GetMany order wrong: %v", idsOf(got))
	}
}

func TestListActiveSkipsInactiveAndUnembedded(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Store(ctx, testMemory("active", "conv-1")); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	deleted := testMemory("deleted", "conv-1")
	if err := store.Store(ctx, deleted); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if err := store.Delete(ctx, "deleted"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	bare := testMemory("bare", "conv-1")
	bare.Embedding = nil
	if err := store.Store(ctx, bare); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	other := testMemory("other", "conv-2")
	if err := store.Store(ctx, other); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	got, err := store.ListActive(ctx, "conv-1")
	if err != nil {
		t.Fatalf("ListActive failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "active" {
		t.Errorf("ListActive = %v, want [active]", idsOf(got))
	}
}

func TestTranscriptRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	var turns []types.Turn
	for i := 0; i < 5; i++ {
		role := types.RoleUser
		if i%2 == 1 {
			role = types.RoleAssistant
		}
		turns = append(turns, types.Turn{
			Role:      role,
			Content:   string(rune('a' + i)),
			Timestamp: base.Add(time.Duration(i) * time.Second),
		})
	}

	if err := store.AppendTurns(ctx, "conv-1", turns); err != nil {
		t.Fatalf("AppendTurns failed: %v", err)
	}

	count, err := store.CountTurns(ctx, "conv-1")
	if err != nil {
		t.Fatalf("CountTurns failed: %v", err)
	}
	if count != 5 {
		t.Errorf("count = %d, want 5", count)
	}

	recent, err := store.RecentTurns(ctx, "conv-1", 3)
	if err != nil {
		t.Fatalf("RecentTurns failed: %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("RecentTurns returned %d turns, want 3", len(recent))
	}
	// Oldest-first among the 3 most recent.
	if recent[0].Content != "c" || recent[2].Content != "e" {
		t.Errorf("RecentTurns order wrong: %v", recent)
	}

	all, err := store.ListTurns(ctx, "conv-1", 100)
	if err != nil {
		t.Fatalf("ListTurns failed: %v", err)
	}
	if len(all) != 5 || all[0].Content != "a" {
		t.Errorf("ListTurns order wrong: %v", all)
	}
}

func TestSummaryUpsert(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	got, err := store.GetSummary(ctx, "conv-1")
	if err != nil {
		t.Fatalf("GetSummary failed: %v", err)
	}
	if got != "" {
		t.Errorf("summary for fresh conversation = %q, want empty", got)
	}

	if err := store.SetSummary(ctx, "conv-1", "first"); err != nil {
		t.Fatalf("SetSummary failed: %v", err)
	}
	if err := store.SetSummary(ctx, "conv-1", "second"); err != nil {
		t.Fatalf("SetSummary upsert failed: %v", err)
	}

	got, err = store.GetSummary(ctx, "conv-1")
	if err != nil {
		t.Fatalf("GetSummary failed: %v", err)
	}
	if got != "second" {
		t.Errorf("summary = %q, want %q", got, "second")
	}
}

func TestEmbeddingRoundTrip(t *testing.T) {
	in := []float32{1.5, -2.25, 0, 3.125}
	out := deserializeEmbedding(serializeEmbedding(in))
	if len(out) != len(in) {
		t.Fatalf("length = %d, want %d", len(out), len(in))
	}
	for i := range in {
		if in[i] != out[i] {
			t.Errorf("element %d = %v, want %v", i, out[i], in[i])
		}
	}

	if deserializeEmbedding(nil) != nil {
		t.Error("nil blob should deserialize to nil")
	}
	if deserializeEmbedding([]byte{1, 2, 3}) != nil {
		t.Error("truncated blob should deserialize to nil")
	}
}

func idsOf(memories []*types.Memory) []string {
	ids := make([]string, len(memories))
	for i, m := range memories {
		ids[i] = m.ID
	}
	return ids
}
