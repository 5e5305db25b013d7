package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cogmem/cogmem/internal/llm"
	"github.com/cogmem/cogmem/internal/storage"
	"github.com/cogmem/cogmem/internal/vector"
	"github.com/cogmem/cogmem/pkg/types"
)

// AddResult reports what an Add call extracted.
type AddResult struct {
	Semantic []string `json:"semantic"`
	Bubbles  []string `json:"bubbles"`
}

// Add runs the full pipeline for a batch of conversation turns: extract
// candidate facts and bubbles from the latest interaction, decide and apply
// a mutation per fact, create bubbles with connection discovery, and keep
// the transcript and rolling summary current.
//
// Fewer than two turns means there is no user/assistant pair to extract
// from: the supplied turns are still persisted, but no memory is touched.
func (e *Engine) Add(ctx context.Context, conversationID string, turns []types.Turn) (*AddResult, error) {
	unlock := e.lock(conversationID)
	defer unlock()

	result := &AddResult{Semantic: []string{}, Bubbles: []string{}}

	if len(turns) < 2 {
		if len(turns) > 0 {
			if err := e.store.AppendTurns(ctx, conversationID, turns); err != nil {
				return nil, fmt.Errorf("failed to append turns: %w", err)
			}
			if err := e.maybeSummarize(ctx, conversationID); err != nil {
				return nil, err
			}
		}
		return result, nil
	}

	extraction, err := e.extract(ctx, conversationID, turns)
	if err != nil {
		return nil, err
	}

	pair := turns[len(turns)-2:]
	if err := e.store.AppendTurns(ctx, conversationID, pair); err != nil {
		return nil, fmt.Errorf("failed to append turns: %w", err)
	}
	if err := e.maybeSummarize(ctx, conversationID); err != nil {
		return nil, err
	}

	ix, err := e.index(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	if len(extraction.Semantic) > 0 {
		if err := e.updatePhase(ctx, conversationID, ix, extraction.Semantic); err != nil {
			return nil, err
		}
	}

	if len(extraction.Bubbles) > 0 {
		if err := e.createBubbles(ctx, conversationID, ix, extraction.Bubbles); err != nil {
			return nil, err
		}
	}

	// One save per Add call covers both phases. Passing the instance we
	// mutated means a concurrent cache eviction cannot drop this call's
	// index writes.
	if err := e.registry.Save(conversationID, ix); err != nil {
		return nil, err
	}

	result.Semantic = extraction.Semantic
	for _, b := range extraction.Bubbles {
		result.Bubbles = append(result.Bubbles, b.Text)
	}
	return result, nil
}

// extract calls the extraction oracle with the latest user/assistant pair,
// giving it the rolling summary and recent turns as context only.
func (e *Engine) extract(ctx context.Context, conversationID string, turns []types.Turn) (*types.ExtractionResult, error) {
	latestPair := formatTurns(turns[len(turns)-2:])

	summary, err := e.store.GetSummary(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load summary: %w", err)
	}

	recent, err := e.store.RecentTurns(ctx, conversationID, 10)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent turns: %w", err)
	}

	raw, err := e.oracle.Complete(ctx, llm.ExtractionPrompt(summary, formatTurns(recent), latestPair))
	if err != nil {
		return nil, fmt.Errorf("extraction call failed: %w", err)
	}

	return llm.ParseExtraction(raw), nil
}

// updatePhase processes candidate semantic facts strictly in order. Each
// fact is embedded, matched against its nearest existing memories, and
// resolved through the decision oracle.
func (e *Engine) updatePhase(ctx context.Context, conversationID string, ix *vector.Index, facts []string) error {
	for _, fact := range facts {
		embedding, err := e.embedder.Embed(ctx, fact)
		if err != nil {
			return fmt.Errorf("failed to embed fact: %w", err)
		}

		similar, err := e.similarMemories(ctx, ix, embedding)
		if err != nil {
			if errors.Is(err, vector.ErrZeroVector) {
				log.Printf("engine: skipping fact with zero-norm embedding: %q", fact)
				continue
			}
			return err
		}

		raw, err := e.oracle.Complete(ctx, llm.DecisionPrompt(fact, similar))
		if err != nil {
			return fmt.Errorf("decision call failed: %w", err)
		}
		decision := llm.ParseDecision(raw, fact)

		if err := e.resolve(ctx, conversationID, ix, decision, fact, embedding); err != nil {
			return err
		}
	}
	return nil
}

// similarMemories returns the active memories nearest to the embedding, in
// similarity order.
func (e *Engine) similarMemories(ctx context.Context, ix *vector.Index, embedding []float32) ([]*types.Memory, error) {
	results, err := ix.Search(embedding, similarSearchLimit)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}

	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.ID
	}
	memories, err := e.store.GetMany(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load similar memories: %w", err)
	}
	return memories, nil
}

// resolve applies a single decision. Unknown targets degrade to ADD rather
// than dropping the fact: storing a duplicate is recoverable, losing a fact
// is not.
func (e *Engine) resolve(ctx context.Context, conversationID string, ix *vector.Index, decision types.Decision, fact string, embedding []float32) error {
	text := decision.Text
	if text == "" {
		text = fact
	}

	switch decision.Action {
	case types.ActionNoop:
		return nil

	case types.ActionAdd:
		_, err := e.storeSemantic(ctx, conversationID, ix, text, embedding)
		return err

	case types.ActionUpdate:
		target, err := e.resolveTarget(ctx, decision.MemoryID)
		if err != nil {
			return err
		}
		if target == nil {
			_, err := e.storeSemantic(ctx, conversationID, ix, text, embedding)
			return err
		}
		ix.Remove(target.ID)
		target.Text = text
		target.Embedding = embedding
		target.UpdatedAt = time.Now().UTC()
		if err := e.store.Update(ctx, target); err != nil {
			return err
		}
		return ix.Add(target.ID, embedding)

	case types.ActionDelete:
		target, err := e.resolveTarget(ctx, decision.MemoryID)
		if err != nil {
			return err
		}
		if target == nil {
			_, err := e.storeSemantic(ctx, conversationID, ix, text, embedding)
			return err
		}
		if err := e.store.Delete(ctx, target.ID); err != nil {
			return err
		}
		ix.Remove(target.ID)
		return nil

	case types.ActionReplace:
		target, err := e.resolveTarget(ctx, decision.MemoryID)
		if err != nil {
			return err
		}
		if target != nil {
			if err := e.store.Delete(ctx, target.ID); err != nil {
				return err
			}
			ix.Remove(target.ID)
		}
		_, err = e.storeSemantic(ctx, conversationID, ix, text, embedding)
		return err

	default:
		// ParseDecision normalizes unknown actions to ADD already; this is
		// unreachable unless a caller builds a Decision by hand.
		_, err := e.storeSemantic(ctx, conversationID, ix, text, embedding)
		return err
	}
}

// resolveTarget loads a decision's target memory. A missing id or unknown or
// inactive target returns (nil, nil), which callers treat as "degrade to ADD".
func (e *Engine) resolveTarget(ctx context.Context, id string) (*types.Memory, error) {
	if id == "" {
		return nil, nil
	}
	target, err := e.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			log.Printf("engine: decision targets unknown memory %s, degrading to ADD", id)
			return nil, nil
		}
		return nil, err
	}
	if !target.IsActive {
		log.Printf("engine: decision targets inactive memory %s, degrading to ADD", id)
		return nil, nil
	}
	return target, nil
}

// storeSemantic inserts a new semantic memory and indexes it.
func (e *Engine) storeSemantic(ctx context.Context, conversationID string, ix *vector.Index, text string, embedding []float32) (*types.Memory, error) {
	now := time.Now().UTC()
	memory := &types.Memory{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Text:           text,
		Embedding:      embedding,
		Kind:           types.KindSemantic,
		Importance:     types.DefaultImportance,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := e.store.Store(ctx, memory); err != nil {
		return nil, fmt.Errorf("failed to store memory: %w", err)
	}
	if err := ix.Add(memory.ID, embedding); err != nil {
		return nil, fmt.Errorf("failed to index memory %s: %w", memory.ID, err)
	}
	return memory, nil
}

// createBubbles stores episodic bubbles and discovers their connections.
// Discovery runs per bubble, so later bubbles in a batch can connect to
// earlier ones.
func (e *Engine) createBubbles(ctx context.Context, conversationID string, ix *vector.Index, bubbles []types.BubbleCandidate) error {
	for _, candidate := range bubbles {
		if candidate.Text == "" {
			continue
		}

		embedding, err := e.embedder.Embed(ctx, candidate.Text)
		if err != nil {
			return fmt.Errorf("failed to embed bubble: %w", err)
		}

		importance := candidate.Importance
		if importance <= 0 {
			importance = types.DefaultImportance
		}

		now := time.Now().UTC()
		bubble := &types.Memory{
			ID:             uuid.NewString(),
			ConversationID: conversationID,
			Text:           candidate.Text,
			Embedding:      embedding,
			Kind:           types.KindEpisodic,
			Importance:     importance,
			OccurredAt:     &now,
			IsActive:       true,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := e.store.Store(ctx, bubble); err != nil {
			return fmt.Errorf("failed to store bubble: %w", err)
		}
		if err := ix.Add(bubble.ID, embedding); err != nil {
			if errors.Is(err, vector.ErrZeroVector) {
				log.Printf("engine: bubble %s has zero-norm embedding, not indexed", bubble.ID)
				continue
			}
			return fmt.Errorf("failed to index bubble %s: %w", bubble.ID, err)
		}

		if _, err := e.finder.Connect(ctx, ix, bubble); err != nil {
			return fmt.Errorf("connection discovery failed for bubble %s: %w", bubble.ID, err)
		}
	}
	return nil
}

// maybeSummarize regenerates the rolling summary when the transcript length
// crosses a summary interval boundary.
func (e *Engine) maybeSummarize(ctx context.Context, conversationID string) error {
	if e.cfg.SummaryInterval <= 0 {
		return nil
	}
	count, err := e.store.CountTurns(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("failed to count turns: %w", err)
	}
	if count == 0 || count%e.cfg.SummaryInterval != 0 {
		return nil
	}

	turns, err := e.store.ListTurns(ctx, conversationID, e.cfg.SummaryMaxTurns)
	if err != nil {
		return fmt.Errorf("failed to list turns for summary: %w", err)
	}
	if len(turns) == 0 {
		return nil
	}

	lines := make([]string, len(turns))
	for i, t := range turns {
		lines[i] = fmt.Sprintf("%s %s", strings.ToUpper(string(t.Role)), t.Content)
	}

	summary, err := e.oracle.Complete(ctx, llm.SummaryPrompt(lines))
	if err != nil {
		return fmt.Errorf("summary call failed: %w", err)
	}

	if err := e.store.SetSummary(ctx, conversationID, strings.TrimSpace(summary)); err != nil {
		return fmt.Errorf("failed to save summary: %w", err)
	}
	log.Printf("engine: regenerated summary for conversation %s at %d turns", conversationID, count)
	return nil
}

// formatTurns renders turns as "ROLE: content" lines for prompts.
func formatTurns(turns []types.Turn) []string {
	lines := make([]string, len(turns))
	for i, t := range turns {
		lines[i] = fmt.Sprintf("%s: %s", strings.ToUpper(string(t.Role)), t.Content)
	}
	return lines
}
