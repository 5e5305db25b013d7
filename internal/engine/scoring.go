package engine

import (
	"math"
	"time"

	"github.com/cogmem/cogmem/pkg/types"
)

// DefaultRecencyDecayRate is the per-day exponential decay rate applied to
// episodic memories during retrieval scoring.
const DefaultRecencyDecayRate = 0.05

// recencyFactor returns the time decay multiplier for a memory. Semantic
// memories and episodic memories without a timestamp do not decay.
func recencyFactor(m *types.Memory, now time.Time, decayRate float64) float64 {
	if !m.IsEpisodic() || m.OccurredAt == nil {
		return 1.0
	}
	days := math.Floor(now.Sub(*m.OccurredAt).Hours() / 24)
	if days < 0 {
		days = 0
	}
	return math.Exp(-decayRate * days)
}

// finalScore combines raw similarity with importance and recency. This is
// the retrieval ranking function: a week-old low-importance bubble must not
// outrank a fresh, important one at equal similarity.
func finalScore(similarity float64, m *types.Memory, now time.Time, decayRate float64) float64 {
	return similarity * m.EffectiveImportance() * recencyFactor(m, now, decayRate)
}
