package types

import (
	"encoding/json"
	"strconv"
	"strings"
)

// ExtractionResult is the structured output of the fact extraction oracle:
// stable semantic facts plus candidate episodic bubbles. A malformed oracle
// response is recovered to the zero value (empty slices), never an error
// that escapes into the lifecycle manager.
type ExtractionResult struct {
	Semantic []string          `json:"semantic"`
	Bubbles  []BubbleCandidate `json:"bubbles"`
}

// IsEmpty reports whether the extraction produced nothing to store.
func (r ExtractionResult) IsEmpty() bool {
	return len(r.Semantic) == 0 && len(r.Bubbles) == 0
}

// BubbleCandidate is an episodic memory descriptor proposed by the
// extraction oracle. Importance tolerates both JSON numbers and numeric
// strings; anything unparsable falls back to DefaultImportance.
type BubbleCandidate struct {
	Text       string  `json:"text"`
	Importance float64 `json:"importance"`
}

// UnmarshalJSON coerces the importance field, which LLMs emit variously as
// a number, a quoted number, or garbage.
func (b *BubbleCandidate) UnmarshalJSON(data []byte) error {
	var raw struct {
		Text       string          `json:"text"`
		Importance json.RawMessage `json:"importance"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	b.Text = raw.Text
	b.Importance = coerceImportance(raw.Importance)
	return nil
}

// coerceImportance parses the raw importance value, clamping to [0,1] and
// defaulting to DefaultImportance on any failure.
func coerceImportance(raw json.RawMessage) float64 {
	if len(raw) == 0 {
		return DefaultImportance
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return DefaultImportance
		}
		parsed, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return DefaultImportance
		}
		f = parsed
	}

	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
