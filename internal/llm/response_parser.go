package llm

import (
	"encoding/json"
	"log"
	"strings"

	"github.com/cogmem/cogmem/pkg/types"
)

// extractJSON extracts the first complete JSON object from a string that may
// contain extra text. This handles LLMs that wrap output in markdown fences
// or add explanations despite instructions.
func extractJSON(text string) string {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	text = strings.TrimSpace(text)

	start := strings.Index(text, "{")
	if start == -1 {
		return text
	}

	braceCount := 0
	inString := false
	escape := false

	for i := start; i < len(text); i++ {
		char := text[i]

		if escape {
			escape = false
			continue
		}
		if char == '\\' {
			escape = true
			continue
		}
		if char == '"' {
			inString = !inString
			continue
		}

		// Only count braces outside of strings.
		if !inString {
			switch char {
			case '{':
				braceCount++
			case '}':
				braceCount--
				if braceCount == 0 {
					return text[start : i+1]
				}
			}
		}
	}

	return text
}

// ParseExtraction parses the extraction model output into an ExtractionResult.
// Extraction is fail-open: malformed output yields an empty result rather
// than an error, so a bad model response can never block a conversation.
func ParseExtraction(raw string) *types.ExtractionResult {
	cleanJSON := extractJSON(raw)

	var result types.ExtractionResult
	if err := json.Unmarshal([]byte(cleanJSON), &result); err != nil {
		log.Printf("llm: extraction output unparseable, treating as empty: %v", err)
		return &types.ExtractionResult{}
	}

	if result.Semantic == nil {
		result.Semantic = []string{}
	}
	if result.Bubbles == nil {
		result.Bubbles = []types.BubbleCandidate{}
	}
	return &result
}

// ParseDecision parses the decision model output into a Decision. Parsing is
// fail-open: malformed output or an unknown action degrades to ADD of the
// candidate fact, since storing too much is cheaper than losing a fact.
func ParseDecision(raw, candidate string) types.Decision {
	cleanJSON := extractJSON(raw)

	var decision types.Decision
	if err := json.Unmarshal([]byte(cleanJSON), &decision); err != nil {
		log.Printf("llm: decision output unparseable, defaulting to ADD: %v", err)
		return types.Decision{Action: types.ActionAdd, Text: candidate}
	}

	decision.Action = types.Action(strings.ToUpper(string(decision.Action)))
	if !types.IsValidAction(decision.Action) {
		log.Printf("llm: unknown decision action %q, defaulting to ADD", decision.Action)
		return types.Decision{Action: types.ActionAdd, Text: candidate}
	}

	// ADD and UPDATE need text to act on.
	if decision.Text == "" && (decision.Action == types.ActionAdd || decision.Action == types.ActionUpdate) {
		decision.Text = candidate
	}

	return decision
}
