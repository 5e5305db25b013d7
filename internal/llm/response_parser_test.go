package llm

import (
	"testing"

	"github.com/cogmem/cogmem/pkg/types"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "clean json",
			input: `{"semantic": []}`,
			want:  `{"semantic": []}`,
		},
		{
			name:  "markdown fenced",
			input: "```json\n{\"semantic\": []}\n```",
			want:  `{"semantic": []}`,
		},
		{
			name:  "explanation before and after",
			input: `Sure, here is the result: {"action": "ADD"} Hope that helps!`,
			want:  `{"action": "ADD"}`,
		},
		{
			name:  "nested objects",
			input: `{"a": {"b": {"c": 1}}} trailing`,
			want:  `{"a": {"b": {"c": 1}}}`,
		},
		{
			name:  "braces inside strings",
			input: `{"text": "use {curly} braces"} extra`,
			want:  `{"text": "use {curly} braces"}`,
		},
		{
			name:  "escaped quotes inside strings",
			input: `{"text": "she said \"hi\" {ok}"}`,
			want:  `{"text": "she said \"hi\" {ok}"}`,
		},
		{
			name:  "no json at all",
			input: "I could not produce any output",
			want:  "I could not produce any output",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractJSON(tt.input); got != tt.want {
				t.Errorf("extractJSON(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseExtraction(t *testing.T) {
	result := ParseExtraction(`{
		"semantic": ["User's name is Alice"],
		"bubbles": [{"text": "User is debugging a JWT issue", "importance": 0.8}]
	}`)
	if len(result.Semantic) != 1 || result.Semantic[0] != "User's name is Alice" {
		t.Errorf("semantic = %v", result.Semantic)
	}
	if len(result.Bubbles) != 1 || result.Bubbles[0].Importance != 0.8 {
		t.Errorf("bubbles = %v", result.Bubbles)
	}
}

func TestParseExtractionFailOpen(t *testing.T) {
	for _, raw := range []string{
		"not json at all",
		`{"semantic": ["unterminated`,
		"",
	} {
		result := ParseExtraction(raw)
		if result == nil {
			t.Fatalf("ParseExtraction(%q) returned nil", raw)
		}
		if !result.IsEmpty() {
			t.Errorf("ParseExtraction(%q) = %+v, want empty result", raw, result)
		}
		if result.Semantic == nil || result.Bubbles == nil {
			t.Errorf("ParseExtraction(%q) returned nil slices", raw)
		}
	}
}

func TestParseExtractionMissingFields(t *testing.T) {
	result := ParseExtraction(`{"semantic": ["User likes Go"]}`)
	if len(result.Semantic) != 1 {
		t.Errorf("semantic = %v", result.Semantic)
	}
	if result.Bubbles == nil || len(result.Bubbles) != 0 {
		t.Errorf("missing bubbles should decode as empty slice, got %v", result.Bubbles)
	}
}

func TestParseDecision(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		wantAction types.Action
		wantID     string
		wantText   string
	}{
		{
			name:       "add",
			raw:        `{"action": "ADD", "memory_id": null, "text": "User prefers dark mode"}`,
			wantAction: types.ActionAdd,
			wantText:   "User prefers dark mode",
		},
		{
			name:       "update",
			raw:        `{"action": "UPDATE", "memory_id": "m-42", "text": "User has 5 years of Go experience"}`,
			wantAction: types.ActionUpdate,
			wantID:     "m-42",
			wantText:   "User has 5 years of Go experience",
		},
		{
			name:       "replace",
			raw:        `{"action": "REPLACE", "memory_id": "m-12", "text": "User dislikes Indian food"}`,
			wantAction: types.ActionReplace,
			wantID:     "m-12",
			wantText:   "User dislikes Indian food",
		},
		{
			name:       "noop with null text",
			raw:        `{"action": "NOOP", "memory_id": null, "text": null}`,
			wantAction: types.ActionNoop,
		},
		{
			name:       "lowercase action is normalized",
			raw:        `{"action": "add", "text": "User likes tea"}`,
			wantAction: types.ActionAdd,
			wantText:   "User likes tea",
		},
		{
			name:       "markdown fenced",
			raw:        "```json\n{\"action\": \"NOOP\"}\n```",
			wantAction: types.ActionNoop,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision := ParseDecision(tt.raw, "candidate fact")
			if decision.Action != tt.wantAction {
				t.Errorf("action = %q, want %q", decision.Action, tt.wantAction)
			}
			if decision.MemoryID != tt.wantID {
				t.Errorf("memory_id = %q, want %q", decision.MemoryID, tt.wantID)
			}
			if decision.Text != tt.wantText {
				t.Errorf("text = %q, want %q", decision.Text, tt.wantText)
			}
		})
	}
}

func TestParseDecisionFailOpen(t *testing.T) {
	for _, raw := range []string{
		"garbage output",
		`{"action": "ARCHIVE", "text": "something"}`,
		"",
	} {
		decision := ParseDecision(raw, "User loves Indian food")
		if decision.Action != types.ActionAdd {
			t.Errorf("ParseDecision(%q) action = %q, want ADD", raw, decision.Action)
		}
		if decision.Text != "User loves Indian food" {
			t.Errorf("ParseDecision(%q) text = %q, want candidate fact", raw, decision.Text)
		}
		if decision.MemoryID != "" {
			t.Errorf("ParseDecision(%q) memory_id = %q, want empty", raw, decision.MemoryID)
		}
	}
}

func TestParseDecisionFillsMissingText(t *testing.T) {
	decision := ParseDecision(`{"action": "ADD", "memory_id": null}`, "User is vegetarian")
	if decision.Text != "User is vegetarian" {
		t.Errorf("text = %q, want candidate fact", decision.Text)
	}
}
