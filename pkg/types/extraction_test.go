package types

import (
	"encoding/json"
	"testing"
)

func TestBubbleCandidateImportanceCoercion(t *testing.T) {
	tests := []struct {
		name string
		json string
		want float64
	}{
		{"number", `{"text":"a","importance":0.7}`, 0.7},
		{"quoted number", `{"text":"a","importance":"0.8"}`, 0.8},
		{"missing", `{"text":"a"}`, DefaultImportance},
		{"garbage string", `{"text":"a","importance":"very high"}`, DefaultImportance},
		{"null", `{"text":"a","importance":null}`, DefaultImportance},
		{"clamped high", `{"text":"a","importance":3.5}`, 1.0},
		{"clamped low", `{"text":"a","importance":-1}`, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var b BubbleCandidate
			if err := json.Unmarshal([]byte(tt.json), &b); err != nil {
				t.Fatalf("unmarshal failed: %v", err)
			}
			if b.Importance != tt.want {
				t.Errorf("importance = %v, want %v", b.Importance, tt.want)
			}
		})
	}
}

func TestMemoryAddConnection(t *testing.T) {
	m := &Memory{ID: "a"}

	if !m.AddConnection("b", 0.9) {
		t.Fatal("first AddConnection should return true")
	}
	if m.AddConnection("b", 0.5) {
		t.Error("duplicate AddConnection should return false")
	}
	if len(m.Connections) != 1 {
		t.Errorf("expected 1 connection, got %d", len(m.Connections))
	}
	if !m.HasConnection("b") {
		t.Error("HasConnection should find b")
	}
	if m.HasConnection("c") {
		t.Error("HasConnection should not find c")
	}
}

func TestEffectiveImportance(t *testing.T) {
	m := &Memory{}
	if got := m.EffectiveImportance(); got != DefaultImportance {
		t.Errorf("unset importance = %v, want %v", got, DefaultImportance)
	}
	m.Importance = 0.9
	if got := m.EffectiveImportance(); got != 0.9 {
		t.Errorf("importance = %v, want 0.9", got)
	}
}

func TestIsValidAction(t *testing.T) {
	for _, a := range []Action{ActionAdd, ActionUpdate, ActionReplace, ActionDelete, ActionNoop} {
		if !IsValidAction(a) {
			t.Errorf("%s should be valid", a)
		}
	}
	if IsValidAction("MERGE") {
		t.Error("MERGE should not be valid")
	}
}
