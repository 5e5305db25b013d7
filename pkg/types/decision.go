package types

// Action is the classifier's verdict for a candidate fact.
type Action string

const (
	// ActionAdd stores the candidate as a new memory.
	ActionAdd Action = "ADD"

	// ActionUpdate rewrites an existing memory's text (and embedding).
	ActionUpdate Action = "UPDATE"

	// ActionReplace retires a contradicted memory and stores the candidate
	// as a new one.
	ActionReplace Action = "REPLACE"

	// ActionDelete soft-deletes an existing memory.
	ActionDelete Action = "DELETE"

	// ActionNoop stores nothing; the fact is already captured or not worth
	// keeping.
	ActionNoop Action = "NOOP"
)

// IsValidAction reports whether the action is one the resolver can apply.
func IsValidAction(a Action) bool {
	switch a {
	case ActionAdd, ActionUpdate, ActionReplace, ActionDelete, ActionNoop:
		return true
	}
	return false
}

// Decision is the ephemeral result of classifying one candidate fact
// against its similar memories. It lives for a single update-phase
// iteration and is never persisted.
type Decision struct {
	Action   Action `json:"action"`
	MemoryID string `json:"memory_id,omitempty"`
	Text     string `json:"text,omitempty"`
}
