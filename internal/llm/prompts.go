// Package llm provides LLM integration for memory extraction, memory action
// decisions, and conversation summarization. It includes strict JSON-only
// prompt templates and fail-open response parsers that work with Ollama,
// OpenAI, and Anthropic models.
package llm

import (
	"fmt"
	"strings"

	"github.com/cogmem/cogmem/pkg/types"
)

// ExtractionPrompt generates a strict JSON-only prompt that extracts semantic
// facts and episodic bubbles from the latest interaction. The rolling summary
// and recent messages are supplied as context only and must not be extracted
// from.
func ExtractionPrompt(summary string, recentMessages, latestPair []string) string {
	if summary == "" {
		summary = "(no summary yet)"
	}
	return fmt.Sprintf(`TASK: Extract memory facts from the latest interaction of a conversation.
OUTPUT: ONLY valid JSON. NO markdown. NO code blocks. NO explanation.

SOURCE RULES (CRITICAL):
Extract ONLY from the "Latest Interaction" section below.
The "Conversation Summary" and "Recent Messages" are context to help you judge
what is already known. NEVER extract facts from them.
If the latest interaction contains nothing worth remembering (greetings,
acknowledgments, generic questions), return empty arrays. That is the expected
result for most casual exchanges.

MEMORY TYPE 1 - SEMANTIC FACTS:
Stable, long-term truths about the user: name, location, preferences, skills,
profession, dietary constraints, relationships, ongoing goals.
Do NOT extract temporary states, one-time events, hypotheticals, or anything
said only by the assistant.

MEMORY TYPE 2 - BUBBLES (EPISODIC):
Time-bound moments significant enough to recall later: active problems being
debugged with specifics, important decisions, explicit deadlines, major events,
explicit requests to remember something.
Be VERY selective. Most interactions should produce 0 bubbles.

DISTINCTION:
"Will this still be true in a month?" -> semantic.
"Is this a significant current moment that will pass?" -> bubble.
"Is this just casual chat?" -> neither.

IMPORTANCE (bubbles only, 0.0-1.0):
0.9-1.0 critical deadlines, emergencies, major blockers
0.7-0.8 active problems, important decisions, key tasks
0.5-0.6 notable context, moderate work items
0.3-0.4 minor mentions, background info

REQUIRED JSON STRUCTURE:
{
  "semantic": ["User's name is Alice", "User prefers dark mode"],
  "bubbles": [
    {"text": "User is debugging a JWT validation issue", "importance": 0.8}
  ]
}

RULES:
1. Each fact must start with "User" (third person)
2. No trailing commas, no markdown, no text outside the JSON object
3. Empty arrays are valid: {"semantic": [], "bubbles": []}

Conversation Summary:
%s

Recent Messages:
%s

Latest Interaction:
%s

Extract memory facts (semantic facts and bubbles). Respond with ONLY the JSON object.`,
		summary, strings.Join(recentMessages, "\n"), strings.Join(latestPair, "\n"))
}

// DecisionPrompt generates a strict JSON-only prompt that decides what to do
// with a candidate fact given the existing similar memories: ADD, UPDATE,
// REPLACE, DELETE, or NOOP.
func DecisionPrompt(candidate string, similar []*types.Memory) string {
	memoryContext := "No existing memories found."
	if len(similar) > 0 {
		lines := make([]string, len(similar))
		for i, m := range similar {
			lines[i] = fmt.Sprintf("- ID %s: %s", m.ID, m.Text)
		}
		memoryContext = strings.Join(lines, "\n")
	}

	return fmt.Sprintf(`TASK: Decide what to do with a candidate memory fact.
OUTPUT: ONLY valid JSON. NO markdown. NO code blocks. NO explanation.

ACTIONS:
1. ADD - the fact is new information not already in memory.
   memory_id: null, text: the fact to store.
2. UPDATE - the fact enhances an existing memory with more detail.
   memory_id: the ID of the memory to update, text: the improved fact.
3. REPLACE - the fact CONTRADICTS an existing memory. The old memory is
   deleted and the new text is stored. memory_id: the ID of the memory to
   replace, text: the new fact (MUST be provided so it gets saved).
4. DELETE - the user explicitly retracted a fact and nothing replaces it.
   memory_id: the ID of the memory to delete, text: null.
5. NOOP - the fact is already adequately captured with the same meaning, or
   is too vague to be worth storing. memory_id: null, text: null.

CONTRADICTION DETECTION:
If the existing and new fact are about the same topic but express opposite
sentiments or states (loves X vs dislikes X, works at X vs works at Y, lives
in X vs lives in Y), that is a contradiction. Use REPLACE.

DECISION RULES:
1. No similar memories -> ADD
2. Same meaning already stored -> NOOP
3. More detail than an existing memory -> UPDATE
4. Contradicts an existing memory -> REPLACE
5. When in doubt, prefer ADD over NOOP. Better to store than to miss.

REQUIRED JSON STRUCTURE (exactly one object):
{"action": "ADD", "memory_id": null, "text": "User prefers dark mode"}
{"action": "UPDATE", "memory_id": "<id>", "text": "User has 5 years of Python experience"}
{"action": "REPLACE", "memory_id": "<id>", "text": "User dislikes Indian food"}
{"action": "NOOP", "memory_id": null, "text": null}

Candidate fact:
%s

Existing similar memories:
%s

Decide the action. Respond with ONLY the JSON object.`, candidate, memoryContext)
}

// SummaryPrompt generates a prompt that compresses a conversation into a
// factual rolling summary. Lines are pre-formatted "ROLE text" entries,
// oldest first.
func SummaryPrompt(lines []string) string {
	return fmt.Sprintf(`TASK: Compress a conversation into a factual, long-term summary.
OUTPUT: ONLY the summary text. No bullet points, no headings, no markdown.

The summary grounds future reasoning, so accuracy and stability matter more
than fluency.

INCLUDE: stable user facts (preferences, background, skills), long-term goals
or constraints, important decisions reached, ongoing tasks still relevant, and
context required to understand future messages.

EXCLUDE: small talk, greetings, acknowledgments, transient moods, repeated
phrasing, assistant verbosity, speculation, and one-off statements.

STYLE: neutral third person, factual not narrative, no quoting, no invented
information, concise sentences. Do not overweight the most recent messages; if
two details conflict, preserve the more stable one. If unsure whether
something is long-term, omit it.

Conversation:
%s

Return only the summary text.`, strings.Join(lines, "\n"))
}
