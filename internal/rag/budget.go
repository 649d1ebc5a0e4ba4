package rag

import "strings"

// PromptParts holds the competing components of a prompt before budget
// arbitration. History is ordered oldest first.
type PromptParts struct {
	SystemPrompt string   `json:"system_prompt,omitempty"`
	History      []string `json:"chat_history,omitempty"`
	RagContext   string   `json:"rag_context,omitempty"`
	UserMessage  string   `json:"user_message"`
}

// BudgetManager arbitrates a total token ceiling across prompt components
// with strict priority: system prompt, then user message, then RAG context,
// then chat history. History additionally carries its own cap, applied
// before the total ceiling.
type BudgetManager struct {
	maxTotal      int
	historyBudget int
}

// NewBudgetManager creates a manager with the given total token ceiling and
// chat-history cap.
func NewBudgetManager(maxTotal, historyBudget int) *BudgetManager {
	return &BudgetManager{maxTotal: maxTotal, historyBudget: historyBudget}
}

// Fit trims parts until their combined token count is within the ceiling.
// History is dropped oldest-first; if still over, the RAG context is
// proportionally truncated; the user message and finally the system prompt
// are cut only as a last resort.
func (m *BudgetManager) Fit(parts PromptParts) PromptParts {
	total := func() int {
		n := CountTokens(parts.SystemPrompt) + CountTokens(parts.UserMessage) + CountTokens(parts.RagContext)
		for _, h := range parts.History {
			n += CountTokens(h)
		}
		return n
	}
	historyTokens := func() int {
		n := 0
		for _, h := range parts.History {
			n += CountTokens(h)
		}
		return n
	}

	// The history cap holds even when the total ceiling is not reached.
	if m.historyBudget > 0 {
		for len(parts.History) > 0 && historyTokens() > m.historyBudget {
			parts.History = parts.History[1:]
		}
	}

	if total() <= m.maxTotal {
		return parts
	}

	// Drop oldest history entries first.
	for len(parts.History) > 0 && total() > m.maxTotal {
		parts.History = parts.History[1:]
	}
	if total() <= m.maxTotal {
		return parts
	}

	// Proportionally truncate the RAG context.
	if parts.RagContext != "" {
		fixed := CountTokens(parts.SystemPrompt) + CountTokens(parts.UserMessage)
		room := m.maxTotal - fixed
		if room <= 0 {
			parts.RagContext = ""
		} else {
			parts.RagContext = truncateToTokens(parts.RagContext, room)
		}
	}
	if total() <= m.maxTotal {
		return parts
	}

	// User message next, system prompt last.
	room := m.maxTotal - CountTokens(parts.SystemPrompt)
	if room > 0 {
		parts.UserMessage = truncateToTokens(parts.UserMessage, room)
	} else {
		parts.UserMessage = ""
		parts.SystemPrompt = truncateToTokens(parts.SystemPrompt, m.maxTotal)
	}
	return parts
}

// truncateToTokens cuts text at word boundaries until it fits in maxTokens.
func truncateToTokens(text string, maxTokens int) string {
	if CountTokens(text) <= maxTokens {
		return text
	}
	words := strings.Fields(text)
	// Binary search the largest word prefix that fits.
	lo, hi := 0, len(words)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if CountTokens(strings.Join(words[:mid], " ")) <= maxTokens {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return strings.Join(words[:lo], " ")
}
