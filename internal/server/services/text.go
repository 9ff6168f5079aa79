package services

import (
	"strings"

	"github.com/njarm23/ClaudeMemories/internal/server/llm"
	"github.com/njarm23/ClaudeMemories/internal/server/models"
)

// stripFences removes markdown code fences models like to wrap JSON in.
func stripFences(s string) string {
	s = strings.ReplaceAll(s, "```json\n", "")
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```\n", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}

// clip cuts s to n runes and marks the cut with "...".
func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func turns(msgs []*models.Message, limit int) []llm.Turn {
	out := make([]llm.Turn, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, llm.Turn{Role: m.Role, Text: clip(m.Content, limit)})
	}
	return out
}
