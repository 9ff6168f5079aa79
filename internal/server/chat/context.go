// Package chat assembles model context from the message tree and relays
// completion streams back to the client.
package chat

import (
	"context"
	"fmt"
	"slices"

	"github.com/njarm23/ClaudeMemories/internal/server/models"
	"github.com/njarm23/ClaudeMemories/internal/server/repositories/repomanager"
)

// DefaultMaxDepth bounds the ancestor walk.
const DefaultMaxDepth = 50

// AncestorChain returns the path from the root to leafID, root first. The
// walk stops at a root, an unknown id (including parents in another
// conversation), a revisited id or after maxDepth messages. Only the initial
// load can fail.
func AncestorChain(ctx context.Context, rm repomanager.RepositoryManager, conversationID, leafID string, maxDepth int) ([]*models.Message, error) {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	all, err := rm.Messages(rm.Transactor().Conn()).List(ctx, conversationID, 0)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	byID := make(map[string]*models.Message, len(all))
	for _, m := range all {
		byID[m.ID] = m
	}

	var chain []*models.Message
	visited := make(map[string]bool)
	for id := leafID; id != "" && len(chain) < maxDepth; {
		if visited[id] {
			break
		}
		visited[id] = true
		m, ok := byID[id]
		if !ok {
			break
		}
		chain = append(chain, m)
		id = ""
		if m.ParentID != nil {
			id = *m.ParentID
		}
	}
	slices.Reverse(chain)
	return chain, nil
}
