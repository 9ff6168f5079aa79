// Package common contains shared constants and sentinel errors used across
// the server, the job workers and the admin CLI. Callers should match errors
// with errors.Is / errors.As.
package common

// AuthorizationHeader carries "Bearer <jwt>" on API requests.
const AuthorizationHeader = "Authorization"

// DefaultConversationTitle is the placeholder title auto-titling may replace.
const DefaultConversationTitle = "New Chat"

// DefaultModel is used for new conversations and for utility LLM calls.
const DefaultModel = "claude-sonnet-4-20250514"
