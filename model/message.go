package model

import "time"

// Message is a single role-tagged conversation turn sent to or received from
// a provider.
type Message struct {
	Role      string
	Content   string
	Timestamp time.Time
}

// ToolCall is a provider-agnostic tool invocation request extracted from a
// model response.
type ToolCall struct {
	Name      string
	Arguments map[string]any
}
