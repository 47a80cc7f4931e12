package conversation

import (
	"fmt"

	"github.com/tmc/langchaingo/llms"
)

// Role tags who produced a message.
type Role string

const (
	RoleUser             Role = "user"
	RoleRoutingAuthority Role = "routing-authority"
	RoleNodeOutput       Role = "node-output"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleRoutingAuthority, RoleNodeOutput:
		return true
	}
	return false
}

// Message is one entry of the conversation log.
type Message struct {
	Role    Role   `json:"role"`
	Name    string `json:"name"`
	Content string `json:"content"`
	// NodeID is the agent id of the node that produced a node-output
	NodeID string `json:"node_id,omitempty"`
	// Failure marks a node-output recorded in place of a failed dispatch
	Failure bool `json:"failure,omitempty"`
}

// LLM converts the message into a langchaingo chat message. Messages not
// authored by the user carry their author's name, since MessageContent has
// no name field of its own.
func (m Message) LLM() llms.MessageContent {
	switch m.Role {
	case RoleUser:
		return llms.TextParts(llms.ChatMessageTypeHuman, m.Content)
	default:
		return llms.TextParts(llms.ChatMessageTypeAI, fmt.Sprintf("[%s] %s", m.Name, m.Content))
	}
}

// ToLLM converts a snapshot into the message list expected by llms.Model.
func ToLLM(msgs []Message) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.LLM())
	}
	return out
}
