// Package dialogue drives the conversation: it builds the prompt for the
// current flow node, hands it to a model gateway, validates whatever action
// the model invokes, applies the action's handler, and persists the session.
package dialogue

import "context"

// ParamType is the wire type of an action parameter.
type ParamType string

const (
	ParamString ParamType = "string"
	ParamBool   ParamType = "boolean"
)

// Param describes one parameter of an action schema.
type Param struct {
	Name        string
	Description string
	Type        ParamType
	Required    bool
}

// ActionSchema is the model-facing description of an action: what it is
// called, when to use it, and what arguments it takes.
type ActionSchema struct {
	Name        string
	Description string
	Params      []Param
}

// Message is one prior turn handed to the model for context.
type Message struct {
	Role    string // "user" or "assistant"
	Content string
}

// Request is a single model call: the node's instructions, the conversation
// so far, and the actions the model is allowed to invoke.
type Request struct {
	Instructions string
	History      []Message
	Actions      []ActionSchema
}

// Invocation is an action the model chose to invoke, with raw arguments as
// decoded from the provider's tool-call payload.
type Invocation struct {
	Name string
	Args map[string]any
}

// Reply is the model's response: either plain text for the user, or an
// action invocation, or text accompanying an invocation.
type Reply struct {
	Text       string
	Invocation *Invocation
}

// Gateway abstracts the LLM provider. Implementations live in internal/llm.
type Gateway interface {
	Converse(ctx context.Context, req Request) (Reply, error)
}
