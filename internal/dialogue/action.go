package dialogue

import (
	"context"
	"errors"
	"fmt"

	"github.com/brightsmile/clinic-assistant/internal/session"
)

var (
	// ErrUnknownAction means the model invoked a name no handler is
	// registered under.
	ErrUnknownAction = errors.New("dialogue: unknown action")
	// ErrActionNotAllowed means the action exists but the current node does
	// not offer it.
	ErrActionNotAllowed = errors.New("dialogue: action not allowed at current node")
	// ErrInvalidArguments means the invocation's arguments failed schema
	// validation.
	ErrInvalidArguments = errors.New("dialogue: invalid action arguments")
)

// Args holds an invocation's arguments after validation. Accessors return
// zero values for absent optional parameters.
type Args map[string]any

func (a Args) String(name string) string {
	v, _ := a[name].(string)
	return v
}

func (a Args) Bool(name string) bool {
	v, _ := a[name].(bool)
	return v
}

// HandlerFunc applies an action to the session and returns the name of the
// next node. Handlers mutate only the session copy they are given; the
// engine decides when the session is persisted.
type HandlerFunc func(ctx context.Context, s *session.Session, args Args) (next string, err error)

// Descriptor couples an action's schema with its handler.
type Descriptor struct {
	Schema  ActionSchema
	Handler HandlerFunc
}

// Registry maps action names to descriptors.
type Registry struct {
	actions map[string]Descriptor
}

func NewRegistry() *Registry {
	return &Registry{actions: make(map[string]Descriptor)}
}

func (r *Registry) Register(d Descriptor) {
	r.actions[d.Schema.Name] = d
}

// Resolve returns the descriptor for name, or ErrUnknownAction.
func (r *Registry) Resolve(name string) (Descriptor, error) {
	d, ok := r.actions[name]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %q", ErrUnknownAction, name)
	}
	return d, nil
}

// Schemas returns the schemas for the given action names, in order. Unknown
// names are an error: the node graph must only offer registered actions.
func (r *Registry) Schemas(names []string) ([]ActionSchema, error) {
	out := make([]ActionSchema, 0, len(names))
	for _, name := range names {
		d, err := r.Resolve(name)
		if err != nil {
			return nil, err
		}
		out = append(out, d.Schema)
	}
	return out, nil
}

// ValidateArgs checks raw invocation arguments against the schema: required
// parameters must be present, types must match, and unknown parameters are
// rejected. Returns the validated Args.
func ValidateArgs(schema ActionSchema, raw map[string]any) (Args, error) {
	byName := make(map[string]Param, len(schema.Params))
	for _, p := range schema.Params {
		byName[p.Name] = p
	}

	out := make(Args, len(raw))
	for name, value := range raw {
		p, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s does not take %q", ErrInvalidArguments, schema.Name, name)
		}
		switch p.Type {
		case ParamString:
			s, ok := value.(string)
			if !ok {
				return nil, fmt.Errorf("%w: %s.%s must be a string", ErrInvalidArguments, schema.Name, name)
			}
			out[name] = s
		case ParamBool:
			b, ok := value.(bool)
			if !ok {
				return nil, fmt.Errorf("%w: %s.%s must be a boolean", ErrInvalidArguments, schema.Name, name)
			}
			out[name] = b
		default:
			return nil, fmt.Errorf("%w: %s.%s has unsupported type %q", ErrInvalidArguments, schema.Name, name, p.Type)
		}
	}

	for _, p := range schema.Params {
		if !p.Required {
			continue
		}
		v, present := out[p.Name]
		if !present {
			return nil, fmt.Errorf("%w: %s requires %q", ErrInvalidArguments, schema.Name, p.Name)
		}
		if p.Type == ParamString && v.(string) == "" {
			return nil, fmt.Errorf("%w: %s requires non-empty %q", ErrInvalidArguments, schema.Name, p.Name)
		}
	}
	return out, nil
}

// ValidateGraph checks at startup that every action any node can offer is
// registered, so a miswired flow fails fast instead of mid-conversation.
func ValidateGraph(f *Factory, r *Registry) error {
	for _, name := range AllNodes() {
		for _, variant := range nodeActionVariants(name) {
			for _, action := range variant {
				if _, err := r.Resolve(action); err != nil {
					return fmt.Errorf("node %q offers unregistered action: %w", name, err)
				}
			}
		}
	}
	return nil
}
