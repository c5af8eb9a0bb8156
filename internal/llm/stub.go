package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/brightsmile/clinic-assistant/internal/dialogue"
)

// StubGateway is a deterministic gateway for local development without a
// model provider. It never invokes actions; it answers with the node's
// opening line and lists what the caller could ask for.
type StubGateway struct{}

func NewStubGateway() *StubGateway {
	return &StubGateway{}
}

func (s *StubGateway) Converse(_ context.Context, req dialogue.Request) (dialogue.Reply, error) {
	firstLine := req.Instructions
	if idx := strings.IndexByte(firstLine, '\n'); idx > 0 {
		firstLine = firstLine[:idx]
	}
	if len(req.Actions) == 0 {
		return dialogue.Reply{Text: firstLine}, nil
	}
	names := make([]string, 0, len(req.Actions))
	for _, a := range req.Actions {
		names = append(names, a.Name)
	}
	return dialogue.Reply{
		Text: fmt.Sprintf("%s (stub mode; available actions: %s)", firstLine, strings.Join(names, ", ")),
	}, nil
}
