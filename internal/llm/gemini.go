package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/brightsmile/clinic-assistant/internal/dialogue"
	"github.com/brightsmile/clinic-assistant/pkg/logging"
)

// GeminiGateway drives the dialogue through Google's Gemini API using
// function declarations for action invocation.
type GeminiGateway struct {
	client  *genai.Client
	modelID string
	logger  *logging.Logger
}

func NewGeminiGateway(ctx context.Context, apiKey, modelID string, logger *logging.Logger) (*GeminiGateway, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("llm: gemini api key is required")
	}
	if strings.TrimSpace(modelID) == "" {
		modelID = "gemini-2.5-flash"
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("llm: create gemini client: %w", err)
	}
	return &GeminiGateway{client: client, modelID: modelID, logger: logger}, nil
}

func (g *GeminiGateway) Close() error {
	return g.client.Close()
}

func (g *GeminiGateway) Converse(ctx context.Context, req dialogue.Request) (dialogue.Reply, error) {
	model := g.client.GenerativeModel(g.modelID)
	model.SystemInstruction = genai.NewUserContent(genai.Text(req.Instructions))
	if tools := geminiTools(req.Actions); tools != nil {
		model.Tools = tools
	}

	history, last, err := geminiHistory(req.History)
	if err != nil {
		return dialogue.Reply{}, err
	}

	cs := model.StartChat()
	cs.History = history
	resp, err := cs.SendMessage(ctx, genai.Text(last))
	if err != nil {
		return dialogue.Reply{}, fmt.Errorf("llm: gemini send: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return dialogue.Reply{}, errors.New("llm: gemini returned no candidates")
	}
	return replyFromGeminiParts(resp.Candidates[0].Content.Parts)
}

// geminiHistory splits the dialogue history into prior turns and the final
// user message, which the chat API takes separately.
func geminiHistory(history []dialogue.Message) ([]*genai.Content, string, error) {
	if len(history) == 0 {
		return nil, "", errors.New("llm: conversation history is empty")
	}
	final := history[len(history)-1]
	if final.Role != "user" {
		return nil, "", errors.New("llm: conversation history must end with a user message")
	}

	prior := make([]*genai.Content, 0, len(history)-1)
	for _, msg := range history[:len(history)-1] {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		role := "user"
		if msg.Role == "assistant" {
			role = "model"
		}
		prior = append(prior, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(content)},
		})
	}
	return prior, final.Content, nil
}

func geminiTools(actions []dialogue.ActionSchema) []*genai.Tool {
	if len(actions) == 0 {
		return nil
	}
	decls := make([]*genai.FunctionDeclaration, 0, len(actions))
	for _, action := range actions {
		properties := make(map[string]*genai.Schema, len(action.Params))
		required := make([]string, 0, len(action.Params))
		for _, p := range action.Params {
			properties[p.Name] = &genai.Schema{
				Type:        geminiType(p.Type),
				Description: p.Description,
			}
			if p.Required {
				required = append(required, p.Name)
			}
		}
		decl := &genai.FunctionDeclaration{
			Name:        action.Name,
			Description: action.Description,
		}
		if len(properties) > 0 {
			decl.Parameters = &genai.Schema{
				Type:       genai.TypeObject,
				Properties: properties,
				Required:   required,
			}
		}
		decls = append(decls, decl)
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func geminiType(t dialogue.ParamType) genai.Type {
	if t == dialogue.ParamBool {
		return genai.TypeBoolean
	}
	return genai.TypeString
}

func replyFromGeminiParts(parts []genai.Part) (dialogue.Reply, error) {
	var reply dialogue.Reply
	var text strings.Builder
	for _, part := range parts {
		switch p := part.(type) {
		case genai.Text:
			if text.Len() > 0 {
				text.WriteString("\n")
			}
			text.WriteString(string(p))
		case genai.FunctionCall:
			if reply.Invocation != nil {
				continue
			}
			args := p.Args
			if args == nil {
				args = make(map[string]any)
			}
			reply.Invocation = &dialogue.Invocation{Name: p.Name, Args: args}
		}
	}
	reply.Text = strings.TrimSpace(text.String())
	if reply.Text == "" && reply.Invocation == nil {
		return dialogue.Reply{}, errors.New("llm: gemini returned neither text nor a function call")
	}
	return reply, nil
}
