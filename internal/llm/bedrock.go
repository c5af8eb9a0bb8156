// Package llm adapts LLM providers to the dialogue.Gateway contract: node
// instructions become the system prompt, the node's actions become tool
// declarations, and a tool call comes back as a dialogue.Invocation.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/brightsmile/clinic-assistant/internal/dialogue"
	"github.com/brightsmile/clinic-assistant/pkg/logging"
)

type bedrockConverseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockGateway drives the dialogue through Bedrock's Converse API with tool
// use for action invocation.
type BedrockGateway struct {
	api     bedrockConverseAPI
	modelID string
	logger  *logging.Logger
}

func NewBedrockGateway(api bedrockConverseAPI, modelID string, logger *logging.Logger) (*BedrockGateway, error) {
	if api == nil {
		return nil, errors.New("llm: bedrock converse client cannot be nil")
	}
	if strings.TrimSpace(modelID) == "" {
		return nil, errors.New("llm: bedrock model id is required")
	}
	return &BedrockGateway{api: api, modelID: modelID, logger: logger}, nil
}

func (g *BedrockGateway) Converse(ctx context.Context, req dialogue.Request) (dialogue.Reply, error) {
	input, err := g.buildConverseInput(req)
	if err != nil {
		return dialogue.Reply{}, err
	}
	out, err := g.api.Converse(ctx, input)
	if err != nil {
		return dialogue.Reply{}, fmt.Errorf("llm: bedrock converse: %w", err)
	}
	return replyFromConverseOutput(out)
}

func (g *BedrockGateway) buildConverseInput(req dialogue.Request) (*bedrockruntime.ConverseInput, error) {
	messages := make([]brtypes.Message, 0, len(req.History))
	for _, msg := range req.History {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		var role brtypes.ConversationRole
		switch msg.Role {
		case "user":
			role = brtypes.ConversationRoleUser
		case "assistant":
			role = brtypes.ConversationRoleAssistant
		default:
			return nil, fmt.Errorf("llm: unsupported role %q", msg.Role)
		}
		messages = append(messages, brtypes.Message{
			Role: role,
			Content: []brtypes.ContentBlock{
				&brtypes.ContentBlockMemberText{Value: content},
			},
		})
	}
	if len(messages) == 0 {
		return nil, errors.New("llm: conversation history is empty")
	}

	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(g.modelID),
		System:   []brtypes.SystemContentBlock{&brtypes.SystemContentBlockMemberText{Value: req.Instructions}},
		Messages: messages,
	}
	if len(req.Actions) > 0 {
		tools := make([]brtypes.Tool, 0, len(req.Actions))
		for _, action := range req.Actions {
			tools = append(tools, &brtypes.ToolMemberToolSpec{
				Value: brtypes.ToolSpecification{
					Name:        aws.String(action.Name),
					Description: aws.String(action.Description),
					InputSchema: &brtypes.ToolInputSchemaMemberJson{
						Value: document.NewLazyDocument(actionJSONSchema(action)),
					},
				},
			})
		}
		input.ToolConfig = &brtypes.ToolConfiguration{Tools: tools}
	}
	return input, nil
}

// actionJSONSchema renders an action schema as the JSON Schema object Bedrock
// expects for tool input.
func actionJSONSchema(action dialogue.ActionSchema) map[string]any {
	properties := make(map[string]any, len(action.Params))
	required := make([]string, 0, len(action.Params))
	for _, p := range action.Params {
		properties[p.Name] = map[string]any{
			"type":        string(p.Type),
			"description": p.Description,
		}
		if p.Required {
			required = append(required, p.Name)
		}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func replyFromConverseOutput(out *bedrockruntime.ConverseOutput) (dialogue.Reply, error) {
	message, ok := out.Output.(*brtypes.ConverseOutputMemberMessage)
	if !ok {
		return dialogue.Reply{}, fmt.Errorf("llm: unexpected bedrock output type %T", out.Output)
	}

	var reply dialogue.Reply
	var text strings.Builder
	for _, block := range message.Value.Content {
		switch b := block.(type) {
		case *brtypes.ContentBlockMemberText:
			if text.Len() > 0 {
				text.WriteString("\n")
			}
			text.WriteString(b.Value)
		case *brtypes.ContentBlockMemberToolUse:
			if reply.Invocation != nil {
				// One action per response; extra tool calls are dropped.
				continue
			}
			args := make(map[string]any)
			if b.Value.Input != nil {
				if err := b.Value.Input.UnmarshalSmithyDocument(&args); err != nil {
					return dialogue.Reply{}, fmt.Errorf("llm: decode tool input: %w", err)
				}
			}
			reply.Invocation = &dialogue.Invocation{
				Name: aws.ToString(b.Value.Name),
				Args: args,
			}
		}
	}
	reply.Text = strings.TrimSpace(text.String())
	if reply.Text == "" && reply.Invocation == nil {
		return dialogue.Reply{}, errors.New("llm: bedrock returned neither text nor a tool call")
	}
	return reply, nil
}
