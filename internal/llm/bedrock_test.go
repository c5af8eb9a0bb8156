package llm

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightsmile/clinic-assistant/internal/dialogue"
	"github.com/brightsmile/clinic-assistant/pkg/logging"
)

type fakeBedrockAPI struct {
	lastInput *bedrockruntime.ConverseInput
	output    *bedrockruntime.ConverseOutput
	err       error
}

func (f *fakeBedrockAPI) Converse(_ context.Context, params *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	f.lastInput = params
	return f.output, f.err
}

func textOutput(text string) *bedrockruntime.ConverseOutput {
	return &bedrockruntime.ConverseOutput{
		Output: &brtypes.ConverseOutputMemberMessage{
			Value: brtypes.Message{
				Role:    brtypes.ConversationRoleAssistant,
				Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: text}},
			},
		},
	}
}

func sampleRequest() dialogue.Request {
	return dialogue.Request{
		Instructions: "Greet the caller.",
		History: []dialogue.Message{
			{Role: "user", Content: "Hi there"},
		},
		Actions: []dialogue.ActionSchema{
			{
				Name:        "select_service",
				Description: "The patient picked a service.",
				Params: []dialogue.Param{
					{Name: "service_type", Description: "The service key.", Type: dialogue.ParamString, Required: true},
					{Name: "preferred_doctor", Description: "Preferred doctor.", Type: dialogue.ParamString},
				},
			},
		},
	}
}

func TestBedrockBuildsToolConfig(t *testing.T) {
	api := &fakeBedrockAPI{output: textOutput("Hello!")}
	g, err := NewBedrockGateway(api, "anthropic.claude-3-5-sonnet-20241022-v2:0", logging.Default())
	require.NoError(t, err)

	reply, err := g.Converse(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "Hello!", reply.Text)
	assert.Nil(t, reply.Invocation)

	input := api.lastInput
	require.NotNil(t, input)
	require.Len(t, input.System, 1)
	assert.Equal(t, "Greet the caller.",
		input.System[0].(*brtypes.SystemContentBlockMemberText).Value)
	require.Len(t, input.Messages, 1)
	assert.Equal(t, brtypes.ConversationRoleUser, input.Messages[0].Role)

	require.NotNil(t, input.ToolConfig)
	require.Len(t, input.ToolConfig.Tools, 1)
	spec := input.ToolConfig.Tools[0].(*brtypes.ToolMemberToolSpec).Value
	assert.Equal(t, "select_service", aws.ToString(spec.Name))
}

func TestBedrockParsesToolUse(t *testing.T) {
	api := &fakeBedrockAPI{
		output: &bedrockruntime.ConverseOutput{
			Output: &brtypes.ConverseOutputMemberMessage{
				Value: brtypes.Message{
					Role: brtypes.ConversationRoleAssistant,
					Content: []brtypes.ContentBlock{
						&brtypes.ContentBlockMemberText{Value: "Let me set that up."},
						&brtypes.ContentBlockMemberToolUse{
							Value: brtypes.ToolUseBlock{
								ToolUseId: aws.String("tool-1"),
								Name:      aws.String("select_service"),
								Input: document.NewLazyDocument(map[string]any{
									"service_type": "teeth_cleaning",
								}),
							},
						},
					},
				},
			},
		},
	}
	g, err := NewBedrockGateway(api, "model-id", logging.Default())
	require.NoError(t, err)

	reply, err := g.Converse(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "Let me set that up.", reply.Text)
	require.NotNil(t, reply.Invocation)
	assert.Equal(t, "select_service", reply.Invocation.Name)
	assert.Equal(t, "teeth_cleaning", reply.Invocation.Args["service_type"])
}

func TestBedrockNoToolsWhenNoActions(t *testing.T) {
	api := &fakeBedrockAPI{output: textOutput("Goodbye!")}
	g, err := NewBedrockGateway(api, "model-id", logging.Default())
	require.NoError(t, err)

	req := sampleRequest()
	req.Actions = nil
	_, err = g.Converse(context.Background(), req)
	require.NoError(t, err)
	assert.Nil(t, api.lastInput.ToolConfig)
}

func TestBedrockRejectsEmptyHistory(t *testing.T) {
	g, err := NewBedrockGateway(&fakeBedrockAPI{}, "model-id", logging.Default())
	require.NoError(t, err)

	_, err = g.Converse(context.Background(), dialogue.Request{Instructions: "x"})
	assert.Error(t, err)
}

func TestActionJSONSchema(t *testing.T) {
	schema := actionJSONSchema(sampleRequest().Actions[0])
	assert.Equal(t, "object", schema["type"])
	props := schema["properties"].(map[string]any)
	assert.Contains(t, props, "service_type")
	assert.Contains(t, props, "preferred_doctor")
	assert.Equal(t, []string{"service_type"}, schema["required"])
}
