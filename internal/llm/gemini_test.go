package llm

import (
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightsmile/clinic-assistant/internal/dialogue"
)

func TestGeminiTools(t *testing.T) {
	tools := geminiTools(sampleRequest().Actions)
	require.Len(t, tools, 1)
	require.Len(t, tools[0].FunctionDeclarations, 1)

	decl := tools[0].FunctionDeclarations[0]
	assert.Equal(t, "select_service", decl.Name)
	require.NotNil(t, decl.Parameters)
	assert.Equal(t, genai.TypeObject, decl.Parameters.Type)
	assert.Contains(t, decl.Parameters.Properties, "service_type")
	assert.Equal(t, []string{"service_type"}, decl.Parameters.Required)
}

func TestGeminiToolsNoParams(t *testing.T) {
	tools := geminiTools([]dialogue.ActionSchema{{Name: "back_to_main", Description: "Return to the main menu."}})
	require.Len(t, tools, 1)
	assert.Nil(t, tools[0].FunctionDeclarations[0].Parameters)

	assert.Nil(t, geminiTools(nil))
}

func TestGeminiHistorySplit(t *testing.T) {
	prior, last, err := geminiHistory([]dialogue.Message{
		{Role: "user", Content: "Hi"},
		{Role: "assistant", Content: "Hello! How can I help?"},
		{Role: "user", Content: "Book me in"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Book me in", last)
	require.Len(t, prior, 2)
	assert.Equal(t, "user", prior[0].Role)
	assert.Equal(t, "model", prior[1].Role)
}

func TestGeminiHistoryMustEndWithUser(t *testing.T) {
	_, _, err := geminiHistory([]dialogue.Message{
		{Role: "assistant", Content: "Hello"},
	})
	assert.Error(t, err)

	_, _, err = geminiHistory(nil)
	assert.Error(t, err)
}

func TestReplyFromGeminiParts(t *testing.T) {
	reply, err := replyFromGeminiParts([]genai.Part{
		genai.Text("One moment."),
		genai.FunctionCall{Name: "select_service", Args: map[string]any{"service_type": "crown"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "One moment.", reply.Text)
	require.NotNil(t, reply.Invocation)
	assert.Equal(t, "select_service", reply.Invocation.Name)
	assert.Equal(t, "crown", reply.Invocation.Args["service_type"])

	_, err = replyFromGeminiParts(nil)
	assert.Error(t, err)
}
