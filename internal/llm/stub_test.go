package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStubGatewayNeverInvokes(t *testing.T) {
	g := NewStubGateway()

	reply, err := g.Converse(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Nil(t, reply.Invocation)
	assert.Contains(t, reply.Text, "select_service")

	noActions := sampleRequest()
	noActions.Actions = nil
	reply, err = g.Converse(context.Background(), noActions)
	require.NoError(t, err)
	assert.Equal(t, "Greet the caller.", reply.Text)
}
