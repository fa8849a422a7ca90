package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_EmptyEndpointIsNoop(t *testing.T) {
	p, err := New(context.Background(), Config{ServiceName: "qola-api"}, nil)
	require.NoError(t, err)

	_, span := p.Tracer().Start(context.Background(), "test")
	assert.False(t, span.SpanContext().IsValid())
	span.End()

	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestProvider_NilSafe(t *testing.T) {
	var p *Provider
	assert.NotNil(t, p.Tracer())
	assert.NoError(t, p.Shutdown(context.Background()))
}
