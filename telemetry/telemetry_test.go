package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledIsNoop(t *testing.T) {
	require.NoError(t, Init(context.Background(), "test", Options{}))
	_, span := Tracer("").Start(context.Background(), "stage.recipe")
	assert.False(t, span.SpanContext().IsValid())
	span.End()
	Shutdown(context.Background())
}

func TestStdoutExporter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Init(context.Background(), "test", Options{Enabled: true, Writer: &buf}))
	_, span := Tracer("pipeline").Start(context.Background(), "stage.publish")
	assert.True(t, span.SpanContext().IsValid())
	span.End()
	Shutdown(context.Background())
	assert.Contains(t, buf.String(), "stage.publish")

	require.NoError(t, Init(context.Background(), "test", Options{}))
}
