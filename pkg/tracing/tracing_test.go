package tracing

import (
	"testing"

	"github.com/opentracing/opentracing-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitTracerDisabled(t *testing.T) {
	tracer, closer, err := InitTracer(Config{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, closer)
	defer closer()

	assert.IsType(t, opentracing.NoopTracer{}, tracer)
	assert.IsType(t, opentracing.NoopTracer{}, opentracing.GlobalTracer())
}

func TestSetServiceName(t *testing.T) {
	old := SetServiceName("sentinel")
	defer SetServiceName(old)
	assert.Equal(t, "sentinel", SetServiceName("sentinel"))
}
