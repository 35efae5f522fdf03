package telemetry

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DisabledIsNop(t *testing.T) {
	p := New(false, nil)
	assert.Equal(t, Nop, p)

	_, ok := p.Sample()
	assert.False(t, ok)
}

func TestNew_SamplesCurrentProcess(t *testing.T) {
	if runtime.GOOS != "linux" && runtime.GOOS != "darwin" {
		t.Skip("process telemetry is only exercised on linux and darwin")
	}

	p := New(true, nil)
	require.NotEqual(t, Nop, p)

	s, ok := p.Sample()
	require.True(t, ok)
	assert.Positive(t, s.RSS)
	assert.GreaterOrEqual(t, s.ProcessCPU, 0.0)
	assert.GreaterOrEqual(t, s.SystemCPU, 0.0)
}
