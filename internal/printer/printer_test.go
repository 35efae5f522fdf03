package printer

import (
	"bytes"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func capture(t *testing.T) (*bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	prevOut, prevErr, prevNoColor := Out, Err, color.NoColor
	var out, errBuf bytes.Buffer
	Out, Err = &out, &errBuf
	color.NoColor = true
	t.Cleanup(func() {
		Out, Err, color.NoColor = prevOut, prevErr, prevNoColor
	})
	return &out, &errBuf
}

func TestError(t *testing.T) {
	t.Run("returns error with title", func(t *testing.T) {
		_, stderr := capture(t)
		err := Error("Checkpoint write failed", "disk full", nil)
		require.Error(t, err)
		require.Equal(t, "Checkpoint write failed", err.Error())
		assert.Contains(t, stderr.String(), "disk full")
	})

	t.Run("single suggestion is printed inline", func(t *testing.T) {
		_, stderr := capture(t)
		Error("Test Error", "Explanation", []string{"Free some space"})
		assert.Contains(t, stderr.String(), "\nFree some space\n")
		assert.NotContains(t, stderr.String(), "Either:")
	})

	t.Run("multiple suggestions are numbered", func(t *testing.T) {
		_, stderr := capture(t)
		Error("Test Error", "Explanation", []string{"First option", "Second option"})
		assert.Contains(t, stderr.String(), "Either:\n  1. First option\n  2. Second option\n")
	})
}

func TestErrorWithContext(t *testing.T) {
	_, stderr := capture(t)
	err := ErrorWithContext("Artifact mismatch", "", map[string]string{
		"position":   "11",
		"checkpoint": "0",
	}, nil)
	require.Equal(t, "Artifact mismatch", err.Error())
	assert.Contains(t, stderr.String(), "  checkpoint: 0\n  position: 11\n")
}

func TestMessages(t *testing.T) {
	stdout, _ := capture(t)

	Success("done\n")
	Success("✓ already prefixed\n")
	Warning("low disk\n")
	Step("Resumed at digit #%d\n", 42)
	Field("Digits", 42)

	got := stdout.String()
	assert.Contains(t, got, "✓ done\n")
	assert.Contains(t, got, "✓ already prefixed\n")
	assert.NotContains(t, got, "✓ ✓")
	assert.Contains(t, got, "⚠️  low disk\n")
	assert.Contains(t, got, "→ Resumed at digit #42\n")
	assert.Contains(t, got, "Digits:            42\n")
}
