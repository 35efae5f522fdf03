package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/dyluth/spigot/internal/checkpoint"
	"github.com/dyluth/spigot/internal/engine"
	"github.com/dyluth/spigot/internal/printer"
	"github.com/dyluth/spigot/internal/sink"
	"github.com/dyluth/spigot/pkg/statusboard"
	"github.com/fatih/color"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs the CLI with args and returns printer stdout and stderr.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	prevOut, prevErr, prevNoColor := printer.Out, printer.Err, color.NoColor
	var stdout, stderr bytes.Buffer
	printer.Out, printer.Err, color.NoColor = &stdout, &stderr, true
	t.Cleanup(func() {
		printer.Out, printer.Err, color.NoColor = prevOut, prevErr, prevNoColor
	})

	root := NewRootCmd()
	root.SetArgs(args)
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func expectedDigits(t *testing.T, n int) string {
	t.Helper()
	start, err := engine.AfterPrefix()
	require.NoError(t, err)
	digits, _, err := engine.Digits(start, n)
	require.NoError(t, err)
	return string(digits)
}

func readArtifact(t *testing.T, dir string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, sink.FileName))
	require.NoError(t, err)
	return string(data)
}

func TestRootCommand_ShowsHelpWhenNoSubcommand(t *testing.T) {
	stdout, _, err := execute(t)
	assert.NoError(t, err)
	assert.Contains(t, stdout, "Usage:")
	assert.Contains(t, stdout, "spigot")
}

func TestRootCommand_RejectsUnknownFlags(t *testing.T) {
	_, _, err := execute(t, "--unknown-flag", "value")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown flag")
}

func TestRootCommand_Version(t *testing.T) {
	prev := versionString
	t.Cleanup(func() { versionString = prev })

	SetVersionInfo("1.2.3", "abc123", "2025-03-14")
	stdout, _, err := execute(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, stdout, "1.2.3 (commit: abc123, built: 2025-03-14)")
}

func TestRun_BoundedThenResumed(t *testing.T) {
	dir := t.TempDir()

	stdout, _, err := execute(t, "run", "--out", dir, "--no-hud", "--max-digits", "25",
		"--checkpoint", "10", "--fsync", "5")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Stopped at digit #25")
	assert.Equal(t, "3."+expectedDigits(t, 25), readArtifact(t, dir))

	stdout, _, err = execute(t, "run", "--out", dir, "--no-hud", "--max-digits", "60")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Resumed at digit #25")
	assert.Equal(t, "3."+expectedDigits(t, 60), readArtifact(t, dir))

	cp, err := mustStore(t, dir).Load()
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, uint64(60), cp.DigitsWritten)

	logData, err := os.ReadFile(filepath.Join(dir, "spigot.log"))
	require.NoError(t, err)
	for _, line := range strings.Split(strings.TrimSpace(string(logData)), "\n") {
		assert.LessOrEqual(t, strings.Count(line, `"run_id"`), 1, line)
	}
	assert.Contains(t, string(logData), `"component":"stream"`)
}

func TestRun_ConfigFileInOutputDir(t *testing.T) {
	dir := t.TempDir()
	cfg := "stream:\n  line_width: 10\n  max_digits: 25\nhud:\n  enabled: false\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "spigot.yml"), []byte(cfg), 0o644))

	_, _, err := execute(t, "run", "--out", dir)
	require.NoError(t, err)

	d := expectedDigits(t, 25)
	assert.Equal(t, "3."+d[:10]+"\n"+d[10:20]+"\n"+d[20:], readArtifact(t, dir))
}

func TestRun_FlagsOverrideConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(t.TempDir(), "custom.yml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("stream:\n  max_digits: 100\n"), 0o644))

	_, _, err := execute(t, "run", "--out", dir, "--config", cfgPath, "--no-hud", "--max-digits", "12")
	require.NoError(t, err)
	assert.Equal(t, "3."+expectedDigits(t, 12), readArtifact(t, dir))
}

func TestRun_MissingExplicitConfig(t *testing.T) {
	_, stderr, err := execute(t, "run", "--out", t.TempDir(), "--config", "/nonexistent/spigot.yml", "--no-hud")
	require.Error(t, err)
	assert.Equal(t, "invalid configuration", err.Error())
	assert.Contains(t, stderr, "failed to read config")
}

func TestRun_InvalidFlags(t *testing.T) {
	_, stderr, err := execute(t, "run", "--out", t.TempDir(), "--no-hud", "--ema-alpha", "2")
	require.Error(t, err)
	assert.Equal(t, "invalid flags", err.Error())
	assert.Contains(t, stderr, "smoothing factor")
}

func TestRun_ForeignArtifactIsFatal(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, sink.FileName), []byte("hello world"), 0o644))

	_, stderr, err := execute(t, "run", "--out", dir, "--no-hud", "--max-digits", "5")
	require.Error(t, err)
	assert.Equal(t, "output file is not a π artifact", err.Error())
	assert.Contains(t, stderr, "expected prefix")
	assert.Equal(t, "hello world", readArtifact(t, dir))
}

func TestRun_CorruptArtifactIsFatal(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, sink.FileName), []byte("3.14159265359"), 0o644))

	_, stderr, err := execute(t, "run", "--out", dir, "--no-hud", "--max-digits", "20")
	require.Error(t, err)
	assert.Equal(t, "artifact and checkpoint disagree", err.Error())
	assert.Contains(t, stderr, "First bad digit: 11")
	assert.Contains(t, stderr, "spigot verify --out")
}

func TestRun_PublishesToStatusBoard(t *testing.T) {
	mr := miniredis.RunT(t)
	dir := t.TempDir()

	_, _, err := execute(t, "run", "--out", dir, "--no-hud", "--max-digits", "15",
		"--redis-url", "redis://"+mr.Addr()+"/0", "--instance", "lab", "--metrics-addr", "127.0.0.1:0")
	require.NoError(t, err)

	client, err := statusboard.NewClient(&redis.Options{Addr: mr.Addr()}, "lab")
	require.NoError(t, err)
	defer client.Close()

	got, err := client.GetStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "stopped", got.Status)
	assert.Equal(t, uint64(15), got.DigitsWritten)
	assert.Equal(t, dir, got.OutputDir)
}

func TestStatus(t *testing.T) {
	t.Run("empty directory", func(t *testing.T) {
		stdout, _, err := execute(t, "status", "--out", t.TempDir())
		require.NoError(t, err)
		assert.Contains(t, stdout, "empty, the next run starts fresh")
	})

	t.Run("after a run", func(t *testing.T) {
		dir := t.TempDir()
		_, _, err := execute(t, "run", "--out", dir, "--no-hud", "--max-digits", "30")
		require.NoError(t, err)

		stdout, _, err := execute(t, "status", "--out", dir)
		require.NoError(t, err)
		assert.Contains(t, stdout, "Artifact digits:   30")
		assert.Contains(t, stdout, "Checkpoint digits: 30")
		assert.Contains(t, stdout, "✓ consistent")
	})

	t.Run("truncated artifact", func(t *testing.T) {
		dir := t.TempDir()
		_, _, err := execute(t, "run", "--out", dir, "--no-hud", "--max-digits", "30")
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, sink.FileName), []byte("3.14159"), 0o644))

		stdout, _, err := execute(t, "status", "--out", dir)
		require.NoError(t, err)
		assert.Contains(t, stdout, "25 digits BEHIND the checkpoint")
	})

	t.Run("with status board history", func(t *testing.T) {
		mr := miniredis.RunT(t)
		dir := t.TempDir()
		url := "redis://" + mr.Addr() + "/0"
		_, _, err := execute(t, "run", "--out", dir, "--no-hud", "--max-digits", "10", "--redis-url", url)
		require.NoError(t, err)

		stdout, _, err := execute(t, "status", "--out", dir, "--redis-url", url, "--since", "1h")
		require.NoError(t, err)
		assert.Contains(t, stdout, "Board status:")
		assert.Contains(t, stdout, "STOPPED")
		assert.Contains(t, stdout, "Status history for instance 'default'")
	})

	t.Run("missing directory is not created", func(t *testing.T) {
		missing := filepath.Join(t.TempDir(), "typo")
		_, _, err := execute(t, "status", "--out", missing)
		require.Error(t, err)
		assert.Equal(t, "cannot inspect output directory", err.Error())

		_, statErr := os.Stat(missing)
		assert.True(t, os.IsNotExist(statErr))
	})

		t.Run("bad time range", func(t *testing.T) {
		_, _, err := execute(t, "status", "--out", t.TempDir(), "--since", "soon")
		require.Error(t, err)
		assert.Equal(t, "invalid time range", err.Error())
	})
}

func TestVerify(t *testing.T) {
	dir := t.TempDir()
	_, _, err := execute(t, "run", "--out", dir, "--no-hud", "--max-digits", "40", "--line-width", "7")
	require.NoError(t, err)

	stdout, _, err := execute(t, "verify", "--out", dir)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Verified 40 of 40 digits")
	assert.Contains(t, stdout, "Checkpoint state matches digit #40")

	stdout, _, err = execute(t, "verify", "--out", dir, "--limit", "10")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Verified 10 of 40 digits")

	// Flip digit 3 (the second '1').
	content := readArtifact(t, dir)
	corrupted := content[:4] + "7" + content[5:]
	require.NoError(t, os.WriteFile(filepath.Join(dir, sink.FileName), []byte(corrupted), 0o644))

	_, stderr, err := execute(t, "verify", "--out", dir)
	require.Error(t, err)
	assert.Equal(t, "artifact does not match π", err.Error())
	assert.Contains(t, stderr, "First bad digit: 3")
}

func TestVerify_EmptyDirectory(t *testing.T) {
	stdout, _, err := execute(t, "verify", "--out", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, stdout, "No digits to verify")
}

func TestWatch(t *testing.T) {
	t.Run("requires a status board", func(t *testing.T) {
		_, _, err := execute(t, "watch", "--out", t.TempDir())
		require.Error(t, err)
		assert.Equal(t, "no status board configured", err.Error())
	})

	t.Run("finished run", func(t *testing.T) {
		mr := miniredis.RunT(t)
		dir := t.TempDir()
		url := "redis://" + mr.Addr() + "/0"
		_, _, err := execute(t, "run", "--out", dir, "--no-hud", "--max-digits", "10", "--redis-url", url)
		require.NoError(t, err)

		stdout, _, err := execute(t, "watch", "--out", dir, "--redis-url", url, "--output", "jsonl", "--wait", "1s")
		require.NoError(t, err)
		lines := strings.Split(strings.TrimSpace(stdout), "\n")
		assert.Contains(t, lines[len(lines)-1], `"status":"stopped"`)
		assert.Contains(t, lines[len(lines)-1], `"digits_written":10`)
	})

	t.Run("unreachable redis", func(t *testing.T) {
		_, _, err := execute(t, "watch", "--out", t.TempDir(), "--redis-url", "redis://127.0.0.1:1/0")
		require.Error(t, err)
		assert.Equal(t, "Redis connection failed", err.Error())
	})
}

func mustStore(t *testing.T, dir string) *checkpoint.Store {
	t.Helper()
	s, err := checkpoint.NewStore(dir)
	require.NoError(t, err)
	return s
}
