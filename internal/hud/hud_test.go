package hud

import (
	"bytes"
	"strings"
	"testing"

	"github.com/dyluth/spigot/internal/stream"
	"github.com/dyluth/spigot/internal/telemetry"
	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedProbe struct{ s telemetry.Sample }

func (f fixedProbe) Sample() (telemetry.Sample, bool) { return f.s, true }

func newTestHUD(t *testing.T, buf *bytes.Buffer, cols int, opts ...Option) *HUD {
	t.Helper()
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })

	stats := WithFileStats(
		func(string) (int64, error) { return 1536, nil },
		func(string) (uint64, error) { return 5 << 30, nil },
	)
	return NewWriter(buf, "/data/pi_digits.txt", cols, append([]Option{stats}, opts...)...)
}

func screen(buf *bytes.Buffer) []string {
	out := strings.TrimPrefix(buf.String(), clearScreen)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], " ")
	}
	return lines
}

func TestReport_Running(t *testing.T) {
	var buf bytes.Buffer
	h := newTestHUD(t, &buf, 120)

	h.Report(stream.Progress{DigitsWritten: 1234567, Rate: 10400.4, SmoothedRate: 9999.6, Status: stream.StatusRunning})

	require.True(t, strings.HasPrefix(buf.String(), clearScreen))
	assert.Equal(t, []string{
		"π Stream - Terminal HUD",
		"Output: /data/pi_digits.txt",
		"Digits: 1,234,567 | Rate: 10,400/s (avg 10,000/s)",
		"File: 1.5KiB | Free: 5GiB",
		"Status: RUNNING",
	}, screen(&buf))
}

func TestReport_PausedResumedWithTelemetry(t *testing.T) {
	var buf bytes.Buffer
	probe := fixedProbe{s: telemetry.Sample{ProcessCPU: 99.5, SystemCPU: 12.3, RSS: 64 << 20}}
	h := newTestHUD(t, &buf, 120, WithProbe(probe))

	h.Report(stream.Progress{
		DigitsWritten: 50000,
		StartDigits:   42,
		Resumed:       true,
		Status:        stream.StatusPaused,
		Reason:        "Free space 512MiB < 1GiB",
	})

	got := screen(&buf)
	assert.Contains(t, got, "CPU(proc/sys): 99.5%/12.3% | RAM: 64MiB")
	assert.Contains(t, got, "Resumed at digit #42")
	assert.Equal(t, "Status: PAUSED - Free space 512MiB < 1GiB", got[len(got)-1])
}

func TestReport_StoppedAddsFooter(t *testing.T) {
	var buf bytes.Buffer
	h := newTestHUD(t, &buf, 120)

	h.Report(stream.Progress{DigitsWritten: 10, Status: stream.StatusStopped})
	got := screen(&buf)
	assert.Equal(t, "Status: STOPPED", got[len(got)-2])
	assert.Equal(t, "Saved checkpoint. Bye!", got[len(got)-1])
}

func TestReport_TruncatesAndPadsToWidth(t *testing.T) {
	var buf bytes.Buffer
	h := newTestHUD(t, &buf, 10)

	h.Report(stream.Progress{Status: stream.StatusRunning})

	out := strings.TrimPrefix(buf.String(), clearScreen)
	for _, ln := range strings.Split(strings.TrimRight(out, "\n"), "\n") {
		assert.Len(t, []rune(ln), 10, ln)
	}
	assert.Contains(t, out, "π Stream -")
}

func TestGroup(t *testing.T) {
	tests := map[uint64]string{
		0:             "0",
		999:           "999",
		1000:          "1,000",
		123456:        "123,456",
		1234567:       "1,234,567",
		1000000000000: "1,000,000,000,000",
	}
	for in, want := range tests {
		assert.Equal(t, want, group(in))
	}
}
