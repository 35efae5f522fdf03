// Package hud renders a full-screen terminal status display from stream
// progress reports.
package hud

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/docker/go-units"
	"github.com/dyluth/spigot/internal/diskguard"
	"github.com/dyluth/spigot/internal/stream"
	"github.com/dyluth/spigot/internal/telemetry"
	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

const (
	defaultWidth = 80
	clearScreen  = "\033[2J\033[H"
	title        = "π Stream - Terminal HUD"
)

var (
	running = color.New(color.FgGreen, color.Bold)
	paused  = color.New(color.FgYellow, color.Bold)
	failed  = color.New(color.FgRed, color.Bold)
	dim     = color.New(color.Faint)
)

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// HUD implements stream.ProgressSink.
type HUD struct {
	w        io.Writer
	artifact string
	probe    telemetry.Probe
	width    func() int
	fileSize func(path string) (int64, error)
	free     func(path string) (uint64, error)
	footer   string
}

// Option configures a HUD.
type Option func(*HUD)

// WithProbe enables the CPU/RAM line.
func WithProbe(p telemetry.Probe) Option {
	return func(h *HUD) {
		if p != nil {
			h.probe = p
		}
	}
}

// WithWidth fixes the column count instead of querying the terminal.
func WithWidth(cols int) Option {
	return func(h *HUD) { h.width = func() int { return cols } }
}

// WithFileStats replaces the artifact size and free space lookups.
func WithFileStats(size func(string) (int64, error), free func(string) (uint64, error)) Option {
	return func(h *HUD) {
		if size != nil {
			h.fileSize = size
		}
		if free != nil {
			h.free = free
		}
	}
}

// New draws onto f, sizing lines to its terminal width.
func New(f *os.File, artifact string, opts ...Option) *HUD {
	h := &HUD{
		w:        f,
		artifact: artifact,
		probe:    telemetry.Nop,
		width: func() int {
			if cols, ok := terminalWidth(f.Fd()); ok {
				return cols
			}
			return defaultWidth
		},
		fileSize: func(path string) (int64, error) {
			info, err := os.Stat(path)
			if err != nil {
				return 0, err
			}
			return info.Size(), nil
		},
		free: diskguard.Free,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// NewWriter draws onto an arbitrary writer at a fixed width.
func NewWriter(w io.Writer, artifact string, cols int, opts ...Option) *HUD {
	h := New(nil, artifact, append([]Option{WithWidth(cols)}, opts...)...)
	h.w = w
	return h
}

// Report redraws the screen.
func (h *HUD) Report(p stream.Progress) {
	if p.Status == stream.StatusStopped && h.footer == "" {
		h.footer = "Saved checkpoint. Bye!"
	}
	cols := h.width()
	var b strings.Builder
	b.WriteString(clearScreen)
	for _, ln := range h.lines(p) {
		b.WriteString(ln.render(cols))
		b.WriteByte('\n')
	}
	fmt.Fprint(h.w, b.String())
}

type line struct {
	text  string
	style *color.Color
}

func (l line) render(cols int) string {
	text := truncate(l.text, cols)
	if pad := cols - len([]rune(text)); pad > 0 {
		text += strings.Repeat(" ", pad)
	}
	if l.style != nil {
		return l.style.Sprint(text)
	}
	return text
}

// lines builds the HUD content for p without terminal control sequences.
func (h *HUD) lines(p stream.Progress) []line {
	lines := []line{
		{text: title},
		{text: "Output: " + h.artifact, style: dim},
		{text: fmt.Sprintf("Digits: %s | Rate: %s/s (avg %s/s)",
			group(p.DigitsWritten), group(uint64(p.Rate+0.5)), group(uint64(p.SmoothedRate+0.5)))},
	}

	size, _ := h.fileSize(h.artifact)
	free, _ := h.free(filepath.Dir(h.artifact))
	lines = append(lines, line{text: fmt.Sprintf("File: %s | Free: %s",
		units.BytesSize(float64(size)), units.BytesSize(float64(free)))})

	if s, ok := h.probe.Sample(); ok {
		lines = append(lines, line{text: fmt.Sprintf("CPU(proc/sys): %4.1f%%/%4.1f%% | RAM: %s",
			s.ProcessCPU, s.SystemCPU, units.BytesSize(float64(s.RSS)))})
	}

	if p.Resumed {
		lines = append(lines, line{text: "Resumed at digit #" + group(p.StartDigits), style: dim})
	}

	lines = append(lines, statusLine(p))

	if h.footer != "" {
		lines = append(lines, line{text: h.footer})
	}
	return lines
}

func statusLine(p stream.Progress) line {
	switch p.Status {
	case stream.StatusPaused:
		return line{text: "Status: PAUSED - " + p.Reason, style: paused}
	case stream.StatusFailed:
		return line{text: "Status: FAILED - " + p.Reason, style: failed}
	case stream.StatusRunning:
		return line{text: "Status: RUNNING", style: running}
	default:
		return line{text: "Status: " + strings.ToUpper(string(p.Status))}
	}
}

func truncate(s string, cols int) string {
	r := []rune(s)
	if cols <= 0 || len(r) <= cols {
		return s
	}
	return string(r[:cols])
}

// group formats n with comma thousands separators.
func group(n uint64) string {
	s := strconv.FormatUint(n, 10)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}
