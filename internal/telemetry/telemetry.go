// Package telemetry samples process and host CPU/RAM for the HUD.
//
// The probe is chosen once at startup: a gopsutil-backed probe when the
// platform supports it, otherwise a no-op that reports nothing.
package telemetry

import (
	"log/slog"
	"os"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// Sample is one reading. CPU percentages cover the interval since the
// previous call to Sample.
type Sample struct {
	ProcessCPU  float64
	SystemCPU   float64
	RSS         uint64
	MemoryUsed  float64 // percent of host memory in use
	MemoryTotal uint64
}

// Probe takes readings. ok is false when nothing could be measured.
type Probe interface {
	Sample() (s Sample, ok bool)
}

type nopProbe struct{}

func (nopProbe) Sample() (Sample, bool) { return Sample{}, false }

// Nop never reports.
var Nop Probe = nopProbe{}

type psProbe struct {
	proc   *process.Process
	logger *slog.Logger
	warned bool
}

// New returns a gopsutil probe for the current process when enabled and
// supported, otherwise Nop.
func New(enabled bool, logger *slog.Logger) Probe {
	if !enabled {
		return Nop
	}
	if logger == nil {
		logger = slog.Default()
	}
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		logger.Warn("telemetry unavailable", "component", "telemetry", "error", err)
		return Nop
	}
	p := &psProbe{proc: proc, logger: logger.With("component", "telemetry")}
	// Prime the interval counters so the first real sample is meaningful.
	_, _ = proc.Percent(0)
	_, _ = cpu.Percent(0, false)
	return p
}

func (p *psProbe) Sample() (Sample, bool) {
	procCPU, err := p.proc.Percent(0)
	if err != nil {
		return p.fail(err)
	}
	sys, err := cpu.Percent(0, false)
	if err != nil || len(sys) == 0 {
		return p.fail(err)
	}
	info, err := p.proc.MemoryInfo()
	if err != nil {
		return p.fail(err)
	}

	s := Sample{ProcessCPU: procCPU, SystemCPU: sys[0], RSS: info.RSS}
	if vm, err := mem.VirtualMemory(); err == nil {
		s.MemoryUsed = vm.UsedPercent
		s.MemoryTotal = vm.Total
	}
	return s, true
}

func (p *psProbe) fail(err error) (Sample, bool) {
	if !p.warned && err != nil {
		p.logger.Warn("telemetry sample failed", "error", err)
		p.warned = true
	}
	return Sample{}, false
}
