package daemon

import (
	"context"
	"log/slog"
	"time"

	"github.com/modoterra/gamehost/pkg/core"
	"github.com/modoterra/gamehost/pkg/transport/uds"
)

// PollLoop samples every known process each interval and emits delta events.
type PollLoop struct {
	daemon   *Daemon
	interval time.Duration
	logger   *slog.Logger
}

// NewPollLoop creates a poll loop for the given daemon.
func NewPollLoop(d *Daemon, interval time.Duration, logger *slog.Logger) *PollLoop {
	return &PollLoop{daemon: d, interval: interval, logger: logger}
}

// Run starts the poll loop. Blocks until ctx is cancelled.
func (pl *PollLoop) Run(ctx context.Context) {
	ticker := time.NewTicker(pl.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pl.tick()
		}
	}
}

func (pl *PollLoop) tick() {
	d := pl.daemon
	newProcs := make(map[int]core.ProcessInfo)

	for _, p := range d.registry.List() {
		info := p.Info()
		info.UptimeSec = uint64(p.Uptime().Seconds())
		if info.Status == core.StatusRunning {
			sample, err := d.sampler.Sample(p.PID())
			if err != nil {
				pl.logger.Debug("sample process", "pid", p.PID(), "err", err)
			} else {
				info.CPUPct = sample.CPUPct
				info.MemBytes = sample.MemBytes
			}
		} else {
			d.sampler.Forget(p.PID())
		}
		newProcs[info.PID] = info
	}

	// Compute delta
	d.mu.Lock()
	oldProcs := d.procs
	d.procs = newProcs
	d.mu.Unlock()

	delta := computeDelta(oldProcs, newProcs)
	if hasChanges(delta) {
		evt, err := uds.NewEvent(uds.EventProcessesDelta, delta)
		if err == nil {
			d.Server().Broadcast(evt)
		}
	}
}

func hasChanges(d uds.ProcessesDelta) bool {
	return len(d.Added) > 0 || len(d.Updated) > 0 || len(d.Removed) > 0
}

func computeDelta(old, new map[int]core.ProcessInfo) uds.ProcessesDelta {
	var d uds.ProcessesDelta

	for pid, info := range new {
		prev, existed := old[pid]
		if !existed {
			d.Added = append(d.Added, info)
		} else if infoChanged(prev, info) {
			d.Updated = append(d.Updated, info)
		}
	}

	for pid := range old {
		if _, exists := new[pid]; !exists {
			d.Removed = append(d.Removed, pid)
		}
	}

	return d
}

// infoChanged ignores uptime, which moves on every tick.
func infoChanged(a, b core.ProcessInfo) bool {
	return a.Status != b.Status ||
		a.CPUPct != b.CPUPct ||
		a.MemBytes != b.MemBytes ||
		a.Rows != b.Rows ||
		a.IPC != b.IPC ||
		len(a.Classes) != len(b.Classes) ||
		exitCode(a) != exitCode(b)
}

func exitCode(info core.ProcessInfo) int {
	if info.ExitCode == nil {
		return -2
	}
	return *info.ExitCode
}
