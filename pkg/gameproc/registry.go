package gameproc

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/modoterra/gamehost/pkg/core"
)

// Registry maps pids to supervised processes. Processes move from the live
// table to the exited table exactly once, when their control loop ends, and
// stay there until deleted so their logs remain queryable.
type Registry struct {
	mu     sync.Mutex
	live   map[int]*Process
	exited map[int]*Process
	logger *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		live:   make(map[int]*Process),
		exited: make(map[int]*Process),
		logger: logger,
	}
}

// Spawn starts a child, registers it and starts its control loop. Events for
// the child are delivered to sink in emission order, GameExit last.
func (r *Registry) Spawn(opts SpawnOptions, sink core.EventSink) (*Process, error) {
	data := NewData()
	if opts.CopyFrom != 0 {
		prev, err := r.Get(opts.CopyFrom)
		if err != nil {
			return nil, fmt.Errorf("copy data from pid %d: %w", opts.CopyFrom, err)
		}
		data = prev.Data()
	}
	if sink == nil {
		sink = core.SinkFunc(func(core.Event) {})
	}

	p, err := start(opts, data, sink, r.logger)
	if err != nil {
		return nil, err
	}
	p.registry = r

	r.mu.Lock()
	if _, ok := r.exited[p.pid]; ok {
		// pid reused by the OS
		r.logger.Debug("dropping retained process with reused pid", "pid", p.pid)
		delete(r.exited, p.pid)
	}
	r.live[p.pid] = p
	r.mu.Unlock()

	r.logger.Info("process started", "pid", p.pid, "exe", p.exe, "dir", p.dir, "session", data.Session)
	go p.run()
	return p, nil
}

// retire moves p from the live table to the exited table.
func (r *Registry) retire(p *Process) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.live[p.pid]; ok && cur == p {
		delete(r.live, p.pid)
		r.exited[p.pid] = p
	}
}

// Get returns the live or retained process for pid.
func (r *Registry) Get(pid int) (*Process, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.live[pid]; ok {
		return p, nil
	}
	if p, ok := r.exited[pid]; ok {
		return p, nil
	}
	r.logger.Debug("process not found", "pid", pid)
	return nil, fmt.Errorf("pid %d: %w", pid, ErrNotFound)
}

// Kill stops pid. Killing an exited process succeeds.
func (r *Registry) Kill(pid int) error {
	p, err := r.Get(pid)
	if err != nil {
		return err
	}
	p.Kill()
	return nil
}

// Send queues text for the stdin of pid.
func (r *Registry) Send(ctx context.Context, pid int, text string) error {
	p, err := r.Get(pid)
	if err != nil {
		return err
	}
	if err := p.Send(ctx, text); err != nil {
		return fmt.Errorf("pid %d: %w", pid, err)
	}
	return nil
}

// Delete drops the bookkeeping of an exited process.
func (r *Registry) Delete(pid int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.live[pid]; ok {
		return fmt.Errorf("pid %d: %w", pid, ErrStillRunning)
	}
	if _, ok := r.exited[pid]; !ok {
		return fmt.Errorf("pid %d: %w", pid, ErrNotFound)
	}
	delete(r.exited, pid)
	return nil
}

// List returns all known processes ordered by pid.
func (r *Registry) List() []*Process {
	r.mu.Lock()
	out := make([]*Process, 0, len(r.live)+len(r.exited))
	for _, p := range r.live {
		out = append(out, p)
	}
	for _, p := range r.exited {
		out = append(out, p)
	}
	r.mu.Unlock()
	slices.SortFunc(out, func(a, b *Process) int { return a.pid - b.pid })
	return out
}

// Live returns the number of running processes.
func (r *Registry) Live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live)
}

// Shutdown kills every live process and waits for them to finish or for ctx.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	procs := make([]*Process, 0, len(r.live))
	for _, p := range r.live {
		procs = append(procs, p)
	}
	r.mu.Unlock()

	for _, p := range procs {
		p.Kill()
	}
	for _, p := range procs {
		select {
		case <-p.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
