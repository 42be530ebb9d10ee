package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"path/filepath"
	"sync"
	"time"

	"github.com/modoterra/gamehost/internal/buildinfo"
	"github.com/modoterra/gamehost/pkg/config"
	"github.com/modoterra/gamehost/pkg/core"
	"github.com/modoterra/gamehost/pkg/gameproc"
	"github.com/modoterra/gamehost/pkg/logstore"
	"github.com/modoterra/gamehost/pkg/procstat"
	"github.com/modoterra/gamehost/pkg/psf"
	"github.com/modoterra/gamehost/pkg/transport/uds"
)

// autoRunTimeout bounds the wait for stdin room when sending RUN.
const autoRunTimeout = 5 * time.Second

// Daemon is the gamehostd process: it owns the process registry and serves
// it over the transport.
type Daemon struct {
	server   *uds.Server
	registry *gameproc.Registry
	config   *config.Config
	sampler  *procstat.Sampler
	procs    map[int]core.ProcessInfo // last poll snapshot
	mu       sync.RWMutex
	logger   *slog.Logger
}

// New creates a new daemon instance.
func New(cfg *config.Config, registry *gameproc.Registry, logger *slog.Logger) *Daemon {
	d := &Daemon{
		server:   uds.NewServer(cfg.Socket, logger),
		registry: registry,
		config:   cfg,
		sampler:  procstat.New(),
		procs:    make(map[int]core.ProcessInfo),
		logger:   logger,
	}
	d.registerHandlers()
	return d
}

// Config returns the active configuration.
func (d *Daemon) Config() *config.Config {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.config
}

// SetConfig swaps the configuration used for game profiles and auto-run.
// The socket is not rebound.
func (d *Daemon) SetConfig(cfg *config.Config) {
	d.mu.Lock()
	d.config = cfg
	d.mu.Unlock()
}

// Run listens, calls ready (if non-nil) once connections are accepted, and
// serves until the context is cancelled.
func (d *Daemon) Run(ctx context.Context, ready func()) error {
	ln, err := d.server.Listen()
	if err != nil {
		return err
	}
	if ready != nil {
		ready()
	}
	return d.server.Serve(ctx, ln)
}

// Shutdown cleans up resources.
func (d *Daemon) Shutdown() {
	d.server.Shutdown()
}

// Server returns the underlying UDS server (for broadcasting events).
func (d *Daemon) Server() *uds.Server {
	return d.server
}

// Registry returns the process registry.
func (d *Daemon) Registry() *gameproc.Registry {
	return d.registry
}

func (d *Daemon) registerHandlers() {
	d.server.Handle(uds.MethodPing, d.handlePing)
	d.server.Handle(uds.MethodSpawn, d.handleSpawn)
	d.server.Handle(uds.MethodKill, d.handleKill)
	d.server.Handle(uds.MethodSend, d.handleSend)
	d.server.Handle(uds.MethodDelete, d.handleDelete)
	d.server.Handle(uds.MethodGetLog, d.handleGetLog)
	d.server.Handle(uds.MethodExportLog, d.handleExportLog)
	d.server.Handle(uds.MethodGetClasses, d.handleGetClasses)
	d.server.Handle(uds.MethodListProcesses, d.handleListProcesses)
	d.server.Handle(uds.MethodGetProcess, d.handleGetProcess)
	d.server.Handle(uds.MethodDecodePSF, d.handleDecodePSF)
}

// sink broadcasts process events and reacts to completed IPC handshakes.
func (d *Daemon) sink() core.EventSink {
	return core.SinkFunc(func(ev core.Event) {
		if evt, err := uds.NewEvent(uds.EventProcess, ev); err == nil {
			d.server.Broadcast(evt)
		}
		if ev.Kind == core.EventIPCLine && ev.Value == gameproc.IPCEndLine && d.Config().IPC.AutoRun {
			go d.autoRun(ev.PID)
		}
	})
}

func (d *Daemon) autoRun(pid int) {
	ctx, cancel := context.WithTimeout(context.Background(), autoRunTimeout)
	defer cancel()
	if err := d.registry.Send(ctx, pid, gameproc.IPCRunCommand); err != nil {
		d.logger.Warn("auto run failed", "pid", pid, "err", err)
		return
	}
	d.logger.Debug("sent run command", "pid", pid)
}

func (d *Daemon) handlePing(_ context.Context, _ uds.Message) (any, error) {
	return uds.PingResponse{Pong: true, Version: buildinfo.Version}, nil
}

func (d *Daemon) handleSpawn(_ context.Context, msg uds.Message) (any, error) {
	var req uds.SpawnRequest
	if err := msg.UnmarshalData(&req); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	opts, err := d.spawnOptions(req)
	if err != nil {
		return nil, err
	}
	p, err := d.registry.Spawn(opts, d.sink())
	if err != nil {
		d.logger.Error("could not start the game", "exe", opts.Exe, "err", err)
		return nil, err
	}
	return uds.SpawnResponse{PID: p.PID(), Session: p.Data().Session}, nil
}

// spawnOptions merges a request over the named game profile, if any.
func (d *Daemon) spawnOptions(req uds.SpawnRequest) (gameproc.SpawnOptions, error) {
	opts := gameproc.SpawnOptions{CopyFrom: req.CopyFrom, Env: map[string]string{}}
	if req.Game != "" {
		game, ok := d.Config().Games[req.Game]
		if !ok {
			return opts, fmt.Errorf("unknown game %q", req.Game)
		}
		opts.Exe = game.Exe
		opts.Dir = game.Dir
		opts.Args = game.Args
		maps.Copy(opts.Env, game.Env)
	}
	if req.Exe != "" {
		opts.Exe = req.Exe
	}
	if req.Dir != "" {
		opts.Dir = req.Dir
	}
	if len(req.Args) > 0 {
		opts.Args = req.Args
	}
	maps.Copy(opts.Env, req.Env)
	return opts, nil
}

func (d *Daemon) handleKill(_ context.Context, msg uds.Message) (any, error) {
	var req uds.PIDRequest
	if err := msg.UnmarshalData(&req); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	if err := d.registry.Kill(req.PID); err != nil {
		return nil, err
	}
	return map[string]bool{"ok": true}, nil
}

func (d *Daemon) handleSend(ctx context.Context, msg uds.Message) (any, error) {
	var req uds.SendRequest
	if err := msg.UnmarshalData(&req); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	if err := d.registry.Send(ctx, req.PID, req.Text); err != nil {
		return nil, err
	}
	return map[string]bool{"ok": true}, nil
}

func (d *Daemon) handleDelete(_ context.Context, msg uds.Message) (any, error) {
	var req uds.PIDRequest
	if err := msg.UnmarshalData(&req); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	if err := d.registry.Delete(req.PID); err != nil {
		return nil, err
	}
	d.sampler.Forget(req.PID)
	return map[string]bool{"ok": true}, nil
}

func (d *Daemon) query(req uds.GetLogRequest) ([]core.LogRow, error) {
	p, err := d.registry.Get(req.PID)
	if err != nil {
		return nil, err
	}
	return p.Data().Log.Query(req.Query)
}

func (d *Daemon) handleGetLog(_ context.Context, msg uds.Message) (any, error) {
	var req uds.GetLogRequest
	if err := msg.UnmarshalData(&req); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	return d.query(req)
}

func (d *Daemon) handleExportLog(_ context.Context, msg uds.Message) (any, error) {
	var req uds.ExportLogRequest
	if err := msg.UnmarshalData(&req); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	if !filepath.IsAbs(req.Path) {
		return nil, fmt.Errorf("export path %q must be absolute: %w", req.Path, gameproc.ErrInvalidPath)
	}

	format := logstore.FormatFromPath(req.Path)
	if req.Format != "" {
		f, err := logstore.ParseFormat(req.Format)
		if err != nil {
			return nil, err
		}
		format = f
	}

	rows, err := d.query(req.GetLogRequest)
	if err != nil {
		return nil, err
	}
	if err := logstore.ExportFile(req.Path, rows, format); err != nil {
		return nil, err
	}
	d.logger.Info("log exported", "pid", req.PID, "path", req.Path, "rows", len(rows))
	return uds.ExportLogResponse{Path: req.Path, Format: string(format), Rows: len(rows)}, nil
}

func (d *Daemon) handleGetClasses(_ context.Context, msg uds.Message) (any, error) {
	var req uds.PIDRequest
	if err := msg.UnmarshalData(&req); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	p, err := d.registry.Get(req.PID)
	if err != nil {
		return nil, err
	}
	return p.Data().Log.Classes(), nil
}

func (d *Daemon) handleListProcesses(_ context.Context, _ uds.Message) (any, error) {
	procs := d.registry.List()
	infos := make([]core.ProcessInfo, 0, len(procs))
	for _, p := range procs {
		infos = append(infos, d.info(p))
	}
	return infos, nil
}

func (d *Daemon) handleGetProcess(_ context.Context, msg uds.Message) (any, error) {
	var req uds.PIDRequest
	if err := msg.UnmarshalData(&req); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	p, err := d.registry.Get(req.PID)
	if err != nil {
		return nil, err
	}
	return d.info(p), nil
}

// info is p's current snapshot with resource usage from the last poll.
func (d *Daemon) info(p *gameproc.Process) core.ProcessInfo {
	info := p.Info()
	info.UptimeSec = uint64(p.Uptime().Seconds())
	d.mu.RLock()
	last, ok := d.procs[p.PID()]
	d.mu.RUnlock()
	if ok && info.Status == core.StatusRunning {
		info.CPUPct = last.CPUPct
		info.MemBytes = last.MemBytes
	}
	return info
}

func (d *Daemon) handleDecodePSF(_ context.Context, msg uds.Message) (any, error) {
	var req uds.DecodePSFRequest
	if err := msg.UnmarshalData(&req); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	if req.Path == "" {
		return nil, fmt.Errorf("path is required: %w", gameproc.ErrInvalidPath)
	}
	doc, err := psf.Open(req.Path)
	if err != nil {
		d.logger.Error("error reading psf file", "path", req.Path, "err", err)
		return nil, err
	}
	return doc, nil
}
