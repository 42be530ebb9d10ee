package gameproc

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"sync"
	"syscall"
	"time"

	"github.com/modoterra/gamehost/pkg/core"
)

// SpawnOptions describes a child to launch.
type SpawnOptions struct {
	Exe  string
	Dir  string
	Args []string
	Env  map[string]string
	// CopyFrom names an existing pid (live or exited) whose Data the new
	// process shares. Zero starts with fresh Data.
	CopyFrom int
}

// Process supervises one child. All interaction with the child's streams
// happens on its control loop; the exported methods only post requests to it.
type Process struct {
	pid       int
	exe       string
	dir       string
	args      []string
	startedAt time.Time
	data      *Data
	sink      core.EventSink
	logger    *slog.Logger
	registry  *Registry

	cmd        *exec.Cmd
	stdin      *os.File
	stdout     *os.File
	stderr     *os.File
	commands   chan string
	kill       chan struct{}
	exited     chan struct{} // closed once cmd.Wait returns
	stopped    chan struct{} // closed when the control loop ends
	writerDone chan struct{} // closed when writeCommands returns
	done       chan struct{} // closed after the registry is updated and GameExit emitted

	ipc ipcState

	mu       sync.Mutex
	exitCode *int
	endedAt  time.Time
}

// start launches the child with all three standard streams piped.
func start(opts SpawnOptions, data *Data, sink core.EventSink, logger *slog.Logger) (*Process, error) {
	exe, err := resolveExe(opts.Exe)
	if err != nil {
		return nil, err
	}
	if opts.Dir != "" {
		info, err := os.Stat(opts.Dir)
		if err != nil || !info.IsDir() {
			return nil, fmt.Errorf("working directory %q: %w", opts.Dir, ErrInvalidPath)
		}
	}

	stdinR, stdinW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		closeAll(stdinR, stdinW)
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		closeAll(stdinR, stdinW, stdoutR, stdoutW)
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	cmd := exec.Command(exe, opts.Args...)
	cmd.Dir = opts.Dir
	cmd.Stdin = stdinR
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Env = buildEnv(opts.Env)

	err = cmd.Start()
	// The child holds its own copies now.
	closeAll(stdinR, stdoutW, stderrW)
	if err != nil {
		closeAll(stdinW, stdoutR, stderrR)
		return nil, fmt.Errorf("start %q: %w", exe, err)
	}

	p := &Process{
		pid:        cmd.Process.Pid,
		exe:        exe,
		dir:        opts.Dir,
		args:       slices.Clone(opts.Args),
		startedAt:  time.Now(),
		data:       data,
		sink:       sink,
		logger:     logger,
		cmd:        cmd,
		stdin:      stdinW,
		stdout:     stdoutR,
		stderr:     stderrR,
		commands:   make(chan string, 1),
		kill:       make(chan struct{}, 1),
		exited:     make(chan struct{}),
		stopped:    make(chan struct{}),
		writerDone: make(chan struct{}),
		done:       make(chan struct{}),
	}
	go func() {
		cmd.Wait()
		close(p.exited)
	}()
	return p, nil
}

func resolveExe(exe string) (string, error) {
	if exe == "" {
		return "", fmt.Errorf("empty executable: %w", ErrInvalidPath)
	}
	if filepath.Base(exe) == exe {
		path, err := exec.LookPath(exe)
		if err != nil {
			return "", fmt.Errorf("executable %q: %w", exe, ErrInvalidPath)
		}
		return path, nil
	}
	info, err := os.Stat(exe)
	if err != nil || info.IsDir() {
		return "", fmt.Errorf("executable %q: %w", exe, ErrInvalidPath)
	}
	return exe, nil
}

func buildEnv(extra map[string]string) []string {
	env := append(os.Environ(), EnvEnableIPC+"=true")
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		env = append(env, k+"="+extra[k])
	}
	return env
}

func closeAll(files ...*os.File) {
	for _, f := range files {
		f.Close()
	}
}

// PID returns the OS process id, which is also the registry key.
func (p *Process) PID() int { return p.pid }

// Data returns the shared per-process state.
func (p *Process) Data() *Data { return p.data }

// Done is closed once the process has exited and GameExit was emitted.
func (p *Process) Done() <-chan struct{} { return p.done }

// Running reports whether the control loop is still active.
func (p *Process) Running() bool {
	select {
	case <-p.stopped:
		return false
	default:
		return true
	}
}

// Kill asks the control loop to stop. It does not wait for the child to die.
// Killing a process that is already stopping or stopped is a no-op.
func (p *Process) Kill() {
	select {
	case <-p.stopped:
		return
	default:
	}
	select {
	case p.kill <- struct{}{}:
	default:
		// a kill is already queued
	}
}

// Send queues one line for the child's stdin. The queue holds a single
// line, so Send blocks while a previous line has not been written yet.
// A line accepted just before the process stops may be discarded unwritten.
func (p *Process) Send(ctx context.Context, text string) error {
	select {
	case <-p.stopped:
		return ErrChannelClosed
	default:
	}
	select {
	case p.commands <- text:
		return nil
	case <-p.stopped:
		return ErrChannelClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IPCReady reports whether the child completed the IPC handshake.
func (p *Process) IPCReady() bool { return p.ipc.ready() }

// Info returns a snapshot for listings. Resource usage is left zero.
func (p *Process) Info() core.ProcessInfo {
	info := core.ProcessInfo{
		PID:          p.pid,
		Session:      p.data.Session,
		Exe:          p.exe,
		Dir:          p.dir,
		Args:         slices.Clone(p.args),
		Status:       core.StatusRunning,
		StartedAt:    p.startedAt,
		Rows:         p.data.Log.Len(),
		Classes:      p.data.Log.Classes(),
		IPC:          p.ipc.ready(),
		Capabilities: p.ipc.capabilities(),
	}
	p.mu.Lock()
	if p.exitCode != nil {
		code := *p.exitCode
		info.Status = core.StatusExited
		info.ExitCode = &code
	}
	p.mu.Unlock()
	return info
}

// ExitCode returns the exit status once the process has finished.
func (p *Process) ExitCode() (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.exitCode == nil {
		return 0, false
	}
	return *p.exitCode, true
}

// Uptime is the time between start and exit, or until now while running.
func (p *Process) Uptime() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.exitCode != nil {
		return p.endedAt.Sub(p.startedAt)
	}
	return time.Since(p.startedAt)
}
