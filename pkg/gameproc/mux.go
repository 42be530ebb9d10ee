package gameproc

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"github.com/modoterra/gamehost/pkg/core"
	"github.com/modoterra/gamehost/pkg/logstore"
)

// drainGrace bounds how long the loop keeps reading the remaining stream
// after the child exits or one of its streams reaches EOF.
const drainGrace = 500 * time.Millisecond

// run is the control loop. It handles whichever of stdout, stderr, child
// exit, stdin write failure or kill request is ready first, until one of them
// ends the loop, then runs the shutdown sequence exactly once. Queued commands
// are written by writeCommands so a child that stops reading stdin cannot
// stall the loop.
func (p *Process) run() {
	stdout := make(chan lineMsg)
	stderr := make(chan lineMsg)
	go readLines(p.stdout, stdout, p.stopped)
	go readLines(p.stderr, stderr, p.stopped)

	writeErr := make(chan error, 1)
	go p.writeCommands(writeErr)

	exited := (<-chan struct{})(p.exited)
	var grace <-chan time.Time
	drain := func() {
		if grace == nil {
			grace = time.After(drainGrace)
		}
	}

	var ioErr error
loop:
	for {
		select {
		case m, ok := <-stdout:
			if !ok || m.eof {
				if ok && m.err != nil {
					ioErr = fmt.Errorf("read stdout: %w", m.err)
					break loop
				}
				stdout = nil
				if stderr == nil {
					break loop
				}
				drain()
				continue
			}
			p.logLine(m.text)

		case m, ok := <-stderr:
			if !ok || m.eof {
				if ok && m.err != nil {
					ioErr = fmt.Errorf("read stderr: %w", m.err)
					break loop
				}
				stderr = nil
				if stdout == nil {
					break loop
				}
				drain()
				continue
			}
			p.stderrLine(m.text)

		case <-exited:
			exited = nil
			if stdout == nil && stderr == nil {
				break loop
			}
			drain()

		case err := <-writeErr:
			ioErr = err
			break loop

		case <-p.kill:
			p.logger.Debug("kill requested", "pid", p.pid)
			break loop

		case <-grace:
			break loop
		}
	}

	p.shutdown(ioErr)
}

// writeCommands copies queued lines to the child's stdin until the loop
// stops. The first write error is reported on errc and ends the writer.
func (p *Process) writeCommands(errc chan<- error) {
	defer close(p.writerDone)
	w := bufio.NewWriter(p.stdin)
	for {
		select {
		case text := <-p.commands:
			_, err := w.WriteString(text + "\n")
			if err == nil {
				err = w.Flush()
			}
			if err != nil {
				errc <- fmt.Errorf("write stdin: %w", err)
				return
			}
		case <-p.stopped:
			return
		}
	}
}

func (p *Process) logLine(line string) {
	p.record(p.data.Log.AppendLine(line))
}

func (p *Process) stderrLine(line string) {
	if len(line) > 0 && line[0] == IPCMarker {
		text := strings.TrimSpace(line[1:])
		if p.ipc.observe(text) {
			p.logger.Info("ipc handshake complete", "pid", p.pid, "capabilities", p.ipc.capabilities())
		}
		p.sink.Emit(core.IPCLineEvent(p.pid, text))
		return
	}
	p.record(p.data.Log.AppendStderr(line))
}

func (p *Process) record(a logstore.Appended) {
	if a.NewClass {
		p.sink.Emit(core.AddLogClassEvent(p.pid, a.Class))
	}
	p.sink.Emit(core.LogEvent(p.pid, a.Row()))
}

// shutdown reports a pending I/O error, force-kills the child if it is still
// alive, waits for its status, retires the process and emits GameExit.
// Lines still queued for stdin are discarded.
func (p *Process) shutdown(ioErr error) {
	close(p.stopped)

	if ioErr != nil {
		p.logger.Error("process i/o failed", "pid", p.pid, "err", ioErr)
		p.sink.Emit(core.IOErrorEvent(p.pid, ioErr))
	}

	select {
	case <-p.exited:
	default:
		p.terminate()
	}
	<-p.exited

	status := -1
	if ps := p.cmd.ProcessState; ps != nil {
		status = ps.ExitCode()
	}
	// closing stdin unblocks a writer stuck on a pipe still held open by
	// an escaped grandchild
	closeAll(p.stdin, p.stdout, p.stderr)
	<-p.writerDone
	if n := p.discardCommands(); n > 0 {
		p.logger.Warn("discarded queued input", "pid", p.pid, "lines", n)
	}

	p.mu.Lock()
	p.exitCode = &status
	p.endedAt = time.Now()
	p.mu.Unlock()

	if p.registry != nil {
		p.registry.retire(p)
	}
	p.logger.Info("process exited", "pid", p.pid, "status", status, "rows", p.data.Log.Len())
	p.sink.Emit(core.GameExitEvent(p.pid, status))
	close(p.done)
}

func (p *Process) discardCommands() int {
	n := 0
	for {
		select {
		case <-p.commands:
			n++
		default:
			return n
		}
	}
}

// terminate kills the child's whole process group.
func (p *Process) terminate() {
	err := unix.Kill(-p.pid, unix.SIGKILL)
	if err == nil {
		return
	}
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		p.logger.Warn("kill failed", "pid", p.pid, "err", err)
	}
}
