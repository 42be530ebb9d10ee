package gameproc

import (
	"slices"
	"sync"
)

// The emulator speaks a line protocol on stderr when EnvEnableIPC is set.
// Protocol lines start with IPCMarker. After IPCEnabledLine it lists one
// capability per line until IPCEndLine, then waits for IPCRunCommand on stdin.
const (
	EnvEnableIPC   = "SHADPS4_ENABLE_IPC"
	IPCMarker      = ';'
	IPCEnabledLine = "#IPC_ENABLED"
	IPCEndLine     = "#IPC_END"
	IPCRunCommand  = "RUN"
)

type ipcPhase uint8

const (
	ipcNone ipcPhase = iota
	ipcCapabilities
	ipcReady
)

// ipcState tracks the handshake for one child.
type ipcState struct {
	mu    sync.Mutex
	phase ipcPhase
	caps  []string
}

// observe feeds one protocol line (marker stripped) and reports whether it
// completed the handshake.
func (s *ipcState) observe(line string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case line == IPCEnabledLine:
		s.phase = ipcCapabilities
		s.caps = nil
	case line == IPCEndLine && s.phase == ipcCapabilities:
		s.phase = ipcReady
		return true
	case s.phase == ipcCapabilities && line != "":
		s.caps = append(s.caps, line)
	}
	return false
}

func (s *ipcState) ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase == ipcReady
}

func (s *ipcState) capabilities() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.caps)
}
