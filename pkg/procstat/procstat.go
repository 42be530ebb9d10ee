// Package procstat samples CPU and memory usage of processes from /proc.
package procstat

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// userHZ is the kernel's USER_HZ, which is 100 on every Linux ABI we run on.
const userHZ = 100

// Stat is the subset of /proc/<pid>/stat we use.
type Stat struct {
	State    byte
	Ticks    uint64 // utime + stime, in USER_HZ
	RSSPages uint64
}

// Sample is a point-in-time usage reading.
type Sample struct {
	CPUPct   float64
	MemBytes uint64
}

type tick struct {
	at    time.Time
	ticks uint64
}

// Sampler turns successive stat readings into CPU percentages.
type Sampler struct {
	root     string
	pageSize uint64
	now      func() time.Time

	mu   sync.Mutex
	prev map[int]tick
}

// New returns a Sampler reading from /proc.
func New() *Sampler {
	return newSampler("/proc", time.Now)
}

func newSampler(root string, now func() time.Time) *Sampler {
	return &Sampler{
		root:     root,
		pageSize: uint64(unix.Getpagesize()),
		now:      now,
		prev:     make(map[int]tick),
	}
}

// Sample reads the current usage of pid. The first sample of a pid reports
// zero CPU since there is no previous reading to diff against.
func (s *Sampler) Sample(pid int) (Sample, error) {
	st, err := ReadStat(s.root, pid)
	if err != nil {
		return Sample{}, err
	}
	now := s.now()

	s.mu.Lock()
	prev, ok := s.prev[pid]
	s.prev[pid] = tick{at: now, ticks: st.Ticks}
	s.mu.Unlock()

	out := Sample{MemBytes: st.RSSPages * s.pageSize}
	if ok && st.Ticks >= prev.ticks {
		elapsed := now.Sub(prev.at).Seconds()
		if elapsed > 0 {
			out.CPUPct = float64(st.Ticks-prev.ticks) / userHZ / elapsed * 100
		}
	}
	return out, nil
}

// Forget drops the previous reading for pid.
func (s *Sampler) Forget(pid int) {
	s.mu.Lock()
	delete(s.prev, pid)
	s.mu.Unlock()
}

// ReadStat parses <root>/<pid>/stat.
func ReadStat(root string, pid int) (Stat, error) {
	data, err := os.ReadFile(filepath.Join(root, strconv.Itoa(pid), "stat"))
	if err != nil {
		return Stat{}, err
	}
	return parseStat(string(data))
}

func parseStat(line string) (Stat, error) {
	// comm may contain spaces and parentheses; it ends at the last ')'.
	end := strings.LastIndexByte(line, ')')
	if end < 0 {
		return Stat{}, fmt.Errorf("malformed stat line")
	}
	fields := strings.Fields(line[end+1:])
	// fields[0] is field 3 (state) in proc(5) numbering.
	if len(fields) < 22 {
		return Stat{}, fmt.Errorf("stat: %d fields after comm, want at least 22", len(fields))
	}
	utime, err := strconv.ParseUint(fields[11], 10, 64)
	if err != nil {
		return Stat{}, fmt.Errorf("stat utime: %w", err)
	}
	stime, err := strconv.ParseUint(fields[12], 10, 64)
	if err != nil {
		return Stat{}, fmt.Errorf("stat stime: %w", err)
	}
	rss, err := strconv.ParseInt(fields[21], 10, 64)
	if err != nil {
		return Stat{}, fmt.Errorf("stat rss: %w", err)
	}
	if rss < 0 {
		rss = 0
	}
	return Stat{State: fields[0][0], Ticks: utime + stime, RSSPages: uint64(rss)}, nil
}
