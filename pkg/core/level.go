package core

import (
	"fmt"
	"strings"
)

// Level is the severity attached to a log row. The zero value is LevelUnknown.
// Levels are ordered by declaration for filtering only.
type Level uint8

const (
	LevelUnknown Level = iota
	LevelTrace
	LevelDebug
	LevelInfo
	LevelWarning
	LevelError
	LevelCritical
)

var levelNames = [...]string{
	LevelUnknown:  "unknown",
	LevelTrace:    "trace",
	LevelDebug:    "debug",
	LevelInfo:     "info",
	LevelWarning:  "warning",
	LevelError:    "error",
	LevelCritical: "critical",
}

// AllLevels lists every level in declaration order.
var AllLevels = []Level{
	LevelUnknown, LevelTrace, LevelDebug, LevelInfo, LevelWarning, LevelError, LevelCritical,
}

// String returns the wire name ("info", "warning", ...).
func (l Level) String() string {
	if int(l) < len(levelNames) {
		return levelNames[l]
	}
	return fmt.Sprintf("level(%d)", uint8(l))
}

// Word returns the capitalized form used in exported text logs ("Info").
func (l Level) Word() string {
	s := l.String()
	return strings.ToUpper(s[:1]) + s[1:]
}

// ParseLevel accepts a wire name, case-insensitively.
func ParseLevel(s string) (Level, error) {
	lower := strings.ToLower(strings.TrimSpace(s))
	for i, name := range levelNames {
		if name == lower {
			return Level(i), nil
		}
	}
	return LevelUnknown, fmt.Errorf("unknown log level %q", s)
}

func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

func (l *Level) UnmarshalText(b []byte) error {
	parsed, err := ParseLevel(string(b))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
