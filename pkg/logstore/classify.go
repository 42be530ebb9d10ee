package logstore

import (
	"regexp"

	"github.com/modoterra/gamehost/pkg/core"
)

var (
	// [Class] <Level> message
	bracketedLine = regexp.MustCompile(`^\[(.*?)\]\s?<(.*?)>\s?(.*)$`)
	// [Class] Level message
	bareLine = regexp.MustCompile(`^\[(.*?)\]\s?(\S+)\s?(.*)$`)
)

// levelWords is case-sensitive; anything else is LevelUnknown.
var levelWords = map[string]core.Level{
	"Trace":    core.LevelTrace,
	"Debug":    core.LevelDebug,
	"Info":     core.LevelInfo,
	"Warning":  core.LevelWarning,
	"Error":    core.LevelError,
	"Critical": core.LevelCritical,
}

// Classify splits a raw output line into class text, level and message.
// ok is false when the line does not follow the log grammar.
func Classify(line string) (class string, level core.Level, message string, ok bool) {
	m := bracketedLine.FindStringSubmatch(line)
	if m == nil {
		m = bareLine.FindStringSubmatch(line)
	}
	if m == nil {
		return "", core.LevelUnknown, "", false
	}
	return m[1], levelWords[m[2]], m[3], true
}
