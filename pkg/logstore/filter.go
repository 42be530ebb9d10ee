package logstore

import (
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"

	"github.com/modoterra/gamehost/pkg/core"
)

// Filter is a compiled CEL predicate over log rows. The expression sees:
//
//	row_id     int     RowID
//	level      string  wire level name ("info", "error", ...)
//	severity   int     level ordinal (unknown=0 ... critical=6)
//	class      string  class label
//	message    string  message text
//	time_ms    int     unix milliseconds
//
// Example: `severity >= 4 && class.startsWith("Lib.")`.
type Filter struct {
	expr string
	prog cel.Program
}

var filterEnv = mustFilterEnv()

func mustFilterEnv() *cel.Env {
	env, err := cel.NewEnv(
		cel.Variable("row_id", cel.IntType),
		cel.Variable("level", cel.StringType),
		cel.Variable("severity", cel.IntType),
		cel.Variable("class", cel.StringType),
		cel.Variable("message", cel.StringType),
		cel.Variable("time_ms", cel.IntType),
	)
	if err != nil {
		panic("logstore: CEL environment: " + err.Error())
	}
	return env
}

// CompileFilter compiles expr. An empty expression yields a nil Filter,
// which matches everything.
func CompileFilter(expr string) (*Filter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, nil
	}
	ast, iss := filterEnv.Parse(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("parse filter %q: %w", expr, iss.Err())
	}
	checked, iss := filterEnv.Check(ast)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("check filter %q: %w", expr, iss.Err())
	}
	prog, err := filterEnv.Program(checked)
	if err != nil {
		return nil, fmt.Errorf("build filter %q: %w", expr, err)
	}
	return &Filter{expr: expr, prog: prog}, nil
}

// Match evaluates the filter against row. Evaluation errors and non-bool
// results count as no match.
func (f *Filter) Match(row core.LogRow) bool {
	if f == nil {
		return true
	}
	out, _, err := f.prog.Eval(map[string]any{
		"row_id":   int64(row.RowID),
		"level":    row.Level.String(),
		"severity": int64(row.Level),
		"class":    row.Class,
		"message":  row.Message,
		"time_ms":  row.Time.UnixMilli(),
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}

func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	return f.expr
}
