package main

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/modoterra/gamehost/pkg/core"
	"github.com/modoterra/gamehost/pkg/logstore"
	"github.com/modoterra/gamehost/pkg/transport/uds"
)

// queryFlags are shared by log and export.
type queryFlags struct {
	levels  []string
	classes []string
	rng     string
	filter  string
}

func (f *queryFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&f.levels, "level", nil, "only these levels (trace, debug, info, warning, error, critical, unknown)")
	cmd.Flags().StringSliceVar(&f.classes, "class", nil, "only these classes")
	cmd.Flags().StringVar(&f.rng, "range", "", "row id range BEGIN:END, inclusive")
	cmd.Flags().StringVar(&f.filter, "filter", "", `CEL expression, e.g. 'level == "error" && class.startsWith("Lib.")'`)
}

func (f *queryFlags) query() (logstore.Query, error) {
	q := logstore.Query{Classes: f.classes, Filter: f.filter}
	for _, s := range f.levels {
		l, err := core.ParseLevel(s)
		if err != nil {
			return q, err
		}
		q.Levels = append(q.Levels, l)
	}
	if f.rng != "" {
		r, err := parseRange(f.rng)
		if err != nil {
			return q, err
		}
		q.Range = &r
	}
	return q, nil
}

// parseRange accepts "B:E", "B:" (to the last row) and ":E".
func parseRange(s string) (logstore.Range, error) {
	r := logstore.Range{End: ^logstore.RowID(0)}
	begin, end, ok := strings.Cut(s, ":")
	if !ok {
		return r, fmt.Errorf("range %q: want BEGIN:END", s)
	}
	if begin != "" {
		n, err := strconv.ParseUint(begin, 10, 32)
		if err != nil {
			return r, fmt.Errorf("range %q: %w", s, err)
		}
		r.Begin = logstore.RowID(n)
	}
	if end != "" {
		n, err := strconv.ParseUint(end, 10, 32)
		if err != nil {
			return r, fmt.Errorf("range %q: %w", s, err)
		}
		r.End = logstore.RowID(n)
	}
	if r.Begin > r.End {
		return r, fmt.Errorf("range %q: begin after end", s)
	}
	return r, nil
}

// --- Log ---

var (
	logFlags queryFlags
	logJSON  bool
)

var logCmd = &cobra.Command{
	Use:   "log <pid>",
	Short: "Print stored log rows of a process",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		pid, err := parsePID(args[0])
		if err != nil {
			return err
		}
		q, err := logFlags.query()
		if err != nil {
			return err
		}

		var rows []core.LogRow
		if err := call(uds.MethodGetLog, uds.GetLogRequest{PID: pid, Query: q}, &rows); err != nil {
			return err
		}
		if logJSON {
			return printJSON(rows)
		}
		for _, r := range rows {
			fmt.Println(logstore.FormatLine(r))
		}
		return nil
	},
}

func init() {
	logFlags.register(logCmd)
	logCmd.Flags().BoolVar(&logJSON, "json", false, "output as JSON")
}

// --- Export ---

var (
	exportFlags  queryFlags
	exportFormat string
)

var exportCmd = &cobra.Command{
	Use:   "export <pid> <file>",
	Short: "Have the daemon write log rows of a process to a file",
	Long:  "The format follows the extension (.txt, .jsonl, .cbor) unless --format is given. A .zst suffix compresses the file.",
	Args:  cobra.ExactArgs(2),
	RunE: func(_ *cobra.Command, args []string) error {
		pid, err := parsePID(args[0])
		if err != nil {
			return err
		}
		path, err := filepath.Abs(args[1])
		if err != nil {
			return err
		}
		q, err := exportFlags.query()
		if err != nil {
			return err
		}

		req := uds.ExportLogRequest{
			GetLogRequest: uds.GetLogRequest{PID: pid, Query: q},
			Path:          path,
			Format:        exportFormat,
		}
		var res uds.ExportLogResponse
		if err := call(uds.MethodExportLog, req, &res); err != nil {
			return err
		}
		fmt.Printf("wrote %d rows to %s (%s)\n", res.Rows, res.Path, res.Format)
		return nil
	},
}

func init() {
	exportFlags.register(exportCmd)
	exportCmd.Flags().StringVar(&exportFormat, "format", "", "text, jsonl or cbor")
}
