package logstore

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"

	"github.com/modoterra/gamehost/pkg/core"
)

// Format selects the on-disk representation of exported rows.
type Format string

const (
	FormatText  Format = "text"  // HH:MM:SS [class] <Level> message
	FormatJSONL Format = "jsonl" // one JSON LogRow per line
	FormatCBOR  Format = "cbor"  // CBOR sequence of LogRow
)

const zstdExt = ".zst"

var cborMode cbor.EncMode

func init() {
	opts := cbor.CoreDetEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	opts.TextMarshaler = cbor.TextMarshalerTextString
	var err error
	cborMode, err = opts.EncMode()
	if err != nil {
		panic("logstore: CBOR encoder initialization failed: " + err.Error())
	}
}

// ParseFormat accepts "text", "jsonl" or "cbor". Empty means text.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case "":
		return FormatText, nil
	case FormatText, FormatJSONL, FormatCBOR:
		return f, nil
	default:
		return "", fmt.Errorf("unknown export format %q (want text, jsonl or cbor)", s)
	}
}

// FormatFromPath infers the format from the file extension, ignoring a
// trailing .zst.
func FormatFromPath(path string) Format {
	ext := filepath.Ext(strings.TrimSuffix(path, zstdExt))
	switch strings.ToLower(ext) {
	case ".jsonl", ".ndjson":
		return FormatJSONL
	case ".cbor":
		return FormatCBOR
	default:
		return FormatText
	}
}

// Export writes rows to w.
func Export(w io.Writer, rows []core.LogRow, format Format) error {
	switch format {
	case FormatText, "":
		bw := bufio.NewWriter(w)
		for _, row := range rows {
			if _, err := fmt.Fprintln(bw, FormatLine(row)); err != nil {
				return err
			}
		}
		return bw.Flush()
	case FormatJSONL:
		enc := json.NewEncoder(w)
		for _, row := range rows {
			if err := enc.Encode(row); err != nil {
				return err
			}
		}
		return nil
	case FormatCBOR:
		enc := cborMode.NewEncoder(w)
		for _, row := range rows {
			if err := enc.Encode(row); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown export format %q", format)
	}
}

// ExportFile writes rows to path, compressing with zstd when the path ends
// in .zst.
func ExportFile(path string, rows []core.LogRow, format Format) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", path, cerr)
		}
	}()

	if !strings.HasSuffix(path, zstdExt) {
		return Export(f, rows, format)
	}

	enc, err := zstd.NewWriter(f)
	if err != nil {
		return fmt.Errorf("zstd writer: %w", err)
	}
	if err := Export(enc, rows, format); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

// FormatLine renders a row the way the emulator's own log files look.
func FormatLine(row core.LogRow) string {
	return fmt.Sprintf("%s [%s] <%s> %s",
		row.Time.Local().Format("15:04:05"), row.Class, row.Level.Word(), row.Message)
}
