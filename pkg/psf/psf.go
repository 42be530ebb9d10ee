// Package psf decodes PSF parameter files: a fixed header, an index table
// and separate key and data tables holding binary, text or int32 values.
package psf

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"time"
	"unicode/utf8"
)

const (
	Magic     uint32 = 0x00505346
	Version10 uint32 = 0x00000100
	Version11 uint32 = 0x00000101

	headerSize = 0x14
	recordSize = 0x10
)

// Entry format tags.
const (
	FormatBinary  uint16 = 0x0400
	FormatText    uint16 = 0x0402
	FormatInteger uint16 = 0x0404
)

// Kind identifies which field of a Value is populated.
type Kind string

const (
	KindBinary  Kind = "binary"
	KindText    Kind = "text"
	KindInteger Kind = "integer"
)

// Value is one decoded entry.
type Value struct {
	Kind    Kind
	Binary  []byte
	Text    string
	Integer int32
}

func BinaryValue(b []byte) Value { return Value{Kind: KindBinary, Binary: b} }
func TextValue(s string) Value   { return Value{Kind: KindText, Text: s} }
func IntegerValue(n int32) Value { return Value{Kind: KindInteger, Integer: n} }

func (v Value) String() string {
	switch v.Kind {
	case KindBinary:
		return fmt.Sprintf("binary(%d bytes)", len(v.Binary))
	case KindText:
		return fmt.Sprintf("%q", v.Text)
	case KindInteger:
		return fmt.Sprintf("%d", v.Integer)
	}
	return "<invalid>"
}

// wireValue is the tagged form used for JSON and YAML.
type wireValue struct {
	Kind  Kind `json:"kind" yaml:"kind"`
	Value any  `json:"value" yaml:"value"`
}

func (v Value) wire() wireValue {
	switch v.Kind {
	case KindBinary:
		return wireValue{Kind: v.Kind, Value: v.Binary}
	case KindText:
		return wireValue{Kind: v.Kind, Value: v.Text}
	default:
		return wireValue{Kind: v.Kind, Value: v.Integer}
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.wire())
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var raw struct {
		Kind  Kind            `json:"kind"`
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := Value{Kind: raw.Kind}
	var err error
	switch raw.Kind {
	case KindBinary:
		err = json.Unmarshal(raw.Value, &out.Binary)
	case KindText:
		err = json.Unmarshal(raw.Value, &out.Text)
	case KindInteger:
		err = json.Unmarshal(raw.Value, &out.Integer)
	default:
		err = fmt.Errorf("unknown value kind %q", raw.Kind)
	}
	if err != nil {
		return err
	}
	*v = out
	return nil
}

// MarshalYAML renders binary values as hex for readability.
func (v Value) MarshalYAML() (any, error) {
	w := v.wire()
	if v.Kind == KindBinary {
		w.Value = fmt.Sprintf("%x", v.Binary)
	}
	return w, nil
}

// Document is a decoded PSF file.
type Document struct {
	LastWrite time.Time        `json:"last_write" yaml:"last_write"`
	Entries   map[string]Value `json:"entries"    yaml:"entries"`
}

// Keys returns the entry names sorted.
func (d *Document) Keys() []string {
	keys := make([]string, 0, len(d.Entries))
	for k := range d.Entries {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

type header struct {
	Magic           uint32
	Version         uint32
	KeyTableOffset  uint32
	DataTableOffset uint32
	Entries         uint32
}

type record struct {
	KeyOffset  uint16
	Format     uint16
	Length     uint32
	MaxLength  uint32
	DataOffset uint32
}

// Open decodes the file at path and records its modification time.
func Open(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	doc, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	doc.LastWrite = info.ModTime()
	return doc, nil
}

// Decode reads a PSF document from r. LastWrite is left zero.
func Decode(r io.ReadSeeker) (*Document, error) {
	size, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, err
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	var buf [headerSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	h := header{
		Magic:           binary.BigEndian.Uint32(buf[0:4]),
		Version:         binary.LittleEndian.Uint32(buf[4:8]),
		KeyTableOffset:  binary.LittleEndian.Uint32(buf[8:12]),
		DataTableOffset: binary.LittleEndian.Uint32(buf[12:16]),
		Entries:         binary.LittleEndian.Uint32(buf[16:20]),
	}
	if h.Magic != Magic {
		return nil, &MagicError{Got: h.Magic}
	}
	if h.Version != Version10 && h.Version != Version11 {
		return nil, &VersionError{Got: h.Version}
	}
	if int64(h.Entries)*recordSize > size-headerSize {
		return nil, fmt.Errorf("index table of %d entries exceeds file size %d: %w", h.Entries, size, io.ErrUnexpectedEOF)
	}

	records := make([]record, h.Entries)
	for i := range records {
		var rb [recordSize]byte
		if _, err := io.ReadFull(r, rb[:]); err != nil {
			return nil, fmt.Errorf("read index record %d: %w", i, err)
		}
		records[i] = record{
			KeyOffset:  binary.LittleEndian.Uint16(rb[0:2]),
			Format:     binary.BigEndian.Uint16(rb[2:4]),
			Length:     binary.LittleEndian.Uint32(rb[4:8]),
			MaxLength:  binary.LittleEndian.Uint32(rb[8:12]),
			DataOffset: binary.LittleEndian.Uint32(rb[12:16]),
		}
	}

	doc := &Document{Entries: make(map[string]Value, len(records))}
	for i, rec := range records {
		key, err := readString(r, int64(h.KeyTableOffset)+int64(rec.KeyOffset))
		if err != nil {
			return nil, fmt.Errorf("read key %d: %w", i, err)
		}
		if !utf8.Valid(key) {
			return nil, &TextError{Raw: key}
		}
		name := string(key)

		v, err := readValue(r, size, int64(h.DataTableOffset)+int64(rec.DataOffset), name, rec)
		if err != nil {
			return nil, err
		}
		doc.Entries[name] = v
	}
	return doc, nil
}

func readValue(r io.ReadSeeker, size, offset int64, key string, rec record) (Value, error) {
	switch rec.Format {
	case FormatBinary:
		if offset+int64(rec.Length) > size {
			return Value{}, fmt.Errorf("read %q: %d bytes at %d: %w", key, rec.Length, offset, io.ErrUnexpectedEOF)
		}
		if _, err := r.Seek(offset, io.SeekStart); err != nil {
			return Value{}, err
		}
		data := make([]byte, rec.Length)
		if _, err := io.ReadFull(r, data); err != nil {
			return Value{}, fmt.Errorf("read %q: %w", key, err)
		}
		return BinaryValue(data), nil

	case FormatText:
		data, err := readString(r, offset)
		if err != nil {
			return Value{}, fmt.Errorf("read %q: %w", key, err)
		}
		if !utf8.Valid(data) {
			return Value{}, &TextError{Key: key, Raw: data}
		}
		return TextValue(string(data)), nil

	case FormatInteger:
		if rec.Length != 4 {
			return Value{}, &IntegerSizeError{Key: key, Got: rec.Length, Want: 4}
		}
		if _, err := r.Seek(offset, io.SeekStart); err != nil {
			return Value{}, err
		}
		var b [4]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return Value{}, fmt.Errorf("read %q: %w", key, err)
		}
		return IntegerValue(int32(binary.LittleEndian.Uint32(b[:]))), nil

	default:
		return Value{}, &FormatError{Key: key, Tag: rec.Format}
	}
}

// readString reads bytes at offset up to a NUL or EOF, without the NUL.
func readString(r io.ReadSeeker, offset int64) ([]byte, error) {
	if _, err := r.Seek(offset, io.SeekStart); err != nil {
		return nil, err
	}
	data, err := bufio.NewReader(r).ReadBytes(0)
	if err == io.EOF {
		return data, nil
	}
	if err != nil {
		return nil, err
	}
	return data[:len(data)-1], nil
}
