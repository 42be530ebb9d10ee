package psf

import "fmt"

// MagicError reports a header whose magic number is not Magic.
type MagicError struct {
	Got uint32
}

func (e *MagicError) Error() string {
	return fmt.Sprintf("invalid PSF header magic code: %X", e.Got)
}

// VersionError reports an unsupported header version.
type VersionError struct {
	Got uint32
}

func (e *VersionError) Error() string {
	return fmt.Sprintf("unsupported PSF header version: %X", e.Got)
}

// FormatError reports an index record with an unknown format tag.
type FormatError struct {
	Key string
	Tag uint16
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid entry format for %q: %X", e.Key, e.Tag)
}

// TextError reports a key or text value that is not valid UTF-8.
type TextError struct {
	Key string
	Raw []byte
}

func (e *TextError) Error() string {
	return fmt.Sprintf("invalid text entry %q: not valid UTF-8 (%d bytes)", e.Key, len(e.Raw))
}

// IntegerSizeError reports an integer entry whose declared length is not 4.
type IntegerSizeError struct {
	Key  string
	Got  uint32
	Want int
}

func (e *IntegerSizeError) Error() string {
	return fmt.Sprintf("invalid integer entry size for %q: %d != %d", e.Key, e.Got, e.Want)
}
