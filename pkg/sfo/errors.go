package sfo

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateKey is reported when two entries share a key.
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrInvalidKey is reported for empty, non-ASCII or NUL-containing keys.
	ErrInvalidKey = errors.New("invalid key")
	// ErrCapacity is reported when a value does not fit its declared max length.
	ErrCapacity = errors.New("value exceeds max length")
	// ErrIntegerWidth is reported when an integer entry does not declare a 4 byte max length.
	ErrIntegerWidth = errors.New("integer max length must be 4")
	// ErrInvalidValue is reported when a value does not match its entry type.
	ErrInvalidValue = errors.New("invalid value")
	// ErrKeyTableTooLarge is reported when key offsets no longer fit in 16 bits.
	ErrKeyTableTooLarge = errors.New("key table too large")
	// ErrDataTableTooLarge is reported when data offsets no longer fit in 32 bits.
	ErrDataTableTooLarge = errors.New("data table too large")

	// ErrInvalidMagic is reported when the buffer does not start with the PSF magic.
	ErrInvalidMagic = errors.New("invalid magic")
	// ErrUnsupportedVersion is reported for unknown format versions.
	ErrUnsupportedVersion = errors.New("unsupported version")
	// ErrTruncated is reported when a table extends past the end of the buffer.
	ErrTruncated = errors.New("truncated buffer")
	// ErrBadOffset is reported when header or index offsets are inconsistent.
	ErrBadOffset = errors.New("inconsistent offset")
	// ErrUnterminated is reported for keys or strings missing their NUL terminator.
	ErrUnterminated = errors.New("missing NUL terminator")
	// ErrUnknownFormat is reported for index entries with an unknown format tag.
	ErrUnknownFormat = errors.New("unknown format tag")
)

// SchemaError reports a schema that violates an invariant. It is always
// returned before any bytes are produced.
type SchemaError struct {
	Key      string
	Index    int
	Expected int
	Actual   int
	Err      error
}

func (e *SchemaError) Error() string {
	msg := fmt.Sprintf("sfo: schema entry %d (%q): %v", e.Index, e.Key, e.Err)
	if e.Expected != 0 || e.Actual != 0 {
		msg += fmt.Sprintf(": expected %d, got %d", e.Expected, e.Actual)
	}
	return msg
}

func (e *SchemaError) Unwrap() error { return e.Err }

// FormatError reports a buffer that does not conform to the PSF layout.
// Offset is the absolute byte offset the problem was found at.
type FormatError struct {
	Offset   int
	Key      string
	Expected uint64
	Actual   uint64
	Err      error
}

func (e *FormatError) Error() string {
	msg := fmt.Sprintf("sfo: format error at offset %d", e.Offset)
	if e.Key != "" {
		msg += fmt.Sprintf(" (key %q)", e.Key)
	}
	msg += fmt.Sprintf(": %v", e.Err)
	if e.Expected != 0 || e.Actual != 0 {
		msg += fmt.Sprintf(": expected %d, got %d", e.Expected, e.Actual)
	}
	return msg
}

func (e *FormatError) Unwrap() error { return e.Err }

func formatErr(offset int, err error) *FormatError {
	return &FormatError{Offset: offset, Err: err}
}
