package sfo

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"unicode/utf8"
)

// Decode parses a PSF buffer into a new schema, preserving entry order.
// Any structural problem yields a *FormatError and no schema. Bytes after the
// last value's reserved capacity are ignored. The returned schema does not
// reference data.
func Decode(data []byte) (*Schema, error) {
	if len(data) < HeaderSize {
		return nil, &FormatError{Offset: len(data), Err: ErrTruncated, Expected: HeaderSize, Actual: uint64(len(data))}
	}

	var h Header
	h.DecodeFrom(data[:HeaderSize])
	if err := h.Validate(); err != nil {
		return nil, err
	}

	size := uint64(len(data))
	count := uint64(h.IndexTableCount)
	indexEnd := HeaderSize + count*IndexEntrySize
	if indexEnd > size {
		return nil, &FormatError{Offset: HeaderSize, Err: fmt.Errorf("%w: index table of %d entries", ErrTruncated, count), Expected: indexEnd, Actual: size}
	}

	keyStart := uint64(h.KeyTableStart)
	if keyStart < indexEnd {
		return nil, &FormatError{Offset: 8, Err: fmt.Errorf("%w: key table overlaps index table", ErrBadOffset), Expected: indexEnd, Actual: keyStart}
	}
	if keyStart > size {
		return nil, &FormatError{Offset: 8, Err: fmt.Errorf("%w: key table start", ErrTruncated), Expected: keyStart, Actual: size}
	}

	dataStart := uint64(h.DataTableStart)
	if dataStart < keyStart {
		return nil, &FormatError{Offset: 12, Err: fmt.Errorf("%w: data table precedes key table", ErrBadOffset), Expected: keyStart, Actual: dataStart}
	}
	if dataStart > size {
		return nil, &FormatError{Offset: 12, Err: fmt.Errorf("%w: data table start", ErrTruncated), Expected: dataStart, Actual: size}
	}

	keyTable := data[keyStart:dataStart]
	dataTable := data[dataStart:]

	s := &Schema{
		entries: make([]Entry, 0, count),
		index:   make(map[string]int, count),
	}

	for i := 0; i < int(count); i++ {
		at := HeaderSize + i*IndexEntrySize

		var ie IndexEntry
		ie.DecodeFrom(data[at : at+IndexEntrySize])

		key, err := readKey(keyTable, ie.KeyOffset)
		if err != nil {
			return nil, &FormatError{Offset: int(keyStart) + int(ie.KeyOffset), Err: err}
		}

		e, ferr := readValue(dataTable, ie)
		if ferr != nil {
			ferr.Key = key
			if ferr.Offset < 0 {
				ferr.Offset = at
			} else {
				ferr.Offset += int(dataStart)
			}
			return nil, ferr
		}
		e.Key = key

		if _, ok := s.index[key]; ok {
			return nil, &FormatError{Offset: at, Key: key, Err: ErrDuplicateKey}
		}
		s.index[key] = len(s.entries)
		s.entries = append(s.entries, e)
	}

	return s, nil
}

func readKey(keyTable []byte, offset uint16) (string, error) {
	if int(offset) >= len(keyTable) {
		return "", fmt.Errorf("%w: key offset %d outside key table of %d bytes", ErrBadOffset, offset, len(keyTable))
	}

	rest := keyTable[offset:]
	n := bytes.IndexByte(rest, 0)
	if n < 0 {
		return "", fmt.Errorf("%w: key at %d", ErrUnterminated, offset)
	}

	key := string(rest[:n])
	if err := checkKey(key); err != nil {
		return "", err
	}
	return key, nil
}

// readValue decodes the value described by ie. Offsets in a returned error
// are relative to the data table, or -1 when they refer to the index entry.
func readValue(dataTable []byte, ie IndexEntry) (Entry, *FormatError) {
	e := Entry{Type: ie.Format, MaxLength: ie.MaxLength}

	if !ie.Format.Valid() {
		return e, &FormatError{Offset: -1, Err: ErrUnknownFormat, Actual: uint64(ie.Format)}
	}
	if ie.Format == Integer && (ie.MaxLength != IntegerSize || ie.Length != IntegerSize) {
		return e, &FormatError{Offset: -1, Err: ErrIntegerWidth, Expected: IntegerSize, Actual: uint64(ie.MaxLength)}
	}
	if ie.Length > ie.MaxLength {
		return e, &FormatError{Offset: -1, Err: ErrCapacity, Expected: uint64(ie.MaxLength), Actual: uint64(ie.Length)}
	}

	end := uint64(ie.DataOffset) + uint64(ie.MaxLength)
	if end > uint64(len(dataTable)) {
		return e, &FormatError{Offset: int(ie.DataOffset), Err: ErrTruncated, Expected: end, Actual: uint64(len(dataTable))}
	}
	value := dataTable[ie.DataOffset : uint64(ie.DataOffset)+uint64(ie.Length)]

	switch ie.Format {
	case Integer:
		e.Int = binary.LittleEndian.Uint32(value)
		return e, nil
	case String:
		if len(value) == 0 || value[len(value)-1] != 0 {
			return e, &FormatError{Offset: int(ie.DataOffset), Err: ErrUnterminated}
		}
		value = value[:len(value)-1]
	}

	if !utf8.Valid(value) {
		return e, &FormatError{Offset: int(ie.DataOffset), Err: fmt.Errorf("%w: text is not valid UTF-8", ErrInvalidValue)}
	}
	e.Text = string(value)
	return e, nil
}

// ReadFile reads and decodes a PSF file.
func ReadFile(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sfo: %w", err)
	}
	return Decode(data)
}
