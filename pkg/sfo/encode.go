package sfo

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
)

// layout holds the table offsets computed for a schema before writing.
type layout struct {
	index          []IndexEntry
	keyTableStart  int
	keyTableLen    int // Padded to a multiple of 4
	dataTableStart int
	dataTableLen   int
}

func (l *layout) size() int {
	return l.dataTableStart + l.dataTableLen
}

func computeLayout(s *Schema) (*layout, error) {
	l := &layout{
		index:         make([]IndexEntry, len(s.entries)),
		keyTableStart: HeaderSize + len(s.entries)*IndexEntrySize,
	}

	var keyOffset int
	var dataOffset uint64
	for i, e := range s.entries {
		if dataOffset+uint64(e.MaxLength) > math.MaxUint32 {
			return nil, &SchemaError{Key: e.Key, Index: i, Err: ErrDataTableTooLarge}
		}
		l.index[i] = IndexEntry{
			KeyOffset:  uint16(keyOffset),
			Format:     e.Type,
			Length:     uint32(e.Length()),
			MaxLength:  e.MaxLength,
			DataOffset: uint32(dataOffset),
		}
		keyOffset += len(e.Key) + 1
		dataOffset += uint64(e.MaxLength)
	}

	l.keyTableLen = align4(keyOffset)
	l.dataTableStart = l.keyTableStart + l.keyTableLen
	l.dataTableLen = int(dataOffset)
	return l, nil
}

func align4(n int) int {
	return (n + 3) &^ 3
}

// Encode serializes the schema. The schema is validated first and a
// *SchemaError is returned before any bytes are produced if it is invalid.
// Output is byte-identical for identical schemas.
func Encode(s *Schema) ([]byte, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	l, err := computeLayout(s)
	if err != nil {
		return nil, err
	}

	// make zeroes the buffer, so key and value padding needs no explicit writes
	buf := make([]byte, l.size())

	header := Header{
		Magic:           Magic,
		Version:         Version,
		KeyTableStart:   uint32(l.keyTableStart),
		DataTableStart:  uint32(l.dataTableStart),
		IndexTableCount: uint32(len(s.entries)),
	}
	header.EncodeTo(buf[:HeaderSize])

	for i := range l.index {
		off := HeaderSize + i*IndexEntrySize
		l.index[i].EncodeTo(buf[off : off+IndexEntrySize])
	}

	for i, e := range s.entries {
		keyAt := l.keyTableStart + int(l.index[i].KeyOffset)
		copy(buf[keyAt:], e.Key)

		dataAt := l.dataTableStart + int(l.index[i].DataOffset)
		switch e.Type {
		case Integer:
			binary.LittleEndian.PutUint32(buf[dataAt:dataAt+IntegerSize], e.Int)
		default:
			copy(buf[dataAt:], e.Text)
		}
	}

	return buf, nil
}

// WriteFile encodes the schema and writes it to path.
func WriteFile(path string, s *Schema) error {
	data, err := Encode(s)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write sfo: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("close file: %w", err)
	}
	return nil
}
