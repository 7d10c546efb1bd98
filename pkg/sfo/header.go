// Package sfo encodes and decodes PSF parameter files (param.sfo), a typed
// key-value binary record made of a header, an index table, a key table and a
// data table. All fields are little-endian.
package sfo

import (
	"encoding/binary"
	"fmt"
)

// Magic bytes identifying a PSF file ("\x00PSF").
var Magic = [4]byte{0x00, 0x50, 0x53, 0x46}

const (
	// Version is the only format version this package reads and writes.
	Version uint32 = 0x0101

	// HeaderSize is the fixed binary size of a PSF header.
	HeaderSize = 20 // 4 + 4 + 4 + 4 + 4 bytes

	// IndexEntrySize is the fixed binary size of one index table record.
	IndexEntrySize = 16 // 2 + 2 + 4 + 4 + 4 bytes

	// IntegerSize is the serialized width of an integer value.
	IntegerSize = 4

	// maxKeyTable is the largest key table addressable by 16 bit key offsets.
	maxKeyTable = 1 << 16
)

// Header is the fixed-size PSF file header.
type Header struct {
	Magic           [4]byte
	Version         uint32
	KeyTableStart   uint32 // Absolute offset of the key table
	DataTableStart  uint32 // Absolute offset of the data table
	IndexTableCount uint32 // Number of entries
}

// Validate checks the header for validity.
func (h *Header) Validate() error {
	if h.Magic != Magic {
		return &FormatError{Offset: 0, Err: fmt.Errorf("%w: expected %x, got %x", ErrInvalidMagic, Magic, h.Magic)}
	}
	if h.Version != Version {
		return &FormatError{Offset: 4, Err: ErrUnsupportedVersion, Expected: uint64(Version), Actual: uint64(h.Version)}
	}
	return nil
}

// EncodeTo writes the header to the given buffer.
// The buffer must be at least HeaderSize bytes.
func (h *Header) EncodeTo(buf []byte) {
	copy(buf[0:4], h.Magic[:])
	binary.LittleEndian.PutUint32(buf[4:8], h.Version)
	binary.LittleEndian.PutUint32(buf[8:12], h.KeyTableStart)
	binary.LittleEndian.PutUint32(buf[12:16], h.DataTableStart)
	binary.LittleEndian.PutUint32(buf[16:20], h.IndexTableCount)
}

// DecodeFrom reads the header from the given buffer.
// Does not validate.
func (h *Header) DecodeFrom(data []byte) {
	copy(h.Magic[:], data[0:4])
	h.Version = binary.LittleEndian.Uint32(data[4:8])
	h.KeyTableStart = binary.LittleEndian.Uint32(data[8:12])
	h.DataTableStart = binary.LittleEndian.Uint32(data[12:16])
	h.IndexTableCount = binary.LittleEndian.Uint32(data[16:20])
}

// IndexEntry is one record of the index table. Offsets are relative to the
// start of the key table and the data table respectively.
type IndexEntry struct {
	KeyOffset  uint16
	Format     Type
	Length     uint32 // Serialized length of the value
	MaxLength  uint32 // Reserved capacity
	DataOffset uint32
}

// EncodeTo writes the index entry to the given buffer.
// The buffer must be at least IndexEntrySize bytes.
func (e *IndexEntry) EncodeTo(buf []byte) {
	binary.LittleEndian.PutUint16(buf[0:2], e.KeyOffset)
	binary.LittleEndian.PutUint16(buf[2:4], uint16(e.Format))
	binary.LittleEndian.PutUint32(buf[4:8], e.Length)
	binary.LittleEndian.PutUint32(buf[8:12], e.MaxLength)
	binary.LittleEndian.PutUint32(buf[12:16], e.DataOffset)
}

// DecodeFrom reads the index entry from the given buffer.
func (e *IndexEntry) DecodeFrom(data []byte) {
	e.KeyOffset = binary.LittleEndian.Uint16(data[0:2])
	e.Format = Type(binary.LittleEndian.Uint16(data[2:4]))
	e.Length = binary.LittleEndian.Uint32(data[4:8])
	e.MaxLength = binary.LittleEndian.Uint32(data[8:12])
	e.DataOffset = binary.LittleEndian.Uint32(data[12:16])
}
