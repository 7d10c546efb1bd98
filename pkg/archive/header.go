// Package archive reads and writes ZSTD compressed envelopes: a fixed
// little-endian header naming the payload kind, its sizes and a CRC32 of the
// uncompressed bytes, followed by one ZSTD stream.
package archive

import (
	"encoding/binary"
	"fmt"
)

// Magic bytes identifying an envelope header.
var Magic = [4]byte{0x44, 0x4c, 0x43, 0x5a} // "DLCZ"

// HeaderSize is the fixed binary size of an envelope header.
const HeaderSize = 32 // 4 + 4 + 4 + 8 + 8 + 4 bytes

// headerLength is the number of header bytes following the length field.
const headerLength = HeaderSize - 8

// Kind tags the payload of an envelope.
type Kind [4]byte

func (k Kind) String() string {
	return string(k[:])
}

// Header represents the header of an envelope.
type Header struct {
	Magic            [4]byte
	HeaderLength     uint32
	Kind             Kind
	Length           uint64 // Uncompressed size
	CompressedLength uint64 // Compressed size
	Checksum         uint32 // CRC32 (IEEE) of the uncompressed payload
}

// Validate checks the header for validity.
func (h *Header) Validate() error {
	if h.Magic != Magic {
		return fmt.Errorf("invalid magic: expected %x, got %x", Magic, h.Magic)
	}
	if h.HeaderLength != headerLength {
		return fmt.Errorf("invalid header length: expected %d, got %d", headerLength, h.HeaderLength)
	}
	if h.Length > 0 && h.CompressedLength == 0 {
		return fmt.Errorf("compressed size is zero")
	}
	return nil
}

// MarshalBinary encodes the header to binary format.
func (h *Header) MarshalBinary() ([]byte, error) {
	buf := make([]byte, HeaderSize)
	h.EncodeTo(buf)
	return buf, nil
}

// EncodeTo writes the header to the given buffer.
// The buffer must be at least HeaderSize bytes.
func (h *Header) EncodeTo(buf []byte) {
	copy(buf[0:4], h.Magic[:])
	binary.LittleEndian.PutUint32(buf[4:8], h.HeaderLength)
	copy(buf[8:12], h.Kind[:])
	binary.LittleEndian.PutUint64(buf[12:20], h.Length)
	binary.LittleEndian.PutUint64(buf[20:28], h.CompressedLength)
	binary.LittleEndian.PutUint32(buf[28:32], h.Checksum)
}

// UnmarshalBinary decodes and validates the header.
func (h *Header) UnmarshalBinary(data []byte) error {
	if len(data) < HeaderSize {
		return fmt.Errorf("header data too short: need %d, got %d", HeaderSize, len(data))
	}
	h.DecodeFrom(data)
	return h.Validate()
}

// DecodeFrom reads the header from the given buffer.
// Does not validate - use UnmarshalBinary for validation.
func (h *Header) DecodeFrom(data []byte) {
	copy(h.Magic[:], data[0:4])
	h.HeaderLength = binary.LittleEndian.Uint32(data[4:8])
	copy(h.Kind[:], data[8:12])
	h.Length = binary.LittleEndian.Uint64(data[12:20])
	h.CompressedLength = binary.LittleEndian.Uint64(data[20:28])
	h.Checksum = binary.LittleEndian.Uint32(data[28:32])
}

// NewHeader creates a header for a payload of the given kind.
func NewHeader(kind Kind, uncompressedSize, compressedSize uint64, checksum uint32) *Header {
	return &Header{
		Magic:            Magic,
		HeaderLength:     headerLength,
		Kind:             kind,
		Length:           uncompressedSize,
		CompressedLength: compressedSize,
		Checksum:         checksum,
	}
}
