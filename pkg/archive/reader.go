package archive

import (
	"bytes"
	"errors"
	"fmt"
	"hash"
	"hash/crc32"
	"io"

	"github.com/DataDog/zstd"
)

const (
	// DefaultCompressionLevel is the default compression level for encoding.
	DefaultCompressionLevel = zstd.BestSpeed
)

var (
	// ErrKindMismatch is returned when an envelope holds an unexpected payload kind.
	ErrKindMismatch = errors.New("payload kind mismatch")
	// ErrChecksum is returned when the payload does not match the header checksum.
	ErrChecksum = errors.New("payload checksum mismatch")
	// ErrTooLarge is returned when the header declares a payload above MaxPayloadSize.
	ErrTooLarge = errors.New("payload too large")
)

// MaxPayloadSize bounds the uncompressed payload ReadAll accepts.
const MaxPayloadSize = 1 << 30

// Reader decompresses the payload of an envelope.
type Reader struct {
	header    *Header
	zReader   io.ReadCloser
	crc       hash.Hash32
	headerBuf [HeaderSize]byte
}

// NewReader reads and validates the header from r, then returns a reader
// for the decompressed payload.
func NewReader(r io.Reader) (*Reader, error) {
	reader := &Reader{
		header: &Header{},
		crc:    crc32.NewIEEE(),
	}

	if _, err := io.ReadFull(r, reader.headerBuf[:]); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	if err := reader.header.UnmarshalBinary(reader.headerBuf[:]); err != nil {
		return nil, fmt.Errorf("parse header: %w", err)
	}

	reader.zReader = zstd.NewReader(io.LimitReader(r, int64(reader.header.CompressedLength)))
	return reader, nil
}

// Header returns the envelope header.
func (r *Reader) Header() *Header {
	return r.header
}

// Read reads decompressed data into p.
func (r *Reader) Read(p []byte) (n int, err error) {
	n, err = r.zReader.Read(p)
	r.crc.Write(p[:n])
	return n, err
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.zReader.Close()
}

// ReadAll reads and verifies the entire payload of an envelope of the given kind.
func ReadAll(r io.Reader, kind Kind) ([]byte, error) {
	reader, err := NewReader(r)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	if reader.header.Kind != kind {
		return nil, fmt.Errorf("%w: expected %s, got %s", ErrKindMismatch, kind, reader.header.Kind)
	}

	if reader.header.Length > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrTooLarge, reader.header.Length, MaxPayloadSize)
	}

	// The declared length is untrusted; let the buffer grow with the data.
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, io.LimitReader(reader, int64(reader.header.Length))); err != nil {
		return nil, fmt.Errorf("read content: %w", err)
	}
	if uint64(buf.Len()) != reader.header.Length {
		return nil, fmt.Errorf("read content: %w: got %d of %d bytes", io.ErrUnexpectedEOF, buf.Len(), reader.header.Length)
	}
	data := buf.Bytes()

	if sum := reader.crc.Sum32(); sum != reader.header.Checksum {
		return nil, fmt.Errorf("%w: expected %08x, got %08x", ErrChecksum, reader.header.Checksum, sum)
	}

	return data, nil
}
