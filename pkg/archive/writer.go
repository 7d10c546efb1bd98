package archive

import (
	"fmt"
	"hash"
	"hash/crc32"
	"io"

	"github.com/DataDog/zstd"
)

// Writer compresses a payload into an envelope on an io.WriteSeeker. The
// header is written as a placeholder and completed on Close.
type Writer struct {
	dst     io.WriteSeeker
	start   int64
	zWriter *zstd.Writer
	header  *Header
	crc     hash.Hash32
	level   int
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithCompressionLevel sets the compression level for the writer.
func WithCompressionLevel(level int) WriterOption {
	return func(w *Writer) {
		w.level = level
	}
}

// NewWriter creates a writer for a payload of the given kind.
func NewWriter(dst io.WriteSeeker, kind Kind, opts ...WriterOption) (*Writer, error) {
	start, err := dst.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, fmt.Errorf("get position: %w", err)
	}

	w := &Writer{
		dst:    dst,
		start:  start,
		level:  DefaultCompressionLevel,
		header: NewHeader(kind, 0, 0, 0),
		crc:    crc32.NewIEEE(),
	}

	for _, opt := range opts {
		opt(w)
	}

	headerBytes, err := w.header.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("marshal header: %w", err)
	}
	if _, err := dst.Write(headerBytes); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}

	w.zWriter = zstd.NewWriterLevel(dst, w.level)
	return w, nil
}

// Write compresses p.
func (w *Writer) Write(p []byte) (n int, err error) {
	n, err = w.zWriter.Write(p)
	w.crc.Write(p[:n])
	w.header.Length += uint64(n)
	return n, err
}

// Close flushes the compressor and rewrites the header with the final sizes
// and checksum.
func (w *Writer) Close() error {
	if err := w.zWriter.Close(); err != nil {
		return fmt.Errorf("close compressor: %w", err)
	}

	pos, err := w.dst.Seek(0, io.SeekCurrent)
	if err != nil {
		return fmt.Errorf("get position: %w", err)
	}

	w.header.CompressedLength = uint64(pos - w.start - HeaderSize)
	w.header.Checksum = w.crc.Sum32()

	if _, err := w.dst.Seek(w.start, io.SeekStart); err != nil {
		return fmt.Errorf("seek to start: %w", err)
	}

	headerBytes, err := w.header.MarshalBinary()
	if err != nil {
		return fmt.Errorf("marshal header: %w", err)
	}

	if _, err := w.dst.Write(headerBytes); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	if _, err := w.dst.Seek(pos, io.SeekStart); err != nil {
		return fmt.Errorf("seek to end: %w", err)
	}

	return nil
}

// Encode compresses data and writes it as an envelope of the given kind to dst.
func Encode(dst io.WriteSeeker, kind Kind, data []byte, opts ...WriterOption) error {
	w, err := NewWriter(dst, kind, opts...)
	if err != nil {
		return err
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write data: %w", err)
	}

	return w.Close()
}
