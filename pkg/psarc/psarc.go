// Package psarc reads the fixed header of PSARC archives and patches their
// platform flags. Archive contents are treated as opaque.
package psarc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// Magic bytes identifying a PSARC archive.
var Magic = [4]byte{'P', 'S', 'A', 'R'}

// HeaderSize is the fixed binary size of a PSARC header.
const HeaderSize = 32

// flagsOffset is the byte offset of the archive flags field.
const flagsOffset = 28

// Archive flag values.
const (
	FlagsPC      uint32 = 0
	FlagsConsole uint32 = 4
)

// ErrInvalidMagic is returned for files that are not PSARC archives.
var ErrInvalidMagic = errors.New("invalid psarc magic")

// Header is the big-endian PSARC header.
type Header struct {
	Magic        [4]byte
	VersionMajor uint16
	VersionMinor uint16
	Compression  [4]byte
	TOCLength    uint32
	TOCEntrySize uint32
	FileCount    uint32
	BlockSize    uint32
	Flags        uint32
}

// Validate checks the magic.
func (h *Header) Validate() error {
	if h.Magic != Magic {
		return fmt.Errorf("%w: got %q", ErrInvalidMagic, h.Magic[:])
	}
	return nil
}

// DecodeFrom reads the header from the given buffer.
// The buffer must be at least HeaderSize bytes.
func (h *Header) DecodeFrom(data []byte) {
	copy(h.Magic[:], data[0:4])
	h.VersionMajor = binary.BigEndian.Uint16(data[4:6])
	h.VersionMinor = binary.BigEndian.Uint16(data[6:8])
	copy(h.Compression[:], data[8:12])
	h.TOCLength = binary.BigEndian.Uint32(data[12:16])
	h.TOCEntrySize = binary.BigEndian.Uint32(data[16:20])
	h.FileCount = binary.BigEndian.Uint32(data[20:24])
	h.BlockSize = binary.BigEndian.Uint32(data[24:28])
	h.Flags = binary.BigEndian.Uint32(data[28:32])
}

// EncodeTo writes the header to the given buffer.
// The buffer must be at least HeaderSize bytes.
func (h *Header) EncodeTo(buf []byte) {
	copy(buf[0:4], h.Magic[:])
	binary.BigEndian.PutUint16(buf[4:6], h.VersionMajor)
	binary.BigEndian.PutUint16(buf[6:8], h.VersionMinor)
	copy(buf[8:12], h.Compression[:])
	binary.BigEndian.PutUint32(buf[12:16], h.TOCLength)
	binary.BigEndian.PutUint32(buf[16:20], h.TOCEntrySize)
	binary.BigEndian.PutUint32(buf[20:24], h.FileCount)
	binary.BigEndian.PutUint32(buf[24:28], h.BlockSize)
	binary.BigEndian.PutUint32(buf[28:32], h.Flags)
}

// Platform names the platform implied by the flags.
func (h *Header) Platform() string {
	switch h.Flags {
	case FlagsPC:
		return "pc"
	case FlagsConsole:
		return "console"
	default:
		return fmt.Sprintf("unknown(%d)", h.Flags)
	}
}

// CompressionName returns the compression tag without trailing NULs.
func (h *Header) CompressionName() string {
	n := len(h.Compression)
	for n > 0 && h.Compression[n-1] == 0 {
		n--
	}
	return string(h.Compression[:n])
}

// ReadHeader reads and validates a header from r.
func ReadHeader(r io.Reader) (*Header, error) {
	var buf [HeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	h := &Header{}
	h.DecodeFrom(buf[:])
	if err := h.Validate(); err != nil {
		return nil, err
	}
	return h, nil
}

// ReadHeaderFile reads the header of the archive at path.
func ReadHeaderFile(path string) (*Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	return ReadHeader(f)
}

// SetFlags rewrites only the flags field of the archive at path and returns
// the previous value. The file is left untouched when the flags already match.
func SetFlags(path string, flags uint32) (uint32, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return 0, fmt.Errorf("open archive: %w", err)
	}

	h, err := ReadHeader(f)
	if err != nil {
		f.Close()
		return 0, err
	}

	if h.Flags != flags {
		var buf [4]byte
		binary.BigEndian.PutUint32(buf[:], flags)
		if _, err := f.WriteAt(buf[:], flagsOffset); err != nil {
			f.Close()
			return 0, fmt.Errorf("write flags: %w", err)
		}
	}

	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("close archive: %w", err)
	}
	return h.Flags, nil
}

// CopyWithFlags copies the archive at src to dst with its flags set. The
// source is never modified. It returns the source header.
func CopyWithFlags(src, dst string, flags uint32) (*Header, error) {
	in, err := os.Open(src)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer in.Close()

	h, err := ReadHeader(in)
	if err != nil {
		return nil, err
	}

	out, err := os.Create(dst)
	if err != nil {
		return nil, fmt.Errorf("create file: %w", err)
	}

	patched := *h
	patched.Flags = flags
	var buf [HeaderSize]byte
	patched.EncodeTo(buf[:])

	if _, err := out.Write(buf[:]); err != nil {
		out.Close()
		return nil, fmt.Errorf("write header: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return nil, fmt.Errorf("copy archive body: %w", err)
	}
	if err := out.Close(); err != nil {
		return nil, fmt.Errorf("close file: %w", err)
	}

	return h, nil
}
