package sfo

import (
	"fmt"
	"strconv"
	"unicode/utf8"
)

// Type is the format tag stored in the index table.
type Type uint16

const (
	// StringSpecial is UTF-8 text stored without a NUL terminator.
	StringSpecial Type = 0x0004
	// String is UTF-8 text followed by one NUL terminator.
	String Type = 0x0204
	// Integer is a 4 byte little-endian unsigned integer.
	Integer Type = 0x0404
)

func (t Type) String() string {
	switch t {
	case StringSpecial:
		return "utf8-special"
	case String:
		return "utf8"
	case Integer:
		return "int32"
	default:
		return fmt.Sprintf("unknown(0x%04x)", uint16(t))
	}
}

// Valid reports whether t is a known format tag.
func (t Type) Valid() bool {
	return t == StringSpecial || t == String || t == Integer
}

// Entry is one key/value pair of a schema.
type Entry struct {
	Key       string
	Type      Type
	Text      string // Set for String and StringSpecial
	Int       uint32 // Set for Integer
	MaxLength uint32 // Reserved capacity of the value in the data table
}

// StringEntry returns a NUL-terminated string entry.
func StringEntry(key, value string, maxLength uint32) Entry {
	return Entry{Key: key, Type: String, Text: value, MaxLength: maxLength}
}

// IntegerEntry returns a 4 byte integer entry.
func IntegerEntry(key string, value uint32) Entry {
	return Entry{Key: key, Type: Integer, Int: value, MaxLength: IntegerSize}
}

// Length returns the serialized length of the value, excluding padding.
func (e Entry) Length() int {
	switch e.Type {
	case String:
		return len(e.Text) + 1
	case StringSpecial:
		return len(e.Text)
	default:
		return IntegerSize
	}
}

// Value returns the value formatted for display.
func (e Entry) Value() string {
	if e.Type == Integer {
		return strconv.FormatUint(uint64(e.Int), 10)
	}
	return e.Text
}

// validate checks the invariants of a single entry.
func (e Entry) validate(index int) error {
	if err := checkKey(e.Key); err != nil {
		return &SchemaError{Key: e.Key, Index: index, Err: err}
	}

	switch e.Type {
	case Integer:
		if e.MaxLength != IntegerSize {
			return &SchemaError{Key: e.Key, Index: index, Err: ErrIntegerWidth, Expected: IntegerSize, Actual: int(e.MaxLength)}
		}
		if e.Text != "" {
			return &SchemaError{Key: e.Key, Index: index, Err: fmt.Errorf("%w: integer entry carries text", ErrInvalidValue)}
		}
	case String, StringSpecial:
		if e.Int != 0 {
			return &SchemaError{Key: e.Key, Index: index, Err: fmt.Errorf("%w: string entry carries an integer", ErrInvalidValue)}
		}
		if !utf8.ValidString(e.Text) {
			return &SchemaError{Key: e.Key, Index: index, Err: fmt.Errorf("%w: text is not valid UTF-8", ErrInvalidValue)}
		}
		if uint64(e.Length()) > uint64(e.MaxLength) {
			return &SchemaError{Key: e.Key, Index: index, Err: ErrCapacity, Expected: int(e.MaxLength), Actual: e.Length()}
		}
	default:
		return &SchemaError{Key: e.Key, Index: index, Err: fmt.Errorf("%w: type %s", ErrInvalidValue, e.Type)}
	}

	return nil
}

func checkKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	for i := 0; i < len(key); i++ {
		c := key[i]
		if c == 0 {
			return fmt.Errorf("%w: NUL byte at %d", ErrInvalidKey, i)
		}
		if c >= utf8.RuneSelf {
			return fmt.Errorf("%w: non-ASCII byte at %d", ErrInvalidKey, i)
		}
	}
	return nil
}

// Schema is an ordered set of entries with unique keys. Insertion order
// determines the on-disk order of keys and values.
type Schema struct {
	entries []Entry
	index   map[string]int
}

// NewSchema creates a schema from the given entries, in order.
func NewSchema(entries ...Entry) (*Schema, error) {
	s := &Schema{}
	for _, e := range entries {
		if err := s.Add(e); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Add appends an entry. It fails with a *SchemaError if the entry is invalid
// or its key is already present.
func (s *Schema) Add(e Entry) error {
	if s.index == nil {
		s.index = make(map[string]int)
	}
	if err := e.validate(len(s.entries)); err != nil {
		return err
	}
	if _, ok := s.index[e.Key]; ok {
		return &SchemaError{Key: e.Key, Index: len(s.entries), Err: ErrDuplicateKey}
	}
	s.index[e.Key] = len(s.entries)
	s.entries = append(s.entries, e)
	return nil
}

// AddString appends a NUL-terminated string entry.
func (s *Schema) AddString(key, value string, maxLength uint32) error {
	return s.Add(StringEntry(key, value, maxLength))
}

// AddInteger appends an integer entry.
func (s *Schema) AddInteger(key string, value uint32) error {
	return s.Add(IntegerEntry(key, value))
}

// Len returns the number of entries.
func (s *Schema) Len() int {
	return len(s.entries)
}

// Entries returns a copy of the entries in order.
func (s *Schema) Entries() []Entry {
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Get returns the entry for key.
func (s *Schema) Get(key string) (Entry, bool) {
	i, ok := s.index[key]
	if !ok {
		return Entry{}, false
	}
	return s.entries[i], true
}

// Validate checks every entry and key uniqueness.
func (s *Schema) Validate() error {
	seen := make(map[string]struct{}, len(s.entries))
	keyTable := 0
	for i, e := range s.entries {
		if err := e.validate(i); err != nil {
			return err
		}
		if _, ok := seen[e.Key]; ok {
			return &SchemaError{Key: e.Key, Index: i, Err: ErrDuplicateKey}
		}
		seen[e.Key] = struct{}{}

		keyTable += len(e.Key) + 1
		if keyTable > maxKeyTable {
			return &SchemaError{Key: e.Key, Index: i, Err: ErrKeyTableTooLarge, Expected: maxKeyTable, Actual: keyTable}
		}
	}
	return nil
}

// Equal reports whether both schemas hold the same entries in the same order.
func (s *Schema) Equal(other *Schema) bool {
	if s.Len() != other.Len() {
		return false
	}
	for i := range s.entries {
		if s.entries[i] != other.entries[i] {
			return false
		}
	}
	return true
}

// MarshalBinary encodes the schema. See Encode.
func (s *Schema) MarshalBinary() ([]byte, error) {
	return Encode(s)
}

// UnmarshalBinary replaces the schema with the one decoded from data.
// The schema is left untouched on error.
func (s *Schema) UnmarshalBinary(data []byte) error {
	decoded, err := Decode(data)
	if err != nil {
		return err
	}
	*s = *decoded
	return nil
}
