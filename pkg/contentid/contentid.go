// Package contentid validates and generates package content identifiers of
// the form RRRRRR-TTTTTTTTT_00-XXXXXXXXXXXXXXXX.
package contentid

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Length is the exact length of a content identifier.
const Length = 36

const (
	regionLength  = 6
	titleIDLength = 9
	labelLength   = 16
)

var (
	// ErrInvalid is returned for identifiers of the wrong length or alphabet.
	ErrInvalid = errors.New("invalid content id")
)

// Error describes why an identifier was rejected.
type Error struct {
	ID     string
	Pos    int // Byte position of the offending character, -1 for length errors
	Reason string
}

func (e *Error) Error() string {
	if e.Pos >= 0 {
		return fmt.Sprintf("%v %q: %s at position %d", ErrInvalid, e.ID, e.Reason, e.Pos)
	}
	return fmt.Sprintf("%v %q: %s", ErrInvalid, e.ID, e.Reason)
}

func (e *Error) Unwrap() error { return ErrInvalid }

// Validate checks that id is exactly Length ASCII characters drawn from
// letters, digits, '-' and '_'.
func Validate(id string) error {
	if len(id) != Length {
		return &Error{ID: id, Pos: -1, Reason: fmt.Sprintf("length %d, want %d", len(id), Length)}
	}
	for i := 0; i < len(id); i++ {
		if !validChar(id[i]) {
			return &Error{ID: id, Pos: i, Reason: fmt.Sprintf("character %q not allowed", id[i])}
		}
	}
	return nil
}

func validChar(c byte) bool {
	switch {
	case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		return true
	case c == '-' || c == '_':
		return true
	}
	return false
}

// Compose joins the parts of a content identifier and validates the result.
func Compose(region, titleID, label string) (string, error) {
	if len(region) != regionLength {
		return "", &Error{ID: region, Pos: -1, Reason: fmt.Sprintf("region length %d, want %d", len(region), regionLength)}
	}
	if len(titleID) != titleIDLength {
		return "", &Error{ID: titleID, Pos: -1, Reason: fmt.Sprintf("title id length %d, want %d", len(titleID), titleIDLength)}
	}

	id := region + "-" + titleID + "_00-" + label
	if err := Validate(id); err != nil {
		return "", err
	}
	return id, nil
}

// FromName derives a stable identifier from an archive name: the label is
// "RS00" followed by the first 12 upper-case hex digits of its MD5 sum.
func FromName(region, titleID, name string) (string, error) {
	sum := md5.Sum([]byte(name))
	label := "RS00" + strings.ToUpper(hex.EncodeToString(sum[:]))[:12]
	return Compose(region, titleID, label)
}

// FromAppID derives an identifier from a store application id: the label is
// "APPID<id>" right-padded with '0' to 16 characters.
func FromAppID(region, titleID string, appID uint64) (string, error) {
	label := "APPID" + strconv.FormatUint(appID, 10)
	if len(label) < labelLength {
		label += strings.Repeat("0", labelLength-len(label))
	}
	return Compose(region, titleID, label[:labelLength])
}

// Parts splits a valid identifier into region, title id and label.
func Parts(id string) (region, titleID, label string, err error) {
	if err := Validate(id); err != nil {
		return "", "", "", err
	}
	if id[regionLength] != '-' || id[regionLength+1+titleIDLength:regionLength+1+titleIDLength+4] != "_00-" {
		return "", "", "", &Error{ID: id, Pos: -1, Reason: "separators not at expected positions"}
	}
	return id[:regionLength], id[regionLength+1 : regionLength+1+titleIDLength], id[Length-labelLength:], nil
}
