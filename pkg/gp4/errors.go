package gp4

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateTarget is reported when two files share a target path.
	ErrDuplicateTarget = errors.New("duplicate target path")
	// ErrInvalidTarget is reported for empty, absolute or escaping target paths.
	ErrInvalidTarget = errors.New("invalid target path")
	// ErrMissingSource is reported when a source path does not exist.
	ErrMissingSource = errors.New("missing source")
	// ErrTitleTooLong is reported when the title exceeds the cap under TitleReject.
	ErrTitleTooLong = errors.New("title too long")
	// ErrInvalidTitle is reported for titles that cannot be rendered.
	ErrInvalidTitle = errors.New("invalid title")
	// ErrInvalidOption is reported for option names that cannot be rendered
	// as file attributes.
	ErrInvalidOption = errors.New("invalid file option")
)

// IdentifierError reports a content identifier that failed validation.
type IdentifierError struct {
	ID  string
	Err error
}

func (e *IdentifierError) Error() string {
	return fmt.Sprintf("gp4: identifier %q: %v", e.ID, e.Err)
}

func (e *IdentifierError) Unwrap() error { return e.Err }

// ManifestError reports a file list or title that violates the builder contract.
type ManifestError struct {
	Target string
	Source string
	Err    error
}

func (e *ManifestError) Error() string {
	switch {
	case e.Target != "" && e.Source != "":
		return fmt.Sprintf("gp4: file %q (source %q): %v", e.Target, e.Source, e.Err)
	case e.Target != "":
		return fmt.Sprintf("gp4: file %q: %v", e.Target, e.Err)
	default:
		return fmt.Sprintf("gp4: %v", e.Err)
	}
}

func (e *ManifestError) Unwrap() error { return e.Err }
