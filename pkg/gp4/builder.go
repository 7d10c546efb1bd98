package gp4

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/EchoTools/dlcconv/pkg/contentid"
)

// TitlePolicy decides what happens to a title longer than the cap.
type TitlePolicy int

const (
	// TitleReject fails the build with ErrTitleTooLong.
	TitleReject TitlePolicy = iota
	// TitleTruncate cuts the title on a rune boundary and sets
	// Project.TitleTruncated.
	TitleTruncate
)

// ParseTitlePolicy parses "reject" or "truncate".
func ParseTitlePolicy(s string) (TitlePolicy, error) {
	switch strings.ToLower(s) {
	case "", "reject":
		return TitleReject, nil
	case "truncate":
		return TitleTruncate, nil
	default:
		return 0, fmt.Errorf("unknown title policy %q", s)
	}
}

func (p TitlePolicy) String() string {
	if p == TitleTruncate {
		return "truncate"
	}
	return "reject"
}

// DefaultMaxTitleBytes keeps the title within the 128 byte TITLE parameter,
// terminator included.
const DefaultMaxTitleBytes = 127

// DefaultTimestamp is used when no volume timestamp is configured.
var DefaultTimestamp = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// StatFunc reports whether a source exists. os.Stat satisfies it.
type StatFunc func(name string) (fs.FileInfo, error)

// TitleLookup resolves a title for a content identifier. It is consulted only
// when the builder is given an empty title.
type TitleLookup interface {
	Title(contentID string) (string, bool)
}

// Entry is one file of the manifest.
type Entry struct {
	Source   string
	Target   string
	Compress bool
	// Options are rendered as additional attributes, sorted by name.
	Options map[string]string
}

// Builder assembles a Project from an identifier, a title and a file list.
// A Builder is not safe for concurrent use.
type Builder struct {
	contentID string
	title     string
	entries   []Entry

	maxTitle   int
	policy     TitlePolicy
	timestamp  time.Time
	volumeType string
	volumeID   string
	passcode   string
	stat       StatFunc
	lookup     TitleLookup
}

// Option configures a Builder.
type Option func(*Builder)

// WithTitlePolicy sets the title cap in bytes and the policy applied above it.
func WithTitlePolicy(policy TitlePolicy, maxBytes int) Option {
	return func(b *Builder) {
		b.policy = policy
		b.maxTitle = maxBytes
	}
}

// WithTimestamp sets the volume timestamp and creation date.
func WithTimestamp(t time.Time) Option {
	return func(b *Builder) {
		b.timestamp = t
	}
}

// WithVolume overrides the volume type and label.
func WithVolume(volumeType, volumeID string) Option {
	return func(b *Builder) {
		b.volumeType = volumeType
		b.volumeID = volumeID
	}
}

// WithPasscode sets the package passcode.
func WithPasscode(passcode string) Option {
	return func(b *Builder) {
		b.passcode = passcode
	}
}

// WithStat replaces the source existence check.
func WithStat(stat StatFunc) Option {
	return func(b *Builder) {
		b.stat = stat
	}
}

// WithTitleLookup supplies a read-only table used to resolve empty titles.
func WithTitleLookup(lookup TitleLookup) Option {
	return func(b *Builder) {
		b.lookup = lookup
	}
}

// NewBuilder creates a builder for the given identifier and title.
func NewBuilder(contentID, title string, opts ...Option) *Builder {
	b := &Builder{
		contentID:  contentID,
		title:      title,
		maxTitle:   DefaultMaxTitleBytes,
		policy:     TitleReject,
		timestamp:  DefaultTimestamp,
		volumeType: VolumeTypeAdditionalContent,
		volumeID:   DefaultVolumeID,
		passcode:   DefaultPasscode,
		stat:       os.Stat,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Add appends a file. See AddEntry.
func (b *Builder) Add(source, target string, compress bool) error {
	return b.AddEntry(Entry{Source: source, Target: target, Compress: compress})
}

// AddEntry appends a file after normalizing its target path. It fails with a
// *ManifestError if the target is invalid or already present.
func (b *Builder) AddEntry(e Entry) error {
	target, err := NormalizeTarget(e.Target)
	if err != nil {
		return &ManifestError{Target: e.Target, Source: e.Source, Err: err}
	}
	if err := checkOptions(e.Options); err != nil {
		return &ManifestError{Target: target, Source: e.Source, Err: err}
	}
	for _, existing := range b.entries {
		if existing.Target == target {
			return &ManifestError{Target: target, Source: e.Source, Err: ErrDuplicateTarget}
		}
	}
	e.Target = target
	b.entries = append(b.entries, e)
	return nil
}

// reservedAttrs are rendered from Entry fields and cannot be options.
var reservedAttrs = map[string]bool{
	"targ_path":       true,
	"orig_path":       true,
	"pfs_compression": true,
}

// checkOptions rejects option names that would collide with a fixed
// attribute or are not valid XML attribute names without a prefix.
func checkOptions(opts map[string]string) error {
	for name := range opts {
		if reservedAttrs[name] {
			return fmt.Errorf("%w: %q is reserved", ErrInvalidOption, name)
		}
		if !isNCName(name) || strings.HasPrefix(strings.ToLower(name), "xml") {
			return fmt.Errorf("%w: %q is not an XML name", ErrInvalidOption, name)
		}
	}
	return nil
}

func isNCName(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_' || unicode.IsLetter(r):
		case i > 0 && (r == '-' || r == '.' || unicode.IsDigit(r)):
		default:
			return false
		}
	}
	return true
}

// NormalizeTarget converts a target path to forward slashes and cleans it.
// Empty, absolute and root-escaping paths are rejected.
func NormalizeTarget(target string) (string, error) {
	t := strings.ReplaceAll(target, `\`, "/")
	if t == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidTarget)
	}
	if strings.HasPrefix(t, "/") || (len(t) >= 2 && t[1] == ':') {
		return "", fmt.Errorf("%w: %q is absolute", ErrInvalidTarget, target)
	}
	t = path.Clean(t)
	if t == "." || t == ".." || strings.HasPrefix(t, "../") {
		return "", fmt.Errorf("%w: %q leaves the image root", ErrInvalidTarget, target)
	}
	return t, nil
}

// Build validates the input and assembles the document. Sources are checked
// for existence; a missing source fails the build.
func (b *Builder) Build() (*Project, error) {
	if err := contentid.Validate(b.contentID); err != nil {
		return nil, &IdentifierError{ID: b.contentID, Err: err}
	}

	title, truncated, err := b.resolveTitle()
	if err != nil {
		return nil, err
	}

	p := &Project{
		Format:  ProjectFormat,
		Version: ProjectVersion,
		Comment: " " + title + " ",
		Volume: Volume{
			Type:      b.volumeType,
			ID:        b.volumeID,
			Timestamp: b.timestamp.Format("2006-01-02 15:04:05"),
			Package: Package{
				ContentID:      b.contentID,
				Passcode:       b.passcode,
				EntitlementKey: DefaultPasscode,
				CreationDate:   b.timestamp.Format("2006-01-02"),
			},
		},
		Files:          Files{Files: make([]File, 0, len(b.entries))},
		Title:          title,
		TitleTruncated: truncated,
	}
	if title == "" {
		p.Comment = ""
	}

	for _, e := range b.entries {
		if err := b.checkSource(e); err != nil {
			return nil, err
		}
		p.Files.Files = append(p.Files.Files, renderFile(e))
	}

	p.RootDir.Dirs = inferDirs(b.entries)
	return p, nil
}

func (b *Builder) resolveTitle() (string, bool, error) {
	title := b.title
	if title == "" && b.lookup != nil {
		if t, ok := b.lookup.Title(b.contentID); ok {
			title = t
		}
	}

	return FitTitle(title, b.policy, b.maxTitle)
}

// FitTitle checks that title can be rendered and applies the byte cap. It
// reports whether the title was truncated. A maxBytes of zero disables the cap.
func FitTitle(title string, policy TitlePolicy, maxBytes int) (string, bool, error) {
	if !utf8.ValidString(title) {
		return "", false, &ManifestError{Err: fmt.Errorf("%w: not valid UTF-8", ErrInvalidTitle)}
	}
	if strings.Contains(title, "--") {
		return "", false, &ManifestError{Err: fmt.Errorf("%w: contains \"--\"", ErrInvalidTitle)}
	}
	for _, r := range title {
		if unicode.IsControl(r) {
			return "", false, &ManifestError{Err: fmt.Errorf("%w: contains control character %U", ErrInvalidTitle, r)}
		}
	}

	if maxBytes <= 0 || len(title) <= maxBytes {
		return title, false, nil
	}
	if policy == TitleReject {
		return "", false, &ManifestError{Err: fmt.Errorf("%w: %d bytes, limit %d", ErrTitleTooLong, len(title), maxBytes)}
	}

	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(title[cut]) {
		cut--
	}
	return title[:cut], true, nil
}

func (b *Builder) checkSource(e Entry) error {
	info, err := b.stat(e.Source)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &ManifestError{Target: e.Target, Source: e.Source, Err: fmt.Errorf("%w: %w", ErrMissingSource, err)}
		}
		return &ManifestError{Target: e.Target, Source: e.Source, Err: err}
	}
	if info.IsDir() {
		return &ManifestError{Target: e.Target, Source: e.Source, Err: fmt.Errorf("%w: source is a directory", ErrInvalidTarget)}
	}
	return nil
}

func renderFile(e Entry) File {
	f := File{
		TargetPath:   e.Target,
		OriginalPath: strings.ReplaceAll(e.Source, `\`, "/"),
	}
	if e.Compress {
		f.Compression = CompressionEnabled
	}

	if len(e.Options) > 0 {
		names := make([]string, 0, len(e.Options))
		for name := range e.Options {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			f.Extra = append(f.Extra, xml.Attr{Name: xml.Name{Local: name}, Value: e.Options[name]})
		}
	}
	return f
}

// inferDirs derives the directory tree from the parents of every target.
// Each directory appears once, in order of first reference.
func inferDirs(entries []Entry) []Dir {
	type node struct {
		name     string
		children []*node
		byName   map[string]*node
	}
	root := &node{byName: map[string]*node{}}

	for _, e := range entries {
		parts := strings.Split(e.Target, "/")
		cur := root
		for _, part := range parts[:len(parts)-1] {
			next, ok := cur.byName[part]
			if !ok {
				next = &node{name: part, byName: map[string]*node{}}
				cur.byName[part] = next
				cur.children = append(cur.children, next)
			}
			cur = next
		}
	}

	var convert func(nodes []*node) []Dir
	convert = func(nodes []*node) []Dir {
		if len(nodes) == 0 {
			return nil
		}
		dirs := make([]Dir, len(nodes))
		for i, n := range nodes {
			dirs[i] = Dir{TargetName: n.name, Dirs: convert(n.children)}
		}
		return dirs
	}
	return convert(root.children)
}

// BuildProject is the one-shot form of NewBuilder, AddEntry and Build.
func BuildProject(contentID, title string, entries []Entry, opts ...Option) (*Project, error) {
	b := NewBuilder(contentID, title, opts...)
	for _, e := range entries {
		if err := b.AddEntry(e); err != nil {
			return nil, err
		}
	}
	return b.Build()
}
