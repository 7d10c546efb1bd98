// Package convert turns PC DLC archives into staged console package projects.
//
// A conversion writes the following tree under the output directory:
//
//	<stem>/Sc0/param.sfo
//	<stem>/Sc0/icon0.png
//	<stem>/Image0/DLC/<archive>
//	<stem>/<stem>.gp4
//
// and, when a package builder is configured, hands the project to it.
package convert

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/EchoTools/dlcconv/pkg/catalog"
	"github.com/EchoTools/dlcconv/pkg/contentid"
	"github.com/EchoTools/dlcconv/pkg/gp4"
	"github.com/EchoTools/dlcconv/pkg/logging"
	"github.com/EchoTools/dlcconv/pkg/psarc"
	"github.com/EchoTools/dlcconv/pkg/pubtool"
	"github.com/EchoTools/dlcconv/pkg/sfo"
)

// Target paths inside the package image.
const (
	ParamTarget = "sce_sys/param.sfo"
	IconTarget  = "sce_sys/icon0.png"
	DLCDir      = "DLC"
)

// ErrStageExists is returned when the staging directory is already present
// and overwriting was not requested.
var ErrStageExists = errors.New("staging directory already exists")

// Options holds the package-wide conversion settings.
type Options struct {
	Region   string
	TitleID  string
	Version  string
	Passcode string

	MaxTitleBytes int
	TitlePolicy   gp4.TitlePolicy
	TitlePrefix   string

	// Compress enables pfs_compression on the archive entry.
	Compress bool
	// Force replaces an existing staging directory.
	Force bool
	// Icon is written as icon0.png. DefaultIcon is used when empty.
	Icon []byte
}

// DefaultOptions returns options matching the stock title.
func DefaultOptions() Options {
	return Options{
		Region:        "EP0001",
		TitleID:       "CUSA00745",
		Version:       "01.00",
		Passcode:      gp4.DefaultPasscode,
		MaxTitleBytes: gp4.DefaultMaxTitleBytes,
		TitlePolicy:   gp4.TitleReject,
		TitlePrefix:   "Rocksmith2014",
		Compress:      true,
	}
}

// Job is one archive to convert.
type Job struct {
	Archive   string
	OutputDir string
	// Title and ContentID override the derived values when set.
	Title     string
	ContentID string
}

// Result describes a converted archive.
type Result struct {
	Archive        string
	ContentID      string
	Title          string
	TitleTruncated bool
	SourceFlags    uint32

	StageDir string
	Param    string
	Icon     string
	Staged   string
	Project  string
	// Package is set when a builder ran.
	Package string
}

// Converter runs conversions. It is safe for concurrent use; jobs share only
// the read-only catalog.
type Converter struct {
	opts    Options
	catalog *catalog.Catalog
	builder pubtool.Builder
	log     *logging.Logger
	workers int
	now     func() time.Time
}

// Option configures a Converter.
type Option func(*Converter)

// WithCatalog sets the lookup table used for identifiers and titles.
func WithCatalog(c *catalog.Catalog) Option {
	return func(cv *Converter) {
		cv.catalog = c
	}
}

// WithBuilder sets the package builder run after staging.
func WithBuilder(b pubtool.Builder) Option {
	return func(cv *Converter) {
		cv.builder = b
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(cv *Converter) {
		cv.log = l
	}
}

// WithWorkers sets the number of concurrent jobs in Batch.
func WithWorkers(n int) Option {
	return func(cv *Converter) {
		if n > 0 {
			cv.workers = n
		}
	}
}

// New creates a converter.
func New(opts Options, options ...Option) *Converter {
	c := &Converter{
		opts:    opts,
		log:     logging.Noop(),
		workers: 1,
		now:     time.Now,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// Stem returns the archive name without its extension.
func Stem(archive string) string {
	base := filepath.Base(archive)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// StageDir returns the staging directory of a job.
func StageDir(job Job) string {
	return filepath.Join(job.OutputDir, Stem(job.Archive))
}

// Convert stages one archive and, if a builder is configured, builds it.
// On failure the staging directory is removed again.
func (c *Converter) Convert(ctx context.Context, job Job) (*Result, error) {
	return c.convert(ctx, job, c.log)
}

func (c *Converter) convert(ctx context.Context, job Job, log *logging.Logger) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	log = log.WithArchive(job.Archive)

	info, err := os.Stat(job.Archive)
	if err != nil {
		return nil, fmt.Errorf("stat archive: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("archive %s is a directory", job.Archive)
	}
	if _, err := psarc.ReadHeaderFile(job.Archive); err != nil {
		return nil, err
	}

	entry, known := c.catalog.Lookup(job.Archive)

	id, err := c.contentID(job, entry, known)
	if err != nil {
		return nil, err
	}
	log = log.WithContentID(id)

	title, truncated, err := gp4.FitTitle(c.title(job, id, entry, known), c.opts.TitlePolicy, c.opts.MaxTitleBytes)
	if err != nil {
		return nil, err
	}
	if truncated {
		log.Warn("title truncated", "title", title, "limit", c.opts.MaxTitleBytes)
	}

	name := filepath.Base(job.Archive)
	stage := StageDir(job)
	res := &Result{
		Archive:        job.Archive,
		ContentID:      id,
		Title:          title,
		TitleTruncated: truncated,
		StageDir:       stage,
		Param:          filepath.Join(stage, "Sc0", "param.sfo"),
		Icon:           filepath.Join(stage, "Sc0", "icon0.png"),
		Staged:         filepath.Join(stage, "Image0", DLCDir, name),
		Project:        filepath.Join(stage, Stem(job.Archive)+".gp4"),
	}

	if err := c.prepareStage(stage); err != nil {
		return nil, err
	}
	// A failed conversion leaves no stage behind, so a rerun needs no Force.
	done := false
	defer func() {
		if done {
			return
		}
		if err := os.RemoveAll(stage); err != nil {
			log.Warn("remove stage failed", "stage", stage, "error", err)
		}
	}()

	hdr, err := psarc.CopyWithFlags(job.Archive, res.Staged, psarc.FlagsConsole)
	if err != nil {
		return nil, fmt.Errorf("stage archive: %w", err)
	}
	res.SourceFlags = hdr.Flags
	log.Debug("staged archive", "platform", hdr.Platform(), "files", hdr.FileCount)

	schema, err := sfo.NewDLCSchema(sfo.DLCParams{
		ContentID: id,
		Title:     title,
		TitleID:   c.opts.TitleID,
		Version:   c.opts.Version,
	})
	if err != nil {
		return nil, fmt.Errorf("build params: %w", err)
	}
	if err := sfo.WriteFile(res.Param, schema); err != nil {
		return nil, fmt.Errorf("write params: %w", err)
	}

	icon := c.opts.Icon
	if len(icon) == 0 {
		icon = DefaultIcon
	}
	if err := os.WriteFile(res.Icon, icon, 0644); err != nil {
		return nil, fmt.Errorf("write icon: %w", err)
	}

	project, err := gp4.BuildProject(id, title, []gp4.Entry{
		{Source: res.Param, Target: ParamTarget},
		{Source: res.Icon, Target: IconTarget},
		{Source: res.Staged, Target: DLCDir + "/" + name, Compress: c.opts.Compress},
	},
		gp4.WithTitlePolicy(c.opts.TitlePolicy, c.opts.MaxTitleBytes),
		gp4.WithTimestamp(info.ModTime().UTC().Truncate(time.Second)),
		gp4.WithPasscode(c.opts.Passcode),
		gp4.WithTitleLookup(c.catalog),
	)
	if err != nil {
		return nil, err
	}
	if err := gp4.WriteFile(res.Project, project); err != nil {
		return nil, fmt.Errorf("write project: %w", err)
	}
	log.Info("project written", "project", res.Project, "title", title)

	if c.builder == nil {
		done = true
		return res, nil
	}

	start := c.now()
	built, err := c.builder.Build(ctx, res.Project, job.OutputDir, id)
	if err != nil {
		log.Error("package build failed", "error", err)
		return nil, fmt.Errorf("build package: %w", err)
	}
	res.Package = built.Package
	log.Info("package built", "package", built.Package, "elapsed", c.now().Sub(start))

	done = true
	return res, nil
}

// contentID resolves the identifier: explicit, then catalog, then derived
// from the archive name.
func (c *Converter) contentID(job Job, entry catalog.Entry, known bool) (string, error) {
	var (
		id  string
		err error
	)
	switch {
	case job.ContentID != "":
		id, err = job.ContentID, contentid.Validate(job.ContentID)
	case known && entry.ContentID != "":
		id, err = entry.ContentID, contentid.Validate(entry.ContentID)
	case known && entry.AppID != 0:
		id, err = contentid.FromAppID(c.opts.Region, c.opts.TitleID, entry.AppID)
	default:
		id, err = contentid.FromName(c.opts.Region, c.opts.TitleID, Stem(job.Archive))
	}
	if err != nil {
		return "", &gp4.IdentifierError{ID: id, Err: err}
	}
	return id, nil
}

// title resolves the display title: explicit, then catalog, then derived
// from the archive name.
func (c *Converter) title(job Job, id string, entry catalog.Entry, known bool) string {
	if job.Title != "" {
		return job.Title
	}
	if known && entry.Title != "" {
		if entry.Artist != "" {
			return entry.Artist + " - " + entry.Title
		}
		return entry.Title
	}
	if t, ok := c.catalog.Title(id); ok && t != "" {
		return t
	}
	if c.opts.TitlePrefix == "" {
		return Stem(job.Archive)
	}
	return c.opts.TitlePrefix + " - " + Stem(job.Archive)
}

func (c *Converter) prepareStage(stage string) error {
	if _, err := os.Stat(stage); err == nil {
		if !c.opts.Force {
			return fmt.Errorf("%w: %s", ErrStageExists, stage)
		}
		if err := os.RemoveAll(stage); err != nil {
			return fmt.Errorf("remove stage: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat stage: %w", err)
	}

	for _, dir := range []string{
		filepath.Join(stage, "Sc0"),
		filepath.Join(stage, "Image0", DLCDir),
	} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			os.RemoveAll(stage)
			return fmt.Errorf("create dir %s: %w", dir, err)
		}
	}
	return nil
}
