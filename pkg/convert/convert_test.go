package convert

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EchoTools/dlcconv/pkg/catalog"
	"github.com/EchoTools/dlcconv/pkg/contentid"
	"github.com/EchoTools/dlcconv/pkg/gp4"
	"github.com/EchoTools/dlcconv/pkg/psarc"
	"github.com/EchoTools/dlcconv/pkg/pubtool"
	"github.com/EchoTools/dlcconv/pkg/sfo"
)

func writeArchive(t *testing.T, dir, name string) string {
	t.Helper()
	h := psarc.Header{
		Magic:        psarc.Magic,
		VersionMajor: 1,
		VersionMinor: 4,
		Compression:  [4]byte{'z', 'l', 'i', 'b'},
		FileCount:    3,
		BlockSize:    65536,
		Flags:        psarc.FlagsPC,
	}
	buf := make([]byte, psarc.HeaderSize)
	h.EncodeTo(buf)
	buf = append(buf, []byte("archive body of "+name)...)

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, buf, 0644))
	mtime := time.Date(2026, time.January, 7, 10, 30, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(path, mtime, mtime))
	return path
}

type fakeBuilder struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeBuilder) Build(ctx context.Context, project, outputDir, contentID string) (*pubtool.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, project)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	pkg := pubtool.PackagePath(outputDir, contentID)
	if err := os.WriteFile(pkg, []byte("pkg"), 0644); err != nil {
		return nil, err
	}
	return &pubtool.Result{Package: pkg}, nil
}

func TestConvert(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	archive := writeArchive(t, in, "poison_p.psarc")

	builder := &fakeBuilder{}
	c := New(DefaultOptions(), WithBuilder(builder))

	res, err := c.Convert(context.Background(), Job{Archive: archive, OutputDir: out})
	require.NoError(t, err)

	wantID, err := contentid.FromName("EP0001", "CUSA00745", "poison_p")
	require.NoError(t, err)
	assert.Equal(t, wantID, res.ContentID)
	assert.Equal(t, "Rocksmith2014 - poison_p", res.Title)
	assert.Equal(t, psarc.FlagsPC, res.SourceFlags)
	assert.Equal(t, filepath.Join(out, "poison_p"), res.StageDir)

	t.Run("Layout", func(t *testing.T) {
		for _, p := range []string{res.Param, res.Icon, res.Staged, res.Project, res.Package} {
			assert.FileExists(t, p)
		}
		assert.Equal(t, filepath.Join(out, "poison_p", "Image0", "DLC", "poison_p.psarc"), res.Staged)
		assert.Equal(t, filepath.Join(out, "poison_p", "poison_p.gp4"), res.Project)

		icon, err := os.ReadFile(res.Icon)
		require.NoError(t, err)
		assert.Equal(t, DefaultIcon, icon)
	})

	t.Run("FlagsPatchedOnCopyOnly", func(t *testing.T) {
		h, err := psarc.ReadHeaderFile(res.Staged)
		require.NoError(t, err)
		assert.Equal(t, psarc.FlagsConsole, h.Flags)

		h, err = psarc.ReadHeaderFile(archive)
		require.NoError(t, err)
		assert.Equal(t, psarc.FlagsPC, h.Flags)
	})

	t.Run("Params", func(t *testing.T) {
		s, err := sfo.ReadFile(res.Param)
		require.NoError(t, err)

		e, ok := s.Get(sfo.KeyContentID)
		require.True(t, ok)
		assert.Equal(t, res.ContentID, e.Text)
		e, ok = s.Get(sfo.KeyTitle)
		require.True(t, ok)
		assert.Equal(t, res.Title, e.Text)
		e, ok = s.Get(sfo.KeyCategory)
		require.True(t, ok)
		assert.Equal(t, sfo.CategoryAdditionalContent, e.Text)
	})

	t.Run("Project", func(t *testing.T) {
		p, err := gp4.ReadFile(res.Project)
		require.NoError(t, err)

		assert.Equal(t, res.ContentID, p.Volume.Package.ContentID)
		assert.Equal(t, "2026-01-07 10:30:00", p.Volume.Timestamp)
		assert.Equal(t, []string{"sce_sys", "DLC"}, p.Directories())
		require.Len(t, p.Files.Files, 3)
		assert.Equal(t, "DLC/poison_p.psarc", p.Files.Files[2].TargetPath)
		assert.Equal(t, gp4.CompressionEnabled, p.Files.Files[2].Compression)
		assert.Equal(t, filepath.ToSlash(res.Staged), p.Files.Files[2].OriginalPath)
	})

	t.Run("Builder", func(t *testing.T) {
		assert.Equal(t, []string{res.Project}, builder.calls)
		assert.Equal(t, pubtool.PackagePath(out, res.ContentID), res.Package)
	})
}

func TestConvertCatalog(t *testing.T) {
	in := t.TempDir()
	cat, err := catalog.New(time.Time{}, []catalog.Entry{
		{Key: "poison", AppID: 248750, Title: "Poison", Artist: "Alice Cooper"},
		{Key: "fixed", ContentID: "UP0001-CUSA00745_00-RS00FIXEDID00001", Title: "Fixed"},
	})
	require.NoError(t, err)
	c := New(DefaultOptions(), WithCatalog(cat))

	t.Run("AppID", func(t *testing.T) {
		res, err := c.Convert(context.Background(), Job{Archive: writeArchive(t, in, "poison_p.psarc"), OutputDir: t.TempDir()})
		require.NoError(t, err)
		assert.Equal(t, "EP0001-CUSA00745_00-APPID24875000000", res.ContentID)
		assert.Equal(t, "Alice Cooper - Poison", res.Title)
		assert.Empty(t, res.Package)
	})

	t.Run("ContentID", func(t *testing.T) {
		res, err := c.Convert(context.Background(), Job{Archive: writeArchive(t, in, "fixed_m.psarc"), OutputDir: t.TempDir()})
		require.NoError(t, err)
		assert.Equal(t, "UP0001-CUSA00745_00-RS00FIXEDID00001", res.ContentID)
		assert.Equal(t, "Fixed", res.Title)
	})

	t.Run("Overrides", func(t *testing.T) {
		res, err := c.Convert(context.Background(), Job{
			Archive:   writeArchive(t, in, "poison_p.psarc"),
			OutputDir: t.TempDir(),
			Title:     "Custom",
			ContentID: "EP0001-CUSA00745_00-RS00CUSTOM000001",
		})
		require.NoError(t, err)
		assert.Equal(t, "EP0001-CUSA00745_00-RS00CUSTOM000001", res.ContentID)
		assert.Equal(t, "Custom", res.Title)
	})
}

func TestConvertErrors(t *testing.T) {
	in := t.TempDir()
	archive := writeArchive(t, in, "song.psarc")

	t.Run("MissingArchive", func(t *testing.T) {
		_, err := New(DefaultOptions()).Convert(context.Background(), Job{Archive: filepath.Join(in, "absent.psarc"), OutputDir: t.TempDir()})
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("NotAnArchive", func(t *testing.T) {
		path := filepath.Join(in, "plain.psarc")
		require.NoError(t, os.WriteFile(path, make([]byte, 64), 0644))
		_, err := New(DefaultOptions()).Convert(context.Background(), Job{Archive: path, OutputDir: t.TempDir()})
		assert.ErrorIs(t, err, psarc.ErrInvalidMagic)
	})

	t.Run("BadContentID", func(t *testing.T) {
		_, err := New(DefaultOptions()).Convert(context.Background(), Job{Archive: archive, OutputDir: t.TempDir(), ContentID: "short"})
		var ie *gp4.IdentifierError
		assert.True(t, errors.As(err, &ie))
	})

	t.Run("TitleTooLong", func(t *testing.T) {
		_, err := New(DefaultOptions()).Convert(context.Background(), Job{Archive: archive, OutputDir: t.TempDir(), Title: strings.Repeat("x", 200)})
		assert.ErrorIs(t, err, gp4.ErrTitleTooLong)
	})

	t.Run("TitleTruncated", func(t *testing.T) {
		opts := DefaultOptions()
		opts.TitlePolicy = gp4.TitleTruncate
		res, err := New(opts).Convert(context.Background(), Job{Archive: archive, OutputDir: t.TempDir(), Title: strings.Repeat("x", 200)})
		require.NoError(t, err)
		assert.True(t, res.TitleTruncated)
		assert.Len(t, res.Title, gp4.DefaultMaxTitleBytes)
	})

	t.Run("StageExists", func(t *testing.T) {
		out := t.TempDir()
		job := Job{Archive: archive, OutputDir: out}
		_, err := New(DefaultOptions()).Convert(context.Background(), job)
		require.NoError(t, err)

		_, err = New(DefaultOptions()).Convert(context.Background(), job)
		assert.ErrorIs(t, err, ErrStageExists)

		opts := DefaultOptions()
		opts.Force = true
		_, err = New(opts).Convert(context.Background(), job)
		assert.NoError(t, err)
	})

	t.Run("BuilderFailure", func(t *testing.T) {
		toolErr := &pubtool.ToolError{Tool: "fake", ExitCode: 3, Stderr: "bad gp4"}
		job := Job{Archive: archive, OutputDir: t.TempDir()}
		_, err := New(DefaultOptions(), WithBuilder(&fakeBuilder{err: toolErr})).Convert(context.Background(), job)

		var te *pubtool.ToolError
		require.True(t, errors.As(err, &te))
		assert.Equal(t, 3, te.ExitCode)
		assert.NoDirExists(t, StageDir(job))

		// Nothing left behind, so a plain rerun succeeds.
		_, err = New(DefaultOptions()).Convert(context.Background(), job)
		assert.NoError(t, err)
	})

	t.Run("FailureKeepsExistingStage", func(t *testing.T) {
		job := Job{Archive: archive, OutputDir: t.TempDir()}
		_, err := New(DefaultOptions()).Convert(context.Background(), job)
		require.NoError(t, err)

		_, err = New(DefaultOptions()).Convert(context.Background(), job)
		require.ErrorIs(t, err, ErrStageExists)
		assert.FileExists(t, filepath.Join(StageDir(job), "Sc0", "param.sfo"))
	})

	t.Run("Canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := New(DefaultOptions()).Convert(ctx, Job{Archive: archive, OutputDir: t.TempDir()})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestBatch(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	names := []string{"a.psarc", "b.psarc", "c.psarc", "d.psarc"}
	for _, n := range names {
		writeArchive(t, in, n)
	}

	archives, err := ScanArchives(in)
	require.NoError(t, err)
	require.Len(t, archives, len(names))

	builder := &fakeBuilder{}
	c := New(DefaultOptions(), WithBuilder(builder), WithWorkers(2))

	report, err := c.Batch(context.Background(), Jobs(archives, out))
	require.NoError(t, err)
	assert.NotEmpty(t, report.RunID)
	require.Len(t, report.Results, len(names))
	for i, res := range report.Results {
		require.NotNil(t, res)
		assert.Equal(t, archives[i], res.Archive)
		assert.FileExists(t, res.Package)
	}
	assert.Len(t, builder.calls, len(names))

	t.Run("Failure", func(t *testing.T) {
		boom := errors.New("boom")
		c := New(DefaultOptions(), WithBuilder(&fakeBuilder{err: boom}), WithWorkers(2))
		_, err := c.Batch(context.Background(), Jobs(archives, t.TempDir()))

		var je *JobError
		require.True(t, errors.As(err, &je))
		assert.ErrorIs(t, err, boom)
		assert.Contains(t, archives, je.Archive)
	})

	t.Run("StageCollision", func(t *testing.T) {
		other := t.TempDir()
		writeArchive(t, other, "a.psarc")
		jobs := Jobs([]string{archives[0], filepath.Join(other, "a.psarc")}, t.TempDir())

		_, err := New(DefaultOptions()).Batch(context.Background(), jobs)
		assert.ErrorIs(t, err, ErrStageExists)
	})
}

func TestScanArchives(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0755))
	writeArchive(t, dir, "b.psarc")
	writeArchive(t, filepath.Join(dir, "sub"), "a.PSARC")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), nil, 0644))

	got, err := ScanArchives(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "b.psarc"), filepath.Join(dir, "sub", "a.PSARC")}, got)

	single, err := ScanArchives(got[0])
	require.NoError(t, err)
	assert.Equal(t, got[:1], single)

	_, err = ScanArchives(filepath.Join(dir, "absent"))
	assert.Error(t, err)
}

func TestStem(t *testing.T) {
	assert.Equal(t, "poison_p", Stem("/dlc/poison_p.psarc"))
	assert.Equal(t, "noext", Stem("noext"))
}
