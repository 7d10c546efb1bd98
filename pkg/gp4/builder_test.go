package gp4

import (
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EchoTools/dlcconv/pkg/contentid"
)

const testID = "EP0001-CUSA00745_00-RS00ABCDEF123456"

// memStat resolves sources against an in-memory file system.
func memStat(files ...string) StatFunc {
	m := fstest.MapFS{}
	for _, f := range files {
		m[f] = &fstest.MapFile{Data: []byte("x")}
	}
	return func(name string) (fs.FileInfo, error) {
		return fs.Stat(m, name)
	}
}

type staticTitles map[string]string

func (s staticTitles) Title(id string) (string, bool) {
	t, ok := s[id]
	return t, ok
}

func TestBuild(t *testing.T) {
	t.Run("Basic", func(t *testing.T) {
		b := NewBuilder(testID, "Example Song", WithStat(memStat("Sc0/param.sfo", "Sc0/icon0.png", "Image0/DLC/song.psarc")))
		require.NoError(t, b.Add("Sc0/param.sfo", "sce_sys/param.sfo", false))
		require.NoError(t, b.Add("Sc0/icon0.png", "sce_sys/icon0.png", false))
		require.NoError(t, b.Add("Image0/DLC/song.psarc", "DLC/song.psarc", true))

		p, err := b.Build()
		require.NoError(t, err)

		assert.Equal(t, ProjectFormat, p.Format)
		assert.Equal(t, testID, p.Volume.Package.ContentID)
		assert.Equal(t, "Example Song", p.Title)
		require.Len(t, p.Files.Files, 3)
		assert.Equal(t, "DLC/song.psarc", p.Files.Files[2].TargetPath)
		assert.Equal(t, CompressionEnabled, p.Files.Files[2].Compression)
		assert.Empty(t, p.Files.Files[0].Compression)
		assert.Equal(t, []string{"sce_sys", "DLC"}, p.Directories())
	})

	t.Run("NestedDirectoriesDeduplicated", func(t *testing.T) {
		p, err := BuildProject(testID, "t", []Entry{
			{Source: "x", Target: "a/b/x"},
			{Source: "y", Target: "a/b/y"},
			{Source: "z", Target: "a/c/z"},
			{Source: "w", Target: "w"},
		}, WithStat(memStat("x", "y", "z", "w")))
		require.NoError(t, err)

		assert.Equal(t, []string{"a", "a/b", "a/c"}, p.Directories())
		require.Len(t, p.RootDir.Dirs, 1)
		assert.Len(t, p.RootDir.Dirs[0].Dirs, 2)
	})

	t.Run("TargetNormalization", func(t *testing.T) {
		p, err := BuildProject(testID, "t", []Entry{
			{Source: `Image0\DLC\song.psarc`, Target: `DLC\song.psarc`},
			{Source: "b", Target: "sce_sys/./sub/../icon0.png"},
		}, WithStat(func(string) (fs.FileInfo, error) { return fakeFile{}, nil }))
		require.NoError(t, err)

		assert.Equal(t, "DLC/song.psarc", p.Files.Files[0].TargetPath)
		assert.Equal(t, "Image0/DLC/song.psarc", p.Files.Files[0].OriginalPath)
		assert.Equal(t, "sce_sys/icon0.png", p.Files.Files[1].TargetPath)
	})

	t.Run("Options", func(t *testing.T) {
		p, err := BuildProject(testID, "t", []Entry{
			{Source: "a", Target: "a", Options: map[string]string{"zz": "1", "chunk": "2"}},
		}, WithStat(memStat("a")))
		require.NoError(t, err)

		data, err := p.Render()
		require.NoError(t, err)
		assert.Contains(t, string(data), `<file targ_path="a" orig_path="a" chunk="2" zz="1">`)
	})

	t.Run("TitleLookup", func(t *testing.T) {
		p, err := NewBuilder(testID, "", WithTitleLookup(staticTitles{testID: "From Catalog"})).Build()
		require.NoError(t, err)
		assert.Equal(t, "From Catalog", p.Title)

		p, err = NewBuilder(testID, "Given", WithTitleLookup(staticTitles{testID: "From Catalog"})).Build()
		require.NoError(t, err)
		assert.Equal(t, "Given", p.Title)
	})

	t.Run("Timestamp", func(t *testing.T) {
		ts := time.Date(2026, time.January, 7, 13, 4, 5, 0, time.UTC)
		p, err := NewBuilder(testID, "t", WithTimestamp(ts)).Build()
		require.NoError(t, err)
		assert.Equal(t, "2026-01-07 13:04:05", p.Volume.Timestamp)
		assert.Equal(t, "2026-01-07", p.Volume.Package.CreationDate)
	})
}

func TestBuildErrors(t *testing.T) {
	t.Run("IdentifierOneShort", func(t *testing.T) {
		_, err := NewBuilder(testID[:35], "t").Build()

		var ie *IdentifierError
		require.True(t, errors.As(err, &ie))
		assert.Equal(t, testID[:35], ie.ID)
		assert.ErrorIs(t, err, contentid.ErrInvalid)
	})

	t.Run("IdentifierBadCharacter", func(t *testing.T) {
		_, err := NewBuilder(strings.Replace(testID, "A", "!", 1), "t").Build()
		var ie *IdentifierError
		assert.True(t, errors.As(err, &ie))
	})

	t.Run("DuplicateTarget", func(t *testing.T) {
		b := NewBuilder(testID, "t", WithStat(memStat("a", "b")))
		require.NoError(t, b.Add("a", "DLC/song.psarc", false))
		err := b.Add("b", "DLC/song.psarc", true)

		var me *ManifestError
		require.True(t, errors.As(err, &me))
		assert.ErrorIs(t, err, ErrDuplicateTarget)
		assert.Equal(t, "DLC/song.psarc", me.Target)
	})

	t.Run("DuplicateAfterNormalization", func(t *testing.T) {
		_, err := BuildProject(testID, "t", []Entry{
			{Source: "a", Target: "DLC/song.psarc"},
			{Source: "b", Target: `DLC\song.psarc`},
		}, WithStat(memStat("a", "b")))
		assert.ErrorIs(t, err, ErrDuplicateTarget)
	})

	t.Run("InvalidTargets", func(t *testing.T) {
		for _, target := range []string{"", "/abs", "../up", "a/../..", ".", `C:\x`} {
			err := NewBuilder(testID, "t").Add("a", target, false)
			var me *ManifestError
			assert.True(t, errors.As(err, &me), "target %q", target)
			assert.ErrorIs(t, err, ErrInvalidTarget, "target %q", target)
		}
	})

	t.Run("InvalidOptions", func(t *testing.T) {
		for _, name := range []string{"targ_path", "orig_path", "pfs_compression", "a b", "1st", "", "ns:attr", "xmlns", `q"`} {
			err := NewBuilder(testID, "t").AddEntry(Entry{Source: "a", Target: "DLC/a", Options: map[string]string{name: "v"}})
			var me *ManifestError
			assert.True(t, errors.As(err, &me), "option %q", name)
			assert.ErrorIs(t, err, ErrInvalidOption, "option %q", name)
		}

		b := NewBuilder(testID, "t", WithStat(memStat("a")))
		require.NoError(t, b.AddEntry(Entry{Source: "a", Target: "DLC/a", Options: map[string]string{"chunk-size": "<&>", "_x.1": "y"}}))
		p, err := b.Build()
		require.NoError(t, err)
		data, err := p.Render()
		require.NoError(t, err)
		assert.NoError(t, wellFormed(data))
	})

	t.Run("MissingSource", func(t *testing.T) {
		_, err := BuildProject(testID, "t", []Entry{
			{Source: "present", Target: "a"},
			{Source: "absent", Target: "b"},
		}, WithStat(memStat("present")))

		var me *ManifestError
		require.True(t, errors.As(err, &me))
		assert.Equal(t, "absent", me.Source)
		assert.ErrorIs(t, err, ErrMissingSource)
		assert.ErrorIs(t, err, fs.ErrNotExist)
	})

	t.Run("SourceIsDirectory", func(t *testing.T) {
		dir := t.TempDir()
		_, err := BuildProject(testID, "t", []Entry{{Source: dir, Target: "a"}})
		assert.ErrorIs(t, err, ErrInvalidTarget)
	})

	t.Run("TitleTooLong", func(t *testing.T) {
		_, err := NewBuilder(testID, strings.Repeat("x", 20), WithTitlePolicy(TitleReject, 10)).Build()
		var me *ManifestError
		require.True(t, errors.As(err, &me))
		assert.ErrorIs(t, err, ErrTitleTooLong)
	})

	t.Run("TitleInvalid", func(t *testing.T) {
		for _, title := range []string{"a--b", "bad\x00", "\xff"} {
			_, err := NewBuilder(testID, title).Build()
			assert.ErrorIs(t, err, ErrInvalidTitle, "title %q", title)
		}
	})
}

func TestTitleTruncate(t *testing.T) {
	// "é" is two bytes; a cap of 4 would split the second one
	p, err := NewBuilder(testID, "aéé", WithTitlePolicy(TitleTruncate, 4)).Build()
	require.NoError(t, err)
	assert.Equal(t, "aé", p.Title)
	assert.True(t, p.TitleTruncated)

	p, err = NewBuilder(testID, "short", WithTitlePolicy(TitleTruncate, 10)).Build()
	require.NoError(t, err)
	assert.False(t, p.TitleTruncated)
}

func TestFitTitle(t *testing.T) {
	title, truncated, err := FitTitle("Poison", TitleReject, 0)
	require.NoError(t, err)
	assert.Equal(t, "Poison", title)
	assert.False(t, truncated)

	title, truncated, err = FitTitle(strings.Repeat("ü", 100), TitleTruncate, DefaultMaxTitleBytes)
	require.NoError(t, err)
	assert.True(t, truncated)
	assert.Equal(t, 126, len(title))

	_, _, err = FitTitle(strings.Repeat("x", 128), TitleReject, DefaultMaxTitleBytes)
	assert.ErrorIs(t, err, ErrTitleTooLong)
}

func TestParseTitlePolicy(t *testing.T) {
	p, err := ParseTitlePolicy("Truncate")
	require.NoError(t, err)
	assert.Equal(t, TitleTruncate, p)

	p, err = ParseTitlePolicy("")
	require.NoError(t, err)
	assert.Equal(t, TitleReject, p)
	assert.Equal(t, "reject", p.String())

	_, err = ParseTitlePolicy("ignore")
	assert.Error(t, err)
}

func TestRenderStable(t *testing.T) {
	build := func() []byte {
		p, err := BuildProject(testID, "Example Song", []Entry{
			{Source: "Sc0/param.sfo", Target: "sce_sys/param.sfo"},
			{Source: "Image0/DLC/song.psarc", Target: "DLC/song.psarc", Compress: true, Options: map[string]string{"b": "2", "a": "1"}},
		}, WithStat(memStat("Sc0/param.sfo", "Image0/DLC/song.psarc")))
		require.NoError(t, err)
		data, err := p.Render()
		require.NoError(t, err)
		return data
	}

	first := build()
	assert.Equal(t, first, build())

	text := string(first)
	assert.True(t, strings.HasPrefix(text, Header))
	assert.Contains(t, text, `<psproject fmt="gp4" version="1000">`)
	assert.Contains(t, text, `<!-- Example Song -->`)
	assert.Contains(t, text, `<volume_type>pkg_ps4_ac_data</volume_type>`)
	assert.Contains(t, text, `content_id="`+testID+`"`)
	assert.Contains(t, text, `targ_path="DLC/song.psarc" orig_path="Image0/DLC/song.psarc" pfs_compression="enable" a="1" b="2"`)
	assert.Contains(t, text, `<dir targ_name="sce_sys">`)
	assert.Equal(t, 1, strings.Count(text, `targ_name="DLC"`))

	parsed, err := Parse(first)
	require.NoError(t, err)
	assert.Equal(t, testID, parsed.Volume.Package.ContentID)
	assert.Equal(t, []string{"sce_sys", "DLC"}, parsed.Directories())
	assert.Len(t, parsed.Files.Files, 2)
}

func TestFiles(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "param.sfo")
	require.NoError(t, os.WriteFile(src, []byte("x"), 0644))

	p, err := BuildProject(testID, "t", []Entry{{Source: src, Target: "sce_sys/param.sfo"}})
	require.NoError(t, err)

	path := filepath.Join(dir, "project.gp4")
	require.NoError(t, WriteFile(path, p))

	written, err := os.ReadFile(path)
	require.NoError(t, err)
	rendered, err := p.Render()
	require.NoError(t, err)
	assert.Equal(t, rendered, written)
	assert.NoError(t, wellFormed(written))

	read, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, p.Volume, read.Volume)
	assert.Equal(t, p.Files.Files[0].TargetPath, read.Files.Files[0].TargetPath)
}

// wellFormed reads every token of an XML document.
func wellFormed(data []byte) error {
	d := xml.NewDecoder(bytes.NewReader(data))
	for {
		_, err := d.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

type fakeFile struct{ fs.FileInfo }

func (fakeFile) IsDir() bool { return false }
