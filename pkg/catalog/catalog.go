// Package catalog is a read-only lookup table of known DLC, keyed by archive
// name, store application id and content identifier. It is loaded once and
// passed explicitly to the code that needs it.
package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/EchoTools/dlcconv/pkg/archive"
)

// Kind tags catalog payloads inside an archive envelope.
var Kind = archive.Kind{'C', 'T', 'L', 'G'}

// Entry describes one DLC.
type Entry struct {
	AppID     uint64 `json:"app_id,omitempty"`
	Key       string `json:"key"`
	Title     string `json:"title"`
	Artist    string `json:"artist,omitempty"`
	ContentID string `json:"content_id,omitempty"`
}

// document is the on-disk form of a catalog.
type document struct {
	Updated time.Time `json:"updated"`
	Entries []Entry   `json:"entries"`
}

// Catalog is an immutable set of entries. The zero value is an empty catalog.
// A Catalog is safe for concurrent reads.
type Catalog struct {
	updated   time.Time
	entries   []Entry
	byKey     map[string]int
	byAppID   map[uint64]int
	byContent map[string]int
}

// New builds a catalog from entries. Keys are normalized with NormalizeKey;
// entries with an empty key, or a key, app id or content id already used by
// an earlier entry, are rejected.
func New(updated time.Time, entries []Entry) (*Catalog, error) {
	c := &Catalog{
		updated:   updated,
		entries:   make([]Entry, 0, len(entries)),
		byKey:     make(map[string]int, len(entries)),
		byAppID:   make(map[uint64]int, len(entries)),
		byContent: make(map[string]int),
	}

	for i, e := range entries {
		e.Key = NormalizeKey(e.Key)
		if e.Key == "" {
			return nil, fmt.Errorf("entry %d: empty key", i)
		}
		if _, ok := c.byKey[e.Key]; ok {
			return nil, fmt.Errorf("entry %d: duplicate key %q", i, e.Key)
		}

		if _, ok := c.byAppID[e.AppID]; ok && e.AppID != 0 {
			return nil, fmt.Errorf("entry %d: duplicate app id %d", i, e.AppID)
		}
		if _, ok := c.byContent[e.ContentID]; ok && e.ContentID != "" {
			return nil, fmt.Errorf("entry %d: duplicate content id %q", i, e.ContentID)
		}

		idx := len(c.entries)
		c.entries = append(c.entries, e)
		c.byKey[e.Key] = idx
		if e.AppID != 0 {
			c.byAppID[e.AppID] = idx
		}
		if e.ContentID != "" {
			c.byContent[e.ContentID] = idx
		}
	}

	return c, nil
}

// NormalizeKey reduces an archive file name or key to its lookup form:
// base name, no extension, lower case, without a platform suffix.
func NormalizeKey(name string) string {
	key := filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	if key == "." || key == "/" {
		return ""
	}
	key = strings.ToLower(strings.TrimSuffix(key, filepath.Ext(key)))
	for _, suffix := range []string{"_p", "_m"} {
		key = strings.TrimSuffix(key, suffix)
	}
	return key
}

// Len returns the number of entries.
func (c *Catalog) Len() int {
	return len(c.entries)
}

// Updated returns when the catalog was last refreshed.
func (c *Catalog) Updated() time.Time {
	return c.updated
}

// Entries returns a copy of all entries sorted by key.
func (c *Catalog) Entries() []Entry {
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Lookup finds an entry by archive name or key.
func (c *Catalog) Lookup(name string) (Entry, bool) {
	if c == nil {
		return Entry{}, false
	}
	return get(c, c.byKey, NormalizeKey(name))
}

// ByAppID finds an entry by store application id.
func (c *Catalog) ByAppID(id uint64) (Entry, bool) {
	if c == nil {
		return Entry{}, false
	}
	return get(c, c.byAppID, id)
}

// Title returns the title recorded for a content identifier.
func (c *Catalog) Title(contentID string) (string, bool) {
	if c == nil {
		return "", false
	}
	e, ok := get(c, c.byContent, contentID)
	if !ok || e.Title == "" {
		return "", false
	}
	return e.Title, true
}

func get[K comparable](c *Catalog, index map[K]int, key K) (Entry, bool) {
	i, ok := index[key]
	if !ok {
		return Entry{}, false
	}
	return c.entries[i], true
}

// Parse decodes a catalog from JSON or from a compressed envelope.
func Parse(data []byte) (*Catalog, error) {
	if bytes.HasPrefix(data, archive.Magic[:]) {
		payload, err := archive.ReadAll(bytes.NewReader(data), Kind)
		if err != nil {
			return nil, fmt.Errorf("read archive: %w", err)
		}
		data = payload
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	return New(doc.Updated, doc.Entries)
}

// Load reads a catalog file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

// Save writes the catalog to path, compressed when compress is set.
func Save(path string, c *Catalog, compress bool) error {
	data, err := json.MarshalIndent(document{Updated: c.updated, Entries: c.Entries()}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal catalog: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	defer f.Close()

	if compress {
		if err := archive.Encode(f, Kind, data); err != nil {
			return fmt.Errorf("encode archive: %w", err)
		}
	} else if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write catalog: %w", err)
	}

	return f.Close()
}
