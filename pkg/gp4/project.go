// Package gp4 builds GP4 project documents: the declarative file list handed
// to the external package builder.
package gp4

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"os"
	"path"
)

// Header is written before the root element.
const Header = `<?xml version="1.0" encoding="utf-8" standalone="yes"?>` + "\n"

const (
	// ProjectFormat is the fmt attribute of the root element.
	ProjectFormat = "gp4"
	// ProjectVersion is the version attribute of the root element.
	ProjectVersion = "1000"
	// VolumeTypeAdditionalContent packages additional content with data.
	VolumeTypeAdditionalContent = "pkg_ps4_ac_data"
	// DefaultVolumeID is the volume label used when none is configured.
	DefaultVolumeID = "PS4VOLUME"
	// DefaultPasscode is the all-zero package passcode.
	DefaultPasscode = "00000000000000000000000000000000"
	// CompressionEnabled is the pfs_compression value of compressed files.
	CompressionEnabled = "enable"
)

// Project is the root of a GP4 document.
type Project struct {
	XMLName xml.Name `xml:"psproject"`
	Format  string   `xml:"fmt,attr"`
	Version string   `xml:"version,attr"`
	Comment string   `xml:",comment"`
	Volume  Volume   `xml:"volume"`
	Files   Files    `xml:"files"`
	RootDir RootDir  `xml:"rootdir"`

	// Title is the resolved title. It is rendered in Comment.
	Title string `xml:"-"`
	// TitleTruncated is set when the title was cut to fit the cap.
	TitleTruncated bool `xml:"-"`
}

// Volume holds the volume and package metadata.
type Volume struct {
	Type      string  `xml:"volume_type"`
	ID        string  `xml:"volume_id"`
	Timestamp string  `xml:"volume_ts"`
	Package   Package `xml:"package"`
}

// Package identifies the package being built.
type Package struct {
	ContentID      string `xml:"content_id,attr"`
	Passcode       string `xml:"passcode,attr"`
	EntitlementKey string `xml:"entitlement_key,attr,omitempty"`
	CreationDate   string `xml:"c_date,attr,omitempty"`
}

// Files is the ordered file list of one image.
type Files struct {
	ImageNo int    `xml:"img_no,attr"`
	Files   []File `xml:"file"`
}

// File maps a source path on the host to a target path in the image.
type File struct {
	TargetPath   string     `xml:"targ_path,attr"`
	OriginalPath string     `xml:"orig_path,attr"`
	Compression  string     `xml:"pfs_compression,attr,omitempty"`
	Extra        []xml.Attr `xml:",any,attr"`
}

// RootDir declares the directory tree of the image.
type RootDir struct {
	Dirs []Dir `xml:"dir"`
}

// Dir is one directory declaration. Children are nested.
type Dir struct {
	TargetName string `xml:"targ_name,attr"`
	Dirs       []Dir  `xml:"dir"`
}

// Directories returns the full path of every declared directory, parents
// first, in document order.
func (p *Project) Directories() []string {
	var out []string
	var walk func(prefix string, dirs []Dir)
	walk = func(prefix string, dirs []Dir) {
		for _, d := range dirs {
			full := path.Join(prefix, d.TargetName)
			out = append(out, full)
			walk(full, d.Dirs)
		}
	}
	walk("", p.RootDir.Dirs)
	return out
}

// Render returns the XML document. Identical projects render identically.
func (p *Project) Render() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(Header)

	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(p); err != nil {
		return nil, fmt.Errorf("encode project: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// Parse decodes a GP4 document.
func Parse(data []byte) (*Project, error) {
	p := &Project{}
	if err := xml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("parse project: %w", err)
	}
	return p, nil
}

// WriteFile renders the project and writes it to path.
func WriteFile(path string, p *Project) error {
	data, err := p.Render()
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write project: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("close file: %w", err)
	}
	return nil
}

// ReadFile reads and parses a GP4 document.
func ReadFile(path string) (*Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read project: %w", err)
	}
	return Parse(data)
}
