package convert

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ArchiveExt is the extension of DLC archives.
const ArchiveExt = ".psarc"

// ScanArchives walks inputDir and returns the archives below it in lexical
// order. A path naming a single archive is returned as is.
func ScanArchives(inputDir string) ([]string, error) {
	info, err := os.Stat(inputDir)
	if err != nil {
		return nil, fmt.Errorf("stat input: %w", err)
	}
	if !info.IsDir() {
		return []string{inputDir}, nil
	}

	var archives []string
	err = filepath.Walk(inputDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if !strings.EqualFold(filepath.Ext(path), ArchiveExt) {
			return nil
		}
		archives = append(archives, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", inputDir, err)
	}

	sort.Strings(archives)
	return archives, nil
}

// Jobs creates one job per archive, all writing to outputDir.
func Jobs(archives []string, outputDir string) []Job {
	jobs := make([]Job, len(archives))
	for i, a := range archives {
		jobs[i] = Job{Archive: a, OutputDir: outputDir}
	}
	return jobs
}
