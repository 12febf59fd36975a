package selector

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/osvaldoandrade/irisenroll/pkg/domain"
)

// DefaultPattern selects first-session images, e.g. 001_1_2.jpg.
const DefaultPattern = "*_1_*.jpg"

var (
	ErrSourceDirMissing = errors.New("source directory does not exist")
	ErrNotDirectory     = errors.New("source path is not a directory")
)

// CheckDir returns a configuration error when dir is unusable as a source.
func CheckDir(dir string) error {
	fi, err := os.Stat(dir)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrSourceDirMissing, dir)
	}
	if err != nil {
		return fmt.Errorf("stat source directory %s: %w", dir, err)
	}
	if !fi.IsDir() {
		return fmt.Errorf("%w: %s", ErrNotDirectory, dir)
	}
	return nil
}

// Select returns the regular files directly inside dir whose name matches
// pattern. Subdirectories are not descended into.
func Select(dir, pattern string) ([]domain.SourceFile, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("pattern %q: %w", pattern, err)
	}
	if err := CheckDir(dir); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read source directory %s: %w", dir, err)
	}

	files := make([]domain.SourceFile, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ok, _ := filepath.Match(pattern, e.Name())
		if !ok {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if e.Type()&os.ModeSymlink != 0 {
			fi, err := os.Stat(path)
			if err != nil || fi.IsDir() {
				continue
			}
		}
		files = append(files, domain.SourceFile{Path: path})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}
