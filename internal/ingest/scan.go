package ingest

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shikya/call-record-ingestor/internal/recording"
)

// ScanOptions restrict the files returned by Discover.
type ScanOptions struct {
	// Directories (and everything beneath them) to ignore.
	Exclude []string

	// Files modified more recently than this are held back.
	MinModTimeAge time.Duration

	// Paths which have already been handled, and should not be returned again.
	Known map[string]bool
}

// Discover walks the file system, starting at the directory provided,
// and returns the paths of every regular file (including any inside
// of nested directories) whose extension is '.aac', compared case
// insensitively. Paths are returned in lexical walk order.
//
// Failure to read the root itself is returned as an error; failure to
// read a nested directory is logged and that directory skipped.
func Discover(root string, opts ScanOptions) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("source root '%s' could not be accessed: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source root '%s' is not a directory", root)
	}

	excluded := make(map[string]bool, len(opts.Exclude))
	for _, dir := range opts.Exclude {
		if abs, err := filepath.Abs(dir); err == nil {
			excluded[abs] = true
		}
	}

	found := make([]string, 0)
	err = filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}

			log.Warnf("Skipping unreadable path %s: %s\n", path, err)
			if entry != nil && entry.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		if entry.IsDir() {
			if abs, err := filepath.Abs(path); err == nil && excluded[abs] && path != root {
				log.Verbosef("Skipping excluded directory %s\n", path)
				return fs.SkipDir
			}
			return nil
		}

		if !strings.EqualFold(filepath.Ext(path), recording.Extension) || opts.Known[path] {
			return nil
		}

		fileInfo, err := regularFileInfo(path, entry)
		if err != nil {
			log.Warnf("Skipping %s: %s\n", path, err)
			return nil
		} else if fileInfo == nil {
			return nil
		}

		if opts.MinModTimeAge > 0 {
			if age := time.Since(fileInfo.ModTime()); age < opts.MinModTimeAge {
				log.Debugf("Holding %s as it was modified %s ago\n", path, age.Round(time.Second))
				return nil
			}
		}

		found = append(found, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk file system: %w", err)
	}

	return found, nil
}

// regularFileInfo returns the info for the entry if it (or the file it links
// to) is a regular file. Nil info and error indicates the entry should be ignored.
func regularFileInfo(path string, entry fs.DirEntry) (fs.FileInfo, error) {
	if entry.Type()&fs.ModeSymlink != 0 {
		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		if !info.Mode().IsRegular() {
			return nil, nil
		}
		return info, nil
	}

	if !entry.Type().IsRegular() {
		return nil, nil
	}

	return entry.Info()
}
