package scanner

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/hca-tools/smart-sync/internal/fingerprint"
)

// File is one local regular file matched by the scan. Instances are
// immutable for the duration of a run.
type File struct {
	RelPath     string // slash-separated, relative to the scan root
	AbsPath     string
	Size        int64
	Fingerprint string // hex SHA-256
	ModTime     time.Time
}

// IOError reports a local file that was listed but could not be read.
// It skips that file only, never the whole scan.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("read local file %s: %v", e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Scanner walks a local directory and fingerprints every regular file
// matching the tracked extension.
type Scanner struct {
	root      string
	extension string
	excludes  []string
	workers   int
	logger    *slog.Logger
}

// New creates a Scanner rooted at root. extension filters files by
// suffix (e.g. ".h5ad"); an empty extension matches everything.
func New(root, extension string, excludes []string, workers int, logger *slog.Logger) (*Scanner, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("get absolute path: %w", err)
	}

	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root is not a directory: %s", absRoot)
	}

	if workers <= 0 {
		workers = 8
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Scanner{
		root:      absRoot,
		extension: extension,
		excludes:  excludes,
		workers:   workers,
		logger:    logger,
	}, nil
}

// Root returns the absolute scan root.
func (s *Scanner) Root() string { return s.root }

// Scan lists matching files and computes their fingerprints with a
// bounded worker pool. Files that vanish or become unreadable between
// listing and hashing are returned as IOErrors and excluded from the
// result; they never abort the scan.
func (s *Scanner) Scan(ctx context.Context) ([]File, []*IOError, error) {
	listed, err := s.list()
	if err != nil {
		return nil, nil, err
	}

	files := make([]File, 0, len(listed))
	var skipped []*IOError

	sem := make(chan struct{}, s.workers)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, f := range listed {
		wg.Add(1)
		go func(f File) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			if ctx.Err() != nil {
				mu.Lock()
				skipped = append(skipped, &IOError{Path: f.AbsPath, Err: ctx.Err()})
				mu.Unlock()
				return
			}

			sum, err := fingerprint.File(f.AbsPath)
			if err != nil {
				s.logger.Warn("skipping unreadable file", "path", f.AbsPath, "error", err)
				mu.Lock()
				skipped = append(skipped, &IOError{Path: f.AbsPath, Err: err})
				mu.Unlock()
				return
			}

			f.Fingerprint = sum
			mu.Lock()
			files = append(files, f)
			mu.Unlock()
		}(f)
	}
	wg.Wait()

	sort.Slice(files, func(i, j int) bool {
		return files[i].RelPath < files[j].RelPath
	})

	return files, skipped, nil
}

func (s *Scanner) list() ([]File, error) {
	var files []File

	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		if s.extension != "" && !strings.HasSuffix(d.Name(), s.extension) {
			return nil
		}

		relPath, err := filepath.Rel(s.root, path)
		if err != nil {
			return fmt.Errorf("get relative path: %w", err)
		}
		relPath = filepath.ToSlash(relPath)

		excluded, err := isExcluded(relPath, s.excludes)
		if err != nil {
			return err
		}
		if excluded {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("get file info: %w", err)
		}

		files = append(files, File{
			RelPath: relPath,
			AbsPath: path,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk directory: %w", err)
	}

	return files, nil
}

func isExcluded(path string, patterns []string) (bool, error) {
	for _, pattern := range patterns {
		matched, err := doublestar.Match(pattern, path)
		if err != nil {
			return false, fmt.Errorf("exclude pattern %q: %w", pattern, err)
		}
		if matched {
			return true, nil
		}
	}
	return false, nil
}
