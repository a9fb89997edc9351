// Package scanner implements stage 1 of the pipeline: enumerating
// candidate files under one or more roots, filtering them, and hashing
// their contents.
package scanner

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"organizer/internal/core"
	"organizer/internal/fs"
	"organizer/internal/model"
)

// QueueCapacity is the bounded-queue size the Scanner emits into, per the
// pipeline's concurrency model.
const QueueCapacity = 256

// Options configures a scan run.
type Options struct {
	Roots   []string
	MinSize int64 // defaults to DefaultMinSize when zero
	// ExtraIgnore are additional ignore patterns merged with each root's
	// .organizeignore file, applied in the same basename/path glob style.
	ExtraIgnore []string
	Logger      core.Logger
}

// Result is one item produced by Scan: either a FileRecord or a
// non-fatal per-file/per-directory failure that was skipped.
type Result struct {
	Record *model.FileRecord
	Path   string // set on skip/error results
	Err    error
}

// Scanner walks roots depth-first, following no symlinks, filtering by
// exclusion lists and minimum size, and hashing accepted files.
type Scanner struct {
	opts Options
}

// New creates a Scanner with the given options. MinSize defaults to
// DefaultMinSize when unset.
func New(opts Options) *Scanner {
	if opts.MinSize <= 0 {
		opts.MinSize = DefaultMinSize
	}
	if opts.Logger == nil {
		opts.Logger = core.NewNopLogger()
	}
	return &Scanner{opts: opts}
}

// Scan walks all configured roots and returns a channel of Results. The
// channel is closed when the walk completes or ctx is cancelled. The
// sequence is lazy, finite, and non-restartable, ordered by discovery
// order within each root (roots are walked in the order given).
func (s *Scanner) Scan(ctx context.Context) <-chan Result {
	out := make(chan Result, QueueCapacity)

	go func() {
		defer close(out)
		for _, root := range s.opts.Roots {
			if ctx.Err() != nil {
				return
			}
			s.walkRoot(ctx, root, out)
		}
	}()

	return out
}

func (s *Scanner) walkRoot(ctx context.Context, root string, out chan<- Result) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		emit(ctx, out, Result{Path: root, Err: core.Wrap(core.IoError, fmt.Errorf("resolving root: %w", err))})
		return
	}

	patterns, err := fs.ParseIgnoreFile(filepath.Join(absRoot, fs.DefaultIgnorePatterns[0]))
	if err != nil {
		s.opts.Logger.Warn("reading ignore file", "root", absRoot, "error", err)
	}
	patterns = append(patterns, fs.DefaultIgnorePatterns...)
	patterns = append(patterns, s.opts.ExtraIgnore...)
	ignore := fs.NewIgnoreMatcher(patterns)

	s.walkDir(ctx, absRoot, absRoot, ignore, out)
}

// walkDir is a depth-first, non-symlink-following directory walk. dirPath
// is the directory currently being visited; root is the scan root used to
// compute relative paths for ignore matching.
func (s *Scanner) walkDir(ctx context.Context, root, dirPath string, ignore *fs.IgnoreMatcher, out chan<- Result) {
	if ctx.Err() != nil {
		return
	}

	entries, err := os.ReadDir(dirPath)
	if err != nil {
		emit(ctx, out, Result{Path: dirPath, Err: core.Wrap(core.IoError, fmt.Errorf("reading directory %s: %w", dirPath, err))})
		return
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			return
		}

		name := entry.Name()
		fullPath := filepath.Join(dirPath, name)

		info, err := entry.Info()
		if err != nil {
			emit(ctx, out, Result{Path: fullPath, Err: core.Wrap(core.IoError, fmt.Errorf("stat %s: %w", fullPath, err))})
			continue
		}
		if info.Mode()&os.ModeSymlink != 0 {
			continue // never follow symlinks
		}

		if entry.IsDir() {
			if ExcludedDirs[name] {
				continue
			}
			s.walkDir(ctx, root, fullPath, ignore, out)
			continue
		}

		if !info.Mode().IsRegular() {
			continue
		}

		relPath, err := filepath.Rel(root, fullPath)
		if err != nil {
			relPath = name
		}
		if ignore.Match(relPath) {
			continue
		}

		record, err := s.acceptFile(fullPath, info)
		if err != nil {
			emit(ctx, out, Result{Path: fullPath, Err: err})
			continue
		}
		if record == nil {
			continue // filtered by extension/size
		}
		emit(ctx, out, Result{Record: record})
	}
}

// acceptFile applies extension/size filters and, if accepted, reads the
// file once to compute its SHA-256 and build a FileRecord. The Excerpt
// field is left empty — that is the Extractor's job.
func (s *Scanner) acceptFile(path string, info os.FileInfo) (*model.FileRecord, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	if ExcludedExtensions[ext] {
		return nil, nil
	}
	if info.Size() < s.opts.MinSize {
		return nil, nil
	}

	hash, err := hashFile(path)
	if err != nil {
		return nil, core.Wrap(core.IoError, fmt.Errorf("hashing %s: %w", path, err))
	}

	mimeType := mime.TypeByExtension("." + ext)

	return &model.FileRecord{
		Path:      path,
		Size:      info.Size(),
		ModTime:   info.ModTime(),
		CreatedAt: birthTime(info),
		Extension: ext,
		MIMEType:  mimeType,
		SHA256:    hash,
	}, nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func emit(ctx context.Context, out chan<- Result, r Result) {
	select {
	case out <- r:
	case <-ctx.Done():
	}
}
