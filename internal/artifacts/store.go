// Package artifacts persists plan, manifest, and log output for a run,
// adapted from the teacher's filesystem vault: every write goes through
// a temp-file-then-rename so a crash never leaves a half-written
// artifact, and encryption/mirroring are optional decorations around
// that same atomic write.
package artifacts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"organizer/internal/core"
	"organizer/internal/encryption"
	"organizer/internal/model"
)

// Mirror uploads a finished artifact to a secondary location (e.g. S3)
// after it has been durably written locally. Mirroring is one-way and
// best-effort: a Mirror failure is logged, never fatal to the run.
type Mirror interface {
	Upload(ctx context.Context, key string, r io.Reader, size int64) error
}

// Store writes plan, manifest, and log artifacts under root, in the
// layout spec.md §6 names: plans/plan_<ts>.<ext>, plans/plan_<ts>.md,
// logs/manifest_<ts>.<ext>, logs/run_<ts>.log.
type Store struct {
	root      string
	encryptor encryption.Encryptor
	mirror    Mirror
	clock     core.Clock
	logger    core.Logger
}

// Options configures a Store.
type Options struct {
	Root      string
	Encryptor encryption.Encryptor // optional
	Mirror    Mirror                // optional
	Clock     core.Clock
	Logger    core.Logger
}

// New builds a Store rooted at opts.Root, creating the plans/ and
// logs/ subdirectories.
func New(opts Options) (*Store, error) {
	if opts.Clock == nil {
		opts.Clock = core.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = core.NewNopLogger()
	}
	for _, sub := range []string{"plans", "logs"} {
		if err := os.MkdirAll(filepath.Join(opts.Root, sub), 0755); err != nil {
			return nil, fmt.Errorf("creating %s directory: %w", sub, err)
		}
	}
	return &Store{
		root:      opts.Root,
		encryptor: opts.Encryptor,
		mirror:    opts.Mirror,
		clock:     opts.Clock,
		logger:    opts.Logger,
	}, nil
}

// SavePlan writes a Plan's machine-readable form (ext decided by the
// caller's marshal function, e.g. "json" or "yaml") and its
// human-readable Markdown companion.
func (s *Store) SavePlan(ctx context.Context, plan *model.Plan, ext string, machineData []byte, markdown string) error {
	ts := timestamp(s.clock.Now())

	if err := s.writeArtifact(ctx, filepath.Join("plans", fmt.Sprintf("plan_%s.%s", ts, ext)), machineData); err != nil {
		return fmt.Errorf("saving machine plan: %w", err)
	}
	if err := s.writeArtifact(ctx, filepath.Join("plans", fmt.Sprintf("plan_%s.md", ts)), []byte(markdown)); err != nil {
		return fmt.Errorf("saving plan markdown: %w", err)
	}
	return nil
}

// Persist implements executor.ManifestSink: it writes the manifest as
// JSON under logs/manifest_<ts>.json, re-writing the same file on every
// call within one run (the timestamp is fixed at the Manifest's Started
// time so incremental persists during Execute overwrite, not
// accumulate).
func (s *Store) Persist(ctx context.Context, m *model.Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	name := filepath.Join("logs", fmt.Sprintf("manifest_%s.json", timestamp(m.Started)))
	return s.writeArtifact(ctx, name, data)
}

// AppendLog appends a line to the run's log file, created on first
// call. Unlike plan/manifest artifacts, the log is opened for append
// and is not rewritten atomically — it is a running record, not a
// point-in-time snapshot.
func (s *Store) AppendLog(runStarted time.Time, line string) error {
	path := filepath.Join(s.root, "logs", fmt.Sprintf("run_%s.log", timestamp(runStarted)))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("writing log line: %w", err)
	}
	return nil
}

// writeArtifact writes data to relPath (under root) atomically via a
// temp file in the same directory followed by rename, optionally
// encrypting, then best-effort mirrors the final bytes.
func (s *Store) writeArtifact(ctx context.Context, relPath string, data []byte) error {
	destPath := filepath.Join(s.root, relPath)

	payload := data
	if s.encryptor != nil && s.encryptor.IsConfigured() {
		var buf bytes.Buffer
		if err := s.encryptor.Encrypt(bytes.NewReader(data), &buf); err != nil {
			return fmt.Errorf("encrypting %s: %w", relPath, err)
		}
		payload = buf.Bytes()
	}

	dir := filepath.Dir(destPath)
	tmp, err := os.CreateTemp(dir, ".organizer-tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", relPath, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing %s: %w", relPath, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file for %s: %w", relPath, err)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("renaming into place %s: %w", relPath, err)
	}
	success = true

	if s.mirror != nil {
		if err := s.mirror.Upload(ctx, relPath, bytes.NewReader(payload), int64(len(payload))); err != nil {
			s.logger.Warn("mirroring artifact failed", "path", relPath, "error", err)
		}
	}

	return nil
}

func timestamp(t time.Time) string {
	return t.UTC().Format("20060102T150405Z")
}
