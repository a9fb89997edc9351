// Package executor implements stage 6 of the pipeline: applying (or
// dry-running) a Plan's intents against the filesystem, with
// pre-flight re-verification, live collision re-checking, and a
// small per-item state machine (pending -> verifying -> acting ->
// verifying-dest -> done, with failed/skipped alternates).
package executor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"organizer/internal/core"
	"organizer/internal/model"
)

// MaxCollisionAttempts mirrors the Planner's cap: a destination that is
// still taken after this many live re-versioning attempts is a
// permanent collision failure.
const MaxCollisionAttempts = 999

// ManifestSink persists a Manifest — typically to an artifact store
// using an atomic temp-file-then-rename write, so a crash mid-run never
// leaves a half-written manifest on disk.
type ManifestSink interface {
	Persist(ctx context.Context, m *model.Manifest) error
}

// Options configures an Executor.
type Options struct {
	Apply  bool // false = dry-run: verify and report, mutate nothing
	Clock  core.Clock
	Logger core.Logger
	Sink   ManifestSink // optional; when set, the Manifest is persisted after every item
}

// Executor applies a Plan's PlanItems.
type Executor struct {
	opts Options
}

// New builds an Executor.
func New(opts Options) *Executor {
	if opts.Clock == nil {
		opts.Clock = core.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = core.NewNopLogger()
	}
	return &Executor{opts: opts}
}

// Execute runs every PlanItem in plan, in order, persisting the
// Manifest incrementally via Options.Sink so a crash mid-run still
// leaves an accurate record of everything completed so far.
func (e *Executor) Execute(ctx context.Context, plan *model.Plan) (*model.Manifest, error) {
	mode := "dry-run"
	if e.opts.Apply {
		mode = "apply"
	}

	manifest := &model.Manifest{
		PlanID:  plan.ID,
		Started: e.opts.Clock.Now(),
		Mode:    mode,
		Results: make([]model.ExecutionResult, 0, len(plan.Items)),
	}

	defer func() {
		if r := recover(); r != nil {
			manifest.Finished = e.opts.Clock.Now()
			e.persist(manifest)
			panic(r)
		}
	}()

	for _, item := range plan.Items {
		if ctx.Err() != nil {
			break
		}
		result := e.executeItem(ctx, item)
		manifest.Results = append(manifest.Results, result)
		e.persist(manifest)
	}

	manifest.Finished = e.opts.Clock.Now()
	e.persist(manifest)

	return manifest, nil
}

func (e *Executor) persist(m *model.Manifest) {
	if e.opts.Sink == nil {
		return
	}
	if err := e.opts.Sink.Persist(context.Background(), m); err != nil {
		e.opts.Logger.Error("persisting manifest", "plan_id", m.PlanID, "error", err)
	}
}

// executeItem runs the state machine for one PlanItem. It never panics
// on ordinary filesystem errors — those become a Failed result with a
// Kind — and always returns exactly one ExecutionResult.
func (e *Executor) executeItem(ctx context.Context, item model.PlanItem) model.ExecutionResult {
	result := model.ExecutionResult{
		Item:      item,
		Timestamp: e.opts.Clock.Now(),
		FinalDest: item.Destination,
	}

	if item.Action == model.ActionSkip {
		result.Status = model.StatusSkipped
		return result
	}

	// verifying: source must still exist, unchanged.
	changed, existed, err := e.sourceChanged(item)
	if err != nil {
		return e.failResult(result, core.IoError, err)
	}
	if !existed {
		// Idempotent re-run: if the destination already holds a file with
		// the expected hash, a prior run already completed this move.
		if e.destinationMatches(item) {
			result.Status = model.StatusSkipped
			result.ErrorKind = ""
			return result
		}
		return e.failResult(result, core.IoError, fmt.Errorf("source %s no longer exists", item.Source))
	}
	if changed {
		return e.failResult(result, core.SourceChanged, fmt.Errorf("source %s changed since planning", item.Source))
	}

	if !e.opts.Apply {
		result.Status = model.StatusDryRun
		return result
	}

	// acting: ensure destination directory exists, then re-check the
	// live destination for collisions the ephemeral planning index could
	// not see (created after Plan, or by a concurrent run).
	if item.Destination == "" {
		return e.failResult(result, core.ConfigError, fmt.Errorf("non-skip item has no destination"))
	}
	if err := os.MkdirAll(filepath.Dir(item.Destination), 0755); err != nil {
		return e.failResult(result, core.IoError, fmt.Errorf("creating destination directory: %w", err))
	}

	dest, err := resolveLiveCollision(item.Destination)
	if err != nil {
		return e.failResult(result, core.CollisionError, err)
	}
	result.FinalDest = dest

	if err := applyAction(item.Action, item.Source, dest); err != nil {
		return e.failResult(result, core.IoError, err)
	}

	// verifying-dest: confirm the moved/copied/renamed content matches
	// what was hashed at plan time.
	destHash, err := hashFile(dest)
	if err != nil {
		return e.failResult(result, core.IntegrityError, fmt.Errorf("hashing destination after %s: %w", item.Action, err))
	}
	if item.SourceHash != "" && destHash != item.SourceHash {
		return e.failResult(result, core.IntegrityError, fmt.Errorf("destination hash %s does not match source hash %s", destHash, item.SourceHash))
	}

	result.Status = model.StatusApplied
	return result
}

func (e *Executor) failResult(result model.ExecutionResult, kind core.Kind, err error) model.ExecutionResult {
	e.opts.Logger.Error("execution failed", "source", result.Item.Source, "kind", kind, "error", err)
	result.Status = model.StatusFailed
	result.ErrorKind = string(kind)
	return result
}

// sourceChanged re-stats and re-hashes the source, comparing against
// the size/hash the Planner observed. existed is false if the source
// has vanished entirely since planning.
func (e *Executor) sourceChanged(item model.PlanItem) (changed bool, existed bool, err error) {
	info, err := os.Stat(item.Source)
	if errors.Is(err, os.ErrNotExist) {
		return false, false, nil
	}
	if err != nil {
		return false, true, err
	}
	if info.Size() != item.SourceSize {
		return true, true, nil
	}
	if item.SourceHash == "" {
		return false, true, nil
	}
	hash, err := hashFile(item.Source)
	if err != nil {
		return false, true, err
	}
	return hash != item.SourceHash, true, nil
}

// destinationMatches reports whether item.Destination already holds
// content matching item.SourceHash — the signature of a prior
// successful run of this same item.
func (e *Executor) destinationMatches(item model.PlanItem) bool {
	if item.Destination == "" || item.SourceHash == "" {
		return false
	}
	if _, err := os.Stat(item.Destination); err != nil {
		return false
	}
	hash, err := hashFile(item.Destination)
	if err != nil {
		return false
	}
	return hash == item.SourceHash
}

// resolveLiveCollision re-checks dest against the live filesystem,
// appending "_v2", "_v3", ... if something now occupies it that the
// Planner's ephemeral index could not have seen.
func resolveLiveCollision(dest string) (string, error) {
	if _, err := os.Stat(dest); errors.Is(err, os.ErrNotExist) {
		return dest, nil
	}

	ext := filepath.Ext(dest)
	base := strings.TrimSuffix(dest, ext)
	// Strip any version suffix the Planner may have already applied, so
	// live re-versioning restarts cleanly from _v2.
	if idx := strings.LastIndex(base, "_v"); idx >= 0 {
		if _, err := strconv.Atoi(base[idx+2:]); err == nil {
			base = base[:idx]
		}
	}

	for attempt := 2; attempt <= MaxCollisionAttempts; attempt++ {
		candidate := fmt.Sprintf("%s_v%d%s", base, attempt, ext)
		if _, err := os.Stat(candidate); errors.Is(err, os.ErrNotExist) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("exhausted %d live collision attempts for %s", MaxCollisionAttempts, dest)
}

// applyAction performs the filesystem mutation for action, never
// deleting source except as a verified cross-device move's final step,
// and never overwriting an existing destination (resolveLiveCollision
// has already guaranteed dest is free).
func applyAction(action model.Action, source, dest string) error {
	switch action {
	case model.ActionCopy:
		return copyFile(source, dest)
	case model.ActionMove, model.ActionRename:
		return moveFile(source, dest)
	default:
		return fmt.Errorf("unsupported action %s", action)
	}
}

// moveFile renames source to dest. On EXDEV (crossing filesystems,
// where os.Rename cannot work), it falls back to copy-then-verified-
// unlink: the source is removed only after the copy's hash is
// confirmed to match.
func moveFile(source, dest string) error {
	err := os.Rename(source, dest)
	if err == nil {
		return nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return fmt.Errorf("renaming %s to %s: %w", source, dest, err)
	}

	if err := copyFile(source, dest); err != nil {
		return fmt.Errorf("cross-device move, copy step: %w", err)
	}

	sourceHash, err := hashFile(source)
	if err != nil {
		return fmt.Errorf("cross-device move, verifying source before unlink: %w", err)
	}
	destHash, err := hashFile(dest)
	if err != nil {
		return fmt.Errorf("cross-device move, verifying destination before unlink: %w", err)
	}
	if sourceHash != destHash {
		return fmt.Errorf("cross-device move, copy verification failed: source and destination hashes differ")
	}

	if err := os.Remove(source); err != nil {
		return fmt.Errorf("cross-device move, unlinking verified source: %w", err)
	}
	return nil
}

// copyFile copies source to a temporary file beside dest, then renames
// it into place — dest only ever appears fully written, never partial.
func copyFile(source, dest string) error {
	in, err := os.Open(source)
	if err != nil {
		return fmt.Errorf("opening source %s: %w", source, err)
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".organizer-tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file for %s: %w", dest, err)
	}
	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("copying %s to %s: %w", source, dest, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("syncing %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file into place at %s: %w", dest, err)
	}
	return nil
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
