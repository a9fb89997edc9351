// Package planner implements stage 5 of the pipeline: turning
// Classifications into a Plan of filesystem intents, with deterministic
// destination paths, filename sanitization, and collision resolution.
package planner

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"organizer/internal/core"
	"organizer/internal/index"
	"organizer/internal/model"
	"organizer/internal/rules"
)

// MaxCollisionAttempts bounds deterministic versioning before a
// destination is considered permanently unresolvable.
const MaxCollisionAttempts = 999

// ClassifiedRecord pairs a scanned/extracted file with the
// Classification produced by the Rule engine or the LLM classifier.
type ClassifiedRecord struct {
	Record         *model.FileRecord
	Classification model.Classification
}

// Options configures a Planner.
type Options struct {
	BaseRoot      string
	CopyMode      bool // force COPY instead of MOVE for every non-skip item
	MinConfidence int  // apply threshold; below this, non-inbox categories route to inbox
	Index         *index.Index
	Clock         core.Clock
	IDGen         core.IDGenerator
	Logger        core.Logger
}

// Planner computes destinations and actions for classified records.
type Planner struct {
	opts Options
}

// New builds a Planner. opts.Index must already be open; the caller
// owns its lifecycle (open before planning, close after).
func New(opts Options) *Planner {
	if opts.Clock == nil {
		opts.Clock = core.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = core.NewNopLogger()
	}
	return &Planner{opts: opts}
}

// Build produces a Plan from classified records, in stable
// source-path lex order — the order that governs deterministic
// collision versioning.
func (p *Planner) Build(ctx context.Context, items []ClassifiedRecord) (*model.Plan, error) {
	sorted := make([]ClassifiedRecord, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Record.Path < sorted[j].Record.Path
	})

	plan := &model.Plan{
		BaseRoot: p.opts.BaseRoot,
		CopyMode: p.opts.CopyMode,
		Items:    make([]model.PlanItem, 0, len(sorted)),
	}
	if p.opts.IDGen != nil {
		plan.ID = p.opts.IDGen.New()
	}
	plan.Generated = p.opts.Clock.Now()

	for _, cr := range sorted {
		item, err := p.buildItem(ctx, cr)
		if err != nil {
			return nil, fmt.Errorf("planning %s: %w", cr.Record.Path, err)
		}
		plan.Items = append(plan.Items, item)
		countAction(&plan.Counts, item.Action)
	}

	return plan, nil
}

func countAction(counts *model.PlanCounts, action model.Action) {
	switch action {
	case model.ActionMove:
		counts.Move++
	case model.ActionCopy:
		counts.Copy++
	case model.ActionRename:
		counts.Rename++
	case model.ActionSkip:
		counts.Skip++
	}
}

func (p *Planner) buildItem(ctx context.Context, cr ClassifiedRecord) (model.PlanItem, error) {
	record := cr.Record
	cls := cr.Classification

	category := cls.Category
	reason := string(cls.Source)
	belowThreshold := cls.Confidence < p.opts.MinConfidence
	skipLowConfidenceInbox := false
	switch {
	case belowThreshold && category == model.CategoryInbox:
		skipLowConfidenceInbox = true
		reason = fmt.Sprintf("confidence %d below threshold %d, already inbox, skipped", cls.Confidence, p.opts.MinConfidence)
	case belowThreshold:
		category = model.CategoryInbox
		reason = fmt.Sprintf("confidence %d below threshold %d, routed to inbox", cls.Confidence, p.opts.MinConfidence)
	}

	destDir := destinationDir(p.opts.BaseRoot, category, cls.Subcategory, cls.Year)
	baseName := sanitizeFilename(baseNameFor(cls, record))
	ext := strings.ToLower(filepath.Ext(record.Path))

	dest, err := p.resolveCollision(ctx, destDir, baseName, ext)
	if err != nil {
		return model.PlanItem{}, err
	}

	action := p.selectAction(record.Path, dest, skipLowConfidenceInbox)
	if reason == string(cls.Source) {
		reason = fmt.Sprintf("classified by %s", cls.Source)
	}
	if action == model.ActionSkip {
		dest = ""
	}

	return model.PlanItem{
		Action:      action,
		Source:      record.Path,
		Destination: dest,
		Reason:      reason,
		Confidence:  cls.Confidence,
		RuleID:      ruleID(cls.Source),
		LLMUsed:     isLLMSource(cls.Source),
		SourceSize:  record.Size,
		SourceHash:  record.SHA256,
	}, nil
}

func baseNameFor(cls model.Classification, record *model.FileRecord) string {
	if cls.SuggestedName != "" {
		return cls.SuggestedName
	}
	return strings.TrimSuffix(filepath.Base(record.Path), filepath.Ext(record.Path))
}

// destinationDir builds <base>/<Category>/<Subcategory>/<Year>/, omitting
// the subcategory segment when empty and rendering an unknown year as
// "0000" rather than omitting the segment, so directory depth stays
// predictable.
func destinationDir(base string, category model.Category, subcategory string, year int) string {
	parts := []string{base, string(category)}
	if subcategory != "" {
		parts = append(parts, subcategory)
	}
	yearDir := "0000"
	if year != 0 {
		yearDir = fmt.Sprintf("%04d", year)
	}
	parts = append(parts, yearDir)
	return filepath.Join(parts...)
}

// resolveCollision reserves a destination path in the index, appending
// "_v2", "_v3", ... on conflict. The first versioned suffix is always
// "_v2" — an unsuffixed name is the implicit "_v1".
func (p *Planner) resolveCollision(ctx context.Context, destDir, baseName, ext string) (string, error) {
	candidate := filepath.Join(destDir, baseName+ext)

	for attempt := 1; attempt <= MaxCollisionAttempts; attempt++ {
		name := baseName
		if attempt > 1 {
			name = fmt.Sprintf("%s_v%d", baseName, attempt)
		}
		candidate = filepath.Join(destDir, name+ext)

		if p.opts.Index == nil {
			return candidate, nil
		}

		err := p.opts.Index.Reserve(ctx, candidate)
		if err == nil {
			return candidate, nil
		}
		if err != index.ErrAlreadyClaimed {
			return "", fmt.Errorf("reserving destination: %w", err)
		}
	}

	return "", core.Wrap(core.CollisionError, fmt.Errorf("exhausted %d collision attempts for %s", MaxCollisionAttempts, candidate))
}

// selectAction chooses SKIP, RENAME, MOVE, or COPY. SKIP applies when
// forceSkip is set (a low-confidence file already in the inbox) or
// when the computed destination equals the source; RENAME applies
// when the destination stays within the same directory as the source
// (a pure name change); otherwise MOVE, or COPY when CopyMode is set.
func (p *Planner) selectAction(source, dest string, forceSkip bool) model.Action {
	if forceSkip || source == dest {
		return model.ActionSkip
	}
	if filepath.Dir(source) == filepath.Dir(dest) {
		return model.ActionRename
	}
	if p.opts.CopyMode {
		return model.ActionCopy
	}
	return model.ActionMove
}

func ruleID(source model.ClassificationSource) string {
	s := string(source)
	if strings.HasPrefix(s, model.SourceRulePrefix) {
		return strings.TrimPrefix(s, model.SourceRulePrefix)
	}
	return ""
}

func isLLMSource(source model.ClassificationSource) bool {
	return source == model.SourceLLM || source == model.SourceFallback
}

// Stats exposes the rule engine's per-run statistics alongside a built
// Plan, for the human-readable report. Kept separate from model.Plan
// since rule stats are a Rule-engine concern, not a planning concern.
type Stats = rules.Stats
