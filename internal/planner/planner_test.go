package planner

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"organizer/internal/core"
	"organizer/internal/index"
	"organizer/internal/model"
)

func newTestIndex(t *testing.T) *index.Index {
	t.Helper()
	idx, err := index.Open()
	if err != nil {
		t.Fatalf("index.Open() error = %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

func cr(path string, cls model.Classification) ClassifiedRecord {
	return ClassifiedRecord{
		Record:         &model.FileRecord{Path: path, Size: 10, SHA256: "abc"},
		Classification: cls,
	}
}

func TestPlanner_BuildsDestinationPath(t *testing.T) {
	t.Parallel()
	p := New(Options{
		BaseRoot: "/dest",
		Index:    newTestIndex(t),
		Clock:    core.FixedClock{At: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
	})

	items := []ClassifiedRecord{cr("/in/invoice.pdf", model.Classification{
		Category: model.CategoryFinancas, Subcategory: "Notas", Year: 2024,
		SuggestedName: "2024-01-01__02_Financas__invoice", Confidence: 90, Source: model.RuleSource("r1"),
	})}

	plan, err := p.Build(context.Background(), items)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	want := filepath.Join("/dest", "02_Financas", "Notas", "2024", "2024-01-01__02_Financas__invoice.pdf")
	if plan.Items[0].Destination != want {
		t.Errorf("Destination = %s, want %s", plan.Items[0].Destination, want)
	}
	if plan.Items[0].RuleID != "r1" {
		t.Errorf("RuleID = %s, want r1", plan.Items[0].RuleID)
	}
}

func TestPlanner_LowConfidenceRoutesToInbox(t *testing.T) {
	t.Parallel()
	p := New(Options{BaseRoot: "/dest", MinConfidence: 85, Index: newTestIndex(t)})

	items := []ClassifiedRecord{cr("/in/mystery.bin", model.Classification{
		Category: model.CategoryEstudos, SuggestedName: "2024-00-00__03_Estudos__mystery",
		Confidence: 40, Source: model.SourceLLM,
	})}

	plan, err := p.Build(context.Background(), items)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if got := plan.Items[0].Destination; filepath.Dir(filepath.Dir(got)) != filepath.Join("/dest", "90_Inbox_Organizar") {
		t.Errorf("Destination = %s, expected under inbox category", got)
	}
}

func TestPlanner_LowConfidenceAlreadyInboxIsSkipped(t *testing.T) {
	t.Parallel()
	p := New(Options{BaseRoot: "/dest", MinConfidence: 85, Index: newTestIndex(t)})

	items := []ClassifiedRecord{cr("/in/mystery.bin", model.Classification{
		Category: model.CategoryInbox, SuggestedName: "2024-00-00__90_Inbox_Organizar__mystery",
		Confidence: 40, Source: model.SourceLLM,
	})}

	plan, err := p.Build(context.Background(), items)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if plan.Items[0].Action != model.ActionSkip {
		t.Errorf("Action = %s, want %s", plan.Items[0].Action, model.ActionSkip)
	}
}

func TestPlanner_IdenticalSourceAndDestinationIsSkipped(t *testing.T) {
	t.Parallel()
	p := New(Options{BaseRoot: "/dest", Index: newTestIndex(t)})

	source := filepath.Join("/dest", "05_Pessoal", "2024", "2024-01-01__05_Pessoal__photo.jpg")
	items := []ClassifiedRecord{cr(source, model.Classification{
		Category: model.CategoryPessoal, Year: 2024, SuggestedName: "2024-01-01__05_Pessoal__photo", Confidence: 95, Source: model.SourceLLM,
	})}

	plan, err := p.Build(context.Background(), items)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if plan.Items[0].Action != model.ActionSkip {
		t.Errorf("Action = %s, want %s", plan.Items[0].Action, model.ActionSkip)
	}
	if plan.Items[0].Destination != "" {
		t.Errorf("Destination = %s, want empty for a skipped item", plan.Items[0].Destination)
	}
}

func TestPlanner_CollisionAppendsVersionSuffix(t *testing.T) {
	t.Parallel()
	idx := newTestIndex(t)
	p := New(Options{BaseRoot: "/dest", Index: idx})

	cls := model.Classification{
		Category: model.CategoryPessoal, SuggestedName: "2024-01-01__05_Pessoal__photo", Confidence: 95, Source: model.SourceLLM,
	}
	items := []ClassifiedRecord{
		cr("/in/a/photo.jpg", cls),
		cr("/in/b/photo.jpg", cls),
	}

	plan, err := p.Build(context.Background(), items)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if plan.Items[0].Destination == plan.Items[1].Destination {
		t.Fatal("expected distinct destinations for colliding names")
	}
	if filepath.Base(plan.Items[1].Destination) != "2024-01-01__05_Pessoal__photo_v2.jpg" {
		t.Errorf("second item's destination = %s, want _v2 suffix", plan.Items[1].Destination)
	}
}

func TestPlanner_SeededIndexCausesCollisionOnFirstAttempt(t *testing.T) {
	t.Parallel()
	idx := newTestIndex(t)
	existing := filepath.Join("/dest", "05_Pessoal", "2024", "2024-01-01__05_Pessoal__photo.jpg")
	if err := idx.Seed(context.Background(), []string{existing}); err != nil {
		t.Fatalf("Seed() error = %v", err)
	}

	p := New(Options{BaseRoot: "/dest", Index: idx})
	items := []ClassifiedRecord{cr("/in/photo.jpg", model.Classification{
		Category: model.CategoryPessoal, Year: 2024, SuggestedName: "2024-01-01__05_Pessoal__photo", Confidence: 95, Source: model.SourceLLM,
	})}

	plan, err := p.Build(context.Background(), items)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if plan.Items[0].Destination == existing {
		t.Errorf("expected a versioned destination distinct from pre-existing %s", existing)
	}
}

func TestPlanner_RenameWhenDestinationStaysInSameDirectory(t *testing.T) {
	t.Parallel()
	p := New(Options{BaseRoot: "/in", Index: newTestIndex(t)})

	items := []ClassifiedRecord{cr("/in/01_Trabalho/0000/old.txt", model.Classification{
		Category: model.CategoryTrabalho, SuggestedName: "2024-00-00__01_Trabalho__old", Confidence: 95, Source: model.SourceLLM,
	})}

	plan, err := p.Build(context.Background(), items)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if plan.Items[0].Action != model.ActionRename {
		t.Errorf("Action = %s, want %s", plan.Items[0].Action, model.ActionRename)
	}
}

func TestPlanner_CopyModeForcesCopyAction(t *testing.T) {
	t.Parallel()
	p := New(Options{BaseRoot: "/dest", CopyMode: true, Index: newTestIndex(t)})

	items := []ClassifiedRecord{cr("/in/report.docx", model.Classification{
		Category: model.CategoryTrabalho, SuggestedName: "2024-01-01__01_Trabalho__report", Confidence: 95, Source: model.SourceLLM,
	})}

	plan, err := p.Build(context.Background(), items)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if plan.Items[0].Action != model.ActionCopy {
		t.Errorf("Action = %s, want %s", plan.Items[0].Action, model.ActionCopy)
	}
}

func TestPlanner_DeterministicOrderBySourcePath(t *testing.T) {
	t.Parallel()
	p := New(Options{BaseRoot: "/dest", Index: newTestIndex(t)})
	cls := model.Classification{Category: model.CategoryPessoal, SuggestedName: "x", Confidence: 90, Source: model.SourceLLM}

	items := []ClassifiedRecord{
		cr("/in/zebra.txt", cls),
		cr("/in/alpha.txt", cls),
	}

	plan, err := p.Build(context.Background(), items)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if plan.Items[0].Source != "/in/alpha.txt" || plan.Items[1].Source != "/in/zebra.txt" {
		t.Errorf("items not in stable source-path order: %s, %s", plan.Items[0].Source, plan.Items[1].Source)
	}
}
