package rules

import (
	"testing"
	"time"

	"organizer/internal/model"
)

func TestParse(t *testing.T) {
	t.Parallel()
	data := []byte(`
rules:
  - id: images
    pattern: "*.{jpg,jpeg,png}"
    category: "05_Pessoal"
    subcategory: "Midia/Imagens"
    confidence: 95
  - id: finance_invoices
    pattern: "*.pdf"
    keywords: ["fatura", "invoice"]
    category: "02_Financas"
    subcategory: "Notas_Fiscais"
    confidence: 90
`)
	parsed, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(parsed) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(parsed))
	}
	if parsed[0].ID != "images" || parsed[1].ID != "finance_invoices" {
		t.Errorf("unexpected rule order: %+v", parsed)
	}
}

func TestParse_RejectsUnknownCategory(t *testing.T) {
	t.Parallel()
	data := []byte(`
rules:
  - id: bogus
    pattern: "*.txt"
    category: "99_Nope"
    confidence: 90
`)
	if _, err := Parse(data); err == nil {
		t.Fatal("expected error for unknown category")
	}
}

func TestEngine_FirstMatchWins(t *testing.T) {
	t.Parallel()
	ruleSet := []Rule{
		{ID: "a", Pattern: "*.txt", Category: model.CategoryPessoal, Confidence: 80},
		{ID: "b", Pattern: "*.txt", Category: model.CategoryEstudos, Confidence: 95},
	}
	e := New(ruleSet, DefaultMinRuleConfidence)

	record := &model.FileRecord{Path: "/in/notes.txt", Extension: "txt", ModTime: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	got, ok := e.Classify(record)
	if !ok {
		t.Fatal("expected a match")
	}
	if got.Category != model.CategoryPessoal {
		t.Errorf("Category = %s, want first rule's category", got.Category)
	}
}

func TestEngine_NoMatchReturnsFalse(t *testing.T) {
	t.Parallel()
	e := New([]Rule{{ID: "a", Pattern: "*.jpg", Category: model.CategoryPessoal, Confidence: 90}}, DefaultMinRuleConfidence)

	record := &model.FileRecord{Path: "/in/notes.txt", Extension: "txt"}
	_, ok := e.Classify(record)
	if ok {
		t.Error("expected no match for mismatched extension")
	}
	if e.Stats().TotalUnmatched != 1 {
		t.Errorf("TotalUnmatched = %d, want 1", e.Stats().TotalUnmatched)
	}
}

func TestEngine_BraceExpansionPattern(t *testing.T) {
	t.Parallel()
	e := New([]Rule{{ID: "img", Pattern: "*.{jpg,jpeg,png}", Category: model.CategoryPessoal, Confidence: 95}}, DefaultMinRuleConfidence)

	for _, ext := range []string{"jpg", "JPEG", "png"} {
		record := &model.FileRecord{Path: "/in/photo." + ext, Extension: ext}
		if _, ok := e.Classify(record); !ok {
			t.Errorf("expected match for extension %s", ext)
		}
	}
}

func TestEngine_KeywordMustHitWhenPresent(t *testing.T) {
	t.Parallel()
	rule := Rule{ID: "finance_invoices", Pattern: "*.pdf", Keywords: []string{"fatura"}, Category: model.CategoryFinancas, Confidence: 90}
	e := New([]Rule{rule}, DefaultMinRuleConfidence)

	matching := &model.FileRecord{Path: "/in/invoice_2024.pdf", Extension: "pdf", Excerpt: "numero da fatura 123"}
	if _, ok := e.Classify(matching); !ok {
		t.Error("expected keyword match")
	}

	nonMatching := &model.FileRecord{Path: "/in/other.pdf", Extension: "pdf", Excerpt: "nothing relevant"}
	if _, ok := e.Classify(nonMatching); ok {
		t.Error("expected no match without keyword hit")
	}
}

func TestEngine_SizeBounds(t *testing.T) {
	t.Parallel()
	min := int64(1000)
	max := int64(5000)
	rule := Rule{ID: "midsize", Pattern: "*.bin", MinSize: &min, MaxSize: &max, Category: model.CategoryPessoal, Confidence: 90}
	e := New([]Rule{rule}, DefaultMinRuleConfidence)

	tooSmall := &model.FileRecord{Path: "/in/a.bin", Extension: "bin", Size: 500}
	if _, ok := e.Classify(tooSmall); ok {
		t.Error("expected no match below min size")
	}

	tooBig := &model.FileRecord{Path: "/in/b.bin", Extension: "bin", Size: 6000}
	if _, ok := e.Classify(tooBig); ok {
		t.Error("expected no match above max size")
	}

	justRight := &model.FileRecord{Path: "/in/c.bin", Extension: "bin", Size: 2000}
	if _, ok := e.Classify(justRight); !ok {
		t.Error("expected match within size bounds")
	}
}

func TestEngine_YearFallsBackToZero(t *testing.T) {
	t.Parallel()
	rule := Rule{ID: "a", Pattern: "*.txt", Category: model.CategoryPessoal, Confidence: 90}
	e := New([]Rule{rule}, DefaultMinRuleConfidence)

	record := &model.FileRecord{Path: "/in/notes.txt", Extension: "txt"}
	got, ok := e.Classify(record)
	if !ok {
		t.Fatal("expected a match")
	}
	if got.Year != 0 {
		t.Errorf("Year = %d, want 0 when no year token present", got.Year)
	}
}

func TestEngine_YearParsedFromBaseName(t *testing.T) {
	t.Parallel()
	rule := Rule{ID: "a", Pattern: "*.pdf", Category: model.CategoryFinancas, Confidence: 90}
	e := New([]Rule{rule}, DefaultMinRuleConfidence)

	record := &model.FileRecord{Path: "/in/invoice_2024.pdf", Extension: "pdf"}
	got, ok := e.Classify(record)
	if !ok {
		t.Fatal("expected a match")
	}
	if got.Year != 2024 {
		t.Errorf("Year = %d, want 2024", got.Year)
	}
}

func TestEngine_MinRuleConfidenceSkipsLowConfidenceRule(t *testing.T) {
	t.Parallel()
	ruleSet := []Rule{
		{ID: "weak", Pattern: "*.txt", Category: model.CategoryPessoal, Confidence: 50},
		{ID: "strong", Pattern: "*.txt", Category: model.CategoryEstudos, Confidence: 95},
	}
	e := New(ruleSet, 85)

	record := &model.FileRecord{Path: "/in/notes.txt", Extension: "txt"}
	got, ok := e.Classify(record)
	if !ok {
		t.Fatal("expected a match from the second rule")
	}
	if got.Category != model.CategoryEstudos {
		t.Errorf("Category = %s, want strong rule's category (weak rule below floor)", got.Category)
	}
}
