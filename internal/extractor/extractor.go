// Package extractor implements stage 2 of the pipeline: producing a
// bounded text excerpt or metadata summary per file, dispatched by
// extension to a strategy. Extraction failures are non-fatal — a
// strategy never raises for an individual file; it reports empty output
// and an error string instead.
package extractor

import (
	"fmt"
	"unicode/utf8"

	"organizer/internal/model"
)

// Strategy produces a bounded excerpt for one file. Implementations must
// never panic and must return within the caller's budget; they receive
// the FileRecord (for extension/size/path) and return the excerpt text.
type Strategy interface {
	Extract(record *model.FileRecord) (string, error)
}

// Extractor dispatches FileRecords to a Strategy by extension family.
type Extractor struct {
	strategies map[string]Strategy
	fallback   Strategy
}

// New builds an Extractor with the default strategy table (§4.2).
func New() *Extractor {
	e := &Extractor{
		strategies: make(map[string]Strategy),
		fallback:   unknownStrategy{},
	}

	plain := plainTextStrategy{}
	for _, ext := range []string{"txt", "md", "json", "xml", "html", "htm"} {
		e.strategies[ext] = plain
	}

	e.strategies["pdf"] = pdfStrategy{}
	e.strategies["docx"] = docxStrategy{}
	e.strategies["pptx"] = pptxStrategy{}
	e.strategies["xlsx"] = xlsxStrategy{}

	img := imageStrategy{}
	for _, ext := range []string{"jpg", "jpeg", "png", "gif", "tiff", "heic"} {
		e.strategies[ext] = img
	}

	audio := audioStrategy{}
	for _, ext := range []string{"mp3", "flac", "wav", "m4a", "ogg"} {
		e.strategies[ext] = audio
	}

	video := videoStrategy{}
	for _, ext := range []string{"mp4", "mkv", "mov", "avi", "webm"} {
		e.strategies[ext] = video
	}

	ebook := ebookStrategy{}
	for _, ext := range []string{"epub", "mobi", "azw", "azw3"} {
		e.strategies[ext] = ebook
	}

	e.strategies["zip"] = zipStrategy{}

	return e
}

// Register installs or overrides the strategy used for ext (lowercase,
// without dot). Useful for tests and for wiring in a richer strategy for
// a specific format.
func (e *Extractor) Register(ext string, s Strategy) {
	e.strategies[ext] = s
}

// Extract fills record.Excerpt (truncated and sentinel-marked if needed)
// or record.ExcerptError. It never returns an error itself — per-file
// extraction failures are recorded on the record.
func (e *Extractor) Extract(record *model.FileRecord) {
	strategy, ok := e.strategies[record.Extension]
	if !ok {
		strategy = e.fallback
	}

	excerpt, err := strategy.Extract(record)
	if err != nil {
		record.ExcerptError = err.Error()
		record.Excerpt = ""
		return
	}

	record.Excerpt = truncate(excerpt)
}

// truncate caps s at model.MaxExcerptBytes, appending the truncation
// sentinel when content was cut.
func truncate(s string) string {
	if len(s) <= model.MaxExcerptBytes {
		return s
	}
	cut := model.MaxExcerptBytes - len(model.TruncationSentinel)
	if cut < 0 {
		cut = 0
	}
	// Avoid splitting a multi-byte rune at the cut point.
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + model.TruncationSentinel
}

// unknownStrategy is used for extensions with no registered handler.
type unknownStrategy struct{}

func (unknownStrategy) Extract(*model.FileRecord) (string, error) { return "", nil }

// formatMarker renders the "format marker only" excerpt used by several
// strategies that cannot cheaply inspect content.
func formatMarker(format string, record *model.FileRecord) string {
	return fmt.Sprintf("[%s file, %d bytes]", format, record.Size)
}
