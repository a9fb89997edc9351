package extractor

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strings"

	"organizer/internal/model"
)

// plainTextStrategy handles txt/md/json/xml/html — the content is read
// and truncated as-is by the Extractor.
type plainTextStrategy struct{}

func (plainTextStrategy) Extract(record *model.FileRecord) (string, error) {
	f, err := os.Open(record.Path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", record.Path, err)
	}
	defer f.Close()

	// One byte past the cap lets the Extractor see that content was cut.
	buf := make([]byte, model.MaxExcerptBytes+1)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", fmt.Errorf("reading %s: %w", record.Path, err)
	}
	return string(buf[:n]), nil
}

// pdfStrategy reports only a format marker. A real PDF text extraction
// library is an out-of-scope external collaborator referenced by spec.md
// §1 ("content-extraction libraries for individual file formats"); this
// implementation honors the contract (bounded excerpt, non-fatal
// failure) without depending on a library absent from the example pack.
type pdfStrategy struct{}

func (pdfStrategy) Extract(record *model.FileRecord) (string, error) {
	return formatMarker("PDF", record), nil
}

type docxStrategy struct{}

// Extract reads the body text out of a .docx's word/document.xml, which
// is itself just a zip of XML parts — no external library required, and
// the richer rendering (styles, tables) is left to the out-of-scope
// content-extraction collaborator.
func (docxStrategy) Extract(record *model.FileRecord) (string, error) {
	return extractOOXMLText(record.Path, "word/document.xml")
}

type pptxStrategy struct{}

func (pptxStrategy) Extract(record *model.FileRecord) (string, error) {
	zr, err := zip.OpenReader(record.Path)
	if err != nil {
		return "", fmt.Errorf("opening pptx %s: %w", record.Path, err)
	}
	defer zr.Close()

	var sb strings.Builder
	for _, f := range zr.File {
		if !strings.HasPrefix(f.Name, "ppt/slides/slide") || !strings.HasSuffix(f.Name, ".xml") {
			continue
		}
		text, err := readOOXMLTextFromEntry(f)
		if err != nil {
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n")
		if sb.Len() >= model.MaxExcerptBytes {
			break
		}
	}
	return sb.String(), nil
}

type xlsxStrategy struct{}

func (xlsxStrategy) Extract(record *model.FileRecord) (string, error) {
	zr, err := zip.OpenReader(record.Path)
	if err != nil {
		return "", fmt.Errorf("opening xlsx %s: %w", record.Path, err)
	}
	defer zr.Close()

	var sb strings.Builder
	for _, f := range zr.File {
		if !strings.HasPrefix(f.Name, "xl/worksheets/sheet") || !strings.HasSuffix(f.Name, ".xml") {
			continue
		}
		fmt.Fprintf(&sb, "sheet: %s\n", f.Name)
		text, err := readOOXMLTextFromEntry(f)
		if err == nil {
			sb.WriteString(text)
			sb.WriteString("\n")
		}
		if sb.Len() >= model.MaxExcerptBytes {
			break
		}
	}
	return sb.String(), nil
}

// imageStrategy emits only the format marker. EXIF metadata is not
// decoded and no pixel OCR is performed.
type imageStrategy struct{}

func (imageStrategy) Extract(record *model.FileRecord) (string, error) {
	return formatMarker("image", record), nil
}

// audioStrategy emits only the format marker. No decoder is bundled, so
// duration, bitrate and tags are not read.
type audioStrategy struct{}

func (audioStrategy) Extract(record *model.FileRecord) (string, error) {
	return formatMarker("audio", record), nil
}

// videoStrategy emits only the format marker. No decoder is bundled, so
// resolution, codec and duration are not read.
type videoStrategy struct{}

func (videoStrategy) Extract(record *model.FileRecord) (string, error) {
	return formatMarker("video", record), nil
}

// ebookStrategy emits a format marker only, per spec.md §4.2.
type ebookStrategy struct{}

func (ebookStrategy) Extract(record *model.FileRecord) (string, error) {
	return formatMarker("ebook", record), nil
}

// zipStrategy lists the names of contained entries.
type zipStrategy struct{}

func (zipStrategy) Extract(record *model.FileRecord) (string, error) {
	zr, err := zip.OpenReader(record.Path)
	if err != nil {
		return "", fmt.Errorf("opening zip %s: %w", record.Path, err)
	}
	defer zr.Close()

	var sb strings.Builder
	for _, f := range zr.File {
		sb.WriteString(f.Name)
		sb.WriteString("\n")
		if sb.Len() >= model.MaxExcerptBytes {
			break
		}
	}
	return sb.String(), nil
}

// --- OOXML text helpers (shared by docx/pptx/xlsx) ---

func extractOOXMLText(path, entryName string) (string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if f.Name != entryName {
			continue
		}
		return readOOXMLTextFromEntry(f)
	}
	return "", fmt.Errorf("entry %s not found in %s", entryName, path)
}

// readOOXMLTextFromEntry extracts the text nodes from an OOXML part
// (e.g. word/document.xml) by walking its XML token stream and
// concatenating <w:t>/<a:t> character data — sufficient for a body-text
// excerpt without a full OOXML parser.
func readOOXMLTextFromEntry(f *zip.File) (string, error) {
	r, err := f.Open()
	if err != nil {
		return "", fmt.Errorf("opening entry %s: %w", f.Name, err)
	}
	defer r.Close()

	dec := xml.NewDecoder(r)
	var sb strings.Builder
	inText := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return sb.String(), nil // partial output on malformed XML
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				inText = true
			}
		case xml.EndElement:
			if t.Name.Local == "t" {
				inText = false
				sb.WriteString(" ")
			}
		case xml.CharData:
			if inText {
				sb.Write(t)
			}
		}
		if sb.Len() >= model.MaxExcerptBytes {
			break
		}
	}
	return sb.String(), nil
}
