package classifier

import (
	"fmt"
	"strings"

	"organizer/internal/model"
)

const basePromptTemplate = `You are a file organizing assistant. Classify the file below into exactly
one of the following categories:

  01_Trabalho
  02_Financas
  03_Estudos
  04_Livros
  05_Pessoal
  90_Inbox_Organizar

Use 90_Inbox_Organizar only when no other category plausibly fits.

File path: %s
Extension: %s
Size (bytes): %d
Last modified: %s
Content excerpt:
%s

Respond with a single JSON object and nothing else, matching exactly this
shape:

{
  "category": "<one of the categories above>",
  "subcategory": "<short free-text subcategory, may be empty>",
  "subject": "<short subject, derived from file name and content>",
  "year": <4-digit year the file concerns, or 0 if unknown>,
  "suggested_name": "<YYYY-MM-DD__Category__Subject, no extension>",
  "confidence": <integer 0-100>,
  "rationale": "<one sentence>"
}`

// build renders the classification prompt for record. When correction is
// non-empty, it is appended as an additional directive describing what
// was wrong with a prior attempt.
func build(record *model.FileRecord, correction string) string {
	excerpt := record.Excerpt
	if excerpt == "" {
		excerpt = "(no content extracted)"
	}
	prompt := fmt.Sprintf(basePromptTemplate,
		record.Path, record.Extension, record.Size, record.ModTime.Format("2006-01-02"), excerpt)

	if correction == "" {
		return prompt
	}
	var sb strings.Builder
	sb.WriteString(prompt)
	sb.WriteString("\n\nYour previous response was invalid: ")
	sb.WriteString(correction)
	sb.WriteString("\nRespond again with a corrected JSON object only.")
	return sb.String()
}
