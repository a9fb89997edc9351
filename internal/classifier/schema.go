package classifier

import (
	"encoding/json"
	"fmt"
	"strings"

	"organizer/internal/model"
)

// response is the strict schema the backend's JSON reply must satisfy.
type response struct {
	Category      string `json:"category"`
	Subcategory   string `json:"subcategory"`
	Subject       string `json:"subject"`
	Year          int    `json:"year"`
	SuggestedName string `json:"suggested_name"`
	Confidence    int    `json:"confidence"`
	Rationale     string `json:"rationale"`
}

// parseResponse extracts and validates a response from raw backend text.
// Backends sometimes wrap JSON in prose or code fences; parseResponse
// locates the outermost {...} object before decoding.
func parseResponse(raw string) (response, error) {
	var resp response
	body := extractJSONObject(raw)
	if body == "" {
		return resp, fmt.Errorf("no JSON object found in response")
	}
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return resp, fmt.Errorf("decoding response json: %w", err)
	}
	if err := validate(resp); err != nil {
		return resp, err
	}
	return resp, nil
}

// extractJSONObject returns the substring spanning the first "{" to its
// matching closing "}", or "" if none is balanced.
func extractJSONObject(s string) string {
	start := strings.Index(s, "{")
	if start < 0 {
		return ""
	}
	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

// validate enforces the response schema: known category, confidence in
// range, and non-empty subject/suggested_name.
func validate(r response) error {
	if !model.IsValidCategory(model.Category(r.Category)) {
		return fmt.Errorf("unknown category %q", r.Category)
	}
	if r.Confidence < 0 || r.Confidence > 100 {
		return fmt.Errorf("confidence %d out of range [0,100]", r.Confidence)
	}
	if strings.TrimSpace(r.Subject) == "" {
		return fmt.Errorf("subject is empty")
	}
	if strings.TrimSpace(r.SuggestedName) == "" {
		return fmt.Errorf("suggested_name is empty")
	}
	if r.Year != 0 && (r.Year < 1900 || r.Year > 2100) {
		return fmt.Errorf("year %d out of plausible range", r.Year)
	}
	return nil
}

func (r response) toClassification() model.Classification {
	return model.Classification{
		Category:      model.Category(r.Category),
		Subcategory:   r.Subcategory,
		Subject:       r.Subject,
		Year:          r.Year,
		SuggestedName: r.SuggestedName,
		Confidence:    r.Confidence,
		Rationale:     r.Rationale,
		Source:        model.SourceLLM,
	}
}
