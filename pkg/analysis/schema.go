// Package analysis holds the structured interpretation a vision model
// produces for an image and the boundary parser that validates raw model
// output against it.
package analysis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"visual-search-be/pkg/apperrors"
)

// TextList accepts either a JSON string or a JSON array of strings.
// Providers are inconsistent about extracted text, so both shapes decode to
// the same list and Join renders them identically.
type TextList []string

func (t *TextList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*t = nil
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if strings.TrimSpace(s) == "" {
			*t = nil
			return nil
		}
		*t = TextList{s}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("extracted_text must be a string or list of strings: %w", err)
	}
	*t = list
	return nil
}

// Join renders the list as a single space separated string.
func (t TextList) Join() string {
	parts := make([]string, 0, len(t))
	for _, s := range t {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

// Result is the fixed schema every analysis must satisfy.
type Result struct {
	Category      string   `json:"category"`
	Subcategories []string `json:"subcategories,omitempty"`
	Headline      string   `json:"headline"`
	Summary       string   `json:"summary"`
	Description   string   `json:"description,omitempty"`
	ExtractedText TextList `json:"extracted_text,omitempty"`
	Themes        []string `json:"themes,omitempty"`
	Objects       []string `json:"objects,omitempty"`
	Emotions      []string `json:"emotions,omitempty"`
	Vibes         []string `json:"vibes,omitempty"`
}

// Validate enforces the required fields. Optional lists may be absent.
func (r *Result) Validate() error {
	var missing []string
	if strings.TrimSpace(r.Category) == "" {
		missing = append(missing, "category")
	}
	if strings.TrimSpace(r.Headline) == "" && strings.TrimSpace(r.Summary) == "" {
		missing = append(missing, "headline or summary")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", apperrors.ErrSchemaMismatch, strings.Join(missing, ", "))
	}
	return nil
}

var fencePattern = regexp.MustCompile("(?s)^```[a-zA-Z0-9_-]*\\s*\n?(.*?)\\s*```$")

// StripFences removes markdown code fence wrappers and any prose around the
// outermost JSON object.
func StripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if m := fencePattern.FindStringSubmatch(s); m != nil {
		s = strings.TrimSpace(m[1])
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		s = s[start : end+1]
	}
	return s
}

// Parse validates raw model output against the schema. Any mismatch is an
// input error: a corrupt analysis must never be persisted.
func Parse(raw string) (*Result, error) {
	body := StripFences(raw)
	if body == "" {
		return nil, apperrors.Input(fmt.Errorf("%w: empty model output", apperrors.ErrSchemaMismatch))
	}

	dec := json.NewDecoder(strings.NewReader(body))
	var result Result
	if err := dec.Decode(&result); err != nil {
		return nil, apperrors.Input(fmt.Errorf("%w: %v", apperrors.ErrSchemaMismatch, err))
	}
	if err := result.Validate(); err != nil {
		return nil, apperrors.Input(err)
	}
	result.normalize()
	return &result, nil
}

func (r *Result) normalize() {
	r.Category = strings.TrimSpace(r.Category)
	r.Headline = strings.TrimSpace(r.Headline)
	r.Summary = strings.TrimSpace(r.Summary)
	r.Subcategories = compact(r.Subcategories)
	r.Themes = compact(r.Themes)
	r.Objects = compact(r.Objects)
	r.Emotions = compact(r.Emotions)
	r.Vibes = compact(r.Vibes)
}

func compact(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := in[:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// EmbeddingText concatenates the salient fields into one document. An empty
// return value means there is nothing to embed.
func (r *Result) EmbeddingText() string {
	var parts []string
	add := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	add(r.Summary)
	add(r.Headline)
	add(r.Category)
	add(strings.Join(r.Subcategories, " "))
	add(r.ExtractedText.Join())
	add(strings.Join(r.Themes, " "))
	add(strings.Join(r.Objects, " "))
	add(strings.Join(r.Emotions, " "))
	add(strings.Join(r.Vibes, " "))
	return strings.Join(parts, " ")
}

// Provenance lists the field names that contributed to EmbeddingText.
func (r *Result) Provenance() []string {
	var fields []string
	check := func(name string, present bool) {
		if present {
			fields = append(fields, name)
		}
	}
	check("summary", strings.TrimSpace(r.Summary) != "")
	check("headline", strings.TrimSpace(r.Headline) != "")
	check("category", strings.TrimSpace(r.Category) != "")
	check("subcategories", len(r.Subcategories) > 0)
	check("extracted_text", r.ExtractedText.Join() != "")
	check("themes", len(r.Themes) > 0)
	check("objects", len(r.Objects) > 0)
	check("emotions", len(r.Emotions) > 0)
	check("vibes", len(r.Vibes) > 0)
	return fields
}

// ToMap renders the result as a generic nested document for the chunker.
func (r *Result) ToMap() (map[string]interface{}, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
