package analysis

import (
	"encoding/json"
	"errors"
	"testing"

	"visual-search-be/pkg/apperrors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripFences(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"plain object", `{"category":"food"}`, `{"category":"food"}`},
		{"fence with language tag", "```json\n{\"category\":\"food\"}\n```", `{"category":"food"}`},
		{"bare fence", "```\n{\"category\":\"food\"}\n```", `{"category":"food"}`},
		{"prose around object", "Sure! Here it is:\n{\"category\":\"food\"}\nHope that helps.", `{"category":"food"}`},
		{"no object", "I cannot see the image", "I cannot see the image"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripFences(tt.raw))
		})
	}
}

func TestTextList_Decode(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want TextList
		join string
	}{
		{"string", `"OPEN 24 HOURS"`, TextList{"OPEN 24 HOURS"}, "OPEN 24 HOURS"},
		{"list", `["OPEN", " 24 HOURS ", ""]`, TextList{"OPEN", " 24 HOURS ", ""}, "OPEN 24 HOURS"},
		{"null", `null`, nil, ""},
		{"blank string", `"   "`, nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got TextList
			require.NoError(t, json.Unmarshal([]byte(tt.raw), &got))
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.join, got.Join())
		})
	}

	var bad TextList
	assert.Error(t, json.Unmarshal([]byte(`{"text":"x"}`), &bad))
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
		check   func(t *testing.T, r *Result)
	}{
		{
			name: "fenced full result",
			raw: "```json\n" + `{"category":" furniture ","subcategories":["sofa",""],"headline":"Walnut sofa",` +
				`"summary":"A sofa.","extracted_text":["EAMES","1956"],"themes":["mid-century"]}` + "\n```",
			check: func(t *testing.T, r *Result) {
				assert.Equal(t, "furniture", r.Category)
				assert.Equal(t, []string{"sofa"}, r.Subcategories)
				assert.Equal(t, "EAMES 1956", r.ExtractedText.Join())
			},
		},
		{
			name: "optional fields null or omitted",
			raw:  `{"category":"sign","headline":"h","summary":"","extracted_text":null,"themes":null}`,
			check: func(t *testing.T, r *Result) {
				assert.Nil(t, r.ExtractedText)
				assert.Nil(t, r.Themes)
				assert.Nil(t, r.Objects)
			},
		},
		{
			name: "summary without headline",
			raw:  `{"category":"food","summary":"A bowl of ramen"}`,
		},
		{name: "missing category", raw: `{"headline":"h","summary":"s"}`, wantErr: true},
		{name: "missing headline and summary", raw: `{"category":"food"}`, wantErr: true},
		{name: "not json", raw: "The image shows a cat.", wantErr: true},
		{name: "empty output", raw: "   ", wantErr: true},
		{name: "wrong typed list", raw: `{"category":"food","headline":"h","themes":"x"}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := Parse(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, apperrors.IsInput(err))
				assert.True(t, errors.Is(err, apperrors.ErrSchemaMismatch))
				return
			}
			require.NoError(t, err)
			if tt.check != nil {
				tt.check(t, r)
			}
		})
	}
}

func TestEmbeddingText_ExtractedTextShapes(t *testing.T) {
	asList, err := Parse(`{"category":"sign","headline":"h","extracted_text":["OPEN","24 HOURS"]}`)
	require.NoError(t, err)
	asString, err := Parse(`{"category":"sign","headline":"h","extracted_text":"OPEN 24 HOURS"}`)
	require.NoError(t, err)

	assert.Equal(t, "h sign OPEN 24 HOURS", asList.EmbeddingText())
	assert.Equal(t, asList.EmbeddingText(), asString.EmbeddingText())
	assert.Equal(t, []string{"headline", "category", "extracted_text"}, asList.Provenance())
}

func TestEmbeddingText_FieldOrder(t *testing.T) {
	r := &Result{
		Category:      "furniture",
		Subcategories: []string{"seating"},
		Headline:      "Walnut sofa",
		Summary:       "A sofa.",
		ExtractedText: TextList{"EAMES"},
		Themes:        []string{"home"},
		Objects:       []string{"cushion"},
		Emotions:      []string{"calm"},
		Vibes:         []string{"cozy"},
	}
	assert.Equal(t, "A sofa. Walnut sofa furniture seating EAMES home cushion calm cozy", r.EmbeddingText())
	assert.Equal(t, []string{
		"summary", "headline", "category", "subcategories", "extracted_text",
		"themes", "objects", "emotions", "vibes",
	}, r.Provenance())

	assert.Empty(t, (&Result{}).EmbeddingText())
	assert.Empty(t, (&Result{}).Provenance())
}
