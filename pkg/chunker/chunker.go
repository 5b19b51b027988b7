// Package chunker splits analysis documents into bounded, overlapping text
// chunks for the keyword index and any chunk level embedding.
package chunker

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"visual-search-be/pkg/utils"

	"github.com/google/uuid"
)

const (
	DefaultChunkTokens  = 256
	DefaultChunkOverlap = 32
	minChunkTokens      = 8
)

type Strategy string

const (
	// StrategyStructural packs whole fields and list elements.
	StrategyStructural Strategy = "structural"
	// StrategyToken windows a flattened text rendering.
	StrategyToken Strategy = "token"
	// StrategyOriginal returns the document unsplit when nothing else works.
	StrategyOriginal Strategy = "original"
)

// Document is the chunker input. Payload is either a nested
// map[string]interface{} (a decoded analysis result), a JSON string, or
// plain text.
type Document struct {
	ItemId  uuid.UUID
	OwnerId uuid.UUID
	Payload interface{}
}

type Metadata struct {
	ItemId   uuid.UUID `json:"item_id"`
	OwnerId  uuid.UUID `json:"owner_id"`
	Index    int       `json:"chunk_index"`
	Total    int       `json:"total_chunks"`
	Strategy Strategy  `json:"strategy"`
	// Overlap is the number of leading tokens repeated from the previous chunk.
	Overlap int `json:"overlap"`
}

type Chunk struct {
	Content  string
	Metadata Metadata
}

type Processor struct {
	chunkTokens int
	overlap     int
	fieldOrder  []string
}

// Option configures the processor.
type Option func(*Processor)

func WithChunkTokens(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.chunkTokens = n
		}
	}
}

func WithOverlap(n int) Option {
	return func(p *Processor) {
		if n >= 0 {
			p.overlap = n
		}
	}
}

// WithFieldOrder sets which top level keys come first; remaining keys
// follow alphabetically.
func WithFieldOrder(keys ...string) Option {
	return func(p *Processor) {
		p.fieldOrder = keys
	}
}

func New(opts ...Option) *Processor {
	p := &Processor{
		chunkTokens: DefaultChunkTokens,
		overlap:     DefaultChunkOverlap,
		fieldOrder: []string{
			"category", "subcategories", "headline", "summary", "description",
			"extracted_text", "themes", "objects", "emotions", "vibes",
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.chunkTokens < minChunkTokens {
		p.chunkTokens = minChunkTokens
	}
	p.overlap = utils.EffectiveOverlap(p.chunkTokens, p.overlap)
	return p
}

func (p *Processor) MaxTokens() int {
	return p.chunkTokens
}

// Process never drops content: structural splitting is tried first, then
// token windows over a flattened rendering, then the raw document as a
// single chunk.
func (p *Processor) Process(doc Document) []Chunk {
	if fields, ok := asFields(doc.Payload); ok {
		if pieces, err := p.structural(fields); err == nil {
			if len(pieces) == 0 {
				return nil
			}
			return finish(doc, pieces, StrategyStructural)
		}
	}

	if text, err := flatten(doc.Payload); err == nil {
		if pieces := p.tokens(text); len(pieces) > 0 {
			return finish(doc, pieces, StrategyToken)
		}
	}

	raw := strings.TrimSpace(fmt.Sprintf("%v", doc.Payload))
	if doc.Payload == nil || raw == "" {
		return nil
	}
	return finish(doc, []piece{{text: raw}}, StrategyOriginal)
}

type piece struct {
	text    string
	overlap int
}

func finish(doc Document, pieces []piece, strategy Strategy) []Chunk {
	chunks := make([]Chunk, len(pieces))
	for i, pc := range pieces {
		chunks[i] = Chunk{
			Content: pc.text,
			Metadata: Metadata{
				ItemId:   doc.ItemId,
				OwnerId:  doc.OwnerId,
				Index:    i,
				Total:    len(pieces),
				Strategy: strategy,
				Overlap:  pc.overlap,
			},
		}
	}
	return chunks
}

func (p *Processor) tokens(text string) []piece {
	windows := utils.SplitTokens(text, p.chunkTokens, p.overlap)
	pieces := make([]piece, len(windows))
	for i, w := range windows {
		pieces[i] = piece{text: w}
		if i > 0 {
			pieces[i].overlap = p.overlap
		}
	}
	return pieces
}

// asFields accepts a decoded document or a JSON object string.
func asFields(payload interface{}) (map[string]interface{}, bool) {
	switch v := payload.(type) {
	case map[string]interface{}:
		return v, true
	case string:
		var fields map[string]interface{}
		if err := json.Unmarshal([]byte(strings.TrimSpace(v)), &fields); err == nil {
			return fields, true
		}
	case []byte:
		var fields map[string]interface{}
		if err := json.Unmarshal(v, &fields); err == nil {
			return fields, true
		}
	}
	return nil, false
}

// flatten renders any payload as plain text for token splitting.
func flatten(payload interface{}) (string, error) {
	switch v := payload.(type) {
	case nil:
		return "", fmt.Errorf("nil payload")
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func (p *Processor) orderedKeys(fields map[string]interface{}) []string {
	seen := make(map[string]bool, len(fields))
	keys := make([]string, 0, len(fields))
	for _, k := range p.fieldOrder {
		if _, ok := fields[k]; ok {
			keys = append(keys, k)
			seen[k] = true
		}
	}
	var rest []string
	for k := range fields {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}
