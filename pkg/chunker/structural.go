package chunker

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"visual-search-be/pkg/utils"
)

const maxDepth = 8

// line is one rendered "key: value" fragment within the token bound.
type line struct {
	text    string
	tokens  int
	overlap int
}

// structural renders each field as "key: a, b, c" lines, never splitting a
// list element unless that single element is over the bound, then packs
// consecutive lines into chunks.
func (p *Processor) structural(fields map[string]interface{}) ([]piece, error) {
	var lines []line
	for _, key := range p.orderedKeys(fields) {
		rendered, err := p.field(key, fields[key], 0)
		if err != nil {
			return nil, err
		}
		lines = append(lines, rendered...)
	}
	return pack(lines, p.chunkTokens), nil
}

func (p *Processor) field(key string, value interface{}, depth int) ([]line, error) {
	if depth > maxDepth {
		return nil, fmt.Errorf("document nested deeper than %d levels", maxDepth)
	}

	switch v := value.(type) {
	case nil:
		return nil, nil
	case map[string]interface{}:
		var out []line
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			sub, err := p.field(key+"."+k, v[k], depth+1)
			if err != nil {
				return nil, err
			}
			out = append(out, sub...)
		}
		return out, nil
	case []interface{}:
		units := make([]string, 0, len(v))
		for i, el := range v {
			if nested, ok := el.(map[string]interface{}); ok {
				sub, err := p.field(key+"."+strconv.Itoa(i), nested, depth+1)
				if err != nil {
					return nil, err
				}
				for _, l := range sub {
					units = append(units, l.text)
				}
				continue
			}
			s, err := scalar(el)
			if err != nil {
				return nil, fmt.Errorf("%s[%d]: %w", key, i, err)
			}
			units = append(units, s)
		}
		return p.units(key, units), nil
	case []string:
		return p.units(key, v), nil
	default:
		s, err := scalar(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		return p.units(key, []string{s}), nil
	}
}

func scalar(v interface{}) (string, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case bool:
		return strconv.FormatBool(s), nil
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), nil
	case float32:
		return strconv.FormatFloat(float64(s), 'f', -1, 32), nil
	case int:
		return strconv.Itoa(s), nil
	case int64:
		return strconv.FormatInt(s, 10), nil
	default:
		return "", fmt.Errorf("unsupported value type %T", v)
	}
}

// units packs list elements into "key: a, b" lines. An element larger than
// the bound is token split with overlap and gets lines of its own.
func (p *Processor) units(key string, units []string) []line {
	prefix, prefixTokens := keyPrefix(key, p.chunkTokens/2)
	budget := p.chunkTokens - prefixTokens

	var out []line
	var current []string
	currentTokens := 0
	flush := func() {
		if len(current) == 0 {
			return
		}
		out = append(out, line{
			text:   prefix + " " + strings.Join(current, ", "),
			tokens: prefixTokens + currentTokens,
		})
		current = nil
		currentTokens = 0
	}

	for _, u := range units {
		u = strings.Join(strings.Fields(u), " ")
		if u == "" {
			continue
		}
		ut := utils.CountTokens(u)
		if ut > budget {
			flush()
			overlap := utils.EffectiveOverlap(budget, p.overlap)
			for i, w := range utils.SplitTokens(u, budget, p.overlap) {
				l := line{text: prefix + " " + w, tokens: prefixTokens + utils.CountTokens(w)}
				if i > 0 {
					l.overlap = overlap
				}
				out = append(out, l)
			}
			continue
		}
		if currentTokens+ut > budget {
			flush()
		}
		current = append(current, u)
		currentTokens += ut
	}
	flush()
	return out
}

// keyPrefix renders "key:" using at most limit tokens. Longer keys keep
// their trailing words, which name the leaf field, behind an ellipsis.
func keyPrefix(key string, limit int) (string, int) {
	words := strings.Fields(key)
	if len(words) <= limit {
		return key + ":", utils.CountTokens(key + ":")
	}
	kept := words[len(words)-(limit-1):]
	return "... " + strings.Join(kept, " ") + ":", limit
}

// pack joins consecutive lines into chunks of at most max tokens.
func pack(lines []line, max int) []piece {
	var out []piece
	var current []string
	currentTokens := 0
	currentOverlap := 0
	for _, l := range lines {
		if len(current) > 0 && currentTokens+l.tokens > max {
			out = append(out, piece{text: strings.Join(current, "\n"), overlap: currentOverlap})
			current = nil
			currentTokens = 0
		}
		if len(current) == 0 {
			currentOverlap = l.overlap
		}
		current = append(current, l.text)
		currentTokens += l.tokens
	}
	if len(current) > 0 {
		out = append(out, piece{text: strings.Join(current, "\n"), overlap: currentOverlap})
	}
	return out
}
