package strategy

import (
	"fmt"
	"strings"
	"unicode"

	"visual-search-be/pkg/rag/retrieval"
)

const longQueryTokens = 6

var interrogatives = map[string]bool{
	"what": true, "which": true, "who": true, "where": true, "when": true,
	"why": true, "how": true, "show": true, "find": true, "is": true,
	"are": true, "do": true, "does": true, "can": true, "any": true,
}

// firstRetriever picks the retriever adaptive mode tries first and explains
// the choice.
func firstRetriever(query string) (string, string) {
	query = strings.TrimSpace(query)
	tokens := strings.Fields(query)

	// Structured separators point at a literal lookup ("tag:receipt", "a/b").
	if strings.ContainsAny(query, "/:=") {
		return retrieval.SourceKeyword, "query contains structured separators, starting with keyword search"
	}
	if len(query) > 1 && strings.HasPrefix(query, "\"") && strings.HasSuffix(query, "\"") {
		return retrieval.SourceKeyword, "query is quoted, starting with keyword search"
	}
	if isAllCaps(query) {
		return retrieval.SourceKeyword, "query is all caps and looks like a code or acronym, starting with keyword search"
	}
	if len(tokens) <= 2 {
		return retrieval.SourceKeyword, fmt.Sprintf("query is short (%d tokens), starting with keyword search", len(tokens))
	}
	if strings.HasSuffix(query, "?") || interrogatives[strings.ToLower(tokens[0])] {
		return retrieval.SourceVector, "query is phrased as a question, starting with vector search"
	}
	if len(tokens) >= longQueryTokens {
		return retrieval.SourceVector, fmt.Sprintf("query is long (%d tokens), starting with vector search", len(tokens))
	}
	return retrieval.SourceVector, fmt.Sprintf("query is descriptive (%d tokens), starting with vector search", len(tokens))
}

func isAllCaps(s string) bool {
	var letters int
	for _, r := range s {
		if unicode.IsLetter(r) {
			if !unicode.IsUpper(r) {
				return false
			}
			letters++
		}
	}
	return letters > 1
}
