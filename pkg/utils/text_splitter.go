package utils

import "strings"

// CountTokens approximates a model token count by whitespace separated
// words. It is stable and cheap, which matters more for chunk bounds than
// matching any one tokenizer.
func CountTokens(text string) int {
	return len(strings.Fields(text))
}

// SplitTokens splits text into windows of at most chunkTokens words. Each
// window after the first repeats the last overlap words of its predecessor.
// Whitespace inside a window is normalised to single spaces.
func SplitTokens(text string, chunkTokens int, overlap int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	if chunkTokens <= 0 || len(words) <= chunkTokens {
		return []string{strings.Join(words, " ")}
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkTokens {
		overlap = chunkTokens / 4
	}

	step := chunkTokens - overlap
	var chunks []string
	for i := 0; i < len(words); i += step {
		end := i + chunkTokens
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[i:end], " "))
		if end == len(words) {
			break
		}
	}
	return chunks
}

// EffectiveOverlap reports the overlap SplitTokens actually applies.
func EffectiveOverlap(chunkTokens, overlap int) int {
	if overlap < 0 {
		return 0
	}
	if overlap >= chunkTokens {
		return chunkTokens / 4
	}
	return overlap
}
