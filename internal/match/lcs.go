package match

import "strings"

// Similarity scores two strings as LCS length over the longer string's
// length, case-insensitive. Two empty strings score 0.
func Similarity(a, b string) float64 {
	a = strings.ToUpper(a)
	b = strings.ToUpper(b)
	longer := max(len(a), len(b))
	if longer == 0 {
		return 0
	}
	return float64(lcsLength(a, b)) / float64(longer)
}

func lcsLength(a, b string) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				cur[j] = prev[j-1] + 1
			} else {
				cur[j] = max(prev[j], cur[j-1])
			}
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

// permutations returns every ordering of tokens. Token counts stay small
// (OCR rarely yields more than four fragments), so the factorial cost is
// acceptable; anything longer is truncated to guard the worst case.
func permutations(tokens []string) [][]string {
	const maxTokens = 5
	if len(tokens) > maxTokens {
		tokens = tokens[:maxTokens]
	}
	if len(tokens) <= 1 {
		return [][]string{append([]string(nil), tokens...)}
	}

	var out [][]string
	var recurse func(cur, rest []string)
	recurse = func(cur, rest []string) {
		if len(rest) == 0 {
			out = append(out, append([]string(nil), cur...))
			return
		}
		for i := range rest {
			next := make([]string, 0, len(rest)-1)
			next = append(next, rest[:i]...)
			next = append(next, rest[i+1:]...)
			recurse(append(cur, rest[i]), next)
		}
	}
	recurse(nil, tokens)
	return out
}
