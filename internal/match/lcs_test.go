package match

import (
	"math"
	"testing"
)

func TestSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"ABC123", "ABC123", 1.0},
		{"abc123", "ABC123", 1.0}, // case-insensitive
		{"ABC", "ABC123", 0.5},
		{"ABCDEFGH", "ABCDEFGHIJ", 0.8},
		{"XYZ", "ABC", 0},
		{"", "ABC", 0},
		{"", "", 0},
		{"AXBXC", "ABC", 0.6}, // subsequence, not substring
	}
	for _, tt := range tests {
		if got := Similarity(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Similarity(%q,%q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestSimilaritySymmetric(t *testing.T) {
	if Similarity("ABC", "ABCDEF") != Similarity("ABCDEF", "ABC") {
		t.Error("similarity must be symmetric")
	}
}

func TestPermutations(t *testing.T) {
	perms := permutations([]string{"A", "B", "C"})
	if len(perms) != 6 {
		t.Fatalf("got %d permutations, want 6", len(perms))
	}
	seen := map[string]bool{}
	for _, p := range perms {
		key := p[0] + p[1] + p[2]
		if seen[key] {
			t.Errorf("duplicate permutation %v", p)
		}
		seen[key] = true
	}
}

func TestPermutationsSmallInputs(t *testing.T) {
	if got := permutations(nil); len(got) != 1 || len(got[0]) != 0 {
		t.Errorf("permutations(nil) = %v", got)
	}
	if got := permutations([]string{"X"}); len(got) != 1 || got[0][0] != "X" {
		t.Errorf("permutations([X]) = %v", got)
	}
}

func TestPermutationsTruncatesLongInputs(t *testing.T) {
	long := []string{"A", "B", "C", "D", "E", "F", "G"}
	if got := permutations(long); len(got) != 120 { // 5!
		t.Errorf("got %d permutations, want 120 after truncation", len(got))
	}
}
