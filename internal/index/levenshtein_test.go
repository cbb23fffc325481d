package index

import "testing"

func TestLevenshteinDistance(t *testing.T) {
	tests := []struct {
		name     string
		a        string
		b        string
		expected int
	}{
		{"identical empty", "", "", 0},
		{"identical word", "hello", "hello", 0},
		{"identical unicode", "こんにちは", "こんにちは", 0},

		{"empty a", "", "hello", 5},
		{"empty b", "hello", "", 5},

		{"one substitution", "cat", "bat", 1},
		{"one insertion", "cat", "cart", 1},
		{"one deletion", "cart", "cat", 1},

		{"kitten to sitting", "kitten", "sitting", 3},
		{"saturday to sunday", "saturday", "sunday", 3},

		{"common typo", "recieve", "receive", 2},
		{"dropped letter", "machine", "machne", 1},

		{"unicode substitution", "café", "cafe", 1},

		{"transposition counts two", "ab", "ba", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := LevenshteinDistance(tt.a, tt.b)
			if result != tt.expected {
				t.Errorf("LevenshteinDistance(%q, %q) = %d, want %d", tt.a, tt.b, result, tt.expected)
			}
			if rev := LevenshteinDistance(tt.b, tt.a); rev != result {
				t.Errorf("not symmetric: (%q,%q)=%d, (%q,%q)=%d", tt.a, tt.b, result, tt.b, tt.a, rev)
			}
		})
	}
}

func TestWithinDistance(t *testing.T) {
	tests := []struct {
		name    string
		a       string
		b       string
		maxDist int
		want    bool
	}{
		{"exact", "note", "note", 1, true},
		{"one edit allowed", "note", "nose", 1, true},
		{"two edits rejected at one", "note", "nosy", 1, false},
		{"two edits allowed at two", "note", "nosy", 2, true},
		{"length gap alone exceeds", "no", "notebook", 2, false},
		{"zero tolerance mismatch", "note", "nose", 0, false},
		{"zero tolerance match", "note", "note", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := WithinDistance(tt.a, tt.b, tt.maxDist); got != tt.want {
				t.Errorf("WithinDistance(%q, %q, %d) = %v, want %v", tt.a, tt.b, tt.maxDist, got, tt.want)
			}
		})
	}
}
