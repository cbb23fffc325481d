package analysis

import (
	"reflect"
	"testing"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name     string
		opts     Options
		text     string
		expected []string
	}{
		{"empty", Options{}, "", nil},
		{"whitespace only", Options{}, "   \t\n", nil},
		{"simple words", Options{}, "hello world", []string{"hello", "world"}},
		{"lowercasing", Options{}, "Hello WORLD", []string{"hello", "world"}},
		{"punctuation split", Options{}, "one,two;three.four", []string{"one", "two", "three", "four"}},
		{"markdown noise", Options{}, "# Heading **bold** `code`", []string{"heading", "bold", "code"}},
		{"short terms dropped", Options{}, "a to be or x", []string{"to", "be", "or"}},
		{"apostrophes kept inside", Options{}, "don't can't", []string{"don't", "can't"}},
		{"hyphens kept inside", Options{}, "well-known fact", []string{"well-known", "fact"}},
		{"leading trim", Options{}, "'quoted' -dashed-", []string{"quoted", "dashed"}},
		{"digits", Options{}, "version 42 of v2", []string{"version", "42", "of", "v2"}},
		{"url stripped", Options{}, "see https://example.com/page for details", []string{"see", "for", "details"}},
		{"url http stripped", Options{}, "http://a.b/c end", []string{"end"}},
		{"accents folded", Options{FoldAccents: true}, "café naïve", []string{"cafe", "naive"}},
		{"accents kept", Options{}, "café", []string{"café"}},
		{"stemming plural", Options{EnableStemming: true}, "notes boxes", []string{"note", "box"}},
		{"stemming possessive", Options{EnableStemming: true}, "alice's notebook", []string{"alice", "notebook"}},
		{"stemming short words untouched", Options{EnableStemming: true}, "gas его", []string{"gas", "его"}},
		{"unicode words", Options{}, "日本語 テスト", []string{"日本語", "テスト"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok := NewTokenizer(tt.opts)
			got := tok.Tokenize(tt.text)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("Tokenize(%q) = %v, want %v", tt.text, got, tt.expected)
			}
		})
	}
}

func TestNormalizeTerm(t *testing.T) {
	tests := []struct {
		name     string
		opts     Options
		term     string
		expected string
	}{
		{"lowercase", Options{}, "Hello", "hello"},
		{"too short after trim", Options{}, "a", ""},
		{"empty", Options{}, "", ""},
		{"trim quotes", Options{}, "'note'", "note"},
		{"fold", Options{FoldAccents: true}, "Résumé", "resume"},
		{"stem es", Options{EnableStemming: true}, "branches", "branch"},
		{"stem s", Options{EnableStemming: true}, "graphs", "graph"},
		{"no stem short", Options{EnableStemming: true}, "its", "its"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok := NewTokenizer(tt.opts)
			if got := tok.NormalizeTerm(tt.term); got != tt.expected {
				t.Errorf("NormalizeTerm(%q) = %q, want %q", tt.term, got, tt.expected)
			}
		})
	}
}

func TestTokenizeDeterministic(t *testing.T) {
	tok := NewTokenizer(Options{FoldAccents: true, EnableStemming: true})
	text := "Zettelkasten notes link ideas across files"
	first := tok.Tokenize(text)
	for i := 0; i < 5; i++ {
		if got := tok.Tokenize(text); !reflect.DeepEqual(got, first) {
			t.Fatalf("Tokenize not deterministic: %v vs %v", got, first)
		}
	}
}
