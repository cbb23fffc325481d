package analysis

import "strings"

// SynonymMap expands query terms bidirectionally: a query for either side of
// a "base=variant1,variant2" entry matches documents indexed with the other.
// Expansion applies at query time only, never at index time.
type SynonymMap struct {
	expansions map[string][]string
}

// NewSynonymMap builds a bidirectional map from user-supplied entries.
// Malformed entries are skipped. Terms are normalized with the tokenizer so
// both sides agree with indexed terms.
func NewSynonymMap(entries []string, tok *Tokenizer) *SynonymMap {
	m := &SynonymMap{expansions: make(map[string][]string)}
	for _, entry := range entries {
		base, rest, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		group := []string{tok.NormalizeTerm(base)}
		for _, v := range strings.Split(rest, ",") {
			if term := tok.NormalizeTerm(v); term != "" {
				group = append(group, term)
			}
		}
		if group[0] == "" || len(group) < 2 {
			continue
		}
		for _, term := range group {
			for _, other := range group {
				if other != term {
					m.expansions[term] = append(m.expansions[term], other)
				}
			}
		}
	}
	return m
}

// Expand returns the synonyms of term, excluding term itself. Returns nil
// when the term has no entry.
func (m *SynonymMap) Expand(term string) []string {
	if m == nil {
		return nil
	}
	return m.expansions[term]
}

// ProcessTerm normalizes a query term and returns it with its expansion set.
// Returns nil when the term normalizes to nothing.
func ProcessTerm(term string, tok *Tokenizer, syn *SynonymMap) []string {
	normalized := tok.NormalizeTerm(term)
	if normalized == "" {
		return nil
	}
	return append([]string{normalized}, syn.Expand(normalized)...)
}
