// Package ranking combines content relevance with usage, recency and link
// signals into one final score per search hit.
package ranking

import (
	"github.com/hoshizora/tansaku/internal/config"
)

// Inputs carries the per-hit signals for combined scoring. All score fields
// are expected pre-normalized to [0,1]; the scorer does not clamp or
// renormalize.
type Inputs struct {
	Query        string
	ContentScore float64
	UsageScore   float64
	RecencyScore float64
	// LinkScore is the PageRank-style link importance of the document.
	LinkScore float64
	// BounceScore penalizes documents users pogo-stick away from.
	BounceScore float64
	LastOpened  int64
}

// Multiplier adjusts a base score after the weighted sum. Multipliers apply
// in sequence.
type Multiplier interface {
	Name() string
	Multiply(in Inputs, score float64) float64
}

// Scorer computes the weighted linear combination of ranking signals.
type Scorer struct {
	cfg         config.RankingConfig
	multipliers []Multiplier
}

// NewScorer creates a scorer with the given weights and the default
// multiplier chain (bounce penalty).
func NewScorer(cfg config.RankingConfig) *Scorer {
	s := &Scorer{cfg: cfg}
	s.multipliers = []Multiplier{NewBounceMultiplier(cfg.BouncePenalty)}
	return s
}

// WithMultipliers replaces the multiplier chain.
func (s *Scorer) WithMultipliers(multipliers ...Multiplier) *Scorer {
	s.multipliers = multipliers
	return s
}

// CombinedScore applies
//
//	score = Wrel*content + Wrec*recency + Wfreq*usage + Wlink*link
//
// followed by the multiplier chain.
func (s *Scorer) CombinedScore(in Inputs) float64 {
	score := s.cfg.RelevanceWeight*in.ContentScore +
		s.cfg.RecencyWeight*in.RecencyScore +
		s.cfg.FrequencyWeight*in.UsageScore +
		s.cfg.LinkImportanceWeight*in.LinkScore

	for _, m := range s.multipliers {
		score = m.Multiply(in, score)
	}
	return score
}

// BounceMultiplier reduces the score of documents with a bounce history.
// The reduction is strictly monotonic in the bounce score and never
// increases the result.
type BounceMultiplier struct {
	penalty float64
}

// NewBounceMultiplier creates a bounce multiplier with the given penalty
// scale in (0,1].
func NewBounceMultiplier(penalty float64) *BounceMultiplier {
	if penalty <= 0 || penalty > 1 {
		penalty = 0.3
	}
	return &BounceMultiplier{penalty: penalty}
}

// Name returns the multiplier name.
func (m *BounceMultiplier) Name() string { return "bounce" }

// Multiply applies score * (1 - penalty*bounceScore).
func (m *BounceMultiplier) Multiply(in Inputs, score float64) float64 {
	if in.BounceScore <= 0 {
		return score
	}
	b := in.BounceScore
	if b > 1 {
		b = 1
	}
	return score * (1 - m.penalty*b)
}
