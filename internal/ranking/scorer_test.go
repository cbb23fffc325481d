package ranking

import (
	"math"
	"testing"

	"github.com/hoshizora/tansaku/internal/config"
)

func testRankingConfig() config.RankingConfig {
	return config.RankingConfig{
		RelevanceWeight:      0.5,
		RecencyWeight:        0.2,
		FrequencyWeight:      0.15,
		LinkImportanceWeight: 0.15,
		BouncePenalty:        0.3,
	}
}

func TestCombinedScoreWeights(t *testing.T) {
	s := NewScorer(testRankingConfig())

	tests := []struct {
		name string
		in   Inputs
		want float64
	}{
		{"all zero", Inputs{}, 0},
		{"all one", Inputs{ContentScore: 1, UsageScore: 1, RecencyScore: 1, LinkScore: 1}, 1},
		{"content only", Inputs{ContentScore: 1}, 0.5},
		{"recency only", Inputs{RecencyScore: 1}, 0.2},
		{"usage only", Inputs{UsageScore: 1}, 0.15},
		{"link only", Inputs{LinkScore: 1}, 0.15},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.CombinedScore(tt.in); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("CombinedScore = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestBounceMultiplierMonotonic(t *testing.T) {
	s := NewScorer(testRankingConfig())
	base := Inputs{ContentScore: 1}

	prev := s.CombinedScore(base)
	for _, bounce := range []float64{0.1, 0.3, 0.6, 1.0} {
		in := base
		in.BounceScore = bounce
		got := s.CombinedScore(in)
		if got >= prev {
			t.Errorf("bounce %f did not lower score: %f >= %f", bounce, got, prev)
		}
		prev = got
	}

	// Full penalty at bounce 1: score * (1 - 0.3).
	in := base
	in.BounceScore = 1
	if got := s.CombinedScore(in); math.Abs(got-0.5*0.7) > 1e-9 {
		t.Errorf("full bounce score = %f, want %f", got, 0.5*0.7)
	}

	// Bounce above 1 clamps instead of going negative.
	in.BounceScore = 5
	if got := s.CombinedScore(in); math.Abs(got-0.5*0.7) > 1e-9 {
		t.Errorf("clamped bounce score = %f, want %f", got, 0.5*0.7)
	}
}

func TestWithMultipliersReplacesChain(t *testing.T) {
	s := NewScorer(testRankingConfig()).WithMultipliers()
	in := Inputs{ContentScore: 1, BounceScore: 1}
	if got := s.CombinedScore(in); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("empty chain score = %f, want 0.5", got)
	}
}

func TestNewBounceMultiplierDefaults(t *testing.T) {
	for _, bad := range []float64{0, -1, 1.5} {
		m := NewBounceMultiplier(bad)
		got := m.Multiply(Inputs{BounceScore: 1}, 1)
		if math.Abs(got-0.7) > 1e-9 {
			t.Errorf("penalty %f not defaulted: got %f", bad, got)
		}
	}
}
