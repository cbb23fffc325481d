package ranking

import (
	"strings"
	"sync"

	"github.com/hoshizora/tansaku/internal/models"
)

const (
	damping    = 0.85
	iterations = 20
)

// LinkRank holds PageRank-style importance scores computed from the vault's
// internal link graph, normalized to [0,1]. Recomputed after bulk indexing;
// reads are cheap.
type LinkRank struct {
	mu     sync.RWMutex
	scores map[string]float64
}

// NewLinkRank creates an empty link rank.
func NewLinkRank() *LinkRank {
	return &LinkRank{scores: make(map[string]float64)}
}

// Score returns the normalized link importance of id; 0 when unknown.
func (lr *LinkRank) Score(id string) float64 {
	lr.mu.RLock()
	defer lr.mu.RUnlock()
	return lr.scores[id]
}

// Recompute runs PageRank over the documents' link graph. Link targets are
// resolved against document paths and titles; unresolvable links are ignored.
func (lr *LinkRank) Recompute(docs []*models.Document) {
	n := len(docs)
	if n == 0 {
		lr.mu.Lock()
		lr.scores = make(map[string]float64)
		lr.mu.Unlock()
		return
	}

	// Resolve link text -> doc ID via path, path-sans-extension, and title.
	resolve := make(map[string]string, n*3)
	for _, doc := range docs {
		resolve[strings.ToLower(doc.ID)] = doc.ID
		resolve[strings.ToLower(trimExt(doc.ID))] = doc.ID
		if doc.Title != "" {
			resolve[strings.ToLower(doc.Title)] = doc.ID
		}
	}

	outgoing := make(map[string][]string, n)
	for _, doc := range docs {
		for _, link := range doc.Links {
			if target, ok := resolve[strings.ToLower(link)]; ok && target != doc.ID {
				outgoing[doc.ID] = append(outgoing[doc.ID], target)
			}
		}
	}

	rank := make(map[string]float64, n)
	base := 1.0 / float64(n)
	for _, doc := range docs {
		rank[doc.ID] = base
	}

	for i := 0; i < iterations; i++ {
		next := make(map[string]float64, n)
		for id := range rank {
			next[id] = (1 - damping) / float64(n)
		}
		for id, targets := range outgoing {
			if len(targets) == 0 {
				continue
			}
			share := damping * rank[id] / float64(len(targets))
			for _, target := range targets {
				next[target] += share
			}
		}
		rank = next
	}

	// Normalize to [0,1] by the max so the scorer gets a bounded signal.
	maxRank := 0.0
	for _, r := range rank {
		if r > maxRank {
			maxRank = r
		}
	}
	if maxRank > 0 {
		for id := range rank {
			rank[id] /= maxRank
		}
	}

	lr.mu.Lock()
	lr.scores = rank
	lr.mu.Unlock()
}

func trimExt(path string) string {
	if i := strings.LastIndexByte(path, '.'); i > strings.LastIndexByte(path, '/') {
		return path[:i]
	}
	return path
}
