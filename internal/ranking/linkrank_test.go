package ranking

import (
	"testing"

	"github.com/hoshizora/tansaku/internal/models"
)

func TestLinkRankHubScoresHighest(t *testing.T) {
	docs := []*models.Document{
		{ID: "hub.md", Title: "Hub"},
		{ID: "a.md", Links: []string{"hub"}},
		{ID: "b.md", Links: []string{"Hub"}},
		{ID: "c.md", Links: []string{"hub.md"}},
		{ID: "lonely.md"},
	}
	lr := NewLinkRank()
	lr.Recompute(docs)

	hub := lr.Score("hub.md")
	if hub != 1 {
		t.Errorf("most-linked document score = %f, want 1 after normalization", hub)
	}
	for _, id := range []string{"a.md", "b.md", "c.md", "lonely.md"} {
		if s := lr.Score(id); s >= hub {
			t.Errorf("Score(%s) = %f, should be below hub %f", id, s, hub)
		}
	}
}

func TestLinkRankResolution(t *testing.T) {
	docs := []*models.Document{
		{ID: "notes/target.md", Title: "Target Note"},
		{ID: "by-path.md", Links: []string{"notes/target.md"}},
		{ID: "by-stem.md", Links: []string{"notes/target"}},
		{ID: "by-title.md", Links: []string{"target note"}},
		{ID: "dangling.md", Links: []string{"does-not-exist"}},
	}
	lr := NewLinkRank()
	lr.Recompute(docs)

	if lr.Score("notes/target.md") != 1 {
		t.Errorf("target score = %f, want 1", lr.Score("notes/target.md"))
	}
}

func TestLinkRankSelfLinksIgnored(t *testing.T) {
	docs := []*models.Document{
		{ID: "self.md", Links: []string{"self.md", "self"}},
		{ID: "other.md"},
	}
	lr := NewLinkRank()
	lr.Recompute(docs)

	// With no real edges the graph is uniform; nobody outranks anybody.
	if lr.Score("self.md") != lr.Score("other.md") {
		t.Errorf("self links created rank asymmetry: %f vs %f",
			lr.Score("self.md"), lr.Score("other.md"))
	}
}

func TestLinkRankEmptyAndUnknown(t *testing.T) {
	lr := NewLinkRank()
	lr.Recompute(nil)
	if got := lr.Score("anything.md"); got != 0 {
		t.Errorf("empty graph score = %f, want 0", got)
	}

	lr.Recompute([]*models.Document{{ID: "a.md"}})
	if got := lr.Score("unknown.md"); got != 0 {
		t.Errorf("unknown document score = %f, want 0", got)
	}
}
