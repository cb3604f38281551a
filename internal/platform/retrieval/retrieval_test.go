package retrieval

import "testing"

func TestSearchTerms_FoldsHints(t *testing.T) {
	got := searchTerms("sharp pain when twisting", Hints{BodyPartID: "knee", InjuryID: "acl_tear"})
	want := "sharp pain when twisting knee acl tear"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestSearchTerms_EmptyQueryAndHints(t *testing.T) {
	if got := searchTerms("   ", Hints{}); got != "" {
		t.Errorf("expected empty terms, got %q", got)
	}
}

func TestDegraded_ReportsNoRAG(t *testing.T) {
	r := Degraded()
	if r.RAGUsed {
		t.Error("degraded result must not claim rag_used")
	}
	if r.Context != "" {
		t.Error("degraded result must carry no context")
	}
}

func TestClamp01(t *testing.T) {
	cases := []struct {
		in, want float64
	}{
		{-0.5, 0},
		{0.3, 0.3},
		{1.7, 1},
	}
	for _, tc := range cases {
		if got := clamp01(tc.in); got != tc.want {
			t.Errorf("clamp01(%f) = %f, want %f", tc.in, got, tc.want)
		}
	}
}
