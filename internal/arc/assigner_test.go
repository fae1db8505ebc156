package arc

import (
	"testing"

	"fablemesh/internal/store"
)

func TestDecide(t *testing.T) {
	// Unit vectors along separate axes make similarities exact: a story
	// embedding equal to a centroid scores 1 against it and 0 against the
	// others.
	axis := func(i int) []float32 {
		v := make([]float32, 4)
		v[i] = 1
		return v
	}
	blend := func(a, b []float32, wa, wb float32) []float32 {
		out := make([]float32, len(a))
		for i := range out {
			out[i] = wa*a[i] + wb*b[i]
		}
		return out
	}

	tests := []struct {
		name       string
		emb        []float32
		candidates []store.Arc
		threshold  float64
		epsilon    float64
		wantNew    bool
		wantArcID  string
	}{
		{
			name:      "no candidates",
			emb:       axis(0),
			threshold: 0.75,
			wantNew:   true,
		},
		{
			name: "below threshold creates new arc",
			emb:  axis(0),
			candidates: []store.Arc{
				{ID: "arc-1", Centroid: axis(1)},
			},
			threshold: 0.75,
			wantNew:   true,
		},
		{
			name: "match joins existing arc",
			emb:  axis(0),
			candidates: []store.Arc{
				{ID: "arc-1", Centroid: axis(0)},
				{ID: "arc-2", Centroid: axis(1)},
			},
			threshold: 0.75,
			wantArcID: "arc-1",
		},
		{
			name: "best of several matches wins",
			emb:  axis(0),
			candidates: []store.Arc{
				{ID: "arc-close", Centroid: blend(axis(0), axis(1), 0.9, 0.1)},
				{ID: "arc-exact", Centroid: axis(0)},
			},
			threshold: 0.75,
			wantArcID: "arc-exact",
		},
		{
			name: "tie inside epsilon keeps the earlier candidate",
			emb:  axis(0),
			candidates: []store.Arc{
				{ID: "arc-recent", Centroid: axis(0)},
				{ID: "arc-stale", Centroid: axis(0)},
			},
			threshold: 0.75,
			epsilon:   1e-6,
			wantArcID: "arc-recent",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decide(tt.emb, tt.candidates, tt.threshold, tt.epsilon)
			if got.CreateNew != tt.wantNew {
				t.Fatalf("CreateNew = %v, want %v (decision %+v)", got.CreateNew, tt.wantNew, got)
			}
			if got.ArcID != tt.wantArcID {
				t.Errorf("ArcID = %q, want %q", got.ArcID, tt.wantArcID)
			}
		})
	}
}

func TestDecideDeterministic(t *testing.T) {
	emb := []float32{0.3, 0.7, 0.1}
	candidates := []store.Arc{
		{ID: "a", Centroid: []float32{0.2, 0.8, 0.1}},
		{ID: "b", Centroid: []float32{0.4, 0.6, 0.2}},
		{ID: "c", Centroid: []float32{0.9, 0.1, 0.0}},
	}
	first := Decide(emb, candidates, 0.75, 1e-6)
	for i := 0; i < 10; i++ {
		if got := Decide(emb, candidates, 0.75, 1e-6); got != first {
			t.Fatalf("decision changed between runs: %+v vs %+v", got, first)
		}
	}
}
