package features

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestLinearFitExactLine(t *testing.T) {
	ys := make([]float64, 20)
	for i := range ys {
		ys[i] = 3 + 0.5*float64(i)
	}
	slope, intercept := LinearFit(ys)
	if !almostEqual(slope, 0.5) || !almostEqual(intercept, 3) {
		t.Fatalf("unexpected fit slope=%v intercept=%v", slope, intercept)
	}
	if r2 := RSquared(ys, slope, intercept); !almostEqual(r2, 1) {
		t.Fatalf("expected r2=1, got %v", r2)
	}
}

func TestRSquaredFlatSeries(t *testing.T) {
	ys := []float64{2, 2, 2, 2}
	slope, intercept := LinearFit(ys)
	if slope != 0 {
		t.Fatalf("expected zero slope, got %v", slope)
	}
	if r2 := RSquared(ys, slope, intercept); r2 != 0 {
		t.Fatalf("expected r2=0 for zero variance, got %v", r2)
	}
}

func TestLocalMaximaStrict(t *testing.T) {
	xs := []float64{1, 2, 5, 2, 1, 1, 4, 4, 1, 3}
	got := LocalMaxima(xs, 1)
	// index 2 qualifies, the 4,4 plateau does not, edges never do
	if len(got) != 1 || got[0] != 2 {
		t.Fatalf("unexpected maxima %v", got)
	}
}

func TestLocalMinimaOrder(t *testing.T) {
	xs := []float64{5, 4, 3, 1, 3, 4, 5, 2, 5}
	got := LocalMinima(xs, 3)
	// index 7 only has one real neighbour on the right; the rest are clipped
	if len(got) != 2 || got[0] != 3 || got[1] != 7 {
		t.Fatalf("unexpected minima %v", got)
	}
	if got := LocalMinima(xs, 0); got != nil {
		t.Fatalf("order 0 must yield nothing, got %v", got)
	}
}

func TestMeanStdPopulation(t *testing.T) {
	mean, std := MeanStd([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	if !almostEqual(mean, 5) || !almostEqual(std, 2) {
		t.Fatalf("unexpected mean=%v std=%v", mean, std)
	}
}

func TestLinspace(t *testing.T) {
	got := Linspace(10, 20, 21)
	if len(got) != 21 || got[0] != 10 || got[20] != 20 || !almostEqual(got[10], 15) {
		t.Fatalf("unexpected linspace %v", got)
	}
}
