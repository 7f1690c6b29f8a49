package certificate

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestEvaluateEmpty(t *testing.T) {
	coll, err := NewCollection(Lyapunov)
	if err != nil {
		t.Fatalf("NewCollection: %v", err)
	}
	vals, err := coll.Evaluate(0, []float64{1, 2})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(vals.Values) != 0 || len(vals.Gradients) != 0 || len(vals.Bounds) != 0 {
		t.Errorf("expected empty values, got %+v", vals)
	}
}

func TestQuadraticLyapunov(t *testing.T) {
	cert, err := QuadraticLyapunov(2, []int{0, 1}, []float64{1, 1}, 0, 2)
	if err != nil {
		t.Fatal(err)
	}
	coll, err := NewCollection(Lyapunov, cert)
	if err != nil {
		t.Fatal(err)
	}

	x := []float64{3, -1}
	vals, err := coll.Evaluate(0, x)
	if err != nil {
		t.Fatal(err)
	}

	if got, want := vals.Values[0], 8.0; got != want {
		t.Errorf("V = %v, want %v", got, want)
	}
	if got, want := vals.Bounds[0], -16.0; got != want {
		t.Errorf("Bound = %v, want %v", got, want)
	}
	if vals.Gradients[0].AtVec(0) != 4 || vals.Gradients[0].AtVec(1) != -4 {
		t.Errorf("gradient = %v, want [4 -4]", mat.Formatted(vals.Gradients[0].T()))
	}
	if vals.Hessians[0].At(0, 0) != 2 || vals.Hessians[0].At(0, 1) != 0 {
		t.Errorf("hessian = %v", mat.Formatted(vals.Hessians[0]))
	}
	if vals.TimePartials[0] != 0 {
		t.Errorf("time partial = %v, want 0", vals.TimePartials[0])
	}
}

func TestEvaluateIdempotent(t *testing.T) {
	goal, _ := FixedTimeLyapunov(3, []int{0, 2}, []float64{0, 5}, 1, 1, 1, 0.5, 1.5)
	obs, _ := EllipsoidBarrier(3, []int{0, 1}, []float64{2, 2}, []float64{1, 2}, 1)
	lyap, _ := NewCollection(Lyapunov, goal)
	bar, _ := NewCollection(Barrier, obs)

	x := []float64{0.5, -0.25, 1}
	orig := append([]float64(nil), x...)

	for _, coll := range []Collection{lyap, bar} {
		a, err := coll.Evaluate(1.5, x)
		if err != nil {
			t.Fatal(err)
		}
		b, err := coll.Evaluate(1.5, x)
		if err != nil {
			t.Fatal(err)
		}
		for i := range a.Values {
			if a.Values[i] != b.Values[i] || a.Bounds[i] != b.Bounds[i] {
				t.Errorf("%s: values differ between calls", coll.Kind)
			}
			if !mat.Equal(a.Gradients[i], b.Gradients[i]) || !mat.Equal(a.Hessians[i], b.Hessians[i]) {
				t.Errorf("%s: derivatives differ between calls", coll.Kind)
			}
		}
	}
	for i := range x {
		if x[i] != orig[i] {
			t.Fatalf("state mutated: %v -> %v", orig, x)
		}
	}
}

func TestEllipsoidBarrierSign(t *testing.T) {
	cert, err := EllipsoidBarrier(2, []int{0, 1}, []float64{0, 0}, []float64{2, 1}, 1)
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name string
		x    []float64
		safe bool
	}{
		{"center", []float64{0, 0}, false},
		{"boundary", []float64{2, 0}, true},
		{"outside", []float64{3, 0}, true},
		{"inside minor axis", []float64{0, 0.5}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := cert.Value(0, tt.x)
			if got := Barrier.Satisfied(h); got != tt.safe {
				t.Errorf("Satisfied(h=%v) = %v, want %v", h, got, tt.safe)
			}
		})
	}
}

func TestFixedTimeBound(t *testing.T) {
	b := FixedTimeBound(1, 2, 0.5, 2)
	tests := []struct {
		v, want float64
	}{
		{0, 0},
		{4, -(2.0 + 2*16)},
		{-4, 2.0 + 2*16},
		{-0.25, 0.5 + 2*0.0625},
	}
	for _, tt := range tests {
		if got := b(tt.v); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("bound(%v) = %v, want %v", tt.v, got, tt.want)
		}
	}
}

func TestEvaluateNonFinite(t *testing.T) {
	cert := Certificate{
		Name:     "log",
		Value:    func(_ float64, x []float64) float64 { return math.Log(x[0]) },
		Gradient: func(_ float64, x []float64) *mat.VecDense { return mat.NewVecDense(1, []float64{1 / x[0]}) },
		Bound:    LinearBound(1),
	}
	coll, err := NewCollection(Barrier, cert)
	if err != nil {
		t.Fatal(err)
	}
	_, err = coll.Evaluate(0, []float64{-1})
	if !errors.Is(err, ErrNonFinite) {
		t.Errorf("expected ErrNonFinite, got %v", err)
	}
	var ee *EvalError
	if !errors.As(err, &ee) || ee.Index != 0 || ee.Name != "log" || ee.Kind != Barrier {
		t.Errorf("expected EvalError for barrier 0 (log), got %#v", ee)
	}
}

func TestNewCollectionValidation(t *testing.T) {
	if _, err := NewCollection(Kind(7)); err == nil {
		t.Error("expected error for unknown kind")
	}
	_, err := NewCollection(Lyapunov, Certificate{Name: "broken"})
	if !errors.Is(err, ErrIncomplete) {
		t.Errorf("expected ErrIncomplete, got %v", err)
	}
	if _, err := FixedTimeLyapunov(2, []int{0}, []float64{0}, 0, 1, 1, 1.2, 2); err == nil {
		t.Error("expected error for e1 >= 1")
	}
	if _, err := QuadraticLyapunov(2, []int{5}, []float64{0}, 0, 1); err == nil {
		t.Error("expected error for out of range index")
	}
}

func TestRelaxed(t *testing.T) {
	cert, _ := QuadraticLyapunov(1, []int{0}, []float64{0}, 0, 1)
	coll, _ := NewCollection(Lyapunov, cert, cert)
	if coll.RelaxableCount() != 0 {
		t.Fatalf("expected 0 relaxable, got %d", coll.RelaxableCount())
	}
	relaxed := coll.Relaxed()
	if relaxed.RelaxableCount() != 2 {
		t.Errorf("expected 2 relaxable, got %d", relaxed.RelaxableCount())
	}
	if coll.RelaxableCount() != 0 {
		t.Error("Relaxed mutated the original collection")
	}
}
