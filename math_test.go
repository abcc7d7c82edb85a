package amd

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/floats/scalar"
)

func TestClamp(t *testing.T) {
	if clamp(1.2, 0, 1) != 1 || clamp(-0.2, 0, 1) != 0 || clamp(0.3, 0, 1) != 0.3 {
		t.Fatal("clamp fail")
	}
}

func TestLinspace(t *testing.T) {
	if !floats.EqualApprox(linspace(0, 1, 5), []float64{0, 0.25, 0.5, 0.75, 1}, 1e-15) {
		t.Fatalf("linspace %v", linspace(0, 1, 5))
	}
	if got := linspace(3, 7, 1); len(got) != 1 || got[0] != 3 {
		t.Fatalf("single point %v", got)
	}
}

func TestPolynomial(t *testing.T) {
	// 2 - 3 tau + tau^2 through three nodes.
	f := func(tau float64) float64 { return 2 - 3*tau + tau*tau }
	taus := []float64{0, 0.5, 1}
	p, err := newPolynomial(taus, []float64{f(0), f(0.5), f(1)})
	if err != nil {
		t.Fatal(err)
	}
	for _, tau := range []float64{0, 0.2, 0.7, 1} {
		val, deriv := p.eval(tau)
		if !scalar.EqualWithinAbs(val, f(tau), 1e-12) || !scalar.EqualWithinAbs(deriv, 2*tau-3, 1e-12) {
			t.Fatalf("at %f: %f %f", tau, val, deriv)
		}
	}
	if _, err := newPolynomial([]float64{0.5, 0.5}, []float64{1, 2}); err == nil {
		t.Fatal("repeated nodes solved")
	}
}

func TestPiecewiseLinear(t *testing.T) {
	xs := []float64{0, 10, 20}
	ys := []float64{0, 5, 25}
	for _, c := range []struct {
		x, val, slope float64
	}{
		{5, 2.5, 0.5},
		{10, 5, 0.5},
		{15, 15, 2},
		{-10, -5, 0.5},
		{30, 45, 2},
	} {
		val, slope := piecewiseLinear(xs, ys, c.x)
		if math.Abs(val-c.val) > 1e-12 || slope != c.slope {
			t.Fatalf("at %f: %f %f", c.x, val, slope)
		}
	}
}

func TestStrictlyIncreasing(t *testing.T) {
	if !strictlyIncreasing([]float64{-1, 0, 3}) || !strictlyIncreasing(nil) {
		t.Fatal("increasing rejected")
	}
	if strictlyIncreasing([]float64{0, 1, 1}) || strictlyIncreasing([]float64{0, math.NaN()}) {
		t.Fatal("non increasing accepted")
	}
}
