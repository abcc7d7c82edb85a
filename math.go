package amd

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	deg2rad = math.Pi / 180
	rad2deg = 1 / deg2rad
)

// clamp returns v limited to [lo, hi].
func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// linspace returns n evenly spaced values from start to stop, inclusive.
func linspace(start, stop float64, n int) []float64 {
	if n == 1 {
		return []float64{start}
	}
	return floats.Span(make([]float64, n), start, stop)
}

// polynomial is an interpolating polynomial through (tau, value) pairs, with
// tau in [0, 1]. The coefficients are obtained from the Vandermonde system.
type polynomial struct {
	coeffs []float64 // increasing powers
}

func newPolynomial(taus, values []float64) (polynomial, error) {
	n := len(taus)
	vdm := mat.NewDense(n, n, nil)
	for i, tau := range taus {
		p := 1.0
		for j := 0; j < n; j++ {
			vdm.Set(i, j, p)
			p *= tau
		}
	}
	var c mat.VecDense
	if err := c.SolveVec(vdm, mat.NewVecDense(n, append([]float64(nil), values...))); err != nil {
		return polynomial{}, err
	}
	return polynomial{coeffs: c.RawVector().Data}, nil
}

// eval returns the value and the derivative with respect to tau.
func (p polynomial) eval(tau float64) (val, deriv float64) {
	for j := len(p.coeffs) - 1; j >= 0; j-- {
		deriv = deriv*tau + val
		val = val*tau + p.coeffs[j]
	}
	return
}

// piecewiseLinear returns the value and the slope at x of the broken line
// through (xs, ys). xs must be increasing. Outside of the range, the end
// segments are extrapolated.
func piecewiseLinear(xs, ys []float64, x float64) (val, slope float64) {
	n := len(xs)
	i := sort.SearchFloat64s(xs, x) - 1
	if i < 0 {
		i = 0
	} else if i > n-2 {
		i = n - 2
	}
	slope = (ys[i+1] - ys[i]) / (xs[i+1] - xs[i])
	return ys[i] + slope*(x-xs[i]), slope
}

// strictlyIncreasing returns whether each element is greater than the previous one.
func strictlyIncreasing(xs []float64) bool {
	for i := 1; i < len(xs); i++ {
		if !(xs[i] > xs[i-1]) {
			return false
		}
	}
	return true
}
