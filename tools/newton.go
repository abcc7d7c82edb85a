package tools

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/diff/fd"
)

// ErrNonConvergence is returned by the Newton solver when ErrOnNonConverge is set.
var ErrNonConvergence = errors.New("newton solver did not converge")

// NewtonOptions configures a scalar Newton solve.
//
// ErrOnNonConverge defaults to false: a solve which runs out of iterations
// returns its last iterate with Converged unset and no error. Callers must
// check Converged when they care.
type NewtonOptions struct {
	ATol, RTol       float64
	MaxIter          int
	Lower, Upper     float64 // bounds on the unknown, use ±Inf when unbounded
	ErrOnNonConverge bool
	Step             float64 // finite difference step of the derivative
}

// DefaultNewtonOptions returns the options used by the throttle balances.
func DefaultNewtonOptions() NewtonOptions {
	return NewtonOptions{ATol: 1e-10, RTol: 1e-10, MaxIter: 10, Lower: math.Inf(-1), Upper: math.Inf(1), Step: 1e-6}
}

// Bounded returns a copy of these options with bounds.
func (o NewtonOptions) Bounded(lower, upper float64) NewtonOptions {
	o.Lower, o.Upper = lower, upper
	return o
}

// NewtonResult is the outcome of a scalar Newton solve.
type NewtonResult struct {
	X, Residual float64
	Iterations  int
	Converged   bool
}

// Newton solves f(x) = 0 starting from x0. The derivative is computed with
// central finite differences. Iterates are clamped to the bounds; if the solve
// stalls on a bound, it stops unconverged.
func Newton(f func(float64) float64, x0 float64, opts NewtonOptions) (NewtonResult, error) {
	if opts.MaxIter <= 0 {
		opts.MaxIter = 10
	}
	if opts.Step == 0 {
		opts.Step = 1e-6
	}
	settings := &fd.Settings{Formula: fd.Central, Step: opts.Step}
	x := math.Max(opts.Lower, math.Min(opts.Upper, x0))
	r := f(x)
	r0 := math.Abs(r)
	res := NewtonResult{X: x, Residual: r}
	for res.Iterations = 0; res.Iterations < opts.MaxIter; res.Iterations++ {
		if math.Abs(r) <= opts.ATol || (r0 > 0 && math.Abs(r)/r0 <= opts.RTol) {
			res.Converged = true
			break
		}
		dfdx := fd.Derivative(f, x, settings)
		if dfdx == 0 || math.IsNaN(dfdx) {
			break
		}
		next := math.Max(opts.Lower, math.Min(opts.Upper, x-r/dfdx))
		if next == x {
			// Stuck on a bound.
			break
		}
		x = next
		r = f(x)
		res.X, res.Residual = x, r
	}
	if !res.Converged && (math.Abs(r) <= opts.ATol || (r0 > 0 && math.Abs(r)/r0 <= opts.RTol)) {
		res.Converged = true
	}
	if !res.Converged && opts.ErrOnNonConverge {
		return res, ErrNonConvergence
	}
	return res, nil
}
