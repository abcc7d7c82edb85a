package tools

import (
	"errors"
	"fmt"
	"math"

	kitlog "github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
)

// ExitStatus is the outcome of a constrained minimization.
type ExitStatus uint8

const (
	// Success means the constraints are satisfied and the objective stopped improving.
	Success ExitStatus = iota + 1
	// IterationLimit means the iteration cap was reached at a feasible point
	// without passing the optimality test. It is a convergence failure.
	IterationLimit
	// Infeasible means the iteration limit was reached with violated constraints.
	Infeasible
	// EvaluationFailure means the model could not be evaluated at the start point.
	EvaluationFailure
)

func (s ExitStatus) String() string {
	switch s {
	case Success:
		return "SUCCESS"
	case IterationLimit:
		return "ITERATION_LIMIT"
	case Infeasible:
		return "FAIL"
	case EvaluationFailure:
		return "EVAL_FAIL"
	}
	return "UNKNOWN"
}

// Failed returns whether the minimization did not converge: anything but Success.
func (s ExitStatus) Failed() bool {
	return s != Success
}

// Feasible returns whether the final point satisfies the constraints.
func (s ExitStatus) Feasible() bool {
	return s == Success || s == IterationLimit
}

// Evaluation is a scaled model evaluation: the objective, the equality
// constraints (satisfied when zero) and the inequality constraints (satisfied
// when negative or zero).
type Evaluation struct {
	F    float64
	Eq   []float64
	Ineq []float64
}

// MaxViolation returns the largest constraint violation.
func (e Evaluation) MaxViolation() (v float64) {
	for _, c := range e.Eq {
		v = math.Max(v, math.Abs(c))
	}
	for _, c := range e.Ineq {
		v = math.Max(v, c)
	}
	return
}

// ConstrainedProblem is a bound constrained nonlinear program.
type ConstrainedProblem struct {
	Lower, Upper []float64 // use ±Inf for unbounded variables
	Ref          []float64 // scaling of unbounded variables, defaults to 1
	Evaluate     func(x []float64) (Evaluation, error)
}

// MinimizerSettings configures the augmented Lagrangian minimizer.
type MinimizerSettings struct {
	MaxIter        int     // outer (multiplier update) iterations
	InnerIter      int     // quasi-Newton iterations per outer iteration
	OptimalityTol  float64 // relative change of the objective between outer iterations
	FeasibilityTol float64 // largest scaled constraint violation
	// Method returns a new inner method. Nil methods use BFGS.
	Method func() optimize.Method
	// Gradient is the finite difference formula. Derivative free methods ignore it.
	Gradient fd.Formula
	// Record is called after every outer iteration.
	Record func(IterationRecord)
	Logger kitlog.Logger
}

// IterationRecord summarizes one outer iteration.
type IterationRecord struct {
	Iteration    int
	X            []float64
	Evaluation   Evaluation
	MaxViolation float64
	Penalty      float64
	FuncEvals    int
}

// MinimizerResult is the outcome of Minimize.
type MinimizerResult struct {
	X            []float64
	Evaluation   Evaluation
	MaxViolation float64
	Iterations   int
	FuncEvals    int
	Status       ExitStatus
}

const (
	initialPenalty = 10.
	maxPenalty     = 1e8
	boundMargin    = 1e-6
)

// transform maps unconstrained variables z to bounded variables x. Doubly
// bounded variables use a sine map, the others are scaled by their reference.
type transform struct {
	lo, hi, ref []float64
}

func (t transform) toX(z []float64) []float64 {
	x := make([]float64, len(z))
	for i, zi := range z {
		lo, hi := t.lo[i], t.hi[i]
		switch {
		case !math.IsInf(lo, 0) && !math.IsInf(hi, 0):
			x[i] = lo + (hi-lo)*(1+math.Sin(zi))/2
		case !math.IsInf(lo, 0):
			x[i] = lo + t.ref[i]*zi*zi
		case !math.IsInf(hi, 0):
			x[i] = hi - t.ref[i]*zi*zi
		default:
			x[i] = t.ref[i] * zi
		}
	}
	return x
}

func (t transform) toZ(x []float64) []float64 {
	z := make([]float64, len(x))
	for i, xi := range x {
		lo, hi := t.lo[i], t.hi[i]
		switch {
		case !math.IsInf(lo, 0) && !math.IsInf(hi, 0):
			if hi == lo {
				z[i] = 0
				continue
			}
			s := 2*(xi-lo)/(hi-lo) - 1
			s = math.Max(-1+boundMargin, math.Min(1-boundMargin, s))
			z[i] = math.Asin(s)
		case !math.IsInf(lo, 0):
			z[i] = math.Sqrt(math.Max(xi-lo, boundMargin) / t.ref[i])
		case !math.IsInf(hi, 0):
			z[i] = math.Sqrt(math.Max(hi-xi, boundMargin) / t.ref[i])
		default:
			z[i] = xi / t.ref[i]
		}
	}
	return z
}

// Minimize minimizes the problem from x0 with an augmented Lagrangian method:
// each outer iteration minimizes the Lagrangian plus a quadratic penalty with
// a gonum method, then updates the multipliers and the penalty.
func Minimize(p ConstrainedProblem, x0 []float64, s MinimizerSettings) (MinimizerResult, error) {
	n := len(x0)
	if len(p.Lower) != n || len(p.Upper) != n {
		return MinimizerResult{}, fmt.Errorf("bounds have %d and %d elements for %d variables", len(p.Lower), len(p.Upper), n)
	}
	logger := s.Logger
	if logger == nil {
		logger = kitlog.NewNopLogger()
	}
	if s.MaxIter <= 0 {
		s.MaxIter = 50
	}
	if s.InnerIter <= 0 {
		s.InnerIter = 50
	}
	if s.Gradient.Step == 0 {
		s.Gradient = fd.Central
	}
	ref := make([]float64, n)
	for i := range ref {
		ref[i] = 1
		if p.Ref != nil && p.Ref[i] != 0 {
			ref[i] = math.Abs(p.Ref[i])
		}
	}
	tf := transform{lo: p.Lower, hi: p.Upper, ref: ref}
	res := MinimizerResult{X: tf.toX(tf.toZ(x0))}

	evals := 0
	eval := func(x []float64) (Evaluation, bool) {
		evals++
		e, err := p.Evaluate(x)
		if err != nil || math.IsNaN(e.F) || math.IsInf(e.F, 0) {
			return e, false
		}
		return e, true
	}
	cur, ok := eval(res.X)
	if !ok {
		res.Status = EvaluationFailure
		return res, errors.New("model evaluation failed at the initial point")
	}
	lambda := make([]float64, len(cur.Eq))
	mu := make([]float64, len(cur.Ineq))
	rho := initialPenalty
	prevViol := math.Inf(1)
	prevF := math.NaN()

	lagrangian := func(e Evaluation) float64 {
		l := e.F
		for i, c := range e.Eq {
			l += lambda[i]*c + rho/2*c*c
		}
		for i, g := range e.Ineq {
			t := math.Max(0, mu[i]+rho*g)
			l += (t*t - mu[i]*mu[i]) / (2 * rho)
		}
		return l
	}
	var lastZ []float64
	var lastL float64
	fn := func(z []float64) float64 {
		if lastZ != nil && floats.Equal(z, lastZ) {
			return lastL
		}
		e, ok := eval(tf.toX(z))
		l := math.Inf(1)
		if ok {
			l = lagrangian(e)
		}
		lastZ = append(lastZ[:0], z...)
		lastL = l
		return l
	}

	for res.Iterations = 1; res.Iterations <= s.MaxIter; res.Iterations++ {
		var method optimize.Method = &optimize.BFGS{}
		if s.Method != nil {
			method = s.Method()
		}
		prob := optimize.Problem{Func: fn}
		if needsGrad(method) {
			prob.Grad = func(grad, z []float64) {
				fd.Gradient(grad, fn, z, &fd.Settings{Formula: s.Gradient, Step: 1e-6})
			}
		}
		settings := &optimize.Settings{
			MajorIterations:   s.InnerIter,
			GradientThreshold: 1e-10,
			Converger:         &optimize.FunctionConverge{Absolute: 1e-12, Relative: 1e-12, Iterations: 20},
		}
		lastZ = nil
		z0 := tf.toZ(res.X)
		inner, err := optimize.Minimize(prob, z0, settings, method)
		if inner != nil && inner.X != nil && !math.IsInf(inner.F, 1) && !math.IsNaN(inner.F) {
			res.X = tf.toX(inner.X)
		} else if err != nil {
			level.Debug(logger).Log("subsys", "driver", "iter", res.Iterations, "inner", err)
		}
		if e, ok := eval(res.X); ok {
			cur = e
		}
		viol := cur.MaxViolation()
		rec := IterationRecord{
			Iteration:    res.Iterations,
			X:            append([]float64(nil), res.X...),
			Evaluation:   cur,
			MaxViolation: viol,
			Penalty:      rho,
			FuncEvals:    evals,
		}
		if s.Record != nil {
			s.Record(rec)
		}
		level.Info(logger).Log("subsys", "driver", "iter", res.Iterations, "obj", cur.F, "viol", viol, "rho", rho, "evals", evals)

		converged := viol <= s.FeasibilityTol && !math.IsNaN(prevF) && math.Abs(cur.F-prevF) <= s.OptimalityTol*(1+math.Abs(cur.F))
		if converged {
			res.Status = Success
			break
		}
		prevF = cur.F
		for i, c := range cur.Eq {
			lambda[i] += rho * c
		}
		for i, g := range cur.Ineq {
			mu[i] = math.Max(0, mu[i]+rho*g)
		}
		if viol > 0.25*prevViol {
			rho = math.Min(rho*10, maxPenalty)
		}
		prevViol = viol
	}
	if res.Iterations > s.MaxIter {
		res.Iterations = s.MaxIter
	}
	res.Evaluation = cur
	res.MaxViolation = cur.MaxViolation()
	res.FuncEvals = evals
	if res.Status == 0 {
		if res.MaxViolation <= s.FeasibilityTol {
			res.Status = IterationLimit
		} else {
			res.Status = Infeasible
		}
	}
	return res, nil
}

func needsGrad(m optimize.Method) bool {
	switch m.(type) {
	case *optimize.NelderMead:
		return false
	}
	return true
}
