package amd

import (
	"fmt"
	"math"
	"strings"

	"github.com/ChristopherRabotin/amd/tools"
)

// ThrottleEnforcement defines how the [0, 1] throttle range is enforced.
type ThrottleEnforcement uint8

const (
	// PathConstraint constrains the throttle at every node.
	PathConstraint ThrottleEnforcement = iota + 1
	// BoundaryConstraint constrains the throttle at both ends of the phase.
	BoundaryConstraint
	// Bounded limits the throttle solve itself to [0, 1].
	Bounded
	// NoEnforcement leaves the throttle free.
	NoEnforcement
)

func (e ThrottleEnforcement) String() string {
	switch e {
	case PathConstraint:
		return "path_constraint"
	case BoundaryConstraint:
		return "boundary_constraint"
	case Bounded:
		return "bounded"
	case NoEnforcement:
		return "None"
	}
	return "unknown"
}

// ParseThrottleEnforcement returns the enforcement from its name.
func ParseThrottleEnforcement(s string) (ThrottleEnforcement, error) {
	switch strings.ToLower(s) {
	case "path_constraint":
		return PathConstraint, nil
	case "boundary_constraint":
		return BoundaryConstraint, nil
	case "bounded":
		return Bounded, nil
	case "none", "":
		return NoEnforcement, nil
	}
	return 0, fmt.Errorf("%w: throttle_enforcement %q", ErrUnknownOption, s)
}

// ThrottleAllocation defines where the fractions splitting the aggregate
// throttle between engine types come from.
type ThrottleAllocation uint8

const (
	// FixedAllocation reads the fractions from the aircraft deck.
	FixedAllocation ThrottleAllocation = iota + 1
	// StaticAllocation optimizes one set of fractions per phase.
	StaticAllocation
	// DynamicAllocation optimizes the fractions at every node.
	DynamicAllocation
)

func (a ThrottleAllocation) String() string {
	switch a {
	case FixedAllocation:
		return "fixed"
	case StaticAllocation:
		return "static"
	case DynamicAllocation:
		return "dynamic"
	}
	return "unknown"
}

// ParseThrottleAllocation returns the allocation mode from its name.
func ParseThrottleAllocation(s string) (ThrottleAllocation, error) {
	switch strings.ToLower(s) {
	case "fixed", "":
		return FixedAllocation, nil
	case "static":
		return StaticAllocation, nil
	case "dynamic":
		return DynamicAllocation, nil
	}
	return 0, fmt.Errorf("%w: throttle_allocation %q", ErrUnknownOption, s)
}

// throttleInput is what a balance needs at one node.
type throttleInput struct {
	thrustRequired float64
	atm            AtmosphereState
	mach           float64
	throttle       float64   // optimized throttle, only used by OptimizedThrottle
	allocations    []float64 // NumTypes()-1 fractions, only used by AggregateThrottle
}

// ThrottleSolution is the balanced engine state at one node.
type ThrottleSolution struct {
	Throttle   float64   // aggregate throttle
	Throttles  []float64 // per engine type
	Thrust     float64
	FuelFlow   float64
	Residual   float64 // thrust required minus thrust, N
	Converged  bool
	Iterations int
	Err        error // set when the solve did not converge and errors were requested
}

// ThrottleBalance finds the throttle delivering the required thrust. The
// implementation is chosen once from the engine configuration.
type ThrottleBalance interface {
	balance(in throttleInput) ThrottleSolution
	// Enforcement returns how the throttle range is enforced.
	Enforcement() ThrottleEnforcement
}

// Residual reference of the balance, N.
var throttleResRef = 1e6 * lbf2N

// OptimizedThrottle takes the throttle from the optimizer and reports the thrust
// residual, which the problem registers as an equality constraint.
type OptimizedThrottle struct {
	Engines     SingleEngineType
	enforcement ThrottleEnforcement
}

// Enforcement implements the ThrottleBalance interface.
func (b OptimizedThrottle) Enforcement() ThrottleEnforcement { return b.enforcement }

func (b OptimizedThrottle) balance(in throttleInput) ThrottleSolution {
	thrust, ff := b.Engines.Thrust(in.throttle, in.atm, in.mach)
	return ThrottleSolution{
		Throttle:  in.throttle,
		Throttles: []float64{in.throttle},
		Thrust:    thrust,
		FuelFlow:  ff,
		Residual:  in.thrustRequired - thrust,
		Converged: true,
	}
}

// SolvedThrottle solves the throttle with Newton so that thrust equals the required thrust.
type SolvedThrottle struct {
	Engines     SingleEngineType
	Newton      tools.NewtonOptions
	enforcement ThrottleEnforcement
}

// Enforcement implements the ThrottleBalance interface.
func (b SolvedThrottle) Enforcement() ThrottleEnforcement { return b.enforcement }

func (b SolvedThrottle) balance(in throttleInput) ThrottleSolution {
	res, err := tools.Newton(func(thr float64) float64 {
		thrust, _ := b.Engines.Thrust(thr, in.atm, in.mach)
		return (in.thrustRequired - thrust) / throttleResRef
	}, 1, b.Newton)
	thrust, ff := b.Engines.Thrust(res.X, in.atm, in.mach)
	return ThrottleSolution{
		Throttle:   res.X,
		Throttles:  []float64{res.X},
		Thrust:     thrust,
		FuelFlow:   ff,
		Residual:   in.thrustRequired - thrust,
		Converged:  res.Converged,
		Iterations: res.Iterations,
		Err:        err,
	}
}

// AggregateThrottle solves one aggregate throttle for a mix of engine types and
// splits it with the allocation fractions. With Bounded enforcement the
// aggregate is kept in [0, 1]; since the fractions are in [0, 1] and sum to one,
// so is every per type throttle.
type AggregateThrottle struct {
	Engines     MultiEngineType
	Mode        ThrottleAllocation
	Fixed       []float64 // fractions used in FixedAllocation mode
	Newton      tools.NewtonOptions
	enforcement ThrottleEnforcement
}

// Enforcement implements the ThrottleBalance interface.
func (b AggregateThrottle) Enforcement() ThrottleEnforcement { return b.enforcement }

func (b AggregateThrottle) fractions(in throttleInput) []float64 {
	if b.Mode == FixedAllocation || len(in.allocations) == 0 {
		return b.Fixed
	}
	return in.allocations
}

func (b AggregateThrottle) balance(in throttleInput) ThrottleSolution {
	fracs := b.fractions(in)
	throttles := make([]float64, b.Engines.NumTypes())
	res, err := tools.Newton(func(agg float64) float64 {
		AllocateThrottle(agg, fracs, throttles)
		thrust, _ := b.Engines.Thrust(throttles, in.atm, in.mach)
		return (in.thrustRequired - thrust) / throttleResRef
	}, 1, b.Newton)
	AllocateThrottle(res.X, fracs, throttles)
	thrust, ff := b.Engines.Thrust(throttles, in.atm, in.mach)
	return ThrottleSolution{
		Throttle:   res.X,
		Throttles:  throttles,
		Thrust:     thrust,
		FuelFlow:   ff,
		Residual:   in.thrustRequired - thrust,
		Converged:  res.Converged,
		Iterations: res.Iterations,
		Err:        err,
	}
}

// AllocateThrottle splits the aggregate throttle across engine types into dst.
// The first len(fractions) types get their fraction of the aggregate and the
// last type gets the remainder, so the per type throttles sum to the aggregate.
func AllocateThrottle(aggregate float64, fractions, dst []float64) {
	rest := 1.0
	for i, f := range fractions {
		dst[i] = f * aggregate
		rest -= f
	}
	dst[len(dst)-1] = rest * aggregate
}

// NewThrottleBalance picks the balance for the engine configuration.
// optimize requests throttle design variables, which only single engine type
// configurations support; multi engine configurations always solve an
// aggregate throttle. errOnNonConverge makes a Newton solve which does not
// converge report tools.ErrNonConvergence in ThrottleSolution.Err.
func NewThrottleBalance(cfg EngineConfig, enforcement ThrottleEnforcement, optimize bool, mode ThrottleAllocation, fixed []float64, errOnNonConverge bool) (ThrottleBalance, error) {
	newton := tools.DefaultNewtonOptions()
	newton.ErrOnNonConverge = errOnNonConverge
	if enforcement == Bounded {
		newton = newton.Bounded(0, 1)
	}
	switch c := cfg.(type) {
	case SingleEngineType:
		if optimize {
			return OptimizedThrottle{Engines: c, enforcement: enforcement}, nil
		}
		return SolvedThrottle{Engines: c, Newton: newton, enforcement: enforcement}, nil
	case MultiEngineType:
		n := c.NumTypes() - 1
		if mode == FixedAllocation {
			if len(fixed) == 0 {
				fixed = make([]float64, n)
				for i := range fixed {
					fixed[i] = 1 / float64(c.NumTypes())
				}
			}
			if len(fixed) != n {
				return nil, configErr("throttle", ErrInvalidEngineConfig, "%d allocation fractions for %d engine types", len(fixed), c.NumTypes())
			}
			sum := 0.0
			for _, f := range fixed {
				sum += f
			}
			if sum > 1+1e-12 || sum < 0 {
				return nil, configErr("throttle", ErrInvalidEngineConfig, "allocation fractions sum to %g", sum)
			}
		}
		return AggregateThrottle{Engines: c, Mode: mode, Fixed: fixed, Newton: newton, enforcement: enforcement}, nil
	}
	return nil, configErr("throttle", ErrInvalidEngineConfig, "unsupported engine configuration %T", cfg)
}

// throttleBounds returns the design variable bounds of optimized throttles.
func throttleBounds(e ThrottleEnforcement) (lo, hi float64) {
	if e == Bounded {
		return 0, 1
	}
	return math.Inf(-1), math.Inf(1)
}
