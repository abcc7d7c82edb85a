package amd

import (
	"errors"
	"math"
	"testing"

	"github.com/ChristopherRabotin/amd/tools"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/floats/scalar"
)

func twinJet() SingleEngineType {
	return SingleEngineType{Engine: NewTurbofan("cfm", 28928.1*lbf2N, 0.38*lbm2kg/(3600*lbf2N)), Count: 2}
}

func TestSolvedThrottleBounded(t *testing.T) {
	engines := twinJet()
	atm := Atmosphere{}.At(35e3 * ft2m)
	maxThrust := engines.MaxThrust(atm, 0.79)
	bal, err := NewThrottleBalance(engines, Bounded, false, FixedAllocation, nil, false)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := bal.(SolvedThrottle); !ok {
		t.Fatalf("expected a solved throttle, got %T", bal)
	}
	for _, frac := range []float64{0.1, 0.46, 0.9, 1.3, 2} {
		sol := bal.balance(throttleInput{thrustRequired: frac * maxThrust, atm: atm, mach: 0.79})
		if sol.Throttle < 0 || sol.Throttle > 1 {
			t.Fatalf("required %.2f of max: throttle %f outside of [0, 1]", frac, sol.Throttle)
		}
		if frac <= 1 {
			if !sol.Converged || !scalar.EqualWithinAbs(sol.Throttle, frac, 1e-6) {
				t.Fatalf("required %.2f of max: throttle %f converged=%t", frac, sol.Throttle, sol.Converged)
			}
		} else if sol.Converged || sol.Throttle != 1 {
			t.Fatalf("required %.2f of max: throttle %f converged=%t", frac, sol.Throttle, sol.Converged)
		}
	}
}

func TestThrottleErrOnNonConverge(t *testing.T) {
	engines := twinJet()
	atm := Atmosphere{}.At(35e3 * ft2m)
	in := throttleInput{thrustRequired: 1.5 * engines.MaxThrust(atm, 0.79), atm: atm, mach: 0.79}
	for _, errOn := range []bool{false, true} {
		bal, err := NewThrottleBalance(engines, Bounded, false, FixedAllocation, nil, errOn)
		if err != nil {
			t.Fatal(err)
		}
		sol := bal.balance(in)
		if sol.Converged || sol.Throttle != 1 {
			t.Fatalf("errOnNonConverge=%t: throttle %f converged=%t", errOn, sol.Throttle, sol.Converged)
		}
		if errOn != errors.Is(sol.Err, tools.ErrNonConvergence) {
			t.Fatalf("errOnNonConverge=%t: error %v", errOn, sol.Err)
		}
		// A reachable thrust never errors.
		if sol := bal.balance(throttleInput{thrustRequired: 0.5 * engines.MaxThrust(atm, 0.79), atm: atm, mach: 0.79}); sol.Err != nil || !sol.Converged {
			t.Fatalf("errOnNonConverge=%t: reachable thrust: %+v", errOn, sol)
		}
	}
}

func TestSolvedThrottleUnbounded(t *testing.T) {
	engines := twinJet()
	atm := Atmosphere{}.At(0)
	maxThrust := engines.MaxThrust(atm, 0.2)
	for _, enf := range []ThrottleEnforcement{PathConstraint, BoundaryConstraint, NoEnforcement} {
		bal, err := NewThrottleBalance(engines, enf, false, FixedAllocation, nil, false)
		if err != nil {
			t.Fatal(err)
		}
		if bal.Enforcement() != enf {
			t.Fatalf("enforcement %s instead of %s", bal.Enforcement(), enf)
		}
		// The solve itself may leave [0, 1]; the problem constrains it.
		sol := bal.balance(throttleInput{thrustRequired: 1.2 * maxThrust, atm: atm, mach: 0.2})
		if !sol.Converged || !scalar.EqualWithinAbs(sol.Throttle, 1.2, 1e-6) {
			t.Fatalf("%s: throttle %f converged=%t", enf, sol.Throttle, sol.Converged)
		}
		if math.Abs(sol.Residual) > 1e-3 {
			t.Fatalf("%s: thrust residual %f N", enf, sol.Residual)
		}
	}
}

func TestOptimizedThrottle(t *testing.T) {
	engines := twinJet()
	bal, err := NewThrottleBalance(engines, PathConstraint, true, FixedAllocation, nil, false)
	if err != nil {
		t.Fatal(err)
	}
	opt, ok := bal.(OptimizedThrottle)
	if !ok {
		t.Fatalf("expected an optimized throttle, got %T", bal)
	}
	atm := Atmosphere{}.At(0)
	sol := opt.balance(throttleInput{thrustRequired: 1e5, atm: atm, throttle: 0.4})
	if sol.Throttle != 0.4 {
		t.Fatalf("throttle %f", sol.Throttle)
	}
	if !scalar.EqualWithinAbs(sol.Residual, 1e5-0.4*engines.MaxThrust(atm, 0), 1e-6) {
		t.Fatalf("residual %f", sol.Residual)
	}
	lo, hi := throttleBounds(Bounded)
	if lo != 0 || hi != 1 {
		t.Fatalf("bounded throttle bounds [%f, %f]", lo, hi)
	}
	lo, hi = throttleBounds(PathConstraint)
	if !math.IsInf(lo, -1) || !math.IsInf(hi, 1) {
		t.Fatalf("path constrained throttle bounds [%f, %f]", lo, hi)
	}
}

func TestAllocateThrottlePartition(t *testing.T) {
	for _, tc := range []struct {
		aggregate float64
		fractions []float64
	}{
		{0.8, []float64{0.5}},
		{1, []float64{0.2, 0.3}},
		{0.37, []float64{0, 0.9, 0.05}},
		{1.4, []float64{1}},
	} {
		dst := make([]float64, len(tc.fractions)+1)
		AllocateThrottle(tc.aggregate, tc.fractions, dst)
		if !scalar.EqualWithinAbs(floats.Sum(dst), tc.aggregate, 1e-12) {
			t.Fatalf("fractions %v: per type throttles %v sum to %f instead of %f", tc.fractions, dst, floats.Sum(dst), tc.aggregate)
		}
		for i, f := range tc.fractions {
			if !scalar.EqualWithinAbs(dst[i], f*tc.aggregate, 1e-12) {
				t.Fatalf("type %d throttle %f is rescaled", i, dst[i])
			}
		}
	}
}

func TestAggregateThrottle(t *testing.T) {
	big := NewTurbofan("big", 30e3*lbf2N, 0.38*lbm2kg/(3600*lbf2N))
	small := NewTurbofan("small", 10e3*lbf2N, 0.5*lbm2kg/(3600*lbf2N))
	cfg, err := NewEngineConfig([]Engine{big, small}, []int{2, 1})
	if err != nil {
		t.Fatal(err)
	}
	bal, err := NewThrottleBalance(cfg, Bounded, true, FixedAllocation, []float64{0.6}, false)
	if err != nil {
		t.Fatal(err)
	}
	agg, ok := bal.(AggregateThrottle)
	if !ok {
		t.Fatalf("multi engine configurations solve an aggregate throttle, got %T", bal)
	}
	atm := Atmosphere{}.At(10e3 * ft2m)
	sol := agg.balance(throttleInput{thrustRequired: 20e3 * lbf2N, atm: atm, mach: 0.4})
	if !sol.Converged {
		t.Fatalf("aggregate throttle did not converge: %+v", sol)
	}
	if !scalar.EqualWithinAbs(floats.Sum(sol.Throttles), sol.Throttle, 1e-12) {
		t.Fatalf("throttles %v do not sum to %f", sol.Throttles, sol.Throttle)
	}
	if !scalar.EqualWithinAbs(sol.Thrust, 20e3*lbf2N, 1e-2) {
		t.Fatalf("thrust %f N", sol.Thrust)
	}
	// Above the total maximum thrust the bounded aggregate stops at one, and so
	// does every per type throttle.
	over := agg.balance(throttleInput{thrustRequired: 1.2 * cfg.(MultiEngineType).MaxThrust(atm, 0.4), atm: atm, mach: 0.4})
	if over.Converged || over.Throttle != 1 {
		t.Fatalf("unreachable thrust: aggregate %f converged=%t", over.Throttle, over.Converged)
	}
	for i, thr := range over.Throttles {
		if thr < 0 || thr > 1 {
			t.Fatalf("unreachable thrust: type %d throttle %f outside of [0, 1]", i, thr)
		}
	}
	free, err := NewThrottleBalance(cfg, NoEnforcement, false, FixedAllocation, []float64{0.6}, false)
	if err != nil {
		t.Fatal(err)
	}
	if sol := free.balance(throttleInput{thrustRequired: 1.2 * cfg.(MultiEngineType).MaxThrust(atm, 0.4), atm: atm, mach: 0.4}); !sol.Converged || sol.Throttle <= 1 || math.Abs(sol.Residual) > 1e-3 {
		t.Fatalf("unbounded aggregate %f converged=%t residual %f N", sol.Throttle, sol.Converged, sol.Residual)
	}
	if _, err := NewThrottleBalance(cfg, Bounded, false, FixedAllocation, []float64{0.6, 0.6}, false); err == nil {
		t.Fatal("wrong number of fractions accepted")
	}
	if _, err := NewThrottleBalance(cfg, Bounded, false, FixedAllocation, []float64{1.2}, false); err == nil {
		t.Fatal("fractions above one accepted")
	}
	if bal, err := NewThrottleBalance(cfg, Bounded, false, FixedAllocation, nil, false); err != nil || len(bal.(AggregateThrottle).Fixed) != 1 {
		t.Fatalf("default fractions: %v", err)
	}
}

func TestParseThrottle(t *testing.T) {
	for s, exp := range map[string]ThrottleEnforcement{"path_constraint": PathConstraint, "boundary_constraint": BoundaryConstraint, "bounded": Bounded, "None": NoEnforcement} {
		e, err := ParseThrottleEnforcement(s)
		if err != nil || e != exp {
			t.Fatalf("%q: %s %v", s, e, err)
		}
	}
	if _, err := ParseThrottleEnforcement("soft"); err == nil {
		t.Fatal("unknown enforcement accepted")
	}
	if a, err := ParseThrottleAllocation("dynamic"); err != nil || a != DynamicAllocation {
		t.Fatalf("dynamic allocation: %s %v", a, err)
	}
}
