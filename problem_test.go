package amd

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/ChristopherRabotin/amd/tools"
	kitlog "github.com/go-kit/kit/log"
	"gonum.org/v1/gonum/floats/scalar"
)

// payloadCheck is a post-mission subsystem returning its input mass minus a margin.
type payloadCheck struct {
	margin float64 // kg
	calls  int
}

func (s *payloadCheck) Inputs() []SubsystemInput {
	return []SubsystemInput{{Name: "mass", Units: "lbm", Source: MissionLandingTouchdown}}
}

func (s *payloadCheck) Outputs() []SubsystemOutput {
	return []SubsystemOutput{{Name: "excess", Units: "lbm"}}
}

func (s *payloadCheck) Setup() error { return nil }

func (s *payloadCheck) Compute(in map[string]float64) (map[string]float64, error) {
	s.calls++
	return map[string]float64{"excess": in["mass"] - s.margin/lbm2kg}, nil
}

type payloadCheckBuilder struct {
	sub *payloadCheck
}

func (b payloadCheckBuilder) Name() string { return "payload_check" }

func (b payloadCheckBuilder) BuildPostMission(*AircraftDefinition, kitlog.Logger) (Subsystem, error) {
	return b.sub, nil
}

// assemble runs every assembly step up to the objective and calls between, if
// set, before Setup.
func assemble(t *testing.T, ac *AircraftDefinition, info PhaseInfo, optimizer, objective string, between func(*Problem) error) *Problem {
	t.Helper()
	prob := NewProblem(t.Name(), nil)
	steps := []func() error{
		func() error { return prob.LoadInputs(ac, info) },
		prob.CheckAndPreprocessInputs,
		prob.AddPreMissionSystems,
		prob.AddPhases,
		prob.AddPostMissionSystems,
		prob.LinkPhases,
		func() error { return prob.AddDriver(optimizer, DriverOptions{}) },
		prob.AddDesignVariables,
		func() error { return prob.AddObjective(objective, 0) },
	}
	if between != nil {
		steps = append(steps, func() error { return between(prob) })
	}
	steps = append(steps, prob.Setup, prob.SetInitialGuesses, prob.FinalSetup)
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("step %d: %s", i, err)
		}
	}
	return prob
}

func TestProblemStepOrder(t *testing.T) {
	ac := benchAircraft(t)
	prob := NewProblem("order", nil)
	if err := prob.AddPhases(); !errors.Is(err, ErrOutOfOrder) {
		t.Fatalf("AddPhases before LoadInputs: %v", err)
	}
	if err := prob.LoadInputs(ac, SizingPhaseInfo()); err != nil {
		t.Fatal(err)
	}
	if err := prob.LoadInputs(ac, SizingPhaseInfo()); !errors.Is(err, ErrOutOfOrder) {
		t.Fatalf("LoadInputs twice: %v", err)
	}
	if err := prob.CheckAndPreprocessInputs(); err != nil {
		t.Fatal(err)
	}
	if err := prob.AddDriver("SLSQP", DriverOptions{}); !errors.Is(err, ErrOutOfOrder) {
		t.Fatalf("AddDriver before the phases: %v", err)
	}
	if _, err := prob.Run(RunOptions{}); !errors.Is(err, ErrOutOfOrder) {
		t.Fatalf("Run before FinalSetup: %v", err)
	}
	if err := prob.SetVal(MissionGrossMass, 1, "kg"); !errors.Is(err, ErrOutOfOrder) {
		t.Fatalf("SetVal before Setup: %v", err)
	}
	if _, err := prob.GetVal(MissionRange, "nmi"); !errors.Is(err, ErrOutOfOrder) {
		t.Fatalf("GetVal before Run: %v", err)
	}
	// Linking and the post-mission systems may be added in either order.
	for _, step := range []func() error{prob.AddPreMissionSystems, prob.AddPhases, prob.LinkPhases, prob.AddPostMissionSystems} {
		if err := step(); err != nil {
			t.Fatal(err)
		}
	}
}

func TestProblemInputErrors(t *testing.T) {
	ac := benchAircraft(t)
	for _, tc := range []struct {
		name  string
		ac    *AircraftDefinition
		tweak func(*PhaseInfo)
		exp   error
	}{
		{"no phases", ac, func(pi *PhaseInfo) { pi.Phases = nil }, ErrInvalidPhase},
		{"duplicate phase", ac, func(pi *PhaseInfo) { pi.Phases[1].Name = "climb" }, ErrInvalidPhase},
		{"dotted phase", ac, func(pi *PhaseInfo) { pi.Phases[0].Name = "climb.1" }, ErrInvalidPhase},
		{"target range units", ac, func(pi *PhaseInfo) { pi.PostMission.TargetRange = Q(3375, "lbm") }, ErrUnitMismatch},
		{"missing wing", NewAircraftDefinition(map[string]Variable{AircraftNumEngines: V("unitless", 2)}), func(*PhaseInfo) {}, ErrMissingVariable},
		{"bad descriptor", ac, func(pi *PhaseInfo) { pi.Phases[2].UserOptions["no_climb"] = 1.5 }, ErrInvalidPhase},
	} {
		info := SizingPhaseInfo()
		tc.tweak(&info)
		prob := NewProblem(tc.name, nil)
		if err := prob.LoadInputs(tc.ac, info); err != nil {
			t.Fatal(err)
		}
		err := prob.CheckAndPreprocessInputs()
		if !errors.Is(err, tc.exp) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.exp, err)
		}
	}
}

func TestFixedInitialHasNoDesignVariable(t *testing.T) {
	ac := benchAircraft(t)
	landing, err := ac.WithOverride(SettingsEquationsOfMotion, Solved2DOF.Variable())
	if err != nil {
		t.Fatal(err)
	}
	prob := assemble(t, landing, LandingPhaseInfo(), "SLSQP", "mass", nil)
	info := LandingPhaseInfo()
	// GH has a fixed initial distance; HI and IJ start where the previous
	// segment ends. Neither has a t_initial design variable.
	for _, ph := range info.Phases {
		if name := "traj." + ph.Name + ".t_initial"; prob.HasDesignVariable(name) {
			t.Fatalf("%s registered as a design variable", name)
		}
		if !prob.HasDesignVariable("traj." + ph.Name + ".t_duration") {
			t.Fatalf("%s: free duration without a design variable", ph.Name)
		}
	}
	linkages := func(prob *Problem) (links []Constraint) {
		for _, c := range prob.Constraints() {
			if strings.HasPrefix(c.Name, "traj.linkages.") {
				links = append(links, c)
			}
		}
		return
	}
	if links := linkages(prob); len(links) != 0 {
		t.Fatalf("connected phases have linkage constraints %+v", links)
	}

	// A fixed initial value on a later phase is kept and tied by a continuity constraint.
	info.Phases[1].UserOptions["fix_initial"] = true
	info.Phases[1].UserOptions["fix_duration"] = true
	prob = assemble(t, landing, info, "SLSQP", "mass", nil)
	if prob.HasDesignVariable("traj.HI.t_initial") || prob.HasDesignVariable("traj.HI.t_duration") {
		t.Fatal("fixed HI endpoints registered as design variables")
	}
	links := linkages(prob)
	if len(links) != 1 || links[0].Name != "traj.linkages.GH:HI.distance" || !links[0].HasEquals {
		t.Fatalf("linkages %+v", links)
	}
}

func TestSizingDesignVariables(t *testing.T) {
	prob := assemble(t, benchAircraft(t), SizingPhaseInfo(), "SNOPT", "fuel_burned", nil)
	if !prob.HasDesignVariable(MissionDesignGrossMass) {
		t.Fatal("gross mass is not optimized")
	}
	for _, dv := range prob.DesignVariables() {
		if dv.Value < dv.Lower || dv.Value > dv.Upper {
			t.Fatalf("%s=%g outside of [%g, %g]", dv.Name, dv.Value, dv.Lower, dv.Upper)
		}
		if dv.Name == "traj.cruise.t_duration" && !scalar.EqualWithinAbs(dv.Value, 113*60, 1e-9) {
			t.Fatalf("cruise duration guess %f s", dv.Value)
		}
	}
	names := make(map[string]int)
	for _, c := range prob.Constraints() {
		names[c.Name]++
	}
	for name, count := range map[string]int{
		MissionMassResidual:                      1,
		MissionRangeResidual:                     1,
		"traj.climb.timeseries.throttle":         1,
		"traj.cruise.timeseries.throttle":        2,
		"traj.descent.timeseries.altitude_rate":  1,
		"traj.linkages.climb:cruise.time":        0,
		"traj.linkages.cruise:descent.time":      0,
	} {
		if names[name] != count {
			t.Fatalf("%d constraints on %s instead of %d", names[name], name, count)
		}
	}
	// The climb starts from its input value; cruise and descent start where the
	// previous phase ends, whatever their initial bounds.
	for _, ph := range []string{"climb", "cruise", "descent"} {
		if prob.HasDesignVariable("traj." + ph + ".t_initial") {
			t.Fatalf("%s initial time is a design variable", ph)
		}
	}
	info := SizingPhaseInfo()
	info.Phases[0].UserOptions["input_initial"] = false
	free := assemble(t, benchAircraft(t), info, "SNOPT", "fuel_burned", nil)
	found := false
	for _, dv := range free.DesignVariables() {
		if dv.Name == "traj.climb.t_initial" {
			found = true
			if dv.Lower != 0 || !scalar.EqualWithinAbs(dv.Upper, 120, 1e-9) {
				t.Fatalf("climb initial bounds [%g, %g] s", dv.Lower, dv.Upper)
			}
		}
	}
	if !found || free.HasDesignVariable("traj.cruise.t_initial") {
		t.Fatal("only the free first phase has an initial time design variable")
	}

	outputs := prob.Outputs()
	for _, name := range []string{MissionFuelBurned, MissionLandingFieldLen, "traj.descent.states:mass", "traj.climb.timeseries.mach"} {
		found := false
		for _, out := range outputs {
			found = found || out == name
		}
		if !found {
			t.Fatalf("%s is not registered", name)
		}
	}
}

func TestProblemConnections(t *testing.T) {
	ac := benchAircraft(t)
	for _, tc := range []struct {
		name     string
		src, tgt string
		index    []int
		exp      error
	}{
		{"unknown source", "traj.cruise.states:fuel", "payload_check.mass", nil, ErrInvalidConnection},
		{"unknown target", "traj.descent.states:mass", "payload_check.volume", nil, ErrInvalidConnection},
		{"unknown subsystem", "traj.descent.states:mass", "landing.mass", nil, ErrInvalidConnection},
		{"units", "traj.descent.states:distance", "payload_check.mass", []int{-1}, ErrUnitMismatch},
		{"index", "traj.descent.states:mass", "payload_check.mass", []int{1000}, ErrInvalidConnection},
	} {
		info := SizingPhaseInfo()
		info.PostMission.ExternalSubsystems = []SubsystemBuilder{payloadCheckBuilder{&payloadCheck{}}}
		prob := NewProblem(tc.name, nil)
		for _, step := range []func() error{
			func() error { return prob.LoadInputs(ac, info) },
			prob.CheckAndPreprocessInputs, prob.AddPreMissionSystems, prob.AddPhases,
			prob.AddPostMissionSystems, prob.LinkPhases,
			func() error { return prob.AddDriver("SLSQP", DriverOptions{}) },
			prob.AddDesignVariables,
			func() error { return prob.AddObjective("fuel_burned", 0) },
			func() error { return prob.Connect(tc.src, tc.tgt, tc.index...) },
		} {
			if err := step(); err != nil {
				t.Fatalf("%s: %s", tc.name, err)
			}
		}
		if err := prob.Setup(); !errors.Is(err, tc.exp) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.exp, err)
		}
	}
}

func TestProblemConstraintsAndObjective(t *testing.T) {
	ac := benchAircraft(t)
	info := SizingPhaseInfo()
	prob := NewProblem("objective", nil)
	for _, step := range []func() error{
		func() error { return prob.LoadInputs(ac, info) },
		prob.CheckAndPreprocessInputs, prob.AddPreMissionSystems, prob.AddPhases,
		prob.AddPostMissionSystems, prob.LinkPhases,
		func() error { return prob.AddDriver("IPOPT", DriverOptions{}) },
		prob.AddDesignVariables,
	} {
		if err := step(); err != nil {
			t.Fatal(err)
		}
	}
	if err := prob.AddObjective("payload", 0); !errors.Is(err, ErrInvalidObjective) {
		t.Fatalf("unknown objective: %v", err)
	}
	if err := prob.AddObjective("range", 0); err != nil {
		t.Fatal(err)
	}
	if err := prob.AddConstraint(MissionLandingFieldLen, ConstraintSpec{Upper: F(7000), Units: "ft"}); err != nil {
		t.Fatal(err)
	}
	if err := prob.AddConstraint(MissionFuelBurned, ConstraintSpec{Units: "lbm"}); !errors.Is(err, ErrInvalidPhase) {
		t.Fatalf("constraint without values: %v", err)
	}
	if err := prob.Setup(); err != nil {
		t.Fatal(err)
	}
	cons := prob.Constraints()
	c := cons[len(cons)-1]
	if c.Name != MissionLandingFieldLen || !c.HasUpper || !scalar.EqualWithinAbs(c.Upper, 7000*ft2m, 1e-9) || c.Ref != ft2m {
		t.Fatalf("field length constraint %+v", c)
	}
	if prob.objective.Ref >= 0 {
		t.Fatalf("range objective is maximized with a negative reference, got %f", prob.objective.Ref)
	}
	if err := prob.AddConstraint(MissionFuelBurned, ConstraintSpec{Upper: F(1)}); !errors.Is(err, ErrOutOfOrder) {
		t.Fatalf("constraint after Setup: %v", err)
	}
}

func TestDriverSettings(t *testing.T) {
	d, err := NewDriver("slsqp", DriverOptions{MaxIter: 20, Settings: map[string]float64{"TOL": 1e-4, "disp": 0}})
	if err != nil {
		t.Fatal(err)
	}
	if d.Optimizer != "SLSQP" || d.MaxIter != 20 || d.OptimalityTol != 1e-4 || d.FeasibilityTol != 1e-6 {
		t.Fatalf("driver %+v", d)
	}
	// Lower cased keys, as read by viper, are accepted.
	d, err = NewDriver("SNOPT", DriverOptions{MaxIter: 20, Settings: map[string]float64{
		"major iterations limit":      40,
		"Major feasibility tolerance": 1e-5,
		"iprint":                      0,
	}})
	if err != nil {
		t.Fatal(err)
	}
	if d.MaxIter != 40 || d.FeasibilityTol != 1e-5 {
		t.Fatalf("driver %+v", d)
	}
	d, err = NewDriver("COBYLA", DriverOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if d.MaxIter != 50 || d.FeasibilityTol != 2e-4 {
		t.Fatalf("driver %+v", d)
	}
	for _, tc := range []struct {
		optimizer string
		opts      DriverOptions
	}{
		{"NEWUOA", DriverOptions{}},
		{"SLSQP", DriverOptions{MaxIter: -1}},
		{"SLSQP", DriverOptions{Settings: map[string]float64{"Major iterations limit": 10}}},
		{"IPOPT", DriverOptions{Settings: map[string]float64{"tol": 0}}},
		{"IPOPT", DriverOptions{Settings: map[string]float64{"max_iter": 0}}},
	} {
		if _, err := NewDriver(tc.optimizer, tc.opts); !errors.Is(err, ErrInvalidDriver) {
			t.Fatalf("%s %+v: expected an invalid driver, got %v", tc.optimizer, tc.opts, err)
		}
	}
}

func TestRunEvaluateOnly(t *testing.T) {
	check := &payloadCheck{margin: 1000 * lbm2kg}
	info := SizingPhaseInfo()
	info.PostMission.ExternalSubsystems = []SubsystemBuilder{payloadCheckBuilder{check}}
	prob := assemble(t, benchAircraft(t), info, "SLSQP", "fuel_burned", nil)
	if err := prob.SetVal(MissionGrossMass, 170e3, "lbm"); err != nil {
		t.Fatal(err)
	}
	if err := prob.SetVal("traj.cruise.t_duration", 1, "lbm"); !errors.Is(err, ErrUnitMismatch) {
		t.Fatalf("duration set in lbm: %v", err)
	}
	if err := prob.SetVal("traj.cruise.thrust", 1, "N"); !errors.Is(err, ErrUnknownVariable) {
		t.Fatalf("unknown variable: %v", err)
	}
	res, err := prob.Run(RunOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Failed || res.Iterations != 0 {
		t.Fatalf("failed=%t after %d iterations", res.Failed, res.Iterations)
	}
	gross, err := res.Last(MissionGrossMass, "lbm")
	if err != nil || !scalar.EqualWithinAbs(gross, 170e3, 1e-6) {
		t.Fatalf("gross mass %f lbm (%v)", gross, err)
	}
	burned, _ := res.Last(MissionFuelBurned, "lbm")
	touchdown, _ := res.Last(MissionLandingTouchdown, "lbm")
	if burned <= 0 || !scalar.EqualWithinAbs(gross-burned, touchdown, 1e-6) {
		t.Fatalf("fuel burned %f lbm, touchdown %f lbm", burned, touchdown)
	}
	// The subsystem feeds neither the objective nor a constraint, so it only runs for the final evaluation.
	if check.calls != 1 {
		t.Fatalf("subsystem computed %d times", check.calls)
	}
	excess, err := res.Last("payload_check.excess", "lbm")
	if err != nil || !scalar.EqualWithinAbs(excess, touchdown-1000, 1e-6) {
		t.Fatalf("excess %f lbm (%v)", excess, err)
	}
	// Phases are chained: each starts where the previous one ended.
	for i := 1; i < len(res.Phases); i++ {
		prev, cur := res.Phases[i-1], res.Phases[i]
		if !scalar.EqualWithinAbs(cur.First("mass"), prev.Final("mass"), 1e-9) {
			t.Fatalf("%s starts with %f kg, %s ended with %f kg", cur.Name, cur.First("mass"), prev.Name, prev.Final("mass"))
		}
		if !scalar.EqualWithinAbs(cur.First("distance"), prev.Final("distance"), 1e-6) {
			t.Fatalf("%s starts at %f m, %s ended at %f m", cur.Name, cur.First("distance"), prev.Name, prev.Final("distance"))
		}
		// The cruise initial bounds start at 64 min, after the 40 min climb guess ends.
		if !scalar.EqualWithinAbs(cur.First("time"), prev.Final("time"), 1e-9) || cur.Initial != prev.Initial+prev.Duration {
			t.Fatalf("%s starts at %f s, %s ended at %f s", cur.Name, cur.First("time"), prev.Name, prev.Final("time"))
		}
	}
	if climb := res.Phase("climb"); climb.Initial != 0 || !scalar.EqualWithinAbs(climb.Final("time"), 40*60, 1e-9) {
		t.Fatalf("climb from %f s to %f s", climb.Initial, climb.Final("time"))
	}
	rng, err := prob.GetVal(MissionRange, "nmi")
	if err != nil || len(rng) != 1 || rng[0] <= 0 || math.IsNaN(rng[0]) {
		t.Fatalf("range %v (%v)", rng, err)
	}
	if _, err := res.Val("traj.cruise.timeseries.mass", "ft"); !errors.Is(err, ErrUnitMismatch) {
		t.Fatalf("mass in ft: %v", err)
	}
}

// steepClimb is the sizing mission with a bounded climb throttle and the
// climb shortened until the engines cannot deliver the required thrust.
func steepClimb(t *testing.T, errOnNonConverge bool) *Problem {
	t.Helper()
	info := SizingPhaseInfo()
	info.Phases[0].UserOptions["throttle_enforcement"] = "bounded"
	info.Phases[0].UserOptions["err_on_non_converge"] = errOnNonConverge
	prob := assemble(t, benchAircraft(t), info, "SLSQP", "fuel_burned", nil)
	if err := prob.SetVal("traj.climb.t_duration", 5, "min"); err != nil {
		t.Fatal(err)
	}
	return prob
}

func TestThrottleNonConvergenceWarning(t *testing.T) {
	prob := steepClimb(t, false)
	res, err := prob.Run(RunOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Failed {
		t.Fatalf("non converged throttle failed the run: %v", res.SolverWarnings)
	}
	climb := res.Phase("climb")
	if len(climb.NonConverged) == 0 {
		t.Fatal("no node reported as non converged")
	}
	for _, node := range climb.NonConverged {
		if thr := climb.Timeseries["throttle"][node]; thr != 1 {
			t.Fatalf("node %d: bounded throttle %f", node, thr)
		}
	}
	if len(res.Phase("cruise").NonConverged) != 0 {
		t.Fatalf("cruise nodes %v not converged", res.Phase("cruise").NonConverged)
	}
	found := false
	for _, w := range res.SolverWarnings {
		found = found || (strings.HasPrefix(w, "phase climb:") && strings.Contains(w, "throttle balance did not converge"))
	}
	if !found {
		t.Fatalf("no throttle warning in %v", res.SolverWarnings)
	}
}

func TestThrottleErrOnNonConvergeFailsRun(t *testing.T) {
	prob := steepClimb(t, true)
	res, err := prob.Run(RunOptions{})
	if err != nil {
		t.Fatalf("convergence failures are not configuration errors: %v", err)
	}
	if !res.Failed || !prob.Failed || res.ExitStatus != tools.EvaluationFailure.String() {
		t.Fatalf("failed=%t status %s", res.Failed, res.ExitStatus)
	}
	found := false
	for _, w := range res.SolverWarnings {
		found = found || (strings.Contains(w, "phase climb") && strings.Contains(w, tools.ErrNonConvergence.Error()))
	}
	if !found {
		t.Fatalf("no Newton error in %v", res.SolverWarnings)
	}
}

// twoEngineTypes is the benchmark aircraft with a third, smaller and thirstier
// engine of a second type.
func twoEngineTypes(t *testing.T) *AircraftDefinition {
	t.Helper()
	base := benchAircraft(t)
	vars := make(map[string]Variable)
	for _, name := range base.Names() {
		vars[name], _ = base.Get(name)
	}
	vars[AircraftNumEngines] = V("unitless", 2, 1)
	vars[AircraftSLSThrust] = V("lbf", 28928.1, 10000)
	vars[AircraftTSFC] = V("lbm/h/lbf", 0.38, 0.6)
	return NewAircraftDefinition(vars)
}

func TestThrottleAllocationDesignVariables(t *testing.T) {
	for _, tc := range []struct {
		mode  string
		phase string
		sets  int
	}{
		{"static", "cruise", 1},
		{"dynamic", "climb", 19},
	} {
		info := SizingPhaseInfo()
		idx := 0
		for i, ph := range info.Phases {
			if ph.Name == tc.phase {
				idx = i
			}
		}
		info.Phases[idx].UserOptions["throttle_allocation"] = tc.mode
		prob := assemble(t, twoEngineTypes(t), info, "SLSQP", "fuel_burned", nil)
		prefix := "traj." + tc.phase + "."
		count := 0
		for _, dv := range prob.DesignVariables() {
			if strings.HasPrefix(dv.Name, prefix+"throttle_allocations[") {
				count++
				if dv.Lower != 0 || dv.Upper != 1 || dv.Value != 0.5 {
					t.Fatalf("%s: %s=%g in [%g, %g]", tc.mode, dv.Name, dv.Value, dv.Lower, dv.Upper)
				}
			}
		}
		if count != tc.sets {
			t.Fatalf("%s: %d allocation design variables instead of %d", tc.mode, count, tc.sets)
		}
		if !prob.HasDesignVariable(fmt.Sprintf("%sthrottle_allocations[%d,0]", prefix, tc.sets-1)) {
			t.Fatalf("%s: last allocation set missing", tc.mode)
		}
		sums := 0
		for _, c := range prob.Constraints() {
			if c.Name == prefix+"throttle_allocation_sum" {
				sums++
				if !c.HasUpper || c.Upper != 1 {
					t.Fatalf("%s: allocation sum constraint %+v", tc.mode, c)
				}
			}
		}
		if sums != 1 {
			t.Fatalf("%s: %d allocation sum constraints", tc.mode, sums)
		}
		other := "traj.descent."
		if prob.HasDesignVariable(other + "throttle_allocations[0,0]") {
			t.Fatalf("%s: fixed allocation phase has allocation design variables", tc.mode)
		}

		res, err := prob.Run(RunOptions{})
		if err != nil {
			t.Fatal(err)
		}
		even, err := res.Val(prefix+"throttle_allocation_sum", "unitless")
		if err != nil || len(even) != tc.sets || !scalar.EqualWithinAbs(even[0], 0.5, 1e-12) {
			t.Fatalf("%s: allocation sums %v (%v)", tc.mode, even, err)
		}
		evenFuel := res.Phase(tc.phase).Timeseries["fuel_flow"]

		// Moving thrust to the thirstier engine raises the fuel flow.
		for s := 0; s < tc.sets; s++ {
			if err := prob.SetVal(fmt.Sprintf("%sthrottle_allocations[%d,0]", prefix, s), 0.2, "unitless"); err != nil {
				t.Fatal(err)
			}
		}
		res, err = prob.Run(RunOptions{})
		if err != nil {
			t.Fatal(err)
		}
		shifted, _ := res.Val(prefix+"throttle_allocation_sum", "unitless")
		for _, v := range shifted {
			if !scalar.EqualWithinAbs(v, 0.2, 1e-12) {
				t.Fatalf("%s: allocation sums %v", tc.mode, shifted)
			}
		}
		ph := res.Phase(tc.phase)
		if len(ph.NonConverged) != 0 {
			t.Fatalf("%s: nodes %v not converged", tc.mode, ph.NonConverged)
		}
		for i, ff := range ph.Timeseries["fuel_flow"] {
			if ff <= evenFuel[i] {
				t.Fatalf("%s: node %d fuel flow %f kg/s with allocation 0.2, %f kg/s with 0.5", tc.mode, i, ff, evenFuel[i])
			}
			if !scalar.EqualWithinAbs(ph.Timeseries["thrust"][i], ph.Timeseries["thrust_required"][i], 1e-3) {
				t.Fatalf("%s: node %d thrust %f N for %f N required", tc.mode, i, ph.Timeseries["thrust"][i], ph.Timeseries["thrust_required"][i])
			}
		}
	}
}
