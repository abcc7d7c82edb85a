package amd

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/brunoga/deep"
)

// ConstraintSpec constrains a timeseries variable of a phase. Exactly one of
// Equals or at least one of Lower and Upper must be set.
type ConstraintSpec struct {
	Equals, Lower, Upper *float64
	Loc                  string // "initial" or "final" for boundary constraints
	Units                string
	Type                 string // "boundary" or "path"
	Ref                  float64
}

// F returns a pointer to v, to fill ConstraintSpec bounds.
func F(v float64) *float64 {
	return &v
}

// PhaseDescriptor is the declarative definition of one phase.
//
// UserOptions maps option names to Quantity, Bounds, bool, int, float64,
// string or map[string]ConstraintSpec (for "constraints").
// SubsystemOptions maps a subsystem name to its options; "core_aerodynamics" is
// the built in aerodynamics. InitialGuesses maps a variable to its (start, end) guess.
type PhaseDescriptor struct {
	UserOptions      map[string]interface{}
	SubsystemOptions map[string]map[string]interface{}
	InitialGuesses   map[string]Bounds
}

// NamedPhase is a phase descriptor with its name.
type NamedPhase struct {
	Name string
	PhaseDescriptor
}

// PreMissionOptions configures the pre-mission systems.
type PreMissionOptions struct {
	IncludeTakeoff bool
	OptimizeMass   bool
}

// PostMissionOptions configures the post-mission systems.
type PostMissionOptions struct {
	IncludeLanding     bool
	ConstrainRange     bool
	TargetRange        Quantity
	ExternalSubsystems []SubsystemBuilder
}

// PhaseInfo is the ordered set of phases of a mission.
type PhaseInfo struct {
	PreMission  PreMissionOptions
	Phases      []NamedPhase
	PostMission PostMissionOptions
}

// Phase returns the named phase.
func (pi PhaseInfo) Phase(name string) (NamedPhase, bool) {
	for _, p := range pi.Phases {
		if p.Name == name {
			return p, true
		}
	}
	return NamedPhase{}, false
}

// Copy returns a deep copy of the phases. External subsystem builders are
// shared since they carry no mutable state.
func (pi PhaseInfo) Copy() (PhaseInfo, error) {
	phases, err := deep.Copy(pi.Phases)
	if err != nil {
		return PhaseInfo{}, err
	}
	post := pi.PostMission
	post.ExternalSubsystems = append([]SubsystemBuilder(nil), pi.PostMission.ExternalSubsystems...)
	return PhaseInfo{PreMission: pi.PreMission, Phases: phases, PostMission: post}, nil
}

// independentVar is what a phase is integrated against.
type independentVar uint8

const (
	byTime independentVar = iota + 1
	byDistance
)

func (v independentVar) units() string {
	if v == byDistance {
		return "m"
	}
	return "s"
}

func (v independentVar) String() string {
	if v == byDistance {
		return "distance"
	}
	return "time"
}

// phaseConstraint is a validated constraint, in SI.
type phaseConstraint struct {
	name                      string
	equals, lower, upper      float64
	hasEq, hasLower, hasUpper bool
	loc                       string // "initial", "final" or "path"
	ref                       float64
	displayUnits              string
}

// phaseOptions are the validated options of a phase, in SI.
type phaseOptions struct {
	numSegments, order            int
	fixInitial, fixDuration       bool
	inputInitial                  bool // initial value fed from outside, never a design variable
	independent                   independentVar
	initialBounds, durationBounds [2]float64
	initialRef, durationRef       float64
	machBounds, altitudeBounds    [2]float64
	initialMach, finalMach        float64
	initialAltitude, finalAlt     float64
	optimizeMach, optimizeAlt     bool
	polynomial                    bool
	polynomialOrder               int
	enforcement                   ThrottleEnforcement
	throttleOptimize              bool
	errOnNonConverge              bool
	allocation                    ThrottleAllocation
	groundRoll, clean, rotation   bool
	noClimb, noDescent            bool
	constrainFinal                bool
	constraints                   []phaseConstraint
	guesses                       map[string][2]float64
	aero                          aeroOptions
}

// aeroOptions are the validated "core_aerodynamics" subsystem options.
type aeroOptions struct {
	method         string // "computed" or "low_speed"
	groundAltitude float64
	table          *AeroTable
}

// Option names accepted in user_options.
var knownOptions = map[string]bool{
	"num_segments": true, "order": true,
	"fix_initial": true, "fix_duration": true, "input_initial": true,
	"initial_bounds": true, "duration_bounds": true, "initial_ref": true, "duration_ref": true,
	"mach_bounds": true, "altitude_bounds": true,
	"initial_mach": true, "final_mach": true, "initial_altitude": true, "final_altitude": true,
	"optimize_mach": true, "optimize_altitude": true,
	"use_polynomial_control": true, "polynomial_control_order": true,
	"throttle_enforcement": true, "throttle_optimize": true, "throttle_allocation": true,
	"err_on_non_converge": true,
	"ground_roll": true, "clean": true, "rotation": true,
	"no_climb": true, "no_descent": true, "constrain_final": true,
	"solve_for_distance": true, "add_initial_mass_constraint": true,
	"required_available_climb_rate": true, "constraints": true,
}

// Variables which may have an initial guess.
var knownGuesses = map[string]string{
	"time": "s", "distance": "m", "mass": "kg", "altitude": "m", "mach": "unitless", "throttle": "unitless",
}

type optionReader struct {
	where string
	opts  map[string]interface{}
	err   error
}

func (r *optionReader) fail(err error, format string, args ...interface{}) {
	if r.err == nil {
		r.err = configErr(r.where, err, format, args...)
	}
}

func (r *optionReader) boolean(name string, dflt bool) bool {
	v, ok := r.opts[name]
	if !ok {
		return dflt
	}
	b, ok := v.(bool)
	if !ok {
		r.fail(ErrInvalidPhase, "%s must be a boolean, got %T", name, v)
	}
	return b
}

func (r *optionReader) integer(name string, dflt int) int {
	v, ok := r.opts[name]
	if !ok {
		return dflt
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		if n == math.Trunc(n) {
			return int(n)
		}
	}
	r.fail(ErrInvalidPhase, "%s must be an integer, got %v", name, v)
	return dflt
}

func (r *optionReader) number(name string, dflt float64) float64 {
	v, ok := r.opts[name]
	if !ok {
		return dflt
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case Quantity:
		return n.Value
	}
	r.fail(ErrInvalidPhase, "%s must be a number, got %T", name, v)
	return dflt
}

func (r *optionReader) text(name, dflt string) string {
	v, ok := r.opts[name]
	if !ok || v == nil {
		return dflt
	}
	s, ok := v.(string)
	if !ok {
		r.fail(ErrInvalidPhase, "%s must be a string, got %T", name, v)
	}
	return s
}

// quantity returns the option in SI, checking the units against siUnits.
func (r *optionReader) quantity(name, siUnits string, dflt float64, required bool) float64 {
	v, ok := r.opts[name]
	if !ok {
		if required {
			r.fail(ErrMissingVariable, "%s", name)
		}
		return dflt
	}
	q, ok := v.(Quantity)
	if !ok {
		r.fail(ErrInvalidPhase, "%s must be a (value, units) pair, got %T", name, v)
		return dflt
	}
	val, err := q.In(siUnits)
	if err != nil {
		r.fail(ErrUnitMismatch, "%s: %s", name, err)
	}
	return val
}

// bounds returns the option in SI. siUnits may be empty to accept any time or length.
func (r *optionReader) bounds(name, siUnits string, dflt [2]float64) ([2]float64, string) {
	v, ok := r.opts[name]
	if !ok {
		return dflt, ""
	}
	b, ok := v.(Bounds)
	if !ok {
		r.fail(ErrInvalidPhase, "%s must be a (lower, upper, units) triple, got %T", name, v)
		return dflt, ""
	}
	lo, hi, err := b.In(siUnits)
	if err != nil {
		r.fail(ErrUnitMismatch, "%s: %s", name, err)
		return dflt, b.Units
	}
	if lo > hi {
		r.fail(ErrInvalidPhase, "%s: lower bound %g exceeds upper bound %g", name, b.Lower, b.Upper)
	}
	return [2]float64{lo, hi}, b.Units
}

// validate checks a phase descriptor and returns its options in SI. The
// independent variable is inferred from the units of the initial bounds, or
// from the equations of motion when those are missing.
func (d PhaseDescriptor) validate(name string, eom EquationsOfMotion) (*phaseOptions, error) {
	where := fmt.Sprintf("phase %s", name)
	for opt := range d.UserOptions {
		if !knownOptions[opt] {
			return nil, configErr(where, ErrUnknownOption, "user_options[%q]", opt)
		}
	}
	r := &optionReader{where: where, opts: d.UserOptions}
	o := &phaseOptions{
		numSegments: r.integer("num_segments", 5),
		order:       r.integer("order", 3),
		fixInitial:  r.boolean("fix_initial", false),
		fixDuration: r.boolean("fix_duration", false),
	}
	if o.numSegments < 1 || o.order < 1 {
		return nil, configErr(where, ErrInvalidPhase, "num_segments=%d and order=%d must be positive", o.numSegments, o.order)
	}

	o.independent = byTime
	if eom == Solved2DOF {
		o.independent = byDistance
	}
	if b, ok := d.UserOptions["initial_bounds"].(Bounds); ok {
		switch {
		case sameDimension(b.Units, "s"):
			o.independent = byTime
		case sameDimension(b.Units, "m"):
			o.independent = byDistance
		default:
			return nil, configErr(where, ErrUnitMismatch, "initial_bounds units %q are neither a time nor a length", b.Units)
		}
	}
	iu := o.independent.units()
	var initUnits, durUnits string
	o.initialBounds, initUnits = r.bounds("initial_bounds", iu, [2]float64{0, math.Inf(1)})
	o.durationBounds, durUnits = r.bounds("duration_bounds", iu, [2]float64{0, math.Inf(1)})
	if initUnits == "" {
		initUnits = iu
	}
	if durUnits == "" {
		durUnits = iu
	}
	o.initialRef = r.refIn("initial_ref", iu, initUnits)
	o.durationRef = r.refIn("duration_ref", iu, durUnits)
	if o.durationBounds[0] < 0 {
		r.fail(ErrInvalidPhase, "duration_bounds must be positive")
	}

	o.machBounds, _ = r.bounds("mach_bounds", "unitless", [2]float64{0, 5})
	o.altitudeBounds, _ = r.bounds("altitude_bounds", "m", [2]float64{-1000, 25000})
	o.groundRoll = r.boolean("ground_roll", false)
	o.initialMach = r.quantity("initial_mach", "unitless", 0, true)
	o.finalMach = r.quantity("final_mach", "unitless", o.initialMach, false)
	o.initialAltitude = r.quantity("initial_altitude", "m", 0, !o.groundRoll)
	o.finalAlt = r.quantity("final_altitude", "m", o.initialAltitude, false)
	o.optimizeMach = r.boolean("optimize_mach", false)
	o.optimizeAlt = r.boolean("optimize_altitude", false)

	_, hasPolyOrder := d.UserOptions["polynomial_control_order"]
	o.polynomial = r.boolean("use_polynomial_control", hasPolyOrder)
	o.polynomialOrder = r.integer("polynomial_control_order", 3)
	if o.polynomial && o.polynomialOrder < 1 {
		r.fail(ErrInvalidPhase, "polynomial_control_order must be at least 1, got %d", o.polynomialOrder)
	}

	var err error
	if o.enforcement, err = ParseThrottleEnforcement(r.text("throttle_enforcement", "path_constraint")); err != nil {
		r.fail(ErrUnknownOption, "%s", err)
	}
	o.throttleOptimize = r.boolean("throttle_optimize", false)
	o.errOnNonConverge = r.boolean("err_on_non_converge", false)
	if o.allocation, err = ParseThrottleAllocation(r.text("throttle_allocation", "fixed")); err != nil {
		r.fail(ErrUnknownOption, "%s", err)
	}
	o.clean = r.boolean("clean", false)
	o.rotation = r.boolean("rotation", false)
	o.noClimb = r.boolean("no_climb", false)
	o.noDescent = r.boolean("no_descent", false)
	o.constrainFinal = r.boolean("constrain_final", false)
	o.inputInitial = r.boolean("input_initial", false)
	r.boolean("solve_for_distance", false)
	r.boolean("add_initial_mass_constraint", false)
	r.quantity("required_available_climb_rate", "m/s", 0, false)
	if r.err != nil {
		return nil, r.err
	}
	if o.rotation {
		return nil, configErr(where, ErrInvalidPhase, "rotation phases are not supported")
	}
	for _, check := range []struct {
		name   string
		val    float64
		bounds [2]float64
	}{
		{"initial_mach", o.initialMach, o.machBounds},
		{"final_mach", o.finalMach, o.machBounds},
	} {
		if check.val < check.bounds[0]-1e-12 || check.val > check.bounds[1]+1e-12 {
			return nil, configErr(where, ErrInvalidPhase, "%s=%g outside of mach_bounds %v", check.name, check.val, check.bounds)
		}
	}
	if o.constraints, err = d.constraints(where); err != nil {
		return nil, err
	}
	if o.guesses, err = d.guesses(where); err != nil {
		return nil, err
	}
	if o.aero, err = d.aero(where); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *optionReader) refIn(name, siUnits, authored string) float64 {
	v, ok := r.opts[name]
	if !ok {
		return 0
	}
	switch ref := v.(type) {
	case Quantity:
		val, err := ref.In(siUnits)
		if err != nil {
			r.fail(ErrUnitMismatch, "%s: %s", name, err)
		}
		return val
	case float64:
		val, err := Convert(ref, authored, siUnits)
		if err != nil {
			r.fail(ErrUnitMismatch, "%s: %s", name, err)
		}
		return val
	}
	r.fail(ErrInvalidPhase, "%s must be a number or a (value, units) pair, got %T", name, v)
	return 0
}

func (d PhaseDescriptor) constraints(where string) ([]phaseConstraint, error) {
	raw, ok := d.UserOptions["constraints"]
	if !ok || raw == nil {
		return nil, nil
	}
	specs, ok := raw.(map[string]ConstraintSpec)
	if !ok {
		return nil, configErr(where, ErrInvalidPhase, "constraints must map names to constraint specs, got %T", raw)
	}
	names := make([]string, 0, len(specs))
	for name := range specs {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]phaseConstraint, 0, len(specs))
	for _, name := range names {
		spec := specs[name]
		si, known := timeseriesUnits[name]
		if !known {
			return nil, configErr(where, ErrUnknownVariable, "constraint on %q", name)
		}
		units := spec.Units
		if units == "" {
			units = si
		}
		c := phaseConstraint{name: name, displayUnits: units, ref: spec.Ref}
		conv := func(v *float64) (float64, error) {
			return Convert(*v, units, si)
		}
		var err error
		if spec.Equals != nil {
			if spec.Lower != nil || spec.Upper != nil {
				return nil, configErr(where, ErrInvalidPhase, "constraint %s: equals cannot be combined with lower or upper", name)
			}
			c.hasEq = true
			if c.equals, err = conv(spec.Equals); err != nil {
				return nil, configErr(where, ErrUnitMismatch, "constraint %s: %s", name, err)
			}
		}
		if spec.Lower != nil {
			c.hasLower = true
			if c.lower, err = conv(spec.Lower); err != nil {
				return nil, configErr(where, ErrUnitMismatch, "constraint %s: %s", name, err)
			}
		}
		if spec.Upper != nil {
			c.hasUpper = true
			if c.upper, err = conv(spec.Upper); err != nil {
				return nil, configErr(where, ErrUnitMismatch, "constraint %s: %s", name, err)
			}
		}
		if !c.hasEq && !c.hasLower && !c.hasUpper {
			return nil, configErr(where, ErrInvalidPhase, "constraint %s has no equals, lower or upper value", name)
		}
		if c.ref == 0 {
			c.ref = 1
		}
		c.ref, _ = Convert(c.ref, units, si)
		switch strings.ToLower(spec.Type) {
		case "path":
			c.loc = "path"
		case "boundary", "":
			switch strings.ToLower(spec.Loc) {
			case "initial", "final":
				c.loc = strings.ToLower(spec.Loc)
			default:
				return nil, configErr(where, ErrInvalidPhase, "constraint %s: boundary location %q must be initial or final", name, spec.Loc)
			}
		default:
			return nil, configErr(where, ErrInvalidPhase, "constraint %s: type %q must be boundary or path", name, spec.Type)
		}
		out = append(out, c)
	}
	return out, nil
}

func (d PhaseDescriptor) guesses(where string) (map[string][2]float64, error) {
	out := make(map[string][2]float64, len(d.InitialGuesses))
	for name, b := range d.InitialGuesses {
		si, known := knownGuesses[name]
		if !known {
			return nil, configErr(where, ErrUnknownVariable, "initial guess for %q", name)
		}
		lo, hi, err := b.In(si)
		if err != nil {
			return nil, configErr(where, ErrUnitMismatch, "initial guess for %s: %s", name, err)
		}
		out[name] = [2]float64{lo, hi}
	}
	return out, nil
}

func (d PhaseDescriptor) aero(where string) (aeroOptions, error) {
	out := aeroOptions{method: "computed"}
	for sub := range d.SubsystemOptions {
		if sub != "core_aerodynamics" {
			return out, configErr(where, ErrUnknownOption, "subsystem_options[%q]", sub)
		}
	}
	opts, ok := d.SubsystemOptions["core_aerodynamics"]
	if !ok {
		return out, nil
	}
	r := &optionReader{where: where + " core_aerodynamics", opts: opts}
	out.method = r.text("method", "computed")
	if r.err != nil {
		return out, r.err
	}
	switch out.method {
	case "computed", "cruise":
		out.method = "computed"
		return out, nil
	case "low_speed":
	default:
		return out, configErr(r.where, ErrUnknownOption, "method %q", out.method)
	}
	out.groundAltitude = r.quantity("ground_altitude", "m", 0, false)
	floatsOf := func(name string) []float64 {
		switch v := opts[name].(type) {
		case []float64:
			return v
		case nil:
			r.fail(ErrMissingVariable, "%s", name)
		default:
			r.fail(ErrInvalidAeroTable, "%s must be a list of numbers, got %T", name, v)
		}
		return nil
	}
	alpha := floatsOf("angles_of_attack")
	cl := floatsOf("lift_coefficients")
	cd := floatsOf("drag_coefficients")
	lf := r.number("lift_coefficient_factor", 1)
	df := r.number("drag_coefficient_factor", 1)
	if r.err != nil {
		return out, r.err
	}
	table, err := NewAeroTable(alpha, cl, cd, lf, df)
	if err != nil {
		return out, err
	}
	out.table = table
	return out, nil
}
