package amd

import (
	"fmt"
	"math"
	"sort"
	"strings"

	kitlog "github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
)

// step is one of the ordered assembly calls of a Problem.
type step uint8

const (
	stepLoad step = iota
	stepPreprocess
	stepPreMission
	stepPhases
	stepLink
	stepPostMission
	stepDriver
	stepDesignVars
	stepObjective
	stepSetup
	stepGuesses
	stepFinalSetup
	numSteps
)

var stepNames = [numSteps]string{
	"LoadInputs", "CheckAndPreprocessInputs", "AddPreMissionSystems", "AddPhases",
	"LinkPhases", "AddPostMissionSystems", "AddDriver", "AddDesignVariables",
	"AddObjective", "Setup", "SetInitialGuesses", "FinalSetup",
}

func (s step) String() string {
	return stepNames[s]
}

// Linking and the post-mission systems may be added in either order.
var prerequisites = [numSteps][]step{
	stepLoad:        nil,
	stepPreprocess:  {stepLoad},
	stepPreMission:  {stepPreprocess},
	stepPhases:      {stepPreMission},
	stepLink:        {stepPhases},
	stepPostMission: {stepPhases},
	stepDriver:      {stepLink, stepPostMission},
	stepDesignVars:  {stepDriver},
	stepObjective:   {stepDesignVars},
	stepSetup:       {stepObjective},
	stepGuesses:     {stepSetup},
	stepFinalSetup:  {stepSetup},
}

// DesignVariable is a scalar design variable, in SI units.
type DesignVariable struct {
	Name         string
	Lower, Upper float64
	Ref          float64
	Units        string
	Value        float64
}

// Constraint is a constraint on a registered output, in SI units. Loc selects
// the first ("initial") or last ("final") element, or all of them ("path" or empty).
type Constraint struct {
	Name                          string
	Loc                           string
	Equals, Lower, Upper          float64
	HasEquals, HasLower, HasUpper bool
	Ref                           float64
}

// Objective is the minimized output, scaled by Ref (SI).
type Objective struct {
	Kind   string
	Source string
	Ref    float64
}

type connection struct {
	src, tgt string
	index    int
	indexed  bool
}

// boundSubsystem is an external post-mission subsystem with its resolved inputs.
type boundSubsystem struct {
	name     string
	sub      Subsystem
	sources  map[string]connection // input name to its source
	relevant bool
}

// Problem is an aircraft mission analysis and optimization problem. It is
// assembled by calling, in order: LoadInputs, CheckAndPreprocessInputs,
// AddPreMissionSystems, AddPhases, LinkPhases and AddPostMissionSystems (in
// either order), AddDriver, AddDesignVariables, AddObjective, Connect and
// AddConstraint as needed, Setup, SetInitialGuesses and FinalSetup. It may then
// be Run any number of times; the design vector persists between runs.
type Problem struct {
	Name   string
	logger kitlog.Logger
	done   [numSteps]bool

	aircraft  *AircraftDefinition
	info      PhaseInfo
	eom       EquationsOfMotion
	verbosity Verbosity
	phaseOpts []*phaseOptions

	pre        *preMission
	phases     []*phase
	subsystems []*boundSubsystem
	driver     *Driver
	desvars    []DesignVariable
	cons       []Constraint
	objective  *Objective
	conns      []connection
	units      map[string]string // registered outputs and their SI units
	sizes      map[string]int
	overrides  map[string]float64

	pendingUnits []pendingUnit

	x      []float64
	last   *Result
	Failed bool
}

// NewProblem returns a new empty problem.
func NewProblem(name string, logger kitlog.Logger) *Problem {
	if logger == nil {
		logger = SilentLogger()
	}
	return &Problem{
		Name:      name,
		logger:    kitlog.With(logger, "problem", name),
		units:     make(map[string]string),
		sizes:     make(map[string]int),
		overrides: make(map[string]float64),
	}
}

func (p *Problem) begin(s step) error {
	if p.done[s] {
		return configErr(p.Name, ErrOutOfOrder, "%s already called", s)
	}
	if p.done[stepFinalSetup] {
		return configErr(p.Name, ErrOutOfOrder, "%s called after FinalSetup", s)
	}
	for _, req := range prerequisites[s] {
		if !p.done[req] {
			return configErr(p.Name, ErrOutOfOrder, "%s requires %s", s, req)
		}
	}
	return nil
}

func (p *Problem) finish(s step, keyvals ...interface{}) {
	p.done[s] = true
	level.Debug(p.logger).Log(append([]interface{}{"subsys", "problem", "step", s.String()}, keyvals...)...)
}

// LoadInputs stores the aircraft definition and a deep copy of the phases.
func (p *Problem) LoadInputs(aircraft *AircraftDefinition, info PhaseInfo) error {
	if err := p.begin(stepLoad); err != nil {
		return err
	}
	if aircraft == nil {
		return configErr(p.Name, ErrMissingVariable, "no aircraft definition")
	}
	cpy, err := info.Copy()
	if err != nil {
		return configErr(p.Name, ErrInvalidPhase, "copying phase info: %s", err)
	}
	p.aircraft = aircraft
	p.info = cpy
	p.verbosity = aircraft.Verbosity()
	p.finish(stepLoad, "phases", len(cpy.Phases))
	return nil
}

// CheckAndPreprocessInputs validates the aircraft definition and every phase descriptor.
func (p *Problem) CheckAndPreprocessInputs() error {
	if err := p.begin(stepPreprocess); err != nil {
		return err
	}
	eom, err := p.aircraft.EquationsOfMotion()
	if err != nil {
		return err
	}
	p.eom = eom
	for _, name := range []string{AircraftWingArea, AircraftNumEngines, AircraftSLSThrust, MissionDesignGrossMass} {
		if !p.aircraft.Has(name) {
			return configErr(p.Name, ErrMissingVariable, "%s", name)
		}
	}
	if p.info.PreMission.OptimizeMass {
		if !p.aircraft.Has(AircraftOperatingMass) {
			return configErr(p.Name, ErrMissingVariable, "%s is needed to optimize the gross mass", AircraftOperatingMass)
		}
	}
	// Every variable with units must use known units.
	for _, name := range p.aircraft.Names() {
		v, _ := p.aircraft.Get(name)
		if !v.IsText() {
			if _, err := lookupUnits(v.Units); err != nil {
				return configErr(p.Name, ErrUnknownUnits, "%s: %s", name, err)
			}
		}
	}
	if len(p.info.Phases) == 0 {
		return configErr(p.Name, ErrInvalidPhase, "no phases")
	}
	seen := make(map[string]bool)
	p.phaseOpts = p.phaseOpts[:0]
	for _, ph := range p.info.Phases {
		if ph.Name == "" || strings.ContainsAny(ph.Name, ". ") || ph.Name == "pre_mission" || ph.Name == "post_mission" {
			return configErr(p.Name, ErrInvalidPhase, "invalid phase name %q", ph.Name)
		}
		if seen[ph.Name] {
			return configErr(p.Name, ErrInvalidPhase, "duplicate phase %q", ph.Name)
		}
		seen[ph.Name] = true
		opts, err := ph.validate(ph.Name, p.eom)
		if err != nil {
			return err
		}
		p.phaseOpts = append(p.phaseOpts, opts)
	}
	post := p.info.PostMission
	if post.ConstrainRange {
		if _, err := post.TargetRange.In("m"); err != nil {
			return configErr(p.Name, ErrUnitMismatch, "target_range: %s", err)
		}
		if post.TargetRange.Value <= 0 {
			return configErr(p.Name, ErrInvalidPhase, "constrain_range needs a positive target_range")
		}
	}
	p.finish(stepPreprocess, "eom", p.eom)
	return nil
}

// AddPhases builds every phase with its flight model and registers the phase constraints.
func (p *Problem) AddPhases() error {
	if err := p.begin(stepPhases); err != nil {
		return err
	}
	for i, np := range p.info.Phases {
		opts := p.phaseOpts[i]
		model := &flightModel{
			eom:        p.eom,
			atmo:       p.pre.atmo,
			engines:    p.pre.engines,
			wingArea:   p.pre.wingArea,
			friction:   p.pre.friction,
			groundAlt:  opts.aero.groundAltitude,
			groundRoll: opts.groundRoll,
		}
		if opts.aero.table != nil {
			model.aero = tableAero{opts.aero.table}
		} else {
			model.aero = p.pre.aero
		}
		balance, err := NewThrottleBalance(p.pre.engines, opts.enforcement, opts.throttleOptimize, opts.allocation, p.pre.throttleFracs, opts.errOnNonConverge)
		if err != nil {
			return configErr("phase "+np.Name, ErrInvalidEngineConfig, "%s", err)
		}
		model.balance = balance
		ph := newPhase(np.Name, opts, model, p.logger)
		p.phases = append(p.phases, ph)
		p.registerPhaseOutputs(ph)
		p.addPhaseConstraints(ph)
	}
	p.finish(stepPhases, "count", len(p.phases))
	return nil
}

func (p *Problem) registerPhaseOutputs(ph *phase) {
	prefix := "traj." + ph.name + "."
	for name, units := range timeseriesUnits {
		p.units[prefix+"timeseries."+name] = units
		p.sizes[prefix+"timeseries."+name] = ph.nodes()
	}
	p.units[prefix+"states:mass"] = "kg"
	p.sizes[prefix+"states:mass"] = ph.nodes()
	if ph.opts.independent == byDistance {
		p.units[prefix+"states:time"] = "s"
		p.sizes[prefix+"states:time"] = ph.nodes()
	} else {
		p.units[prefix+"states:distance"] = "m"
		p.sizes[prefix+"states:distance"] = ph.nodes()
	}
	iu := ph.opts.independent.units()
	p.units[prefix+"t_initial"] = iu
	p.units[prefix+"t_duration"] = iu
	p.sizes[prefix+"t_initial"] = 1
	p.sizes[prefix+"t_duration"] = 1
	p.units[prefix+"controls:altitude"] = "m"
	p.sizes[prefix+"controls:altitude"] = len(ph.alt.taus)
	p.units[prefix+"controls:mach"] = "unitless"
	p.sizes[prefix+"controls:mach"] = len(ph.mach.taus)
}

func (p *Problem) addPhaseConstraints(ph *phase) {
	prefix := "traj." + ph.name + ".timeseries."
	for _, c := range ph.opts.constraints {
		p.cons = append(p.cons, Constraint{
			Name:      prefix + c.name,
			Loc:       c.loc,
			Equals:    c.equals,
			Lower:     c.lower,
			Upper:     c.upper,
			HasEquals: c.hasEq,
			HasLower:  c.hasLower,
			HasUpper:  c.hasUpper,
			Ref:       c.ref,
		})
	}
	switch ph.model.balance.(type) {
	case OptimizedThrottle:
		p.cons = append(p.cons, Constraint{Name: prefix + "thrust_residual", Loc: "path", HasEquals: true, Ref: 1e4 * lbf2N})
	}
	switch ph.model.balance.Enforcement() {
	case PathConstraint:
		p.cons = append(p.cons, Constraint{Name: prefix + "throttle", Loc: "path", HasLower: true, HasUpper: true, Lower: 0, Upper: 1, Ref: 1})
	case BoundaryConstraint:
		for _, loc := range []string{"initial", "final"} {
			p.cons = append(p.cons, Constraint{Name: prefix + "throttle", Loc: loc, HasLower: true, HasUpper: true, Lower: 0, Upper: 1, Ref: 1})
		}
	}
	if ph.opts.constrainFinal {
		p.cons = append(p.cons,
			Constraint{Name: prefix + "mach", Loc: "final", HasEquals: true, Equals: ph.opts.finalMach, Ref: 1},
			Constraint{Name: prefix + "altitude", Loc: "final", HasEquals: true, Equals: ph.opts.finalAlt, Ref: 1000 * ft2m},
		)
	}
	if ph.opts.noClimb {
		p.cons = append(p.cons, Constraint{Name: prefix + "altitude_rate", Loc: "path", HasUpper: true, Upper: 0, Ref: 1})
	}
	if ph.opts.noDescent {
		p.cons = append(p.cons, Constraint{Name: prefix + "altitude_rate", Loc: "path", HasLower: true, Lower: 0, Ref: 1})
	}
}

// LinkPhases connects consecutive phases: mass, the other integrated state and
// the independent variable are passed from one phase to the next, so a linked
// phase starts where the previous one ends and its initial bounds do not apply.
// A phase with a fixed initial value keeps it and gets a continuity constraint
// instead.
func (p *Problem) LinkPhases() error {
	if err := p.begin(stepLink); err != nil {
		return err
	}
	constrained := 0
	for i := 1; i < len(p.phases); i++ {
		a, b := p.phases[i-1], p.phases[i]
		if a.opts.independent != b.opts.independent {
			return configErr(p.Name, ErrInvalidPhase, "cannot link %s (%s) to %s (%s)", a.name, a.opts.independent, b.name, b.opts.independent)
		}
		if !b.opts.fixInitial {
			b.linked = true
			continue
		}
		constrained++
		name := linkName(a, b)
		ref := b.opts.initialRef
		if ref == 0 {
			ref = 60
			if b.opts.independent == byDistance {
				ref = 1000 * ft2m
			}
		}
		p.units[name] = b.opts.independent.units()
		p.sizes[name] = 1
		p.cons = append(p.cons, Constraint{Name: name, HasEquals: true, Ref: ref})
		level.Warn(p.logger).Log("subsys", "problem", "link", name, "warning", "linked phase has a fixed initial value")
	}
	p.finish(stepLink, "links", len(p.phases)-1, "constrained", constrained)
	return nil
}

func linkName(a, b *phase) string {
	return fmt.Sprintf("traj.linkages.%s:%s.%s", a.name, b.name, b.opts.independent)
}

// AddPostMissionSystems registers the mission summary outputs and builds the
// external subsystems.
func (p *Problem) AddPostMissionSystems() error {
	if err := p.begin(stepPostMission); err != nil {
		return err
	}
	for _, name := range []string{MissionGrossMass, MissionTakeoffFinalMass, MissionFuelBurned, MissionTotalFuel, MissionLandingTouchdown} {
		p.units[name] = "kg"
		p.sizes[name] = 1
	}
	p.units[MissionRange] = "m"
	p.sizes[MissionRange] = 1
	post := p.info.PostMission
	if p.info.PreMission.OptimizeMass {
		p.units[MissionMassResidual] = "kg"
		p.sizes[MissionMassResidual] = 1
		p.cons = append(p.cons, Constraint{Name: MissionMassResidual, HasEquals: true, Ref: 1e5 * lbm2kg})
	}
	if post.ConstrainRange {
		p.units[MissionRangeResidual] = "m"
		p.sizes[MissionRangeResidual] = 1
		p.cons = append(p.cons, Constraint{Name: MissionRangeResidual, HasEquals: true, Ref: 10 * nmi2m})
	}
	if post.IncludeLanding {
		p.units[MissionLandingFieldLen] = "m"
		p.sizes[MissionLandingFieldLen] = 1
	}
	for _, b := range post.ExternalSubsystems {
		name := b.Name()
		if name == "" || strings.Contains(name, ".") {
			return configErr(p.Name, ErrInvalidConnection, "invalid subsystem name %q", name)
		}
		for _, other := range p.subsystems {
			if other.name == name {
				return configErr(p.Name, ErrInvalidConnection, "duplicate subsystem %q", name)
			}
		}
		sub, err := b.BuildPostMission(p.aircraft, p.logger)
		if err != nil {
			return err
		}
		bs := &boundSubsystem{name: name, sub: sub, sources: make(map[string]connection)}
		for _, out := range sub.Outputs() {
			p.units[name+"."+out.Name] = out.Units
			p.sizes[name+"."+out.Name] = 1
		}
		p.subsystems = append(p.subsystems, bs)
	}
	p.finish(stepPostMission, "subsystems", len(p.subsystems))
	return nil
}

// AddDriver selects the optimizer.
func (p *Problem) AddDriver(optimizer string, opts DriverOptions) error {
	if err := p.begin(stepDriver); err != nil {
		return err
	}
	d, err := NewDriver(optimizer, opts)
	if err != nil {
		return err
	}
	p.driver = d
	p.finish(stepDriver, "optimizer", d.Optimizer, "max_iter", d.MaxIter)
	return nil
}

func (p *Problem) addDesVar(dv DesignVariable) int {
	dv.Value = clamp(dv.Value, dv.Lower, dv.Upper)
	if dv.Ref == 0 {
		dv.Ref = 1
	}
	p.desvars = append(p.desvars, dv)
	return len(p.desvars) - 1
}

// AddDesignVariables registers the design variables: the gross mass when it is
// optimized, the free initial values and durations of each phase, the interior
// control nodes of optimized controls, optimized throttles and allocations.
func (p *Problem) AddDesignVariables() error {
	if err := p.begin(stepDesignVars); err != nil {
		return err
	}
	if p.info.PreMission.OptimizeMass {
		p.pre.grossIdx = p.addDesVar(DesignVariable{
			Name:  MissionDesignGrossMass,
			Lower: 10 * lbm2kg, Upper: 900e3 * lbm2kg,
			Ref: 1e5 * lbm2kg, Units: "kg", Value: p.pre.gross,
		})
	}
	for _, ph := range p.phases {
		prefix := "traj." + ph.name + "."
		iu := ph.opts.independent.units()
		if !ph.opts.fixInitial && !ph.opts.inputInitial && !ph.linked {
			ph.initialIdx = p.addDesVar(DesignVariable{
				Name: prefix + "t_initial", Lower: ph.opts.initialBounds[0], Upper: ph.opts.initialBounds[1],
				Ref: ph.opts.initialRef, Units: iu, Value: ph.initial,
			})
		}
		if !ph.opts.fixDuration {
			ph.durationIdx = p.addDesVar(DesignVariable{
				Name: prefix + "t_duration", Lower: ph.opts.durationBounds[0], Upper: ph.opts.durationBounds[1],
				Ref: ph.opts.durationRef, Units: iu, Value: ph.duration,
			})
		}
		for _, ctl := range []*control{ph.alt, ph.mach} {
			units := "m"
			if ctl == ph.mach {
				units = "unitless"
			}
			for i := 0; i < ctl.interior(); i++ {
				idx := p.addDesVar(DesignVariable{
					Name:  fmt.Sprintf("%scontrols:%s[%d]", prefix, ctl.name, i+1),
					Lower: ctl.lo, Upper: ctl.hi, Ref: math.Max(math.Abs(ctl.lo), math.Abs(ctl.hi)),
					Units: units, Value: ctl.values[i+1],
				})
				if i == 0 {
					ctl.dvIdx = idx
				}
			}
		}
		switch b := ph.model.balance.(type) {
		case OptimizedThrottle:
			lo, hi := throttleBounds(b.Enforcement())
			for i := 0; i < ph.nodes(); i++ {
				idx := p.addDesVar(DesignVariable{Name: fmt.Sprintf("%scontrols:throttle[%d]", prefix, i), Lower: lo, Upper: hi, Ref: 1, Units: "unitless", Value: 0.5})
				if i == 0 {
					ph.throttleIdx = idx
				}
			}
		case AggregateThrottle:
			if b.Mode == FixedAllocation {
				break
			}
			ph.numAlloc = b.Engines.NumTypes() - 1
			ph.allocSets = 1
			if b.Mode == DynamicAllocation {
				ph.allocSets = ph.nodes()
			}
			for s := 0; s < ph.allocSets; s++ {
				for i := 0; i < ph.numAlloc; i++ {
					idx := p.addDesVar(DesignVariable{
						Name:  fmt.Sprintf("%sthrottle_allocations[%d,%d]", prefix, s, i),
						Lower: 0, Upper: 1, Ref: 1, Units: "unitless", Value: 1 / float64(b.Engines.NumTypes()),
					})
					if s == 0 && i == 0 {
						ph.allocIdx = idx
					}
				}
			}
			name := prefix + "throttle_allocation_sum"
			p.units[name] = "unitless"
			p.sizes[name] = ph.allocSets
			p.cons = append(p.cons, Constraint{Name: name, HasUpper: true, Upper: 1, Ref: 1})
		}
	}
	p.finish(stepDesignVars, "count", len(p.desvars))
	return nil
}

// Objective kinds with their source and default reference, in display units.
var objectiveKinds = map[string]struct {
	units string
	ref   float64
}{
	"mass":        {"lbm", -5e4},
	"time":        {"s", 1},
	"fuel_burned": {"lbm", 1e4},
	"fuel":        {"lbm", 1e4},
	"range":       {"nmi", -1e3},
}

// AddObjective sets the minimized quantity. The reference is in lbm for
// masses, seconds for time and nmi for range; zero selects the default.
// A negative reference maximizes.
func (p *Problem) AddObjective(kind string, ref float64) error {
	if err := p.begin(stepObjective); err != nil {
		return err
	}
	k, ok := objectiveKinds[kind]
	if !ok {
		return configErr(p.Name, ErrInvalidObjective, "%q (expected mass, time, fuel_burned, fuel or range)", kind)
	}
	if ref == 0 {
		ref = k.ref
	}
	refSI, _ := toSI(ref, k.units)
	last := p.phases[len(p.phases)-1].name
	var src string
	switch kind {
	case "mass":
		src = "traj." + last + ".timeseries.mass"
	case "time":
		src = "traj." + last + ".timeseries.time"
	case "fuel_burned":
		src = MissionFuelBurned
	case "fuel":
		src = MissionTotalFuel
	case "range":
		src = MissionRange
	}
	p.objective = &Objective{Kind: kind, Source: src, Ref: refSI}
	p.finish(stepObjective, "kind", kind, "ref", ref)
	return nil
}

// Connect feeds an external subsystem input from a registered output. The
// optional index selects an element of the source, negative from the end.
// Connections are validated by Setup.
func (p *Problem) Connect(src, tgt string, index ...int) error {
	if p.done[stepSetup] {
		return configErr(p.Name, ErrOutOfOrder, "Connect called after Setup")
	}
	if len(index) > 1 {
		return configErr(p.Name, ErrInvalidConnection, "%s -> %s: at most one index", src, tgt)
	}
	c := connection{src: src, tgt: tgt}
	if len(index) == 1 {
		c.index, c.indexed = index[0], true
	}
	p.conns = append(p.conns, c)
	return nil
}

// AddConstraint constrains any registered output. Units default to the SI
// units of the output. Validated by Setup.
func (p *Problem) AddConstraint(name string, spec ConstraintSpec) error {
	if p.done[stepSetup] {
		return configErr(p.Name, ErrOutOfOrder, "AddConstraint called after Setup")
	}
	c := Constraint{Name: name, Loc: strings.ToLower(spec.Loc), Ref: spec.Ref}
	if spec.Type == "path" {
		c.Loc = "path"
	}
	units := spec.Units
	conv := func(v float64) float64 {
		if units == "" {
			return v
		}
		si, err := toSI(v, units)
		if err != nil {
			return math.NaN()
		}
		return si
	}
	if spec.Equals != nil {
		c.HasEquals, c.Equals = true, conv(*spec.Equals)
	}
	if spec.Lower != nil {
		c.HasLower, c.Lower = true, conv(*spec.Lower)
	}
	if spec.Upper != nil {
		c.HasUpper, c.Upper = true, conv(*spec.Upper)
	}
	if !c.HasEquals && !c.HasLower && !c.HasUpper {
		return configErr(p.Name, ErrInvalidPhase, "constraint %s has no equals, lower or upper value", name)
	}
	if c.Ref == 0 {
		c.Ref = 1
	}
	c.Ref = math.Abs(conv(c.Ref))
	if math.IsNaN(c.Equals) || math.IsNaN(c.Lower) || math.IsNaN(c.Upper) || math.IsNaN(c.Ref) {
		return configErr(p.Name, ErrUnknownUnits, "constraint %s: %q", name, units)
	}
	p.cons = append(p.cons, c)
	p.pendingUnits = append(p.pendingUnits, pendingUnit{name, units})
	return nil
}

type pendingUnit struct {
	name, units string
}

// Setup validates the connections and constraints, decides which subsystems
// are evaluated during the optimization and sets up the subsystems.
func (p *Problem) Setup() error {
	if err := p.begin(stepSetup); err != nil {
		return err
	}
	for _, pu := range p.pendingUnits {
		si, ok := p.units[pu.name]
		if !ok {
			return configErr(p.Name, ErrUnknownVariable, "constraint on %q", pu.name)
		}
		if pu.units != "" && !sameDimension(pu.units, si) {
			return configErr(p.Name, ErrUnitMismatch, "constraint on %s: %s is not compatible with %s", pu.name, pu.units, si)
		}
	}
	for _, c := range p.cons {
		if _, ok := p.units[c.Name]; !ok {
			return configErr(p.Name, ErrUnknownVariable, "constraint on %q", c.Name)
		}
	}
	if _, ok := p.units[p.objective.Source]; !ok {
		return configErr(p.Name, ErrInvalidObjective, "unknown source %q", p.objective.Source)
	}

	subs := make(map[string]*boundSubsystem, len(p.subsystems))
	for _, bs := range p.subsystems {
		subs[bs.name] = bs
	}
	for _, c := range p.conns {
		srcUnits, ok := p.units[c.src]
		if !ok {
			return configErr(p.Name, ErrInvalidConnection, "unknown source %q", c.src)
		}
		dot := strings.Index(c.tgt, ".")
		if dot < 0 {
			return configErr(p.Name, ErrInvalidConnection, "target %q is not a subsystem input", c.tgt)
		}
		bs, ok := subs[c.tgt[:dot]]
		if !ok {
			return configErr(p.Name, ErrInvalidConnection, "unknown subsystem in %q", c.tgt)
		}
		input := c.tgt[dot+1:]
		var in *SubsystemInput
		for _, si := range bs.sub.Inputs() {
			if si.Name == input {
				si := si
				in = &si
			}
		}
		if in == nil {
			return configErr(p.Name, ErrInvalidConnection, "subsystem %s has no input %q", bs.name, input)
		}
		if !sameDimension(srcUnits, in.Units) {
			return configErr(p.Name, ErrUnitMismatch, "%s (%s) -> %s (%s)", c.src, srcUnits, c.tgt, in.Units)
		}
		size := p.sizes[c.src]
		if c.indexed && (c.index >= size || c.index < -size) {
			return configErr(p.Name, ErrInvalidConnection, "%s has %d elements, index %d", c.src, size, c.index)
		}
		if _, dup := bs.sources[input]; dup {
			return configErr(p.Name, ErrInvalidConnection, "%s connected twice", c.tgt)
		}
		bs.sources[input] = c
	}
	for _, bs := range p.subsystems {
		for _, in := range bs.sub.Inputs() {
			if _, ok := bs.sources[in.Name]; ok {
				continue
			}
			if _, ok := p.units[in.Source]; !ok {
				return configErr(p.Name, ErrInvalidConnection, "subsystem %s input %s is not connected", bs.name, in.Name)
			}
			bs.sources[in.Name] = connection{src: in.Source, tgt: bs.name + "." + in.Name}
		}
	}

	// Relevance: only subsystems feeding the objective or a constraint run during the optimization.
	needed := map[string]bool{p.objective.Source: true}
	for _, c := range p.cons {
		needed[c.Name] = true
	}
	for changed := true; changed; {
		changed = false
		for _, bs := range p.subsystems {
			if bs.relevant {
				continue
			}
			for _, out := range bs.sub.Outputs() {
				if needed[bs.name+"."+out.Name] {
					bs.relevant, changed = true, true
					for _, src := range bs.sources {
						needed[src.src] = true
					}
					break
				}
			}
		}
	}
	for _, bs := range p.subsystems {
		if err := bs.sub.Setup(); err != nil {
			return fmt.Errorf("subsystem %s: %w", bs.name, err)
		}
		level.Info(p.logger).Log("subsys", "problem", "subsystem", bs.name, "relevant", bs.relevant)
	}
	p.x = make([]float64, len(p.desvars))
	for i, dv := range p.desvars {
		p.x[i] = dv.Value
	}
	p.finish(stepSetup, "desvars", len(p.desvars), "constraints", len(p.cons))
	return nil
}

// SetInitialGuesses applies the initial guesses of every phase to the design
// vector. Mass guesses are not needed since mass is integrated.
func (p *Problem) SetInitialGuesses() error {
	if err := p.begin(stepGuesses); err != nil {
		return err
	}
	for _, ph := range p.phases {
		g := ph.opts.guesses
		if v, ok := g[ph.opts.independent.String()]; ok {
			if ph.initialIdx >= 0 {
				p.x[ph.initialIdx] = p.clampDV(ph.initialIdx, v[0])
			}
			if ph.durationIdx >= 0 {
				p.x[ph.durationIdx] = p.clampDV(ph.durationIdx, v[1])
			}
		}
		for _, ctl := range []*control{ph.alt, ph.mach} {
			v, ok := g[ctl.name]
			if !ok || ctl.dvIdx < 0 {
				continue
			}
			for i := 1; i <= ctl.interior(); i++ {
				idx := ctl.dvIdx + i - 1
				p.x[idx] = p.clampDV(idx, v[0]+ctl.taus[i]*(v[1]-v[0]))
			}
		}
		if v, ok := g["throttle"]; ok && ph.throttleIdx >= 0 {
			for i := 0; i < ph.nodes(); i++ {
				tau := float64(i) / float64(ph.steps)
				p.x[ph.throttleIdx+i] = p.clampDV(ph.throttleIdx+i, v[0]+tau*(v[1]-v[0]))
			}
		}
	}
	p.finish(stepGuesses)
	return nil
}

func (p *Problem) clampDV(idx int, v float64) float64 {
	return clamp(v, p.desvars[idx].Lower, p.desvars[idx].Upper)
}

// FinalSetup completes the assembly. The problem can be run afterwards.
func (p *Problem) FinalSetup() error {
	if err := p.begin(stepFinalSetup); err != nil {
		return err
	}
	for i, dv := range p.desvars {
		if p.x[i] < dv.Lower || p.x[i] > dv.Upper {
			level.Warn(p.logger).Log("subsys", "problem", "desvar", dv.Name, "value", p.x[i], "warning", "outside bounds, clamped")
			p.x[i] = p.clampDV(i, p.x[i])
		}
	}
	level.Info(p.logger).Log("subsys", "problem", "status", "ready", "eom", p.eom, "phases", len(p.phases), "desvars", len(p.desvars), "constraints", len(p.cons), "objective", p.objective.Kind)
	p.finish(stepFinalSetup)
	return nil
}

// DesignVariables returns the registered design variables with their current values.
func (p *Problem) DesignVariables() []DesignVariable {
	out := make([]DesignVariable, len(p.desvars))
	copy(out, p.desvars)
	for i := range out {
		if i < len(p.x) {
			out[i].Value = p.x[i]
		}
	}
	return out
}

// HasDesignVariable returns whether that design variable exists.
func (p *Problem) HasDesignVariable(name string) bool {
	for _, dv := range p.desvars {
		if dv.Name == name {
			return true
		}
	}
	return false
}

// Constraints returns the registered constraints.
func (p *Problem) Constraints() []Constraint {
	return append([]Constraint(nil), p.cons...)
}

// Outputs returns the registered output names, sorted.
func (p *Problem) Outputs() []string {
	names := make([]string, 0, len(p.units))
	for name := range p.units {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// inputUnits returns the SI units of a variable SetVal accepts.
func (p *Problem) inputUnits(name string) (string, error) {
	for _, dv := range p.desvars {
		if dv.Name == name {
			return dv.Units, nil
		}
	}
	if name == MissionGrossMass || name == MissionDesignGrossMass {
		return "kg", nil
	}
	return "", configErr(p.Name, ErrUnknownVariable, "%q cannot be set", name)
}

// GetVal returns a registered output of the last run in the requested units.
func (p *Problem) GetVal(name, units string) ([]float64, error) {
	if p.last == nil {
		return nil, configErr(p.Name, ErrOutOfOrder, "GetVal requires Run")
	}
	return p.last.Val(name, units)
}

// SetVal sets a design variable, or the gross mass when it is not optimized.
// Must be called after Setup.
func (p *Problem) SetVal(name string, value float64, units string) error {
	if !p.done[stepSetup] {
		return configErr(p.Name, ErrOutOfOrder, "SetVal requires Setup")
	}
	si, err := toSI(value, units)
	if err != nil {
		return configErr(p.Name, ErrUnknownUnits, "%s: %s", name, err)
	}
	for i, dv := range p.desvars {
		if dv.Name == name || (name == MissionGrossMass && dv.Name == MissionDesignGrossMass) {
			if !sameDimension(units, dv.Units) {
				return configErr(p.Name, ErrUnitMismatch, "%s: %s is not compatible with %s", name, units, dv.Units)
			}
			p.x[i] = p.clampDV(i, si)
			return nil
		}
	}
	if name == MissionGrossMass || name == MissionDesignGrossMass {
		if !sameDimension(units, "kg") {
			return configErr(p.Name, ErrUnitMismatch, "%s: %s is not a mass", name, units)
		}
		p.overrides[MissionGrossMass] = si
		return nil
	}
	return configErr(p.Name, ErrUnknownVariable, "cannot set %q", name)
}
