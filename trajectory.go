package amd

import (
	"fmt"
	"math"

	"github.com/ChristopherRabotin/ode"
	kitlog "github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
)

// control is a Mach or altitude profile over a phase, parametrized by its values
// at control nodes. The end nodes are always the phase's initial and final
// values; interior nodes are design variables when the control is optimized.
type control struct {
	name       string
	taus       []float64 // node locations in [0, 1]
	values     []float64 // nominal node values
	polynomial bool
	optimized  bool
	lo, hi     float64
	dvIdx      int // index of the first interior node in the design vector, -1 if fixed
}

func newControl(name string, initial, final float64, bounds [2]float64, optimize, polynomial bool, polyOrder, numSegments int) *control {
	c := &control{name: name, lo: bounds[0], hi: bounds[1], dvIdx: -1, polynomial: polynomial}
	n := 2
	if optimize {
		if polynomial {
			n = polyOrder + 1
		} else {
			n = numSegments + 1
		}
	}
	c.taus = linspace(0, 1, n)
	c.values = linspace(initial, final, n)
	// Degenerate bounds leave nothing to optimize.
	c.optimized = optimize && n > 2 && c.hi > c.lo
	return c
}

// interior returns the number of design variables of this control.
func (c *control) interior() int {
	if !c.optimized {
		return 0
	}
	return len(c.taus) - 2
}

// nodeValues returns the control node values for the design vector.
func (c *control) nodeValues(x []float64) []float64 {
	vals := append([]float64(nil), c.values...)
	if c.optimized && c.dvIdx >= 0 && x != nil {
		copy(vals[1:len(vals)-1], x[c.dvIdx:c.dvIdx+c.interior()])
	}
	return vals
}

// profile is a control resolved for one design vector.
type profile struct {
	taus, vals []float64
	poly       *polynomial
}

func (c *control) resolve(x []float64) (profile, error) {
	p := profile{taus: c.taus, vals: c.nodeValues(x)}
	if c.polynomial && len(c.taus) > 2 {
		poly, err := newPolynomial(p.taus, p.vals)
		if err != nil {
			return p, fmt.Errorf("%s control: %w", c.name, err)
		}
		p.poly = &poly
	}
	return p, nil
}

// at returns the value and the derivative with respect to tau.
func (p profile) at(tau float64) (float64, float64) {
	if p.poly != nil {
		return p.poly.eval(tau)
	}
	return piecewiseLinear(p.taus, p.vals, tau)
}

// phase is a built phase of the trajectory.
type phase struct {
	name   string
	opts   *phaseOptions
	model  *flightModel
	steps  int
	alt    *control
	mach   *control
	logger kitlog.Logger

	// Design vector slots, -1 when not a design variable.
	initialIdx, durationIdx int
	throttleIdx, allocIdx   int
	numAlloc                int // allocation fractions per set
	allocSets               int // 1 when static, one per node when dynamic

	initial, duration float64 // values used when not design variables
	linked            bool    // starts where the previous phase ends
}

func newPhase(name string, opts *phaseOptions, model *flightModel, logger kitlog.Logger) *phase {
	ph := &phase{
		name:        name,
		opts:        opts,
		model:       model,
		steps:       opts.numSegments * opts.order,
		logger:      kitlog.With(logger, "phase", name),
		initialIdx:  -1,
		durationIdx: -1,
		throttleIdx: -1,
		allocIdx:    -1,
	}
	ph.alt = newControl("altitude", opts.initialAltitude, opts.finalAlt, opts.altitudeBounds, opts.optimizeAlt && !opts.groundRoll, opts.polynomial, opts.polynomialOrder, opts.numSegments)
	ph.mach = newControl("mach", opts.initialMach, opts.finalMach, opts.machBounds, opts.optimizeMach, opts.polynomial, opts.polynomialOrder, opts.numSegments)
	if opts.groundRoll {
		ph.alt.values = []float64{model.groundAlt, model.groundAlt}
	}

	// Initial values of the independent variable come from the guesses, else from the bounds.
	if g, ok := opts.guesses[opts.independent.String()]; ok {
		ph.initial, ph.duration = g[0], g[1]
	} else {
		if !math.IsInf(opts.initialBounds[0], 0) {
			ph.initial = opts.initialBounds[0]
		}
		lo, hi := opts.durationBounds[0], opts.durationBounds[1]
		if math.IsInf(hi, 1) {
			ph.duration = math.Max(lo, 1)
		} else {
			ph.duration = (lo + hi) / 2
		}
	}
	return ph
}

// nodes returns the number of timeseries nodes.
func (ph *phase) nodes() int {
	return ph.steps + 1
}

// timeValues returns the initial value and duration of the independent
// variable. prevEnd is the end of the previous phase, used by linked phases.
func (ph *phase) timeValues(x []float64, prevEnd float64) (initial, duration float64) {
	initial, duration = ph.initial, ph.duration
	if ph.linked {
		initial = prevEnd
	} else if ph.initialIdx >= 0 {
		initial = x[ph.initialIdx]
	}
	if ph.durationIdx >= 0 {
		duration = x[ph.durationIdx]
	}
	return
}

// PhaseResult is the propagated timeseries of a phase, in SI units.
type PhaseResult struct {
	Name         string
	Independent  string // "time" or "distance"
	Initial      float64
	Duration     float64
	Timeseries   map[string][]float64
	NonConverged []int // nodes where the throttle balance did not converge
	Stalled      []int // nodes where the lift could not be reached
}

// Final returns the last value of a timeseries variable.
func (r *PhaseResult) Final(name string) float64 {
	ts := r.Timeseries[name]
	return ts[len(ts)-1]
}

// First returns the initial value of a timeseries variable.
func (r *PhaseResult) First(name string) float64 {
	return r.Timeseries[name][0]
}

// propagator integrates a phase with RK4 on its grid. It implements the ode.Integrable interface.
type propagator struct {
	ph                *phase
	x                 []float64
	alt, mach         profile
	initial, duration float64
	state             []float64
	node              int
	res               *PhaseResult
	err               error // first throttle error at a node
}

// propagate integrates the phase from the provided initial states: the mass
// and either the distance (energy method) or the time (2DOF). prevEnd is the
// end of the previous phase in the independent variable.
func (ph *phase) propagate(x []float64, prevEnd, mass0, secondary0 float64) (*PhaseResult, error) {
	alt, err := ph.alt.resolve(x)
	if err != nil {
		return nil, err
	}
	mach, err := ph.mach.resolve(x)
	if err != nil {
		return nil, err
	}
	initial, duration := ph.timeValues(x, prevEnd)
	if duration <= 0 {
		return nil, fmt.Errorf("phase %s: non positive duration %g", ph.name, duration)
	}
	n := ph.nodes()
	res := &PhaseResult{
		Name:        ph.name,
		Independent: ph.opts.independent.String(),
		Initial:     initial,
		Duration:    duration,
		Timeseries:  make(map[string][]float64, len(timeseriesUnits)),
	}
	for name := range timeseriesUnits {
		res.Timeseries[name] = make([]float64, n)
	}
	p := &propagator{ph: ph, x: x, alt: alt, mach: mach, initial: initial, duration: duration, state: []float64{mass0, secondary0}, res: res}
	p.record()
	ode.NewRK4(0, duration/float64(ph.steps), p).Solve() // Blocking.
	if len(res.NonConverged) > 0 {
		level.Debug(ph.logger).Log("subsys", "throttle", "nonconverged", len(res.NonConverged))
	}
	if p.err != nil {
		return nil, p.err
	}
	return res, nil
}

// nodeState returns the equations of motion input at tau.
func (p *propagator) nodeState(tau, mass float64) nodeState {
	h, dhdtau := p.alt.at(tau)
	m, dmdtau := p.mach.at(tau)
	ns := nodeState{
		mass:         mass,
		altitude:     h,
		altitudeRate: dhdtau / p.duration,
		mach:         m,
		machRate:     dmdtau / p.duration,
	}
	ph := p.ph
	if ph.throttleIdx >= 0 {
		ns.throttle = p.interpNodes(ph.throttleIdx, 1, 0, tau)
	}
	if ph.allocIdx >= 0 {
		ns.allocations = make([]float64, ph.numAlloc)
		for i := range ns.allocations {
			if ph.allocSets == 1 {
				ns.allocations[i] = p.x[ph.allocIdx+i]
			} else {
				ns.allocations[i] = p.interpNodes(ph.allocIdx, ph.numAlloc, i, tau)
			}
		}
	}
	return ns
}

// interpNodes linearly interpolates a per node design variable block at tau.
func (p *propagator) interpNodes(start, stride, offset int, tau float64) float64 {
	pos := tau * float64(p.ph.steps)
	i := int(math.Floor(pos))
	if i >= p.ph.steps {
		i = p.ph.steps - 1
	} else if i < 0 {
		i = 0
	}
	frac := pos - float64(i)
	a := p.x[start+i*stride+offset]
	b := p.x[start+(i+1)*stride+offset]
	return a + frac*(b-a)
}

// record evaluates and stores the outputs at the current node.
func (p *propagator) record() {
	tau := float64(p.node) / float64(p.ph.steps)
	ns := p.nodeState(tau, p.state[0])
	out := p.ph.model.evaluate(ns)
	ts, i := p.res.Timeseries, p.node
	indep := p.initial + tau*p.duration
	if p.ph.opts.independent == byDistance {
		ts["distance"][i] = indep
		ts["time"][i] = p.state[1]
	} else {
		ts["time"][i] = indep
		ts["distance"][i] = p.state[1]
	}
	ts["mass"][i] = p.state[0]
	ts["altitude"][i] = ns.altitude
	if p.ph.opts.groundRoll {
		ts["altitude"][i] = p.ph.model.groundAlt
	}
	ts["mach"][i] = ns.mach
	ts["altitude_rate"][i] = out.altitudeRate
	ts["altitude_rate_max"][i] = out.altitudeRateMax
	ts["velocity"][i] = out.velocity
	ts["velocity_rate"][i] = out.velocityRate
	ts["distance_rate"][i] = out.distanceRate
	ts["flight_path_angle"][i] = out.fpa
	ts["alpha"][i] = out.alpha
	ts["lift"][i] = out.lift
	ts["drag"][i] = out.drag
	ts["CL"][i] = out.cl
	ts["CD"][i] = out.cd
	ts["throttle"][i] = out.throttle.Throttle
	ts["thrust"][i] = out.throttle.Thrust
	ts["thrust_max"][i] = out.thrustMax
	ts["thrust_required"][i] = out.thrustRequired
	ts["thrust_residual"][i] = out.throttle.Residual
	ts["fuel_flow"][i] = out.throttle.FuelFlow
	ts["specific_energy_rate_excess"][i] = out.ser
	if !out.throttle.Converged {
		p.res.NonConverged = append(p.res.NonConverged, i)
	}
	if out.throttle.Err != nil && p.err == nil {
		p.err = fmt.Errorf("phase %s node %d: throttle balance: %w", p.ph.name, i, out.throttle.Err)
	}
	if out.stalled {
		p.res.Stalled = append(p.res.Stalled, i)
	}
}

// GetState implements the ode.Integrable interface.
func (p *propagator) GetState() []float64 {
	return []float64{p.state[0], p.state[1]}
}

// SetState implements the ode.Integrable interface.
func (p *propagator) SetState(t float64, s []float64) {
	p.state[0], p.state[1] = s[0], s[1]
	p.node++
	p.record()
}

// Stop implements the ode.Integrable interface.
func (p *propagator) Stop(t float64) bool {
	return p.node >= p.ph.steps
}

// Func implements the ode.Integrable interface. t is the position within the
// phase, in units of the independent variable.
func (p *propagator) Func(t float64, s []float64) []float64 {
	out := p.ph.model.evaluate(p.nodeState(t/p.duration, s[0]))
	return []float64{out.stateRates[0], out.stateRates[1]}
}
