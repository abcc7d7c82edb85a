package amd

import (
	"errors"
	"fmt"
	"math"

	"github.com/ChristopherRabotin/amd/tools"
	"github.com/go-kit/kit/log/level"
)

// RunOptions configures Problem.Run.
type RunOptions struct {
	// RunDriver optimizes; otherwise the model is only evaluated at the current design vector.
	RunDriver bool
	// HistoryFile, when set, records every driver iteration to that file.
	HistoryFile string
}

// Result is the outcome of a run. Convergence failures are reported here, never as errors.
type Result struct {
	Failed         bool
	ExitStatus     string
	Iterations     int
	FuncEvals      int
	Objective      float64 // unscaled, SI
	MaxViolation   float64 // scaled
	Phases         []*PhaseResult
	SolverWarnings []string
	DesignVector   []float64
	outputs        map[string][]float64
	units          map[string]string
}

// Val returns a registered output converted to the requested units.
func (r *Result) Val(name, units string) ([]float64, error) {
	vals, ok := r.outputs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownVariable, name)
	}
	out := make([]float64, len(vals))
	for i, v := range vals {
		conv, err := Convert(v, r.units[name], units)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		out[i] = conv
	}
	return out, nil
}

// Last returns the last element of a registered output in the requested units.
func (r *Result) Last(name, units string) (float64, error) {
	vals, err := r.Val(name, units)
	if err != nil {
		return 0, err
	}
	if len(vals) == 0 {
		return 0, fmt.Errorf("%w: %s is empty", ErrUnknownVariable, name)
	}
	return vals[len(vals)-1], nil
}

// Phase returns the named phase result.
func (r *Result) Phase(name string) *PhaseResult {
	for _, ph := range r.Phases {
		if ph.Name == name {
			return ph
		}
	}
	return nil
}

// evaluation is one model evaluation.
type evaluation struct {
	outputs  map[string][]float64
	phases   []*PhaseResult
	warnings []string
}

func pick(vals []float64, c connection) float64 {
	if !c.indexed {
		return vals[0]
	}
	i := c.index
	if i < 0 {
		i += len(vals)
	}
	return vals[i]
}

// evaluate runs the whole model at x. Only relevant subsystems run unless full is set.
func (p *Problem) evaluate(x []float64, full bool) (*evaluation, error) {
	ev := &evaluation{outputs: make(map[string][]float64, len(p.units))}
	out := ev.outputs
	gross := p.grossMass(x)
	mass := p.initialMass(gross)
	out[MissionGrossMass] = []float64{gross}
	out[MissionTakeoffFinalMass] = []float64{mass}
	secondary, prevEnd := 0.0, 0.0
	for i, ph := range p.phases {
		res, err := ph.propagate(x, prevEnd, mass, secondary)
		if err != nil {
			return nil, err
		}
		ev.phases = append(ev.phases, res)
		prefix := "traj." + ph.name + "."
		for name, vals := range res.Timeseries {
			out[prefix+"timeseries."+name] = vals
		}
		out[prefix+"states:mass"] = res.Timeseries["mass"]
		if ph.opts.independent == byDistance {
			out[prefix+"states:time"] = res.Timeseries["time"]
			secondary = res.Final("time")
		} else {
			out[prefix+"states:distance"] = res.Timeseries["distance"]
			secondary = res.Final("distance")
		}
		out[prefix+"t_initial"] = []float64{res.Initial}
		out[prefix+"t_duration"] = []float64{res.Duration}
		out[prefix+"controls:altitude"] = ph.alt.nodeValues(x)
		out[prefix+"controls:mach"] = ph.mach.nodeValues(x)
		if ph.allocIdx >= 0 {
			sums := make([]float64, ph.allocSets)
			for s := range sums {
				for j := 0; j < ph.numAlloc; j++ {
					sums[s] += x[ph.allocIdx+s*ph.numAlloc+j]
				}
			}
			out[prefix+"throttle_allocation_sum"] = sums
		}
		if i > 0 && !ph.linked {
			prev := ev.phases[i-1]
			out[linkName(p.phases[i-1], ph)] = []float64{res.Initial - (prev.Initial + prev.Duration)}
		}
		mass = res.Final("mass")
		prevEnd = res.Initial + res.Duration
		if len(res.NonConverged) > 0 {
			ev.warnings = append(ev.warnings, fmt.Sprintf("phase %s: throttle balance did not converge at %d of %d nodes", ph.name, len(res.NonConverged), ph.nodes()))
		}
		if len(res.Stalled) > 0 {
			ev.warnings = append(ev.warnings, fmt.Sprintf("phase %s: lift not reached at %d of %d nodes", ph.name, len(res.Stalled), ph.nodes()))
		}
	}

	// Post-mission.
	last := ev.phases[len(ev.phases)-1]
	fuelBurned := gross - mass
	totalFuel := fuelBurned + p.pre.reserve
	rng := last.Final("distance")
	out[MissionLandingTouchdown] = []float64{mass}
	out[MissionFuelBurned] = []float64{fuelBurned}
	out[MissionTotalFuel] = []float64{totalFuel}
	out[MissionRange] = []float64{rng}
	if p.info.PreMission.OptimizeMass {
		out[MissionMassResidual] = []float64{gross - (p.pre.operating + p.pre.payload + totalFuel)}
	}
	if post := p.info.PostMission; post.ConstrainRange {
		target, _ := post.TargetRange.In("m")
		out[MissionRangeResidual] = []float64{target - rng}
	}
	if p.info.PostMission.IncludeLanding {
		out[MissionLandingFieldLen] = []float64{p.landingFieldLength(mass)}
	}
	for _, bs := range p.subsystems {
		if !full && !bs.relevant {
			continue
		}
		in := make(map[string]float64, len(bs.sources))
		for _, si := range bs.sub.Inputs() {
			c := bs.sources[si.Name]
			v, err := Convert(pick(out[c.src], c), p.units[c.src], si.Units)
			if err != nil {
				return nil, fmt.Errorf("subsystem %s input %s: %w", bs.name, si.Name, err)
			}
			in[si.Name] = v
		}
		res, err := bs.sub.Compute(in)
		if err != nil {
			return nil, fmt.Errorf("subsystem %s: %w", bs.name, err)
		}
		for name, v := range res {
			out[bs.name+"."+name] = []float64{v}
		}
		if w, ok := bs.sub.(interface{ Warnings() []string }); ok {
			for _, msg := range w.Warnings() {
				ev.warnings = append(ev.warnings, bs.name+": "+msg)
			}
		}
	}
	return ev, nil
}

// scaled returns the objective and constraints for the optimizer.
func (p *Problem) scaled(ev *evaluation) tools.Evaluation {
	obj := ev.outputs[p.objective.Source]
	se := tools.Evaluation{F: obj[len(obj)-1] / p.objective.Ref}
	for _, c := range p.cons {
		vals := ev.outputs[c.Name]
		switch c.Loc {
		case "initial":
			vals = vals[:1]
		case "final":
			vals = vals[len(vals)-1:]
		}
		for _, v := range vals {
			if c.HasEquals {
				se.Eq = append(se.Eq, (v-c.Equals)/c.Ref)
			}
			if c.HasLower {
				se.Ineq = append(se.Ineq, (c.Lower-v)/c.Ref)
			}
			if c.HasUpper {
				se.Ineq = append(se.Ineq, (v-c.Upper)/c.Ref)
			}
		}
	}
	return se
}

// Run evaluates or optimizes the problem. Configuration errors are returned,
// convergence failures are reported in the result and in p.Failed.
func (p *Problem) Run(opts RunOptions) (*Result, error) {
	if !p.done[stepFinalSetup] {
		return nil, configErr(p.Name, ErrOutOfOrder, "Run requires FinalSetup")
	}
	res := &Result{ExitStatus: "SUCCESS", units: p.units}
	if opts.RunDriver && len(p.desvars) > 0 {
		var rec *HistoryRecorder
		if opts.HistoryFile != "" {
			rec = NewHistoryRecorder(opts.HistoryFile, p.Name, p.driver.Optimizer)
		}
		prob := tools.ConstrainedProblem{
			Lower: make([]float64, len(p.desvars)),
			Upper: make([]float64, len(p.desvars)),
			Ref:   make([]float64, len(p.desvars)),
			Evaluate: func(x []float64) (tools.Evaluation, error) {
				ev, err := p.evaluate(x, false)
				if err != nil {
					return tools.Evaluation{}, err
				}
				return p.scaled(ev), nil
			},
		}
		for i, dv := range p.desvars {
			prob.Lower[i], prob.Upper[i], prob.Ref[i] = dv.Lower, dv.Upper, dv.Ref
		}
		settings := p.driver.settings(p.logger, p.verbosity)
		if rec != nil {
			settings.Record = func(it tools.IterationRecord) {
				rec.Record(p.historyRecord(it))
			}
		}
		mres, err := tools.Minimize(prob, p.x, settings)
		if rec != nil {
			if cerr := rec.Close(mres.Status.String()); cerr != nil {
				level.Error(p.logger).Log("subsys", "history", "file", opts.HistoryFile, "err", cerr)
			}
		}
		if err != nil {
			res.SolverWarnings = append(res.SolverWarnings, err.Error())
		} else {
			copy(p.x, mres.X)
		}
		res.ExitStatus = mres.Status.String()
		res.Failed = mres.Status.Failed()
		res.Iterations = mres.Iterations
		res.FuncEvals = mres.FuncEvals
		switch mres.Status {
		case tools.IterationLimit:
			res.SolverWarnings = append(res.SolverWarnings, fmt.Sprintf("iteration limit of %d reached at a feasible point (max violation %g): optimality not reached", p.driver.MaxIter, mres.MaxViolation))
			level.Warn(p.logger).Log("subsys", "driver", "status", res.ExitStatus, "iter", mres.Iterations, "warning", "feasible but not optimal")
		case tools.Infeasible, tools.EvaluationFailure:
			level.Error(p.logger).Log("subsys", "driver", "status", res.ExitStatus, "iter", mres.Iterations, "violation", mres.MaxViolation)
		}
	}
	ev, err := p.evaluate(p.x, true)
	if err != nil {
		var cfg *ConfigError
		if errors.As(err, &cfg) {
			return nil, err
		}
		res.Failed = true
		res.ExitStatus = tools.EvaluationFailure.String()
		res.SolverWarnings = append(res.SolverWarnings, err.Error())
		p.Failed = true
		return res, nil
	}
	se := p.scaled(ev)
	res.Objective = se.F * p.objective.Ref
	res.MaxViolation = se.MaxViolation()
	res.Phases = ev.phases
	res.outputs = ev.outputs
	res.SolverWarnings = append(res.SolverWarnings, ev.warnings...)
	res.DesignVector = append([]float64(nil), p.x...)
	if !opts.RunDriver && math.IsNaN(res.Objective) {
		res.Failed = true
	}
	p.Failed = res.Failed
	p.last = res
	level.Warn(p.logger).Log("subsys", "problem", "status", res.ExitStatus, "failed", res.Failed, "objective", res.Objective, "violation", res.MaxViolation, "iter", res.Iterations, "evals", res.FuncEvals)
	for _, w := range res.SolverWarnings {
		level.Info(p.logger).Log("subsys", "problem", "warning", w)
	}
	return res, nil
}

// historyRecord converts a driver iteration into a history record.
func (p *Problem) historyRecord(it tools.IterationRecord) HistoryRecord {
	dvs := make(map[string]float64, len(p.desvars))
	for i, dv := range p.desvars {
		dvs[dv.Name] = it.X[i]
	}
	return HistoryRecord{
		Iteration:    it.Iteration,
		DesignVars:   dvs,
		Objective:    it.Evaluation.F * p.objective.Ref,
		MaxViolation: it.MaxViolation,
		Penalty:      it.Penalty,
		FuncEvals:    it.FuncEvals,
	}
}
