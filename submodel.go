package amd

import (
	"fmt"

	kitlog "github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
)

// SubmodelVar declares an input or output of a submodel: the variable name in
// the embedded problem, its alias in the parent and its units (SI by default).
// Outputs select the last element of the embedded variable.
type SubmodelVar struct {
	Name  string
	Alias string
	Units string
}

func (v SubmodelVar) alias() string {
	if v.Alias != "" {
		return v.Alias
	}
	return v.Name
}

// SubmodelComponent wraps a complete Problem as a black box subsystem. Each
// Compute sets the inputs and runs the embedded driver from the previous
// solution.
type SubmodelComponent struct {
	prob     *Problem
	inputs   []SubmodelVar
	outputs  []SubmodelVar
	logger   kitlog.Logger
	last     *Result
	warnings []string
	Runs     int
}

// NewSubmodelComponent wraps prob, which must be assembled up to AddObjective.
func NewSubmodelComponent(prob *Problem, inputs, outputs []SubmodelVar, logger kitlog.Logger) (*SubmodelComponent, error) {
	if !prob.done[stepObjective] || prob.done[stepSetup] {
		return nil, configErr(prob.Name, ErrOutOfOrder, "submodel problems are wrapped after AddObjective and before Setup")
	}
	if logger == nil {
		logger = SilentLogger()
	}
	c := &SubmodelComponent{prob: prob, logger: kitlog.With(logger, "submodel", prob.Name)}
	for _, in := range inputs {
		units, err := prob.inputUnits(in.Name)
		if err != nil {
			return nil, err
		}
		if in.Units == "" {
			in.Units = units
		} else if !sameDimension(in.Units, units) {
			return nil, configErr(prob.Name, ErrUnitMismatch, "submodel input %s: %s is not compatible with %s", in.Name, in.Units, units)
		}
		c.inputs = append(c.inputs, in)
	}
	for _, out := range outputs {
		units, ok := prob.units[out.Name]
		if !ok {
			return nil, configErr(prob.Name, ErrUnknownVariable, "submodel output %q", out.Name)
		}
		if out.Units == "" {
			out.Units = units
		} else if !sameDimension(out.Units, units) {
			return nil, configErr(prob.Name, ErrUnitMismatch, "submodel output %s: %s is not compatible with %s", out.Name, out.Units, units)
		}
		c.outputs = append(c.outputs, out)
	}
	return c, nil
}

// Problem returns the embedded problem.
func (c *SubmodelComponent) Problem() *Problem {
	return c.prob
}

// Inputs implements Subsystem. Unconnected inputs are fed from the parent
// variable of the same name.
func (c *SubmodelComponent) Inputs() []SubsystemInput {
	out := make([]SubsystemInput, len(c.inputs))
	for i, in := range c.inputs {
		out[i] = SubsystemInput{Name: in.alias(), Units: in.Units, Source: in.Name}
	}
	return out
}

// Outputs implements Subsystem.
func (c *SubmodelComponent) Outputs() []SubsystemOutput {
	out := make([]SubsystemOutput, len(c.outputs))
	for i, o := range c.outputs {
		out[i] = SubsystemOutput{Name: o.alias(), Units: o.Units}
	}
	return out
}

// Setup completes the embedded problem with three explicit calls.
func (c *SubmodelComponent) Setup() error {
	if err := c.prob.Setup(); err != nil {
		return err
	}
	if err := c.prob.SetInitialGuesses(); err != nil {
		return err
	}
	return c.prob.FinalSetup()
}

// Compute implements Subsystem.
func (c *SubmodelComponent) Compute(inputs map[string]float64) (map[string]float64, error) {
	c.warnings = c.warnings[:0]
	for _, in := range c.inputs {
		v, ok := inputs[in.alias()]
		if !ok {
			return nil, fmt.Errorf("%w: submodel input %s", ErrMissingVariable, in.alias())
		}
		if err := c.prob.SetVal(in.Name, v, in.Units); err != nil {
			return nil, err
		}
	}
	res, err := c.prob.Run(RunOptions{RunDriver: true})
	if err != nil {
		return nil, err
	}
	c.Runs++
	c.last = res
	if res.Failed {
		c.warnings = append(c.warnings, fmt.Sprintf("embedded problem %s exited with %s", c.prob.Name, res.ExitStatus))
	}
	out := make(map[string]float64, len(c.outputs))
	for _, o := range c.outputs {
		v, err := res.Last(o.Name, o.Units)
		if err != nil {
			return nil, err
		}
		out[o.alias()] = v
	}
	level.Debug(c.logger).Log("subsys", "submodel", "status", res.ExitStatus, "iter", res.Iterations, "evals", res.FuncEvals)
	return out, nil
}

// Warnings returns the warnings of the last Compute.
func (c *SubmodelComponent) Warnings() []string {
	return c.warnings
}

// LastResult returns the result of the last embedded run, nil before the first one.
func (c *SubmodelComponent) LastResult() *Result {
	return c.last
}
