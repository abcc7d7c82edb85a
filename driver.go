package amd

import (
	"sort"
	"strings"

	"github.com/ChristopherRabotin/amd/tools"
	kitlog "github.com/go-kit/kit/log"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/optimize"
)

// DriverOptions are the optimizer settings of AddDriver.
type DriverOptions struct {
	// MaxIter caps the driver iterations; the optimizer specific iteration
	// setting takes precedence when both are given.
	MaxIter int
	// Settings are optimizer specific, e.g. "Major feasibility tolerance" for
	// SNOPT or "tol" for SLSQP. Keys are case insensitive.
	Settings map[string]float64
}

type optimizerDef struct {
	method       func() optimize.Method
	gradient     fd.Formula
	iterKey      string
	optKey       string
	feasKey      string
	optDefault   float64
	feasDefault  float64
	reportingKey []string // accepted, only affect reporting
}

// Supported optimizers. Each maps to a gonum method minimizing the augmented Lagrangian.
var optimizers = map[string]optimizerDef{
	"SLSQP": {
		method:       func() optimize.Method { return &optimize.BFGS{} },
		gradient:     fd.Central,
		iterKey:      "maxiter",
		optKey:       "tol",
		feasKey:      "feasibility_tol",
		optDefault:   1e-6,
		feasDefault:  1e-6,
		reportingKey: []string{"disp"},
	},
	"SNOPT": {
		method:       func() optimize.Method { return &optimize.LBFGS{} },
		gradient:     fd.Central,
		iterKey:      "Major iterations limit",
		optKey:       "Major optimality tolerance",
		feasKey:      "Major feasibility tolerance",
		optDefault:   1e-6,
		feasDefault:  1e-6,
		reportingKey: []string{"iSumm", "iPrint", "Verify level"},
	},
	"IPOPT": {
		method:       func() optimize.Method { return &optimize.BFGS{} },
		gradient:     fd.Central,
		iterKey:      "max_iter",
		optKey:       "tol",
		feasKey:      "constr_viol_tol",
		optDefault:   1e-6,
		feasDefault:  1e-4,
		reportingKey: []string{"print_level"},
	},
	"COBYLA": {
		method:       func() optimize.Method { return &optimize.NelderMead{} },
		iterKey:      "maxiter",
		optKey:       "tol",
		feasKey:      "catol",
		optDefault:   1e-6,
		feasDefault:  2e-4,
		reportingKey: []string{"disp"},
	},
}

// Driver is the configured optimizer.
type Driver struct {
	Optimizer      string
	MaxIter        int
	OptimalityTol  float64
	FeasibilityTol float64
	def            optimizerDef
}

// NewDriver validates the optimizer and its settings.
func NewDriver(optimizer string, opts DriverOptions) (*Driver, error) {
	name := strings.ToUpper(optimizer)
	def, ok := optimizers[name]
	if !ok {
		known := make([]string, 0, len(optimizers))
		for k := range optimizers {
			known = append(known, k)
		}
		sort.Strings(known)
		return nil, configErr("driver", ErrInvalidDriver, "unknown optimizer %q (expected one of %s)", optimizer, strings.Join(known, ", "))
	}
	d := &Driver{Optimizer: name, MaxIter: 50, OptimalityTol: def.optDefault, FeasibilityTol: def.feasDefault, def: def}
	if opts.MaxIter < 0 {
		return nil, configErr("driver", ErrInvalidDriver, "negative max_iter %d", opts.MaxIter)
	}
	if opts.MaxIter > 0 {
		d.MaxIter = opts.MaxIter
	}
	for key, val := range opts.Settings {
		switch {
		case strings.EqualFold(key, def.iterKey):
			if val < 1 {
				return nil, configErr("driver", ErrInvalidDriver, "%s=%g", key, val)
			}
			d.MaxIter = int(val)
		case strings.EqualFold(key, def.optKey):
			if val <= 0 {
				return nil, configErr("driver", ErrInvalidDriver, "%s=%g", key, val)
			}
			d.OptimalityTol = val
		case strings.EqualFold(key, def.feasKey):
			if val <= 0 {
				return nil, configErr("driver", ErrInvalidDriver, "%s=%g", key, val)
			}
			d.FeasibilityTol = val
		default:
			reporting := false
			for _, k := range def.reportingKey {
				reporting = reporting || strings.EqualFold(k, key)
			}
			if !reporting {
				return nil, configErr("driver", ErrInvalidDriver, "unknown %s setting %q", name, key)
			}
		}
	}
	return d, nil
}

// settings returns the minimizer settings for this driver.
func (d *Driver) settings(logger kitlog.Logger, v Verbosity) tools.MinimizerSettings {
	s := tools.MinimizerSettings{
		MaxIter:        d.MaxIter,
		OptimalityTol:  d.OptimalityTol,
		FeasibilityTol: d.FeasibilityTol,
		Method:         d.def.method,
		Gradient:       d.def.gradient,
		Logger:         kitlog.With(logger, "optimizer", d.Optimizer),
	}
	if v <= Quiet {
		s.Logger = SilentLogger()
	}
	return s
}
