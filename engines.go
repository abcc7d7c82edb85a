package amd

import (
	"fmt"
	"math"
)

// Engine defines an engine interface. All values are per engine, in SI.
type Engine interface {
	// MaxThrust returns the maximum net thrust in Newtons.
	MaxThrust(atm AtmosphereState, mach float64) float64
	// Thrust returns the net thrust in Newtons at the provided throttle.
	Thrust(throttle float64, atm AtmosphereState, mach float64) float64
	// FuelFlow returns the fuel mass flow in kg/s at the provided throttle.
	FuelFlow(throttle float64, atm AtmosphereState, mach float64) float64
}

// Turbofan is a parametric turbofan deck scaled by its sea level static thrust.
// Thrust lapses with density and Mach, and the fuel flow keeps an idle floor.
type Turbofan struct {
	Name           string
	SLSThrust      float64 // N
	TSFC           float64 // kg/(N s) at sea level static
	LapseExponent  float64
	MachLapse      float64
	TSFCMachFactor float64
	IdleFraction   float64
}

// NewTurbofan returns a turbofan with the default lapse coefficients.
func NewTurbofan(name string, slsThrust, tsfc float64) *Turbofan {
	return &Turbofan{Name: name, SLSThrust: slsThrust, TSFC: tsfc, LapseExponent: 0.75, MachLapse: 0.2, TSFCMachFactor: 0.4, IdleFraction: 0.05}
}

// MaxThrust implements the Engine interface.
func (e *Turbofan) MaxThrust(atm AtmosphereState, mach float64) float64 {
	return e.SLSThrust * math.Pow(atm.Density/rho0, e.LapseExponent) * (1 - e.MachLapse*mach)
}

// Thrust implements the Engine interface.
func (e *Turbofan) Thrust(throttle float64, atm AtmosphereState, mach float64) float64 {
	return throttle * e.MaxThrust(atm, mach)
}

// FuelFlow implements the Engine interface.
func (e *Turbofan) FuelFlow(throttle float64, atm AtmosphereState, mach float64) float64 {
	tsfc := e.TSFC * (1 + e.TSFCMachFactor*mach)
	return tsfc * e.MaxThrust(atm, mach) * (e.IdleFraction + (1-e.IdleFraction)*throttle)
}

func (e *Turbofan) String() string {
	return fmt.Sprintf("%s (%.0f lbf SLS)", e.Name, e.SLSThrust/lbf2N)
}

// EngineConfig is the engine installation of the aircraft. It is either a
// SingleEngineType or a MultiEngineType, selected once by NewEngineConfig.
type EngineConfig interface {
	// NumTypes returns the number of engine types.
	NumTypes() int
	// MaxThrust returns the total installed maximum thrust.
	MaxThrust(atm AtmosphereState, mach float64) float64
	isEngineConfig()
}

// SingleEngineType is a set of identical engines.
type SingleEngineType struct {
	Engine Engine
	Count  int
}

// NumTypes implements the EngineConfig interface.
func (c SingleEngineType) NumTypes() int { return 1 }

// MaxThrust implements the EngineConfig interface.
func (c SingleEngineType) MaxThrust(atm AtmosphereState, mach float64) float64 {
	return float64(c.Count) * c.Engine.MaxThrust(atm, mach)
}

// Thrust returns the total thrust and fuel flow at the provided throttle.
func (c SingleEngineType) Thrust(throttle float64, atm AtmosphereState, mach float64) (thrust, fuelFlow float64) {
	n := float64(c.Count)
	return n * c.Engine.Thrust(throttle, atm, mach), n * c.Engine.FuelFlow(throttle, atm, mach)
}

func (c SingleEngineType) isEngineConfig() {}

// MultiEngineType is a mix of different engines, each type with its own count and throttle.
type MultiEngineType struct {
	Engines []Engine
	Counts  []int
}

// NumTypes implements the EngineConfig interface.
func (c MultiEngineType) NumTypes() int { return len(c.Engines) }

// MaxThrust implements the EngineConfig interface.
func (c MultiEngineType) MaxThrust(atm AtmosphereState, mach float64) (total float64) {
	for i, e := range c.Engines {
		total += float64(c.Counts[i]) * e.MaxThrust(atm, mach)
	}
	return
}

// Thrust returns the total thrust and fuel flow for the per type throttles.
func (c MultiEngineType) Thrust(throttles []float64, atm AtmosphereState, mach float64) (thrust, fuelFlow float64) {
	for i, e := range c.Engines {
		n := float64(c.Counts[i])
		thrust += n * e.Thrust(throttles[i], atm, mach)
		fuelFlow += n * e.FuelFlow(throttles[i], atm, mach)
	}
	return
}

func (c MultiEngineType) isEngineConfig() {}

// NewEngineConfig returns the engine configuration for the provided engines.
func NewEngineConfig(engines []Engine, counts []int) (EngineConfig, error) {
	if len(engines) == 0 || len(engines) != len(counts) {
		return nil, configErr("engines", ErrInvalidEngineConfig, "%d engine types and %d counts", len(engines), len(counts))
	}
	for i, n := range counts {
		if n <= 0 {
			return nil, configErr("engines", ErrInvalidEngineConfig, "engine type %d has %d engines", i, n)
		}
	}
	if len(engines) == 1 {
		return SingleEngineType{Engine: engines[0], Count: counts[0]}, nil
	}
	return MultiEngineType{Engines: engines, Counts: counts}, nil
}

// enginesFromAircraft builds the engine configuration from the aircraft deck.
func enginesFromAircraft(ac *AircraftDefinition) (EngineConfig, error) {
	counts, err := ac.Vals(AircraftNumEngines, "unitless")
	if err != nil {
		return nil, configErr("pre-mission", ErrMissingVariable, "%s", err)
	}
	thrusts, err := ac.Vals(AircraftSLSThrust, "N")
	if err != nil {
		return nil, configErr("pre-mission", ErrMissingVariable, "%s", err)
	}
	if len(thrusts) != len(counts) {
		return nil, configErr("pre-mission", ErrInvalidEngineConfig, "%s has %d values but %s has %d", AircraftSLSThrust, len(thrusts), AircraftNumEngines, len(counts))
	}
	perType := func(name, units string, dflt float64) ([]float64, error) {
		if !ac.Has(name) {
			out := make([]float64, len(counts))
			for i := range out {
				out[i] = dflt
			}
			return out, nil
		}
		vals, err := ac.Vals(name, units)
		if err != nil {
			return nil, configErr("pre-mission", ErrUnitMismatch, "%s", err)
		}
		if len(vals) == 1 && len(counts) > 1 {
			for len(vals) < len(counts) {
				vals = append(vals, vals[0])
			}
		}
		if len(vals) != len(counts) {
			return nil, configErr("pre-mission", ErrInvalidEngineConfig, "%s has %d values for %d engine types", name, len(vals), len(counts))
		}
		return vals, nil
	}
	tsfc, err := perType(AircraftTSFC, "kg/N/s", 0.5*lbm2kg/(3600*lbf2N))
	if err != nil {
		return nil, err
	}
	lapse, err := perType(AircraftThrustLapse, "unitless", 0.75)
	if err != nil {
		return nil, err
	}
	machLapse, err := perType(AircraftMachLapse, "unitless", 0.2)
	if err != nil {
		return nil, err
	}
	tsfcMach, err := perType(AircraftTSFCMachFactor, "unitless", 0.4)
	if err != nil {
		return nil, err
	}
	idle, err := perType(AircraftIdleFuelFraction, "unitless", 0.05)
	if err != nil {
		return nil, err
	}
	engines := make([]Engine, len(counts))
	icounts := make([]int, len(counts))
	for i := range counts {
		engines[i] = &Turbofan{
			Name:           fmt.Sprintf("engine_%d", i),
			SLSThrust:      thrusts[i],
			TSFC:           tsfc[i],
			LapseExponent:  lapse[i],
			MachLapse:      machLapse[i],
			TSFCMachFactor: tsfcMach[i],
			IdleFraction:   idle[i],
		}
		icounts[i] = int(math.Round(counts[i]))
	}
	return NewEngineConfig(engines, icounts)
}
