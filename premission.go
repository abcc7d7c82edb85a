package amd

import (
	"math"

	"github.com/go-kit/kit/log/level"
)

// preMission holds the aircraft quantities every phase and the post-mission
// systems need, in SI.
type preMission struct {
	engines       EngineConfig
	throttleFracs []float64
	atmo          Atmosphere
	aero          polarAero
	wingArea      float64
	friction      float64
	clMaxLanding  float64

	gross, operating, payload, reserve, takeoffFuel float64
	grossIdx                                        int // design vector index, -1 if fixed
}

// AddPreMissionSystems builds the engine configuration, the clean aerodynamics,
// the mass breakdown and the takeoff allowance.
func (p *Problem) AddPreMissionSystems() error {
	if err := p.begin(stepPreMission); err != nil {
		return err
	}
	ac := p.aircraft
	pre := &preMission{grossIdx: -1}
	var err error
	where := p.Name + " pre-mission"
	if pre.engines, err = enginesFromAircraft(ac); err != nil {
		return err
	}
	if ac.Has(AircraftThrottleAllocFrac) {
		if pre.throttleFracs, err = ac.Vals(AircraftThrottleAllocFrac, "unitless"); err != nil {
			return configErr(where, ErrUnitMismatch, "%s", err)
		}
	}
	if pre.wingArea, err = ac.Val(AircraftWingArea, "m**2"); err != nil {
		return configErr(where, ErrUnitMismatch, "%s", err)
	}
	if pre.wingArea <= 0 {
		return configErr(where, ErrInvalidPhase, "%s must be positive", AircraftWingArea)
	}
	if pre.gross, err = ac.Val(MissionDesignGrossMass, "kg"); err != nil {
		return configErr(where, ErrUnitMismatch, "%s", err)
	}

	// Optional values with their defaults.
	for _, opt := range []struct {
		name, units string
		dflt        float64
		dst         *float64
	}{
		{AircraftOperatingMass, "kg", 0, &pre.operating},
		{AircraftReserveFuel, "kg", 0, &pre.reserve},
		{MissionTakeoffFuel, "kg", 577 * lbm2kg, &pre.takeoffFuel},
		{AircraftRollingFriction, "unitless", 0.025, &pre.friction},
		{AircraftLandingCLMax, "unitless", 2.5, &pre.clMaxLanding},
	} {
		if *opt.dst, err = ac.ValOr(opt.name, opt.units, opt.dflt); err != nil {
			return configErr(where, ErrUnitMismatch, "%s", err)
		}
	}
	pax, err := ac.ValOr(AircraftNumPassengers, "unitless", 0)
	if err != nil {
		return configErr(where, ErrUnitMismatch, "%s", err)
	}
	perPax, err := ac.ValOr(AircraftMassPerPassenger, "kg", 225*lbm2kg)
	if err != nil {
		return configErr(where, ErrUnitMismatch, "%s", err)
	}
	cargo, err := ac.ValOr(AircraftCargoMass, "kg", 0)
	if err != nil {
		return configErr(where, ErrUnitMismatch, "%s", err)
	}
	pre.payload = pax*perPax + cargo

	// Clean aerodynamics, used by phases without a low speed table.
	ar, err := ac.ValOr(AircraftWingAspectRatio, "unitless", 10)
	if err != nil {
		return configErr(where, ErrUnitMismatch, "%s", err)
	}
	cd0, err := ac.ValOr(AircraftZeroLiftDrag, "unitless", 0.02)
	if err != nil {
		return configErr(where, ErrUnitMismatch, "%s", err)
	}
	e, err := ac.ValOr(AircraftSpanEfficiency, "unitless", 0.8)
	if err != nil {
		return configErr(where, ErrUnitMismatch, "%s", err)
	}
	mdd, err := ac.ValOr(AircraftDragDivergence, "unitless", 0.75)
	if err != nil {
		return configErr(where, ErrUnitMismatch, "%s", err)
	}
	if ar <= 0 || e <= 0 {
		return configErr(where, ErrInvalidPhase, "aspect ratio %g and span efficiency %g must be positive", ar, e)
	}
	pre.aero = newPolarAero(cd0, ar, e, mdd)

	// ISA deviations are temperature differences: only scale, never offset.
	dT, err := ac.ValOr(MissionISATemperatureDev, "degR", 0)
	if err != nil {
		return configErr(where, ErrUnitMismatch, "%s", err)
	}
	pre.atmo = Atmosphere{DeltaT: dT * 5 / 9}

	p.pre = pre
	level.Info(p.logger).Log("subsys", "premission", "gross(lbm)", math.Round(pre.gross/lbm2kg), "payload(lbm)", math.Round(pre.payload/lbm2kg), "engines", pre.engines.NumTypes(), "takeoff", p.info.PreMission.IncludeTakeoff)
	p.finish(stepPreMission)
	return nil
}

// grossMass returns the gross mass for the design vector.
func (p *Problem) grossMass(x []float64) float64 {
	if p.pre.grossIdx >= 0 {
		return x[p.pre.grossIdx]
	}
	if m, ok := p.overrides[MissionGrossMass]; ok {
		return m
	}
	return p.pre.gross
}

// initialMass returns the mass at the start of the first phase.
func (p *Problem) initialMass(gross float64) float64 {
	if p.eom == Solved2DOF {
		return gross
	}
	if p.info.PreMission.IncludeTakeoff {
		return gross - p.pre.takeoffFuel
	}
	return gross - 100
}

// landingFieldLength is a simple estimate from the approach speed, 1.3 times
// the stall speed, with the field length in feet taken as 0.3 Vapp² (knots).
func (p *Problem) landingFieldLength(mass float64) float64 {
	vs := math.Sqrt(2 * mass * g0 / (rho0 * p.pre.wingArea * p.pre.clMaxLanding))
	vapp := 1.3 * vs / (nmi2m / 3600)
	return 0.3 * vapp * vapp * ft2m
}
