package amd

// Aircraft variable names, as found in aircraft decks.
const (
	AircraftWingArea        = "aircraft:wing:area"
	AircraftWingAspectRatio = "aircraft:wing:aspect_ratio"

	AircraftZeroLiftDrag      = "aircraft:design:zero_lift_drag_coefficient"
	AircraftSpanEfficiency    = "aircraft:design:span_efficiency_factor"
	AircraftDragDivergence    = "aircraft:design:drag_divergence_mach"
	AircraftOperatingMass     = "aircraft:design:operating_mass"
	AircraftReserveFuel       = "aircraft:design:reserve_fuel"
	AircraftLandingCLMax      = "aircraft:design:landing_max_lift_coefficient"
	AircraftRollingFriction   = "aircraft:landing:rolling_friction_coefficient"
	AircraftNumPassengers     = "aircraft:crew_and_payload:num_passengers"
	AircraftMassPerPassenger  = "aircraft:crew_and_payload:mass_per_passenger"
	AircraftCargoMass         = "aircraft:crew_and_payload:cargo_mass"
	AircraftNumEngines        = "aircraft:engine:num_engines"
	AircraftSLSThrust         = "aircraft:engine:scaled_sls_thrust"
	AircraftTSFC              = "aircraft:engine:tsfc_sls"
	AircraftTSFCMachFactor    = "aircraft:engine:tsfc_mach_factor"
	AircraftIdleFuelFraction  = "aircraft:engine:idle_fuel_fraction"
	AircraftThrustLapse       = "aircraft:engine:thrust_lapse_exponent"
	AircraftMachLapse         = "aircraft:engine:mach_thrust_lapse"
	AircraftThrottleAllocFrac = "aircraft:engine:throttle_allocations"
)

// Mission variable names. Inputs come from the aircraft deck, outputs are
// published in the problem's variable registry.
const (
	MissionDesignGrossMass   = "mission:design:gross_mass"
	MissionGrossMass         = "mission:summary:gross_mass"
	MissionFuelBurned        = "mission:summary:fuel_burned"
	MissionTotalFuel         = "mission:summary:total_fuel_mass"
	MissionRange             = "mission:summary:range"
	MissionTakeoffFuel       = "mission:takeoff:fuel_simple"
	MissionTakeoffFinalMass  = "mission:takeoff:final_mass"
	MissionLandingFieldLen   = "mission:landing:field_length"
	MissionLandingTouchdown  = "mission:landing:touchdown_mass"
	MissionMassResidual      = "mission:constraints:mass_residual"
	MissionRangeResidual     = "mission:constraints:range_residual"
	MissionDesignRange       = "mission:design:range"
	MissionISATemperatureDev = "mission:design:isa_delta_temperature"
)

// Settings which may be overridden on a shared aircraft definition.
const (
	SettingsEquationsOfMotion = "settings:equations_of_motion"
	SettingsVerbosity         = "settings:verbosity"
)

// overridable lists the only names accepted by AircraftDefinition.WithOverride.
var overridable = map[string]bool{
	SettingsEquationsOfMotion: true,
	SettingsVerbosity:         true,
}

// timeseriesUnits lists every per-node output of a phase with its SI units.
// Constraints may only reference these names.
var timeseriesUnits = map[string]string{
	"time":                        "s",
	"distance":                    "m",
	"mass":                        "kg",
	"altitude":                    "m",
	"altitude_rate":               "m/s",
	"altitude_rate_max":           "m/s",
	"mach":                        "unitless",
	"velocity":                    "m/s",
	"velocity_rate":               "m/s**2",
	"distance_rate":               "m/s",
	"flight_path_angle":           "rad",
	"alpha":                       "deg",
	"lift":                        "N",
	"drag":                        "N",
	"CL":                          "unitless",
	"CD":                          "unitless",
	"throttle":                    "unitless",
	"thrust":                      "N",
	"thrust_max":                  "N",
	"thrust_required":             "N",
	"thrust_residual":             "N",
	"fuel_flow":                   "kg/s",
	"specific_energy_rate_excess": "m/s",
}
