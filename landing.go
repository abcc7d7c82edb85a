package amd

import (
	kitlog "github.com/go-kit/kit/log"
)

// landingAero returns the low speed aerodynamics of the landing configuration.
func landingAero() map[string]map[string]interface{} {
	return map[string]map[string]interface{}{
		"core_aerodynamics": {
			"method":          "low_speed",
			"ground_altitude": Q(0, "ft"),
			"angles_of_attack": []float64{
				-5, -4, -3, -2, -1, 0, 1, 2, 3, 4, 5,
				6, 7, 8, 9, 10, 11, 12, 13, 14, 15,
			},
			"lift_coefficients": []float64{
				0.01, 0.1, 0.2, 0.3, 0.4, 0.5178, 0.6, 0.75, 0.85, 0.95, 1.05,
				1.15, 1.25, 1.35, 1.5, 1.6, 1.7, 1.8, 1.85, 1.9, 1.95,
			},
			"drag_coefficients": []float64{
				0.04, 0.02, 0.01, 0.02, 0.04, 0.0674, 0.065, 0.065, 0.07, 0.072,
				0.076, 0.084, 0.09, 0.10, 0.11, 0.12, 0.13, 0.15, 0.16, 0.18, 0.20,
			},
			"lift_coefficient_factor": 2.0,
			"drag_coefficient_factor": 3.0,
		},
	}
}

// landingSegment returns the options shared by the three approach segments.
func landingSegment() map[string]interface{} {
	return map[string]interface{}{
		"num_segments":    5,
		"order":           3,
		"ground_roll":     false,
		"clean":           false,
		"rotation":        false,
		"initial_ref":     Q(1e3, "ft"),
		"duration_ref":    Q(1e3, "ft"),
		"mach_bounds":     B(0.1, 0.5, "unitless"),
		"altitude_bounds": B(0, 1000, "ft"),
		"initial_mach":    Q(0.15, "unitless"),
		"final_mach":      Q(0.15, "unitless"),
		"optimize_mach":   false,
	}
}

func withOptions(base map[string]interface{}, extra map[string]interface{}) map[string]interface{} {
	for k, v := range extra {
		base[k] = v
	}
	return base
}

// LandingPhaseInfo returns the detailed landing approach: GH from 500 ft to
// 394 ft, HI down to 50 ft, both on a 3 degree glide slope, and the IJ flare to
// the ground. The segments are integrated against distance.
func LandingPhaseInfo() PhaseInfo {
	glide := -3.0
	return PhaseInfo{
		PreMission: PreMissionOptions{},
		Phases: []NamedPhase{
			{Name: "GH", PhaseDescriptor: PhaseDescriptor{
				UserOptions: withOptions(landingSegment(), map[string]interface{}{
					"fix_initial":              true,
					"initial_bounds":           B(0, 16e3, "ft"),
					"duration_bounds":          B(500, 5e3, "ft"),
					"initial_altitude":         Q(500, "ft"),
					"final_altitude":           Q(394, "ft"),
					"polynomial_control_order": 1,
					"throttle_enforcement":     "bounded",
					"optimize_altitude":        false,
					"constraints": map[string]ConstraintSpec{
						"flight_path_angle": {Equals: F(glide), Loc: "initial", Units: "deg", Type: "boundary"},
					},
				}),
				SubsystemOptions: landingAero(),
				InitialGuesses: map[string]Bounds{
					"distance": B(0, 2e3, "ft"),
					"time":     B(0, 12, "s"),
					"mass":     B(120e3, 119.8e3, "lbm"),
				},
			}},
			{Name: "HI", PhaseDescriptor: PhaseDescriptor{
				UserOptions: withOptions(landingSegment(), map[string]interface{}{
					"fix_initial":              false,
					"initial_bounds":           B(0, 16e3, "ft"),
					"duration_bounds":          B(500, 15e3, "ft"),
					"initial_altitude":         Q(394, "ft"),
					"final_altitude":           Q(50, "ft"),
					"polynomial_control_order": 1,
					"throttle_enforcement":     "bounded",
					"optimize_altitude":        false,
					"constraints": map[string]ConstraintSpec{
						"flight_path_angle": {Equals: F(glide), Loc: "final", Units: "deg", Type: "boundary"},
					},
				}),
				SubsystemOptions: landingAero(),
				InitialGuesses: map[string]Bounds{
					"distance": B(2e3, 6.5e3, "ft"),
					"time":     B(12, 50, "s"),
					"mass":     B(119.8e3, 119.7e3, "lbm"),
				},
			}},
			{Name: "IJ", PhaseDescriptor: PhaseDescriptor{
				UserOptions: withOptions(landingSegment(), map[string]interface{}{
					"fix_initial":              false,
					"initial_bounds":           B(0, 30e3, "ft"),
					"duration_bounds":          B(500, 15e3, "ft"),
					"initial_altitude":         Q(50, "ft"),
					"final_altitude":           Q(0, "ft"),
					"polynomial_control_order": 2,
					"throttle_enforcement":     "path_constraint",
					"optimize_altitude":        true,
					"constraints":              map[string]ConstraintSpec{},
				}),
				SubsystemOptions: landingAero(),
				InitialGuesses: map[string]Bounds{
					"distance": B(8.5e3, 2e3, "ft"),
					"time":     B(50, 60, "s"),
					"mass":     B(119.7e3, 119.67e3, "lbm"),
				},
			}},
		},
	}
}

// landingObjectiveRef scales the final mass objective of the landing problem, in lbm.
const landingObjectiveRef = -100

// NewLandingProblem assembles the detailed landing problem up to its objective.
// The aircraft is shared with the parent, with the solved 2DOF equations of motion.
func NewLandingProblem(aircraft *AircraftDefinition, logger kitlog.Logger) (*Problem, error) {
	ac, err := aircraft.WithOverride(SettingsEquationsOfMotion, Solved2DOF.Variable())
	if err != nil {
		return nil, err
	}
	prob := NewProblem("detailed_landing", logger)
	for _, step := range []func() error{
		func() error { return prob.LoadInputs(ac, LandingPhaseInfo()) },
		prob.CheckAndPreprocessInputs,
		prob.AddPreMissionSystems,
		prob.AddPhases,
		prob.AddPostMissionSystems,
		prob.LinkPhases,
		func() error { return prob.AddDriver("SLSQP", DriverOptions{MaxIter: 30}) },
		prob.AddDesignVariables,
		func() error { return prob.AddObjective("mass", landingObjectiveRef) },
	} {
		if err := step(); err != nil {
			return nil, err
		}
	}
	return prob, nil
}

// DetailedLandingBuilder builds the detailed landing as an external
// post-mission subsystem. Its input mass_start_landing is the landing gross
// mass and its output distance the total landing distance.
type DetailedLandingBuilder struct {
	name string
}

// NewDetailedLandingBuilder returns a builder named "detailed_landing".
func NewDetailedLandingBuilder() *DetailedLandingBuilder {
	return &DetailedLandingBuilder{name: "detailed_landing"}
}

// Name implements SubsystemBuilder.
func (b *DetailedLandingBuilder) Name() string {
	return b.name
}

// BuildPostMission implements SubsystemBuilder.
func (b *DetailedLandingBuilder) BuildPostMission(aircraft *AircraftDefinition, logger kitlog.Logger) (Subsystem, error) {
	prob, err := NewLandingProblem(aircraft, logger)
	if err != nil {
		return nil, err
	}
	comp, err := NewSubmodelComponent(prob,
		[]SubmodelVar{{Name: MissionGrossMass, Alias: "mass_start_landing", Units: "lbm"}},
		[]SubmodelVar{{Name: "traj.IJ.timeseries.distance", Alias: "distance", Units: "ft"}},
		logger)
	if err != nil {
		return nil, err
	}
	return comp, nil
}
