package amd

// SizingPhaseInfo returns the climb, cruise and descent of the large single
// aisle benchmark, sized for a 3375 nmi design range. The landing distance is
// computed by the detailed landing submodel.
func SizingPhaseInfo() PhaseInfo {
	computed := func() map[string]map[string]interface{} {
		return map[string]map[string]interface{}{"core_aerodynamics": {"method": "computed"}}
	}
	return PhaseInfo{
		PreMission: PreMissionOptions{IncludeTakeoff: true, OptimizeMass: true},
		Phases: []NamedPhase{
			{Name: "climb", PhaseDescriptor: PhaseDescriptor{
				SubsystemOptions: computed(),
				UserOptions: map[string]interface{}{
					"fix_initial":                 false,
					"input_initial":               true,
					"optimize_mach":               true,
					"optimize_altitude":           true,
					"use_polynomial_control":      false,
					"num_segments":                6,
					"order":                       3,
					"solve_for_distance":          false,
					"initial_mach":                Q(0.3, "unitless"),
					"final_mach":                  Q(0.79, "unitless"),
					"mach_bounds":                 B(0.1, 0.8, "unitless"),
					"initial_altitude":            Q(35, "ft"),
					"final_altitude":              Q(35000, "ft"),
					"altitude_bounds":             B(0, 35000, "ft"),
					"throttle_enforcement":        "path_constraint",
					"constrain_final":             false,
					"fix_duration":                false,
					"initial_bounds":              B(0, 2, "min"),
					"duration_bounds":             B(5, 50, "min"),
					"no_descent":                  false,
					"add_initial_mass_constraint": false,
				},
				InitialGuesses: map[string]Bounds{"time": B(0, 40, "min")},
			}},
			{Name: "cruise", PhaseDescriptor: PhaseDescriptor{
				SubsystemOptions: computed(),
				UserOptions: map[string]interface{}{
					"optimize_mach":            true,
					"optimize_altitude":        true,
					"polynomial_control_order": 1,
					"use_polynomial_control":   true,
					"num_segments":             1,
					"order":                    3,
					"solve_for_distance":       false,
					"initial_mach":             Q(0.79, "unitless"),
					"final_mach":               Q(0.79, "unitless"),
					"mach_bounds":              B(0.79, 0.79, "unitless"),
					"initial_altitude":         Q(35000, "ft"),
					"final_altitude":           Q(35000, "ft"),
					"altitude_bounds":          B(35000, 35000, "ft"),
					"throttle_enforcement":     "boundary_constraint",
					"fix_initial":              false,
					"constrain_final":          false,
					"fix_duration":             false,
					"initial_bounds":           B(64, 192, "min"),
					"duration_bounds":          B(60, 720, "min"),
				},
				InitialGuesses: map[string]Bounds{"time": B(128, 113, "min")},
			}},
			{Name: "descent", PhaseDescriptor: PhaseDescriptor{
				SubsystemOptions: computed(),
				UserOptions: map[string]interface{}{
					"optimize_mach":          true,
					"optimize_altitude":      true,
					"use_polynomial_control": false,
					"num_segments":           5,
					"order":                  3,
					"solve_for_distance":     false,
					"initial_mach":           Q(0.79, "unitless"),
					"final_mach":             Q(0.3, "unitless"),
					"mach_bounds":            B(0.2, 0.8, "unitless"),
					"initial_altitude":       Q(35000, "ft"),
					"final_altitude":         Q(35, "ft"),
					"altitude_bounds":        B(0, 35000, "ft"),
					"throttle_enforcement":   "path_constraint",
					"fix_initial":            false,
					"constrain_final":        true,
					"fix_duration":           false,
					"initial_bounds":         B(120, 800, "min"),
					"duration_bounds":        B(5, 35, "min"),
					"no_climb":               true,
				},
				InitialGuesses: map[string]Bounds{"time": B(241, 30, "min")},
			}},
		},
		PostMission: PostMissionOptions{
			IncludeLanding: true,
			ConstrainRange: true,
			TargetRange:    Q(3375, "nmi"),
		},
	}
}
