package amd

import (
	"errors"
	"testing"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/floats/scalar"
)

func TestSizingPhaseValidation(t *testing.T) {
	info := SizingPhaseInfo()
	if len(info.Phases) != 3 {
		t.Fatalf("%d phases", len(info.Phases))
	}
	for i, name := range []string{"climb", "cruise", "descent"} {
		if info.Phases[i].Name != name {
			t.Fatalf("phase %d is %s instead of %s", i, info.Phases[i].Name, name)
		}
		opts, err := info.Phases[i].validate(name, HeightEnergy)
		if err != nil {
			t.Fatalf("%s: %s", name, err)
		}
		if opts.independent != byTime {
			t.Fatalf("%s is integrated against %s", name, opts.independent)
		}
	}
	climb, _ := info.Phase("climb")
	if opts, _ := climb.validate("climb", HeightEnergy); !opts.inputInitial || opts.fixInitial || opts.errOnNonConverge {
		t.Fatalf("climb input_initial=%t fix_initial=%t err_on_non_converge=%t", opts.inputInitial, opts.fixInitial, opts.errOnNonConverge)
	}
	cruise, _ := info.Phase("cruise")
	opts, _ := cruise.validate("cruise", HeightEnergy)
	if !floats.EqualApprox(opts.initialBounds[:], []float64{64 * 60, 192 * 60}, 1e-9) {
		t.Fatalf("cruise initial bounds %v s", opts.initialBounds)
	}
	if !scalar.EqualWithinAbs(opts.initialAltitude, 10668, 1e-9) {
		t.Fatalf("cruise altitude %f m", opts.initialAltitude)
	}
	if !opts.polynomial || opts.polynomialOrder != 1 {
		t.Fatalf("cruise polynomial control %t order %d", opts.polynomial, opts.polynomialOrder)
	}
	if opts.enforcement != BoundaryConstraint {
		t.Fatalf("cruise throttle enforcement %s", opts.enforcement)
	}
	if g := opts.guesses["time"]; !floats.EqualApprox(g[:], []float64{128 * 60, 113 * 60}, 1e-9) {
		t.Fatalf("cruise time guess %v s", g)
	}
	if _, ok := info.Phase("landing"); ok {
		t.Fatal("unknown phase found")
	}
}

func TestLandingPhaseValidation(t *testing.T) {
	info := LandingPhaseInfo()
	for _, ph := range info.Phases {
		opts, err := ph.validate(ph.Name, Solved2DOF)
		if err != nil {
			t.Fatalf("%s: %s", ph.Name, err)
		}
		if opts.independent != byDistance {
			t.Fatalf("%s is integrated against %s", ph.Name, opts.independent)
		}
		if opts.aero.table == nil || opts.aero.method != "low_speed" {
			t.Fatalf("%s does not use the low speed table", ph.Name)
		}
		if !scalar.EqualWithinAbs(opts.initialRef, 304.8, 1e-9) {
			t.Fatalf("%s initial ref %f m", ph.Name, opts.initialRef)
		}
	}
	gh, _ := info.Phase("GH")
	opts, _ := gh.validate("GH", Solved2DOF)
	if !opts.fixInitial || opts.enforcement != Bounded {
		t.Fatalf("GH fix_initial=%t enforcement=%s", opts.fixInitial, opts.enforcement)
	}
	if len(opts.constraints) != 1 {
		t.Fatalf("GH has %d constraints", len(opts.constraints))
	}
	c := opts.constraints[0]
	if c.name != "flight_path_angle" || c.loc != "initial" || !c.hasEq || !scalar.EqualWithinAbs(c.equals, -3*deg2rad, 1e-12) {
		t.Fatalf("GH glide slope constraint %+v", c)
	}
	// The landing guesses for time stay in seconds even though the phases are integrated against distance.
	if g := opts.guesses["time"]; g[1] != 12 {
		t.Fatalf("GH time guess %v", g)
	}
}

func TestPhaseValidationErrors(t *testing.T) {
	base := func() PhaseDescriptor {
		return PhaseDescriptor{UserOptions: map[string]interface{}{
			"initial_mach":     Q(0.3, "unitless"),
			"initial_altitude": Q(0, "ft"),
		}}
	}
	if _, err := base().validate("ok", HeightEnergy); err != nil {
		t.Fatalf("minimal descriptor: %s", err)
	}
	for _, tc := range []struct {
		name  string
		tweak func(d *PhaseDescriptor)
		exp   error
	}{
		{"unknown option", func(d *PhaseDescriptor) { d.UserOptions["warp_drive"] = true }, ErrUnknownOption},
		{"missing mach", func(d *PhaseDescriptor) { delete(d.UserOptions, "initial_mach") }, ErrMissingVariable},
		{"mass initial bounds", func(d *PhaseDescriptor) { d.UserOptions["initial_bounds"] = B(0, 1, "lbm") }, ErrUnitMismatch},
		{"inverted bounds", func(d *PhaseDescriptor) { d.UserOptions["duration_bounds"] = B(10, 1, "min") }, ErrInvalidPhase},
		{"altitude units", func(d *PhaseDescriptor) { d.UserOptions["final_altitude"] = Q(10, "s") }, ErrUnitMismatch},
		{"boolean type", func(d *PhaseDescriptor) { d.UserOptions["fix_initial"] = "yes" }, ErrInvalidPhase},
		{"non converge flag type", func(d *PhaseDescriptor) { d.UserOptions["err_on_non_converge"] = 1 }, ErrInvalidPhase},
		{"mach outside of bounds", func(d *PhaseDescriptor) { d.UserOptions["mach_bounds"] = B(0.5, 0.8, "unitless") }, ErrInvalidPhase},
		{"throttle enforcement", func(d *PhaseDescriptor) { d.UserOptions["throttle_enforcement"] = "soft" }, ErrUnknownOption},
		{"rotation", func(d *PhaseDescriptor) { d.UserOptions["rotation"] = true }, ErrInvalidPhase},
		{"unknown guess", func(d *PhaseDescriptor) { d.InitialGuesses = map[string]Bounds{"fuel": B(0, 1, "lbm")} }, ErrUnknownVariable},
		{"guess units", func(d *PhaseDescriptor) { d.InitialGuesses = map[string]Bounds{"mass": B(0, 1, "ft")} }, ErrUnitMismatch},
		{"unknown subsystem", func(d *PhaseDescriptor) {
			d.SubsystemOptions = map[string]map[string]interface{}{"flops_aero": {}}
		}, ErrUnknownOption},
		{"constraint variable", func(d *PhaseDescriptor) {
			d.UserOptions["constraints"] = map[string]ConstraintSpec{"warp": {Equals: F(1), Loc: "final"}}
		}, ErrUnknownVariable},
		{"constraint location", func(d *PhaseDescriptor) {
			d.UserOptions["constraints"] = map[string]ConstraintSpec{"mach": {Equals: F(1), Loc: "middle"}}
		}, ErrInvalidPhase},
		{"constraint equals and bounds", func(d *PhaseDescriptor) {
			d.UserOptions["constraints"] = map[string]ConstraintSpec{"mach": {Equals: F(1), Lower: F(0), Loc: "final"}}
		}, ErrInvalidPhase},
		{"constraint units", func(d *PhaseDescriptor) {
			d.UserOptions["constraints"] = map[string]ConstraintSpec{"altitude": {Upper: F(1), Units: "lbm", Type: "path"}}
		}, ErrUnitMismatch},
		{"aero table", func(d *PhaseDescriptor) {
			d.SubsystemOptions = map[string]map[string]interface{}{"core_aerodynamics": {
				"method":            "low_speed",
				"angles_of_attack":  []float64{0, 1},
				"lift_coefficients": []float64{0, 1},
			}}
		}, ErrMissingVariable},
	} {
		d := base()
		tc.tweak(&d)
		_, err := d.validate(tc.name, HeightEnergy)
		if !errors.Is(err, tc.exp) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.exp, err)
		}
		var cfg *ConfigError
		if !errors.As(err, &cfg) {
			t.Fatalf("%s: not a configuration error", tc.name)
		}
	}
}

func TestPhaseInfoCopy(t *testing.T) {
	info := LandingPhaseInfo()
	cpy, err := info.Copy()
	if err != nil {
		t.Fatal(err)
	}
	cpy.Phases[0].UserOptions["num_segments"] = 12
	cpy.Phases[0].InitialGuesses["distance"] = B(1, 2, "m")
	if info.Phases[0].UserOptions["num_segments"] != 5 {
		t.Fatal("copy shares the user options")
	}
	if info.Phases[0].InitialGuesses["distance"].Units != "ft" {
		t.Fatal("copy shares the initial guesses")
	}
}
