package amd

import (
	"fmt"
	"math"
	"strings"
)

const (
	g0 = 9.80665 // standard gravity, m/s^2

	lbm2kg = 0.45359237
	lbf2N  = 4.4482216152605
	ft2m   = 0.3048
	nmi2m  = 1852.0
)

type unitDef struct {
	dim    string
	factor float64 // multiply by factor (after offset) to get SI
	offset float64
}

// All conversions go through SI. Names follow the conventions of aircraft decks
// (e.g. "ft**2", "lbm", "nmi").
var unitTable = map[string]unitDef{
	"unitless": {"", 1, 0},
	"":         {"", 1, 0},

	"m":    {"length", 1, 0},
	"km":   {"length", 1000, 0},
	"ft":   {"length", ft2m, 0},
	"inch": {"length", 0.0254, 0},
	"mi":   {"length", 1609.344, 0},
	"nmi":  {"length", nmi2m, 0},
	"NM":   {"length", nmi2m, 0},

	"s":   {"time", 1, 0},
	"min": {"time", 60, 0},
	"h":   {"time", 3600, 0},
	"hr":  {"time", 3600, 0},

	"kg":  {"mass", 1, 0},
	"lbm": {"mass", lbm2kg, 0},
	"lb":  {"mass", lbm2kg, 0},

	"N":   {"force", 1, 0},
	"kN":  {"force", 1000, 0},
	"lbf": {"force", lbf2N, 0},

	"rad": {"angle", 1, 0},
	"deg": {"angle", math.Pi / 180, 0},

	"m/s":    {"speed", 1, 0},
	"ft/s":   {"speed", ft2m, 0},
	"ft/min": {"speed", ft2m / 60, 0},
	"kn":     {"speed", nmi2m / 3600, 0},
	"knot":   {"speed", nmi2m / 3600, 0},
	"kts":    {"speed", nmi2m / 3600, 0},

	"m/s**2":  {"acceleration", 1, 0},
	"ft/s**2": {"acceleration", ft2m, 0},

	"m**2":  {"area", 1, 0},
	"ft**2": {"area", ft2m * ft2m, 0},

	"kg/s":  {"massflow", 1, 0},
	"lbm/s": {"massflow", lbm2kg, 0},
	"lbm/h": {"massflow", lbm2kg / 3600, 0},

	"kg/N/s":    {"tsfc", 1, 0},
	"lbm/h/lbf": {"tsfc", lbm2kg / (3600 * lbf2N), 0},

	"Pa":        {"pressure", 1, 0},
	"psi":       {"pressure", lbf2N / (0.0254 * 0.0254), 0},
	"lbf/ft**2": {"pressure", lbf2N / (ft2m * ft2m), 0},

	"kg/m**3":    {"density", 1, 0},
	"slug/ft**3": {"density", 14.593902937 / (ft2m * ft2m * ft2m), 0},

	"K":    {"temperature", 1, 0},
	"degK": {"temperature", 1, 0},
	"degR": {"temperature", 5.0 / 9.0, 0},
	"degC": {"temperature", 1, 273.15},
	"degF": {"temperature", 5.0 / 9.0, 459.67},

	"1/s": {"rate", 1, 0},
}

func lookupUnits(units string) (unitDef, error) {
	def, ok := unitTable[strings.TrimSpace(units)]
	if !ok {
		return unitDef{}, fmt.Errorf("%w: %q", ErrUnknownUnits, units)
	}
	return def, nil
}

// Convert converts val expressed in the `from` units into the `to` units.
func Convert(val float64, from, to string) (float64, error) {
	if from == to {
		return val, nil
	}
	f, err := lookupUnits(from)
	if err != nil {
		return 0, err
	}
	t, err := lookupUnits(to)
	if err != nil {
		return 0, err
	}
	if f.dim != t.dim {
		return 0, fmt.Errorf("%w: %s (%s) to %s (%s)", ErrUnitMismatch, from, dimName(f.dim), to, dimName(t.dim))
	}
	return (val+f.offset)*f.factor/t.factor - t.offset, nil
}

// toSI converts to the SI unit of the same dimension.
func toSI(val float64, from string) (float64, error) {
	f, err := lookupUnits(from)
	if err != nil {
		return 0, err
	}
	return (val + f.offset) * f.factor, nil
}

func sameDimension(a, b string) bool {
	da, err := lookupUnits(a)
	if err != nil {
		return false
	}
	db, err := lookupUnits(b)
	if err != nil {
		return false
	}
	return da.dim == db.dim
}

func dimName(dim string) string {
	if dim == "" {
		return "dimensionless"
	}
	return dim
}

// Quantity is a scalar with units, e.g. Q(35000, "ft").
type Quantity struct {
	Value float64
	Units string
}

// Q is shorthand for a Quantity.
func Q(val float64, units string) Quantity {
	return Quantity{val, units}
}

// In returns the quantity expressed in the requested units.
func (q Quantity) In(units string) (float64, error) {
	return Convert(q.Value, q.Units, units)
}

func (q Quantity) String() string {
	return fmt.Sprintf("%g %s", q.Value, q.Units)
}

// Bounds is a pair of values sharing units, e.g. B(0, 35000, "ft").
// Used for optimization bounds and for initial guesses (start, end).
type Bounds struct {
	Lower, Upper float64
	Units        string
}

// B is shorthand for Bounds.
func B(lower, upper float64, units string) Bounds {
	return Bounds{lower, upper, units}
}

// In returns both values expressed in the requested units.
func (b Bounds) In(units string) (lower, upper float64, err error) {
	if lower, err = Convert(b.Lower, b.Units, units); err != nil {
		return
	}
	upper, err = Convert(b.Upper, b.Units, units)
	return
}

func (b Bounds) String() string {
	return fmt.Sprintf("(%g, %g) %s", b.Lower, b.Upper, b.Units)
}
