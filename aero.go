package amd

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/interp"
)

// AeroTable is a low speed aerodynamic table: lift and drag coefficients as a
// function of the angle of attack, scaled by constant factors. It is immutable.
type AeroTable struct {
	alpha, cl, cd          []float64
	liftFactor, dragFactor float64
	clFit, cdFit           interp.PiecewiseLinear
}

// NewAeroTable returns a validated table. The angles of attack are in degrees
// and must be strictly increasing. All three columns must have the same length.
func NewAeroTable(alpha, cl, cd []float64, liftFactor, dragFactor float64) (*AeroTable, error) {
	if len(alpha) != len(cl) || len(alpha) != len(cd) {
		return nil, configErr("aero table", ErrInvalidAeroTable, "lengths differ: %d angles, %d lift, %d drag", len(alpha), len(cl), len(cd))
	}
	if len(alpha) < 2 {
		return nil, configErr("aero table", ErrInvalidAeroTable, "at least two rows needed, got %d", len(alpha))
	}
	if !strictlyIncreasing(alpha) {
		return nil, configErr("aero table", ErrInvalidAeroTable, "angles of attack are not strictly increasing")
	}
	if liftFactor <= 0 || dragFactor <= 0 {
		return nil, configErr("aero table", ErrInvalidAeroTable, "factors must be positive, got %g and %g", liftFactor, dragFactor)
	}
	t := &AeroTable{
		alpha:      append([]float64(nil), alpha...),
		cl:         append([]float64(nil), cl...),
		cd:         append([]float64(nil), cd...),
		liftFactor: liftFactor,
		dragFactor: dragFactor,
	}
	if err := t.clFit.Fit(t.alpha, t.cl); err != nil {
		return nil, configErr("aero table", ErrInvalidAeroTable, "%s", err)
	}
	if err := t.cdFit.Fit(t.alpha, t.cd); err != nil {
		return nil, configErr("aero table", ErrInvalidAeroTable, "%s", err)
	}
	return t, nil
}

// Len returns the number of rows.
func (t *AeroTable) Len() int {
	return len(t.alpha)
}

// Row returns the unscaled table entry i.
func (t *AeroTable) Row(i int) (alpha, cl, cd float64) {
	return t.alpha[i], t.cl[i], t.cd[i]
}

// Lift returns the scaled lift coefficient at alpha (degrees). Values are
// held constant outside of the table.
func (t *AeroTable) Lift(alpha float64) float64 {
	return t.liftFactor * t.clFit.Predict(alpha)
}

// Drag returns the scaled drag coefficient at alpha (degrees).
func (t *AeroTable) Drag(alpha float64) float64 {
	return t.dragFactor * t.cdFit.Predict(alpha)
}

// AlphaForLift returns the smallest angle of attack (degrees) producing the
// provided scaled lift coefficient. If the lift cannot be reached, the angle
// of maximum lift is returned and stalled is set.
func (t *AeroTable) AlphaForLift(cl float64) (alpha float64, stalled bool) {
	target := cl / t.liftFactor
	if target <= t.cl[0] {
		return t.alpha[0], false
	}
	best := 0
	for i := 1; i < len(t.alpha); i++ {
		if t.cl[i] > t.cl[best] {
			best = i
		}
		if t.cl[i-1] < target && t.cl[i] >= target {
			frac := (target - t.cl[i-1]) / (t.cl[i] - t.cl[i-1])
			return t.alpha[i-1] + frac*(t.alpha[i]-t.alpha[i-1]), false
		}
	}
	return t.alpha[best], true
}

func (t *AeroTable) String() string {
	return fmt.Sprintf("AeroTable{%d rows, alpha [%g, %g] deg, factors lift=%g drag=%g}", len(t.alpha), t.alpha[0], t.alpha[len(t.alpha)-1], t.liftFactor, t.dragFactor)
}

// aeroModel returns the aerodynamic coefficients of the aircraft.
type aeroModel interface {
	// trim returns the angle of attack (deg) and the drag coefficient needed for the lift coefficient.
	trim(cl, mach float64) (alpha, cd float64, stalled bool)
	// atAlpha returns the coefficients at a fixed angle of attack, e.g. on the ground.
	atAlpha(alpha, mach float64) (cl, cd float64)
}

// tableAero uses an AeroTable, which ignores compressibility.
type tableAero struct {
	table *AeroTable
}

func (a tableAero) trim(cl, mach float64) (alpha, cd float64, stalled bool) {
	alpha, stalled = a.table.AlphaForLift(cl)
	return alpha, a.table.Drag(alpha), stalled
}

func (a tableAero) atAlpha(alpha, mach float64) (cl, cd float64) {
	return a.table.Lift(alpha), a.table.Drag(alpha)
}

// polarAero is the parabolic drag polar with a wave drag rise above the drag divergence Mach.
type polarAero struct {
	cd0, k, mdd float64
	clAlpha     float64 // per degree, only used to report an angle of attack
}

func newPolarAero(cd0, aspectRatio, e, mdd float64) polarAero {
	// Helmbold lift slope, per degree.
	a := 2 * math.Pi * aspectRatio / (2 + math.Sqrt(aspectRatio*aspectRatio+4))
	return polarAero{cd0: cd0, k: 1 / (math.Pi * aspectRatio * e), mdd: mdd, clAlpha: a * deg2rad}
}

func (a polarAero) wave(mach float64) float64 {
	if mach <= a.mdd {
		return 0
	}
	return 20 * math.Pow(mach-a.mdd, 4)
}

func (a polarAero) trim(cl, mach float64) (alpha, cd float64, stalled bool) {
	return cl / a.clAlpha, a.cd0 + a.k*cl*cl + a.wave(mach), false
}

func (a polarAero) atAlpha(alpha, mach float64) (cl, cd float64) {
	cl = a.clAlpha * alpha
	return cl, a.cd0 + a.k*cl*cl + a.wave(mach)
}
