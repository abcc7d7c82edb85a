package amd

import "math"

// flightModel holds what the equations of motion need besides the state.
type flightModel struct {
	eom        EquationsOfMotion
	atmo       Atmosphere
	aero       aeroModel
	engines    EngineConfig
	balance    ThrottleBalance
	wingArea   float64 // m^2
	friction   float64 // rolling friction coefficient
	groundAlt  float64 // m
	groundRoll bool
}

// nodeState is the input of the equations of motion at one point. Rates are
// with respect to the independent variable of the phase.
type nodeState struct {
	mass                   float64
	altitude, altitudeRate float64
	mach, machRate         float64
	throttle               float64
	allocations            []float64
}

// nodeOutput is everything computed at one point. stateRates are the
// derivatives of the integrated states (mass, then distance or time) with
// respect to the independent variable.
type nodeOutput struct {
	velocity, velocityRate     float64
	altitudeRate, distanceRate float64
	fpa, alpha, cl, cd         float64
	lift, drag                 float64
	thrustRequired, thrustMax  float64
	ser, altitudeRateMax       float64
	throttle                   ThrottleSolution
	stalled                    bool
	stateRates                 [2]float64
}

// evaluate computes the equations of motion at one node.
func (m *flightModel) evaluate(in nodeState) (out nodeOutput) {
	h := in.altitude
	if m.groundRoll {
		h = m.groundAlt
	}
	atm := m.atmo.At(h)
	sos := atm.SpeedOfSound
	v := math.Max(in.mach*sos, 1)
	weight := in.mass * g0
	qS := 0.5 * atm.Density * v * v * m.wingArea
	out.velocity = v
	out.thrustMax = m.engines.MaxThrust(atm, in.mach)

	var dtdx float64
	switch m.eom {
	case Solved2DOF:
		// Independent variable is the ground distance.
		slope := in.altitudeRate
		if m.groundRoll {
			slope = 0
		}
		out.fpa = math.Atan(slope)
		cosγ, sinγ := math.Cos(out.fpa), math.Sin(out.fpa)
		dVdx := in.machRate * sos
		dtdx = 1 / (v * cosγ)
		out.velocityRate = dVdx * v * cosγ
		out.altitudeRate = v * sinγ
		out.distanceRate = v * cosγ
		var friction float64
		if m.groundRoll {
			out.alpha = 0
			out.cl, out.cd = m.aero.atAlpha(0, in.mach)
			friction = m.friction * math.Max(weight-qS*out.cl, 0)
		} else {
			out.cl = weight * cosγ / qS
			out.alpha, out.cd, out.stalled = m.aero.trim(out.cl, in.mach)
		}
		out.lift, out.drag = qS*out.cl, qS*out.cd
		out.thrustRequired = out.drag + friction + weight*sinγ + in.mass*out.velocityRate
	default:
		// Energy method, independent variable is time.
		hdot := in.altitudeRate
		out.altitudeRate = hdot
		out.velocityRate = in.machRate * sos
		out.distanceRate = math.Sqrt(math.Max(v*v-hdot*hdot, 0))
		out.fpa = math.Asin(clamp(hdot/v, -1, 1))
		out.cl = weight / qS
		out.alpha, out.cd, out.stalled = m.aero.trim(out.cl, in.mach)
		out.lift, out.drag = qS*out.cl, qS*out.cd
		out.thrustRequired = out.drag + weight*hdot/v + in.mass*out.velocityRate
	}

	out.throttle = m.balance.balance(throttleInput{
		thrustRequired: out.thrustRequired,
		atm:            atm,
		mach:           in.mach,
		throttle:       in.throttle,
		allocations:    in.allocations,
	})
	out.ser = (out.thrustMax - out.drag) * v / weight
	out.altitudeRateMax = out.ser - v*out.velocityRate/g0

	if m.eom == Solved2DOF {
		out.stateRates = [2]float64{-out.throttle.FuelFlow * dtdx, dtdx}
	} else {
		out.stateRates = [2]float64{-out.throttle.FuelFlow, out.distanceRate}
	}
	return
}
