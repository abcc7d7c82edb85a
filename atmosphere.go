package amd

import "math"

const (
	airGasConstant = 287.053  // J/(kg K)
	airGamma       = 1.4      // ratio of specific heats
	earthRadius    = 6356766. // m, used for the geopotential altitude
	rho0           = 1.225    // kg/m^3, sea level standard density

	// g0*M/R of the barometric formula, K/m
	barometricConst = 0.0341631947
)

type atmoLayer struct {
	base, temperature, lapse, pressure float64
}

// US 1976 layers up to the stratopause. Altitudes are geopotential, meters.
var us1976 = []atmoLayer{
	{0, 288.15, -0.0065, 101325},
	{11000, 216.65, 0, 22632.06},
	{20000, 216.65, 0.001, 5474.889},
	{32000, 228.65, 0.0028, 868.0187},
	{47000, 270.65, 0, 110.9063},
}

// AtmosphereState is the local atmosphere in SI units.
type AtmosphereState struct {
	Temperature  float64 // K
	Pressure     float64 // Pa
	Density      float64 // kg/m^3
	SpeedOfSound float64 // m/s
	Viscosity    float64 // Pa s
}

// Atmosphere is the US 1976 standard atmosphere, optionally shifted by an ISA
// temperature deviation at constant pressure.
type Atmosphere struct {
	DeltaT   float64 // K
	Geodetic bool    // altitudes are geometric and converted to geopotential
}

// At returns the atmosphere at the provided altitude in meters.
func (a Atmosphere) At(altitude float64) AtmosphereState {
	h := altitude
	if a.Geodetic {
		h = earthRadius * altitude / (earthRadius + altitude)
	}
	h = clamp(h, -610, 51000)
	layer := us1976[0]
	for _, l := range us1976[1:] {
		if h < l.base {
			break
		}
		layer = l
	}
	dh := h - layer.base
	temp := layer.temperature + layer.lapse*dh
	var pres float64
	if layer.lapse == 0 {
		pres = layer.pressure * math.Exp(-barometricConst*dh/layer.temperature)
	} else {
		pres = layer.pressure * math.Pow(temp/layer.temperature, -barometricConst/layer.lapse)
	}
	rho := pres / (airGasConstant * temp)
	sos := math.Sqrt(airGamma * airGasConstant * temp)
	if a.DeltaT != 0 {
		corr := temp + a.DeltaT
		rho *= temp / corr
		sos *= math.Sqrt(corr / temp)
		temp = corr
	}
	return AtmosphereState{
		Temperature:  temp,
		Pressure:     pres,
		Density:      rho,
		SpeedOfSound: sos,
		Viscosity:    1.458e-6 * math.Pow(temp, 1.5) / (temp + 110.4),
	}
}
