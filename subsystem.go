package amd

import (
	kitlog "github.com/go-kit/kit/log"
)

// SubsystemInput is a declared scalar input of an external subsystem. Source
// is the registered output feeding it when no connection is made.
type SubsystemInput struct {
	Name   string
	Units  string
	Source string
}

// SubsystemOutput is a declared scalar output of an external subsystem.
type SubsystemOutput struct {
	Name  string
	Units string
}

// Subsystem is an external post-mission subsystem seen as a black box.
type Subsystem interface {
	Inputs() []SubsystemInput
	Outputs() []SubsystemOutput
	// Setup is called once by the parent problem's Setup.
	Setup() error
	// Compute maps the inputs, in their declared units, to the outputs.
	Compute(inputs map[string]float64) (map[string]float64, error)
}

// SubsystemBuilder builds an external subsystem from the parent aircraft.
type SubsystemBuilder interface {
	Name() string
	BuildPostMission(aircraft *AircraftDefinition, logger kitlog.Logger) (Subsystem, error)
}
