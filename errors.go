package amd

import (
	"errors"
	"fmt"
)

// Configuration related
var (
	ErrUnknownUnits        = errors.New("unknown units")
	ErrUnitMismatch        = errors.New("incompatible units")
	ErrUnknownVariable     = errors.New("unknown variable")
	ErrMissingVariable     = errors.New("missing required variable")
	ErrInvalidAeroTable    = errors.New("invalid aerodynamic table")
	ErrInvalidPhase        = errors.New("invalid phase descriptor")
	ErrUnknownOption       = errors.New("unknown option")
	ErrOverrideNotAllowed  = errors.New("override not allowed on shared aircraft definition")
	ErrOutOfOrder          = errors.New("problem assembly step called out of order")
	ErrInvalidDriver       = errors.New("invalid driver configuration")
	ErrInvalidObjective    = errors.New("invalid objective")
	ErrInvalidConnection   = errors.New("invalid connection")
	ErrInvalidEngineConfig = errors.New("invalid engine configuration")
)

// ConfigError is returned by every assembly step when the aircraft definition, the
// phase descriptors or the driver settings are inconsistent. Assembly must stop.
type ConfigError struct {
	Where string
	Err   error
	msg   string
}

func (e *ConfigError) Error() string {
	if e.msg == "" {
		return fmt.Sprintf("%s: %s", e.Where, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Where, e.Err, e.msg)
}

// Unwrap allows errors.Is to match the sentinel error.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

func configErr(where string, err error, format string, args ...interface{}) *ConfigError {
	return &ConfigError{Where: where, Err: err, msg: fmt.Sprintf(format, args...)}
}
