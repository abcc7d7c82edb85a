package amd

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
)

// Variable is a named aircraft value: a numeric array with units, or text.
type Variable struct {
	Values []float64
	Units  string
	Text   string
}

// V is shorthand for a numeric Variable.
func V(units string, values ...float64) Variable {
	return Variable{Values: values, Units: units}
}

// T is shorthand for a textual Variable.
func T(text string) Variable {
	return Variable{Text: text}
}

// IsText returns whether this variable holds text instead of numbers.
func (v Variable) IsText() bool {
	return len(v.Values) == 0 && v.Text != ""
}

// AircraftDefinition is an immutable record of aircraft variables.
// Copies created by WithOverride share the base record and only store the
// overridden fields.
type AircraftDefinition struct {
	base    map[string]Variable
	overlay map[string]Variable
}

// NewAircraftDefinition returns a new definition from the provided variables.
func NewAircraftDefinition(vars map[string]Variable) *AircraftDefinition {
	base := make(map[string]Variable, len(vars))
	for name, v := range vars {
		vals := make([]float64, len(v.Values))
		copy(vals, v.Values)
		base[name] = Variable{Values: vals, Units: v.Units, Text: v.Text}
	}
	return &AircraftDefinition{base: base}
}

// Get returns a copy of the variable of that name.
func (a *AircraftDefinition) Get(name string) (Variable, bool) {
	v, ok := a.overlay[name]
	if !ok {
		if v, ok = a.base[name]; !ok {
			return v, false
		}
	}
	v.Values = append([]float64(nil), v.Values...)
	return v, true
}

// Has returns whether this variable is defined.
func (a *AircraftDefinition) Has(name string) bool {
	_, ok := a.Get(name)
	return ok
}

// Names returns all defined variable names, sorted.
func (a *AircraftDefinition) Names() []string {
	names := make([]string, 0, len(a.base)+len(a.overlay))
	for name := range a.base {
		names = append(names, name)
	}
	for name := range a.overlay {
		if _, dup := a.base[name]; !dup {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Vals returns the values of that variable in the requested units.
func (a *AircraftDefinition) Vals(name, units string) ([]float64, error) {
	v, ok := a.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingVariable, name)
	}
	if v.IsText() {
		return nil, fmt.Errorf("%w: %s is text (%q)", ErrUnitMismatch, name, v.Text)
	}
	out := make([]float64, len(v.Values))
	for i, val := range v.Values {
		conv, err := Convert(val, v.Units, units)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		out[i] = conv
	}
	return out, nil
}

// Val returns the first value of that variable in the requested units.
func (a *AircraftDefinition) Val(name, units string) (float64, error) {
	vals, err := a.Vals(name, units)
	if err != nil {
		return 0, err
	}
	if len(vals) == 0 {
		return 0, fmt.Errorf("%w: %s has no value", ErrMissingVariable, name)
	}
	return vals[0], nil
}

// ValOr returns the first value of that variable or the provided default if it isn't defined.
func (a *AircraftDefinition) ValOr(name, units string, dflt float64) (float64, error) {
	if !a.Has(name) {
		return dflt, nil
	}
	return a.Val(name, units)
}

// Text returns the textual value of that variable.
func (a *AircraftDefinition) Text(name string) (string, bool) {
	v, ok := a.Get(name)
	if !ok || !v.IsText() {
		return "", false
	}
	return v.Text, true
}

// WithOverride returns a copy of this definition where only the named field
// differs. The copy shares the base record. Only the settings listed in
// `overridable` may be changed.
func (a *AircraftDefinition) WithOverride(name string, v Variable) (*AircraftDefinition, error) {
	if !overridable[name] {
		return nil, configErr("aircraft", ErrOverrideNotAllowed, "%s", name)
	}
	overlay := make(map[string]Variable, len(a.overlay)+1)
	for k, val := range a.overlay {
		overlay[k] = val
	}
	v.Values = append([]float64(nil), v.Values...)
	overlay[name] = v
	return &AircraftDefinition{base: a.base, overlay: overlay}, nil
}

// EquationsOfMotion returns the configured equations of motion, defaulting to height energy.
func (a *AircraftDefinition) EquationsOfMotion() (EquationsOfMotion, error) {
	txt, ok := a.Text(SettingsEquationsOfMotion)
	if !ok {
		return HeightEnergy, nil
	}
	return ParseEquationsOfMotion(txt)
}

// Verbosity returns the configured verbosity, defaulting to Brief.
func (a *AircraftDefinition) Verbosity() Verbosity {
	if v, ok := a.Get(SettingsVerbosity); ok {
		if v.IsText() {
			if vb, err := ParseVerbosity(v.Text); err == nil {
				return vb
			}
		} else if len(v.Values) > 0 {
			return Verbosity(int(v.Values[0]))
		}
	}
	return Brief
}

// LoadAircraftCSV reads an aircraft deck from a file.
func LoadAircraftCSV(filename string) (*AircraftDefinition, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	def, err := ReadAircraftCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return def, nil
}

// ReadAircraftCSV reads an aircraft deck. Each line is `name,value[,value...][,units]`.
// A single non numeric value is stored as text. Lines starting with `#` are ignored.
func ReadAircraftCSV(r io.Reader) (*AircraftDefinition, error) {
	rdr := csv.NewReader(r)
	rdr.Comment = '#'
	rdr.FieldsPerRecord = -1
	rdr.TrimLeadingSpace = true
	vars := make(map[string]Variable)
	for line := 1; ; line++ {
		record, err := rdr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(record) < 2 || strings.TrimSpace(record[0]) == "" {
			return nil, configErr("aircraft csv", ErrMissingVariable, "line %d: expected name and value", line)
		}
		name := strings.TrimSpace(record[0])
		fields := record[1:]
		v := Variable{Units: "unitless"}
		last := strings.TrimSpace(fields[len(fields)-1])
		if _, err := strconv.ParseFloat(last, 64); err != nil {
			if len(fields) == 1 {
				vars[name] = T(last)
				continue
			}
			if _, err := lookupUnits(last); err != nil {
				return nil, configErr("aircraft csv", ErrUnknownUnits, "line %d: %s: %q", line, name, last)
			}
			v.Units = last
			fields = fields[:len(fields)-1]
		}
		for _, field := range fields {
			val, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, configErr("aircraft csv", ErrUnitMismatch, "line %d: %s: %q is not numeric", line, name, field)
			}
			v.Values = append(v.Values, val)
		}
		vars[name] = v
	}
	return NewAircraftDefinition(vars), nil
}

// EquationsOfMotion selects the dynamics of every phase of a problem.
type EquationsOfMotion uint8

const (
	// HeightEnergy is the energy method: time is the independent variable,
	// altitude and Mach are controls, mass and distance are integrated.
	HeightEnergy EquationsOfMotion = iota + 1
	// Solved2DOF uses distance as the independent variable, computes the flight
	// path angle from the altitude profile and solves the angle of attack from lift.
	Solved2DOF
)

func (e EquationsOfMotion) String() string {
	switch e {
	case HeightEnergy:
		return "height_energy"
	case Solved2DOF:
		return "solved_2DOF"
	default:
		return "unknown"
	}
}

// Variable returns this setting as an aircraft variable, for WithOverride.
func (e EquationsOfMotion) Variable() Variable {
	return T(e.String())
}

// ParseEquationsOfMotion returns the equations of motion from its name.
func ParseEquationsOfMotion(name string) (EquationsOfMotion, error) {
	switch strings.ToLower(name) {
	case "height_energy":
		return HeightEnergy, nil
	case "solved_2dof":
		return Solved2DOF, nil
	default:
		return 0, configErr("aircraft", ErrUnknownOption, "%s=%q", SettingsEquationsOfMotion, name)
	}
}
