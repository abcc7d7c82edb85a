package amd

import (
	"encoding/json"
	"io"
	"os"

	"github.com/iancoleman/orderedmap"
)

// LoadPhaseInfoJSONFile reads a phase info JSON document from a file.
func LoadPhaseInfoJSONFile(filename string, builders ...SubsystemBuilder) (PhaseInfo, error) {
	f, err := os.Open(filename)
	if err != nil {
		return PhaseInfo{}, err
	}
	defer f.Close()
	return LoadPhaseInfoJSON(f, builders...)
}

// LoadPhaseInfoJSON reads a phase info document. Phases keep the order of the
// document. Quantities are written as [value, "units"] and bounds as
// [[lower, upper], "units"]. The post_mission "external_subsystems" list names
// builders among those provided.
func LoadPhaseInfoJSON(r io.Reader, builders ...SubsystemBuilder) (PhaseInfo, error) {
	var info PhaseInfo
	data, err := io.ReadAll(r)
	if err != nil {
		return info, err
	}
	doc := orderedmap.New()
	if err := json.Unmarshal(data, doc); err != nil {
		return info, configErr("phase info", ErrInvalidPhase, "%s", err)
	}
	for _, key := range doc.Keys() {
		raw, _ := doc.Get(key)
		obj, ok := asObject(raw)
		if !ok {
			return info, configErr("phase info", ErrInvalidPhase, "%q must be an object", key)
		}
		switch key {
		case "pre_mission":
			if err := decodePreMission(obj, &info.PreMission); err != nil {
				return info, err
			}
		case "post_mission":
			if err := decodePostMission(obj, &info.PostMission, builders); err != nil {
				return info, err
			}
		default:
			desc, err := decodePhase(key, obj)
			if err != nil {
				return info, err
			}
			info.Phases = append(info.Phases, NamedPhase{Name: key, PhaseDescriptor: desc})
		}
	}
	return info, nil
}

func asObject(v interface{}) (*orderedmap.OrderedMap, bool) {
	switch o := v.(type) {
	case orderedmap.OrderedMap:
		return &o, true
	case *orderedmap.OrderedMap:
		return o, true
	}
	return nil, false
}

func decodePreMission(obj *orderedmap.OrderedMap, pre *PreMissionOptions) error {
	for _, key := range obj.Keys() {
		v, _ := obj.Get(key)
		b, ok := v.(bool)
		if !ok {
			return configErr("pre_mission", ErrInvalidPhase, "%s must be a boolean", key)
		}
		switch key {
		case "include_takeoff":
			pre.IncludeTakeoff = b
		case "optimize_mass":
			pre.OptimizeMass = b
		default:
			return configErr("pre_mission", ErrUnknownOption, "%q", key)
		}
	}
	return nil
}

func decodePostMission(obj *orderedmap.OrderedMap, post *PostMissionOptions, builders []SubsystemBuilder) error {
	for _, key := range obj.Keys() {
		v, _ := obj.Get(key)
		switch key {
		case "include_landing", "constrain_range":
			b, ok := v.(bool)
			if !ok {
				return configErr("post_mission", ErrInvalidPhase, "%s must be a boolean", key)
			}
			if key == "include_landing" {
				post.IncludeLanding = b
			} else {
				post.ConstrainRange = b
			}
		case "target_range":
			q, ok := decodeValue(v).(Quantity)
			if !ok {
				return configErr("post_mission", ErrInvalidPhase, "target_range must be [value, units]")
			}
			post.TargetRange = q
		case "external_subsystems":
			names, ok := v.([]interface{})
			if !ok {
				return configErr("post_mission", ErrInvalidPhase, "external_subsystems must be a list of names")
			}
			for _, n := range names {
				name, _ := n.(string)
				var found SubsystemBuilder
				for _, b := range builders {
					if b.Name() == name {
						found = b
					}
				}
				if found == nil {
					return configErr("post_mission", ErrUnknownVariable, "no builder for external subsystem %q", n)
				}
				post.ExternalSubsystems = append(post.ExternalSubsystems, found)
			}
		default:
			return configErr("post_mission", ErrUnknownOption, "%q", key)
		}
	}
	return nil
}

func decodePhase(name string, obj *orderedmap.OrderedMap) (PhaseDescriptor, error) {
	where := "phase " + name
	var d PhaseDescriptor
	for _, key := range obj.Keys() {
		v, _ := obj.Get(key)
		section, ok := asObject(v)
		if !ok {
			return d, configErr(where, ErrInvalidPhase, "%s must be an object", key)
		}
		switch key {
		case "user_options":
			d.UserOptions = make(map[string]interface{}, len(section.Keys()))
			for _, opt := range section.Keys() {
				ov, _ := section.Get(opt)
				if opt == "constraints" {
					cons, err := decodeConstraints(where, ov)
					if err != nil {
						return d, err
					}
					d.UserOptions[opt] = cons
					continue
				}
				d.UserOptions[opt] = decodeValue(ov)
			}
		case "subsystem_options":
			d.SubsystemOptions = make(map[string]map[string]interface{}, len(section.Keys()))
			for _, sub := range section.Keys() {
				sv, _ := section.Get(sub)
				opts, ok := asObject(sv)
				if !ok {
					return d, configErr(where, ErrInvalidPhase, "subsystem_options[%q] must be an object", sub)
				}
				d.SubsystemOptions[sub] = make(map[string]interface{}, len(opts.Keys()))
				for _, opt := range opts.Keys() {
					ov, _ := opts.Get(opt)
					d.SubsystemOptions[sub][opt] = decodeValue(ov)
				}
			}
		case "initial_guesses":
			d.InitialGuesses = make(map[string]Bounds, len(section.Keys()))
			for _, g := range section.Keys() {
				gv, _ := section.Get(g)
				b, ok := decodeValue(gv).(Bounds)
				if !ok {
					return d, configErr(where, ErrInvalidPhase, "initial_guesses[%q] must be [[start, end], units]", g)
				}
				d.InitialGuesses[g] = b
			}
		default:
			return d, configErr(where, ErrUnknownOption, "%q", key)
		}
	}
	return d, nil
}

func decodeConstraints(where string, v interface{}) (map[string]ConstraintSpec, error) {
	obj, ok := asObject(v)
	if !ok {
		return nil, configErr(where, ErrInvalidPhase, "constraints must be an object")
	}
	out := make(map[string]ConstraintSpec, len(obj.Keys()))
	for _, name := range obj.Keys() {
		cv, _ := obj.Get(name)
		c, ok := asObject(cv)
		if !ok {
			return nil, configErr(where, ErrInvalidPhase, "constraint %s must be an object", name)
		}
		var spec ConstraintSpec
		for _, key := range c.Keys() {
			val, _ := c.Get(key)
			num, isNum := val.(float64)
			str, isStr := val.(string)
			switch {
			case key == "equals" && isNum:
				spec.Equals = F(num)
			case key == "lower" && isNum:
				spec.Lower = F(num)
			case key == "upper" && isNum:
				spec.Upper = F(num)
			case key == "ref" && isNum:
				spec.Ref = num
			case key == "loc" && isStr:
				spec.Loc = str
			case key == "units" && isStr:
				spec.Units = str
			case key == "type" && isStr:
				spec.Type = str
			default:
				return nil, configErr(where, ErrInvalidPhase, "constraint %s: invalid %s=%v", name, key, val)
			}
		}
		out[name] = spec
	}
	return out, nil
}

// decodeValue converts a JSON option value: [number, "units"] is a Quantity,
// [[lower, upper], "units"] are Bounds, a list of numbers is a []float64.
func decodeValue(v interface{}) interface{} {
	list, ok := v.([]interface{})
	if !ok {
		return v
	}
	if len(list) == 2 {
		if units, ok := list[1].(string); ok {
			switch first := list[0].(type) {
			case float64:
				return Q(first, units)
			case []interface{}:
				if len(first) == 2 {
					lo, okLo := first[0].(float64)
					hi, okHi := first[1].(float64)
					if okLo && okHi {
						return B(lo, hi, units)
					}
				}
			}
		}
	}
	nums := make([]float64, len(list))
	for i, e := range list {
		f, ok := e.(float64)
		if !ok {
			return v
		}
		nums[i] = f
	}
	return nums
}
