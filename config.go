package amd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config is the general configuration, read from conf.toml in the directory
// named by the AMD_CONFIG environment variable.
type Config struct {
	OutputDir string
	ModelsDir string
	LogFile   string
	Verbosity Verbosity
}

// ModelPath resolves an aircraft or phase info file relative to the models directory.
func (c Config) ModelPath(name string) string {
	if filepath.IsAbs(name) || c.ModelsDir == "" {
		return name
	}
	return filepath.Join(c.ModelsDir, name)
}

var (
	cfgLoaded = false
	config    = Config{}
)

// LoadConfig returns the configuration from $AMD_CONFIG/conf.toml, read once.
// Without AMD_CONFIG the defaults are used.
func LoadConfig() (Config, error) {
	if cfgLoaded {
		return config, nil
	}
	confPath := os.Getenv("AMD_CONFIG")
	if confPath == "" {
		cfg := Config{OutputDir: ".", ModelsDir: "models", Verbosity: Brief}
		return cfg, nil
	}
	cfg, err := ReadConfig(confPath)
	if err != nil {
		return cfg, err
	}
	config, cfgLoaded = cfg, true
	return cfg, nil
}

// ReadConfig reads dir/conf.toml.
func ReadConfig(dir string) (Config, error) {
	v := viper.New()
	v.SetConfigName("conf")
	v.SetConfigType("toml")
	v.AddConfigPath(dir)
	v.SetDefault("general.output_path", ".")
	v.SetDefault("general.models_path", "models")
	v.SetDefault("general.verbosity", "BRIEF")
	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("%s/conf.toml: %w", dir, err)
	}
	verb, err := ParseVerbosity(v.GetString("general.verbosity"))
	if err != nil {
		return Config{}, err
	}
	return Config{
		OutputDir: v.GetString("general.output_path"),
		ModelsDir: v.GetString("general.models_path"),
		LogFile:   v.GetString("general.log_file"),
		Verbosity: verb,
	}, nil
}

// Scenario is a mission run read from a TOML file.
type Scenario struct {
	Aircraft        string // aircraft CSV
	PhaseInfo       string // "sizing", "landing" or a JSON file
	DetailedLanding bool
	Optimizer       string
	MaxIter         int
	Settings        map[string]float64
	Objective       string
	ObjectiveRef    float64
	RunDriver       bool
	History         string
	Export          ExportConfig
	Verbosity       *Verbosity // overrides the aircraft verbosity when set
}

// ReadScenario reads a scenario file.
func ReadScenario(filename string) (Scenario, error) {
	v := viper.New()
	v.SetConfigFile(filename)
	v.SetConfigType("toml")
	v.SetDefault("mission.phase_info", "sizing")
	v.SetDefault("driver.optimizer", "SLSQP")
	v.SetDefault("driver.run", true)
	v.SetDefault("objective.kind", "fuel_burned")
	v.SetDefault("export.filename", strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename)))
	if err := v.ReadInConfig(); err != nil {
		return Scenario{}, fmt.Errorf("%s: %w", filename, err)
	}
	s := Scenario{
		Aircraft:        v.GetString("aircraft.file"),
		PhaseInfo:       v.GetString("mission.phase_info"),
		DetailedLanding: v.GetBool("mission.detailed_landing"),
		Optimizer:       v.GetString("driver.optimizer"),
		MaxIter:         v.GetInt("driver.max_iter"),
		Objective:       v.GetString("objective.kind"),
		ObjectiveRef:    v.GetFloat64("objective.ref"),
		RunDriver:       v.GetBool("driver.run"),
		History:         v.GetString("driver.history"),
		Export: ExportConfig{
			Filename:  v.GetString("export.filename"),
			OutputDir: v.GetString("export.output_path"),
			CSV:       v.GetBool("export.csv"),
			Plots:     v.GetBool("export.plots"),
			Timestamp: v.GetBool("export.timestamp"),
		},
	}
	if s.Aircraft == "" {
		return s, errors.New("aircraft.file is required")
	}
	if v.IsSet("driver.settings") {
		s.Settings = make(map[string]float64)
		for key := range v.GetStringMap("driver.settings") {
			s.Settings[key] = v.GetFloat64("driver.settings." + key)
		}
	}
	if v.IsSet("aircraft.verbosity") {
		verb, err := ParseVerbosity(v.GetString("aircraft.verbosity"))
		if err != nil {
			return s, err
		}
		s.Verbosity = &verb
	}
	return s, nil
}
