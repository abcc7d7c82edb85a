package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ChristopherRabotin/amd"
	kitlog "github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
)

// Reads a scenario, assembles the mission problem, optimizes it and exports the trajectory.

const defaultScenario = "~~unset~~"

var (
	scenario string
	confDir  string
	verbose  bool
)

func init() {
	flag.StringVar(&scenario, "scenario", defaultScenario, "mission scenario TOML file")
	flag.StringVar(&confDir, "config", "", "directory of conf.toml (default $AMD_CONFIG)")
	flag.BoolVar(&verbose, "verbose", false, "log every driver iteration")
}

func main() {
	flag.Parse()
	if scenario == defaultScenario {
		log.Fatal("no scenario provided")
	}
	if !strings.HasSuffix(scenario, ".toml") {
		scenario += ".toml"
	}
	var conf amd.Config
	var err error
	if confDir != "" {
		conf, err = amd.ReadConfig(confDir)
	} else {
		conf, err = amd.LoadConfig()
	}
	if err != nil {
		log.Fatalf("configuration: %s", err)
	}
	sc, err := amd.ReadScenario(scenario)
	if err != nil {
		log.Fatalf("%s", err)
	}

	ac, err := amd.LoadAircraftCSV(conf.ModelPath(sc.Aircraft))
	if err != nil {
		log.Fatalf("aircraft: %s", err)
	}
	verbosity := ac.Verbosity()
	if sc.Verbosity != nil {
		verbosity = *sc.Verbosity
	}
	if verbose {
		verbosity = amd.Verbose
	}
	if verbosity != ac.Verbosity() {
		if ac, err = ac.WithOverride(amd.SettingsVerbosity, amd.T(verbosity.String())); err != nil {
			log.Fatalf("aircraft: %s", err)
		}
	}
	var logger kitlog.Logger
	if conf.LogFile != "" {
		logger = amd.NewFileLogger(conf.LogFile, verbosity)
	} else {
		logger = amd.NewLogger(os.Stdout, verbosity)
	}

	var builders []amd.SubsystemBuilder
	if sc.DetailedLanding {
		builders = append(builders, amd.NewDetailedLandingBuilder())
	}
	var info amd.PhaseInfo
	switch sc.PhaseInfo {
	case "sizing":
		info = amd.SizingPhaseInfo()
		info.PostMission.ExternalSubsystems = builders
	case "landing":
		info = amd.LandingPhaseInfo()
	default:
		if info, err = amd.LoadPhaseInfoJSONFile(conf.ModelPath(sc.PhaseInfo), builders...); err != nil {
			log.Fatalf("phase info: %s", err)
		}
	}

	prob := amd.NewProblem(strings.TrimSuffix(scenario, ".toml"), logger)
	steps := []struct {
		name string
		fn   func() error
	}{
		{"load inputs", func() error { return prob.LoadInputs(ac, info) }},
		{"check inputs", prob.CheckAndPreprocessInputs},
		{"pre-mission", prob.AddPreMissionSystems},
		{"phases", prob.AddPhases},
		{"post-mission", prob.AddPostMissionSystems},
		{"link phases", prob.LinkPhases},
		{"driver", func() error {
			return prob.AddDriver(sc.Optimizer, amd.DriverOptions{MaxIter: sc.MaxIter, Settings: sc.Settings})
		}},
		{"design variables", prob.AddDesignVariables},
		{"objective", func() error { return prob.AddObjective(sc.Objective, sc.ObjectiveRef) }},
		{"connections", func() error {
			if !sc.DetailedLanding || len(info.Phases) == 0 {
				return nil
			}
			last := info.Phases[len(info.Phases)-1].Name
			return prob.Connect(fmt.Sprintf("traj.%s.states:mass", last), "detailed_landing.mass_start_landing", -1)
		}},
		{"setup", prob.Setup},
		{"initial guesses", prob.SetInitialGuesses},
		{"final setup", prob.FinalSetup},
	}
	for _, step := range steps {
		if err := step.fn(); err != nil {
			log.Fatalf("%s: %s", step.name, err)
		}
	}

	if conf.OutputDir != "" {
		if err := os.MkdirAll(conf.OutputDir, 0o755); err != nil {
			log.Fatalf("output: %s", err)
		}
	}
	start := time.Now()
	history := sc.History
	if history != "" && !filepath.IsAbs(history) {
		history = filepath.Join(conf.OutputDir, history)
	}
	res, err := prob.Run(amd.RunOptions{RunDriver: sc.RunDriver, HistoryFile: history})
	if err != nil {
		log.Fatalf("run: %s", err)
	}
	level.Warn(logger).Log("subsys", "mission", "status", res.ExitStatus, "failed", res.Failed, "duration", time.Since(start))

	for _, out := range []struct {
		name, units string
	}{
		{amd.MissionGrossMass, "lbm"},
		{amd.MissionFuelBurned, "lbm"},
		{amd.MissionRange, "nmi"},
		{"detailed_landing.distance", "ft"},
	} {
		if v, err := res.Last(out.name, out.units); err == nil {
			fmt.Printf("%-32s %12.2f %s\n", out.name, v, out.units)
		}
	}

	if sc.Export.OutputDir == "" {
		sc.Export.OutputDir = conf.OutputDir
	}
	if err := amd.Export(sc.Export, res, start); err != nil {
		log.Fatalf("export: %s", err)
	}
	if res.Failed {
		os.Exit(2)
	}
}
