package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ChristopherRabotin/amd"
)

// Solves the detailed landing on its own for one landing mass.

var (
	aircraftFile string
	massLbm      float64
	verbose      bool
	export       string
	confDir      string
)

func init() {
	flag.StringVar(&aircraftFile, "aircraft", "aircraft_for_bench_FwFm.csv", "aircraft CSV, relative to the models directory")
	flag.Float64Var(&massLbm, "mass", 120e3, "landing mass in lbm")
	flag.BoolVar(&verbose, "verbose", false, "log every driver iteration")
	flag.StringVar(&export, "export", "", "timeseries CSV file prefix")
	flag.StringVar(&confDir, "config", "", "directory of conf.toml (default $AMD_CONFIG)")
}

func main() {
	flag.Parse()
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
	ac, err := amd.LoadAircraftCSV(conf.ModelPath(aircraftFile))
	if err != nil {
		log.Fatalf("aircraft: %s", err)
	}
	verbosity := conf.Verbosity
	if verbose {
		verbosity = amd.Verbose
	}
	logger := amd.NewLogger(os.Stdout, verbosity)

	prob, err := amd.NewLandingProblem(ac, logger)
	if err != nil {
		log.Fatalf("landing: %s", err)
	}
	for _, fn := range []func() error{prob.Setup, prob.SetInitialGuesses, prob.FinalSetup} {
		if err := fn(); err != nil {
			log.Fatalf("landing: %s", err)
		}
	}
	if err := prob.SetVal(amd.MissionGrossMass, massLbm, "lbm"); err != nil {
		log.Fatalf("landing: %s", err)
	}
	res, err := prob.Run(amd.RunOptions{RunDriver: true})
	if err != nil {
		log.Fatalf("landing: %s", err)
	}
	for _, name := range []string{"GH", "HI", "IJ"} {
		ph := res.Phase(name)
		if ph == nil {
			continue
		}
		fmt.Printf("%s: from %8.1f ft over %8.1f ft\n", name, ph.Initial/0.3048, ph.Duration/0.3048)
	}
	dist, err := res.Last("traj.IJ.timeseries.distance", "ft")
	if err != nil {
		log.Fatalf("landing: %s", err)
	}
	fmt.Printf("landing distance: %.1f ft (status %s, %d iterations)\n", dist, res.ExitStatus, res.Iterations)
	if export != "" {
		if err := amd.Export(amd.ExportConfig{Filename: export, OutputDir: conf.OutputDir, CSV: true}, res, time.Now()); err != nil {
			log.Fatalf("export: %s", err)
		}
	}
	if res.Failed {
		os.Exit(2)
	}
}
