package amd

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/soniakeys/meeus/v3/julian"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// ExportConfig configures the outputs of a run.
type ExportConfig struct {
	Filename  string // prefix of every file
	OutputDir string
	CSV       bool // timeseries of every phase
	Plots     bool // altitude, Mach and mass profiles
	Timestamp bool // append the creation time to the file names
}

// IsUseless returns whether this config will not export anything.
func (c ExportConfig) IsUseless() bool {
	return !c.CSV && !c.Plots
}

func (c ExportConfig) path(suffix, ext string) string {
	name := c.Filename + "-" + suffix
	if c.Timestamp {
		t := time.Now().UTC()
		name += fmt.Sprintf("-%d-%02d-%02dT%02d.%02d.%02d", t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second())
	}
	return filepath.Join(c.OutputDir, name+"."+ext)
}

// Exported timeseries columns and their display units.
var exportColumns = []struct {
	name, units string
}{
	{"time", "s"},
	{"distance", "nmi"},
	{"altitude", "ft"},
	{"mach", "unitless"},
	{"velocity", "kn"},
	{"mass", "lbm"},
	{"throttle", "unitless"},
	{"thrust", "lbf"},
	{"drag", "lbf"},
	{"fuel_flow", "lbm/h"},
	{"flight_path_angle", "deg"},
	{"alpha", "deg"},
	{"CL", "unitless"},
	{"CD", "unitless"},
}

// Export writes the requested outputs of a result. The epoch is the wall
// clock time of the start of the mission.
func Export(conf ExportConfig, res *Result, epoch time.Time) error {
	if conf.IsUseless() {
		return nil
	}
	if conf.OutputDir != "" {
		if err := os.MkdirAll(conf.OutputDir, 0o755); err != nil {
			return err
		}
	}
	if conf.CSV {
		f, err := os.Create(conf.path("timeseries", "csv"))
		if err != nil {
			return err
		}
		if err := WriteTimeseriesCSV(f, res, epoch); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
	}
	if conf.Plots {
		for _, pl := range []struct {
			x, xUnits, y, yUnits, title string
		}{
			{"distance", "nmi", "altitude", "ft", "Altitude"},
			{"time", "min", "mach", "unitless", "Mach"},
			{"time", "min", "mass", "lbm", "Mass"},
		} {
			p, err := PlotTimeseries(res, pl.x, pl.xUnits, pl.y, pl.yUnits)
			if err != nil {
				return err
			}
			p.Title.Text = pl.title
			if err := p.Save(8*vg.Inch, 4*vg.Inch, conf.path(pl.y, "png")); err != nil {
				return err
			}
		}
	}
	return nil
}

// WriteTimeseriesCSV writes one row per node of every phase, in display units.
func WriteTimeseriesCSV(w io.Writer, res *Result, epoch time.Time) error {
	header := fmt.Sprintf("# Creation date (UTC): %s\n# Mission start (UTC): %s\n# Status: %s, failed: %t\n# jd is the Julian date of the node\n",
		time.Now().UTC().Format(time.RFC3339), epoch.UTC().Format(time.RFC3339), res.ExitStatus, res.Failed)
	if _, err := io.WriteString(w, header); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	cols := []string{"phase", "jd"}
	for _, c := range exportColumns {
		if c.units == "unitless" {
			cols = append(cols, c.name)
		} else {
			cols = append(cols, c.name+" ("+c.units+")")
		}
	}
	if err := cw.Write(cols); err != nil {
		return err
	}
	for _, ph := range res.Phases {
		n := len(ph.Timeseries["time"])
		for i := 0; i < n; i++ {
			t := ph.Timeseries["time"][i]
			row := []string{ph.Name, strconv.FormatFloat(julian.TimeToJD(epoch.Add(time.Duration(t*float64(time.Second))).UTC()), 'f', 8, 64)}
			for _, c := range exportColumns {
				v, err := Convert(ph.Timeseries[c.name][i], timeseriesUnits[c.name], c.units)
				if err != nil {
					return err
				}
				row = append(row, strconv.FormatFloat(v, 'g', 10, 64))
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// PlotTimeseries plots y against x for every phase, one line per phase.
func PlotTimeseries(res *Result, x, xUnits, y, yUnits string) (*plot.Plot, error) {
	p := plot.New()
	p.X.Label.Text = fmt.Sprintf("%s (%s)", x, xUnits)
	p.Y.Label.Text = fmt.Sprintf("%s (%s)", y, yUnits)
	var lines []interface{}
	for _, ph := range res.Phases {
		xs, ys := ph.Timeseries[x], ph.Timeseries[y]
		if xs == nil || ys == nil {
			return nil, fmt.Errorf("%w: %s or %s", ErrUnknownVariable, x, y)
		}
		pts := make(plotter.XYs, len(xs))
		for i := range xs {
			var err error
			if pts[i].X, err = Convert(xs[i], timeseriesUnits[x], xUnits); err != nil {
				return nil, err
			}
			if pts[i].Y, err = Convert(ys[i], timeseriesUnits[y], yUnits); err != nil {
				return nil, err
			}
		}
		lines = append(lines, ph.Name, pts)
	}
	if err := plotutil.AddLinePoints(p, lines...); err != nil {
		return nil, err
	}
	return p, nil
}
