package amd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/soniakeys/meeus/v3/julian"
	"github.com/vmihailenco/msgpack/v5"
)

// HistoryRecord is one driver iteration. Design variables are in SI.
type HistoryRecord struct {
	Iteration    int                `msgpack:"iter"`
	JD           float64            `msgpack:"jd"` // Julian date of the record
	DesignVars   map[string]float64 `msgpack:"dv"`
	Objective    float64            `msgpack:"obj"`
	MaxViolation float64            `msgpack:"viol"`
	Penalty      float64            `msgpack:"rho"`
	FuncEvals    int                `msgpack:"evals"`
}

// Time returns the wall clock time of the record.
func (r HistoryRecord) Time() time.Time {
	return julian.JDToTime(r.JD)
}

// History is the optimization history of one run.
type History struct {
	Problem   string          `msgpack:"problem"`
	Optimizer string          `msgpack:"optimizer"`
	Status    string          `msgpack:"status"`
	StartJD   float64         `msgpack:"start_jd"`
	Records   []HistoryRecord `msgpack:"records"`
}

// Duration returns the time between the start and the last record.
func (h *History) Duration() time.Duration {
	if len(h.Records) == 0 {
		return 0
	}
	return julian.JDToTime(h.Records[len(h.Records)-1].JD).Sub(julian.JDToTime(h.StartJD))
}

// HistoryRecorder accumulates driver iterations and writes them on Close, as
// msgpack compressed with zstd.
type HistoryRecorder struct {
	filename string
	hist     History
	now      func() time.Time
}

// NewHistoryRecorder returns a recorder writing to filename.
func NewHistoryRecorder(filename, problem, optimizer string) *HistoryRecorder {
	r := &HistoryRecorder{filename: filename, now: time.Now}
	r.hist = History{Problem: problem, Optimizer: optimizer, StartJD: julian.TimeToJD(r.now().UTC())}
	return r
}

// Record appends an iteration.
func (r *HistoryRecorder) Record(rec HistoryRecord) {
	rec.JD = julian.TimeToJD(r.now().UTC())
	r.hist.Records = append(r.hist.Records, rec)
}

// Close writes the history with the final status.
func (r *HistoryRecorder) Close(status string) error {
	r.hist.Status = status
	f, err := os.Create(r.filename)
	if err != nil {
		return err
	}
	if err := WriteHistory(f, &r.hist); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// WriteHistory encodes a history.
func WriteHistory(w io.Writer, h *History) error {
	zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("creating zstd writer: %w", err)
	}
	defer zw.Close()
	if err := msgpack.NewEncoder(zw).Encode(h); err != nil {
		return fmt.Errorf("encoding history: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("closing zstd writer: %w", err)
	}
	return nil
}

// ReadHistory decodes a history written by WriteHistory.
func ReadHistory(r io.Reader) (*History, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("creating zstd reader: %w", err)
	}
	defer zr.Close()
	var h History
	if err := msgpack.NewDecoder(zr).Decode(&h); err != nil {
		return nil, fmt.Errorf("decoding history: %w", err)
	}
	return &h, nil
}

// ReadHistoryFile decodes a history file.
func ReadHistoryFile(filename string) (*History, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadHistory(f)
}
