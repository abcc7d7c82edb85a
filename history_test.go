package amd

import (
	"bytes"
	"math"
	"path/filepath"
	"testing"
	"time"
)

func TestHistoryEncoding(t *testing.T) {
	h := &History{
		Problem:   "sizing",
		Optimizer: "SNOPT",
		Status:    "Success",
		StartJD:   2460000.5,
		Records: []HistoryRecord{
			{Iteration: 1, JD: 2460000.5001, DesignVars: map[string]float64{"traj.climb.t_duration": 1200}, Objective: 1.2, MaxViolation: 0.1, Penalty: 10, FuncEvals: 12},
			{Iteration: 2, JD: 2460000.5002, DesignVars: map[string]float64{"traj.climb.t_duration": 1180}, Objective: 1.1, MaxViolation: 1e-5, Penalty: 10, FuncEvals: 24},
		},
	}
	var buf bytes.Buffer
	if err := WriteHistory(&buf, h); err != nil {
		t.Fatal(err)
	}
	got, err := ReadHistory(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if got.Problem != h.Problem || got.Optimizer != h.Optimizer || got.Status != h.Status || len(got.Records) != 2 {
		t.Fatalf("decoded %+v", got)
	}
	if got.Records[1].DesignVars["traj.climb.t_duration"] != 1180 || got.Records[1].FuncEvals != 24 {
		t.Fatalf("record %+v", got.Records[1])
	}

	if _, err := ReadHistory(bytes.NewReader([]byte("not a history"))); err == nil {
		t.Fatal("garbage decoded")
	}
}

func TestHistoryRecorder(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "run.hist")
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	r := NewHistoryRecorder(filename, "landing", "SLSQP")
	clock := start
	r.now = func() time.Time { return clock }
	r.hist.StartJD = 2460371.0 // 2024-03-01T12:00:00Z

	for i := 1; i <= 3; i++ {
		clock = start.Add(time.Duration(i) * time.Minute)
		r.Record(HistoryRecord{Iteration: i, Objective: float64(i)})
	}
	if err := r.Close("Iteration limit"); err != nil {
		t.Fatal(err)
	}

	h, err := ReadHistoryFile(filename)
	if err != nil {
		t.Fatal(err)
	}
	if h.Status != "Iteration limit" || h.Problem != "landing" || len(h.Records) != 3 {
		t.Fatalf("history %+v", h)
	}
	if d := h.Duration(); math.Abs(d.Seconds()-180) > 1e-3 {
		t.Fatalf("duration %s", d)
	}
	if rt := h.Records[0].Time(); rt.Sub(start.Add(time.Minute)).Abs() > time.Millisecond {
		t.Fatalf("record time %s", rt)
	}
	if (&History{}).Duration() != 0 {
		t.Fatal("empty history has a duration")
	}
	if _, err := ReadHistoryFile(filepath.Join(t.TempDir(), "missing.hist")); err == nil {
		t.Fatal("missing file read")
	}
}
