package amd

import (
	"fmt"
	"io"
	"os"
	"strings"

	kitlog "github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Verbosity controls how much the problem, the driver and the sub-models log.
type Verbosity int

const (
	// Quiet only logs errors.
	Quiet Verbosity = iota
	// Brief logs the assembly summary and the driver outcome.
	Brief
	// Verbose adds every driver iteration.
	Verbose
	// Debug adds phase level solver details.
	Debug
)

func (v Verbosity) String() string {
	switch v {
	case Quiet:
		return "QUIET"
	case Brief:
		return "BRIEF"
	case Verbose:
		return "VERBOSE"
	case Debug:
		return "DEBUG"
	default:
		return fmt.Sprintf("Verbosity(%d)", int(v))
	}
}

// ParseVerbosity returns the verbosity from its name or its level.
func ParseVerbosity(s string) (Verbosity, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "QUIET", "0":
		return Quiet, nil
	case "BRIEF", "1":
		return Brief, nil
	case "VERBOSE", "2":
		return Verbose, nil
	case "DEBUG", "3":
		return Debug, nil
	}
	return Brief, configErr("settings", ErrUnknownOption, "verbosity %q", s)
}

func (v Verbosity) filter() level.Option {
	switch {
	case v <= Quiet:
		return level.AllowError()
	case v == Brief:
		return level.AllowWarn()
	case v == Verbose:
		return level.AllowInfo()
	default:
		return level.AllowDebug()
	}
}

// NewLogger returns a logfmt logger writing to w, filtered by the verbosity.
func NewLogger(w io.Writer, v Verbosity) kitlog.Logger {
	l := kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(w))
	l = kitlog.With(l, "ts", kitlog.DefaultTimestampUTC)
	return level.NewFilter(l, v.filter())
}

// NewFileLogger returns a logger writing to a size rotated log file, and to stdout
// unless the verbosity is Quiet.
func NewFileLogger(filename string, v Verbosity) kitlog.Logger {
	var w io.Writer = &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    20, // MB
		MaxBackups: 3,
		Compress:   true,
	}
	if v > Quiet {
		w = io.MultiWriter(w, os.Stdout)
	}
	return NewLogger(w, v)
}

// SilentLogger discards everything, which is convenient for tests and sub-problems.
func SilentLogger() kitlog.Logger {
	return kitlog.NewNopLogger()
}
