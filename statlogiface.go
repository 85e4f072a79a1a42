package dfi

import (
	"io"
	"log"
	"time"
)

// Statter is the interface that stats collectors must implement to get stats
// out of the DFI client. Tags are "key:value" strings.
type Statter interface {
	Count(name string, value int64, rate float64, tags ...string)
	Gauge(name string, value float64, rate float64, tags ...string)
	Histogram(name string, value float64, rate float64, tags ...string)
	Set(name string, value string, rate float64, tags ...string)
	Timing(name string, value time.Duration, rate float64, tags ...string)
}

// NopStatter does nothing.
type NopStatter struct{}

// Count does nothing.
func (NopStatter) Count(name string, value int64, rate float64, tags ...string) {}

// Gauge does nothing.
func (NopStatter) Gauge(name string, value float64, rate float64, tags ...string) {}

// Histogram does nothing.
func (NopStatter) Histogram(name string, value float64, rate float64, tags ...string) {}

// Set does nothing.
func (NopStatter) Set(name string, value string, rate float64, tags ...string) {}

// Timing does nothing.
func (NopStatter) Timing(name string, value time.Duration, rate float64, tags ...string) {}

// Logger is the interface that loggers must implement to get DFI client logs.
// Printf is for things a user running a query wants to see, Debugf for
// request level detail.
type Logger interface {
	Printf(format string, v ...interface{})
	Debugf(format string, v ...interface{})
}

// NopLogger logs nothing.
type NopLogger struct{}

// Printf does nothing.
func (NopLogger) Printf(format string, v ...interface{}) {}

// Debugf does nothing.
func (NopLogger) Debugf(format string, v ...interface{}) {}

// StdLogger only prints on Printf.
type StdLogger struct {
	*log.Logger
}

// NewStdLogger returns a StdLogger writing to w with UTC timestamps.
func NewStdLogger(w io.Writer) StdLogger {
	return StdLogger{log.New(w, "", log.LstdFlags|log.LUTC)}
}

// Printf implements Logger interface.
func (s StdLogger) Printf(format string, v ...interface{}) {
	s.Logger.Printf(format, v...)
}

// Debugf implements Logger interface, but prints nothing.
func (StdLogger) Debugf(format string, v ...interface{}) {}

// VerboseLogger prints on both Printf and Debugf.
type VerboseLogger struct {
	*log.Logger
}

// NewVerboseLogger returns a VerboseLogger writing to w with UTC timestamps.
func NewVerboseLogger(w io.Writer) VerboseLogger {
	return VerboseLogger{log.New(w, "", log.LstdFlags|log.LUTC)}
}

// Printf implements Logger interface.
func (s VerboseLogger) Printf(format string, v ...interface{}) {
	s.Logger.Printf(format, v...)
}

// Debugf implements Logger interface.
func (s VerboseLogger) Debugf(format string, v ...interface{}) {
	s.Logger.Printf("DEBUG "+format, v...)
}

// Logfer is satisfied by *testing.T and *testing.B.
type Logfer interface {
	Logf(format string, v ...interface{})
}

// LogfLogger sends all output to a Logfer, which makes client logs show up
// next to the test that produced them.
type LogfLogger struct {
	Logfer
}

// Printf implements Logger interface.
func (l LogfLogger) Printf(format string, v ...interface{}) {
	l.Logf(format, v...)
}

// Debugf implements Logger interface.
func (l LogfLogger) Debugf(format string, v ...interface{}) {
	l.Logf("DEBUG "+format, v...)
}
