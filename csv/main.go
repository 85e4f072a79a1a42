package csv

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/generalsystem/dfi/ingest"
	"github.com/pkg/errors"
)

// ErrProblemsFound is returned by Main when any file has bad rows.
var ErrProblemsFound = errors.New("problems found")

// Main contains the configuration for checking CSV files before import.
type Main struct {
	Files       []string `help:"Comma separated list of files or URLs to check."`
	Header      bool     `help:"Skip the first line of each file."`
	MaxRows     int      `help:"Check at most this many rows of each file, 0 for all."`
	Concurrency int      `help:"Number of files to check at once."`
	MaxRetries  int      `help:"Number of times to try reading each file."`
	EntityID    int      `flag:"entity-id" help:"CSV column of the entity id."`
	Timestamp   int      `help:"CSV column of the timestamp."`
	Longitude   int      `help:"CSV column of the longitude."`
	Latitude    int      `help:"CSV column of the latitude."`
	Altitude    int      `help:"CSV column of the altitude, negative for none."`
}

// NewMain gets a new Main with the default configuration.
func NewMain() *Main {
	return &Main{
		Header:      true,
		MaxRows:     100,
		Concurrency: 4,
		MaxRetries:  3,
		Timestamp:   1,
		Longitude:   2,
		Latitude:    3,
		Altitude:    -1,
	}
}

// Run checks the files and prints each problem to stdout.
func (m *Main) Run() error {
	return m.RunTo(context.Background(), os.Stdout)
}

// RunTo checks the files and prints each problem to w. It returns
// ErrProblemsFound when any are.
func (m *Main) RunTo(ctx context.Context, w io.Writer) error {
	format := ingest.CSVFormat{
		EntityID:  m.EntityID,
		Timestamp: m.Timestamp,
		Longitude: m.Longitude,
		Latitude:  m.Latitude,
	}
	if m.Altitude >= 0 {
		format.Altitude = ingest.Column(m.Altitude)
	}
	c := NewChecker(
		WithURLs(m.Files),
		WithHeader(m.Header),
		WithMaxRows(m.MaxRows),
		WithConcurrency(m.Concurrency),
		WithMaxRetries(m.MaxRetries),
	)
	problems, err := c.Check(ctx, format)
	if err != nil {
		return errors.Wrap(err, "checking files")
	}
	for _, p := range problems {
		fmt.Fprintln(w, p)
	}
	if len(problems) > 0 {
		return errors.Wrapf(ErrProblemsFound, "%d bad values in %d files", len(problems), len(m.Files))
	}
	return nil
}
