// Copyright 2017 Pilosa Corp.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions
// are met:
//
// 1. Redistributions of source code must retain the above copyright
// notice, this list of conditions and the following disclaimer.
//
// 2. Redistributions in binary form must reproduce the above copyright
// notice, this list of conditions and the following disclaimer in the
// documentation and/or other materials provided with the distribution.
//
// 3. Neither the name of the copyright holder nor the names of its
// contributors may be used to endorse or promote products derived
// from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND
// CONTRIBUTORS "AS IS" AND ANY EXPRESS OR IMPLIED WARRANTIES,
// INCLUDING, BUT NOT LIMITED TO, THE IMPLIED WARRANTIES OF
// MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE
// DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR
// CONTRIBUTORS BE LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL,
// SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES (INCLUDING,
// BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR
// SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY,
// WHETHER IN CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING
// NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE
// OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH
// DAMAGE.

// Package csv checks CSV files against an ingest.CSVFormat before they are
// submitted as an import batch, so that bad rows are found locally rather
// than by the importer.
package csv

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/generalsystem/dfi"
	"github.com/generalsystem/dfi/ingest"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Problem is a bad value found in a file.
type Problem struct {
	File   string
	Line   int
	Column int
	Err    error
}

func (p Problem) String() string {
	return fmt.Sprintf("%s:%d column %d: %v", p.File, p.Line, p.Column, p.Err)
}

// Checker reads CSV files and reports the rows that do not fit a CSVFormat.
// Checker is safe for concurrent use.
type Checker struct {
	files       []OpenStringer
	maxRetries  int
	concurrency int
	maxRows     int
	header      bool
	client      *http.Client
}

// NewChecker creates a Checker. The files to check are set by using Options
// defined in this package. e.g.
//
// c := NewChecker(WithURLs([]string{"myfile1.csv", "http://example.com/myfile2.csv"}))
func NewChecker(options ...Option) *Checker {
	c := &Checker{
		maxRetries:  3,
		concurrency: 1,
		client:      http.DefaultClient,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// Option is a functional option to pass to NewChecker.
type Option func(*Checker)

// WithURLs returns an Option which adds the URLs to the files a Checker
// reads. The URLs may be HTTP or local files.
func WithURLs(urls []string) Option {
	return func(c *Checker) {
		for _, u := range urls {
			c.files = append(c.files, urlOpener{url: u, checker: c})
		}
	}
}

// WithOpenStringers returns an Option which adds the OpenStringers to the
// files a Checker reads.
func WithOpenStringers(os []OpenStringer) Option {
	return func(c *Checker) {
		c.files = append(c.files, os...)
	}
}

// WithMaxRetries returns an Option which sets the max number of tries per
// file.
func WithMaxRetries(maxRetries int) Option {
	return func(c *Checker) {
		if maxRetries > 0 {
			c.maxRetries = maxRetries
		}
	}
}

// WithConcurrency returns an Option which sets the number of files checked
// simultaneously.
func WithConcurrency(n int) Option {
	return func(c *Checker) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithMaxRows returns an Option which stops checking each file after n data
// rows. Zero checks every row.
func WithMaxRows(n int) Option {
	return func(c *Checker) {
		c.maxRows = n
	}
}

// WithHeader returns an Option which skips the first line of each file.
func WithHeader(header bool) Option {
	return func(c *Checker) {
		c.header = header
	}
}

// WithHTTPClient returns an Option which sets the client fetching HTTP URLs.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Checker) {
		c.client = client
	}
}

// Opener is an interface to a resource which can be repeatedly Opened. Each
// call to Open returns a ReadCloser which reads from the beginning of the
// resource, so a failed read can be retried.
type Opener interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// OpenStringer is an Opener which also has a String method which should return
// the name of the resource being opened (e.g. a file or URL).
type OpenStringer interface {
	fmt.Stringer
	Opener
}

// urlOpener turns a URL or file name into an OpenStringer.
type urlOpener struct {
	url     string
	checker *Checker
}

func (u urlOpener) Open(ctx context.Context) (io.ReadCloser, error) {
	if !strings.HasPrefix(u.url, "http") {
		f, err := os.Open(u.url)
		return f, errors.Wrap(err, "opening file")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "creating request")
	}
	resp, err := u.checker.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "getting via http")
	}
	if resp.StatusCode/100 != 2 {
		resp.Body.Close()
		return nil, errors.Errorf("getting via http: status %s", resp.Status)
	}
	return resp.Body, nil
}

func (u urlOpener) String() string {
	// presigned URLs carry credentials in the query
	if i := strings.Index(u.url, "?"); i >= 0 && strings.HasPrefix(u.url, "http") {
		return u.url[:i]
	}
	return u.url
}

// Check reads every file and returns the problems found in them, ordered by
// file then line. The error is only non-nil when a file could not be read.
func (c *Checker) Check(ctx context.Context, format ingest.CSVFormat) ([]Problem, error) {
	problems := make([][]Problem, len(c.files))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, f := range c.files {
		i, f := i, f
		g.Go(func() error {
			ps, err := c.checkFile(ctx, f, format)
			if err != nil {
				return err
			}
			problems[i] = ps
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var out []Problem
	for _, ps := range problems {
		out = append(out, ps...)
	}
	return out, nil
}

func (c *Checker) checkFile(ctx context.Context, f OpenStringer, format ingest.CSVFormat) ([]Problem, error) {
	var err error
	for try := 0; try < c.maxRetries; try++ {
		var ps []Problem
		ps, err = c.checkFileTry(ctx, f, format)
		if err == nil {
			return ps, nil
		}
		if ctx.Err() != nil {
			break
		}
	}
	return nil, errors.Wrapf(err, "couldn't check '%s' - tried %d times, latest", f, c.maxRetries)
}

func (c *Checker) checkFileTry(ctx context.Context, f OpenStringer, format ingest.CSVFormat) ([]Problem, error) {
	content, err := f.Open(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "opening")
	}
	defer content.Close()

	r := csv.NewReader(content)
	r.FieldsPerRecord = -1
	r.ReuseRecord = true
	var (
		problems []Problem
		rows     int
	)
	for {
		row, err := r.Read()
		if err == io.EOF {
			return problems, nil
		}
		if perr, ok := err.(*csv.ParseError); ok {
			problems = append(problems, Problem{File: f.String(), Line: perr.Line, Column: perr.Column, Err: perr.Err})
			continue
		} else if err != nil {
			return nil, errors.Wrapf(err, "reading '%s'", f)
		}
		line, _ := r.FieldPos(0)
		if c.header && line == 1 {
			continue
		}
		if len(row) == 1 && strings.TrimSpace(row[0]) == "" {
			continue
		}
		for _, p := range checkRow(row, format) {
			p.File, p.Line = f.String(), line
			problems = append(problems, p)
		}
		rows++
		if c.maxRows > 0 && rows >= c.maxRows {
			return problems, nil
		}
	}
}

// checkRow validates the columns format names in row.
func checkRow(row []string, format ingest.CSVFormat) []Problem {
	var problems []Problem
	check := func(col int, fn func(string) error) {
		if col >= len(row) || col < 0 {
			problems = append(problems, Problem{Column: col, Err: errors.Wrapf(dfi.ErrInputValue, "row has %d columns", len(row))})
			return
		}
		if err := fn(strings.TrimSpace(row[col])); err != nil {
			problems = append(problems, Problem{Column: col, Err: err})
		}
	}
	check(format.EntityID, func(s string) error {
		if s == "" {
			return errors.Wrap(dfi.ErrInputValue, "empty entity id")
		}
		return nil
	})
	check(format.Timestamp, func(s string) error {
		_, err := ParseTimestamp(s)
		return err
	})
	check(format.Longitude, coordinate(dfi.ValidateLongitude))
	check(format.Latitude, coordinate(dfi.ValidateLatitude))
	if format.Altitude != nil {
		check(*format.Altitude, coordinate(dfi.ValidateAltitude))
	}
	return problems
}

func coordinate(validate func(float64) error) func(string) error {
	return func(s string) error {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return errors.Wrapf(dfi.ErrInputValue, "'%s' is not a number", s)
		}
		return validate(f)
	}
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// ParseTimestamp parses the timestamps the importer accepts: ISO 8601, with
// or without a zone (UTC is assumed), or integer milliseconds since the
// epoch.
func ParseTimestamp(s string) (time.Time, error) {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.Wrapf(dfi.ErrInputValue, "'%s' is not a valid timestamp", s)
}
