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

package ingest

import (
	"context"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/generalsystem/dfi"
	"github.com/generalsystem/dfi/connect"
	"github.com/generalsystem/dfi/pretty"
	"github.com/pkg/errors"
)

// Actions a Main can run.
const (
	ActionPut         = "put"
	ActionInfo        = "info"
	ActionStatus      = "status"
	ActionAbort       = "abort"
	ActionTrustPolicy = "trust-policy"
)

// Main contains the configuration for an import batch command.
type Main struct {
	Token        string        `help:"DFI API token."`
	URL          string        `flag:"url" help:"DFI API base URL."`
	QueryTimeout time.Duration `flag:"query-timeout" help:"Time to wait for the API to respond."`
	Action       string        `help:"One of put, info, status, abort or trust-policy."`
	Dataset      string        `help:"Dataset to import into."`
	Batch        string        `help:"Import batch id for info, status and abort."`
	URLs         []string      `flag:"urls" help:"Comma separated list of file URLs to import."`
	EntityID     int           `flag:"entity-id" help:"CSV column of the entity id."`
	Timestamp    int           `help:"CSV column of the timestamp."`
	Longitude    int           `help:"CSV column of the longitude."`
	Latitude     int           `help:"CSV column of the latitude."`
	Altitude     int           `help:"CSV column of the altitude, negative for none."`
	MetadataID   int           `flag:"metadata-id" help:"CSV column of the metadata id, negative for none."`
	Extras       []string      `help:"Extra columns as name=column pairs."`
	DryRun       int           `help:"Check this many rows of each file without importing, 0 to import, negative for the default."`
}

// NewMain gets a new Main with the default configuration.
func NewMain() *Main {
	return &Main{
		URL:          connect.DefaultBaseURL,
		QueryTimeout: connect.DefaultQueryTimeout,
		Action:       ActionPut,
		Timestamp:    1,
		Longitude:    2,
		Latitude:     3,
		Altitude:     -1,
		MetadataID:   -1,
	}
}

// Format builds the CSVFormat described by m's column flags.
func (m *Main) Format() (CSVFormat, error) {
	f := CSVFormat{
		EntityID:  m.EntityID,
		Timestamp: m.Timestamp,
		Longitude: m.Longitude,
		Latitude:  m.Latitude,
	}
	if m.Altitude >= 0 {
		f.Altitude = Column(m.Altitude)
	}
	if m.MetadataID >= 0 {
		f.MetadataID = Column(m.MetadataID)
	}
	for _, kv := range m.Extras {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			return f, errors.Wrapf(dfi.ErrInputValue, "extra column '%s' is not name=column", kv)
		}
		col, err := strconv.Atoi(parts[1])
		if err != nil {
			return f, errors.Wrapf(dfi.ErrInputValue, "extra column '%s' is not name=column", kv)
		}
		if f.Extras == nil {
			f.Extras = make(map[string]int)
		}
		f.Extras[parts[0]] = col
	}
	return f, nil
}

// Run runs the action and prints the API's response to stdout.
func (m *Main) Run() error {
	return m.RunTo(context.Background(), os.Stdout)
}

// RunTo runs the action and prints the API's response to w as JSON.
func (m *Main) RunTo(ctx context.Context, w io.Writer, opts ...connect.Option) error {
	opts = append([]connect.Option{
		connect.OptToken(m.Token),
		connect.OptBaseURL(m.URL),
		connect.OptQueryTimeout(m.QueryTimeout),
	}, opts...)
	conn, err := connect.New(opts...)
	if err != nil {
		return errors.Wrap(err, "connecting")
	}
	s := New(conn)

	var out interface{}
	switch m.Action {
	case ActionPut:
		format, ferr := m.Format()
		if ferr != nil {
			return ferr
		}
		if len(m.URLs) == 0 {
			return errors.Wrap(dfi.ErrInputValue, "no urls to import")
		}
		out, err = s.PutBatch(ctx, m.Dataset, BatchURLFiles{URLs: m.URLs}, format, DryRun(m.DryRun))
	case ActionInfo:
		out, err = s.BatchInfo(ctx, m.Batch)
	case ActionStatus:
		out, err = s.BatchStatus(ctx, m.Batch)
	case ActionAbort:
		out, err = s.AbortBatch(ctx, m.Batch)
	case ActionTrustPolicy:
		out, err = s.AWSTrustPolicy(ctx)
	default:
		return errors.Wrapf(dfi.ErrInputValue, "unknown action '%s'", m.Action)
	}
	if err != nil {
		return err
	}
	return pretty.JSON(w, out)
}
