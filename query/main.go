package query

import (
	"context"
	"io"
	"os"
	"sort"
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
	ActionCount   = "count"
	ActionUIDs    = "uids"
	ActionRecords = "records"
)

// Main contains the configuration for a query command.
type Main struct {
	Token        string        `help:"DFI API token."`
	URL          string        `flag:"url" help:"DFI API base URL."`
	QueryTimeout time.Duration `flag:"query-timeout" help:"Time to wait for the API to start responding."`
	Progress     bool          `help:"Show a progress bar on stderr."`
	Action       string        `help:"One of count, uids or records."`
	Dataset      string        `help:"Dataset to query."`
	IDs          []string      `flag:"ids" help:"Entity ids to restrict the query to."`
	MinTime      string        `help:"ISO 8601 lower time bound."`
	MaxTime      string        `help:"ISO 8601 upper time bound."`
	BBox         string        `flag:"bbox" help:"Bounding box as minLon,minLat,maxLon,maxLat."`
	Polygon      string        `help:"Polygon as WKT."`
	Include      []string      `help:"Extra record columns: metadataId, fields."`
	JSON         bool          `flag:"json" help:"Print JSON instead of a table."`
}

// NewMain gets a new Main with the default configuration.
func NewMain() *Main {
	return &Main{
		URL:          connect.DefaultBaseURL,
		QueryTimeout: connect.DefaultQueryTimeout,
		Action:       ActionCount,
	}
}

// Options builds the query document options described by m's filter flags.
func (m *Main) Options() ([]dfi.DocOption, error) {
	var opts []dfi.DocOption
	if len(m.IDs) > 0 {
		uids := make([]interface{}, len(m.IDs))
		for i, id := range m.IDs {
			uids[i] = id
		}
		opts = append(opts, dfi.WithUIDs(uids...))
	}
	if m.MinTime != "" || m.MaxTime != "" {
		tr, err := dfi.NewTimeRangeFromStrings(m.MinTime, m.MaxTime)
		if err != nil {
			return nil, err
		}
		opts = append(opts, dfi.WithTimeRange(tr))
	}
	if m.BBox != "" && m.Polygon != "" {
		return nil, errors.Wrap(dfi.ErrInputValue, "only one of bbox and polygon may be given")
	}
	if m.BBox != "" {
		parts := strings.Split(m.BBox, ",")
		bounds := make([]float64, len(parts))
		for i, p := range parts {
			f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
			if err != nil {
				return nil, errors.Wrapf(dfi.ErrBBoxValue, "parsing '%s'", p)
			}
			bounds[i] = f
		}
		bbox, err := dfi.NewBBoxFromList(bounds)
		if err != nil {
			return nil, err
		}
		opts = append(opts, dfi.WithGeometry(bbox))
	}
	if m.Polygon != "" {
		poly, err := dfi.NewPolygonFromWKT(m.Polygon)
		if err != nil {
			return nil, err
		}
		opts = append(opts, dfi.WithGeometry(poly))
	}
	return opts, nil
}

// Run runs the query and prints the result to stdout.
func (m *Main) Run() error {
	return m.RunTo(context.Background(), os.Stdout)
}

// RunTo runs the query and prints the result to w.
func (m *Main) RunTo(ctx context.Context, w io.Writer, opts ...connect.Option) error {
	docOpts, err := m.Options()
	if err != nil {
		return err
	}
	opts = append([]connect.Option{
		connect.OptToken(m.Token),
		connect.OptBaseURL(m.URL),
		connect.OptQueryTimeout(m.QueryTimeout),
		connect.OptProgressBar(m.Progress),
	}, opts...)
	conn, err := connect.New(opts...)
	if err != nil {
		return errors.Wrap(err, "connecting")
	}
	s := New(conn)

	switch m.Action {
	case ActionCount:
		n, err := s.Count(ctx, m.Dataset, docOpts...)
		if err != nil {
			return err
		}
		if m.JSON {
			return pretty.JSON(w, map[string]int64{"count": n})
		}
		return pretty.Table(w, []string{"count"}, [][]interface{}{{n}})
	case ActionUIDs:
		counts, err := s.UniqueIDCounts(ctx, m.Dataset, docOpts...)
		if err != nil {
			return err
		}
		return WriteCounts(w, counts, m.JSON)
	case ActionRecords:
		include := make([]dfi.IncludeField, len(m.Include))
		for i, inc := range m.Include {
			if include[i], err = dfi.ParseIncludeField(inc); err != nil {
				return err
			}
		}
		rs, err := s.Records(ctx, m.Dataset, include, docOpts...)
		if err != nil {
			return err
		}
		return WriteRecords(w, rs, m.JSON)
	}
	return errors.Wrapf(dfi.ErrInputValue, "unknown action '%s'", m.Action)
}

// WriteCounts writes counts grouped by entity id, largest first.
func WriteCounts(w io.Writer, counts map[string]int64, asJSON bool) error {
	if asJSON {
		return pretty.JSON(w, counts)
	}
	ids := make([]string, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if counts[ids[i]] != counts[ids[j]] {
			return counts[ids[i]] > counts[ids[j]]
		}
		return ids[i] < ids[j]
	})
	rows := make([][]interface{}, len(ids))
	for i, id := range ids {
		rows[i] = []interface{}{id, counts[id]}
	}
	return pretty.Table(w, []string{"id", "count"}, rows)
}

// WriteRecords writes the records of rs, one per row.
func WriteRecords(w io.Writer, rs *RecordSet, asJSON bool) error {
	if asJSON {
		return pretty.JSON(w, rs.Records)
	}
	rows := make([][]interface{}, rs.Len())
	for i := range rows {
		cells := rs.Row(i)
		row := make([]interface{}, len(cells))
		for j, c := range cells {
			row[j] = c
		}
		rows[i] = row
	}
	return pretty.Table(w, rs.Columns, rows)
}
