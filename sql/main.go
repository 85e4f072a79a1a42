package sql

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/generalsystem/dfi/connect"
	"github.com/generalsystem/dfi/pretty"
	"github.com/generalsystem/dfi/query"
	"github.com/pkg/errors"
)

// Main contains the configuration for a sql command.
type Main struct {
	Token        string        `help:"DFI API token."`
	URL          string        `flag:"url" help:"DFI API base URL."`
	QueryTimeout time.Duration `flag:"query-timeout" help:"Time to wait for the API to start responding."`
	Progress     bool          `help:"Show a progress bar on stderr."`
	Statement    string        `help:"SQL statement to run."`
	Translate    bool          `help:"Print the query document instead of running it."`
	JSON         bool          `flag:"json" help:"Print JSON instead of a table."`
}

// NewMain gets a new Main with the default configuration.
func NewMain() *Main {
	return &Main{
		URL:          connect.DefaultBaseURL,
		QueryTimeout: connect.DefaultQueryTimeout,
	}
}

// Run runs the statement and prints the result to stdout.
func (m *Main) Run() error {
	return m.RunTo(context.Background(), os.Stdout)
}

// RunTo runs the statement and prints the result to w.
func (m *Main) RunTo(ctx context.Context, w io.Writer, opts ...connect.Option) error {
	if m.Translate {
		doc, err := Translate(m.Statement)
		if err != nil {
			return err
		}
		return pretty.JSON(w, doc)
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
	res, err := New(query.New(conn)).Query(ctx, m.Statement)
	if err != nil {
		return err
	}
	switch res := res.(type) {
	case int64:
		if m.JSON {
			return pretty.JSON(w, map[string]int64{"count": res})
		}
		return pretty.Table(w, []string{"count"}, [][]interface{}{{res}})
	case map[string]int64:
		return query.WriteCounts(w, res, m.JSON)
	case *query.RecordSet:
		return query.WriteRecords(w, res, m.JSON)
	}
	return errors.Errorf("unexpected result type %T", res)
}
