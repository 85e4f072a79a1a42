package info

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/generalsystem/dfi/connect"
	"github.com/generalsystem/dfi/pretty"
	"github.com/pkg/errors"
)

// Main contains the configuration for an info command.
type Main struct {
	Token        string        `help:"DFI API token."`
	URL          string        `flag:"url" help:"DFI API base URL."`
	QueryTimeout time.Duration `flag:"query-timeout" help:"Time to wait for the API to respond."`
	JSON         bool          `flag:"json" help:"Print JSON instead of a table."`
}

// NewMain gets a new Main with the default configuration.
func NewMain() *Main {
	return &Main{
		URL:          connect.DefaultBaseURL,
		QueryTimeout: connect.DefaultQueryTimeout,
	}
}

// Run prints the versions to stdout.
func (m *Main) Run() error {
	return m.RunTo(context.Background(), os.Stdout)
}

// RunTo prints the library, API and product versions to w.
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
	api, err := s.APIVersion(ctx)
	if err != nil {
		return err
	}
	product, err := s.ProductVersion(ctx)
	if err != nil {
		return err
	}
	versions := map[string]interface{}{
		"library": s.Version(),
		"api":     api,
		"product": product,
		"url":     conn.BaseURL(),
	}
	if m.JSON {
		return pretty.JSON(w, versions)
	}
	return pretty.Object(w, versions)
}
