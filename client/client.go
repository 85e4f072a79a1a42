// Package client composes a connection to the DFI API with every service
// that uses it.
package client

import (
	"fmt"

	"github.com/generalsystem/dfi/connect"
	"github.com/generalsystem/dfi/datasets"
	"github.com/generalsystem/dfi/identities"
	"github.com/generalsystem/dfi/info"
	"github.com/generalsystem/dfi/ingest"
	"github.com/generalsystem/dfi/query"
	"github.com/generalsystem/dfi/sql"
	"github.com/generalsystem/dfi/truncate"
	"github.com/generalsystem/dfi/users"
	"github.com/pkg/errors"
)

// Client is the entry point to the DFI API. All services share Conn.
type Client struct {
	Conn *connect.Connect

	Datasets   *datasets.Service
	Identities *identities.Service
	Info       *info.Service
	Ingest     *ingest.Service
	Query      *query.Service
	SQL        *sql.Service
	Truncate   *truncate.Service
	Users      *users.Service
}

// New connects to the DFI API at baseURL with token. An empty baseURL is
// connect.DefaultBaseURL. opts are applied after token and baseURL.
func New(token, baseURL string, opts ...connect.Option) (*Client, error) {
	all := []connect.Option{connect.OptToken(token)}
	if baseURL != "" {
		all = append(all, connect.OptBaseURL(baseURL))
	}
	conn, err := connect.New(append(all, opts...)...)
	if err != nil {
		return nil, errors.Wrap(err, "connecting")
	}
	q := query.New(conn)
	return &Client{
		Conn:       conn,
		Datasets:   datasets.New(conn),
		Identities: identities.New(conn),
		Info:       info.New(conn),
		Ingest:     ingest.New(conn),
		Query:      q,
		SQL:        sql.New(q),
		Truncate:   truncate.New(conn),
		Users:      users.New(conn),
	}, nil
}

func (c *Client) String() string {
	return fmt.Sprintf("Client(conn=%v)", c.Conn)
}
