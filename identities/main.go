package identities

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/generalsystem/dfi"
	"github.com/generalsystem/dfi/connect"
	"github.com/generalsystem/dfi/pretty"
	"github.com/pkg/errors"
)

// Actions a Main can run.
const (
	ActionMe     = "me"
	ActionList   = "list"
	ActionTokens = "tokens"
)

// Main contains the configuration for an identities command.
type Main struct {
	Token          string        `help:"DFI API token."`
	URL            string        `flag:"url" help:"DFI API base URL."`
	QueryTimeout   time.Duration `flag:"query-timeout" help:"Time to wait for the API to respond."`
	Action         string        `help:"One of me, list or tokens."`
	IncludeExpired bool          `help:"List expired tokens too."`
	JSON           bool          `flag:"json" help:"Print JSON instead of a table."`
}

// NewMain gets a new Main with the default configuration.
func NewMain() *Main {
	return &Main{
		URL:          connect.DefaultBaseURL,
		QueryTimeout: connect.DefaultQueryTimeout,
		Action:       ActionMe,
	}
}

// Run runs the action and prints the result to stdout.
func (m *Main) Run() error {
	return m.RunTo(context.Background(), os.Stdout)
}

// RunTo runs the action and prints the result to w.
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

	var list []map[string]interface{}
	switch m.Action {
	case ActionMe:
		me, err := s.MyIdentity(ctx)
		if err != nil {
			return err
		}
		if m.JSON {
			return pretty.JSON(w, me)
		}
		return pretty.Object(w, me)
	case ActionList:
		list, err = s.Identities(ctx)
	case ActionTokens:
		list, err = s.Tokens(ctx, m.IncludeExpired)
	default:
		return errors.Wrapf(dfi.ErrInputValue, "unknown action '%s'", m.Action)
	}
	if err != nil {
		return err
	}
	if m.JSON {
		return pretty.JSON(w, list)
	}
	return pretty.Objects(w, list, "id")
}
