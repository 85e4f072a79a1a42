package datasets

import (
	"context"
	"io"
	"os"
	"sort"
	"time"

	"github.com/generalsystem/dfi"
	"github.com/generalsystem/dfi/boltdb"
	"github.com/generalsystem/dfi/connect"
	"github.com/generalsystem/dfi/pretty"
	"github.com/pkg/errors"
)

// Actions a Main can run.
const (
	ActionList         = "list"
	ActionGet          = "get"
	ActionSchema       = "schema"
	ActionFilterFields = "filter-fields"
	ActionPermissions  = "permissions"
)

// Main contains the configuration for a datasets command.
type Main struct {
	Token        string        `help:"DFI API token."`
	URL          string        `flag:"url" help:"DFI API base URL."`
	QueryTimeout time.Duration `flag:"query-timeout" help:"Time to wait for the API to respond."`
	Action       string        `help:"One of list, get, schema, filter-fields or permissions."`
	Dataset      string        `help:"Dataset id for get, schema, filter-fields and permissions."`
	Name         string        `help:"Only list datasets with this name."`
	Limit        int           `help:"Maximum number of datasets to list, 0 for the API default."`
	SchemaType   string        `help:"Schema type: full, core, withMetadataId or withFilterFields."`
	Cache        string        `help:"Bolt file caching filter field schemas, empty for none."`
	CacheTTL     time.Duration `flag:"cache-ttl" help:"How long cached filter field schemas stay valid."`
	JSON         bool          `flag:"json" help:"Print JSON instead of a table."`
}

// NewMain gets a new Main with the default configuration.
func NewMain() *Main {
	return &Main{
		URL:          connect.DefaultBaseURL,
		QueryTimeout: connect.DefaultQueryTimeout,
		Action:       ActionList,
		SchemaType:   string(SchemaFull),
		CacheTTL:     boltdb.DefaultTTL,
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

	switch m.Action {
	case ActionList:
		found, err := s.Find(ctx, m.Name, nil, m.Limit)
		if err != nil {
			return err
		}
		if m.JSON {
			return pretty.JSON(w, found)
		}
		rows := make([]map[string]interface{}, len(found))
		for i, d := range found {
			rows[i] = map[string]interface{}{"id": d["id"], "name": d["name"], "description": d["description"]}
		}
		return pretty.Objects(w, rows, "id", "name", "description")
	case ActionGet:
		d, err := s.FindByID(ctx, m.Dataset)
		if err != nil {
			return err
		}
		return m.write(w, d)
	case ActionSchema:
		st, err := ParseSchemaType(m.SchemaType)
		if err != nil {
			return err
		}
		schema, err := s.Schema(ctx, m.Dataset, st)
		if err != nil {
			return err
		}
		return m.write(w, schema)
	case ActionFilterFields:
		if m.Cache != "" {
			cache, err := boltdb.NewSchemaCache(m.Cache, m.CacheTTL)
			if err != nil {
				return err
			}
			defer cache.Close()
			s.SetSchemaCache(cache)
		}
		schema, err := s.FilterFieldSchema(ctx, m.Dataset)
		if err != nil {
			return err
		}
		if m.JSON {
			return pretty.JSON(w, schema)
		}
		return writeSchema(w, schema)
	case ActionPermissions:
		perms, err := s.Permissions(ctx, m.Dataset)
		if err != nil {
			return err
		}
		if m.JSON {
			return pretty.JSON(w, perms)
		}
		rows := make([][]interface{}, len(perms))
		for i, p := range perms {
			rows[i] = []interface{}{p.Type, p.Scope, p.IdentityID}
		}
		return pretty.Table(w, []string{"type", "scope", "identityId"}, rows)
	}
	return errors.Wrapf(dfi.ErrInputValue, "unknown action '%s'", m.Action)
}

func (m *Main) write(w io.Writer, v map[string]interface{}) error {
	if m.JSON {
		return pretty.JSON(w, v)
	}
	return pretty.Object(w, v)
}

func writeSchema(w io.Writer, schema dfi.Schema) error {
	names := make([]string, 0, len(schema))
	for name := range schema {
		names = append(names, name)
	}
	sort.Strings(names)
	rows := make([][]interface{}, len(names))
	for i, name := range names {
		f := schema[name]
		rows[i] = []interface{}{name, f.Type, f.Signed, f.Nullable, f.Values}
	}
	return pretty.Table(w, []string{"name", "type", "signed", "nullable", "values"}, rows)
}
