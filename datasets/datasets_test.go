package datasets_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/apache/arrow/go/v10/arrow"
	"github.com/apache/arrow/go/v10/arrow/ipc"
	"github.com/apache/arrow/go/v10/arrow/memory"
	"github.com/generalsystem/dfi"
	"github.com/generalsystem/dfi/boltdb"
	"github.com/generalsystem/dfi/connect"
	"github.com/generalsystem/dfi/datasets"
	"github.com/generalsystem/dfi/fake"
	"github.com/generalsystem/dfi/test"
)

func newService(t *testing.T) (*datasets.Service, *fake.Server) {
	t.Helper()
	srv := fake.NewServer()
	t.Cleanup(srv.Close)
	conn, err := connect.New(connect.OptToken("tok"), connect.OptBaseURL(srv.URL), connect.OptLogger(dfi.LogfLogger{Logfer: t}))
	test.ErrNil(t, err, "connect.New")
	return datasets.New(conn), srv
}

func TestCRUD(t *testing.T) {
	s, srv := newService(t)
	ctx := context.Background()

	srv.HandleJSON("POST", "v1/datasets", map[string]interface{}{"id": "ds-1", "name": "test-0"})
	created, err := s.Create(ctx, datasets.Dataset{"name": "test-0"})
	test.ErrNil(t, err, "Create")
	test.MustBe(t, "ds-1", created["id"])
	test.JSONEq(t, `{"name":"test-0"}`, json.RawMessage(srv.LastRequest().Body), "create body")

	srv.HandleJSON("GET", "v1/datasets", []map[string]interface{}{{"id": "ds-1"}})
	before := time.Date(2023, 3, 31, 12, 50, 0, 0, time.UTC)
	found, err := s.Find(ctx, "London", &before, 10)
	test.ErrNil(t, err, "Find")
	test.MustBe(t, 1, len(found))
	q := srv.LastRequest().Query
	test.MustBe(t, "London", q.Get("name"))
	test.MustBe(t, "2023-03-31T12:50:00Z", q.Get("before"))
	test.MustBe(t, "10", q.Get("limit"))

	_, err = s.Find(ctx, "", nil, 0)
	test.ErrNil(t, err, "Find all")
	test.MustBe(t, 0, len(srv.LastRequest().Query))

	srv.HandleJSON("GET", "v1/datasets/ds-1", map[string]interface{}{"id": "ds-1"})
	got, err := s.FindByID(ctx, "ds-1")
	test.ErrNil(t, err, "FindByID")
	test.MustBe(t, "ds-1", got["id"])

	srv.HandleJSON("PATCH", "v1/datasets/ds-1", map[string]interface{}{"id": "ds-1", "description": "a test dataset"})
	updated, err := s.Update(ctx, "ds-1", datasets.Dataset{"description": "a test dataset"})
	test.ErrNil(t, err, "Update")
	test.MustBe(t, "a test dataset", updated["description"])

	srv.Handle("DELETE", "v1/datasets/ds-1", fake.Response{Status: http.StatusNoContent, Raw: []byte{}})
	test.ErrNil(t, s.Delete(ctx, "ds-1"), "Delete")

	_, err = s.FindByID(ctx, "missing")
	test.ErrCause(t, dfi.ErrDFIResponse, err, "FindByID missing")
}

func TestPermissions(t *testing.T) {
	s, srv := newService(t)
	ctx := context.Background()
	perms := []datasets.Permission{
		{Type: "reader", Scope: "all"},
		{Type: "writer", Scope: "identity", IdentityID: "user-123"},
	}

	srv.HandleJSON("GET", "v1/datasets/ds/permissions", perms)
	got, err := s.Permissions(ctx, "ds")
	test.ErrNil(t, err, "Permissions")
	test.MustBe(t, perms, got)

	srv.HandleJSON("POST", "v1/datasets/ds/permissions", perms[1:])
	added, err := s.AddPermissions(ctx, "ds", perms[1:])
	test.ErrNil(t, err, "AddPermissions")
	test.MustBe(t, perms[1:], added)
	test.JSONEq(t, `[{"type":"writer","scope":"identity","identityId":"user-123"}]`, json.RawMessage(srv.LastRequest().Body), "add body")

	srv.HandleJSON("DELETE", "v1/datasets/ds/permissions", perms[:1])
	deleted, err := s.DeletePermissions(ctx, "ds", perms[:1])
	test.ErrNil(t, err, "DeletePermissions")
	test.MustBe(t, perms[:1], deleted)
	test.JSONEq(t, `[{"type":"reader","scope":"all"}]`, json.RawMessage(srv.LastRequest().Body), "delete body")

	srv.HandleJSON("GET", "v1/datasets/ds/permissions/me", perms[:1])
	mine, err := s.MyPermissions(ctx, "ds")
	test.ErrNil(t, err, "MyPermissions")
	test.MustBe(t, perms[:1], mine)
}

func TestSchema(t *testing.T) {
	s, srv := newService(t)
	srv.HandleJSON("GET", "v1/datasets/ds/schema", map[string]interface{}{"fields": []string{"id"}})
	got, err := s.Schema(context.Background(), "ds", datasets.SchemaCore)
	test.ErrNil(t, err, "Schema")
	test.MustBe(t, []interface{}{"id"}, got["fields"])
	test.MustBe(t, "core", srv.LastRequest().Query.Get("type"))
	test.MustBe(t, "application/json", srv.LastRequest().Header.Get("Accept"))
}

func TestSchemaFeather(t *testing.T) {
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.BinaryTypes.String},
		{Name: "time", Type: arrow.FixedWidthTypes.Timestamp_ms},
	}, nil)
	f, err := os.CreateTemp(t.TempDir(), "schema.feather")
	test.ErrNil(t, err, "CreateTemp")
	defer f.Close()
	w, err := ipc.NewFileWriter(f, ipc.WithSchema(schema), ipc.WithAllocator(memory.NewGoAllocator()))
	test.ErrNil(t, err, "NewFileWriter")
	test.ErrNil(t, w.Close(), "closing writer")
	raw, err := os.ReadFile(f.Name())
	test.ErrNil(t, err, "ReadFile")

	s, srv := newService(t)
	srv.Handle("GET", "v1/datasets/ds/schema", fake.Response{
		Header: http.Header{"Content-Type": {"application/feather"}},
		Raw:    raw,
	})
	got, err := s.SchemaFeather(context.Background(), "ds", datasets.SchemaFull)
	test.ErrNil(t, err, "SchemaFeather")
	if !got.Equal(schema) {
		t.Fatalf("unexpected schema: %v", got)
	}
	test.MustBe(t, "application/feather", srv.LastRequest().Header.Get("Accept"))
	test.MustBe(t, "full", srv.LastRequest().Query.Get("type"))
}

func TestFilterFieldSchemaCache(t *testing.T) {
	s, srv := newService(t)
	cache, err := boltdb.NewSchemaCache(filepath.Join(t.TempDir(), "schemas.db"), time.Hour)
	test.ErrNil(t, err, "NewSchemaCache")
	defer cache.Close()
	s.SetSchemaCache(cache)

	srv.HandleJSON("GET", "v1/datasets/ds", map[string]interface{}{
		"id": "ds",
		"dataDescription": map[string]interface{}{
			"metadataSchema": map[string]interface{}{
				"plantHeight":   map[string]interface{}{"type": "number", "nullable": false, "signed": false},
				"plantCultivar": map[string]interface{}{"type": "enum", "nullable": true, "values": []string{"kale"}},
			},
		},
	})
	ctx := context.Background()
	schema, err := s.FilterFieldSchema(ctx, "ds")
	test.ErrNil(t, err, "FilterFieldSchema")
	test.MustBe(t, "number", schema["plantHeight"].Type)
	test.MustBe(t, []string{"kale"}, schema["plantCultivar"].Values)

	again, err := s.FilterFieldSchema(ctx, "ds")
	test.ErrNil(t, err, "FilterFieldSchema cached")
	test.MustBe(t, schema, again)
	test.MustBe(t, 1, len(srv.Requests()))

	_, err = dfi.NewFilterField("plantHeight", dfi.UnsignedNumber, -3, dfi.OpGT, false, again)
	test.ErrCause(t, dfi.ErrFilterFieldValue, err, "negative value of unsigned field")
}

func TestAddEnums(t *testing.T) {
	s, srv := newService(t)
	srv.HandleJSON("POST", "v1/datasets/ds/schema/values", map[string]interface{}{"plantCultivar": map[string]interface{}{"type": "enum"}})
	enums := dfi.Schema{"plantCultivar": {Type: "enum", Values: []string{"kale", "kohlrabi"}}}
	_, err := s.AddEnums(context.Background(), "ds", enums)
	test.ErrNil(t, err, "AddEnums")
	test.JSONEq(t, `{"plantCultivar":{"type":"enum","values":["kale","kohlrabi"]}}`, json.RawMessage(srv.LastRequest().Body), "body")
}

func TestParseSchemaType(t *testing.T) {
	st, err := datasets.ParseSchemaType("")
	test.ErrNil(t, err, "empty")
	test.MustBe(t, datasets.SchemaFull, st)
	st, err = datasets.ParseSchemaType("withFilterFields")
	test.ErrNil(t, err, "withFilterFields")
	test.MustBe(t, datasets.SchemaWithFilterFields, st)
	_, err = datasets.ParseSchemaType("partial")
	test.ErrCause(t, dfi.ErrInputValue, err, "partial")
}

func TestMainRun(t *testing.T) {
	srv := fake.NewServer()
	defer srv.Close()
	srv.HandleJSON("GET", "v1/datasets", []map[string]interface{}{
		{"id": "ds-1", "name": "london", "description": "buses", "createdAt": "2023-01-01"},
	})
	srv.HandleJSON("GET", "v1/datasets/ds-1", map[string]interface{}{
		"id":   "ds-1",
		"name": "london",
		"dataDescription": map[string]interface{}{
			"metadataSchema": map[string]interface{}{
				"speed": map[string]interface{}{"type": "number", "nullable": false},
			},
		},
	})
	srv.HandleJSON("GET", "v1/datasets/ds-1/schema", map[string]interface{}{"fields": []string{"id"}})
	srv.HandleJSON("GET", "v1/datasets/ds-1/permissions", []datasets.Permission{{Type: "reader", Scope: "all"}})

	tests := []struct {
		setup  func(m *datasets.Main)
		expOut []string
		expErr error
	}{
		{
			setup:  func(m *datasets.Main) { m.Name = "london" },
			expOut: []string{"| id   | name   | description |", "| ds-1 | london | buses       |"},
		},
		{
			setup:  func(m *datasets.Main) { m.JSON = true },
			expOut: []string{`"createdAt": "2023-01-01"`},
		},
		{
			setup:  func(m *datasets.Main) { m.Action = datasets.ActionGet },
			expOut: []string{"| name ", "| london"},
		},
		{
			setup:  func(m *datasets.Main) { m.Action, m.SchemaType, m.JSON = datasets.ActionSchema, "core", true },
			expOut: []string{`"fields": [`},
		},
		{
			setup:  func(m *datasets.Main) { m.Action, m.SchemaType = datasets.ActionSchema, "partial" },
			expErr: dfi.ErrInputValue,
		},
		{
			setup: func(m *datasets.Main) {
				m.Action = datasets.ActionFilterFields
				m.Cache = filepath.Join(t.TempDir(), "cache.db")
			},
			expOut: []string{"| speed | number |"},
		},
		{
			setup:  func(m *datasets.Main) { m.Action = datasets.ActionPermissions },
			expOut: []string{"| reader | all"},
		},
		{
			setup:  func(m *datasets.Main) { m.Action = "drop" },
			expErr: dfi.ErrInputValue,
		},
	}
	for i, tst := range tests {
		m := datasets.NewMain()
		m.Token, m.URL, m.Dataset = "tok", srv.URL, "ds-1"
		tst.setup(m)
		var out bytes.Buffer
		err := m.RunTo(context.Background(), &out)
		test.ErrCause(t, tst.expErr, err, fmt.Sprintf("RunTo %d", i))
		for _, exp := range tst.expOut {
			if !strings.Contains(out.String(), exp) {
				t.Fatalf("%d: expected %q in:\n%s", i, exp, out.String())
			}
		}
	}
}
