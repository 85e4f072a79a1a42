package users_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/generalsystem/dfi"
	"github.com/generalsystem/dfi/connect"
	"github.com/generalsystem/dfi/fake"
	"github.com/generalsystem/dfi/test"
	"github.com/generalsystem/dfi/users"
)

func TestUsers(t *testing.T) {
	srv := fake.NewServer()
	defer srv.Close()
	conn, err := connect.New(connect.OptToken("tok"), connect.OptBaseURL(srv.URL))
	test.ErrNil(t, err, "connect.New")
	s := users.New(conn)
	ctx := context.Background()

	srv.HandleJSON("POST", "v1/users", map[string]interface{}{"id": "u-1", "email": "ada@example.com"})
	created, err := s.Create(ctx, users.User{"email": "ada@example.com", "role": "reader"})
	test.ErrNil(t, err, "Create")
	test.MustBe(t, "u-1", created["id"])
	test.JSONEq(t, `{"email":"ada@example.com","role":"reader"}`, json.RawMessage(srv.LastRequest().Body), "create body")

	srv.HandleJSON("GET", "v1/users", []map[string]interface{}{{"id": "u-1"}, {"id": "u-2"}})
	all, err := s.List(ctx)
	test.ErrNil(t, err, "List")
	test.MustBe(t, 2, len(all))

	srv.HandleJSON("GET", "v1/users/u-2", map[string]interface{}{"id": "u-2"})
	u, err := s.Get(ctx, "u-2")
	test.ErrNil(t, err, "Get")
	test.MustBe(t, "u-2", u["id"])

	srv.Handle("DELETE", "v1/users/u-2", fake.Response{Status: http.StatusNoContent, Raw: []byte{}})
	test.ErrNil(t, s.Delete(ctx, "u-2"), "Delete")
	test.MustBe(t, "DELETE", srv.LastRequest().Method)

	_, err = s.Get(ctx, "u-3")
	test.ErrCause(t, dfi.ErrDFIResponse, err, "Get unknown")
}
