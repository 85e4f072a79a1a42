package truncate_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/generalsystem/dfi"
	"github.com/generalsystem/dfi/connect"
	"github.com/generalsystem/dfi/fake"
	"github.com/generalsystem/dfi/test"
	"github.com/generalsystem/dfi/truncate"
)

func TestTruncate(t *testing.T) {
	srv := fake.NewServer()
	defer srv.Close()
	conn, err := connect.New(connect.OptToken("tok"), connect.OptBaseURL(srv.URL), connect.OptRetries(0))
	test.ErrNil(t, err, "connect.New")
	s := truncate.New(conn)

	srv.Handle("POST", "truncate", fake.Response{Status: http.StatusNoContent, Raw: []byte{}})
	test.ErrNil(t, s.Truncate(context.Background(), "ds-1"), "Truncate")
	req := srv.LastRequest()
	test.MustBe(t, "ds-1", req.Query.Get("instance"))
	test.MustBe(t, 0, len(req.Body))

	srv.Handle("POST", "truncate", fake.Response{Status: http.StatusForbidden, JSON: map[string]string{"error": "admin only"}})
	err = s.Truncate(context.Background(), "ds-1")
	test.ErrCause(t, dfi.ErrDFIResponse, err, "Truncate forbidden")
}
