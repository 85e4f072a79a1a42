package client_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/generalsystem/dfi"
	"github.com/generalsystem/dfi/client"
	"github.com/generalsystem/dfi/connect"
	"github.com/generalsystem/dfi/fake"
	"github.com/generalsystem/dfi/test"
)

func TestNew(t *testing.T) {
	c, err := client.New("secret-token", "")
	test.ErrNil(t, err, "New")
	test.MustBe(t, connect.DefaultBaseURL, c.Conn.BaseURL())
	if strings.Contains(c.String(), "secret-token") {
		t.Fatalf("token leaked: %s", c)
	}
	if !strings.Contains(c.String(), connect.DefaultBaseURL) {
		t.Fatalf("base url missing: %s", c)
	}

	c, err = client.New("tok", "http://localhost:8080/", connect.OptQueryTimeout(time.Second))
	test.ErrNil(t, err, "New with options")
	test.MustBe(t, "http://localhost:8080", c.Conn.BaseURL())
	test.MustBe(t, time.Second, c.Conn.QueryTimeout())

	_, err = client.New("tok", "", connect.OptRetries(-1))
	test.ErrCause(t, dfi.ErrInputValue, err, "negative retries")
}

func TestServicesShareConnection(t *testing.T) {
	srv := fake.NewServer()
	defer srv.Close()
	c, err := client.New("tok", srv.URL)
	test.ErrNil(t, err, "New")
	ctx := context.Background()

	srv.Handle("GET", "version", fake.Response{Text: "1.0.0"})
	v, err := c.Info.APIVersion(ctx)
	test.ErrNil(t, err, "APIVersion")
	test.MustBe(t, "1.0.0", v)

	srv.HandleStream("v1/query", fake.Stream(3, 4)...)
	n, err := c.SQL.Query(ctx, "select count from ds")
	test.ErrNil(t, err, "SQL")
	test.MustBe(t, int64(7), n)

	for _, r := range srv.Requests() {
		test.MustBe(t, "Bearer tok", r.Header.Get("Authorization"))
	}
}
