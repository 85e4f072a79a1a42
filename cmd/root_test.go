package cmd_test

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/generalsystem/dfi/cmd"
	"github.com/generalsystem/dfi/fake"
	"github.com/generalsystem/dfi/test"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	rc := cmd.NewRootCommand(strings.NewReader(""), &stdout, &stderr)
	rc.SetArgs(args)
	err := rc.Execute()
	return stdout.String(), err
}

func TestSubcommands(t *testing.T) {
	rc := cmd.NewRootCommand(strings.NewReader(""), &bytes.Buffer{}, &bytes.Buffer{})
	var names []string
	for _, c := range rc.Commands() {
		if c.Name() == "help" || c.Name() == "completion" {
			continue
		}
		names = append(names, c.Name())
	}
	sort.Strings(names)
	test.MustBe(t, []string{"datasets", "identities", "info", "ingest", "presign", "query", "sql"}, names)
}

func TestInfoCommand(t *testing.T) {
	srv := fake.NewServer()
	defer srv.Close()
	srv.Handle("GET", "version", fake.Response{Text: "1.4.2"})
	srv.Handle("GET", "product/version", fake.Response{Text: "2023.6"})

	out, err := run(t, "info", "--url", srv.URL, "--token", "flag-token", "--json")
	test.ErrNil(t, err, "info")
	var versions map[string]string
	test.ErrNil(t, json.Unmarshal([]byte(out), &versions), "decoding output")
	test.MustBe(t, "1.4.2", versions["api"])
	test.MustBe(t, "Bearer flag-token", srv.LastRequest().Header.Get("Authorization"))
}

func TestConfigPriority(t *testing.T) {
	srv := fake.NewServer()
	defer srv.Close()
	srv.HandleJSON("GET", "v1/identities/me", map[string]interface{}{"id": "auth0|1"})

	t.Setenv("DFI_TOKEN", "env-token")
	t.Setenv("DFI_URL", srv.URL)
	_, err := run(t, "identities", "me")
	test.ErrNil(t, err, "identities from env")
	test.MustBe(t, "Bearer env-token", srv.LastRequest().Header.Get("Authorization"))

	config := filepath.Join(t.TempDir(), "dfi.toml")
	test.ErrNil(t, os.WriteFile(config, []byte("token = \"file-token\"\njson = true\n"), 0600), "writing config")
	t.Setenv("DFI_TOKEN", "")
	out, err := run(t, "identities", "--config", config)
	test.ErrNil(t, err, "identities from config file")
	test.MustBe(t, "Bearer file-token", srv.LastRequest().Header.Get("Authorization"), "empty env var")
	if !strings.Contains(out, `"id": "auth0|1"`) {
		t.Fatalf("expected json output, got:\n%s", out)
	}
}

func TestSQLTranslate(t *testing.T) {
	out, err := run(t, "sql", "--translate", "select", "count", "from", "ds")
	test.ErrNil(t, err, "sql")
	test.JSONEq(t, `{"datasetId":"ds","return":{"type":"count"}}`, json.RawMessage(out), "document")
}

func TestQueryCommand(t *testing.T) {
	srv := fake.NewServer()
	defer srv.Close()
	srv.HandleStream("v1/query", fake.Stream(map[string]int{"a": 3})...)

	out, err := run(t, "query", "uids", "--url", srv.URL, "--token", "tok", "--dataset", "ds", "--stats")
	test.ErrNil(t, err, "query")
	if !strings.Contains(out, "| a  |") {
		t.Fatalf("unexpected output:\n%s", out)
	}
	var sent map[string]interface{}
	test.ErrNil(t, srv.LastRequest().Decode(&sent), "decode")
	test.JSONEq(t, `{"type":"count","groupBy":{"type":"uniqueId"}}`, sent["return"], "return model")

	_, err = run(t, "query", "sum", "--url", srv.URL)
	if err == nil {
		t.Fatal("expected an error for an unknown action")
	}
}

func TestYAMLConfig(t *testing.T) {
	config := filepath.Join(t.TempDir(), "dfi.yaml")
	test.ErrNil(t, os.WriteFile(config, []byte("translate: true\n"), 0600), "writing config")
	out, err := run(t, "sql", "--config", config, "select records from ds")
	test.ErrNil(t, err, "sql")
	test.JSONEq(t, `{"datasetId":"ds","return":{"type":"records"}}`, json.RawMessage(out), "document")
}
