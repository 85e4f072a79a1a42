package ingest_test

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/generalsystem/dfi"
	"github.com/generalsystem/dfi/connect"
	"github.com/generalsystem/dfi/fake"
	"github.com/generalsystem/dfi/ingest"
	"github.com/generalsystem/dfi/test"
)

func newService(t *testing.T) (*ingest.Service, *fake.Server) {
	t.Helper()
	srv := fake.NewServer()
	t.Cleanup(srv.Close)
	conn, err := connect.New(connect.OptToken("tok"), connect.OptBaseURL(srv.URL))
	test.ErrNil(t, err, "connect.New")
	return ingest.New(conn), srv
}

func TestBuilders(t *testing.T) {
	creds := ingest.AWSCredentials{RoleArn: "arn:aws:iam::123:role/r"}
	test.JSONEq(t, `{"RoleArn":"arn:aws:iam::123:role/r"}`, creds.Build(), "bare credentials")

	creds.Policy = map[string]interface{}{"Version": "2012-10-17"}
	creds.PolicyArns = []string{"arn:aws:iam::aws:policy/ReadOnly"}
	test.JSONEq(t, `{"RoleArn":"arn:aws:iam::123:role/r","Policy":{"Version":"2012-10-17"},"PolicyArns":["arn:aws:iam::aws:policy/ReadOnly"]}`, creds.Build(), "credentials")

	test.JSONEq(t, `{"urls":["https://a/1.csv","https://a/2.csv"]}`, ingest.BatchURLFiles{URLs: []string{"https://a/1.csv", "https://a/2.csv"}}.Build(), "urls")

	s3 := ingest.BatchS3Files{Bucket: "s3://b", Credentials: ingest.AWSCredentials{RoleArn: "r"}, Glob: "**/*.csv"}
	test.JSONEq(t, `{"s3":{"bucket":"s3://b","credentials":{"RoleArn":"r"},"glob":"**/*.csv"}}`, s3.Build(), "s3 without prefix")
	s3.Prefix = "sample-data"
	test.JSONEq(t, `{"s3":{"bucket":"s3://b","credentials":{"RoleArn":"r"},"glob":"**/*.csv","prefix":"sample-data"}}`, s3.Build(), "s3")
}

func TestCSVFormat(t *testing.T) {
	tests := []struct {
		name   string
		format ingest.CSVFormat
		exp    string
	}{
		{
			name:   "required",
			format: ingest.CSVFormat{EntityID: 0, Timestamp: 1, Longitude: 2, Latitude: 3},
			exp:    `{"csv":{"entityId":0,"timestamp":1,"longitude":2,"latitude":3}}`,
		},
		{
			name:   "metadata id without altitude",
			format: ingest.CSVFormat{EntityID: 0, Timestamp: 1, Longitude: 2, Latitude: 3, MetadataID: ingest.Column(4)},
			exp:    `{"csv":{"entityId":0,"timestamp":1,"longitude":2,"latitude":3,"metadataId":4}}`,
		},
		{
			name:   "altitude at column zero",
			format: ingest.CSVFormat{EntityID: 1, Timestamp: 2, Longitude: 3, Latitude: 4, Altitude: ingest.Column(0)},
			exp:    `{"csv":{"entityId":1,"timestamp":2,"longitude":3,"latitude":4,"altitude":0}}`,
		},
		{
			name:   "extras",
			format: ingest.CSVFormat{EntityID: 0, Timestamp: 1, Longitude: 2, Latitude: 3, Extras: map[string]int{"ipv4": 4, "age": 5}},
			exp:    `{"csv":{"entityId":0,"timestamp":1,"longitude":2,"latitude":3,"ipv4":4,"age":5}}`,
		},
	}
	for _, tst := range tests {
		t.Run(tst.name, func(t *testing.T) {
			test.JSONEq(t, tst.exp, tst.format.Build(), "format")
		})
	}
}

func TestPutBatch(t *testing.T) {
	format := ingest.CSVFormat{EntityID: 0, Timestamp: 1, Longitude: 2, Latitude: 3}
	source := ingest.BatchURLFiles{URLs: []string{"https://a/1.csv"}}
	tests := []struct {
		dryRun ingest.DryRun
		exp    string
	}{
		{dryRun: ingest.DryRunOff, exp: "false"},
		{dryRun: ingest.DryRunOn, exp: "true"},
		{dryRun: 1000, exp: "1000"},
	}
	for _, tst := range tests {
		t.Run(tst.exp, func(t *testing.T) {
			s, srv := newService(t)
			srv.HandleJSON("PUT", "v1/import/batch", map[string]interface{}{"importBatchId": "b-1"})
			out, err := s.PutBatch(context.Background(), "ds", source, format, tst.dryRun)
			test.ErrNil(t, err, "PutBatch")
			test.MustBe(t, "b-1", out["importBatchId"])
			req := srv.LastRequest()
			test.MustBe(t, tst.exp, req.Query.Get("dryRun"))
			test.JSONEq(t, `{"datasetId":"ds","source":{"urls":["https://a/1.csv"]},
				"format":{"csv":{"entityId":0,"timestamp":1,"longitude":2,"latitude":3}}}`, json.RawMessage(req.Body), "payload")
		})
	}
}

func TestPutBatchS3NotImplemented(t *testing.T) {
	s, srv := newService(t)
	_, err := s.PutBatch(context.Background(), "ds", ingest.BatchS3Files{Bucket: "b"}, ingest.CSVFormat{}, ingest.DryRunOff)
	test.ErrCause(t, dfi.ErrNotImplemented, err, "PutBatch")
	test.MustBe(t, 0, len(srv.Requests()))
}

func TestBatchLifecycle(t *testing.T) {
	s, srv := newService(t)
	ctx := context.Background()

	srv.HandleJSON("GET", "v1/import/awsTrustPolicy", map[string]interface{}{"Version": "2012-10-17"})
	policy, err := s.AWSTrustPolicy(ctx)
	test.ErrNil(t, err, "AWSTrustPolicy")
	test.MustBe(t, "2012-10-17", policy["Version"])

	srv.HandleJSON("GET", "v1/import/batch/b-1", map[string]interface{}{"id": "b-1", "datasetId": "ds"})
	info, err := s.BatchInfo(ctx, "b-1")
	test.ErrNil(t, err, "BatchInfo")
	test.MustBe(t, "ds", info["datasetId"])

	srv.HandleJSON("PATCH", "v1/import/batch/b-1", map[string]interface{}{"status": "aborted"})
	aborted, err := s.AbortBatch(ctx, "b-1")
	test.ErrNil(t, err, "AbortBatch")
	test.MustBe(t, "aborted", aborted["status"])
	test.JSONEq(t, `{"status":"aborted"}`, json.RawMessage(srv.LastRequest().Body), "abort body")

	srv.HandleJSON("GET", "v1/import/batch/b-1/status", []map[string]interface{}{{"status": "started"}, {"status": "aborted"}})
	status, err := s.BatchStatus(ctx, "b-1")
	test.ErrNil(t, err, "BatchStatus")
	test.JSONEq(t, `[{"status":"started"},{"status":"aborted"}]`, status, "status")
}

func TestMainRun(t *testing.T) {
	srv := fake.NewServer()
	defer srv.Close()
	srv.HandleJSON("PUT", "v1/import/batch", map[string]interface{}{"importBatchId": "b-9"})

	m := ingest.NewMain()
	m.Token, m.URL, m.Dataset = "tok", srv.URL, "ds"
	m.URLs = []string{"https://a/1.csv"}
	m.MetadataID = 4
	m.Extras = []string{"speed=5"}
	var out bytes.Buffer
	test.ErrNil(t, m.RunTo(context.Background(), &out), "RunTo")
	if !strings.Contains(out.String(), `"importBatchId": "b-9"`) {
		t.Fatalf("unexpected output: %s", out.String())
	}
	var sent map[string]interface{}
	test.ErrNil(t, srv.LastRequest().Decode(&sent), "decode")
	test.JSONEq(t, `{"csv":{"entityId":0,"timestamp":1,"longitude":2,"latitude":3,"metadataId":4,"speed":5}}`, sent["format"], "format")

	m.Extras = []string{"speed"}
	test.ErrCause(t, dfi.ErrInputValue, m.RunTo(context.Background(), &out), "bad extra")
	m.Extras, m.Action = nil, "launch"
	test.ErrCause(t, dfi.ErrInputValue, m.RunTo(context.Background(), &out), "bad action")
}
