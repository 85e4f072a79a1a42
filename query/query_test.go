package query_test

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/apache/arrow/go/v10/arrow"
	"github.com/apache/arrow/go/v10/arrow/array"
	"github.com/generalsystem/dfi"
	"github.com/generalsystem/dfi/connect"
	"github.com/generalsystem/dfi/fake"
	"github.com/generalsystem/dfi/mock"
	"github.com/generalsystem/dfi/query"
	"github.com/generalsystem/dfi/test"
)

func newService(t *testing.T, opts ...connect.Option) (*query.Service, *fake.Server) {
	t.Helper()
	srv := fake.NewServer()
	t.Cleanup(srv.Close)
	opts = append([]connect.Option{
		connect.OptToken("tok"),
		connect.OptBaseURL(srv.URL),
		connect.OptLogger(dfi.LogfLogger{Logfer: t}),
	}, opts...)
	conn, err := connect.New(opts...)
	test.ErrNil(t, err, "connect.New")
	return query.New(conn), srv
}

func TestCount(t *testing.T) {
	stats := mock.NewRecordingStatter()
	s, srv := newService(t, connect.OptStatter(stats))
	srv.HandleStream("v1/query", append([]fake.Event{fake.KeepAlive()}, fake.Stream(10, 32)...)...)

	bbox, err := dfi.NewBBoxFromCorners(0, 0, 1, 1)
	test.ErrNil(t, err, "bbox")
	n, err := s.Count(context.Background(), "ds", dfi.WithGeometry(bbox))
	test.ErrNil(t, err, "Count")
	test.MustBe(t, int64(42), n)

	var sent map[string]interface{}
	test.ErrNil(t, srv.LastRequest().Decode(&sent), "decode request")
	test.JSONEq(t, `{"datasetId":"ds","return":{"type":"count"},"filters":{"geo":{"type":"BoundingBox","bounds":[0,0,1,1]}}}`, sent, "request")
	test.JSONEq(t, `{"datasetId":"ds","return":{"type":"count"},"filters":{"geo":{"type":"BoundingBox","bounds":[0,0,1,1]}}}`, s.Document(), "document")
	test.MustBe(t, "text/event-stream", srv.LastRequest().Header.Get("Accept"))
	test.MustBe(t, int64(4), stats.Counted("dfi.query.events"))
}

func TestStreamErrors(t *testing.T) {
	tests := []struct {
		events []fake.Event
		expErr error
	}{
		{events: nil, expErr: dfi.ErrNoEventsReceived},
		{events: []fake.Event{fake.Message(1)}, expErr: dfi.ErrNoFinishMessageReceived},
		{events: []fake.Event{fake.Message(1), fake.Finish(2)}, expErr: dfi.ErrEventsMissed},
		{events: []fake.Event{fake.Message(1), fake.QueryError("bad polygon")}, expErr: dfi.ErrDFIResponse},
		{events: []fake.Event{{Name: "surprise", Data: "{}"}}, expErr: dfi.ErrUnknownMessageReceived},
		{events: []fake.Event{fake.KeepAlive(), fake.Finish(0)}},
	}
	for i, tst := range tests {
		t.Run(fmt.Sprintf("%d", i), func(t *testing.T) {
			s, srv := newService(t)
			srv.HandleStream("v1/query", tst.events...)
			_, err := s.Count(context.Background(), "ds")
			test.ErrCause(t, tst.expErr, err, "Count")
		})
	}
}

func TestEventsMissedMessage(t *testing.T) {
	s, srv := newService(t)
	srv.HandleStream("v1/query", fake.Message(1), fake.Finish(3))
	_, err := s.Count(context.Background(), "ds")
	if err == nil || !strings.Contains(err.Error(), "Received 1/3 events") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestFinishAtEndOfStream(t *testing.T) {
	s, srv := newService(t)
	srv.Handle("POST", "v1/query", fake.Response{
		Header: map[string][]string{"Content-Type": {"text/event-stream"}},
		Raw:    []byte("event: message\ndata: 5\n\nevent: finish\ndata: {\"messageCount\":1}"),
	})
	n, err := s.Count(context.Background(), "ds")
	test.ErrNil(t, err, "Count")
	test.MustBe(t, int64(5), n)
}

func TestUniqueIDCounts(t *testing.T) {
	s, srv := newService(t)
	srv.HandleStream("v1/query", fake.Stream(map[string]int{"a": 1, "b": 2}, map[string]int{"c": 3})...)

	counts, err := s.UniqueIDCounts(context.Background(), "ds", dfi.WithUIDs("a", "b", "c"))
	test.ErrNil(t, err, "UniqueIDCounts")
	test.MustBe(t, map[string]int64{"a": 1, "b": 2, "c": 3}, counts)
	test.JSONEq(t, `{"type":"count","groupBy":{"type":"uniqueId"}}`, s.Document()["return"], "return model")
}

func TestRecords(t *testing.T) {
	s, srv := newService(t)
	gen := fake.NewRecordGenerator(3, 5, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), 0, 0, 1, 1)
	batch1, batch2 := gen.Records(3), gen.Records(2)
	srv.HandleStream("v1/query", fake.Stream(batch1, batch2)...)

	rs, err := s.Records(context.Background(), "ds", []dfi.IncludeField{dfi.IncludeMetadataID, dfi.IncludeFields}, dfi.WithOnly(dfi.Newest))
	test.ErrNil(t, err, "Records")
	test.MustBe(t, 5, rs.Len())
	test.MustBe(t, []string{"id", "coordinate", "time", "metadataId", "fields"}, rs.Columns)
	test.MustBe(t, batch1[0].ID, rs.Records[0].ID)
	test.MustBe(t, batch2[1].MetadataID, rs.Records[4].MetadataID)

	tbl, err := rs.Table()
	test.ErrNil(t, err, "Table")
	defer tbl.Release()
	test.MustBe(t, int64(5), tbl.NumRows())
	test.MustBe(t, int64(6), tbl.NumCols())
	ids := tbl.Column(0).(*array.String)
	test.MustBe(t, batch1[1].ID, ids.Value(1))
	times := tbl.Column(3).(*array.Timestamp)
	exp, err := time.Parse(time.RFC3339, batch1[0].Time)
	test.ErrNil(t, err, "parse time")
	test.MustBe(t, arrow.Timestamp(exp.UnixMilli()), times.Value(0))
}

func TestRecordsEmpty(t *testing.T) {
	s, srv := newService(t)
	srv.HandleStream("v1/query", fake.Finish(0))

	rs, err := s.Records(context.Background(), "ds", nil)
	test.ErrNil(t, err, "Records")
	test.MustBe(t, 0, rs.Len())
	test.MustBe(t, []string{"id", "coordinate", "time"}, rs.Columns)
	tbl, err := rs.Table()
	test.ErrNil(t, err, "Table")
	defer tbl.Release()
	test.MustBe(t, int64(0), tbl.NumRows())
}

func TestRecordNumericID(t *testing.T) {
	s, srv := newService(t)
	srv.HandleStream("v1/query", fake.Stream([]map[string]interface{}{
		{"id": 12345, "coordinate": []float64{1, 2, 30}, "time": "2023-01-01T00:00:00.000Z"},
	})...)
	rs, err := s.Records(context.Background(), "ds", nil)
	test.ErrNil(t, err, "Records")
	test.MustBe(t, "12345", rs.Records[0].ID)
	test.MustBe(t, []string{"12345", "[1, 2, 30]", "2023-01-01T00:00:00Z"}, rs.Row(0))
	test.MustBe(t, "altitude", rs.Schema().Field(3).Name)
}

func TestRawRequest(t *testing.T) {
	tests := []struct {
		doc    map[string]interface{}
		events []fake.Event
		exp    interface{}
		expErr error
	}{
		{
			doc:    map[string]interface{}{"datasetId": "ds", "return": "count"},
			events: fake.Stream(3),
			exp:    int64(3),
		},
		{
			doc:    map[string]interface{}{"datasetId": "ds", "return": map[string]interface{}{"type": "count"}},
			events: fake.Stream(3, 4),
			exp:    int64(7),
		},
		{
			doc:    map[string]interface{}{"datasetId": "ds", "return": map[string]interface{}{"type": "count", "groupBy": map[string]string{"type": "uniqueId"}}},
			events: fake.Stream(map[string]int{"x": 9}),
			exp:    map[string]int64{"x": 9},
		},
		{
			doc:    map[string]interface{}{"datasetId": "ds", "return": map[string]interface{}{"type": "histogram"}},
			expErr: dfi.ErrUnknownReturnType,
		},
		{
			doc:    map[string]interface{}{"datasetId": "ds"},
			expErr: dfi.ErrUnknownReturnType,
		},
	}
	for i, tst := range tests {
		t.Run(fmt.Sprintf("%d", i), func(t *testing.T) {
			s, srv := newService(t)
			srv.HandleStream("v1/query", tst.events...)
			got, err := s.RawRequest(context.Background(), tst.doc)
			test.ErrCause(t, tst.expErr, err, "RawRequest")
			if err != nil {
				return
			}
			test.MustBe(t, tst.exp, got)
		})
	}
}

func TestRawRequestRecords(t *testing.T) {
	s, srv := newService(t)
	srv.HandleStream("v1/query", fake.Finish(0))
	got, err := s.RawRequest(context.Background(), map[string]interface{}{"return": map[string]interface{}{"type": "records"}})
	test.ErrNil(t, err, "RawRequest")
	if _, ok := got.(*query.RecordSet); !ok {
		t.Fatalf("expected *query.RecordSet, got %T", got)
	}
}

func TestProgressBar(t *testing.T) {
	s, srv := newService(t, connect.OptProgressBar(true))
	s.SetProgressWriter(&bytes.Buffer{})
	srv.HandleStream("v1/query", fake.Stream(1000, 234)...)
	n, err := s.Count(context.Background(), "ds")
	test.ErrNil(t, err, "Count")
	test.MustBe(t, int64(1234), n)
}

func TestInstrumentationAndManage(t *testing.T) {
	s, srv := newService(t)
	srv.HandleJSON("GET", "v1/query/instrumentation", []map[string]interface{}{{"datasetId": "ds", "result": "success"}})
	srv.HandleJSON("POST", "v1/query/manage", map[string]string{"status": "success"})

	before := time.Date(2024, 2, 21, 0, 0, 0, 0, time.UTC)
	out, err := s.Instrumentation(context.Background(), "ds", "", &before, 50)
	test.ErrNil(t, err, "Instrumentation")
	test.MustBe(t, "success", out[0]["result"])
	q := srv.LastRequest().Query
	test.MustBe(t, "ds", q.Get("datasetId"))
	test.MustBe(t, "50", q.Get("pageSize"))
	test.MustBe(t, "2024-02-21T00:00:00Z", q.Get("before"))
	if _, ok := q["identityId"]; ok {
		t.Fatalf("empty identityId should be omitted")
	}

	res, err := s.Manage(context.Background(), "ds", query.OperationTruncate)
	test.ErrNil(t, err, "Manage")
	test.MustBe(t, "success", res["status"])
	var body map[string]string
	test.ErrNil(t, srv.LastRequest().Decode(&body), "decode")
	test.MustBe(t, map[string]string{"datasetId": "ds", "operation": "truncate"}, body)
}
