// Package query runs queries against the DFI Query V1 API and collects the
// streamed results.
package query

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/generalsystem/dfi"
	"github.com/generalsystem/dfi/connect"
	"github.com/pkg/errors"
)

const (
	endpointQuery           = "v1/query"
	endpointInstrumentation = "v1/query/instrumentation"
	endpointManage          = "v1/query/manage"
)

// OperationTruncate removes all data from a dataset. It cannot be undone.
const OperationTruncate = "truncate"

// Service sends queries through a Connect.
type Service struct {
	conn        *connect.Connect
	progressOut io.Writer

	mu       sync.Mutex
	document map[string]interface{}
}

// New returns a query Service. Progress, when the connection asks for it, is
// written to stderr.
func New(conn *connect.Connect) *Service {
	return &Service{conn: conn, progressOut: os.Stderr}
}

// SetProgressWriter changes where progress is written.
func (s *Service) SetProgressWriter(w io.Writer) {
	s.progressOut = w
}

func (s *Service) String() string {
	return fmt.Sprintf("Query(conn=%v)", s.conn)
}

// Document returns the query document sent by the last query, or nil.
func (s *Service) Document() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.document
}

func (s *Service) setDocument(doc map[string]interface{}) {
	s.mu.Lock()
	s.document = doc
	s.mu.Unlock()
}

// Count returns the number of records within the filter bounds.
func (s *Service) Count(ctx context.Context, datasetID string, opts ...dfi.DocOption) (int64, error) {
	doc, err := s.build(datasetID, dfi.Count{}, opts)
	if err != nil {
		return 0, err
	}
	agg := &countAgg{}
	if err := s.stream(ctx, doc, agg); err != nil {
		return 0, errors.Wrap(err, "querying count")
	}
	return agg.count, nil
}

// UniqueIDCounts returns the number of records of each entity id within the
// filter bounds.
func (s *Service) UniqueIDCounts(ctx context.Context, datasetID string, opts ...dfi.DocOption) (map[string]int64, error) {
	doc, err := s.build(datasetID, dfi.Count{GroupBy: dfi.GroupByUniqueID}, opts)
	if err != nil {
		return nil, err
	}
	agg := &uniqueIDAgg{counts: make(map[string]int64)}
	if err := s.stream(ctx, doc, agg); err != nil {
		return nil, errors.Wrap(err, "querying unique id counts")
	}
	return agg.counts, nil
}

// Records returns the records within the filter bounds. include asks for
// extra columns on each record.
func (s *Service) Records(ctx context.Context, datasetID string, include []dfi.IncludeField, opts ...dfi.DocOption) (*RecordSet, error) {
	doc, err := s.build(datasetID, dfi.Records{Include: include}, opts)
	if err != nil {
		return nil, err
	}
	agg := &recordsAgg{set: newRecordSet()}
	if err := s.stream(ctx, doc, agg); err != nil {
		return nil, errors.Wrap(err, "querying records")
	}
	return agg.set, nil
}

// RawRequest sends document to the API without validating it. The result
// is an int64 for a count, a map[string]int64 for counts grouped by unique
// id, or a *RecordSet for records.
func (s *Service) RawRequest(ctx context.Context, document map[string]interface{}) (interface{}, error) {
	kind, err := returnKind(document)
	if err != nil {
		return nil, err
	}
	var (
		agg    aggregator
		result func() interface{}
	)
	switch kind {
	case kindUniqueIDCounts:
		a := &uniqueIDAgg{counts: make(map[string]int64)}
		agg, result = a, func() interface{} { return a.counts }
	case kindCount:
		a := &countAgg{}
		agg, result = a, func() interface{} { return a.count }
	case kindRecords:
		a := &recordsAgg{set: newRecordSet()}
		agg, result = a, func() interface{} { return a.set }
	}
	if err := s.stream(ctx, document, agg); err != nil {
		return nil, errors.Wrap(err, "raw request")
	}
	return result(), nil
}

const (
	kindCount = iota + 1
	kindUniqueIDCounts
	kindRecords
)

// returnKind finds the shape of the result from the document's return
// model. The return model may be the bare string "count".
func returnKind(document map[string]interface{}) (int, error) {
	bs, err := json.Marshal(document[dfi.KeyReturn])
	if err != nil {
		return 0, errors.Wrap(err, "encoding return model")
	}
	var name string
	if json.Unmarshal(bs, &name) == nil {
		if name == "count" {
			return kindCount, nil
		}
		return 0, errors.Wrapf(dfi.ErrUnknownReturnType, "'%s'", name)
	}
	var rm struct {
		Type    string `json:"type"`
		GroupBy *struct {
			Type string `json:"type"`
		} `json:"groupBy"`
	}
	if err := json.Unmarshal(bs, &rm); err != nil {
		return 0, errors.Wrapf(dfi.ErrUnknownReturnType, "%s", bs)
	}
	switch {
	case rm.Type == "count" && rm.GroupBy != nil && rm.GroupBy.Type == string(dfi.GroupByUniqueID):
		return kindUniqueIDCounts, nil
	case rm.Type == "count":
		return kindCount, nil
	case rm.Type == "records":
		return kindRecords, nil
	}
	return 0, errors.Wrapf(dfi.ErrUnknownReturnType, "%s", bs)
}

func (s *Service) build(datasetID string, rm dfi.ReturnModel, opts []dfi.DocOption) (map[string]interface{}, error) {
	qd, err := dfi.NewQueryDocument(datasetID, rm, opts...)
	if err != nil {
		return nil, err
	}
	return qd.Build()
}

// stream posts the document and folds the streamed results into agg.
func (s *Service) stream(ctx context.Context, doc map[string]interface{}, agg aggregator) error {
	s.setDocument(doc)
	start := time.Now()
	resp, err := s.conn.Post(ctx, endpointQuery, true, nil, doc)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	err = s.receive(resp.Body, agg)
	s.conn.Statter().Timing("dfi.query.duration", time.Since(start), 1.0)
	return err
}

// Instrumentation lists recent queries, newest first. Every argument is
// optional: datasetID and identityID filter the list, before pages back in
// time and pageSize (at most 500, 100 when zero) sets the page length.
// Tenant admins see queries from any identity, other users only their own.
func (s *Service) Instrumentation(ctx context.Context, datasetID, identityID string, before *time.Time, pageSize int) ([]map[string]interface{}, error) {
	var size *int
	if pageSize > 0 {
		size = &pageSize
	}
	params := connect.Params(
		"identityId", identityID,
		"datasetId", datasetID,
		"before", before,
		"pageSize", size,
	)
	var out []map[string]interface{}
	if err := s.conn.GetJSON(ctx, endpointInstrumentation, params, &out); err != nil {
		return nil, errors.Wrap(err, "getting query instrumentation")
	}
	return out, nil
}

// Manage runs a data management operation, such as OperationTruncate, on a
// dataset. Operations cannot be undone. Admin only.
func (s *Service) Manage(ctx context.Context, datasetID, operation string) (map[string]string, error) {
	body := map[string]string{
		"datasetId": datasetID,
		"operation": operation,
	}
	var out map[string]string
	if err := s.conn.PostJSON(ctx, endpointManage, nil, body, &out); err != nil {
		return nil, errors.Wrapf(err, "running %s on %s", operation, datasetID)
	}
	return out, nil
}
