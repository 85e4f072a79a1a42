// Package ingest imports files of points into a dataset through the DFI
// Import API.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/generalsystem/dfi"
	"github.com/generalsystem/dfi/connect"
	"github.com/pkg/errors"
)

const (
	endpointTrustPolicy = "v1/import/awsTrustPolicy"
	endpointBatch       = "v1/import/batch"
)

// StatusAborted is the only status a batch can be updated to.
const StatusAborted = "aborted"

// Source is where the files of a batch come from.
type Source interface {
	Build() map[string]interface{}
}

// AWSCredentials point at an AWS role the importer assumes to scan and
// download files. The fields are a subset of AWS AssumeRole's parameters.
type AWSCredentials struct {
	RoleArn    string
	Policy     map[string]interface{}
	PolicyArns []string
}

// Build formats the credentials for a batch.
func (c AWSCredentials) Build() map[string]interface{} {
	out := map[string]interface{}{"RoleArn": c.RoleArn}
	if len(c.Policy) > 0 {
		out["Policy"] = c.Policy
	}
	if len(c.PolicyArns) > 0 {
		out["PolicyArns"] = c.PolicyArns
	}
	return out
}

// BatchURLFiles is a batch of files behind URLs, such as presigned S3 URLs.
type BatchURLFiles struct {
	URLs []string
}

// Build formats the source for a batch.
func (b BatchURLFiles) Build() map[string]interface{} {
	return map[string]interface{}{"urls": b.URLs}
}

// BatchS3Files is a batch of files in an S3 bucket the importer has been
// granted access to. The API does not accept it yet.
type BatchS3Files struct {
	// Bucket is an s3:// URL or a full URL.
	Bucket      string
	Credentials AWSCredentials
	// Glob selects files, e.g. "**/*.csv".
	Glob   string
	Prefix string
}

// Build formats the source for a batch.
func (b BatchS3Files) Build() map[string]interface{} {
	s3 := map[string]interface{}{
		"bucket":      b.Bucket,
		"credentials": b.Credentials.Build(),
		"glob":        b.Glob,
	}
	if b.Prefix != "" {
		s3["prefix"] = b.Prefix
	}
	return map[string]interface{}{"s3": s3}
}

// CSVFormat maps CSV columns, by zero based index, to the fields of a point.
// Extras maps further column names to indices.
type CSVFormat struct {
	EntityID   int
	Timestamp  int
	Longitude  int
	Latitude   int
	Altitude   *int
	MetadataID *int
	Extras     map[string]int
}

// Column returns a pointer to i, for the optional columns of a CSVFormat.
func Column(i int) *int { return &i }

// Build formats the file format for a batch.
func (f CSVFormat) Build() map[string]interface{} {
	csv := map[string]interface{}{
		"entityId":  f.EntityID,
		"timestamp": f.Timestamp,
		"longitude": f.Longitude,
		"latitude":  f.Latitude,
	}
	if f.Altitude != nil {
		csv["altitude"] = *f.Altitude
	}
	if f.MetadataID != nil {
		csv["metadataId"] = *f.MetadataID
	}
	for k, v := range f.Extras {
		csv[k] = v
	}
	return map[string]interface{}{"csv": csv}
}

// DryRun asks the importer to check files without importing them.
type DryRun int

// DryRunOff imports the files. DryRunOn checks the first 100 rows of each
// file. A positive DryRun checks that many rows of each file.
const (
	DryRunOff DryRun = 0
	DryRunOn  DryRun = -1
)

// param encodes d as the JSON value the API expects.
func (d DryRun) param() string {
	switch {
	case d == DryRunOff:
		return "false"
	case d < 0:
		return "true"
	}
	return strconv.Itoa(int(d))
}

// Service sends import requests through a Connect.
type Service struct {
	conn *connect.Connect
}

// New returns an ingest Service.
func New(conn *connect.Connect) *Service {
	return &Service{conn: conn}
}

func (s *Service) String() string {
	return fmt.Sprintf("Ingest(conn=%v)", s.conn)
}

func batchPath(id string, parts ...string) string {
	p := endpointBatch + "/" + url.PathEscape(id)
	for _, part := range parts {
		p += "/" + part
	}
	return p
}

// AWSTrustPolicy returns the trust policy to attach to a role the importer
// should assume.
func (s *Service) AWSTrustPolicy(ctx context.Context) (map[string]interface{}, error) {
	var out map[string]interface{}
	if err := s.conn.GetJSON(ctx, endpointTrustPolicy, nil, &out); err != nil {
		return nil, errors.Wrap(err, "getting aws trust policy")
	}
	return out, nil
}

// PutBatch starts importing the files of source into a dataset. With a dry
// run the returned document is a report on the checked rows.
func (s *Service) PutBatch(ctx context.Context, datasetID string, source Source, format CSVFormat, dryRun DryRun) (map[string]interface{}, error) {
	switch source.(type) {
	case BatchS3Files, *BatchS3Files:
		return nil, errors.Wrap(dfi.ErrNotImplemented, "BatchS3Files cannot be submitted yet, use BatchURLFiles")
	}
	payload := map[string]interface{}{
		"datasetId": datasetID,
		"source":    source.Build(),
		"format":    format.Build(),
	}
	params := url.Values{"dryRun": {dryRun.param()}}
	var out map[string]interface{}
	if err := s.conn.PutJSON(ctx, endpointBatch, params, payload, &out); err != nil {
		return nil, errors.Wrapf(err, "putting batch into %s", datasetID)
	}
	return out, nil
}

// BatchInfo returns what is known about an import batch.
func (s *Service) BatchInfo(ctx context.Context, batchID string) (map[string]interface{}, error) {
	var out map[string]interface{}
	if err := s.conn.GetJSON(ctx, batchPath(batchID), nil, &out); err != nil {
		return nil, errors.Wrapf(err, "getting batch %s", batchID)
	}
	return out, nil
}

// UpdateBatchStatus sets the status of an import batch.
func (s *Service) UpdateBatchStatus(ctx context.Context, batchID, status string) (map[string]interface{}, error) {
	var out map[string]interface{}
	body := map[string]string{"status": status}
	if err := s.conn.PatchJSON(ctx, batchPath(batchID), nil, body, &out); err != nil {
		return nil, errors.Wrapf(err, "updating status of batch %s", batchID)
	}
	return out, nil
}

// AbortBatch stops an in-progress import batch.
func (s *Service) AbortBatch(ctx context.Context, batchID string) (map[string]interface{}, error) {
	return s.UpdateBatchStatus(ctx, batchID, StatusAborted)
}

// BatchStatus returns the chronological status updates of an import batch.
func (s *Service) BatchStatus(ctx context.Context, batchID string) (json.RawMessage, error) {
	var out json.RawMessage
	if err := s.conn.GetJSON(ctx, batchPath(batchID, "status"), nil, &out); err != nil {
		return nil, errors.Wrapf(err, "getting status of batch %s", batchID)
	}
	return out, nil
}
