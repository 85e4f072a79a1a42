// Package datasets manages DFI datasets: their definitions, schemas and
// permissions.
package datasets

import (
	"bytes"
	"context"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/url"
	"time"

	"github.com/apache/arrow/go/v10/arrow"
	"github.com/apache/arrow/go/v10/arrow/ipc"
	"github.com/generalsystem/dfi"
	"github.com/generalsystem/dfi/connect"
	"github.com/pkg/errors"
)

const endpointDatasets = "v1/datasets"

// SchemaType selects which fields a dataset schema includes.
type SchemaType string

// Valid schema types.
const (
	SchemaFull             SchemaType = "full"
	SchemaCore             SchemaType = "core"
	SchemaWithMetadataID   SchemaType = "withMetadataId"
	SchemaWithFilterFields SchemaType = "withFilterFields"
)

// ParseSchemaType returns the SchemaType named by s. The empty string is
// SchemaFull.
func ParseSchemaType(s string) (SchemaType, error) {
	switch st := SchemaType(s); st {
	case "":
		return SchemaFull, nil
	case SchemaFull, SchemaCore, SchemaWithMetadataID, SchemaWithFilterFields:
		return st, nil
	}
	return "", errors.Wrapf(dfi.ErrInputValue, "'%s' is not a valid schema type", s)
}

// Dataset is a dataset definition as sent to and returned by the API. The
// id of a created dataset is under "id".
type Dataset map[string]interface{}

// Permission grants an identity, or everyone, access to a dataset.
type Permission struct {
	Type       string `json:"type"`
	Scope      string `json:"scope"`
	IdentityID string `json:"identityId,omitempty"`
}

// SchemaCache stores Filter Field schemas between calls to
// Service.FilterFieldSchema.
type SchemaCache interface {
	Get(datasetID string) (dfi.Schema, bool, error)
	Put(datasetID string, schema dfi.Schema) error
}

// Service sends dataset requests through a Connect.
type Service struct {
	conn  *connect.Connect
	cache SchemaCache
}

// New returns a datasets Service.
func New(conn *connect.Connect) *Service {
	return &Service{conn: conn}
}

// SetSchemaCache makes FilterFieldSchema consult and fill c.
func (s *Service) SetSchemaCache(c SchemaCache) {
	s.cache = c
}

func (s *Service) String() string {
	return fmt.Sprintf("Datasets(conn=%v)", s.conn)
}

func datasetPath(id string, parts ...string) string {
	p := endpointDatasets + "/" + url.PathEscape(id)
	for _, part := range parts {
		p += "/" + part
	}
	return p
}

// Create creates an empty dataset. Admin only.
func (s *Service) Create(ctx context.Context, dataset Dataset) (Dataset, error) {
	var out Dataset
	if err := s.conn.PostJSON(ctx, endpointDatasets, nil, dataset, &out); err != nil {
		return nil, errors.Wrap(err, "creating dataset")
	}
	return out, nil
}

// Find lists datasets. An empty name, nil before and zero limit are not
// sent.
func (s *Service) Find(ctx context.Context, name string, before *time.Time, limit int) ([]Dataset, error) {
	var lim *int
	if limit > 0 {
		lim = &limit
	}
	params := connect.Params("name", name, "before", before, "limit", lim)
	var out []Dataset
	if err := s.conn.GetJSON(ctx, endpointDatasets, params, &out); err != nil {
		return nil, errors.Wrap(err, "finding datasets")
	}
	return out, nil
}

// FindByID returns the definition of a dataset.
func (s *Service) FindByID(ctx context.Context, datasetID string) (Dataset, error) {
	var out Dataset
	if err := s.conn.GetJSON(ctx, datasetPath(datasetID), nil, &out); err != nil {
		return nil, errors.Wrapf(err, "getting dataset %s", datasetID)
	}
	return out, nil
}

// Update patches a dataset with the given partial definition. Admin only.
func (s *Service) Update(ctx context.Context, datasetID string, dataset Dataset) (Dataset, error) {
	var out Dataset
	if err := s.conn.PatchJSON(ctx, datasetPath(datasetID), nil, dataset, &out); err != nil {
		return nil, errors.Wrapf(err, "updating dataset %s", datasetID)
	}
	return out, nil
}

// Delete deletes a dataset. Admin only.
func (s *Service) Delete(ctx context.Context, datasetID string) error {
	err := s.conn.DeleteJSON(ctx, datasetPath(datasetID), nil, nil, nil)
	return errors.Wrapf(err, "deleting dataset %s", datasetID)
}

// Permissions lists the permissions on a dataset.
func (s *Service) Permissions(ctx context.Context, datasetID string) ([]Permission, error) {
	var out []Permission
	if err := s.conn.GetJSON(ctx, datasetPath(datasetID, "permissions"), nil, &out); err != nil {
		return nil, errors.Wrapf(err, "getting permissions of %s", datasetID)
	}
	return out, nil
}

// AddPermissions grants permissions on a dataset and returns those added.
// Admin only.
func (s *Service) AddPermissions(ctx context.Context, datasetID string, perms []Permission) ([]Permission, error) {
	var out []Permission
	if err := s.conn.PostJSON(ctx, datasetPath(datasetID, "permissions"), nil, perms, &out); err != nil {
		return nil, errors.Wrapf(err, "adding permissions to %s", datasetID)
	}
	return out, nil
}

// DeletePermissions removes permissions that match perms exactly and returns
// those removed. Admin only.
func (s *Service) DeletePermissions(ctx context.Context, datasetID string, perms []Permission) ([]Permission, error) {
	var out []Permission
	if err := s.conn.DeleteJSON(ctx, datasetPath(datasetID, "permissions"), nil, perms, &out); err != nil {
		return nil, errors.Wrapf(err, "deleting permissions from %s", datasetID)
	}
	return out, nil
}

// MyPermissions lists the current identity's permissions on a dataset.
func (s *Service) MyPermissions(ctx context.Context, datasetID string) ([]Permission, error) {
	var out []Permission
	if err := s.conn.GetJSON(ctx, datasetPath(datasetID, "permissions", "me"), nil, &out); err != nil {
		return nil, errors.Wrapf(err, "getting my permissions on %s", datasetID)
	}
	return out, nil
}

// Schema returns the dataset's schema as JSON.
func (s *Service) Schema(ctx context.Context, datasetID string, st SchemaType) (map[string]interface{}, error) {
	var out map[string]interface{}
	params := url.Values{"type": {string(st)}}
	if err := s.conn.GetJSON(ctx, datasetPath(datasetID, "schema"), params, &out); err != nil {
		return nil, errors.Wrapf(err, "getting schema of %s", datasetID)
	}
	return out, nil
}

// SchemaFeather returns the dataset's schema decoded from the Arrow feather
// file the API sends.
func (s *Service) SchemaFeather(ctx context.Context, datasetID string, st SchemaType) (*arrow.Schema, error) {
	resp, err := s.conn.Do(ctx, connect.Request{
		Method:   http.MethodGet,
		Endpoint: datasetPath(datasetID, "schema"),
		Params:   url.Values{"type": {string(st)}},
		Header:   http.Header{"Accept": {"application/feather"}},
	})
	if err != nil {
		return nil, errors.Wrapf(err, "getting feather schema of %s", datasetID)
	}
	defer resp.Body.Close()
	body, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "reading feather schema")
	}
	r, err := ipc.NewFileReader(bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "decoding feather schema")
	}
	defer r.Close()
	return r.Schema(), nil
}

// FilterFieldSchema returns the Filter Field schema of a dataset, suitable
// for validating dfi.FilterField values. It is served from the schema cache
// when one is set.
func (s *Service) FilterFieldSchema(ctx context.Context, datasetID string) (dfi.Schema, error) {
	if s.cache != nil {
		schema, ok, err := s.cache.Get(datasetID)
		if err != nil {
			s.conn.Logger().Printf("reading schema cache: %v", err)
		} else if ok {
			return schema, nil
		}
	}
	var def struct {
		DataDescription struct {
			MetadataSchema dfi.Schema `json:"metadataSchema"`
		} `json:"dataDescription"`
	}
	if err := s.conn.GetJSON(ctx, datasetPath(datasetID), nil, &def); err != nil {
		return nil, errors.Wrapf(err, "getting filter field schema of %s", datasetID)
	}
	schema := def.DataDescription.MetadataSchema
	if schema == nil {
		schema = dfi.Schema{}
	}
	if s.cache != nil {
		if err := s.cache.Put(datasetID, schema); err != nil {
			s.conn.Logger().Printf("writing schema cache: %v", err)
		}
	}
	return schema, nil
}

// AddEnums merges new values into enum fields of the dataset's metadata
// schema and returns the updated schema.
func (s *Service) AddEnums(ctx context.Context, datasetID string, enums dfi.Schema) (map[string]interface{}, error) {
	var out map[string]interface{}
	if err := s.conn.PostJSON(ctx, datasetPath(datasetID, "schema", "values"), nil, enums, &out); err != nil {
		return nil, errors.Wrapf(err, "adding enum values to %s", datasetID)
	}
	return out, nil
}
