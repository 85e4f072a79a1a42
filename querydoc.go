package dfi

import (
	"fmt"

	"github.com/pkg/errors"
)

// Query document keys.
const (
	KeyDatasetID    = "datasetId"
	KeyReturn       = "return"
	KeyFilters      = "filters"
	KeyIDs          = "id"
	KeyGeometry     = "geo"
	KeyTime         = "time"
	KeyOnly         = "only"
	KeyFilterFields = "fields"
)

// QueryDocument describes a query: the dataset, how results are returned and
// the spatial, temporal, id and field filters. The zero value is not valid;
// use NewQueryDocument.
type QueryDocument struct {
	datasetID    string
	returnModel  ReturnModel
	uids         []interface{}
	geometry     Geometry
	timeRange    *TimeRange
	only         Only
	filterFields map[string]*FilterField
	fieldOrder   []string
}

// DocOption is a functional option for NewQueryDocument.
type DocOption func(d *QueryDocument) error

// WithUIDs restricts the query to the given entity ids (strings or integers).
func WithUIDs(uids ...interface{}) DocOption {
	return func(d *QueryDocument) error {
		d.SetUIDs(uids)
		return nil
	}
}

// WithGeometry restricts the query to a BBox or Polygon.
func WithGeometry(g Geometry) DocOption {
	return func(d *QueryDocument) error {
		return d.SetGeometry(g)
	}
}

// WithTimeRange restricts the query in time.
func WithTimeRange(tr *TimeRange) DocOption {
	return func(d *QueryDocument) error {
		return d.SetTimeRange(tr)
	}
}

// WithOnly returns only the newest or oldest record per entity.
func WithOnly(o Only) DocOption {
	return func(d *QueryDocument) error {
		return d.SetOnly(o)
	}
}

// WithFilterFields adds filters on Filter Fields.
func WithFilterFields(ffs ...*FilterField) DocOption {
	return func(d *QueryDocument) error {
		return d.SetFilterFields(ffs)
	}
}

// NewQueryDocument returns a validated QueryDocument.
func NewQueryDocument(datasetID string, rm ReturnModel, opts ...DocOption) (*QueryDocument, error) {
	d := &QueryDocument{}
	if err := d.SetDatasetID(datasetID); err != nil {
		return nil, err
	}
	if err := d.SetReturnModel(rm); err != nil {
		return nil, err
	}
	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, err
		}
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// DatasetID returns the dataset being queried.
func (d *QueryDocument) DatasetID() string { return d.datasetID }

// ReturnModel returns how results will be returned.
func (d *QueryDocument) ReturnModel() ReturnModel { return d.returnModel }

// UIDs returns the entity id filter.
func (d *QueryDocument) UIDs() []interface{} { return d.uids }

// Geometry returns the spatial filter.
func (d *QueryDocument) Geometry() Geometry { return d.geometry }

// TimeRange returns the time filter.
func (d *QueryDocument) TimeRange() *TimeRange { return d.timeRange }

// Only returns the newest/oldest filter.
func (d *QueryDocument) Only() Only { return d.only }

// FilterFields returns the field filters in the order they were first set.
func (d *QueryDocument) FilterFields() []*FilterField {
	ret := make([]*FilterField, 0, len(d.fieldOrder))
	for _, name := range d.fieldOrder {
		ret = append(ret, d.filterFields[name])
	}
	return ret
}

// SetDatasetID sets the dataset to query.
func (d *QueryDocument) SetDatasetID(id string) error {
	if err := validateDatasetID(id); err != nil {
		return err
	}
	d.datasetID = id
	return nil
}

// SetReturnModel sets how results are returned. A Count return model cannot
// be combined with an Only filter.
func (d *QueryDocument) SetReturnModel(rm ReturnModel) error {
	if nilReturnModel(rm) {
		return errors.Wrap(ErrInvalidQueryDocument, "QueryDocument must have a return_model")
	}
	if err := validateOnly(d.only, rm); err != nil {
		return err
	}
	d.returnModel = rm
	return nil
}

// SetUIDs sets the entity id filter. A nil slice clears it.
func (d *QueryDocument) SetUIDs(uids []interface{}) {
	d.uids = uids
}

// SetGeometry sets the spatial filter. A nil geometry clears it.
func (d *QueryDocument) SetGeometry(g Geometry) error {
	if g == nil {
		d.geometry = nil
		return nil
	}
	if err := g.Validate(); err != nil {
		return err
	}
	d.geometry = g
	return nil
}

// SetTimeRange sets the time filter. A nil TimeRange clears it.
func (d *QueryDocument) SetTimeRange(tr *TimeRange) error {
	if tr == nil {
		d.timeRange = nil
		return nil
	}
	if err := tr.Validate(); err != nil {
		return err
	}
	d.timeRange = tr
	return nil
}

// SetOnly sets the newest/oldest filter. An empty Only clears it.
func (d *QueryDocument) SetOnly(o Only) error {
	if err := validateOnly(o, d.returnModel); err != nil {
		return err
	}
	d.only = o
	return nil
}

// SetFilterField adds a field filter. A filter with the same name replaces
// the existing one. The API rejects documents with too many fields.
func (d *QueryDocument) SetFilterField(ff *FilterField) error {
	if ff == nil {
		return errors.Wrap(ErrInvalidQueryDocument, "nil filter field")
	}
	if d.filterFields == nil {
		d.filterFields = make(map[string]*FilterField)
	}
	if _, ok := d.filterFields[ff.Name]; !ok {
		d.fieldOrder = append(d.fieldOrder, ff.Name)
	}
	d.filterFields[ff.Name] = ff
	return nil
}

// SetFilterFields adds each field filter in turn. A nil slice removes all
// field filters.
func (d *QueryDocument) SetFilterFields(ffs []*FilterField) error {
	if ffs == nil {
		d.filterFields = nil
		d.fieldOrder = nil
		return nil
	}
	for _, ff := range ffs {
		if err := d.SetFilterField(ff); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks the dataset, the return model and the Only filter.
func (d *QueryDocument) Validate() error {
	if err := validateDatasetID(d.datasetID); err != nil {
		return err
	}
	if nilReturnModel(d.returnModel) {
		return errors.Wrap(ErrInvalidQueryDocument, "QueryDocument must have a return_model")
	}
	return validateOnly(d.only, d.returnModel)
}

// Build validates the document and returns it ready to be JSON encoded.
// encoding/json writes map keys in sorted order.
func (d *QueryDocument) Build() (map[string]interface{}, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	filters := map[string]interface{}{}
	if d.uids != nil {
		filters[KeyIDs] = d.uids
	}
	if d.geometry != nil {
		geo, err := d.geometry.Build()
		if err != nil {
			return nil, errors.Wrap(err, "building geometry")
		}
		filters[KeyGeometry] = geo
	}
	if d.timeRange != nil {
		tr, err := d.timeRange.Build()
		if err != nil {
			return nil, errors.Wrap(err, "building time range")
		}
		filters[KeyTime] = tr
	}
	if d.only != "" {
		filters[KeyOnly] = string(d.only)
	}
	if len(d.filterFields) > 0 {
		fields := make(map[string]interface{}, len(d.filterFields))
		for _, ff := range d.filterFields {
			for k, v := range ff.Build() {
				fields[k] = v
			}
		}
		filters[KeyFilterFields] = fields
	}
	return map[string]interface{}{
		KeyDatasetID: d.datasetID,
		KeyReturn:    d.returnModel.Build(),
		KeyFilters:   filters,
	}, nil
}

func (d *QueryDocument) String() string {
	return fmt.Sprintf("QueryDocument(dataset_id=%s, uids=%v, geometry=%v, time_range=%v, filter_fields=%v, only=%s, return_model=%v)",
		d.datasetID, d.uids, d.geometry, d.timeRange, d.FilterFields(), d.only, d.returnModel)
}

func nilReturnModel(rm ReturnModel) bool {
	switch r := rm.(type) {
	case nil:
		return true
	case *Records:
		return r == nil
	case *Count:
		return r == nil
	}
	return false
}

func validateDatasetID(id string) error {
	if id == "" {
		return errors.Wrap(ErrInvalidQueryDocument, "QueryDocument must have a dataset_id")
	}
	return nil
}

func validateOnly(o Only, rm ReturnModel) error {
	if o == "" {
		return nil
	}
	if _, err := ParseOnly(string(o)); err != nil {
		return err
	}
	switch rm.(type) {
	case Records, *Records:
		return nil
	case nil:
		return nil
	}
	return errors.Wrapf(ErrInvalidQueryDocument, "'%s' filter is only valid combined with a 'records' return_model", o)
}
