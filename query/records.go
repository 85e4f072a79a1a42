package query

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/apache/arrow/go/v10/arrow"
	"github.com/apache/arrow/go/v10/arrow/array"
	"github.com/apache/arrow/go/v10/arrow/memory"
	"github.com/pkg/errors"
)

// Record columns.
const (
	ColumnID         = "id"
	ColumnCoordinate = "coordinate"
	ColumnTime       = "time"
	ColumnMetadataID = "metadataId"
	ColumnFields     = "fields"
)

// Record is one record returned by a records query.
type Record struct {
	ID         string
	Coordinate []float64
	Time       time.Time
	MetadataID string
	Fields     map[string]interface{}

	hasMetadataID bool
	hasFields     bool
}

type jsonRecord struct {
	ID         json.RawMessage        `json:"id"`
	Coordinate []float64              `json:"coordinate"`
	Time       string                 `json:"time"`
	MetadataID *string                `json:"metadataId"`
	Fields     map[string]interface{} `json:"fields"`
}

// UnmarshalJSON decodes a record as streamed by the API. Entity ids may be
// strings or numbers and are kept as strings.
func (r *Record) UnmarshalJSON(data []byte) error {
	var jr jsonRecord
	if err := json.Unmarshal(data, &jr); err != nil {
		return err
	}
	if len(jr.ID) > 0 && jr.ID[0] == '"' {
		if err := json.Unmarshal(jr.ID, &r.ID); err != nil {
			return errors.Wrap(err, "decoding id")
		}
	} else {
		r.ID = string(jr.ID)
	}
	r.Coordinate = jr.Coordinate
	if jr.Time != "" {
		t, err := time.Parse(time.RFC3339Nano, jr.Time)
		if err != nil {
			return errors.Wrapf(err, "parsing time of record %s", r.ID)
		}
		r.Time = t
	}
	if jr.MetadataID != nil {
		r.MetadataID = *jr.MetadataID
		r.hasMetadataID = true
	}
	if jr.Fields != nil {
		r.Fields = jr.Fields
		r.hasFields = true
	}
	return nil
}

// MarshalJSON encodes the record the way the API streams it.
func (r Record) MarshalJSON() ([]byte, error) {
	out := map[string]interface{}{
		ColumnID:         r.ID,
		ColumnCoordinate: r.Coordinate,
		ColumnTime:       r.Time.UTC().Format("2006-01-02T15:04:05.000Z"),
	}
	if r.hasMetadataID || r.MetadataID != "" {
		out[ColumnMetadataID] = r.MetadataID
	}
	if r.hasFields || r.Fields != nil {
		out[ColumnFields] = r.Fields
	}
	return json.Marshal(out)
}

// RecordSet holds the result of a records query. Columns always start with
// id, coordinate and time, even when there are no records, followed by
// metadataId and fields when any record carries them.
type RecordSet struct {
	Columns []string
	Records []Record
}

func newRecordSet() *RecordSet {
	return &RecordSet{Columns: []string{ColumnID, ColumnCoordinate, ColumnTime}}
}

// add appends records and extends the column list.
func (rs *RecordSet) add(recs []Record) {
	for _, r := range recs {
		if r.hasMetadataID {
			rs.addColumn(ColumnMetadataID)
		}
		if r.hasFields {
			rs.addColumn(ColumnFields)
		}
	}
	rs.Records = append(rs.Records, recs...)
}

func (rs *RecordSet) addColumn(name string) {
	if rs.HasColumn(name) {
		return
	}
	rs.Columns = append(rs.Columns, name)
}

// HasColumn reports whether the set has the named column.
func (rs *RecordSet) HasColumn(name string) bool {
	for _, c := range rs.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// Len returns the number of records.
func (rs *RecordSet) Len() int { return len(rs.Records) }

// Schema returns the arrow schema Table uses: the coordinate is split in
// longitude, latitude and, when present, altitude; time is a UTC millisecond
// timestamp; fields are JSON text.
func (rs *RecordSet) Schema() *arrow.Schema {
	fields := []arrow.Field{
		{Name: ColumnID, Type: arrow.BinaryTypes.String},
		{Name: "longitude", Type: arrow.PrimitiveTypes.Float64},
		{Name: "latitude", Type: arrow.PrimitiveTypes.Float64},
	}
	if rs.hasAltitude() {
		fields = append(fields, arrow.Field{Name: "altitude", Type: arrow.PrimitiveTypes.Float64, Nullable: true})
	}
	fields = append(fields, arrow.Field{Name: ColumnTime, Type: arrow.FixedWidthTypes.Timestamp_ms})
	if rs.HasColumn(ColumnMetadataID) {
		fields = append(fields, arrow.Field{Name: ColumnMetadataID, Type: arrow.BinaryTypes.String, Nullable: true})
	}
	if rs.HasColumn(ColumnFields) {
		fields = append(fields, arrow.Field{Name: ColumnFields, Type: arrow.BinaryTypes.String, Nullable: true})
	}
	return arrow.NewSchema(fields, nil)
}

func (rs *RecordSet) hasAltitude() bool {
	for _, r := range rs.Records {
		if len(r.Coordinate) > 2 {
			return true
		}
	}
	return false
}

// Table converts the set to an arrow record. The caller must Release it.
func (rs *RecordSet) Table() (arrow.Record, error) {
	schema := rs.Schema()
	b := array.NewRecordBuilder(memory.NewGoAllocator(), schema)
	defer b.Release()

	for _, r := range rs.Records {
		if len(r.Coordinate) < 2 {
			return nil, errors.Errorf("record %s has coordinate %v", r.ID, r.Coordinate)
		}
		col := 0
		b.Field(col).(*array.StringBuilder).Append(r.ID)
		col++
		b.Field(col).(*array.Float64Builder).Append(r.Coordinate[0])
		col++
		b.Field(col).(*array.Float64Builder).Append(r.Coordinate[1])
		col++
		if rs.hasAltitude() {
			if len(r.Coordinate) > 2 {
				b.Field(col).(*array.Float64Builder).Append(r.Coordinate[2])
			} else {
				b.Field(col).(*array.Float64Builder).AppendNull()
			}
			col++
		}
		b.Field(col).(*array.TimestampBuilder).Append(arrow.Timestamp(r.Time.UnixMilli()))
		col++
		if rs.HasColumn(ColumnMetadataID) {
			if r.hasMetadataID {
				b.Field(col).(*array.StringBuilder).Append(r.MetadataID)
			} else {
				b.Field(col).(*array.StringBuilder).AppendNull()
			}
			col++
		}
		if rs.HasColumn(ColumnFields) {
			if r.Fields == nil {
				b.Field(col).(*array.StringBuilder).AppendNull()
			} else {
				bs, err := json.Marshal(r.Fields)
				if err != nil {
					return nil, errors.Wrapf(err, "encoding fields of record %s", r.ID)
				}
				b.Field(col).(*array.StringBuilder).Append(string(bs))
			}
		}
	}
	return b.NewRecord(), nil
}

// Row returns record i as strings in column order, for display.
func (rs *RecordSet) Row(i int) []string {
	r := rs.Records[i]
	row := []string{r.ID, coordString(r.Coordinate), r.Time.UTC().Format(time.RFC3339Nano)}
	for _, c := range rs.Columns[3:] {
		switch c {
		case ColumnMetadataID:
			row = append(row, r.MetadataID)
		case ColumnFields:
			bs, _ := json.Marshal(r.Fields)
			row = append(row, string(bs))
		}
	}
	return row
}

func coordString(c []float64) string {
	s := "["
	for i, f := range c {
		if i > 0 {
			s += ", "
		}
		s += strconv.FormatFloat(f, 'f', -1, 64)
	}
	return s + "]"
}
