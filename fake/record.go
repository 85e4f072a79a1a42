// Package fake provides an in-process DFI API for tests and demos: a
// generator of realistic records and an httptest server that answers the
// client's endpoints with scripted JSON and event streams.
package fake

import (
	"fmt"
	"time"

	"github.com/generalsystem/dfi/fake/gen"
)

// Record is a record as the DFI API streams it back from a records query.
type Record struct {
	ID         string                 `json:"id"`
	Coordinate [2]float64             `json:"coordinate"`
	Time       string                 `json:"time"`
	MetadataID string                 `json:"metadataId,omitempty"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
}

// RecordGenerator generates random records inside a bounding box. A few
// entities produce most of the records, and each entity's records move
// forward in time.
type RecordGenerator struct {
	g        *gen.Generator
	start    time.Time
	entities int
	minLon   float64
	minLat   float64
	maxLon   float64
	maxLat   float64
	n        int
}

// NewRecordGenerator gets a new RecordGenerator producing records for up to
// entities distinct ids, starting at start, inside the given box.
func NewRecordGenerator(seed int64, entities int, start time.Time, minLon, minLat, maxLon, maxLat float64) *RecordGenerator {
	return &RecordGenerator{
		g:        gen.NewGenerator(seed),
		start:    start,
		entities: entities,
		minLon:   minLon,
		minLat:   minLat,
		maxLon:   maxLon,
		maxLat:   maxLat,
	}
}

var vehicles = []string{"car", "bike", "bus", "truck", "van", "scooter"}

// Record generates a random record.
func (r *RecordGenerator) Record() Record {
	r.n++
	return Record{
		ID:         r.g.ID(12, r.entities),
		Coordinate: [2]float64{r.g.Float(r.minLon, r.maxLon), r.g.Float(r.minLat, r.maxLat)},
		Time:       r.g.Time(r.start, 5*time.Second).UTC().Format("2006-01-02T15:04:05.000Z"),
		MetadataID: fmt.Sprintf("meta-%d", r.n),
		Fields: map[string]interface{}{
			"speed":   r.g.Uint64(120),
			"vehicle": vehicles[r.g.Uint64(len(vehicles))],
		},
	}
}

// Records generates n random records.
func (r *RecordGenerator) Records(n int) []Record {
	ret := make([]Record, n)
	for i := range ret {
		ret[i] = r.Record()
	}
	return ret
}
