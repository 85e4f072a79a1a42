package dfi_test

import (
	"testing"

	"github.com/generalsystem/dfi"
	"github.com/generalsystem/dfi/test"
)

func TestQueryDocumentBuild(t *testing.T) {
	bbox, err := dfi.NewBBoxFromCorners(-1, -1, 1, 1)
	test.ErrNil(t, err, "bbox")
	tr, err := dfi.NewTimeRangeFromStrings("2022-01-01T00:00:00Z", "")
	test.ErrNil(t, err, "time range")
	speed, err := dfi.NewFilterField("speed", dfi.SignedNumber, 10, dfi.OpGT, false, nil)
	test.ErrNil(t, err, "filter field")

	doc, err := dfi.NewQueryDocument("ds-1",
		dfi.Records{Include: []dfi.IncludeField{dfi.IncludeMetadataID}},
		dfi.WithUIDs("a", 2),
		dfi.WithGeometry(bbox),
		dfi.WithTimeRange(tr),
		dfi.WithOnly(dfi.Newest),
		dfi.WithFilterFields(speed),
	)
	test.ErrNil(t, err, "NewQueryDocument")
	built, err := doc.Build()
	test.ErrNil(t, err, "Build")
	test.JSONEq(t, `{
		"datasetId": "ds-1",
		"return": {"type": "records", "include": ["metadataId"]},
		"filters": {
			"id": ["a", 2],
			"geo": {"type": "BoundingBox", "bounds": [-1, -1, 1, 1]},
			"time": {"minTime": "2022-01-01T00:00:00Z", "maxTime": null},
			"only": "newest",
			"fields": {"speed": {"gt": 10}}
		}
	}`, built, "document")
}

func TestQueryDocumentEmptyFilters(t *testing.T) {
	doc, err := dfi.NewQueryDocument("ds-1", dfi.Count{})
	test.ErrNil(t, err, "NewQueryDocument")
	built, err := doc.Build()
	test.ErrNil(t, err, "Build")
	test.JSONEq(t, `{"datasetId":"ds-1","return":{"type":"count"},"filters":{}}`, built, "document")

	doc.SetReturnModel(dfi.Count{GroupBy: dfi.GroupByUniqueID})
	built, err = doc.Build()
	test.ErrNil(t, err, "Build grouped")
	test.JSONEq(t, `{"datasetId":"ds-1","return":{"type":"count","groupBy":{"type":"uniqueId"}},"filters":{}}`, built, "grouped")
}

func TestQueryDocumentInvalid(t *testing.T) {
	_, err := dfi.NewQueryDocument("", dfi.Count{})
	test.ErrCause(t, dfi.ErrInvalidQueryDocument, err, "no dataset")

	_, err = dfi.NewQueryDocument("ds", nil)
	test.ErrCause(t, dfi.ErrInvalidQueryDocument, err, "no return model")

	_, err = dfi.NewQueryDocument("ds", dfi.Count{}, dfi.WithOnly(dfi.Oldest))
	test.ErrCause(t, dfi.ErrInvalidQueryDocument, err, "only with count")

	_, err = dfi.NewQueryDocument("ds", dfi.Records{}, dfi.WithOnly("middle"))
	test.ErrCause(t, dfi.ErrInvalidQueryDocument, err, "bad only")

	doc, err := dfi.NewQueryDocument("ds", dfi.Records{}, dfi.WithOnly(dfi.Oldest))
	test.ErrNil(t, err, "only with records")
	err = doc.SetReturnModel(dfi.Count{})
	test.ErrCause(t, dfi.ErrInvalidQueryDocument, err, "switch to count")
}

func TestQueryDocumentFilterFieldOverwrite(t *testing.T) {
	doc, err := dfi.NewQueryDocument("ds", dfi.Records{})
	test.ErrNil(t, err, "NewQueryDocument")
	test.ErrNil(t, doc.SetFilterField(&dfi.FilterField{Name: "speed", Type: dfi.SignedNumber, Value: 1, Operation: dfi.OpGT}), "speed")
	test.ErrNil(t, doc.SetFilterField(&dfi.FilterField{Name: "addr", Type: dfi.IP, Value: "1.1.1.1", Operation: dfi.OpEQ}), "addr")
	test.ErrNil(t, doc.SetFilterField(&dfi.FilterField{Name: "speed", Type: dfi.SignedNumber, Value: 5, Operation: dfi.OpLT}), "speed again")

	ffs := doc.FilterFields()
	if len(ffs) != 2 || ffs[0].Name != "speed" || ffs[1].Name != "addr" {
		t.Fatalf("unexpected filter fields %v", ffs)
	}
	test.MustBe(t, 5, ffs[0].Value, "overwritten value")

	test.ErrNil(t, doc.SetFilterFields(nil), "clear")
	if len(doc.FilterFields()) != 0 {
		t.Fatalf("expected filter fields to be cleared")
	}
}

func TestQueryDocumentInvalidGeometry(t *testing.T) {
	_, err := dfi.NewQueryDocument("ds", dfi.Records{}, dfi.WithGeometry(&dfi.BBox{MinLon: 1, MaxLon: 0, MinLat: 0, MaxLat: 1}))
	test.ErrCause(t, dfi.ErrBBoxLongitudeMismatch, err, "bad bbox")
}

func TestQueryDocumentNilParts(t *testing.T) {
	_, err := dfi.NewQueryDocument("ds", dfi.Count{}, dfi.WithFilterFields(nil))
	test.ErrCause(t, dfi.ErrInvalidQueryDocument, err, "nil filter field")

	doc, err := dfi.NewQueryDocument("ds", dfi.Count{})
	test.ErrNil(t, err, "NewQueryDocument")
	test.ErrCause(t, dfi.ErrInvalidQueryDocument, doc.SetFilterField(nil), "SetFilterField")

	var recs *dfi.Records
	_, err = dfi.NewQueryDocument("ds", recs)
	test.ErrCause(t, dfi.ErrInvalidQueryDocument, err, "nil *Records")
	test.ErrCause(t, dfi.ErrInvalidQueryDocument, doc.SetReturnModel(recs), "SetReturnModel nil *Records")
	var count *dfi.Count
	test.ErrCause(t, dfi.ErrInvalidQueryDocument, doc.SetReturnModel(count), "SetReturnModel nil *Count")

	built, err := doc.Build()
	test.ErrNil(t, err, "Build")
	test.JSONEq(t, `{"type":"count"}`, built["return"], "return model kept")
}
