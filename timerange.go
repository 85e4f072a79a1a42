package dfi

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// zonedLayouts and localLayouts are the ISO 8601 forms accepted by
// NewTimeRangeFromStrings. Times parsed with a local layout carry no zone
// and fail validation when the other bound is set.
var (
	zonedLayouts = []string{
		time.RFC3339Nano,
		"2006-01-02 15:04:05.999999999Z07:00",
	}
	localLayouts = []string{
		localISO,
		"2006-01-02 15:04:05.999999999",
		"2006-01-02",
	}
)

// TimeRange bounds a query in time. A nil bound leaves time unbounded in that
// direction, i.e. it expands to the first or last record in the dataset.
type TimeRange struct {
	Min *time.Time
	Max *time.Time

	minZoneless bool
	maxZoneless bool
}

// NewTimeRange returns a validated TimeRange from the given bounds.
func NewTimeRange(min, max *time.Time) (*TimeRange, error) {
	tr := &TimeRange{Min: min, Max: max}
	if err := tr.Validate(); err != nil {
		return nil, err
	}
	return tr, nil
}

// NewTimeRangeFromStrings returns a validated TimeRange from ISO 8601
// strings. An empty string leaves that bound open.
func NewTimeRangeFromStrings(min, max string) (*TimeRange, error) {
	tr := &TimeRange{}
	var err error
	if tr.Min, tr.minZoneless, err = parseISO(min); err != nil {
		return nil, errors.Wrap(err, "parsing min time")
	}
	if tr.Max, tr.maxZoneless, err = parseISO(max); err != nil {
		return nil, errors.Wrap(err, "parsing max time")
	}
	if err := tr.Validate(); err != nil {
		return nil, err
	}
	return tr, nil
}

// NewTimeRangeFromMillis returns a validated TimeRange from Unix epoch
// milliseconds, expressed in loc (UTC when loc is nil).
func NewTimeRangeFromMillis(min, max *int64, loc *time.Location) (*TimeRange, error) {
	if loc == nil {
		loc = time.UTC
	}
	tr := &TimeRange{}
	if min != nil {
		t := time.UnixMilli(*min).In(loc)
		tr.Min = &t
	}
	if max != nil {
		t := time.UnixMilli(*max).In(loc)
		tr.Max = &t
	}
	if err := tr.Validate(); err != nil {
		return nil, err
	}
	return tr, nil
}

func parseISO(s string) (*time.Time, bool, error) {
	if s == "" {
		return nil, false, nil
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, false, nil
		}
	}
	for _, layout := range localLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, true, nil
		}
	}
	return nil, false, errors.Wrapf(ErrInputValue, "'%s' is not an ISO 8601 time", s)
}

// Validate checks the bounds are ordered and zoned.
func (tr *TimeRange) Validate() error {
	if tr == nil {
		return ErrTimeRangeUndefined
	}
	if tr.Min != nil && tr.Max != nil {
		if tr.Min.After(*tr.Max) {
			return errors.Wrapf(ErrTimeRangeMismatch, "%s is after %s", tr.Min.Format(time.RFC3339Nano), tr.Max.Format(time.RFC3339Nano))
		}
		if tr.minZoneless || tr.maxZoneless {
			return ErrTimeZoneUndefined
		}
	}
	return nil
}

// Build validates the TimeRange and formats it for a query document. Open
// bounds are encoded as null.
func (tr *TimeRange) Build() (map[string]interface{}, error) {
	if err := tr.Validate(); err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"minTime": isoOrNil(tr.Min, tr.minZoneless),
		"maxTime": isoOrNil(tr.Max, tr.maxZoneless),
	}, nil
}

// localISO formats a time that was given without a zone, so that no offset
// is claimed for it.
const localISO = "2006-01-02T15:04:05.999999999"

func isoOrNil(t *time.Time, zoneless bool) interface{} {
	if t == nil {
		return nil
	}
	if zoneless {
		return t.Format(localISO)
	}
	return t.Format(time.RFC3339Nano)
}

func (tr *TimeRange) String() string {
	return fmt.Sprintf("TimeRange(%v, %v)", isoOrNil(tr.Min, tr.minZoneless), isoOrNil(tr.Max, tr.maxZoneless))
}
