package dfi

import (
	"fmt"

	"github.com/pkg/errors"
)

// Only restricts a records query to the newest or oldest record of each
// entity.
type Only string

// Valid Only filters.
const (
	Newest Only = "newest"
	Oldest Only = "oldest"
)

// ParseOnly returns the Only filter named by s.
func ParseOnly(s string) (Only, error) {
	switch o := Only(s); o {
	case Newest, Oldest:
		return o, nil
	}
	return "", errors.Wrapf(ErrInvalidQueryDocument, "'%s' is not a valid 'Only' filter", s)
}

// IncludeField is an extra field returned alongside records.
type IncludeField string

// Valid include fields.
const (
	IncludeFields     IncludeField = "fields"
	IncludeMetadataID IncludeField = "metadataId"
)

// ParseIncludeField returns the IncludeField named by s.
func ParseIncludeField(s string) (IncludeField, error) {
	switch f := IncludeField(s); f {
	case IncludeFields, IncludeMetadataID:
		return f, nil
	}
	return "", errors.Wrapf(ErrInputValue, "%s is not a valid IncludeField", s)
}

// GroupBy groups count results.
type GroupBy string

// GroupByUniqueID counts records per entity id.
const GroupByUniqueID GroupBy = "uniqueId"

// ReturnModel describes how query results are returned.
type ReturnModel interface {
	Build() map[string]interface{}
	fmt.Stringer
}

// Count returns the number of matching records, optionally grouped.
type Count struct {
	GroupBy GroupBy
}

// Build formats the return model for a query document.
func (c Count) Build() map[string]interface{} {
	ret := map[string]interface{}{"type": "count"}
	if c.GroupBy != "" {
		ret["groupBy"] = map[string]interface{}{"type": string(c.GroupBy)}
	}
	return ret
}

func (c Count) String() string {
	return fmt.Sprintf("Count(groupby=%s)", c.GroupBy)
}

// Records returns the matching records themselves.
type Records struct {
	Include []IncludeField
}

// Build formats the return model for a query document.
func (r Records) Build() map[string]interface{} {
	ret := map[string]interface{}{"type": "records"}
	if len(r.Include) > 0 {
		include := make([]string, len(r.Include))
		for i, f := range r.Include {
			include[i] = string(f)
		}
		ret["include"] = include
	}
	return ret
}

func (r Records) String() string {
	return fmt.Sprintf("Records(include=%v)", r.Include)
}
