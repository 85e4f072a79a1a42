// Package pretty writes API responses for people: as tables rendered with
// go-pretty, or as indented JSON.
package pretty

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/jedib0t/go-pretty/table"
	"github.com/jedib0t/go-pretty/text"
	"github.com/pkg/errors"
)

const nullValue = "null"

// JSON writes v as indented JSON followed by a newline.
func JSON(w io.Writer, v interface{}) error {
	bs, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encoding response")
	}
	_, err = fmt.Fprintln(w, string(bs))
	return errors.Wrap(err, "writing response")
}

// Table writes rows under header. Nested values are written as JSON.
func Table(w io.Writer, header []string, rows [][]interface{}) error {
	t := table.NewWriter()
	t.SetOutputMirror(w)

	// Don't uppercase the header values.
	t.Style().Format.Header = text.FormatDefault

	hr := make(table.Row, len(header))
	for i, h := range header {
		hr[i] = h
	}
	t.AppendHeader(hr)
	for _, row := range rows {
		r := make(table.Row, len(row))
		for i, v := range row {
			r[i] = cell(v)
		}
		t.AppendRow(r)
	}
	t.Render()
	return nil
}

// cell formats v for a table: go-pretty doesn't expect nil values, and maps
// and slices print better as JSON.
func cell(v interface{}) interface{} {
	switch v := v.(type) {
	case nil:
		return nullValue
	case string, bool, int, int64, float64:
		return v
	default:
		bs, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(bs)
	}
}

// Object writes m as a two column table of keys and values, sorted by key.
func Object(w io.Writer, m map[string]interface{}) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	rows := make([][]interface{}, len(keys))
	for i, k := range keys {
		rows[i] = []interface{}{k, m[k]}
	}
	return Table(w, []string{"key", "value"}, rows)
}

// Objects writes one row per element of ms. The columns are the union of
// their keys; cols, when given, come first in that order.
func Objects(w io.Writer, ms []map[string]interface{}, cols ...string) error {
	seen := make(map[string]bool)
	header := make([]string, 0, len(cols))
	for _, c := range cols {
		seen[c] = true
		header = append(header, c)
	}
	var rest []string
	for _, m := range ms {
		for k := range m {
			if !seen[k] {
				seen[k] = true
				rest = append(rest, k)
			}
		}
	}
	sort.Strings(rest)
	header = append(header, rest...)
	rows := make([][]interface{}, len(ms))
	for i, m := range ms {
		row := make([]interface{}, len(header))
		for j, h := range header {
			row[j] = m[h]
		}
		rows[i] = row
	}
	return Table(w, header, rows)
}
