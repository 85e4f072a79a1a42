// Package sql translates a small subset of SQL into DFI query documents:
//
//	SELECT count | records | metadataId | fields | *
//	FROM <dataset>
//	[WHERE <condition> [AND <condition> ...]]
//	[GROUP BY uniqueId]
//
// A condition is a field comparison (=, !=, <>, <, >, >=, <=), "id = x",
// "x BETWEEN a AND b", "x OUTSIDE a AND b", "time BETWEEN a AND b" or a WKT
// "polygon((x y, ...))".
package sql

import (
	"strconv"
	"strings"
	"time"

	"github.com/generalsystem/dfi"
	"github.com/pkg/errors"
)

// Translate turns a single SQL statement into a query document ready for
// query.Service.RawRequest.
func Translate(statement string) (map[string]interface{}, error) {
	statements := strings.Split(statement, ";")
	for _, extra := range statements[1:] {
		if strings.TrimSpace(extra) != "" {
			return nil, errors.Wrap(dfi.ErrInvalidQueryDocument, "only a single sql statement is supported")
		}
	}
	tokens := tokenise(statements[0])
	if len(tokens) == 0 {
		return nil, errors.Wrap(dfi.ErrInvalidQueryDocument, "empty sql statement")
	}
	t := &translator{
		ret:     map[string]interface{}{},
		filters: map[string]interface{}{},
	}
	switch kw := strings.ToLower(tokens[0]); kw {
	case "select":
		if err := t.parseSelect(tokens[1:]); err != nil {
			return nil, err
		}
	default:
		return nil, errors.Wrapf(dfi.ErrInvalidQueryDocument, "unknown first keyword: %s", kw)
	}
	return t.build()
}

// tokenise splits on whitespace and joins back the pieces of a single
// quoted string that contained whitespace.
func tokenise(statement string) []string {
	fields := strings.Fields(statement)
	tokens := make([]string, 0, len(fields))
	for i := 0; i < len(fields); i++ {
		tok := fields[i]
		for strings.Count(tok, "'")%2 == 1 && i+1 < len(fields) {
			i++
			tok += " " + fields[i]
		}
		tokens = append(tokens, tok)
	}
	return tokens
}

type translator struct {
	datasetID string
	ret       map[string]interface{}
	filters   map[string]interface{}
}

func (t *translator) build() (map[string]interface{}, error) {
	if t.datasetID == "" {
		return nil, errors.Wrap(dfi.ErrInvalidQueryDocument, "sql query has not generated a valid query document")
	}
	doc := map[string]interface{}{
		dfi.KeyDatasetID: t.datasetID,
	}
	if len(t.ret) > 0 {
		doc[dfi.KeyReturn] = t.ret
	}
	if len(t.filters) > 0 {
		doc[dfi.KeyFilters] = t.filters
	}
	return doc, nil
}

func (t *translator) include(f dfi.IncludeField) {
	inc, _ := t.ret["include"].([]string)
	for _, have := range inc {
		if have == string(f) {
			return
		}
	}
	t.ret["include"] = append(inc, string(f))
}

func (t *translator) parseSelect(tokens []string) error {
	i := 0
	var columns []string
	for ; i < len(tokens) && !strings.EqualFold(tokens[i], "from"); i++ {
		for _, c := range strings.Split(tokens[i], ",") {
			if c = strings.TrimSpace(c); c != "" {
				columns = append(columns, c)
			}
		}
	}
	if len(columns) == 0 {
		return errors.Wrap(dfi.ErrInvalidQueryDocument, "no columns selected")
	}
	for _, c := range columns {
		switch c {
		case "count":
			t.ret["type"] = "count"
		case "records":
			t.ret["type"] = "records"
		case string(dfi.IncludeMetadataID):
			t.include(dfi.IncludeMetadataID)
		case string(dfi.IncludeFields):
			t.include(dfi.IncludeFields)
		case "*":
			t.ret["type"] = "records"
			t.include(dfi.IncludeMetadataID)
			t.include(dfi.IncludeFields)
		default:
			return errors.Wrapf(dfi.ErrInvalidQueryDocument, "unknown column: %s", c)
		}
	}
	if i == len(tokens) {
		return errors.Wrap(dfi.ErrInvalidQueryDocument, "missing FROM")
	}
	return t.parseFrom(tokens[i+1:])
}

func (t *translator) parseFrom(tokens []string) error {
	if len(tokens) == 0 {
		return errors.Wrap(dfi.ErrInvalidQueryDocument, "missing dataset after FROM")
	}
	t.datasetID = stripQuotes(tokens[0])
	return t.next(tokens[1:], true)
}

// next dispatches to the WHERE or GROUP BY clause starting tokens.
func (t *translator) next(tokens []string, whereAllowed bool) error {
	if len(tokens) == 0 {
		return nil
	}
	switch kw := strings.ToLower(tokens[0]); {
	case kw == "where" && whereAllowed:
		if len(tokens) < 2 {
			return errors.Wrap(dfi.ErrInvalidQueryDocument, "empty WHERE clause")
		}
		return t.parseWhere(tokens[1:])
	case kw == "group":
		return t.parseGroupBy(tokens[1:])
	default:
		return errors.Wrapf(dfi.ErrInvalidQueryDocument, "unknown keyword: %s", kw)
	}
}

func (t *translator) parseGroupBy(tokens []string) error {
	if len(tokens) < 2 || !strings.EqualFold(tokens[0], "by") {
		return errors.Wrap(dfi.ErrInvalidQueryDocument, "expected GROUP BY")
	}
	if !strings.EqualFold(tokens[1], string(dfi.GroupByUniqueID)) {
		return errors.Wrap(dfi.ErrInvalidQueryDocument, "only uniqueId is valid for group by")
	}
	if len(tokens) > 2 {
		return errors.Wrapf(dfi.ErrInvalidQueryDocument, "unexpected tokens after GROUP BY: %v", tokens[2:])
	}
	t.ret["groupBy"] = map[string]interface{}{"type": string(dfi.GroupByUniqueID)}
	return nil
}

var comparisonOps = []struct {
	sql string
	op  dfi.FilterOperator
}{
	// longest first so that ">=" is not read as ">"
	{">=", dfi.OpGTE},
	{"<=", dfi.OpLTE},
	{"!=", dfi.OpNEQ},
	{"<>", dfi.OpNEQ},
	{"=", dfi.OpEQ},
	{"<", dfi.OpLT},
	{">", dfi.OpGT},
}

func comparisonOp(s string) (dfi.FilterOperator, bool) {
	for _, c := range comparisonOps {
		if s == c.sql {
			return c.op, true
		}
	}
	return "", false
}

// splitOperator separates operators written without surrounding spaces,
// e.g. "speed>=5" or "speed >=5".
func splitOperator(tokens []string) []string {
	if len(tokens) == 0 {
		return tokens
	}
	if strings.HasPrefix(strings.ToLower(tokens[0]), "polygon") {
		return tokens
	}
	if _, ok := comparisonOp(tokens[0]); ok {
		return tokens
	}
	for _, c := range comparisonOps {
		if i := strings.Index(tokens[0], c.sql); i > 0 {
			lhs, rhs := tokens[0][:i], tokens[0][i+len(c.sql):]
			out := []string{lhs, c.sql}
			if rhs != "" {
				out = append(out, rhs)
			}
			return append(out, tokens[1:]...)
		}
	}
	if len(tokens) > 1 {
		if _, ok := comparisonOp(tokens[1]); ok {
			return tokens
		}
		for _, c := range comparisonOps {
			if strings.HasPrefix(tokens[1], c.sql) && len(tokens[1]) > len(c.sql) {
				out := []string{tokens[0], c.sql, tokens[1][len(c.sql):]}
				return append(out, tokens[2:]...)
			}
		}
	}
	return tokens
}

func (t *translator) parseWhere(tokens []string) error {
	tokens = splitOperator(tokens)
	if len(tokens) == 0 {
		return errors.Wrap(dfi.ErrInvalidQueryDocument, "empty condition")
	}
	if strings.HasPrefix(strings.ToLower(tokens[0]), "polygon") {
		return t.parsePolygon(tokens)
	}
	if len(tokens) < 3 {
		return errors.Wrapf(dfi.ErrInvalidQueryDocument, "incomplete condition: %v", tokens)
	}
	operator := strings.ToLower(tokens[1])
	if _, ok := comparisonOp(operator); ok {
		return t.parseComparison(tokens)
	}
	switch operator {
	case string(dfi.OpBetween), string(dfi.OpOutside):
		return t.parseRange(tokens)
	case "like", "in":
		return errors.Wrapf(dfi.ErrInvalidQueryDocument, "unsupported range operator: %s", operator)
	}
	return errors.Wrapf(dfi.ErrInvalidQueryDocument, "unknown operator: %s", operator)
}

// afterCondition continues with the tokens following a condition of n
// tokens.
func (t *translator) afterCondition(tokens []string, n int) error {
	if len(tokens) <= n {
		return nil
	}
	if strings.EqualFold(tokens[n], "and") {
		return t.parseWhere(tokens[n+1:])
	}
	return t.next(tokens[n:], false)
}

func (t *translator) parseComparison(tokens []string) error {
	lhs, rhs := tokens[0], tokens[2]
	op, _ := comparisonOp(tokens[1])
	if strings.EqualFold(lhs, dfi.KeyIDs) {
		if op != dfi.OpEQ {
			return errors.Wrapf(dfi.ErrInvalidQueryDocument, "operator %s is not supported when used with id", tokens[1])
		}
		ids, _ := t.filters[dfi.KeyIDs].([]interface{})
		t.filters[dfi.KeyIDs] = append(ids, cleanValue(rhs))
	} else {
		t.fields()[lhs] = map[string]interface{}{string(op): cleanValue(rhs)}
	}
	return t.afterCondition(tokens, 3)
}

func (t *translator) parseRange(tokens []string) error {
	if len(tokens) < 5 || !strings.EqualFold(tokens[3], "and") {
		return errors.Wrapf(dfi.ErrInvalidQueryDocument, "expected '%s %s <min> AND <max>'", tokens[0], tokens[1])
	}
	lhs, op := tokens[0], dfi.FilterOperator(strings.ToLower(tokens[1]))
	lo, hi := cleanValue(tokens[2]), cleanValue(tokens[4])
	if strings.EqualFold(lhs, dfi.KeyTime) {
		if op != dfi.OpBetween {
			return errors.Wrap(dfi.ErrInvalidQueryDocument, "only 'between' is supported with time filters")
		}
		t.filters[dfi.KeyTime] = map[string]interface{}{"minTime": lo, "maxTime": hi}
	} else {
		t.fields()[lhs] = map[string]interface{}{string(op): []interface{}{lo, hi}}
	}
	return t.afterCondition(tokens, 5)
}

func (t *translator) fields() map[string]interface{} {
	fields, ok := t.filters[dfi.KeyFilterFields].(map[string]interface{})
	if !ok {
		fields = map[string]interface{}{}
		t.filters[dfi.KeyFilterFields] = fields
	}
	return fields
}

// parsePolygon reads the WKT polygon starting at tokens[0] up to the token
// closing it with "))".
func (t *translator) parsePolygon(tokens []string) error {
	end := -1
	for i, tok := range tokens {
		if strings.Contains(tok, "))") {
			end = i
			break
		}
	}
	if end < 0 {
		return errors.Wrap(dfi.ErrInvalidQueryDocument, "polygon is missing closing '))'")
	}
	text := strings.Join(tokens[:end+1], " ")
	open := strings.Index(text, "((")
	if open < 0 {
		return errors.Wrap(dfi.ErrInvalidQueryDocument, "polygon is missing opening '(('")
	}
	closing := strings.Index(text, "))")
	wkt := "POLYGON" + text[open:closing+2]
	poly, err := dfi.NewPolygonFromWKT(wkt)
	if err != nil {
		return errors.Wrap(err, "parsing polygon")
	}
	geo, err := poly.Build()
	if err != nil {
		return errors.Wrap(err, "building polygon")
	}
	t.filters[dfi.KeyGeometry] = geo
	return t.afterCondition(tokens, end+1)
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.000000",
}

// cleanValue converts a literal: null is nil, numbers become int64 or
// float64, dates become ISO 8601 strings with milliseconds, anything else is
// a string with quotes removed.
func cleanValue(s string) interface{} {
	if strings.EqualFold(s, "null") {
		return nil
	}
	s = strings.NewReplacer(",", "", ";", "").Replace(s)
	if strings.Contains(s, ".") {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	} else if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	s = stripQuotes(s)
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, s); err == nil {
			return d.Format("2006-01-02T15:04:05.000Z")
		}
	}
	return s
}

func stripQuotes(s string) string {
	return strings.NewReplacer(`"`, "", "`", "", "'", "").Replace(s)
}
