package dfi

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// FilterOperator is a comparison applied to a Filter Field.
type FilterOperator string

// Valid filter operators.
const (
	OpLT      FilterOperator = "lt"
	OpGT      FilterOperator = "gt"
	OpGTE     FilterOperator = "gte"
	OpLTE     FilterOperator = "lte"
	OpEQ      FilterOperator = "eq"
	OpNEQ     FilterOperator = "neq"
	OpBetween FilterOperator = "between"
	OpOutside FilterOperator = "outside"
)

// ParseFilterOperator returns the FilterOperator named by s.
func ParseFilterOperator(s string) (FilterOperator, error) {
	switch op := FilterOperator(s); op {
	case OpLT, OpGT, OpGTE, OpLTE, OpEQ, OpNEQ, OpBetween, OpOutside:
		return op, nil
	}
	return "", errors.Wrapf(ErrFilterFieldOperationValue, "'%s' is not a filter operator", s)
}

// FieldType is the type of a Filter Field as declared on the client side.
type FieldType string

// Valid field types.
const (
	SignedNumber   FieldType = "signed number"
	UnsignedNumber FieldType = "unsigned number"
	IP             FieldType = "ip"
	Enum           FieldType = "enum"
)

// ParseFieldType returns the FieldType named by s.
func ParseFieldType(s string) (FieldType, error) {
	switch ft := FieldType(s); ft {
	case SignedNumber, UnsignedNumber, IP, Enum:
		return ft, nil
	}
	return "", errors.Wrapf(ErrFilterFieldType, "'%s' is not a field type", s)
}

const (
	int32Min     = math.MinInt32
	int32Max     = math.MaxInt32
	uint32Max    = math.MaxUint32
	ipv4Octets   = 4
	octetMax     = 255
	schemaNumber = "number"
	schemaIP     = "ip"
	schemaEnum   = "enum"
)

// SchemaField is the dataset schema's description of one Filter Field.
type SchemaField struct {
	Type     string   `json:"type"`
	Signed   *bool    `json:"signed,omitempty"`
	Nullable *bool    `json:"nullable,omitempty"`
	Values   []string `json:"values,omitempty"`
}

// Schema maps Filter Field names to their schema definition.
type Schema map[string]SchemaField

// FilterField filters records on a non-indexed, schema-declared field.
type FilterField struct {
	Name      string
	Type      FieldType
	Value     interface{}
	Operation FilterOperator
	Nullable  bool
}

// NewFilterField returns a validated FilterField. When schema is non-empty
// the name, type, nullability and value are checked against it. Some
// problems can only be caught by the DFI API.
func NewFilterField(name string, fieldType FieldType, value interface{}, op FilterOperator, nullable bool, schema Schema) (*FilterField, error) {
	ff := &FilterField{
		Name:      name,
		Type:      fieldType,
		Value:     value,
		Operation: op,
		Nullable:  nullable,
	}
	if err := ff.Validate(schema); err != nil {
		return nil, err
	}
	return ff, nil
}

// Validate checks the operation is allowed for the field type and, given a
// schema, that the field agrees with it.
func (ff *FilterField) Validate(schema Schema) error {
	if _, err := ParseFieldType(string(ff.Type)); err != nil {
		return err
	}
	if _, err := ParseFilterOperator(string(ff.Operation)); err != nil {
		return err
	}
	if err := validateOperation(ff.Type, ff.Operation); err != nil {
		return err
	}
	if len(schema) == 0 {
		return nil
	}
	field, ok := schema[ff.Name]
	if !ok {
		return errors.Wrapf(ErrFilterFieldNameNotInSchema, "'%s' is not a field registered to the dataset schema", ff.Name)
	}
	if err := validateTypeMatchesSchema(ff.Type, field); err != nil {
		return err
	}
	if err := validateNullability(ff.Name, ff.Nullable, field); err != nil {
		return err
	}
	return validateValue(ff.Name, ff.Value, field)
}

// Build formats the FilterField as {name: {op: value}}.
func (ff *FilterField) Build() map[string]interface{} {
	return map[string]interface{}{
		ff.Name: map[string]interface{}{
			string(ff.Operation): ff.Value,
		},
	}
}

func (ff *FilterField) String() string {
	return fmt.Sprintf("FilterField(name=%s, field_type=%s, operation=%s, value=%v)", ff.Name, ff.Type, ff.Operation, ff.Value)
}

func validateOperation(ft FieldType, op FilterOperator) error {
	switch ft {
	case SignedNumber, UnsignedNumber:
		return nil
	case IP, Enum:
		if op != OpEQ && op != OpNEQ {
			return errors.Wrapf(ErrFilterFieldOperationValue, "'%s' is not a valid operation to filter with for an '%s' Filter Field", op, ft)
		}
		return nil
	}
	return ErrUnreachable
}

func validateTypeMatchesSchema(ft FieldType, field SchemaField) error {
	switch field.Type {
	case schemaIP:
		if ft == IP {
			return nil
		}
	case schemaEnum:
		if ft == Enum {
			return nil
		}
	case schemaNumber:
		signed := field.Signed != nil && *field.Signed
		if (signed && ft == SignedNumber) || (!signed && ft == UnsignedNumber) {
			return nil
		}
		return errors.Wrapf(ErrFilterFieldType, "'%s' does not match type in schema '%s' (signed: %v)", ft, field.Type, signed)
	}
	return errors.Wrapf(ErrFilterFieldType, "'%s' does not match type in schema '%s'", ft, field.Type)
}

func validateNullability(name string, nullable bool, field SchemaField) error {
	schemaNullable := field.Nullable != nil && *field.Nullable
	if nullable && !schemaNullable {
		return errors.Wrapf(ErrFilterFieldInvalidNullability, "schema indicates field '%s' is not nullable, found %v", name, nullable)
	}
	if !nullable && schemaNullable {
		return errors.Wrapf(ErrFilterFieldInvalidNullability, "schema indicates field '%s' is nullable, found %v", name, nullable)
	}
	return nil
}

func validateValue(name string, value interface{}, field SchemaField) error {
	switch field.Type {
	case schemaNumber:
		check := validateUnsigned
		if field.Signed != nil && *field.Signed {
			check = validateSigned
		}
		if list, ok := asList(value); ok {
			for _, v := range list {
				n, ok := asInt(v)
				if !ok {
					return errors.Wrapf(ErrInputValue, "%v is not a valid number", value)
				}
				if err := check(n); err != nil {
					return err
				}
			}
			return nil
		}
		n, ok := asInt(value)
		if !ok {
			return errors.Wrapf(ErrInputValue, "%v is not a valid number", value)
		}
		return check(n)
	case schemaIP:
		s, ok := value.(string)
		if !ok {
			return errors.Wrapf(ErrInputValue, "%v is not a valid ipv4 string", value)
		}
		return validateIPv4(s)
	case schemaEnum:
		s, ok := value.(string)
		if !ok {
			return errors.Wrapf(ErrInputValue, "%v is not a valid enum string", value)
		}
		if field.Values == nil {
			return errors.Wrap(ErrInputValue, "no enum value list provided to validate value against")
		}
		for _, v := range field.Values {
			if v == s {
				return nil
			}
		}
		return errors.Wrapf(ErrFilterFieldValue, "'%s' is not a valid enum value registered in the dataset for the '%s' 'enum' Filter Field", s, name)
	}
	return ErrUnreachable
}

func validateSigned(n int64) error {
	if n < int32Min || n > int32Max {
		return errors.Wrapf(ErrFilterFieldValue, "'%d' is not a valid INT32 to filter with for a signed 'number' Filter Field", n)
	}
	return nil
}

func validateUnsigned(n int64) error {
	if n < 0 || n > uint32Max {
		return errors.Wrapf(ErrFilterFieldValue, "'%d' is not a valid UINT32 to filter with for an unsigned 'number' Filter Field", n)
	}
	return nil
}

func validateIPv4(s string) error {
	octets := strings.Split(s, ".")
	if len(octets) != ipv4Octets {
		return errors.Wrapf(ErrFilterFieldValue, "ip values should have 4 bytes, found %d in '%s'", len(octets), s)
	}
	for _, o := range octets {
		n, err := strconv.Atoi(o)
		if err != nil {
			return errors.Wrapf(ErrInputValue, "'%s' is not a number in '%s'", o, s)
		}
		if n < 0 || n > octetMax {
			return errors.Wrapf(ErrFilterFieldValue, "'%s' is not a valid IPv4 to filter with for an 'ip' Filter Field", s)
		}
	}
	return nil
}

// asInt accepts the integer kinds plus float64 values with no fractional
// part, which is what encoding/json produces for numbers.
func asInt(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return int64(n), true
	}
	return 0, false
}

func asList(v interface{}) ([]interface{}, bool) {
	switch l := v.(type) {
	case []interface{}:
		return l, true
	case []int:
		ret := make([]interface{}, len(l))
		for i := range l {
			ret[i] = l[i]
		}
		return ret, true
	case []int64:
		ret := make([]interface{}, len(l))
		for i := range l {
			ret[i] = l[i]
		}
		return ret, true
	}
	return nil, false
}
