// Package table defines the immutable, schema-carrying datasets exchanged
// between the bronze, silver and gold stages.
package table

import (
	"errors"
	"fmt"
	"strings"
)

// Define static errors
var (
	ErrUnknownType      = errors.New("unknown column type")
	ErrUnknownColumn    = errors.New("unknown column")
	ErrDuplicateColumn  = errors.New("duplicate column")
	ErrRowWidth         = errors.New("row width does not match schema")
	ErrValueType        = errors.New("value does not match column type")
	ErrSchemaMismatch   = errors.New("schema mismatch")
	ErrInvalidJSONValue = errors.New("invalid JSON value")
)

// Type is a column type. Go representations are:
//
//	int           int32
//	long          int64
//	double        float64
//	string        string
//	timestamp     time.Time (UTC)
//	date          time.Time (UTC midnight)
//	array<string> []string
//
// A nil value is NULL for every type.
type Type string

// Column types
const (
	TypeInt         Type = "int"
	TypeLong        Type = "long"
	TypeDouble      Type = "double"
	TypeString      Type = "string"
	TypeTimestamp   Type = "timestamp"
	TypeDate        Type = "date"
	TypeStringArray Type = "array<string>"
)

// ParseType parses a type name as written in schemas and commit files
func ParseType(s string) (Type, error) {
	switch t := Type(strings.ToLower(strings.TrimSpace(s))); t {
	case TypeInt, TypeLong, TypeDouble, TypeString, TypeTimestamp, TypeDate, TypeStringArray:
		return t, nil
	case "integer":
		return TypeInt, nil
	case "bigint":
		return TypeLong, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownType, s)
	}
}

// String implements fmt.Stringer
func (t Type) String() string {
	return string(t)
}
