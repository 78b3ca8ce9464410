package table

import (
	"fmt"
	"strings"
)

// Field is a named, typed column
type Field struct {
	Name string `json:"name"`
	Type Type   `json:"type"`
}

// Schema is an ordered list of columns
type Schema []Field

// NewSchema builds a schema and rejects duplicate column names
func NewSchema(fields ...Field) (Schema, error) {
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if _, ok := seen[f.Name]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateColumn, f.Name)
		}

		if _, err := ParseType(string(f.Type)); err != nil {
			return nil, err
		}

		seen[f.Name] = struct{}{}
	}

	return Schema(fields), nil
}

// Index returns the position of the named column, or -1
func (s Schema) Index(name string) int {
	for i, f := range s {
		if f.Name == name {
			return i
		}
	}

	return -1
}

// Field returns the named column
func (s Schema) Field(name string) (Field, bool) {
	if i := s.Index(name); i >= 0 {
		return s[i], true
	}

	return Field{}, false
}

// Names returns the column names in order
func (s Schema) Names() []string {
	names := make([]string, len(s))
	for i, f := range s {
		names[i] = f.Name
	}

	return names
}

// Equal reports whether both schemas have the same columns in the same order
func (s Schema) Equal(other Schema) bool {
	if len(s) != len(other) {
		return false
	}

	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}

	return true
}

// Indexes resolves column names to positions
func (s Schema) Indexes(names ...string) ([]int, error) {
	idx := make([]int, len(names))
	for i, name := range names {
		pos := s.Index(name)
		if pos < 0 {
			return nil, fmt.Errorf("%w: %s", ErrUnknownColumn, name)
		}

		idx[i] = pos
	}

	return idx, nil
}

// String renders the schema as name:type pairs
func (s Schema) String() string {
	parts := make([]string, len(s))
	for i, f := range s {
		parts[i] = f.Name + ":" + string(f.Type)
	}

	return strings.Join(parts, ", ")
}
