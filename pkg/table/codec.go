package table

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

//nolint:gochecknoglobals // JSON null literal
var jsonNull = []byte("null")

// MarshalRow encodes a row as a JSON object keyed by column name
// (JSONEachRow). Timestamps use RFC 3339 with nanoseconds, dates use
// YYYY-MM-DD.
func MarshalRow(schema Schema, row Row) ([]byte, error) {
	obj := make(map[string]any, len(schema))

	for i, f := range schema {
		v := row[i]
		if ts, ok := v.(time.Time); ok {
			if f.Type == TypeDate {
				v = ts.UTC().Format(DateLayout)
			} else {
				v = ts.UTC().Format(time.RFC3339Nano)
			}
		}

		obj[f.Name] = v
	}

	data, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal row: %w", err)
	}

	return data, nil
}

// UnmarshalRow decodes a JSON object produced by MarshalRow. Columns missing
// from the object decode as NULL.
func UnmarshalRow(schema Schema, data []byte) (Row, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("failed to unmarshal row: %w", err)
	}

	row := make(Row, len(schema))

	for i, f := range schema {
		raw, ok := obj[f.Name]
		if !ok || bytes.Equal(bytes.TrimSpace(raw), jsonNull) {
			continue
		}

		v, err := decodeValue(f.Type, raw)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", f.Name, err)
		}

		row[i] = v
	}

	return row, nil
}

func decodeValue(t Type, raw json.RawMessage) (any, error) {
	switch t {
	case TypeInt:
		var v int32
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidJSONValue, err)
		}

		return v, nil
	case TypeLong:
		var v int64
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidJSONValue, err)
		}

		return v, nil
	case TypeDouble:
		var v float64
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidJSONValue, err)
		}

		return v, nil
	case TypeString:
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidJSONValue, err)
		}

		return v, nil
	case TypeTimestamp, TypeDate:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidJSONValue, err)
		}

		v, ok := Cast(s, t)
		if !ok {
			return nil, fmt.Errorf("%w: %q is not a %s", ErrInvalidJSONValue, s, t)
		}

		return v, nil
	case TypeStringArray:
		var v []string
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidJSONValue, err)
		}

		if v == nil {
			v = []string{}
		}

		return v, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, t)
	}
}
