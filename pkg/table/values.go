package table

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the textual form of date values
const DateLayout = "2006-01-02"

//nolint:gochecknoglobals // Accepted textual timestamp layouts, most specific first
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	DateLayout,
}

// Conforms reports whether v is a valid Go value for column type t
func Conforms(v any, t Type) bool {
	if v == nil {
		return true
	}

	switch t {
	case TypeInt:
		_, ok := v.(int32)
		return ok
	case TypeLong:
		_, ok := v.(int64)
		return ok
	case TypeDouble:
		_, ok := v.(float64)
		return ok
	case TypeString:
		_, ok := v.(string)
		return ok
	case TypeTimestamp, TypeDate:
		_, ok := v.(time.Time)
		return ok
	case TypeStringArray:
		_, ok := v.([]string)
		return ok
	default:
		return false
	}
}

// Cast converts v to column type t. The second return is false when the value
// cannot be represented in t; callers decide whether that nulls the field or
// rejects the row. NULL casts to NULL.
func Cast(v any, t Type) (any, bool) {
	if v == nil {
		return nil, true
	}

	switch t {
	case TypeInt:
		n, ok := toInt64(v)
		if !ok || n < math.MinInt32 || n > math.MaxInt32 {
			return nil, false
		}

		return int32(n), true
	case TypeLong:
		n, ok := toInt64(v)
		if !ok {
			return nil, false
		}

		return n, true
	case TypeDouble:
		return toFloat64(v)
	case TypeString:
		return toString(v), true
	case TypeTimestamp:
		return toTimestamp(v)
	case TypeDate:
		ts, ok := toTimestamp(v)
		if !ok {
			return nil, false
		}

		return TruncateDate(ts.(time.Time)), true
	case TypeStringArray:
		arr, ok := v.([]string)
		if !ok {
			return nil, false
		}

		return append([]string(nil), arr...), true
	default:
		return nil, false
	}
}

// TruncateDate returns the UTC midnight of ts
func TruncateDate(ts time.Time) time.Time {
	y, m, d := ts.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func toInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case int:
		return int64(x), true
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) || x < math.MinInt64 || x >= math.MaxInt64 {
			return 0, false
		}

		return int64(x), true
	case string:
		s := strings.TrimSpace(x)
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, true
		}

		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}

		return toInt64(f)
	case time.Time:
		return x.Unix(), true
	default:
		return 0, false
	}
}

func toFloat64(v any) (any, bool) {
	switch x := v.(type) {
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case int:
		return float64(x), true
	case float64:
		if !finite(x) {
			return nil, false
		}

		return x, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil || !finite(f) {
			return nil, false
		}

		return f, true
	default:
		return nil, false
	}
}

// finite reports whether f can be stored: NaN and infinities cannot
func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func toString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case []string:
		return "[" + strings.Join(x, ", ") + "]"
	default:
		return ""
	}
}

func toTimestamp(v any) (any, bool) {
	switch x := v.(type) {
	case time.Time:
		return x.UTC(), true
	case int32:
		return time.Unix(int64(x), 0).UTC(), true
	case int64:
		return time.Unix(x, 0).UTC(), true
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, false
		}

		sec, frac := math.Modf(x)

		return time.Unix(int64(sec), int64(frac*1e9)).UTC(), true
	case string:
		s := strings.TrimSpace(x)
		for _, layout := range timestampLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts.UTC(), true
			}
		}

		return nil, false
	default:
		return nil, false
	}
}

// Compare orders two values of the same column. NULL sorts before any value.
func Compare(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}

	switch x := a.(type) {
	case int32:
		if y, ok := b.(int32); ok {
			return cmpOrdered(x, y)
		}
	case int64:
		if y, ok := b.(int64); ok {
			return cmpOrdered(x, y)
		}
	case float64:
		if y, ok := b.(float64); ok {
			return cmpOrdered(x, y)
		}
	case string:
		if y, ok := b.(string); ok {
			return strings.Compare(x, y)
		}
	case time.Time:
		if y, ok := b.(time.Time); ok {
			return x.Compare(y)
		}
	case []string:
		if y, ok := b.([]string); ok {
			return compareStrings(x, y)
		}
	}

	return strings.Compare(toString(a), toString(b))
}

func cmpOrdered[T int32 | int64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareStrings(a, b []string) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := strings.Compare(a[i], b[i]); c != 0 {
			return c
		}
	}

	return cmpOrdered(int64(len(a)), int64(len(b)))
}

// AppendKey appends an unambiguous, type-tagged encoding of v to buf. Two
// values produce the same bytes only if they are equal, which makes the
// encoding usable as a grouping, join or duplicate-detection key.
func AppendKey(buf []byte, v any) []byte {
	switch x := v.(type) {
	case nil:
		return append(buf, 'n', 0x1f)
	case int32:
		buf = append(buf, 'i')
		buf = strconv.AppendInt(buf, int64(x), 10)
	case int64:
		buf = append(buf, 'l')
		buf = strconv.AppendInt(buf, x, 10)
	case float64:
		buf = append(buf, 'd')
		buf = strconv.AppendUint(buf, math.Float64bits(x), 16)
	case string:
		buf = append(buf, 's')
		buf = strconv.AppendInt(buf, int64(len(x)), 10)
		buf = append(buf, ':')
		buf = append(buf, x...)
	case time.Time:
		buf = append(buf, 't')
		buf = strconv.AppendInt(buf, x.UnixNano(), 10)
	case []string:
		buf = append(buf, 'a')
		buf = strconv.AppendInt(buf, int64(len(x)), 10)
		for _, s := range x {
			buf = append(buf, ':')
			buf = strconv.AppendInt(buf, int64(len(s)), 10)
			buf = append(buf, ':')
			buf = append(buf, s...)
		}
	default:
		buf = append(buf, '?')
		buf = append(buf, toString(x)...)
	}

	return append(buf, 0x1f)
}
