package delimited

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/ethpandaops/medallion/pkg/table"
)

// Writer writes rows as comma-separated text with a header row
type Writer struct {
	cw          *csv.Writer
	schema      table.Schema
	wroteHeader bool
	record      []string
}

// NewWriter creates a CSV writer for rows of schema
func NewWriter(w io.Writer, schema table.Schema) *Writer {
	return &Writer{
		cw:     csv.NewWriter(w),
		schema: schema,
		record: make([]string, len(schema)),
	}
}

// Write writes one row, preceded by the header on the first call
func (w *Writer) Write(row table.Row) error {
	if err := w.header(); err != nil {
		return err
	}

	if len(row) != len(w.schema) {
		return fmt.Errorf("%w: %d values for %d columns", table.ErrRowWidth, len(row), len(w.schema))
	}

	for i, v := range row {
		w.record[i] = FormatValue(v)
	}

	return w.cw.Write(w.record)
}

// Flush writes the header if no row was written, then flushes buffered data
func (w *Writer) Flush() error {
	if err := w.header(); err != nil {
		return err
	}

	w.cw.Flush()

	return w.cw.Error()
}

func (w *Writer) header() error {
	if w.wroteHeader {
		return nil
	}

	w.wroteHeader = true

	return w.cw.Write(w.schema.Names())
}

// FormatValue renders a value as text. NULL is the empty string, doubles use
// the shortest exact representation and arrays are joined with "|".
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case string:
		return x
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case []string:
		return strings.Join(x, "|")
	default:
		return fmt.Sprint(x)
	}
}
