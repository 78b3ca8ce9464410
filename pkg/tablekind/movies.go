package tablekind

import (
	"fmt"
	"strings"

	"github.com/ethpandaops/medallion/pkg/table"
	"github.com/ethpandaops/medallion/pkg/transform"
)

// GenreSeparator splits the genres field into genres_arr
const GenreSeparator = "|"

// Movies is the movie metadata table: one row per movie
type Movies struct{}

// Name implements Kind
func (Movies) Name() string {
	return "movies"
}

// RawSchema implements Kind
func (Movies) RawSchema() table.Schema {
	return table.Schema{
		{Name: "movieId", Type: table.TypeInt},
		{Name: "title", Type: table.TypeString},
		{Name: "genres", Type: table.TypeString},
	}
}

// BronzeSchema implements Kind
func (m Movies) BronzeSchema() table.Schema {
	return bronzeOf(m.RawSchema())
}

// SilverSchema implements Kind
func (Movies) SilverSchema() table.Schema {
	return table.Schema{
		{Name: "movieId", Type: table.TypeInt},
		{Name: "title", Type: table.TypeString},
		{Name: "genres", Type: table.TypeString},
		{Name: "genres_arr", Type: table.TypeStringArray},
	}
}

// SilverSteps implements Kind. An empty genres string splits into a single
// empty genre; a NULL genres stays NULL.
func (m Movies) SilverSteps() []transform.Step {
	return []transform.Step{
		transform.Cast{Column: "movieId", To: table.TypeInt},
		transform.Cast{Column: "title", To: table.TypeString},
		transform.Cast{Column: "genres", To: table.TypeString},
		transform.Derive{Column: "title", Type: table.TypeString, Fn: trimmed("title")},
		transform.Derive{Column: "genres", Type: table.TypeString, Fn: trimmed("genres")},
		transform.Derive{Column: "genres_arr", Type: table.TypeStringArray, Fn: splitGenres("genres")},
		transform.Select{Columns: m.SilverSchema().Names()},
	}
}

func stringAt(schema table.Schema, row table.Row, column string) (string, bool, error) {
	pos := schema.Index(column)
	if pos < 0 {
		return "", false, fmt.Errorf("%w: %s", table.ErrUnknownColumn, column)
	}

	s, ok := row[pos].(string)

	return s, ok, nil
}

func trimmed(column string) transform.DeriveFunc {
	return func(schema table.Schema, row table.Row) (any, error) {
		s, ok, err := stringAt(schema, row, column)
		if err != nil || !ok {
			return nil, err
		}

		return strings.TrimSpace(s), nil
	}
}

func splitGenres(column string) transform.DeriveFunc {
	return func(schema table.Schema, row table.Row) (any, error) {
		s, ok, err := stringAt(schema, row, column)
		if err != nil || !ok {
			return nil, err
		}

		return strings.Split(s, GenreSeparator), nil
	}
}
