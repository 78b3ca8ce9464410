package tablekind

import (
	"fmt"
	"time"

	"github.com/ethpandaops/medallion/pkg/table"
	"github.com/ethpandaops/medallion/pkg/transform"
)

// Ratings is the user rating table: one row per (user, movie) rating event
type Ratings struct{}

// Name implements Kind
func (Ratings) Name() string {
	return "ratings"
}

// RawSchema implements Kind
func (Ratings) RawSchema() table.Schema {
	return table.Schema{
		{Name: "userId", Type: table.TypeInt},
		{Name: "movieId", Type: table.TypeInt},
		{Name: "rating", Type: table.TypeDouble},
		{Name: "timestamp", Type: table.TypeLong},
	}
}

// BronzeSchema implements Kind
func (r Ratings) BronzeSchema() table.Schema {
	return bronzeOf(r.RawSchema())
}

// SilverSchema implements Kind
func (Ratings) SilverSchema() table.Schema {
	return table.Schema{
		{Name: "userId", Type: table.TypeInt},
		{Name: "movieId", Type: table.TypeInt},
		{Name: "rating", Type: table.TypeDouble},
		{Name: "rating_ts", Type: table.TypeTimestamp},
	}
}

// SilverSteps implements Kind
func (r Ratings) SilverSteps() []transform.Step {
	return []transform.Step{
		transform.Cast{Column: "userId", To: table.TypeInt},
		transform.Cast{Column: "movieId", To: table.TypeInt},
		transform.Cast{Column: "rating", To: table.TypeDouble},
		transform.Cast{Column: "timestamp", To: table.TypeLong},
		transform.Derive{Column: "rating_ts", Type: table.TypeTimestamp, Fn: epochSeconds("timestamp")},
		transform.Select{Columns: r.SilverSchema().Names()},
	}
}

// epochSeconds reads a long column of Unix seconds as a UTC instant
func epochSeconds(column string) transform.DeriveFunc {
	return func(schema table.Schema, row table.Row) (any, error) {
		pos := schema.Index(column)
		if pos < 0 {
			return nil, fmt.Errorf("%w: %s", table.ErrUnknownColumn, column)
		}

		secs, ok := row[pos].(int64)
		if !ok {
			return nil, nil
		}

		return time.Unix(secs, 0).UTC(), nil
	}
}
