// Package tablekind defines the table kinds the pipeline moves through the
// bronze and silver tiers. Each kind owns its schemas and its silver steps.
package tablekind

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethpandaops/medallion/pkg/table"
	"github.com/ethpandaops/medallion/pkg/transform"
)

// Define static errors
var (
	ErrUnknownKind = errors.New("unknown table kind")
)

// Ingestion metadata columns added to every bronze row
const (
	IngestTSColumn   = "ingest_ts"
	IngestDateColumn = "ingest_date"
)

// Kind is one table kind. Implementations are stateless values selected once
// by Parse.
type Kind interface {
	// Name is the kind's short name, e.g. "ratings"
	Name() string
	// RawSchema is the schema of source records
	RawSchema() table.Schema
	// BronzeSchema is RawSchema plus the ingestion metadata columns
	BronzeSchema() table.Schema
	// SilverSchema is the canonical schema after standardization
	SilverSchema() table.Schema
	// SilverSteps converts a bronze dataset into SilverSchema. Deduplication
	// is applied by the caller after these steps.
	SilverSteps() []transform.Step
}

// BronzeName is the catalog name of a kind's bronze table
func BronzeName(k Kind) string {
	return "bronze_" + k.Name()
}

// SilverName is the catalog name of a kind's silver table
func SilverName(k Kind) string {
	return "silver_" + k.Name()
}

// All returns every kind in pipeline order
func All() []Kind {
	return []Kind{Ratings{}, Movies{}}
}

// Parse selects a kind by name, case-insensitively
func Parse(name string) (Kind, error) {
	for _, k := range All() {
		if strings.EqualFold(strings.TrimSpace(name), k.Name()) {
			return k, nil
		}
	}

	return nil, fmt.Errorf("%w: %q (expected ratings or movies)", ErrUnknownKind, name)
}

func bronzeOf(raw table.Schema) table.Schema {
	out := append(table.Schema(nil), raw...)

	return append(out,
		table.Field{Name: IngestTSColumn, Type: table.TypeTimestamp},
		table.Field{Name: IngestDateColumn, Type: table.TypeDate},
	)
}
