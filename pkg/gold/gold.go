// Package gold builds the aggregate tables served to analysts from the two
// silver tables: average rating per genre and the top movies of each decade.
package gold

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethpandaops/medallion/pkg/engine"
	"github.com/ethpandaops/medallion/pkg/store"
	"github.com/ethpandaops/medallion/pkg/table"
	"github.com/ethpandaops/medallion/pkg/transform"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Define static errors
var (
	ErrNoInput        = errors.New("silver ratings and movies locations are required")
	ErrNoTarget       = errors.New("gold target locations are required")
	ErrInvalidTopN    = errors.New("top n must be positive")
	ErrInvalidMinimum = errors.New("minimum ratings must not be negative")
)

// Gold table names
const (
	GenreTable  = "avg_rating_per_genre"
	DecadeTable = "top_movies_per_decade"
)

// Defaults for the decade ranking
const (
	DefaultMinRatings = 50
	DefaultTopN       = 10
)

// Request describes one gold build
type Request struct {
	Ratings      string
	Movies       string
	GenreTarget  string
	DecadeTarget string
	MinRatings   int64
	TopN         int
}

// Validate checks the request before any I/O
func (r *Request) Validate() error {
	switch {
	case r.Ratings == "" || r.Movies == "":
		return ErrNoInput
	case r.GenreTarget == "" || r.DecadeTarget == "":
		return ErrNoTarget
	case r.TopN <= 0:
		return ErrInvalidTopN
	case r.MinRatings < 0:
		return ErrInvalidMinimum
	}

	return nil
}

// Output is one written gold table
type Output struct {
	Table    string
	Location string
	Rows     int
}

// Result summarizes a gold build
type Result struct {
	RatingsRead int
	MoviesRead  int
	Genres      Output
	Decades     Output
}

// RowsWritten is the total row count of both gold tables
func (r *Result) RowsWritten() int {
	return r.Genres.Rows + r.Decades.Rows
}

// CatalogName is the catalog name of a gold table
func CatalogName(tableName string) string {
	return "gold_" + tableName
}

// GenreSchema is the schema of the genre summary
func GenreSchema() table.Schema {
	return table.Schema{
		{Name: "genre", Type: table.TypeString},
		{Name: "n_ratings", Type: table.TypeLong},
		{Name: "avg_rating", Type: table.TypeDouble},
	}
}

// DecadeSchema is the schema of the per-decade ranking
func DecadeSchema() table.Schema {
	return table.Schema{
		{Name: "decade", Type: table.TypeInt},
		{Name: "rank", Type: table.TypeInt},
		{Name: "movieId", Type: table.TypeInt},
		{Name: "title", Type: table.TypeString},
		{Name: "avg_rating", Type: table.TypeDouble},
		{Name: "n_ratings", Type: table.TypeLong},
	}
}

// Build loads both silver tables concurrently, computes the two gold tables
// and overwrites them. A missing silver table is fatal.
func Build(ctx context.Context, eng *engine.Engine, req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	log := eng.Log.WithField("component", "gold")

	var ratings, movies *table.Dataset

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		ds, err := eng.Store.Read(gctx, req.Ratings)
		if err != nil {
			return fmt.Errorf("failed to read silver ratings %s: %w", req.Ratings, err)
		}

		ratings = ds

		return nil
	})

	g.Go(func() error {
		ds, err := eng.Store.Read(gctx, req.Movies)
		if err != nil {
			return fmt.Errorf("failed to read silver movies %s: %w", req.Movies, err)
		}

		movies = ds

		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	genres, err := GenreSummary(ctx, ratings, movies)
	if err != nil {
		return nil, err
	}

	decades, err := DecadeTop(ctx, ratings, movies, req.MinRatings, req.TopN)
	if err != nil {
		return nil, err
	}

	result := &Result{
		RatingsRead: ratings.Len(),
		MoviesRead:  movies.Len(),
	}

	result.Genres, err = publish(ctx, eng, GenreTable, req.GenreTarget, genres)
	if err != nil {
		return nil, err
	}

	result.Decades, err = publish(ctx, eng, DecadeTable, req.DecadeTarget, decades)
	if err != nil {
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"ratings": result.RatingsRead,
		"movies":  result.MoviesRead,
		"genres":  result.Genres.Rows,
		"decades": result.Decades.Rows,
	}).Info("Built gold tables")

	return result, nil
}

func publish(ctx context.Context, eng *engine.Engine, tableName, location string, ds *table.Dataset) (Output, error) {
	if err := eng.Store.Write(ctx, location, ds, store.ModeOverwrite); err != nil {
		return Output{}, fmt.Errorf("failed to write %s: %w", location, err)
	}

	if err := eng.Register(ctx, CatalogName(tableName), location); err != nil {
		return Output{}, err
	}

	return Output{Table: CatalogName(tableName), Location: location, Rows: ds.Len()}, nil
}

// GenreSummary explodes each movie's genres, joins ratings on movieId and
// averages per genre. Movies with no genres count under a NULL genre. Rows
// are ordered by avg_rating descending, then genre ascending with NULL last.
func GenreSummary(ctx context.Context, ratings, movies *table.Dataset) (*table.Dataset, error) {
	exploded, err := transform.NewPipeline("movie_genres",
		transform.Select{Columns: []string{"movieId", "genres_arr"}},
		transform.Explode{Column: "genres_arr", As: "genre", Outer: true},
		transform.Select{Columns: []string{"movieId", "genre"}},
	).Run(ctx, movies)
	if err != nil {
		return nil, err
	}

	return transform.NewPipeline(GenreTable,
		transform.Select{Columns: []string{"movieId", "rating"}},
		transform.Join{Right: exploded, On: []string{"movieId"}, Type: transform.JoinInner},
		transform.Aggregate{
			GroupBy: []string{"genre"},
			Aggs: []transform.Agg{
				{Func: transform.AggCount, As: "n_ratings"},
				{Func: transform.AggAvg, Column: "rating", As: "avg_rating"},
			},
		},
		transform.Sort{Keys: []transform.SortKey{
			{Column: "avg_rating", Desc: true},
			{Column: "genre", NullsLast: true},
		}},
		transform.Select{Columns: GenreSchema().Names()},
	).Run(ctx, ratings)
}

// Decade buckets a calendar year: 1994 -> 1990, 2005 -> 2000
func Decade(year int) int {
	return year / 10 * 10
}

func decadeOf(schema table.Schema, row table.Row) (any, error) {
	pos := schema.Index("rating_ts")
	if pos < 0 {
		return nil, fmt.Errorf("%w: rating_ts", table.ErrUnknownColumn)
	}

	ts, ok := row[pos].(time.Time)
	if !ok {
		return nil, nil
	}

	return int32(Decade(ts.UTC().Year())), nil
}

// DecadeTop ranks movies within each decade of their ratings. A movie needs
// at least minRatings ratings in a decade to be ranked there; at most topN
// movies are kept per decade, numbered 1..topN by avg_rating descending with
// movieId ascending breaking ties. Ratings without a timestamp are ignored.
func DecadeTop(ctx context.Context, ratings, movies *table.Dataset, minRatings int64, topN int) (*table.Dataset, error) {
	titles, err := transform.NewPipeline("movie_titles",
		transform.Select{Columns: []string{"movieId", "title"}},
	).Run(ctx, movies)
	if err != nil {
		return nil, err
	}

	return transform.NewPipeline(DecadeTable,
		transform.Derive{Column: "decade", Type: table.TypeInt, Fn: decadeOf},
		transform.NotNull("decade"),
		transform.Aggregate{
			GroupBy: []string{"movieId", "decade"},
			Aggs: []transform.Agg{
				{Func: transform.AggCount, As: "n_ratings"},
				{Func: transform.AggAvg, Column: "rating", As: "avg_rating"},
			},
		},
		transform.AtLeast("n_ratings", minRatings),
		transform.Join{Right: titles, On: []string{"movieId"}, Type: transform.JoinLeft},
		transform.RowNumber{
			PartitionBy: []string{"decade"},
			OrderBy: []transform.SortKey{
				{Column: "avg_rating", Desc: true},
				{Column: "movieId"},
			},
			As: "rank",
		},
		transform.AtMost("rank", int64(topN)),
		transform.Sort{Keys: []transform.SortKey{{Column: "decade"}, {Column: "rank"}}},
		transform.Select{Columns: DecadeSchema().Names()},
	).Run(ctx, ratings)
}
