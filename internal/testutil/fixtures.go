package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// Small MovieLens extracts. Both ratings fall in 2000 and user 2 rates
// movie 10 twice, so deduplication leaves three silver ratings.
const (
	RatingsCSV = "userId,movieId,rating,timestamp\n" +
		"1,10,4.0,946684800\n" +
		"2,10,5.0,950000000\n" +
		"2,10,5.0,950000000\n" +
		"1,20,3.5,960000000\n"

	MoviesCSV = "movieId,title,genres\n" +
		"10,Toy Story (1995),Adventure|Animation\n" +
		"20,Heat (1995),Action|Crime\n"
)

// RawOption customizes the raw files written by WriteRaw
type RawOption func(files map[string]string)

// WithRatings replaces the ratings file content
func WithRatings(content string) RawOption {
	return func(files map[string]string) {
		files["ratings"] = content
	}
}

// WithMovies replaces the movies file content
func WithMovies(content string) RawOption {
	return func(files map[string]string) {
		files["movies"] = content
	}
}

// WriteRaw lays out a raw zone under a fresh temp dir as
// <raw>/<kind>/<kind>.csv and returns the raw base path
func WriteRaw(t *testing.T, opts ...RawOption) string {
	t.Helper()

	files := map[string]string{
		"ratings": RatingsCSV,
		"movies":  MoviesCSV,
	}

	for _, opt := range opts {
		opt(files)
	}

	raw := filepath.Join(t.TempDir(), "raw")

	for kind, content := range files {
		dir := filepath.Join(raw, kind)
		require.NoError(t, os.MkdirAll(dir, 0o750))
		require.NoError(t, os.WriteFile(filepath.Join(dir, kind+".csv"), []byte(content), 0o600))
	}

	return raw
}
