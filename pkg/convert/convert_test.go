package convert

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 946684800 and 950000000 are in 2000, 915148800 is 1999-01-01, 978307200 is 2001-01-01
const legacyRatings = "1::10::4.5::946684800\n" +
	"2::10::5::950000000\n" +
	"3::11::3::915148800\n" +
	"4::12::2.5::978307200\n" +
	"5::13::1::946684799\n"

func newConverter() *Converter {
	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)

	return New(log)
}

func writeLegacy(t *testing.T, dir string) (ratings, movies string) {
	t.Helper()

	ratings = filepath.Join(dir, "ratings.dat")
	movies = filepath.Join(dir, "movies.dat")

	require.NoError(t, os.WriteFile(ratings, []byte(legacyRatings), 0o600))
	// "Am\xe9lie" is latin-1
	require.NoError(t, os.WriteFile(movies, []byte("10::Toy Story (1995)::Animation|Children's\n11::Am\xe9lie, Le (2001)::Comedy|Romance\n"), 0o600))

	return ratings, movies
}

func readFile(t *testing.T, path string) string {
	t.Helper()

	b, err := os.ReadFile(path)
	require.NoError(t, err)

	return string(b)
}

func intPtr(v int) *int {
	return &v
}

func TestOptionsValidate(t *testing.T) {
	valid := Options{Ratings: "r", Movies: "m", OutDir: "o"}

	tests := []struct {
		name    string
		mutate  func(o *Options)
		wantErr error
	}{
		{name: "valid", mutate: func(_ *Options) {}},
		{name: "no ratings", mutate: func(o *Options) { o.Ratings = "" }, wantErr: ErrNoRatings},
		{name: "no movies", mutate: func(o *Options) { o.Movies = "" }, wantErr: ErrNoMovies},
		{name: "no outdir", mutate: func(o *Options) { o.OutDir = "" }, wantErr: ErrNoOutDir},
		{name: "negative chunk", mutate: func(o *Options) { o.ChunkSize = -1 }},
		{name: "reversed years", mutate: func(o *Options) { o.StartYear, o.EndYear = intPtr(2001), intPtr(2000) }, wantErr: ErrInvalidYearRange},
		{name: "single bound", mutate: func(o *Options) { o.StartYear = intPtr(2001) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := valid
			tt.mutate(&o)

			err := o.Validate()
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}

			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestConvertRoundTrip(t *testing.T) {
	dir := t.TempDir()
	ratings, movies := writeLegacy(t, dir)
	out := filepath.Join(dir, "out", "nested")

	res, err := newConverter().Convert(context.Background(), Options{Ratings: ratings, Movies: movies, OutDir: out})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(out, RatingsFile), res.RatingsPath)
	assert.Equal(t, filepath.Join(out, MoviesFile), res.MoviesPath)
	assert.Equal(t, 5, res.Ratings)
	assert.Equal(t, 2, res.Movies)

	assert.Equal(t, "userId,movieId,rating,timestamp\n"+
		"1,10,4.5,946684800\n"+
		"2,10,5,950000000\n"+
		"3,11,3,915148800\n"+
		"4,12,2.5,978307200\n"+
		"5,13,1,946684799\n", readFile(t, res.RatingsPath))

	assert.Equal(t, "movieId,title,genres\n"+
		"10,Toy Story (1995),Animation|Children's\n"+
		"11,\"Amélie, Le (2001)\",Comedy|Romance\n", readFile(t, res.MoviesPath))
}

func TestConvertYearFilter(t *testing.T) {
	tests := []struct {
		name      string
		chunkSize int
	}{
		{name: "single pass", chunkSize: 0},
		{name: "negative is single pass", chunkSize: -5},
		{name: "chunk of one", chunkSize: 1},
		{name: "chunk of two", chunkSize: 2},
		{name: "chunk larger than input", chunkSize: 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			ratings, movies := writeLegacy(t, dir)

			res, err := newConverter().Convert(context.Background(), Options{
				Ratings:   ratings,
				Movies:    movies,
				OutDir:    dir,
				StartYear: intPtr(2000),
				EndYear:   intPtr(2000),
				ChunkSize: tt.chunkSize,
			})
			require.NoError(t, err)

			assert.Equal(t, 2, res.Ratings)
			assert.Equal(t, "userId,movieId,rating,timestamp\n"+
				"1,10,4.5,946684800\n"+
				"2,10,5,950000000\n", readFile(t, res.RatingsPath))
		})
	}
}

func TestConvertChunkedMatchesSinglePass(t *testing.T) {
	dir := t.TempDir()
	ratings, movies := writeLegacy(t, dir)

	single := filepath.Join(dir, "single")
	chunked := filepath.Join(dir, "chunked")

	_, err := newConverter().Convert(context.Background(), Options{Ratings: ratings, Movies: movies, OutDir: single})
	require.NoError(t, err)

	_, err = newConverter().Convert(context.Background(), Options{Ratings: ratings, Movies: movies, OutDir: chunked, ChunkSize: 3})
	require.NoError(t, err)

	assert.Equal(t, readFile(t, filepath.Join(single, RatingsFile)), readFile(t, filepath.Join(chunked, RatingsFile)))
}

func TestConvertFailsOnMalformedRow(t *testing.T) {
	dir := t.TempDir()
	_, movies := writeLegacy(t, dir)

	ratings := filepath.Join(dir, "bad.dat")
	require.NoError(t, os.WriteFile(ratings, []byte("1::10::4.5::946684800\n2::ten::5::950000000\n"), 0o600))

	for _, chunkSize := range []int{0, 1} {
		out := filepath.Join(dir, "out")

		_, err := newConverter().Convert(context.Background(), Options{Ratings: ratings, Movies: movies, OutDir: out, ChunkSize: chunkSize})
		require.Error(t, err)

		_, statErr := os.Stat(filepath.Join(out, RatingsFile))
		assert.True(t, os.IsNotExist(statErr))
	}
}

func TestConvertMissingSource(t *testing.T) {
	dir := t.TempDir()

	_, err := newConverter().Convert(context.Background(), Options{
		Ratings: filepath.Join(dir, "nope.dat"),
		Movies:  filepath.Join(dir, "nope.dat"),
		OutDir:  dir,
	})
	require.Error(t, err)
}
