package cmd

import (
	"fmt"

	"github.com/ethpandaops/medallion/pkg/convert"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra commands are typically global
var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Convert legacy '::'-delimited MovieLens files to CSV",
	Long: `Reads latin-1 '::'-delimited ratings and movies files and writes
ratings_subset.csv and movies.csv (comma-delimited, with header) into the
output directory. With both --start-year and --end-year only ratings whose
UTC year falls in that inclusive range are kept.`,
	Example: `  medallion convert --ratings ml-10M/ratings.dat --movies ml-10M/movies.dat --outdir raw
  medallion convert --ratings ratings.dat --movies movies.dat --outdir raw --start-year 2000 --end-year 2009 --chunksize 100000`,
	RunE: runConvert,
}

func init() {
	rootCmd.AddCommand(convertCmd)

	f := convertCmd.Flags()
	f.String("ratings", "", "legacy ratings file")
	f.String("movies", "", "legacy movies file")
	f.String("outdir", "", "output directory, created if missing")
	f.Int("start-year", 0, "first rating year to keep (needs --end-year)")
	f.Int("end-year", 0, "last rating year to keep (needs --start-year)")
	f.Int("chunksize", 0, "ratings rows per chunk; 0 or less reads in one pass")

	_ = convertCmd.MarkFlagRequired("ratings")
	_ = convertCmd.MarkFlagRequired("movies")
	_ = convertCmd.MarkFlagRequired("outdir")
}

func runConvert(cmd *cobra.Command, _ []string) error {
	// Silence usage on error
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	f := cmd.Flags()

	opts := convert.Options{}
	opts.Ratings, _ = f.GetString("ratings")
	opts.Movies, _ = f.GetString("movies")
	opts.OutDir, _ = f.GetString("outdir")
	opts.ChunkSize, _ = f.GetInt("chunksize")

	if f.Changed("start-year") {
		year, _ := f.GetInt("start-year")
		opts.StartYear = &year
	}

	if f.Changed("end-year") {
		year, _ := f.GetInt("end-year")
		opts.EndYear = &year
	}

	result, err := convert.New(logger).Convert(cmd.Context(), opts)
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintln(cmd.OutOrStdout(), result.RatingsPath)
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), result.MoviesPath)

	return nil
}
