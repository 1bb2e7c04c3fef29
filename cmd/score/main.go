// Command score rates every row of a CSV file with the trained artifacts and writes the
// input columns followed by the prediction columns.
//
//	score -in drugs.csv -out scored.csv -artifacts ./models
//
// Artifact settings not given as flags come from the environment (and .env), the same
// variables the server reads.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/giygas/drug-predictor-api/artifacts"
	"github.com/giygas/drug-predictor-api/batch"
	"github.com/giygas/drug-predictor-api/config"
	"github.com/giygas/drug-predictor-api/logging"
	"github.com/giygas/drug-predictor-api/validation"
)

func main() {
	in := flag.String("in", "-", "input CSV file, - for stdin")
	out := flag.String("out", "-", "output CSV file, - for stdout")
	dir := flag.String("artifacts", "", "artifact directory, overrides ARTIFACT_DIR and selects the file source")
	maxRows := flag.Int("max-rows", 0, "fail when the input has more rows, 0 for no limit")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintln(os.Stderr, "Failed to read .env:", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *in, *out, *dir, *maxRows); err != nil {
		fmt.Fprintln(os.Stderr, "score:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, in, out, dir string, maxRows int) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if dir != "" {
		cfg.ArtifactSource = config.SourceFile
		cfg.ArtifactDir = dir
	}

	src, err := cfg.NewArtifactSource()
	if err != nil {
		return err
	}
	bundle, err := artifacts.Load(ctx, src, cfg.ArtifactNames())
	if err != nil {
		return err
	}
	pipeline, err := bundle.Pipeline()
	if err != nil {
		return err
	}
	logging.Info("Artifacts loaded", "version", bundle.Version, "feature_width", bundle.FeatureWidth())

	r, closeIn, err := openInput(in)
	if err != nil {
		return err
	}
	defer closeIn()

	w, closeOut, err := openOutput(out)
	if err != nil {
		return err
	}

	reader, err := batch.NewReader(r)
	if err != nil {
		closeOut()
		return err
	}
	writer, err := batch.NewWriter(w, reader.Header())
	if err != nil {
		closeOut()
		return err
	}

	validator := validation.NewRecordValidator(cfg.MaxTextFieldLength, 0)
	sum, err := batch.Score(ctx, pipeline, validator, reader, writer, maxRows)
	if cerr := closeOut(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}

	logging.Info("Scoring finished",
		"rows", sum.Rows,
		"scored", sum.Scored,
		"failed", sum.Failed,
		"encoding", reader.Encoding(),
		"duration", sum.Duration.String(),
	)
	return nil
}

func openInput(name string) (io.Reader, func(), error) {
	if name == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(name)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}

func openOutput(name string) (io.Writer, func() error, error) {
	if name == "-" {
		return os.Stdout, func() error { return nil }, nil
	}
	f, err := os.Create(name)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}
