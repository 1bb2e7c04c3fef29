package config

import (
	"testing"

	"github.com/giygas/drug-predictor-api/artifacts"
)

func TestArtifactNames(t *testing.T) {
	cfg := &Config{VectorizerFile: "v.json", RatingModelFile: "r.json", SideEffectModelFile: "s.json"}

	names := cfg.ArtifactNames()
	if names.Vectorizer != "v.json" || names.RatingModel != "r.json" || names.SideEffectModel != "s.json" {
		t.Errorf("unexpected names %+v", names)
	}
}

func TestNewArtifactSource(t *testing.T) {
	cfg := &Config{ArtifactSource: SourceFile, ArtifactDir: "models"}
	src, err := cfg.NewArtifactSource()
	if err != nil {
		t.Fatalf("file source: %v", err)
	}
	if _, ok := src.(*artifacts.FileSource); !ok {
		t.Errorf("expected *artifacts.FileSource, got %T", src)
	}

	cfg = &Config{ArtifactSource: SourceMinIO, MinIOEndpoint: "127.0.0.1:9000", MinIOBucket: "models", MinIOPrefix: "v2"}
	src, err = cfg.NewArtifactSource()
	if err != nil {
		t.Fatalf("minio source: %v", err)
	}
	if got := src.Describe("a.json"); got != "s3://models/v2/a.json" {
		t.Errorf("unexpected location %q", got)
	}

	cfg = &Config{ArtifactSource: "ftp"}
	if _, err := cfg.NewArtifactSource(); err == nil {
		t.Error("expected error for unknown source")
	}
}
