package artifacts

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/giygas/drug-predictor-api/gbtree"
	"github.com/giygas/drug-predictor-api/inference"
	"github.com/giygas/drug-predictor-api/tfidf"
)

// Artifact file names used when configuration does not override them
const (
	DefaultVectorizerFile      = "tfidf_vectorizer.json"
	DefaultRatingModelFile     = "xgb_rating_model.json"
	DefaultSideEffectModelFile = "xgb_side_effect_model.json"
)

const maxArtifactSize = 1 << 30

// pickle protocol 2+ streams start with the PROTO opcode
const pickleProto = 0x80

// Names are the object names of the three artifacts within a Source
type Names struct {
	Vectorizer      string
	RatingModel     string
	SideEffectModel string
}

// DefaultNames returns the standard artifact file names
func DefaultNames() Names {
	return Names{
		Vectorizer:      DefaultVectorizerFile,
		RatingModel:     DefaultRatingModelFile,
		SideEffectModel: DefaultSideEffectModelFile,
	}
}

func (n Names) withDefaults() Names {
	def := DefaultNames()
	if n.Vectorizer == "" {
		n.Vectorizer = def.Vectorizer
	}
	if n.RatingModel == "" {
		n.RatingModel = def.RatingModel
	}
	if n.SideEffectModel == "" {
		n.SideEffectModel = def.SideEffectModel
	}
	return n
}

// Fingerprint identifies the stored versions a bundle was loaded from
type Fingerprint struct {
	Vectorizer      Info `json:"vectorizer"`
	RatingModel     Info `json:"rating_model"`
	SideEffectModel Info `json:"side_effect_model"`
}

// Same reports whether both fingerprints describe the same stored artifacts
func (f Fingerprint) Same(o Fingerprint) bool {
	return f.Vectorizer.Same(o.Vectorizer) &&
		f.RatingModel.Same(o.RatingModel) &&
		f.SideEffectModel.Same(o.SideEffectModel)
}

// Bundle is one consistent, immutable set of loaded artifacts
type Bundle struct {
	Vectorizer  *tfidf.Vectorizer
	Rating      *gbtree.Model
	SideEffect  *gbtree.Model
	Fingerprint Fingerprint
	// Version is a short content hash of the three artifacts
	Version  string
	LoadedAt time.Time
}

// FeatureWidth is the width of the feature rows the bundle scores
func (b *Bundle) FeatureWidth() int {
	return b.Vectorizer.Features() + len(inference.NumericFieldOrder)
}

// Pipeline wires the bundle into an inference pipeline
func (b *Bundle) Pipeline() (*inference.Pipeline, error) {
	return inference.NewPipeline(b.Vectorizer, b.Rating, b.SideEffect)
}

// Snapshot pairs a bundle with the pipeline built from it, so a request reads both from
// the same load
type Snapshot struct {
	Bundle   *Bundle
	Pipeline *inference.Pipeline
}

// Stat fingerprints the artifacts currently stored in src
func Stat(ctx context.Context, src Source, names Names) (Fingerprint, error) {
	names = names.withDefaults()

	var fp Fingerprint
	var err error
	if fp.Vectorizer, err = src.Stat(ctx, names.Vectorizer); err != nil {
		return Fingerprint{}, fmt.Errorf("stat %s: %w", src.Describe(names.Vectorizer), err)
	}
	if fp.RatingModel, err = src.Stat(ctx, names.RatingModel); err != nil {
		return Fingerprint{}, fmt.Errorf("stat %s: %w", src.Describe(names.RatingModel), err)
	}
	if fp.SideEffectModel, err = src.Stat(ctx, names.SideEffectModel); err != nil {
		return Fingerprint{}, fmt.Errorf("stat %s: %w", src.Describe(names.SideEffectModel), err)
	}
	return fp, nil
}

// Load reads, decodes and cross-checks the three artifacts. Every failure is returned
// as an *inference.ArtifactLoadError.
func Load(ctx context.Context, src Source, names Names) (*Bundle, error) {
	names = names.withDefaults()
	hash := sha256.New()

	fp, err := Stat(ctx, src, names)
	if err != nil {
		return nil, &inference.ArtifactLoadError{Artifact: "artifacts", Err: err}
	}

	raw, err := read(ctx, src, "vectorizer", names.Vectorizer, hash)
	if err != nil {
		return nil, err
	}
	vec, err := tfidf.Load(bytes.NewReader(raw))
	if err != nil {
		return nil, loadError(src, "vectorizer", names.Vectorizer, err)
	}

	rating, err := loadModel(ctx, src, "rating model", names.RatingModel, hash)
	if err != nil {
		return nil, err
	}
	sideEffect, err := loadModel(ctx, src, "side effect model", names.SideEffectModel, hash)
	if err != nil {
		return nil, err
	}

	if !sideEffect.Objective().Binary() {
		return nil, loadError(src, "side effect model", names.SideEffectModel,
			fmt.Errorf("objective %q is not a binary classifier", sideEffect.Objective()))
	}

	width := vec.Features() + len(inference.NumericFieldOrder)
	if rating.NumFeature() != width {
		return nil, loadError(src, "rating model", names.RatingModel,
			&inference.DimensionMismatchError{Model: "rating model", Got: width, Want: rating.NumFeature()})
	}
	if sideEffect.NumFeature() != width {
		return nil, loadError(src, "side effect model", names.SideEffectModel,
			&inference.DimensionMismatchError{Model: "side effect model", Got: width, Want: sideEffect.NumFeature()})
	}

	return &Bundle{
		Vectorizer:  vec,
		Rating:      rating,
		SideEffect:  sideEffect,
		Fingerprint: fp,
		Version:     hex.EncodeToString(hash.Sum(nil))[:12],
		LoadedAt:    time.Now(),
	}, nil
}

func loadModel(ctx context.Context, src Source, artifact, name string, hash io.Writer) (*gbtree.Model, error) {
	raw, err := read(ctx, src, artifact, name, hash)
	if err != nil {
		return nil, err
	}

	m, err := gbtree.Load(bytes.NewReader(raw))
	if err != nil {
		return nil, loadError(src, artifact, name, err)
	}
	return m, nil
}

func read(ctx context.Context, src Source, artifact, name string, hash io.Writer) ([]byte, error) {
	rc, err := src.Open(ctx, name)
	if err != nil {
		return nil, loadError(src, artifact, name, err)
	}
	defer rc.Close()

	raw, err := io.ReadAll(io.LimitReader(rc, maxArtifactSize+1))
	if err != nil {
		return nil, loadError(src, artifact, name, err)
	}
	if len(raw) > maxArtifactSize {
		return nil, loadError(src, artifact, name, fmt.Errorf("artifact is larger than %d bytes", maxArtifactSize))
	}
	if len(raw) == 0 {
		return nil, loadError(src, artifact, name, errors.New("artifact is empty"))
	}
	if raw[0] == pickleProto {
		return nil, loadError(src, artifact, name,
			errors.New("artifact is a Python pickle; export it to JSON (vectorizer attributes, or Booster.save_model with a .json name)"))
	}

	hash.Write(raw)
	return raw, nil
}

func loadError(src Source, artifact, name string, err error) error {
	return &inference.ArtifactLoadError{Artifact: artifact, Location: src.Describe(name), Err: err}
}

// Loader binds a source to artifact names
type Loader struct {
	Source Source
	Names  Names
}

func NewLoader(src Source, names Names) *Loader {
	return &Loader{Source: src, Names: names.withDefaults()}
}

func (l *Loader) Load(ctx context.Context) (*Bundle, error) {
	return Load(ctx, l.Source, l.Names)
}

func (l *Loader) Stat(ctx context.Context) (Fingerprint, error) {
	return Stat(ctx, l.Source, l.Names)
}

// Describe names where the vectorizer is read from, for logs
func (l *Loader) Describe() string {
	return l.Source.Describe(l.Names.Vectorizer)
}
