package artifacts

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giygas/drug-predictor-api/inference"
)

const fixtureDir = "testdata/models"

// copyFixtures copies the fixture artifacts into a temp dir, applying edits keyed by file name
func copyFixtures(t *testing.T, edits map[string]func(string) string) string {
	t.Helper()

	dir := t.TempDir()
	for _, name := range []string{DefaultVectorizerFile, DefaultRatingModelFile, DefaultSideEffectModelFile} {
		raw, err := os.ReadFile(filepath.Join(fixtureDir, name))
		require.NoError(t, err)

		content := string(raw)
		if edit, ok := edits[name]; ok {
			content = edit(content)
		}
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func TestLoadFixtures(t *testing.T) {
	b, err := Load(context.Background(), NewFileSource(fixtureDir), Names{})
	require.NoError(t, err)

	assert.Equal(t, 7, b.Vectorizer.Features())
	assert.Equal(t, 8, b.FeatureWidth())
	assert.Equal(t, 8, b.Rating.NumFeature())
	assert.True(t, b.SideEffect.Objective().Binary())
	assert.Len(t, b.Version, 12)
	assert.WithinDuration(t, time.Now(), b.LoadedAt, time.Minute)
	assert.Equal(t, DefaultRatingModelFile, b.Fingerprint.RatingModel.Name)

	p, err := b.Pipeline()
	require.NoError(t, err)
	result, err := p.Predict(inference.DrugRecord{DrugName: "Aspirin", GenericName: "Acetylsalicylic acid", Activity: 80})
	require.NoError(t, err)
	assert.InDelta(t, 7.5, result.EffectivenessRating, 1e-6)
}

func TestLoadVersionIsContentHash(t *testing.T) {
	a, err := Load(context.Background(), NewFileSource(fixtureDir), DefaultNames())
	require.NoError(t, err)
	b, err := Load(context.Background(), NewFileSource(copyFixtures(t, nil)), DefaultNames())
	require.NoError(t, err)
	assert.Equal(t, a.Version, b.Version)

	dir := copyFixtures(t, map[string]func(string) string{
		DefaultRatingModelFile: func(s string) string { return strings.Replace(s, `"5E0"`, `"6E0"`, 1) },
	})
	c, err := Load(context.Background(), NewFileSource(dir), DefaultNames())
	require.NoError(t, err)
	assert.NotEqual(t, a.Version, c.Version)
}

func TestLoadMissingArtifact(t *testing.T) {
	dir := copyFixtures(t, nil)
	require.NoError(t, os.Remove(filepath.Join(dir, DefaultSideEffectModelFile)))

	_, err := Load(context.Background(), NewFileSource(dir), DefaultNames())

	require.Error(t, err)
	assert.ErrorIs(t, err, inference.ErrArtifactLoad)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadRejectsPickle(t *testing.T) {
	dir := copyFixtures(t, map[string]func(string) string{
		DefaultVectorizerFile: func(string) string { return "\x80\x04\x95\x00\x00" },
	})

	_, err := Load(context.Background(), NewFileSource(dir), DefaultNames())

	var loadErr *inference.ArtifactLoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, "vectorizer", loadErr.Artifact)
	assert.Contains(t, err.Error(), "pickle")
	assert.Equal(t, filepath.Join(dir, DefaultVectorizerFile), loadErr.Location)
}

func TestLoadRejectsCorruptModel(t *testing.T) {
	dir := copyFixtures(t, map[string]func(string) string{
		DefaultRatingModelFile: func(s string) string { return s[:len(s)/2] },
	})

	_, err := Load(context.Background(), NewFileSource(dir), DefaultNames())

	var loadErr *inference.ArtifactLoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, "rating model", loadErr.Artifact)
}

func TestLoadRejectsEmptyArtifact(t *testing.T) {
	dir := copyFixtures(t, map[string]func(string) string{
		DefaultSideEffectModelFile: func(string) string { return "" },
	})

	_, err := Load(context.Background(), NewFileSource(dir), DefaultNames())
	assert.ErrorIs(t, err, inference.ErrArtifactLoad)
}

func TestLoadWidthMismatch(t *testing.T) {
	dir := copyFixtures(t, map[string]func(string) string{
		DefaultRatingModelFile: func(s string) string {
			return strings.Replace(s, "\"num_feature\": \"8\",\n", "\"num_feature\": \"9\",\n", 1)
		},
	})

	_, err := Load(context.Background(), NewFileSource(dir), DefaultNames())

	assert.ErrorIs(t, err, inference.ErrArtifactLoad)
	assert.ErrorIs(t, err, inference.ErrDimensionMismatch)
	var mismatch *inference.DimensionMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, 8, mismatch.Got)
	assert.Equal(t, 9, mismatch.Want)
}

func TestLoadRequiresBinarySideEffectModel(t *testing.T) {
	dir := copyFixtures(t, map[string]func(string) string{
		DefaultSideEffectModelFile: func(s string) string {
			s = strings.Replace(s, `"binary:logistic"`, `"reg:squarederror"`, 1)
			return strings.Replace(s, `"[5E-1]"`, `"5E-1"`, 1)
		},
	})

	_, err := Load(context.Background(), NewFileSource(dir), DefaultNames())

	var loadErr *inference.ArtifactLoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, "side effect model", loadErr.Artifact)
	assert.Contains(t, err.Error(), "binary")
}

func TestLoadCustomNames(t *testing.T) {
	dir := copyFixtures(t, nil)
	require.NoError(t, os.Rename(filepath.Join(dir, DefaultRatingModelFile), filepath.Join(dir, "rating-v2.json")))

	_, err := Load(context.Background(), NewFileSource(dir), DefaultNames())
	require.Error(t, err)

	_, err = Load(context.Background(), NewFileSource(dir), Names{RatingModel: "rating-v2.json"})
	assert.NoError(t, err)
}

func TestLoadCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Load(ctx, NewFileSource(fixtureDir), DefaultNames())
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, inference.ErrArtifactLoad)
}

func TestFingerprintDetectsChanges(t *testing.T) {
	dir := copyFixtures(t, nil)
	src := NewFileSource(dir)

	before, err := Stat(context.Background(), src, DefaultNames())
	require.NoError(t, err)
	again, err := Stat(context.Background(), src, DefaultNames())
	require.NoError(t, err)
	assert.True(t, before.Same(again))

	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(dir, DefaultVectorizerFile), later, later))

	after, err := Stat(context.Background(), src, DefaultNames())
	require.NoError(t, err)
	assert.False(t, before.Same(after))
}

func TestInfoSamePrefersETag(t *testing.T) {
	now := time.Now()
	a := Info{Size: 10, ModTime: now, ETag: "abc"}

	assert.True(t, a.Same(Info{Size: 10, ModTime: now.Add(time.Hour), ETag: "abc"}))
	assert.False(t, a.Same(Info{Size: 10, ModTime: now, ETag: "def"}))
	assert.False(t, Info{Size: 10, ModTime: now}.Same(Info{Size: 11, ModTime: now}))
}

type failingSource struct{ *FileSource }

func (failingSource) Open(context.Context, string) (io.ReadCloser, error) {
	return nil, errors.New("connection reset")
}

func TestLoadSourceFailure(t *testing.T) {
	_, err := Load(context.Background(), failingSource{NewFileSource(fixtureDir)}, DefaultNames())

	assert.ErrorIs(t, err, inference.ErrArtifactLoad)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestFileSourceStatRejectsDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "model.json"), 0o755))

	_, err := NewFileSource(dir).Stat(context.Background(), "model.json")
	assert.Error(t, err)
}

func TestMinIOSourceKeys(t *testing.T) {
	src, err := NewMinIOSource("localhost:9000", "access", "secret", "models", "/drug-predictor/v3/", false)
	require.NoError(t, err)

	assert.Equal(t, "drug-predictor/v3/xgb_rating_model.json", src.key(DefaultRatingModelFile))
	assert.Equal(t, "s3://models/drug-predictor/v3/tfidf_vectorizer.json", src.Describe(DefaultVectorizerFile))

	flat, err := NewMinIOSource("localhost:9000", "access", "secret", "models", "", true)
	require.NoError(t, err)
	assert.Equal(t, "xgb_rating_model.json", flat.key(DefaultRatingModelFile))
}

func TestMinIOSourceRequiresBucket(t *testing.T) {
	_, err := NewMinIOSource("localhost:9000", "access", "secret", "", "", false)
	assert.Error(t, err)
}
