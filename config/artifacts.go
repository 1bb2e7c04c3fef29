package config

import (
	"fmt"

	"github.com/giygas/drug-predictor-api/artifacts"
)

// ArtifactNames returns the configured artifact file names
func (c *Config) ArtifactNames() artifacts.Names {
	return artifacts.Names{
		Vectorizer:      c.VectorizerFile,
		RatingModel:     c.RatingModelFile,
		SideEffectModel: c.SideEffectModelFile,
	}
}

// NewArtifactSource builds the configured artifact source
func (c *Config) NewArtifactSource() (artifacts.Source, error) {
	switch c.ArtifactSource {
	case SourceFile, "":
		return artifacts.NewFileSource(c.ArtifactDir), nil
	case SourceMinIO:
		return artifacts.NewMinIOSource(c.MinIOEndpoint, c.MinIOAccessKey, c.MinIOSecretKey,
			c.MinIOBucket, c.MinIOPrefix, c.MinIOUseSSL)
	}
	return nil, fmt.Errorf("unknown artifact source %q", c.ArtifactSource)
}
