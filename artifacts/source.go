// Package artifacts loads the fitted vectorizer and the two tree models from local disk
// or an object store and bundles them for the inference pipeline.
package artifacts

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Info describes the stored version of an artifact. It is used to detect changes
// between refreshes without downloading the artifact.
type Info struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"modified"`
	ETag    string    `json:"etag,omitempty"`
}

// Same reports whether two infos describe the same stored object
func (i Info) Same(o Info) bool {
	if i.ETag != "" || o.ETag != "" {
		return i.ETag == o.ETag && i.Size == o.Size
	}
	return i.Size == o.Size && i.ModTime.Equal(o.ModTime)
}

// Source is where artifacts are read from
type Source interface {
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	Stat(ctx context.Context, name string) (Info, error)
	// Describe returns a human readable location for logs and errors
	Describe(name string) string
}

// FileSource reads artifacts from a local directory
type FileSource struct {
	Dir string
}

func NewFileSource(dir string) *FileSource {
	return &FileSource{Dir: dir}
}

func (s *FileSource) path(name string) string {
	return filepath.Join(s.Dir, name)
}

func (s *FileSource) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.Open(s.path(name))
}

func (s *FileSource) Stat(ctx context.Context, name string) (Info, error) {
	if err := ctx.Err(); err != nil {
		return Info{}, err
	}

	fi, err := os.Stat(s.path(name))
	if err != nil {
		return Info{}, err
	}
	if fi.IsDir() {
		return Info{}, fmt.Errorf("%s is a directory", s.path(name))
	}

	return Info{Name: name, Size: fi.Size(), ModTime: fi.ModTime()}, nil
}

func (s *FileSource) Describe(name string) string {
	return s.path(name)
}
