package media

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bcrapp/bcr-backend/pkg/logger"
)

// Sink is the blob backend behind the photo library: local disk in the
// default deployment, an S3-compatible store behind the same interface when
// one is configured. Object keys are slash-separated relative paths.
type Sink interface {
	Put(objectKey string, data []byte, contentType string) error
	Delete(objectKey string) error
	Exists(objectKey string) bool
	PublicURL(objectKey string) string
}

// LocalSink stores blobs under a root directory and serves them through the
// static file mount at publicPrefix.
type LocalSink struct {
	root         string
	publicPrefix string
}

func NewLocalSink(root, publicPrefix string) (*LocalSink, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create media root %s: %w", root, err)
	}
	logger.Info("local media sink initialized at: %s", root)
	return &LocalSink{root: root, publicPrefix: strings.TrimRight(publicPrefix, "/")}, nil
}

func (s *LocalSink) absPath(objectKey string) string {
	return filepath.Join(s.root, filepath.FromSlash(strings.TrimLeft(objectKey, "/")))
}

func (s *LocalSink) Put(objectKey string, data []byte, contentType string) error {
	path := s.absPath(objectKey)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create media dir for %s: %w", objectKey, err)
	}
	// Write to a temp file and rename so readers never see a partial blob.
	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to stage blob %s: %w", objectKey, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write blob %s: %w", objectKey, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close blob %s: %w", objectKey, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to publish blob %s: %w", objectKey, err)
	}
	return nil
}

func (s *LocalSink) Delete(objectKey string) error {
	err := os.Remove(s.absPath(objectKey))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete blob %s: %w", objectKey, err)
	}
	return nil
}

func (s *LocalSink) Exists(objectKey string) bool {
	_, err := os.Stat(s.absPath(objectKey))
	return err == nil
}

func (s *LocalSink) PublicURL(objectKey string) string {
	return s.publicPrefix + "/" + strings.TrimLeft(objectKey, "/")
}
