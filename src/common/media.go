package common

import (
	"context"
	"errors"
	"log"
	"olympia/src/config"
	awslib "olympia/src/lib/aws"
	"os"
	"path/filepath"
	"strings"
)

// MediaStore persists evidence blobs and returns an opaque reference.
type MediaStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Delete(ctx context.Context, ref string) error
}

const fileRefScheme = "file://"

// LocalMediaStore writes evidence under a directory on disk.
type LocalMediaStore struct {
	Dir string
}

func NewLocalMediaStore(dir string) (*LocalMediaStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &LocalMediaStore{Dir: dir}, nil
}

func (s *LocalMediaStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	p := filepath.Join(s.Dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return "", err
	}
	return fileRefScheme + filepath.ToSlash(key), nil
}

func (s *LocalMediaStore) Delete(ctx context.Context, ref string) error {
	key, ok := strings.CutPrefix(ref, fileRefScheme)
	if !ok {
		return errors.New("not a local media reference")
	}
	return os.Remove(filepath.Join(s.Dir, filepath.FromSlash(key)))
}

// NewMediaStoreFromEnv prefers S3 when S3_MEDIA_BUCKET is set.
func NewMediaStoreFromEnv() (MediaStore, error) {
	if bucket := config.MediaBucket(); bucket != "" {
		s, err := awslib.NewS3MediaStore(bucket)
		if err == nil {
			return s, nil
		}
		log.Printf("[Media] S3 unavailable, falling back to %s: %s\n", config.MediaDir(), err.Error())
	}
	return NewLocalMediaStore(config.MediaDir())
}
