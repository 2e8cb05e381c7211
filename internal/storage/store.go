// Package storage persists generated media. Keys are slash-separated and
// scoped per story: stories/<storyID>/scene-<n>/<modality>.<ext>.
package storage

import (
	"context"
	"fmt"

	"storyreel/internal/infra"
)

// Store is the blob port the runners and the webhook handler write through.
type Store interface {
	// Put persists the bytes at key and returns the externally usable URL.
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
	// Get reads a previously stored blob back, for the archive download.
	Get(ctx context.Context, key string) ([]byte, error)
}

// NewFromConfig selects a backend from STORAGE_BACKEND.
func NewFromConfig(cfg *infra.Config) (Store, error) {
	switch cfg.StorageBackend {
	case "s3":
		return NewS3Store(S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
		})
	case "file":
		return NewFileStore(cfg.StoragePath, cfg.StorageBaseURL)
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", cfg.StorageBackend)
	}
}

// SceneKey builds the canonical key for one scene's generated asset.
func SceneKey(storyID string, sceneIndex int, modality, ext string) string {
	return fmt.Sprintf("stories/%s/scene-%d/%s.%s", storyID, sceneIndex, modality, ext)
}
