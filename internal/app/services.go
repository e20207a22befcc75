package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pinboard/pinboard/internal/images"
	"github.com/pinboard/pinboard/internal/pins"
	"github.com/pinboard/pinboard/internal/rbac"
	"github.com/pinboard/pinboard/internal/shared"
)

// NewImageStorage opens the blob backend selected by IMAGE_STORAGE.
func NewImageStorage(ctx context.Context, cfg *Config) (images.Storage, error) {
	switch cfg.ImageStorage {
	case StorageS3:
		return images.NewS3Storage(ctx, images.S3Options{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		})
	case StorageFS, "":
		return images.NewFSStorage(cfg.MediaRoot)
	default:
		return nil, fmt.Errorf("app: unknown image storage %q", cfg.ImageStorage)
	}
}

// NewImageFetcher builds the fetcher used by the API and the worker.
func NewImageFetcher(cfg *Config, pool *pgxpool.Pool, storage images.Storage, logger *slog.Logger) *images.Fetcher {
	client := &http.Client{Timeout: cfg.ImageFetchTimeout}
	return images.NewFetcher(client, storage, images.NewRepository(pool), logger)
}

// NewPinService wires the pin service. enqueuer may be nil when submissions
// are processed inline.
func NewPinService(cfg *Config, pool *pgxpool.Pool, fetcher pins.ImageFetcher, authz *rbac.Service, enqueuer pins.Enqueuer, logger *slog.Logger) *pins.Service {
	return pins.NewService(
		pins.NewRepository(pool),
		fetcher,
		authz,
		pins.ServiceConfig{
			Async:       cfg.ImageFetchAsync && enqueuer != nil,
			Enqueuer:    enqueuer,
			Idempotency: shared.NewIdempotencyStore(pool),
		},
		logger,
	)
}
