package main

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"inmoelegance/internal/blob"
	"inmoelegance/internal/config"
	"inmoelegance/internal/core"
	"inmoelegance/internal/media"
)

// app is the service stack shared by the subcommands.
type app struct {
	store core.PersistentStore
	svc   *core.Service
}

// openApp opens the configured store and builds the core service on it.
func openApp(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...core.ServiceOption) (*app, error) {
	store, err := core.OpenPersistentStore(ctx, core.StorageOptions{
		Driver:      core.StorageDriver(cfg.Storage.Driver),
		SQLitePath:  cfg.Storage.SQLitePath,
		PostgresDSN: cfg.Storage.PostgresDSN,
	}, core.NewDefaultRulesEngine())
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Storage.Driver, err)
	}
	base := []core.ServiceOption{
		core.WithLogger(logger),
		core.WithAuditRecorder(core.NewZapAuditRecorder(logger)),
		core.WithExpressionCache(core.NewExpressionCache(cfg.Site.ExpressionCacheSize)),
	}
	svc := core.NewService(store, append(base, opts...)...)
	logger.Debug("store opened", zap.String("driver", cfg.Storage.Driver))
	return &app{store: store, svc: svc}, nil
}

// Close releases the store when it holds a database handle.
func (a *app) Close() error {
	if closer, ok := a.store.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func openBlob(ctx context.Context, cfg *config.Config) (blob.Store, error) {
	store, err := blob.Open(ctx, blob.Config{
		Driver:    blob.Driver(cfg.Blob.Driver),
		FSRoot:    cfg.Blob.FSRoot,
		URLPrefix: media.DefaultMediaPath,
		S3:        cfg.Blob.S3,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s blob store: %w", cfg.Blob.Driver, err)
	}
	return store, nil
}

func newUploader(cfg *config.Config, store blob.Store) (media.Uploader, error) {
	switch cfg.Media.Driver {
	case "cloudinary":
		return media.NewCloudinaryUploader(media.CloudinaryOptions{
			CloudName:    cfg.Media.Cloudinary.CloudName,
			UploadPreset: cfg.Media.Cloudinary.UploadPreset,
			MaxBytes:     cfg.Media.MaxBytes,
		})
	default:
		return media.NewBlobUploader(store, media.BlobOptions{
			PublicBaseURL: cfg.Media.PublicBaseURL,
			MediaPath:     media.DefaultMediaPath,
			MaxBytes:      cfg.Media.MaxBytes,
			PresignExpiry: cfg.PresignExpiry(),
		}), nil
	}
}
