package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/starford/capes/internal/heroservice"
	"github.com/starford/capes/internal/media"
	"github.com/starford/capes/internal/records"
)

// catalog bundles the stores and the service built from configuration.
type catalog struct {
	records records.Store
	media   media.Store
	// localMedia is set when images live on disk and must be served by us.
	localMedia *media.FS
	svc        *heroservice.Service
}

func (c *catalog) Close() error {
	return c.records.Close()
}

func openRecords(ctx context.Context, cfg RecordsConfig, logger *slog.Logger) (records.Store, error) {
	switch cfg.Driver {
	case RecordsDriverSQLite:
		return records.OpenSQLite(cfg.SQLite.Path)
	case RecordsDriverBadger:
		return records.OpenBadger(records.BadgerOptions{
			Dir:      cfg.Badger.Dir,
			InMemory: cfg.Badger.InMemory,
			Logger:   logger,
		})
	case RecordsDriverSurreal:
		return records.OpenSurreal(ctx, records.SurrealOptions{
			URL:       cfg.SurrealDB.URL,
			Namespace: cfg.SurrealDB.Namespace,
			Database:  cfg.SurrealDB.Database,
			Username:  cfg.SurrealDB.Username,
			Password:  cfg.SurrealDB.Password,
		})
	default:
		return nil, fmt.Errorf("unknown records driver %q", cfg.Driver)
	}
}

func openMedia(cfg MediaConfig) (media.Store, *media.FS, error) {
	switch cfg.Driver {
	case MediaDriverLocal:
		fs, err := media.NewFS(cfg.Local.Root, cfg.Local.BaseURL, cfg.Folder)
		if err != nil {
			return nil, nil, err
		}
		return fs, fs, nil
	case MediaDriverS3:
		opts := media.S3Options{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			Prefix:          cfg.S3.Prefix,
			PublicBaseURL:   cfg.S3.PublicBaseURL,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			PathStyle:       cfg.S3.PathStyle,
			Folder:          cfg.Folder,
		}
		s, err := media.NewS3(media.NewS3Client(opts), opts)
		if err != nil {
			return nil, nil, err
		}
		return s, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown media driver %q", cfg.Driver)
	}
}

// openCatalog wires the configured backends into a Resource Service.
// pub may be nil.
func openCatalog(ctx context.Context, cfg *Config, pub heroservice.Publisher, logger *slog.Logger) (*catalog, error) {
	ms, local, err := openMedia(cfg.Media)
	if err != nil {
		return nil, fmt.Errorf("init media: %w", err)
	}

	rs, err := openRecords(ctx, cfg.Records, logger)
	if err != nil {
		return nil, fmt.Errorf("init records: %w", err)
	}

	svc := heroservice.NewService(rs, ms, heroservice.Options{
		MaxImagesPerBatch: cfg.Catalog.MaxImagesPerBatch,
		MaxImageBytes:     cfg.App.HTTP.MaxImageBytes,
		DefaultPageSize:   cfg.Catalog.DefaultPageSize,
		MaxPageSize:       cfg.Catalog.MaxPageSize,
		UploadConcurrency: cfg.Catalog.UploadConcurrency,
		UploadTimeout:     cfg.Catalog.UploadTimeout,
		StoreTimeout:      cfg.Catalog.StoreTimeout,
		Publisher:         pub,
		Logger:            logger,
	})

	return &catalog{records: rs, media: ms, localMedia: local, svc: svc}, nil
}

var errNoConfig = errors.New("config is required")
