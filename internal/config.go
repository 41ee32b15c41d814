package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Backend drivers.
const (
	RecordsDriverSQLite  = "sqlite"
	RecordsDriverBadger  = "badger"
	RecordsDriverSurreal = "surrealdb"
	MediaDriverLocal     = "local"
	MediaDriverS3        = "s3"
)

const (
	defaultMediaFolder   = "superheroes"
	defaultMaxBodyBytes  = 50 << 20
	defaultMaxImageBytes = 10 << 20
)

// Config represents the application configuration.
type Config struct {
	App     ApplicationConfig `yaml:"app"`
	Records RecordsConfig     `yaml:"records"`
	Media   MediaConfig       `yaml:"media"`
	Catalog CatalogConfig     `yaml:"catalog"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return fmt.Errorf("app: %w", err)
	}
	if err := c.Records.Validate(); err != nil {
		return fmt.Errorf("records: %w", err)
	}
	if err := c.Media.Validate(); err != nil {
		return fmt.Errorf("media: %w", err)
	}
	if err := c.Catalog.Validate(); err != nil {
		return fmt.Errorf("catalog: %w", err)
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	MaxBodyBytes   int64    `yaml:"max_body_bytes"`
	MaxImageBytes  int64    `yaml:"max_image_bytes"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&c.MaxBodyBytes, validation.Required, validation.Min(int64(1))),
		validation.Field(&c.MaxImageBytes, validation.Required, validation.Min(int64(1)), validation.Max(c.MaxBodyBytes)),
	)
}

// RecordsConfig selects and configures the record store backend.
type RecordsConfig struct {
	Driver    string          `yaml:"driver"`
	SQLite    SQLiteConfig    `yaml:"sqlite"`
	Badger    BadgerConfig    `yaml:"badger"`
	SurrealDB SurrealDBConfig `yaml:"surrealdb"`
}

// Validate validates the selected backend only.
func (c *RecordsConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Driver, validation.Required,
			validation.In(RecordsDriverSQLite, RecordsDriverBadger, RecordsDriverSurreal)),
	); err != nil {
		return err
	}
	switch c.Driver {
	case RecordsDriverSQLite:
		return validation.ValidateStruct(&c.SQLite, validation.Field(&c.SQLite.Path, validation.Required))
	case RecordsDriverBadger:
		if !c.Badger.InMemory && c.Badger.Dir == "" {
			return errors.New("badger: dir is required unless in_memory is set")
		}
	case RecordsDriverSurreal:
		s := &c.SurrealDB
		return validation.ValidateStruct(s,
			validation.Field(&s.URL, validation.Required),
			validation.Field(&s.Namespace, validation.Required),
			validation.Field(&s.Database, validation.Required),
		)
	}
	return nil
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// BadgerConfig holds BadgerDB configuration.
type BadgerConfig struct {
	Dir      string `yaml:"dir"`
	InMemory bool   `yaml:"in_memory"`
}

// SurrealDBConfig holds SurrealDB connection settings.
type SurrealDBConfig struct {
	URL       string `yaml:"url"`
	Namespace string `yaml:"namespace"`
	Database  string `yaml:"database"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
}

// MediaConfig selects and configures the media store backend.
type MediaConfig struct {
	Driver string           `yaml:"driver"`
	Folder string           `yaml:"folder"`
	Local  LocalMediaConfig `yaml:"local"`
	S3     S3MediaConfig    `yaml:"s3"`
}

// Validate validates the selected backend only.
func (c *MediaConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Driver, validation.Required, validation.In(MediaDriverLocal, MediaDriverS3)),
	); err != nil {
		return err
	}
	switch c.Driver {
	case MediaDriverLocal:
		l := &c.Local
		return validation.ValidateStruct(l,
			validation.Field(&l.Root, validation.Required),
			validation.Field(&l.BaseURL, validation.Required),
		)
	case MediaDriverS3:
		s := &c.S3
		return validation.ValidateStruct(s,
			validation.Field(&s.Bucket, validation.Required),
			validation.Field(&s.Region, validation.Required),
		)
	}
	return nil
}

// LocalMediaConfig stores images on disk and serves them at BaseURL.
type LocalMediaConfig struct {
	Root    string `yaml:"root"`
	BaseURL string `yaml:"base_url"`
}

// S3MediaConfig stores images in an S3-compatible bucket.
type S3MediaConfig struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	Prefix          string `yaml:"prefix"`
	PublicBaseURL   string `yaml:"public_base_url"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	PathStyle       bool   `yaml:"path_style"`
}

// CatalogConfig holds resource service limits and deadlines.
type CatalogConfig struct {
	MaxImagesPerBatch int           `yaml:"max_images_per_batch"`
	DefaultPageSize   int           `yaml:"default_page_size"`
	MaxPageSize       int           `yaml:"max_page_size"`
	UploadConcurrency int           `yaml:"upload_concurrency"`
	UploadTimeout     time.Duration `yaml:"upload_timeout"`
	StoreTimeout      time.Duration `yaml:"store_timeout"`
}

// Validate validates the catalog configuration.
func (c *CatalogConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.MaxImagesPerBatch, validation.Required, validation.Min(1)),
		validation.Field(&c.DefaultPageSize, validation.Required, validation.Min(1)),
		validation.Field(&c.MaxPageSize, validation.Min(c.DefaultPageSize)),
		validation.Field(&c.UploadConcurrency, validation.Required, validation.Min(1), validation.Max(16)),
		validation.Field(&c.UploadTimeout, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.StoreTimeout, validation.Required, validation.Min(time.Second)),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port:          5501,
				MaxBodyBytes:  defaultMaxBodyBytes,
				MaxImageBytes: defaultMaxImageBytes,
			},
		},
		Records: RecordsConfig{
			Driver: RecordsDriverSQLite,
			SQLite: SQLiteConfig{Path: "./capes.db"},
			Badger: BadgerConfig{Dir: "./data/badger"},
		},
		Media: MediaConfig{
			Driver: MediaDriverLocal,
			Folder: defaultMediaFolder,
			Local: LocalMediaConfig{
				Root:    "./media",
				BaseURL: "http://localhost:5501/media",
			},
		},
		Catalog: CatalogConfig{
			MaxImagesPerBatch: 5,
			DefaultPageSize:   5,
			MaxPageSize:       0,
			UploadConcurrency: 1,
			UploadTimeout:     30 * time.Second,
			StoreTimeout:      10 * time.Second,
		},
	}
}
