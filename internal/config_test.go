package internal

import (
	"log/slog"
	"strings"
	"testing"
	"time"

	pkgconfig "github.com/starford/capes/pkg/config"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.App.HTTP.Address() != ":5501" {
		t.Errorf("address = %q, want :5501", cfg.App.HTTP.Address())
	}
}

func TestConfigFileLoads(t *testing.T) {
	t.Setenv("PORT", "")
	cfg := NewDefaultConfig()
	if err := pkgconfig.Load("../config/config.yaml", cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.App.HTTP.Port != 5501 {
		t.Errorf("port = %d, want 5501", cfg.App.HTTP.Port)
	}
	if cfg.App.LogLevel != slog.LevelInfo {
		t.Errorf("log level = %v, want info", cfg.App.LogLevel)
	}
	if cfg.Catalog.UploadTimeout != 30*time.Second {
		t.Errorf("upload timeout = %v", cfg.Catalog.UploadTimeout)
	}
	if cfg.Media.Folder != "superheroes" {
		t.Errorf("folder = %q", cfg.Media.Folder)
	}
}

func TestRecordsConfig_UnknownDriver(t *testing.T) {
	cfg := RecordsConfig{Driver: "mongo"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("unknown driver should fail")
	}
	if !strings.Contains(err.Error(), "driver") {
		t.Errorf("error = %q, should mention driver", err)
	}
}

func TestRecordsConfig_DriverSections(t *testing.T) {
	tests := []struct {
		name    string
		cfg     RecordsConfig
		wantErr bool
	}{
		{"sqlite ok", RecordsConfig{Driver: RecordsDriverSQLite, SQLite: SQLiteConfig{Path: "x.db"}}, false},
		{"sqlite no path", RecordsConfig{Driver: RecordsDriverSQLite}, true},
		{"badger dir", RecordsConfig{Driver: RecordsDriverBadger, Badger: BadgerConfig{Dir: "/tmp/b"}}, false},
		{"badger in memory", RecordsConfig{Driver: RecordsDriverBadger, Badger: BadgerConfig{InMemory: true}}, false},
		{"badger nothing", RecordsConfig{Driver: RecordsDriverBadger}, true},
		{"surreal ok", RecordsConfig{Driver: RecordsDriverSurreal, SurrealDB: SurrealDBConfig{
			URL: "ws://localhost:8000/rpc", Namespace: "capes", Database: "capes",
		}}, false},
		{"surreal no ns", RecordsConfig{Driver: RecordsDriverSurreal, SurrealDB: SurrealDBConfig{
			URL: "ws://localhost:8000/rpc", Database: "capes",
		}}, true},
		// Sections of unselected drivers are ignored.
		{"sqlite ignores surreal", RecordsConfig{Driver: RecordsDriverSQLite, SQLite: SQLiteConfig{Path: "x.db"},
			SurrealDB: SurrealDBConfig{URL: ""}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMediaConfig_DriverSections(t *testing.T) {
	tests := []struct {
		name    string
		cfg     MediaConfig
		wantErr bool
	}{
		{"local ok", MediaConfig{Driver: MediaDriverLocal, Local: LocalMediaConfig{Root: "./m", BaseURL: "http://x/media"}}, false},
		{"local no base url", MediaConfig{Driver: MediaDriverLocal, Local: LocalMediaConfig{Root: "./m"}}, true},
		{"s3 ok", MediaConfig{Driver: MediaDriverS3, S3: S3MediaConfig{Bucket: "capes", Region: "us-east-1"}}, false},
		{"s3 no bucket", MediaConfig{Driver: MediaDriverS3, S3: S3MediaConfig{Region: "us-east-1"}}, true},
		{"unknown", MediaConfig{Driver: "ftp"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestHTTPConfig_ImageLargerThanBody(t *testing.T) {
	cfg := HTTPConfig{Port: 80, MaxBodyBytes: 1 << 20, MaxImageBytes: 2 << 20}
	if err := cfg.Validate(); err == nil {
		t.Fatal("max_image_bytes above max_body_bytes should fail")
	}
}

func TestCatalogConfig_Bounds(t *testing.T) {
	cfg := NewDefaultConfig().Catalog
	cfg.UploadConcurrency = 0
	if err := cfg.Validate(); err == nil {
		t.Error("zero upload concurrency should fail")
	}

	cfg = NewDefaultConfig().Catalog
	cfg.MaxPageSize = 2
	if err := cfg.Validate(); err == nil {
		t.Error("max page size below default should fail")
	}

	cfg = NewDefaultConfig().Catalog
	cfg.UploadTimeout = 10 * time.Millisecond
	if err := cfg.Validate(); err == nil {
		t.Error("sub-second upload timeout should fail")
	}
}

func TestConfig_ValidatePrefixesSection(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Media.Driver = ""
	err := cfg.Validate()
	if err == nil || !strings.HasPrefix(err.Error(), "media:") {
		t.Fatalf("error = %v, want media: prefix", err)
	}
}
