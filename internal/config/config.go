// Package config loads the inmoelegance service configuration from YAML with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"inmoelegance/internal/auth"
	"inmoelegance/internal/blob"
)

// Config is the root configuration document.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Blob    BlobConfig    `yaml:"blob"`
	Media   MediaConfig   `yaml:"media"`
	Auth    AuthConfig    `yaml:"auth"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
	Site    SiteConfig    `yaml:"site"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string `yaml:"addr"`
	ReadTimeout     string `yaml:"read_timeout"`
	WriteTimeout    string `yaml:"write_timeout"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
	// SecureCookies marks session and visitor cookies Secure (HTTPS only).
	SecureCookies bool `yaml:"secure_cookies"`
	Gzip          bool `yaml:"gzip"`
	// TrustedProxies lists the CIDR ranges or addresses of reverse proxies
	// whose X-Forwarded-For header identifies the client for throttling.
	TrustedProxies []string `yaml:"trusted_proxies"`
}

// StorageConfig selects the document store.
type StorageConfig struct {
	Driver      string `yaml:"driver"` // memory, sqlite, postgres
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn"`
}

// BlobConfig selects the blob store used for images and exports.
type BlobConfig struct {
	Driver string        `yaml:"driver"` // fs, memory, s3
	FSRoot string        `yaml:"fs_root"`
	S3     blob.S3Config `yaml:"s3"`
}

// MediaConfig selects the image host.
type MediaConfig struct {
	Driver        string           `yaml:"driver"` // blob, cloudinary
	PublicBaseURL string           `yaml:"public_base_url"`
	MaxBytes      int64            `yaml:"max_bytes"`
	PresignExpiry string           `yaml:"presign_expiry"`
	Cloudinary    CloudinaryConfig `yaml:"cloudinary"`
}

// CloudinaryConfig holds the unsigned upload settings.
type CloudinaryConfig struct {
	CloudName    string `yaml:"cloud_name"`
	UploadPreset string `yaml:"upload_preset"`
}

// AuthConfig configures admin sessions and request throttling.
type AuthConfig struct {
	SessionSecret    string  `yaml:"session_secret"`
	SessionTTL       string  `yaml:"session_ttl"`
	LoginPerMinute   float64 `yaml:"login_per_minute"`
	LoginBurst       int     `yaml:"login_burst"`
	ContactPerMinute float64 `yaml:"contact_per_minute"`
	ContactBurst     int     `yaml:"contact_burst"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// SiteConfig holds presentation settings.
type SiteConfig struct {
	Name                string `yaml:"name"`
	ContactEmail        string `yaml:"contact_email"`
	ContactPhone        string `yaml:"contact_phone"`
	FeaturedLimit       int    `yaml:"featured_limit"`
	SimilarLimit        int    `yaml:"similar_limit"`
	WishlistCapacity    int    `yaml:"wishlist_capacity"`
	ExpressionCacheSize int    `yaml:"expression_cache_size"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     "15s",
			WriteTimeout:    "30s",
			ShutdownTimeout: "10s",
			Gzip:            true,
		},
		Storage: StorageConfig{
			Driver:     "sqlite",
			SQLitePath: "./inmoelegance.db",
		},
		Blob: BlobConfig{
			Driver: string(blob.DriverFilesystem),
			FSRoot: "./blobdata",
		},
		Media: MediaConfig{
			Driver:        "blob",
			MaxBytes:      10 << 20,
			PresignExpiry: "168h",
		},
		Auth: AuthConfig{
			SessionTTL:       "12h",
			LoginPerMinute:   10,
			LoginBurst:       5,
			ContactPerMinute: 6,
			ContactBurst:     3,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Site: SiteConfig{
			Name:                "Inmobiliaria Elegance",
			FeaturedLimit:       6,
			SimilarLimit:        3,
			WishlistCapacity:    10000,
			ExpressionCacheSize: 256,
		},
	}
}

// Load reads path over the defaults and applies INMO_* environment overrides.
// A missing file or an empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	setString := func(name string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			*dst = v
		}
	}
	setString("INMO_ADDR", &c.Server.Addr)
	setString("INMO_STORAGE_DRIVER", &c.Storage.Driver)
	setString("INMO_SQLITE_PATH", &c.Storage.SQLitePath)
	setString("INMO_POSTGRES_DSN", &c.Storage.PostgresDSN)
	setString("INMO_BLOB_DRIVER", &c.Blob.Driver)
	setString("INMO_BLOB_ROOT", &c.Blob.FSRoot)
	setString("INMO_S3_BUCKET", &c.Blob.S3.Bucket)
	setString("INMO_S3_REGION", &c.Blob.S3.Region)
	setString("INMO_S3_ENDPOINT", &c.Blob.S3.Endpoint)
	setString("INMO_S3_ACCESS_KEY_ID", &c.Blob.S3.AccessKeyID)
	setString("INMO_S3_SECRET_ACCESS_KEY", &c.Blob.S3.SecretAccessKey)
	setString("INMO_MEDIA_DRIVER", &c.Media.Driver)
	setString("INMO_MEDIA_PUBLIC_BASE_URL", &c.Media.PublicBaseURL)
	setString("INMO_CLOUDINARY_CLOUD_NAME", &c.Media.Cloudinary.CloudName)
	setString("INMO_CLOUDINARY_UPLOAD_PRESET", &c.Media.Cloudinary.UploadPreset)
	setString("INMO_SESSION_SECRET", &c.Auth.SessionSecret)
	setString("INMO_LOG_LEVEL", &c.Log.Level)
	setString("INMO_LOG_FORMAT", &c.Log.Format)
	if v := strings.TrimSpace(os.Getenv("INMO_TRUSTED_PROXIES")); v != "" {
		c.Server.TrustedProxies = strings.Split(v, ",")
	}
	if v := os.Getenv("INMO_S3_PATH_STYLE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Blob.S3.PathStyle = b
		}
	}
	if v := os.Getenv("INMO_SECURE_COOKIES"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Server.SecureCookies = b
		}
	}
}

var (
	storageDrivers = []string{"memory", "sqlite", "postgres"}
	blobDrivers    = []string{string(blob.DriverFilesystem), string(blob.DriverMemory), string(blob.DriverS3)}
	mediaDrivers   = []string{"blob", "cloudinary"}
	logLevels      = []string{"debug", "info", "warn", "error"}
	logFormats     = []string{"json", "console"}
)

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Server.Addr != "", "server.addr is required")
	if _, err := auth.ParseProxies(c.Server.TrustedProxies); err != nil {
		errs = append(errs, fmt.Errorf("server.trusted_proxies: %w", err))
	}
	for name, value := range map[string]string{
		"server.read_timeout":     c.Server.ReadTimeout,
		"server.write_timeout":    c.Server.WriteTimeout,
		"server.shutdown_timeout": c.Server.ShutdownTimeout,
		"auth.session_ttl":        c.Auth.SessionTTL,
		"media.presign_expiry":    c.Media.PresignExpiry,
	} {
		if value == "" {
			continue
		}
		d, err := time.ParseDuration(value)
		check(err == nil && d > 0, "%s: invalid duration %q", name, value)
	}

	check(slices.Contains(storageDrivers, c.Storage.Driver), "storage.driver %q (valid: %v)", c.Storage.Driver, storageDrivers)
	if c.Storage.Driver == "postgres" {
		check(c.Storage.PostgresDSN != "", "storage.postgres_dsn is required for the postgres driver")
	}
	check(slices.Contains(blobDrivers, c.Blob.Driver), "blob.driver %q (valid: %v)", c.Blob.Driver, blobDrivers)
	if c.Blob.Driver == string(blob.DriverS3) {
		check(c.Blob.S3.Bucket != "", "blob.s3.bucket is required for the s3 driver")
	}
	check(slices.Contains(mediaDrivers, c.Media.Driver), "media.driver %q (valid: %v)", c.Media.Driver, mediaDrivers)
	if c.Media.Driver == "cloudinary" {
		check(c.Media.Cloudinary.CloudName != "" && c.Media.Cloudinary.UploadPreset != "",
			"media.cloudinary.cloud_name and upload_preset are required for the cloudinary driver")
	}
	check(c.Media.MaxBytes >= 0, "media.max_bytes must not be negative")
	check(len(c.Auth.SessionSecret) >= 16, "auth.session_secret must be at least 16 characters (set INMO_SESSION_SECRET)")
	check(c.Auth.LoginPerMinute > 0 && c.Auth.LoginBurst > 0, "auth login throttle must be positive")
	check(c.Auth.ContactPerMinute > 0 && c.Auth.ContactBurst > 0, "auth contact throttle must be positive")
	check(slices.Contains(logLevels, c.Log.Level), "log.level %q (valid: %v)", c.Log.Level, logLevels)
	check(slices.Contains(logFormats, c.Log.Format), "log.format %q (valid: %v)", c.Log.Format, logFormats)
	if c.Metrics.Enabled {
		check(strings.HasPrefix(c.Metrics.Path, "/"), "metrics.path must start with /")
	}
	return errors.Join(errs...)
}

// ReadTimeout returns the parsed server read timeout.
func (c *Config) ReadTimeout() time.Duration { return parseDuration(c.Server.ReadTimeout, 15*time.Second) }

// WriteTimeout returns the parsed server write timeout.
func (c *Config) WriteTimeout() time.Duration { return parseDuration(c.Server.WriteTimeout, 30*time.Second) }

// ShutdownTimeout returns the graceful shutdown budget.
func (c *Config) ShutdownTimeout() time.Duration {
	return parseDuration(c.Server.ShutdownTimeout, 10*time.Second)
}

// SessionTTL returns the admin session lifetime.
func (c *Config) SessionTTL() time.Duration { return parseDuration(c.Auth.SessionTTL, 12*time.Hour) }

// PresignExpiry returns the lifetime of presigned image URLs.
func (c *Config) PresignExpiry() time.Duration {
	return parseDuration(c.Media.PresignExpiry, 7*24*time.Hour)
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
