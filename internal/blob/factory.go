package blob

import (
	"context"
	"fmt"
)

// Config selects and configures a blob backend.
type Config struct {
	Driver Driver
	// FSRoot is the directory used by the fs driver (default ./blobdata).
	FSRoot string
	// URLPrefix is prepended to keys to build Info.URL for the fs and memory
	// drivers, e.g. "/media/".
	URLPrefix string
	S3        S3Config
}

// Open builds the store named by cfg.Driver. An empty driver selects fs.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", DriverFilesystem:
		return NewFilesystem(cfg.FSRoot, cfg.URLPrefix)
	case DriverS3:
		return NewS3(ctx, cfg.S3)
	case DriverMemory:
		return NewMemory(cfg.URLPrefix), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %q", cfg.Driver)
	}
}
