// Package media uploads listing and profile images to the configured image
// host and removes them when listings are deleted.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

// DefaultMaxBytes caps a single upload.
const DefaultMaxBytes int64 = 10 << 20

var (
	// ErrNotImage is returned when the uploaded bytes are not an image.
	ErrNotImage = errors.New("uploaded file is not an image")
	// ErrTooLarge is returned when an upload exceeds the configured limit.
	ErrTooLarge = errors.New("uploaded file is too large")
)

// Image describes a hosted image.
type Image struct {
	URL         string `json:"url"`
	Key         string `json:"key,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Size        int64  `json:"size"`
}

// Uploader stores images and returns their public URL. owner is the id of
// the admin uploading or removing the image.
type Uploader interface {
	Upload(ctx context.Context, owner, filename string, r io.Reader) (Image, error)
	// Delete removes an image previously uploaded by owner. URLs not hosted
	// by the uploader, or uploaded by another admin, are ignored.
	Delete(ctx context.Context, owner, url string) error
}

// readLimited reads r fully, failing with ErrTooLarge past limit bytes.
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		limit = DefaultMaxBytes
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, ErrTooLarge
	}
	return data, nil
}

// baseName strips any client-side directory, including Windows paths.
func baseName(filename string) string {
	return path.Base(strings.ReplaceAll(filename, "\\", "/"))
}
