package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"inmoelegance/internal/blob"
)

// KeyPrefix namespaces image keys inside the blob store.
const KeyPrefix = "images/"

// DefaultMediaPath is the site route serving blob-hosted images.
const DefaultMediaPath = "/media/"

// OwnerMetadata is the blob metadata key holding the uploading admin id.
const OwnerMetadata = "owner"

var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
	"image/bmp":  ".bmp",
}

// BlobOptions configures a BlobUploader.
type BlobOptions struct {
	// PublicBaseURL, when set, is joined with the key to form image URLs
	// (a CDN or a public bucket).
	PublicBaseURL string
	// MediaPath is the site route used when neither a public base URL nor a
	// presigned URL applies.
	MediaPath     string
	MaxBytes      int64
	PresignExpiry time.Duration
}

// BlobUploader hosts images in a blob.Store.
type BlobUploader struct {
	store blob.Store
	opts  BlobOptions
	newID func() string
}

// NewBlobUploader returns an uploader writing to store.
func NewBlobUploader(store blob.Store, opts BlobOptions) *BlobUploader {
	if opts.MediaPath == "" {
		opts.MediaPath = DefaultMediaPath
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	if opts.PresignExpiry <= 0 {
		opts.PresignExpiry = 7 * 24 * time.Hour
	}
	opts.PublicBaseURL = strings.TrimSuffix(opts.PublicBaseURL, "/")
	return &BlobUploader{store: store, opts: opts, newID: uuid.NewString}
}

// Upload sniffs the content type, stores the image under images/<uuid><ext>
// tagged with owner and resolves its URL.
func (u *BlobUploader) Upload(ctx context.Context, owner, filename string, r io.Reader) (Image, error) {
	data, err := readLimited(r, u.opts.MaxBytes)
	if err != nil {
		return Image{}, err
	}
	contentType := http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") {
		return Image{}, ErrNotImage
	}
	ext, ok := imageExtensions[contentType]
	if !ok {
		ext = strings.ToLower(filepath.Ext(filename))
	}
	key := KeyPrefix + u.newID() + ext
	info, err := u.store.Put(ctx, key, bytes.NewReader(data), blob.PutOptions{
		ContentType: contentType,
		Metadata:    map[string]string{"filename": baseName(filename), OwnerMetadata: owner},
	})
	if err != nil {
		return Image{}, fmt.Errorf("store image: %w", err)
	}
	imageURL, err := u.urlFor(ctx, key, info)
	if err != nil {
		return Image{}, err
	}
	return Image{URL: imageURL, Key: key, ContentType: contentType, Size: int64(len(data))}, nil
}

func (u *BlobUploader) urlFor(ctx context.Context, key string, info blob.Info) (string, error) {
	if u.opts.PublicBaseURL != "" {
		return u.opts.PublicBaseURL + "/" + key, nil
	}
	if u.store.Driver() == blob.DriverS3 {
		signed, err := u.store.PresignURL(ctx, key, blob.SignedURLOptions{Expiry: u.opts.PresignExpiry})
		if err != nil {
			return "", fmt.Errorf("presign image: %w", err)
		}
		return signed, nil
	}
	return strings.TrimSuffix(u.opts.MediaPath, "/") + "/" + key, nil
}

// Delete removes the blob behind imageURL when owner uploaded it. Foreign
// URLs and images uploaded by someone else are left in place.
func (u *BlobUploader) Delete(ctx context.Context, owner, imageURL string) error {
	key, ok := u.KeyFor(imageURL)
	if !ok {
		return nil
	}
	info, err := u.store.Head(ctx, key)
	if errors.Is(err, blob.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("inspect image %s: %w", key, err)
	}
	if owner == "" || info.Metadata[OwnerMetadata] != owner {
		return nil
	}
	if _, err := u.store.Delete(ctx, key); err != nil && !errors.Is(err, blob.ErrNotFound) {
		return fmt.Errorf("delete image %s: %w", key, err)
	}
	return nil
}

// KeyFor maps an image URL produced by Upload back to its blob key.
func (u *BlobUploader) KeyFor(imageURL string) (string, bool) {
	var rest string
	switch {
	case u.opts.PublicBaseURL != "" && strings.HasPrefix(imageURL, u.opts.PublicBaseURL+"/"):
		rest = strings.TrimPrefix(imageURL, u.opts.PublicBaseURL+"/")
	default:
		parsed, err := url.Parse(imageURL)
		if err != nil {
			return "", false
		}
		mediaPath := strings.TrimSuffix(u.opts.MediaPath, "/") + "/"
		switch {
		case parsed.Host == "" && strings.HasPrefix(parsed.Path, mediaPath):
			rest = strings.TrimPrefix(parsed.Path, mediaPath)
		case parsed.Host != "" && u.store.Driver() == blob.DriverS3 && parsed.Query().Has("X-Amz-Signature"):
			idx := strings.Index(parsed.Path, "/"+KeyPrefix)
			if idx < 0 {
				return "", false
			}
			rest = parsed.Path[idx+1:]
		default:
			return "", false
		}
	}
	if !strings.HasPrefix(rest, KeyPrefix) || strings.Contains(rest, "..") {
		return "", false
	}
	return rest, true
}
