package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// CloudinaryAPI is the upload API base URL.
const CloudinaryAPI = "https://api.cloudinary.com/v1_1"

// CloudinaryOptions configures unsigned uploads to a Cloudinary cloud.
type CloudinaryOptions struct {
	CloudName    string
	UploadPreset string
	// Endpoint overrides CloudinaryAPI.
	Endpoint string
	MaxBytes int64
	Client   *http.Client
}

// CloudinaryUploader posts images to Cloudinary with an unsigned upload preset.
type CloudinaryUploader struct {
	opts   CloudinaryOptions
	client *http.Client
}

// NewCloudinaryUploader validates opts and returns an uploader.
func NewCloudinaryUploader(opts CloudinaryOptions) (*CloudinaryUploader, error) {
	if opts.CloudName == "" || opts.UploadPreset == "" {
		return nil, fmt.Errorf("cloudinary cloud name and upload preset are required")
	}
	if opts.Endpoint == "" {
		opts.Endpoint = CloudinaryAPI
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &CloudinaryUploader{opts: opts, client: client}, nil
}

type cloudinaryResponse struct {
	SecureURL string `json:"secure_url"`
	PublicID  string `json:"public_id"`
	Format    string `json:"format"`
	Bytes     int64  `json:"bytes"`
	Error     *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (u *CloudinaryUploader) uploadURL() string {
	return strings.TrimSuffix(u.opts.Endpoint, "/") + "/" + url.PathEscape(u.opts.CloudName) + "/image/upload"
}

// Upload sends the file as multipart form data and returns the secure URL.
func (u *CloudinaryUploader) Upload(ctx context.Context, _, filename string, r io.Reader) (Image, error) {
	data, err := readLimited(r, u.opts.MaxBytes)
	if err != nil {
		return Image{}, err
	}
	contentType := http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") {
		return Image{}, ErrNotImage
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", baseName(filename))
	if err != nil {
		return Image{}, err
	}
	if _, err := part.Write(data); err != nil {
		return Image{}, err
	}
	if err := form.WriteField("upload_preset", u.opts.UploadPreset); err != nil {
		return Image{}, err
	}
	if err := form.Close(); err != nil {
		return Image{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.uploadURL(), &body)
	if err != nil {
		return Image{}, err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	resp, err := u.client.Do(req)
	if err != nil {
		return Image{}, fmt.Errorf("cloudinary upload: %w", err)
	}
	defer resp.Body.Close()

	var out cloudinaryResponse
	decodeErr := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := "Error subiendo imagen a Cloudinary"
		if decodeErr == nil && out.Error != nil && out.Error.Message != "" {
			msg = out.Error.Message
		}
		return Image{}, fmt.Errorf("cloudinary upload: %s (status %d)", msg, resp.StatusCode)
	}
	if decodeErr != nil {
		return Image{}, fmt.Errorf("cloudinary upload: decode response: %w", decodeErr)
	}
	if out.SecureURL == "" {
		return Image{}, fmt.Errorf("cloudinary upload: response without secure_url")
	}
	size := out.Bytes
	if size == 0 {
		size = int64(len(data))
	}
	return Image{URL: out.SecureURL, Key: out.PublicID, ContentType: contentType, Size: size}, nil
}

// Delete is a no-op: images uploaded with an unsigned preset cannot be
// destroyed without the account API secret.
func (u *CloudinaryUploader) Delete(context.Context, string, string) error { return nil }
