package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"inmoelegance/internal/blob"
	"inmoelegance/internal/media"
)

// mediaHandler streams hosted images. Only keys under the image prefix are
// served; export artifacts share the store but stay behind the admin API.
func mediaHandler(store blob.Store, logger *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.PathValue("key")
		if !strings.HasPrefix(key, media.KeyPrefix) || strings.Contains(key, "..") {
			http.NotFound(w, r)
			return
		}
		info, body, err := store.Get(r.Context(), key)
		if errors.Is(err, blob.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		if err != nil {
			logger.Error("media read failed", zap.String("key", key), zap.Error(err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		defer body.Close()

		if info.ETag != "" {
			w.Header().Set("ETag", info.ETag)
			if r.Header.Get("If-None-Match") == info.ETag {
				w.WriteHeader(http.StatusNotModified)
				return
			}
		}
		contentType := info.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Cache-Control", "public, max-age=86400")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		if info.Size > 0 {
			w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
		}
		if _, err := io.Copy(w, body); err != nil {
			logger.Debug("media write interrupted", zap.String("key", key), zap.Error(err))
		}
	})
}
