// Package storage wraps the object-storage collaborator. The returned
// public URL is treated as an opaque string everywhere else: profiles,
// posts and echoes store it as-is and never parse it.
package storage

import (
	"context"
	"fmt"
	"io"

	firebasestorage "firebase.google.com/go/v4/storage"
	"github.com/rs/zerolog/log"
)

// Uploader uploads media objects and resolves their public URLs.
type Uploader struct {
	client *firebasestorage.Client
	bucket string
}

// NewUploader creates an Uploader bound to a single bucket.
func NewUploader(client *firebasestorage.Client, bucket string) *Uploader {
	return &Uploader{client: client, bucket: bucket}
}

// Upload writes the object and returns its public URL.
func (u *Uploader) Upload(ctx context.Context, key string, r io.Reader, contentType string) (string, error) {
	bucket, err := u.client.Bucket(u.bucket)
	if err != nil {
		return "", fmt.Errorf("resolving bucket %s: %w", u.bucket, err)
	}

	w := bucket.Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return "", fmt.Errorf("writing object %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalizing object %s: %w", key, err)
	}

	url := u.PublicURL(key)
	log.Debug().Str("key", key).Str("url", url).Msg("media uploaded")
	return url, nil
}

// PublicURL returns the public URL for an already-uploaded object.
func (u *Uploader) PublicURL(key string) string {
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", u.bucket, key)
}
