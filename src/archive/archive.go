// Package archive keeps a copy of every inbound webhook body in Cloud Storage.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
)

type Archiver interface {
	Archive(ctx context.Context, provider string, body []byte) error
}

// Noop is used when no bucket is configured.
type Noop struct{}

func (Noop) Archive(ctx context.Context, provider string, body []byte) error {
	return nil
}

type GCSArchiver struct {
	client *storage.Client
	bucket string
	now    func() time.Time
}

// New returns a GCS-backed archiver, or Noop when bucket is empty. The caller
// owns Close on the returned closer.
func New(ctx context.Context, bucket string) (Archiver, func() error, error) {
	if bucket == "" {
		return Noop{}, func() error { return nil }, nil
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &GCSArchiver{client: client, bucket: bucket, now: time.Now}, client.Close, nil
}

func (a *GCSArchiver) Archive(ctx context.Context, provider string, body []byte) error {
	name := ObjectName(provider, a.now(), uuid.NewString())
	w := a.client.Bucket(a.bucket).Object(name).NewWriter(ctx)
	w.ContentType = "application/json"

	if _, err := io.Copy(w, bytes.NewReader(body)); err != nil {
		w.Close()
		return fmt.Errorf("failed to write gs://%s/%s: %w", a.bucket, name, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close writer for gs://%s/%s: %w", a.bucket, name, err)
	}
	return nil
}

// ObjectName lays webhooks out as webhooks/<provider>/<YYYY-MM-DD>/<id>.json.
func ObjectName(provider string, at time.Time, id string) string {
	return fmt.Sprintf("webhooks/%s/%s/%s.json", provider, at.UTC().Format("2006-01-02"), id)
}
