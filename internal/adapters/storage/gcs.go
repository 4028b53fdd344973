package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCS uploads evidence to a Cloud Storage bucket. The locator is
// gs://bucket/prefix/name.
type GCS struct {
	client    *gcs.Client
	bucket    string
	prefix    string
	newWriter func(ctx context.Context, object string) io.WriteCloser
}

// NewGCS creates a client for bucket. An empty credentialsFile falls back
// to application default credentials.
func NewGCS(ctx context.Context, bucket, prefix, credentialsFile string) (*GCS, error) {
	if bucket == "" {
		return nil, fmt.Errorf("%w: bucket is required", ErrConfig)
	}
	var opts []option.ClientOption
	if credentialsFile != "" {
		if _, err := os.Stat(credentialsFile); err != nil {
			return nil, fmt.Errorf("%w: credentials file %s: %w", ErrConfig, credentialsFile, err)
		}
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create GCS client: %w", err)
	}

	g := &GCS{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
	g.newWriter = func(ctx context.Context, object string) io.WriteCloser {
		w := client.Bucket(bucket).Object(object).NewWriter(ctx)
		w.ContentType = "image/png"
		return w
	}
	return g, nil
}

// Save implements Backend.
func (g *GCS) Save(ctx context.Context, localPath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSave, err)
	}
	defer f.Close() //nolint:errcheck // read-only

	object := g.objectName(localPath)
	w := g.newWriter(ctx, object)
	if _, err := io.Copy(w, f); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("%w: copy %s to gs://%s/%s: %w", ErrSave, localPath, g.bucket, object, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("%w: close writer for gs://%s/%s: %w", ErrSave, g.bucket, object, err)
	}
	return "gs://" + g.bucket + "/" + object, nil
}

// Close releases the underlying client.
func (g *GCS) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}

func (g *GCS) objectName(localPath string) string {
	name := filepath.Base(localPath)
	if g.prefix == "" {
		return name
	}
	return path.Join(g.prefix, name)
}
