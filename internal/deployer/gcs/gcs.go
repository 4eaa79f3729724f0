// Package gcs deploys an archive to a Google Cloud Storage bucket.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"

	"github.com/JakeFAU/static-mirror/internal/archive"
	"github.com/JakeFAU/static-mirror/internal/deployer"
)

const name = "gcs"

// Config captures the bucket and key prefix.
type Config struct {
	Bucket string
	Prefix string
}

// Deployer writes one object per archive file.
type Deployer struct {
	client *storage.Client
	bucket string
	prefix string
}

// New creates a GCS deployer around an existing client.
func New(client *storage.Client, cfg Config) (*Deployer, error) {
	if client == nil {
		return nil, errors.New("storage client is required")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("bucket name is required")
	}
	return &Deployer{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// Name implements deployer.Deployer.
func (d *Deployer) Name() string { return name }

// TestConnectivity reads the bucket attributes.
func (d *Deployer) TestConnectivity(ctx context.Context) error {
	if _, err := d.client.Bucket(d.bucket).Attrs(ctx); err != nil {
		return wrap("bucket attrs", fmt.Errorf("get GCS bucket %q attributes: %w", d.bucket, err))
	}
	return nil
}

// UploadBatch writes each file as an object.
func (d *Deployer) UploadBatch(ctx context.Context, files []deployer.File) error {
	for _, f := range files {
		if err := d.put(ctx, f); err != nil {
			return err
		}
	}
	return nil
}

func (d *Deployer) put(ctx context.Context, f deployer.File) error {
	key := deployer.RemoteKey(d.prefix, f.RemotePath)
	w := d.client.Bucket(d.bucket).Object(key).NewWriter(ctx)
	w.ContentType = deployer.ContentType(key)
	if _, err := w.Write(f.Body); err != nil {
		if closeErr := w.Close(); closeErr != nil {
			return wrap("write", fmt.Errorf("write object %s: %w (close writer: %v)", key, err, closeErr))
		}
		return wrap("write", fmt.Errorf("write object %s: %w", key, err))
	}
	if err := w.Close(); err != nil {
		return wrap("write", fmt.Errorf("close writer for object %s: %w", key, err))
	}
	return nil
}

// Finalize has nothing left to do.
func (d *Deployer) Finalize(context.Context, archive.Archive) error { return nil }

// wrap converts API errors into deployer status errors.
func wrap(op string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && !deployer.ValidStatus(apiErr.Code) {
		return fmt.Errorf("%w: %w", &deployer.StatusError{Provider: name, Op: op, Code: apiErr.Code, Body: apiErr.Message}, err)
	}
	return err
}
