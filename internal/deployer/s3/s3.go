// Package s3 deploys an archive to any S3-compatible object store.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/JakeFAU/static-mirror/internal/archive"
	"github.com/JakeFAU/static-mirror/internal/deployer"
)

const name = "s3"

// Config describes the endpoint and bucket.
type Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	Prefix    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// Deployer puts one object per archive file.
type Deployer struct {
	client *minio.Client
	bucket string
	prefix string
}

// New connects a minio client to cfg.Endpoint.
func New(cfg Config) (*Deployer, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" || strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("s3: endpoint and bucket are required")
	}
	endpoint := strings.TrimPrefix(strings.TrimPrefix(cfg.Endpoint, "https://"), "http://")
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}
	return &Deployer{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// Name implements deployer.Deployer.
func (d *Deployer) Name() string { return name }

// TestConnectivity checks that the bucket exists.
func (d *Deployer) TestConnectivity(ctx context.Context) error {
	exists, err := d.client.BucketExists(ctx, d.bucket)
	if err != nil {
		return wrap("bucket exists", err)
	}
	if !exists {
		return fmt.Errorf("s3: bucket %q does not exist", d.bucket)
	}
	return nil
}

// UploadBatch puts each file as an object.
func (d *Deployer) UploadBatch(ctx context.Context, files []deployer.File) error {
	for _, f := range files {
		key := deployer.RemoteKey(d.prefix, f.RemotePath)
		_, err := d.client.PutObject(ctx, d.bucket, key, bytes.NewReader(f.Body), int64(len(f.Body)),
			minio.PutObjectOptions{ContentType: deployer.ContentType(key)})
		if err != nil {
			return wrap("put "+key, err)
		}
	}
	return nil
}

// Finalize has nothing left to do.
func (d *Deployer) Finalize(context.Context, archive.Archive) error { return nil }

func wrap(op string, err error) error {
	resp := minio.ToErrorResponse(err)
	if resp.StatusCode != 0 && !deployer.ValidStatus(resp.StatusCode) {
		return fmt.Errorf("%w: %w", &deployer.StatusError{Provider: name, Op: op, Code: resp.StatusCode, Body: resp.Code}, err)
	}
	return fmt.Errorf("s3 %s: %w", op, err)
}
