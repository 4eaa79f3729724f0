// Package registry builds the Deployer named by configuration.
package registry

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/JakeFAU/static-mirror/internal/config"
	"github.com/JakeFAU/static-mirror/internal/deployer"
	"github.com/JakeFAU/static-mirror/internal/deployer/bitbucket"
	"github.com/JakeFAU/static-mirror/internal/deployer/bunnycdn"
	"github.com/JakeFAU/static-mirror/internal/deployer/folder"
	"github.com/JakeFAU/static-mirror/internal/deployer/ftp"
	"github.com/JakeFAU/static-mirror/internal/deployer/gcs"
	"github.com/JakeFAU/static-mirror/internal/deployer/github"
	"github.com/JakeFAU/static-mirror/internal/deployer/gitlab"
	"github.com/JakeFAU/static-mirror/internal/deployer/s3"
	"github.com/JakeFAU/static-mirror/internal/deployer/zip"
)

// Closer releases client resources held by a Deployer.
type Closer func() error

func noClose() error { return nil }

// built drops the typed nil a failed constructor returns.
func built[D deployer.Deployer](d D, err error) (deployer.Deployer, Closer, error) {
	if err != nil {
		return nil, nil, err
	}
	return d, noClose, nil
}

// New returns the Deployer for cfg.Method and a Closer for its clients.
func New(ctx context.Context, cfg config.DeployConfig, logger *zap.Logger) (deployer.Deployer, Closer, error) {
	client := deployer.NewHTTPClient(cfg.Timeout)
	switch cfg.Method {
	case config.MethodZip:
		return zip.New(cfg.Zip.Dir, logger), noClose, nil
	case config.MethodFolder:
		return built(folder.New(cfg.Folder.Path))
	case config.MethodGCS:
		return newGCS(ctx, cfg.GCS)
	case config.MethodS3:
		return built(s3.New(s3.Config{
			Endpoint:  cfg.S3.Endpoint,
			Region:    cfg.S3.Region,
			Bucket:    cfg.S3.Bucket,
			Prefix:    cfg.S3.Prefix,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			UseSSL:    cfg.S3.UseSSL,
		}))
	case config.MethodGitHub:
		return built(github.New(github.Config{
			APIURL: cfg.GitHub.APIURL,
			Repo:   cfg.GitHub.Repo,
			Branch: cfg.GitHub.Branch,
			Path:   cfg.GitHub.Path,
			Token:  cfg.GitHub.Token,
		}, client))
	case config.MethodGitLab:
		return built(gitlab.New(gitlab.Config{
			APIURL:    cfg.GitLab.APIURL,
			ProjectID: cfg.GitLab.ProjectID,
			Branch:    cfg.GitLab.Branch,
			Token:     cfg.GitLab.Token,
		}, client))
	case config.MethodBitbucket:
		return built(bitbucket.New(bitbucket.Config{
			APIURL:   cfg.Bitbucket.APIURL,
			Repo:     cfg.Bitbucket.Repo,
			Branch:   cfg.Bitbucket.Branch,
			User:     cfg.Bitbucket.User,
			Password: cfg.Bitbucket.Password,
		}, client))
	case config.MethodBunnyCDN:
		return built(bunnycdn.New(bunnycdn.Config{
			StorageURL:  cfg.BunnyCDN.StorageURL,
			StorageZone: cfg.BunnyCDN.StorageZone,
			AccessKey:   cfg.BunnyCDN.AccessKey,
			APIURL:      cfg.BunnyCDN.APIURL,
			APIKey:      cfg.BunnyCDN.APIKey,
			PullZoneID:  cfg.BunnyCDN.PullZoneID,
		}, client))
	case config.MethodFTP:
		return built(ftp.New(ftp.Config{
			Host:       cfg.FTP.Host,
			Port:       cfg.FTP.Port,
			User:       cfg.FTP.User,
			Password:   cfg.FTP.Password,
			RemotePath: cfg.FTP.RemotePath,
			Timeout:    cfg.Timeout,
		}, nil))
	default:
		return nil, nil, fmt.Errorf("deploy method %q is not supported", cfg.Method)
	}
}

func newGCS(ctx context.Context, cfg config.GCSConfig) (deployer.Deployer, Closer, error) {
	var opts []option.ClientOption
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint), option.WithoutAuthentication())
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("create GCS client: %w", err)
	}
	d, err := gcs.New(client, gcs.Config{Bucket: cfg.Bucket, Prefix: cfg.Prefix})
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return d, client.Close, nil
}
