// Package bunnycdn deploys an archive to a BunnyCDN storage zone and purges
// the fronting pull zone when the deployment finishes.
package bunnycdn

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/JakeFAU/static-mirror/internal/archive"
	"github.com/JakeFAU/static-mirror/internal/deployer"
)

const name = "bunnycdn"

// Config holds storage zone and account API credentials.
type Config struct {
	StorageURL  string
	StorageZone string
	AccessKey   string
	APIURL      string
	APIKey      string
	PullZoneID  string
}

// Deployer uploads with the storage API and purges with the account API.
type Deployer struct {
	cfg    Config
	client *http.Client
}

// New validates cfg.
func New(cfg Config, client *http.Client) (*Deployer, error) {
	if cfg.StorageZone == "" || cfg.AccessKey == "" {
		return nil, errors.New("bunnycdn: storage zone and access key are required")
	}
	if cfg.StorageURL == "" {
		cfg.StorageURL = "https://storage.bunnycdn.com"
	}
	if cfg.APIURL == "" {
		cfg.APIURL = "https://api.bunny.net"
	}
	cfg.StorageURL = strings.TrimRight(cfg.StorageURL, "/")
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	if client == nil {
		client = deployer.NewHTTPClient(0)
	}
	return &Deployer{cfg: cfg, client: client}, nil
}

// Name implements deployer.Deployer.
func (d *Deployer) Name() string { return name }

// TestConnectivity lists the storage zone root.
func (d *Deployer) TestConnectivity(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.cfg.StorageURL+"/"+url.PathEscape(d.cfg.StorageZone)+"/", nil)
	if err != nil {
		return fmt.Errorf("build bunnycdn request: %w", err)
	}
	req.Header.Set("AccessKey", d.cfg.AccessKey)
	return d.send(req, "list zone")
}

// UploadBatch PUTs each file into the storage zone.
func (d *Deployer) UploadBatch(ctx context.Context, files []deployer.File) error {
	for _, f := range files {
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, d.objectURL(f.RemotePath), bytes.NewReader(f.Body))
		if err != nil {
			return fmt.Errorf("build bunnycdn request: %w", err)
		}
		req.Header.Set("AccessKey", d.cfg.AccessKey)
		req.Header.Set("Content-Type", "application/octet-stream")
		if err := d.send(req, "put "+f.RemotePath); err != nil {
			return err
		}
	}
	return nil
}

// Finalize purges the pull zone cache when one is configured.
func (d *Deployer) Finalize(ctx context.Context, _ archive.Archive) error {
	if d.cfg.PullZoneID == "" || d.cfg.APIKey == "" {
		return nil
	}
	target := d.cfg.APIURL + "/pullzone/" + url.PathEscape(d.cfg.PullZoneID) + "/purgeCache"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, nil)
	if err != nil {
		return fmt.Errorf("build bunnycdn request: %w", err)
	}
	req.Header.Set("AccessKey", d.cfg.APIKey)
	return d.send(req, "purge cache")
}

func (d *Deployer) objectURL(rel string) string {
	segments := strings.Split(rel, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return d.cfg.StorageURL + "/" + url.PathEscape(d.cfg.StorageZone) + "/" + strings.Join(segments, "/")
}

func (d *Deployer) send(req *http.Request, op string) error {
	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("bunnycdn %s: %w", op, err)
	}
	defer func() { _ = resp.Body.Close() }()
	return deployer.CheckStatus(name, op, resp)
}
