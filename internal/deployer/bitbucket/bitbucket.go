// Package bitbucket deploys an archive into a Bitbucket Cloud repository by
// posting each batch as a multipart form to the src endpoint.
package bitbucket

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/JakeFAU/static-mirror/internal/archive"
	"github.com/JakeFAU/static-mirror/internal/deployer"
)

const name = "bitbucket"

// Config selects the repository and credentials.
type Config struct {
	APIURL   string
	Repo     string
	Branch   string
	User     string
	Password string
}

// Deployer commits one batch per form post.
type Deployer struct {
	cfg    Config
	client *http.Client
}

// New validates cfg.
func New(cfg Config, client *http.Client) (*Deployer, error) {
	if cfg.Repo == "" || cfg.User == "" {
		return nil, errors.New("bitbucket: repo and user are required")
	}
	if cfg.APIURL == "" {
		cfg.APIURL = "https://api.bitbucket.org/2.0"
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	if client == nil {
		client = deployer.NewHTTPClient(0)
	}
	return &Deployer{cfg: cfg, client: client}, nil
}

// Name implements deployer.Deployer.
func (d *Deployer) Name() string { return name }

// TestConnectivity fetches the repository.
func (d *Deployer) TestConnectivity(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.repoURL(), nil)
	if err != nil {
		return fmt.Errorf("build bitbucket request: %w", err)
	}
	resp, err := d.send(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	return deployer.CheckStatus(name, "get repo", resp)
}

// UploadBatch posts all files in a single multipart form.
func (d *Deployer) UploadBatch(ctx context.Context, files []deployer.File) error {
	if len(files) == 0 {
		return nil
	}
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	if err := form.WriteField("message", fmt.Sprintf("static-mirror: deploy %d files", len(files))); err != nil {
		return fmt.Errorf("write form field: %w", err)
	}
	if d.cfg.Branch != "" {
		if err := form.WriteField("branch", d.cfg.Branch); err != nil {
			return fmt.Errorf("write form field: %w", err)
		}
	}
	for _, f := range files {
		part, err := form.CreateFormFile("/"+f.RemotePath, f.RemotePath)
		if err != nil {
			return fmt.Errorf("create form file %s: %w", f.RemotePath, err)
		}
		if _, err := part.Write(f.Body); err != nil {
			return fmt.Errorf("write form file %s: %w", f.RemotePath, err)
		}
	}
	if err := form.Close(); err != nil {
		return fmt.Errorf("close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.repoURL()+"/src", &buf)
	if err != nil {
		return fmt.Errorf("build bitbucket request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	resp, err := d.send(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	return deployer.CheckStatus(name, "post src", resp)
}

// Finalize has nothing left to do.
func (d *Deployer) Finalize(context.Context, archive.Archive) error { return nil }

func (d *Deployer) repoURL() string {
	return d.cfg.APIURL + "/repositories/" + d.cfg.Repo
}

func (d *Deployer) send(req *http.Request) (*http.Response, error) {
	req.SetBasicAuth(d.cfg.User, d.cfg.Password)
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("bitbucket %s: %w", req.Method, err)
	}
	return resp, nil
}
