// Package github deploys an archive into a repository through the contents
// API. Existing files are updated by blob SHA; new files are created.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	gh "github.com/google/go-github/v66/github"

	"github.com/JakeFAU/static-mirror/internal/archive"
	"github.com/JakeFAU/static-mirror/internal/deployer"
)

const name = "github"

// Config selects the repository, branch and base path.
type Config struct {
	APIURL string
	Repo   string
	Branch string
	Path   string
	Token  string
}

// Deployer talks to the GitHub REST API.
type Deployer struct {
	cfg    Config
	owner  string
	repo   string
	client *gh.Client
}

// New validates cfg. APIURL points at the REST root, which for GitHub
// Enterprise is usually https://host/api/v3.
func New(cfg Config, client *http.Client) (*Deployer, error) {
	if cfg.Repo == "" || cfg.Token == "" {
		return nil, errors.New("github: repo and token are required")
	}
	owner, repo, ok := strings.Cut(cfg.Repo, "/")
	if !ok || owner == "" || repo == "" {
		return nil, fmt.Errorf("github: repo %q is not owner/name", cfg.Repo)
	}
	if client == nil {
		client = deployer.NewHTTPClient(0)
	}
	api := gh.NewClient(client).WithAuthToken(cfg.Token)
	if cfg.APIURL != "" {
		base, err := url.Parse(strings.TrimRight(cfg.APIURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("github: parse api url: %w", err)
		}
		api.BaseURL = base
	}
	return &Deployer{cfg: cfg, owner: owner, repo: repo, client: api}, nil
}

// Name implements deployer.Deployer.
func (d *Deployer) Name() string { return name }

// TestConnectivity fetches the repository metadata.
func (d *Deployer) TestConnectivity(ctx context.Context) error {
	_, resp, err := d.client.Repositories.Get(ctx, d.owner, d.repo)
	return fromResponse("get repo", resp, err)
}

// UploadBatch creates or updates each file with its own commit.
func (d *Deployer) UploadBatch(ctx context.Context, files []deployer.File) error {
	for _, f := range files {
		if err := d.put(ctx, f); err != nil {
			return err
		}
	}
	return nil
}

// Finalize has nothing left to do.
func (d *Deployer) Finalize(context.Context, archive.Archive) error { return nil }

func (d *Deployer) put(ctx context.Context, f deployer.File) error {
	target := deployer.RemoteKey(d.cfg.Path, f.RemotePath)
	sha, err := d.existingSHA(ctx, target)
	if err != nil {
		return err
	}

	opts := &gh.RepositoryContentFileOptions{
		Message: gh.String("static-mirror: update " + f.RemotePath),
		Content: f.Body,
	}
	if d.cfg.Branch != "" {
		opts.Branch = gh.String(d.cfg.Branch)
	}
	var resp *gh.Response
	if sha == "" {
		_, resp, err = d.client.Repositories.CreateFile(ctx, d.owner, d.repo, target, opts)
	} else {
		opts.SHA = gh.String(sha)
		_, resp, err = d.client.Repositories.UpdateFile(ctx, d.owner, d.repo, target, opts)
	}
	return fromResponse("put "+f.RemotePath, resp, err)
}

// existingSHA returns the blob SHA for target, or "" when it does not exist.
func (d *Deployer) existingSHA(ctx context.Context, target string) (string, error) {
	var opts *gh.RepositoryContentGetOptions
	if d.cfg.Branch != "" {
		opts = &gh.RepositoryContentGetOptions{Ref: d.cfg.Branch}
	}
	file, _, resp, err := d.client.Repositories.GetContents(ctx, d.owner, d.repo, target, opts)
	if resp != nil && resp.StatusCode == http.StatusNotFound {
		return "", nil
	}
	if err := fromResponse("get contents", resp, err); err != nil {
		return "", err
	}
	if file == nil {
		return "", fmt.Errorf("github: %s is a directory", target)
	}
	return file.GetSHA(), nil
}

func fromResponse(op string, resp *gh.Response, err error) error {
	code := 0
	if resp != nil {
		code = resp.StatusCode
	}
	body := ""
	var apiErr *gh.ErrorResponse
	if errors.As(err, &apiErr) {
		body = apiErr.Message
	}
	return deployer.FromResponse(name, op, code, body, err)
}
