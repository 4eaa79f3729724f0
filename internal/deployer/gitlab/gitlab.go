// Package gitlab deploys an archive into a GitLab project with one commit
// per batch.
package gitlab

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"sync"

	gl "gitlab.com/gitlab-org/api/client-go"

	"github.com/JakeFAU/static-mirror/internal/archive"
	"github.com/JakeFAU/static-mirror/internal/deployer"
)

const (
	name    = "gitlab"
	perPage = 100
)

// Config selects the project and branch.
type Config struct {
	APIURL    string
	ProjectID string
	Branch    string
	Token     string
}

// Deployer commits batches through the GitLab v4 API. The remote tree is
// listed once and held in memory so each file can be classified as create
// or update before the commit is built. Memory grows with the number of
// files in the repository.
type Deployer struct {
	cfg    Config
	client *gl.Client

	mu     sync.Mutex
	remote map[string]struct{}
}

// New validates cfg.
func New(cfg Config, client *http.Client) (*Deployer, error) {
	if cfg.ProjectID == "" || cfg.Token == "" {
		return nil, errors.New("gitlab: project id and token are required")
	}
	if cfg.APIURL == "" {
		cfg.APIURL = "https://gitlab.com/api/v4"
	}
	if cfg.Branch == "" {
		cfg.Branch = "main"
	}
	if client == nil {
		client = deployer.NewHTTPClient(0)
	}
	// Failed batches go back to the deploy queue; the client must not retry.
	api, err := gl.NewClient(cfg.Token,
		gl.WithBaseURL(cfg.APIURL),
		gl.WithHTTPClient(client),
		gl.WithCustomRetryMax(0),
	)
	if err != nil {
		return nil, fmt.Errorf("gitlab: %w", err)
	}
	return &Deployer{cfg: cfg, client: api}, nil
}

// Name implements deployer.Deployer.
func (d *Deployer) Name() string { return name }

// TestConnectivity fetches the project.
func (d *Deployer) TestConnectivity(ctx context.Context) error {
	_, resp, err := d.client.Projects.GetProject(d.cfg.ProjectID, nil, gl.WithContext(ctx))
	return fromResponse("get project", resp, err)
}

// UploadBatch sends every file in one commit.
func (d *Deployer) UploadBatch(ctx context.Context, files []deployer.File) error {
	if len(files) == 0 {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.remote == nil {
		tree, err := d.listTree(ctx)
		if err != nil {
			return err
		}
		d.remote = tree
	}

	opts := &gl.CreateCommitOptions{
		Branch:        gl.Ptr(d.cfg.Branch),
		CommitMessage: gl.Ptr(fmt.Sprintf("static-mirror: deploy %d files", len(files))),
		Actions:       make([]*gl.CommitActionOptions, 0, len(files)),
	}
	for _, f := range files {
		kind := gl.FileCreate
		if _, ok := d.remote[f.RemotePath]; ok {
			kind = gl.FileUpdate
		}
		opts.Actions = append(opts.Actions, &gl.CommitActionOptions{
			Action:   gl.Ptr(kind),
			FilePath: gl.Ptr(f.RemotePath),
			Content:  gl.Ptr(base64.StdEncoding.EncodeToString(f.Body)),
			Encoding: gl.Ptr("base64"),
		})
	}
	_, resp, err := d.client.Commits.CreateCommit(d.cfg.ProjectID, opts, gl.WithContext(ctx))
	if err := fromResponse("commit", resp, err); err != nil {
		return err
	}
	for _, f := range files {
		d.remote[f.RemotePath] = struct{}{}
	}
	return nil
}

// Finalize has nothing left to do.
func (d *Deployer) Finalize(context.Context, archive.Archive) error { return nil }

// listTree pages through the recursive tree until no next page is reported.
func (d *Deployer) listTree(ctx context.Context) (map[string]struct{}, error) {
	tree := make(map[string]struct{})
	opts := &gl.ListTreeOptions{
		ListOptions: gl.ListOptions{Page: 1, PerPage: perPage},
		Ref:         gl.Ptr(d.cfg.Branch),
		Recursive:   gl.Ptr(true),
	}
	for {
		nodes, resp, err := d.client.Repositories.ListTree(d.cfg.ProjectID, opts, gl.WithContext(ctx))
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			// Empty repository or missing branch.
			return tree, nil
		}
		if err := fromResponse("list tree", resp, err); err != nil {
			return nil, err
		}
		for _, n := range nodes {
			if n.Type == "blob" {
				tree[n.Path] = struct{}{}
			}
		}
		if resp.NextPage == 0 {
			return tree, nil
		}
		opts.Page = resp.NextPage
	}
}

func fromResponse(op string, resp *gl.Response, err error) error {
	code := 0
	if resp != nil {
		code = resp.StatusCode
	}
	body := ""
	var apiErr *gl.ErrorResponse
	if errors.As(err, &apiErr) {
		body = string(apiErr.Body)
	}
	return deployer.FromResponse(name, op, code, body, err)
}
