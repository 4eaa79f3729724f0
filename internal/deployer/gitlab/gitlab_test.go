package gitlab

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/static-mirror/internal/deployer"
)

type treeEntry struct {
	Path string `json:"path"`
	Type string `json:"type"`
}

type action struct {
	Action   string `json:"action"`
	FilePath string `json:"file_path"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

type commitRequest struct {
	Branch        string   `json:"branch"`
	CommitMessage string   `json:"commit_message"`
	Actions       []action `json:"actions"`
}

type fakeGitLab struct {
	mu        sync.Mutex
	pages     [][]treeEntry
	treeCalls int
	commits   []commitRequest
	fail      bool
}

func (f *fakeGitLab) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r.Header.Get("PRIVATE-TOKEN") != "tok" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	switch r.URL.EscapedPath() {
	case "/api/v4/projects/acme%2Fsite":
		_, _ = w.Write([]byte(`{"id": 7}`))
	case "/api/v4/projects/acme%2Fsite/repository/tree":
		f.treeCalls++
		var page int
		_, _ = fmt.Sscan(r.URL.Query().Get("page"), &page)
		if page < len(f.pages) {
			w.Header().Set("X-Next-Page", fmt.Sprint(page+1))
		}
		_ = json.NewEncoder(w).Encode(f.pages[page-1])
	case "/api/v4/projects/acme%2Fsite/repository/commits":
		if f.fail {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"message":"A file with this name already exists"}`))
			return
		}
		var req commitRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.commits = append(f.commits, req)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"abc"}`))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestDeployer(t *testing.T, fake *fakeGitLab) *Deployer {
	t.Helper()
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)
	d, err := New(Config{APIURL: server.URL + "/api/v4", ProjectID: "acme/site", Branch: "pages", Token: "tok"}, server.Client())
	require.NoError(t, err)
	return d
}

func files(paths ...string) []deployer.File {
	out := make([]deployer.File, len(paths))
	for i, p := range paths {
		out[i] = deployer.File{Item: deployer.Item{RemotePath: p}, Body: []byte(p)}
	}
	return out
}

func TestUploadBatchClassifiesAcrossPages(t *testing.T) {
	t.Parallel()
	fake := &fakeGitLab{pages: [][]treeEntry{
		{{Path: "index.html", Type: "blob"}, {Path: "css", Type: "tree"}},
		{{Path: "css/site.css", Type: "blob"}},
	}}
	d := newTestDeployer(t, fake)
	require.NoError(t, d.TestConnectivity(context.Background()))

	require.NoError(t, d.UploadBatch(context.Background(), files("index.html", "css/site.css", "about/index.html")))
	require.NoError(t, d.UploadBatch(context.Background(), files("about/index.html")))

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, 2, fake.treeCalls)
	require.Len(t, fake.commits, 2)

	first := fake.commits[0]
	assert.Equal(t, "pages", first.Branch)
	kinds := map[string]string{}
	for _, a := range first.Actions {
		kinds[a.FilePath] = a.Action
		assert.Equal(t, "base64", a.Encoding)
	}
	assert.Equal(t, map[string]string{
		"index.html":       "update",
		"css/site.css":     "update",
		"about/index.html": "create",
	}, kinds)
	assert.Equal(t, "update", fake.commits[1].Actions[0].Action)
}

func TestUploadBatchCommitRejected(t *testing.T) {
	t.Parallel()
	fake := &fakeGitLab{pages: [][]treeEntry{{}}, fail: true}
	d := newTestDeployer(t, fake)

	err := d.UploadBatch(context.Background(), files("index.html"))
	var se *deployer.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadRequest, se.Code)
	assert.Contains(t, se.Body, "already exists")
}

func TestUploadBatchEmptyRepository(t *testing.T) {
	t.Parallel()
	fake := &fakeGitLab{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.EscapedPath() == "/api/v4/projects/acme%2Fsite/repository/tree" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"message":"404 Tree Not Found"}`))
			return
		}
		fake.ServeHTTP(w, r)
	}))
	t.Cleanup(server.Close)
	d, err := New(Config{APIURL: server.URL + "/api/v4", ProjectID: "acme/site", Token: "tok"}, server.Client())
	require.NoError(t, err)

	require.NoError(t, d.UploadBatch(context.Background(), files("index.html")))

	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.Len(t, fake.commits, 1)
	assert.Equal(t, "main", fake.commits[0].Branch)
	assert.Equal(t, "create", fake.commits[0].Actions[0].Action)
}

func TestTestConnectivityUnauthorized(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(&fakeGitLab{})
	t.Cleanup(server.Close)
	d, err := New(Config{APIURL: server.URL + "/api/v4", ProjectID: "acme/site", Token: "wrong"}, server.Client())
	require.NoError(t, err)

	var se *deployer.StatusError
	require.True(t, errors.As(d.TestConnectivity(context.Background()), &se))
	assert.Equal(t, http.StatusUnauthorized, se.Code)
}
