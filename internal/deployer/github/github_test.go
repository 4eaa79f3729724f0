package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/static-mirror/internal/deployer"
)

type contentResponse struct {
	SHA string `json:"sha"`
}

type putRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	Branch  string `json:"branch,omitempty"`
	SHA     string `json:"sha,omitempty"`
}

type fakeGitHub struct {
	mu    sync.Mutex
	blobs map[string]string
	puts  map[string]putRequest
}

func (f *fakeGitHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r.Header.Get("Authorization") != "Bearer tok" {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"Bad credentials"}`))
		return
	}
	const prefix = "/repos/acme/site/contents/"
	if r.URL.Path == "/repos/acme/site" {
		_, _ = w.Write([]byte(`{"full_name":"acme/site"}`))
		return
	}
	if len(r.URL.Path) <= len(prefix) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	p := r.URL.Path[len(prefix):]
	switch r.Method {
	case http.MethodGet:
		sha, ok := f.blobs[p]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(contentResponse{SHA: sha})
	case http.MethodPut:
		var req putRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.puts[p] = req
		if _, exists := f.blobs[p]; exists {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusCreated)
		}
		_, _ = w.Write([]byte(`{}`))
	}
}

func TestUploadBatchCreatesAndUpdates(t *testing.T) {
	t.Parallel()
	fake := &fakeGitHub{blobs: map[string]string{"docs/index.html": "oldsha"}, puts: map[string]putRequest{}}
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	d, err := New(Config{APIURL: server.URL, Repo: "acme/site", Branch: "gh-pages", Path: "docs", Token: "tok"}, server.Client())
	require.NoError(t, err)
	require.NoError(t, d.TestConnectivity(context.Background()))

	err = d.UploadBatch(context.Background(), []deployer.File{
		{Item: deployer.Item{RemotePath: "index.html"}, Body: []byte("home")},
		{Item: deployer.Item{RemotePath: "new.css"}, Body: []byte("a{}")},
	})
	require.NoError(t, err)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	update := fake.puts["docs/index.html"]
	assert.Equal(t, "oldsha", update.SHA)
	assert.Equal(t, "gh-pages", update.Branch)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("home")), update.Content)

	create := fake.puts["docs/new.css"]
	assert.Empty(t, create.SHA)
	assert.Equal(t, "static-mirror: update new.css", create.Message)
}

func TestUploadBatchUnauthorized(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(&fakeGitHub{blobs: map[string]string{}, puts: map[string]putRequest{}})
	t.Cleanup(server.Close)

	d, err := New(Config{APIURL: server.URL, Repo: "acme/site", Token: "wrong"}, server.Client())
	require.NoError(t, err)
	err = d.UploadBatch(context.Background(), []deployer.File{
		{Item: deployer.Item{RemotePath: "index.html"}, Body: []byte("x")},
	})
	var se *deployer.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusUnauthorized, se.Code)
	assert.Equal(t, "Bad credentials", se.Body)
}

func TestNewRejectsRepoWithoutOwner(t *testing.T) {
	t.Parallel()
	_, err := New(Config{Repo: "site", Token: "tok"}, nil)
	require.Error(t, err)
}
