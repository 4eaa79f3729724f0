package bitbucket

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/static-mirror/internal/deployer"
)

func TestUploadBatchPostsForm(t *testing.T) {
	t.Parallel()
	got := map[string]string{}
	var branch, message string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "me" || pass != "app-pass" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.Method == http.MethodGet {
			assert.Equal(t, "/2.0/repositories/acme/site", r.URL.Path)
			w.WriteHeader(http.StatusOK)
			return
		}
		assert.Equal(t, "/2.0/repositories/acme/site/src", r.URL.Path)
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		branch = r.FormValue("branch")
		message = r.FormValue("message")
		for field, headers := range r.MultipartForm.File {
			f, err := headers[0].Open()
			if !assert.NoError(t, err) {
				continue
			}
			body, _ := io.ReadAll(f)
			_ = f.Close()
			got[field] = string(body)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	t.Cleanup(server.Close)

	d, err := New(Config{APIURL: server.URL + "/2.0", Repo: "acme/site", Branch: "main", User: "me", Password: "app-pass"}, server.Client())
	require.NoError(t, err)
	require.NoError(t, d.TestConnectivity(context.Background()))

	err = d.UploadBatch(context.Background(), []deployer.File{
		{Item: deployer.Item{RemotePath: "index.html"}, Body: []byte("home")},
		{Item: deployer.Item{RemotePath: "css/a.css"}, Body: []byte("a{}")},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"/index.html": "home", "/css/a.css": "a{}"}, got)
	assert.Equal(t, "main", branch)
	assert.Contains(t, message, "2 files")
}

func TestUploadBatchRejected(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(server.Close)

	d, err := New(Config{APIURL: server.URL, Repo: "acme/site", User: "me"}, server.Client())
	require.NoError(t, err)
	err = d.UploadBatch(context.Background(), []deployer.File{
		{Item: deployer.Item{RemotePath: "index.html"}, Body: []byte("home")},
	})
	var se *deployer.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusUnauthorized, se.Code)
}
