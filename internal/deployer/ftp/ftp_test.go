package ftp

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/static-mirror/internal/deployer"
)

type fakeConn struct {
	user, pass string
	dirs       []string
	files      map[string]string
	quits      int
	loginErr   error
}

func (c *fakeConn) Login(user, password string) error {
	c.user, c.pass = user, password
	return c.loginErr
}

func (c *fakeConn) MakeDir(p string) error {
	c.dirs = append(c.dirs, p)
	return errors.New("550 exists")
}

func (c *fakeConn) Stor(p string, r io.Reader) error {
	body, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	c.files[p] = string(body)
	return nil
}

func (c *fakeConn) Quit() error {
	c.quits++
	return nil
}

func dialer(conn *fakeConn, gotAddr *string) DialFunc {
	return func(_ context.Context, addr string, _ time.Duration) (Conn, error) {
		*gotAddr = addr
		return conn, nil
	}
}

func TestUploadBatchStoresFiles(t *testing.T) {
	t.Parallel()
	conn := &fakeConn{files: map[string]string{}}
	var addr string
	d, err := New(Config{Host: "ftp.example.com", User: "u", Password: "p", RemotePath: "public_html"}, dialer(conn, &addr))
	require.NoError(t, err)

	err = d.UploadBatch(context.Background(), []deployer.File{
		{Item: deployer.Item{RemotePath: "index.html"}, Body: []byte("home")},
		{Item: deployer.Item{RemotePath: "blog/post/index.html"}, Body: []byte("post")},
		{Item: deployer.Item{RemotePath: "blog/other.html"}, Body: []byte("other")},
	})
	require.NoError(t, err)

	assert.Equal(t, "ftp.example.com:21", addr)
	assert.Equal(t, "u", conn.user)
	assert.Equal(t, map[string]string{
		"/public_html/index.html":           "home",
		"/public_html/blog/post/index.html": "post",
		"/public_html/blog/other.html":      "other",
	}, conn.files)
	assert.Equal(t, []string{"/public_html", "/public_html/blog", "/public_html/blog/post"}, conn.dirs)
	assert.Equal(t, 1, conn.quits)
}

func TestLoginFailure(t *testing.T) {
	t.Parallel()
	conn := &fakeConn{files: map[string]string{}, loginErr: errors.New("530 login incorrect")}
	var addr string
	d, err := New(Config{Host: "h", Port: 2121}, dialer(conn, &addr))
	require.NoError(t, err)

	err = d.TestConnectivity(context.Background())
	require.Error(t, err)
	assert.Equal(t, "h:2121", addr)
	assert.Equal(t, "anonymous", conn.user)
	assert.Equal(t, 1, conn.quits)
}

func TestNewRequiresHost(t *testing.T) {
	t.Parallel()
	_, err := New(Config{}, nil)
	require.Error(t, err)
}
