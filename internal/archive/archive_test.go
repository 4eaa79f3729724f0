package archive

import (
	"archive/zip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type stepClock struct {
	now time.Time
}

func (c *stepClock) Now() time.Time {
	t := c.now
	c.now = c.now.Add(time.Hour)
	return t
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func newManager(t *testing.T, clock Clock) (*Manager, string) {
	t.Helper()
	root := t.TempDir()
	m, err := NewManager(root, clock, nil)
	require.NoError(t, err)
	return m, root
}

func TestCreateSetsCurrent(t *testing.T) {
	t.Parallel()
	ts := time.Date(2024, 3, 9, 14, 5, 6, 0, time.UTC)
	m, root := newManager(t, fixedClock{t: ts})

	_, err := m.Current()
	require.ErrorIs(t, err, ErrNoCurrentArchive)

	a, err := m.Create()
	require.NoError(t, err)
	assert.Equal(t, "mirror-20240309-140506", a.Name)
	assert.True(t, IsManaged(a.Path))
	assert.True(t, IsManaged(root))

	cur, err := m.Current()
	require.NoError(t, err)
	assert.Equal(t, a.Path, cur.Path)
	assert.True(t, cur.CreatedAt.Equal(ts))

	// Same second: the name gets a suffix and the pointer moves.
	b, err := m.Create()
	require.NoError(t, err)
	assert.Equal(t, "mirror-20240309-140506-1", b.Name)
	cur, err = m.Current()
	require.NoError(t, err)
	assert.Equal(t, b.Path, cur.Path)
	assert.True(t, cur.CreatedAt.Equal(ts))
}

func TestCurrentMissingDirectory(t *testing.T) {
	t.Parallel()
	m, _ := newManager(t, fixedClock{t: time.Now()})
	a, err := m.Create()
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(a.Path))

	_, err = m.Current()
	require.ErrorIs(t, err, ErrNoCurrentArchive)
}

func TestWriteFileAndFiles(t *testing.T) {
	t.Parallel()
	m, _ := newManager(t, fixedClock{t: time.Now()})
	a, err := m.Create()
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, m.WriteFile(ctx, "index.html", []byte("<html></html>")))
	require.NoError(t, m.WriteFile(ctx, "blog/post/index.html", []byte("post")))
	require.NoError(t, m.WriteFile(ctx, "wp-content/style.css", []byte("body{}")))

	got, err := os.ReadFile(filepath.Join(a.Path, "blog", "post", "index.html"))
	require.NoError(t, err)
	assert.Equal(t, "post", string(got))

	files, err := a.Files()
	require.NoError(t, err)
	assert.Equal(t, []string{"blog/post/index.html", "index.html", "wp-content/style.css"}, files)
}

func TestWriteFileRejectsTraversal(t *testing.T) {
	t.Parallel()
	m, _ := newManager(t, fixedClock{t: time.Now()})
	a, err := m.Create()
	require.NoError(t, err)

	for _, rel := range []string{"../escape.html", "a/../../escape.html", ""} {
		assert.Error(t, a.WriteFile(rel, []byte("x")), rel)
	}
}

func TestCleanupRetainsNewest(t *testing.T) {
	t.Parallel()
	clock := &stepClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	m, root := newManager(t, clock)

	var created []Archive
	for i := 0; i < 4; i++ {
		a, err := m.Create()
		require.NoError(t, err)
		created = append(created, a)
	}
	_, err := Zip(created[0])
	require.NoError(t, err)

	unmanaged := filepath.Join(root, archivesDir, "mirror-19990101-000000")
	require.NoError(t, os.MkdirAll(unmanaged, 0o750))

	removed, err := m.Cleanup(2)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	assert.DirExists(t, created[3].Path)
	assert.DirExists(t, created[2].Path)
	assert.NoDirExists(t, created[1].Path)
	assert.NoDirExists(t, created[0].Path)
	assert.NoFileExists(t, created[0].ZipPath())
	assert.DirExists(t, unmanaged)
}

func TestCleanupKeepsCurrentWithZeroRetain(t *testing.T) {
	t.Parallel()
	clock := &stepClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	m, _ := newManager(t, clock)
	old, err := m.Create()
	require.NoError(t, err)
	cur, err := m.Create()
	require.NoError(t, err)

	removed, err := m.Cleanup(0)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.DirExists(t, cur.Path)
	assert.NoDirExists(t, old.Path)
}

func TestRemoveManagedRefusesUnmarked(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	err := RemoveManaged(dir)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsafeDirectory))
	assert.DirExists(t, dir)
}

func TestZip(t *testing.T) {
	t.Parallel()
	m, _ := newManager(t, fixedClock{t: time.Now()})
	a, err := m.Create()
	require.NoError(t, err)
	require.NoError(t, a.WriteFile("index.html", []byte("home")))
	require.NoError(t, a.WriteFile("css/site.css", []byte("body{}")))

	path, err := Zip(a)
	require.NoError(t, err)
	assert.Equal(t, a.Path+".zip", path)

	zr, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer func() { _ = zr.Close() }()

	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"css/site.css", "index.html"}, names)
}

func TestWriteGitLabCI(t *testing.T) {
	t.Parallel()
	m, _ := newManager(t, fixedClock{t: time.Now()})
	a, err := m.Create()
	require.NoError(t, err)
	require.NoError(t, WriteGitLabCI(a, "main"))

	body, err := os.ReadFile(filepath.Join(a.Path, GitLabCIFile))
	require.NoError(t, err)

	var doc gitlabCI
	require.NoError(t, yaml.Unmarshal(body, &doc))
	assert.Equal(t, "deploy", doc.Pages.Stage)
	assert.Equal(t, []string{"public"}, doc.Pages.Artifacts.Paths)
	assert.Equal(t, []string{"main"}, doc.Pages.Only)
	assert.Contains(t, doc.Pages.Script, "mv .public public")
}

func TestWritePlatformFiles(t *testing.T) {
	t.Parallel()
	m, _ := newManager(t, fixedClock{t: time.Now()})
	a, err := m.Create()
	require.NoError(t, err)

	require.NoError(t, WritePlatformFiles(a, []string{"/old /new 301", " "}, nil))

	body, err := os.ReadFile(filepath.Join(a.Path, RedirectsFile))
	require.NoError(t, err)
	assert.Equal(t, "/old /new 301\n", string(body))
	assert.NoFileExists(t, filepath.Join(a.Path, HeadersFile))
}
