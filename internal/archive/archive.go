// Package archive manages the timestamped working directories that hold one
// static snapshot of the site each.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/static-mirror/internal/logging"
)

const (
	// SafetyMarker is written into every directory this tool manages.
	SafetyMarker = ".statichtmloutput_safety"
	// PointerFile holds the path of the current archive.
	PointerFile = ".current_archive"

	archivesDir = "archives"
	namePrefix  = "mirror-"
	nameLayout  = "20060102-150405"
)

var (
	// ErrNoCurrentArchive means no generate run has created an archive yet.
	ErrNoCurrentArchive = errors.New("archive: no current archive")
	// ErrUnsafeDirectory guards destructive operations on unmanaged folders.
	ErrUnsafeDirectory = errors.New("archive: directory is not managed by static-mirror")
)

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// Archive is one snapshot directory.
type Archive struct {
	Name      string
	Path      string
	CreatedAt time.Time
}

// Manager creates, locates and prunes archives under a root directory.
type Manager struct {
	root   string
	clock  Clock
	logger *zap.Logger
}

// NewManager prepares root and returns a Manager for it.
func NewManager(root string, clock Clock, logger *zap.Logger) (*Manager, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("archive: root directory is required")
	}
	if clock == nil {
		return nil, errors.New("archive: clock is required")
	}
	if err := os.MkdirAll(filepath.Join(root, archivesDir), 0o750); err != nil {
		return nil, fmt.Errorf("create archive root %s: %w", root, err)
	}
	if err := WriteSafetyMarker(root); err != nil {
		return nil, err
	}
	return &Manager{root: root, clock: clock, logger: logging.Component(logger, "archive")}, nil
}

// Create makes a fresh timestamped archive and points the root at it.
func (m *Manager) Create() (Archive, error) {
	now := m.clock.Now().UTC()
	base := namePrefix + now.Format(nameLayout)
	name := base
	for i := 1; ; i++ {
		_, err := os.Stat(filepath.Join(m.root, archivesDir, name))
		if errors.Is(err, fs.ErrNotExist) {
			break
		}
		if err != nil {
			return Archive{}, fmt.Errorf("stat archive %s: %w", name, err)
		}
		name = fmt.Sprintf("%s-%d", base, i)
	}

	a := Archive{Name: name, Path: filepath.Join(m.root, archivesDir, name), CreatedAt: now}
	if err := os.MkdirAll(a.Path, 0o750); err != nil {
		m.logger.Error("create archive directory", zap.String("path", a.Path), zap.Error(err))
		return Archive{}, fmt.Errorf("create archive %s: %w", a.Path, err)
	}
	if err := WriteSafetyMarker(a.Path); err != nil {
		return Archive{}, err
	}
	if err := m.setCurrent(a); err != nil {
		return Archive{}, err
	}
	m.logger.Info("archive created", zap.String("path", a.Path))
	return a, nil
}

// Current reads the pointer file and returns the archive it names.
func (m *Manager) Current() (Archive, error) {
	data, err := os.ReadFile(filepath.Join(m.root, PointerFile))
	if errors.Is(err, fs.ErrNotExist) {
		return Archive{}, ErrNoCurrentArchive
	}
	if err != nil {
		return Archive{}, fmt.Errorf("read archive pointer: %w", err)
	}
	path := strings.TrimSpace(string(data))
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return Archive{}, fmt.Errorf("%w: pointer names missing directory %q", ErrNoCurrentArchive, path)
	}
	name := filepath.Base(path)
	return Archive{Name: name, Path: path, CreatedAt: parseCreated(name)}, nil
}

// parseCreated recovers the creation time encoded in an archive name. A
// collision suffix is ignored.
func parseCreated(name string) time.Time {
	stamp := strings.TrimPrefix(name, namePrefix)
	if len(stamp) > len(nameLayout) {
		stamp = stamp[:len(nameLayout)]
	}
	t, err := time.Parse(nameLayout, stamp)
	if err != nil {
		return time.Time{}
	}
	return t
}

func (m *Manager) setCurrent(a Archive) error {
	pointer := filepath.Join(m.root, PointerFile)
	tmp := pointer + ".tmp"
	if err := os.WriteFile(tmp, []byte(a.Path+"\n"), 0o600); err != nil {
		return fmt.Errorf("write archive pointer: %w", err)
	}
	if err := os.Rename(tmp, pointer); err != nil {
		m.logger.Error("rename archive pointer", zap.String("path", pointer), zap.Error(err))
		return fmt.Errorf("rename archive pointer: %w", err)
	}
	return nil
}

// WriteFile writes body under the current archive. It satisfies the
// crawler's sink contract.
func (m *Manager) WriteFile(_ context.Context, relPath string, body []byte) error {
	a, err := m.Current()
	if err != nil {
		return err
	}
	return a.WriteFile(relPath, body)
}

// WriteFile writes body at relPath inside the archive.
func (a Archive) WriteFile(relPath string, body []byte) error {
	full, err := a.resolve(relPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return fmt.Errorf("create parent directories for %s: %w", full, err)
	}
	if err := os.WriteFile(full, body, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", full, err)
	}
	return nil
}

// LocalPath returns the absolute file path for an archive-relative path.
func (a Archive) LocalPath(relPath string) (string, error) {
	return a.resolve(relPath)
}

// RelPath converts a path inside the archive back to slash form.
func (a Archive) RelPath(localPath string) (string, error) {
	rel, err := filepath.Rel(a.Path, localPath)
	if err != nil {
		return "", fmt.Errorf("relative path for %s: %w", localPath, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %s is outside archive %s", localPath, a.Path)
	}
	return filepath.ToSlash(rel), nil
}

func (a Archive) resolve(relPath string) (string, error) {
	if strings.TrimSpace(relPath) == "" {
		return "", errors.New("archive: path is required")
	}
	base := filepath.Clean(a.Path)
	full := filepath.Clean(filepath.Join(base, filepath.FromSlash(relPath)))
	if !strings.HasPrefix(full, base+string(filepath.Separator)) {
		return "", fmt.Errorf("archive: path traversal detected for %q", relPath)
	}
	return full, nil
}

// Files lists every regular file in the archive as sorted slash paths,
// leaving out the safety marker.
func (a Archive) Files() ([]string, error) {
	var files []string
	err := filepath.WalkDir(a.Path, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		rel, err := a.RelPath(path)
		if err != nil {
			return err
		}
		if rel == SafetyMarker {
			return nil
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk archive %s: %w", a.Path, err)
	}
	sort.Strings(files)
	return files, nil
}

// WriteSafetyMarker marks dir as managed by this tool.
func WriteSafetyMarker(dir string) error {
	path := filepath.Join(dir, SafetyMarker)
	if err := os.WriteFile(path, []byte("managed by static-mirror\n"), 0o600); err != nil {
		return fmt.Errorf("write safety marker in %s: %w", dir, err)
	}
	return nil
}

// IsManaged reports whether dir carries the safety marker.
func IsManaged(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, SafetyMarker))
	return err == nil && info.Mode().IsRegular()
}
