package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// List returns every archive under the root, newest first.
func (m *Manager) List() ([]Archive, error) {
	entries, err := os.ReadDir(filepath.Join(m.root, archivesDir))
	if err != nil {
		return nil, fmt.Errorf("list archives: %w", err)
	}
	var out []Archive
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), namePrefix) {
			continue
		}
		out = append(out, Archive{
			Name:      e.Name(),
			Path:      filepath.Join(m.root, archivesDir, e.Name()),
			CreatedAt: parseCreated(e.Name()),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name > out[j].Name })
	return out, nil
}

// Cleanup removes all but the newest retain archives together with their
// zips. The current archive is always kept, and directories without the
// safety marker are skipped. It returns the number of archives removed.
func (m *Manager) Cleanup(retain int) (int, error) {
	if retain < 0 {
		retain = 0
	}
	archives, err := m.List()
	if err != nil {
		return 0, err
	}
	current, err := m.Current()
	if err != nil {
		current = Archive{}
	}

	removed := 0
	kept := 0
	for _, a := range archives {
		if a.Path == current.Path {
			kept++
			continue
		}
		if kept < retain {
			kept++
			continue
		}
		if err := RemoveManaged(a.Path); err != nil {
			m.logger.Warn("skipping archive during cleanup", zap.String("path", a.Path), zap.Error(err))
			continue
		}
		if err := os.Remove(a.Path + ".zip"); err != nil && !os.IsNotExist(err) {
			m.logger.Warn("remove archive zip", zap.String("path", a.Path+".zip"), zap.Error(err))
		}
		removed++
	}
	m.logger.Info("archive cleanup finished", zap.Int("removed", removed), zap.Int("kept", kept))
	return removed, nil
}

// RemoveManaged deletes dir only when it carries the safety marker.
func RemoveManaged(dir string) error {
	if !IsManaged(dir) {
		return fmt.Errorf("%w: %s", ErrUnsafeDirectory, dir)
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove %s: %w", dir, err)
	}
	return nil
}
