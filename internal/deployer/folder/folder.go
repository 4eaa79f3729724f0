// Package folder deploys an archive by copying it into a local directory.
package folder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/JakeFAU/static-mirror/internal/archive"
	"github.com/JakeFAU/static-mirror/internal/deployer"
)

// Deployer copies files under a target directory.
type Deployer struct {
	base string
}

// New returns a Deployer writing below base.
func New(base string) (*Deployer, error) {
	if strings.TrimSpace(base) == "" {
		return nil, errors.New("folder: target path is required")
	}
	return &Deployer{base: filepath.Clean(base)}, nil
}

// Name implements deployer.Deployer.
func (d *Deployer) Name() string { return "folder" }

// TestConnectivity prepares the target directory. A non-empty directory
// without the safety marker is refused so user folders are never overwritten.
func (d *Deployer) TestConnectivity(context.Context) error {
	return d.ensureTarget()
}

// UploadBatch writes each file below the target directory.
func (d *Deployer) UploadBatch(_ context.Context, files []deployer.File) error {
	if err := d.ensureTarget(); err != nil {
		return err
	}
	for _, f := range files {
		full := filepath.Clean(filepath.Join(d.base, filepath.FromSlash(f.RemotePath)))
		if !strings.HasPrefix(full, d.base+string(filepath.Separator)) {
			return fmt.Errorf("folder: path traversal detected for %q", f.RemotePath)
		}
		if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
			return fmt.Errorf("create parent directories for %s: %w", full, err)
		}
		if err := os.WriteFile(full, f.Body, 0o600); err != nil {
			return fmt.Errorf("write %s: %w", full, err)
		}
	}
	return nil
}

// Finalize has nothing left to do.
func (d *Deployer) Finalize(context.Context, archive.Archive) error { return nil }

func (d *Deployer) ensureTarget() error {
	if err := os.MkdirAll(d.base, 0o750); err != nil {
		return fmt.Errorf("create target directory %s: %w", d.base, err)
	}
	if archive.IsManaged(d.base) {
		return nil
	}
	entries, err := os.ReadDir(d.base)
	if err != nil {
		return fmt.Errorf("read target directory %s: %w", d.base, err)
	}
	if len(entries) > 0 {
		return fmt.Errorf("%w: %s", archive.ErrUnsafeDirectory, d.base)
	}
	return archive.WriteSafetyMarker(d.base)
}
