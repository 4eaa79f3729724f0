// Package zip deploys an archive as a single zip file.
package zip

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/JakeFAU/static-mirror/internal/archive"
	"github.com/JakeFAU/static-mirror/internal/deployer"
	"github.com/JakeFAU/static-mirror/internal/logging"
)

// Deployer zips the archive once every file has been queued through.
type Deployer struct {
	dir    string
	logger *zap.Logger
}

// New returns a Deployer. An empty dir keeps the zip next to the archive.
func New(dir string, logger *zap.Logger) *Deployer {
	return &Deployer{dir: dir, logger: logging.Component(logger, "deploy.zip")}
}

// Name implements deployer.Deployer.
func (d *Deployer) Name() string { return "zip" }

// UploadBatch has nothing to transfer; files are packed in Finalize.
func (d *Deployer) UploadBatch(context.Context, []deployer.File) error { return nil }

// TestConnectivity checks that the output directory is writable.
func (d *Deployer) TestConnectivity(context.Context) error {
	if d.dir == "" {
		return nil
	}
	if err := os.MkdirAll(d.dir, 0o750); err != nil {
		return fmt.Errorf("create zip directory: %w", err)
	}
	tmp, err := os.CreateTemp(d.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("zip directory not writable: %w", err)
	}
	name := tmp.Name()
	_ = tmp.Close()
	return os.Remove(name)
}

// Finalize writes the zip and moves it into the output directory.
func (d *Deployer) Finalize(_ context.Context, a archive.Archive) error {
	path, err := archive.Zip(a)
	if err != nil {
		return err
	}
	if d.dir != "" {
		dest := filepath.Join(d.dir, filepath.Base(path))
		if err := move(path, dest); err != nil {
			return err
		}
		path = dest
	}
	d.logger.Info("zip written", zap.String("path", path))
	return nil
}

func move(src, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return fmt.Errorf("create zip directory: %w", err)
	}
	if err := os.Rename(src, dest); err == nil {
		return nil
	}
	// Rename fails across filesystems.
	in, err := os.Open(src) // #nosec G304 -- path produced by archive.Zip
	if err != nil {
		return fmt.Errorf("open zip: %w", err)
	}
	defer func() { _ = in.Close() }()
	out, err := os.Create(dest) // #nosec G304 -- configured output directory
	if err != nil {
		return fmt.Errorf("create %s: %w", dest, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("copy zip: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close %s: %w", dest, err)
	}
	return os.Remove(src)
}
