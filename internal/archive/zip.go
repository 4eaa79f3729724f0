package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ZipPath is where Zip writes the archive's zip file.
func (a Archive) ZipPath() string {
	return filepath.Clean(a.Path) + ".zip"
}

// Zip packs every archive file into ZipPath and returns that path.
func Zip(a Archive) (string, error) {
	files, err := a.Files()
	if err != nil {
		return "", err
	}
	dest := a.ZipPath()
	tmp := dest + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("create zip file: %w", err)
	}
	zw := zip.NewWriter(out)

	for _, rel := range files {
		if err := addToZip(zw, a, rel); err != nil {
			_ = zw.Close()
			_ = out.Close()
			_ = os.Remove(tmp)
			return "", err
		}
	}
	if err := zw.Close(); err != nil {
		_ = out.Close()
		_ = os.Remove(tmp)
		return "", fmt.Errorf("finish zip: %w", err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("close zip file: %w", err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		return "", fmt.Errorf("rename zip file: %w", err)
	}
	return dest, nil
}

func addToZip(zw *zip.Writer, a Archive, rel string) error {
	local, err := a.LocalPath(rel)
	if err != nil {
		return err
	}
	in, err := os.Open(local) // #nosec G304 -- path resolved inside the archive
	if err != nil {
		return fmt.Errorf("open %s: %w", rel, err)
	}
	defer func() { _ = in.Close() }()

	w, err := zw.Create(rel)
	if err != nil {
		return fmt.Errorf("add %s to zip: %w", rel, err)
	}
	if _, err := io.Copy(w, in); err != nil {
		return fmt.Errorf("copy %s into zip: %w", rel, err)
	}
	return nil
}
