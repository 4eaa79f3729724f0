// Package ftp deploys an archive to a plain FTP server.
package ftp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"

	"github.com/JakeFAU/static-mirror/internal/archive"
	"github.com/JakeFAU/static-mirror/internal/deployer"
)

// Config locates the server and remote base directory.
type Config struct {
	Host       string
	Port       int
	User       string
	Password   string
	RemotePath string
	Timeout    time.Duration
}

// Conn is the subset of *ftp.ServerConn the deployer uses.
type Conn interface {
	Login(user, password string) error
	MakeDir(path string) error
	Stor(path string, r io.Reader) error
	Quit() error
}

// DialFunc opens a connection.
type DialFunc func(ctx context.Context, addr string, timeout time.Duration) (Conn, error)

// Deployer opens one session per batch.
type Deployer struct {
	cfg  Config
	dial DialFunc
}

// New validates cfg. A nil dial uses the real FTP client.
func New(cfg Config, dial DialFunc) (*Deployer, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, errors.New("ftp: host is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 21
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = deployer.DefaultTimeout
	}
	if cfg.User == "" {
		cfg.User = "anonymous"
	}
	if dial == nil {
		dial = dialServer
	}
	return &Deployer{cfg: cfg, dial: dial}, nil
}

func dialServer(ctx context.Context, addr string, timeout time.Duration) (Conn, error) {
	c, err := ftp.Dial(addr, ftp.DialWithContext(ctx), ftp.DialWithTimeout(timeout))
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Name implements deployer.Deployer.
func (d *Deployer) Name() string { return "ftp" }

// TestConnectivity logs in and out.
func (d *Deployer) TestConnectivity(ctx context.Context) error {
	c, err := d.session(ctx)
	if err != nil {
		return err
	}
	return c.Quit()
}

// UploadBatch stores each file, creating parent directories as needed.
func (d *Deployer) UploadBatch(ctx context.Context, files []deployer.File) error {
	c, err := d.session(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = c.Quit() }()

	made := make(map[string]struct{})
	for _, f := range files {
		target := path.Join("/", d.cfg.RemotePath, f.RemotePath)
		mkdirAll(c, path.Dir(target), made)
		if err := c.Stor(target, bytes.NewReader(f.Body)); err != nil {
			return fmt.Errorf("ftp stor %s: %w", target, err)
		}
	}
	return nil
}

// Finalize has nothing left to do.
func (d *Deployer) Finalize(context.Context, archive.Archive) error { return nil }

func (d *Deployer) session(ctx context.Context) (Conn, error) {
	addr := net.JoinHostPort(d.cfg.Host, strconv.Itoa(d.cfg.Port))
	c, err := d.dial(ctx, addr, d.cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("ftp dial %s: %w", addr, err)
	}
	if err := c.Login(d.cfg.User, d.cfg.Password); err != nil {
		_ = c.Quit()
		return nil, fmt.Errorf("ftp login: %w", err)
	}
	return c, nil
}

// mkdirAll creates each missing ancestor of dir. Errors are ignored because
// servers report existing directories as failures; a real problem surfaces
// on the following STOR.
func mkdirAll(c Conn, dir string, made map[string]struct{}) {
	if dir == "/" || dir == "." {
		return
	}
	current := ""
	for _, part := range strings.Split(strings.Trim(dir, "/"), "/") {
		current += "/" + part
		if _, ok := made[current]; ok {
			continue
		}
		_ = c.MakeDir(current)
		made[current] = struct{}{}
	}
}
