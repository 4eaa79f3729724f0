package deployer

import (
	"mime"
	"net/http"
	"path"
	"strings"
	"time"
)

// DefaultTimeout bounds a single call to a remote target.
const DefaultTimeout = 10 * time.Minute

// NewHTTPClient returns the client providers use for API calls.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// RemoteKey joins an optional prefix and an archive-relative path into an
// object key without leading or doubled slashes.
func RemoteKey(prefix, rel string) string {
	prefix = strings.Trim(prefix, "/")
	rel = strings.TrimLeft(rel, "/")
	if prefix == "" {
		return rel
	}
	return path.Join(prefix, rel)
}

// ContentType guesses the MIME type for a remote path.
func ContentType(remotePath string) string {
	if ct := mime.TypeByExtension(path.Ext(remotePath)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
