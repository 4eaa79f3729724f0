package crawler

import (
	"mime"
	"net/url"
	"path"
	"strings"
)

// EncodeURL converts a decoded URL path into its stored form. Slashes are kept
// so stored values sort close to their decoded order.
func EncodeURL(raw string) string {
	u := &url.URL{Path: raw}
	return u.EscapedPath()
}

// DecodeURL reverses EncodeURL. Values that fail to decode are returned as-is.
func DecodeURL(stored string) string {
	decoded, err := url.PathUnescape(stored)
	if err != nil {
		return stored
	}
	return decoded
}

// OutputPath maps a site URL path to an archive-relative file path.
// Extensionless paths and the site root become directory index files.
func OutputPath(rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	if p == "" || p == "/" {
		return "index.html"
	}
	clean := path.Clean("/" + p)
	base := path.Base(clean)
	if path.Ext(base) == "" {
		return strings.TrimPrefix(path.Join(clean, "index.html"), "/")
	}
	return strings.TrimPrefix(clean, "/")
}

var extensionTypes = map[string]ContentType{
	".html": ContentHTML,
	".htm":  ContentHTML,
	".css":  ContentCSS,
	".txt":  ContentText,
	".js":   ContentText,
	".json": ContentText,
	".xml":  ContentText,
}

// Classify picks a processing class from the URL extension first and the
// Content-Type header second.
func Classify(rawURL, contentType string) ContentType {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	if ext := strings.ToLower(path.Ext(p)); ext != "" {
		if kind, ok := extensionTypes[ext]; ok {
			return kind
		}
		return ContentBinary
	}

	media, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		media = strings.ToLower(strings.TrimSpace(contentType))
	}
	switch {
	case media == "text/html" || media == "application/xhtml+xml":
		return ContentHTML
	case media == "text/css":
		return ContentCSS
	case strings.HasPrefix(media, "text/"),
		strings.HasSuffix(media, "javascript"),
		strings.HasSuffix(media, "json"),
		strings.HasSuffix(media, "xml"):
		return ContentText
	case media == "":
		// Extensionless paths without a header are pretty permalinks.
		return ContentHTML
	default:
		return ContentBinary
	}
}

// Excluded reports whether any rule is a literal substring of rawURL.
func Excluded(rawURL string, rules []string) bool {
	for _, rule := range rules {
		rule = strings.TrimSpace(rule)
		if rule != "" && strings.Contains(rawURL, rule) {
			return true
		}
	}
	return false
}
