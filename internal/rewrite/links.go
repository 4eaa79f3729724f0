package rewrite

import (
	"net/url"
	"sort"
	"strings"
)

// docState carries per-document rewrite state.
type docState struct {
	page       *url.URL
	seen       map[string]struct{}
	discovered map[string]struct{}
}

func (p *Processor) newState(pageURL string) *docState {
	return &docState{
		page:       p.pageURL(pageURL),
		seen:       make(map[string]struct{}),
		discovered: make(map[string]struct{}),
	}
}

func (s *docState) result() []string {
	out := make([]string, 0, len(s.discovered))
	for u := range s.discovered {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// pageURL maps a document's own URL, live-site form or bare path, into
// placeholder space.
func (p *Processor) pageURL(raw string) *url.URL {
	s := p.toPlaceholder.Replace(strings.TrimSpace(raw))
	if !strings.Contains(s, "://") {
		s = p.placeholderOrigin + "/" + strings.TrimLeft(s, "/")
	}
	u, err := url.Parse(s)
	if err != nil {
		u, _ = url.Parse(p.placeholderOrigin + "/")
	}
	if u.Path == "" {
		u.Path = "/"
	}
	return u
}

// IsInternal reports whether u points at the site itself. Host-relative and
// dot-relative paths are always internal; absolute URLs must carry the
// placeholder host or the configured comparison domain exactly.
func (p *Processor) IsInternal(u string) bool {
	if !strings.HasPrefix(u, "//") &&
		(strings.HasPrefix(u, "/") || strings.HasPrefix(u, "./") || strings.HasPrefix(u, "../")) {
		return true
	}
	parsed, err := url.Parse(u)
	if err != nil || parsed.Host == "" {
		return false
	}
	host := parsed.Hostname()
	if strings.EqualFold(host, PlaceholderHost) {
		return true
	}
	return p.comparisonHost != "" && strings.EqualFold(host, p.comparisonHost)
}

var skippedSchemes = []string{"data:", "mailto:", "tel:", "javascript:", "about:", "blob:"}

// rewriteLink runs one URL value through classification and rewriting.
func (p *Processor) rewriteLink(raw string, st *docState) string {
	v := strings.TrimSpace(raw)
	if v == "" || strings.HasPrefix(v, "#") || hasSkippedScheme(v) {
		return raw
	}
	abs := absolutize(v, st.page)
	if !p.IsInternal(abs) {
		if p.destHTTPS && strings.HasPrefix(abs, "http://") {
			return "https://" + strings.TrimPrefix(abs, "http://")
		}
		return v
	}

	abs = stripQuery(abs)
	if !strings.Contains(v, " ") {
		p.discover(abs, st)
	}
	abs = applyRules(abs, p.opts.Rules)
	return p.localize(abs, st.page)
}

// discover records the site-relative path of an internal link once per
// document.
func (p *Processor) discover(abs string, st *docState) {
	if _, ok := st.seen[abs]; ok {
		return
	}
	st.seen[abs] = struct{}{}
	if strings.Contains(abs, ".php") {
		return
	}
	u, err := url.Parse(abs)
	if err != nil {
		return
	}
	path := u.Path
	if path == "" || path == "/" {
		return
	}
	st.discovered[path] = struct{}{}
}

// localize converts an internal placeholder-space URL into its final form.
func (p *Processor) localize(abs string, page *url.URL) string {
	u, err := url.Parse(abs)
	if err != nil {
		return p.unchangedToDest.Replace(abs)
	}
	rest := u.EscapedPath()
	if rest == "" {
		rest = "/"
	}
	fragment := ""
	if u.Fragment != "" {
		fragment = "#" + u.EscapedFragment()
	}

	switch p.opts.Mode {
	case ModeRelative:
		return p.destBasePath + rest + fragment
	case ModeOffline:
		target := strings.TrimPrefix(rest, "/")
		if target == "" || strings.HasSuffix(target, "/") {
			target += "index.html"
		}
		return dotsToRoot(page.Path) + target + fragment
	default:
		if strings.HasPrefix(abs, "//") {
			return p.destHostPath + rest + fragment
		}
		return p.destOrigin + rest + fragment
	}
}

// dotsToRoot returns the ../ chain leading from a page back to the site root.
func dotsToRoot(pagePath string) string {
	depth := len(strings.Split(pagePath, "/")) - 2
	if depth <= 0 {
		return ""
	}
	return strings.Repeat("../", depth)
}

// rewriteSrcset rewrites each candidate of a srcset list and keeps its
// descriptor.
func (p *Processor) rewriteSrcset(value string, st *docState) string {
	candidates := strings.Split(value, ",")
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		fields := strings.Fields(c)
		if len(fields) == 0 {
			continue
		}
		fields[0] = p.rewriteLink(fields[0], st)
		out = append(out, strings.Join(fields, " "))
	}
	return strings.Join(out, ", ")
}

func absolutize(v string, page *url.URL) string {
	if strings.HasPrefix(v, "//") {
		return v
	}
	ref, err := url.Parse(v)
	if err != nil || ref.IsAbs() {
		return v
	}
	return page.ResolveReference(ref).String()
}

func stripQuery(u string) string {
	q := strings.IndexByte(u, '?')
	if q < 0 {
		return u
	}
	fragment := ""
	if h := strings.IndexByte(u[q:], '#'); h >= 0 {
		fragment = u[q+h:]
	}
	return u[:q] + fragment
}

func hasSkippedScheme(v string) bool {
	lower := strings.ToLower(v)
	for _, scheme := range skippedSchemes {
		if strings.HasPrefix(lower, scheme) {
			return true
		}
	}
	return false
}
