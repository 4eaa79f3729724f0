// Package rewrite re-targets HTML, CSS and text documents fetched from the
// live site at a deployment destination.
//
// Rewriting runs in three phases. Every literal occurrence of the site URL is
// first swapped for a synthetic placeholder origin that shares the
// destination's protocol. The document is then parsed and each URL-valued
// node is classified, harvested and rewritten against the placeholder. The
// serialized result finally gets textual passes that catch placeholders the
// parser never reached, such as escaped URLs inside inline JSON.
package rewrite

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// PlaceholderHost is the synthetic host substituted for the site's own.
const PlaceholderHost = "PLACEHOLDER.wpsho"

// ErrEmptyDocument is returned for inputs with nothing to rewrite.
var ErrEmptyDocument = errors.New("rewrite: empty document")

// Mode selects the final form of internal links.
type Mode string

// Link modes.
const (
	ModeAbsolute Mode = "absolute"
	ModeRelative Mode = "relative"
	ModeOffline  Mode = "offline"
)

// Rule is one literal substring replacement.
type Rule struct {
	From string
	To   string
}

// Options configures a Processor.
type Options struct {
	SiteURL                  string
	DestinationURL           string
	Mode                     Mode
	Rules                    []Rule
	BaseHref                 string
	ComparisonDomain         string
	StripHTMLComments        bool
	StripConditionalComments bool
	StripPlatformMeta        bool
}

// Result is a rewritten document and the same-site paths it links to.
type Result struct {
	Body       []byte
	Discovered []string
}

// Processor rewrites documents for one site/destination pair. It holds no
// per-document state and is safe for concurrent use.
type Processor struct {
	opts Options

	placeholderOrigin string
	destOrigin        string
	destHostPath      string
	destBasePath      string
	destHTTPS         bool
	comparisonHost    string

	toPlaceholder   *strings.Replacer
	escapedSite     string
	unchangedSite   string
	escapedToDest   *strings.Replacer
	unchangedToDest *strings.Replacer
	escapedRules    []Rule
}

// New validates opts and precomputes the substitution tables.
func New(opts Options) (*Processor, error) {
	site, err := parseBase("site url", opts.SiteURL)
	if err != nil {
		return nil, err
	}
	dest, err := parseBase("destination url", opts.DestinationURL)
	if err != nil {
		return nil, err
	}
	if opts.Mode == "" {
		opts.Mode = ModeAbsolute
	}
	switch opts.Mode {
	case ModeAbsolute, ModeRelative, ModeOffline:
	default:
		return nil, fmt.Errorf("rewrite: unknown mode %q", opts.Mode)
	}

	siteOrigin := strings.TrimRight(site.String(), "/")
	siteHostPath := strings.TrimPrefix(siteOrigin, site.Scheme+":")
	destOrigin := strings.TrimRight(dest.String(), "/")
	destHostPath := strings.TrimPrefix(destOrigin, dest.Scheme+":")

	p := &Processor{
		opts:              opts,
		placeholderOrigin: dest.Scheme + "://" + PlaceholderHost,
		destOrigin:        destOrigin,
		destHostPath:      destHostPath,
		destBasePath:      strings.TrimRight(dest.EscapedPath(), "/"),
		destHTTPS:         dest.Scheme == "https",
		comparisonHost:    hostOf(opts.ComparisonDomain),
	}

	p.toPlaceholder = strings.NewReplacer(
		siteOrigin, p.placeholderOrigin,
		escapeSlashes(siteOrigin), escapeSlashes(p.placeholderOrigin),
		siteHostPath, "//"+PlaceholderHost,
		escapeSlashes(siteHostPath), escapeSlashes("//"+PlaceholderHost),
	)

	p.escapedSite = escapeSlashes("//" + PlaceholderHost)
	p.escapedToDest = strings.NewReplacer(
		escapeSlashes("https://"+PlaceholderHost), escapeSlashes(destOrigin),
		escapeSlashes("http://"+PlaceholderHost), escapeSlashes(destOrigin),
		escapeSlashes("//"+PlaceholderHost), escapeSlashes(destHostPath),
	)
	p.unchangedSite = "//" + PlaceholderHost
	p.unchangedToDest = strings.NewReplacer(
		"https://"+PlaceholderHost, destOrigin,
		"http://"+PlaceholderHost, destOrigin,
		"//"+PlaceholderHost, destHostPath,
	)
	for _, r := range opts.Rules {
		p.escapedRules = append(p.escapedRules, Rule{From: escapeSlashes(r.From), To: escapeSlashes(r.To)})
	}
	return p, nil
}

// ParseRules reads one "from,to" pair per line. Blank and malformed lines
// are ignored.
func ParseRules(text string) []Rule {
	var rules []Rule
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r", ""), "\n") {
		parts := strings.Split(strings.TrimSpace(line), ",")
		if len(parts) < 2 || parts[0] == "" {
			continue
		}
		rules = append(rules, Rule{From: parts[0], To: parts[1]})
	}
	return rules
}

// Text rewrites a non-markup text document by substitution only.
func (p *Processor) Text(doc []byte) (Result, error) {
	if len(strings.TrimSpace(string(doc))) == 0 {
		return Result{}, ErrEmptyDocument
	}
	out := p.toPlaceholder.Replace(string(doc))
	return Result{Body: []byte(p.residual(out))}, nil
}

// residual fixes placeholder occurrences that structural rewriting missed.
// Rules are applied document-wide only when such leftovers exist.
func (p *Processor) residual(doc string) string {
	if strings.Contains(doc, p.escapedSite) {
		doc = strings.ReplaceAll(doc, `%5C/`, `\/`)
		doc = applyRules(doc, p.escapedRules)
		doc = p.escapedToDest.Replace(doc)
	}
	if strings.Contains(doc, p.unchangedSite) {
		doc = applyRules(doc, p.opts.Rules)
		doc = p.unchangedToDest.Replace(doc)
	}
	return doc
}

// applyRules runs each rule over s in declaration order. A later rule sees
// the output of earlier ones; there is no longest-match priority.
func applyRules(s string, rules []Rule) string {
	for _, r := range rules {
		s = strings.ReplaceAll(s, r.From, r.To)
	}
	return s
}

func escapeSlashes(s string) string {
	return strings.ReplaceAll(s, "/", `\/`)
}

func parseBase(name, raw string) (*url.URL, error) {
	if raw == "" {
		return nil, fmt.Errorf("rewrite: %s is required", name)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("rewrite: parse %s: %w", name, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("rewrite: %s %q must be absolute", name, raw)
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}

func hostOf(raw string) string {
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "//") {
		raw = "//" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
