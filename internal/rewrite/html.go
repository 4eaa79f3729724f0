package rewrite

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// blockedRels are link relations that only matter to the live CMS.
var blockedRels = map[string]struct{}{
	"shortlink":   {},
	"canonical":   {},
	"pingback":    {},
	"alternate":   {},
	"edituri":     {},
	"wlwmanifest": {},
	"index":       {},
	"profile":     {},
	"prev":        {},
	"next":        {},
}

var metaRefreshURL = regexp.MustCompile(`(?i)^(\s*\d+\s*;\s*url\s*=\s*)(.+)$`)

// HTML rewrites an HTML document fetched from pageURL.
func (p *Processor) HTML(doc []byte, pageURL string) (Result, error) {
	if len(strings.TrimSpace(string(doc))) == 0 {
		return Result{}, ErrEmptyDocument
	}
	src := p.toPlaceholder.Replace(string(doc))

	root, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return Result{}, fmt.Errorf("parse html: %w", err)
	}
	if p.opts.StripHTMLComments || p.opts.StripConditionalComments {
		p.stripComments(root)
	}

	gdoc := goquery.NewDocumentFromNode(root)
	st := p.newState(pageURL)

	if p.opts.StripPlatformMeta {
		removePlatformMeta(gdoc)
	}
	p.rewriteAttr(gdoc.Find("a[href]"), "href", st)
	p.rewriteAttr(gdoc.Find("img[src]"), "src", st)
	gdoc.Find("img[srcset]").Each(func(_ int, s *goquery.Selection) {
		s.SetAttr("srcset", p.rewriteSrcset(s.AttrOr("srcset", ""), st))
	})
	p.rewriteAttr(gdoc.Find("link[href]"), "href", st)
	p.rewriteAttr(gdoc.Find("script[src]"), "src", st)
	gdoc.Find("meta[content]").Each(func(_ int, s *goquery.Selection) {
		p.rewriteMeta(s, st)
	})
	p.applyBaseHref(gdoc)

	out, err := gdoc.Html()
	if err != nil {
		return Result{}, fmt.Errorf("render html: %w", err)
	}
	out = p.residual(out)
	out = decodeEntities(decodeEntities(out))
	return Result{Body: []byte(out), Discovered: st.result()}, nil
}

func (p *Processor) rewriteAttr(sel *goquery.Selection, attr string, st *docState) {
	sel.Each(func(_ int, s *goquery.Selection) {
		if v, ok := s.Attr(attr); ok {
			s.SetAttr(attr, p.rewriteLink(v, st))
		}
	})
}

// rewriteMeta handles URL-valued meta content such as og:image and refresh
// targets. Other content is left alone.
func (p *Processor) rewriteMeta(s *goquery.Selection, st *docState) {
	content := s.AttrOr("content", "")
	if strings.EqualFold(s.AttrOr("http-equiv", ""), "refresh") {
		if m := metaRefreshURL.FindStringSubmatch(content); m != nil {
			s.SetAttr("content", m[1]+p.rewriteLink(strings.Trim(m[2], `'"`), st))
		}
		return
	}
	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, "http://") || strings.HasPrefix(trimmed, "https://") ||
		strings.HasPrefix(trimmed, "//") {
		s.SetAttr("content", p.rewriteLink(trimmed, st))
	}
}

// applyBaseHref creates, updates or removes <base href> so it never points
// at the live site.
func (p *Processor) applyBaseHref(gdoc *goquery.Document) {
	base := gdoc.Find("base")
	if p.opts.BaseHref == "" {
		base.Remove()
		return
	}
	if base.Length() > 0 {
		base.First().SetAttr("href", p.opts.BaseHref)
		return
	}
	gdoc.Find("head").First().PrependHtml(`<base href="` + html.EscapeString(p.opts.BaseHref) + `"/>`)
}

func removePlatformMeta(gdoc *goquery.Document) {
	gdoc.Find("link[rel]").Each(func(_ int, s *goquery.Selection) {
		if blockedRel(s.AttrOr("rel", "")) {
			s.Remove()
		}
	})
	gdoc.Find("meta[name]").Each(func(_ int, s *goquery.Selection) {
		name := strings.ToLower(s.AttrOr("name", ""))
		content := strings.ToLower(s.AttrOr("content", ""))
		if name == "generator" || (name == "robots" && strings.Contains(content, "noindex")) {
			s.Remove()
		}
	})
}

func blockedRel(rel string) bool {
	if strings.Contains(rel, ".w.org") {
		return true
	}
	for _, token := range strings.Fields(strings.ToLower(rel)) {
		if _, ok := blockedRels[token]; ok {
			return true
		}
	}
	return false
}

// stripComments removes comment nodes according to the two toggles.
// Conditional comments look like <!--[if IE]>...<![endif]-->.
func (p *Processor) stripComments(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if c.Type == html.CommentNode {
			conditional := strings.HasPrefix(strings.TrimSpace(c.Data), "[if") ||
				strings.Contains(c.Data, "<![endif]")
			if (conditional && p.opts.StripConditionalComments) || (!conditional && p.opts.StripHTMLComments) {
				n.RemoveChild(c)
			}
		} else {
			p.stripComments(c)
		}
		c = next
	}
}

var (
	entityPattern        = regexp.MustCompile(`&(#[0-9]+|#[xX][0-9a-fA-F]+|[A-Za-z][A-Za-z0-9]*);`)
	wrappedEntityPattern = regexp.MustCompile(`&amp;(#[0-9]+|#[xX][0-9a-fA-F]+|[A-Za-z][A-Za-z0-9]*);`)
)

// decodeEntities peels one level of escaping off a character reference and
// turns the result back into UTF-8 text, so `&amp;#8217;` becomes `&#8217;`
// and then a right quote. The references the serializer itself emits for
// markup characters are kept so the document structure survives. Each call
// removes one layer; double-encoded markup needs two calls.
func decodeEntities(doc string) string {
	doc = wrappedEntityPattern.ReplaceAllStringFunc(doc, func(ref string) string {
		inner := "&" + strings.TrimPrefix(ref, "&amp;")
		if html.UnescapeString(inner) == inner {
			return ref
		}
		return inner
	})
	return entityPattern.ReplaceAllStringFunc(doc, func(ref string) string {
		decoded := html.UnescapeString(ref)
		switch decoded {
		case "&", "<", ">", `"`, "'":
			return ref
		}
		return decoded
	})
}
