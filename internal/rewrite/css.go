package rewrite

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
)

// CSS rewrites every url() value and @import target of a stylesheet fetched
// from pageURL. Tokens that carry no URL are copied through byte for byte.
func (p *Processor) CSS(doc []byte, pageURL string) (Result, error) {
	if len(strings.TrimSpace(string(doc))) == 0 {
		return Result{}, ErrEmptyDocument
	}
	src := p.toPlaceholder.Replace(string(doc))
	st := p.newState(pageURL)

	var out strings.Builder
	out.Grow(len(src))
	lexer := css.NewLexer(parse.NewInputString(src))
	afterImport := false
	for {
		tt, data := lexer.Next()
		if tt == css.ErrorToken {
			if err := lexer.Err(); err != nil && !errors.Is(err, io.EOF) {
				return Result{}, fmt.Errorf("tokenize css: %w", err)
			}
			break
		}
		switch tt {
		case css.URLToken:
			out.WriteString(p.rewriteURLToken(string(data), st))
			afterImport = false
		case css.AtKeywordToken:
			out.Write(data)
			afterImport = strings.EqualFold(string(data), "@import")
		case css.StringToken:
			if afterImport {
				out.WriteString(p.rewriteQuoted(string(data), st))
			} else {
				out.Write(data)
			}
			afterImport = false
		case css.WhitespaceToken, css.CommentToken:
			out.Write(data)
		default:
			out.Write(data)
			afterImport = false
		}
	}

	return Result{Body: []byte(p.residual(out.String())), Discovered: st.result()}, nil
}

// rewriteURLToken rewrites a whole url(...) token, keeping its quote style.
func (p *Processor) rewriteURLToken(token string, st *docState) string {
	if len(token) < 5 || !strings.EqualFold(token[:4], "url(") || !strings.HasSuffix(token, ")") {
		return token
	}
	inner := strings.TrimSpace(token[4 : len(token)-1])
	quote := ""
	if n := len(inner); n >= 2 && (inner[0] == '"' || inner[0] == '\'') && inner[n-1] == inner[0] {
		quote = inner[:1]
		inner = inner[1 : n-1]
	}
	return token[:4] + quote + p.rewriteLink(inner, st) + quote + ")"
}

func (p *Processor) rewriteQuoted(token string, st *docState) string {
	n := len(token)
	if n < 2 {
		return token
	}
	quote := token[:1]
	return quote + p.rewriteLink(token[1:n-1], st) + quote
}
