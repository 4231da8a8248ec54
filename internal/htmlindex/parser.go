package htmlindex

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// Parser reads anchors from simple-index and find-links pages.
type Parser struct {
	r    io.Reader
	base *url.URL
}

// NewParser creates a parser. Relative hrefs are resolved against base when
// it is non-nil.
func NewParser(r io.Reader, base *url.URL) *Parser {
	return &Parser{r: r, base: base}
}

// Parse returns every anchor with an href, in document order. Fragments
// such as "#md5=..." are stripped.
func (p *Parser) Parse() ([]Link, error) {
	var links []Link
	var current *Link
	var text strings.Builder

	flush := func() {
		if current != nil {
			current.Text = strings.TrimSpace(text.String())
			links = append(links, *current)
			current = nil
		}
	}

	z := html.NewTokenizer(p.r)
	for {
		switch z.Next() {
		case html.ErrorToken:
			if z.Err() == io.EOF {
				flush()
				return links, nil
			}
			return nil, fmt.Errorf("parsing html: %w", z.Err())

		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			if tok.Data != "a" {
				continue
			}
			flush()
			href, ok := attr(tok, "href")
			if !ok {
				continue
			}
			resolved, err := p.resolve(href)
			if err != nil {
				continue
			}
			current = &Link{Href: resolved}
			text.Reset()

		case html.TextToken:
			if current != nil {
				text.Write(z.Text())
			}

		case html.EndTagToken:
			tok := z.Token()
			if tok.Data == "a" {
				flush()
			}
		}
	}
}

func (p *Parser) resolve(href string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", err
	}
	if p.base != nil {
		u = p.base.ResolveReference(u)
	}
	u.Fragment = ""
	u.RawFragment = ""
	return u.String(), nil
}

func attr(tok html.Token, name string) (string, bool) {
	for _, a := range tok.Attr {
		if a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

// ParseLinks is a shortcut for NewParser(r, base).Parse().
func ParseLinks(r io.Reader, base *url.URL) ([]Link, error) {
	return NewParser(r, base).Parse()
}
