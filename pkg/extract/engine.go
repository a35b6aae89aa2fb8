// Package extract pulls structured data out of an HTML document in a single
// forward pass over its tokens. No DOM is built.
package extract

import (
	"bytes"
	"errors"
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

type SelectorKind int

const (
	NoSelector SelectorKind = iota
	ClassSelector
	IDSelector
)

// Selector picks elements by a single class name or element id.
type Selector struct {
	Kind  SelectorKind
	Value string
}

type Options struct {
	// BaseURL resolves relative src/href values. Must be absolute.
	BaseURL  *url.URL
	Selector Selector
	// Text enables the plain-text body alongside the other collectors.
	Text bool
}

// Element is one selector match. InnerText and InnerHTML are not captured.
type Element struct {
	Tag       string            `json:"tag"`
	Attrs     map[string]string `json:"attrs"`
	InnerText string            `json:"innerText"`
	InnerHTML string            `json:"innerHTML"`
}

// Document is everything collected from one page.
type Document struct {
	Title    string
	Text     string
	Meta     map[string]string
	Images   []string
	Links    []string
	Videos   []string
	Elements []Element
}

// scanner carries the per-pass state shared by the token handlers.
type scanner struct {
	opts Options

	titleDepth int
	title      strings.Builder

	skipDepth int
	text      strings.Builder

	meta     map[string]string
	images   *OrderedSet
	links    *OrderedSet
	videos   *OrderedSet
	elements []Element
}

// tokenHandler reacts to one kind of token. match may be nil to accept all.
type tokenHandler struct {
	event html.TokenType
	match func(*html.Token) bool
	fn    func(*scanner, *html.Token)
}

// handlers run in table order for every token whose type and match fit.
// Self-closing tags are dispatched as start tags. title, script and style
// are raw-text elements: the tokenizer always delivers their closing tag,
// even when written as <script/>, so the depth counters stay balanced.
func (s *scanner) handlers() []tokenHandler {
	table := []tokenHandler{
		{html.StartTagToken, isTag(atom.Title), (*scanner).openTitle},
		{html.EndTagToken, isTag(atom.Title), (*scanner).closeTitle},
		{html.TextToken, nil, (*scanner).titleText},
		{html.StartTagToken, isTag(atom.Img), collectAttr("src", (*scanner).imageSet)},
		{html.StartTagToken, isTag(atom.A), (*scanner).anchor},
		{html.StartTagToken, isTag(atom.Video, atom.Source), collectAttr("src", (*scanner).videoSet)},
		{html.StartTagToken, isTag(atom.Meta), (*scanner).metaTag},
	}
	if s.opts.Selector.Kind != NoSelector && s.opts.Selector.Value != "" {
		table = append(table, tokenHandler{html.StartTagToken, s.selectorMatch, (*scanner).capture})
	}
	if s.opts.Text {
		table = append(table,
			tokenHandler{html.StartTagToken, nil, (*scanner).textOpen},
			tokenHandler{html.EndTagToken, nil, (*scanner).textClose},
			tokenHandler{html.TextToken, nil, (*scanner).textBody},
		)
	}
	return table
}

// Extract tokenizes body once and returns what the handlers collected.
func Extract(body []byte, opts Options) (*Document, error) {
	return ExtractReader(bytes.NewReader(body), opts)
}

// ExtractReader is Extract over a stream.
func ExtractReader(r io.Reader, opts Options) (*Document, error) {
	if opts.BaseURL == nil || !opts.BaseURL.IsAbs() {
		return nil, errors.New("extract: base URL must be absolute")
	}
	s := &scanner{
		opts:   opts,
		meta:   make(map[string]string),
		images: NewOrderedSet(),
		links:  NewOrderedSet(),
		videos: NewOrderedSet(),
	}
	table := s.handlers()

	z := html.NewTokenizer(r)
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if err := z.Err(); err != io.EOF {
				return nil, err
			}
			break
		}
		tok := z.Token()
		event := tok.Type
		if event == html.SelfClosingTagToken {
			event = html.StartTagToken
		}
		for _, h := range table {
			if h.event != event || (h.match != nil && !h.match(&tok)) {
				continue
			}
			h.fn(s, &tok)
		}
	}

	return s.document(), nil
}

func (s *scanner) document() *Document {
	doc := &Document{
		Title:    collapseSpace(s.title.String()),
		Images:   s.images.Values(),
		Links:    s.links.Values(),
		Videos:   s.videos.Values(),
		Elements: s.elements,
		Meta:     s.meta,
	}
	if doc.Elements == nil {
		doc.Elements = []Element{}
	}
	if s.opts.Text {
		doc.Text = collapseSpace(s.text.String())
	}
	return doc
}

func isTag(tags ...atom.Atom) func(*html.Token) bool {
	return func(tok *html.Token) bool {
		for _, a := range tags {
			if tok.DataAtom == a {
				return true
			}
		}
		return false
	}
}

func (s *scanner) openTitle(*html.Token) { s.titleDepth++ }

func (s *scanner) closeTitle(*html.Token) {
	if s.titleDepth > 0 {
		s.titleDepth--
	}
}

func (s *scanner) titleText(tok *html.Token) {
	if s.titleDepth > 0 {
		s.title.WriteString(tok.Data)
	}
}

func (s *scanner) imageSet() *OrderedSet { return s.images }
func (s *scanner) videoSet() *OrderedSet { return s.videos }

// collectAttr resolves attribute key of the token into the chosen set.
func collectAttr(key string, set func(*scanner) *OrderedSet) func(*scanner, *html.Token) {
	return func(s *scanner, tok *html.Token) {
		if v, ok := attr(tok, key); ok {
			s.addResolved(set(s), v)
		}
	}
}

func (s *scanner) anchor(tok *html.Token) {
	href, ok := attr(tok, "href")
	if !ok || strings.HasPrefix(strings.TrimSpace(href), "#") {
		return
	}
	s.addResolved(s.links, href)
}

// addResolved makes raw absolute against the page URL. Values that do not
// parse are dropped; broken markup is normal and must not stop the pass.
func (s *scanner) addResolved(set *OrderedSet, raw string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return
	}
	u, err := s.opts.BaseURL.Parse(raw)
	if err != nil {
		return
	}
	set.Add(u.String())
}

func (s *scanner) metaTag(tok *html.Token) {
	content, ok := attr(tok, "content")
	if !ok {
		return
	}
	key, ok := attr(tok, "name")
	if !ok {
		key, ok = attr(tok, "property")
	}
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return
	}
	if _, seen := s.meta[key]; !seen {
		s.meta[key] = strings.TrimSpace(content)
	}
}

func (s *scanner) selectorMatch(tok *html.Token) bool {
	want := s.opts.Selector.Value
	switch s.opts.Selector.Kind {
	case ClassSelector:
		class, _ := attr(tok, "class")
		for _, c := range strings.Fields(class) {
			if c == want {
				return true
			}
		}
	case IDSelector:
		id, _ := attr(tok, "id")
		return id == want
	}
	return false
}

func (s *scanner) capture(tok *html.Token) {
	el := Element{Tag: tok.Data, Attrs: make(map[string]string, len(tok.Attr))}
	for _, a := range tok.Attr {
		if _, dup := el.Attrs[a.Key]; !dup {
			el.Attrs[a.Key] = a.Val
		}
	}
	s.elements = append(s.elements, el)
}

// Plain text: every tag becomes a space, script and style bodies are dropped.

func (s *scanner) textOpen(tok *html.Token) {
	if tok.DataAtom == atom.Script || tok.DataAtom == atom.Style {
		s.skipDepth++
	}
	s.text.WriteByte(' ')
}

func (s *scanner) textClose(tok *html.Token) {
	if (tok.DataAtom == atom.Script || tok.DataAtom == atom.Style) && s.skipDepth > 0 {
		s.skipDepth--
	}
	s.text.WriteByte(' ')
}

func (s *scanner) textBody(tok *html.Token) {
	if s.skipDepth == 0 {
		s.text.WriteString(tok.Data)
	}
}

func attr(tok *html.Token, key string) (string, bool) {
	for _, a := range tok.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
