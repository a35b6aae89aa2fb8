package format

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/andesco/fluxgate/pkg/config"
	"github.com/andesco/fluxgate/pkg/extract"
	"github.com/andesco/fluxgate/pkg/fetcher"
)

var (
	ErrInvalidURL       = errors.New("invalid target URL")
	ErrSelectorRequired = errors.New("selector required")
	ErrDomainNotAllowed = errors.New("domain not allowed")
)

// Format is the output shape requested by the caller. Values are the
// endpoint names under /api/.
type Format string

const (
	Proxy  Format = "proxy"
	JSON   Format = "json"
	Text   Format = "text"
	Images Format = "images"
	Videos Format = "videos"
	Links  Format = "links"
	Class  Format = "class"
	ID     Format = "id"
	HTML   Format = "html"
)

// Extraction lists the formats served through the extraction envelope.
var Extraction = []Format{JSON, Text, Images, Videos, Links, Class, ID, HTML}

// NeedsSelector reports whether f requires a class or id value.
func (f Format) NeedsSelector() bool {
	return f == Class || f == ID
}

// Request is a validated extraction or passthrough request.
type Request struct {
	URL      *url.URL
	Format   Format
	Selector string
}

// NewRequest validates the inbound parameters before anything touches the
// network. cfg may be nil, in which case no domain allow-list applies.
func NewRequest(rawURL string, f Format, selector string, cfg *config.Config) (Request, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || !fetcher.IsHTTPURL(u) {
		return Request{}, ErrInvalidURL
	}
	if cfg != nil && !cfg.DomainAllowed(u.Hostname()) {
		return Request{}, fmt.Errorf("%w: %s", ErrDomainNotAllowed, u.Hostname())
	}

	selector = strings.TrimSpace(selector)
	if f.NeedsSelector() && selector == "" {
		return Request{}, fmt.Errorf("%w for format: %s", ErrSelectorRequired, f)
	}
	if !f.NeedsSelector() {
		selector = ""
	}
	return Request{URL: u, Format: f, Selector: selector}, nil
}

// Options maps the request onto extraction engine options for a page
// fetched from base.
func (r Request) Options(base *url.URL) extract.Options {
	opts := extract.Options{BaseURL: base, Text: r.Format == Text}
	switch r.Format {
	case Class:
		opts.Selector = extract.Selector{Kind: extract.ClassSelector, Value: r.Selector}
	case ID:
		opts.Selector = extract.Selector{Kind: extract.IDSelector, Value: r.Selector}
	}
	return opts
}
