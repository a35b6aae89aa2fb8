package format

import (
	"fmt"

	"github.com/andesco/fluxgate/pkg/extract"
	"github.com/andesco/fluxgate/pkg/fetcher"
)

// Status describes the upstream response the result was built from.
type Status struct {
	URL            string `json:"url"`
	ContentType    string `json:"content_type"`
	HTTPCode       int    `json:"http_code"`
	ResponseTimeMS int64  `json:"response_time_ms"`
}

// Result is the full extraction result. Images, Links and Videos hold
// absolute URLs, each at most once, in first-seen order.
type Result struct {
	URL      string            `json:"url"`
	Format   Format            `json:"format"`
	Status   Status            `json:"status"`
	Title    string            `json:"title,omitempty"`
	Text     string            `json:"text,omitempty"`
	Contents string            `json:"contents,omitempty"`
	Meta     map[string]string `json:"meta,omitempty"`
	Images   []string          `json:"images"`
	Links    []string          `json:"links"`
	Videos   []string          `json:"videos"`
	Elements []extract.Element `json:"extractedElements"`
}

// Build assembles the result for req from the resolved page. The page is
// only tokenized when it is HTML.
func Build(req Request, res *fetcher.Resolution) (*Result, error) {
	page := res.Page
	final := page.URL.String()
	out := &Result{
		URL:    final,
		Format: req.Format,
		Status: Status{
			URL:            final,
			ContentType:    page.ContentType,
			HTTPCode:       page.StatusCode,
			ResponseTimeMS: res.Elapsed.Milliseconds(),
		},
		Images:   []string{},
		Links:    []string{},
		Videos:   []string{},
		Elements: []extract.Element{},
	}
	if req.Format == HTML {
		out.Contents = string(page.Body)
	}
	if !fetcher.IsHTML(page.ContentType) {
		return out, nil
	}

	doc, err := extract.Extract(page.Body, req.Options(page.URL))
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", final, err)
	}
	out.Title = doc.Title
	out.Text = doc.Text
	out.Images = doc.Images
	out.Links = doc.Links
	out.Videos = doc.Videos
	out.Elements = doc.Elements
	if len(doc.Meta) > 0 {
		out.Meta = doc.Meta
	}
	return out, nil
}

type textPayload struct {
	Text   string `json:"text"`
	Status Status `json:"status"`
}

type imagesPayload struct {
	Images []string `json:"images"`
	Status Status   `json:"status"`
}

type videosPayload struct {
	Videos []string `json:"videos"`
	Status Status   `json:"status"`
}

type linksPayload struct {
	Links  []string `json:"links"`
	Status Status   `json:"status"`
}

type htmlPayload struct {
	Contents string `json:"contents"`
	Status   Status `json:"status"`
}

// Serialize picks the part of r that format f puts on the wire.
func Serialize(f Format, r *Result) any {
	switch f {
	case Text:
		return textPayload{Text: r.Text, Status: r.Status}
	case Images:
		return imagesPayload{Images: r.Images, Status: r.Status}
	case Videos:
		return videosPayload{Videos: r.Videos, Status: r.Status}
	case Links:
		return linksPayload{Links: r.Links, Status: r.Status}
	case HTML:
		return htmlPayload{Contents: r.Contents, Status: r.Status}
	default:
		return r
	}
}

// Envelope wraps every JSON response: either Data or Error, never both.
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func OK(data any) Envelope {
	return Envelope{Success: true, Data: data}
}

func Fail(msg string) Envelope {
	return Envelope{Success: false, Error: msg}
}
