package imagegen

import (
	"context"
	"fmt"
	"strings"
)

// Kind selects the prompt style of a rendered image.
type Kind string

const (
	KindSocial Kind = "social" // og:image for a page
	KindCover  Kind = "cover"  // article cover
)

// Request describes the image to render.
type Request struct {
	Kind        Kind
	Title       string
	Description string
	Route       string
	SiteName    string
}

// Image is an optimized image ready to be written to a repository.
type Image struct {
	Data []byte
	Ext  string
}

// Source is the image collaborator: generate, then optimize.
type Source interface {
	Generate(ctx context.Context, prompt string) ([]byte, error)
}

// Renderer produces optimized images from requests.
type Renderer struct {
	source Source
	opts   Options
}

// NewRenderer wraps a generator with the optimization settings.
func NewRenderer(source Source, opts Options) *Renderer {
	if opts.Format == "" {
		opts.Format = FormatJPEG
	}
	return &Renderer{source: source, opts: opts}
}

// Render generates and optimizes one image.
func (r *Renderer) Render(ctx context.Context, req Request) (Image, error) {
	raw, err := r.source.Generate(ctx, Prompt(req))
	if err != nil {
		return Image{}, err
	}
	data, err := Optimize(raw, r.opts)
	if err != nil {
		return Image{}, fmt.Errorf("optimizing %s image: %w", req.Kind, err)
	}
	return Image{Data: data, Ext: r.opts.Format.Ext()}, nil
}

// Prompt builds the generation prompt for req.
func Prompt(req Request) string {
	subject := req.Title
	if subject == "" {
		subject = strings.Trim(strings.ReplaceAll(req.Route, "/", " "), " ")
	}
	if subject == "" {
		subject = req.SiteName
	}

	var b strings.Builder
	switch req.Kind {
	case KindCover:
		fmt.Fprintf(&b, "Editorial cover illustration for an article titled %q.", subject)
	default:
		fmt.Fprintf(&b, "Clean, modern social sharing banner for a web page about %q.", subject)
	}
	if req.Description != "" {
		fmt.Fprintf(&b, " Context: %s.", strings.TrimSuffix(req.Description, "."))
	}
	if req.SiteName != "" {
		fmt.Fprintf(&b, " The site is %s.", req.SiteName)
	}
	b.WriteString(" Landscape composition, no text, no logos, no watermarks.")
	return b.String()
}
