package ai

import (
	"context"
	"fmt"
	"strings"
)

// CopyRequest describes one piece of page metadata to write.
type CopyRequest struct {
	Field     string // "title" or "description"
	Framework string
	Path      string
	Route     string
	Heading   string
	Current   string // existing value, empty when missing
	Excerpt   string
	SiteName  string
	MaxLength int
}

// AltRequest asks for alt text for every image of one page.
type AltRequest struct {
	Path    string
	Route   string
	Heading string
	Images  []string
}

type copyReply struct {
	Text string `json:"text" validate:"required"`
}

type altReply struct {
	Alts []string `json:"alts" validate:"required,min=1,dive,required"`
}

const copySystemPrompt = `You write search-engine metadata for pages of a website.
Reply with a single JSON object and nothing else.`

// Copywriter writes titles, descriptions and alt text with a Completer.
type Copywriter struct {
	completer Completer
}

// NewCopywriter creates a copywriter backed by c.
func NewCopywriter(c Completer) *Copywriter {
	return &Copywriter{completer: c}
}

// Meta writes a title or description. The reply is not length checked; the
// caller clamps it.
func (w *Copywriter) Meta(ctx context.Context, req CopyRequest) (string, error) {
	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Write the meta %s for this page.\n\n", req.Field)
	fmt.Fprintf(&prompt, "File: %s\n", req.Path)
	if req.Route != "" {
		fmt.Fprintf(&prompt, "Route: %s\n", req.Route)
	}
	if req.Framework != "" {
		fmt.Fprintf(&prompt, "Framework: %s\n", req.Framework)
	}
	if req.SiteName != "" {
		fmt.Fprintf(&prompt, "Site name: %s\n", req.SiteName)
	}
	if req.Heading != "" {
		fmt.Fprintf(&prompt, "Main heading: %s\n", req.Heading)
	}
	if req.Current != "" {
		fmt.Fprintf(&prompt, "Current %s (replace it): %s\n", req.Field, req.Current)
	}
	if req.Excerpt != "" {
		fmt.Fprintf(&prompt, "\nPage text excerpt:\n%s\n", truncate(req.Excerpt, 2000))
	}
	fmt.Fprintf(&prompt, "\nAt most %d characters. Plain text, no quotes or markup.\n", req.MaxLength)
	fmt.Fprintf(&prompt, "JSON schema of the reply:\n%s\n", SchemaFor(&copyReply{}).JSON())

	text, err := w.completer.Complete(ctx, copySystemPrompt, []Message{UserText(prompt.String())}, Options{MaxTokens: 512})
	if err != nil {
		return "", fmt.Errorf("writing %s for %s: %w", req.Field, req.Path, err)
	}

	reply, err := Decode[copyReply](text, req.Field+" copy")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(reply.Text), nil
}

// AltText writes one alt text per image, in order.
func (w *Copywriter) AltText(ctx context.Context, req AltRequest) ([]string, error) {
	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Write concise alt text for each image on this page.\n\nFile: %s\n", req.Path)
	if req.Route != "" {
		fmt.Fprintf(&prompt, "Route: %s\n", req.Route)
	}
	if req.Heading != "" {
		fmt.Fprintf(&prompt, "Main heading: %s\n", req.Heading)
	}
	prompt.WriteString("\nImages:\n")
	for i, src := range req.Images {
		fmt.Fprintf(&prompt, "%d. %s\n", i+1, src)
	}
	fmt.Fprintf(&prompt, "\nReturn exactly %d entries in the same order, each under 125 characters.\n", len(req.Images))
	fmt.Fprintf(&prompt, "JSON schema of the reply:\n%s\n", SchemaFor(&altReply{}).JSON())

	text, err := w.completer.Complete(ctx, copySystemPrompt, []Message{UserText(prompt.String())}, Options{MaxTokens: 1024})
	if err != nil {
		return nil, fmt.Errorf("writing alt text for %s: %w", req.Path, err)
	}

	reply, err := Decode[altReply](text, "alt text")
	if err != nil {
		return nil, err
	}
	if len(reply.Alts) != len(req.Images) {
		return nil, &MalformedResponseError{
			Context:  "alt text",
			Reason:   fmt.Sprintf("expected %d entries, got %d", len(req.Images), len(reply.Alts)),
			Response: truncate(text, 500),
		}
	}
	for i := range reply.Alts {
		reply.Alts[i] = strings.TrimSpace(reply.Alts[i])
	}
	return reply.Alts, nil
}
