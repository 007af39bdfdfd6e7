package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// PostSummary describes an article already on the site.
type PostSummary struct {
	Title string `json:"title"`
	Slug  string `json:"slug,omitempty"`
	Topic string `json:"topic,omitempty"`
	Date  string `json:"date,omitempty"`
}

// ArticleRequest asks for one new article.
type ArticleRequest struct {
	SiteName string
	SiteURL  string
	Topic    string
	Scope    []string // the site's topical scope
	Posts    []PostSummary
}

// Article is a generated article. HTML is untrusted model output.
type Article struct {
	Title       string   `json:"title" validate:"required,max=90"`
	Description string   `json:"description" validate:"required,max=200"`
	Slug        string   `json:"slug,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	HTML        string   `json:"html" validate:"required"`
	ImagePrompt string   `json:"image_prompt,omitempty"`
}

const articleSystemPrompt = `You are the staff writer of a website. You write original, useful
articles for its readers. Never repeat the subject of an existing article:
call list_posts first to see what is already published.
Your final reply is a single JSON object and nothing else.`

// ArticleWriter writes articles with a Completer.
type ArticleWriter struct {
	completer Completer
}

// NewArticleWriter creates a writer backed by c.
func NewArticleWriter(c Completer) *ArticleWriter {
	return &ArticleWriter{completer: c}
}

// Write produces an article on req.Topic. The model can list existing posts
// through the list_posts tool.
func (w *ArticleWriter) Write(ctx context.Context, req ArticleRequest) (*Article, error) {
	listPosts := Tool{
		Name:        "list_posts",
		Description: "List the articles already published on the site, newest first.",
		Schema:      Schema{Properties: map[string]any{}},
		Handler: func(ctx context.Context, _ json.RawMessage) (string, error) {
			if len(req.Posts) == 0 {
				return "[]", nil
			}
			data, err := json.Marshal(req.Posts)
			if err != nil {
				return "", err
			}
			return string(data), nil
		},
	}

	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Write a new article for %s", req.SiteName)
	if req.SiteURL != "" {
		fmt.Fprintf(&prompt, " (%s)", req.SiteURL)
	}
	prompt.WriteString(".\n\n")
	if req.Topic != "" {
		fmt.Fprintf(&prompt, "Topic: %s\n", req.Topic)
	}
	if len(req.Scope) > 0 {
		fmt.Fprintf(&prompt, "The site covers: %s\n", strings.Join(req.Scope, ", "))
	}
	prompt.WriteString(`
Requirements:
- 600 to 1200 words of body text, as simple HTML (h2, h3, p, ul, ol, li, strong, em, a, blockquote).
- No <h1>, no <html>/<head>/<body>, no scripts or styles, no images.
- title under 70 characters, description under 155 characters.
- slug: lowercase words joined by hyphens.
- image_prompt: one sentence describing a cover illustration without text.
`)
	fmt.Fprintf(&prompt, "\nJSON schema of the reply:\n%s\n", SchemaFor(&Article{}).JSON())

	text, err := w.completer.Complete(ctx, articleSystemPrompt, []Message{UserText(prompt.String())}, Options{
		Tools:     []Tool{listPosts},
		MaxTokens: 8192,
	})
	if err != nil {
		return nil, fmt.Errorf("writing article on %q: %w", req.Topic, err)
	}

	article, err := Decode[Article](text, "article")
	if err != nil {
		return nil, err
	}
	article.Title = strings.TrimSpace(article.Title)
	article.Description = strings.TrimSpace(article.Description)
	return &article, nil
}
