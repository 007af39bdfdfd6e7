package types

import (
	"fmt"
	"strings"
)

// RepositoryTarget is one repository the pipeline maintains.
// Targets are built from configuration at startup and never mutated during a run.
type RepositoryTarget struct {
	ID        string       `json:"id" yaml:"id" validate:"required"`
	RemoteURL string       `json:"remote_url" yaml:"remote_url" validate:"required"`
	Branch    string       `json:"branch" yaml:"branch"`
	Settings  RepoSettings `json:"settings" yaml:"settings"`
}

// RepoSettings holds the per-repository knobs.
type RepoSettings struct {
	// SiteURL is the public origin of the deployed site, e.g. https://example.com
	SiteURL string `json:"site_url" yaml:"site_url" validate:"omitempty,url"`

	// SiteName is used in structured data and generated copy
	SiteName string `json:"site_name" yaml:"site_name"`

	// SearchProperty is the analytics property identifier (e.g. "sc-domain:example.com").
	// Empty disables impact measurement for this repository.
	SearchProperty string `json:"search_property" yaml:"search_property"`

	// ContentCadenceDays is the minimum number of days between generated articles.
	// 0 disables content generation.
	ContentCadenceDays int `json:"content_cadence_days" yaml:"content_cadence_days" validate:"gte=0"`

	// Topics scopes generated content
	Topics []string `json:"topics" yaml:"topics"`

	// ExcludePaths are glob patterns (relative to the repo root) the pipeline must never modify
	ExcludePaths []string `json:"exclude_paths" yaml:"exclude_paths"`

	// DailyLimits caps metered operations per calendar day
	DailyLimits map[ResourceKind]int `json:"daily_limits" yaml:"daily_limits"`

	// ContentDir overrides the framework's default content directory
	ContentDir string `json:"content_dir" yaml:"content_dir"`
}

// DefaultBranch is used when a target does not name one.
const DefaultBranch = "main"

// EffectiveBranch returns the configured branch or DefaultBranch.
func (t RepositoryTarget) EffectiveBranch() string {
	if t.Branch == "" {
		return DefaultBranch
	}
	return t.Branch
}

// Validate checks the target for values the pipeline cannot work with.
func (t RepositoryTarget) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("repository id is required")
	}
	if strings.ContainsAny(t.ID, `/\ `) {
		return fmt.Errorf("repository id %q must not contain slashes or spaces", t.ID)
	}
	if strings.TrimSpace(t.RemoteURL) == "" {
		return fmt.Errorf("repository %s: remote_url is required", t.ID)
	}
	for kind, limit := range t.Settings.DailyLimits {
		if !kind.IsValid() {
			return fmt.Errorf("repository %s: unknown resource kind %q", t.ID, kind)
		}
		if limit < 0 {
			return fmt.Errorf("repository %s: daily limit for %s must be non-negative (got %d)", t.ID, kind, limit)
		}
	}
	return nil
}

// ResourceKind names a metered external operation.
type ResourceKind string

const (
	// ResourceCopy is AI-written meta copy (titles, descriptions)
	ResourceCopy ResourceKind = "copy"
	// ResourceContent is AI article generation
	ResourceContent ResourceKind = "content"
	// ResourceImage is image generation
	ResourceImage ResourceKind = "image"
)

// IsValid checks if the resource kind is known
func (k ResourceKind) IsValid() bool {
	switch k {
	case ResourceCopy, ResourceContent, ResourceImage:
		return true
	}
	return false
}

// Framework identifies the site generator a repository is built with.
type Framework string

const (
	FrameworkNext      Framework = "next"
	FrameworkNuxt      Framework = "nuxt"
	FrameworkSvelteKit Framework = "sveltekit"
	FrameworkAstro     Framework = "astro"
	FrameworkGatsby    Framework = "gatsby"
	FrameworkHugo      Framework = "hugo"
	FrameworkHTML      Framework = "html"
	FrameworkUnknown   Framework = "unknown"
)

// IsValid checks if the framework tag is part of the enumeration
func (f Framework) IsValid() bool {
	switch f {
	case FrameworkNext, FrameworkNuxt, FrameworkSvelteKit, FrameworkAstro,
		FrameworkGatsby, FrameworkHugo, FrameworkHTML, FrameworkUnknown:
		return true
	}
	return false
}
