package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/steveyegge/seoloop/internal/types"
	"gopkg.in/yaml.v3"
)

// Config is the process-wide configuration loaded from seoloop.yaml,
// .env and SEOLOOP_* environment variables (in increasing precedence).
type Config struct {
	// WorkDir holds one working copy per repository
	// Default: .seoloop/repos
	WorkDir string `yaml:"work_dir" validate:"required"`

	// DatabasePath is the SQLite state file
	// Default: .seoloop/state.db
	DatabasePath string `yaml:"database_path" validate:"required"`

	// Concurrency is the number of repositories processed in parallel
	// Default: 1 (sequential, avoids git lock contention and API bursts)
	Concurrency int `yaml:"concurrency" validate:"gte=1,lte=16"`

	// RepoTimeout is the soft wall-clock budget of one repository pipeline
	// Default: 15m
	RepoTimeout time.Duration `yaml:"repo_timeout" validate:"gt=0"`

	// MaxFixesPerRun bounds commit size and external-call volume per repository
	// Default: 10
	MaxFixesPerRun int `yaml:"max_fixes_per_run" validate:"gte=1,lte=100"`

	// MeasurementWindowDays is how long after a change its impact is measured
	// Default: 14
	MeasurementWindowDays int `yaml:"measurement_window_days" validate:"gte=1,lte=90"`

	// TimeZone decides where a budget "calendar day" starts
	// Default: UTC
	TimeZone string `yaml:"time_zone"`

	// DefaultLimits apply when a repository does not set its own daily limit
	DefaultLimits map[types.ResourceKind]int `yaml:"default_limits"`

	// EventRetentionDays prunes activity events older than this (0 keeps everything)
	// Default: 30
	EventRetentionDays int `yaml:"event_retention_days" validate:"gte=0"`

	// RedisURL switches budget counters to Redis when set
	RedisURL string `yaml:"redis_url"`

	Git       GitConfig       `yaml:"git"`
	AI        AIConfig        `yaml:"ai"`
	Images    ImageConfig     `yaml:"images"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	Email     EmailConfig     `yaml:"email"`

	Repositories []types.RepositoryTarget `yaml:"repositories" validate:"required,min=1,dive"`

	location *time.Location
}

// GitConfig sets the identity used for pipeline commits.
type GitConfig struct {
	AuthorName  string `yaml:"author_name"`
	AuthorEmail string `yaml:"author_email" validate:"omitempty,email"`
}

// Author formats the git --author value, empty when unset.
func (g GitConfig) Author() string {
	if g.AuthorName == "" || g.AuthorEmail == "" {
		return ""
	}
	return fmt.Sprintf("%s <%s>", g.AuthorName, g.AuthorEmail)
}

// AIConfig configures the content-generation client.
type AIConfig struct {
	APIKey            string  `yaml:"-"`
	Model             string  `yaml:"model"`
	MaxToolIterations int     `yaml:"max_tool_iterations" validate:"gte=1,lte=32"`
	Temperature       float64 `yaml:"temperature" validate:"gte=0,lte=1"`
	RequestsPerMinute int     `yaml:"requests_per_minute" validate:"gte=0"`
}

// ImageConfig configures image generation and optimization.
type ImageConfig struct {
	APIKey  string `yaml:"-"`
	Model   string `yaml:"model"`
	Width   int    `yaml:"width" validate:"gte=0"`
	Height  int    `yaml:"height" validate:"gte=0"`
	Format  string `yaml:"format" validate:"omitempty,oneof=jpeg png"`
	Quality int    `yaml:"quality" validate:"gte=0,lte=100"`
}

// Enabled reports whether image generation credentials are present.
func (c ImageConfig) Enabled() bool {
	return c.APIKey != ""
}

// AnalyticsConfig configures the search analytics source.
type AnalyticsConfig struct {
	CredentialsFile   string `yaml:"credentials_file"`
	RequestsPerMinute int    `yaml:"requests_per_minute" validate:"gte=0"`
}

// Enabled reports whether analytics credentials are configured.
func (c AnalyticsConfig) Enabled() bool {
	return c.CredentialsFile != ""
}

// EmailConfig configures the run report email.
type EmailConfig struct {
	Host     string   `yaml:"host"`
	Port     int      `yaml:"port" validate:"gte=0,lte=65535"`
	Username string   `yaml:"username"`
	Password string   `yaml:"-"`
	From     string   `yaml:"from" validate:"omitempty,email"`
	To       []string `yaml:"to" validate:"omitempty,dive,email"`
}

// Enabled reports whether a report email can be sent.
func (c EmailConfig) Enabled() bool {
	return c.Host != "" && c.From != "" && len(c.To) > 0
}

// Default returns a configuration with every default filled in and no repositories.
func Default() *Config {
	return &Config{
		WorkDir:               filepath.Join(".seoloop", "repos"),
		DatabasePath:          filepath.Join(".seoloop", "state.db"),
		Concurrency:           1,
		RepoTimeout:           15 * time.Minute,
		MaxFixesPerRun:        10,
		MeasurementWindowDays: 14,
		TimeZone:              "UTC",
		EventRetentionDays:    30,
		DefaultLimits: map[types.ResourceKind]int{
			types.ResourceCopy:    20,
			types.ResourceContent: 1,
			types.ResourceImage:   3,
		},
		Git: GitConfig{
			AuthorName:  "seoloop",
			AuthorEmail: "seoloop@users.noreply.github.com",
		},
		AI: AIConfig{
			MaxToolIterations: 8,
			Temperature:       0.4,
			RequestsPerMinute: 30,
		},
		Images: ImageConfig{
			Width:   1200,
			Height:  630,
			Format:  "jpeg",
			Quality: 82,
		},
		Analytics: AnalyticsConfig{
			RequestsPerMinute: 60,
		},
		Email: EmailConfig{
			Port: 587,
		},
	}
}

// ErrNoConfig is returned when the config file does not exist.
var ErrNoConfig = errors.New("config file not found")

// Load reads the YAML file at path, applies .env and environment overrides
// and validates the result.
func Load(path string) (*Config, error) {
	// .env is optional; real environment variables always win over it
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNoConfig, path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Parse decodes YAML on top of the defaults without touching the environment.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}
	for i := range cfg.Repositories {
		cfg.Repositories[i].ID = strings.TrimSpace(cfg.Repositories[i].ID)
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks field ranges, repository targets and id uniqueness.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("invalid config: %s failed %q", verrs[0].Namespace(), verrs[0].Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	seen := make(map[string]bool, len(c.Repositories))
	for _, target := range c.Repositories {
		if err := target.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		if seen[target.ID] {
			return fmt.Errorf("invalid config: duplicate repository id %q", target.ID)
		}
		seen[target.ID] = true
	}

	for kind, limit := range c.DefaultLimits {
		if !kind.IsValid() {
			return fmt.Errorf("invalid config: unknown resource kind %q in default_limits", kind)
		}
		if limit < 0 {
			return fmt.Errorf("invalid config: default limit for %s must be non-negative (got %d)", kind, limit)
		}
	}

	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return fmt.Errorf("invalid config: time_zone %q: %w", c.TimeZone, err)
	}
	c.location = loc

	return nil
}

// Location returns the time zone budget days are counted in.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}

// RequireAI returns an error when the AI credentials needed for a run are missing.
func (c *Config) RequireAI() error {
	if c.AI.APIKey == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY not set")
	}
	return nil
}

// Target returns the repository with the given id.
func (c *Config) Target(id string) (types.RepositoryTarget, bool) {
	for _, t := range c.Repositories {
		if t.ID == id {
			return t, true
		}
	}
	return types.RepositoryTarget{}, false
}
