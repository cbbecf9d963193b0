package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/ibeckermayer/replyscout/internal/types"
)

// Generation provider names
const (
	ProviderGroq      = "groq"
	ProviderGemini    = "gemini"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

const appName = "replyscout"

// Config holds all application configuration
type Config struct {
	Version    int              `toml:"version"`
	Interests  InterestsConfig  `toml:"interests"`
	Scraping   ScrapingConfig   `toml:"scraping"`
	Filtering  FilteringConfig  `toml:"filtering"`
	Generation GenerationConfig `toml:"generation"`
	AutoPost   AutoPostConfig   `toml:"autopost"`
	Report     ReportConfig     `toml:"report"`
	Email      EmailConfig      `toml:"email"`
	Logging    LoggingConfig    `toml:"logging"`
	Metrics    MetricsConfig    `toml:"metrics"`
	Debug      DebugConfig      `toml:"debug"`

	// Secrets come from the environment (optionally a .env file), never from
	// the TOML file.
	Secrets Secrets `toml:"-"`
}

type InterestsConfig struct {
	Keywords      []string             `toml:"keywords"`
	ViralKeywords []string             `toml:"viral_keywords"`
	Accounts      []types.AccountWatch `toml:"accounts"`
}

type ScrapingConfig struct {
	Headless           bool `toml:"headless"`
	PostsPerKeyword    int  `toml:"posts_per_keyword"`
	PostsPerProfile    int  `toml:"posts_per_profile"`
	CheckIntervalHours int  `toml:"check_interval_hours"`
	MaxPostAgeHours    int  `toml:"max_post_age_hours"`
	SearchDelaySeconds int  `toml:"search_delay_seconds"`
	TimeoutSeconds     int  `toml:"timeout_seconds"`
}

type FilteringConfig struct {
	MinScore           float64 `toml:"min_score"`
	MinViews           int     `toml:"min_views"`
	MinAuthorFollowers int     `toml:"min_author_followers"`
	TopNPosts          int     `toml:"top_n_posts"`
}

type GenerationConfig struct {
	// Providers is the ordered fallback list.
	Providers      []string `toml:"providers"`
	GroqModel      string   `toml:"groq_model"`
	GeminiModel    string   `toml:"gemini_model"`
	OpenAIModel    string   `toml:"openai_model"`
	AnthropicModel string   `toml:"anthropic_model"`
	Temperature    float64  `toml:"temperature"`
	MaxTokens      int      `toml:"max_tokens"`
	TimeoutSeconds int      `toml:"timeout_seconds"`
	Persona        string   `toml:"persona"`
	MaxPosts       int      `toml:"max_posts"`
	ReplyContext   int      `toml:"reply_context"`
}

type AutoPostConfig struct {
	Enabled        bool `toml:"enabled"`
	Headless       bool `toml:"headless"`
	Workers        int  `toml:"workers"`
	QueueSize      int  `toml:"queue_size"`
	TimeoutSeconds int  `toml:"timeout_seconds"`
}

type ReportConfig struct {
	Time     string `toml:"time"`
	Timezone string `toml:"timezone"`
	Email    bool   `toml:"email"`
}

type EmailConfig struct {
	Provider string `toml:"provider"`
	SMTPHost string `toml:"smtp_host"`
	SMTPPort int    `toml:"smtp_port"`
	SMTPUser string `toml:"smtp_user"`
	SMTPPass string `toml:"smtp_pass"`
	FromAddr string `toml:"from_address"`
	ToAddr   string `toml:"to_address"`
}

type LoggingConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

type MetricsConfig struct {
	Addr string `toml:"addr"`
}

type DebugConfig struct {
	CacheSteps bool `toml:"cache_steps"`
	CacheLLM   bool `toml:"cache_llm"`
}

// Secrets are API keys and tokens read from the environment
type Secrets struct {
	GroqAPIKey       string
	GeminiAPIKey     string
	OpenAIAPIKey     string
	AnthropicAPIKey  string
	TelegramBotToken string
	TelegramChatID   int64
	ProxyURL         string
}

// Default returns a Config with sensible defaults
func Default() *Config {
	return &Config{
		Version: 1,
		Interests: InterestsConfig{
			Keywords:      []string{},
			ViralKeywords: []string{},
			Accounts:      []types.AccountWatch{},
		},
		Scraping: ScrapingConfig{
			Headless:           true,
			PostsPerKeyword:    20,
			PostsPerProfile:    5,
			CheckIntervalHours: 2,
			MaxPostAgeHours:    24,
			SearchDelaySeconds: 3,
			TimeoutSeconds:     120,
		},
		Filtering: FilteringConfig{
			MinScore:           8,
			MinViews:           1000,
			MinAuthorFollowers: 1000,
			TopNPosts:          10,
		},
		Generation: GenerationConfig{
			Providers:      []string{ProviderGroq, ProviderGemini},
			GroqModel:      "llama-3.3-70b-versatile",
			GeminiModel:    "gemini-2.0-flash",
			OpenAIModel:    "gpt-4o-mini",
			AnthropicModel: "claude-sonnet-4-20250514",
			Temperature:    0.8,
			MaxTokens:      200,
			TimeoutSeconds: 60,
			Persona:        "You are an AI engineer specializing in post-training, agentic AI, and ML systems.",
			MaxPosts:       10,
			ReplyContext:   3,
		},
		AutoPost: AutoPostConfig{
			Enabled:        true,
			Headless:       false,
			Workers:        1,
			QueueSize:      16,
			TimeoutSeconds: 180,
		},
		Report: ReportConfig{
			Time:     "21:00",
			Timezone: "America/New_York",
		},
		Email: EmailConfig{
			Provider: "smtp",
			SMTPPort: 587,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Validate checks the configuration for values that would make a run
// meaningless.
func (c *Config) Validate() error {
	var errs []error
	if c.Filtering.TopNPosts <= 0 {
		errs = append(errs, errors.New("filtering.top_n_posts must be positive"))
	}
	if c.Scraping.MaxPostAgeHours <= 0 {
		errs = append(errs, errors.New("scraping.max_post_age_hours must be positive"))
	}
	if c.Scraping.CheckIntervalHours <= 0 {
		errs = append(errs, errors.New("scraping.check_interval_hours must be positive"))
	}
	if len(c.Generation.Providers) == 0 {
		errs = append(errs, errors.New("generation.providers must name at least one provider"))
	}
	for _, p := range c.Generation.Providers {
		switch p {
		case ProviderGroq, ProviderGemini, ProviderOpenAI, ProviderAnthropic:
		default:
			errs = append(errs, fmt.Errorf("generation.providers: unknown provider %q", p))
		}
	}
	for _, a := range c.Interests.Accounts {
		if a.Handle == "" {
			errs = append(errs, errors.New("interests.accounts: handle is required"))
		}
		switch a.Priority {
		case types.PriorityHigh, types.PriorityMedium, types.PriorityLow, "":
		default:
			errs = append(errs, fmt.Errorf("interests.accounts: @%s has unknown priority %q", a.Handle, a.Priority))
		}
	}
	if _, err := time.Parse("15:04", c.Report.Time); err != nil {
		errs = append(errs, fmt.Errorf("report.time: %w", err))
	}
	return errors.Join(errs...)
}

// Keywords returns the keywords searched on every run.
func (c *Config) Keywords() []string {
	kws := make([]string, 0, len(c.Interests.Keywords)+len(c.Interests.ViralKeywords))
	kws = append(kws, c.Interests.Keywords...)
	return append(kws, c.Interests.ViralKeywords...)
}

// Accounts returns the configured watches with defaults filled in.
func (c *Config) Accounts() []types.AccountWatch {
	out := make([]types.AccountWatch, 0, len(c.Interests.Accounts))
	for _, a := range c.Interests.Accounts {
		if a.Priority == "" {
			a.Priority = types.DefaultWatchPriority
		}
		if a.CheckEveryHours <= 0 {
			a.CheckEveryHours = types.DefaultCheckEveryHours
		}
		out = append(out, a)
	}
	return out
}

// LoadSecrets reads secrets from the environment, loading a .env file first
// if one exists in the working directory or config dir.
func (c *Config) LoadSecrets() error {
	_ = godotenv.Load()
	if dir, err := ConfigDir(); err == nil {
		_ = godotenv.Load(filepath.Join(dir, ".env"))
	}

	c.Secrets = Secrets{
		GroqAPIKey:       os.Getenv("GROQ_API_KEY"),
		GeminiAPIKey:     os.Getenv("GEMINI_API_KEY"),
		OpenAIAPIKey:     os.Getenv("OPENAI_API_KEY"),
		AnthropicAPIKey:  os.Getenv("ANTHROPIC_API_KEY"),
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		ProxyURL:         os.Getenv("PROXY_URL"),
	}
	if raw := os.Getenv("TELEGRAM_CHAT_ID"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
		}
		c.Secrets.TelegramChatID = id
	}
	return nil
}

// ConfigDir returns the platform-appropriate config directory
func ConfigDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, appName), nil
}

// ConfigPath returns the full path to the config file
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// DataDir returns the directory holding the database and logs
func DataDir() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "data"), nil
}

// DatabasePath returns the path of the SQLite database
func DatabasePath() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "database.db"), nil
}

// CacheDir returns the platform-appropriate cache directory.
// On macOS this is ~/Library/Caches/replyscout/
func CacheDir() (string, error) {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cacheDir, appName), nil
}

// Load reads config from the default location
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFile(path)
}

// LoadFile reads config from path. Keys missing from the file keep their
// default values.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes config to the default location
func (c *Config) Save() error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return c.SaveFile(path)
}

// SaveFile writes config to path
func (c *Config) SaveFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(c)
}
