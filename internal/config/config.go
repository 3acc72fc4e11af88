package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// ErrInvalid wraps every configuration validation failure
var ErrInvalid = errors.New("invalid configuration")

// Config holds the application configuration
type Config struct {
	Portal      PortalConfig      `mapstructure:"portal"`
	Browser     BrowserConfig     `mapstructure:"browser"`
	Defaults    DefaultsConfig    `mapstructure:"defaults"`
	Paths       PathsConfig       `mapstructure:"paths"`
	LLM         LLMConfig         `mapstructure:"llm"`
	Profile     ProfileConfig     `mapstructure:"profile"`
	CoverLetter CoverLetterConfig `mapstructure:"cover_letter"`
	Generation  GenerationConfig  `mapstructure:"generation"`
	Discovery   DiscoveryConfig   `mapstructure:"discovery"`
	Session     SessionConfig     `mapstructure:"session"`
	LogLevel    string            `mapstructure:"log_level" validate:"oneof=debug info warn error"`
}

type PortalConfig struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	BaseURL  string `mapstructure:"base_url" validate:"required,url"`
}

type BrowserConfig struct {
	Headless bool `mapstructure:"headless"`
}

type DefaultsConfig struct {
	FolderName string `mapstructure:"folder_name" validate:"required"`
	JobBoard   string `mapstructure:"job_board" validate:"oneof=full direct"`
}

type PathsConfig struct {
	CoverLettersDir string `mapstructure:"cover_letters_dir" validate:"required"`
	DataDir         string `mapstructure:"data_dir" validate:"required"`
}

type LLMConfig struct {
	Provider string            `mapstructure:"provider" validate:"oneof=openai anthropic gemini groq ollama"`
	Model    string            `mapstructure:"model"`
	APIKey   string            `mapstructure:"api_key"`
	APIKeys  map[string]string `mapstructure:"api_keys"`
	BaseURL  string            `mapstructure:"base_url" validate:"omitempty,url"`
	Timeout  time.Duration     `mapstructure:"timeout" validate:"gt=0"`
}

type ProfileConfig struct {
	Name                string `mapstructure:"name"`
	Email               string `mapstructure:"email" validate:"omitempty,email"`
	Phone               string `mapstructure:"phone"`
	LinkedIn            string `mapstructure:"linkedin"`
	GitHub              string `mapstructure:"github"`
	Website             string `mapstructure:"website"`
	ResumeText          string `mapstructure:"resume_text"`
	AdditionalInfo      string `mapstructure:"additional_info"`
	Signature           string `mapstructure:"signature"`
	CoverLetterTemplate string `mapstructure:"cover_letter_template"`
}

type CoverLetterConfig struct {
	Prompt string `mapstructure:"prompt"`
}

type GenerationConfig struct {
	MaxAttempts          int           `mapstructure:"max_attempts" validate:"gte=1,lte=10"`
	RetryDelay           time.Duration `mapstructure:"retry_delay" validate:"gte=0"`
	MinDescriptionLength int           `mapstructure:"min_description_length" validate:"gte=0"`
	CallSpacing          time.Duration `mapstructure:"call_spacing" validate:"gte=0"`
}

type DiscoveryConfig struct {
	MaxPages       int `mapstructure:"max_pages" validate:"gte=1"`
	DetailAttempts int `mapstructure:"detail_attempts" validate:"gte=1,lte=5"`
}

type SessionConfig struct {
	ApprovalTimeout time.Duration `mapstructure:"approval_timeout" validate:"gt=0"`
	PollInterval    time.Duration `mapstructure:"poll_interval" validate:"gt=0"`
	LoginAttempts   int           `mapstructure:"login_attempts" validate:"gte=1"`
	CallTimeout     time.Duration `mapstructure:"call_timeout" validate:"gt=0"`
}

// MaxLoginAttempts caps login retries regardless of configuration, so a bad
// password cannot lock the account.
const MaxLoginAttempts = 3

var envKeys = map[string]string{
	"openai":    "OPENAI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
	"gemini":    "GEMINI_API_KEY",
	"groq":      "GROQ_API_KEY",
}

// ResolveAPIKey picks llm.api_key, then llm.api_keys.<provider>, then the
// provider's conventional environment variable.
func (c LLMConfig) ResolveAPIKey() string {
	if c.APIKey != "" {
		return c.APIKey
	}
	if k := c.APIKeys[c.Provider]; k != "" {
		return k
	}
	if env, ok := envKeys[c.Provider]; ok {
		return os.Getenv(env)
	}
	return ""
}

// EffectiveLoginAttempts applies MaxLoginAttempts
func (c SessionConfig) EffectiveLoginAttempts() int {
	if c.LoginAttempts > MaxLoginAttempts {
		return MaxLoginAttempts
	}
	if c.LoginAttempts < 1 {
		return 1
	}
	return c.LoginAttempts
}

func setDefaults(v *viper.Viper, home string) {
	v.SetDefault("portal.username", "")
	v.SetDefault("portal.password", "")
	v.SetDefault("portal.base_url", "https://waterlooworks.uwaterloo.ca")
	v.SetDefault("browser.headless", false)
	v.SetDefault("defaults.folder_name", "waterworks")
	v.SetDefault("defaults.job_board", "full")
	v.SetDefault("paths.cover_letters_dir", "./cover_letters")
	v.SetDefault("paths.data_dir", filepath.Join(home, "data"))
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.timeout", "60s")
	v.SetDefault("generation.max_attempts", 3)
	v.SetDefault("generation.retry_delay", "2s")
	v.SetDefault("generation.min_description_length", 50)
	v.SetDefault("generation.call_spacing", "500ms")
	v.SetDefault("discovery.max_pages", 50)
	v.SetDefault("discovery.detail_attempts", 2)
	v.SetDefault("session.approval_timeout", "60s")
	v.SetDefault("session.poll_interval", "1s")
	v.SetDefault("session.login_attempts", 2)
	v.SetDefault("session.call_timeout", "30s")
	v.SetDefault("log_level", "info")
}

// Manager owns the viper instance behind one configuration file
type Manager struct {
	v    *viper.Viper
	path string
}

// DefaultDir is ~/.waterworks
func DefaultDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".waterworks"), nil
}

// Load reads the configuration at path, creating a commented default file
// there first if none exists. An empty path means ~/.waterworks/config.yaml.
// WATERWORKS_* environment variables override file values.
func Load(path string) (*Manager, error) {
	home, err := DefaultDir()
	if err != nil {
		return nil, err
	}
	if path == "" {
		path = filepath.Join(home, "config.yaml")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := createDefaultConfig(path); err != nil {
			return nil, err
		}
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("WATERWORKS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, home)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return &Manager{v: v, path: path}, nil
}

// Path returns the configuration file path
func (m *Manager) Path() string {
	return m.path
}

// Config unmarshals, expands and validates the configuration
func (m *Manager) Config() (*Config, error) {
	cfg := &Config{}
	if err := m.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Paths.CoverLettersDir = expandHome(cfg.Paths.CoverLettersDir)
	cfg.Paths.DataDir = expandHome(cfg.Paths.DataDir)
	cfg.Profile.CoverLetterTemplate = expandHome(cfg.Profile.CoverLetterTemplate)
	cfg.CoverLetter.Prompt = expandHome(cfg.CoverLetter.Prompt)
	cfg.LLM.Provider = strings.ToLower(strings.TrimSpace(cfg.LLM.Provider))
	cfg.Defaults.JobBoard = strings.ToLower(strings.TrimSpace(cfg.Defaults.JobBoard))

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks struct tags and reports every problem at once
func Validate(cfg *Config) error {
	err := validator.New().Struct(cfg)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	problems := make([]string, 0, len(verrs))
	for _, ve := range verrs {
		problems = append(problems, fmt.Sprintf("%s: failed %q (value %v)", ve.Namespace(), ve.Tag(), displayValue(ve)))
	}
	sort.Strings(problems)
	return fmt.Errorf("%w:\n  %s", ErrInvalid, strings.Join(problems, "\n  "))
}

// RequireLLM checks what generation needs beyond Validate
func (c *Config) RequireLLM() error {
	if c.LLM.Provider != "ollama" && c.LLM.ResolveAPIKey() == "" {
		return fmt.Errorf("%w: no API key for %s. Run: waterworks config set --key llm.api_key --value YOUR_KEY", ErrInvalid, c.LLM.Provider)
	}
	return nil
}

// displayValue hides anything that could be a secret
func displayValue(ve validator.FieldError) any {
	name := strings.ToLower(ve.Field())
	if strings.Contains(name, "password") || strings.Contains(name, "key") {
		return "****"
	}
	return ve.Value()
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}

// settable lists the keys `config set` may write
var settable = map[string]bool{
	"portal.username":               true,
	"portal.password":               true,
	"portal.base_url":               true,
	"browser.headless":              true,
	"defaults.folder_name":          true,
	"defaults.job_board":            true,
	"paths.cover_letters_dir":       true,
	"paths.data_dir":                true,
	"llm.provider":                  true,
	"llm.model":                     true,
	"llm.api_key":                   true,
	"llm.base_url":                  true,
	"profile.name":                  true,
	"profile.email":                 true,
	"profile.signature":             true,
	"profile.resume_text":           true,
	"profile.additional_info":       true,
	"profile.cover_letter_template": true,
	"cover_letter.prompt":           true,
	"log_level":                     true,
}

// SettableKeys returns the keys accepted by Set, sorted
func SettableKeys() []string {
	keys := make([]string, 0, len(settable))
	for k := range settable {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Set updates a configuration value and writes the file. The result must
// still validate; otherwise nothing is written. Only the file's own keys
// plus key are written back, so environment overrides and defaults never
// land on disk.
func (m *Manager) Set(key, value string) error {
	key = strings.ToLower(strings.TrimSpace(key))
	if !settable[key] {
		return fmt.Errorf("unknown or read-only key %q (settable: %s)", key, strings.Join(SettableKeys(), ", "))
	}

	prev := m.v.Get(key)
	m.v.Set(key, value)
	if _, err := m.Config(); err != nil {
		m.v.Set(key, prev)
		return err
	}

	file := viper.New()
	file.SetConfigFile(m.path)
	file.SetConfigType("yaml")
	if err := file.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	file.Set(key, value)
	if err := file.WriteConfig(); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return os.Chmod(m.path, 0o600)
}

// Get retrieves a configuration value
func (m *Manager) Get(key string) string {
	return m.v.GetString(key)
}

// IsSecret reports whether a key's value must never be printed
func IsSecret(key string) bool {
	return key == "portal.password" || strings.HasPrefix(key, "llm.api_key")
}
