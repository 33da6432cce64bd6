// Package config holds the typed runtime settings: section structs,
// loading and validation, per-turn snapshots, and hot reload.
package config

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root settings document. Every section is hot-reloadable;
// turns observe a snapshot taken at turn entry.
type Config struct {
	Workspace string            `yaml:"workspace"`
	Persona   string            `yaml:"persona"`
	Auto      AutoConfig        `yaml:"auto"`
	Turn      TurnConfig        `yaml:"turn"`
	Voice     VoiceConfig       `yaml:"voice"`
	Memory    MemoryConfig      `yaml:"memory"`
	Tools     ToolsConfig       `yaml:"tools"`
	MCP       MCPConfig         `yaml:"mcp"`
	Providers ProvidersConfig   `yaml:"providers"`
	Router    ModelRouterConfig `yaml:"router"`
	RAG       RAGConfig         `yaml:"rag"`
	Telegram  TelegramConfig    `yaml:"telegram"`
	Storage   StorageConfig     `yaml:"storage"`
}

// AutoConfig controls the autonomous scheduler.
type AutoConfig struct {
	Enabled              bool   `yaml:"enabled"`
	AutoStart            bool   `yaml:"auto_start"`
	TaskTimeLimitMinutes int    `yaml:"task_time_limit_minutes"`
	MaxGoals             int    `yaml:"max_goals"`
	ModelTier            string `yaml:"model_tier"`
	NotifyMilestones     bool   `yaml:"notify_milestones"`
	TickIntervalSeconds  int    `yaml:"tick_interval_seconds"`
}

// TurnConfig bounds a single turn.
type TurnConfig struct {
	MaxLLMCalls       int    `yaml:"max_llm_calls"`
	MaxToolExecutions int    `yaml:"max_tool_executions"`
	// Deadline is an ISO-8601 duration, e.g. "PT1H" or "PT30M".
	Deadline string `yaml:"deadline"`
}

// VoiceConfig controls voice input/output.
type VoiceConfig struct {
	Enabled       bool    `yaml:"enabled"`
	STTProvider   string  `yaml:"stt_provider"` // elevenlabs, whisper
	TTSProvider   string  `yaml:"tts_provider"` // elevenlabs
	VoiceID       string  `yaml:"voice_id"`
	Speed         float64 `yaml:"speed"` // [0.5, 2.0]
	WhisperSTTURL string  `yaml:"whisper_stt_url"`
}

// MemoryConfig controls the memory engine.
type MemoryConfig struct {
	Enabled                bool   `yaml:"enabled"`
	Path                   string `yaml:"path"`
	RecentDays             int    `yaml:"recent_days"` // [1, 90]
	SoftPromptBudgetTokens int    `yaml:"soft_prompt_budget_tokens"`
	MaxPromptBudgetTokens  int    `yaml:"max_prompt_budget_tokens"`
	PromotionMinConfidence float64 `yaml:"promotion_min_confidence"`
	Embeddings             EmbeddingsConfig `yaml:"embeddings"`
}

// EmbeddingsConfig selects the external embedder.
type EmbeddingsConfig struct {
	Provider string `yaml:"provider"`
	BaseURL  string `yaml:"base_url"`
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
}

// ToolsConfig holds per-tool enable flags and tool settings.
type ToolsConfig struct {
	FilesystemEnabled bool `yaml:"filesystem_enabled"`
	ShellEnabled      bool `yaml:"shell_enabled"`
	BrowserEnabled    bool `yaml:"browser_enabled"`
	SearchEnabled     bool `yaml:"search_enabled"`
	EmailEnabled      bool `yaml:"email_enabled"`
	MemoryEnabled     bool `yaml:"memory_enabled"`
	GoalsEnabled      bool `yaml:"goals_enabled"`
	TierToolEnabled   bool `yaml:"tier_tool_enabled"`
	DatetimeEnabled   bool `yaml:"datetime_enabled"`
	WeatherEnabled    bool `yaml:"weather_enabled"`

	PromptInjectionDetection  bool `yaml:"prompt_injection_detection"`
	CommandInjectionDetection bool `yaml:"command_injection_detection"`

	BraveSearchAPIKey string `yaml:"brave_search_api_key"`

	BrowserType        string `yaml:"browser_type"`         // playwright
	BrowserAPIProvider string `yaml:"browser_api_provider"` // brave
	BrowserTimeoutMS   int    `yaml:"browser_timeout_ms"`   // [1000, 120000]

	ShellMaxTimeoutSeconds int      `yaml:"shell_max_timeout_seconds"`
	ShellEnvWhitelist      []string `yaml:"shell_env_whitelist"`

	Email EmailConfig `yaml:"email"`
}

// EmailConfig holds IMAP/SMTP endpoints and credentials.
type EmailConfig struct {
	SMTPHost     string `yaml:"smtp_host"`
	SMTPPort     int    `yaml:"smtp_port"`
	SMTPSecurity string `yaml:"smtp_security"` // ssl, starttls, none
	IMAPHost     string `yaml:"imap_host"`
	IMAPPort     int    `yaml:"imap_port"`
	IMAPSecurity string `yaml:"imap_security"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	SSLTrust     string `yaml:"ssl_trust"`
	MaxBodyBytes int    `yaml:"max_body_bytes"`
}

// MCPConfig controls Model Context Protocol defaults.
type MCPConfig struct {
	Enabled  bool              `yaml:"enabled"`
	Defaults map[string]string `yaml:"defaults,omitempty"`
}

// ProvidersConfig maps provider name to its connection settings.
type ProvidersConfig map[string]ProviderConfig

// ProviderConfig configures one LLM provider endpoint.
type ProviderConfig struct {
	APIKey                string `yaml:"api_key,omitempty"`
	BaseURL               string `yaml:"base_url,omitempty"`
	RequestTimeoutSeconds int    `yaml:"request_timeout_seconds"`
	APIKeyPresent         bool   `yaml:"api_key_present"`
}

// ModelRouterConfig maps tiers to provider/model strings.
type ModelRouterConfig struct {
	Tiers       map[string]TierConfig `yaml:"tiers"`
	Temperature float64               `yaml:"temperature"`

	// DynamicTierEnabled defaults to true when unset.
	DynamicTierEnabled *bool `yaml:"dynamic_tier_enabled"`
}

// DynamicTier reports whether dynamic tier upgrades are enabled.
func (m ModelRouterConfig) DynamicTier() bool {
	return m.DynamicTierEnabled == nil || *m.DynamicTierEnabled
}

// TierConfig names the model behind one tier.
type TierConfig struct {
	// Model is "<provider>/<model-id>".
	Model     string `yaml:"model"`
	Reasoning string `yaml:"reasoning,omitempty"`
}

// RAGConfig configures the optional retrieval service.
type RAGConfig struct {
	URL            string `yaml:"url"`
	QueryMode      string `yaml:"query_mode"` // hybrid, local, global, naive
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	IndexMinLength int    `yaml:"index_min_length"`
	APIKey         string `yaml:"api_key"`
}

// TelegramConfig configures the Telegram adapter surface.
type TelegramConfig struct {
	Enabled      bool     `yaml:"enabled"`
	Token        string   `yaml:"token"`
	AuthMode     string   `yaml:"auth_mode"` // user, invite_only
	AllowedUsers []string `yaml:"allowed_users,omitempty"`
	InviteCodes  []string `yaml:"invite_codes,omitempty"`
}

// StorageConfig points the object-storage port at a directory.
type StorageConfig struct {
	Root string `yaml:"root"`
}

var providerNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// Default returns a configuration with all defaults applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads, defaults, and validates a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Parse parses raw YAML into a validated configuration.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Workspace == "" {
		c.Workspace = "workspace"
	}
	if c.Auto.TaskTimeLimitMinutes <= 0 {
		c.Auto.TaskTimeLimitMinutes = 30
	}
	if c.Auto.MaxGoals <= 0 {
		c.Auto.MaxGoals = 3
	}
	// The tick is a 1s heartbeat; actual work is gated separately.
	c.Auto.TickIntervalSeconds = 1
	if c.Auto.ModelTier == "" {
		c.Auto.ModelTier = "balanced"
	}
	if c.Turn.MaxLLMCalls <= 0 {
		c.Turn.MaxLLMCalls = 200
	}
	if c.Turn.MaxToolExecutions <= 0 {
		c.Turn.MaxToolExecutions = 500
	}
	if c.Turn.Deadline == "" {
		c.Turn.Deadline = "PT1H"
	}
	if c.Voice.STTProvider == "" {
		c.Voice.STTProvider = "whisper"
	}
	if c.Voice.TTSProvider == "" {
		c.Voice.TTSProvider = "elevenlabs"
	}
	if c.Voice.Speed == 0 {
		c.Voice.Speed = 1.0
	}
	if c.Memory.RecentDays <= 0 {
		c.Memory.RecentDays = 30
	}
	if c.Memory.SoftPromptBudgetTokens <= 0 {
		c.Memory.SoftPromptBudgetTokens = 1800
	}
	if c.Memory.MaxPromptBudgetTokens <= 0 {
		c.Memory.MaxPromptBudgetTokens = 3500
	}
	if c.Memory.PromotionMinConfidence <= 0 {
		c.Memory.PromotionMinConfidence = 0.75
	}
	if c.Memory.Path == "" {
		c.Memory.Path = "memory.db"
	}
	if c.Tools.BrowserType == "" {
		c.Tools.BrowserType = "playwright"
	}
	if c.Tools.BrowserAPIProvider == "" {
		c.Tools.BrowserAPIProvider = "brave"
	}
	if c.Tools.BrowserTimeoutMS == 0 {
		c.Tools.BrowserTimeoutMS = 30000
	}
	if c.Tools.ShellMaxTimeoutSeconds <= 0 {
		c.Tools.ShellMaxTimeoutSeconds = 120
	}
	if c.Router.Temperature == 0 {
		c.Router.Temperature = 0.7
	}
	if c.Router.Tiers == nil {
		c.Router.Tiers = map[string]TierConfig{
			"routing":  {Model: "openai/gpt-4o-mini"},
			"balanced": {Model: "openai/gpt-4o"},
			"smart":    {Model: "openai/gpt-4o"},
			"coding":   {Model: "openai/gpt-4o"},
			"deep":     {Model: "openai/o3", Reasoning: "high"},
		}
	}
	if c.RAG.QueryMode == "" {
		c.RAG.QueryMode = "hybrid"
	}
	if c.RAG.TimeoutSeconds <= 0 {
		c.RAG.TimeoutSeconds = 30
	}
	if c.RAG.IndexMinLength <= 0 {
		c.RAG.IndexMinLength = 80
	}
	if c.Telegram.AuthMode == "" {
		c.Telegram.AuthMode = "user"
	}
	if c.Storage.Root == "" {
		c.Storage.Root = "storage"
	}
	for name, p := range c.Providers {
		if p.RequestTimeoutSeconds <= 0 {
			p.RequestTimeoutSeconds = 300
		}
		p.APIKeyPresent = p.APIKey != ""
		c.Providers[name] = p
	}
}

// Validate checks every section and returns the first violation found.
func (c *Config) Validate() error {
	if _, err := ParseISODuration(c.Turn.Deadline); err != nil {
		return fmt.Errorf("turn.deadline: %w", err)
	}
	if c.Auto.MaxGoals < 1 {
		return fmt.Errorf("auto.max_goals must be >= 1, got %d", c.Auto.MaxGoals)
	}
	switch c.Voice.STTProvider {
	case "elevenlabs", "whisper":
	default:
		return fmt.Errorf("voice.stt_provider must be elevenlabs or whisper, got %q", c.Voice.STTProvider)
	}
	if c.Voice.TTSProvider != "elevenlabs" {
		return fmt.Errorf("voice.tts_provider must be elevenlabs, got %q", c.Voice.TTSProvider)
	}
	if c.Voice.Speed < 0.5 || c.Voice.Speed > 2.0 {
		return fmt.Errorf("voice.speed must be within [0.5, 2.0], got %g", c.Voice.Speed)
	}
	if c.Voice.WhisperSTTURL != "" &&
		!strings.HasPrefix(c.Voice.WhisperSTTURL, "http://") &&
		!strings.HasPrefix(c.Voice.WhisperSTTURL, "https://") {
		return fmt.Errorf("voice.whisper_stt_url must be http(s), got %q", c.Voice.WhisperSTTURL)
	}
	if c.Memory.RecentDays < 1 || c.Memory.RecentDays > 90 {
		return fmt.Errorf("memory.recent_days must be within [1, 90], got %d", c.Memory.RecentDays)
	}
	if c.Memory.SoftPromptBudgetTokens > c.Memory.MaxPromptBudgetTokens {
		return fmt.Errorf("memory soft budget %d exceeds hard budget %d",
			c.Memory.SoftPromptBudgetTokens, c.Memory.MaxPromptBudgetTokens)
	}
	if c.Tools.BrowserTimeoutMS < 1000 || c.Tools.BrowserTimeoutMS > 120000 {
		return fmt.Errorf("tools.browser_timeout_ms must be within [1000, 120000], got %d", c.Tools.BrowserTimeoutMS)
	}
	if sec := c.Tools.Email.SMTPSecurity; sec != "" && sec != "ssl" && sec != "starttls" && sec != "none" {
		return fmt.Errorf("tools.email.smtp_security must be ssl, starttls, or none, got %q", sec)
	}
	if sec := c.Tools.Email.IMAPSecurity; sec != "" && sec != "ssl" && sec != "starttls" && sec != "none" {
		return fmt.Errorf("tools.email.imap_security must be ssl, starttls, or none, got %q", sec)
	}
	for name, p := range c.Providers {
		if !providerNamePattern.MatchString(name) {
			return fmt.Errorf("provider name %q must match %s", name, providerNamePattern)
		}
		if p.RequestTimeoutSeconds < 1 || p.RequestTimeoutSeconds > 3600 {
			return fmt.Errorf("provider %q request_timeout_seconds must be within [1, 3600], got %d", name, p.RequestTimeoutSeconds)
		}
	}
	for tier, tc := range c.Router.Tiers {
		if !strings.Contains(tc.Model, "/") {
			return fmt.Errorf("router tier %q model must be \"<provider>/<model-id>\", got %q", tier, tc.Model)
		}
	}
	switch c.RAG.QueryMode {
	case "hybrid", "local", "global", "naive":
	default:
		return fmt.Errorf("rag.query_mode must be one of hybrid, local, global, naive, got %q", c.RAG.QueryMode)
	}
	if c.RAG.TimeoutSeconds < 1 || c.RAG.TimeoutSeconds > 120 {
		return fmt.Errorf("rag.timeout_seconds must be within [1, 120], got %d", c.RAG.TimeoutSeconds)
	}
	if c.RAG.IndexMinLength < 1 || c.RAG.IndexMinLength > 2000 {
		return fmt.Errorf("rag.index_min_length must be within [1, 2000], got %d", c.RAG.IndexMinLength)
	}
	switch c.Telegram.AuthMode {
	case "user", "invite_only":
	default:
		return fmt.Errorf("telegram.auth_mode must be user or invite_only, got %q", c.Telegram.AuthMode)
	}
	return nil
}

// ProviderNames returns the configured provider names sorted.
func (c *Config) ProviderNames() []string {
	names := make([]string, 0, len(c.Providers))
	for name := range c.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
