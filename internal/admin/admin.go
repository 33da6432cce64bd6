// Package admin exposes the in-process management surface: typed
// settings reads and writes with secret redaction, provider
// management, the self-update state machine, and health probes. HTTP
// hosting is the adapter's concern.
package admin

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/tessel-ai/tessel/internal/config"
)

// Known settings section names.
var sectionNames = []string{
	"auto", "turn", "voice", "memory", "tools", "providers", "router",
	"rag", "telegram", "storage",
}

// Service is the admin surface over a live configuration manager.
type Service struct {
	manager *config.Manager
	updates *Updater
	logger  *slog.Logger
}

// Option configures the service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger.With("component", "admin") }
}

// WithUpdater sets the self-update state machine.
func WithUpdater(u *Updater) Option {
	return func(s *Service) { s.updates = u }
}

// NewService creates the admin service.
func NewService(manager *config.Manager, opts ...Option) *Service {
	s := &Service{
		manager: manager,
		updates: NewUpdater("dev", nil),
		logger:  slog.Default().With("component", "admin"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Updates returns the update state machine.
func (s *Service) Updates() *Updater { return s.updates }

// Sections lists the known settings section names sorted.
func (s *Service) Sections() []string {
	out := append([]string(nil), sectionNames...)
	sort.Strings(out)
	return out
}

// GetSection returns one settings section with secrets redacted. The
// wire shape follows the snake_case section field names.
func (s *Service) GetSection(name string) (json.RawMessage, error) {
	cfg := redact(s.manager.Snapshot().Config())
	section, err := sectionOf(cfg, name)
	if err != nil {
		return nil, err
	}
	// Round-trip through YAML so the snake_case tags shape the JSON.
	data, err := yaml.Marshal(section)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return nil, err
	}
	return json.Marshal(generic)
}

// PutSection replaces one settings section. The full configuration is
// re-validated before it is installed; an invalid payload leaves the
// previous configuration active. Writes are idempotent.
func (s *Service) PutSection(name string, payload json.RawMessage) error {
	next := clone(s.manager.Snapshot().Config())
	target, err := sectionOf(next, name)
	if err != nil {
		return err
	}
	// JSON is a YAML subset; decoding with the YAML codec keeps the
	// snake_case field names of the sections.
	if err := yaml.Unmarshal(payload, target); err != nil {
		return fmt.Errorf("invalid %s payload: %w", name, err)
	}
	// Secret writes may carry the redacted placeholder back; restore
	// the stored value so a GET-modify-PUT cycle never wipes keys.
	restoreSecrets(next, s.manager.Snapshot().Config())
	if err := next.Validate(); err != nil {
		return err
	}
	s.manager.Replace(next)
	s.logger.Info("settings section updated", "section", name)
	return nil
}

// ProviderInput describes a provider write. An empty APIKey keeps the
// stored key.
type ProviderInput struct {
	APIKey                string `json:"api_key,omitempty"`
	BaseURL               string `json:"base_url,omitempty"`
	RequestTimeoutSeconds int    `json:"request_timeout_seconds,omitempty"`
}

// ProviderView is the redacted read model for one provider.
type ProviderView struct {
	Name                  string `json:"name"`
	BaseURL               string `json:"base_url,omitempty"`
	RequestTimeoutSeconds int    `json:"request_timeout_seconds"`
	APIKeyPresent         bool   `json:"api_key_present"`
}

// ListProviders returns redacted provider views sorted by name.
func (s *Service) ListProviders() []ProviderView {
	cfg := s.manager.Snapshot().Config()
	views := make([]ProviderView, 0, len(cfg.Providers))
	for _, name := range cfg.ProviderNames() {
		p := cfg.Providers[name]
		views = append(views, ProviderView{
			Name:                  name,
			BaseURL:               p.BaseURL,
			RequestTimeoutSeconds: p.RequestTimeoutSeconds,
			APIKeyPresent:         p.APIKeyPresent,
		})
	}
	return views
}

// PutProvider adds or updates a provider.
func (s *Service) PutProvider(name string, in ProviderInput) error {
	next := clone(s.manager.Snapshot().Config())
	if next.Providers == nil {
		next.Providers = config.ProvidersConfig{}
	}
	p := next.Providers[name]
	if in.APIKey != "" {
		p.APIKey = in.APIKey
	}
	if in.BaseURL != "" {
		p.BaseURL = in.BaseURL
	}
	if in.RequestTimeoutSeconds != 0 {
		p.RequestTimeoutSeconds = in.RequestTimeoutSeconds
	}
	if p.RequestTimeoutSeconds == 0 {
		p.RequestTimeoutSeconds = 300
	}
	p.APIKeyPresent = p.APIKey != ""
	next.Providers[name] = p

	if err := next.Validate(); err != nil {
		return err
	}
	s.manager.Replace(next)
	s.logger.Info("provider updated", "provider", name)
	return nil
}

// RemoveProvider deletes a provider. Removing an unknown provider is
// an error so typos are visible.
func (s *Service) RemoveProvider(name string) error {
	next := clone(s.manager.Snapshot().Config())
	if _, ok := next.Providers[name]; !ok {
		return fmt.Errorf("unknown provider %q", name)
	}
	delete(next.Providers, name)
	s.manager.Replace(next)
	s.logger.Info("provider removed", "provider", name)
	return nil
}

func sectionOf(cfg *config.Config, name string) (any, error) {
	switch name {
	case "auto":
		return &cfg.Auto, nil
	case "turn":
		return &cfg.Turn, nil
	case "voice":
		return &cfg.Voice, nil
	case "memory":
		return &cfg.Memory, nil
	case "tools":
		return &cfg.Tools, nil
	case "providers":
		return &cfg.Providers, nil
	case "router":
		return &cfg.Router, nil
	case "rag":
		return &cfg.RAG, nil
	case "telegram":
		return &cfg.Telegram, nil
	case "storage":
		return &cfg.Storage, nil
	default:
		return nil, fmt.Errorf("unknown settings section %q", name)
	}
}

// clone deep-copies a configuration through its YAML form.
func clone(cfg *config.Config) *config.Config {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return config.Default()
	}
	out := &config.Config{}
	if err := yaml.Unmarshal(data, out); err != nil {
		return config.Default()
	}
	return out
}

// redact blanks every stored secret in a copy of the configuration.
// Presence flags stay so the caller can render "configured".
func redact(cfg *config.Config) *config.Config {
	out := clone(cfg)
	for name, p := range out.Providers {
		p.APIKey = ""
		out.Providers[name] = p
	}
	out.Tools.BraveSearchAPIKey = ""
	out.Tools.Email.Password = ""
	out.Memory.Embeddings.APIKey = ""
	out.RAG.APIKey = ""
	out.Telegram.Token = ""
	return out
}

// restoreSecrets copies stored secrets into next wherever the write
// left them empty.
func restoreSecrets(next, prev *config.Config) {
	for name, p := range next.Providers {
		if p.APIKey == "" {
			if stored, ok := prev.Providers[name]; ok {
				p.APIKey = stored.APIKey
			}
		}
		p.APIKeyPresent = p.APIKey != ""
		next.Providers[name] = p
	}
	if next.Tools.BraveSearchAPIKey == "" {
		next.Tools.BraveSearchAPIKey = prev.Tools.BraveSearchAPIKey
	}
	if next.Tools.Email.Password == "" {
		next.Tools.Email.Password = prev.Tools.Email.Password
	}
	if next.Memory.Embeddings.APIKey == "" {
		next.Memory.Embeddings.APIKey = prev.Memory.Embeddings.APIKey
	}
	if next.RAG.APIKey == "" {
		next.RAG.APIKey = prev.RAG.APIKey
	}
	if next.Telegram.Token == "" {
		next.Telegram.Token = prev.Telegram.Token
	}
}
