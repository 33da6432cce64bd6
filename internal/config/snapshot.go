package config

import "time"

// Snapshot is an immutable view of the settings taken at turn entry.
// A turn never observes a mid-turn settings flip; outside of turns the
// manager swaps in reloaded configurations.
type Snapshot struct {
	cfg *Config
}

// NewSnapshot wraps a configuration. The caller must not mutate cfg
// afterwards.
func NewSnapshot(cfg *Config) *Snapshot {
	if cfg == nil {
		cfg = Default()
	}
	return &Snapshot{cfg: cfg}
}

// Config exposes the underlying configuration for read-only access.
func (s *Snapshot) Config() *Config { return s.cfg }

func (s *Snapshot) Workspace() string { return s.cfg.Workspace }
func (s *Snapshot) Persona() string   { return s.cfg.Persona }

func (s *Snapshot) IsFilesystemEnabled() bool { return s.cfg.Tools.FilesystemEnabled }
func (s *Snapshot) IsShellEnabled() bool      { return s.cfg.Tools.ShellEnabled }
func (s *Snapshot) IsBrowserEnabled() bool    { return s.cfg.Tools.BrowserEnabled }
func (s *Snapshot) IsSearchEnabled() bool     { return s.cfg.Tools.SearchEnabled }
func (s *Snapshot) IsEmailEnabled() bool      { return s.cfg.Tools.EmailEnabled }
func (s *Snapshot) IsMemoryEnabled() bool     { return s.cfg.Memory.Enabled && s.cfg.Tools.MemoryEnabled }
func (s *Snapshot) IsGoalsEnabled() bool      { return s.cfg.Tools.GoalsEnabled }
func (s *Snapshot) IsTierToolEnabled() bool   { return s.cfg.Tools.TierToolEnabled }
func (s *Snapshot) IsDatetimeEnabled() bool   { return s.cfg.Tools.DatetimeEnabled }
func (s *Snapshot) IsWeatherEnabled() bool    { return s.cfg.Tools.WeatherEnabled }
func (s *Snapshot) IsVoiceEnabled() bool      { return s.cfg.Voice.Enabled }

func (s *Snapshot) IsPromptInjectionDetectionEnabled() bool {
	return s.cfg.Tools.PromptInjectionDetection
}

func (s *Snapshot) IsCommandInjectionDetectionEnabled() bool {
	return s.cfg.Tools.CommandInjectionDetection
}

func (s *Snapshot) GetMemorySoftPromptBudgetTokens() int {
	return s.cfg.Memory.SoftPromptBudgetTokens
}

func (s *Snapshot) GetMemoryMaxPromptBudgetTokens() int {
	return s.cfg.Memory.MaxPromptBudgetTokens
}

func (s *Snapshot) GetMemoryPromotionMinConfidence() float64 {
	return s.cfg.Memory.PromotionMinConfidence
}

// TurnDeadline returns the parsed per-turn deadline duration.
func (s *Snapshot) TurnDeadline() time.Duration {
	d, err := ParseISODuration(s.cfg.Turn.Deadline)
	if err != nil {
		return time.Hour
	}
	return d
}

func (s *Snapshot) MaxLLMCalls() int       { return s.cfg.Turn.MaxLLMCalls }
func (s *Snapshot) MaxToolExecutions() int { return s.cfg.Turn.MaxToolExecutions }
