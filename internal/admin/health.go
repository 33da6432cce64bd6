package admin

import "context"

// Status is the result of a health probe.
type Status struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// Probe checks one dependency. A nil error means healthy.
type Probe func(ctx context.Context) error

// Ping reports liveness of the admin surface itself.
func (s *Service) Ping() Status {
	return Status{OK: true, Message: "pong"}
}

// BrowserHealth runs the browser probe, if one is installed.
func (s *Service) BrowserHealth(ctx context.Context, probe Probe) Status {
	if probe == nil {
		return Status{OK: false, Message: "browser driver is not configured"}
	}
	if err := probe(ctx); err != nil {
		return Status{OK: false, Message: err.Error()}
	}
	return Status{OK: true, Message: "browser driver responding"}
}
