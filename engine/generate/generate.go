// Package generate implements the Generator named in spec §4.7: a
// configurable LLM call (buffered or streamed) over a group-profile prompt.
// The local-chat provider is an OpenAI-compatible HTTP client; the
// cloud-chat provider follows the same request/stream shape, stripped of
// tool-calling and extended-thinking support the spec has no use for.
package generate

import (
	"context"
	"sync"

	"github.com/brightloom-labs/docrag/engine/domain"
)

// Profile is an alias for domain.GroupProfile, kept so callers in this
// package don't need to import engine/domain just to name a profile.
type Profile = domain.GroupProfile

const (
	ProfileTechnical  = domain.ProfileTechnical
	ProfileCompliance = domain.ProfileCompliance
	ProfileGeneral    = domain.ProfileGeneral
)

// DefaultTemperature and DefaultMaxTokens are the spec's fixed generation
// bounds: low temperature for grounded, deterministic answers, a bounded
// token budget.
const (
	DefaultTemperature = 0.2
	DefaultMaxTokens   = 2048
)

// Request is one buffered-or-streamed call to a Generator.
type Request struct {
	SystemPrompt string
	UserPrompt   string
	// Model overrides the provider's configured default for this call only.
	Model string
}

// Delta is a single streamed text fragment.
type Delta struct {
	Text string
	Err  error
}

// Generator produces a grounded answer from an assembled prompt, either in
// one shot or as a channel of deltas.
type Generator interface {
	Complete(ctx context.Context, req Request) (string, error)
	Stream(ctx context.Context, req Request) (<-chan Delta, error)
}

// Provider selects which backend a Config's default calls route to.
type Provider string

const (
	ProviderLocalChat Provider = "local-chat"
	ProviderCloudChat Provider = "cloud-chat"
)

// Config is the process-wide, admin-mutable Generator configuration named
// in spec §4.7. It is read concurrently by every in-flight request and
// written exactly once at a time through the admin endpoint.
type Config struct {
	DefaultProvider Provider
	LocalModel      string
	LocalBaseURL    string
	CloudModel      string
	CloudAPIKey     string
}

// Manager holds the live Config plus the two cached provider clients,
// rebuilding both clients whenever Update replaces the config — the Go
// equivalent of "replacing a model invalidates any cached local
// client" (spec §4.7).
type Manager struct {
	mu    sync.RWMutex
	cfg   Config
	local *LocalGenerator
	cloud *CloudGenerator
}

func NewManager(cfg Config) *Manager {
	m := &Manager{cfg: cfg}
	m.rebuild()
	return m
}

// Update replaces the live configuration and invalidates cached clients.
func (m *Manager) Update(cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = cfg
	m.rebuild()
}

func (m *Manager) rebuild() {
	m.local = NewLocalGenerator(m.cfg.LocalBaseURL, m.cfg.LocalModel)
	m.cloud = NewCloudGenerator(m.cfg.CloudAPIKey, m.cfg.CloudModel)
}

// Config returns a copy of the live configuration.
func (m *Manager) Config() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// Generator returns the Generator for the configured default provider,
// unless provider names one explicitly.
func (m *Manager) Generator(provider Provider) Generator {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if provider == "" {
		provider = m.cfg.DefaultProvider
	}
	if provider == ProviderCloudChat {
		return m.cloud
	}
	return m.local
}
