package format

import (
	"log/slog"

	"github.com/chaz8081/murmur/internal/config"
)

// Provider selects a formatting backend. The concrete types are None,
// Local, OpenAI and Claude; each carries only the fields it needs.
type Provider interface {
	// Name returns the settings identifier of the provider.
	Name() string
	isProvider()
}

// None passes text through unchanged.
type None struct{}

// Local talks to a model service on this machine (an Ollama-compatible API).
type Local struct {
	BaseURL string
	Model   string
}

// OpenAI uses the OpenAI chat completions API.
type OpenAI struct {
	APIKey string
	Model  string
}

// Claude uses the Anthropic messages API.
type Claude struct {
	APIKey string
	Model  string
}

func (None) Name() string   { return config.ProviderNone }
func (Local) Name() string  { return config.ProviderLocal }
func (OpenAI) Name() string { return config.ProviderOpenAI }
func (Claude) Name() string { return config.ProviderClaude }

func (None) isProvider()   {}
func (Local) isProvider()  {}
func (OpenAI) isProvider() {}
func (Claude) isProvider() {}

// LogValue keeps the API key out of logs.
func (p OpenAI) LogValue() slog.Value {
	return slog.GroupValue(slog.String("name", p.Name()), slog.String("model", p.Model))
}

// LogValue keeps the API key out of logs.
func (p Claude) LogValue() slog.Value {
	return slog.GroupValue(slog.String("name", p.Name()), slog.String("model", p.Model))
}

// ProviderFromSettings builds the Provider selected by cfg. Unknown names
// map to None.
func ProviderFromSettings(cfg config.FormattingConfig) Provider {
	switch cfg.Provider {
	case config.ProviderLocal:
		return Local{BaseURL: cfg.LocalURL, Model: cfg.LocalModel}
	case config.ProviderOpenAI:
		return OpenAI{APIKey: cfg.APIKey, Model: cfg.OpenAIModel}
	case config.ProviderClaude:
		return Claude{APIKey: cfg.APIKey, Model: cfg.ClaudeModel}
	default:
		return None{}
	}
}

// secret returns the credential carried by p, if any.
func secret(p Provider) string {
	switch p := p.(type) {
	case OpenAI:
		return p.APIKey
	case Claude:
		return p.APIKey
	default:
		return ""
	}
}
