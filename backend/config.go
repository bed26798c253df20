package backend

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Backend identifiers.
const (
	OpenAI       = "openai"
	Groq         = "groq"
	OpenRouter   = "openrouter"
	CustomOpenAI = "custom-openai"
	Gemini       = "gemini"
	Ollama       = "ollama"
)

// Config holds everything needed to build a Backend.
type Config struct {
	// ID is the backend identifier (openai, gemini, ollama, ...).
	ID string
	// Name is the display name.
	Name string
	// BaseURL is the API base URL.
	BaseURL string
	// APIKey is the authentication key (empty for local services).
	APIKey string
	// Model is the model identifier.
	Model string
	// Proxy is an optional HTTP/HTTPS proxy URL.
	Proxy string
	// Timeout bounds one HTTP request.
	Timeout time.Duration
	// MaxRetries is the number of retries on 429, 5xx and network errors. Default: 3.
	MaxRetries int
	// BackoffBase is the first retry delay; it doubles per attempt. Default: 1s.
	BackoffBase time.Duration
	// Temperature is the sampling temperature. Default: 0.2.
	Temperature float32
	// SystemPrompt overrides the built-in system prompt. {{targetLang}}
	// expands to the target language name.
	SystemPrompt string
	// OnLog receives diagnostic messages.
	OnLog func(format string, args ...any)
	// Verbose enables per-attempt debug messages.
	Verbose bool
}

func (c Config) log(format string, args ...any) {
	if c.OnLog != nil {
		c.OnLog(format, args...)
	}
}

func (c Config) debug(format string, args ...any) {
	if c.Verbose {
		c.log("[DEBUG] "+format, args...)
	}
}

func (c Config) displayName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.ID
}

func (c Config) effectiveTimeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return 120 * time.Second
}

func (c Config) effectiveMaxRetries() int {
	if c.MaxRetries > 0 {
		return c.MaxRetries
	}
	if c.MaxRetries < 0 {
		return 0
	}
	return 3
}

func (c Config) effectiveBackoff() time.Duration {
	if c.BackoffBase > 0 {
		return c.BackoffBase
	}
	return time.Second
}

// CallBudget is the longest one TranslateBatch call may take under cfg:
// every attempt running into the request timeout, plus the backoff
// between attempts. Callers bounding a whole call should allow at least
// this much.
func CallBudget(cfg Config) time.Duration {
	retries := cfg.effectiveMaxRetries()
	budget := time.Duration(retries+1) * cfg.effectiveTimeout()
	for attempt := 0; attempt < retries; attempt++ {
		budget += backoff(cfg.effectiveBackoff(), attempt)
	}
	return budget
}

func (c Config) effectiveTemperature() float32 {
	if c.Temperature > 0 {
		return c.Temperature
	}
	return 0.2
}

// Defaults returns the pre-configured backend definitions.
func Defaults() map[string]Config {
	return map[string]Config{
		OpenAI: {
			ID:      OpenAI,
			Name:    "OpenAI",
			BaseURL: "https://api.openai.com/v1",
			Model:   "gpt-4o-mini",
			Timeout: 120 * time.Second,
		},
		Groq: {
			ID:      Groq,
			Name:    "Groq",
			BaseURL: "https://api.groq.com/openai/v1",
			Model:   "llama-3.3-70b-versatile",
			Timeout: 60 * time.Second,
		},
		OpenRouter: {
			ID:      OpenRouter,
			Name:    "OpenRouter",
			BaseURL: "https://openrouter.ai/api/v1",
			Timeout: 120 * time.Second,
		},
		CustomOpenAI: {
			ID:      CustomOpenAI,
			Name:    "Custom OpenAI",
			Timeout: 60 * time.Second,
		},
		Gemini: {
			ID:      Gemini,
			Name:    "Google AI (Gemini)",
			BaseURL: "https://generativelanguage.googleapis.com/",
			Model:   "gemini-2.0-flash",
			Timeout: 120 * time.Second,
		},
		Ollama: {
			ID:      Ollama,
			Name:    "Ollama",
			BaseURL: "http://localhost:11434",
			Timeout: 120 * time.Second,
		},
	}
}

// Names returns the known backend identifiers, sorted.
func Names() []string {
	names := make([]string, 0, len(factories))
	for n := range factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// NeedsAPIKey reports whether the backend requires an API key.
func NeedsAPIKey(id string) bool {
	return id != Ollama
}

type factory func(cfg Config) (Backend, error)

var factories = map[string]factory{
	OpenAI:       newOpenAI,
	Groq:         newOpenAI,
	OpenRouter:   newOpenAI,
	CustomOpenAI: newOpenAI,
	Gemini:       newGemini,
	Ollama:       newOllama,
}

// New builds the backend named by cfg.ID. Empty fields of cfg are filled
// from Defaults.
func New(cfg Config) (Backend, error) {
	cfg.ID = strings.ToLower(strings.TrimSpace(cfg.ID))
	f, ok := factories[cfg.ID]
	if !ok {
		return nil, fmt.Errorf("unknown backend %q (available: %s)", cfg.ID, strings.Join(Names(), ", "))
	}
	def := Defaults()[cfg.ID]
	if cfg.Name == "" {
		cfg.Name = def.Name
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = def.Timeout
	}
	cfg.Model = strings.TrimSpace(cfg.Model)
	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)

	if cfg.Model == "" {
		return nil, fmt.Errorf("%s: model is required", cfg.displayName())
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%s: base URL is required", cfg.displayName())
	}
	if NeedsAPIKey(cfg.ID) && strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%s: %w: API key is required", cfg.displayName(), ErrAuth)
	}
	return f(cfg)
}
