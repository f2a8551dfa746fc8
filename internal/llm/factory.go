package llm

import (
	"fmt"
	"os"
)

// ProviderOptions carries the provider-specific settings resolved from
// configuration.
type ProviderOptions struct {
	APIKey  string
	BaseURL string // OpenAI-compatible servers only
	Model   string

	// ScriptPath is the chunk log for the scripted provider.
	ScriptPath string

	// Retry wraps the provider with transient-error retries.
	Retry bool
}

// NewProvider creates a provider by name: anthropic, openai, gemini, or
// scripted.
func NewProvider(name string, opts ProviderOptions) (Provider, error) {
	var provider Provider
	var err error

	switch name {
	case "anthropic":
		provider, err = NewAnthropicProvider(opts.APIKey, opts.Model)
	case "openai":
		provider, err = NewOpenAIProvider(opts.APIKey, opts.BaseURL, opts.Model)
	case "gemini":
		provider, err = NewGeminiProvider(opts.APIKey, opts.Model)
	case "scripted":
		provider, err = loadScriptedProvider(opts.ScriptPath)
	default:
		return nil, fmt.Errorf("unknown provider: %s", name)
	}
	if err != nil {
		return nil, err
	}

	if opts.Retry {
		provider = WrapWithRetry(provider, DefaultRetryConfig())
	}
	return provider, nil
}

func loadScriptedProvider(path string) (Provider, error) {
	if path == "" {
		return nil, fmt.Errorf("scripted provider requires a chunk log path")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening chunk log: %w", err)
	}
	defer f.Close()
	return LoadScript(f)
}
