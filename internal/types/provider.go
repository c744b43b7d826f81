// Package types contains the shared data model for the gateway:
// provider identifiers, error codes, chat requests and responses,
// stream chunks and telemetry records.
package types

import "fmt"

// Provider identifies one of the supported backend variants.
// The numeric values are part of the public contract and must not change.
type Provider int

const (
	// ProviderCopilot is the GitHub Copilot code-assist backend.
	ProviderCopilot Provider = 0
	// ProviderClaude is the Anthropic general-chat backend.
	ProviderClaude Provider = 1
	// ProviderOpenAI is the OpenAI commercial API backend.
	ProviderOpenAI Provider = 2
	// ProviderOllama is the local-inference backend.
	ProviderOllama Provider = 3
	// ProviderVulcan is the GPU-accelerated local inference server.
	ProviderVulcan Provider = 4
)

// ProviderCount is the number of known provider variants.
const ProviderCount = 5

// Valid reports whether p is one of the known provider variants.
func (p Provider) Valid() bool {
	return p >= ProviderCopilot && p <= ProviderVulcan
}

func (p Provider) String() string {
	switch p {
	case ProviderCopilot:
		return "copilot"
	case ProviderClaude:
		return "claude"
	case ProviderOpenAI:
		return "openai"
	case ProviderOllama:
		return "ollama"
	case ProviderVulcan:
		return "vulcan"
	default:
		return fmt.Sprintf("provider(%d)", int(p))
	}
}

// ParseProvider converts a provider name to its identifier.
func ParseProvider(s string) (Provider, error) {
	switch s {
	case "copilot":
		return ProviderCopilot, nil
	case "claude":
		return ProviderClaude, nil
	case "openai":
		return ProviderOpenAI, nil
	case "ollama":
		return ProviderOllama, nil
	case "vulcan":
		return ProviderVulcan, nil
	default:
		return 0, Errorf(CodeInvalidParameter, "unknown provider: %q", s)
	}
}

// AllProviders returns every known provider variant in enum order.
func AllProviders() []Provider {
	return []Provider{
		ProviderCopilot,
		ProviderClaude,
		ProviderOpenAI,
		ProviderOllama,
		ProviderVulcan,
	}
}
