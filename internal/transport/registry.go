package transport

import "github.com/switchboard-dev/switchboard/internal/types"

// Defaults returns one transport per known provider variant. The local
// backends (Ollama, Vulcan) are pinned to the given endpoints; the
// hosted ones use their public URLs.
func Defaults(ollamaURL, vulcanURL string) map[types.Provider]Transport {
	return map[types.Provider]Transport{
		types.ProviderCopilot: NewCopilot(),
		types.ProviderClaude:  NewClaude(),
		types.ProviderOpenAI:  NewOpenAI(),
		types.ProviderOllama:  NewOllama(ollamaURL),
		types.ProviderVulcan:  NewVulcan(vulcanURL),
	}
}
