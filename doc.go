// Package switchboard is a multi-provider AI-chat gateway library. It
// routes chat requests across GitHub Copilot, Anthropic Claude, OpenAI,
// local Ollama and a Vulcan GPU server, with automatic failover,
// per-provider health tracking, credential lifecycle management,
// ordered streaming and optional response caching.
//
// Typical use:
//
//	inst, err := switchboard.New(switchboard.Config{
//		Provider:       switchboard.ProviderOpenAI,
//		ModelName:      "gpt-4o-mini",
//		APIKey:         os.Getenv("OPENAI_API_KEY"),
//		EnableFallback: true,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer inst.Close()
//
//	resp, err := inst.Chat(ctx, "hello")
//
// All methods are safe for concurrent use. Failing calls return a
// *switchboard.Error carrying a stable Code; the most recent failure is
// also available via LastError.
package switchboard
