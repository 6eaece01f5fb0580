// Package llm provides a provider-agnostic LLM client layer. It wraps the
// gollm library (github.com/teilomillet/gollm) behind a small adapter
// contract so the rest of the system never sees vendor wire formats.
//
// # Architecture
//
//   - ProviderAdapter: the contract every backend implements (Complete, Stream)
//   - Client: adapter registry with per-request provider routing and middleware
//   - Backoff / Do: retry policy for retryable provider failures
//   - Error taxonomy: typed provider errors with a Retryable probe
//   - Catalog: built-in model table for alias resolution and defaulting
//
// # Quick Start
//
//	adapter, err := llm.NewGollmAdapter("anthropic", llm.WithModel("claude-opus-4-6"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	client := llm.NewClient(llm.WithAdapter(adapter))
//
//	resp, err := client.Complete(ctx, llm.Request{
//	    Model:    "claude-opus-4-6",
//	    Messages: []llm.Message{llm.UserMessage("Hello")},
//	})
//	fmt.Println(resp.Text())
//
// Requests carry tool definitions; responses carry the tool calls the model
// requested. Executing those calls is the caller's concern.
package llm
