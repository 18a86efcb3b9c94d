// Package completion is the client for remote chat-completion services. It
// sends a conversation and a tool catalog and returns the single tool call
// the model chose.
//
// # Architecture
//
//   - ProviderAdapter: one backend per wire format (OpenAIAdapter speaks
//     the chat-completions protocol over HTTP, GollmAdapter delegates to
//     github.com/teilomillet/gollm)
//   - Client: routes requests to an adapter and applies Middleware
//   - RequestInvocation: narrows a Response to one Invocation
//
// # Usage
//
//	adapter := completion.NewOpenAI(nil, cfg.CompletionEndpoint, cfg.Credential.Reveal())
//	client := completion.NewClient(
//	    completion.WithProvider("openai", adapter),
//	    completion.WithModel(cfg.ModelIdentifier),
//	    completion.WithMiddleware(completion.LoggingMiddleware(sink)),
//	)
//	inv, err := client.RequestInvocation(ctx, conversation, catalog)
//
// # Errors
//
// Failures are typed: TransportError when no response arrived,
// ProtocolError when one arrived in the wrong shape, NoChoiceError and
// NoInvocationError when a well-formed response holds nothing to act on.
// Match them with errors.As.
package completion
