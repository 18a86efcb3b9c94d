package completion

import (
	"context"
	"fmt"

	"github.com/martinemde/shellagent/logging"
)

// Middleware wraps a provider call. It receives the request and a next function
// that calls the downstream handler, and returns the response.
type Middleware func(ctx context.Context, req Request, next func(context.Context, Request) (*Response, error)) (*Response, error)

// Client holds registered provider adapters, routes requests by provider
// identifier, and applies middleware.
type Client struct {
	providers       map[string]ProviderAdapter
	defaultProvider string
	model           string
	middleware      []Middleware
	sink            logging.Sink
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithProvider registers a provider adapter.
func WithProvider(name string, adapter ProviderAdapter) ClientOption {
	return func(c *Client) {
		c.providers[name] = adapter
	}
}

// WithDefaultProvider sets the default provider name.
func WithDefaultProvider(name string) ClientOption {
	return func(c *Client) {
		c.defaultProvider = name
	}
}

// WithModel sets the model identifier sent on every request.
func WithModel(model string) ClientOption {
	return func(c *Client) {
		c.model = model
	}
}

// WithMiddleware adds middleware to the client.
func WithMiddleware(mw ...Middleware) ClientOption {
	return func(c *Client) {
		c.middleware = append(c.middleware, mw...)
	}
}

// WithSink sets where response deviations are reported.
func WithSink(sink logging.Sink) ClientOption {
	return func(c *Client) {
		c.sink = sink
	}
}

// NewClient creates a new Client with the given options.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		providers: make(map[string]ProviderAdapter),
		sink:      logging.Nop,
	}
	for _, opt := range opts {
		opt(c)
	}
	// If no default and exactly one provider, use it.
	if c.defaultProvider == "" && len(c.providers) == 1 {
		for name := range c.providers {
			c.defaultProvider = name
		}
	}
	return c
}

func (c *Client) resolveProvider(req Request) (ProviderAdapter, error) {

	name := req.Provider
	if name == "" {
		name = c.defaultProvider
	}
	if name == "" {
		return nil, &ConfigurationError{SDKError: SDKError{
			Message: "no provider specified and no default provider configured",
		}}
	}

	adapter, ok := c.providers[name]
	if !ok {
		return nil, &ConfigurationError{SDKError: SDKError{
			Message: fmt.Sprintf("provider %q is not registered", name),
		}}
	}
	return adapter, nil
}

// Complete sends a blocking request through middleware to the resolved provider.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	adapter, err := c.resolveProvider(req)
	if err != nil {
		return nil, err
	}

	if req.Provider == "" {
		req.Provider = adapter.Name()
	}
	if req.Model == "" {
		req.Model = c.model
	}

	handler := func(ctx context.Context, r Request) (*Response, error) {
		return adapter.Complete(ctx, r)
	}

	// Apply middleware in reverse order so first registered runs first.
	for i := len(c.middleware) - 1; i >= 0; i-- {
		mw := c.middleware[i]
		next := handler
		handler = func(ctx context.Context, r Request) (*Response, error) {
			return mw(ctx, r, next)
		}
	}

	return handler(ctx, req)
}

// RequestInvocation sends the conversation with the catalog's tools, forcing
// the catalog's named tool, and returns the tool call the model chose.
//
// Extra choices and extra tool calls are logged and ignored; the first of
// each wins. The conversation is never modified.
func (c *Client) RequestInvocation(ctx context.Context, conversation []Message, catalog Catalog) (*Invocation, error) {
	messages := make([]Message, len(conversation))
	copy(messages, conversation)

	resp, err := c.Complete(ctx, Request{
		Messages:   messages,
		Tools:      catalog.Tools,
		ToolChoice: catalog.Forced,
	})
	if err != nil {
		return nil, err
	}
	return c.selectInvocation(resp)
}

func (c *Client) selectInvocation(resp *Response) (*Invocation, error) {
	if resp == nil || len(resp.Choices) == 0 {
		return nil, &NoChoiceError{SDKError: SDKError{Message: "no choices in response"}}
	}
	if n := len(resp.Choices); n > 1 {
		logging.Warn(c.sink, fmt.Sprintf("response %s returned %d choices; using the first", resp.ID, n))
	}

	calls := resp.Choices[0].Message.ToolCalls
	if len(calls) == 0 {
		return nil, &NoInvocationError{SDKError: SDKError{
			Message: fmt.Sprintf("choice has no tool call (finish_reason=%q)", resp.Choices[0].FinishReason),
		}}
	}
	if len(calls) > 1 {
		for _, extra := range calls[1:] {
			logging.Warn(c.sink, fmt.Sprintf("ignoring extra tool call %s to %s", extra.ID, extra.Function.Name))
		}
	}

	call := calls[0]
	return &Invocation{
		ID:        call.ID,
		Name:      call.Function.Name,
		Arguments: call.Function.Arguments,
	}, nil
}

// Close releases resources held by all registered providers.
func (c *Client) Close() error {
	var firstErr error
	for _, adapter := range c.providers {
		if closer, ok := adapter.(Closer); ok {
			if err := closer.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
