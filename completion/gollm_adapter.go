package completion

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/teilomillet/gollm"
)

// GollmAdapter wraps a gollm.LLM instance and implements ProviderAdapter.
// gollm returns plain text, so tool calls are recovered from JSON embedded
// in that text.
type GollmAdapter struct {
	provider string
	llm      gollm.LLM
	model    string
}

// GollmAdapterOption configures a GollmAdapter.
type GollmAdapterOption func(*gollmAdapterConfig)

type gollmAdapterConfig struct {
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
	extraOpts   []gollm.ConfigOption
}

// WithGollmModel sets the default model for the adapter.
func WithGollmModel(model string) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		c.model = model
	}
}

// WithMaxTokens sets the default max tokens.
func WithMaxTokens(n int) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		c.maxTokens = n
	}
}

// WithTemperature sets the default temperature.
func WithTemperature(t float64) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		c.temperature = t
	}
}

// WithGollmOptions adds extra gollm configuration options.
func WithGollmOptions(opts ...gollm.ConfigOption) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		c.extraOpts = append(c.extraOpts, opts...)
	}
}

// NewGollmAdapter creates a GollmAdapter for a gollm provider such as
// "openai", "anthropic", or "ollama".
func NewGollmAdapter(provider string, apiKey string, opts ...GollmAdapterOption) (*GollmAdapter, error) {
	cfg := &gollmAdapterConfig{
		apiKey:      apiKey,
		maxTokens:   4096,
		temperature: 0.2,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.model == "" {
		return nil, &ConfigurationError{SDKError: SDKError{
			Message: fmt.Sprintf("gollm provider %s needs a model identifier", provider),
		}}
	}

	gollmOpts := []gollm.ConfigOption{
		gollm.SetProvider(provider),
		gollm.SetModel(cfg.model),
		gollm.SetMaxTokens(cfg.maxTokens),
		gollm.SetTemperature(cfg.temperature),
		gollm.SetMaxRetries(0),
		gollm.SetLogLevel(gollm.LogLevelWarn),
	}
	if cfg.apiKey != "" {
		gollmOpts = append(gollmOpts, gollm.SetAPIKey(cfg.apiKey))
	}
	gollmOpts = append(gollmOpts, cfg.extraOpts...)

	llm, err := gollm.NewLLM(gollmOpts...)
	if err != nil {
		return nil, &ConfigurationError{SDKError: SDKError{
			Message: fmt.Sprintf("creating gollm LLM for provider %s", provider),
			Cause:   err,
		}}
	}

	return NewGollmAdapterFromLLM(provider, cfg.model, llm), nil
}

// NewGollmAdapterFromLLM wraps an existing gollm.LLM instance already
// configured for model.
func NewGollmAdapterFromLLM(provider, model string, llm gollm.LLM) *GollmAdapter {
	return &GollmAdapter{
		provider: provider,
		llm:      llm,
		model:    model,
	}
}

// Name returns the provider identifier prefixed with "gollm:".
func (a *GollmAdapter) Name() string {
	return "gollm:" + a.provider
}

// Complete renders the conversation into a gollm prompt and parses the
// generated text back into a single choice.
func (a *GollmAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	if req.Model != "" && req.Model != a.model {
		a.llm.SetOption("model", req.Model)
	}

	text, err := a.llm.Generate(ctx, a.translateRequest(req))
	if err != nil {
		return nil, a.translateError(err)
	}
	return a.buildResponse(req, text), nil
}

// transcript splits the conversation into gollm's system prompt and a
// single role-labelled input text.
func transcript(messages []Message) (system string, input string) {
	var sys []string
	var turns []string
	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			sys = append(sys, msg.Content)
		case RoleUser:
			turns = append(turns, "[User]: "+msg.Content)
		case RoleAssistant:
			turns = append(turns, "[Assistant]: "+msg.Content)
		}
	}
	return strings.Join(sys, "\n"), strings.Join(turns, "\n\n")
}

func (a *GollmAdapter) translateRequest(req Request) *gollm.Prompt {
	system, input := transcript(req.Messages)

	var promptOpts []gollm.PromptOption
	if system != "" {
		promptOpts = append(promptOpts, gollm.WithSystemPrompt(system, gollm.CacheTypeEphemeral))
	}

	if len(req.Tools) > 0 {
		tools := make([]gollm.Tool, 0, len(req.Tools))
		for _, t := range req.Tools {
			tools = append(tools, gollm.Tool{
				Type: "function",
				Function: gollm.Function{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  t.Parameters,
				},
			})
		}
		promptOpts = append(promptOpts, gollm.WithTools(tools))

		// gollm only knows modes, so a forced tool becomes "required".
		mode := "auto"
		if req.ToolChoice != "" {
			mode = "required"
		}
		promptOpts = append(promptOpts, gollm.WithToolChoice(mode))
	}

	return gollm.NewPrompt(input, promptOpts...)
}

// buildResponse wraps generated text in a one-choice response. Empty text
// yields no choices.
func (a *GollmAdapter) buildResponse(req Request, text string) *Response {
	model := req.Model
	if model == "" {
		model = a.model
	}
	resp := &Response{
		ID:       "resp_" + uuid.New().String()[:8],
		Model:    model,
		Provider: a.Name(),
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return resp
	}

	msg := ChoiceMessage{Role: RoleAssistant}
	finish := "stop"
	if calls := parseToolCalls(text); len(calls) > 0 {
		msg.ToolCalls = calls
		finish = "tool_calls"
	} else {
		msg.Content = text
	}
	resp.Choices = []Choice{{Index: 0, Message: msg, FinishReason: finish}}
	return resp
}

type embeddedCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// parseToolCalls extracts tool calls written as JSON into the response
// text, either a [{"name":...,"arguments":...}] array or a single object.
func parseToolCalls(text string) []ToolCall {
	var raw []embeddedCall

	if start := strings.Index(text, `[{"name"`); start != -1 {
		dec := json.NewDecoder(strings.NewReader(text[start:]))
		if err := dec.Decode(&raw); err != nil {
			raw = nil
		}
	}
	if raw == nil {
		if start := strings.Index(text, `{"name"`); start != -1 {
			var one embeddedCall
			dec := json.NewDecoder(strings.NewReader(text[start:]))
			if err := dec.Decode(&one); err == nil {
				raw = []embeddedCall{one}
			}
		}
	}

	var calls []ToolCall
	for _, rc := range raw {
		if rc.Name == "" {
			continue
		}
		calls = append(calls, ToolCall{
			ID:   "call_" + uuid.New().String()[:8],
			Type: "function",
			Function: FunctionCall{
				Name:      rc.Name,
				Arguments: argumentsText(rc.Arguments),
			},
		})
	}
	return calls
}

// argumentsText normalizes arguments to the string form the wire protocol
// uses: an embedded JSON string is unquoted, anything else is kept verbatim.
func argumentsText(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	return string(raw)
}

// translateError classifies a gollm error by its message. gollm does not
// expose status codes, so the code is recovered from the text when present.
func (a *GollmAdapter) translateError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	msgLower := strings.ToLower(msg)

	protocol := func(status int) error {
		return &ProtocolError{SDKError: SDKError{Message: msg, Cause: err}, Provider: a.Name(), StatusCode: status}
	}

	switch {
	case strings.Contains(msgLower, "context deadline exceeded") || strings.Contains(msgLower, "timeout") ||
		strings.Contains(msgLower, "context canceled") || strings.Contains(msgLower, "connection refused") ||
		strings.Contains(msgLower, "no such host") || strings.Contains(msgLower, "connection reset"):
		return &TransportError{SDKError: SDKError{Message: msg, Cause: err}}
	case strings.Contains(msgLower, "401") || strings.Contains(msgLower, "unauthorized") || strings.Contains(msgLower, "invalid api key"):
		return protocol(401)
	case strings.Contains(msgLower, "403") || strings.Contains(msgLower, "forbidden"):
		return protocol(403)
	case strings.Contains(msgLower, "404") || strings.Contains(msgLower, "not found"):
		return protocol(404)
	case strings.Contains(msgLower, "429") || strings.Contains(msgLower, "rate limit"):
		return protocol(429)
	case strings.Contains(msgLower, "500") || strings.Contains(msgLower, "internal server"):
		return protocol(500)
	default:
		return protocol(0)
	}
}
