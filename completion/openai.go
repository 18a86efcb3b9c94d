package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultRequestTimeout bounds a chat-completions round trip when the caller
// does not supply an http.Client.
const DefaultRequestTimeout = 120 * time.Second

// OpenAIAdapter speaks the OpenAI chat-completions wire format to any
// compatible endpoint.
type OpenAIAdapter struct {
	httpClient *http.Client
	endpoint   string
	credential string
}

// NewOpenAI creates an adapter posting to endpoint, the full URL of the
// chat-completions resource. credential is sent as a bearer token and is
// never logged. A nil httpClient gets DefaultRequestTimeout.
func NewOpenAI(httpClient *http.Client, endpoint, credential string) *OpenAIAdapter {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultRequestTimeout}
	}
	return &OpenAIAdapter{
		httpClient: httpClient,
		endpoint:   endpoint,
		credential: credential,
	}
}

// Name returns "openai".
func (a *OpenAIAdapter) Name() string { return "openai" }

// Complete posts req and decodes the response.
func (a *OpenAIAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	body, err := json.Marshal(buildOpenAIRequest(req))
	if err != nil {
		return nil, &ProtocolError{SDKError: SDKError{Message: "marshaling request", Cause: err}, Provider: a.Name()}
	}

	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{SDKError: SDKError{Message: "creating request", Cause: err}}
	}
	httpRequest.Header.Set("Content-Type", "application/json")
	httpRequest.Header.Set("Authorization", "Bearer "+a.credential)

	httpResponse, err := a.httpClient.Do(httpRequest)
	if err != nil {
		return nil, &TransportError{SDKError: SDKError{Message: "sending request", Cause: err}}
	}
	defer httpResponse.Body.Close()

	if httpResponse.StatusCode != http.StatusOK {
		return nil, a.readProviderError(httpResponse)
	}

	var wire openaiResponse
	if err := json.NewDecoder(httpResponse.Body).Decode(&wire); err != nil {
		return nil, &ProtocolError{SDKError: SDKError{Message: "decoding response", Cause: err}, Provider: a.Name()}
	}
	if wire.Choices == nil {
		return nil, &ProtocolError{SDKError: SDKError{Message: "response has no choices field"}, Provider: a.Name()}
	}
	return wire.toResponse(a.Name()), nil
}

// readProviderError parses {"error":{"type":"...","message":"..."}} when
// present and falls back to the raw body.
func (a *OpenAIAdapter) readProviderError(httpResponse *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(httpResponse.Body, 4096))

	var wireError struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &wireError) == nil && wireError.Error.Message != "" {
		return ErrorFromStatusCode(httpResponse.StatusCode, wireError.Error.Message, a.Name(), wireError.Error.Type)
	}
	return ErrorFromStatusCode(httpResponse.StatusCode, string(bytes.TrimSpace(body)), a.Name(), "")
}

// Wire types.

type openaiRequest struct {
	Model      string          `json:"model"`
	Messages   []Message       `json:"messages"`
	Tools      []openaiTool    `json:"tools,omitempty"`
	ToolChoice json.RawMessage `json:"tool_choice,omitempty"`
}

type openaiTool struct {
	Type     string             `json:"type"`
	Function openaiToolFunction `json:"function"`
}

type openaiToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters"`
}

type openaiResponse struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

func buildOpenAIRequest(req Request) openaiRequest {
	wire := openaiRequest{
		Model:    req.Model,
		Messages: req.Messages,
	}
	for _, t := range req.Tools {
		wire.Tools = append(wire.Tools, openaiTool{
			Type: "function",
			Function: openaiToolFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	if len(wire.Tools) > 0 {
		wire.ToolChoice = toolChoiceJSON(req.ToolChoice)
	}
	return wire
}

// toolChoiceJSON forces a named function, or lets the model decide.
func toolChoiceJSON(name string) json.RawMessage {
	if name == "" {
		return json.RawMessage(`"auto"`)
	}
	data, _ := json.Marshal(map[string]any{
		"type":     "function",
		"function": map[string]string{"name": name},
	})
	return data
}

func (w *openaiResponse) toResponse(provider string) *Response {
	return &Response{
		ID:       w.ID,
		Model:    w.Model,
		Provider: provider,
		Choices:  w.Choices,
		Usage:    w.Usage,
	}
}

// String hides the credential.
func (a *OpenAIAdapter) String() string {
	return fmt.Sprintf("OpenAIAdapter{endpoint: %s}", a.endpoint)
}
