package completion

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestOpenAIRequestWireFormat(t *testing.T) {
	var (
		gotAuth   string
		gotType   string
		gotMethod string
		gotBody   map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		gotMethod = r.Method
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &gotBody)
		io.WriteString(w, `{"id":"chatcmpl-1","model":"gpt-test","choices":[{"index":0,"message":{"role":"assistant","tool_calls":[{"id":"call_9","type":"function","function":{"name":"command_line","arguments":"{\"command\":\"ls\"}"}}]},"finish_reason":"tool_calls"}],"usage":{"prompt_tokens":5,"completion_tokens":7,"total_tokens":12}}`)
	}))
	defer srv.Close()

	adapter := NewOpenAI(srv.Client(), srv.URL, "secret-credential")
	resp, err := adapter.Complete(context.Background(), Request{
		Model:      "gpt-test",
		Messages:   []Message{SystemMessage("sys"), UserMessage("goal")},
		Tools:      testCatalog.Tools,
		ToolChoice: "command_line",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotMethod != http.MethodPost {
		t.Errorf("expected POST, got %s", gotMethod)
	}
	if gotAuth != "Bearer secret-credential" {
		t.Errorf("expected bearer header, got %q", gotAuth)
	}
	if gotType != "application/json" {
		t.Errorf("expected json content type, got %q", gotType)
	}
	if gotBody["model"] != "gpt-test" {
		t.Errorf("expected model in body, got %v", gotBody["model"])
	}
	msgs, _ := gotBody["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %v", gotBody["messages"])
	}
	first, _ := msgs[0].(map[string]any)
	if first["role"] != "system" || first["content"] != "sys" {
		t.Errorf("unexpected first message %v", first)
	}
	tools, _ := gotBody["tools"].([]any)
	if len(tools) != 1 {
		t.Fatalf("expected 1 tool, got %v", gotBody["tools"])
	}
	choice, _ := gotBody["tool_choice"].(map[string]any)
	fn, _ := choice["function"].(map[string]any)
	if choice["type"] != "function" || fn["name"] != "command_line" {
		t.Errorf("expected forced command_line tool choice, got %v", gotBody["tool_choice"])
	}

	if len(resp.Choices) != 1 {
		t.Fatalf("expected 1 choice, got %d", len(resp.Choices))
	}
	call := resp.Choices[0].Message.ToolCalls[0]
	if call.ID != "call_9" || call.Function.Arguments != `{"command":"ls"}` {
		t.Errorf("unexpected tool call %+v", call)
	}
	if resp.Usage.TotalTokens != 12 {
		t.Errorf("expected 12 total tokens, got %d", resp.Usage.TotalTokens)
	}
	if resp.Provider != "openai" {
		t.Errorf("expected provider openai, got %q", resp.Provider)
	}
}

func TestOpenAIEmptyChoicesDecode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"id":"x","choices":[]}`)
	}))
	defer srv.Close()

	resp, err := NewOpenAI(srv.Client(), srv.URL, "k").Complete(context.Background(), Request{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Choices) != 0 {
		t.Errorf("expected zero choices, got %d", len(resp.Choices))
	}
}

func TestOpenAIErrors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
		wantMsg    string
	}{
		{"structured error", 401, `{"error":{"type":"invalid_request_error","message":"Incorrect API key"}}`, 401, "Incorrect API key"},
		{"plain body", 502, "bad gateway", 502, "bad gateway"},
		{"empty body", 500, "", 500, "unexpected status 500"},
		{"not json", 200, "<html>oops</html>", 0, "decoding response"},
		{"missing choices", 200, `{"id":"x"}`, 0, "no choices field"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			_, err := NewOpenAI(srv.Client(), srv.URL, "k").Complete(context.Background(), Request{})
			var protoErr *ProtocolError
			if !errors.As(err, &protoErr) {
				t.Fatalf("expected ProtocolError, got %T: %v", err, err)
			}
			if protoErr.StatusCode != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, protoErr.StatusCode)
			}
			if !strings.Contains(protoErr.Error(), tt.wantMsg) {
				t.Errorf("expected %q in %q", tt.wantMsg, protoErr.Error())
			}
		})
	}
}

func TestOpenAITransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewOpenAI(nil, url, "k").Complete(context.Background(), Request{})
	var transport *TransportError
	if !errors.As(err, &transport) {
		t.Fatalf("expected TransportError, got %T: %v", err, err)
	}
}

func TestOpenAITimeoutIsTransportError(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	client := &http.Client{Timeout: 50 * time.Millisecond}
	_, err := NewOpenAI(client, srv.URL, "k").Complete(context.Background(), Request{})
	var transport *TransportError
	if !errors.As(err, &transport) {
		t.Fatalf("expected TransportError, got %T: %v", err, err)
	}
}

func TestOpenAIStringHidesCredential(t *testing.T) {
	a := NewOpenAI(nil, "https://api.example.com/v1/chat/completions", "sk-very-secret")
	if strings.Contains(a.String(), "sk-very-secret") {
		t.Errorf("credential leaked in %q", a.String())
	}
}

func TestToolChoiceJSON(t *testing.T) {
	if got := string(toolChoiceJSON("")); got != `"auto"` {
		t.Errorf("expected auto, got %s", got)
	}
	var forced map[string]any
	if err := json.Unmarshal(toolChoiceJSON("command_line"), &forced); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if forced["type"] != "function" {
		t.Errorf("expected function type, got %v", forced["type"])
	}
}

func TestBuildOpenAIRequestOmitsToolChoiceWithoutTools(t *testing.T) {
	wire := buildOpenAIRequest(Request{Model: "m", ToolChoice: "command_line"})
	data, _ := json.Marshal(wire)
	if strings.Contains(string(data), "tool_choice") {
		t.Errorf("tool_choice sent without tools: %s", data)
	}
}
