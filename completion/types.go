package completion

import "fmt"

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the three roles the completion
// service accepts.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// Message is a single role-tagged entry in a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// SystemMessage creates a system message.
func SystemMessage(text string) Message {
	return Message{Role: RoleSystem, Content: text}
}

// UserMessage creates a user message.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: text}
}

// AssistantMessage creates an assistant message.
func AssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Content: text}
}

// ToolDefinition describes a capability the model may invoke. Parameters is
// a JSON Schema object.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Catalog is the set of tools offered on a request together with the name of
// the tool the model is forced to call. An empty Forced lets the model pick.
type Catalog struct {
	Tools  []ToolDefinition
	Forced string
}

// Lookup returns the tool definition with the given name.
func (c Catalog) Lookup(name string) (ToolDefinition, bool) {
	for _, t := range c.Tools {
		if t.Name == name {
			return t, true
		}
	}
	return ToolDefinition{}, false
}

// Request is a provider-neutral completion request.
type Request struct {
	Model    string
	Provider string
	Messages []Message
	Tools    []ToolDefinition
	// ToolChoice names the tool the model must call; empty means "auto".
	ToolChoice string
}

// FunctionCall is the function half of a tool call.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolCall is one structured invocation returned in a choice.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// ChoiceMessage is the assistant message carried by a choice.
type ChoiceMessage struct {
	Role      Role       `json:"role"`
	Content   string     `json:"content,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// Choice is one candidate completion.
type Choice struct {
	Index        int           `json:"index"`
	Message      ChoiceMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

// Usage tracks token consumption reported by the provider.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a provider-neutral completion response.
type Response struct {
	ID       string
	Model    string
	Provider string
	Choices  []Choice
	Usage    Usage
}

// Invocation is the tool call selected from a response.
type Invocation struct {
	ID        string
	Name      string
	Arguments string
}

// String renders the invocation the way it is recorded in the conversation.
func (i Invocation) String() string {
	return fmt.Sprintf("Function Name: %s, Arguments: %s", i.Name, i.Arguments)
}

