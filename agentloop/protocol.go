package agentloop

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	"github.com/martinemde/shellagent/completion"
)

// CommandToolName is the single capability offered to the model.
const CommandToolName = "command_line"

const commandToolDescription = "Run one shell command in the working directory and receive its output. " +
	"Set finished_working instead of command once the goal is complete."

// commandLineArgs is the argument shape of the command_line capability.
type commandLineArgs struct {
	Command         string `json:"command" jsonschema_description:"The shell command to execute in the working directory."`
	FinishedWorking string `json:"finished_working,omitempty" jsonschema_description:"Leave command empty and set this to a short summary when the goal has been accomplished."`
}

// clarifyingArgs adds the operator question used when clarification is on.
type clarifyingArgs struct {
	Command              string `json:"command" jsonschema_description:"The shell command to execute in the working directory."`
	FinishedWorking      string `json:"finished_working,omitempty" jsonschema_description:"Leave command empty and set this to a short summary when the goal has been accomplished."`
	ClarificationRequest string `json:"clarification_request,omitempty" jsonschema_description:"Leave command empty and ask the operator a question when the goal is ambiguous."`
}

// CommandKind discriminates ParsedCommand values.
type CommandKind int

const (
	Malformed CommandKind = iota
	RunCommand
	FinishSignal
	AwaitClarification
)

func (k CommandKind) String() string {
	switch k {
	case RunCommand:
		return "run_command"
	case FinishSignal:
		return "finish_signal"
	case AwaitClarification:
		return "await_clarification"
	default:
		return "malformed"
	}
}

// ParsedCommand is the decoded form of a tool invocation's arguments. Text
// holds the command, the finishing message, or the question depending on
// Kind; Reason explains a Malformed value.
type ParsedCommand struct {
	Kind   CommandKind
	Text   string
	Reason string
}

// Decode interprets raw invocation arguments. It never fails: anything it
// cannot use decodes to Malformed.
func Decode(raw string) ParsedCommand {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil || fields == nil {
		return ParsedCommand{Kind: Malformed, Reason: "arguments are not a JSON object"}
	}

	command, err := stringField(fields, "command")
	if err != nil {
		return ParsedCommand{Kind: Malformed, Reason: err.Error()}
	}
	if command != "" {
		return ParsedCommand{Kind: RunCommand, Text: command}
	}

	finished, err := stringField(fields, "finished_working")
	if err != nil {
		return ParsedCommand{Kind: Malformed, Reason: err.Error()}
	}
	if finished != "" {
		return ParsedCommand{Kind: FinishSignal, Text: finished}
	}

	question, err := stringField(fields, "clarification_request")
	if err != nil {
		return ParsedCommand{Kind: Malformed, Reason: err.Error()}
	}
	if question != "" {
		return ParsedCommand{Kind: AwaitClarification, Text: question}
	}

	return ParsedCommand{Kind: Malformed, Reason: "neither command nor finished_working is set"}
}

// stringField reads an optional string. Absent and null read as "".
func stringField(fields map[string]json.RawMessage, name string) (string, error) {
	raw, ok := fields[name]
	if !ok || string(raw) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("%s is not a string", name)
	}
	return s, nil
}

// Catalog returns the tool catalog offered on every request, with the
// command_line tool forced. The clarification field is only advertised
// when clarify is set.
func Catalog(clarify bool) completion.Catalog {
	var v any = &commandLineArgs{}
	if clarify {
		v = &clarifyingArgs{}
	}
	return completion.Catalog{
		Tools: []completion.ToolDefinition{{
			Name:        CommandToolName,
			Description: commandToolDescription,
			Parameters:  parameterSchema(v),
		}},
		Forced: CommandToolName,
	}
}

// parameterSchema reflects v into an inline JSON Schema object.
func parameterSchema(v any) map[string]any {
	r := &jsonschema.Reflector{
		DoNotReference:            true,
		ExpandedStruct:            true,
		AllowAdditionalProperties: false,
	}
	data, err := json.Marshal(r.Reflect(v))
	if err != nil {
		panic(fmt.Sprintf("reflecting tool schema: %v", err))
	}
	var schema map[string]any
	if err := json.Unmarshal(data, &schema); err != nil {
		panic(fmt.Sprintf("decoding tool schema: %v", err))
	}
	delete(schema, "$schema")
	delete(schema, "$id")
	return schema
}
