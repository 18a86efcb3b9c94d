package agentloop

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"github.com/martinemde/shellagent/completion"
	"github.com/martinemde/shellagent/logging"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// scriptedCompleter returns one scripted reply per call and records the
// conversation it was sent.
type scriptedCompleter struct {
	replies []scriptedReply
	calls   int
	seen    [][]completion.Message
	catalog completion.Catalog
}

type scriptedReply struct {
	args string
	err  error
}

func (s *scriptedCompleter) RequestInvocation(ctx context.Context, conv []completion.Message, catalog completion.Catalog) (*completion.Invocation, error) {
	s.calls++
	s.seen = append(s.seen, conv)
	s.catalog = catalog
	if len(s.replies) == 0 {
		return &completion.Invocation{ID: "call", Name: CommandToolName, Arguments: `{"command":"true"}`}, nil
	}
	reply := s.replies[0]
	s.replies = s.replies[1:]
	if reply.err != nil {
		return nil, reply.err
	}
	return &completion.Invocation{ID: "call", Name: CommandToolName, Arguments: reply.args}, nil
}

func script(args ...string) *scriptedCompleter {
	s := &scriptedCompleter{}
	for _, a := range args {
		s.replies = append(s.replies, scriptedReply{args: a})
	}
	return s
}

// fakeExecutor records commands and returns canned results.
type fakeExecutor struct {
	commands []string
	result   *CommandResult
	err      error
}

func (f *fakeExecutor) Execute(ctx context.Context, command string) (*CommandResult, error) {
	f.commands = append(f.commands, command)
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &CommandResult{Stdout: "ok\n", Succeeded: true}, nil
}

func (f *fakeExecutor) WorkingDirectory() string { return "/sandbox" }

type fakeOperator struct {
	questions []string
	answer    string
}

func (o *fakeOperator) Ask(ctx context.Context, question string) (string, error) {
	o.questions = append(o.questions, question)
	return o.answer, nil
}

func TestRunCreatesFileThenFinishes(t *testing.T) {
	exec := newTestExecutor(t)
	completer := script(
		`{"command":"touch a.txt && echo ok > a.txt"}`,
		`{"command":"","finished_working":"created a.txt"}`,
	)
	rec := &logging.Recorder{}
	agent := NewAgent(completer, exec, Config{MaxIterations: 10}, WithSink(rec))
	conv := NewConversation("sys", "create file a.txt containing 'ok'")

	outcome, err := agent.Run(context.Background(), conv)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := &Outcome{State: Finished, Message: "created a.txt", Iterations: 2, CommandsRun: 1}
	if diff := cmp.Diff(want, outcome); diff != "" {
		t.Errorf("outcome mismatch (-want +got):\n%s", diff)
	}
	if completer.calls != 2 {
		t.Errorf("expected 2 client calls, got %d", completer.calls)
	}

	data, err := os.ReadFile(filepath.Join(exec.WorkingDirectory(), "a.txt"))
	if err != nil || string(data) != "ok\n" {
		t.Errorf("expected a.txt to contain ok, got %q (%v)", data, err)
	}
	if !rec.Contains("AI has finished working and said 'created a.txt'.") {
		t.Errorf("expected finish log, got %v", rec.Entries())
	}
	if !rec.Contains("[Command 1]: touch a.txt") {
		t.Errorf("expected command log, got %v", rec.Entries())
	}
}

func TestRunAppendsTwoMessagesPerCommand(t *testing.T) {
	exec := newTestExecutor(t)
	completer := script(`{"command":"echo hi"}`, `{"finished_working":"done"}`)
	agent := NewAgent(completer, exec, Config{MaxIterations: 5})
	conv := NewConversation("sys", "goal")

	if _, err := agent.Run(context.Background(), conv); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msgs := conv.Snapshot()
	if len(msgs) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(msgs))
	}
	if msgs[2].Role != completion.RoleAssistant || msgs[2].Content != `Function Name: command_line, Arguments: {"command":"echo hi"}` {
		t.Errorf("unexpected assistant message %+v", msgs[2])
	}
	if msgs[3].Role != completion.RoleUser || !strings.Contains(msgs[3].Content, "Output from CLI: hi\n.") {
		t.Errorf("unexpected user message %+v", msgs[3])
	}

	// The second request carried the appended messages.
	if len(completer.seen[1]) != 4 {
		t.Errorf("expected second request to carry 4 messages, got %d", len(completer.seen[1]))
	}
}

func TestRunNonzeroExitContinues(t *testing.T) {
	exec := newTestExecutor(t)
	completer := script(`{"command":"ls /definitely/not/here"}`, `{"finished_working":"gave up"}`)
	agent := NewAgent(completer, exec, Config{MaxIterations: 5})
	conv := NewConversation("sys", "goal")

	outcome, err := agent.Run(context.Background(), conv)
	if err != nil {
		t.Fatalf("nonzero exit must not fail the run: %v", err)
	}
	if outcome.State != Finished {
		t.Errorf("expected Finished, got %s", outcome.State)
	}
	feedback := conv.Snapshot()[3]
	if feedback.Role != completion.RoleUser || !strings.Contains(feedback.Content, "exited with status") {
		t.Errorf("expected failure feedback, got %+v", feedback)
	}
}

func TestRunMalformedArguments(t *testing.T) {
	exec := &fakeExecutor{}
	agent := NewAgent(script(`{"command":`), exec, Config{MaxIterations: 5})
	conv := NewConversation("sys", "goal")

	outcome, err := agent.Run(context.Background(), conv)
	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("expected DecodeError, got %T: %v", err, err)
	}
	if outcome.State != Failed {
		t.Errorf("expected Failed, got %s", outcome.State)
	}
	if len(exec.commands) != 0 {
		t.Errorf("no command should run, got %v", exec.commands)
	}
	if conv.Len() != 2 {
		t.Errorf("expected conversation unchanged, got %d messages", conv.Len())
	}
}

func TestRunEmptyFieldsIsDecodeError(t *testing.T) {
	agent := NewAgent(script(`{"command":"","finished_working":""}`), &fakeExecutor{}, Config{MaxIterations: 5})
	_, err := agent.Run(context.Background(), NewConversation("sys", "goal"))
	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("expected DecodeError, got %T: %v", err, err)
	}
}

func TestRunNoChoiceLeavesConversationUnchanged(t *testing.T) {
	noChoice := &completion.NoChoiceError{SDKError: completion.SDKError{Message: "no choices in response"}}
	completer := &scriptedCompleter{replies: []scriptedReply{{err: noChoice}}}
	rec := &logging.Recorder{}
	agent := NewAgent(completer, &fakeExecutor{}, Config{MaxIterations: 5}, WithSink(rec))
	conv := NewConversation("sys", "goal")
	before := conv.Snapshot()

	outcome, err := agent.Run(context.Background(), conv)
	var target *completion.NoChoiceError
	if !errors.As(err, &target) {
		t.Fatalf("expected NoChoiceError, got %T: %v", err, err)
	}
	if outcome.State != Failed {
		t.Errorf("expected Failed, got %s", outcome.State)
	}
	if diff := cmp.Diff(before, conv.Snapshot()); diff != "" {
		t.Errorf("conversation changed (-before +after):\n%s", diff)
	}
	if !rec.Contains("An error occurred") {
		t.Errorf("expected error log, got %v", rec.Entries())
	}
}

func TestRunTransportErrorIsFatal(t *testing.T) {
	transport := &completion.TransportError{SDKError: completion.SDKError{Message: "connection refused"}}
	completer := &scriptedCompleter{replies: []scriptedReply{{args: `{"command":"true"}`}, {err: transport}}}
	exec := &fakeExecutor{}
	agent := NewAgent(completer, exec, Config{MaxIterations: 5})

	outcome, err := agent.Run(context.Background(), NewConversation("sys", "goal"))
	if !errors.Is(err, transport) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if outcome.Iterations != 2 || outcome.CommandsRun != 1 {
		t.Errorf("unexpected counts %+v", outcome)
	}
}

func TestRunIterationLimit(t *testing.T) {
	completer := &scriptedCompleter{}
	exec := &fakeExecutor{}
	rec := &logging.Recorder{}
	agent := NewAgent(completer, exec, Config{MaxIterations: 3}, WithSink(rec))

	outcome, err := agent.Run(context.Background(), NewConversation("sys", "goal"))
	if err != nil {
		t.Fatalf("iteration limit is not an error: %v", err)
	}
	if outcome.State != IterationLimitReached {
		t.Errorf("expected IterationLimitReached, got %s", outcome.State)
	}
	if completer.calls != 3 {
		t.Errorf("expected exactly 3 client calls, got %d", completer.calls)
	}
	if len(exec.commands) != 3 {
		t.Errorf("expected 3 commands, got %d", len(exec.commands))
	}
	if !rec.Contains("Max iterations reached.") {
		t.Errorf("expected limit log, got %v", rec.Entries())
	}
}

func TestRunZeroIterationsNeverCallsClient(t *testing.T) {
	completer := &scriptedCompleter{}
	agent := NewAgent(completer, &fakeExecutor{}, Config{MaxIterations: 0})

	outcome, err := agent.Run(context.Background(), NewConversation("sys", "goal"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.State != IterationLimitReached || completer.calls != 0 {
		t.Errorf("expected immediate limit without calls, got %+v after %d calls", outcome, completer.calls)
	}
}

func TestRunSpawnFailureIsFatal(t *testing.T) {
	spawn := &SpawnError{Shell: "/bin/sh", Dir: "/missing", Cause: os.ErrNotExist}
	exec := &fakeExecutor{err: spawn}
	agent := NewAgent(script(`{"command":"ls"}`), exec, Config{MaxIterations: 5})
	conv := NewConversation("sys", "goal")

	outcome, err := agent.Run(context.Background(), conv)
	var target *SpawnError
	if !errors.As(err, &target) {
		t.Fatalf("expected SpawnError, got %T: %v", err, err)
	}
	if outcome.State != Failed {
		t.Errorf("expected Failed, got %s", outcome.State)
	}
	if conv.Len() != 2 {
		t.Errorf("expected no messages appended, got %d", conv.Len())
	}
}

func TestRunCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	completer := &scriptedCompleter{}
	agent := NewAgent(completer, &fakeExecutor{}, Config{MaxIterations: 5})

	_, err := agent.Run(ctx, NewConversation("sys", "goal"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if completer.calls != 0 {
		t.Errorf("expected no client calls, got %d", completer.calls)
	}
}

func TestRunTruncatesFeedback(t *testing.T) {
	exec := &fakeExecutor{result: &CommandResult{Stdout: strings.Repeat("z", 500), Succeeded: true}}
	agent := NewAgent(script(`{"command":"cat big"}`, `{"finished_working":"ok"}`), exec, Config{MaxIterations: 5, MaxOutputChars: 100})
	conv := NewConversation("sys", "goal")

	if _, err := agent.Run(context.Background(), conv); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	feedback := conv.Snapshot()[3].Content
	if strings.Count(feedback, "z") != 100 {
		t.Errorf("expected 100 characters of output, got %d", strings.Count(feedback, "z"))
	}
	if !strings.Contains(feedback, "truncated") {
		t.Errorf("expected truncation notice in %q", feedback)
	}
}

func TestRunLoopDetectionOnlyWarns(t *testing.T) {
	completer := script(`{"command":"ls"}`, `{"command":"ls"}`, `{"command":"ls"}`, `{"finished_working":"ok"}`)
	rec := &logging.Recorder{}
	agent := NewAgent(completer, &fakeExecutor{}, Config{MaxIterations: 10, LoopDetectionWindow: 3}, WithSink(rec))
	conv := NewConversation("sys", "goal")

	outcome, err := agent.Run(context.Background(), conv)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.State != Finished {
		t.Errorf("expected Finished, got %s", outcome.State)
	}
	if !rec.Contains("loop detected") {
		t.Errorf("expected loop warning, got %v", rec.Entries())
	}
	if conv.Len() != 2+3*2 {
		t.Errorf("loop detection must not add messages, got %d", conv.Len())
	}
}

func TestRunClarification(t *testing.T) {
	op := &fakeOperator{answer: "use notes.txt"}
	completer := script(`{"command":"","clarification_request":"which file?"}`, `{"finished_working":"ok"}`)
	agent := NewAgent(completer, &fakeExecutor{}, Config{MaxIterations: 5}, WithOperator(op))
	conv := NewConversation("sys", "goal")

	outcome, err := agent.Run(context.Background(), conv)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.State != Finished || outcome.CommandsRun != 0 {
		t.Errorf("unexpected outcome %+v", outcome)
	}
	if len(op.questions) != 1 || op.questions[0] != "which file?" {
		t.Errorf("unexpected questions %v", op.questions)
	}
	if !strings.Contains(conv.Snapshot()[3].Content, "use notes.txt") {
		t.Errorf("expected operator answer in conversation, got %+v", conv.Snapshot()[3])
	}
	props, _ := completer.catalog.Tools[0].Parameters["properties"].(map[string]any)
	if _, ok := props["clarification_request"]; !ok {
		t.Error("expected clarification to be advertised when an operator is set")
	}
}

func TestRunClarificationWithoutOperator(t *testing.T) {
	agent := NewAgent(script(`{"clarification_request":"which file?"}`), &fakeExecutor{}, Config{MaxIterations: 5})
	_, err := agent.Run(context.Background(), NewConversation("sys", "goal"))
	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("expected DecodeError, got %T: %v", err, err)
	}
}

func TestRunWarnsOnUnknownTool(t *testing.T) {
	completer := &renamingCompleter{name: "shell"}
	rec := &logging.Recorder{}
	agent := NewAgent(completer, &fakeExecutor{}, Config{MaxIterations: 1}, WithSink(rec))

	if _, err := agent.Run(context.Background(), NewConversation("sys", "goal")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !rec.Contains(`unknown tool "shell"`) {
		t.Errorf("expected unknown tool warning, got %v", rec.Entries())
	}
}

type renamingCompleter struct{ name string }

func (r *renamingCompleter) RequestInvocation(ctx context.Context, conv []completion.Message, catalog completion.Catalog) (*completion.Invocation, error) {
	return &completion.Invocation{ID: "x", Name: r.name, Arguments: `{"command":"true"}`}, nil
}

func TestStateString(t *testing.T) {
	for state, want := range map[State]string{
		Running:               "running",
		Finished:              "finished",
		Failed:                "failed",
		IterationLimitReached: "iteration_limit_reached",
	} {
		if state.String() != want {
			t.Errorf("expected %q, got %q", want, state.String())
		}
	}
}

func TestAgentIDIsUnique(t *testing.T) {
	a := NewAgent(&scriptedCompleter{}, &fakeExecutor{}, Config{})
	b := NewAgent(&scriptedCompleter{}, &fakeExecutor{}, Config{})
	if a.ID() == "" || a.ID() == b.ID() {
		t.Errorf("expected distinct ids, got %q and %q", a.ID(), b.ID())
	}
}
