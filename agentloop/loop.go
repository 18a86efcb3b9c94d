package agentloop

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/martinemde/shellagent/completion"
	"github.com/martinemde/shellagent/logging"
)

// Completer asks the model for its next tool invocation.
type Completer interface {
	RequestInvocation(ctx context.Context, conversation []completion.Message, catalog completion.Catalog) (*completion.Invocation, error)
}

// Operator answers clarification questions from the model.
type Operator interface {
	Ask(ctx context.Context, question string) (string, error)
}

// State is the agent loop's lifecycle state.
type State int

const (
	Running State = iota
	Finished
	Failed
	IterationLimitReached
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Finished:
		return "finished"
	case Failed:
		return "failed"
	case IterationLimitReached:
		return "iteration_limit_reached"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Outcome summarizes a finished run.
type Outcome struct {
	State State
	// Message is the model's finishing message when State is Finished.
	Message     string
	Iterations  int
	CommandsRun int
}

// DecodeError reports invocation arguments the loop cannot act on.
type DecodeError struct {
	Arguments string
	Reason    string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding invocation arguments %q: %s", e.Arguments, e.Reason)
}

// Config bounds a run.
type Config struct {
	// MaxIterations is the number of completion requests allowed.
	MaxIterations int
	// MaxOutputChars and MaxOutputLines cap the output fed back to the
	// model. Zero selects the package defaults.
	MaxOutputChars int
	MaxOutputLines int
	// LoopDetectionWindow is the number of recent commands checked for a
	// repeating pattern. Zero disables detection.
	LoopDetectionWindow int
}

// Agent drives the request, execute, append cycle for one goal.
type Agent struct {
	id        string
	completer Completer
	executor  CommandExecutor
	operator  Operator
	sink      logging.Sink
	config    Config
}

// AgentOption configures an Agent.
type AgentOption func(*Agent)

// WithSink sets the log sink.
func WithSink(sink logging.Sink) AgentOption {
	return func(a *Agent) {
		a.sink = sink
	}
}

// WithOperator enables clarification requests answered by op.
func WithOperator(op Operator) AgentOption {
	return func(a *Agent) {
		a.operator = op
	}
}

// NewAgent creates an agent.
func NewAgent(completer Completer, executor CommandExecutor, cfg Config, opts ...AgentOption) *Agent {
	if cfg.MaxOutputChars == 0 {
		cfg.MaxOutputChars = DefaultMaxOutputChars
	}
	if cfg.MaxOutputLines == 0 {
		cfg.MaxOutputLines = DefaultMaxOutputLines
	}
	a := &Agent{
		id:        uuid.New().String(),
		completer: completer,
		executor:  executor,
		sink:      logging.Nop,
		config:    cfg,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ID identifies this agent in logs.
func (a *Agent) ID() string { return a.id }

// Catalog returns the tool catalog the agent offers on every request.
func (a *Agent) Catalog() completion.Catalog {
	return Catalog(a.operator != nil)
}

// Run loops until the model signals it is finished, the iteration limit is
// reached, or an error occurs. conv must already hold the system message
// and the goal. The returned Outcome is non-nil even when err is not.
func (a *Agent) Run(ctx context.Context, conv *Conversation) (*Outcome, error) {
	outcome := &Outcome{State: Running}
	catalog := a.Catalog()
	detector := newLoopDetector(a.config.LoopDetectionWindow)

	logging.Debug(a.sink, fmt.Sprintf("agent %s starting with %d messages, max %d iterations",
		a.id, conv.Len(), a.config.MaxIterations))

	for {
		if outcome.Iterations >= a.config.MaxIterations {
			outcome.State = IterationLimitReached
			logging.Info(a.sink, "Max iterations reached.")
			return outcome, nil
		}
		if err := ctx.Err(); err != nil {
			return a.fail(outcome, err)
		}

		outcome.Iterations++
		inv, err := a.completer.RequestInvocation(ctx, conv.Snapshot(), catalog)
		if err != nil {
			return a.fail(outcome, fmt.Errorf("requesting invocation: %w", err))
		}
		if _, ok := catalog.Lookup(inv.Name); !ok {
			logging.Warn(a.sink, fmt.Sprintf("model invoked unknown tool %q; decoding its arguments anyway", inv.Name))
		}

		parsed := Decode(inv.Arguments)
		switch parsed.Kind {
		case FinishSignal:
			outcome.State = Finished
			outcome.Message = parsed.Text
			logging.Info(a.sink, fmt.Sprintf("AI has finished working and said '%s'.", parsed.Text))
			return outcome, nil

		case AwaitClarification:
			if a.operator == nil {
				return a.fail(outcome, &DecodeError{Arguments: inv.Arguments, Reason: "clarification requested but no operator is available"})
			}
			logging.Info(a.sink, fmt.Sprintf("[Question]: %s", parsed.Text))
			answer, err := a.operator.Ask(ctx, parsed.Text)
			if err != nil {
				return a.fail(outcome, fmt.Errorf("asking operator: %w", err))
			}
			if err := a.record(conv, inv, fmt.Sprintf(answerFeedback, answer)); err != nil {
				return a.fail(outcome, err)
			}

		case RunCommand:
			outcome.CommandsRun++
			if err := a.runCommand(ctx, conv, inv, parsed.Text, outcome.CommandsRun, detector); err != nil {
				return a.fail(outcome, err)
			}

		default:
			return a.fail(outcome, &DecodeError{Arguments: inv.Arguments, Reason: parsed.Reason})
		}
	}
}

const (
	commandFeedback = "Command executed. Output from CLI: %s. Please run the next command. Check whether you have completed your goal."
	failureFeedback = "Command exited with status %d. Output from CLI: %s. Please run the next command. Check whether you have completed your goal."
	answerFeedback  = "The operator answered: %s. Please run the next command."
)

func (a *Agent) runCommand(ctx context.Context, conv *Conversation, inv *completion.Invocation, command string, n int, detector *loopDetector) error {
	logging.Info(a.sink, fmt.Sprintf("[Command %d]: %s", n, command))
	if detector.Observe(command) {
		logging.Warn(a.sink, fmt.Sprintf("loop detected: the last %d commands follow a repeating pattern", detector.window))
	}

	result, err := a.executor.Execute(ctx, command)
	if err != nil {
		return fmt.Errorf("executing command %d: %w", n, err)
	}

	output := result.Output()
	logging.Info(a.sink, fmt.Sprintf("[Output %d]: %s", n, output))

	fed := TruncateCommandOutput(output, a.config.MaxOutputChars, a.config.MaxOutputLines)
	feedback := fmt.Sprintf(commandFeedback, fed)
	if !result.Succeeded {
		logging.Warn(a.sink, fmt.Sprintf("[Command %d] exited with status %d", n, result.ExitCode))
		feedback = fmt.Sprintf(failureFeedback, result.ExitCode, fed)
	}
	return a.record(conv, inv, feedback)
}

// record appends the assistant's invocation and the user feedback for it.
func (a *Agent) record(conv *Conversation, inv *completion.Invocation, feedback string) error {
	if err := conv.Append(completion.AssistantMessage(inv.String())); err != nil {
		return err
	}
	return conv.Append(completion.UserMessage(feedback))
}

func (a *Agent) fail(outcome *Outcome, err error) (*Outcome, error) {
	outcome.State = Failed
	logging.Error(a.sink, fmt.Sprintf("An error occurred: %v", err))
	return outcome, err
}
