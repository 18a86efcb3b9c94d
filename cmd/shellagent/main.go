// Command shellagent works toward the goal in $GOAL by letting a language
// model run shell commands in a sandbox directory.
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/teilomillet/gollm"

	"github.com/martinemde/shellagent/agentloop"
	"github.com/martinemde/shellagent/completion"
	"github.com/martinemde/shellagent/config"
	"github.com/martinemde/shellagent/logging"
)

type options struct {
	configPath string
	sandbox    string
	verbose    bool
}

// process carries what run takes from the operating system, so tests can
// substitute their own.
type process struct {
	environ    []string
	stdin      io.Reader
	stderr     *os.File
	httpClient *http.Client
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	cmd := newRootCmd(process{environ: os.Environ(), stdin: os.Stdin, stderr: os.Stderr})
	err := cmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(proc process) *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:   "shellagent",
		Short: "Let a language model run shell commands until a goal is met",
		Long: `shellagent reads a goal from the GOAL environment variable and asks a
chat-completion service to choose one shell command at a time. Each command
runs in the sandbox directory and its output is sent back to the model, until
the model reports the goal finished or max_iterations is reached.

Environment:
  GOAL            the goal to work toward (required)
  CONFIG_ENV      dev or prod ship logs to LOG_SINK_URL; anything else logs to the console
  CONFIG_PATH     configuration file (default config/config.json)
  LOG_SINK_URL    remote log endpoint
  LOG_SINK_TOKEN  remote log bearer token
  CREDENTIAL      overrides the credential in the configuration file`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts, proc)
		},
	}
	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "configuration file (overrides CONFIG_PATH)")
	cmd.Flags().StringVar(&opts.sandbox, "sandbox", "", "directory commands run in (overrides sandbox_dir)")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "log debug detail")
	return cmd
}

func run(ctx context.Context, opts options, proc process) error {
	env, err := config.LoadEnvironment(proc.environ)
	if err != nil {
		return fmt.Errorf("configuration: %w", err)
	}

	sink := logging.New(logging.Options{
		Env:        env.ConfigEnv,
		Remote:     logging.RemoteConfig{URL: env.SinkURL, Token: env.SinkToken},
		Verbose:    opts.verbose,
		Console:    proc.stderr,
		HTTPClient: proc.httpClient,
	})
	defer sink.Sync()
	defer logging.Info(sink, "agent is shutting down")

	cfg, err := config.LoadForEnvironment(env, opts.configPath)
	if err != nil {
		logging.Error(sink, err.Error())
		return err
	}
	if opts.sandbox != "" {
		cfg.SandboxDir = opts.sandbox
	}

	executor := agentloop.NewLocalExecutor(cfg.SandboxDir,
		agentloop.WithShell(cfg.Shell),
		agentloop.WithCommandTimeout(cfg.CommandTimeout()),
	)
	if err := executor.Initialize(); err != nil {
		logging.Error(sink, err.Error())
		return err
	}

	client, err := newClient(cfg, sink, proc.httpClient)
	if err != nil {
		logging.Error(sink, err.Error())
		return err
	}
	defer client.Close()

	agentOpts := []agentloop.AgentOption{agentloop.WithSink(sink)}
	if cfg.AllowClarification {
		agentOpts = append(agentOpts, agentloop.WithOperator(agentloop.NewLineOperator(proc.stdin, proc.stderr)))
	}
	agent := agentloop.NewAgent(client, executor, agentloop.Config{
		MaxIterations:       cfg.MaxIterations,
		MaxOutputChars:      cfg.MaxOutputChars,
		LoopDetectionWindow: cfg.LoopDetectionWindow,
	}, agentOpts...)

	conv := agentloop.NewConversation(
		agentloop.BuildSystemPrompt(executor, env.Goal, cfg.AllowClarification, time.Now()),
		env.Goal,
	)

	logging.Info(sink, fmt.Sprintf("agent %s starting in %s with model %s (max %d iterations)",
		agent.ID(), executor.WorkingDirectory(), cfg.ModelIdentifier, cfg.MaxIterations))
	logging.Info(sink, "Goal: "+env.Goal)

	outcome, err := agent.Run(ctx, conv)
	if err != nil {
		return err
	}
	logging.Info(sink, fmt.Sprintf("agent %s %s after %d iterations and %d commands",
		agent.ID(), outcome.State, outcome.Iterations, outcome.CommandsRun))
	return nil
}

// newClient builds the completion client for cfg.Provider. The credential
// is revealed only here, to hand it to the adapter.
func newClient(cfg *config.Config, sink logging.Sink, httpClient *http.Client) (*completion.Client, error) {
	var adapter completion.ProviderAdapter
	if name, ok := cfg.GollmProvider(); ok {
		a, err := completion.NewGollmAdapter(name, cfg.Credential.Reveal(), gollmOptions(name, cfg)...)
		if err != nil {
			return nil, err
		}
		adapter = a
	} else {
		if httpClient == nil {
			httpClient = &http.Client{Timeout: cfg.RequestTimeout()}
		}
		adapter = completion.NewOpenAI(httpClient, cfg.CompletionEndpoint, cfg.Credential.Reveal())
	}

	return completion.NewClient(
		completion.WithProvider(adapter.Name(), adapter),
		completion.WithDefaultProvider(adapter.Name()),
		completion.WithModel(cfg.ModelIdentifier),
		completion.WithSink(sink),
		completion.WithMiddleware(
			completion.LoggingMiddleware(sink),
			completion.TimeoutMiddleware(cfg.RequestTimeout()),
		),
	), nil
}

// gollmOptions maps configuration onto the gollm adapter. The endpoint only
// applies to ollama, the one gollm backend that takes a custom URL.
func gollmOptions(name string, cfg *config.Config) []completion.GollmAdapterOption {
	opts := []completion.GollmAdapterOption{completion.WithGollmModel(cfg.ModelIdentifier)}
	if cfg.MaxTokens > 0 {
		opts = append(opts, completion.WithMaxTokens(cfg.MaxTokens))
	}
	if cfg.Temperature != nil {
		opts = append(opts, completion.WithTemperature(*cfg.Temperature))
	}

	extra := []gollm.ConfigOption{gollm.SetTimeout(cfg.RequestTimeout())}
	if name == "ollama" && cfg.CompletionEndpoint != "" {
		extra = append(extra, gollm.SetOllamaEndpoint(cfg.CompletionEndpoint))
	}
	return append(opts, completion.WithGollmOptions(extra...))
}
