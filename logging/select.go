package logging

import (
	"net/http"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Environments that ship logs to the remote sink.
const (
	EnvDev  = "dev"
	EnvProd = "prod"
)

// Options selects and configures the log transport.
type Options struct {
	// Env is the CONFIG_ENV value. dev and prod select the remote sink.
	Env     string
	Remote  RemoteConfig
	Verbose bool
	// Console defaults to os.Stderr.
	Console    *os.File
	HTTPClient *http.Client
}

// Remote reports whether env selects the remote transport.
func Remote(env string) bool {
	return env == EnvDev || env == EnvProd
}

// New builds the sink chosen by opts.Env. A remote environment without a URL
// or token falls back to the console and says so.
func New(opts Options) *ZapSink {
	out := opts.Console
	if out == nil {
		out = os.Stderr
	}
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if opts.Verbose {
		level.SetLevel(zapcore.DebugLevel)
	}
	console := ConsoleCore(zapcore.Lock(out), level, IsTerminal(out))

	if !Remote(opts.Env) {
		return NewZapSink(zap.New(console, zap.ErrorOutput(zapcore.Lock(out))))
	}

	if opts.Remote.URL == "" || opts.Remote.Token == "" {
		sink := NewZapSink(zap.New(console, zap.ErrorOutput(zapcore.Lock(out))))
		Warn(sink, "remote log sink selected for "+opts.Env+" but LOG_SINK_URL or LOG_SINK_TOKEN is unset; logging to console")
		return sink
	}

	remoteCfg := opts.Remote
	if remoteCfg.HTTPClient == nil {
		remoteCfg.HTTPClient = opts.HTTPClient
	}
	// The console keeps warnings and errors so failures stay visible locally.
	consoleWarn := ConsoleCore(zapcore.Lock(out), zap.NewAtomicLevelAt(zapcore.WarnLevel), IsTerminal(out))
	core := zapcore.NewTee(RemoteCore(remoteCfg, level), consoleWarn)
	return NewZapSink(zap.New(core, zap.ErrorOutput(zapcore.Lock(out))).With(zap.String("env", opts.Env)))
}
