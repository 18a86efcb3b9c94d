package logging

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap/zapcore"
)

// RemoteConfig addresses an HTTP log ingestion endpoint that accepts one JSON
// object per POST and authenticates with a bearer token.
type RemoteConfig struct {
	URL        string
	Token      string
	HTTPClient *http.Client
}

// remoteEncoderConfig uses the dt/message/level keys that hosted log
// ingestion services expect.
func remoteEncoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "dt",
		LevelKey:       "level",
		MessageKey:     "message",
		NameKey:        "logger",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.RFC3339TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}
}

// httpWriteSyncer posts every encoded entry to the ingestion endpoint.
type httpWriteSyncer struct {
	client *http.Client
	url    string
	token  string
}

func (w *httpWriteSyncer) Write(p []byte) (int, error) {
	req, err := http.NewRequest(http.MethodPost, w.url, bytes.NewReader(bytes.TrimSpace(p)))
	if err != nil {
		return 0, fmt.Errorf("log sink request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+w.token)

	resp, err := w.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("log sink post: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("log sink post: status %d", resp.StatusCode)
	}
	return len(p), nil
}

func (w *httpWriteSyncer) Sync() error { return nil }

// RemoteCore builds a JSON core shipping entries to cfg.URL.
func RemoteCore(cfg RemoteConfig, level zapcore.LevelEnabler) zapcore.Core {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	ws := zapcore.Lock(&httpWriteSyncer{client: client, url: cfg.URL, token: cfg.Token})
	return zapcore.NewCore(zapcore.NewJSONEncoder(remoteEncoderConfig()), ws, level)
}
