package completion

import (
	"context"
	"fmt"
	"time"

	"github.com/martinemde/shellagent/logging"
)

// LoggingMiddleware reports each request and its outcome at debug level.
// Only shapes and counts are logged, never message bodies or credentials.
func LoggingMiddleware(sink logging.Sink) Middleware {
	return func(ctx context.Context, req Request, next func(context.Context, Request) (*Response, error)) (*Response, error) {
		logging.Debug(sink, fmt.Sprintf("completion request: provider=%s model=%s messages=%d tools=%d tool_choice=%q",
			req.Provider, req.Model, len(req.Messages), len(req.Tools), req.ToolChoice))

		start := time.Now()
		resp, err := next(ctx, req)
		elapsed := time.Since(start).Round(time.Millisecond)
		if err != nil {
			logging.Debug(sink, fmt.Sprintf("completion failed after %s: %v", elapsed, err))
			return nil, err
		}
		logging.Debug(sink, fmt.Sprintf("completion response: id=%s choices=%d total_tokens=%d in %s",
			resp.ID, len(resp.Choices), resp.Usage.TotalTokens, elapsed))
		return resp, nil
	}
}

// TimeoutMiddleware bounds each request by d. A zero d leaves the context alone.
func TimeoutMiddleware(d time.Duration) Middleware {
	return func(ctx context.Context, req Request, next func(context.Context, Request) (*Response, error)) (*Response, error) {
		if d <= 0 {
			return next(ctx, req)
		}
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return next(ctx, req)
	}
}
