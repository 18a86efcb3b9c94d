package agentloop

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// ErrOperatorClosed is returned when operator input ends before an answer.
var ErrOperatorClosed = errors.New("operator input closed before an answer was given")

// LineOperator asks questions on out and reads one-line answers from in.
// A single reader goroutine owns in for the operator's lifetime and exits
// when in reaches EOF.
type LineOperator struct {
	in    io.Reader
	out   io.Writer
	lines chan string
	once  sync.Once
	mu    sync.Mutex
}

// NewLineOperator creates an operator over a terminal-like pair of streams.
func NewLineOperator(in io.Reader, out io.Writer) *LineOperator {
	return &LineOperator{in: in, out: out, lines: make(chan string)}
}

func (o *LineOperator) read() {
	scanner := bufio.NewScanner(o.in)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			o.lines <- line
		}
	}
	close(o.lines)
}

// Ask prints question and waits for the next non-empty line. It returns
// early when ctx is done.
func (o *LineOperator) Ask(ctx context.Context, question string) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.once.Do(func() { go o.read() })

	if _, err := fmt.Fprintf(o.out, "The agent asks: %s\n> ", question); err != nil {
		return "", fmt.Errorf("writing question: %w", err)
	}

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-o.lines:
		if !ok {
			return "", ErrOperatorClosed
		}
		return line, nil
	}
}
