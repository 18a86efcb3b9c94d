package agentloop

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// TruncationMode specifies how output is truncated.
type TruncationMode string

const (
	TruncateHeadTail TruncationMode = "head_tail"
	TruncateTail     TruncationMode = "tail"
)

// DefaultMaxOutputChars caps the command output fed back to the model.
const DefaultMaxOutputChars = 30000

// DefaultMaxOutputLines caps the line count after character truncation.
const DefaultMaxOutputLines = 256

// TruncateOutput applies character-based truncation to output. Cuts land on
// rune boundaries so the result stays valid UTF-8.
func TruncateOutput(output string, maxChars int, mode TruncationMode) string {
	if maxChars <= 0 || len(output) <= maxChars {
		return output
	}
	removed := len(output) - maxChars

	switch mode {
	case TruncateTail:
		tail := output[runeStart(output, len(output)-maxChars):]
		return fmt.Sprintf("[WARNING: Command output was truncated. First %d characters were removed.]\n\n", removed) + tail

	default:
		half := maxChars / 2
		head := output[:runeStart(output, half)]
		tail := output[runeStart(output, len(output)-half):]
		return head +
			fmt.Sprintf("\n\n[WARNING: Command output was truncated. %d characters were removed from the middle. "+
				"If you need specific parts, re-run a more targeted command.]\n\n", removed) +
			tail
	}
}

// runeStart moves i back to the start of the rune containing it.
func runeStart(s string, i int) int {
	for i > 0 && i < len(s) && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}

// TruncateLines applies line-based truncation using head/tail split.
func TruncateLines(output string, maxLines int) string {
	if maxLines <= 0 {
		return output
	}
	lines := strings.Split(output, "\n")
	if len(lines) <= maxLines {
		return output
	}

	headCount := maxLines / 2
	tailCount := maxLines - headCount
	omitted := len(lines) - headCount - tailCount

	return strings.Join(lines[:headCount], "\n") +
		fmt.Sprintf("\n[... %d lines omitted ...]\n", omitted) +
		strings.Join(lines[len(lines)-tailCount:], "\n")
}

// TruncateCommandOutput runs character truncation then line truncation.
func TruncateCommandOutput(output string, maxChars, maxLines int) string {
	return TruncateLines(TruncateOutput(output, maxChars, TruncateHeadTail), maxLines)
}
