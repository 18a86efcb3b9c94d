package agentloop

import (
	"crypto/sha256"
	"fmt"
)

// commandSignature is a short deterministic fingerprint of a command.
func commandSignature(command string) string {
	h := sha256.Sum256([]byte(command))
	return fmt.Sprintf("%x", h[:8])
}

// loopDetector remembers recent command signatures.
type loopDetector struct {
	window int
	sigs   []string
}

func newLoopDetector(window int) *loopDetector {
	return &loopDetector{window: window}
}

// Observe records command and reports whether the last window commands
// follow a repeating pattern.
func (d *loopDetector) Observe(command string) bool {
	if d.window <= 0 {
		return false
	}
	d.sigs = append(d.sigs, commandSignature(command))
	if len(d.sigs) > d.window {
		d.sigs = d.sigs[len(d.sigs)-d.window:]
	}
	return DetectLoop(d.sigs, d.window)
}

// DetectLoop checks if the last windowSize signatures follow a repeating
// pattern of length 1, 2, or 3.
func DetectLoop(sigs []string, windowSize int) bool {
	if windowSize <= 0 || len(sigs) < windowSize {
		return false
	}
	sigs = sigs[len(sigs)-windowSize:]

	for patternLen := 1; patternLen <= 3 && patternLen < windowSize; patternLen++ {
		if windowSize%patternLen != 0 {
			continue
		}
		pattern := sigs[:patternLen]
		allMatch := true
		for i := patternLen; i < windowSize && allMatch; i += patternLen {
			for j := 0; j < patternLen; j++ {
				if sigs[i+j] != pattern[j] {
					allMatch = false
					break
				}
			}
		}
		if allMatch {
			return true
		}
	}

	return false
}
