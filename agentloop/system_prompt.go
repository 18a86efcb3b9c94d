package agentloop

import (
	"fmt"
	"strings"
	"time"
)

// PromptEnvironment describes where commands run.
type PromptEnvironment interface {
	WorkingDirectory() string
	Platform() string
	Shell() string
}

const basePrompt = `You are working as a command line developer. You can run any shell command through the command_line function, one command per call, and you will be shown its output before choosing the next command. Work toward the goal you are given and do all of your work in the current working directory.

The commands you choose are executed for real. Do not run anything that could harm the stability of the machine or other processes running on it.

When the goal has been accomplished, call command_line with an empty command and set finished_working to a short summary of what you did.`

const clarificationPrompt = `If the goal is ambiguous and you cannot make reasonable progress, call command_line with an empty command and put your question in clarification_request. The operator's answer will be sent back to you.`

// BuildEnvironmentContext renders the <environment> block appended to the
// system prompt.
func BuildEnvironmentContext(env PromptEnvironment, now time.Time) string {
	var sb strings.Builder
	sb.WriteString("<environment>\n")
	fmt.Fprintf(&sb, "Working directory: %s\n", env.WorkingDirectory())
	fmt.Fprintf(&sb, "Platform: %s\n", env.Platform())
	fmt.Fprintf(&sb, "Shell: %s\n", env.Shell())
	fmt.Fprintf(&sb, "Today's date: %s\n", now.Format("2006-01-02"))
	sb.WriteString("</environment>")
	return sb.String()
}

// BuildSystemPrompt assembles the system message for goal. An empty goal
// leaves the goal section out.
func BuildSystemPrompt(env PromptEnvironment, goal string, clarify bool, now time.Time) string {
	parts := []string{basePrompt}
	if goal = strings.TrimSpace(goal); goal != "" {
		parts = append(parts, "***\n\nGoal is: "+goal+"\n\n***")
	}
	if clarify {
		parts = append(parts, clarificationPrompt)
	}
	parts = append(parts, BuildEnvironmentContext(env, now))
	return strings.Join(parts, "\n\n")
}
