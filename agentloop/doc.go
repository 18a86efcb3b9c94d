// Package agentloop drives an autonomous shell agent toward a goal.
//
// Each pass of the loop asks a Completer for one invocation of the
// command_line tool, decodes its arguments, and either runs the command
// through a CommandExecutor or stops. Command output is appended to the
// Conversation and sent back on the next request.
//
// # Termination
//
// A run ends in one of three states:
//
//   - Finished: the model set finished_working
//   - IterationLimitReached: Config.MaxIterations requests were made
//   - Failed: a completion, decoding, or executor error occurred
//
// A command that exits nonzero is not a failure. Its stderr is fed back to
// the model and the loop continues.
//
// # Usage
//
//	exec := agentloop.NewLocalExecutor("./output")
//	_ = exec.Initialize()
//	conv := agentloop.NewConversation(agentloop.BuildSystemPrompt(exec, goal, false, time.Now()), goal)
//	agent := agentloop.NewAgent(client, exec, agentloop.Config{MaxIterations: 20},
//	    agentloop.WithSink(sink))
//	outcome, err := agent.Run(ctx, conv)
package agentloop
