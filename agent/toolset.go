package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

const maxSleepSeconds = 60

// objectSchema builds the JSON schema for a tool's parameters.
func objectSchema(props map[string]any, required ...string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func jsonOut(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encoding tool output: %w", err)
	}
	return string(b), nil
}

// retProp is a terse schema entry for return-shape documentation.
func retProp(t string) map[string]any {
	return map[string]any{"type": t}
}

// listReturns is the shared return schema for the registry listing tools.
func listReturns() map[string]any {
	return map[string]any{
		"type": "array",
		"items": objectSchema(map[string]any{
			"id":        retProp("string"),
			"status":    retProp("string"),
			"startTime": retProp("string"),
			"endTime":   retProp("string"),
			"meta":      retProp("object"),
		}),
	}
}

// describeCall surfaces the model-supplied description of a call as
// reportable progress output.
func describeCall(args map[string]any, tc *ToolContext) {
	if desc, ok := StringArg(args, "description"); ok && desc != "" {
		tc.Bus.emit(LevelLog, tc.OwnerID, tc.Depth, desc)
	}
}

// truncateFor runs one output field through the scope's truncation pipeline.
func truncateFor(tc *ToolContext, tool, s string) string {
	return TruncateToolOutput(s, tool, tc.LoopCfg.ToolOutputLimits, tc.LoopCfg.ToolLineLimits)
}

// descriptionProp is the shared schema for the optional description
// parameter carried by long-running tools.
func descriptionProp() map[string]any {
	return map[string]any{
		"type":        "string",
		"description": "Short human-readable note on why this call is being made",
	}
}

// ToolSetOptions selects which optional tool groups DefaultToolSet includes.
type ToolSetOptions struct {
	// Browser registers browserOpen and browserAct. Set it when the scope
	// has a browser driver; without one the tools only return errors.
	Browser bool
}

// DefaultToolSet returns the built-in tools in their standard order:
// completion and control, shell supervision, sub-agents, optionally browser
// sessions, and file access.
func DefaultToolSet(opts ToolSetOptions) *ToolSet {
	s := NewToolSet()
	registerControlTools(s)
	registerShellTools(s)
	registerAgentTools(s)
	if opts.Browser {
		registerBrowserTools(s)
	}
	registerFileTools(s)
	return s
}

func registerControlTools(s *ToolSet) {
	completeExec := func(ctx context.Context, raw json.RawMessage, tc *ToolContext) (string, error) {
		args, err := ParseArgs(raw)
		if err != nil {
			return "", err
		}
		return jsonOut(map[string]any{
			"sequenceCompleted": true,
			"result":            StringArgOr(args, "result", ""),
		})
	}
	completeParams := objectSchema(map[string]any{
		"result": map[string]any{
			"type":        "string",
			"description": "Summary of what was accomplished",
		},
	}, "result")
	completeReturns := objectSchema(map[string]any{
		"sequenceCompleted": retProp("boolean"),
		"result":            retProp("string"),
	})

	s.Register(&Tool{
		Name:        ToolSequenceComplete,
		Description: "Declare the task finished and report the result. The loop ends after this call.",
		Parameters:  completeParams,
		Returns:     completeReturns,
		Execute:     completeExec,
	})
	s.Register(&Tool{
		Name:        ToolAgentDone,
		Description: "Alias of sequenceComplete: declare the task finished and report the result.",
		Parameters:  completeParams,
		Returns:     completeReturns,
		Execute:     completeExec,
	})

	s.Register(&Tool{
		Name:        ToolRespawn,
		Description: "Restart with a fresh conversation. The respawnContext becomes the only message in the new conversation, so it must restate the task and everything already done.",
		Parameters: objectSchema(map[string]any{
			"respawnContext": map[string]any{
				"type":        "string",
				"description": "Full replacement context for the restarted conversation",
			},
		}, "respawnContext"),
		Returns: objectSchema(map[string]any{
			"respawned": retProp("boolean"),
		}),
		// The dispatcher intercepts respawn before execution; this body only
		// runs if a respawn call somehow reaches normal dispatch.
		Execute: func(ctx context.Context, raw json.RawMessage, tc *ToolContext) (string, error) {
			return `{"respawned":true}`, nil
		},
	})

	s.Register(&Tool{
		Name:        "sleep",
		Description: "Pause before the next step, e.g. between polls of a background process.",
		Parameters: objectSchema(map[string]any{
			"seconds": map[string]any{
				"type":        "number",
				"description": "Seconds to sleep, capped at 60",
			},
		}, "seconds"),
		Returns: objectSchema(map[string]any{
			"slept": retProp("number"),
		}),
		Execute: func(ctx context.Context, raw json.RawMessage, tc *ToolContext) (string, error) {
			args, err := ParseArgs(raw)
			if err != nil {
				return "", err
			}
			seconds, ok := FloatArg(args, "seconds")
			if !ok || seconds <= 0 {
				seconds = 1
			}
			if seconds > maxSleepSeconds {
				seconds = maxSleepSeconds
			}
			select {
			case <-time.After(time.Duration(seconds * float64(time.Second))):
			case <-ctx.Done():
				return "", ctx.Err()
			}
			return jsonOut(map[string]any{"slept": seconds})
		},
	})
}

func registerShellTools(s *ToolSet) {
	s.Register(&Tool{
		Name:        "shellStart",
		Description: "Run a shell command. Returns the output directly if the command finishes within timeoutMs, otherwise leaves it running in the background and returns an instance id. timeoutMs 0 backgrounds immediately.",
		Parameters: objectSchema(map[string]any{
			"command": map[string]any{
				"type":        "string",
				"description": "Command line to run under the shell",
			},
			"description": descriptionProp(),
			"timeoutMs": map[string]any{
				"type":        "integer",
				"description": "How long to wait before backgrounding; 0 backgrounds immediately",
			},
			"showStdIn": map[string]any{
				"type":        "boolean",
				"description": "Echo stdin sent to this process into the event stream",
			},
			"showStdout": map[string]any{
				"type":        "boolean",
				"description": "Echo live output into the event stream",
			},
		}, "command"),
		Returns: objectSchema(map[string]any{
			"mode":       retProp("string"),
			"instanceId": retProp("string"),
			"stdout":     retProp("string"),
			"stderr":     retProp("string"),
			"exitCode":   retProp("integer"),
			"error":      retProp("string"),
		}),
		Execute: func(ctx context.Context, raw json.RawMessage, tc *ToolContext) (string, error) {
			args, err := ParseArgs(raw)
			if err != nil {
				return "", err
			}
			command, ok := StringArg(args, "command")
			if !ok || command == "" {
				return "", fmt.Errorf("command is required")
			}
			describeCall(args, tc)

			var opts StartOptions
			if ms, ok := IntArg(args, "timeoutMs"); ok {
				opts.TimeoutMs = &ms
			}
			opts.ShowStdin, _ = BoolArg(args, "showStdIn")
			opts.ShowStdout, _ = BoolArg(args, "showStdout")

			res := tc.Shell.Start(ctx, command, opts)
			res.Stdout = truncateFor(tc, "shellStart", res.Stdout)
			res.Stderr = truncateFor(tc, "shellStart", res.Stderr)
			return jsonOut(res)
		},
	})

	s.Register(&Tool{
		Name:        "shellMessage",
		Description: "Interact with a background process: read output produced since the last read, send stdin, or deliver a signal (TERM, KILL, INT, ...).",
		Parameters: objectSchema(map[string]any{
			"instanceId": map[string]any{
				"type":        "string",
				"description": "Instance id returned by shellStart",
			},
			"stdin": map[string]any{
				"type":        "string",
				"description": "Text to write to the process stdin",
			},
			"signal": map[string]any{
				"type":        "string",
				"description": "Signal name to deliver to the process group",
			},
			"description": descriptionProp(),
		}, "instanceId"),
		Returns: objectSchema(map[string]any{
			"stdout":    retProp("string"),
			"stderr":    retProp("string"),
			"completed": retProp("boolean"),
			"signaled":  retProp("boolean"),
			"exitCode":  retProp("integer"),
			"error":     retProp("string"),
		}),
		Execute: func(ctx context.Context, raw json.RawMessage, tc *ToolContext) (string, error) {
			args, err := ParseArgs(raw)
			if err != nil {
				return "", err
			}
			id, ok := StringArg(args, "instanceId")
			if !ok || id == "" {
				return "", fmt.Errorf("instanceId is required")
			}
			describeCall(args, tc)

			var opts MessageOptions
			if stdin, ok := StringArg(args, "stdin"); ok {
				opts.Stdin = &stdin
			}
			if sig, ok := StringArg(args, "signal"); ok {
				opts.Signal = &sig
			}
			res := tc.Shell.Message(ctx, id, opts)
			res.Stdout = truncateFor(tc, "shellMessage", res.Stdout)
			res.Stderr = truncateFor(tc, "shellMessage", res.Stderr)
			return jsonOut(res)
		},
	})

	s.Register(&Tool{
		Name:        "shellList",
		Description: "List the shell processes this agent has started and their statuses.",
		Parameters:  objectSchema(map[string]any{}),
		Returns:     listReturns(),
		Execute: func(ctx context.Context, raw json.RawMessage, tc *ToolContext) (string, error) {
			return jsonOut(recordSummaries(tc.Shell.Registry().List()))
		},
	})
}

func registerAgentTools(s *ToolSet) {
	s.Register(&Tool{
		Name:        "agentStart",
		Description: "Launch a sub-agent on a goal. It runs in the background with its own conversation and resources; poll it with agentMessage.",
		Parameters: objectSchema(map[string]any{
			"description": descriptionProp(),
			"goal": map[string]any{
				"type":        "string",
				"description": "What the sub-agent must accomplish",
			},
			"projectContext": map[string]any{
				"type":        "string",
				"description": "Background the sub-agent needs: project layout, conventions, prior decisions",
			},
			"workingDirectory": map[string]any{
				"type":        "string",
				"description": "Directory the sub-agent works in, defaulting to the parent's",
			},
			"relevantFiles": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Files the sub-agent should look at first",
			},
			"userPromptAllowed": map[string]any{
				"type":        "boolean",
				"description": "Whether the sub-agent may ask for user input instead of deciding on its own",
			},
		}, "goal", "projectContext"),
		Returns: objectSchema(map[string]any{
			"agentId": retProp("string"),
			"status":  retProp("string"),
		}),
		Execute: func(ctx context.Context, raw json.RawMessage, tc *ToolContext) (string, error) {
			args, err := ParseArgs(raw)
			if err != nil {
				return "", err
			}
			goal, ok := StringArg(args, "goal")
			if !ok || goal == "" {
				return "", fmt.Errorf("goal is required")
			}
			describeCall(args, tc)

			userPromptAllowed, _ := BoolArg(args, "userPromptAllowed")
			prompt := BuildSubAgentPrompt(
				goal,
				StringArgOr(args, "projectContext", ""),
				StringSliceArg(args, "relevantFiles"),
				userPromptAllowed,
			)
			id, err := tc.Agents.Start(ctx, StartSpec{
				Goal:       goal,
				Prompt:     prompt,
				WorkingDir: StringArgOr(args, "workingDirectory", ""),
			})
			if err != nil {
				return "", err
			}
			return jsonOut(map[string]any{"agentId": id, "status": string(StatusRunning)})
		},
	})

	s.Register(&Tool{
		Name:        "agentMessage",
		Description: "Poll a sub-agent: returns its status and the output captured since the last poll. Optionally queue guidance for its next iteration, or terminate it and everything it started.",
		Parameters: objectSchema(map[string]any{
			"agentId": map[string]any{
				"type":        "string",
				"description": "Agent id returned by agentStart",
			},
			"guidance": map[string]any{
				"type":        "string",
				"description": "Guidance message to queue for the sub-agent",
			},
			"terminate": map[string]any{
				"type":        "boolean",
				"description": "Terminate the sub-agent and cascade through its resources",
			},
			"description": descriptionProp(),
		}, "agentId"),
		Returns: objectSchema(map[string]any{
			"agentId":    retProp("string"),
			"status":     retProp("string"),
			"output":     retProp("string"),
			"completed":  retProp("boolean"),
			"result":     retProp("string"),
			"error":      retProp("string"),
			"terminated": retProp("boolean"),
		}),
		Execute: func(ctx context.Context, raw json.RawMessage, tc *ToolContext) (string, error) {
			args, err := ParseArgs(raw)
			if err != nil {
				return "", err
			}
			id, ok := StringArg(args, "agentId")
			if !ok || id == "" {
				return "", fmt.Errorf("agentId is required")
			}
			describeCall(args, tc)

			var opts AgentMessageOptions
			if g, ok := StringArg(args, "guidance"); ok {
				opts.Guidance = &g
			}
			opts.Terminate, _ = BoolArg(args, "terminate")

			res := tc.Agents.Message(ctx, id, opts)
			res.Output = truncateFor(tc, "agentMessage", res.Output)
			return jsonOut(res)
		},
	})

	s.Register(&Tool{
		Name:        "agentList",
		Description: "List the sub-agents this agent has launched and their statuses.",
		Parameters:  objectSchema(map[string]any{}),
		Returns:     listReturns(),
		Execute: func(ctx context.Context, raw json.RawMessage, tc *ToolContext) (string, error) {
			return jsonOut(recordSummaries(tc.Agents.Registry().List()))
		},
	})
}

func registerBrowserTools(s *ToolSet) {
	s.Register(&Tool{
		Name:        "browserOpen",
		Description: "Open a browser session for web automation. Returns a session id for browserAct.",
		Parameters: objectSchema(map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "Address to open the session at",
			},
		}),
		Returns: objectSchema(map[string]any{
			"sessionId": retProp("string"),
			"error":     retProp("string"),
		}),
		Execute: func(ctx context.Context, raw json.RawMessage, tc *ToolContext) (string, error) {
			args, err := ParseArgs(raw)
			if err != nil {
				return "", err
			}
			return jsonOut(tc.Browser.Open(ctx, StringArgOr(args, "url", "")))
		},
	})

	s.Register(&Tool{
		Name:        "browserAct",
		Description: "Perform one action in a browser session (navigate, click, screenshot, ...). The close action ends the session.",
		Parameters: objectSchema(map[string]any{
			"sessionId": map[string]any{
				"type":        "string",
				"description": "Session id returned by browserOpen",
			},
			"action": map[string]any{
				"type":        "string",
				"description": "Action name; close ends the session",
			},
			"params": map[string]any{
				"type":        "object",
				"description": "Action parameters",
			},
		}, "sessionId", "action"),
		Returns: objectSchema(map[string]any{
			"sessionId": retProp("string"),
			"action":    retProp("string"),
			"output":    retProp("string"),
			"closed":    retProp("boolean"),
			"error":     retProp("string"),
		}),
		Execute: func(ctx context.Context, raw json.RawMessage, tc *ToolContext) (string, error) {
			args, err := ParseArgs(raw)
			if err != nil {
				return "", err
			}
			id, ok := StringArg(args, "sessionId")
			if !ok || id == "" {
				return "", fmt.Errorf("sessionId is required")
			}
			action, ok := StringArg(args, "action")
			if !ok || action == "" {
				return "", fmt.Errorf("action is required")
			}
			params, _ := args["params"].(map[string]any)

			res := tc.Browser.Act(ctx, id, action, params)
			res.Output = truncateFor(tc, "browserAct", res.Output)
			return jsonOut(res)
		},
	})
}

// recordSummary is the wire shape for registry listings.
type recordSummary struct {
	ID        string         `json:"id"`
	Status    string         `json:"status"`
	StartTime time.Time      `json:"startTime"`
	EndTime   *time.Time     `json:"endTime,omitempty"`
	Meta      map[string]any `json:"meta,omitempty"`
}

func recordSummaries(recs []Record) []recordSummary {
	out := make([]recordSummary, 0, len(recs))
	for _, r := range recs {
		out = append(out, recordSummary{
			ID:        r.ID,
			Status:    string(r.Status),
			StartTime: r.StartTime,
			EndTime:   r.EndTime,
			Meta:      r.Meta,
		})
	}
	return out
}
