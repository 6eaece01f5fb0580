package agent

import (
	"context"
	"fmt"

	"github.com/okenlabs/foreman/llm"
)

// MaxIterationsResult is the result text returned when a loop runs out of
// iterations without a completion call. Callers match on it, so the exact
// wording is part of the contract.
const MaxIterationsResult = "Maximum sub-agent iterations reach without successful completion"

const emptyResponseReminder = "You returned an empty response with no text and no tool calls. " +
	"If the task is complete, call sequenceComplete with your result. " +
	"If you are waiting on a background process, call sleep instead of idling."

// LoopConfig tunes one agent loop.
type LoopConfig struct {
	Model        string
	Provider     string
	SystemPrompt string
	Temperature  *float64
	MaxTokens    *int

	// MaxIterations caps LLM rounds before the loop gives up.
	MaxIterations int
	// MaxDepth caps how deep nested agents may go.
	MaxDepth int
	// Retry governs LLM call retries within one iteration.
	Retry llm.Backoff

	// EnableLoopDetection injects a warning when the recent tool calls
	// follow a repeating pattern.
	EnableLoopDetection bool
	LoopDetectionWindow int

	// ToolOutputLimits and ToolLineLimits override the default per-tool
	// truncation limits.
	ToolOutputLimits map[string]int
	ToolLineLimits   map[string]int
}

// DefaultLoopConfig returns the standard loop settings.
func DefaultLoopConfig() LoopConfig {
	return LoopConfig{
		MaxIterations:       50,
		MaxDepth:            3,
		Retry:               llm.DefaultBackoff(),
		EnableLoopDetection: true,
		LoopDetectionWindow: 10,
	}
}

func (c LoopConfig) withDefaults() LoopConfig {
	if c.MaxIterations <= 0 {
		c.MaxIterations = 50
	}
	if c.MaxDepth <= 0 {
		c.MaxDepth = 3
	}
	if c.LoopDetectionWindow <= 0 {
		c.LoopDetectionWindow = 10
	}
	if c.Retry.MaxRetries == 0 && c.Retry.BaseDelay == 0 {
		c.Retry = llm.DefaultBackoff()
	}
	return c
}

// LoopResult is the outcome of one loop run. Interactions counts LLM rounds
// consumed, including rounds spent on respawns and recovered provider errors.
type LoopResult struct {
	Completed    bool
	Result       string
	Interactions int
	Respawns     int
}

// Loop drives one agent: call the model, dispatch the tool batch, feed the
// results back, repeat until a completion call or the iteration cap.
type Loop struct {
	cfg        LoopConfig
	tc         *ToolContext
	conv       *Conversation
	dispatcher *Dispatcher
}

// NewLoop builds a loop over the scope's tool set. The settings are
// recorded on the scope so nested agents inherit them.
func NewLoop(cfg LoopConfig, tc *ToolContext) *Loop {
	cfg = cfg.withDefaults()
	tc.LoopCfg = cfg
	return &Loop{
		cfg:        cfg,
		tc:         tc,
		conv:       NewConversation(),
		dispatcher: NewDispatcher(tc.Tools),
	}
}

// Conversation exposes the loop's message history.
func (l *Loop) Conversation() *Conversation { return l.conv }

// Run executes the loop until a completion call, iteration exhaustion, or
// context cancellation. The task seeds the conversation if it is empty.
// Guidance queued in the scope's mailbox is injected as user turns at the
// top of each iteration. A respawn call replaces the whole conversation with
// the respawn context and keeps going; respawns still consume iterations.
//
// Provider and tool failures never escape: they are folded into the
// conversation and the loop continues up to the cap. The only error Run
// returns is context cancellation; exhaustion comes back as a result with
// Completed false and Result set to MaxIterationsResult.
func (l *Loop) Run(ctx context.Context, task string) (LoopResult, error) {
	if l.conv.Len() == 0 {
		if task == "" {
			return LoopResult{}, fmt.Errorf("task is required to start a loop")
		}
		l.conv.Seed(llm.UserMessage(task))
	}

	res := LoopResult{}
	for i := 0; i < l.cfg.MaxIterations; i++ {
		if err := ctx.Err(); err != nil {
			res.Interactions = i
			return res, err
		}

		for _, guidance := range l.tc.Mailbox.Drain() {
			l.conv.Append(llm.UserMessage(guidance))
		}

		l.tc.Bus.emit(LevelDebug, l.tc.OwnerID, l.tc.Depth,
			fmt.Sprintf("iteration %d/%d", i+1, l.cfg.MaxIterations))

		resp, err := l.complete(ctx)
		if err != nil {
			if ctx.Err() != nil {
				res.Interactions = i + 1
				return res, ctx.Err()
			}
			l.recoverProviderError(err)
			continue
		}

		calls := resp.ToolCalls()
		if resp.Text() == "" && len(calls) == 0 {
			// Not an error: nudge the model toward the control tools.
			l.conv.Append(llm.UserMessage(emptyResponseReminder))
			continue
		}

		l.conv.Append(resp.Message)
		if text := resp.Text(); text != "" {
			// Progress narration feeds any parent scope's output capture.
			l.tc.Bus.emit(LevelLog, l.tc.OwnerID, l.tc.Depth, text)
		}
		l.checkContextUsage()

		if len(calls) == 0 {
			continue
		}

		dr := l.dispatcher.Dispatch(ctx, calls, l.conv, l.tc)
		if dr.Respawn != nil {
			l.conv.Replace(llm.UserMessage(dr.Respawn.Context))
			res.Respawns++
			l.tc.Bus.emit(LevelInfo, l.tc.OwnerID, l.tc.Depth, "respawning with fresh context")
			continue
		}
		if dr.SequenceCompleted {
			res.Completed = true
			res.Result = dr.CompletionResult
			res.Interactions = i + 1
			l.tc.Bus.emit(LevelInfo, l.tc.OwnerID, l.tc.Depth,
				fmt.Sprintf("completed after %d iterations", res.Interactions))
			return res, nil
		}

		if l.cfg.EnableLoopDetection && DetectLoop(l.conv.Messages(), l.cfg.LoopDetectionWindow) {
			warning := fmt.Sprintf(
				"Loop detected: the last %d tool calls follow a repeating pattern. Try a different approach.",
				l.cfg.LoopDetectionWindow)
			l.conv.Append(llm.UserMessage(warning))
			l.tc.Bus.emit(LevelWarn, l.tc.OwnerID, l.tc.Depth, warning)
		}
	}

	res.Result = MaxIterationsResult
	res.Interactions = l.cfg.MaxIterations
	l.tc.Bus.emit(LevelWarn, l.tc.OwnerID, l.tc.Depth, MaxIterationsResult)
	return res, nil
}

func (l *Loop) complete(ctx context.Context) (*llm.Response, error) {
	msgs := l.conv.Messages()
	if l.cfg.SystemPrompt != "" {
		msgs = append([]llm.Message{llm.SystemMessage(l.cfg.SystemPrompt)}, msgs...)
	}
	req := llm.Request{
		Provider:    l.cfg.Provider,
		Model:       l.cfg.Model,
		Messages:    msgs,
		Tools:       l.tc.Tools.Definitions(),
		Temperature: l.cfg.Temperature,
		MaxTokens:   l.cfg.MaxTokens,
	}
	return llm.Do(ctx, l.cfg.Retry, func(ctx context.Context) (*llm.Response, error) {
		return l.tc.Client.Complete(ctx, req)
	})
}

// recoverProviderError folds a provider failure into the conversation as an
// explanatory user turn. The failed round still counts against the cap, so a
// provider that never recovers cannot spin the loop forever.
func (l *Loop) recoverProviderError(err error) {
	l.tc.Bus.emit(LevelWarn, l.tc.OwnerID, l.tc.Depth, "provider error: "+err.Error())
	l.conv.Append(llm.UserMessage(fmt.Sprintf(
		"The language model provider returned an error on the last call: %v. "+
			"Continue with the task; if the error persists, call sequenceComplete and report what you finished.", err)))
}

// checkContextUsage warns once the conversation approaches the model's
// context window, estimated at four characters per token.
func (l *Loop) checkContextUsage() {
	info := llm.Resolve(l.cfg.Model)
	if info == nil || info.ContextWindow <= 0 {
		return
	}

	totalChars := 0
	for _, msg := range l.conv.Messages() {
		for _, part := range msg.Content {
			switch {
			case part.Text != "":
				totalChars += len(part.Text)
			case part.ToolResult != nil:
				totalChars += len(part.ToolResult.Content)
			case part.ToolCall != nil:
				totalChars += len(part.ToolCall.Arguments)
			}
		}
	}

	approxTokens := totalChars / 4
	if approxTokens > info.ContextWindow*8/10 {
		pct := approxTokens * 100 / info.ContextWindow
		l.tc.Bus.emit(LevelWarn, l.tc.OwnerID, l.tc.Depth,
			fmt.Sprintf("context usage at ~%d%% of the %s window", pct, info.ID))
	}
}
