package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/okenlabs/foreman/agent"
	"github.com/okenlabs/foreman/llm"
)

// cleanupTimeout bounds the resource teardown after the loop returns, so a
// wedged subprocess cannot hold the exit hostage.
const cleanupTimeout = 15 * time.Second

var runCmd = &cobra.Command{
	Use:   "run [goal]",
	Short: "Run the agent until the goal is complete",
	Long: `Run the agent loop against a goal. The agent calls the configured
language model, executes the tools it requests (shell commands, file edits,
sub-agents), and keeps iterating until it declares completion or hits the
iteration cap.

Interrupt with Ctrl-C: the loop stops cooperatively and every background
resource the run started is terminated before exit.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAgent,
}

func init() {
	runCmd.Flags().String("provider", "", "LLM provider (anthropic, openai, gemini)")
	runCmd.Flags().String("model", "", "Model id or alias (see 'foreman models')")
	runCmd.Flags().Int("max-iterations", 0, "Maximum loop iterations before giving up")
	runCmd.Flags().String("workdir", "", "Working directory for the agent (default: current directory)")
	runCmd.Flags().Int("timeout-ms", 0, "Shell sync-to-async switch timeout in milliseconds")
	runCmd.Flags().Float64("temperature", 0, "Sampling temperature")
	runCmd.Flags().Int("max-tokens", 0, "Maximum tokens per model response")
	rootCmd.AddCommand(runCmd)
}

func runAgent(cmd *cobra.Command, args []string) error {
	cfg, err := loadCLIConfig(cmd)
	if err != nil {
		return err
	}
	applyRunFlags(cmd, &cfg)

	goal := strings.TrimSpace(strings.Join(args, " "))
	if goal == "" {
		return fmt.Errorf("goal is required")
	}

	workDir := cfg.WorkDir
	if workDir == "" {
		if workDir, err = os.Getwd(); err != nil {
			return fmt.Errorf("resolving working directory: %w", err)
		}
	}

	model := cfg.Model
	if model == "" {
		if info := llm.LatestModel(cfg.Provider); info != nil {
			model = info.ID
		} else {
			return fmt.Errorf("no default model for provider %q; pass --model", cfg.Provider)
		}
	}
	if info := llm.Resolve(model); info != nil {
		model = info.ID
	}

	logger, err := buildLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	client, err := buildClient(cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	bus := agent.NewEventBus()
	bus.Subscribe(agent.NewZapSink(logger))

	shellCfg := agent.ShellConfig{
		DefaultTimeoutMs: cfg.Shell.DefaultTimeoutMs,
		MaxTimeoutMs:     cfg.Shell.MaxTimeoutMs,
		Shell:            cfg.Shell.Shell,
	}
	tc := agent.NewToolContext(client, bus, workDir, shellCfg, nil)

	loopCfg := agent.LoopConfig{
		Provider:      cfg.Provider,
		Model:         model,
		MaxIterations: cfg.MaxIterations,
		MaxDepth:      cfg.MaxDepth,
		Temperature:   cfg.Temperature,
		MaxTokens:     cfg.MaxTokens,
	}
	loopCfg.SystemPrompt = agent.BuildSystemPrompt(tc)
	loop := agent.NewLoop(loopCfg, tc)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting agent",
		zap.String("provider", cfg.Provider),
		zap.String("model", model),
		zap.String("workdir", workDir),
		zap.Int("max_iterations", loopCfg.MaxIterations))

	res, runErr := loop.Run(ctx, goal)

	// Teardown runs on its own context: the run context is typically already
	// cancelled when we get here via Ctrl-C.
	cleanupCtx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	tc.CleanupAll(cleanupCtx)
	cancel()
	sweepScope(tc)

	if runErr != nil {
		return fmt.Errorf("run aborted: %w", runErr)
	}

	logger.Info("run finished",
		zap.Bool("completed", res.Completed),
		zap.Int("interactions", res.Interactions),
		zap.Int("respawns", res.Respawns))

	if !res.Completed {
		return fmt.Errorf("%s (%d iterations)", res.Result, res.Interactions)
	}
	fmt.Fprintln(cmd.OutOrStdout(), res.Result)
	return nil
}

// applyRunFlags merges explicitly set run flags over the resolved config.
func applyRunFlags(cmd *cobra.Command, cfg *Config) {
	flags := cmd.Flags()
	if flags.Changed("provider") {
		cfg.Provider, _ = flags.GetString("provider")
	}
	if flags.Changed("model") {
		cfg.Model, _ = flags.GetString("model")
	}
	if flags.Changed("max-iterations") {
		cfg.MaxIterations, _ = flags.GetInt("max-iterations")
	}
	if flags.Changed("workdir") {
		cfg.WorkDir, _ = flags.GetString("workdir")
	}
	if flags.Changed("timeout-ms") {
		cfg.Shell.DefaultTimeoutMs, _ = flags.GetInt("timeout-ms")
	}
	if flags.Changed("temperature") {
		t, _ := flags.GetFloat64("temperature")
		cfg.Temperature = &t
	}
	if flags.Changed("max-tokens") {
		n, _ := flags.GetInt("max-tokens")
		cfg.MaxTokens = &n
	}
}

// buildClient creates the LLM client: an adapter for the selected provider,
// plus adapters for every other provider with a configured key so model
// overrides can route across providers.
func buildClient(cfg Config) (*llm.Client, error) {
	primary, err := llm.NewGollmAdapter(cfg.Provider, llm.WithAPIKey(cfg.apiKey(cfg.Provider)))
	if err != nil {
		return nil, fmt.Errorf("configuring provider %s: %w", cfg.Provider, err)
	}
	client := llm.NewClient(llm.WithAdapter(primary), llm.WithDefaultProvider(cfg.Provider))

	for _, provider := range []string{"anthropic", "openai", "gemini"} {
		if provider == cfg.Provider || cfg.apiKey(provider) == "" {
			continue
		}
		adapter, err := llm.NewGollmAdapter(provider, llm.WithAPIKey(cfg.apiKey(provider)))
		if err != nil {
			// A broken secondary provider should not block the run.
			fmt.Fprintf(os.Stderr, "warning: skipping provider %s: %v\n", provider, err)
			continue
		}
		client.Register(adapter)
	}
	return client, nil
}

// buildLogger constructs the console logger the event bus reports through.
func buildLogger(s LogSettings) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(s.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q", s.Level)
	}

	encoderCfg := zap.NewDevelopmentEncoderConfig()
	encoderCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
	encoding := "console"
	if s.Format == "json" {
		encoderCfg = zap.NewProductionEncoderConfig()
		encoding = "json"
	}

	zcfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Encoding:         encoding,
		EncoderConfig:    encoderCfg,
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}
	return zcfg.Build()
}

// sweepScope drops terminal records and their retained state. Retention
// zero: the process is exiting, nothing needs to stay queryable.
func sweepScope(tc *agent.ToolContext) {
	tc.Shell.DropState(tc.Shell.Registry().Sweep(0))
	tc.Agents.DropState(tc.Agents.Registry().Sweep(0))
	tc.Browser.Registry().Sweep(0)
}
