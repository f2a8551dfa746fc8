package cmd

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/stitchkit/stitch/internal/config"
	"github.com/stitchkit/stitch/internal/llm"
	"github.com/stitchkit/stitch/internal/mcp"
	"github.com/stitchkit/stitch/internal/tools"
	"github.com/stitchkit/stitch/internal/transcript"
)

var (
	runScript   string
	runYolo     bool
	runMaxTurns int
	runSystem   string
)

var runCmd = &cobra.Command{
	Use:   "run <request>",
	Short: "Run the agent against a natural-language request",
	Long: `Stream model turns and execute the tool calls they request, looping
until the model produces a final answer.

Examples:
  stitch run "add a --json flag to the list command"
  stitch run "what does internal/llm do?" --provider gemini
  stitch run "fix the failing test" --max-turns 10
  stitch run "reformat this file" --script chunks.jsonl   # scripted provider`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runScript, "script", "", "Chunk log for the scripted provider")
	runCmd.Flags().BoolVar(&runYolo, "yolo", false, "Approve all tool calls without prompting")
	runCmd.Flags().IntVar(&runMaxTurns, "max-turns", 0, "Turn budget for this run (0 = config default)")
	runCmd.Flags().StringVar(&runSystem, "system", "", "Extra system prompt text")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	request := strings.Join(args, " ")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg.ApplyOverrides(flagProvider, flagModel)
	if runScript != "" {
		cfg.Provider = "scripted"
	}

	registry, approval, err := buildToolSystem(cfg)
	if err != nil {
		return err
	}
	if runYolo {
		if cfg.Tools.YoloEnv == "" || os.Getenv(cfg.Tools.YoloEnv) == "1" {
			approval.YoloMode = true
		} else {
			slog.Warn("ignoring --yolo", "reason", cfg.Tools.YoloEnv+" is not 1")
		}
	}

	bridge := mcp.NewBridge(registry)
	defer bridge.Close()
	connectMCPServers(ctx, bridge, cfg)

	provider, err := llm.NewProvider(cfg.Provider, providerOptions(cfg))
	if err != nil {
		return err
	}

	engine := llm.NewEngine(provider, registry)
	if runMaxTurns > 0 {
		engine.SetMaxTurns(runMaxTurns)
	} else if cfg.MaxTurns > 0 {
		engine.SetMaxTurns(cfg.MaxTurns)
	}

	detach := engine.Subscribe(printSignal, nil)
	defer detach()

	store, sessionID := openTranscript(ctx, cfg)
	defer store.Close()
	installTranscriptCallback(ctx, engine, store, sessionID)

	messages := []llm.Message{llm.SystemText(systemPrompt())}
	if runSystem != "" {
		messages = append(messages, llm.SystemText(runSystem))
	}
	messages = append(messages, llm.UserText(request))

	result, err := engine.Run(ctx, messages)
	if err != nil {
		return err
	}
	fmt.Println()
	if result.Err != nil {
		return fmt.Errorf("run failed after %d turns: %w", len(result.Turns), result.Err)
	}
	if flagVerbose {
		slog.Debug("run finished",
			"turns", len(result.Turns),
			"input_tokens", result.Usage.InputTokens,
			"output_tokens", result.Usage.OutputTokens)
	}
	return nil
}

// buildToolSystem constructs the registry and approval manager from config,
// with a terminal confirmation prompt.
func buildToolSystem(cfg *config.Config) (*tools.Registry, *tools.ApprovalManager, error) {
	for _, err := range cfg.Tools.Validate() {
		slog.Warn("tool config problem", "error", err)
	}
	perms, err := cfg.Tools.BuildPermissions()
	if err != nil {
		return nil, nil, fmt.Errorf("invalid tool permissions: %w", err)
	}

	approval := tools.NewApprovalManager(perms)
	approval.YoloMode = cfg.Tools.YoloAllowed()
	approval.Confirm = terminalConfirm

	registry := tools.NewRegistry()
	tools.RegisterBuiltins(registry, &cfg.Tools, approval)
	return registry, approval, nil
}

// terminalConfirm prompts on the controlling terminal for a pending tool
// approval.
func terminalConfirm(req tools.ConfirmRequest) (tools.ConfirmOutcome, error) {
	if req.Command != "" {
		fmt.Fprintf(os.Stderr, "\n%s wants to run: %s\n", req.ToolName, req.Command)
	} else {
		verb := "read"
		if req.IsWrite {
			verb = "write"
		}
		fmt.Fprintf(os.Stderr, "\n%s wants to %s in %s\n", req.ToolName, verb, req.Path)
	}
	fmt.Fprint(os.Stderr, "[y]es once / [a]lways this session / [s]ave for project / [n]o: ")

	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return tools.Cancel, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return tools.ProceedOnce, nil
	case "a", "always":
		return tools.ProceedAlways, nil
	case "s", "save":
		return tools.ProceedAlwaysAndSave, nil
	default:
		return tools.Cancel, nil
	}
}

// connectMCPServers starts every enabled configured server. Failures are
// logged, not fatal; the run proceeds with whatever connected.
func connectMCPServers(ctx context.Context, bridge *mcp.Bridge, cfg *config.Config) {
	for name, server := range cfg.MCP.Servers {
		if !server.IsEnabled() {
			continue
		}
		err := bridge.Connect(ctx, name, mcp.ServerConfig{
			Command: server.Command,
			Args:    server.Args,
			Env:     server.Env,
		})
		if err != nil {
			slog.Warn("mcp server unavailable", "server", name, "error", err)
		}
	}
}

func providerOptions(cfg *config.Config) llm.ProviderOptions {
	opts := llm.ProviderOptions{Retry: cfg.Retry, ScriptPath: runScript}
	switch cfg.Provider {
	case "anthropic":
		opts.APIKey = cfg.Anthropic.APIKey
		opts.Model = cfg.Anthropic.Model
	case "openai":
		opts.APIKey = cfg.OpenAI.APIKey
		opts.BaseURL = cfg.OpenAI.BaseURL
		opts.Model = cfg.OpenAI.Model
	case "gemini":
		opts.APIKey = cfg.Gemini.APIKey
		opts.Model = cfg.Gemini.Model
	case "scripted":
		// Replayed chunk logs never retry.
		opts.Retry = false
	}
	return opts
}

// openTranscript opens the configured transcript store and starts a session
// record. Any failure downgrades to a NoopStore.
func openTranscript(ctx context.Context, cfg *config.Config) (transcript.Store, string) {
	sessionID := uuid.NewString()
	if !cfg.Transcript.Enabled {
		return transcript.NoopStore{}, sessionID
	}
	path := cfg.Transcript.Path
	if path == "" {
		p, err := cfg.TranscriptPath()
		if err != nil {
			slog.Warn("transcript disabled", "error", err)
			return transcript.NoopStore{}, sessionID
		}
		path = p
	}
	store, err := transcript.Open(path)
	if err != nil {
		slog.Warn("transcript disabled", "error", err)
		return transcript.NoopStore{}, sessionID
	}

	cwd, _ := os.Getwd()
	sess := &transcript.Session{
		ID:       sessionID,
		Provider: cfg.Provider,
		Model:    modelFor(cfg),
		CWD:      cwd,
	}
	if err := store.StartSession(ctx, sess); err != nil {
		slog.Warn("transcript disabled", "error", err)
		store.Close()
		return transcript.NoopStore{}, sessionID
	}
	return store, sessionID
}

func modelFor(cfg *config.Config) string {
	switch cfg.Provider {
	case "anthropic":
		return cfg.Anthropic.Model
	case "openai":
		return cfg.OpenAI.Model
	case "gemini":
		return cfg.Gemini.Model
	}
	return ""
}

// installTranscriptCallback persists each finished turn. Persistence errors
// are logged and never interrupt the run.
func installTranscriptCallback(ctx context.Context, engine *llm.Engine, store transcript.Store, sessionID string) {
	sequence := 0
	engine.SetTurnCompletedCallback(func(res llm.TurnResult, results []llm.ToolResult) {
		sequence++
		turn := &transcript.Turn{
			Sequence:  sequence,
			Text:      res.Text,
			Reasoning: res.Reasoning,
		}
		if res.Usage != nil {
			turn.InputTokens = res.Usage.InputTokens
			turn.OutputTokens = res.Usage.OutputTokens
		}
		if res.Err != nil {
			turn.Error = res.Err.Error()
		}
		outputs := make(map[string]llm.ToolResult, len(results))
		for _, r := range results {
			outputs[r.ID] = r
		}
		for _, call := range res.ToolCalls {
			entry := transcript.ToolCallEntry{
				ID:        call.ID,
				Name:      call.Name,
				Arguments: call.Arguments,
				Status:    string(call.Status),
			}
			if out, ok := outputs[call.ID]; ok {
				entry.Output = out.Content
				entry.IsError = out.IsError
			}
			turn.ToolCalls = append(turn.ToolCalls, entry)
		}
		if err := store.AppendTurn(ctx, sessionID, turn); err != nil {
			slog.Warn("transcript append failed", "error", err)
		}
	})
}

// printSignal renders engine lifecycle signals as streaming terminal
// output.
func printSignal(sig llm.Signal) {
	switch sig.Kind {
	case llm.SignalTextDelta:
		fmt.Print(sig.Text)
	case llm.SignalReasoningStarted:
		fmt.Fprint(os.Stderr, "[thinking] ")
	case llm.SignalReasoningDelta:
		fmt.Fprint(os.Stderr, sig.Text)
	case llm.SignalReasoningEnded:
		fmt.Fprintln(os.Stderr)
	case llm.SignalToolExecStarted:
		if sig.Call != nil {
			fmt.Fprintf(os.Stderr, "\n→ %s\n", sig.Call.Name)
		}
	case llm.SignalToolExecEnded:
		if sig.Call != nil && sig.Call.Status != llm.StatusSucceeded {
			fmt.Fprintf(os.Stderr, "✗ %s (%s)\n", sig.Call.Name, sig.Call.Status)
		}
	case llm.SignalTurnError:
		if sig.Err != nil {
			fmt.Fprintf(os.Stderr, "\nerror: %v\n", sig.Err)
		}
	}
}

func systemPrompt() string {
	cwd, _ := os.Getwd()
	return fmt.Sprintf(`You are stitch, a coding agent running in a terminal.
Working directory: %s

Use the provided tools to inspect and modify the project. Prefer small,
verifiable steps. When the task is done, reply with a short summary and
stop requesting tools.`, cwd)
}
