package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stitchkit/stitch/internal/llm"
)

var replayJSON bool

var replayCmd = &cobra.Command{
	Use:   "replay <chunk-log>",
	Short: "Replay a recorded chunk log through the ingestion pipeline",
	Long: `Feed a JSONL chunk log through a session without contacting any
provider or executing any tools, then print the finalized turn. Useful for
inspecting how a recorded stream assembles, including partial tool
argument repair.

Each line of the log is one chunk object, e.g.:
  {"type":"text","text":"hello "}
  {"type":"tool_call_start","id":"c1","name":"read_file"}
  {"type":"tool_call_delta","id":"c1","args_delta":"{\"path\":\"ma"}
  {"type":"done"}`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	replayCmd.Flags().BoolVar(&replayJSON, "json", false, "Print the finalized turn as JSON")
	rootCmd.AddCommand(replayCmd)
}

func runReplay(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("opening chunk log: %w", err)
	}
	provider, err := llm.LoadScript(f)
	f.Close()
	if err != nil {
		return err
	}

	stream, err := provider.Stream(context.Background(), llm.Request{})
	if err != nil {
		return err
	}

	session := llm.NewSession()
	res := session.Ingest(stream)

	if replayJSON {
		return printReplayJSON(res)
	}
	printReplayText(res)
	return nil
}

func printReplayText(res llm.TurnResult) {
	if res.Reasoning != "" {
		fmt.Printf("reasoning:\n%s\n\n", res.Reasoning)
	}
	if res.Text != "" {
		fmt.Printf("text:\n%s\n", res.Text)
	}
	for _, call := range res.ToolCalls {
		args, _ := json.Marshal(call.Arguments)
		fmt.Printf("\ntool call %s (%s)\n  status: %s\n  arguments: %s\n",
			call.Name, call.ID, call.Status, args)
		if call.Streaming {
			fmt.Println("  incomplete: arguments repaired from a partial stream")
		}
	}
	if res.Usage != nil {
		fmt.Printf("\nusage: %d in / %d out\n", res.Usage.InputTokens, res.Usage.OutputTokens)
	}
	if res.Err != nil {
		fmt.Printf("\nerror: %v\n", res.Err)
	}
}

func printReplayJSON(res llm.TurnResult) error {
	out := map[string]any{
		"text":       res.Text,
		"reasoning":  res.Reasoning,
		"tool_calls": res.ToolCalls,
	}
	if res.Usage != nil {
		out["usage"] = res.Usage
	}
	if res.Err != nil {
		out["error"] = res.Err.Error()
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
