package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/stitchkit/stitch/internal/config"
	"github.com/stitchkit/stitch/internal/mcp"
	"github.com/stitchkit/stitch/internal/tools"
)

var (
	toolsWithMCP bool
	toolsEnable  []string
	toolsDisable []string
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the tools available to the agent",
	Long: `Show every registered tool with its category, approval policy, and
whether it may run in parallel with other tools. With --mcp, configured MCP
servers are connected first so their bridged tools appear too.

--enable and --disable toggle tools for this invocation before the table is
printed, showing the registry state a run with the same flags would see.`,
	RunE: runTools,
}

func init() {
	toolsCmd.Flags().BoolVar(&toolsWithMCP, "mcp", false, "Connect configured MCP servers and include their tools")
	toolsCmd.Flags().StringSliceVar(&toolsEnable, "enable", nil, "Tools to enable")
	toolsCmd.Flags().StringSliceVar(&toolsDisable, "disable", nil, "Tools to disable")
	rootCmd.AddCommand(toolsCmd)
}

func runTools(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	registry, _, err := buildToolSystem(cfg)
	if err != nil {
		return err
	}

	if toolsWithMCP {
		bridge := mcp.NewBridge(registry)
		defer bridge.Close()
		connectMCPServers(context.Background(), bridge, cfg)
	}

	if err := applyToolToggles(registry, toolsEnable, toolsDisable); err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tCATEGORY\tAPPROVAL\tPARALLEL\tENABLED")
	for _, name := range registry.Names() {
		category := tools.CategoryFor(name)
		parallel := "no"
		if registry.ParallelSafe(name) {
			parallel = "yes"
		}
		enabled := "yes"
		if !registry.IsEnabled(name) {
			enabled = "no"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			name, category, registry.ApprovalTypeFor(name), parallel, enabled)
	}
	return w.Flush()
}

// applyToolToggles enables then disables the named tools, so a name in both
// lists ends up disabled. Unknown names are an error rather than a silent
// no-op.
func applyToolToggles(registry *tools.Registry, enable, disable []string) error {
	for _, name := range enable {
		if !registry.SetEnabled(name, true) {
			return fmt.Errorf("cannot enable unknown tool %q", name)
		}
	}
	for _, name := range disable {
		if !registry.SetEnabled(name, false) {
			return fmt.Errorf("cannot disable unknown tool %q", name)
		}
	}
	return nil
}
