package tools

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/gobwas/glob"
)

// Config holds configuration for the tool system.
type Config struct {
	Enabled        []string `mapstructure:"enabled"`         // Enabled tool names; empty means all built-ins
	ReadDirs       []string `mapstructure:"read_dirs"`       // Pre-approved read directories
	WriteDirs      []string `mapstructure:"write_dirs"`      // Pre-approved write directories
	ShellAllow     []string `mapstructure:"shell_allow"`     // Pre-approved shell command patterns
	ScriptCommands []string `mapstructure:"script_commands"` // Exact commands, auto-approved
	Yolo           bool     `mapstructure:"yolo"`            // Approve everything without prompting
	YoloEnv        string   `mapstructure:"yolo_env"`        // Env var that must be "1" for yolo to apply
}

// DefaultConfig returns the default tool configuration.
func DefaultConfig() Config {
	return Config{
		Enabled: AllToolNames(),
		YoloEnv: "STITCH_ALLOW_YOLO",
	}
}

// Validate checks the configuration, returning one error per problem.
func (c *Config) Validate() []error {
	var errs []error
	for _, name := range c.Enabled {
		if !ValidToolName(name) && !strings.HasPrefix(name, "mcp_") {
			errs = append(errs, fmt.Errorf("unknown tool: %s", name))
		}
	}
	for _, pattern := range c.ShellAllow {
		if _, err := glob.Compile(pattern); err != nil {
			errs = append(errs, fmt.Errorf("invalid shell pattern %q: %w", pattern, err))
		}
	}
	for _, dir := range append(append([]string{}, c.ReadDirs...), c.WriteDirs...) {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			slog.Warn("allowlisted directory does not exist", "dir", dir)
		}
	}
	return errs
}

// IsToolEnabled checks if a tool name appears in the enabled list. An empty
// list enables every built-in tool.
func (c *Config) IsToolEnabled(name string) bool {
	if len(c.Enabled) == 0 {
		return ValidToolName(name)
	}
	for _, enabled := range c.Enabled {
		if enabled == name {
			return true
		}
	}
	return false
}

// YoloAllowed reports whether yolo mode may take effect. When YoloEnv is
// set, the variable must also be "1" so a config file alone cannot disable
// prompting inside an interactive session.
func (c *Config) YoloAllowed() bool {
	if !c.Yolo {
		return false
	}
	if c.YoloEnv != "" {
		return os.Getenv(c.YoloEnv) == "1"
	}
	return true
}

// BuildPermissions creates a Permissions allowlist from this config.
// Missing directories are logged and skipped; invalid shell patterns fail.
func (c *Config) BuildPermissions() (*Permissions, error) {
	perms := NewPermissions()
	for _, dir := range c.ReadDirs {
		if err := perms.AddReadDir(dir); err != nil {
			slog.Warn("skipping read dir", "dir", dir, "error", err)
		}
	}
	for _, dir := range c.WriteDirs {
		if err := perms.AddWriteDir(dir); err != nil {
			slog.Warn("skipping write dir", "dir", dir, "error", err)
		}
	}
	for _, pattern := range c.ShellAllow {
		if err := perms.AddShellPattern(pattern); err != nil {
			return nil, err
		}
	}
	for _, command := range c.ScriptCommands {
		perms.AddScriptCommand(command)
	}
	return perms, nil
}

// ParseToolsFlag parses a comma-separated tool list; "all" or "*" expand to
// every built-in tool.
func ParseToolsFlag(value string) []string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	if trimmed == "all" || trimmed == "*" {
		return AllToolNames()
	}
	var names []string
	for _, part := range strings.Split(trimmed, ",") {
		if part = strings.TrimSpace(part); part != "" {
			names = append(names, part)
		}
	}
	return names
}
