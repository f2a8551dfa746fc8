package tools

import "log/slog"

// RegisterBuiltins constructs executors for every enabled built-in tool and
// bulk-registers them, marking the registry initialized.
func RegisterBuiltins(r *Registry, cfg *Config, approval *ApprovalManager) {
	all := map[string]Executor{
		ReadFileToolName:  NewReadFileExecutor(approval),
		WriteFileToolName: NewWriteFileExecutor(approval),
		EditFileToolName:  NewEditFileExecutor(approval),
		ShellToolName:     NewShellExecutor(approval),
		GrepToolName:      NewGrepExecutor(approval),
		GlobToolName:      NewGlobExecutor(approval),
		ListDirToolName:   NewListDirExecutor(approval),
	}

	enabled := make(map[string]Executor, len(all))
	for name, executor := range all {
		if cfg != nil && !cfg.IsToolEnabled(name) {
			slog.Debug("tool disabled by config", "tool", name)
			continue
		}
		enabled[name] = executor
	}
	r.RegisterAll(enabled)
}
