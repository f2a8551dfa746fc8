package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/stitchkit/stitch/internal/tools"
)

// Bridge manages MCP server clients and registers their tools into a tool
// registry as proxy executors.
type Bridge struct {
	registry *tools.Registry
	mu       sync.Mutex
	clients  map[string]*Client
}

// NewBridge creates a bridge targeting the given registry.
func NewBridge(registry *tools.Registry) *Bridge {
	return &Bridge{
		registry: registry,
		clients:  make(map[string]*Client),
	}
}

// Connect starts the named server and registers its tools. Registration uses
// override=false, so MCP tools never shadow built-ins or tools from earlier
// servers; collisions are logged and skipped.
func (b *Bridge) Connect(ctx context.Context, name string, config ServerConfig) error {
	b.mu.Lock()
	if _, exists := b.clients[name]; exists {
		b.mu.Unlock()
		return fmt.Errorf("MCP server %s already connected", name)
	}
	b.mu.Unlock()

	client := NewClient(name, config)
	if err := client.Start(ctx); err != nil {
		return err
	}

	b.mu.Lock()
	b.clients[name] = client
	b.mu.Unlock()

	for _, tool := range client.Tools() {
		proxyName := ProxyToolName(name, tool.Name)
		b.registry.Define(&tools.Definition{
			Name:        proxyName,
			Description: fmt.Sprintf("[%s] %s", name, tool.Description),
			Category:    tools.CategoryExecute,
			Approval:    tools.ApprovalAsk,
			Schema:      tool.Schema,
		})
		if !b.registry.Register(proxyName, &proxyExecutor{client: client, tool: tool.Name}, false) {
			slog.Warn("mcp tool registration skipped", "server", name, "tool", proxyName)
		}
	}
	return nil
}

// Disconnect stops the named server. Its registered tools remain defined but
// fail on execution until the server reconnects.
func (b *Bridge) Disconnect(name string) error {
	b.mu.Lock()
	client, ok := b.clients[name]
	delete(b.clients, name)
	b.mu.Unlock()
	if !ok {
		return nil
	}
	return client.Stop()
}

// Close stops every connected server.
func (b *Bridge) Close() {
	b.mu.Lock()
	clients := make([]*Client, 0, len(b.clients))
	for _, c := range b.clients {
		clients = append(clients, c)
	}
	b.clients = make(map[string]*Client)
	b.mu.Unlock()

	for _, c := range clients {
		if err := c.Stop(); err != nil {
			slog.Warn("mcp server stop failed", "server", c.Name(), "error", err)
		}
	}
}

// Servers returns the names of connected servers.
func (b *Bridge) Servers() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := make([]string, 0, len(b.clients))
	for name := range b.clients {
		names = append(names, name)
	}
	return names
}

// ProxyToolName builds the registry name for a bridged tool.
func ProxyToolName(server, tool string) string {
	return fmt.Sprintf("mcp_%s_%s", server, tool)
}

// proxyExecutor forwards registry executions to the owning MCP client.
type proxyExecutor struct {
	client *Client
	tool   string
}

func (p *proxyExecutor) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	return p.client.CallTool(ctx, p.tool, args)
}
