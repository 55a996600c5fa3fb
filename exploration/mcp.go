package exploration

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/radar/kit"
)

// RegisterMCP registers the exploration tools on an MCP server.
func (o *Orchestrator) RegisterMCP(srv *mcp.Server) {
	o.registerExploreTool(srv)
	o.registerStatusTool(srv)
}

func (o *Orchestrator) registerExploreTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name: "radar_explore",
		Description: "Send a browser agent to explore a website and submit knowledge files about it. " +
			"Returns immediately with an exploration id; check progress with radar_exploration_status.",
		InputSchema: kit.InputSchema(map[string]any{
			"url":          map[string]any{"type": "string", "description": `Site to explore, e.g. "example.com" or "https://example.com/pricing"`},
			"instructions": map[string]any{"type": "string", "description": "What to focus on"},
			"provider":     map[string]any{"type": "string", "description": "Automation backend: " + fmt.Sprint(o.providers.Names())},
		}, []string{"url"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		return o.Start(ctx, req.(*StartRequest))
	}

	kit.RegisterMCPTool(srv, tool, kit.Logging(o.logger, tool.Name)(endpoint), kit.DecodeJSON[StartRequest]())
}

type statusRequest struct {
	ID string `json:"id"`
}

func (o *Orchestrator) registerStatusTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "radar_exploration_status",
		Description: "Status of an exploration: queued, running, completed or failed, with live URL and result summary when known.",
		InputSchema: kit.InputSchema(map[string]any{
			"id": map[string]any{"type": "string", "description": "Exploration id returned by radar_explore"},
		}, []string{"id"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		id := req.(*statusRequest).ID
		e, err := o.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if e == nil {
			return nil, fmt.Errorf("no exploration %s", id)
		}
		return e, nil
	}

	kit.RegisterMCPTool(srv, tool, kit.Logging(o.logger, tool.Name)(endpoint), kit.DecodeJSON[statusRequest]())
}
