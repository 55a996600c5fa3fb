package knowledge

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/radar/kit"
)

// RegisterMCP registers the knowledge tools on an MCP server.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	s.registerGetContextTool(srv)
	s.registerListFilesTool(srv)
	s.registerGetFileTool(srv)
	s.registerSearchTool(srv)
	s.registerSubmitTool(srv)
	s.registerUpsertSiteTool(srv)
	s.registerLeaderboardTool(srv)
}

func (s *Service) addTool(srv *mcp.Server, tool *mcp.Tool, endpoint kit.Endpoint, decode func(*mcp.CallToolRequest) (*kit.MCPDecodeResult, error)) {
	kit.RegisterMCPTool(srv, tool, kit.Logging(s.logger, tool.Name)(endpoint), decode)
}

// --- radar_get_context ---

type domainRequest struct {
	Domain string `json:"domain"`
}

func (s *Service) registerGetContextTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "radar_get_context",
		Description: "Get an overview of a website's knowledge in Radar: the site metadata and the frontmatter (title, path, summary, confidence) of every knowledge file, without bodies. Call this before visiting an unfamiliar site.",
		InputSchema: kit.InputSchema(map[string]any{
			"domain": map[string]any{"type": "string", "description": `Website domain, e.g. "amazon.com"`},
		}, []string{"domain"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		rr := req.(*domainRequest)
		sc, err := s.Context(ctx, rr.Domain)
		if err != nil {
			return nil, err
		}
		if sc == nil {
			return map[string]any{
				"domain": NormalizeDomain(rr.Domain),
				"found":  false,
				"hint":   "No knowledge yet. Try radar_search, or radar_explore to generate some.",
			}, nil
		}
		return sc, nil
	}

	s.addTool(srv, tool, endpoint, kit.DecodeJSON[domainRequest]())
}

// --- radar_list_files ---

type listFilesRequest struct {
	Domain string `json:"domain"`
	Glob   string `json:"glob,omitempty"`
}

func (s *Service) registerListFilesTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "radar_list_files",
		Description: "List knowledge files for a domain with frontmatter only (no body content), optionally filtered by a glob on the path.",
		InputSchema: kit.InputSchema(map[string]any{
			"domain": map[string]any{"type": "string", "description": `Website domain, e.g. "amazon.com"`},
			"glob":   map[string]any{"type": "string", "description": `Optional glob on the file path, e.g. "flows/*" or "**.md"`},
		}, []string{"domain"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		rr := req.(*listFilesRequest)
		return s.ListFiles(ctx, rr.Domain, rr.Glob)
	}

	s.addTool(srv, tool, endpoint, kit.DecodeJSON[listFilesRequest]())
}

// --- radar_get_file ---

type getFileRequest struct {
	Domain string `json:"domain"`
	Path   string `json:"path"`
}

func (s *Service) registerGetFileTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "radar_get_file",
		Description: "Read one knowledge file, frontmatter and full content.",
		InputSchema: kit.InputSchema(map[string]any{
			"domain": map[string]any{"type": "string", "description": "Website domain"},
			"path":   map[string]any{"type": "string", "description": `File path, e.g. "README" or "flows/checkout.md"`},
		}, []string{"domain", "path"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		rr := req.(*getFileRequest)
		f, err := s.GetFile(ctx, rr.Domain, rr.Path)
		if err != nil {
			return nil, err
		}
		if f == nil {
			return nil, fmt.Errorf("no file %s/%s", NormalizeDomain(rr.Domain), rr.Path)
		}
		return f, nil
	}

	s.addTool(srv, tool, endpoint, kit.DecodeJSON[getFileRequest]())
}

// --- radar_search ---

type searchRequest struct {
	Query  string `json:"query"`
	Domain string `json:"domain,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

func (s *Service) registerSearchTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "radar_search",
		Description: "Full-text search across knowledge files, optionally within one domain. Returns frontmatter only.",
		InputSchema: kit.InputSchema(map[string]any{
			"query":  map[string]any{"type": "string", "description": "Search terms"},
			"domain": map[string]any{"type": "string", "description": "Restrict to this domain"},
			"limit":  map[string]any{"type": "integer", "description": "Max results (default 20)"},
		}, []string{"query"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		rr := req.(*searchRequest)
		return s.SearchFiles(ctx, rr.Query, rr.Domain, rr.Limit)
	}

	s.addTool(srv, tool, endpoint, kit.DecodeJSON[searchRequest]())
}

// --- radar_submit ---

type submitToolRequest struct {
	Content     string `json:"content"`
	Contributor string `json:"contributor"`
	Reason      string `json:"reason"`
	AgentType   string `json:"agent_type,omitempty"`
}

func (s *Service) registerSubmitTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name: "radar_submit",
		Description: "Submit a knowledge file: a markdown document whose YAML frontmatter carries title, domain, path, summary, tags, " +
			"entities, intent, confidence and requires_auth. Versioned and attributed; new site 10pts, new file 5pts, update 3pts.",
		InputSchema: kit.InputSchema(map[string]any{
			"content":     map[string]any{"type": "string", "description": "Full markdown file with YAML frontmatter"},
			"contributor": map[string]any{"type": "string", "description": `Your contributor name, e.g. "checkout-agent"`},
			"reason":      map[string]any{"type": "string", "description": "Why this change was made"},
			"agent_type":  map[string]any{"type": "string", "description": `Kind of agent, e.g. "browser-use"`},
		}, []string{"content", "contributor", "reason"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		rr := req.(*submitToolRequest)
		sr, err := ParseKnowledgeFile(rr.Content, rr.Contributor, rr.Reason, rr.AgentType)
		if err != nil {
			return nil, err
		}
		return s.Submit(ctx, sr)
	}

	s.addTool(srv, tool, endpoint, kit.DecodeJSON[submitToolRequest]())
}

// --- radar_upsert_site ---

func (s *Service) registerUpsertSiteTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "radar_upsert_site",
		Description: "Create or update a website's metadata: display name, description, tags, complexity and whether it requires login. Awards no points.",
		InputSchema: kit.InputSchema(map[string]any{
			"domain":       map[string]any{"type": "string", "description": "Website domain"},
			"name":         map[string]any{"type": "string", "description": "Display name"},
			"description":  map[string]any{"type": "string", "description": "What the site is, searchable"},
			"tags":         map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"complexity":   map[string]any{"type": "string", "description": `How hard the site is to automate: "low", "medium" or "high"`},
			"authRequired": map[string]any{"type": "boolean", "description": "Whether most of the site is behind a login"},
		}, []string{"domain", "name", "tags"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		site, created, err := s.UpsertSite(ctx, req.(*SiteRequest))
		if err != nil {
			return nil, err
		}
		return map[string]any{"site": site, "created": created}, nil
	}

	s.addTool(srv, tool, endpoint, kit.DecodeJSON[SiteRequest]())
}

// --- radar_leaderboard ---

type leaderboardRequest struct {
	Limit int `json:"limit,omitempty"`
}

func (s *Service) registerLeaderboardTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "radar_leaderboard",
		Description: "Top contributors by points.",
		InputSchema: kit.InputSchema(map[string]any{
			"limit": map[string]any{"type": "integer", "description": "Max entries (default 50)"},
		}, nil),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		return s.Leaderboard(ctx, req.(*leaderboardRequest).Limit)
	}

	s.addTool(srv, tool, endpoint, kit.DecodeJSON[leaderboardRequest]())
}
