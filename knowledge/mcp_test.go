package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var testImpl = &mcp.Implementation{Name: "knowledge-test", Version: "0.1.0"}

func mcpSession(t *testing.T) (*Service, *mcp.ClientSession) {
	t.Helper()
	svc := testService(t)

	srv := mcp.NewServer(testImpl, nil)
	svc.RegisterMCP(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()

	client := mcp.NewClient(testImpl, nil)
	session, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return svc, session
}

func callTool(t *testing.T, session *mcp.ClientSession, name string, args any) string {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	if result.IsError {
		t.Fatalf("CallTool(%s) tool error: %v", name, toolError(result))
	}
	if len(result.Content) == 0 {
		t.Fatalf("CallTool(%s): empty content", name)
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("CallTool(%s): expected TextContent, got %T", name, result.Content[0])
	}
	return tc.Text
}

func callToolError(t *testing.T, session *mcp.ClientSession, name string, args any) error {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	if !result.IsError {
		t.Fatalf("CallTool(%s): expected tool error", name)
	}
	return toolError(result)
}

// toolError rebuilds the error a tool handler returned. Over the wire it
// only survives as the text of the first content block.
func toolError(result *mcp.CallToolResult) error {
	if len(result.Content) == 0 {
		return errors.New("tool error without content")
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		return fmt.Errorf("tool error with %T content", result.Content[0])
	}
	return errors.New(tc.Text)
}

const checkoutDoc = `---
title: Checkout flow
domain: www.shop.example
path: flows/checkout.md
type: flow
summary: From basket to payment confirmation
tags: [checkout, payment]
entities:
  primary: checkout
  disambiguation: purchase flow of the shop
  related_concepts: [basket]
intent:
  core_question: How do I buy an item?
  audience: browser-agent
confidence: high
requires_auth: true
---

# Checkout

1. Open the basket.
2. Click "Pay now".
`

func TestMCPToolsList(t *testing.T) {
	_, session := mcpSession(t)
	res, err := session.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]bool{
		"radar_get_context": false, "radar_list_files": false, "radar_get_file": false,
		"radar_search": false, "radar_submit": false, "radar_leaderboard": false,
		"radar_upsert_site": false,
	}
	for _, tool := range res.Tools {
		if _, ok := want[tool.Name]; ok {
			want[tool.Name] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("tool %s not registered", name)
		}
	}
}

func TestMCPSubmitAndRead(t *testing.T) {
	_, session := mcpSession(t)

	text := callTool(t, session, "radar_submit", map[string]any{
		"content":     checkoutDoc,
		"contributor": "mcp-agent",
		"reason":      "mapped checkout",
		"agent_type":  "claude",
	})
	var res SubmitResult
	if err := json.Unmarshal([]byte(text), &res); err != nil {
		t.Fatal(err)
	}
	if res.Version != 1 || res.PointsAwarded != 15 {
		t.Fatalf("submit result = %+v", res)
	}

	var sc SiteContext
	json.Unmarshal([]byte(callTool(t, session, "radar_get_context", map[string]any{"domain": "shop.example"})), &sc)
	if sc.Site == nil || sc.Site.Domain != "shop.example" || len(sc.Files) != 1 {
		t.Fatalf("context = %+v", sc)
	}

	var f File
	json.Unmarshal([]byte(callTool(t, session, "radar_get_file", map[string]any{
		"domain": "shop.example", "path": "flows/checkout.md",
	})), &f)
	if !f.RequiresAuth || f.Type != "flow" || !strings.Contains(f.Content, "Pay now") {
		t.Errorf("file = %+v", f)
	}

	var files []File
	json.Unmarshal([]byte(callTool(t, session, "radar_list_files", map[string]any{
		"domain": "shop.example", "glob": "flows/*",
	})), &files)
	if len(files) != 1 || files[0].Content != "" {
		t.Errorf("list = %+v", files)
	}

	json.Unmarshal([]byte(callTool(t, session, "radar_search", map[string]any{"query": "basket"})), &files)
	if len(files) != 1 {
		t.Errorf("search = %+v", files)
	}

	var board []Contributor
	json.Unmarshal([]byte(callTool(t, session, "radar_leaderboard", map[string]any{})), &board)
	if len(board) != 1 || board[0].Name != "mcp-agent" || board[0].AgentType != "claude" {
		t.Errorf("leaderboard = %+v", board)
	}
}

func TestMCPGetContextUnknownDomain(t *testing.T) {
	_, session := mcpSession(t)
	text := callTool(t, session, "radar_get_context", map[string]any{"domain": "nowhere.example"})
	var out map[string]any
	json.Unmarshal([]byte(text), &out)
	if out["found"] != false {
		t.Errorf("unknown domain = %s", text)
	}
}

func TestMCPErrors(t *testing.T) {
	_, session := mcpSession(t)

	err := callToolError(t, session, "radar_submit", map[string]any{
		"content":     "no frontmatter here",
		"contributor": "x",
		"reason":      "y",
	})
	if err == nil || !strings.Contains(err.Error(), "frontmatter") {
		t.Errorf("submit without frontmatter err = %v", err)
	}

	err = callToolError(t, session, "radar_get_file", map[string]any{"domain": "a.example", "path": "README"})
	if err == nil {
		t.Error("expected error for missing file")
	}
}
