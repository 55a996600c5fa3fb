package exploration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/radar/connectivity"
)

var testImpl = &mcp.Implementation{Name: "exploration-test", Version: "0.1.0"}

func TestMCPExploreAndStatus(t *testing.T) {
	o := testOrchestrator(t, testConfig(), &fakeProvider{})
	ctx := context.Background()

	srv := mcp.NewServer(testImpl, nil)
	o.RegisterMCP(srv)
	serverT, clientT := mcp.NewInMemoryTransports()
	go func() { _ = srv.Run(ctx, serverT) }()
	session, err := mcp.NewClient(testImpl, nil).Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	defer session.Close()

	call := func(name string, args any) (*mcp.CallToolResult, string) {
		t.Helper()
		res, err := session.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: args})
		if err != nil {
			t.Fatalf("CallTool(%s): %v", name, err)
		}
		text := ""
		if len(res.Content) > 0 {
			if tc, ok := res.Content[0].(*mcp.TextContent); ok {
				text = tc.Text
			}
		}
		return res, text
	}

	res, text := call("radar_explore", map[string]any{"url": "example.com", "instructions": "find the pricing page"})
	if res.IsError {
		t.Fatalf("radar_explore: %s", text)
	}
	var e Exploration
	if err := json.Unmarshal([]byte(text), &e); err != nil {
		t.Fatal(err)
	}
	if e.ID == "" || e.Status != StatusQueued || e.Domain != "example.com" {
		t.Fatalf("explore = %+v", e)
	}

	res, text = call("radar_exploration_status", map[string]any{"id": e.ID})
	if res.IsError || !strings.Contains(text, `"status":"queued"`) {
		t.Fatalf("status = %s", text)
	}

	if res, _ := call("radar_exploration_status", map[string]any{"id": "missing"}); !res.IsError {
		t.Error("unknown id: expected tool error")
	}
	if res, _ := call("radar_explore", map[string]any{"url": "ftp://example.com"}); !res.IsError {
		t.Error("bad url: expected tool error")
	}
}

func TestHTTPExplorations(t *testing.T) {
	o := testOrchestrator(t, testConfig(), &fakeProvider{})
	r := chi.NewRouter()
	r.Mount("/explorations", o.Routes())
	srv := httptest.NewServer(r)
	defer srv.Close()

	post := func(body string) *http.Response {
		t.Helper()
		resp, err := http.Post(srv.URL+"/explorations", "application/json", bytes.NewReader([]byte(body)))
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	resp := post(`{"url":"https://www.example.com"}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("POST status = %d", resp.StatusCode)
	}
	var e Exploration
	json.NewDecoder(resp.Body).Decode(&e)
	if e.ID == "" || e.Domain != "example.com" {
		t.Fatalf("created = %+v", e)
	}

	if resp := post(`{"url":""}`); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty url status = %d", resp.StatusCode)
	}
	if resp := post(`not json`); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad json status = %d", resp.StatusCode)
	}

	get := func(path string, out any) int {
		t.Helper()
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		if out != nil && resp.StatusCode == http.StatusOK {
			json.NewDecoder(resp.Body).Decode(out)
		}
		return resp.StatusCode
	}

	var got Exploration
	if code := get("/explorations/"+e.ID, &got); code != http.StatusOK || got.ID != e.ID {
		t.Fatalf("GET by id = %d %+v", code, got)
	}
	if code := get("/explorations/missing", nil); code != http.StatusNotFound {
		t.Errorf("GET missing = %d", code)
	}

	var list []Exploration
	if code := get("/explorations?status=queued&limit=5", &list); code != http.StatusOK || len(list) != 1 {
		t.Fatalf("list queued = %d %d", code, len(list))
	}
	if code := get("/explorations?status=done", nil); code != http.StatusBadRequest {
		t.Errorf("bad status filter = %d", code)
	}
}

func TestConnectivityExplore(t *testing.T) {
	o := testOrchestrator(t, testConfig(), &fakeProvider{})
	router := connectivity.New()
	o.RegisterConnectivity(router)
	ctx := context.Background()

	out, err := router.Call(ctx, "radar_explore", []byte(`{"url":"example.com"}`))
	if err != nil {
		t.Fatalf("radar_explore: %v", err)
	}
	var e Exploration
	json.Unmarshal(out, &e)
	if e.ID == "" {
		t.Fatalf("explore = %s", out)
	}

	out, err = router.Call(ctx, "radar_exploration_status", []byte(`{"id":"`+e.ID+`"}`))
	if err != nil || !strings.Contains(string(out), e.ID) {
		t.Fatalf("status = %s, %v", out, err)
	}
	if _, err := router.Call(ctx, "radar_explore", []byte(`{"url":"example.com","provider":"nope"}`)); err == nil {
		t.Error("unknown provider: expected error")
	}
}
