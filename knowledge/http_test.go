package knowledge

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func httpServer(t *testing.T) (*Service, *httptest.Server) {
	t.Helper()
	svc := testService(t)
	srv := httptest.NewServer(svc.Routes())
	t.Cleanup(srv.Close)
	return svc, srv
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	b, _ := json.Marshal(body)
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestHTTPSubmitFile(t *testing.T) {
	_, srv := httpServer(t)

	resp := postJSON(t, srv.URL+"/submit-file", validRequest("example.com", "README", "alice"))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var res SubmitResult
	json.NewDecoder(resp.Body).Decode(&res)
	if res.FileID == "" || res.Version != 1 || res.PointsAwarded != 15 {
		t.Fatalf("result = %+v", res)
	}

	var f File
	if code := getJSON(t, srv.URL+"/files?domain=example.com&path=README", &f); code != http.StatusOK {
		t.Fatalf("get file status = %d", code)
	}
	if f.ID != res.FileID {
		t.Errorf("file id = %s, want %s", f.ID, res.FileID)
	}

	var history []Contribution
	if code := getJSON(t, srv.URL+"/files/"+res.FileID+"/history", &history); code != http.StatusOK || len(history) != 1 {
		t.Errorf("history = %d %+v", code, history)
	}
}

func TestHTTPSubmitValidation(t *testing.T) {
	svc, srv := httpServer(t)

	// requiresAuth explicitly null.
	body := map[string]any{
		"domain": "example.com", "path": "README", "title": "t", "summary": "s",
		"tags": []string{}, "entities": map[string]any{"primary": "p", "disambiguation": "d"},
		"intent":     map[string]any{"coreQuestion": "q", "audience": "any"},
		"confidence": "low", "requiresAuth": nil, "content": "c",
		"contributorName": "alice", "changeReason": "r",
	}
	resp := postJSON(t, srv.URL+"/submit-file", body)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	var out map[string]string
	json.NewDecoder(resp.Body).Decode(&out)
	if out["field"] != "requiresAuth" {
		t.Errorf("field = %q", out["field"])
	}

	resp = postJSON(t, srv.URL+"/submit-file", "not an object")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad body status = %d", resp.StatusCode)
	}

	st, _ := svc.Stats(t.Context())
	if st.Contributions != 0 {
		t.Errorf("rejected submissions wrote %d contributions", st.Contributions)
	}
}

func TestHTTPReads(t *testing.T) {
	svc, srv := httpServer(t)
	ctx := t.Context()
	svc.Submit(ctx, validRequest("example.com", "README", "alice"))
	svc.Submit(ctx, validRequest("example.com", "flows/login.md", "bob"))

	tests := []struct {
		path string
		code int
	}{
		{"/sites", 200},
		{"/sites?q=organised", 200},
		{"/sites/example.com", 200},
		{"/sites/unknown.example", 404},
		{"/sites/example.com/files?glob=flows/*", 200},
		{"/files?domain=example.com", 400},
		{"/files?domain=example.com&path=missing.md", 404},
		{"/search?q=search", 200},
		{"/search", 400},
		{"/contributions?contributor=bob", 200},
		{"/files/nope/history", 404},
		{"/leaderboard?limit=5", 200},
		{"/stats", 200},
	}
	for _, tt := range tests {
		if code := getJSON(t, srv.URL+tt.path, nil); code != tt.code {
			t.Errorf("GET %s = %d, want %d", tt.path, code, tt.code)
		}
	}

	var files []File
	getJSON(t, srv.URL+"/sites/example.com/files?glob=flows/*", &files)
	if len(files) != 1 || files[0].Path != "flows/login.md" {
		t.Errorf("glob listing = %+v", files)
	}

	var st Stats
	getJSON(t, srv.URL+"/stats", &st)
	if st != (Stats{Sites: 1, Files: 2, Contributions: 2, Contributors: 2}) {
		t.Errorf("stats = %+v", st)
	}
}
