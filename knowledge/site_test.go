package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"
)

func TestUpsertSite(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()
	yes := true

	site, created, err := svc.UpsertSite(ctx, &SiteRequest{
		Domain:       "https://www.Shop.example/",
		Name:         "Shop",
		Description:  "Online store for garden furniture",
		Tags:         []string{"retail", " ", "garden"},
		Complexity:   "high",
		AuthRequired: &yes,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !created || site.Domain != "shop.example" || site.Complexity != "high" ||
		site.AuthRequired == nil || !*site.AuthRequired || len(site.Tags) != 2 || site.FileCount != 0 {
		t.Fatalf("created site = %+v (created %v)", site, created)
	}

	// A submission counts against the existing site and earns no new-site bonus.
	res, err := svc.Submit(ctx, validRequest("shop.example", "README", "alice"))
	if err != nil {
		t.Fatal(err)
	}
	if res.PointsAwarded != 5 {
		t.Errorf("points = %d, want 5", res.PointsAwarded)
	}

	// Omitted complexity and authRequired keep their stored values.
	site, created, err = svc.UpsertSite(ctx, &SiteRequest{
		Domain:      "shop.example",
		Name:        "Shop Example",
		Description: "Online store for outdoor furniture",
		Tags:        []string{"retail"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if created || site.Name != "Shop Example" || site.Complexity != "high" ||
		site.AuthRequired == nil || !*site.AuthRequired || site.FileCount != 1 {
		t.Fatalf("updated site = %+v (created %v)", site, created)
	}

	found, _ := svc.SearchSites(ctx, "outdoor", 0)
	if len(found) != 1 || found[0].ID != site.ID {
		t.Errorf("search outdoor = %+v", found)
	}
	if stale, _ := svc.SearchSites(ctx, "garden", 0); len(stale) != 0 {
		t.Errorf("old description still indexed: %+v", stale)
	}

	no := false
	site, _, _ = svc.UpsertSite(ctx, &SiteRequest{Domain: "shop.example", Name: "Shop", Tags: []string{}, Complexity: "low", AuthRequired: &no})
	if site.Complexity != "low" || site.AuthRequired == nil || *site.AuthRequired {
		t.Errorf("site = %+v", site)
	}
}

func TestUpsertSiteValidation(t *testing.T) {
	svc := testService(t)
	tests := []struct {
		name  string
		req   SiteRequest
		field string
	}{
		{"no domain", SiteRequest{Name: "x", Tags: []string{}}, "domain"},
		{"no name", SiteRequest{Domain: "a.example", Tags: []string{}}, "name"},
		{"nil tags", SiteRequest{Domain: "a.example", Name: "x"}, "tags"},
		{"bad complexity", SiteRequest{Domain: "a.example", Name: "x", Tags: []string{}, Complexity: "extreme"}, "complexity"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := svc.UpsertSite(context.Background(), &tt.req)
			var verr *ValidationError
			if !errors.As(err, &verr) || verr.Field != tt.field {
				t.Fatalf("err = %v, want field %s", err, tt.field)
			}
		})
	}
	if sites, _ := svc.ListSites(context.Background()); len(sites) != 0 {
		t.Errorf("invalid requests wrote sites: %+v", sites)
	}
}

func putJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	b, _ := json.Marshal(body)
	req, _ := http.NewRequest(http.MethodPut, url, strings.NewReader(string(b)))
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHTTPUpsertSite(t *testing.T) {
	_, srv := httpServer(t)
	body := map[string]any{
		"domain": "ignored.example", "name": "Docs", "description": "Developer docs",
		"tags": []string{"docs"}, "complexity": "medium", "authRequired": false,
	}

	resp := putJSON(t, srv.URL+"/sites/docs.example", body)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("first put status = %d", resp.StatusCode)
	}
	var site Site
	json.NewDecoder(resp.Body).Decode(&site)
	if site.Domain != "docs.example" || site.Complexity != "medium" || site.AuthRequired == nil {
		t.Fatalf("site = %+v", site)
	}

	if resp := putJSON(t, srv.URL+"/sites/docs.example", body); resp.StatusCode != http.StatusOK {
		t.Fatalf("second put status = %d", resp.StatusCode)
	}

	body["complexity"] = "extreme"
	resp = putJSON(t, srv.URL+"/sites/docs.example", body)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad complexity status = %d", resp.StatusCode)
	}

	var sc SiteContext
	if code := getJSON(t, srv.URL+"/sites/docs.example", &sc); code != http.StatusOK || sc.Site.Complexity != "medium" {
		t.Fatalf("get = %d %+v", code, sc.Site)
	}
}

func TestMCPUpsertSite(t *testing.T) {
	_, session := mcpSession(t)

	var out struct {
		Site    Site `json:"site"`
		Created bool `json:"created"`
	}
	text := callTool(t, session, "radar_upsert_site", map[string]any{
		"domain": "shop.example", "name": "Shop", "description": "Garden furniture",
		"tags": []string{"retail"}, "complexity": "low", "authRequired": true,
	})
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		t.Fatal(err)
	}
	if !out.Created || out.Site.Complexity != "low" || out.Site.AuthRequired == nil || !*out.Site.AuthRequired {
		t.Fatalf("upsert = %s", text)
	}

	err := callToolError(t, session, "radar_upsert_site", map[string]any{
		"domain": "shop.example", "name": "Shop", "tags": []string{}, "complexity": "extreme",
	})
	if err == nil || !strings.Contains(err.Error(), "complexity") {
		t.Errorf("bad complexity err = %v", err)
	}
}
