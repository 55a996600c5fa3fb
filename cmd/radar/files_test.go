package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/hazyhaar/radar/knowledge"
)

func TestDownloadRoundTripsThroughSubmit(t *testing.T) {
	a := testApp(t)
	ctx := context.Background()
	auth := true
	selectors := 4
	for _, p := range []string{"README", "flows/checkout.md"} {
		_, err := a.knowledge.Submit(ctx, &knowledge.SubmitRequest{
			Domain:          "shop.example",
			Path:            p,
			Type:            "flow",
			Title:           "Checkout: basket to payment",
			Summary:         "How to pay",
			Tags:            []string{"checkout", "payment"},
			Entities:        &knowledge.Entities{Primary: "checkout", Disambiguation: "purchase flow", RelatedConcepts: []string{"basket"}},
			Intent:          &knowledge.Intent{CoreQuestion: "How do I buy?", Audience: "browser-agent"},
			Confidence:      "high",
			RequiresAuth:    &auth,
			SelectorsCount:  &selectors,
			RelatedFiles:    []string{"README"},
			Content:         "# Checkout\n\n1. Open the basket.\n2. Click \"Pay now\".",
			ContributorName: "alice",
			ChangeReason:    "first pass",
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	dir := t.TempDir()
	var out bytes.Buffer
	n, err := downloadFiles(ctx, a.knowledge, "www.shop.example", dir, &out)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 || !strings.Contains(out.String(), "flows/checkout.md") {
		t.Fatalf("downloaded %d: %s", n, out.String())
	}

	doc, err := os.ReadFile(filepath.Join(dir, "flows", "checkout.md"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "README.md")); err != nil {
		t.Errorf("README not written as README.md: %v", err)
	}

	req, err := knowledge.ParseKnowledgeFile(string(doc), "bob", "resubmit", "")
	if err != nil {
		t.Fatal(err)
	}
	if req.Title != "Checkout: basket to payment" || req.Entities.Disambiguation != "purchase flow" ||
		!slices.Equal(req.Tags, []string{"checkout", "payment"}) || req.SelectorsCount == nil || *req.SelectorsCount != 4 ||
		!strings.Contains(req.Content, `Click "Pay now".`) {
		t.Fatalf("parsed = %+v", req)
	}
	res, err := a.knowledge.Submit(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	if res.Version != 2 {
		t.Errorf("version = %d, want 2", res.Version)
	}
}

func TestDownloadUnknownDomain(t *testing.T) {
	a := testApp(t)
	if _, err := downloadFiles(context.Background(), a.knowledge, "nothing.example", t.TempDir(), &bytes.Buffer{}); err == nil {
		t.Fatal("expected error for a domain without files")
	}
}
