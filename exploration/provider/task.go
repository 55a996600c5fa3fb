package provider

import (
	"fmt"
	"strings"
)

// TaskText builds the instruction given to a remote browser agent: explore
// the site, submit knowledge files to submitURL, and end with the
// completion marker the orchestrator counts files from.
func TaskText(req *LaunchRequest, submitURL string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Explore %s (domain %s) and document how to use it for other browser agents.\n", req.URL, req.Domain)
	fmt.Fprintf(&b, "Submit each knowledge file as JSON with an HTTP POST to %s.\n", submitURL)
	b.WriteString("Fields: domain, path, type, title, summary, tags, entities{primary, disambiguation, relatedConcepts}, ")
	b.WriteString("intent{coreQuestion, audience}, confidence, requiresAuth, content, contributorName, changeReason.\n")
	b.WriteString("Start with a README (type readme) and a sitemap (type sitemap), then one file per important flow.\n")
	if req.Instructions != "" {
		fmt.Fprintf(&b, "Additional instructions: %s\n", req.Instructions)
	}
	fmt.Fprintf(&b, "When done, reply with exactly: EXPLORATION_COMPLETE: <number> files submitted for %s\n", req.Domain)
	return b.String()
}
