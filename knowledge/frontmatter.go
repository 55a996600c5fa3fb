package knowledge

import (
	"strings"

	"gopkg.in/yaml.v3"
)

// fileHeader is the YAML frontmatter of a knowledge markdown file. Keys are
// snake_case; version, last_updated and the last_* fields are accepted but
// ignored since the store owns them.
type fileHeader struct {
	Title    string   `yaml:"title"`
	Domain   string   `yaml:"domain"`
	Path     string   `yaml:"path"`
	Type     string   `yaml:"type"`
	Summary  string   `yaml:"summary"`
	Tags     []string `yaml:"tags"`
	Entities *struct {
		Primary         string   `yaml:"primary"`
		Disambiguation  string   `yaml:"disambiguation"`
		RelatedConcepts []string `yaml:"related_concepts"`
	} `yaml:"entities"`
	Intent *struct {
		CoreQuestion string `yaml:"core_question"`
		Audience     string `yaml:"audience"`
	} `yaml:"intent"`
	Confidence     string   `yaml:"confidence"`
	RequiresAuth   *bool    `yaml:"requires_auth"`
	ScriptLanguage string   `yaml:"script_language"`
	SelectorsCount *int     `yaml:"selectors_count"`
	RelatedFiles   []string `yaml:"related_files"`
}

// ParseKnowledgeFile splits a markdown document with a YAML frontmatter
// block into a SubmitRequest. The body, trimmed, becomes the content;
// contributor, reason and agentType fill the fields the file does not carry.
func ParseKnowledgeFile(doc, contributor, reason, agentType string) (*SubmitRequest, error) {
	doc = strings.TrimPrefix(doc, "\ufeff")
	doc = strings.ReplaceAll(doc, "\r\n", "\n")
	if !strings.HasPrefix(doc, "---\n") {
		return nil, invalid("content", "missing YAML frontmatter block")
	}
	rest := doc[len("---\n"):]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return nil, invalid("content", "unterminated YAML frontmatter block")
	}
	header := rest[:end]
	body := rest[end+len("\n---"):]
	if i := strings.IndexByte(body, '\n'); i >= 0 {
		body = body[i+1:]
	} else {
		body = ""
	}

	var h fileHeader
	if err := yaml.Unmarshal([]byte(header), &h); err != nil {
		return nil, invalid("frontmatter", "%v", err)
	}

	req := &SubmitRequest{
		Domain:          h.Domain,
		Path:            h.Path,
		Type:            h.Type,
		Title:           h.Title,
		Summary:         h.Summary,
		Tags:            h.Tags,
		Confidence:      h.Confidence,
		RequiresAuth:    h.RequiresAuth,
		ScriptLanguage:  h.ScriptLanguage,
		SelectorsCount:  h.SelectorsCount,
		RelatedFiles:    h.RelatedFiles,
		Content:         strings.TrimSpace(body),
		ContributorName: contributor,
		ChangeReason:    reason,
		AgentType:       agentType,
	}
	if h.Entities != nil {
		req.Entities = &Entities{
			Primary:         h.Entities.Primary,
			Disambiguation:  h.Entities.Disambiguation,
			RelatedConcepts: h.Entities.RelatedConcepts,
		}
	}
	if h.Intent != nil {
		req.Intent = &Intent{CoreQuestion: h.Intent.CoreQuestion, Audience: h.Intent.Audience}
	}
	return req, nil
}

// RenderKnowledgeFile is the inverse of ParseKnowledgeFile: it writes a
// file back as markdown with its frontmatter, version included.
func RenderKnowledgeFile(f *File) (string, error) {
	type entities struct {
		Primary         string   `yaml:"primary"`
		Disambiguation  string   `yaml:"disambiguation"`
		RelatedConcepts []string `yaml:"related_concepts"`
	}
	type intent struct {
		CoreQuestion string `yaml:"core_question"`
		Audience     string `yaml:"audience"`
	}
	out := struct {
		Title            string   `yaml:"title"`
		Domain           string   `yaml:"domain"`
		Path             string   `yaml:"path"`
		Type             string   `yaml:"type,omitempty"`
		Summary          string   `yaml:"summary"`
		Tags             []string `yaml:"tags"`
		Entities         entities `yaml:"entities"`
		Intent           intent   `yaml:"intent"`
		Confidence       string   `yaml:"confidence"`
		RequiresAuth     bool     `yaml:"requires_auth"`
		ScriptLanguage   string   `yaml:"script_language,omitempty"`
		SelectorsCount   *int     `yaml:"selectors_count,omitempty"`
		RelatedFiles     []string `yaml:"related_files"`
		Version          int      `yaml:"version"`
		LastUpdated      int64    `yaml:"last_updated"`
		LastContributor  string   `yaml:"last_contributor"`
		LastChangeReason string   `yaml:"last_change_reason"`
	}{
		Title: f.Title, Domain: f.Domain, Path: f.Path, Type: f.Type, Summary: f.Summary,
		Tags:             f.Tags,
		Entities:         entities{f.Entities.Primary, f.Entities.Disambiguation, f.Entities.RelatedConcepts},
		Intent:           intent{f.Intent.CoreQuestion, f.Intent.Audience},
		Confidence:       f.Confidence,
		RequiresAuth:     f.RequiresAuth,
		ScriptLanguage:   f.ScriptLanguage,
		SelectorsCount:   f.SelectorsCount,
		RelatedFiles:     f.RelatedFiles,
		Version:          f.Version,
		LastUpdated:      f.LastUpdated,
		LastContributor:  f.LastContributor,
		LastChangeReason: f.LastChangeReason,
	}
	b, err := yaml.Marshal(out)
	if err != nil {
		return "", err
	}
	return "---\n" + string(b) + "---\n\n" + f.Content + "\n", nil
}
