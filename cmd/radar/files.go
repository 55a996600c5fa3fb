package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/radar/knowledge"
)

func contextCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "context <domain>",
		Short: "Site metadata and file summaries, without bodies",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			sc, err := a.knowledge.Context(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if sc == nil {
				return fmt.Errorf("no knowledge for %q, try \"radar search\" or \"radar explore\"", args[0])
			}
			if asJSON {
				return printJSON(os.Stdout, sc)
			}
			printContext(os.Stdout, sc)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func printContext(w io.Writer, sc *knowledge.SiteContext) {
	s := sc.Site
	fmt.Fprintf(w, "%s %s\n", bold.Sprint(s.Name), dim.Sprintf("(%s)", s.Domain))
	if s.Description != "" {
		fmt.Fprintf(w, "    %s\n", s.Description)
	}
	fmt.Fprintf(w, "    tags: %s\n", strings.Join(s.Tags, ", "))
	fmt.Fprintf(w, "    files: %d, updated %s\n", s.FileCount, ago(s.LastUpdated))
	if s.Complexity != "" {
		fmt.Fprintf(w, "    complexity: %s\n", s.Complexity)
	}
	if s.AuthRequired != nil && *s.AuthRequired {
		fmt.Fprintln(w, "    auth required")
	}
	fmt.Fprintln(w)
	printFileList(w, sc.Files)
}

// printFileList shows one line per file plus its summary.
func printFileList(w io.Writer, files []*knowledge.File) {
	if len(files) == 0 {
		dim.Fprintln(w, "no files yet")
		return
	}
	for _, f := range files {
		fmt.Fprintf(w, "%s  %s %s\n", bold.Sprint(f.Path), f.Title, dim.Sprintf("[%s, v%d]", f.Confidence, f.Version))
		fmt.Fprintf(w, "    %s\n", f.Summary)
		if len(f.Tags) > 0 {
			dim.Fprintf(w, "    tags: %s\n", strings.Join(f.Tags, ", "))
		}
	}
}

func listCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list <domain> [glob]",
		Short: "List a domain's knowledge files, optionally filtered by a path glob",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			pattern := ""
			if len(args) == 2 {
				pattern = args[1]
			}
			files, err := a.knowledge.ListFiles(cmd.Context(), args[0], pattern)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(os.Stdout, files)
			}
			printFileList(os.Stdout, files)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func readCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "read <domain> <path>",
		Short: "Print one knowledge file with its frontmatter",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			f, err := a.knowledge.GetFile(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			if f == nil {
				return fmt.Errorf("no file %s/%s, see \"radar list %s\"", args[0], args[1], args[0])
			}
			doc, err := knowledge.RenderKnowledgeFile(f)
			if err != nil {
				return err
			}
			_, err = io.WriteString(os.Stdout, doc)
			return err
		},
	}
}

func downloadCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "download <domain> <directory>",
		Short: "Write every knowledge file of a domain as markdown, ready for radar submit",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := downloadFiles(cmd.Context(), a.knowledge, args[0], args[1], os.Stdout)
			if err != nil {
				return err
			}
			fmt.Printf("%s %d file(s) for %s to %s\n", green.Sprint("downloaded"), n, args[0], args[1])
			return nil
		},
	}
}

// downloadFiles writes each file of domain under dir as <path>.md and
// returns how many were written.
func downloadFiles(ctx context.Context, svc *knowledge.Service, domain, dir string, w io.Writer) (int, error) {
	files, err := svc.ListFiles(ctx, domain, "")
	if err != nil {
		return 0, err
	}
	if len(files) == 0 {
		return 0, fmt.Errorf("no files for %q", domain)
	}
	n := 0
	for _, meta := range files {
		f, err := svc.GetFile(ctx, meta.Domain, meta.Path)
		if err != nil {
			return n, err
		}
		if f == nil {
			continue
		}
		name := f.Path
		if path.Ext(name) != ".md" {
			name += ".md"
		}
		if !filepath.IsLocal(filepath.FromSlash(name)) {
			return n, fmt.Errorf("refusing to write %q outside %s", f.Path, dir)
		}
		target := filepath.Join(dir, filepath.FromSlash(name))
		doc, err := knowledge.RenderKnowledgeFile(f)
		if err != nil {
			return n, err
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return n, err
		}
		if err := os.WriteFile(target, []byte(doc), 0o644); err != nil {
			return n, err
		}
		fmt.Fprintf(w, "  %s\n", name)
		n++
	}
	return n, nil
}
