package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/wikicrawler/internal/article"
	"github.com/JakeFAU/wikicrawler/internal/crawler"
)

type crawlOptions struct {
	depth  int
	fanout int
	asJSON bool
}

// newCrawlCmd creates the 'crawl' subcommand, which runs one parse and
// prints the resulting tree.
func newCrawlCmd() *cobra.Command {
	opts := &crawlOptions{}
	cmd := &cobra.Command{
		Use:   "crawl <article-url-or-title>",
		Short: "Crawl one seed article and print the tree",
		Long: `Crawls the seed article and its internal links within the configured
bounds, stores every reached article and prints the tree in pre-order.
--depth and --fanout override the configured bounds for this run.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCrawl(cmd, args[0], opts)
		},
	}
	cmd.Flags().IntVar(&opts.depth, "depth", -1, "maximum link depth below the seed (default from config)")
	cmd.Flags().IntVar(&opts.fanout, "fanout", -1, "maximum links followed per article (default from config)")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "print the result as JSON")
	return cmd
}

func runCrawl(cmd *cobra.Command, seed string, opts *crawlOptions) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}

	var overrides article.Overrides
	if cmd.Flags().Changed("depth") {
		overrides.MaxDepth = &opts.depth
	}
	if cmd.Flags().Changed("fanout") {
		overrides.MaxFanout = &opts.fanout
	}

	res, err := appInstance.Service().Parse(cmd.Context(), seed, overrides)
	if err != nil {
		return fmt.Errorf("crawl %s: %w", seed, err)
	}

	out := cmd.OutOrStdout()
	if opts.asJSON {
		return writeJSONResult(out, res)
	}
	return writeTree(out, res)
}

func writeJSONResult(w io.Writer, res article.ParseResult) error {
	payload := struct {
		ID      string               `json:"id"`
		Key     string               `json:"key"`
		Title   string               `json:"title"`
		Summary string               `json:"summary,omitempty"`
		Nodes   int                  `json:"nodes"`
		Stats   crawler.Stats        `json:"stats"`
		Tree    *crawler.ArticleNode `json:"tree"`
	}{
		ID:    res.Article.ID,
		Key:   res.Article.Key.String(),
		Title: res.Article.Title,
		Nodes: res.Nodes,
		Stats: res.Stats,
		Tree:  res.Tree,
	}
	if res.Summary != nil {
		payload.Summary = res.Summary.Text
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(payload); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return nil
}

func writeTree(w io.Writer, res article.ParseResult) error {
	var werr error
	res.Tree.Walk(func(n *crawler.ArticleNode) bool {
		if werr != nil {
			return false
		}
		_, werr = fmt.Fprintf(w, "%s%s [%s]\n", strings.Repeat("  ", n.Depth), n.Title, n.Key)
		return true
	})
	if werr != nil {
		return fmt.Errorf("write tree: %w", werr)
	}
	s := res.Stats
	if _, err := fmt.Fprintf(w, "\n%d articles; fetched=%d failed=%d persisted=%d duplicates=%d\n",
		res.Nodes, s.Fetched, s.Failed, s.Persisted, s.PrunedDuplicate); err != nil {
		return fmt.Errorf("write stats: %w", err)
	}
	if res.Summary != nil {
		if _, err := fmt.Fprintf(w, "\nSummary:\n%s\n", res.Summary.Text); err != nil {
			return fmt.Errorf("write summary: %w", err)
		}
	}
	return nil
}
