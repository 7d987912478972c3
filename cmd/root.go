// Package cmd defines and implements the CLI commands for the wikicrawler
// executable.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/wikicrawler/internal/article"
	"github.com/JakeFAU/wikicrawler/internal/config"
	"github.com/JakeFAU/wikicrawler/internal/server"
)

// App defines the application surface the commands use. Tests inject a fake
// through newApp.
type App interface {
	Service() ArticleService
	Run(ctx context.Context) error
	Close(ctx context.Context) error
}

// ArticleService is the part of the article service the CLI calls.
type ArticleService interface {
	Parse(ctx context.Context, ref string, overrides article.Overrides) (article.ParseResult, error)
}

type serverApp struct {
	*server.App
}

func (a serverApp) Service() ArticleService {
	return a.App.Service()
}

// newApp is the application factory, replaceable in tests.
var newApp = func(ctx context.Context, cfg *config.Config) (App, error) {
	a, err := server.Build(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return serverApp{a}, nil
}

type appKeyType struct{}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "wikicrawler",
		Short: "Recursive encyclopedia crawler with summaries.",
		Long: `wikicrawler fetches an article, follows its internal links to a bounded
depth, stores every article it reaches, and summarizes the root article.
Run "serve" for the HTTP API or "crawl" for a one-off crawl.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			appInstance, err := newApp(cmd.Context(), &cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKeyType{}, appInstance))
			return nil
		},

		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if appInstance, ok := cmd.Context().Value(appKeyType{}).(App); ok && appInstance != nil {
				return appInstance.Close(cmd.Context())
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); env vars use the WIKICRAWLER_ prefix")
	cmd.AddCommand(newServeCmd(), newCrawlCmd())
	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKeyType{}).(App)
	if !ok || appInstance == nil {
		return nil, fmt.Errorf("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
