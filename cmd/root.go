// Package cmd defines and implements the CLI commands for the places-crawler
// executable.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/places-crawler/internal/api"
	"github.com/JakeFAU/places-crawler/internal/app"
	"github.com/JakeFAU/places-crawler/internal/config"
	"github.com/JakeFAU/places-crawler/internal/storage"
	pkgconfig "github.com/JakeFAU/places-crawler/pkg/config"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App is the set of services commands use. Tests inject their own.
type App interface {
	Close()
	Config() config.Config
	Logger() *zap.Logger
	RunID() string
	Archive() storage.BlobStore
	ServeStatus(status api.StatusSource) error
}

// newApp is the application factory. It is a variable so tests can replace
// it.
var newApp = func(ctx context.Context, cfg config.Config) (App, error) {
	return app.NewApp(ctx, cfg)
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "places-crawler",
		Short: "Harvests map places into a deduplicated, resumable table.",
		Long: `places-crawler searches a map listing, opens every result, and appends
one row per place to a table named after the query. Rerunning the same query
with --resume continues where the last run stopped without duplicating rows.`,
		SilenceUsage: true,

		// Builds the application once flags are parsed and before RunE.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := pkgconfig.InitConfig(cmd)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			appInstance, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close()
			}
		},
	}

	cmd.PersistentFlags().String("config", "", "config file (default is ./config.yaml, then $HOME/.places-crawler/config.yaml)")
	cmd.PersistentFlags().String("env-file", ".env", "dotenv file loaded before environment overrides")
	cmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")

	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newFieldsCmd())

	return cmd
}

// Execute is the main entry point. SIGINT and SIGTERM cancel the command
// context so a running crawl stops between places.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
