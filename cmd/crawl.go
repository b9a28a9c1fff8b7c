package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/places-crawler/internal/clock/system"
	"github.com/JakeFAU/places-crawler/internal/config"
	"github.com/JakeFAU/places-crawler/internal/crawler"
	"github.com/JakeFAU/places-crawler/internal/pipeline"
	"github.com/JakeFAU/places-crawler/internal/place"
	"github.com/JakeFAU/places-crawler/internal/progress"
	"github.com/JakeFAU/places-crawler/internal/progress/sinks"
	"github.com/JakeFAU/places-crawler/internal/source"
	"github.com/JakeFAU/places-crawler/internal/source/headless"
	"github.com/JakeFAU/places-crawler/internal/source/snapshot"
	"github.com/JakeFAU/places-crawler/internal/storage"
	"github.com/JakeFAU/places-crawler/internal/store"
)

const eventsCloseTimeout = 5 * time.Second

type crawlOptions struct {
	query  string
	total  int
	skip   int
	auto   bool
	resume bool
	stats  bool
	fields string
}

func newCrawlCmd() *cobra.Command {
	var opts crawlOptions
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawls a search query into its table",
		Long: `Runs the search, walks the result listing, and appends every new place to
the table derived from the query. Places already in the table are skipped.`,
		Example: `  places-crawler crawl -s "Hospital in Ahmedabad" --total 50
  places-crawler crawl -s "Restaurant in Mumbai" --auto --slow
  places-crawler crawl -s "Cafe in Surat" --resume --fields "Name,Address,Phone"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCrawl(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.query, "search", "s", "", "search query, e.g. \"Cafe in Surat\"")
	f.IntVarP(&opts.total, "total", "t", 0, "maximum number of places to extract (default: until the listing ends)")
	f.IntVar(&opts.skip, "skip", 0, "unique places to pass over before extracting")
	f.BoolVar(&opts.auto, "auto", false, "run until interrupted (ignores --total)")
	f.BoolVar(&opts.resume, "resume", false, "continue from the rows already in the table")
	f.BoolVar(&opts.stats, "stats", false, "print run statistics when finished")
	f.StringVar(&opts.fields, "fields", "", "comma-separated fields to keep (Name and Address are always kept)")
	f.Bool("slow", false, "use slower, safer pacing")
	f.String("source", "", "record source: headless or snapshot")
	f.String("snapshot", "", "saved listing HTML for the snapshot source")
	f.String("format", "", "table format: "+strings.Join(storage.Formats(), ", "))
	f.String("status-addr", "", "serve live status on this address, e.g. :8080")
	f.String("journal-dir", "", "append run events to a JSON-lines journal in this directory")
	_ = cmd.MarkFlagRequired("search")

	return cmd
}

func runCrawl(cmd *cobra.Command, opts crawlOptions) error {
	ctx := cmd.Context()
	appInstance, err := resolveApp(ctx)
	if err != nil {
		return err
	}
	cfg := appInstance.Config()
	logger := appInstance.Logger().With(zap.String("run_id", appInstance.RunID()))

	req, selection, err := buildRequest(cmd, opts, logger)
	if err != nil {
		return err
	}

	opener := func(ctx context.Context, name string) (storage.Table, error) {
		return storage.Open(ctx, cfg.StorageOptions(), name)
	}
	st, err := store.Open(ctx, req.Query, opener, logger)
	if err != nil {
		return fmt.Errorf("open table: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logger.Warn("Failed to close table", zap.Error(cerr))
		}
	}()

	if opts.resume {
		rows := st.RowCount()
		if rows > req.Skip {
			if cmd.Flags().Changed("skip") {
				logger.Info("--resume overrides --skip", zap.Int("skip", req.Skip), zap.Int("rows", rows))
			}
			req.Skip = rows
		}
		logger.Info("Resuming", zap.Int("existing_rows", rows), zap.Int("skip", req.Skip))
	}

	src, err := buildSource(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := src.Close(); cerr != nil {
			logger.Warn("Failed to close source", zap.Error(cerr))
		}
	}()

	engine, err := crawler.NewEngine(cfg.CrawlerSettings(), src, logger)
	if err != nil {
		return fmt.Errorf("init crawler: %w", err)
	}
	hub, err := buildEvents(cfg.Journal, store.Sanitize(req.Query), logger)
	if err != nil {
		return err
	}
	popts := pipeline.Options{
		Fields:       selection,
		ImageColumns: cfg.Crawler.ImageColumns,
		RunID:        appInstance.RunID(),
	}
	if hub != nil {
		popts.Events = hub
	}
	p, err := pipeline.New(engine, st, popts, system.New(), logger)
	if err != nil {
		_ = hub.Close(context.Background())
		return fmt.Errorf("init pipeline: %w", err)
	}
	if err := appInstance.ServeStatus(p); err != nil {
		_ = hub.Close(context.Background())
		return fmt.Errorf("start status server: %w", err)
	}

	res, runErr := p.Run(ctx, req)

	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), eventsCloseTimeout)
	if err := hub.Close(closeCtx); err != nil {
		logger.Warn("Failed to flush run events", zap.Error(err))
	}
	cancel()

	archive(context.WithoutCancel(ctx), appInstance, st, logger)

	out := cmd.OutOrStdout()
	if opts.stats {
		renderStats(out, res)
	}
	if res.Outcome == pipeline.OutcomeInterrupted {
		fmt.Fprintf(out, "Interrupted. %d places saved; the table is safe at %s\n", res.Counters.Saved, res.Location)
	}
	return runErr
}

// buildRequest validates the command line and turns it into a crawl
// request plus the field selection (nil for every field).
func buildRequest(cmd *cobra.Command, opts crawlOptions, logger *zap.Logger) (crawler.Request, []string, error) {
	query := strings.TrimSpace(opts.query)
	if query == "" {
		return crawler.Request{}, nil, errors.New("--search must not be empty")
	}
	if strings.HasPrefix(query, "-") {
		return crawler.Request{}, nil, fmt.Errorf("--search must be a query, got flag-like %q", query)
	}
	if opts.skip < 0 {
		return crawler.Request{}, nil, fmt.Errorf("--skip must be >= 0, got %d", opts.skip)
	}
	totalSet := cmd.Flags().Changed("total")
	if totalSet && opts.total <= 0 {
		return crawler.Request{}, nil, fmt.Errorf("--total must be greater than zero, got %d", opts.total)
	}

	req := crawler.Request{Query: query, Skip: opts.skip, Auto: opts.auto}
	switch {
	case opts.auto && totalSet:
		logger.Info("--auto ignores --total; running until interrupted")
	case totalSet:
		req.MaxPlaces = opts.total
	}

	var selection []string
	if strings.TrimSpace(opts.fields) != "" {
		selected, unknown, err := place.ParseSelection(opts.fields)
		if len(unknown) > 0 {
			logger.Warn("Ignoring unknown fields", zap.Strings("fields", unknown), zap.Strings("known", place.Catalog()))
		}
		if err != nil {
			return crawler.Request{}, nil, err
		}
		selection = selected
	}
	return req, selection, nil
}

// buildEvents returns the hub feeding the configured event sinks, or nil
// when none is configured.
func buildEvents(cfg config.JournalConfig, table string, logger *zap.Logger) (*progress.Hub, error) {
	if !cfg.Enabled() {
		return nil, nil
	}
	var out []progress.Sink
	if cfg.LogEvents {
		out = append(out, sinks.NewLogSink(logger))
	}
	if cfg.Dir != "" {
		journal, err := sinks.NewJournalSink(filepath.Join(cfg.Dir, table+".jsonl"))
		if err != nil {
			return nil, fmt.Errorf("open run journal: %w", err)
		}
		logger.Info("Writing run journal", zap.String("path", journal.Path()))
		out = append(out, journal)
	}
	return progress.NewHub(progress.Config{Logger: logger}, out...), nil
}

func buildSource(cfg config.Config, logger *zap.Logger) (source.Source, error) {
	switch cfg.Source.Kind {
	case config.SourceSnapshot:
		src, err := snapshot.Open(cfg.Source.SnapshotPath, cfg.Source.PageSize)
		if err != nil {
			return nil, fmt.Errorf("open snapshot: %w", err)
		}
		return src, nil
	default:
		src, err := headless.New(cfg.BrowserSettings(), logger)
		if err != nil {
			return nil, fmt.Errorf("init browser: %w", err)
		}
		return src, nil
	}
}

// archive copies the finished table to the configured blob store. Failure
// never fails the run.
func archive(ctx context.Context, appInstance App, st *store.Store, logger *zap.Logger) {
	blobs := appInstance.Archive()
	if blobs == nil {
		return
	}
	got, err := storage.Archive(ctx, blobs, st.Table(), appInstance.RunID())
	switch {
	case err != nil:
		logger.Warn("Failed to archive table", zap.Error(err))
	case got.URI != "":
		logger.Info("Archived table",
			zap.String("uri", got.URI),
			zap.String("sha256", got.SHA256),
			zap.Int64("bytes", got.Bytes),
		)
	}
}

func renderStats(w io.Writer, res pipeline.Result) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("Run statistics")
	t.AppendRows([]table.Row{
		{"Query", res.Query},
		{"Table", res.Location},
		{"Outcome", string(res.Outcome)},
	})
	t.AppendSeparator()
	c := res.Counters
	t.AppendRows([]table.Row{
		{"Fetched", c.Fetched},
		{"Saved", c.Saved},
		{"Duplicates", c.Duplicates},
		{"Incomplete", c.Incomplete},
		{"Failed to open", c.Failed},
		{"Skipped", c.Skipped},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"Elapsed", res.Elapsed.Round(10 * time.Millisecond).String()},
		{"Saved per minute", fmt.Sprintf("%.2f", res.Rate())},
	})
	t.SetColumnConfigs([]table.ColumnConfig{{Number: 2, Align: text.AlignRight}})
	t.SetStyle(table.StyleRounded)
	t.Render()
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}
