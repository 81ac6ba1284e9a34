package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/amosWeiskopf/portalcrawl/internal/config"
	"github.com/amosWeiskopf/portalcrawl/internal/logging"
	"github.com/amosWeiskopf/portalcrawl/internal/models"
	"github.com/amosWeiskopf/portalcrawl/pkg/analyzer"
	"github.com/amosWeiskopf/portalcrawl/pkg/auth"
	"github.com/amosWeiskopf/portalcrawl/pkg/browser"
	"github.com/amosWeiskopf/portalcrawl/pkg/crawler"
	"github.com/amosWeiskopf/portalcrawl/pkg/extractor"
	"github.com/amosWeiskopf/portalcrawl/pkg/reporter"
	"github.com/amosWeiskopf/portalcrawl/pkg/sink"
)

func runCrawl(cmd *cobra.Command) error {
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	if used := cfg.ConfigFileUsed(); used != "" {
		logger.Info("config loaded", zap.String("file", used))
	}
	if cfg.Auth.Password == "" {
		logger.Warn("no password configured; set PORTALCRAWL_AUTH_PASSWORD or auth.password")
	}

	opener, err := browser.NewOpener(cfg.BrowserOptions(), logger)
	if err != nil {
		return err
	}

	out := openOutputs(cfg.Output)
	defer func() {
		if err := out.Close(); err != nil {
			logger.Error("failed to close output", zap.Error(err))
		}
	}()

	engine, err := crawler.New(crawler.Deps{
		Opener:        opener,
		Authenticator: auth.NewFormAuthenticator(cfg.AuthForm(), logger),
		Extractor:     extractor.New(cfg.ExtractorOptions(), logger),
		Records:       out.records,
		URLs:          out.urls,
		Logger:        logger,
	}, cfg.Limits(), cfg.CrawlOptions())
	if err != nil {
		return fmt.Errorf("failed to create crawler: %w", err)
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	summary, runErr := engine.Run(ctx)
	if summary != nil && crawlStarted(runErr) {
		report := analyzer.Analyze(*summary, out.collected.Items())
		if err := reporter.Render(cmd.OutOrStdout(), report, cfg.Output.ReportFormat); err != nil {
			return errors.Join(runErr, err)
		}
	}
	if runErr != nil {
		return fmt.Errorf("crawl failed: %w", runErr)
	}
	return nil
}

// crawlStarted reports whether the run got past login and setup, so that
// there is something to report on.
func crawlStarted(err error) bool {
	var authErr *auth.Error
	var setupErr *crawler.SetupError
	return !errors.As(err, &authErr) && !errors.As(err, &setupErr)
}

// outputs are the sinks selected by the output configuration. The URL list
// is always written; record formats are chosen by OutputConfig.Formats.
type outputs struct {
	records   sink.Multi[models.PageRecord]
	urls      sink.Multi[string]
	collected *sink.Memory[models.PageRecord]
}

func openOutputs(o config.OutputConfig) *outputs {
	out := &outputs{
		collected: &sink.Memory[models.PageRecord]{},
		urls:      sink.Multi[string]{sink.NewURLList(o.Path(o.URLsFile))},
	}
	if o.HasFormat(config.FormatCSV) {
		out.records = append(out.records, sink.NewCSV(o.Path(o.ContentFile)))
	}
	if o.HasFormat(config.FormatJSONL) {
		out.records = append(out.records, sink.NewJSONL(o.Path(o.RecordsFile)))
	}
	if o.HasFormat(config.FormatSQLite) {
		db := sink.NewSQLite(o.Path(o.SQLiteFile))
		out.records = append(out.records, db)
		out.urls = append(out.urls, db.URLSink())
	}
	out.records = append(out.records, out.collected)
	return out
}

func (o *outputs) Close() error {
	return errors.Join(o.urls.Close(), o.records.Close())
}
