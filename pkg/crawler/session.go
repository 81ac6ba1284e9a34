package crawler

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/amosWeiskopf/portalcrawl/internal/models"
	"github.com/amosWeiskopf/portalcrawl/pkg/browser"
	"github.com/amosWeiskopf/portalcrawl/pkg/extractor"
	"github.com/amosWeiskopf/portalcrawl/pkg/frontier"
	"github.com/amosWeiskopf/portalcrawl/pkg/sink"
)

// Session is the state of one run, built after login and discarded when
// the run ends. Nothing in it outlives the run.
type Session struct {
	RunID     string
	BaseHost  string
	Mode      Mode
	Limits    models.CrawlLimits
	Browser   browser.Session
	Frontier  *frontier.Frontier
	Validator *frontier.Validator

	limiter   *rate.Limiter
	extractor PageExtractor
	records   sink.RecordSink
	urls      sink.URLSink
	summary   *models.CrawlSummary
	logger    *zap.Logger
}

func (e *Engine) newSession(b browser.Session, baseHost string, summary *models.CrawlSummary, logger *zap.Logger) *Session {
	validator := frontier.NewValidator(baseHost, e.opts.FragmentPolicy)
	validator.LogoutMarker = e.opts.LogoutMarker

	limit := rate.Inf
	if e.limits.Delay > 0 {
		limit = rate.Every(e.limits.Delay)
	}

	return &Session{
		RunID:     summary.RunID,
		BaseHost:  baseHost,
		Mode:      e.opts.Mode,
		Limits:    e.limits,
		Browser:   b,
		Frontier:  frontier.New(e.limits.MaxDiscoveryPages),
		Validator: validator,
		limiter:   rate.NewLimiter(limit, 1),
		extractor: e.deps.Extractor,
		records:   e.deps.Records,
		urls:      e.deps.URLs,
		summary:   summary,
		logger:    logger.With(zap.String("base_host", baseHost)),
	}
}

// finish copies the frontier counters into the summary.
func (s *Session) finish() {
	s.summary.Visited = s.Frontier.VisitedCount()
	s.summary.Discovered = s.Frontier.DiscoveredCount()
}

// seed queues the landing page. It is kept even when it falls outside the
// validator's scope, since the crawl has to start somewhere.
func (s *Session) seed(landing string) error {
	start, ok := s.Validator.Accept(landing)
	if !ok {
		s.logger.Warn("landing page is outside the crawl scope", zap.String("url", landing))
		start = landing
	}
	s.Frontier.Seed(start)
	return s.urls.Append(start)
}

// offer feeds a page's raw links through the validator into the frontier.
// URLs seen for the first time are persisted right away.
func (s *Session) offer(links []string) (int, error) {
	queued := 0
	for _, link := range s.Validator.Filter(links) {
		fresh := !s.Frontier.IsDiscovered(link)
		if s.Frontier.Offer(link) {
			queued++
		}
		if fresh {
			if err := s.urls.Append(link); err != nil {
				return queued, err
			}
		}
	}
	return queued, nil
}

// navigate waits for the pacing limiter, loads url and then holds for
// Limits.Delay so scripted content can render before the page is read.
func (s *Session) navigate(ctx context.Context, url string) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	if err := s.Browser.Navigate(ctx, url); err != nil {
		return &NavigationError{URL: url, Err: err}
	}
	return s.settle(ctx)
}

func (s *Session) settle(ctx context.Context) error {
	if s.Limits.Delay <= 0 {
		return nil
	}
	t := time.NewTimer(s.Limits.Delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// stop reports whether a navigate error ends the run rather than the page.
func stop(ctx context.Context, err error) bool {
	var navErr *NavigationError
	return ctx.Err() != nil || !errors.As(err, &navErr)
}

// discover walks the frontier until it is exhausted or the visit cap is
// reached. In single-pass mode the first Limits.MaxContentPages pages are
// persisted as they are visited.
func (s *Session) discover(ctx context.Context) error {
	seq := 0
	for {
		pageURL, ok := s.Frontier.Next()
		if !ok {
			break
		}
		seq++
		logger := s.logger.With(zap.String("url", pageURL), zap.Int("seq", seq))
		scrape := s.Mode == SinglePass && s.withinBudget()

		if err := s.navigate(ctx, pageURL); err != nil {
			if stop(ctx, err) {
				return err
			}
			logger.Warn("page skipped", zap.Error(err))
			if scrape {
				if err := s.persist(failedRecord(s.RunID, seq, pageURL, err), false); err != nil {
					return err
				}
				continue
			}
			s.summary.Skipped++
			continue
		}

		var links []string
		if s.Mode == SinglePass {
			rec, extractErr := s.extractor.Extract(ctx, s.Browser, seq)
			links = rec.Links
			if extractErr != nil {
				logger.Warn("page unreadable", zap.Error(extractErr))
			}
			switch {
			case scrape:
				if err := s.persist(s.stamp(rec, pageURL), extractErr == nil); err != nil {
					return err
				}
			case extractErr != nil:
				s.summary.Skipped++
			}
		} else {
			links = s.readLinks(ctx, logger)
		}

		queued, err := s.offer(links)
		if err != nil {
			return err
		}
		logger.Info("page crawled",
			zap.Int("links", len(links)),
			zap.Int("queued", queued),
			zap.Int("pending", s.Frontier.PendingCount()))
	}

	if !s.Frontier.Exhausted() {
		s.logger.Warn("discovery stopped at the visit cap",
			zap.Int("max_discovery_pages", s.Limits.MaxDiscoveryPages),
			zap.Int("pending", s.Frontier.PendingCount()))
		s.logger.Debug("left unvisited", zap.Strings("urls", s.Frontier.Pending()))
	}
	s.logger.Info("discovery finished",
		zap.Int("visited", s.Frontier.VisitedCount()),
		zap.Int("discovered", s.Frontier.DiscoveredCount()))
	return nil
}

// readLinks lists the current page's hrefs without extracting content.
func (s *Session) readLinks(ctx context.Context, logger *zap.Logger) []string {
	anchors, err := s.Browser.Anchors(ctx)
	if err != nil {
		logger.Warn("links unavailable", zap.Error(err))
		return nil
	}
	return extractor.Dedupe(extractor.Hrefs(anchors, func(err error) {
		logger.Debug("anchor skipped", zap.Error(err))
	}))
}

// scrape revisits discovered URLs in first-seen order and persists a
// record for each, up to Limits.MaxContentPages. A page that cannot be
// loaded still gets a record, with both fields failed.
func (s *Session) scrape(ctx context.Context) error {
	targets := s.Frontier.Discovered()
	targets = targets[:s.Limits.ContentBudget(len(targets))]
	s.logger.Info("content pass started", zap.Int("pages", len(targets)))

	for i, pageURL := range targets {
		seq := i + 1
		logger := s.logger.With(zap.String("url", pageURL), zap.Int("seq", seq))

		if err := s.navigate(ctx, pageURL); err != nil {
			if stop(ctx, err) {
				return err
			}
			logger.Warn("page failed", zap.Error(err))
			if err := s.persist(failedRecord(s.RunID, seq, pageURL, err), false); err != nil {
				return err
			}
			continue
		}

		rec, extractErr := s.extractor.Extract(ctx, s.Browser, seq)
		if extractErr != nil {
			logger.Warn("page unreadable", zap.Error(extractErr))
		}
		if err := s.persist(s.stamp(rec, pageURL), extractErr == nil); err != nil {
			return err
		}
		logger.Info("page scraped", zap.Bool("degraded", rec.Degraded()))
	}
	return nil
}

func (s *Session) withinBudget() bool {
	return s.Limits.MaxContentPages <= 0 || s.summary.Scraped < s.Limits.MaxContentPages
}

// stamp tags rec with the run and guarantees it names a page.
func (s *Session) stamp(rec models.PageRecord, requested string) models.PageRecord {
	rec.RunID = s.RunID
	if rec.URL == "" || rec.URL == models.UnknownURL {
		rec.URL = requested
	}
	return rec
}

// persist appends rec and counts it. ok is false for pages that failed as
// a whole.
func (s *Session) persist(rec models.PageRecord, ok bool) error {
	if err := s.records.Append(rec); err != nil {
		return err
	}
	s.summary.Scraped++
	switch {
	case !ok:
		s.summary.Failed++
	case rec.Degraded():
		s.summary.Succeeded++
		s.summary.Degraded++
	default:
		s.summary.Succeeded++
	}
	return nil
}

func failedRecord(runID string, seq int, pageURL string, err error) models.PageRecord {
	return models.PageRecord{
		RunID:     runID,
		Seq:       seq,
		URL:       pageURL,
		Title:     models.Failed(err.Error()),
		Content:   models.Failed(err.Error()),
		Links:     []string{},
		CrawledAt: time.Now(),
	}
}
