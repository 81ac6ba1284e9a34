// Package crawler runs an authenticated breadth-first crawl: log in, walk
// the internal link graph through a frontier, extract every page and
// persist the results as they are produced.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/amosWeiskopf/portalcrawl/internal/models"
	"github.com/amosWeiskopf/portalcrawl/pkg/frontier"
	"github.com/amosWeiskopf/portalcrawl/pkg/sink"
	"github.com/amosWeiskopf/portalcrawl/pkg/utils"
)

// State is the lifecycle stage of an Engine.
type State int32

const (
	NotStarted State = iota
	Authenticating
	Discovering
	ContentScraping
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case Authenticating:
		return "authenticating"
	case Discovering:
		return "discovering"
	case ContentScraping:
		return "content_scraping"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// ErrAlreadyRun is returned when Run is called on an Engine more than once.
var ErrAlreadyRun = errors.New("crawler: engine has already run")

// SetupError reports a failure to prepare the run, before any page is
// crawled.
type SetupError struct {
	Step string
	Err  error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("crawl setup failed at %s: %v", e.Step, e.Err)
}

func (e *SetupError) Unwrap() error { return e.Err }

// NavigationError reports a page that could not be loaded. It only ever
// affects that page.
type NavigationError struct {
	URL string
	Err error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigate %s: %v", e.URL, e.Err)
}

func (e *NavigationError) Unwrap() error { return e.Err }

// Engine orchestrates a single crawl run.
type Engine struct {
	deps   Deps
	limits models.CrawlLimits
	opts   Options
	logger *zap.Logger
	state  atomic.Int32

	newRunID func() string
	now      func() time.Time
}

// New creates an Engine. Limits and options are fixed for the run.
func New(deps Deps, limits models.CrawlLimits, opts Options) (*Engine, error) {
	switch {
	case deps.Opener == nil:
		return nil, errors.New("crawler: browser opener is required")
	case deps.Authenticator == nil:
		return nil, errors.New("crawler: authenticator is required")
	case deps.Extractor == nil:
		return nil, errors.New("crawler: extractor is required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Records == nil {
		deps.Records = sink.Discard[models.PageRecord]{}
	}
	if deps.URLs == nil {
		deps.URLs = sink.Discard[string]{}
	}

	mode, err := ParseMode(string(opts.Mode))
	if err != nil {
		return nil, err
	}
	opts.Mode = mode
	if opts.FragmentPolicy == "" {
		opts.FragmentPolicy = frontier.FragmentStrip
	}
	if opts.LogoutMarker == "" {
		opts.LogoutMarker = frontier.DefaultLogoutMarker
	}
	if limits.MaxDiscoveryPages < 0 || limits.MaxContentPages < 0 || limits.Delay < 0 {
		return nil, fmt.Errorf("crawler: negative limits %+v", limits)
	}

	return &Engine{
		deps:     deps,
		limits:   limits,
		opts:     opts,
		logger:   deps.Logger,
		newRunID: func() string { return uuid.NewString() },
		now:      time.Now,
	}, nil
}

// State returns the current lifecycle stage. It is safe to call while Run
// is in progress.
func (e *Engine) State() State {
	return State(e.state.Load())
}

func (e *Engine) setState(s State) {
	e.state.Store(int32(s))
	e.logger.Debug("crawl state", zap.Stringer("state", s))
}

// Run performs the crawl. The returned summary is never nil, also when an
// error is returned, and reflects the work done up to that point.
//
// Authentication and browser failures leave the Engine in Failed without
// touching any output. Page failures are counted and never stop the run;
// a sink failure does, since it would silently lose records.
func (e *Engine) Run(ctx context.Context) (*models.CrawlSummary, error) {
	summary := &models.CrawlSummary{
		RunID:     e.newRunID(),
		Mode:      string(e.opts.Mode),
		StartedAt: e.now(),
		State:     NotStarted.String(),
	}
	if !e.state.CompareAndSwap(int32(NotStarted), int32(Authenticating)) {
		return summary, ErrAlreadyRun
	}
	logger := e.logger.With(zap.String("run_id", summary.RunID))

	err := e.run(ctx, summary, logger)
	if err != nil {
		e.setState(Failed)
	} else {
		e.setState(Done)
	}
	summary.State = e.State().String()
	summary.FinishedAt = e.now()

	logger.Info("crawl finished",
		zap.String("state", summary.State),
		zap.Int("visited", summary.Visited),
		zap.Int("discovered", summary.Discovered),
		zap.Int("scraped", summary.Scraped),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Duration("duration", summary.Duration()),
		zap.Error(err))
	return summary, err
}

func (e *Engine) run(ctx context.Context, summary *models.CrawlSummary, logger *zap.Logger) error {
	b, err := e.deps.Opener.Open(ctx)
	if err != nil {
		return &SetupError{Step: "open browser", Err: err}
	}
	defer func() {
		if err := b.Close(); err != nil {
			logger.Warn("closing browser", zap.Error(err))
		}
	}()

	landing, err := e.deps.Authenticator.Authenticate(ctx, b)
	if err != nil {
		return err
	}

	baseHost := e.opts.BaseHost
	if baseHost == "" {
		baseHost = utils.HostOf(landing)
	}
	if baseHost == "" {
		return &SetupError{Step: "resolve base host", Err: fmt.Errorf("landing url %q has no host", landing)}
	}
	summary.StartURL = landing
	summary.BaseHost = baseHost

	// Earlier output is only replaced once a session exists.
	if err := e.deps.URLs.Reset(); err != nil {
		return err
	}
	if err := e.deps.Records.Reset(); err != nil {
		return err
	}

	s := e.newSession(b, baseHost, summary, logger)
	defer s.finish()

	e.setState(Discovering)
	if err := s.seed(landing); err != nil {
		return err
	}
	if err := s.discover(ctx); err != nil {
		return err
	}

	if e.opts.Mode == TwoPass {
		e.setState(ContentScraping)
		if err := s.scrape(ctx); err != nil {
			return err
		}
	}
	return nil
}
