package extractor

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/markusmobius/go-trafilatura"
	"go.uber.org/zap"

	"github.com/amosWeiskopf/portalcrawl/internal/models"
	"github.com/amosWeiskopf/portalcrawl/pkg/browser"
	"github.com/amosWeiskopf/portalcrawl/pkg/utils"
)

// Content sources.
const (
	SourceBody     = "body"
	SourceReadable = "readable"
)

// DefaultMaxContentLength is the content cap used when none is configured.
const DefaultMaxContentLength = 50000

// FieldError reports a single field that could not be read. It never fails
// the page on its own.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.Field, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

// PageError reports that the page itself could not be identified.
type PageError struct {
	Err error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("extract page: %v", e.Err)
}

func (e *PageError) Unwrap() error { return e.Err }

// Options configures an Extractor.
type Options struct {
	MaxContentLength int
	ContentSource    string
	Snapshots        bool
	SnapshotDir      string
}

// Extractor reads a PageRecord from the page a session is currently on.
// It applies no crawl scope: links come back unfiltered.
type Extractor struct {
	opts   Options
	logger *zap.Logger
	now    func() time.Time
}

// New creates a new Extractor instance
func New(opts Options, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxContentLength <= 0 {
		opts.MaxContentLength = DefaultMaxContentLength
	}
	if opts.ContentSource == "" {
		opts.ContentSource = SourceBody
	}
	if opts.SnapshotDir == "" {
		opts.SnapshotDir = "snapshots"
	}
	return &Extractor{opts: opts, logger: logger, now: time.Now}
}

// Extract builds the record for the current page. Title, content and
// anchor failures are recorded on the record; only a failure to read the
// current URL is returned as a *PageError, together with a record whose URL
// is models.UnknownURL.
func (e *Extractor) Extract(ctx context.Context, page browser.Page, seq int) (models.PageRecord, error) {
	rec := models.PageRecord{Seq: seq, CrawledAt: e.now(), Links: []string{}}

	pageURL, err := page.CurrentURL(ctx)
	if err != nil {
		rec.URL = models.UnknownURL
		rec.Title = models.Failed(err.Error())
		rec.Content = models.Failed(err.Error())
		return rec, &PageError{Err: err}
	}
	rec.URL = pageURL
	logger := e.logger.With(zap.String("url", pageURL), zap.Int("seq", seq))

	if title, err := page.Title(ctx); err != nil {
		logger.Warn("title unavailable", zap.Error(&FieldError{Field: "title", Err: err}))
		rec.Title = models.Failed(err.Error())
	} else {
		rec.Title = models.OK(strings.TrimSpace(title))
	}

	if content, err := e.content(ctx, page); err != nil {
		logger.Warn("content unavailable", zap.Error(&FieldError{Field: "content", Err: err}))
		rec.Content = models.Failed(err.Error())
	} else {
		rec.Content = models.OK(strings.TrimSpace(utils.TruncateText(content, e.opts.MaxContentLength)))
	}

	anchors, err := page.Anchors(ctx)
	if err != nil {
		logger.Warn("links unavailable", zap.Error(&FieldError{Field: "links", Err: err}))
	}
	skipped := 0
	rec.Links = Dedupe(Hrefs(anchors, func(err error) {
		skipped++
		logger.Debug("anchor skipped", zap.Error(err))
	}))
	rec.SkippedAnchors = skipped

	if e.opts.Snapshots {
		path, err := e.snapshot(ctx, page, seq, pageURL)
		if err != nil {
			logger.Warn("snapshot failed", zap.Error(err))
		} else {
			rec.Snapshot = path
		}
	}
	return rec, nil
}

func (e *Extractor) content(ctx context.Context, page browser.Page) (string, error) {
	if e.opts.ContentSource == SourceReadable {
		doc, err := page.HTML(ctx)
		if err == nil {
			if text, err := ExtractText(doc); err == nil && strings.TrimSpace(text) != "" {
				return text, nil
			}
		}
	}
	return page.BodyText(ctx)
}

// ExtractText extracts the main readable text from HTML using trafilatura
func ExtractText(htmlContent string) (string, error) {
	result, err := trafilatura.Extract(strings.NewReader(htmlContent), trafilatura.Options{})
	if err != nil {
		return "", err
	}
	if result == nil {
		return "", nil
	}
	return result.ContentText, nil
}

// Hrefs yields the href of every anchor that could be read. Unreadable
// anchors are passed to onErr and skipped.
func Hrefs(anchors []browser.Anchor, onErr func(error)) iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, a := range anchors {
			if a.Err != nil {
				if onErr != nil {
					onErr(a.Err)
				}
				continue
			}
			if strings.TrimSpace(a.Href) == "" {
				continue
			}
			if !yield(a.Href) {
				return
			}
		}
	}
}

// Dedupe collects seq, dropping repeats and keeping first-seen order.
func Dedupe(seq iter.Seq[string]) []string {
	seen := make(map[string]struct{})
	out := []string{}
	for s := range seq {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// SnapshotName is the file name used for the snapshot of a page.
func SnapshotName(seq int, pageURL string) string {
	if seq <= 0 {
		return utils.SanitizeFilename(pageURL) + ".png"
	}
	return fmt.Sprintf("%04d_%s.png", seq, utils.SanitizeFilename(pageURL))
}

func (e *Extractor) snapshot(ctx context.Context, page browser.Page, seq int, pageURL string) (string, error) {
	img, err := page.Snapshot(ctx)
	if err != nil {
		if errors.Is(err, browser.ErrUnsupported) {
			return "", nil
		}
		return "", err
	}
	if err := os.MkdirAll(e.opts.SnapshotDir, 0755); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}
	path := filepath.Join(e.opts.SnapshotDir, SnapshotName(seq, pageURL))
	if err := os.WriteFile(path, img, 0644); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	return path, nil
}
