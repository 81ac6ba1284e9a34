package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// anchorsScript reads every resolved a.href on its own so one broken element
// only loses that element.
const anchorsScript = `Array.from(document.querySelectorAll('a[href]')).map(function (a) {
  try {
    return { href: String(a.href), error: "" };
  } catch (e) {
    return { href: "", error: String(e) };
  }
})`

const bodyTextScript = `(function () {
  if (!document.body) { throw new Error("document has no body"); }
  return document.body.innerText;
})()`

// Chrome is a Session backed by a headless (or visible) Chrome via chromedp.
type Chrome struct {
	opts   Options
	logger *zap.Logger

	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	closeOnce   sync.Once
	closeErr    error
}

// NewChrome launches Chrome and opens a tab. The caller owns the returned
// session and must Close it.
func NewChrome(parent context.Context, opts Options, logger *zap.Logger) (*Chrome, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	execOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("start-maximized", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(opts.userAgent()),
	)
	if path := strings.TrimSpace(opts.ChromePath); path != "" {
		execOpts = append(execOpts, chromedp.ExecPath(path))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(parent, execOpts...)
	ctx, cancel := chromedp.NewContext(allocCtx)

	// The first Run starts the browser.
	if err := chromedp.Run(ctx); err != nil {
		cancel()
		allocCancel()
		return nil, fmt.Errorf("start chrome: %w", err)
	}
	logger.Debug("chrome session started",
		zap.Bool("headless", opts.Headless),
		zap.String("chrome_path", opts.ChromePath))

	return &Chrome{
		opts:        opts,
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
		allocCancel: allocCancel,
	}, nil
}

// run executes actions on the tab, bounded by timeout and by ctx.
func (c *Chrome) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(c.ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// Navigate loads url and waits the configured settle delay.
func (c *Chrome) Navigate(ctx context.Context, url string) error {
	if err := c.run(ctx, c.opts.navigationTimeout(), chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	return sleep(ctx, c.opts.SettleDelay)
}

func (c *Chrome) CurrentURL(ctx context.Context) (string, error) {
	var loc string
	if err := c.run(ctx, c.opts.navigationTimeout(), chromedp.Location(&loc)); err != nil {
		return "", fmt.Errorf("read location: %w", err)
	}
	return loc, nil
}

func (c *Chrome) Title(ctx context.Context) (string, error) {
	var title string
	if err := c.run(ctx, c.opts.navigationTimeout(), chromedp.Title(&title)); err != nil {
		return "", fmt.Errorf("read title: %w", err)
	}
	return title, nil
}

func (c *Chrome) BodyText(ctx context.Context) (string, error) {
	var text string
	if err := c.run(ctx, c.opts.navigationTimeout(), chromedp.Evaluate(bodyTextScript, &text)); err != nil {
		return "", fmt.Errorf("read body text: %w", err)
	}
	return text, nil
}

func (c *Chrome) HTML(ctx context.Context) (string, error) {
	var html string
	if err := c.run(ctx, c.opts.navigationTimeout(), chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read html: %w", err)
	}
	return html, nil
}

// Anchors lists the resolved href of every <a href> in the document.
func (c *Chrome) Anchors(ctx context.Context) ([]Anchor, error) {
	var raw []struct {
		Href  string `json:"href"`
		Error string `json:"error"`
	}
	if err := c.run(ctx, c.opts.navigationTimeout(), chromedp.Evaluate(anchorsScript, &raw)); err != nil {
		return nil, fmt.Errorf("list anchors: %w", err)
	}
	anchors := make([]Anchor, 0, len(raw))
	for _, a := range raw {
		if a.Error != "" {
			anchors = append(anchors, Anchor{Err: errors.New(a.Error)})
			continue
		}
		anchors = append(anchors, Anchor{Href: a.Href})
	}
	return anchors, nil
}

// Snapshot captures the full page as PNG.
func (c *Chrome) Snapshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := c.run(ctx, c.opts.navigationTimeout(), chromedp.FullScreenshot(&buf, 100)); err != nil {
		return nil, fmt.Errorf("capture snapshot: %w", err)
	}
	return buf, nil
}

func (c *Chrome) Fill(ctx context.Context, selector, value string) error {
	if err := c.run(ctx, c.opts.navigationTimeout(), chromedp.SendKeys(selector, value, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("fill %s: %w", selector, err)
	}
	return nil
}

func (c *Chrome) Click(ctx context.Context, selector string) error {
	if err := c.run(ctx, c.opts.navigationTimeout(), chromedp.Click(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("click %s: %w", selector, err)
	}
	return nil
}

func (c *Chrome) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	if err := c.run(ctx, timeout, chromedp.WaitVisible(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("wait for %s: %w", selector, err)
	}
	return nil
}

// WaitURLContains polls the tab location until it contains substr.
func (c *Chrome) WaitURLContains(ctx context.Context, substr string, timeout time.Duration) error {
	err := c.run(ctx, timeout, chromedp.ActionFunc(func(ctx context.Context) error {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			var loc string
			if err := chromedp.Location(&loc).Do(ctx); err != nil {
				return err
			}
			if strings.Contains(loc, substr) {
				return nil
			}
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}))
	if err != nil {
		return fmt.Errorf("wait for url containing %q: %w", substr, err)
	}
	return nil
}

// Close shuts the tab and the browser process.
func (c *Chrome) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = chromedp.Cancel(c.ctx)
		c.cancel()
		c.allocCancel()
		c.logger.Debug("chrome session closed")
	})
	return c.closeErr
}
