// Package browser is the capability surface the crawler needs from a web
// session: navigate, read the current page and, for logging in, fill and
// submit forms. Each capability can fail on its own.
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrUnsupported is returned by capabilities a driver does not provide.
var ErrUnsupported = errors.New("browser: capability not supported by driver")

// ErrNoPage is returned when a page is read before any navigation.
var ErrNoPage = errors.New("browser: no page loaded")

// Anchor is one <a href> element read from the page. Err is set when the
// href of that element could not be read.
type Anchor struct {
	Href string
	Err  error
}

// Page reads and navigates the current document.
type Page interface {
	Navigate(ctx context.Context, url string) error
	CurrentURL(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
	BodyText(ctx context.Context) (string, error)
	HTML(ctx context.Context) (string, error)
	Anchors(ctx context.Context) ([]Anchor, error)
	Snapshot(ctx context.Context) ([]byte, error)
}

// Interactor drives forms on the current document.
type Interactor interface {
	Fill(ctx context.Context, selector, value string) error
	Click(ctx context.Context, selector string) error
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	WaitURLContains(ctx context.Context, substr string, timeout time.Duration) error
}

// Session is an exclusively owned browser session. Close releases it and
// is safe to call more than once.
type Session interface {
	Page
	Interactor
	Close() error
}

// Driver names.
const (
	DriverChrome = "chrome"
	DriverHTTP   = "http"
)

// Options configures a browser session.
type Options struct {
	Driver            string
	Headless          bool
	ChromePath        string
	UserAgent         string
	NavigationTimeout time.Duration
	SettleDelay       time.Duration
	MaxBodyBytes      int64
}

// DefaultUserAgent is sent when no user agent is configured.
const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120 Safari/537.36"

func (o Options) userAgent() string {
	if ua := strings.TrimSpace(o.UserAgent); ua != "" {
		return ua
	}
	return DefaultUserAgent
}

func (o Options) navigationTimeout() time.Duration {
	if o.NavigationTimeout <= 0 {
		return 30 * time.Second
	}
	return o.NavigationTimeout
}

// Opener acquires a browser session.
type Opener interface {
	Open(ctx context.Context) (Session, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context) (Session, error)

// Open calls f.
func (f OpenerFunc) Open(ctx context.Context) (Session, error) { return f(ctx) }

// NewOpener returns an Opener for the configured driver.
func NewOpener(opts Options, logger *zap.Logger) (Opener, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch strings.ToLower(opts.Driver) {
	case DriverChrome, "":
		return OpenerFunc(func(ctx context.Context) (Session, error) {
			return NewChrome(ctx, opts, logger)
		}), nil
	case DriverHTTP:
		return OpenerFunc(func(ctx context.Context) (Session, error) {
			return NewHTTP(opts, logger)
		}), nil
	default:
		return nil, fmt.Errorf("unknown browser driver %q", opts.Driver)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
