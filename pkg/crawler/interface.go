package crawler

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/amosWeiskopf/portalcrawl/internal/models"
	"github.com/amosWeiskopf/portalcrawl/pkg/auth"
	"github.com/amosWeiskopf/portalcrawl/pkg/browser"
	"github.com/amosWeiskopf/portalcrawl/pkg/frontier"
	"github.com/amosWeiskopf/portalcrawl/pkg/sink"
)

// PageExtractor builds a record from the page a session is currently on
type PageExtractor interface {
	Extract(ctx context.Context, page browser.Page, seq int) (models.PageRecord, error)
}

// Mode selects how discovery and content extraction are combined
type Mode string

const (
	// SinglePass extracts and persists content during discovery.
	SinglePass Mode = "single-pass"
	// TwoPass discovers URLs first, then revisits them for content.
	TwoPass Mode = "two-pass"
)

// ParseMode validates a configured mode name. Empty means TwoPass.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case SinglePass, TwoPass:
		return m, nil
	case "":
		return TwoPass, nil
	default:
		return "", fmt.Errorf("unknown crawl mode %q", s)
	}
}

// Deps are the collaborators of an Engine
type Deps struct {
	Opener        browser.Opener
	Authenticator auth.Authenticator
	Extractor     PageExtractor
	Records       sink.RecordSink // nil discards records
	URLs          sink.URLSink    // nil discards discovered URLs
	Logger        *zap.Logger
}

// Options contains configuration for the crawler
type Options struct {
	Mode           Mode
	BaseHost       string // Host in scope; defaults to the landing URL's host
	FragmentPolicy frontier.FragmentPolicy
	LogoutMarker   string // Hrefs containing it are never followed
}
