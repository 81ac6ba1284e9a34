package models

import (
	"time"
)

// Sentinel values written in place of fields whose extraction failed.
const (
	UnknownURL         = "unknown"
	UnknownTitle       = "unknown"
	UnavailableContent = "content unavailable"
)

// Field is the result of reading one page attribute. A failed field keeps
// the reason so consumers can tell "empty" apart from "could not be read".
type Field struct {
	Value  string `json:"value"`
	Failed bool   `json:"failed,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// OK returns a successfully extracted field.
func OK(value string) Field {
	return Field{Value: value}
}

// Failed returns a field whose extraction failed for the given reason.
func Failed(reason string) Field {
	return Field{Failed: true, Reason: reason}
}

// Or returns the field value, or sentinel when extraction failed.
func (f Field) Or(sentinel string) string {
	if f.Failed {
		return sentinel
	}
	return f.Value
}

// PageRecord is the structured data extracted from one crawled page.
// URL is always set, even when every other field failed.
type PageRecord struct {
	RunID          string    `json:"run_id,omitempty"`
	Seq            int       `json:"seq"`
	URL            string    `json:"url"`
	Title          Field     `json:"title"`
	Content        Field     `json:"content"`
	Links          []string  `json:"links"`
	SkippedAnchors int       `json:"skipped_anchors,omitempty"`
	Snapshot       string    `json:"snapshot,omitempty"`
	CrawledAt      time.Time `json:"crawled_at"`
}

// TitleText returns the title or its sentinel.
func (p PageRecord) TitleText() string {
	return p.Title.Or(UnknownTitle)
}

// ContentText returns the content or its sentinel.
func (p PageRecord) ContentText() string {
	return p.Content.Or(UnavailableContent)
}

// Degraded reports whether at least one field could not be extracted.
func (p PageRecord) Degraded() bool {
	return p.Title.Failed || p.Content.Failed
}

// CrawlLimits bounds a single run. It is fixed once the run starts.
type CrawlLimits struct {
	MaxDiscoveryPages int           `json:"max_discovery_pages"`
	MaxContentPages   int           `json:"max_content_pages"` // 0 means unbounded
	Delay             time.Duration `json:"delay"`
	MaxContentLength  int           `json:"max_content_length"`
}

// ContentBudget returns how many of n candidate pages may be scraped.
func (l CrawlLimits) ContentBudget(n int) int {
	if l.MaxContentPages <= 0 || l.MaxContentPages > n {
		return n
	}
	return l.MaxContentPages
}

// CrawlSummary contains the counters reported at the end of a run.
//
// Scraped counts persisted records and always equals Succeeded + Failed.
// Degraded counts succeeded records with at least one failed field. Skipped
// counts discovery visits that failed before a record was produced.
type CrawlSummary struct {
	RunID      string    `json:"run_id"`
	StartURL   string    `json:"start_url"`
	BaseHost   string    `json:"base_host"`
	Mode       string    `json:"mode"`
	State      string    `json:"state"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Visited    int       `json:"visited"`
	Discovered int       `json:"discovered"`
	Skipped    int       `json:"skipped"`
	Scraped    int       `json:"scraped"`
	Succeeded  int       `json:"succeeded"`
	Degraded   int       `json:"degraded"`
	Failed     int       `json:"failed"`
}

// Duration returns how long the run took.
func (s CrawlSummary) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}
