// Package analyzer turns the records of a finished crawl into a report:
// section counts, the best linked pages, findings worth a look and a few
// sample records.
package analyzer

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/amosWeiskopf/portalcrawl/internal/models"
	"github.com/amosWeiskopf/portalcrawl/pkg/utils"
)

// Finding types.
const (
	FindingDuplicateTitle = "Duplicate Title"
	FindingFailedPage     = "Failed Page"
	FindingDegradedPage   = "Degraded Page"
	FindingEmptyPage      = "Empty Page"
	FindingThinContent    = "Thin Content"
	FindingSkippedPages   = "Skipped Pages"
)

var severityOrder = map[string]int{
	"high":   0,
	"medium": 1,
	"low":    2,
}

// Analyzer builds crawl reports
type Analyzer struct {
	config *Config
}

// Config holds analyzer configuration
type Config struct {
	TopPages         int
	Samples          int
	ExcerptRunes     int
	ThinContentWords int
}

// DefaultConfig returns the settings used by New.
func DefaultConfig() *Config {
	return &Config{
		TopPages:         10,
		Samples:          3,
		ExcerptRunes:     200,
		ThinContentWords: 20,
	}
}

// New creates a new Analyzer instance
func New() *Analyzer {
	return &Analyzer{config: DefaultConfig()}
}

// NewWithConfig creates an Analyzer with custom configuration. Zero fields
// fall back to their defaults.
func NewWithConfig(config *Config) *Analyzer {
	merged := DefaultConfig()
	if config != nil {
		if config.TopPages > 0 {
			merged.TopPages = config.TopPages
		}
		if config.Samples > 0 {
			merged.Samples = config.Samples
		}
		if config.ExcerptRunes > 0 {
			merged.ExcerptRunes = config.ExcerptRunes
		}
		if config.ThinContentWords > 0 {
			merged.ThinContentWords = config.ThinContentWords
		}
	}
	return &Analyzer{config: merged}
}

// Analyze runs the default analyzer.
func Analyze(summary models.CrawlSummary, records []models.PageRecord) models.CrawlReport {
	return New().Analyze(summary, records)
}

// Analyze builds the report for one run. records are expected in the order
// they were persisted.
func (a *Analyzer) Analyze(summary models.CrawlSummary, records []models.PageRecord) models.CrawlReport {
	return models.CrawlReport{
		Summary:     summary,
		GeneratedAt: time.Now(),
		Sections:    sections(records),
		TopPages:    a.topPages(records),
		Findings:    a.findings(summary, records),
		Samples:     a.samples(records),
	}
}

func sections(records []models.PageRecord) []models.SectionCount {
	counts := make(map[string]int)
	for _, rec := range records {
		counts[utils.PathSection(rec.URL)]++
	}

	out := make([]models.SectionCount, 0, len(counts))
	for section, pages := range counts {
		out = append(out, models.SectionCount{Section: section, Pages: pages})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Pages != out[j].Pages {
			return out[i].Pages > out[j].Pages
		}
		return out[i].Section < out[j].Section
	})
	return out
}

// linkGraph holds the edges between crawled pages. Links to pages that were
// not scraped and self links are left out.
type linkGraph struct {
	pages    []string
	outbound map[string][]string
	inbound  map[string][]string
}

func buildGraph(records []models.PageRecord) *linkGraph {
	g := &linkGraph{
		outbound: make(map[string][]string),
		inbound:  make(map[string][]string),
	}
	crawled := make(map[string]bool, len(records))
	for _, rec := range records {
		if !crawled[rec.URL] {
			crawled[rec.URL] = true
			g.pages = append(g.pages, rec.URL)
		}
	}

	seen := make(map[[2]string]bool)
	for _, rec := range records {
		for _, link := range rec.Links {
			link = utils.StripFragment(link)
			edge := [2]string{rec.URL, link}
			if link == rec.URL || !crawled[link] || seen[edge] {
				continue
			}
			seen[edge] = true
			g.outbound[rec.URL] = append(g.outbound[rec.URL], link)
			g.inbound[link] = append(g.inbound[link], rec.URL)
		}
	}
	return g
}

// pageRank scores every page of g.
func (g *linkGraph) pageRank() map[string]float64 {
	const (
		dampingFactor = 0.85
		iterations    = 100
	)

	pageCount := float64(len(g.pages))
	pageRank := make(map[string]float64, len(g.pages))
	for _, page := range g.pages {
		pageRank[page] = 1.0 / pageCount
	}

	for i := 0; i < iterations; i++ {
		newPageRank := make(map[string]float64, len(g.pages))
		for _, page := range g.pages {
			rank := (1.0 - dampingFactor) / pageCount
			for _, from := range g.inbound[page] {
				rank += dampingFactor * pageRank[from] / float64(len(g.outbound[from]))
			}
			newPageRank[page] = rank
		}
		pageRank = newPageRank
	}
	return pageRank
}

func (a *Analyzer) topPages(records []models.PageRecord) []models.RankedPage {
	if len(records) == 0 {
		return nil
	}
	g := buildGraph(records)
	ranks := g.pageRank()

	titles := make(map[string]string, len(records))
	for _, rec := range records {
		if _, ok := titles[rec.URL]; !ok {
			titles[rec.URL] = rec.TitleText()
		}
	}

	ranked := make([]models.RankedPage, 0, len(g.pages))
	for _, page := range g.pages {
		ranked = append(ranked, models.RankedPage{
			URL:      page,
			Title:    titles[page],
			Inbound:  len(g.inbound[page]),
			PageRank: ranks[page],
		})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].PageRank != ranked[j].PageRank {
			return ranked[i].PageRank > ranked[j].PageRank
		}
		return ranked[i].URL < ranked[j].URL
	})
	if len(ranked) > a.config.TopPages {
		ranked = ranked[:a.config.TopPages]
	}
	return ranked
}

func (a *Analyzer) findings(summary models.CrawlSummary, records []models.PageRecord) []models.Finding {
	findings := []models.Finding{}

	// Duplicate titles
	titles := make(map[string][]string)
	var order []string
	for _, rec := range records {
		if rec.Title.Failed || strings.TrimSpace(rec.Title.Value) == "" {
			continue
		}
		if _, ok := titles[rec.Title.Value]; !ok {
			order = append(order, rec.Title.Value)
		}
		titles[rec.Title.Value] = append(titles[rec.Title.Value], rec.URL)
	}
	for _, title := range order {
		if urls := titles[title]; len(urls) > 1 {
			findings = append(findings, models.Finding{
				Type:        FindingDuplicateTitle,
				Description: fmt.Sprintf("Title '%s' used on %d pages", title, len(urls)),
				Severity:    "medium",
				URLs:        urls,
			})
		}
	}

	var failed, degraded, empty, thin []string
	for _, rec := range records {
		switch {
		case rec.Title.Failed && rec.Content.Failed:
			failed = append(failed, rec.URL)
		case rec.Degraded():
			degraded = append(degraded, rec.URL)
		}
		if rec.Content.Failed {
			continue
		}
		words := len(strings.Fields(rec.Content.Value))
		switch {
		case words == 0:
			empty = append(empty, rec.URL)
		case words < a.config.ThinContentWords:
			thin = append(thin, rec.URL)
		}
	}

	if len(failed) > 0 {
		findings = append(findings, models.Finding{
			Type:        FindingFailedPage,
			Description: fmt.Sprintf("%d pages could not be read at all", len(failed)),
			Severity:    "high",
			URLs:        failed,
		})
	}
	if len(degraded) > 0 {
		findings = append(findings, models.Finding{
			Type:        FindingDegradedPage,
			Description: fmt.Sprintf("%d pages are missing a title or content", len(degraded)),
			Severity:    "medium",
			URLs:        degraded,
		})
	}
	if summary.Skipped > 0 {
		findings = append(findings, models.Finding{
			Type:        FindingSkippedPages,
			Description: fmt.Sprintf("%d pages failed during discovery and were not recorded", summary.Skipped),
			Severity:    "medium",
		})
	}
	if len(empty) > 0 {
		findings = append(findings, models.Finding{
			Type:        FindingEmptyPage,
			Description: fmt.Sprintf("%d pages have no visible text", len(empty)),
			Severity:    "low",
			URLs:        empty,
		})
	}
	if len(thin) > 0 {
		findings = append(findings, models.Finding{
			Type:        FindingThinContent,
			Description: fmt.Sprintf("%d pages have less than %d words", len(thin), a.config.ThinContentWords),
			Severity:    "low",
			URLs:        thin,
		})
	}

	sort.SliceStable(findings, func(i, j int) bool {
		return severityOrder[findings[i].Severity] < severityOrder[findings[j].Severity]
	})
	return findings
}

func (a *Analyzer) samples(records []models.PageRecord) []models.Sample {
	n := min(a.config.Samples, len(records))
	out := make([]models.Sample, 0, n)
	for _, rec := range records[:n] {
		out = append(out, models.Sample{
			URL:     rec.URL,
			Title:   rec.TitleText(),
			Excerpt: utils.Excerpt(rec.ContentText(), a.config.ExcerptRunes),
		})
	}
	return out
}
