package models

import "time"

// CrawlReport is the post-run analysis of a crawl.
type CrawlReport struct {
	Summary     CrawlSummary   `json:"summary"`
	GeneratedAt time.Time      `json:"generated_at"`
	Sections    []SectionCount `json:"sections"`
	TopPages    []RankedPage   `json:"top_pages"`
	Findings    []Finding      `json:"findings"`
	Samples     []Sample       `json:"samples"`
}

// SectionCount is the number of scraped pages under a first path segment.
type SectionCount struct {
	Section string `json:"section"`
	Pages   int    `json:"pages"`
}

// RankedPage is a page with its internal link score.
type RankedPage struct {
	URL      string  `json:"url"`
	Title    string  `json:"title"`
	Inbound  int     `json:"inbound"`
	PageRank float64 `json:"pagerank"`
}

// Finding represents a notable observation about the crawled pages.
type Finding struct {
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Severity    string   `json:"severity"`
	URLs        []string `json:"urls,omitempty"`
}

// Sample is a shortened record shown in the final report.
type Sample struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Excerpt string `json:"excerpt"`
}
