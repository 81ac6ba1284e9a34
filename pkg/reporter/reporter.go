package reporter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/template"
	"time"

	"github.com/amosWeiskopf/portalcrawl/internal/models"
)

// Supported output formats.
const (
	FormatText     = "text"
	FormatJSON     = "json"
	FormatMarkdown = "markdown"
)

const textTemplate = `Crawl {{.Summary.RunID}} {{.Summary.State}} ({{.Summary.Mode}})
Start URL:   {{.Summary.StartURL}}
Base host:   {{.Summary.BaseHost}}
Duration:    {{duration .Summary}}

Visited {{.Summary.Visited}} / discovered {{.Summary.Discovered}} / skipped {{.Summary.Skipped}}
Scraped {{.Summary.Scraped}}: {{.Summary.Succeeded}} succeeded ({{.Summary.Degraded}} degraded), {{.Summary.Failed}} failed
{{if .Sections}}
Sections:
{{range .Sections}}  {{printf "%-30s" .Section}} {{.Pages}}
{{end}}{{end}}{{if .TopPages}}
Top pages:
{{range $i, $p := .TopPages}}  {{inc $i}}. {{$p.Title}} <{{$p.URL}}> rank {{printf "%.4f" $p.PageRank}}, {{$p.Inbound}} inbound
{{end}}{{end}}{{if .Findings}}
Findings:
{{range .Findings}}  [{{.Severity}}] {{.Type}}: {{.Description}}
{{end}}{{end}}{{if .Samples}}
Sample results:
{{range .Samples}}
  URL:     {{.URL}}
  Title:   {{.Title}}
  Content: {{.Excerpt}}
{{end}}{{end}}`

var funcs = template.FuncMap{
	"inc":      func(i int) int { return i + 1 },
	"duration": func(s models.CrawlSummary) string { return s.Duration().Round(time.Millisecond).String() },
}

// Reporter renders crawl reports in various formats
type Reporter struct {
	text *template.Template
}

// New creates a new Reporter instance
func New() *Reporter {
	return &Reporter{
		text: template.Must(template.New("report").Funcs(funcs).Parse(textTemplate)),
	}
}

// Render writes report to w in the given format.
func Render(w io.Writer, report models.CrawlReport, format string) error {
	return New().Render(w, report, format)
}

// Render writes report to w in the given format. An empty format means text.
func (r *Reporter) Render(w io.Writer, report models.CrawlReport, format string) error {
	out, err := r.GenerateReport(report, format)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(w, out); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// GenerateReport creates a report in the specified format
func (r *Reporter) GenerateReport(report models.CrawlReport, format string) (string, error) {
	switch format {
	case FormatText, "":
		return r.generateText(report)
	case FormatJSON:
		return r.generateJSON(report)
	case FormatMarkdown:
		return r.generateMarkdown(report)
	default:
		return "", fmt.Errorf("unsupported format: %s", format)
	}
}

func (r *Reporter) generateText(report models.CrawlReport) (string, error) {
	var buf bytes.Buffer
	if err := r.text.Execute(&buf, report); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}
	return buf.String(), nil
}

func (r *Reporter) generateJSON(report models.CrawlReport) (string, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}
	return string(data) + "\n", nil
}

func (r *Reporter) generateMarkdown(report models.CrawlReport) (string, error) {
	var buf bytes.Buffer
	s := report.Summary

	fmt.Fprintf(&buf, "# Crawl Report for %s\n\n", s.BaseHost)
	fmt.Fprintf(&buf, "*Generated on %s*\n\n", report.GeneratedAt.Format("January 2, 2006 15:04"))

	fmt.Fprintf(&buf, "## Summary\n\n")
	fmt.Fprintf(&buf, "| Metric | Value |\n")
	fmt.Fprintf(&buf, "|--------|-------|\n")
	fmt.Fprintf(&buf, "| Run | `%s` |\n", s.RunID)
	fmt.Fprintf(&buf, "| State | %s |\n", s.State)
	fmt.Fprintf(&buf, "| Mode | %s |\n", s.Mode)
	fmt.Fprintf(&buf, "| Duration | %s |\n", s.Duration().Round(time.Millisecond))
	fmt.Fprintf(&buf, "| Visited | %d |\n", s.Visited)
	fmt.Fprintf(&buf, "| Discovered | %d |\n", s.Discovered)
	fmt.Fprintf(&buf, "| Skipped | %d |\n", s.Skipped)
	fmt.Fprintf(&buf, "| Scraped | %d |\n", s.Scraped)
	fmt.Fprintf(&buf, "| Succeeded | %d |\n", s.Succeeded)
	fmt.Fprintf(&buf, "| Degraded | %d |\n", s.Degraded)
	fmt.Fprintf(&buf, "| Failed | %d |\n\n", s.Failed)

	if len(report.Sections) > 0 {
		fmt.Fprintf(&buf, "## Sections\n\n")
		fmt.Fprintf(&buf, "| Section | Pages |\n")
		fmt.Fprintf(&buf, "|---------|-------|\n")
		for _, sec := range report.Sections {
			fmt.Fprintf(&buf, "| `%s` | %d |\n", sec.Section, sec.Pages)
		}
		fmt.Fprintf(&buf, "\n")
	}

	if len(report.TopPages) > 0 {
		fmt.Fprintf(&buf, "## Top Pages\n\n")
		fmt.Fprintf(&buf, "| # | Page | Inbound | PageRank |\n")
		fmt.Fprintf(&buf, "|---|------|---------|----------|\n")
		for i, p := range report.TopPages {
			fmt.Fprintf(&buf, "| %d | [%s](%s) | %d | %.4f |\n", i+1, escapeCell(p.Title), p.URL, p.Inbound, p.PageRank)
		}
		fmt.Fprintf(&buf, "\n")
	}

	if len(report.Findings) > 0 {
		fmt.Fprintf(&buf, "## Findings\n\n")
		for _, finding := range report.Findings {
			fmt.Fprintf(&buf, "### %s\n", finding.Type)
			fmt.Fprintf(&buf, "- **Severity:** %s\n", finding.Severity)
			fmt.Fprintf(&buf, "- **Description:** %s\n", finding.Description)
			for _, u := range finding.URLs {
				fmt.Fprintf(&buf, "  - %s\n", u)
			}
			fmt.Fprintf(&buf, "\n")
		}
	}

	if len(report.Samples) > 0 {
		fmt.Fprintf(&buf, "## Sample Results\n\n")
		for _, sample := range report.Samples {
			fmt.Fprintf(&buf, "### %s\n", sample.Title)
			fmt.Fprintf(&buf, "<%s>\n\n", sample.URL)
			fmt.Fprintf(&buf, "> %s\n\n", sample.Excerpt)
		}
	}

	return buf.String(), nil
}

func escapeCell(s string) string {
	return strings.NewReplacer("|", `\|`, "\n", " ").Replace(s)
}
