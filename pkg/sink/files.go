package sink

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"
	"time"

	"github.com/amosWeiskopf/portalcrawl/internal/models"
)

// URLList writes one URL per line under a "URL" header.
type URLList struct {
	out file
}

// NewURLList returns a URL list writing to path.
func NewURLList(path string) *URLList {
	return &URLList{out: file{path: path}}
}

func (l *URLList) Reset() error {
	if err := l.out.reset(); err != nil {
		return err
	}
	return l.out.write([]byte("URL\n"))
}

func (l *URLList) Append(url string) error {
	return l.out.write([]byte(url + "\n"))
}

func (l *URLList) Close() error { return l.out.close() }

// CSV writes the url,title,content table with RFC 4180 quoting.
type CSV struct {
	out file
}

// NewCSV returns a content table writing to path.
func NewCSV(path string) *CSV {
	return &CSV{out: file{path: path}}
}

func (c *CSV) Reset() error {
	if err := c.out.reset(); err != nil {
		return err
	}
	return c.writeRow([]string{"URL", "Title", "Content"})
}

// CSV readers fold a quoted \r\n to \n, so cells are written with \n line
// endings only.
var lineEndings = strings.NewReplacer("\r\n", "\n", "\r", "\n")

func (c *CSV) Append(rec models.PageRecord) error {
	return c.writeRow([]string{
		rec.URL,
		lineEndings.Replace(rec.TitleText()),
		lineEndings.Replace(rec.ContentText()),
	})
}

// writeRow encodes a full row first so the file only ever sees whole rows.
func (c *CSV) writeRow(row []string) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(row); err != nil {
		return &PersistenceError{Path: c.out.path, Op: "encode", Err: err}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return &PersistenceError{Path: c.out.path, Op: "encode", Err: err}
	}
	return c.out.write(buf.Bytes())
}

func (c *CSV) Close() error { return c.out.close() }

// JSONL writes one JSON object per record.
type JSONL struct {
	out file
}

// NewJSONL returns a line-delimited JSON writer for path.
func NewJSONL(path string) *JSONL {
	return &JSONL{out: file{path: path}}
}

// jsonRecord is the on-disk shape: plain strings for title and content,
// failures listed separately.
type jsonRecord struct {
	RunID          string            `json:"run_id,omitempty"`
	Seq            int               `json:"seq"`
	URL            string            `json:"url"`
	Title          string            `json:"title"`
	Content        string            `json:"content"`
	Links          []string          `json:"links"`
	SkippedAnchors int               `json:"skipped_anchors,omitempty"`
	Snapshot       string            `json:"snapshot,omitempty"`
	Errors         map[string]string `json:"errors,omitempty"`
	CrawledAt      time.Time         `json:"crawled_at"`
}

func toJSONRecord(rec models.PageRecord) jsonRecord {
	out := jsonRecord{
		RunID:          rec.RunID,
		Seq:            rec.Seq,
		URL:            rec.URL,
		Title:          rec.TitleText(),
		Content:        rec.ContentText(),
		Links:          rec.Links,
		SkippedAnchors: rec.SkippedAnchors,
		Snapshot:       rec.Snapshot,
		CrawledAt:      rec.CrawledAt,
	}
	if out.Links == nil {
		out.Links = []string{}
	}
	if rec.Title.Failed || rec.Content.Failed {
		out.Errors = make(map[string]string)
		if rec.Title.Failed {
			out.Errors["title"] = rec.Title.Reason
		}
		if rec.Content.Failed {
			out.Errors["content"] = rec.Content.Reason
		}
	}
	return out
}

func (j *JSONL) Reset() error { return j.out.reset() }

func (j *JSONL) Append(rec models.PageRecord) error {
	line, err := json.Marshal(toJSONRecord(rec))
	if err != nil {
		return &PersistenceError{Path: j.out.path, Op: "encode", Err: err}
	}
	return j.out.write(append(line, '\n'))
}

func (j *JSONL) Close() error { return j.out.close() }
