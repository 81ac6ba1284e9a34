package browser

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/publicsuffix"

	"github.com/amosWeiskopf/portalcrawl/pkg/utils"
)

const defaultMaxBodyBytes = 5 * 1024 * 1024

// HTTP is a Session for server-rendered portals. It keeps cookies across
// requests and submits forms itself, so no JavaScript runs.
type HTTP struct {
	opts   Options
	logger *zap.Logger
	client *http.Client

	page   *httpPage
	filled map[string]string
}

type httpPage struct {
	url  *url.URL
	body []byte
	doc  *goquery.Document
}

// NewHTTP returns a Session that talks HTTP directly.
func NewHTTP(opts Options, logger *zap.Logger) (*HTTP, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     30 * time.Second,
	}
	return &HTTP{
		opts:   opts,
		logger: logger,
		client: &http.Client{Transport: transport, Timeout: opts.navigationTimeout(), Jar: jar},
		filled: make(map[string]string),
	}, nil
}

func (h *HTTP) Navigate(ctx context.Context, rawURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("navigate to %s: %w", rawURL, err)
	}
	if err := h.do(req); err != nil {
		return fmt.Errorf("navigate to %s: %w", rawURL, err)
	}
	return sleep(ctx, h.opts.SettleDelay)
}

func (h *HTTP) do(req *http.Request) error {
	req.Header.Set("User-Agent", h.opts.userAgent())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !isWebpageMIME(ct) {
		return fmt.Errorf("not a web page: %s", ct)
	}

	limit := h.opts.MaxBodyBytes
	if limit <= 0 {
		limit = defaultMaxBodyBytes
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("parse html: %w", err)
	}

	h.page = &httpPage{url: resp.Request.URL, body: body, doc: doc}
	h.filled = make(map[string]string)
	h.logger.Debug("page loaded",
		zap.String("url", resp.Request.URL.String()),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(body)))
	return nil
}

func isWebpageMIME(contentType string) bool {
	mimeType := strings.TrimSpace(strings.Split(strings.ToLower(contentType), ";")[0])
	switch mimeType {
	case "text/html", "application/xhtml+xml", "application/xhtml", "text/xml", "application/xml":
		return true
	}
	return false
}

func (h *HTTP) current() (*httpPage, error) {
	if h.page == nil {
		return nil, ErrNoPage
	}
	return h.page, nil
}

func (h *HTTP) CurrentURL(context.Context) (string, error) {
	p, err := h.current()
	if err != nil {
		return "", err
	}
	return p.url.String(), nil
}

func (h *HTTP) Title(context.Context) (string, error) {
	p, err := h.current()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(p.doc.Find("title").First().Text()), nil
}

func (h *HTTP) BodyText(context.Context) (string, error) {
	p, err := h.current()
	if err != nil {
		return "", err
	}
	body := p.doc.Find("body")
	if body.Length() == 0 {
		return "", fmt.Errorf("document has no body")
	}
	return visibleText(body.Nodes[0]), nil
}

// visibleText joins the text nodes under n, one per line, skipping scripts
// and styles.
func visibleText(n *html.Node) string {
	var lines []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "template":
				return
			}
		}
		if n.Type == html.TextNode {
			if s := strings.TrimSpace(n.Data); s != "" {
				lines = append(lines, s)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(lines, "\n")
}

func (h *HTTP) HTML(context.Context) (string, error) {
	p, err := h.current()
	if err != nil {
		return "", err
	}
	return string(p.body), nil
}

// Anchors resolves every <a href> against the current URL. An href that
// does not parse is reported on its own anchor.
func (h *HTTP) Anchors(context.Context) ([]Anchor, error) {
	p, err := h.current()
	if err != nil {
		return nil, err
	}
	var anchors []Anchor
	p.doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			anchors = append(anchors, Anchor{Err: fmt.Errorf("read href %q: %w", href, err)})
			return
		}
		anchors = append(anchors, Anchor{Href: p.url.ResolveReference(ref).String()})
	})
	return anchors, nil
}

func (h *HTTP) Snapshot(context.Context) ([]byte, error) {
	return nil, ErrUnsupported
}

// Fill stores value for the named input matched by selector; it is sent
// with the next form submission.
func (h *HTTP) Fill(_ context.Context, selector, value string) error {
	p, err := h.current()
	if err != nil {
		return err
	}
	sel := p.doc.Find(selector).First()
	if sel.Length() == 0 {
		return fmt.Errorf("fill %s: element not found", selector)
	}
	name, ok := sel.Attr("name")
	if !ok || name == "" {
		return fmt.Errorf("fill %s: element has no name", selector)
	}
	h.filled[name] = value
	return nil
}

// Click follows a link, or submits the form enclosing the matched control.
func (h *HTTP) Click(ctx context.Context, selector string) error {
	p, err := h.current()
	if err != nil {
		return err
	}
	sel := p.doc.Find(selector).First()
	if sel.Length() == 0 {
		return fmt.Errorf("click %s: element not found", selector)
	}
	if href, ok := sel.Attr("href"); ok && goquery.NodeName(sel) == "a" {
		return h.Navigate(ctx, utils.ResolveURL(p.url.String(), strings.TrimSpace(href)))
	}

	form := sel.Closest("form")
	if form.Length() == 0 {
		return fmt.Errorf("click %s: not inside a form", selector)
	}
	values := formValues(form)
	for name, v := range h.filled {
		values.Set(name, v)
	}
	if name, ok := sel.Attr("name"); ok && name != "" {
		v, _ := sel.Attr("value")
		values.Set(name, v)
	}

	action, _ := form.Attr("action")
	target, err := url.Parse(utils.ResolveURL(p.url.String(), strings.TrimSpace(action)))
	if err != nil {
		return fmt.Errorf("click %s: form action %q: %w", selector, action, err)
	}
	method := strings.ToUpper(strings.TrimSpace(form.AttrOr("method", http.MethodGet)))

	var req *http.Request
	if method == http.MethodPost {
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, target.String(), strings.NewReader(values.Encode()))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	} else {
		target.RawQuery = values.Encode()
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	}
	if err != nil {
		return fmt.Errorf("click %s: %w", selector, err)
	}
	if err := h.do(req); err != nil {
		return fmt.Errorf("submit form to %s: %w", target.Redacted(), err)
	}
	return sleep(ctx, h.opts.SettleDelay)
}

// formValues collects the default values of a form's successful controls.
func formValues(form *goquery.Selection) url.Values {
	values := url.Values{}
	form.Find("input[name], textarea[name], select[name]").Each(func(_ int, s *goquery.Selection) {
		name, _ := s.Attr("name")
		switch goquery.NodeName(s) {
		case "textarea":
			values.Add(name, s.Text())
		case "select":
			opt := s.Find("option[selected]").First()
			if opt.Length() == 0 {
				opt = s.Find("option").First()
			}
			if opt.Length() > 0 {
				values.Add(name, opt.AttrOr("value", strings.TrimSpace(opt.Text())))
			}
		default:
			switch strings.ToLower(s.AttrOr("type", "text")) {
			case "submit", "button", "image", "reset", "file":
				return
			case "checkbox", "radio":
				if _, checked := s.Attr("checked"); !checked {
					return
				}
				values.Add(name, s.AttrOr("value", "on"))
			default:
				values.Add(name, s.AttrOr("value", ""))
			}
		}
	})
	return values
}

// WaitVisible checks that selector matches; a static document never changes.
func (h *HTTP) WaitVisible(_ context.Context, selector string, _ time.Duration) error {
	p, err := h.current()
	if err != nil {
		return err
	}
	if p.doc.Find(selector).Length() == 0 {
		return fmt.Errorf("wait for %s: element not found", selector)
	}
	return nil
}

// WaitURLContains checks the URL reached after redirects.
func (h *HTTP) WaitURLContains(_ context.Context, substr string, _ time.Duration) error {
	p, err := h.current()
	if err != nil {
		return err
	}
	if !strings.Contains(p.url.String(), substr) {
		return fmt.Errorf("wait for url containing %q: at %s", substr, p.url.Redacted())
	}
	return nil
}

func (h *HTTP) Close() error {
	h.client.CloseIdleConnections()
	h.page = nil
	return nil
}

var (
	_ Session = (*HTTP)(nil)
	_ Session = (*Chrome)(nil)
)
