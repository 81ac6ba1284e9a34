package crawler

import (
	"context"
	"encoding/csv"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/amosWeiskopf/portalcrawl/internal/models"
	"github.com/amosWeiskopf/portalcrawl/pkg/auth"
	"github.com/amosWeiskopf/portalcrawl/pkg/browser"
	"github.com/amosWeiskopf/portalcrawl/pkg/extractor"
	"github.com/amosWeiskopf/portalcrawl/pkg/sink"
)

// newPortal serves a small site behind a form login. Pages other than the
// login form require the session cookie.
func newPortal(t *testing.T, loggedOut *atomic.Bool) *httptest.Server {
	t.Helper()
	pages := map[string]string{
		"/home": `<html><head><title>Home</title></head><body>
			<p>Dashboard</p>
			<a href="/a">A</a> <a href="b#details">B</a>
			<a href="/logout">Sign out</a>
			<a href="javascript:void(0)">Menu</a></body></html>`,
		"/a": `<html><head><title>A "quoted"</title></head><body>
			<p>Alpha, with "quotes"</p>
			<a href="/home">Back</a> <a href="http://evil.example/x">Out</a></body></html>`,
		"/b": `<html><head><title>B</title></head><body><p>Beta</p></body></html>`,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body><form method="post" action="/login_check">
			<input type="hidden" name="_csrf_token" value="tok">
			<input name="_username"><input type="password" name="_password">
			<button type="submit">Go</button></form></body></html>`))
	})
	mux.HandleFunc("/login_check", func(w http.ResponseWriter, r *http.Request) {
		if r.FormValue("_username") != "alice" || r.FormValue("_password") != "s3cret" || r.FormValue("_csrf_token") != "tok" {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "ok", Path: "/"})
		http.Redirect(w, r, "/home", http.StatusFound)
	})
	mux.HandleFunc("/logout", func(w http.ResponseWriter, r *http.Request) {
		loggedOut.Store(true)
		http.Redirect(w, r, "/login", http.StatusFound)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		body, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		if c, err := r.Cookie("session"); err != nil || c.Value != "ok" {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(body))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestRunAgainstPortal(t *testing.T) {
	var loggedOut atomic.Bool
	srv := newPortal(t, &loggedOut)
	dir := t.TempDir()
	logger := zaptest.NewLogger(t)

	opener, err := browser.NewOpener(browser.Options{Driver: browser.DriverHTTP}, logger)
	require.NoError(t, err)

	urls := sink.NewURLList(filepath.Join(dir, "urls.csv"))
	content := sink.NewCSV(filepath.Join(dir, "content.csv"))
	defer urls.Close()
	defer content.Close()

	e, err := New(Deps{
		Opener: opener,
		Authenticator: auth.NewFormAuthenticator(auth.Form{
			LoginURL: srv.URL + "/login",
			Username: "alice",
			Password: "s3cret",
		}, logger),
		Extractor: extractor.New(extractor.Options{}, logger),
		Records:   content,
		URLs:      urls,
		Logger:    logger,
	}, models.CrawlLimits{MaxDiscoveryPages: 50}, Options{Mode: TwoPass})
	require.NoError(t, err)

	summary, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, loggedOut.Load(), "logout link must never be followed")
	assert.Equal(t, 3, summary.Visited)
	assert.Equal(t, 3, summary.Scraped)

	data, err := os.ReadFile(filepath.Join(dir, "urls.csv"))
	require.NoError(t, err)
	assert.Equal(t, "URL\n"+srv.URL+"/home\n"+srv.URL+"/a\n"+srv.URL+"/b\n", string(data))

	f, err := os.Open(filepath.Join(dir, "content.csv"))
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, []string{srv.URL + "/a", `A "quoted"`}, rows[2][:2])
	assert.True(t, strings.Contains(rows[2][2], `Alpha, with "quotes"`))
}

func TestRunAgainstPortalBadPassword(t *testing.T) {
	var loggedOut atomic.Bool
	srv := newPortal(t, &loggedOut)
	dir := t.TempDir()

	// Output from an earlier run must survive a failed login.
	urlsPath := filepath.Join(dir, "urls.csv")
	require.NoError(t, os.WriteFile(urlsPath, []byte("URL\nhttps://portal.example/old\n"), 0644))

	opener, err := browser.NewOpener(browser.Options{Driver: browser.DriverHTTP}, nil)
	require.NoError(t, err)
	urls := sink.NewURLList(urlsPath)
	defer urls.Close()

	e, err := New(Deps{
		Opener: opener,
		Authenticator: auth.NewFormAuthenticator(auth.Form{
			LoginURL: srv.URL + "/login",
			Username: "alice",
			Password: "wrong",
		}, nil),
		Extractor: extractor.New(extractor.Options{}, nil),
		URLs:      urls,
	}, models.CrawlLimits{MaxDiscoveryPages: 50}, Options{})
	require.NoError(t, err)

	_, err = e.Run(context.Background())
	var authErr *auth.Error
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "wait for redirect", authErr.Step)

	data, err := os.ReadFile(urlsPath)
	require.NoError(t, err)
	assert.Equal(t, "URL\nhttps://portal.example/old\n", string(data))
}
