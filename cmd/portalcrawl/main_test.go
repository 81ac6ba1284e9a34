package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amosWeiskopf/portalcrawl/internal/config"
	"github.com/amosWeiskopf/portalcrawl/internal/models"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestValidateLink(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"internal", []string{"https://portal.example/docs"}, "internal https://portal.example/docs\n"},
		{"fragment stripped", []string{"https://portal.example/docs#top"}, "internal https://portal.example/docs\n"},
		{"fragment rejected", []string{"https://portal.example/docs#top", "--fragments", "reject"}, "rejected\n"},
		{"other host", []string{"https://evil.example/docs"}, "rejected\n"},
		{"logout", []string{"https://portal.example/logout"}, "rejected\n"},
		{"relative", []string{"/docs"}, "rejected\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"validate-link", "--host", "portal.example", "--fragments", "strip"}, tt.args...)
			out, err := execute(t, args...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "portalcrawl dev (commit: none, built: unknown)\n", out)
}

func TestOpenOutputs(t *testing.T) {
	o := config.OutputConfig{
		Dir:         t.TempDir(),
		URLsFile:    "urls.csv",
		ContentFile: "content.csv",
		RecordsFile: "pages.jsonl",
		SQLiteFile:  "crawl.db",
		Formats:     []string{config.FormatJSONL, config.FormatSQLite},
	}
	out := openOutputs(o)
	assert.Len(t, out.records, 3, "jsonl, sqlite and the in-memory collector")
	assert.Len(t, out.urls, 2, "url list and sqlite")

	require.NoError(t, out.urls.Reset())
	require.NoError(t, out.records.Reset())
	require.NoError(t, out.urls.Append("https://portal.example/home"))
	require.NoError(t, out.records.Append(models.PageRecord{
		URL:     "https://portal.example/home",
		Title:   models.OK("Home"),
		Content: models.OK("Welcome"),
		Links:   []string{},
	}))
	require.NoError(t, out.Close())

	assert.FileExists(t, filepath.Join(o.Dir, "urls.csv"))
	assert.FileExists(t, filepath.Join(o.Dir, "pages.jsonl"))
	assert.FileExists(t, filepath.Join(o.Dir, "crawl.db"))
	assert.NoFileExists(t, filepath.Join(o.Dir, "content.csv"))
	assert.Len(t, out.collected.Items(), 1)
}

func newPortal(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><form method="post" action="/login_check">
			<input name="_username"><input type="password" name="_password">
			<button type="submit">Go</button></form></body></html>`))
	})
	mux.HandleFunc("/login_check", func(w http.ResponseWriter, r *http.Request) {
		if r.FormValue("_password") != "s3cret" {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		http.Redirect(w, r, "/home", http.StatusFound)
	})
	mux.HandleFunc("/home", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><title>Home</title></head><body><p>Welcome back</p>
			<a href="/docs/intro">Intro</a></body></html>`))
	})
	mux.HandleFunc("/docs/intro", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><title>Intro</title></head><body><p>Getting started</p>
			<a href="/home">Home</a></body></html>`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestCrawlCommand(t *testing.T) {
	srv := newPortal(t)
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("PORTALCRAWL_AUTH_PASSWORD", "s3cret")
	t.Setenv("PORTALCRAWL_LOGGING_LEVEL", "error")
	dir := t.TempDir()

	out, err := execute(t, "crawl",
		"--login-url", srv.URL+"/login",
		"--username", "alice",
		"--driver", "http",
		"--delay", "0s",
		"--output-dir", dir,
		"--format", "csv,jsonl",
		"--report", "text",
	)
	require.NoError(t, err)
	assert.Contains(t, out, "Scraped 2: 2 succeeded (0 degraded), 0 failed")
	assert.Contains(t, out, "Sample results:")
	assert.Contains(t, out, "Welcome back")

	urls, err := os.ReadFile(filepath.Join(dir, "internal_platform_urls.csv"))
	require.NoError(t, err)
	assert.Equal(t, "URL\n"+srv.URL+"/home\n"+srv.URL+"/docs/intro\n", string(urls))
	assert.FileExists(t, filepath.Join(dir, "internal_platform_content.csv"))
	assert.FileExists(t, filepath.Join(dir, "internal_platform_pages.jsonl"))
}

func TestCrawlCommandBadPassword(t *testing.T) {
	srv := newPortal(t)
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("PORTALCRAWL_AUTH_PASSWORD", "wrong")
	t.Setenv("PORTALCRAWL_LOGGING_LEVEL", "error")
	t.Setenv("PORTALCRAWL_AUTH_TIMEOUT", "1s")

	out, err := execute(t, "crawl",
		"--login-url", srv.URL+"/login",
		"--driver", "http",
		"--delay", "0s",
		"--output-dir", t.TempDir(),
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "crawl failed")
	assert.NotContains(t, out, "Sample results:")
}

func TestCrawlCommandInvalidConfig(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	_, err := execute(t, "crawl", "--login-url", "", "--mode", "sideways")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}
