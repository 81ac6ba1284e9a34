package browser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const loginPage = `<!DOCTYPE html>
<html><head><title>Sign in</title></head>
<body>
<form method="post" action="/login_check">
  <input type="hidden" name="_csrf_token" value="tok-123">
  <input type="text" name="_username">
  <input type="password" name="_password">
  <input type="checkbox" name="_remember_me">
  <button type="submit">Sign in</button>
</form>
</body></html>`

const homePage = `<!DOCTYPE html>
<html><head><title> Home </title><style>.x{color:red}</style></head>
<body>
<h1>Welcome</h1>
<script>var secret = 1;</script>
<p>Internal dashboard</p>
<a href="/a">A</a>
<a href="b">B</a>
<a href="https://evil.example/x">Elsewhere</a>
<a href="http://[::1">Broken</a>
<a name="anchor-without-href">No href</a>
</body></html>`

func newPortal(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(loginPage))
	})
	mux.HandleFunc("/login_check", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if r.PostForm.Get("_csrf_token") != "tok-123" ||
			r.PostForm.Get("_username") != "alice" ||
			r.PostForm.Get("_password") != "s3cret" ||
			r.PostForm.Has("_remember_me") {
			http.Redirect(w, r, "/login?error=1", http.StatusFound)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "ok", Path: "/"})
		http.Redirect(w, r, "/home", http.StatusFound)
	})
	mux.HandleFunc("/home", func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("session"); err != nil || c.Value != "ok" {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(homePage))
	})
	mux.HandleFunc("/broken-form", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body><form method="post" action="http://[::1"><button>Go</button></form></body></html>`))
	})
	mux.HandleFunc("/report.pdf", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.4"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPLoginFlow(t *testing.T) {
	srv := newPortal(t)
	ctx := context.Background()

	h, err := NewHTTP(Options{}, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer h.Close()

	require.NoError(t, h.Navigate(ctx, srv.URL+"/login"))
	require.NoError(t, h.WaitVisible(ctx, `input[name="_username"]`, time.Second))
	require.NoError(t, h.Fill(ctx, `input[name="_username"]`, "alice"))
	require.NoError(t, h.Fill(ctx, `input[name="_password"]`, "s3cret"))
	require.NoError(t, h.Click(ctx, `button[type="submit"]`))
	require.NoError(t, h.WaitURLContains(ctx, "/home", time.Second))

	current, err := h.CurrentURL(ctx)
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/home", current)

	title, err := h.Title(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Home", title)

	text, err := h.BodyText(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Welcome\nInternal dashboard\nA\nB\nElsewhere\nBroken\nNo href", text)
	assert.NotContains(t, text, "secret")

	anchors, err := h.Anchors(ctx)
	require.NoError(t, err)
	require.Len(t, anchors, 4)
	assert.Equal(t, srv.URL+"/a", anchors[0].Href)
	assert.Equal(t, srv.URL+"/b", anchors[1].Href)
	assert.Equal(t, "https://evil.example/x", anchors[2].Href)
	assert.Error(t, anchors[3].Err)
}

func TestHTTPLoginRejected(t *testing.T) {
	srv := newPortal(t)
	ctx := context.Background()

	h, err := NewHTTP(Options{}, nil)
	require.NoError(t, err)

	require.NoError(t, h.Navigate(ctx, srv.URL+"/login"))
	require.NoError(t, h.Fill(ctx, `input[name="_username"]`, "alice"))
	require.NoError(t, h.Fill(ctx, `input[name="_password"]`, "wrong"))
	require.NoError(t, h.Click(ctx, `button[type="submit"]`))
	assert.Error(t, h.WaitURLContains(ctx, "/home", time.Second))
}

func TestHTTPNavigateErrors(t *testing.T) {
	srv := newPortal(t)
	ctx := context.Background()

	h, err := NewHTTP(Options{}, nil)
	require.NoError(t, err)

	_, err = h.CurrentURL(ctx)
	assert.ErrorIs(t, err, ErrNoPage)

	assert.Error(t, h.Navigate(ctx, srv.URL+"/missing"))
	assert.Error(t, h.Navigate(ctx, srv.URL+"/report.pdf"))
	assert.Error(t, h.Navigate(ctx, "://bad"))

	_, err = h.Snapshot(ctx)
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestHTTPFillErrors(t *testing.T) {
	srv := newPortal(t)
	ctx := context.Background()

	h, err := NewHTTP(Options{}, nil)
	require.NoError(t, err)
	require.NoError(t, h.Navigate(ctx, srv.URL+"/login"))

	assert.Error(t, h.Fill(ctx, "#missing", "x"))
	assert.Error(t, h.Fill(ctx, "form", "x"), "element without name")
	assert.Error(t, h.Click(ctx, "title"), "not inside a form")
	assert.Error(t, h.WaitVisible(ctx, "#missing", time.Second))
}

func TestHTTPClickUnparsableTarget(t *testing.T) {
	srv := newPortal(t)
	ctx := context.Background()

	h, err := NewHTTP(Options{}, nil)
	require.NoError(t, err)

	require.NoError(t, h.Navigate(ctx, srv.URL+"/broken-form"))
	err = h.Click(ctx, "button")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "form action")
	current, err := h.CurrentURL(ctx)
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/broken-form", current)

	require.NoError(t, h.Navigate(ctx, srv.URL+"/login"))
	require.NoError(t, h.Fill(ctx, `input[name="_username"]`, "alice"))
	require.NoError(t, h.Fill(ctx, `input[name="_password"]`, "s3cret"))
	require.NoError(t, h.Click(ctx, `button[type="submit"]`))
	require.NoError(t, h.WaitURLContains(ctx, "/home", time.Second))

	assert.Error(t, h.Click(ctx, `a:contains("Broken")`), "unparsable href is not followed")
	current, err = h.CurrentURL(ctx)
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/home", current)
}

func TestNewOpener(t *testing.T) {
	_, err := NewOpener(Options{Driver: "netscape"}, nil)
	assert.Error(t, err)

	o, err := NewOpener(Options{Driver: DriverHTTP}, nil)
	require.NoError(t, err)
	s, err := o.Open(context.Background())
	require.NoError(t, err)
	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
}
