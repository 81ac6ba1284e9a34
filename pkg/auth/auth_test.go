package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/amosWeiskopf/portalcrawl/pkg/browser"
)

func loginServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body><form method="post" action="/check">
<input name="_username"><input type="password" name="_password">
<button type="submit">Go</button></form></body></html>`))
	})
	mux.HandleFunc("/check", func(w http.ResponseWriter, r *http.Request) {
		if r.FormValue("_password") != "pw" {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		http.Redirect(w, r, "/home", http.StatusSeeOther)
	})
	mux.HandleFunc("/home", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body>home</body></html>`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestFormAuthenticator(t *testing.T) {
	srv := loginServer(t)

	tests := []struct {
		name     string
		password string
		wantStep string
	}{
		{name: "valid credentials", password: "pw"},
		{name: "rejected credentials", password: "nope", wantStep: "wait for redirect"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := browser.NewHTTP(browser.Options{}, nil)
			require.NoError(t, err)
			defer s.Close()

			a := NewFormAuthenticator(Form{
				LoginURL: srv.URL + "/login",
				Username: "alice",
				Password: tt.password,
			}, zaptest.NewLogger(t))

			landing, err := a.Authenticate(context.Background(), s)
			if tt.wantStep != "" {
				var authErr *Error
				require.ErrorAs(t, err, &authErr)
				assert.Equal(t, tt.wantStep, authErr.Step)
				assert.NotContains(t, err.Error(), tt.password)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, srv.URL+"/home", landing)
		})
	}
}

func TestFormAuthenticatorMissingForm(t *testing.T) {
	srv := loginServer(t)
	s, err := browser.NewHTTP(browser.Options{}, nil)
	require.NoError(t, err)

	a := NewFormAuthenticator(Form{
		LoginURL:         srv.URL + "/home",
		UsernameSelector: "#user",
	}, nil)
	_, err = a.Authenticate(context.Background(), s)

	var authErr *Error
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, "wait for login form", authErr.Step)
}

func TestFormAuthenticatorUnreachable(t *testing.T) {
	s, err := browser.NewHTTP(browser.Options{}, nil)
	require.NoError(t, err)

	a := NewFormAuthenticator(Form{LoginURL: "http://127.0.0.1:1/login"}, nil)
	_, err = a.Authenticate(context.Background(), s)

	var authErr *Error
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "open login page", authErr.Step)
}
