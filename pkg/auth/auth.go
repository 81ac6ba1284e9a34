// Package auth logs a browser session into the portal.
package auth

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/amosWeiskopf/portalcrawl/pkg/browser"
)

// Authenticator turns a fresh session into an authenticated one and
// returns the URL the session landed on.
type Authenticator interface {
	Authenticate(ctx context.Context, s browser.Session) (string, error)
}

// Error reports a failed login. The run cannot continue without a session.
type Error struct {
	Step string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("authentication failed at %s: %v", e.Step, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Form describes a username/password login form.
type Form struct {
	LoginURL           string
	Username           string
	Password           string
	UsernameSelector   string
	PasswordSelector   string
	SubmitSelector     string
	SuccessURLContains string
	Timeout            time.Duration
}

// Default selectors of a Symfony-style login form.
const (
	DefaultUsernameSelector = `input[name="_username"]`
	DefaultPasswordSelector = `input[name="_password"]`
	DefaultSubmitSelector   = `button[type="submit"]`
	DefaultSuccessMarker    = "/home"
	DefaultTimeout          = 15 * time.Second
)

// FormAuthenticator fills and submits a login form, then waits for the
// post-login redirect.
type FormAuthenticator struct {
	form   Form
	logger *zap.Logger
}

// NewFormAuthenticator fills unset selectors and timeout with defaults.
func NewFormAuthenticator(form Form, logger *zap.Logger) *FormAuthenticator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if form.UsernameSelector == "" {
		form.UsernameSelector = DefaultUsernameSelector
	}
	if form.PasswordSelector == "" {
		form.PasswordSelector = DefaultPasswordSelector
	}
	if form.SubmitSelector == "" {
		form.SubmitSelector = DefaultSubmitSelector
	}
	if form.SuccessURLContains == "" {
		form.SuccessURLContains = DefaultSuccessMarker
	}
	if form.Timeout <= 0 {
		form.Timeout = DefaultTimeout
	}
	return &FormAuthenticator{form: form, logger: logger}
}

func (a *FormAuthenticator) Authenticate(ctx context.Context, s browser.Session) (string, error) {
	f := a.form
	a.logger.Info("logging in", zap.String("login_url", f.LoginURL), zap.String("username", f.Username))

	steps := []struct {
		name string
		run  func() error
	}{
		{"open login page", func() error { return s.Navigate(ctx, f.LoginURL) }},
		{"wait for login form", func() error { return s.WaitVisible(ctx, f.UsernameSelector, f.Timeout) }},
		{"fill username", func() error { return s.Fill(ctx, f.UsernameSelector, f.Username) }},
		{"fill password", func() error { return s.Fill(ctx, f.PasswordSelector, f.Password) }},
		{"submit", func() error { return s.Click(ctx, f.SubmitSelector) }},
		{"wait for redirect", func() error { return s.WaitURLContains(ctx, f.SuccessURLContains, f.Timeout) }},
	}
	for _, step := range steps {
		if err := step.run(); err != nil {
			return "", &Error{Step: step.name, Err: err}
		}
	}

	landing, err := s.CurrentURL(ctx)
	if err != nil {
		return "", &Error{Step: "read landing url", Err: err}
	}
	a.logger.Info("login successful", zap.String("landing_url", landing))
	return landing, nil
}
