// Package session owns the console's authentication state and the
// stored bearer credential.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/opensource-finance/fraudguard/internal/apiclient"
	"github.com/opensource-finance/fraudguard/internal/bus"
	"github.com/opensource-finance/fraudguard/internal/domain"
)

// Notices and fallback messages shown by the auth views.
const (
	NoticeAccountCreated = "Account created! Login to continue."
	MessageAuthFailed    = "Auth failed!"
)

// Authenticator is the part of the API client the session needs.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (string, error)
	Register(ctx context.Context, form domain.RegistrationForm) error
}

// Credentials is the durable token store.
type Credentials interface {
	Token(ctx context.Context) (string, error)
	Save(ctx context.Context, token string) error
	Clear(ctx context.Context) error
}

// State is a point-in-time copy of the session for rendering.
type State struct {
	Mode    domain.Mode     `json:"mode"`
	View    domain.AuthView `json:"view"`
	Notice  string          `json:"notice,omitempty"`
	Error   string          `json:"error,omitempty"`
	Subject string          `json:"subject,omitempty"`
}

// Controller is the session state machine. Safe for concurrent use.
// Listeners are called synchronously, outside the controller's lock.
type Controller struct {
	mu        sync.Mutex
	api       Authenticator
	creds     Credentials
	events    *bus.Emitter
	listeners []domain.SessionListener
	now       func() time.Time

	mode    domain.Mode
	view    domain.AuthView
	notice  string
	lastErr string
	subject string
}

// NewController creates an unauthenticated controller. Call Start to
// restore a stored credential.
func NewController(api Authenticator, creds Credentials, events *bus.Emitter) *Controller {
	return &Controller{
		api:    api,
		creds:  creds,
		events: events,
		now:    time.Now,
		mode:   domain.ModeUnauthenticated,
		view:   domain.ViewLogin,
	}
}

// AddListener registers l for session transitions.
func (c *Controller) AddListener(l domain.SessionListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

// Start derives the initial mode from the stored credential. A stored
// token means Authenticated even if it has expired; the server decides.
func (c *Controller) Start(ctx context.Context) error {
	token, err := c.creds.Token(ctx)
	if err != nil {
		return fmt.Errorf("read stored credential: %w", err)
	}
	if token == "" {
		slog.Info("no stored credential, starting unauthenticated")
		return nil
	}

	subject := ""
	if claims, err := ReadClaims(token); err == nil {
		subject = claims.Subject
		if claims.Expired(c.now()) {
			slog.Warn("stored credential has expired, the server will likely reject it",
				"subject", claims.Subject,
				"expired_at", claims.ExpiresAt,
			)
		}
	}

	c.mu.Lock()
	c.mode = domain.ModeAuthenticated
	c.subject = subject
	listeners := c.snapshotListeners()
	c.mu.Unlock()

	slog.Info("restored stored credential", "subject", subject)
	for _, l := range listeners {
		l.OnAuthenticated(ctx)
	}
	return nil
}

// Login exchanges credentials for a token and stores it.
func (c *Controller) Login(ctx context.Context, username, password string) error {
	if strings.TrimSpace(username) == "" || password == "" {
		err := fmt.Errorf("%w: username and password are required", domain.ErrValidationRejected)
		c.setError(err.Error())
		return err
	}

	token, err := c.api.Login(ctx, username, password)
	if err != nil {
		c.setError(AuthErrorMessage(err))
		if domain.IsAuthRejected(err) {
			c.Invalidate(ctx, err)
		}
		slog.Warn("login failed", "username", username, "error", err)
		return err
	}

	if err := c.creds.Save(ctx, token); err != nil {
		c.setError(MessageAuthFailed)
		return fmt.Errorf("store credential: %w", err)
	}

	subject := username
	if claims, err := ReadClaims(token); err == nil && claims.Subject != "" {
		subject = claims.Subject
	}

	c.mu.Lock()
	c.mode = domain.ModeAuthenticated
	c.subject = subject
	c.notice = ""
	c.lastErr = ""
	listeners := c.snapshotListeners()
	c.mu.Unlock()

	slog.Info("login succeeded", "subject", subject)
	c.events.Emit(ctx, domain.TopicSessionAuthenticated, subject)
	for _, l := range listeners {
		l.OnAuthenticated(ctx)
	}
	return nil
}

// Register creates an account. It never authenticates: on success the
// login view is shown with NoticeAccountCreated.
func (c *Controller) Register(ctx context.Context, form domain.RegistrationForm) error {
	if strings.TrimSpace(form.Username) == "" || strings.TrimSpace(form.Email) == "" || form.Password == "" {
		err := fmt.Errorf("%w: username, email and password are required", domain.ErrValidationRejected)
		c.setError(err.Error())
		return err
	}
	if !EvaluatePassword(form.Password).AllValid() {
		err := fmt.Errorf("%w: password does not meet the policy", domain.ErrValidationRejected)
		c.setError(err.Error())
		return err
	}

	if err := c.api.Register(ctx, form); err != nil {
		c.setError(AuthErrorMessage(err))
		slog.Warn("registration failed", "username", form.Username, "error", err)
		return err
	}

	c.mu.Lock()
	c.view = domain.ViewLogin
	c.notice = NoticeAccountCreated
	c.lastErr = ""
	c.mu.Unlock()

	slog.Info("registration succeeded", "username", form.Username)
	return nil
}

// Logout clears the credential and notifies listeners. Idempotent.
func (c *Controller) Logout(ctx context.Context) error {
	return c.end(ctx, nil)
}

// Invalidate ends the session after the server rejected the credential.
func (c *Controller) Invalidate(ctx context.Context, cause error) {
	if err := c.end(ctx, cause); err != nil {
		slog.Error("failed to clear rejected credential", "error", err)
	}
}

func (c *Controller) end(ctx context.Context, cause error) error {
	clearErr := c.creds.Clear(ctx)

	c.mu.Lock()
	wasAuthenticated := c.mode == domain.ModeAuthenticated
	c.mode = domain.ModeUnauthenticated
	c.subject = ""
	listeners := c.snapshotListeners()
	c.mu.Unlock()

	if wasAuthenticated {
		if cause != nil {
			slog.Warn("session invalidated", "cause", cause)
		} else {
			slog.Info("logged out")
		}
		c.events.Emit(ctx, domain.TopicSessionLoggedOut, "")
	}
	for _, l := range listeners {
		l.OnLoggedOut(ctx)
	}

	if clearErr != nil {
		return fmt.Errorf("clear credential: %w", clearErr)
	}
	return nil
}

// ShowLogin switches to the login form and clears any pending message.
func (c *Controller) ShowLogin() { c.setView(domain.ViewLogin) }

// ShowRegister switches to the registration form and clears any pending message.
func (c *Controller) ShowRegister() { c.setView(domain.ViewRegister) }

// ToggleView flips between login and registration.
func (c *Controller) ToggleView() {
	c.mu.Lock()
	next := domain.ViewRegister
	if c.view == domain.ViewRegister {
		next = domain.ViewLogin
	}
	c.mu.Unlock()
	c.setView(next)
}

func (c *Controller) setView(v domain.AuthView) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.view = v
	c.notice = ""
	c.lastErr = ""
}

func (c *Controller) setError(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastErr = msg
	c.notice = ""
}

// Mode returns the current mode.
func (c *Controller) Mode() domain.Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// IsAuthenticated reports whether a credential is held.
func (c *Controller) IsAuthenticated() bool {
	return c.Mode() == domain.ModeAuthenticated
}

// State returns a copy of the session for rendering.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		Mode:    c.mode,
		View:    c.view,
		Notice:  c.notice,
		Error:   c.lastErr,
		Subject: c.subject,
	}
}

func (c *Controller) snapshotListeners() []domain.SessionListener {
	out := make([]domain.SessionListener, len(c.listeners))
	copy(out, c.listeners)
	return out
}

// AuthErrorMessage is the text shown for a failed login or registration:
// the server's detail when present, MessageAuthFailed otherwise.
func AuthErrorMessage(err error) string {
	var apiErr *apiclient.APIError
	if errors.As(err, &apiErr) && apiErr.Detail != "" {
		return apiErr.Detail
	}
	if errors.Is(err, domain.ErrValidationRejected) {
		return err.Error()
	}
	return MessageAuthFailed
}
