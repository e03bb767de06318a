package domain

import "context"

// Mode is the session's authentication state.
type Mode string

const (
	ModeUnauthenticated Mode = "unauthenticated"
	ModeAuthenticated   Mode = "authenticated"
)

// AuthView selects which form the unauthenticated console shows.
type AuthView string

const (
	ViewLogin    AuthView = "login"
	ViewRegister AuthView = "register"
)

// RegistrationForm is the payload for /auth/register.
type RegistrationForm struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenKey is the single well-known storage key for the bearer credential.
const TokenKey = "token"

// TokenSource yields the current bearer credential, or "" when absent.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// SessionListener observes session transitions. Calls are synchronous:
// when Logout returns every listener has already cleared its state.
type SessionListener interface {
	OnAuthenticated(ctx context.Context)
	OnLoggedOut(ctx context.Context)
}

// Invalidator is the narrow view of the session that dependents use to
// report a rejected credential.
type Invalidator interface {
	Invalidate(ctx context.Context, cause error)
}
