package repository

import (
	"context"
	"errors"

	"github.com/opensource-finance/fraudguard/internal/domain"
)

// CredentialStore pins a TokenStore to one profile and the well-known
// "token" key. It is the API client's token source.
type CredentialStore struct {
	store   domain.TokenStore
	profile string
}

// NewCredentialStore returns a credential view over store.
func NewCredentialStore(store domain.TokenStore, profile string) *CredentialStore {
	if profile == "" {
		profile = domain.DefaultProfile
	}
	return &CredentialStore{store: store, profile: profile}
}

// Token returns the stored credential, or "" when none is stored.
func (c *CredentialStore) Token(ctx context.Context) (string, error) {
	token, err := c.store.Get(ctx, c.profile, domain.TokenKey)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return token, err
}

// Save replaces the stored credential.
func (c *CredentialStore) Save(ctx context.Context, token string) error {
	if token == "" {
		return c.Clear(ctx)
	}
	return c.store.Set(ctx, c.profile, domain.TokenKey, token)
}

// Clear removes the stored credential.
func (c *CredentialStore) Clear(ctx context.Context) error {
	return c.store.Delete(ctx, c.profile, domain.TokenKey)
}

// Profile returns the profile this view is bound to.
func (c *CredentialStore) Profile() string {
	return c.profile
}
