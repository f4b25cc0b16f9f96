package auth

import (
	"context"
	"fmt"

	"roomchat/internal/models"
)

// UserStore records users seen through authentication.
type UserStore interface {
	UpsertUser(ctx context.Context, user models.UserRef) error
}

// Authenticator verifies credentials and keeps the user directory current.
type Authenticator struct {
	verifier Verifier
	users    UserStore
}

func NewAuthenticator(verifier Verifier, users UserStore) *Authenticator {
	return &Authenticator{verifier: verifier, users: users}
}

// Authenticate verifies raw and records the identified user.
func (a *Authenticator) Authenticate(ctx context.Context, raw string) (models.UserRef, error) {
	user, err := a.verifier.Verify(ctx, raw)
	if err != nil {
		return models.UserRef{}, err
	}
	if a.users != nil {
		if err := a.users.UpsertUser(ctx, user); err != nil {
			return models.UserRef{}, fmt.Errorf("record user: %w", err)
		}
	}
	return user, nil
}
