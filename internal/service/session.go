package service

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/marchand/essence/internal/domain"
	"github.com/marchand/essence/internal/repository"
)

// sessionVerifier resolves session tokens against the store.
type sessionVerifier struct {
	store repository.Store
}

// NewSessionVerifier creates a store-backed session verifier.
func NewSessionVerifier(store repository.Store) domain.SessionVerifier {
	return &sessionVerifier{store: store}
}

func (v *sessionVerifier) VerifySession(ctx context.Context, token string) (*repository.User, error) {
	if token == "" {
		return nil, domain.ErrSessionNotFound
	}
	user, err := v.store.GetUserBySessionToken(ctx, token)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, domain.Internal(err, "session.verify", "failed to look up session")
	}
	return &user, nil
}
