package auth

import (
	"context"
	"time"
)

// Service wraps sign-in bookkeeping. The actual credential check is the
// provider's job; by the time this runs the id token is already verified.
type Service struct {
	repo Repository
}

// NewService constructs a new Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// RecordSignIn upserts the account after a verified callback.
func (s *Service) RecordSignIn(ctx context.Context, acct Account) error {
	if s.repo == nil {
		return nil
	}
	return s.repo.UpsertAccount(ctx, acct)
}

// RegisterSession persists the session metadata in postgres.
func (s *Service) RegisterSession(ctx context.Context, id, subject string, expiresAt time.Time, ip, ua string) error {
	if s.repo == nil {
		return nil
	}
	return s.repo.CreateSession(ctx, id, subject, expiresAt, ip, ua)
}

// RemoveSession deletes a session record from postgres.
func (s *Service) RemoveSession(ctx context.Context, id string) error {
	if s.repo == nil {
		return nil
	}
	return s.repo.DeleteSession(ctx, id)
}
