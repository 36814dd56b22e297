package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/utafrali/VideoTube/internal/auth"
	"github.com/utafrali/VideoTube/internal/domain"
	"github.com/utafrali/VideoTube/internal/repository"
	apperrors "github.com/utafrali/VideoTube/pkg/errors"
)

const msgRefreshReused = "refresh token is expired or used"

// SessionService issues token pairs and keeps the stored refresh digest in
// step with the latest issued refresh token.
type SessionService struct {
	users  repository.UserRepository
	jwt    *auth.JWTManager
	logger *slog.Logger
}

// NewSessionService creates a new session service.
func NewSessionService(users repository.UserRepository, jwt *auth.JWTManager, logger *slog.Logger) *SessionService {
	return &SessionService{users: users, jwt: jwt, logger: logger}
}

// Rotate loads the user, issues a fresh pair and stores its refresh digest
// unconditionally.
func (s *SessionService) Rotate(ctx context.Context, userID string) (*domain.TokenPair, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("load user for token issue: %w", err))
	}

	pair, err := s.issue(user)
	if err != nil {
		return nil, err
	}

	if err := s.users.SetRefreshToken(ctx, user.ID, auth.HashToken(pair.RefreshToken)); err != nil {
		return nil, apperrors.Internal(fmt.Errorf("store refresh token: %w", err))
	}
	return pair, nil
}

// RotateFrom issues a fresh pair and stores it only if the stored digest
// still matches presented. Of two concurrent calls with the same token at
// most one succeeds.
func (s *SessionService) RotateFrom(ctx context.Context, user *domain.User, presented string) (*domain.TokenPair, error) {
	pair, err := s.issue(user)
	if err != nil {
		return nil, err
	}

	ok, err := s.users.SwapRefreshToken(ctx, user.ID, auth.HashToken(presented), auth.HashToken(pair.RefreshToken))
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("rotate refresh token: %w", err))
	}
	if !ok {
		s.logger.WarnContext(ctx, "refresh token replay rejected",
			slog.String("user_id", user.ID),
		)
		return nil, apperrors.Unauthorized(msgRefreshReused)
	}
	return pair, nil
}

// Revoke clears the stored refresh digest. Revoking twice is not an error.
func (s *SessionService) Revoke(ctx context.Context, userID string) error {
	if err := s.users.ClearRefreshToken(ctx, userID); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

func (s *SessionService) issue(user *domain.User) (*domain.TokenPair, error) {
	access, err := s.jwt.IssueAccessToken(user)
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("issue access token: %w", err))
	}
	refresh, err := s.jwt.IssueRefreshToken(user)
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("issue refresh token: %w", err))
	}
	return &domain.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}
