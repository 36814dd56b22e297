package http

import (
	"context"
	"errors"

	"github.com/utafrali/VideoTube/internal/auth"
	"github.com/utafrali/VideoTube/internal/domain"
	apperrors "github.com/utafrali/VideoTube/pkg/errors"
	"github.com/utafrali/VideoTube/pkg/middleware"
)

// UserLookup loads the sanitized user behind a verified token.
type UserLookup interface {
	GetPublicByID(ctx context.Context, id string) (*domain.User, error)
}

// NewIdentityResolver verifies access tokens with jwt and confirms the user
// still exists.
func NewIdentityResolver(jwt *auth.JWTManager, users UserLookup) middleware.IdentityResolver {
	return func(ctx context.Context, token string) (*middleware.Identity, error) {
		claims, err := jwt.VerifyAccess(token)
		if err != nil {
			return nil, err
		}

		user, err := users.GetPublicByID(ctx, claims.UserID)
		if err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				return nil, apperrors.Unauthorized("invalid access token")
			}
			return nil, apperrors.Internal(err)
		}

		return &middleware.Identity{
			UserID:   user.ID,
			Email:    user.Email,
			Username: user.Username,
			FullName: user.FullName,
		}, nil
	}
}
