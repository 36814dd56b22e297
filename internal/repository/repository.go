package repository

import (
	"context"
	"time"

	"github.com/utafrali/VideoTube/internal/domain"
)

// PasswordHasher hashes plaintext passwords before they are stored.
type PasswordHasher interface {
	Hash(plain string) (string, error)
}

// UserRepository is the credential store. Reads that return *domain.User
// for client consumption never load the credential columns.
type UserRepository interface {
	// FindByUsernameOrEmail matches either value case-insensitively. Empty
	// arguments never match. A miss is a NotFound error.
	FindByUsernameOrEmail(ctx context.Context, username, email string) (*domain.User, error)

	// GetByID returns the full record including credential digests.
	GetByID(ctx context.Context, id string) (*domain.User, error)

	// GetPublicByID returns the sanitized projection.
	GetPublicByID(ctx context.Context, id string) (*domain.User, error)

	// Create hashes the password, lowercases username and email and inserts
	// the user. A unique violation is a Conflict error.
	Create(ctx context.Context, u *domain.NewUser) (*domain.User, error)

	UpdateProfile(ctx context.Context, id, fullName, email string) (*domain.User, error)
	UpdateAvatar(ctx context.Context, id, url string) (*domain.User, error)
	UpdateCoverImage(ctx context.Context, id, url string) (*domain.User, error)

	// UpdatePassword hashes plain and writes only the hash.
	UpdatePassword(ctx context.Context, id, plain string) error

	// SetRefreshToken stores digest unconditionally.
	SetRefreshToken(ctx context.Context, id, digest string) error

	// SwapRefreshToken replaces the stored digest only when it still equals
	// oldDigest and reports whether the swap applied.
	SwapRefreshToken(ctx context.Context, id, oldDigest, newDigest string) (bool, error)

	// ClearRefreshToken removes the stored digest. Unknown ids are not an
	// error.
	ClearRefreshToken(ctx context.Context, id string) error
}

// ChannelRepository answers the read-only social graph queries.
type ChannelRepository interface {
	// GetChannelProfile loads the channel by username with its subscription
	// counts. viewerID may be empty for anonymous viewers.
	GetChannelProfile(ctx context.Context, username, viewerID string) (*domain.ChannelProfile, error)

	// GetWatchHistory returns the user's watched videos in history order.
	// It never returns a nil slice.
	GetWatchHistory(ctx context.Context, userID string) ([]domain.WatchedVideo, error)
}

// LoginThrottle counts failed logins per identifier within a window.
type LoginThrottle interface {
	// Locked reports whether identifier has used up its attempts and how
	// long until it may try again.
	Locked(ctx context.Context, identifier string) (bool, time.Duration, error)

	// RecordFailure counts a failed attempt and returns the running total.
	RecordFailure(ctx context.Context, identifier string) (int64, error)

	// Reset forgets identifier's failures.
	Reset(ctx context.Context, identifier string) error
}
