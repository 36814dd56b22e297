package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/utafrali/VideoTube/internal/domain"
	"github.com/utafrali/VideoTube/internal/repository"
	"github.com/utafrali/VideoTube/pkg/database"
	apperrors "github.com/utafrali/VideoTube/pkg/errors"
)

const (
	publicColumns     = `id::text, username, email, full_name, avatar_url, cover_image_url, created_at, updated_at`
	credentialColumns = publicColumns + `, password_hash, COALESCE(refresh_token_hash, '')`

	msgUserNotFound  = "user does not exist"
	msgUserConflict  = "user with email or username already exists"
	msgEmailConflict = "email is already in use"
)

// UserRepository implements repository.UserRepository using PostgreSQL.
type UserRepository struct {
	db     database.DBTX
	hasher repository.PasswordHasher
}

// NewUserRepository creates a new PostgreSQL-backed user repository.
func NewUserRepository(db database.DBTX, hasher repository.PasswordHasher) *UserRepository {
	return &UserRepository{db: db, hasher: hasher}
}

// FindByUsernameOrEmail returns the first user whose username or email
// matches. Stored handles are lowercase, so the arguments are normalized.
func (r *UserRepository) FindByUsernameOrEmail(ctx context.Context, username, email string) (_ *domain.User, err error) {
	username = domain.NormalizeHandle(username)
	email = domain.NormalizeHandle(email)
	if username == "" && email == "" {
		return nil, apperrors.NotFound(msgUserNotFound)
	}

	query := `
		SELECT ` + credentialColumns + `
		FROM users
		WHERE ($1 <> '' AND username = $1) OR ($2 <> '' AND email = $2)
		LIMIT 1`

	ctx, end := database.TraceQuery(ctx, "FindByUsernameOrEmail", query)
	defer func() { end(err) }()

	return scanCredentialUser(r.db.QueryRow(ctx, query, username, email))
}

// GetByID retrieves the full user record.
func (r *UserRepository) GetByID(ctx context.Context, id string) (_ *domain.User, err error) {
	if !validID(id) {
		return nil, apperrors.NotFound(msgUserNotFound)
	}

	query := `SELECT ` + credentialColumns + ` FROM users WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "GetUserByID", query)
	defer func() { end(err) }()

	return scanCredentialUser(r.db.QueryRow(ctx, query, id))
}

// GetPublicByID retrieves the sanitized user record.
func (r *UserRepository) GetPublicByID(ctx context.Context, id string) (_ *domain.User, err error) {
	if !validID(id) {
		return nil, apperrors.NotFound(msgUserNotFound)
	}

	query := `SELECT ` + publicColumns + ` FROM users WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "GetPublicUserByID", query)
	defer func() { end(err) }()

	return scanPublicUser(r.db.QueryRow(ctx, query, id))
}

// Create inserts a new user and returns the sanitized record.
func (r *UserRepository) Create(ctx context.Context, nu *domain.NewUser) (_ *domain.User, err error) {
	nu.Normalize()

	hash, err := r.hasher.Hash(nu.Password)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	query := `
		INSERT INTO users (id, username, email, full_name, password_hash, avatar_url, cover_image_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + publicColumns

	ctx, end := database.TraceQuery(ctx, "CreateUser", query)
	defer func() { end(err) }()

	u, err := scanPublicUser(r.db.QueryRow(ctx, query,
		uuid.NewString(),
		nu.Username,
		nu.Email,
		nu.FullName,
		hash,
		nu.Avatar,
		nu.CoverImage,
	))
	if err != nil {
		if _, ok := database.UniqueViolation(err); ok {
			return nil, apperrors.Conflict(msgUserConflict)
		}
		return nil, err
	}
	return u, nil
}

// UpdateProfile sets full name and email.
func (r *UserRepository) UpdateProfile(ctx context.Context, id, fullName, email string) (_ *domain.User, err error) {
	query := `
		UPDATE users SET full_name = $2, email = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + publicColumns

	ctx, end := database.TraceQuery(ctx, "UpdateProfile", query)
	defer func() { end(err) }()

	return r.updateReturning(ctx, id, query, fullName, domain.NormalizeHandle(email))
}

// UpdateAvatar sets the avatar URL.
func (r *UserRepository) UpdateAvatar(ctx context.Context, id, url string) (_ *domain.User, err error) {
	query := `
		UPDATE users SET avatar_url = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + publicColumns

	ctx, end := database.TraceQuery(ctx, "UpdateAvatar", query)
	defer func() { end(err) }()

	return r.updateReturning(ctx, id, query, url)
}

// UpdateCoverImage sets the cover image URL.
func (r *UserRepository) UpdateCoverImage(ctx context.Context, id, url string) (_ *domain.User, err error) {
	query := `
		UPDATE users SET cover_image_url = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + publicColumns

	ctx, end := database.TraceQuery(ctx, "UpdateCoverImage", query)
	defer func() { end(err) }()

	return r.updateReturning(ctx, id, query, url)
}

func (r *UserRepository) updateReturning(ctx context.Context, id, query string, args ...any) (*domain.User, error) {
	if !validID(id) {
		return nil, apperrors.NotFound(msgUserNotFound)
	}

	u, err := scanPublicUser(r.db.QueryRow(ctx, query, append([]any{id}, args...)...))
	if err != nil {
		if _, ok := database.UniqueViolation(err); ok {
			return nil, apperrors.Conflict(msgEmailConflict)
		}
		return nil, err
	}
	return u, nil
}

// UpdatePassword hashes plain and stores it. No other column changes.
func (r *UserRepository) UpdatePassword(ctx context.Context, id, plain string) (err error) {
	if !validID(id) {
		return apperrors.NotFound(msgUserNotFound)
	}

	hash, err := r.hasher.Hash(plain)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	query := `UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "UpdatePassword", query)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, query, id, hash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound(msgUserNotFound)
	}
	return nil
}

// SetRefreshToken stores digest for the user.
func (r *UserRepository) SetRefreshToken(ctx context.Context, id, digest string) (err error) {
	if !validID(id) {
		return apperrors.NotFound(msgUserNotFound)
	}

	query := `UPDATE users SET refresh_token_hash = $2 WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "SetRefreshToken", query)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, query, id, digest)
	if err != nil {
		return fmt.Errorf("set refresh token: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound(msgUserNotFound)
	}
	return nil
}

// SwapRefreshToken is a single-row compare-and-set on the stored digest.
func (r *UserRepository) SwapRefreshToken(ctx context.Context, id, oldDigest, newDigest string) (_ bool, err error) {
	if !validID(id) || oldDigest == "" {
		return false, nil
	}

	query := `UPDATE users SET refresh_token_hash = $3 WHERE id = $1 AND refresh_token_hash = $2`

	ctx, end := database.TraceQuery(ctx, "SwapRefreshToken", query)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, query, id, oldDigest, newDigest)
	if err != nil {
		return false, fmt.Errorf("swap refresh token: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

// ClearRefreshToken removes the stored digest.
func (r *UserRepository) ClearRefreshToken(ctx context.Context, id string) (err error) {
	if !validID(id) {
		return nil
	}

	query := `UPDATE users SET refresh_token_hash = NULL WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "ClearRefreshToken", query)
	defer func() { end(err) }()

	if _, err := r.db.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("clear refresh token: %w", err)
	}
	return nil
}

func validID(id string) bool {
	return uuid.Validate(id) == nil
}

func scanPublicUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	err := row.Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&u.FullName,
		&u.Avatar,
		&u.CoverImage,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, mapNoRows(err)
	}
	return &u, nil
}

func scanCredentialUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	err := row.Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&u.FullName,
		&u.Avatar,
		&u.CoverImage,
		&u.CreatedAt,
		&u.UpdatedAt,
		&u.PasswordHash,
		&u.RefreshTokenHash,
	)
	if err != nil {
		return nil, mapNoRows(err)
	}
	return &u, nil
}

func mapNoRows(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.NotFound(msgUserNotFound)
	}
	return fmt.Errorf("scan user: %w", err)
}
