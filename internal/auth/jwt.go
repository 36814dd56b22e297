package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/utafrali/VideoTube/internal/domain"
	apperrors "github.com/utafrali/VideoTube/pkg/errors"
)

const (
	// DefaultIssuer is the iss claim of every token this service signs.
	DefaultIssuer = "videotube-accounts"

	audienceAccess  = "access"
	audienceRefresh = "refresh"
)

// AccessClaims are carried by access tokens.
type AccessClaims struct {
	UserID   string `json:"user_id"`
	Email    string `json:"email"`
	Username string `json:"username"`
	FullName string `json:"full_name"`
	jwt.RegisteredClaims
}

// RefreshClaims are carried by refresh tokens. The jti makes every token
// unique even when two are minted within the same second.
type RefreshClaims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// JWTConfig configures a JWTManager. Access and refresh tokens are signed
// with separate secrets.
type JWTConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
	Issuer        string
}

// JWTManager issues and verifies HS256 session tokens.
type JWTManager struct {
	accessSecret  []byte
	refreshSecret []byte
	accessExpiry  time.Duration
	refreshExpiry time.Duration
	issuer        string
	now           func() time.Time
}

// NewJWTManager creates a manager from cfg.
func NewJWTManager(cfg JWTConfig) (*JWTManager, error) {
	if cfg.AccessSecret == "" || cfg.RefreshSecret == "" {
		return nil, errors.New("jwt: access and refresh secrets are required")
	}
	if cfg.AccessExpiry <= 0 || cfg.RefreshExpiry <= 0 {
		return nil, errors.New("jwt: token expiries must be positive")
	}
	if cfg.Issuer == "" {
		cfg.Issuer = DefaultIssuer
	}

	return &JWTManager{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessExpiry:  cfg.AccessExpiry,
		refreshExpiry: cfg.RefreshExpiry,
		issuer:        cfg.Issuer,
		now:           time.Now,
	}, nil
}

// AccessExpiry is the lifetime of issued access tokens.
func (m *JWTManager) AccessExpiry() time.Duration { return m.accessExpiry }

// RefreshExpiry is the lifetime of issued refresh tokens.
func (m *JWTManager) RefreshExpiry() time.Duration { return m.refreshExpiry }

// IssueAccessToken signs an access token carrying the user's identity.
func (m *JWTManager) IssueAccessToken(user *domain.User) (string, error) {
	now := m.now().UTC()
	claims := &AccessClaims{
		UserID:   user.ID,
		Email:    user.Email,
		Username: user.Username,
		FullName: user.FullName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Audience:  jwt.ClaimStrings{audienceAccess},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.accessExpiry)),
			Issuer:    m.issuer,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.accessSecret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// IssueRefreshToken signs a refresh token carrying only the user id.
func (m *JWTManager) IssueRefreshToken(user *domain.User) (string, error) {
	now := m.now().UTC()
	claims := &RefreshClaims{
		UserID: user.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   user.ID,
			Audience:  jwt.ClaimStrings{audienceRefresh},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.refreshExpiry)),
			Issuer:    m.issuer,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.refreshSecret)
	if err != nil {
		return "", fmt.Errorf("sign refresh token: %w", err)
	}
	return signed, nil
}

// VerifyAccess validates an access token. Failures are InvalidToken errors.
func (m *JWTManager) VerifyAccess(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := m.parse(token, claims, m.accessSecret, audienceAccess); err != nil {
		return nil, invalidToken("access", err)
	}
	if claims.UserID == "" {
		return nil, apperrors.InvalidToken("invalid access token")
	}
	return claims, nil
}

// VerifyRefresh validates a refresh token. Failures are InvalidToken errors.
func (m *JWTManager) VerifyRefresh(token string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := m.parse(token, claims, m.refreshSecret, audienceRefresh); err != nil {
		return nil, invalidToken("refresh", err)
	}
	if claims.UserID == "" {
		return nil, apperrors.InvalidToken("invalid refresh token")
	}
	return claims, nil
}

func (m *JWTManager) parse(token string, claims jwt.Claims, secret []byte, audience string) error {
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	return err
}

func invalidToken(kind string, err error) *apperrors.AppError {
	if errors.Is(err, jwt.ErrTokenExpired) {
		return apperrors.InvalidToken(kind + " token expired")
	}
	return apperrors.InvalidToken("invalid " + kind + " token")
}

// HashToken returns the hex SHA-256 digest under which a refresh token is
// stored.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
