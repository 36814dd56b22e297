package domain

import (
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// User is a registered account. Client-facing reads are loaded without the
// credential columns, so PasswordHash and RefreshTokenHash are empty there.
type User struct {
	ID               string    `json:"id"`
	Username         string    `json:"username"`
	Email            string    `json:"email"`
	FullName         string    `json:"fullName"`
	Avatar           string    `json:"avatar"`
	CoverImage       string    `json:"coverImage"`
	PasswordHash     string    `json:"-"`
	RefreshTokenHash string    `json:"-"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// IsPasswordCorrect compares plain against the stored bcrypt hash. A user
// loaded without credentials never matches.
func (u *User) IsPasswordCorrect(plain string) bool {
	if u.PasswordHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(plain)) == nil
}

// NewUser carries the fields needed to create an account. Password is
// plaintext and is hashed by the store.
type NewUser struct {
	Username   string
	Email      string
	FullName   string
	Password   string
	Avatar     string
	CoverImage string
}

// Normalize trims every field and lowercases username and email.
func (n *NewUser) Normalize() {
	n.Username = NormalizeHandle(n.Username)
	n.Email = NormalizeHandle(n.Email)
	n.FullName = strings.TrimSpace(n.FullName)
	n.Avatar = strings.TrimSpace(n.Avatar)
	n.CoverImage = strings.TrimSpace(n.CoverImage)
}

// NormalizeHandle is the stored form of a username or email.
func NormalizeHandle(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// TokenPair holds an access and refresh token pair.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}
