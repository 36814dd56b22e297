package http

import (
	"net/http"
	"time"

	"github.com/utafrali/VideoTube/internal/domain"
	"github.com/utafrali/VideoTube/pkg/middleware"
)

// RefreshTokenCookie carries the refresh token.
const RefreshTokenCookie = "refreshToken"

// CookieConfig controls the session cookies.
type CookieConfig struct {
	Secure        bool
	AccessMaxAge  time.Duration
	RefreshMaxAge time.Duration
}

func (c CookieConfig) cookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func (c CookieConfig) setSession(w http.ResponseWriter, pair *domain.TokenPair) {
	http.SetCookie(w, c.cookie(middleware.AccessTokenCookie, pair.AccessToken, int(c.AccessMaxAge.Seconds())))
	http.SetCookie(w, c.cookie(RefreshTokenCookie, pair.RefreshToken, int(c.RefreshMaxAge.Seconds())))
}

func (c CookieConfig) clearSession(w http.ResponseWriter) {
	http.SetCookie(w, c.cookie(middleware.AccessTokenCookie, "", -1))
	http.SetCookie(w, c.cookie(RefreshTokenCookie, "", -1))
}
