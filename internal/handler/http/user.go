package http

import (
	"context"
	"errors"
	"log/slog"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/VideoTube/internal/domain"
	"github.com/utafrali/VideoTube/internal/media"
	"github.com/utafrali/VideoTube/internal/service"
	apperrors "github.com/utafrali/VideoTube/pkg/errors"
	"github.com/utafrali/VideoTube/pkg/httputil"
	"github.com/utafrali/VideoTube/pkg/middleware"
)

// UserHandler serves the /api/v1/users endpoints.
type UserHandler struct {
	accounts *service.AccountService
	channels *service.ChannelService
	temp     *media.TempStore
	cookies  CookieConfig
	maxForm  int64
	logger   *slog.Logger
}

// NewUserHandler creates a new user HTTP handler. maxUpload caps each staged
// file; the whole multipart body may carry two files plus text fields.
func NewUserHandler(
	accounts *service.AccountService,
	channels *service.ChannelService,
	temp *media.TempStore,
	cookies CookieConfig,
	maxUpload int64,
	logger *slog.Logger,
) *UserHandler {
	return &UserHandler{
		accounts: accounts,
		channels: channels,
		temp:     temp,
		cookies:  cookies,
		maxForm:  2*maxUpload + maxBodyBytes,
		logger:   logger,
	}
}

// --- Request DTOs ---

// RegisterRequest holds the text fields of the multipart registration form.
// Presence is checked by the service so every missing field is reported.
type RegisterRequest struct {
	FullName string `form:"fullName,trim" json:"fullName" validate:"omitempty,max=100"`
	Email    string `form:"email,trim" json:"email" validate:"omitempty,email"`
	Username string `form:"username,trim" json:"username" validate:"omitempty,max=30"`
	Password string `form:"password" json:"password" validate:"omitempty,min=8,maxbytes=72"`
}

// LoginRequest accepts either username or email.
type LoginRequest struct {
	Username string `form:"username,trim" json:"username"`
	Email    string `form:"email,trim" json:"email" validate:"omitempty,email"`
	Password string `form:"password" json:"password"`
}

// RefreshTokenRequest is the optional body of a refresh call. The cookie
// wins when both are present.
type RefreshTokenRequest struct {
	RefreshToken string `form:"refreshToken,trim" json:"refreshToken"`
}

// ChangePasswordRequest is the body for a password change.
type ChangePasswordRequest struct {
	OldPassword string `form:"oldPassword" json:"oldPassword" validate:"required"`
	NewPassword string `form:"newPassword" json:"newPassword" validate:"required,min=8,maxbytes=72"`
}

// UpdateAccountRequest is the body for a profile update.
type UpdateAccountRequest struct {
	FullName string `form:"fullName,trim" json:"fullName" validate:"required,notblank,max=100"`
	Email    string `form:"email,trim" json:"email" validate:"required,email"`
}

type empty struct{}

// --- Auth handlers ---

// Register handles POST /api/v1/users/register
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	if err := h.parseMultipart(w, r); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	var req RegisterRequest
	if err := bind(w, r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	avatar, err := h.stageFile(r, "avatar")
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	cover, err := h.stageFile(r, "coverImage")
	if err != nil {
		media.Discard(avatar)
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	user, err := h.accounts.Register(r.Context(), service.RegisterInput{
		FullName:   req.FullName,
		Email:      req.Email,
		Username:   req.Username,
		Password:   req.Password,
		Avatar:     avatar,
		CoverImage: cover,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteSuccess(w, http.StatusCreated, user, "user registered successfully")
}

// Login handles POST /api/v1/users/login
func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := h.bindBody(w, r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	res, err := h.accounts.Login(r.Context(), service.LoginInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	h.cookies.setSession(w, &domain.TokenPair{AccessToken: res.AccessToken, RefreshToken: res.RefreshToken})
	httputil.WriteSuccess(w, http.StatusOK, res, "user logged in successfully")
}

// Logout handles POST /api/v1/users/logout
func (h *UserHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.accounts.Logout(r.Context(), middleware.UserIDFromContext(r.Context())); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	h.cookies.clearSession(w)
	httputil.WriteSuccess(w, http.StatusOK, empty{}, "user logged out")
}

// RefreshToken handles POST /api/v1/users/refresh-token
func (h *UserHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var token string
	if c, err := r.Cookie(RefreshTokenCookie); err == nil {
		token = c.Value
	}
	if token == "" {
		var req RefreshTokenRequest
		if err := h.bindBody(w, r, &req); err != nil {
			httputil.WriteValidationError(w, r, err)
			return
		}
		token = req.RefreshToken
	}

	pair, err := h.accounts.Refresh(r.Context(), token)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	h.cookies.setSession(w, pair)
	httputil.WriteSuccess(w, http.StatusOK, pair, "access token refreshed")
}

// ChangePassword handles POST /api/v1/users/change-password
func (h *UserHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req ChangePasswordRequest
	if err := h.bindBody(w, r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	userID := middleware.UserIDFromContext(r.Context())
	if err := h.accounts.ChangePassword(r.Context(), userID, req.OldPassword, req.NewPassword); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteSuccess(w, http.StatusOK, empty{}, "password changed successfully")
}

// --- Profile handlers ---

// CurrentUser handles GET /api/v1/users/current-user
func (h *UserHandler) CurrentUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.accounts.GetCurrentUser(r.Context(), middleware.UserIDFromContext(r.Context()))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteSuccess(w, http.StatusOK, user, "current user fetched successfully")
}

// UpdateAccount handles PATCH /api/v1/users/update-account
func (h *UserHandler) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	var req UpdateAccountRequest
	if err := h.bindBody(w, r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	user, err := h.accounts.UpdateProfile(r.Context(), middleware.UserIDFromContext(r.Context()), req.FullName, req.Email)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteSuccess(w, http.StatusOK, user, "account details updated successfully")
}

// UpdateAvatar handles PATCH /api/v1/users/avatar
func (h *UserHandler) UpdateAvatar(w http.ResponseWriter, r *http.Request) {
	h.replaceImage(w, r, "avatar", h.accounts.UpdateAvatar, "avatar updated successfully")
}

// UpdateCoverImage handles PATCH /api/v1/users/cover-image
func (h *UserHandler) UpdateCoverImage(w http.ResponseWriter, r *http.Request) {
	h.replaceImage(w, r, "coverImage", h.accounts.UpdateCoverImage, "cover image updated successfully")
}

type imageUpdater func(ctx context.Context, userID string, file *media.LocalFile) (*domain.User, error)

func (h *UserHandler) replaceImage(w http.ResponseWriter, r *http.Request, field string, update imageUpdater, msg string) {
	if err := h.parseMultipart(w, r); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	file, err := h.stageFile(r, field)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	user, err := update(r.Context(), middleware.UserIDFromContext(r.Context()), file)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteSuccess(w, http.StatusOK, user, msg)
}

// --- Channel handlers ---

// Channel handles GET /api/v1/users/c/{username}
func (h *UserHandler) Channel(w http.ResponseWriter, r *http.Request) {
	viewerID := middleware.UserIDFromContext(r.Context())

	profile, err := h.channels.GetChannelProfile(r.Context(), chi.URLParam(r, "username"), viewerID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteSuccess(w, http.StatusOK, profile, "user channel fetched successfully")
}

// WatchHistory handles GET /api/v1/users/history
func (h *UserHandler) WatchHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.channels.GetWatchHistory(r.Context(), middleware.UserIDFromContext(r.Context()))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteSuccess(w, http.StatusOK, history, "watch history fetched successfully")
}

// --- Helpers ---

func isMultipart(r *http.Request) bool {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return ct == "multipart/form-data"
}

// parseMultipart parses a multipart body once. Other content types are left
// for bind.
func (h *UserHandler) parseMultipart(w http.ResponseWriter, r *http.Request) error {
	if !isMultipart(r) || r.MultipartForm != nil {
		return nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxForm)
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperrors.InvalidInput("request body too large")
		}
		return apperrors.InvalidInput("invalid multipart form")
	}
	return nil
}

// stageFile copies the first part named field to the temp store. A missing
// part yields nil.
func (h *UserHandler) stageFile(r *http.Request, field string) (*media.LocalFile, error) {
	if r.MultipartForm == nil {
		return nil, nil
	}
	files := r.MultipartForm.File[field]
	if len(files) == 0 {
		return nil, nil
	}
	return h.temp.Stage(files[0])
}

// bindBody binds a body that carries no files.
func (h *UserHandler) bindBody(w http.ResponseWriter, r *http.Request, dst any) error {
	if err := h.parseMultipart(w, r); err != nil {
		return err
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}
	return bind(w, r, dst)
}
