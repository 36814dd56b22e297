package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/utafrali/VideoTube/internal/auth"
	"github.com/utafrali/VideoTube/internal/domain"
	"github.com/utafrali/VideoTube/internal/event"
	"github.com/utafrali/VideoTube/internal/media"
	"github.com/utafrali/VideoTube/internal/repository"
	apperrors "github.com/utafrali/VideoTube/pkg/errors"
	"github.com/utafrali/VideoTube/pkg/tracing"
)

const tracerName = "github.com/utafrali/VideoTube/internal/service"

// MediaUploader hosts staged files. *media.Uploader satisfies it.
type MediaUploader interface {
	Upload(ctx context.Context, file *media.LocalFile, folder string) (string, error)
	Delete(ctx context.Context, url, folder string) error
}

// AccountService implements registration, login and profile maintenance.
type AccountService struct {
	users    repository.UserRepository
	sessions *SessionService
	jwt      *auth.JWTManager
	uploader MediaUploader
	throttle repository.LoginThrottle
	events   event.Publisher
	policy   *bluemonday.Policy
	logger   *slog.Logger
}

// NewAccountService creates a new account service. throttle may be nil,
// which disables login lockout.
func NewAccountService(
	users repository.UserRepository,
	sessions *SessionService,
	jwt *auth.JWTManager,
	uploader MediaUploader,
	throttle repository.LoginThrottle,
	events event.Publisher,
	logger *slog.Logger,
) *AccountService {
	if events == nil {
		events = event.Noop{}
	}
	return &AccountService{
		users:    users,
		sessions: sessions,
		jwt:      jwt,
		uploader: uploader,
		throttle: throttle,
		events:   events,
		policy:   bluemonday.StrictPolicy(),
		logger:   logger,
	}
}

// --- Input/Output types ---

// RegisterInput holds the parameters for registering a new user. The files
// are staged on disk and are removed before Register returns.
type RegisterInput struct {
	FullName   string
	Email      string
	Username   string
	Password   string
	Avatar     *media.LocalFile
	CoverImage *media.LocalFile
}

// LoginInput identifies the user by username or email.
type LoginInput struct {
	Username string
	Email    string
	Password string
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	User         *domain.User `json:"user"`
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
}

// --- Auth Operations ---

// Register validates input, uploads the images and creates the account.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (_ *domain.User, err error) {
	ctx, end := tracing.Start(ctx, tracerName, "AccountService.Register")
	defer func() { end(err) }()
	defer media.Discard(in.Avatar, in.CoverImage)

	in.FullName = strings.TrimSpace(in.FullName)
	in.Email = strings.TrimSpace(in.Email)
	in.Username = strings.TrimSpace(in.Username)

	var missing []apperrors.FieldError
	for _, f := range []struct{ name, value string }{
		{"fullName", in.FullName},
		{"email", in.Email},
		{"username", in.Username},
		{"password", strings.TrimSpace(in.Password)},
	} {
		if f.value == "" {
			missing = append(missing, apperrors.FieldError{Field: f.name, Message: "is required"})
		}
	}
	if len(missing) > 0 {
		return nil, apperrors.Validation("all fields are required", missing)
	}
	if err := checkPasswordLength("password", in.Password); err != nil {
		return nil, err
	}

	existing, err := s.users.FindByUsernameOrEmail(ctx, in.Username, in.Email)
	switch {
	case err == nil && existing != nil:
		return nil, apperrors.Conflict("user with email or username already exists")
	case err != nil && !errors.Is(err, apperrors.ErrNotFound):
		return nil, fmt.Errorf("check existing user: %w", err)
	}

	if in.Avatar == nil {
		return nil, apperrors.Validation("avatar file is required",
			[]apperrors.FieldError{{Field: "avatar", Message: "is required"}})
	}

	avatarURL, err := s.uploader.Upload(ctx, in.Avatar, media.FolderAvatars)
	if err != nil {
		return nil, apperrors.Upload("avatar upload failed", err)
	}

	coverURL, coverErr := s.uploader.Upload(ctx, in.CoverImage, media.FolderCovers)
	if coverErr != nil {
		s.logger.WarnContext(ctx, "cover image upload failed, continuing without cover",
			slog.String("username", in.Username),
			slog.String("error", coverErr.Error()),
		)
		coverURL = ""
	}

	created, err := s.users.Create(ctx, &domain.NewUser{
		Username:   in.Username,
		Email:      in.Email,
		FullName:   s.sanitize(in.FullName),
		Password:   in.Password,
		Avatar:     avatarURL,
		CoverImage: coverURL,
	})
	if err != nil {
		s.discardHosted(ctx, avatarURL, media.FolderAvatars)
		s.discardHosted(ctx, coverURL, media.FolderCovers)
		return nil, err
	}

	user, err := s.users.GetPublicByID(ctx, created.ID)
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("reload registered user: %w", err))
	}

	if err := s.events.PublishUserRegistered(ctx, user); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish user.registered event",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "user registered",
		slog.String("user_id", user.ID),
		slog.String("username", user.Username),
	)

	return user, nil
}

// Login authenticates by username or email and starts a new session.
func (s *AccountService) Login(ctx context.Context, in LoginInput) (_ *LoginResult, err error) {
	ctx, end := tracing.Start(ctx, tracerName, "AccountService.Login")
	defer func() { end(err) }()

	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	if in.Username == "" && in.Email == "" {
		return nil, apperrors.Validation("username or email is required",
			[]apperrors.FieldError{{Field: "username", Message: "username or email is required"}})
	}
	if in.Password == "" {
		return nil, apperrors.Validation("password is required",
			[]apperrors.FieldError{{Field: "password", Message: "is required"}})
	}

	identifier := in.Username
	if identifier == "" {
		identifier = in.Email
	}

	if err := s.checkThrottle(ctx, identifier); err != nil {
		return nil, err
	}

	user, err := s.users.FindByUsernameOrEmail(ctx, in.Username, in.Email)
	if err != nil {
		return nil, err
	}

	if !user.IsPasswordCorrect(in.Password) {
		s.recordFailure(ctx, identifier)
		return nil, apperrors.Unauthorized("invalid user credentials")
	}

	pair, err := s.sessions.Rotate(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	if s.throttle != nil {
		if err := s.throttle.Reset(ctx, identifier); err != nil {
			s.logger.WarnContext(ctx, "failed to reset login throttle",
				slog.String("error", err.Error()),
			)
		}
	}

	public, err := s.users.GetPublicByID(ctx, user.ID)
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("reload logged in user: %w", err))
	}

	s.logger.InfoContext(ctx, "user logged in",
		slog.String("user_id", user.ID),
	)

	return &LoginResult{
		User:         public,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}, nil
}

// Logout ends the user's session. Logging out twice is not an error.
func (s *AccountService) Logout(ctx context.Context, userID string) error {
	if err := s.sessions.Revoke(ctx, userID); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "user logged out",
		slog.String("user_id", userID),
	)
	return nil
}

// Refresh exchanges a valid, current refresh token for a new pair.
func (s *AccountService) Refresh(ctx context.Context, presented string) (_ *domain.TokenPair, err error) {
	ctx, end := tracing.Start(ctx, tracerName, "AccountService.Refresh")
	defer func() { end(err) }()

	presented = strings.TrimSpace(presented)
	if presented == "" {
		return nil, apperrors.Unauthorized("unauthorized request")
	}

	claims, err := s.jwt.VerifyRefresh(presented)
	if err != nil {
		msg := "invalid refresh token"
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			msg = appErr.Message
		}
		return nil, apperrors.Unauthorized(msg)
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.Unauthorized("invalid refresh token")
		}
		return nil, err
	}

	if subtle.ConstantTimeCompare([]byte(user.RefreshTokenHash), []byte(auth.HashToken(presented))) != 1 {
		return nil, apperrors.Unauthorized(msgRefreshReused)
	}

	return s.sessions.RotateFrom(ctx, user, presented)
}

// ChangePassword replaces the password after checking the old one.
func (s *AccountService) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	if oldPassword == "" || newPassword == "" {
		return apperrors.InvalidInput("old and new password are required")
	}
	if err := checkPasswordLength("newPassword", newPassword); err != nil {
		return err
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	if !user.IsPasswordCorrect(oldPassword) {
		return apperrors.InvalidInput("invalid old password")
	}

	if err := s.users.UpdatePassword(ctx, user.ID, newPassword); err != nil {
		return err
	}

	if err := s.events.PublishPasswordChanged(ctx, user.ID); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish user.password_changed event",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "password changed",
		slog.String("user_id", user.ID),
	)
	return nil
}

// --- Profile Operations ---

// GetCurrentUser returns the sanitized record of the authenticated user.
func (s *AccountService) GetCurrentUser(ctx context.Context, userID string) (*domain.User, error) {
	return s.users.GetPublicByID(ctx, userID)
}

// UpdateProfile sets full name and email.
func (s *AccountService) UpdateProfile(ctx context.Context, userID, fullName, email string) (*domain.User, error) {
	fullName = s.sanitize(fullName)
	email = strings.TrimSpace(email)
	if fullName == "" || email == "" {
		return nil, apperrors.InvalidInput("all fields are required")
	}

	user, err := s.users.UpdateProfile(ctx, userID, fullName, email)
	if err != nil {
		return nil, err
	}

	s.publishUpdated(ctx, user)
	return user, nil
}

// UpdateAvatar replaces the avatar and deletes the previous hosted image.
func (s *AccountService) UpdateAvatar(ctx context.Context, userID string, file *media.LocalFile) (*domain.User, error) {
	return s.replaceImage(ctx, userID, file, imageSlot{
		field:   "avatar",
		folder:  media.FolderAvatars,
		current: func(u *domain.User) string { return u.Avatar },
		update:  s.users.UpdateAvatar,
	})
}

// UpdateCoverImage replaces the cover image and deletes the previous hosted
// image.
func (s *AccountService) UpdateCoverImage(ctx context.Context, userID string, file *media.LocalFile) (*domain.User, error) {
	return s.replaceImage(ctx, userID, file, imageSlot{
		field:   "coverImage",
		folder:  media.FolderCovers,
		current: func(u *domain.User) string { return u.CoverImage },
		update:  s.users.UpdateCoverImage,
	})
}

type imageSlot struct {
	field   string
	folder  string
	current func(*domain.User) string
	update  func(ctx context.Context, id, url string) (*domain.User, error)
}

func (s *AccountService) replaceImage(ctx context.Context, userID string, file *media.LocalFile, slot imageSlot) (*domain.User, error) {
	defer media.Discard(file)

	if file == nil {
		return nil, apperrors.Validation(slot.field+" file is missing",
			[]apperrors.FieldError{{Field: slot.field, Message: "is required"}})
	}

	before, err := s.users.GetPublicByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	url, err := s.uploader.Upload(ctx, file, slot.folder)
	if err != nil {
		return nil, apperrors.Upload("error while uploading "+slot.field, err)
	}

	user, err := slot.update(ctx, userID, url)
	if err != nil {
		s.discardHosted(ctx, url, slot.folder)
		return nil, err
	}

	if prev := slot.current(before); prev != "" && prev != url {
		s.discardHosted(ctx, prev, slot.folder)
	}

	s.publishUpdated(ctx, user)
	return user, nil
}

// --- helpers ---

// sanitize strips markup and returns plain text. bluemonday escapes what it
// keeps, so the result is unescaped before storage.
func (s *AccountService) sanitize(v string) string {
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(strings.TrimSpace(v))))
}

// checkPasswordLength rejects passwords bcrypt would refuse. The limit is
// in bytes, so multibyte passwords hit it before 72 characters.
func checkPasswordLength(field, password string) error {
	if len(password) <= auth.MaxPasswordBytes {
		return nil
	}
	return apperrors.Validation("password is too long", []apperrors.FieldError{{
		Field:   field,
		Message: fmt.Sprintf("%s must be at most %d bytes", field, auth.MaxPasswordBytes),
	}})
}

// discardHosted deletes a hosted file. Failures are logged by the uploader
// and otherwise ignored.
func (s *AccountService) discardHosted(ctx context.Context, url, folder string) {
	if url == "" {
		return
	}
	_ = s.uploader.Delete(ctx, url, folder)
}

func (s *AccountService) publishUpdated(ctx context.Context, user *domain.User) {
	if err := s.events.PublishUserUpdated(ctx, user); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish user.updated event",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *AccountService) checkThrottle(ctx context.Context, identifier string) error {
	if s.throttle == nil {
		return nil
	}
	locked, wait, err := s.throttle.Locked(ctx, identifier)
	if err != nil {
		s.logger.WarnContext(ctx, "login throttle unavailable",
			slog.String("error", err.Error()),
		)
		return nil
	}
	if locked {
		return apperrors.TooManyRequests(fmt.Sprintf(
			"too many failed login attempts, try again in %s", wait.Round(time.Second)))
	}
	return nil
}

func (s *AccountService) recordFailure(ctx context.Context, identifier string) {
	if s.throttle == nil {
		return
	}
	if _, err := s.throttle.RecordFailure(ctx, identifier); err != nil {
		s.logger.WarnContext(ctx, "failed to record login failure",
			slog.String("error", err.Error()),
		)
	}
}
