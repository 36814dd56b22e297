package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/utafrali/VideoTube/internal/auth"
	"github.com/utafrali/VideoTube/internal/domain"
	"github.com/utafrali/VideoTube/internal/media"
	"github.com/utafrali/VideoTube/internal/service"
	apperrors "github.com/utafrali/VideoTube/pkg/errors"
	"github.com/utafrali/VideoTube/pkg/health"
	"github.com/utafrali/VideoTube/pkg/middleware"
)

// ============================================================================
// In-memory user store
// ============================================================================

type memUsers struct {
	mu     sync.Mutex
	hasher *auth.PasswordHasher
	byID   map[string]*domain.User
}

func newMemUsers() *memUsers {
	return &memUsers{
		hasher: auth.NewPasswordHasher(bcrypt.MinCost),
		byID:   make(map[string]*domain.User),
	}
}

func strip(u *domain.User) *domain.User {
	c := *u
	c.PasswordHash, c.RefreshTokenHash = "", ""
	return &c
}

var errNoUser = apperrors.NotFound("user does not exist")

func (m *memUsers) FindByUsernameOrEmail(_ context.Context, username, email string) (*domain.User, error) {
	username, email = domain.NormalizeHandle(username), domain.NormalizeHandle(email)
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if (username != "" && u.Username == username) || (email != "" && u.Email == email) {
			c := *u
			return &c, nil
		}
	}
	return nil, errNoUser
}

func (m *memUsers) GetByID(_ context.Context, id string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return nil, errNoUser
	}
	c := *u
	return &c, nil
}

func (m *memUsers) GetPublicByID(ctx context.Context, id string) (*domain.User, error) {
	u, err := m.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return strip(u), nil
}

func (m *memUsers) Create(_ context.Context, nu *domain.NewUser) (*domain.User, error) {
	nu.Normalize()
	hash, err := m.hasher.Hash(nu.Password)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	u := &domain.User{
		ID:           uuid.NewString(),
		Username:     nu.Username,
		Email:        nu.Email,
		FullName:     nu.FullName,
		Avatar:       nu.Avatar,
		CoverImage:   nu.CoverImage,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	m.byID[u.ID] = u
	return strip(u), nil
}

func (m *memUsers) mutate(id string, fn func(*domain.User)) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return nil, errNoUser
	}
	fn(u)
	return strip(u), nil
}

func (m *memUsers) UpdateProfile(_ context.Context, id, fullName, email string) (*domain.User, error) {
	return m.mutate(id, func(u *domain.User) { u.FullName, u.Email = fullName, domain.NormalizeHandle(email) })
}

func (m *memUsers) UpdateAvatar(_ context.Context, id, url string) (*domain.User, error) {
	return m.mutate(id, func(u *domain.User) { u.Avatar = url })
}

func (m *memUsers) UpdateCoverImage(_ context.Context, id, url string) (*domain.User, error) {
	return m.mutate(id, func(u *domain.User) { u.CoverImage = url })
}

func (m *memUsers) UpdatePassword(_ context.Context, id, plain string) error {
	hash, err := m.hasher.Hash(plain)
	if err != nil {
		return err
	}
	_, err = m.mutate(id, func(u *domain.User) { u.PasswordHash = hash })
	return err
}

func (m *memUsers) SetRefreshToken(_ context.Context, id, digest string) error {
	_, err := m.mutate(id, func(u *domain.User) { u.RefreshTokenHash = digest })
	return err
}

func (m *memUsers) SwapRefreshToken(_ context.Context, id, oldDigest, newDigest string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok || oldDigest == "" || u.RefreshTokenHash != oldDigest {
		return false, nil
	}
	u.RefreshTokenHash = newDigest
	return true, nil
}

func (m *memUsers) ClearRefreshToken(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.byID[id]; ok {
		u.RefreshTokenHash = ""
	}
	return nil
}

// ============================================================================
// Mock channel repository
// ============================================================================

type mockChannelRepo struct {
	mock.Mock
}

func (m *mockChannelRepo) GetChannelProfile(ctx context.Context, username, viewerID string) (*domain.ChannelProfile, error) {
	args := m.Called(ctx, username, viewerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ChannelProfile), args.Error(1)
}

func (m *mockChannelRepo) GetWatchHistory(ctx context.Context, userID string) ([]domain.WatchedVideo, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.WatchedVideo), args.Error(1)
}

// ============================================================================
// Test Helpers
// ============================================================================

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0x02}, 64)...)

type testServer struct {
	handler  http.Handler
	users    *memUsers
	channels *mockChannelRepo
	gateway  *media.MemoryGateway
	tempDir  string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))

	jwt, err := auth.NewJWTManager(auth.JWTConfig{
		AccessSecret:  "access-secret-for-handler-tests-0123",
		RefreshSecret: "refresh-secret-for-handler-tests-456",
		AccessExpiry:  15 * time.Minute,
		RefreshExpiry: 240 * time.Hour,
	})
	require.NoError(t, err)

	users := newMemUsers()
	channels := &mockChannelRepo{}
	gw := media.NewMemoryGateway("http://media.test")

	dir := t.TempDir()
	temp, err := media.NewTempStore(dir, 1<<16)
	require.NoError(t, err)

	sessions := service.NewSessionService(users, jwt, logger)
	accounts := service.NewAccountService(users, sessions, jwt, media.NewUploader(gw, logger), nil, nil, logger)
	uh := NewUserHandler(accounts, service.NewChannelService(channels), temp, CookieConfig{
		Secure:        true,
		AccessMaxAge:  15 * time.Minute,
		RefreshMaxAge: 240 * time.Hour,
	}, 1<<16, logger)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	router := NewRouter(ctx, RouterConfig{
		CORS:      middleware.DefaultCORSConfig(),
		AuthLimit: middleware.RateLimitConfig{RPS: 1000, Burst: 1000},
	}, uh, NewIdentityResolver(jwt, users), health.NewHandler(), logger)

	return &testServer{handler: router, users: users, channels: channels, gateway: gw, tempDir: dir}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

type formFile struct {
	field, name string
	content     []byte
}

func multipartRequest(t *testing.T, method, path string, fields map[string]string, files ...formFile) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for _, f := range files {
		part, err := mw.CreateFormFile(f.field, f.name)
		require.NoError(t, err)
		_, err = part.Write(f.content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func jsonRequest(t *testing.T, method, path string, v any) *http.Request {
	t.Helper()
	var body io.Reader = http.NoBody
	if v != nil {
		b, err := json.Marshal(v)
		require.NoError(t, err)
		body = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func withBearer(req *http.Request, token string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

type envelope struct {
	Status     int             `json:"status"`
	StatusCode int             `json:"statusCode"`
	Data       json.RawMessage `json:"data"`
	Message    string          `json:"message"`
	Success    bool            `json:"success"`
	Errors     []struct {
		Field   string `json:"field"`
		Message string `json:"message"`
	} `json:"errors"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

func cookieByName(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// registerUser registers through the API and fails the test on error.
func (s *testServer) registerUser(t *testing.T, username, email, password string) map[string]any {
	t.Helper()
	rec := s.do(multipartRequest(t, http.MethodPost, "/api/v1/users/register", map[string]string{
		"fullName": "Test " + username,
		"email":    email,
		"username": username,
		"password": password,
	}, formFile{"avatar", "me.png", pngBytes}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var user map[string]any
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &user))
	return user
}

type tokens struct {
	access, refresh string
}

func (s *testServer) login(t *testing.T, username, password string) tokens {
	t.Helper()
	rec := s.do(jsonRequest(t, http.MethodPost, "/api/v1/users/login", map[string]string{
		"username": username,
		"password": password,
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var data struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
	}
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &data))
	require.NotEmpty(t, data.AccessToken)
	return tokens{access: data.AccessToken, refresh: data.RefreshToken}
}

func tempFiles(t *testing.T, dir string) []string {
	t.Helper()
	var names []string
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "upload-") {
			names = append(names, e.Name())
		}
	}
	return names
}
