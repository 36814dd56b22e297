package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/utafrali/VideoTube/internal/auth"
	"github.com/utafrali/VideoTube/internal/domain"
	"github.com/utafrali/VideoTube/internal/media"
	apperrors "github.com/utafrali/VideoTube/pkg/errors"
)

// --- Stateful in-memory user repository ---

type fakeUserRepo struct {
	mu        sync.Mutex
	hasher    *auth.PasswordHasher
	users     map[string]*domain.User
	createErr error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{
		hasher: auth.NewPasswordHasher(bcrypt.MinCost),
		users:  make(map[string]*domain.User),
	}
}

func public(u *domain.User) *domain.User {
	c := *u
	c.PasswordHash = ""
	c.RefreshTokenHash = ""
	return &c
}

func (r *fakeUserRepo) FindByUsernameOrEmail(_ context.Context, username, email string) (*domain.User, error) {
	username, email = domain.NormalizeHandle(username), domain.NormalizeHandle(email)
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if (username != "" && u.Username == username) || (email != "" && u.Email == email) {
			c := *u
			return &c, nil
		}
	}
	return nil, apperrors.NotFound("user does not exist")
}

func (r *fakeUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, apperrors.NotFound("user does not exist")
	}
	c := *u
	return &c, nil
}

func (r *fakeUserRepo) GetPublicByID(ctx context.Context, id string) (*domain.User, error) {
	u, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return public(u), nil
}

func (r *fakeUserRepo) Create(_ context.Context, nu *domain.NewUser) (*domain.User, error) {
	if r.createErr != nil {
		return nil, r.createErr
	}
	nu.Normalize()
	hash, err := r.hasher.Hash(nu.Password)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == nu.Username || u.Email == nu.Email {
			return nil, apperrors.Conflict("user with email or username already exists")
		}
	}
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
	r.users[u.ID] = u
	return public(u), nil
}

func (r *fakeUserRepo) update(id string, fn func(u *domain.User) error) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, apperrors.NotFound("user does not exist")
	}
	if err := fn(u); err != nil {
		return nil, err
	}
	u.UpdatedAt = time.Now().UTC()
	return public(u), nil
}

func (r *fakeUserRepo) UpdateProfile(_ context.Context, id, fullName, email string) (*domain.User, error) {
	email = domain.NormalizeHandle(email)
	return r.update(id, func(u *domain.User) error {
		for _, other := range r.users {
			if other.ID != id && other.Email == email {
				return apperrors.Conflict("email is already in use")
			}
		}
		u.FullName, u.Email = fullName, email
		return nil
	})
}

func (r *fakeUserRepo) UpdateAvatar(_ context.Context, id, url string) (*domain.User, error) {
	return r.update(id, func(u *domain.User) error { u.Avatar = url; return nil })
}

func (r *fakeUserRepo) UpdateCoverImage(_ context.Context, id, url string) (*domain.User, error) {
	return r.update(id, func(u *domain.User) error { u.CoverImage = url; return nil })
}

func (r *fakeUserRepo) UpdatePassword(_ context.Context, id, plain string) error {
	hash, err := r.hasher.Hash(plain)
	if err != nil {
		return err
	}
	_, err = r.update(id, func(u *domain.User) error { u.PasswordHash = hash; return nil })
	return err
}

func (r *fakeUserRepo) SetRefreshToken(_ context.Context, id, digest string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return apperrors.NotFound("user does not exist")
	}
	u.RefreshTokenHash = digest
	return nil
}

func (r *fakeUserRepo) SwapRefreshToken(_ context.Context, id, oldDigest, newDigest string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok || oldDigest == "" || u.RefreshTokenHash != oldDigest {
		return false, nil
	}
	u.RefreshTokenHash = newDigest
	return true, nil
}

func (r *fakeUserRepo) ClearRefreshToken(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		u.RefreshTokenHash = ""
	}
	return nil
}

func (r *fakeUserRepo) stored(t *testing.T, username string) *domain.User {
	t.Helper()
	u, err := r.FindByUsernameOrEmail(context.Background(), username, "")
	require.NoError(t, err)
	return u
}

func (r *fakeUserRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users)
}

// --- In-memory throttle ---

type fakeThrottle struct {
	mu       sync.Mutex
	max      int64
	failures map[string]int64
}

func newFakeThrottle(limit int64) *fakeThrottle {
	return &fakeThrottle{max: limit, failures: make(map[string]int64)}
}

func (f *fakeThrottle) Locked(_ context.Context, id string) (bool, time.Duration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures[domain.NormalizeHandle(id)] >= f.max {
		return true, 90 * time.Second, nil
	}
	return false, 0, nil
}

func (f *fakeThrottle) RecordFailure(_ context.Context, id string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[domain.NormalizeHandle(id)]++
	return f.failures[domain.NormalizeHandle(id)], nil
}

func (f *fakeThrottle) Reset(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.failures, domain.NormalizeHandle(id))
	return nil
}

// --- Media gateway with failure injection ---

type testGateway struct {
	*media.MemoryGateway
	mu         sync.Mutex
	failUpload map[string]error
	failDelete error
	deleted    []string
}

func newTestGateway() *testGateway {
	return &testGateway{
		MemoryGateway: media.NewMemoryGateway("http://media.test"),
		failUpload:    make(map[string]error),
	}
}

func (g *testGateway) Upload(ctx context.Context, f *media.LocalFile, folder string) (string, error) {
	if err := g.failUpload[folder]; err != nil {
		return "", err
	}
	return g.MemoryGateway.Upload(ctx, f, folder)
}

func (g *testGateway) Delete(ctx context.Context, url, folder string) error {
	g.mu.Lock()
	g.deleted = append(g.deleted, url)
	g.mu.Unlock()
	if g.failDelete != nil {
		return g.failDelete
	}
	return g.MemoryGateway.Delete(ctx, url, folder)
}

// --- Event recorder ---

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
	err    error
}

func (p *recordingPublisher) record(kind string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, kind)
	return p.err
}

func (p *recordingPublisher) PublishUserRegistered(context.Context, *domain.User) error {
	return p.record("user.registered")
}

func (p *recordingPublisher) PublishUserUpdated(context.Context, *domain.User) error {
	return p.record("user.updated")
}

func (p *recordingPublisher) PublishPasswordChanged(context.Context, string) error {
	return p.record("user.password_changed")
}

// --- Fixture ---

var errHostDown = errors.New("media host down")

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestJWTManager(t *testing.T) *auth.JWTManager {
	t.Helper()
	m, err := auth.NewJWTManager(auth.JWTConfig{
		AccessSecret:  "access-secret-for-tests-0123456789",
		RefreshSecret: "refresh-secret-for-tests-987654321",
		AccessExpiry:  15 * time.Minute,
		RefreshExpiry: 240 * time.Hour,
	})
	require.NoError(t, err)
	return m
}

type accountFixture struct {
	svc      *AccountService
	users    *fakeUserRepo
	gateway  *testGateway
	throttle *fakeThrottle
	events   *recordingPublisher
	jwt      *auth.JWTManager
}

func newAccountFixture(t *testing.T) *accountFixture {
	t.Helper()
	logger := newTestLogger()
	users := newFakeUserRepo()
	jwt := newTestJWTManager(t)
	gw := newTestGateway()
	throttle := newFakeThrottle(3)
	events := &recordingPublisher{}

	sessions := NewSessionService(users, jwt, logger)
	svc := NewAccountService(users, sessions, jwt, media.NewUploader(gw, logger), throttle, events, logger)

	return &accountFixture{
		svc:      svc,
		users:    users,
		gateway:  gw,
		throttle: throttle,
		events:   events,
		jwt:      jwt,
	}
}

// stage writes a small PNG into a temp dir the way the HTTP layer would.
func stage(t *testing.T, name string) *media.LocalFile {
	t.Helper()
	p := filepath.Join(t.TempDir(), "upload-"+name)
	require.NoError(t, os.WriteFile(p, []byte("\x89PNG\r\n\x1a\nfake"), 0o600))
	return &media.LocalFile{Path: p, Filename: name, ContentType: "image/png", Size: 12}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (f *accountFixture) register(t *testing.T, username, email, password string) *domain.User {
	t.Helper()
	u, err := f.svc.Register(context.Background(), RegisterInput{
		FullName: "Test " + username,
		Email:    email,
		Username: username,
		Password: password,
		Avatar:   stage(t, username+".png"),
	})
	require.NoError(t, err)
	return u
}
