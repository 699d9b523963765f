package auth

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nafsiapp/nafsi-backend/internal/users"
	pkgauth "github.com/nafsiapp/nafsi-backend/pkg/auth"
	"github.com/nafsiapp/nafsi-backend/pkg/auth/session"
	"github.com/nafsiapp/nafsi-backend/pkg/config"
	"github.com/nafsiapp/nafsi-backend/pkg/db/models"
	"github.com/nafsiapp/nafsi-backend/pkg/enums"
	pkgerrors "github.com/nafsiapp/nafsi-backend/pkg/errors"
)

type fakeUsers struct {
	byID       map[uuid.UUID]*models.User
	byUsername map[string]*models.User
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{
		byID:       make(map[uuid.UUID]*models.User),
		byUsername: make(map[string]*models.User),
	}
}

func (f *fakeUsers) WithTx(tx *gorm.DB) users.Repository { return f }

func (f *fakeUsers) Create(ctx context.Context, user *models.User) error {
	if _, exists := f.byUsername[user.Username]; exists {
		return gorm.ErrDuplicatedKey
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	copied := *user
	f.byID[user.ID] = &copied
	f.byUsername[user.Username] = &copied
	return nil
}

func (f *fakeUsers) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, ok := f.byID[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return user, nil
}

func (f *fakeUsers) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	user, ok := f.byUsername[username]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return user, nil
}

func (f *fakeUsers) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.User, error) {
	return nil, nil
}

func (f *fakeUsers) UpdateFCMToken(ctx context.Context, id uuid.UUID, token *string) error {
	user, ok := f.byID[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	user.FCMToken = token
	return nil
}

type fakeSessions struct {
	tokens map[string]string
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{tokens: make(map[string]string)}
}

func (f *fakeSessions) Generate(ctx context.Context, accessID string) (string, error) {
	token := fmt.Sprintf("refresh-%s", uuid.NewString())
	f.tokens[accessID] = token
	return token, nil
}

func (f *fakeSessions) Rotate(ctx context.Context, oldAccessID, provided string) (string, string, error) {
	stored, ok := f.tokens[oldAccessID]
	if !ok || stored != provided {
		return "", "", session.ErrInvalidRefreshToken
	}
	delete(f.tokens, oldAccessID)
	newAccessID := session.NewAccessID()
	token, _ := f.Generate(ctx, newAccessID)
	return newAccessID, token, nil
}

func (f *fakeSessions) Revoke(ctx context.Context, accessID string) error {
	delete(f.tokens, accessID)
	return nil
}

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:                 "test-secret",
		Issuer:                 "nafsi-test",
		ExpirationMinutes:      15,
		RefreshTokenTTLMinutes: 60,
	}
}

func testPasswordConfig() config.PasswordConfig {
	// Argon kept cheap so the suite stays fast.
	return config.PasswordConfig{
		ArgonMemoryKB:    8192,
		ArgonTime:        1,
		ArgonParallelism: 1,
		ArgonSaltLen:     16,
		ArgonKeyLen:      32,
	}
}

func newTestService(t *testing.T) (Service, *fakeUsers, *fakeSessions) {
	t.Helper()
	repo := newFakeUsers()
	sessions := newFakeSessions()
	svc, err := NewService(repo, sessions, testJWTConfig(), testPasswordConfig(), nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, repo, sessions
}

func registerInput() RegisterInput {
	return RegisterInput{
		Username: "Amira",
		Password: "correct horse battery",
		FullName: "Amira H",
		Role:     enums.UserRoleParent,
	}
}

func TestRegisterAndLogin(t *testing.T) {
	svc, _, _ := newTestService(t)

	user, err := svc.Register(context.Background(), registerInput())
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if user.Username != "amira" {
		t.Fatalf("username = %q, want lowercased", user.Username)
	}
	if user.PasswordHash == "" || user.PasswordHash == "correct horse battery" {
		t.Fatalf("password stored unhashed")
	}

	pair, err := svc.Login(context.Background(), LoginInput{Username: "AMIRA", Password: "correct horse battery"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatalf("empty token pair: %+v", pair)
	}

	claims, err := pkgauth.ParseAccessToken(testJWTConfig(), pair.AccessToken)
	if err != nil {
		t.Fatalf("ParseAccessToken: %v", err)
	}
	if claims.UserID != user.ID {
		t.Fatalf("claims user = %s, want %s", claims.UserID, user.ID)
	}
	if claims.Role != enums.UserRoleParent {
		t.Fatalf("claims role = %s", claims.Role)
	}
}

func TestRegisterRejectsDuplicateUsername(t *testing.T) {
	svc, _, _ := newTestService(t)

	if _, err := svc.Register(context.Background(), registerInput()); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	_, err := svc.Register(context.Background(), registerInput())
	if !pkgerrors.Is(err, pkgerrors.CodeConflict) {
		t.Fatalf("err = %v, want conflict", err)
	}
}

func TestRegisterRejectsAdminRole(t *testing.T) {
	svc, _, _ := newTestService(t)

	input := registerInput()
	input.Role = enums.UserRoleAdmin
	_, err := svc.Register(context.Background(), input)
	if !pkgerrors.Is(err, pkgerrors.CodeForbidden) {
		t.Fatalf("err = %v, want forbidden", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc, _, _ := newTestService(t)

	cases := []struct {
		name   string
		mutate func(*RegisterInput)
	}{
		{"short username", func(in *RegisterInput) { in.Username = "ab" }},
		{"short password", func(in *RegisterInput) { in.Password = "short" }},
		{"missing name", func(in *RegisterInput) { in.FullName = "  " }},
		{"bad role", func(in *RegisterInput) { in.Role = "wizard" }},
	}
	for _, tc := range cases {
		input := registerInput()
		tc.mutate(&input)
		if _, err := svc.Register(context.Background(), input); !pkgerrors.Is(err, pkgerrors.CodeValidation) {
			t.Fatalf("%s: err = %v, want validation", tc.name, err)
		}
	}
}

func TestLoginWrongPassword(t *testing.T) {
	svc, _, _ := newTestService(t)
	if _, err := svc.Register(context.Background(), registerInput()); err != nil {
		t.Fatalf("Register: %v", err)
	}

	_, err := svc.Login(context.Background(), LoginInput{Username: "amira", Password: "wrong password"})
	if !pkgerrors.Is(err, pkgerrors.CodeUnauthenticated) {
		t.Fatalf("err = %v, want unauthenticated", err)
	}
}

func TestLoginUnknownUser(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Login(context.Background(), LoginInput{Username: "ghost", Password: "whatever"})
	if !pkgerrors.Is(err, pkgerrors.CodeUnauthenticated) {
		t.Fatalf("err = %v, want unauthenticated", err)
	}
}

func TestRefreshRotatesSession(t *testing.T) {
	svc, _, sessions := newTestService(t)
	if _, err := svc.Register(context.Background(), registerInput()); err != nil {
		t.Fatalf("Register: %v", err)
	}
	pair, err := svc.Login(context.Background(), LoginInput{Username: "amira", Password: "correct horse battery"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	refreshed, err := svc.Refresh(context.Background(), RefreshInput{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if refreshed.RefreshToken == pair.RefreshToken {
		t.Fatalf("refresh token not rotated")
	}

	// The old pair is burned after rotation.
	_, err = svc.Refresh(context.Background(), RefreshInput{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
	if !pkgerrors.Is(err, pkgerrors.CodeUnauthenticated) {
		t.Fatalf("replayed refresh err = %v, want unauthenticated", err)
	}
	if len(sessions.tokens) != 1 {
		t.Fatalf("sessions = %d, want exactly the rotated one", len(sessions.tokens))
	}
}

func TestLogoutRevokesSession(t *testing.T) {
	svc, _, sessions := newTestService(t)
	if _, err := svc.Register(context.Background(), registerInput()); err != nil {
		t.Fatalf("Register: %v", err)
	}
	pair, err := svc.Login(context.Background(), LoginInput{Username: "amira", Password: "correct horse battery"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	claims, err := pkgauth.ParseAccessToken(testJWTConfig(), pair.AccessToken)
	if err != nil {
		t.Fatalf("ParseAccessToken: %v", err)
	}
	if err := svc.Logout(context.Background(), claims.ID); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if len(sessions.tokens) != 0 {
		t.Fatalf("sessions left after logout: %d", len(sessions.tokens))
	}

	_, err = svc.Refresh(context.Background(), RefreshInput{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
	if !pkgerrors.Is(err, pkgerrors.CodeUnauthenticated) {
		t.Fatalf("refresh after logout err = %v, want unauthenticated", err)
	}
}
