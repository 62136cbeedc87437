package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timejump-backend/internal/config"
	"github.com/timejump-backend/internal/domain"
)

func newTestPlayerService(t *testing.T) (*PlayerService, *memStore) {
	t.Helper()
	store := newMemStore()
	svc := NewPlayerService(store, newMemCache(), &config.DefaultConfig().Game, testLogger())
	return svc, store
}

func TestRegister_CreatesAccountWithDefaults(t *testing.T) {
	svc, _ := newTestPlayerService(t)

	resp, err := svc.Register(context.Background(), domain.RegisterRequest{
		Name:     "jumper",
		Email:    "Jumper@Example.com",
		Password: "supersecret",
	})
	require.NoError(t, err)
	require.NotNil(t, resp.Player)
	assert.NotEmpty(t, resp.Player.ID)
	assert.NotEmpty(t, resp.Token)
	assert.NotEmpty(t, resp.Player.Avatar)
	assert.Equal(t, "jumper@example.com", resp.Player.Email)
	assert.Equal(t, 1, resp.Player.DailyRewardDay)
	assert.Zero(t, resp.Player.BestScore)
	assert.Zero(t, resp.Player.Crystals)
	assert.Empty(t, resp.Player.Achievements)
}

func TestRegister_Validation(t *testing.T) {
	svc, _ := newTestPlayerService(t)
	ctx := context.Background()

	cases := []struct {
		name  string
		req   domain.RegisterRequest
		field string
	}{
		{"short name", domain.RegisterRequest{Name: "ab", Email: "a@b.co", Password: "supersecret"}, "name"},
		{"long name", domain.RegisterRequest{Name: "abcdefghijklmnopqrstu", Email: "a@b.co", Password: "supersecret"}, "name"},
		{"bad email", domain.RegisterRequest{Name: "jumper", Email: "not-an-email", Password: "supersecret"}, "email"},
		{"short password", domain.RegisterRequest{Name: "jumper", Email: "a@b.co", Password: "short"}, "password"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Register(ctx, tc.req)
			var verr *domain.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.field, verr.Field)
		})
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	svc, _ := newTestPlayerService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, domain.RegisterRequest{Name: "first", Email: "dup@example.com", Password: "supersecret"})
	require.NoError(t, err)

	_, err = svc.Register(ctx, domain.RegisterRequest{Name: "second", Email: "DUP@example.com", Password: "supersecret"})
	assert.ErrorIs(t, err, domain.ErrEmailTaken)
}

func TestLogin_RoundTrip(t *testing.T) {
	svc, _ := newTestPlayerService(t)
	ctx := context.Background()

	reg, err := svc.Register(ctx, domain.RegisterRequest{Name: "jumper", Email: "login@example.com", Password: "supersecret"})
	require.NoError(t, err)

	resp, err := svc.Login(ctx, domain.LoginRequest{Email: "login@example.com", Password: "supersecret"})
	require.NoError(t, err)
	assert.Equal(t, reg.Player.ID, resp.Player.ID)
	assert.NotEmpty(t, resp.Token)
}

func TestLogin_WrongPasswordAndUnknownEmail(t *testing.T) {
	svc, _ := newTestPlayerService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, domain.RegisterRequest{Name: "jumper", Email: "login@example.com", Password: "supersecret"})
	require.NoError(t, err)

	_, err = svc.Login(ctx, domain.LoginRequest{Email: "login@example.com", Password: "wrongwrong"})
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	// Unknown email maps to the same error: no account enumeration.
	_, err = svc.Login(ctx, domain.LoginRequest{Email: "nobody@example.com", Password: "supersecret"})
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestUpdateProfile_DisplayFieldsOnly(t *testing.T) {
	svc, store := newTestPlayerService(t)
	ctx := context.Background()

	p := seedPlayer(store, "p1")
	p.BestScore = 4200

	updated, err := svc.UpdateProfile(ctx, "p1", domain.UpdateProfileRequest{Name: "renamed", Avatar: "🦖"})
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.Name)
	assert.Equal(t, "🦖", updated.Avatar)
	assert.Equal(t, int64(4200), updated.BestScore)

	_, err = svc.UpdateProfile(ctx, "p1", domain.UpdateProfileRequest{Name: "x"})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestHistory_ClampsToConfiguredLimit(t *testing.T) {
	svc, store := newTestPlayerService(t)
	ctx := context.Background()
	seedPlayer(store, "p1")

	for i := 0; i < 15; i++ {
		store.sessions["p1"] = append([]domain.GameSession{{
			PlayerID: "p1",
			Score:    int64(i * 100),
			PlayedAt: time.Now(),
		}}, store.sessions["p1"]...)
	}

	sessions, err := svc.History(ctx, "p1", 0)
	require.NoError(t, err)
	assert.Len(t, sessions, 10)

	sessions, err = svc.History(ctx, "p1", 100)
	require.NoError(t, err)
	assert.Len(t, sessions, 10)

	sessions, err = svc.History(ctx, "p1", 3)
	require.NoError(t, err)
	assert.Len(t, sessions, 3)
}

func TestHistory_UnknownPlayer(t *testing.T) {
	svc, _ := newTestPlayerService(t)
	_, err := svc.History(context.Background(), "ghost", 5)
	assert.ErrorIs(t, err, domain.ErrPlayerNotFound)
}
