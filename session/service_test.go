package session_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"electrafusion-backend/models"
	"electrafusion-backend/session"
	"electrafusion-backend/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T) *session.Service {
	return session.NewService(testutil.NewDB(t), time.Hour)
}

func TestRegisterAndCurrentSession(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	user, token, err := svc.Register(ctx, "a@x.com", "p")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, "a@x.com", user.Email)
	assert.False(t, user.Role.IsAdmin)
	assert.True(t, user.Role.IsVoter)

	current, err := svc.CurrentSession(ctx, token)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, user.ID, current.ID)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	_, _, err := svc.Register(ctx, "a@x.com", "p")
	require.NoError(t, err)

	_, _, err = svc.Register(ctx, "a@x.com", "p2")
	assert.ErrorIs(t, err, models.ErrUserAlreadyExists)

	// comparison is case-sensitive
	_, _, err = svc.Register(ctx, "A@x.com", "p3")
	assert.NoError(t, err)
}

func TestRegisterPasswordTooLong(t *testing.T) {
	svc := newService(t)

	_, _, err := svc.Register(context.Background(), "a@x.com", strings.Repeat("x", 73))
	assert.ErrorIs(t, err, models.ErrPasswordTooLong)
}

func TestAuthenticate(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	registered, _, err := svc.Register(ctx, "voter@x.com", "secret")
	require.NoError(t, err)

	tests := []struct {
		name    string
		email   string
		secret  string
		wantErr error
	}{
		{"exact match", "voter@x.com", "secret", nil},
		{"wrong secret", "voter@x.com", "Secret", models.ErrInvalidCredentials},
		{"email case differs", "Voter@x.com", "secret", models.ErrInvalidCredentials},
		{"unknown user", "nobody@x.com", "secret", models.ErrInvalidCredentials},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			user, token, err := svc.Authenticate(ctx, tc.email, tc.secret)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				assert.Nil(t, user)
				assert.Empty(t, token)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, registered.ID, user.ID)
			assert.NotEmpty(t, token)
		})
	}
}

func TestEndSessionIsIdempotent(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	_, token, err := svc.Register(ctx, "a@x.com", "p")
	require.NoError(t, err)

	require.NoError(t, svc.EndSession(ctx, token))
	require.NoError(t, svc.EndSession(ctx, token))
	require.NoError(t, svc.EndSession(ctx, ""))

	current, err := svc.CurrentSession(ctx, token)
	require.NoError(t, err)
	assert.Nil(t, current)
}

func TestCurrentSessionUnknownAndExpired(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()

	short := session.NewService(db, -time.Minute)
	_, token, err := short.Register(ctx, "a@x.com", "p")
	require.NoError(t, err)

	current, err := short.CurrentSession(ctx, token)
	require.NoError(t, err)
	assert.Nil(t, current, "expired session must not resolve")

	current, err = short.CurrentSession(ctx, "not-a-token")
	require.NoError(t, err)
	assert.Nil(t, current)

	purged, err := short.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)
}
