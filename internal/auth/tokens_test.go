package auth_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vitrine/internal/auth"
)

func TestIssueAndValidate(t *testing.T) {
	manager := auth.NewTokenManager("test-secret", time.Hour, "vitrine")

	token, expiresAt, err := manager.Issue(7, "admin@example.com")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	claims, err := manager.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "admin@example.com", claims.Email)

	id, err := claims.ProfileID()
	require.NoError(t, err)
	assert.Equal(t, uint(7), id)
}

func TestValidateRejects(t *testing.T) {
	manager := auth.NewTokenManager("test-secret", time.Hour, "vitrine")

	t.Run("other secret", func(t *testing.T) {
		other := auth.NewTokenManager("other-secret", time.Hour, "vitrine")
		token, _, err := other.Issue(1, "a@example.com")
		require.NoError(t, err)

		_, err = manager.Validate(token)
		assert.ErrorIs(t, err, auth.ErrInvalidToken)
	})

	t.Run("other issuer", func(t *testing.T) {
		other := auth.NewTokenManager("test-secret", time.Hour, "someone-else")
		token, _, err := other.Issue(1, "a@example.com")
		require.NoError(t, err)

		_, err = manager.Validate(token)
		assert.ErrorIs(t, err, auth.ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		past := manager.WithClock(func() time.Time { return time.Now().Add(-2 * time.Hour) })
		token, _, err := past.Issue(1, "a@example.com")
		require.NoError(t, err)

		_, err = manager.Validate(token)
		assert.ErrorIs(t, err, auth.ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := manager.Validate("not-a-token")
		assert.ErrorIs(t, err, auth.ErrInvalidToken)
	})
}

func TestExtractBearer(t *testing.T) {
	tests := []struct {
		header  string
		want    string
		wantErr error
	}{
		{"Bearer abc.def.ghi", "abc.def.ghi", nil},
		{"bearer abc", "abc", nil},
		{"", "", auth.ErrMissingToken},
		{"Basic dXNlcjpwdw==", "", auth.ErrInvalidToken},
		{"Bearer ", "", auth.ErrInvalidToken},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			got, err := auth.ExtractBearer(tt.header)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
