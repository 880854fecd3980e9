//go:build !integration

package api

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenManager(t *testing.T) {
	m := NewTokenManager("secret", time.Minute, time.Hour)

	t.Run("should round-trip the device claim", func(t *testing.T) {
		pair, err := m.Issue("u1", "dev-A", false)
		require.NoError(t, err)
		assert.Equal(t, "Bearer", pair.TokenType)
		assert.EqualValues(t, 60, pair.ExpiresIn)

		c, err := m.Parse(pair.AccessToken, AccessToken)
		require.NoError(t, err)
		assert.Equal(t, "u1", c.Subject)
		assert.Equal(t, "dev-A", c.DeviceID)
		assert.False(t, c.Staff)
	})

	t.Run("should reject a token of the wrong kind", func(t *testing.T) {
		pair, err := m.Issue("u1", "dev-A", false)
		require.NoError(t, err)
		_, err = m.Parse(pair.RefreshToken, AccessToken)
		assert.ErrorIs(t, err, errInvalidToken)
	})

	t.Run("should reject a token signed with another secret", func(t *testing.T) {
		other := NewTokenManager("other", time.Minute, time.Hour)
		pair, err := other.Issue("u1", "dev-A", false)
		require.NoError(t, err)
		_, err = m.Parse(pair.AccessToken, AccessToken)
		assert.Error(t, err)
	})

	t.Run("should reject an expired token", func(t *testing.T) {
		start := time.Now()
		mm := NewTokenManager("secret", time.Minute, time.Hour)
		mm.now = func() time.Time { return start }
		pair, err := mm.Issue("u1", "dev-A", false)
		require.NoError(t, err)

		mm.now = func() time.Time { return start.Add(2 * time.Minute) }
		_, err = mm.Parse(pair.AccessToken, AccessToken)
		assert.Error(t, err)
	})
}

func TestBearerToken(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	assert.Empty(t, bearerToken(r))

	r.Header.Set("Authorization", "bearer abc.def")
	assert.Equal(t, "abc.def", bearerToken(r))

	r.Header.Set("Authorization", "Basic xyz")
	assert.Empty(t, bearerToken(r))
}
