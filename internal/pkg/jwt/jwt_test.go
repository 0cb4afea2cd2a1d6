package jwt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	token, err := GenerateAccessToken(12, "Ada", "STAFF", "secret", 5)
	require.NoError(t, err)

	claims, err := ValidateAccessToken(token, "secret")
	require.NoError(t, err)
	assert.Equal(t, uint(12), claims.MemberID)
	assert.Equal(t, "STAFF", claims.Role)
	assert.Equal(t, "12", claims.Subject)
}

func TestAccessTokenRejections(t *testing.T) {
	token, err := GenerateAccessToken(1, "Ada", "MEMBER", "secret", 5)
	require.NoError(t, err)

	_, err = ValidateAccessToken(token, "other")
	assert.ErrorIs(t, err, ErrTokenInvalid)

	expired, err := GenerateAccessToken(1, "Ada", "MEMBER", "secret", -1)
	require.NoError(t, err)
	_, err = ValidateAccessToken(expired, "secret")
	assert.ErrorIs(t, err, ErrTokenExpired)

	_, err = ValidateAccessToken("not-a-token", "secret")
	assert.ErrorIs(t, err, ErrTokenInvalid)
}
