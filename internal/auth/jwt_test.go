package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var secret = []byte("test-secret")

func TestGenerateAndVerifyToken(t *testing.T) {
	token, err := GenerateToken("admin", secret, time.Hour)
	require.NoError(t, err)

	username, err := VerifyToken(token, secret)
	require.NoError(t, err)
	assert.Equal(t, "admin", username)
}

func TestVerifyToken_WrongSecret(t *testing.T) {
	token, err := GenerateToken("admin", secret, time.Hour)
	require.NoError(t, err)

	_, err = VerifyToken(token, []byte("other-secret"))
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyToken_Expired(t *testing.T) {
	token, err := GenerateToken("admin", secret, -time.Minute)
	require.NoError(t, err)

	_, err = VerifyToken(token, secret)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyToken_Garbage(t *testing.T) {
	_, err := VerifyToken("not.a.token", secret)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestCheckPassword(t *testing.T) {
	hash, err := HashPassword("hunter2")
	require.NoError(t, err)

	assert.NoError(t, CheckPassword(hash, "hunter2"))
	assert.ErrorIs(t, CheckPassword(hash, "hunter3"), ErrBadCredentials)
}
