package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/cutreview-api/internal/models"
	appErrors "github.com/noah-isme/cutreview-api/pkg/errors"
)

func TestAuthServiceTokenRoundTrip(t *testing.T) {
	svc := NewAuthService(AuthConfig{AccessTokenSecret: "secret", Issuer: "cutreview", Audience: []string{"review"}})

	token, expiresAt, err := svc.GenerateToken("user-1", "ed@example.com", "Ed Editor")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)

	actor := models.ActorFromClaims(claims)
	assert.True(t, actor.Authenticated)
	assert.Equal(t, "Ed Editor", actor.Name)
}

func TestAuthServiceRejectsBadTokens(t *testing.T) {
	svc := NewAuthService(AuthConfig{AccessTokenSecret: "secret", Issuer: "cutreview"})

	other := NewAuthService(AuthConfig{AccessTokenSecret: "other", Issuer: "cutreview"})
	forged, _, err := other.GenerateToken("user-1", "", "")
	require.NoError(t, err)
	_, err = svc.ValidateToken(forged)
	require.ErrorIs(t, err, appErrors.ErrUnauthorized)

	foreign := NewAuthService(AuthConfig{AccessTokenSecret: "secret", Issuer: "someone-else"})
	token, _, err := foreign.GenerateToken("user-1", "", "")
	require.NoError(t, err)
	_, err = svc.ValidateToken(token)
	require.ErrorIs(t, err, appErrors.ErrUnauthorized)

	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	fresh, _, err := NewAuthService(AuthConfig{AccessTokenSecret: "secret", Issuer: "cutreview"}).GenerateToken("user-1", "", "")
	require.NoError(t, err)
	_, err = svc.ValidateToken(fresh)
	require.ErrorIs(t, err, appErrors.ErrUnauthorized)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, &models.JWTClaims{UserID: "user-1"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = NewAuthService(AuthConfig{AccessTokenSecret: "secret"}).ValidateToken(unsigned)
	require.ErrorIs(t, err, appErrors.ErrUnauthorized)
}
