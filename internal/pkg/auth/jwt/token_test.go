package jwt

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func TestGenerateAndParseToken(t *testing.T) {
	token, err := GenerateToken(&Payload{Username: "alice", SessionID: "s1"}, testSecret, time.Minute)
	require.NoError(t, err)

	payload, err := ParseToken(token, testSecret)
	require.NoError(t, err)

	assert.Equal(t, "alice", payload.Username)
	assert.Equal(t, "s1", payload.SessionID)
	assert.Equal(t, TokenIssuer, payload.Issuer)
}

func TestParseTokenRejects(t *testing.T) {
	good, err := GenerateToken(&Payload{Username: "alice", SessionID: "s1"}, testSecret, time.Minute)
	require.NoError(t, err)

	_, err = ParseToken(good, "other-secret")
	assert.Error(t, err, "wrong secret")

	expired, err := GenerateToken(&Payload{Username: "alice", SessionID: "s1"}, testSecret, -time.Minute)
	require.NoError(t, err)
	_, err = ParseToken(expired, testSecret)
	assert.Error(t, err, "expired")

	anonymous, err := GenerateToken(&Payload{}, testSecret, time.Minute)
	require.NoError(t, err)
	_, err = ParseToken(anonymous, testSecret)
	assert.Error(t, err, "missing claims")
}

func TestIdentityExtractorMiddleware(t *testing.T) {
	token, err := GenerateToken(&Payload{Username: "bob", SessionID: "s2"}, testSecret, time.Minute)
	require.NoError(t, err)

	var seen *Payload
	handler := IdentityExtractorMiddleware(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetPayloadFromContext(r)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	require.NotNil(t, seen)
	assert.Equal(t, "bob", seen.Username)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	assert.Nil(t, seen)
}

func TestFromQuery(t *testing.T) {
	token, err := GenerateToken(&Payload{Username: "carol", SessionID: "s3"}, testSecret, time.Minute)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/ws?token="+token, nil)
	payload, err := FromQuery(req, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "carol", payload.Username)

	_, err = FromQuery(httptest.NewRequest(http.MethodGet, "/ws", nil), testSecret)
	assert.Error(t, err)
}
