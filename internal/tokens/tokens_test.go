package tokens

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret-32-bytes-should-be-long-enough"

func TestGenerateRoleToken_RoundTrip(t *testing.T) {
	tok, err := GenerateRoleToken(secret, "user-123", "admin", 2*time.Minute)
	require.NoError(t, err)

	claims, err := ParseRoleToken(secret, tok)
	require.NoError(t, err)
	require.Equal(t, "user-123", claims.Subject)
	require.Equal(t, "admin", claims.Role)
}

func TestParseRoleToken_Expired(t *testing.T) {
	tok, err := GenerateRoleToken(secret, "u2", "admin", -time.Minute)
	require.NoError(t, err)

	_, err = ParseRoleToken(secret, tok)
	require.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestParseRoleToken_WrongSecretFails(t *testing.T) {
	tok, err := GenerateRoleToken(secret, "u3", "admin", time.Minute)
	require.NoError(t, err)

	_, err = ParseRoleToken("different-secret-xxxxxxxxxxxxxxxx", tok)
	require.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)
}

func TestParseRoleToken_Malformed(t *testing.T) {
	_, err := ParseRoleToken(secret, "not.a.jwt")
	require.Error(t, err)
}

func TestParseRoleToken_NoSecret(t *testing.T) {
	_, err := GenerateRoleToken("", "u", "admin", time.Minute)
	require.ErrorIs(t, err, ErrNoSecret)
	_, err = ParseRoleToken("", "x.y.z")
	require.ErrorIs(t, err, ErrNoSecret)
}

// Rejected when alg=none (unsigned token)
func TestParseRoleToken_AlgNoneRejected(t *testing.T) {
	enc := base64.RawURLEncoding.EncodeToString
	tok := enc([]byte(`{"alg":"none","typ":"JWT"}`)) + "." +
		enc([]byte(`{"sub":"u-none","role":"admin","exp":9999999999}`)) + "."
	_, err := ParseRoleToken(secret, tok)
	require.Error(t, err)
}

// Tampering with payload must fail signature verification
func TestParseRoleToken_TamperedPayload(t *testing.T) {
	tok, err := GenerateRoleToken(secret, "user-t", "user", 5*time.Minute)
	require.NoError(t, err)

	parts := strings.Split(tok, ".")
	require.Len(t, parts, 3)
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	require.NoError(t, err)
	forged := strings.Replace(string(payload), `"role":"user"`, `"role":"admin"`, 1)
	parts[1] = base64.RawURLEncoding.EncodeToString([]byte(forged))

	_, err = ParseRoleToken(secret, strings.Join(parts, "."))
	require.Error(t, err)
}
