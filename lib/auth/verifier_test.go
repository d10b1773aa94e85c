package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testIssuer = "https://cognito-idp.us-east-2.amazonaws.com/us-east-2_testpool"
	testKid    = "test-key-1"
)

func newSigningKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func newTestVerifier(t *testing.T, key *rsa.PrivateKey) *Verifier {
	t.Helper()

	document := map[string]interface{}{
		"keys": []map[string]string{
			{
				"kid": testKid,
				"kty": "RSA",
				"alg": "RS256",
				"n":   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
			},
		},
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(document)
	}))
	t.Cleanup(server.Close)

	return &Verifier{
		Issuer:     testIssuer,
		JWKSURL:    server.URL,
		HTTPClient: server.Client(),
	}
}

func baseClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"iss":             testIssuer,
		"sub":             "abc-123",
		"exp":             time.Now().Add(time.Hour).Unix(),
		"email":           "jdoe@example.com",
		"user_id":         "10",
		"role_code":       "branch_manager",
		"hierarchy_level": 3,
		"isSuperAdmin":    false,
	}
}

func signToken(t *testing.T, key *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

func TestVerifyAcceptsSignedToken(t *testing.T) {
	key := newSigningKey(t)
	verifier := newTestVerifier(t, key)

	claims, err := verifier.Verify(signToken(t, key, testKid, baseClaims()))
	require.NoError(t, err)

	userID, err := claims.UserID.Int64()
	require.NoError(t, err)
	assert.Equal(t, int64(10), userID)
	assert.Equal(t, "abc-123", claims.Sub)
	assert.Equal(t, "branch_manager", claims.RoleCode)

	level, err := claims.HierarchyLevel.Int64()
	require.NoError(t, err)
	assert.Equal(t, int64(3), level)
	assert.False(t, claims.IsSuperAdmin)
}

func TestVerifyRejectsUnsignedToken(t *testing.T) {
	key := newSigningKey(t)
	verifier := newTestVerifier(t, key)

	// A hand-built alg=none token claiming super admin must never parse
	// into trusted claims.
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))
	payload := base64.RawURLEncoding.EncodeToString([]byte(
		`{"iss":"` + testIssuer + `","sub":"forged","exp":4102444800,` +
			`"user_id":"1","role_code":"super_admin","isSuperAdmin":true}`))

	_, err := verifier.Verify(header + "." + payload + ".")
	assert.Error(t, err)
}

func TestVerifyRejectsWrongSigningKey(t *testing.T) {
	key := newSigningKey(t)
	verifier := newTestVerifier(t, key)

	attackerKey := newSigningKey(t)
	_, err := verifier.Verify(signToken(t, attackerKey, testKid, baseClaims()))
	assert.Error(t, err)
}

func TestVerifyRejectsHMACToken(t *testing.T) {
	key := newSigningKey(t)
	verifier := newTestVerifier(t, key)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, baseClaims())
	token.Header["kid"] = testKid
	signed, err := token.SignedString([]byte("guessable-secret"))
	require.NoError(t, err)

	_, err = verifier.Verify(signed)
	assert.Error(t, err)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	key := newSigningKey(t)
	verifier := newTestVerifier(t, key)

	claims := baseClaims()
	claims["exp"] = time.Now().Add(-time.Minute).Unix()

	_, err := verifier.Verify(signToken(t, key, testKid, claims))
	assert.Error(t, err)
}

func TestVerifyRejectsForeignIssuer(t *testing.T) {
	key := newSigningKey(t)
	verifier := newTestVerifier(t, key)

	claims := baseClaims()
	claims["iss"] = "https://cognito-idp.us-east-2.amazonaws.com/us-east-2_otherpool"

	_, err := verifier.Verify(signToken(t, key, testKid, claims))
	assert.Error(t, err)
}

func TestVerifyRejectsUnknownKid(t *testing.T) {
	key := newSigningKey(t)
	verifier := newTestVerifier(t, key)

	_, err := verifier.Verify(signToken(t, key, "rotated-away", baseClaims()))
	assert.Error(t, err)
}

func TestVerifyRejectsEmptyToken(t *testing.T) {
	verifier := newTestVerifier(t, newSigningKey(t))
	_, err := verifier.Verify("")
	assert.Error(t, err)
}
