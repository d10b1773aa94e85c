package auth

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Verifier validates bearer tokens against the RSA keys the Cognito user
// pool publishes at its JWKS endpoint. The authorizer is the trust
// boundary: nothing upstream of it has checked the token, so every claim
// it forwards must come from a token whose signature verified here. Keys
// are cached for the lifetime of the Lambda container; an unknown kid
// triggers one refetch to pick up rotated keys.
type Verifier struct {
	Issuer     string
	JWKSURL    string
	HTTPClient *http.Client

	mu   sync.RWMutex
	keys map[string]*rsa.PublicKey
}

// NewCognitoVerifier builds a Verifier for the given user pool.
func NewCognitoVerifier(region, userPoolID string) *Verifier {
	issuer := fmt.Sprintf("https://cognito-idp.%s.amazonaws.com/%s", region, userPoolID)
	return &Verifier{
		Issuer:     issuer,
		JWKSURL:    issuer + "/.well-known/jwks.json",
		HTTPClient: &http.Client{Timeout: 5 * time.Second},
	}
}

// verifiedClaims carries the custom claims the token customizer writes
// alongside the registered claims golang-jwt validates.
type verifiedClaims struct {
	Email          string      `json:"email"`
	UserID         json.Number `json:"user_id"`
	RoleCode       string      `json:"role_code"`
	HierarchyLevel json.Number `json:"hierarchy_level"`
	IsSuperAdmin   bool        `json:"isSuperAdmin"`
	jwt.RegisteredClaims
}

// Verify checks the token's signature, algorithm, issuer and expiry.
// Only RS256 tokens signed by the configured pool pass; unsigned or
// HMAC-signed tokens are rejected before their claims are looked at.
func (v *Verifier) Verify(token string) (*TokenClaims, error) {
	if token == "" {
		return nil, errors.New("authorization token missing")
	}

	parsed, err := jwt.ParseWithClaims(token, &verifiedClaims{}, v.signingKey,
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(v.Issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("token verification failed: %w", err)
	}

	claims, ok := parsed.Claims.(*verifiedClaims)
	if !ok {
		return nil, errors.New("unexpected token claims type")
	}

	return &TokenClaims{
		Sub:            claims.Subject,
		Email:          claims.Email,
		UserID:         claims.UserID,
		RoleCode:       claims.RoleCode,
		HierarchyLevel: claims.HierarchyLevel,
		IsSuperAdmin:   claims.IsSuperAdmin,
	}, nil
}

func (v *Verifier) signingKey(token *jwt.Token) (interface{}, error) {
	kid, _ := token.Header["kid"].(string)
	if kid == "" {
		return nil, errors.New("token header carries no kid")
	}

	if key := v.cachedKey(kid); key != nil {
		return key, nil
	}
	if err := v.refreshKeys(); err != nil {
		return nil, err
	}
	if key := v.cachedKey(kid); key != nil {
		return key, nil
	}
	return nil, fmt.Errorf("no published key for kid %q", kid)
}

func (v *Verifier) cachedKey(kid string) *rsa.PublicKey {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.keys[kid]
}

type jwksDocument struct {
	Keys []struct {
		Kid string `json:"kid"`
		Kty string `json:"kty"`
		N   string `json:"n"`
		E   string `json:"e"`
	} `json:"keys"`
}

func (v *Verifier) refreshKeys() error {
	resp, err := v.HTTPClient.Get(v.JWKSURL)
	if err != nil {
		return fmt.Errorf("failed to fetch JWKS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("JWKS endpoint returned status %d", resp.StatusCode)
	}

	var doc jwksDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return fmt.Errorf("failed to decode JWKS: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, key := range doc.Keys {
		if key.Kty != "RSA" {
			continue
		}
		modulus, err := base64.RawURLEncoding.DecodeString(key.N)
		if err != nil {
			return fmt.Errorf("invalid modulus for kid %q: %w", key.Kid, err)
		}
		exponent, err := base64.RawURLEncoding.DecodeString(key.E)
		if err != nil {
			return fmt.Errorf("invalid exponent for kid %q: %w", key.Kid, err)
		}
		keys[key.Kid] = &rsa.PublicKey{
			N: new(big.Int).SetBytes(modulus),
			E: int(new(big.Int).SetBytes(exponent).Int64()),
		}
	}

	v.mu.Lock()
	v.keys = keys
	v.mu.Unlock()

	return nil
}
