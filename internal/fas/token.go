package fas

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TokenClaims contains the claims encoded in a callback token.
type TokenClaims struct {
	PlanID string    `json:"plan_id"` // The plan this token may decide
	Expiry time.Time `json:"exp"`     // When the token expires
}

// GenerateToken creates an HMAC-signed token that FAS echoes back with its
// decision for planID.
//
// Token format: base64(json(claims)).base64(hmac-sha256(claims))
func GenerateToken(planID string, expiry time.Time, secret []byte) (string, error) {
	claimsJSON, err := json.Marshal(TokenClaims{PlanID: planID, Expiry: expiry.UTC()})
	if err != nil {
		return "", fmt.Errorf("failed to marshal token claims: %w", err)
	}

	h := hmac.New(sha256.New, secret)
	h.Write(claimsJSON)

	return base64.URLEncoding.EncodeToString(claimsJSON) + "." +
		base64.URLEncoding.EncodeToString(h.Sum(nil)), nil
}

// ValidateToken checks the signature and expiry of a callback token and
// returns its claims.
func ValidateToken(token string, secret []byte, now time.Time) (*TokenClaims, error) {
	i := strings.LastIndexByte(token, '.')
	if i <= 0 || i == len(token)-1 {
		return nil, fmt.Errorf("invalid token format")
	}
	claimsJSON, err := base64.URLEncoding.DecodeString(token[:i])
	if err != nil {
		return nil, fmt.Errorf("invalid token encoding: %w", err)
	}
	signature, err := base64.URLEncoding.DecodeString(token[i+1:])
	if err != nil {
		return nil, fmt.Errorf("invalid signature encoding: %w", err)
	}

	h := hmac.New(sha256.New, secret)
	h.Write(claimsJSON)
	if !hmac.Equal(signature, h.Sum(nil)) {
		return nil, fmt.Errorf("invalid token signature")
	}

	var claims TokenClaims
	if err := json.Unmarshal(claimsJSON, &claims); err != nil {
		return nil, fmt.Errorf("invalid token claims: %w", err)
	}
	if now.After(claims.Expiry) {
		return nil, fmt.Errorf("token expired at %s", claims.Expiry.Format(time.RFC3339))
	}
	return &claims, nil
}
