// Package testhelpers provides utilities for testing arc-engine components.
package testhelpers

import (
	"encoding/base64"
	"encoding/json"
)

// GenerateTestJWT creates an unsigned JWT (alg: none) for use when verification is disabled.
func GenerateTestJWT(sub, email string) string {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))

	claims := map[string]string{"sub": sub, "aud": "arc-engine"}
	if email != "" {
		claims["email"] = email
	}
	payload, _ := json.Marshal(claims)

	return header + "." + base64.RawURLEncoding.EncodeToString(payload) + "."
}

// GenerateTestJWTWithBearer returns the token with a "Bearer " prefix for the Authorization header.
func GenerateTestJWTWithBearer(sub, email string) string {
	return "Bearer " + GenerateTestJWT(sub, email)
}
