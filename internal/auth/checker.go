package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const checkerTokenTTL = 15 * time.Minute

// CheckerClaims carry the query/project binding for an asynchronous
// checker callback. The checker echoes the token back on the results
// endpoint so the server can trust the attribution.
type CheckerClaims struct {
	QueryID        string `json:"qid"`
	ProjectID      string `json:"pid"`
	ProjectVersion int64  `json:"pver"`
	jwt.RegisteredClaims
}

// SignCheckerToken mints a short-lived HS256 token binding a dispatched
// query run to the project snapshot it was computed against.
func SignCheckerToken(secret []byte, queryID, projectID string, projectVersion int64, now time.Time) (string, error) {
	claims := CheckerClaims{
		QueryID:        queryID,
		ProjectID:      projectID,
		ProjectVersion: projectVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   "checker",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(checkerTokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign checker token: %w", err)
	}
	return signed, nil
}

// VerifyCheckerToken parses and validates a checker callback token,
// returning its claims. Only HS256 signatures are accepted.
func VerifyCheckerToken(secret []byte, tokenString string) (*CheckerClaims, error) {
	claims := &CheckerClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("verify checker token: %w", err)
	}
	return claims, nil
}
