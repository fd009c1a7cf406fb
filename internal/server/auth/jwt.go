// Package auth mints and checks the HS256 service tokens that guard the
// internal ledger API.
package auth

import (
	"errors"
	"time"

	"github.com/dmitrijs2005/profitpal/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

const issuer = "profitpal"

// Claims identify the calling service, e.g. "billing" or "ppctl".
type Claims struct {
	jwt.RegisteredClaims
	Service string `json:"svc"`
}

func GenerateToken(service string, secretKey []byte, validityDuration time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validityDuration)),
		},
		Service: service,
	})

	return token.SignedString(secretKey)
}

// GetServiceFromToken validates a token and returns the service name.
// Expired tokens yield common.ErrTokenExpired, every other failure
// common.ErrInvalidToken.
func GetServiceFromToken(tokenString string, secretKey []byte) (string, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return secretKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", common.ErrTokenExpired
		}
		return "", common.ErrInvalidToken
	}
	if !token.Valid || claims.Service == "" {
		return "", common.ErrInvalidToken
	}

	return claims.Service, nil
}
