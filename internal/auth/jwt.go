package auth

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned for tokens that fail validation.
	ErrInvalidToken = errors.New("auth: invalid token")
)

// Claims represents JWT claims used by this service. The registered subject
// carries the caller's counterparty address for counterparty tokens.
type Claims struct {
	TenantID string `json:"tenant_id"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// ParseJWT validates a JWT and returns the caller identity.
func ParseJWT(tokenString string, secret []byte) (Identity, error) {
	if tokenString == "" {
		return Identity{}, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}
	if len(secret) == 0 {
		return Identity{}, errors.New("auth: empty secret")
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	claims := &Claims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return secret, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return Identity{}, ErrInvalidToken
	}
	if claims.TenantID == "" {
		return Identity{}, fmt.Errorf("%w: missing tenant_id", ErrInvalidToken)
	}
	role, ok := NormalizeRole(claims.Role)
	if !ok {
		return Identity{}, fmt.Errorf("%w: invalid role", ErrInvalidToken)
	}
	identity := Identity{TenantID: claims.TenantID, Role: role, Subject: claims.Subject}
	if common.IsHexAddress(claims.Subject) {
		identity.Address = common.HexToAddress(claims.Subject)
	} else if role == RoleCounterparty {
		return Identity{}, fmt.Errorf("%w: counterparty subject is not an address", ErrInvalidToken)
	}
	return identity, nil
}

// SignJWT issues an HS256 token for identity. Used by tooling and tests.
func SignJWT(secret []byte, claims Claims) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("auth: empty secret")
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
