package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/golang-jwt/jwt/v5"

	"github.com/iho/golend/internal/domain"
)

const issuer = "golend"

// Claims represents the JWT claims. The subject is the caller's hex address.
type Claims struct {
	Role domain.Role `json:"role"`
	jwt.RegisteredClaims
}

// Address returns the caller address carried in the subject.
func (c *Claims) Address() (common.Address, error) {
	return domain.ParseAddress(c.Subject)
}

// Caller converts the claims to a domain caller, defaulting to member.
func (c *Claims) Caller() (domain.Caller, error) {
	addr, err := c.Address()
	if err != nil {
		return domain.Caller{}, domain.ErrInvalidToken
	}
	role := c.Role
	if role == "" {
		role = domain.RoleMember
	}
	if !role.IsValid() {
		return domain.Caller{}, domain.ErrInvalidToken
	}
	return domain.Caller{Address: addr, Role: role}, nil
}

// JWTManager signs and verifies HS256 caller tokens issued by golend.
// Tokens must carry an expiry.
type JWTManager struct {
	secretKey     []byte
	tokenDuration time.Duration
	now           func() time.Time
	parser        *jwt.Parser
}

func NewJWTManager(secretKey string, tokenDuration time.Duration) *JWTManager {
	m := &JWTManager{
		secretKey:     []byte(secretKey),
		tokenDuration: tokenDuration,
		now:           time.Now,
	}
	m.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return m.now() }),
	)
	return m
}

// Generate signs a token naming caller as subject.
func (m *JWTManager) Generate(caller domain.Caller) (string, error) {
	if !caller.Role.IsValid() {
		return "", fmt.Errorf("unknown role %q", caller.Role)
	}

	now := m.now()
	claims := Claims{
		Role: caller.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   caller.Address.Hex(),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.tokenDuration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secretKey)
}

// Verify returns the claims of a valid token. Expired tokens yield
// domain.ErrExpiredToken; every other failure is domain.ErrInvalidToken.
func (m *JWTManager) Verify(tokenString string) (*Claims, error) {
	var claims Claims
	_, err := m.parser.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (any, error) {
		return m.secretKey, nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, domain.ErrExpiredToken
	case err != nil:
		return nil, domain.ErrInvalidToken
	}
	return &claims, nil
}

// Authenticate verifies tokenString and returns the caller it names.
func (m *JWTManager) Authenticate(tokenString string) (domain.Caller, error) {
	claims, err := m.Verify(tokenString)
	if err != nil {
		return domain.Caller{}, err
	}
	return claims.Caller()
}
