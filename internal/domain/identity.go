package domain

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
)

// Role represents a caller's access level
type Role string

const (
	// RoleAdmin may mint assets and inspect the whole book
	RoleAdmin Role = "admin"

	// RoleMember acts on its own behalf: requests loans, lends, repays
	RoleMember Role = "member"
)

var validRoles = map[Role]bool{
	RoleAdmin:  true,
	RoleMember: true,
}

// IsValid checks if the role is a valid role
func (r Role) IsValid() bool {
	return validRoles[r]
}

// CanMint checks if the role may deposit new supply into the asset book
func (r Role) CanMint() bool {
	return r == RoleAdmin
}

// Caller is the authenticated account behind a request.
type Caller struct {
	Address common.Address
	Role    Role
}

// Authentication errors
var (
	ErrUnauthenticated  = errors.New("caller identity required")
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token has expired")
	ErrInsufficientRole = errors.New("insufficient role for this operation")
)
