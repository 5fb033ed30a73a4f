package models

import "github.com/golang-jwt/jwt/v5"

// UserRole represents the roles recognised by access checks.
type UserRole string

const (
	RoleAdmin   UserRole = "ADMIN"
	RoleOwner   UserRole = "OWNER"
	RoleTutor   UserRole = "TUTOR"
	RoleStudent UserRole = "STUDENT"
	RoleSystem  UserRole = "SYSTEM"
)

// JWTClaims represents the JWT payload for access tokens.
type JWTClaims struct {
	UserID string   `json:"user_id"`
	Role   UserRole `json:"role"`
	Email  string   `json:"email"`
	jwt.RegisteredClaims
}

// Actor identifies who performs a scheduling mutation.
type Actor struct {
	UserID string
	Role   UserRole
}

// Privileged reports whether the actor bypasses ownership checks.
func (a Actor) Privileged() bool {
	return a.Role == RoleAdmin || a.Role == RoleSystem
}

// SystemActor is used by internal triggers such as the materializer command.
var SystemActor = Actor{UserID: "system", Role: RoleSystem}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
