package model

// RegisterRequest represents registration parameters
type RegisterRequest struct {
	Username   string `json:"username" binding:"required,max=150,username"`
	Password   string `json:"password" binding:"required,min=8"`
	Role       Role   `json:"role" binding:"required,role"`
	FirstName  string `json:"first_name" binding:"max=150"`
	LastName   string `json:"last_name" binding:"max=150"`
	MiddleName string `json:"middle_name" binding:"max=150"`
	Email      string `json:"email" binding:"omitempty,email,max=254"`
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type RefreshTokenRequest struct {
	Refresh string `json:"refresh" binding:"required"`
}

// TokenPair is returned by login and refresh
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// TokenType distinguishes access from refresh tokens
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)
