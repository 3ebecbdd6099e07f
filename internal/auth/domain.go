package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

// Token types embedded in claims so a refresh token can never pass as an
// access token.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// Claims is the JWT payload. The identity claim carries exactly what the
// decision engine consumes: the user id and the site-administrator flag.
type Claims struct {
	UserID    int64  `json:"user_id"`
	IsAdmin   bool   `json:"is_admin"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}
