package models

import "github.com/golang-jwt/jwt/v5"

// Token types. Auth tokens carry a fully-authenticated session;
// remember tokens let a trusted device skip the second factor.
const (
	TokenTypeAuth     = "auth"
	TokenTypeRemember = "remember"
)

type TokenClaims struct {
	Type      string `json:"type"`
	AccountID string `json:"account_id"`
	jwt.RegisteredClaims
}
