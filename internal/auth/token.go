package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/phenopolis/twofactor/internal/models"
)

// TokenManager signs and validates the two token kinds this service
// issues: "auth" tokens for a fully-authenticated session and "remember"
// tokens for the trusted-device second-factor bypass.
type TokenManager struct {
	secret               string
	sessionExpiry        time.Duration
	rememberMeExpiry     time.Duration
	rememberDeviceExpiry time.Duration
}

func NewTokenManager(secret string, sessionExpiry, rememberMeExpiry, rememberDeviceExpiry time.Duration) *TokenManager {
	return &TokenManager{
		secret:               secret,
		sessionExpiry:        sessionExpiry,
		rememberMeExpiry:     rememberMeExpiry,
		rememberDeviceExpiry: rememberDeviceExpiry,
	}
}

func (tm *TokenManager) sign(tokenType, accountID string, expiry time.Duration) (string, error) {
	claims := &models.TokenClaims{
		Type:      tokenType,
		AccountID: accountID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiry)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(tm.secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", tokenType, err)
	}
	return signed, nil
}

// EstablishSession issues the long-lived authenticated-session token,
// distinct from the transient LoginSession. The rememberMe flag selects
// the extended expiry.
func (tm *TokenManager) EstablishSession(accountID string, rememberMe bool) (string, error) {
	expiry := tm.sessionExpiry
	if rememberMe {
		expiry = tm.rememberMeExpiry
	}
	return tm.sign(models.TokenTypeAuth, accountID, expiry)
}

// IssueRememberToken signs a trusted-device token. The token is stateless
// server-side; once issued it stays valid until expiry.
func (tm *TokenManager) IssueRememberToken(accountID string) (string, error) {
	return tm.sign(models.TokenTypeRemember, accountID, tm.rememberDeviceExpiry)
}

// RememberDeviceExpiry exposes the configured duration for cookie MaxAge.
func (tm *TokenManager) RememberDeviceExpiry() time.Duration {
	return tm.rememberDeviceExpiry
}

// ValidateToken verifies a token and returns its claims.
func (tm *TokenManager) ValidateToken(tokenString string) (*models.TokenClaims, error) {
	claims := &models.TokenClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(tm.secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid {
		return nil, models.ErrUnauthorized
	}

	if claims.Type == "" {
		return nil, fmt.Errorf("invalid token: missing type")
	}

	return claims, nil
}

// VerifyRememberToken resolves a remember-device token to an account id.
// Any defect (bad signature, wrong type, expiry) yields ok == false so
// callers fall back to asking for the second factor instead of failing
// the request.
func (tm *TokenManager) VerifyRememberToken(tokenString string) (accountID string, ok bool) {
	if tokenString == "" {
		return "", false
	}

	claims, err := tm.ValidateToken(tokenString)
	if err != nil {
		return "", false
	}
	if claims.Type != models.TokenTypeRemember || claims.AccountID == "" {
		return "", false
	}
	return claims.AccountID, true
}
