package auth

import (
	"fmt"
	"time"

	"github.com/Ahmed3117/silverbook-authguard/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenManager handles JWT token generation and validation
type TokenManager struct {
	secret             string
	accessTokenExpiry  time.Duration
	refreshTokenExpiry time.Duration
}

// NewTokenManager creates a new TokenManager
func NewTokenManager(secret string, accessExpiry, refreshExpiry time.Duration) *TokenManager {
	return &TokenManager{
		secret:             secret,
		accessTokenExpiry:  accessExpiry,
		refreshTokenExpiry: refreshExpiry,
	}
}

// GenerateAccessToken creates a short-lived access token. sessionToken ties
// the credential to one device session and is empty for uncapped user classes.
func (tm *TokenManager) GenerateAccessToken(user *models.User, sessionToken string) (string, error) {
	return tm.generate("access", user, sessionToken, tm.accessTokenExpiry)
}

// GenerateRefreshToken creates a long-lived refresh token carrying the same
// session token, so a refreshed access token stays bound to the same device.
func (tm *TokenManager) GenerateRefreshToken(user *models.User, sessionToken string) (string, error) {
	return tm.generate("refresh", user, sessionToken, tm.refreshTokenExpiry)
}

func (tm *TokenManager) generate(tokenType string, user *models.User, sessionToken string, expiry time.Duration) (string, error) {
	claims := &models.TokenClaims{
		Type:         tokenType,
		UserID:       user.ID,
		PhoneNumber:  user.PhoneNumber,
		UserType:     user.UserType,
		SessionToken: sessionToken,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiry)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(tm.secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", tokenType, err)
	}

	return tokenString, nil
}

// ValidateToken verifies a token and returns its claims
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
