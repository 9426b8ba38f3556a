package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidCredentials is returned when a login does not match the
// configured administrator.
var ErrInvalidCredentials = errors.New("invalid credentials")

const issuer = "vuserver"

// Claims represents JWT claims
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// JWTManager handles JWT token operations
type JWTManager struct {
	secretKey           []byte
	accessTokenDuration time.Duration
}

// NewJWTManager creates a new JWT manager
func NewJWTManager(secretKey string, accessTokenDuration time.Duration) *JWTManager {
	return &JWTManager{
		secretKey:           []byte(secretKey),
		accessTokenDuration: accessTokenDuration,
	}
}

// GenerateAccessToken creates a signed access token for username
func (m *JWTManager) GenerateAccessToken(username string) (string, time.Time, error) {
	now := time.Now()
	expires := now.Add(m.accessTokenDuration)
	claims := &Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   username,
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secretKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, expires, nil
}

// ValidateAccessToken validates an access token and returns the claims
func (m *JWTManager) ValidateAccessToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		// Verify signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secretKey, nil
	}, jwt.WithIssuer(issuer))

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, fmt.Errorf("invalid token")
}

// GetAccessTokenExpiry returns the expiry time for access tokens
func (m *JWTManager) GetAccessTokenExpiry() time.Time {
	return time.Now().Add(m.accessTokenDuration)
}

// Authenticator checks the single administrator account and issues tokens.
type Authenticator struct {
	username     string
	passwordHash string
	tokens       *JWTManager
}

// NewAuthenticator creates an authenticator for the configured admin.
func NewAuthenticator(username, passwordHash string, tokens *JWTManager) *Authenticator {
	return &Authenticator{
		username:     username,
		passwordHash: passwordHash,
		tokens:       tokens,
	}
}

// Login verifies the credentials and returns an access token.
func (a *Authenticator) Login(username, password string) (string, time.Time, error) {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(a.username)) == 1
	if err := VerifyPassword(password, a.passwordHash); err != nil || !userOK {
		return "", time.Time{}, ErrInvalidCredentials
	}
	return a.tokens.GenerateAccessToken(username)
}

// Validate checks a bearer token.
func (a *Authenticator) Validate(token string) (*Claims, error) {
	return a.tokens.ValidateAccessToken(token)
}
