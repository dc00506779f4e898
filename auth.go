package main

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	tokenCookie = "token"
	tokenTTL    = 12 * time.Hour
)

var errInvalidCredentials = errors.New("invalid credentials")

// authService issues and checks HS256 tokens for holders of the API key.
// A zero secret disables authentication.
type authService struct {
	secret  []byte
	keyHash []byte
}

func newAuthService(secret, keyHash string) *authService {
	return &authService{secret: []byte(secret), keyHash: []byte(keyHash)}
}

func (a *authService) enabled() bool { return len(a.secret) > 0 }

// login checks apiKey against the stored bcrypt hash and returns a signed token.
func (a *authService) login(apiKey string) (string, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" || len(a.keyHash) == 0 {
		return "", errInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(a.keyHash, []byte(apiKey)); err != nil {
		return "", errInvalidCredentials
	}
	return a.issue("api-key")
}

func (a *authService) issue(subject string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
	})
	return token.SignedString(a.secret)
}

func (a *authService) verify(tokenString string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrInvalidKeyType
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("token not valid")
	}
	return claims, nil
}

// tokenFromRequest takes the bearer token from the Authorization header,
// falling back to the token cookie set by the login form.
func tokenFromRequest(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	if v, err := c.Cookie(tokenCookie); err == nil {
		return v
	}
	return ""
}

func jwtAuthMiddleware(a *authService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !a.enabled() {
			c.Next()
			return
		}
		tokenString := tokenFromRequest(c)
		if tokenString == "" {
			unauthorized(c, "missing or invalid Authorization header")
			return
		}
		claims, err := a.verify(tokenString)
		if err != nil {
			unauthorized(c, "invalid token")
			return
		}
		c.Set("subject", claims.Subject)
		c.Next()
	}
}

// unauthorized sends browsers to the login form and API clients a 401.
func unauthorized(c *gin.Context, msg string) {
	if c.Request.Method == http.MethodGet && wantsHTML(c) {
		c.Redirect(http.StatusSeeOther, "/login")
		c.Abort()
		return
	}
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
}

func wantsHTML(c *gin.Context) bool {
	return strings.Contains(c.GetHeader("Accept"), "text/html")
}
