// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file resolves the caller's identity. With a signing secret configured
// the identity comes from an HS256 bearer token; without one, development
// headers (X-User-ID, X-User-Email, X-User-Name, X-User-Role) are trusted.
// Handlers read the result with IdentityFrom.
package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/tbourn/go-interview-backend/internal/domain"
)

// Development identity headers.
const (
	HeaderUserID    = "X-User-ID"
	HeaderUserEmail = "X-User-Email"
	HeaderUserName  = "X-User-Name"
	HeaderUserRole  = "X-User-Role"
)

const (
	ctxKeyIdentity = "identity"
	ctxKeyUserID   = "userID"
)

// Claims is the bearer token payload.
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
	Name   string `json:"name,omitempty"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// AuthOptions configures Authenticate.
type AuthOptions struct {
	// Secret enables bearer tokens. Empty means development headers.
	Secret string
}

// SignToken issues an HS256 token for ident, valid for ttl.
func SignToken(secret string, ident domain.Identity, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("signing secret is empty")
	}
	now := time.Now()
	claims := &Claims{
		UserID: ident.UserID,
		Email:  ident.Email,
		Name:   ident.Name,
		Role:   ident.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   ident.UserID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return s, nil
}

// ParseToken validates an HS256 token and returns its identity.
func ParseToken(secret, token string) (domain.Identity, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return domain.Identity{}, fmt.Errorf("parse token: %w", err)
	}
	if !parsed.Valid {
		return domain.Identity{}, errors.New("token is not valid")
	}
	uid := claims.UserID
	if uid == "" {
		uid = claims.Subject
	}
	if uid == "" {
		return domain.Identity{}, errors.New("token has no user id")
	}
	return domain.Identity{UserID: uid, Email: claims.Email, Name: claims.Name, Role: claims.Role}, nil
}

// Authenticate resolves the caller identity and stores it on the context.
// A request without credentials continues anonymously; an invalid bearer
// token is rejected with 401.
func Authenticate(opts AuthOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		var ident domain.Identity
		if opts.Secret != "" {
			authz := c.GetHeader("Authorization")
			if authz != "" {
				token, found := strings.CutPrefix(authz, "Bearer ")
				id, err := ParseToken(opts.Secret, strings.TrimSpace(token))
				if !found || err != nil {
					c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
						"request_id": c.Writer.Header().Get(requestIDHeader),
						"code":       "unauthorized",
						"message":    "invalid bearer token",
					})
					return
				}
				ident = id
			}
		} else {
			ident = domain.Identity{
				UserID: strings.TrimSpace(c.GetHeader(HeaderUserID)),
				Email:  strings.TrimSpace(c.GetHeader(HeaderUserEmail)),
				Name:   strings.TrimSpace(c.GetHeader(HeaderUserName)),
				Role:   strings.TrimSpace(c.GetHeader(HeaderUserRole)),
			}
		}
		c.Set(ctxKeyIdentity, ident)
		if !ident.Anonymous() {
			c.Set(ctxKeyUserID, ident.UserID)
		}
		c.Next()
	}
}

// IdentityFrom returns the identity stored by Authenticate. Without the
// middleware it falls back to the development headers.
func IdentityFrom(c *gin.Context) domain.Identity {
	if v, ok := c.Get(ctxKeyIdentity); ok {
		if id, ok := v.(domain.Identity); ok {
			return id
		}
	}
	if c.Request == nil {
		return domain.Identity{}
	}
	return domain.Identity{
		UserID: strings.TrimSpace(c.GetHeader(HeaderUserID)),
		Email:  strings.TrimSpace(c.GetHeader(HeaderUserEmail)),
		Name:   strings.TrimSpace(c.GetHeader(HeaderUserName)),
		Role:   strings.TrimSpace(c.GetHeader(HeaderUserRole)),
	}
}
