package jwt

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-chi/jwtauth/v5"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// Role is the caller's role as asserted by the identity provider.
type Role string

const (
	RoleEmployee Role = "employee"
	RoleAdmin    Role = "admin"
)

const (
	tokenTypeAccess = "access"
	tokenTypeSSE    = "sse"

	sseTokenTTL = 5 * time.Minute
)

var (
	ErrInvalidClaims = errors.New("token claims are invalid")
	ErrWrongType     = errors.New("token type is not accepted here")
)

// Identity is the authenticated employee behind a request.
type Identity struct {
	EmployeeID string `json:"employee_id"`
	Role       Role   `json:"role"`
	Name       string `json:"name"`
	PFNumber   string `json:"pf_number"`
}

func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

type Service interface {
	GenerateAccessToken(identity Identity) (token string, expiresAt int64, err error)
	GenerateSSEToken(identity Identity) (token string, expiresIn int, err error)
	ValidateSSEToken(tokenString string) (Identity, error)
	JWTAuth() *jwtauth.JWTAuth
	RevokeToken(token string)
	IsTokenRevoked(token string) bool
}

type JWTService struct {
	accessTokenExpiration time.Duration
	tokenAuth             *jwtauth.JWTAuth
	revokedTokens         map[string]int64
	mu                    sync.RWMutex
	now                   func() time.Time
}

func (j *JWTService) JWTAuth() *jwtauth.JWTAuth {
	return j.tokenAuth
}

func NewJWTService(secretKey string, accessTokenExpiration time.Duration) *JWTService {
	return &JWTService{
		accessTokenExpiration: accessTokenExpiration,
		tokenAuth:             jwtauth.New("HS256", []byte(secretKey), nil, jwt.WithAcceptableSkew(30*time.Second)),
		revokedTokens:         make(map[string]int64),
		now:                   time.Now,
	}
}

func (j *JWTService) GenerateAccessToken(identity Identity) (token string, expiresAt int64, err error) {
	expiresAt = j.now().Add(j.accessTokenExpiration).Unix()
	_, tokenString, err := j.tokenAuth.Encode(identityClaims(identity, tokenTypeAccess, expiresAt))
	return tokenString, expiresAt, err
}

// GenerateSSEToken generates a short-lived token for SSE connections, since
// EventSource cannot send an Authorization header.
func (j *JWTService) GenerateSSEToken(identity Identity) (token string, expiresIn int, err error) {
	expiresAt := j.now().Add(sseTokenTTL).Unix()
	_, tokenString, err := j.tokenAuth.Encode(identityClaims(identity, tokenTypeSSE, expiresAt))
	if err != nil {
		return "", 0, err
	}
	return tokenString, int(sseTokenTTL.Seconds()), nil
}

// ValidateSSEToken validates an SSE token and returns its identity.
func (j *JWTService) ValidateSSEToken(tokenString string) (Identity, error) {
	token, err := j.tokenAuth.Decode(tokenString)
	if err != nil {
		return Identity{}, err
	}
	if j.IsTokenRevoked(tokenString) {
		return Identity{}, jwt.ErrInvalidJWT()
	}

	claims, err := token.AsMap(context.Background())
	if err != nil {
		return Identity{}, err
	}
	if claims["type"] != tokenTypeSSE {
		return Identity{}, ErrWrongType
	}
	return IdentityFromClaims(claims)
}

func (j *JWTService) RevokeToken(token string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.revokedTokens[token] = j.now().Unix()
}

func (j *JWTService) IsTokenRevoked(token string) bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	_, revoked := j.revokedTokens[token]
	return revoked
}

// IdentityFromClaims reads the identity claims of an access or SSE token.
func IdentityFromClaims(claims map[string]interface{}) (Identity, error) {
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return Identity{}, ErrInvalidClaims
	}

	role := Role(stringClaim(claims, "role"))
	switch role {
	case RoleEmployee, RoleAdmin:
	case "":
		role = RoleEmployee
	default:
		return Identity{}, ErrInvalidClaims
	}

	return Identity{
		EmployeeID: sub,
		Role:       role,
		Name:       stringClaim(claims, "name"),
		PFNumber:   stringClaim(claims, "pf_number"),
	}, nil
}

func identityClaims(identity Identity, tokenType string, expiresAt int64) map[string]interface{} {
	return map[string]interface{}{
		"sub":       identity.EmployeeID,
		"role":      string(identity.Role),
		"name":      identity.Name,
		"pf_number": identity.PFNumber,
		"type":      tokenType,
		"exp":       expiresAt,
	}
}

func stringClaim(claims map[string]interface{}, key string) string {
	v, _ := claims[key].(string)
	return v
}
