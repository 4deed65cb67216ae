package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// Common auth errors.
var (
	ErrInvalidToken      = errors.New("invalid token claims")
	ErrUnknownPermission = errors.New("unknown permission")
	ErrMissingSubjectID  = errors.New("token subject is required")
)

// TokenType distinguishes student vs admin tokens.
type TokenType string

const (
	TokenTypeStudent TokenType = "student"
	TokenTypeAdmin   TokenType = "admin"
)

// Claims extends JWT standard claims with app-specific fields.
type Claims struct {
	jwt.RegisteredClaims
	TokenType   TokenType `json:"token_type"`
	UserID      string    `json:"user_id"`
	Permissions []string  `json:"permissions,omitempty"` // Admin only
}

// Has reports whether the claims carry the permission.
func (c *Claims) Has(p model.Permission) bool {
	for _, granted := range c.Permissions {
		if granted == string(p) {
			return true
		}
	}
	return false
}

// AuthService mints and validates JWTs. Student tokens are normally issued
// by the learning platform sharing JWT_SECRET; this service also mints them
// for proctors and tests.
type AuthService struct {
	secret []byte
	expiry time.Duration
}

// NewAuthService creates a new AuthService.
func NewAuthService(cfg *config.Config) *AuthService {
	return &AuthService{secret: []byte(cfg.JWTSecret), expiry: cfg.JWTExpiry}
}

// GenerateStudentToken creates a JWT for a student.
func (s *AuthService) GenerateStudentToken(studentID string) (string, error) {
	if studentID == "" {
		return "", ErrMissingSubjectID
	}
	return s.sign(Claims{TokenType: TokenTypeStudent, UserID: studentID})
}

// GenerateAdminToken creates a JWT for an admin with permissions embedded.
func (s *AuthService) GenerateAdminToken(adminID string, permissions []model.Permission) (string, error) {
	if adminID == "" {
		return "", ErrMissingSubjectID
	}
	codes := make([]string, 0, len(permissions))
	for _, p := range permissions {
		if !p.IsKnown() {
			return "", fmt.Errorf("%w: %s", ErrUnknownPermission, p)
		}
		codes = append(codes, string(p))
	}
	return s.sign(Claims{TokenType: TokenTypeAdmin, UserID: adminID, Permissions: codes})
}

func (s *AuthService) sign(claims Claims) (string, error) {
	now := time.Now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ID:        uuid.New().String(),
		Subject:   claims.UserID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and validates a JWT, returning the claims.
func (s *AuthService) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
