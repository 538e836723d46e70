package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/claimsage/claimsage-backend/internal/platform/logger"
	"github.com/claimsage/claimsage-backend/internal/utils"
)

// TokenClaims is the authenticated identity every protected route is
// pre-scoped to. Ownership checks downstream trust this, never raw request
// parameters.
type TokenClaims struct {
	UserID  uuid.UUID
	IsAdmin bool
}

type TokenService interface {
	Mint(userID uuid.UUID, isAdmin bool, ttl time.Duration) (string, error)
	Verify(tokenString string) (*TokenClaims, error)
}

type tokenService struct {
	log    *logger.Logger
	secret []byte
}

func NewTokenService(log *logger.Logger) (TokenService, error) {
	secret := strings.TrimSpace(utils.GetEnv("JWT_SECRET", "", log))
	if secret == "" {
		return nil, fmt.Errorf("missing JWT_SECRET")
	}
	return &tokenService{
		log:    log.With("service", "TokenService"),
		secret: []byte(secret),
	}, nil
}

func (s *tokenService) Mint(userID uuid.UUID, isAdmin bool, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":      userID.String(),
		"is_admin": isAdmin,
		"iat":      now.Unix(),
		"exp":      now.Add(ttl).Unix(),
	})
	return token.SignedString(s.secret)
}

func (s *tokenService) Verify(tokenString string) (*TokenClaims, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	sub, _ := claims["sub"].(string)
	userID, err := uuid.Parse(sub)
	if err != nil {
		return nil, fmt.Errorf("invalid subject claim")
	}
	isAdmin, _ := claims["is_admin"].(bool)

	return &TokenClaims{UserID: userID, IsAdmin: isAdmin}, nil
}
