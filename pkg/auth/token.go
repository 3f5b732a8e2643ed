// Package auth mints and verifies the HS256 access tokens the API accepts.
// Tokens are issued elsewhere in production; MintAccessToken exists for
// tests and local tooling.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/papshop-backend/pkg/config"
	"github.com/angelmondragon/papshop-backend/pkg/enums"
)

var method = jwt.SigningMethodHS256

// AccessTokenPayload is what the caller chooses when minting. A blank JTI
// gets a random one.
type AccessTokenPayload struct {
	UserID uuid.UUID
	Role   enums.Role
	JTI    string
}

// AccessTokenClaims is the token body: user, role and the registered claims.
type AccessTokenClaims struct {
	UserID uuid.UUID  `json:"user_id"`
	Role   enums.Role `json:"role"`
	jwt.RegisteredClaims
}

// Validate runs inside jwt.Parse after the registered claims pass.
func (c AccessTokenClaims) Validate() error {
	if c.UserID == uuid.Nil {
		return errors.New("token missing user_id")
	}
	if !c.Role.IsValid() {
		return fmt.Errorf("token carries invalid role %q", c.Role)
	}
	return nil
}

func signingKey(cfg config.JWTConfig) ([]byte, error) {
	if cfg.Secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	return []byte(cfg.Secret), nil
}

func MintAccessToken(cfg config.JWTConfig, now time.Time, p AccessTokenPayload) (string, error) {
	key, err := signingKey(cfg)
	if err != nil {
		return "", err
	}
	switch {
	case cfg.Issuer == "":
		return "", errors.New("jwt issuer is required")
	case cfg.ExpirationMinutes <= 0:
		return "", errors.New("jwt expiration minutes must be positive")
	}
	claims := AccessTokenClaims{
		UserID: p.UserID,
		Role:   p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        strings.TrimSpace(p.JTI),
			Issuer:    cfg.Issuer,
			Subject:   p.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(cfg.ExpirationMinutes) * time.Minute)),
		},
	}
	if claims.ID == "" {
		claims.ID = uuid.NewString()
	}
	if err := claims.Validate(); err != nil {
		return "", err
	}
	signed, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// ParseAccessToken accepts only HS256 tokens from cfg.Issuer that carry an
// expiry, a user id and a known role.
func ParseAccessToken(cfg config.JWTConfig, raw string) (*AccessTokenClaims, error) {
	key, err := signingKey(cfg)
	if err != nil {
		return nil, err
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{method.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithExpirationRequired(),
	)
	claims := &AccessTokenClaims{}
	if _, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) { return key, nil }); err != nil {
		return nil, err
	}
	return claims, nil
}
