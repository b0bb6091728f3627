package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/fieldreport/pkg/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var jwtSigningMethod = jwt.SigningMethodHS256

const defaultTokenTTL = 5 * time.Minute

// MintDeliveryToken signs a short-lived token for one delivery attempt.
func MintDeliveryToken(cfg config.CollectorConfig, now time.Time, payload DeliveryTokenPayload) (string, error) {
	if cfg.Secret == "" {
		return "", fmt.Errorf("collector secret is required")
	}
	if cfg.Issuer == "" {
		return "", fmt.Errorf("collector issuer is required")
	}
	localID := strings.TrimSpace(payload.LocalID)
	if _, err := uuid.Parse(localID); err != nil {
		return "", fmt.Errorf("invalid local id %q", payload.LocalID)
	}
	if !payload.Method.IsValid() {
		return "", fmt.Errorf("invalid http method %q", payload.Method)
	}

	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}

	claims := DeliveryTokenClaims{
		LocalID: localID,
		Method:  payload.Method,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        localID,
		},
	}
	if payload.Endpoint != "" {
		claims.Audience = jwt.ClaimStrings{payload.Endpoint}
	}

	token := jwt.NewWithClaims(jwtSigningMethod, claims)
	signed, err := token.SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("signing jwt: %w", err)
	}
	return signed, nil
}

// ParseDeliveryToken validates the JWT string and returns typed claims.
func ParseDeliveryToken(cfg config.CollectorConfig, tokenString string) (*DeliveryTokenClaims, error) {
	if cfg.Secret == "" {
		return nil, fmt.Errorf("collector secret is required")
	}

	claims := &DeliveryTokenClaims{}
	_, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(token *jwt.Token) (interface{}, error) {
			if token.Method != jwtSigningMethod {
				return nil, fmt.Errorf("unexpected signing method %s", token.Header["alg"])
			}
			return []byte(cfg.Secret), nil
		},
		jwt.WithValidMethods([]string{jwtSigningMethod.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
	)
	if err != nil {
		return nil, err
	}
	if claims.ID != claims.LocalID {
		return nil, fmt.Errorf("token id does not match local id")
	}
	return claims, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}
