package auth

import (
	"github.com/angelmondragon/fieldreport/pkg/enums"
	"github.com/golang-jwt/jwt/v5"
)

// DeliveryTokenPayload captures what is known about a submission when it is sent.
type DeliveryTokenPayload struct {
	LocalID  string
	Method   enums.HTTPMethod
	Endpoint string
}

// DeliveryTokenClaims is the bearer token attached to each delivery. The jti
// equals the submission local id so receivers can tie the token to one entry.
type DeliveryTokenClaims struct {
	LocalID string           `json:"local_id"`
	Method  enums.HTTPMethod `json:"method"`
	jwt.RegisteredClaims
}
