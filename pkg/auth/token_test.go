package auth

import (
	"testing"
	"time"

	"github.com/angelmondragon/fieldreport/pkg/config"
	"github.com/angelmondragon/fieldreport/pkg/enums"
	"github.com/google/uuid"
)

func testCollectorConfig() config.CollectorConfig {
	return config.CollectorConfig{
		Secret:   "secret",
		Issuer:   "fieldreport",
		TokenTTL: 5 * time.Minute,
	}
}

func TestMintAndParseDeliveryToken(t *testing.T) {
	cfg := testCollectorConfig()
	now := time.Now().UTC()
	localID := uuid.NewString()

	token, err := MintDeliveryToken(cfg, now, DeliveryTokenPayload{
		LocalID:  localID,
		Method:   enums.HTTPMethodPut,
		Endpoint: "https://collector.example.com/reports",
	})
	if err != nil {
		t.Fatalf("mint delivery token: %v", err)
	}

	claims, err := ParseDeliveryToken(cfg, token)
	if err != nil {
		t.Fatalf("parse delivery token: %v", err)
	}
	if claims.LocalID != localID || claims.ID != localID {
		t.Fatalf("local id not preserved: %+v", claims)
	}
	if claims.Method != enums.HTTPMethodPut {
		t.Fatalf("unexpected method %s", claims.Method)
	}
	if claims.Issuer != cfg.Issuer {
		t.Fatalf("unexpected issuer %s", claims.Issuer)
	}
	if len(claims.Audience) != 1 || claims.Audience[0] != "https://collector.example.com/reports" {
		t.Fatalf("unexpected audience %v", claims.Audience)
	}
	if got := claims.ExpiresAt.Time.Sub(claims.IssuedAt.Time); got != 5*time.Minute {
		t.Fatalf("unexpected ttl %v", got)
	}
}

func TestMintDeliveryTokenValidation(t *testing.T) {
	now := time.Now()
	valid := DeliveryTokenPayload{LocalID: uuid.NewString(), Method: enums.HTTPMethodPost}

	if _, err := MintDeliveryToken(config.CollectorConfig{Issuer: "x"}, now, valid); err == nil {
		t.Fatal("expected missing secret to fail")
	}
	if _, err := MintDeliveryToken(config.CollectorConfig{Secret: "x"}, now, valid); err == nil {
		t.Fatal("expected missing issuer to fail")
	}
	bad := valid
	bad.LocalID = "not-a-uuid"
	if _, err := MintDeliveryToken(testCollectorConfig(), now, bad); err == nil {
		t.Fatal("expected bad local id to fail")
	}
	bad = valid
	bad.Method = "PATCH"
	if _, err := MintDeliveryToken(testCollectorConfig(), now, bad); err == nil {
		t.Fatal("expected bad method to fail")
	}
}

func TestParseDeliveryTokenRejectsExpiredAndForeign(t *testing.T) {
	cfg := testCollectorConfig()
	payload := DeliveryTokenPayload{LocalID: uuid.NewString(), Method: enums.HTTPMethodPost}

	expired, err := MintDeliveryToken(cfg, time.Now().Add(-time.Hour), payload)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := ParseDeliveryToken(cfg, expired); err == nil {
		t.Fatal("expected expired token to fail")
	}

	fresh, err := MintDeliveryToken(cfg, time.Now(), payload)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	other := cfg
	other.Secret = "different"
	if _, err := ParseDeliveryToken(other, fresh); err == nil {
		t.Fatal("expected wrong secret to fail")
	}
	other = cfg
	other.Issuer = "someone-else"
	if _, err := ParseDeliveryToken(other, fresh); err == nil {
		t.Fatal("expected wrong issuer to fail")
	}
}

func TestBearerToken(t *testing.T) {
	if tok, ok := BearerToken("Bearer abc.def"); !ok || tok != "abc.def" {
		t.Fatalf("unexpected token %q ok=%v", tok, ok)
	}
	if _, ok := BearerToken("Basic abc"); ok {
		t.Fatal("basic auth is not a bearer token")
	}
	if _, ok := BearerToken("Bearer "); ok {
		t.Fatal("empty bearer should be rejected")
	}
}
