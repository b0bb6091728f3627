package middleware

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/fieldreport/api/responses"
	pkgAuth "github.com/angelmondragon/fieldreport/pkg/auth"
	"github.com/angelmondragon/fieldreport/pkg/collector"
	"github.com/angelmondragon/fieldreport/pkg/config"
	pkgerrors "github.com/angelmondragon/fieldreport/pkg/errors"
	"github.com/angelmondragon/fieldreport/pkg/logger"
)

// DeliveryAuth verifies the bearer token the sync pipeline attaches to each
// delivery. With no secret configured every request passes.
func DeliveryAuth(cfg config.CollectorConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.Secret == "" {
				next.ServeHTTP(w, r)
				return
			}

			token, ok := pkgAuth.BearerToken(strings.TrimSpace(r.Header.Get("Authorization")))
			if !ok {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgAuth.ParseDeliveryToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}
			if string(claims.Method) != r.Method {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "token minted for a different method"))
				return
			}
			if key := strings.TrimSpace(r.Header.Get(collector.IdempotencyKeyHeader)); key != "" && key != claims.LocalID {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "token does not match idempotency key"))
				return
			}

			ctx := WithDeliveryID(r.Context(), claims.LocalID)
			if logg != nil {
				ctx = logg.WithLocalID(ctx, claims.LocalID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
