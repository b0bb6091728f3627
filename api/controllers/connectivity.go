package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/fieldreport/api/responses"
	"github.com/angelmondragon/fieldreport/api/validators"
	"github.com/angelmondragon/fieldreport/pkg/collector"
	"github.com/angelmondragon/fieldreport/pkg/logger"
)

type ConnectivityState interface {
	Online() bool
	Check(ctx context.Context) bool
}

type ConnectionTester interface {
	TestConnection(ctx context.Context, url string) collector.ConnectionReport
}

// Connectivity reports the last probe verdict. refresh=true probes first.
func Connectivity(state ConnectivityState, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		refresh, err := validators.ParseQueryBool(r, "refresh")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		online := state.Online()
		if refresh {
			online = state.Check(r.Context())
		}
		responses.WriteSuccess(w, map[string]bool{"online": online})
	}
}

// TestCollector pings the configured webhook with a test document.
func TestCollector(tester ConnectionTester, webhookURL string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, tester.TestConnection(r.Context(), webhookURL))
	}
}
