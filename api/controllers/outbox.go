package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/fieldreport/api/responses"
	"github.com/angelmondragon/fieldreport/internal/syncer"
	pkgerrors "github.com/angelmondragon/fieldreport/pkg/errors"
	"github.com/angelmondragon/fieldreport/pkg/logger"
	"github.com/angelmondragon/fieldreport/pkg/outbox"
)

type OutboxReader interface {
	ListPending(ctx context.Context) ([]outbox.Entry, error)
	PendingCount(ctx context.Context) (int64, error)
	Purge(ctx context.Context, localID string) error
}

type Retrier interface {
	Retry(ctx context.Context) (syncer.PassResult, error)
}

type outboxListResponse struct {
	Items        []outbox.Entry `json:"items"`
	PendingCount int64          `json:"pendingCount"`
}

// ListOutbox returns every entry still waiting for delivery, oldest first.
func ListOutbox(svc OutboxReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := svc.ListPending(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		count, err := svc.PendingCount(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if entries == nil {
			entries = []outbox.Entry{}
		}
		responses.WriteSuccess(w, outboxListResponse{Items: entries, PendingCount: count})
	}
}

// RetryOutbox runs a manual sync pass and reports what it did.
func RetryOutbox(svc Retrier, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := svc.Retry(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// DeleteOutboxEntry drops one queued submission without delivering it.
func DeleteOutboxEntry(svc OutboxReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		localID := strings.TrimSpace(chi.URLParam(r, "localId"))
		if localID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "localId is required"))
			return
		}
		if err := svc.Purge(r.Context(), localID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"localId": localID, "status": "deleted"})
	}
}
