package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/fieldreport/api/middleware"
	"github.com/angelmondragon/fieldreport/api/responses"
	"github.com/angelmondragon/fieldreport/api/validators"
	"github.com/angelmondragon/fieldreport/internal/reports"
	"github.com/angelmondragon/fieldreport/pkg/collector"
	pkgerrors "github.com/angelmondragon/fieldreport/pkg/errors"
	"github.com/angelmondragon/fieldreport/pkg/logger"
)

// CollectorReceiver names this receiver in the delivered-id store.
const CollectorReceiver = "collector"

const maxReportBytes = 32 << 20

type DeliveryDeduper interface {
	CheckAndMarkDelivered(ctx context.Context, receiver string, localID uuid.UUID) (bool, error)
	Forget(ctx context.Context, receiver string, localID uuid.UUID) error
}

// ReportSink is where the collector hands accepted reports.
type ReportSink interface {
	Accept(ctx context.Context, localID uuid.UUID, kind string, payload json.RawMessage) error
}

type receiveResponse struct {
	LocalID   string `json:"localId"`
	Duplicate bool   `json:"duplicate"`
}

// ReceiveReport accepts a delivery from the sync pipeline. A repeated localId
// is acknowledged without reaching the sink again.
func ReceiveReport(dedupe DeliveryDeduper, sink ReportSink, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(io.LimitReader(r.Body, maxReportBytes))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read report"))
			return
		}

		var envelope struct {
			LocalID string `json:"localId"`
		}
		if err := json.Unmarshal(raw, &envelope); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "report must be a JSON object"))
			return
		}

		localID := firstNonEmpty(
			envelope.LocalID,
			r.Header.Get(collector.IdempotencyKeyHeader),
			middleware.DeliveryIDFromContext(r.Context()),
		)
		id, err := uuid.Parse(localID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "localId must be a uuid"))
			return
		}
		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithLocalID(ctx, id.String())
		}

		duplicate, err := dedupe.CheckAndMarkDelivered(ctx, CollectorReceiver, id)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check delivered reports"))
			return
		}
		if duplicate {
			if logg != nil {
				logg.Info(ctx, "duplicate report acknowledged")
			}
			responses.WriteSuccess(w, receiveResponse{LocalID: id.String(), Duplicate: true})
			return
		}

		kind := strings.TrimSpace(r.URL.Query().Get("kind"))
		if kind == "" {
			kind = "form"
		}
		if err := sink.Accept(ctx, id, kind, raw); err != nil {
			if forgetErr := dedupe.Forget(ctx, CollectorReceiver, id); forgetErr != nil && logg != nil {
				logg.Error(ctx, "forget delivered report", forgetErr)
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if logg != nil {
			logg.Info(ctx, "report received")
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, receiveResponse{LocalID: id.String()})
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

type ReportLister interface {
	Recent(ctx context.Context, limit int) ([]reports.Report, error)
}

// ListReports shows what the collector received most recently.
func ListReports(svc ReportLister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, 500)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		items, err := svc.Recent(r.Context(), limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"items": items})
	}
}
