package controllers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/angelmondragon/fieldreport/api/responses"
	"github.com/angelmondragon/fieldreport/api/validators"
	"github.com/angelmondragon/fieldreport/internal/submission"
	"github.com/angelmondragon/fieldreport/pkg/enums"
	pkgerrors "github.com/angelmondragon/fieldreport/pkg/errors"
	"github.com/angelmondragon/fieldreport/pkg/logger"
)

type Submitter interface {
	Submit(ctx context.Context, params submission.SubmitParams) (submission.Result, error)
}

type submitRequest struct {
	Endpoint string          `json:"endpoint" validate:"required,httpurl"`
	Payload  json.RawMessage `json:"payload" validate:"required"`
	Method   string          `json:"method" validate:"omitempty,oneof=POST PUT post put"`
}

// Submit accepts one form submission. 201 means the collector took it now,
// 202 means it was saved and will be delivered later.
func Submit(svc Submitter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "submission service unavailable"))
			return
		}

		var req submitRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Submit(r.Context(), submission.SubmitParams{
			Endpoint: req.Endpoint,
			Payload:  req.Payload,
			Method:   enums.HTTPMethod(req.Method),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status := http.StatusCreated
		if result.Queued {
			status = http.StatusAccepted
		}
		responses.WriteSuccessStatus(w, status, result)
	}
}
