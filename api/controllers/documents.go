package controllers

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"

	"github.com/angelmondragon/fieldreport/api/responses"
	"github.com/angelmondragon/fieldreport/api/validators"
	"github.com/angelmondragon/fieldreport/internal/submission"
	"github.com/angelmondragon/fieldreport/pkg/enums"
	pkgerrors "github.com/angelmondragon/fieldreport/pkg/errors"
	"github.com/angelmondragon/fieldreport/pkg/logger"
)

const (
	maxDocumentsPerRequest = 50
	maxFilenameLength      = 255
)

type DocumentUploader interface {
	UploadDocuments(ctx context.Context, docs []submission.Document) (submission.BatchResult, error)
}

type documentInput struct {
	Filename    string         `json:"filename" validate:"required,max=255"`
	ProjectName string         `json:"projectName" validate:"max=255"`
	Type        string         `json:"type" validate:"required"`
	Data        string         `json:"data" validate:"required,base64"`
	Metadata    map[string]any `json:"metadata"`
}

type uploadDocumentsRequest struct {
	Documents []documentInput `json:"documents" validate:"required,min=1,max=50,dive"`
}

// UploadDocuments accepts a batch of rendered reports, base64 encoded.
func UploadDocuments(svc DocumentUploader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "submission service unavailable"))
			return
		}

		var req uploadDocumentsRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		docs := make([]submission.Document, 0, len(req.Documents))
		for i, in := range req.Documents {
			doc, err := toDocument(in)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid document").
					WithDetails(map[string]any{"index": i}))
				return
			}
			docs = append(docs, doc)
		}

		result, err := svc.UploadDocuments(r.Context(), docs)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func toDocument(in documentInput) (submission.Document, error) {
	docType, err := enums.ParseDocumentType(in.Type)
	if err != nil {
		return submission.Document{}, err
	}
	data, err := base64.StdEncoding.DecodeString(in.Data)
	if err != nil {
		return submission.Document{}, fmt.Errorf("decode data: %w", err)
	}
	name := validators.SanitizeFilename(in.Filename, maxFilenameLength)
	if name == "" {
		return submission.Document{}, fmt.Errorf("filename %q is not usable", in.Filename)
	}
	return submission.Document{
		Filename:    name,
		ProjectName: validators.SanitizeString(in.ProjectName, maxFilenameLength),
		Type:        docType,
		Data:        data,
		Metadata:    in.Metadata,
	}, nil
}
