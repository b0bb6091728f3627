package submission

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/fieldreport/pkg/enums"
	pkgerrors "github.com/angelmondragon/fieldreport/pkg/errors"
)

// Document is a file attached to a project.
type Document struct {
	Filename    string
	ProjectName string
	Type        enums.DocumentType
	Data        []byte
	Metadata    map[string]any
}

// DocumentResult pairs a document with its outcome.
type DocumentResult struct {
	Filename string `json:"filename"`
	Result
	Error string `json:"error,omitempty"`
}

// BatchResult summarizes a multi-document upload. A document counts as
// succeeded when it was delivered or saved for later delivery.
type BatchResult struct {
	Succeeded int              `json:"succeeded"`
	Results   []DocumentResult `json:"results"`
}

// UploadDocument sends one document to the documents webhook.
func (s *Service) UploadDocument(ctx context.Context, doc Document) (Result, error) {
	if strings.TrimSpace(s.documentsURL) == "" {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "documents webhook url is not configured")
	}
	payload, err := s.documentPayload(doc)
	if err != nil {
		return Result{}, err
	}
	return s.Submit(ctx, SubmitParams{
		Endpoint: s.documentsURL,
		Payload:  payload,
		Method:   enums.HTTPMethodPost,
	})
}

// UploadDocuments uploads docs in fixed-size batches with a pause between
// batches. At most batchSize deliveries are in flight. When ctx ends between
// batches the results of the finished batches come back with ctx.Err().
func (s *Service) UploadDocuments(ctx context.Context, docs []Document) (BatchResult, error) {
	if strings.TrimSpace(s.documentsURL) == "" {
		return BatchResult{}, pkgerrors.New(pkgerrors.CodeValidation, "documents webhook url is not configured")
	}
	results := make([]DocumentResult, len(docs))

	for start := 0; start < len(docs); start += s.batchSize {
		if start > 0 {
			select {
			case <-ctx.Done():
				return summarize(results[:start]), ctx.Err()
			case <-time.After(s.batchPause):
			}
		}
		end := min(start+s.batchSize, len(docs))

		var g errgroup.Group
		g.SetLimit(s.batchSize)
		for i := start; i < end; i++ {
			g.Go(func() error {
				res, err := s.UploadDocument(ctx, docs[i])
				results[i] = DocumentResult{Filename: docs[i].Filename, Result: res}
				if err != nil {
					results[i].Error = err.Error()
				}
				return nil
			})
		}
		_ = g.Wait()
	}

	return summarize(results), nil
}

func summarize(results []DocumentResult) BatchResult {
	out := BatchResult{Results: results}
	for _, r := range results {
		if r.Error == "" && (r.Success || r.Queued) {
			out.Succeeded++
		}
	}
	return out
}

// documentPayload builds {filename, projectName, type, size, timestamp, data}
// and then lays metadata over it.
func (s *Service) documentPayload(doc Document) (json.RawMessage, error) {
	if strings.TrimSpace(doc.Filename) == "" {
		return nil, invalidPayload("filename is required")
	}
	if strings.TrimSpace(doc.ProjectName) == "" {
		return nil, invalidPayload("projectName is required")
	}
	if !doc.Type.IsValid() {
		return nil, invalidPayload("unsupported document type %q", doc.Type)
	}
	if len(doc.Data) == 0 {
		return nil, invalidPayload("document %s is empty", doc.Filename)
	}

	fields := map[string]any{
		"filename":    doc.Filename,
		"projectName": doc.ProjectName,
		"type":        doc.Type,
		"size":        len(doc.Data),
		"timestamp":   s.now().UTC().Format(time.RFC3339),
		"data":        base64.StdEncoding.EncodeToString(doc.Data),
	}
	for k, v := range doc.Metadata {
		fields[k] = v
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "encode document payload")
	}
	return raw, nil
}
