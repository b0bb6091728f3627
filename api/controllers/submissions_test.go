package controllers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/angelmondragon/fieldreport/internal/submission"
	"github.com/angelmondragon/fieldreport/pkg/enums"
)

type fakeSubmitter struct {
	params []submission.SubmitParams
	result submission.Result
	err    error
}

func (f *fakeSubmitter) Submit(_ context.Context, params submission.SubmitParams) (submission.Result, error) {
	f.params = append(f.params, params)
	return f.result, f.err
}

type fakeUploader struct {
	docs   []submission.Document
	result submission.BatchResult
}

func (f *fakeUploader) UploadDocuments(_ context.Context, docs []submission.Document) (submission.BatchResult, error) {
	f.docs = docs
	return f.result, nil
}

func TestSubmitDeliveredReturnsCreated(t *testing.T) {
	svc := &fakeSubmitter{result: submission.Result{Success: true, LocalID: "id-1"}}
	body := `{"endpoint":"https://forms.example.com/submit","payload":{"crew":"north"},"method":"put"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/submissions", strings.NewReader(body))
	resp := httptest.NewRecorder()
	Submit(svc, testLogger())(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	if len(svc.params) != 1 {
		t.Fatalf("expected one submit, got %d", len(svc.params))
	}
	got := svc.params[0]
	if got.Endpoint != "https://forms.example.com/submit" || got.Method != enums.HTTPMethod("put") {
		t.Fatalf("unexpected params %+v", got)
	}
	if string(got.Payload) != `{"crew":"north"}` {
		t.Fatalf("unexpected payload %s", got.Payload)
	}
}

func TestSubmitQueuedReturnsAccepted(t *testing.T) {
	svc := &fakeSubmitter{result: submission.Result{Success: true, LocalID: "id-2", Queued: true}}
	body := `{"endpoint":"https://forms.example.com/submit","payload":{}}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/submissions", strings.NewReader(body))
	resp := httptest.NewRecorder()
	Submit(svc, testLogger())(resp, req)

	if resp.Code != http.StatusAccepted {
		t.Fatalf("expected 202 got %d", resp.Code)
	}
	var envelope struct {
		Data submission.Result `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if !envelope.Data.Queued || envelope.Data.LocalID != "id-2" {
		t.Fatalf("unexpected result %+v", envelope.Data)
	}
}

func TestSubmitValidation(t *testing.T) {
	cases := map[string]string{
		"missing endpoint": `{"payload":{}}`,
		"bad method":       `{"endpoint":"https://forms.example.com","payload":{},"method":"PATCH"}`,
		"missing payload":  `{"endpoint":"https://forms.example.com"}`,
	}
	for name, body := range cases {
		svc := &fakeSubmitter{}
		req := httptest.NewRequest(http.MethodPost, "/api/v1/submissions", strings.NewReader(body))
		resp := httptest.NewRecorder()
		Submit(svc, testLogger())(resp, req)
		if resp.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400 got %d", name, resp.Code)
		}
		if len(svc.params) != 0 {
			t.Fatalf("%s: service should not be called", name)
		}
	}
}

func TestUploadDocumentsDecodesData(t *testing.T) {
	svc := &fakeUploader{result: submission.BatchResult{Succeeded: 1}}
	data := base64.StdEncoding.EncodeToString([]byte("%PDF-1.7"))
	body := `{"documents":[{"filename":"../site/report.pdf","projectName":"Bridge","type":"PDF","data":"` + data + `","metadata":{"crew":"north"}}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", strings.NewReader(body))
	resp := httptest.NewRecorder()
	UploadDocuments(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if len(svc.docs) != 1 {
		t.Fatalf("expected one document, got %d", len(svc.docs))
	}
	doc := svc.docs[0]
	if doc.Filename != "report.pdf" || doc.Type != enums.DocumentTypePDF || string(doc.Data) != "%PDF-1.7" {
		t.Fatalf("unexpected document %+v", doc)
	}
	if doc.Metadata["crew"] != "north" {
		t.Fatalf("metadata not passed through: %+v", doc.Metadata)
	}
}

func TestUploadDocumentsRejectsUnknownType(t *testing.T) {
	svc := &fakeUploader{}
	body := `{"documents":[{"filename":"a.txt","type":"txt","data":"aGk="}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", strings.NewReader(body))
	resp := httptest.NewRecorder()
	UploadDocuments(svc, testLogger())(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if svc.docs != nil {
		t.Fatal("service should not be called")
	}
}

func TestUploadDocumentsRequiresDocuments(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", strings.NewReader(`{"documents":[]}`))
	resp := httptest.NewRecorder()
	UploadDocuments(&fakeUploader{}, testLogger())(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}
