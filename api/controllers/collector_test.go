package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/fieldreport/internal/reports"
)

type fakeDeduper struct {
	seen      map[uuid.UUID]bool
	forgotten []uuid.UUID
}

func newFakeDeduper() *fakeDeduper {
	return &fakeDeduper{seen: map[uuid.UUID]bool{}}
}

func (f *fakeDeduper) CheckAndMarkDelivered(_ context.Context, receiver string, id uuid.UUID) (bool, error) {
	if receiver != CollectorReceiver {
		return false, errors.New("unexpected receiver " + receiver)
	}
	if f.seen[id] {
		return true, nil
	}
	f.seen[id] = true
	return false, nil
}

func (f *fakeDeduper) Forget(_ context.Context, _ string, id uuid.UUID) error {
	delete(f.seen, id)
	f.forgotten = append(f.forgotten, id)
	return nil
}

type fakeSink struct {
	accepted []uuid.UUID
	kinds    []string
	err      error
}

func (f *fakeSink) Accept(_ context.Context, id uuid.UUID, kind string, _ json.RawMessage) error {
	if f.err != nil {
		return f.err
	}
	f.accepted = append(f.accepted, id)
	f.kinds = append(f.kinds, kind)
	return nil
}

func (f *fakeSink) Recent(context.Context, int) ([]reports.Report, error) {
	out := make([]reports.Report, 0, len(f.accepted))
	for i, id := range f.accepted {
		out = append(out, reports.Report{LocalID: id.String(), Kind: f.kinds[i]})
	}
	return out, nil
}

func receive(t *testing.T, handler http.HandlerFunc, target, body string, headers map[string]string) (*httptest.ResponseRecorder, receiveResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp := httptest.NewRecorder()
	handler(resp, req)
	var envelope struct {
		Data receiveResponse `json:"data"`
	}
	_ = json.Unmarshal(resp.Body.Bytes(), &envelope)
	return resp, envelope.Data
}

func TestReceiveReportDedupes(t *testing.T) {
	dedupe := newFakeDeduper()
	sink := &fakeSink{}
	handler := ReceiveReport(dedupe, sink, testLogger())
	id := uuid.New()
	body := `{"localId":"` + id.String() + `","crew":"north"}`

	resp, data := receive(t, handler, "/collect/report", body, nil)
	if resp.Code != http.StatusCreated || data.Duplicate {
		t.Fatalf("first delivery: status %d body %+v", resp.Code, data)
	}

	resp, data = receive(t, handler, "/collect/report", body, nil)
	if resp.Code != http.StatusOK || !data.Duplicate || data.LocalID != id.String() {
		t.Fatalf("redelivery: status %d body %+v", resp.Code, data)
	}
	if len(sink.accepted) != 1 {
		t.Fatalf("sink should see one report, got %d", len(sink.accepted))
	}
	if sink.kinds[0] != "form" {
		t.Fatalf("unexpected default kind %q", sink.kinds[0])
	}
}

func TestReceiveReportFallsBackToHeader(t *testing.T) {
	sink := &fakeSink{}
	handler := ReceiveReport(newFakeDeduper(), sink, testLogger())
	id := uuid.New()

	resp, data := receive(t, handler, "/collect/report?kind=document", `{"filename":"a.pdf"}`, map[string]string{"Idempotency-Key": id.String()})
	if resp.Code != http.StatusCreated || data.LocalID != id.String() {
		t.Fatalf("status %d body %+v", resp.Code, data)
	}
	if sink.kinds[0] != "document" {
		t.Fatalf("unexpected kind %q", sink.kinds[0])
	}
}

func TestReceiveReportRejectsMissingID(t *testing.T) {
	resp, _ := receive(t, ReceiveReport(newFakeDeduper(), &fakeSink{}, testLogger()), "/collect/report", `{"crew":"north"}`, nil)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	resp, _ = receive(t, ReceiveReport(newFakeDeduper(), &fakeSink{}, testLogger()), "/collect/report", `[1,2]`, nil)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-object got %d", resp.Code)
	}
}

func TestReceiveReportForgetsOnSinkFailure(t *testing.T) {
	dedupe := newFakeDeduper()
	sink := &fakeSink{err: errors.New("disk full")}
	handler := ReceiveReport(dedupe, sink, testLogger())
	id := uuid.New()
	body := `{"localId":"` + id.String() + `"}`

	resp, _ := receive(t, handler, "/collect/report", body, nil)
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", resp.Code)
	}
	if len(dedupe.forgotten) != 1 || dedupe.forgotten[0] != id {
		t.Fatalf("expected mark to be forgotten, got %v", dedupe.forgotten)
	}

	sink.err = nil
	resp, data := receive(t, handler, "/collect/report", body, nil)
	if resp.Code != http.StatusCreated || data.Duplicate {
		t.Fatalf("redelivery after failure: status %d body %+v", resp.Code, data)
	}
}

func TestListReports(t *testing.T) {
	sink := &fakeSink{accepted: []uuid.UUID{uuid.New()}, kinds: []string{"form"}}
	resp := httptest.NewRecorder()
	ListReports(sink, testLogger())(resp, httptest.NewRequest(http.MethodGet, "/collect/reports?limit=10", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	var envelope struct {
		Data struct {
			Items []reports.Report `json:"items"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(envelope.Data.Items) != 1 {
		t.Fatalf("unexpected items %+v", envelope.Data.Items)
	}
}
