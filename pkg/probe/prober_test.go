package probe

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type roundTripFunc func(req *http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func TestProbeTreatsAnyResponseAsReachable(t *testing.T) {
	for _, status := range []int{http.StatusOK, http.StatusNotFound, http.StatusInternalServerError} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))
		p := NewProber(srv.URL, time.Second)
		if !p.Probe(context.Background()) {
			t.Fatalf("status %d should count as reachable", status)
		}
		srv.Close()
	}
}

func TestProbeTransportErrorIsUnreachable(t *testing.T) {
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return nil, errors.New("no route to host")
	})
	p := NewProber("http://collector.test/ping", time.Second, WithHTTPClient(&http.Client{Transport: rt}))
	if p.Probe(context.Background()) {
		t.Fatal("transport errors must be unreachable")
	}
}

func TestProbeTimesOutWithinBudget(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	p := NewProber(srv.URL, 50*time.Millisecond)
	start := time.Now()
	if p.Probe(context.Background()) {
		t.Fatal("a hung collector must be unreachable")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("probe exceeded its budget: %v", elapsed)
	}
}

func TestProbeWithoutURL(t *testing.T) {
	if NewProber("", 0).Probe(context.Background()) {
		t.Fatal("no url means unreachable")
	}
	if NewProber("", 0).Timeout() != defaultTimeout {
		t.Fatal("expected default timeout")
	}
}
