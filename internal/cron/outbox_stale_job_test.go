package cron

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestOutboxStaleJobUsesDefaultLease(t *testing.T) {
	outbox := &fakeOutbox{}
	job, err := NewOutboxStaleJob(OutboxStaleJobParams{Logger: testLogger(), Outbox: outbox})
	if err != nil {
		t.Fatalf("NewOutboxStaleJob: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outbox.staleAfter != defaultStaleAfter {
		t.Fatalf("expected %s, got %s", defaultStaleAfter, outbox.staleAfter)
	}
}

func TestOutboxStaleJobCustomLease(t *testing.T) {
	outbox := &fakeOutbox{}
	job, _ := NewOutboxStaleJob(OutboxStaleJobParams{Logger: testLogger(), Outbox: outbox, StaleAfter: 30 * time.Second})
	_ = job.Run(context.Background())
	if outbox.staleAfter != 30*time.Second {
		t.Fatalf("unexpected lease %s", outbox.staleAfter)
	}
}

func TestOutboxStaleJobPropagatesError(t *testing.T) {
	job, _ := NewOutboxStaleJob(OutboxStaleJobParams{Logger: testLogger(), Outbox: &fakeOutbox{err: errors.New("locked")}})
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
