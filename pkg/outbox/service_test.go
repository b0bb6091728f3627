package outbox_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/fieldreport/pkg/enums"
	pkgerrors "github.com/angelmondragon/fieldreport/pkg/errors"
	"github.com/angelmondragon/fieldreport/pkg/outbox"
	"github.com/angelmondragon/fieldreport/pkg/outbox/outboxtest"
)

func enqueueParams() outbox.EnqueueParams {
	return outbox.EnqueueParams{
		LocalID:  uuid.NewString(),
		Endpoint: "https://collector.example.com/reports",
		Method:   enums.HTTPMethodPost,
		Payload:  json.RawMessage(`{"project":"north-yard"}`),
	}
}

func TestServiceEnqueueValidates(t *testing.T) {
	svc, _ := outboxtest.NewService(t)
	ctx := context.Background()

	cases := map[string]func(p *outbox.EnqueueParams){
		"missing id":       func(p *outbox.EnqueueParams) { p.LocalID = "" },
		"bad method":       func(p *outbox.EnqueueParams) { p.Method = "DELETE" },
		"relative url":     func(p *outbox.EnqueueParams) { p.Endpoint = "/reports" },
		"ftp url":          func(p *outbox.EnqueueParams) { p.Endpoint = "ftp://example.com/x" },
		"array payload":    func(p *outbox.EnqueueParams) { p.Payload = json.RawMessage(`[1,2]`) },
		"malformed object": func(p *outbox.EnqueueParams) { p.Payload = json.RawMessage(`{"a":`) },
	}
	for name, mutate := range cases {
		params := enqueueParams()
		mutate(&params)
		_, err := svc.Enqueue(ctx, params)
		if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
			t.Fatalf("%s: expected validation error, got %v", name, err)
		}
	}
}

func TestServiceEnqueueThenCount(t *testing.T) {
	svc, _ := outboxtest.NewService(t)
	ctx := context.Background()

	params := enqueueParams()
	params.Timestamp = time.UnixMilli(1700000000123)
	id, err := svc.Enqueue(ctx, params)
	require.NoError(t, err)
	require.Equal(t, params.LocalID, id)

	count, err := svc.PendingCount(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)

	entries, err := svc.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, int64(1700000000123), entries[0].Timestamp)
	require.Equal(t, enums.OutboxStatusPending, entries[0].Status)
}

func TestServiceHappyLifecycleDeletesEntry(t *testing.T) {
	svc, _ := outboxtest.NewService(t)
	ctx := context.Background()

	id, err := svc.Enqueue(ctx, enqueueParams())
	require.NoError(t, err)
	require.NoError(t, svc.MarkSyncing(ctx, id))

	got, err := svc.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, enums.OutboxStatusSyncing, got.Status)

	require.NoError(t, svc.MarkSuccess(ctx, id))
	_, err = svc.Get(ctx, id)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	count, err := svc.PendingCount(ctx)
	require.NoError(t, err)
	require.Zero(t, count)

	// a late duplicate confirmation only reports the entry is gone
	err = svc.MarkSuccess(ctx, id)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestServiceFailureIncrementsRetryCount(t *testing.T) {
	svc, _ := outboxtest.NewService(t)
	ctx := context.Background()

	id, err := svc.Enqueue(ctx, enqueueParams())
	require.NoError(t, err)

	for attempt := 1; attempt <= 3; attempt++ {
		if attempt > 1 {
			require.NoError(t, svc.Requeue(ctx, id))
		}
		require.NoError(t, svc.MarkSyncing(ctx, id))
		require.NoError(t, svc.MarkFailed(ctx, id, errors.New("HTTP 503: Service Unavailable")))

		got, err := svc.Get(ctx, id)
		require.NoError(t, err)
		require.Equal(t, enums.OutboxStatusFailed, got.Status)
		require.Equal(t, attempt, got.RetryCount)
		require.NotNil(t, got.Error)
		require.Equal(t, "HTTP 503: Service Unavailable", *got.Error)
	}

	// failed entries are still undelivered
	entries, err := svc.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestServiceMarkSyncingRejectsDoubleClaim(t *testing.T) {
	svc, _ := outboxtest.NewService(t)
	ctx := context.Background()

	id, err := svc.Enqueue(ctx, enqueueParams())
	require.NoError(t, err)
	require.NoError(t, svc.MarkSyncing(ctx, id))

	err = svc.MarkSyncing(ctx, id)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict), "got %v", err)

	err = svc.MarkSyncing(ctx, uuid.NewString())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound), "got %v", err)
}

func TestServiceMarkFailedRequiresSyncing(t *testing.T) {
	svc, _ := outboxtest.NewService(t)
	ctx := context.Background()

	id, err := svc.Enqueue(ctx, enqueueParams())
	require.NoError(t, err)
	err = svc.MarkFailed(ctx, id, errors.New("boom"))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict), "got %v", err)
}

func TestServicePurge(t *testing.T) {
	svc, _ := outboxtest.NewService(t)
	ctx := context.Background()

	keep, err := svc.Enqueue(ctx, enqueueParams())
	require.NoError(t, err)
	drop, err := svc.Enqueue(ctx, enqueueParams())
	require.NoError(t, err)

	require.NoError(t, svc.MarkSyncing(ctx, keep))
	err = svc.Purge(ctx, keep)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict), "syncing entries cannot be purged, got %v", err)

	require.NoError(t, svc.Purge(ctx, drop))
	err = svc.Purge(ctx, drop)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestServiceRequeueStale(t *testing.T) {
	svc, _ := outboxtest.NewService(t)
	ctx := context.Background()

	id, err := svc.Enqueue(ctx, enqueueParams())
	require.NoError(t, err)
	require.NoError(t, svc.MarkSyncing(ctx, id))

	n, err := svc.RequeueStale(ctx, time.Hour)
	require.NoError(t, err)
	require.Zero(t, n)

	n, err = svc.RequeueStale(ctx, -time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	got, err := svc.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, enums.OutboxStatusPending, got.Status)
}

func TestServicePruneDelivered(t *testing.T) {
	svc, repo := outboxtest.NewService(t)
	ctx := context.Background()

	entry := newEntry(1)
	entry.Status = enums.OutboxStatusSuccess
	require.NoError(t, repo.Put(ctx, entry))

	n, err := svc.PruneDelivered(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}
