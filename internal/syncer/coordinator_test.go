package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/fieldreport/internal/notifications"
	"github.com/angelmondragon/fieldreport/pkg/broadcast"
	"github.com/angelmondragon/fieldreport/pkg/collector"
	"github.com/angelmondragon/fieldreport/pkg/enums"
	pkgerrors "github.com/angelmondragon/fieldreport/pkg/errors"
	"github.com/angelmondragon/fieldreport/pkg/logger"
	"github.com/angelmondragon/fieldreport/pkg/outbox"
	"github.com/angelmondragon/fieldreport/pkg/outbox/outboxtest"
)

type staticChecker struct {
	mu     sync.Mutex
	online bool
}

func (c *staticChecker) Probe(context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.online
}

type fakeDeliverer struct {
	mu          sync.Mutex
	fail        func(req collector.Request) error
	delay       time.Duration
	calls       []string
	perID       map[string]int
	inFlight    int
	maxInFlight int
}

func (f *fakeDeliverer) Deliver(ctx context.Context, req collector.Request) (*collector.Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req.LocalID)
	if f.perID == nil {
		f.perID = map[string]int{}
	}
	f.perID[req.LocalID]++
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()

	if f.fail != nil {
		if err := f.fail(req); err != nil {
			return nil, err
		}
	}
	return &collector.Response{StatusCode: 200}, nil
}

type recordingNotifier struct {
	mu    sync.Mutex
	kinds []enums.NotificationKind
	msgs  []string
}

func (r *recordingNotifier) Notify(_ context.Context, kind enums.NotificationKind, localID, message string) notifications.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds = append(r.kinds, kind)
	r.msgs = append(r.msgs, message)
	return notifications.Notification{Kind: kind, LocalID: localID, Message: message}
}

func (r *recordingNotifier) has(kind enums.NotificationKind) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range r.kinds {
		if k == kind {
			return true
		}
	}
	return false
}

type fakeDrainer struct {
	scheduleErr  error
	immediateErr error
	scheduled    int
	immediate    int
}

func (f *fakeDrainer) ScheduleBackgroundDrain(context.Context, string) error {
	f.scheduled++
	return f.scheduleErr
}

func (f *fakeDrainer) RequestImmediateDrain(context.Context) error {
	f.immediate++
	return f.immediateErr
}

type harness struct {
	svc       *outbox.Service
	checker   *staticChecker
	deliverer *fakeDeliverer
	notifier  *recordingNotifier
	coord     *Coordinator
}

func newHarness(t *testing.T, mutate func(*Params)) *harness {
	t.Helper()
	svc, _ := outboxtest.NewService(t)
	h := &harness{
		svc:       svc,
		checker:   &staticChecker{online: true},
		deliverer: &fakeDeliverer{},
		notifier:  &recordingNotifier{},
	}
	params := Params{
		Outbox:    svc,
		Deliverer: h.deliverer,
		Checker:   h.checker,
		Notifier:  h.notifier,
		Logger:    logger.Nop(),
	}
	if mutate != nil {
		mutate(&params)
	}
	coord, err := NewCoordinator(params)
	require.NoError(t, err)
	h.coord = coord
	return h
}

func (h *harness) enqueue(t *testing.T, ts int64) string {
	t.Helper()
	id := uuid.NewString()
	_, err := h.svc.Enqueue(context.Background(), outbox.EnqueueParams{
		LocalID:   id,
		Endpoint:  "https://collector.example.com/reports",
		Method:    enums.HTTPMethodPost,
		Payload:   json.RawMessage(`{"localId":"` + id + `","crew":"north"}`),
		Timestamp: time.UnixMilli(ts),
	})
	require.NoError(t, err)
	return id
}

func TestRunPassDeliversAndRemovesEntries(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	first := h.enqueue(t, 1000)
	second := h.enqueue(t, 2000)

	result, err := h.coord.RunPass(ctx, enums.SyncTriggerConnectivity)
	require.NoError(t, err)
	require.Equal(t, 2, result.Attempted)
	require.Equal(t, 2, result.Delivered)

	count, err := h.svc.PendingCount(ctx)
	require.NoError(t, err)
	require.Zero(t, count)
	require.ElementsMatch(t, []string{first, second}, h.deliverer.calls)
	require.True(t, h.notifier.has(enums.NotificationSyncStarted))
	require.True(t, h.notifier.has(enums.NotificationDelivered))

	again, err := h.coord.RunPass(ctx, enums.SyncTriggerPeriodic)
	require.NoError(t, err)
	require.Zero(t, again.Attempted)
	require.Len(t, h.deliverer.calls, 2)
}

func TestRunPassDispatchesInInsertionOrder(t *testing.T) {
	h := newHarness(t, func(p *Params) { p.Concurrency = 1 })
	late := h.enqueue(t, 3000)
	early := h.enqueue(t, 1000)
	middle := h.enqueue(t, 2000)

	_, err := h.coord.RunPass(context.Background(), enums.SyncTriggerPeriodic)
	require.NoError(t, err)
	require.Equal(t, []string{early, middle, late}, h.deliverer.calls)
}

func TestRunPassOfflineAttemptsNothing(t *testing.T) {
	h := newHarness(t, nil)
	h.checker.online = false
	h.enqueue(t, 1000)

	result, err := h.coord.RunPass(context.Background(), enums.SyncTriggerPeriodic)
	require.NoError(t, err)
	require.True(t, result.Offline)
	require.Empty(t, h.deliverer.calls)
}

func TestRunPassFailureKeepsEntryAndCountsRetries(t *testing.T) {
	h := newHarness(t, nil)
	h.deliverer.fail = func(collector.Request) error { return collector.Rejected(500, nil) }
	ctx := context.Background()
	id := h.enqueue(t, 1000)

	result, err := h.coord.RunPass(ctx, enums.SyncTriggerPeriodic)
	require.NoError(t, err)
	require.Equal(t, 1, result.Failed)

	entry, err := h.svc.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, enums.OutboxStatusFailed, entry.Status)
	require.Equal(t, 1, entry.RetryCount)
	require.NotNil(t, entry.Error)
	require.Equal(t, "HTTP 500: Internal Server Error", *entry.Error)
	require.True(t, h.notifier.has(enums.NotificationSyncFailed))

	_, err = h.coord.RunPass(ctx, enums.SyncTriggerPeriodic)
	require.NoError(t, err)
	entry, err = h.svc.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, 2, entry.RetryCount)

	h.deliverer.fail = nil
	_, err = h.coord.RunPass(ctx, enums.SyncTriggerPeriodic)
	require.NoError(t, err)
	_, err = h.svc.Get(ctx, id)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestRunPassSkipsEntriesAlreadySyncing(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	claimed := h.enqueue(t, 1000)
	free := h.enqueue(t, 2000)
	require.NoError(t, h.svc.MarkSyncing(ctx, claimed))

	result, err := h.coord.RunPass(ctx, enums.SyncTriggerPeriodic)
	require.NoError(t, err)
	require.Equal(t, 1, result.Skipped)
	require.Equal(t, []string{free}, h.deliverer.calls)
}

func TestRunPassBoundsConcurrency(t *testing.T) {
	h := newHarness(t, func(p *Params) { p.Concurrency = 2 })
	h.deliverer.delay = 20 * time.Millisecond
	for i := 0; i < 5; i++ {
		h.enqueue(t, int64(1000+i))
	}

	result, err := h.coord.RunPass(context.Background(), enums.SyncTriggerPeriodic)
	require.NoError(t, err)
	require.Equal(t, 5, result.Delivered)
	require.LessOrEqual(t, h.deliverer.maxInFlight, 2)
}

func TestParallelPassesNeverDeliverTwice(t *testing.T) {
	h := newHarness(t, nil)
	h.deliverer.delay = 5 * time.Millisecond
	other, err := NewCoordinator(Params{
		Outbox:    h.svc,
		Deliverer: h.deliverer,
		Checker:   h.checker,
		Logger:    logger.Nop(),
	})
	require.NoError(t, err)

	ids := make([]string, 0, 6)
	for i := 0; i < 6; i++ {
		ids = append(ids, h.enqueue(t, int64(1000+i)))
	}

	var wg sync.WaitGroup
	for _, c := range []*Coordinator{h.coord, other} {
		wg.Add(1)
		go func(c *Coordinator) {
			defer wg.Done()
			_, _ = c.RunPass(context.Background(), enums.SyncTriggerPeriodic)
		}(c)
	}
	wg.Wait()

	for _, id := range ids {
		require.Equal(t, 1, h.deliverer.perID[id], "entry %s", id)
	}
}

func TestMaxAttemptsOnlyLimitsAutomaticTriggers(t *testing.T) {
	h := newHarness(t, func(p *Params) { p.MaxAttempts = 1 })
	h.deliverer.fail = func(collector.Request) error { return errors.New("boom") }
	ctx := context.Background()
	id := h.enqueue(t, 1000)

	_, err := h.coord.RunPass(ctx, enums.SyncTriggerPeriodic)
	require.NoError(t, err)

	result, err := h.coord.RunPass(ctx, enums.SyncTriggerPeriodic)
	require.NoError(t, err)
	require.Zero(t, result.Attempted)
	require.Equal(t, 1, result.Skipped)

	h.deliverer.fail = nil
	manual, err := h.coord.Retry(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, manual.Delivered)
	_, err = h.svc.Get(ctx, id)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestRetryOfflineNotifiesAndAttemptsNothing(t *testing.T) {
	h := newHarness(t, nil)
	h.checker.online = false
	h.enqueue(t, 1000)

	result, err := h.coord.Retry(context.Background())
	require.ErrorIs(t, err, ErrOffline)
	require.True(t, result.Offline)
	require.Empty(t, h.deliverer.calls)
	require.True(t, h.notifier.has(enums.NotificationNoConnection))
}

func TestRequestSyncPrefersBackground(t *testing.T) {
	drainer := &fakeDrainer{}
	h := newHarness(t, func(p *Params) { p.Drainer = drainer })
	h.enqueue(t, 1000)

	require.NoError(t, h.coord.RequestSync(context.Background(), enums.SyncTriggerSubmission))
	require.Equal(t, 1, drainer.scheduled)
	require.Zero(t, drainer.immediate)
	require.Empty(t, h.deliverer.calls)
}

func TestRequestSyncFallsBackToImmediateThenInline(t *testing.T) {
	drainer := &fakeDrainer{scheduleErr: errors.New("no scheduler")}
	h := newHarness(t, func(p *Params) { p.Drainer = drainer })
	h.enqueue(t, 1000)

	require.NoError(t, h.coord.RequestSync(context.Background(), enums.SyncTriggerSubmission))
	require.Equal(t, 1, drainer.immediate)
	require.Empty(t, h.deliverer.calls)

	drainer.immediateErr = errors.New("no channel")
	require.NoError(t, h.coord.RequestSync(context.Background(), enums.SyncTriggerSubmission))
	require.Len(t, h.deliverer.calls, 1)
}

func TestConnectivityHooksNotify(t *testing.T) {
	h := newHarness(t, nil)
	h.enqueue(t, 1000)

	h.coord.ConnectivityLost(context.Background())
	require.True(t, h.notifier.has(enums.NotificationConnectionLost))

	h.coord.ConnectivityRestored(context.Background())
	require.True(t, h.notifier.has(enums.NotificationSyncRestored))
	require.Len(t, h.deliverer.calls, 1)
}

func TestHandleMessageReconcilesTolerantly(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	require.NoError(t, h.coord.HandleMessage(ctx, broadcast.Success(uuid.NewString())))
	require.True(t, h.notifier.has(enums.NotificationDelivered))

	id := h.enqueue(t, 1000)
	require.NoError(t, h.svc.MarkSyncing(ctx, id))
	require.NoError(t, h.coord.HandleMessage(ctx, broadcast.Failure(id, errors.New("HTTP 502: Bad Gateway"))))
	entry, err := h.svc.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, enums.OutboxStatusFailed, entry.Status)
	require.Equal(t, 1, entry.RetryCount)

	require.NoError(t, h.coord.HandleMessage(ctx, broadcast.Failure(id, errors.New("late duplicate"))))
	entry, err = h.svc.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, 1, entry.RetryCount)

	err = h.coord.HandleMessage(ctx, broadcast.Message{Type: "nope"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestHandleMessageIgnoresSuccessForRequeuedEntry(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	id := h.enqueue(t, 1000)

	require.NoError(t, h.coord.HandleMessage(ctx, broadcast.Success(id)))
	require.False(t, h.notifier.has(enums.NotificationDelivered))

	entry, err := h.svc.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, enums.OutboxStatusPending, entry.Status)
}

func TestRunPassRecordsOutcomeAfterCancel(t *testing.T) {
	h := newHarness(t, nil)
	delivered := h.enqueue(t, 1000)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.deliverer.fail = func(collector.Request) error {
		cancel()
		return nil
	}
	_, _ = h.coord.RunPass(ctx, enums.SyncTriggerManual)

	_, err := h.svc.Get(context.Background(), delivered)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound), "got %v", err)

	rejected := h.enqueue(t, 2000)
	ctx, cancel = context.WithCancel(context.Background())
	defer cancel()
	h.deliverer.fail = func(collector.Request) error {
		cancel()
		return collector.Rejected(503, nil)
	}
	_, _ = h.coord.RunPass(ctx, enums.SyncTriggerManual)

	entry, err := h.svc.Get(context.Background(), rejected)
	require.NoError(t, err)
	require.Equal(t, enums.OutboxStatusFailed, entry.Status)
	require.Equal(t, 1, entry.RetryCount)
}

func TestRunPassPublishesResults(t *testing.T) {
	bus := broadcast.NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	msgs, stop, _ := bus.Subscribe(ctx)
	defer stop()

	h := newHarness(t, func(p *Params) { p.Publisher = bus })
	id := h.enqueue(t, 1000)

	_, err := h.coord.RunPass(ctx, enums.SyncTriggerBackground)
	require.NoError(t, err)

	select {
	case msg := <-msgs:
		require.Equal(t, enums.SyncMessageSuccess, msg.Type)
		require.Equal(t, id, msg.LocalID)
	case <-time.After(time.Second):
		t.Fatal("no result published")
	}
}

func TestFailureReason(t *testing.T) {
	require.Equal(t, "HTTP 404: Not Found", FailureReason(collector.Rejected(404, []byte("nope"))))
	network := pkgerrors.Wrap(pkgerrors.CodeNetwork, errors.New("dial tcp: connection refused"), "deliver to collector")
	require.Equal(t, "dial tcp: connection refused", FailureReason(network))
	require.Equal(t, "plain", FailureReason(errors.New("plain")))
}

func TestNewCoordinatorValidates(t *testing.T) {
	_, err := NewCoordinator(Params{})
	require.Error(t, err)
}
