package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/angelmondragon/fieldreport/internal/notifications"
	"github.com/angelmondragon/fieldreport/pkg/background"
	"github.com/angelmondragon/fieldreport/pkg/broadcast"
	"github.com/angelmondragon/fieldreport/pkg/collector"
	"github.com/angelmondragon/fieldreport/pkg/enums"
	pkgerrors "github.com/angelmondragon/fieldreport/pkg/errors"
	"github.com/angelmondragon/fieldreport/pkg/logger"
	"github.com/angelmondragon/fieldreport/pkg/metrics"
	"github.com/angelmondragon/fieldreport/pkg/outbox"
	"github.com/angelmondragon/fieldreport/pkg/probe"
)

const (
	defaultConcurrency   = 2
	defaultInlineTimeout = 2 * time.Minute
	recordTimeout        = 5 * time.Second
)

// DrainTag is the registration tag for outbox drains.
const DrainTag = "outbox-sync"

// ErrOffline is returned by Retry when the collector cannot be reached.
var ErrOffline = pkgerrors.New(pkgerrors.CodeNetwork, "no connection to the collector")

type outboxManager interface {
	ListPending(ctx context.Context) ([]outbox.Entry, error)
	PendingCount(ctx context.Context) (int64, error)
	Get(ctx context.Context, localID string) (outbox.Entry, error)
	Requeue(ctx context.Context, localID string) error
	MarkSyncing(ctx context.Context, localID string) error
	MarkSuccess(ctx context.Context, localID string) error
	MarkFailed(ctx context.Context, localID string, cause error) error
}

type notifier interface {
	Notify(ctx context.Context, kind enums.NotificationKind, localID, message string) notifications.Notification
}

type publisher interface {
	Publish(ctx context.Context, msg broadcast.Message) error
}

// Params wires a Coordinator.
type Params struct {
	Outbox    outboxManager
	Deliverer collector.Deliverer
	Checker   probe.Checker
	Logger    *logger.Logger

	// optional
	Drainer       background.Drainer
	Publisher     publisher
	Notifier      notifier
	Metrics       *metrics.SyncMetrics
	Concurrency   int
	MaxAttempts   int
	InlineTimeout time.Duration
}

// PassResult summarizes one drain pass.
type PassResult struct {
	Trigger   enums.SyncTrigger `json:"trigger"`
	Offline   bool              `json:"offline"`
	Attempted int               `json:"attempted"`
	Delivered int               `json:"delivered"`
	Failed    int               `json:"failed"`
	Skipped   int               `json:"skipped"`
}

// Coordinator drains the outbox. One pass runs at a time per coordinator;
// across processes the syncing claim in the store keeps an entry from being
// attempted twice.
type Coordinator struct {
	outbox        outboxManager
	deliverer     collector.Deliverer
	checker       probe.Checker
	drainer       background.Drainer
	publisher     publisher
	notifier      notifier
	metrics       *metrics.SyncMetrics
	logg          *logger.Logger
	concurrency   int64
	maxAttempts   int
	inlineTimeout time.Duration

	passMu sync.Mutex
}

func NewCoordinator(params Params) (*Coordinator, error) {
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox required")
	}
	if params.Deliverer == nil {
		return nil, fmt.Errorf("deliverer required")
	}
	if params.Checker == nil {
		return nil, fmt.Errorf("checker required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	concurrency := params.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	inline := params.InlineTimeout
	if inline <= 0 {
		inline = defaultInlineTimeout
	}
	return &Coordinator{
		outbox:        params.Outbox,
		deliverer:     params.Deliverer,
		checker:       params.Checker,
		drainer:       params.Drainer,
		publisher:     params.Publisher,
		notifier:      params.Notifier,
		metrics:       params.Metrics,
		logg:          params.Logger,
		concurrency:   int64(concurrency),
		maxAttempts:   params.MaxAttempts,
		inlineTimeout: inline,
	}, nil
}

// RunPass attempts every undelivered entry once. A pass that starts while
// another is in flight waits for it to finish.
func (c *Coordinator) RunPass(ctx context.Context, trigger enums.SyncTrigger) (PassResult, error) {
	c.passMu.Lock()
	defer c.passMu.Unlock()

	ctx = c.logg.WithTrigger(ctx, string(trigger))
	result := PassResult{Trigger: trigger}
	c.metrics.IncPass(string(trigger))

	if !c.checker.Probe(ctx) {
		result.Offline = true
		c.logg.Info(ctx, "collector unreachable; sync pass skipped")
		return result, nil
	}

	entries, err := c.outbox.ListPending(ctx)
	if err != nil {
		return result, err
	}

	claimable := make([]outbox.Entry, 0, len(entries))
	for _, entry := range entries {
		if c.eligible(entry, trigger) {
			claimable = append(claimable, entry)
		} else {
			result.Skipped++
		}
	}
	if len(claimable) == 0 {
		c.refreshPending(ctx)
		return result, nil
	}
	if trigger != enums.SyncTriggerBackground {
		c.notify(ctx, enums.NotificationSyncStarted, "", fmt.Sprintf("Sending %d pending reports.", len(claimable)))
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := semaphore.NewWeighted(c.concurrency)
	for _, entry := range claimable {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		if !c.claim(ctx, entry) {
			sem.Release(1)
			result.Skipped++
			continue
		}
		result.Attempted++
		wg.Add(1)
		go func(entry outbox.Entry) {
			defer wg.Done()
			defer sem.Release(1)
			ok := c.deliver(ctx, entry, trigger)
			mu.Lock()
			if ok {
				result.Delivered++
			} else {
				result.Failed++
			}
			mu.Unlock()
		}(entry)
	}
	wg.Wait()

	c.refreshPending(ctx)
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"attempted": result.Attempted,
		"delivered": result.Delivered,
		"failed":    result.Failed,
		"skipped":   result.Skipped,
	})
	c.logg.Info(logCtx, "sync pass complete")
	return result, ctx.Err()
}

// RequestSync hands the drain to the background runtime, falling back to an
// inline pass when no background capability accepts it.
func (c *Coordinator) RequestSync(ctx context.Context, trigger enums.SyncTrigger) error {
	if c.drainer != nil {
		err := c.drainer.ScheduleBackgroundDrain(ctx, DrainTag)
		if err == nil {
			return nil
		}
		c.logg.Debug(c.logg.WithField(ctx, "error", err.Error()), "background drain registration unavailable")

		if err = c.drainer.RequestImmediateDrain(ctx); err == nil {
			return nil
		}
		c.logg.Debug(c.logg.WithField(ctx, "error", err.Error()), "immediate drain unavailable")
	}

	inlineCtx, cancel := context.WithTimeout(ctx, c.inlineTimeout)
	defer cancel()
	_, err := c.RunPass(inlineCtx, trigger)
	return err
}

// Retry is the user's manual "send now". Entries over the attempt cap are
// included. When offline nothing is attempted and ErrOffline is returned.
func (c *Coordinator) Retry(ctx context.Context) (PassResult, error) {
	if !c.checker.Probe(ctx) {
		c.notify(ctx, enums.NotificationNoConnection, "", "")
		return PassResult{Trigger: enums.SyncTriggerManual, Offline: true}, ErrOffline
	}
	return c.RunPass(ctx, enums.SyncTriggerManual)
}

// ConnectivityRestored is the monitor hook for an offline to online edge.
func (c *Coordinator) ConnectivityRestored(ctx context.Context) {
	c.notify(ctx, enums.NotificationSyncRestored, "", "")
	if err := c.RequestSync(ctx, enums.SyncTriggerConnectivity); err != nil {
		c.logg.Error(ctx, "sync after reconnect failed", err)
	}
}

// ConnectivityLost is the monitor hook for an online to offline edge.
func (c *Coordinator) ConnectivityLost(ctx context.Context) {
	c.notify(ctx, enums.NotificationConnectionLost, "", "")
}

// HandleMessage reconciles a result reported by the background runtime. The
// message may be stale, so every outcome is checked against the store.
func (c *Coordinator) HandleMessage(ctx context.Context, msg broadcast.Message) error {
	if err := msg.Validate(); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid sync message")
	}
	ctx = c.logg.WithLocalID(ctx, msg.LocalID)

	switch msg.Type {
	case enums.SyncMessageSuccess:
		err := c.outbox.MarkSuccess(ctx, msg.LocalID)
		switch {
		case err == nil, pkgerrors.IsCode(err, pkgerrors.CodeNotFound):
			c.notify(ctx, enums.NotificationDelivered, msg.LocalID, "")
		case pkgerrors.IsCode(err, pkgerrors.CodeStateConflict):
			// the entry was requeued after the worker claimed it and will be sent again
			c.logg.Debug(ctx, "stale success message ignored")
		default:
			return err
		}
	case enums.SyncMessageError:
		entry, err := c.outbox.Get(ctx, msg.LocalID)
		switch {
		case pkgerrors.IsCode(err, pkgerrors.CodeNotFound):
		case err != nil:
			return err
		case entry.Status == enums.OutboxStatusSyncing:
			if err := c.outbox.MarkFailed(ctx, msg.LocalID, errors.New(msg.Error)); err != nil &&
				!pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
				return err
			}
		}
		c.notify(ctx, enums.NotificationSyncFailed, msg.LocalID, failedMessage(msg.Error))
	case enums.SyncMessageProcessOutbox:
		return nil
	}
	c.refreshPending(ctx)
	return nil
}

// Listen feeds every message from ch into HandleMessage until ch closes.
func (c *Coordinator) Listen(ctx context.Context, ch <-chan broadcast.Message) {
	for msg := range ch {
		if err := c.HandleMessage(ctx, msg); err != nil {
			c.logg.Error(c.logg.WithLocalID(ctx, msg.LocalID), "failed to reconcile sync message", err)
		}
	}
}

func (c *Coordinator) eligible(entry outbox.Entry, trigger enums.SyncTrigger) bool {
	switch entry.Status {
	case enums.OutboxStatusPending:
		return true
	case enums.OutboxStatusFailed:
		if c.maxAttempts > 0 && trigger.Automatic() && entry.RetryCount >= c.maxAttempts {
			return false
		}
		return true
	default:
		return false
	}
}

// claim moves the entry to syncing. False means another pass owns it or it
// is gone.
func (c *Coordinator) claim(ctx context.Context, entry outbox.Entry) bool {
	logCtx := c.logg.WithLocalID(ctx, entry.LocalID)
	if entry.Status == enums.OutboxStatusFailed {
		if err := c.outbox.Requeue(ctx, entry.LocalID); err != nil {
			if !lostRace(err) {
				c.logg.Error(logCtx, "failed to requeue outbox entry", err)
			}
			return false
		}
	}
	if err := c.outbox.MarkSyncing(ctx, entry.LocalID); err != nil {
		if !lostRace(err) {
			c.logg.Error(logCtx, "failed to claim outbox entry", err)
		}
		return false
	}
	return true
}

func (c *Coordinator) deliver(ctx context.Context, entry outbox.Entry, trigger enums.SyncTrigger) bool {
	logCtx := c.logg.WithLocalID(ctx, entry.LocalID)
	start := time.Now()
	_, err := c.deliverer.Deliver(ctx, collector.Request{
		LocalID:  entry.LocalID,
		Method:   entry.Method,
		Endpoint: entry.Endpoint,
		Payload:  entry.Payload,
	})
	elapsed := time.Since(start)

	// the outcome is recorded even when the pass was canceled mid-delivery
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	if err != nil {
		c.metrics.ObserveDelivery("failed", string(trigger), elapsed)
		reason := FailureReason(err)
		if markErr := c.outbox.MarkFailed(recordCtx, entry.LocalID, errors.New(reason)); markErr != nil {
			c.logg.Error(logCtx, "failed to record delivery failure", markErr)
		}
		c.notify(recordCtx, enums.NotificationSyncFailed, entry.LocalID, failedMessage(reason))
		c.publish(recordCtx, broadcast.Failure(entry.LocalID, errors.New(reason)))
		return false
	}

	c.metrics.ObserveDelivery("delivered", string(trigger), elapsed)
	if err := c.outbox.MarkSuccess(recordCtx, entry.LocalID); err != nil {
		// the stale requeue job picks it up again; the collector dedupes by localId
		c.logg.Error(logCtx, "failed to record delivery", err)
	}
	c.notify(recordCtx, enums.NotificationDelivered, entry.LocalID, "")
	c.publish(recordCtx, broadcast.Success(entry.LocalID))
	return true
}

func (c *Coordinator) refreshPending(ctx context.Context) {
	if c.metrics == nil {
		return
	}
	count, err := c.outbox.PendingCount(ctx)
	if err != nil {
		c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "failed to refresh pending count")
		return
	}
	c.metrics.SetPending(count)
}

func (c *Coordinator) notify(ctx context.Context, kind enums.NotificationKind, localID, message string) {
	if c.notifier == nil {
		return
	}
	c.notifier.Notify(ctx, kind, localID, message)
}

func (c *Coordinator) publish(ctx context.Context, msg broadcast.Message) {
	if c.publisher == nil {
		return
	}
	if err := c.publisher.Publish(ctx, msg); err != nil {
		c.logg.Warn(c.logg.WithField(c.logg.WithLocalID(ctx, msg.LocalID), "error", err.Error()), "failed to publish sync result")
	}
}

// FailureReason is the text recorded on an entry after a failed delivery:
// "HTTP <status>: <text>" for rejections, the transport error otherwise.
func FailureReason(err error) string {
	typed := pkgerrors.As(err)
	if typed == nil {
		return err.Error()
	}
	if typed.Code() == pkgerrors.CodeNetwork {
		if cause := typed.Unwrap(); cause != nil {
			return cause.Error()
		}
	}
	return typed.Message()
}

func failedMessage(reason string) string {
	if reason == "" {
		return ""
	}
	return "Sync failed: " + reason
}

func lostRace(err error) bool {
	return pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) || pkgerrors.IsCode(err, pkgerrors.CodeNotFound)
}
