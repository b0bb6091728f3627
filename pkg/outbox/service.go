package outbox

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/fieldreport/pkg/enums"
	pkgerrors "github.com/angelmondragon/fieldreport/pkg/errors"
	"github.com/angelmondragon/fieldreport/pkg/logger"
)

// EnqueueParams carries a submission that could not be delivered immediately.
type EnqueueParams struct {
	LocalID   string
	Endpoint  string
	Method    enums.HTTPMethod
	Payload   json.RawMessage
	Timestamp time.Time
}

// Service owns the entry lifecycle:
//
//	pending -> syncing -> success (deleted)
//	               \--> failed -> pending
type Service struct {
	store Store
	logg  *logger.Logger
	now   func() time.Time
}

func NewService(store Store, logg *logger.Logger) *Service {
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{store: store, logg: logg, now: time.Now}
}

// Enqueue persists a new pending entry under the caller supplied local id.
func (s *Service) Enqueue(ctx context.Context, params EnqueueParams) (string, error) {
	if err := validateEnqueue(params); err != nil {
		return "", err
	}
	ts := params.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}

	entry := Entry{
		LocalID:   params.LocalID,
		Endpoint:  params.Endpoint,
		Method:    params.Method,
		Payload:   params.Payload,
		Timestamp: ts.UnixMilli(),
		Status:    enums.OutboxStatusPending,
	}
	if err := s.store.Put(ctx, entry); err != nil {
		return "", err
	}

	logCtx := s.logg.WithFields(s.logg.WithLocalID(ctx, entry.LocalID), map[string]any{
		"endpoint": entry.Endpoint,
		"method":   entry.Method,
	})
	s.logg.Info(logCtx, "outbox entry queued")
	return entry.LocalID, nil
}

// MarkSyncing claims a pending entry for delivery.
func (s *Service) MarkSyncing(ctx context.Context, localID string) error {
	return s.transition(ctx, localID, []enums.OutboxStatus{enums.OutboxStatusPending}, Patch{
		Status: statusPtr(enums.OutboxStatusSyncing),
	})
}

// MarkSuccess records a confirmed delivery and removes the entry.
func (s *Service) MarkSuccess(ctx context.Context, localID string) error {
	if err := s.transition(ctx, localID, []enums.OutboxStatus{enums.OutboxStatusSyncing}, Patch{
		Status:     statusPtr(enums.OutboxStatusSuccess),
		ClearError: true,
	}); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, localID); err != nil && !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		return err
	}
	s.logg.Info(s.logg.WithLocalID(ctx, localID), "outbox entry delivered")
	return nil
}

// MarkFailed records a failed attempt. There is no attempt cap here.
func (s *Service) MarkFailed(ctx context.Context, localID string, cause error) error {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	if err := s.transition(ctx, localID, []enums.OutboxStatus{enums.OutboxStatusSyncing}, Patch{
		Status:         statusPtr(enums.OutboxStatusFailed),
		Error:          &msg,
		IncrementRetry: true,
	}); err != nil {
		return err
	}
	logCtx := s.logg.WithField(s.logg.WithLocalID(ctx, localID), "error_message", msg)
	s.logg.Warn(logCtx, "outbox delivery failed")
	return nil
}

// Requeue moves a failed entry back to pending, keeping its retry count.
func (s *Service) Requeue(ctx context.Context, localID string) error {
	return s.transition(ctx, localID, []enums.OutboxStatus{enums.OutboxStatusFailed}, Patch{
		Status:     statusPtr(enums.OutboxStatusPending),
		ClearError: true,
	})
}

// RequeueStale releases syncing claims older than olderThan, left behind by a
// process that died mid-delivery.
func (s *Service) RequeueStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	n, err := s.store.RequeueStale(ctx, s.now().Add(-olderThan))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logg.Warn(s.logg.WithField(ctx, "count", n), "requeued stale syncing entries")
	}
	return n, nil
}

// Purge discards an undelivered entry. Entries mid-delivery cannot be purged.
func (s *Service) Purge(ctx context.Context, localID string) error {
	deleted, err := s.store.DeleteIf(ctx, localID, []enums.OutboxStatus{
		enums.OutboxStatusPending,
		enums.OutboxStatusFailed,
	})
	if err != nil {
		return err
	}
	if !deleted {
		return s.explainMiss(ctx, localID)
	}
	s.logg.Info(s.logg.WithLocalID(ctx, localID), "outbox entry purged")
	return nil
}

// PruneDelivered removes success rows whose delete did not go through.
func (s *Service) PruneDelivered(ctx context.Context) (int64, error) {
	return s.store.DeleteByStatus(ctx, enums.OutboxStatusSuccess)
}

// Get returns a single entry.
func (s *Service) Get(ctx context.Context, localID string) (Entry, error) {
	return s.store.Get(ctx, localID)
}

// ListPending returns every undelivered entry in insertion order.
func (s *Service) ListPending(ctx context.Context) ([]Entry, error) {
	return s.store.List(ctx, enums.UndeliveredStatuses...)
}

// PendingCount counts every undelivered entry.
func (s *Service) PendingCount(ctx context.Context) (int64, error) {
	return s.store.Count(ctx, enums.UndeliveredStatuses...)
}

func (s *Service) transition(ctx context.Context, localID string, from []enums.OutboxStatus, patch Patch) error {
	applied, err := s.store.Transition(ctx, localID, from, patch)
	if err != nil {
		return err
	}
	if !applied {
		return s.explainMiss(ctx, localID)
	}
	return nil
}

// explainMiss turns a conditional write that matched nothing into NotFound or
// StateConflict.
func (s *Service) explainMiss(ctx context.Context, localID string) error {
	entry, err := s.store.Get(ctx, localID)
	if err != nil {
		return err
	}
	return pkgerrors.New(pkgerrors.CodeStateConflict, "outbox entry is not in the expected state").
		WithDetails(map[string]any{"localId": localID, "status": entry.Status})
}

func validateEnqueue(params EnqueueParams) error {
	if _, err := uuid.Parse(params.LocalID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "localId must be a uuid")
	}
	if !params.Method.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "method must be POST or PUT").
			WithDetails(map[string]any{"method": params.Method})
	}
	if err := ValidateEndpoint(params.Endpoint); err != nil {
		return err
	}
	trimmed := strings.TrimSpace(string(params.Payload))
	if !strings.HasPrefix(trimmed, "{") || !json.Valid(params.Payload) {
		return pkgerrors.New(pkgerrors.CodeValidation, "payload must be a JSON object")
	}
	return nil
}

// ValidateEndpoint accepts absolute http(s) URLs only.
func ValidateEndpoint(endpoint string) error {
	u, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return pkgerrors.New(pkgerrors.CodeValidation, "endpoint must be an absolute http(s) url").
			WithDetails(map[string]any{"endpoint": endpoint})
	}
	return nil
}
