package submission

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/fieldreport/internal/notifications"
	"github.com/angelmondragon/fieldreport/pkg/collector"
	"github.com/angelmondragon/fieldreport/pkg/enums"
	pkgerrors "github.com/angelmondragon/fieldreport/pkg/errors"
	"github.com/angelmondragon/fieldreport/pkg/logger"
	"github.com/angelmondragon/fieldreport/pkg/outbox"
	"github.com/angelmondragon/fieldreport/pkg/probe"
)

const (
	defaultBatchSize  = 5
	defaultBatchPause = 300 * time.Millisecond
)

type enqueuer interface {
	Enqueue(ctx context.Context, params outbox.EnqueueParams) (string, error)
}

type syncRequester interface {
	RequestSync(ctx context.Context, trigger enums.SyncTrigger) error
}

type notifier interface {
	Notify(ctx context.Context, kind enums.NotificationKind, localID, message string) notifications.Notification
}

// Params wires the submission service.
type Params struct {
	Outbox    enqueuer
	Deliverer collector.Deliverer
	Checker   probe.Checker
	Syncer    syncRequester
	Notifier  notifier
	Logger    *logger.Logger

	DocumentsURL string
	BatchSize    int
	BatchPause   time.Duration
}

// SubmitParams is one form submission.
type SubmitParams struct {
	Endpoint string
	Payload  json.RawMessage
	Method   enums.HTTPMethod
}

// Result tells the caller whether the submission reached the collector now
// (Queued false) or was saved for later delivery (Queued true).
type Result struct {
	Success bool   `json:"success"`
	LocalID string `json:"localId"`
	Queued  bool   `json:"queued"`
}

// Service is the single entry point for submissions: deliver when the
// collector is reachable, queue otherwise.
type Service struct {
	outbox       enqueuer
	deliverer    collector.Deliverer
	checker      probe.Checker
	syncer       syncRequester
	notifier     notifier
	logg         *logger.Logger
	documentsURL string
	batchSize    int
	batchPause   time.Duration
	now          func() time.Time
}

func NewService(params Params) (*Service, error) {
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "outbox required")
	}
	if params.Deliverer == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "deliverer required")
	}
	if params.Checker == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "checker required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	size := params.BatchSize
	if size <= 0 {
		size = defaultBatchSize
	}
	pause := params.BatchPause
	if pause <= 0 {
		pause = defaultBatchPause
	}
	return &Service{
		outbox:       params.Outbox,
		deliverer:    params.Deliverer,
		checker:      params.Checker,
		syncer:       params.Syncer,
		notifier:     params.Notifier,
		logg:         params.Logger,
		documentsURL: params.DocumentsURL,
		batchSize:    size,
		batchPause:   pause,
		now:          time.Now,
	}, nil
}

// Submit delivers or queues one submission. Only storage failures surface as
// errors; delivery failures become a queued result.
func (s *Service) Submit(ctx context.Context, params SubmitParams) (Result, error) {
	method, err := enums.ParseHTTPMethod(string(params.Method))
	if err != nil {
		return Result{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid method")
	}
	if err := outbox.ValidateEndpoint(params.Endpoint); err != nil {
		return Result{}, err
	}

	localID := uuid.NewString()
	body, err := collector.WithLocalID(params.Payload, localID)
	if err != nil {
		return Result{}, err
	}
	ctx = s.logg.WithLocalID(ctx, localID)
	submittedAt := s.now()

	if !s.checker.Probe(ctx) {
		if err := s.queue(ctx, localID, params.Endpoint, method, body, submittedAt); err != nil {
			return Result{}, err
		}
		s.notify(ctx, enums.NotificationQueuedLocally, localID, "")
		return Result{Success: true, LocalID: localID, Queued: true}, nil
	}

	_, err = s.deliverer.Deliver(ctx, collector.Request{
		LocalID:  localID,
		Method:   method,
		Endpoint: params.Endpoint,
		Payload:  body,
	})
	if err == nil {
		s.notify(ctx, enums.NotificationSent, localID, "")
		return Result{Success: true, LocalID: localID}, nil
	}

	s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "direct delivery failed; queueing")
	if err := s.queue(ctx, localID, params.Endpoint, method, body, submittedAt); err != nil {
		return Result{}, err
	}
	s.notify(ctx, enums.NotificationQueuedLocally, localID, "Could not send the report. It was saved locally and will be retried.")
	return Result{Success: false, LocalID: localID, Queued: true}, nil
}

func (s *Service) queue(ctx context.Context, localID, endpoint string, method enums.HTTPMethod, body []byte, at time.Time) error {
	_, err := s.outbox.Enqueue(ctx, outbox.EnqueueParams{
		LocalID:   localID,
		Endpoint:  endpoint,
		Method:    method,
		Payload:   json.RawMessage(bytes.Clone(body)),
		Timestamp: at,
	})
	if err != nil {
		s.notify(ctx, enums.NotificationStorageFailed, localID, "")
		s.logg.Error(ctx, "failed to queue submission", err)
		return err
	}
	if s.syncer != nil {
		if err := s.syncer.RequestSync(ctx, enums.SyncTriggerSubmission); err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "failed to request background sync")
		}
	}
	return nil
}

func (s *Service) notify(ctx context.Context, kind enums.NotificationKind, localID, message string) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, kind, localID, message)
}

func invalidPayload(format string, args ...any) error {
	return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf(format, args...))
}
