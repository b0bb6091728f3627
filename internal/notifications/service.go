package notifications

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/fieldreport/pkg/enums"
	pkgerrors "github.com/angelmondragon/fieldreport/pkg/errors"
	"github.com/angelmondragon/fieldreport/pkg/logger"
	"github.com/angelmondragon/fieldreport/pkg/pagination"
)

var defaultMessages = map[enums.NotificationKind]string{
	enums.NotificationQueuedLocally:  "Saved locally. It will be sent when the connection is back.",
	enums.NotificationSent:           "Report sent.",
	enums.NotificationSyncRestored:   "Connection restored. Sending pending reports.",
	enums.NotificationConnectionLost: "Connection lost. Reports will be saved locally.",
	enums.NotificationSyncStarted:    "Sending pending reports.",
	enums.NotificationSyncFailed:     "A pending report could not be sent. It will be retried.",
	enums.NotificationDelivered:      "Pending report delivered.",
	enums.NotificationStorageFailed:  "The report could not be saved on this device.",
	enums.NotificationNoConnection:   "No connection. Try again once you are back online.",
}

// Service records advisory notifications and serves them to the UI.
type Service struct {
	feed *feed
	logg *logger.Logger
	now  func() time.Time
}

// ListParams configures pagination for notifications.
type ListParams struct {
	Limit      int
	Cursor     string
	UnreadOnly bool
}

// ListResult wraps returned notifications and the cursor for the next page.
type ListResult struct {
	Items  []Notification `json:"items"`
	Cursor string         `json:"cursor"`
}

// NewService builds a notification feed holding at most size entries.
func NewService(size int, logg *logger.Logger) *Service {
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{feed: newFeed(size), logg: logg, now: time.Now}
}

// Notify records a notification. An empty message falls back to the default
// text for kind.
func (s *Service) Notify(ctx context.Context, kind enums.NotificationKind, localID, message string) Notification {
	if message == "" {
		message = defaultMessages[kind]
	}
	n := Notification{
		ID:        uuid.New(),
		Kind:      kind,
		Level:     kind.Level(),
		Message:   message,
		LocalID:   localID,
		CreatedAt: s.now().UTC(),
	}
	s.feed.add(n)

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"notification": string(kind),
		"level":        string(n.Level),
	})
	if localID != "" {
		logCtx = s.logg.WithLocalID(logCtx, localID)
	}
	switch n.Level {
	case enums.NotificationLevelError, enums.NotificationLevelWarning:
		s.logg.Warn(logCtx, message)
	default:
		s.logg.Info(logCtx, message)
	}
	return n
}

func (s *Service) List(_ context.Context, params ListParams) (*ListResult, error) {
	query := listQuery{
		Limit:      pagination.LimitWithBuffer(params.Limit),
		UnreadOnly: params.UnreadOnly,
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, next := s.feed.list(query)
	cursor := ""
	if next != nil {
		cursor = pagination.EncodeCursor(*next)
	}
	return &ListResult{Items: rows, Cursor: cursor}, nil
}

func (s *Service) MarkRead(_ context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification id required")
	}
	if !s.feed.markRead(id, s.now().UTC()) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
	}
	return nil
}

func (s *Service) MarkAllRead(_ context.Context) int64 {
	return s.feed.markAllRead(s.now().UTC())
}
