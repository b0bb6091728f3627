package outbox

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/fieldreport/pkg/db"
	"github.com/angelmondragon/fieldreport/pkg/db/models"
	"github.com/angelmondragon/fieldreport/pkg/enums"
	pkgerrors "github.com/angelmondragon/fieldreport/pkg/errors"
)

// Store is the durable queue contract. It is dumb persistence: lifecycle rules
// live in Service.
type Store interface {
	Put(ctx context.Context, entry Entry) error
	Get(ctx context.Context, localID string) (Entry, error)
	GetAll(ctx context.Context) ([]Entry, error)
	List(ctx context.Context, statuses ...enums.OutboxStatus) ([]Entry, error)
	Update(ctx context.Context, localID string, patch Patch) error
	Transition(ctx context.Context, localID string, from []enums.OutboxStatus, patch Patch) (bool, error)
	Delete(ctx context.Context, localID string) error
	DeleteIf(ctx context.Context, localID string, from []enums.OutboxStatus) (bool, error)
	Count(ctx context.Context, statuses ...enums.OutboxStatus) (int64, error)
	RequeueStale(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteByStatus(ctx context.Context, status enums.OutboxStatus) (int64, error)
}

// Repository persists entries in the outbox_entries table.
type Repository struct {
	db      *gorm.DB
	now     func() time.Time
	lastSeq atomic.Int64
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

func (r *Repository) conn(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return r.db
	}
	return r.db.WithContext(ctx)
}

// nextSeq hands out strictly increasing insertion markers.
func (r *Repository) nextSeq() int64 {
	for {
		last := r.lastSeq.Load()
		next := r.now().UnixNano()
		if next <= last {
			next = last + 1
		}
		if r.lastSeq.CompareAndSwap(last, next) {
			return next
		}
	}
}

func (r *Repository) Put(ctx context.Context, entry Entry) error {
	row := modelFromEntry(entry)
	if row.Status == "" {
		row.Status = enums.OutboxStatusPending
	}
	row.EnqueuedNS = r.nextSeq()
	row.UpdatedAtMS = r.now().UnixMilli()

	if err := r.conn(ctx).Create(&row).Error; err != nil {
		if dbpkg.IsUniqueViolation(err, "") {
			return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "outbox entry already exists").
				WithDetails(map[string]any{"localId": entry.LocalID})
		}
		return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "put outbox entry")
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, localID string) (Entry, error) {
	var row models.OutboxEntry
	err := r.conn(ctx).Where("local_id = ?", localID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Entry{}, notFound(localID)
	}
	if err != nil {
		return Entry{}, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "get outbox entry")
	}
	return entryFromModel(row), nil
}

func (r *Repository) GetAll(ctx context.Context) ([]Entry, error) {
	return r.List(ctx)
}

// List returns entries in insertion order, optionally filtered by status.
func (r *Repository) List(ctx context.Context, statuses ...enums.OutboxStatus) ([]Entry, error) {
	var rows []models.OutboxEntry
	q := r.conn(ctx).Model(&models.OutboxEntry{})
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}
	err := q.Order("timestamp_ms ASC").
		Order("enqueued_ns ASC").
		Order("local_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "list outbox entries")
	}
	entries := make([]Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, entryFromModel(row))
	}
	return entries, nil
}

func (r *Repository) Update(ctx context.Context, localID string, patch Patch) error {
	applied, err := r.Transition(ctx, localID, nil, patch)
	if err != nil {
		return err
	}
	if !applied {
		return notFound(localID)
	}
	return nil
}

// Transition applies patch only when the entry is currently in one of from
// (any status when from is empty). The check and the write are one statement,
// so concurrent callers across processes cannot both win.
func (r *Repository) Transition(ctx context.Context, localID string, from []enums.OutboxStatus, patch Patch) (bool, error) {
	if patch.empty() {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "empty outbox patch")
	}
	updates := map[string]any{
		"updated_at_ms": r.now().UnixMilli(),
	}
	if patch.Status != nil {
		updates["status"] = *patch.Status
	}
	if patch.IncrementRetry {
		updates["retry_count"] = gorm.Expr("retry_count + 1")
	}
	switch {
	case patch.Error != nil:
		updates["last_error"] = *patch.Error
	case patch.ClearError:
		updates["last_error"] = gorm.Expr("NULL")
	}

	q := r.conn(ctx).Model(&models.OutboxEntry{}).Where("local_id = ?", localID)
	if len(from) > 0 {
		q = q.Where("status IN ?", from)
	}
	res := q.Updates(updates)
	if res.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeStorage, res.Error, "update outbox entry")
	}
	return res.RowsAffected > 0, nil
}

func (r *Repository) Delete(ctx context.Context, localID string) error {
	deleted, err := r.DeleteIf(ctx, localID, nil)
	if err != nil {
		return err
	}
	if !deleted {
		return notFound(localID)
	}
	return nil
}

func (r *Repository) DeleteIf(ctx context.Context, localID string, from []enums.OutboxStatus) (bool, error) {
	q := r.conn(ctx).Where("local_id = ?", localID)
	if len(from) > 0 {
		q = q.Where("status IN ?", from)
	}
	res := q.Delete(&models.OutboxEntry{})
	if res.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeStorage, res.Error, "delete outbox entry")
	}
	return res.RowsAffected > 0, nil
}

func (r *Repository) Count(ctx context.Context, statuses ...enums.OutboxStatus) (int64, error) {
	var count int64
	q := r.conn(ctx).Model(&models.OutboxEntry{})
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}
	if err := q.Count(&count).Error; err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "count outbox entries")
	}
	return count, nil
}

// RequeueStale moves syncing entries untouched since cutoff back to pending.
func (r *Repository) RequeueStale(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.conn(ctx).Model(&models.OutboxEntry{}).
		Where("status = ?", enums.OutboxStatusSyncing).
		Where("updated_at_ms < ?", cutoff.UnixMilli()).
		Updates(map[string]any{
			"status":        enums.OutboxStatusPending,
			"updated_at_ms": r.now().UnixMilli(),
		})
	if res.Error != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeStorage, res.Error, "requeue stale outbox entries")
	}
	return res.RowsAffected, nil
}

// DeleteByStatus removes every entry in status.
func (r *Repository) DeleteByStatus(ctx context.Context, status enums.OutboxStatus) (int64, error) {
	res := r.conn(ctx).Where("status = ?", status).Delete(&models.OutboxEntry{})
	if res.Error != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeStorage, res.Error, "delete outbox entries by status")
	}
	return res.RowsAffected, nil
}

func notFound(localID string) error {
	return pkgerrors.New(pkgerrors.CodeNotFound, "outbox entry not found").
		WithDetails(map[string]any{"localId": localID})
}
