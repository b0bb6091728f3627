package reports

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/fieldreport/pkg/db"
	"github.com/angelmondragon/fieldreport/pkg/db/models"
	pkgerrors "github.com/angelmondragon/fieldreport/pkg/errors"
)

const defaultListLimit = 50

// Report is what the collector stored for one delivery.
type Report struct {
	LocalID    string          `json:"localId"`
	Kind       string          `json:"kind"`
	Payload    json.RawMessage `json:"payload"`
	ReceivedAt time.Time       `json:"receivedAt"`
}

// Repository keeps received reports in the received_reports table.
type Repository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// Accept stores a report. Storing the same local id twice is a no-op.
func (r *Repository) Accept(ctx context.Context, localID uuid.UUID, kind string, payload json.RawMessage) error {
	row := models.ReceivedReport{
		LocalID:    localID.String(),
		Kind:       kind,
		Payload:    string(payload),
		ReceivedAt: r.now().UTC(),
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		if dbpkg.IsUniqueViolation(err, "") {
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "store received report")
	}
	return nil
}

// Recent returns the newest reports first.
func (r *Repository) Recent(ctx context.Context, limit int) ([]Report, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	var rows []models.ReceivedReport
	if err := r.db.WithContext(ctx).
		Order("received_at DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "list received reports")
	}
	out := make([]Report, 0, len(rows))
	for _, row := range rows {
		out = append(out, Report{
			LocalID:    row.LocalID,
			Kind:       row.Kind,
			Payload:    json.RawMessage(row.Payload),
			ReceivedAt: row.ReceivedAt,
		})
	}
	return out, nil
}

func (r *Repository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&models.ReceivedReport{}).Count(&n).Error; err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "count received reports")
	}
	return n, nil
}
