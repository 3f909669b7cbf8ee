package repository

import (
	"context"
	"strings"
	"time"

	"github.com/AzielCF/az-track/tracker/domain"
	"gorm.io/gorm"
)

// --- Persistence Model ---

type trackedStateModel struct {
	AccountID  int64     `gorm:"primaryKey;autoIncrement:false"`
	Status     string    `gorm:"not null"`
	GameID     int64     `gorm:"not null;default:0"`
	ObservedAt time.Time `gorm:"not null"`
	ReportedAt time.Time `gorm:"not null"`
}

func (trackedStateModel) TableName() string {
	return "tracked_states"
}

func toStateModel(snap domain.PresenceSnapshot, reportedAt time.Time) trackedStateModel {
	return trackedStateModel{
		AccountID:  int64(snap.AccountID),
		Status:     string(snap.Status),
		GameID:     snap.GameID,
		ObservedAt: snap.ObservedAt.UTC(),
		ReportedAt: reportedAt.UTC(),
	}
}

func fromStateModel(m trackedStateModel) *domain.TrackedState {
	return &domain.TrackedState{
		AccountID: domain.AccountID(m.AccountID),
		LastReported: domain.PresenceSnapshot{
			AccountID:  domain.AccountID(m.AccountID),
			Status:     domain.PresenceStatus(m.Status),
			GameID:     m.GameID,
			ObservedAt: m.ObservedAt,
		},
		LastReportedAt: m.ReportedAt,
	}
}

// --- Repository Implementation ---

// TrackedStateGormRepository implements domain.TrackedStateStore on gorm.
// The conditional UPDATE in CompareAndSet is what serializes per-account
// writers: the row only changes when the stored (status, game_id) still
// matches the caller's expectation.
type TrackedStateGormRepository struct {
	db *gorm.DB
}

func NewTrackedStateGormRepository(db *gorm.DB) *TrackedStateGormRepository {
	return &TrackedStateGormRepository{db: db}
}

func (r *TrackedStateGormRepository) InitSchema(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&trackedStateModel{})
}

func (r *TrackedStateGormRepository) Read(ctx context.Context, id domain.AccountID) (*domain.TrackedState, error) {
	var m trackedStateModel
	err := r.db.WithContext(ctx).First(&m, "account_id = ?", int64(id)).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return fromStateModel(m), nil
}

func (r *TrackedStateGormRepository) All(ctx context.Context) ([]*domain.TrackedState, error) {
	var models []trackedStateModel
	if err := r.db.WithContext(ctx).Find(&models).Error; err != nil {
		return nil, err
	}
	states := make([]*domain.TrackedState, 0, len(models))
	for _, m := range models {
		states = append(states, fromStateModel(m))
	}
	return states, nil
}

func (r *TrackedStateGormRepository) Create(ctx context.Context, snapshot domain.PresenceSnapshot) (bool, error) {
	model := toStateModel(snapshot, time.Now())
	result := r.db.WithContext(ctx).Create(&model)
	if result.Error != nil {
		if isDuplicateKey(result.Error) {
			// A concurrent creator won the race; the caller re-reads.
			return false, nil
		}
		return false, result.Error
	}
	return true, nil
}

func (r *TrackedStateGormRepository) CompareAndSet(ctx context.Context, id domain.AccountID, expected, next domain.PresenceSnapshot) (bool, error) {
	now := time.Now().UTC()
	result := r.db.WithContext(ctx).
		Model(&trackedStateModel{}).
		Where("account_id = ? AND status = ? AND game_id = ?",
			int64(id), string(expected.Status), expected.GameID).
		Updates(map[string]any{
			"status":      string(next.Status),
			"game_id":     next.GameID,
			"observed_at": next.ObservedAt.UTC(),
			"reported_at": now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *TrackedStateGormRepository) Delete(ctx context.Context, id domain.AccountID) error {
	return r.db.WithContext(ctx).Delete(&trackedStateModel{}, "account_id = ?", int64(id)).Error
}

func isDuplicateKey(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}
