package repository

import (
	"context"
	"time"

	"github.com/AzielCF/az-track/tracker/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// --- Persistence Model ---

type subscriptionModel struct {
	ID          string    `gorm:"primaryKey"`
	AccountID   int64     `gorm:"index:idx_subscriptions_account;index:idx_unique_sub,unique;not null"`
	Destination string    `gorm:"index:idx_unique_sub,unique;not null"`
	Secret      string    `gorm:"type:text"` // AES-GCM encrypted, base64
	Status      string    `gorm:"index:idx_subscriptions_status;default:'active'"`
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

func (subscriptionModel) TableName() string {
	return "subscriptions"
}

func toSubscriptionModel(sub *domain.Subscription) subscriptionModel {
	return subscriptionModel{
		ID:          sub.ID,
		AccountID:   int64(sub.AccountID),
		Destination: sub.Destination,
		Secret:      sub.Secret,
		Status:      string(sub.Status),
		CreatedAt:   sub.CreatedAt,
		UpdatedAt:   sub.UpdatedAt,
	}
}

func fromSubscriptionModel(m subscriptionModel) *domain.Subscription {
	return &domain.Subscription{
		ID:          m.ID,
		AccountID:   domain.AccountID(m.AccountID),
		Destination: m.Destination,
		Secret:      m.Secret,
		Status:      domain.SubscriptionStatus(m.Status),
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

// --- Repository Implementation ---

type SubscriptionGormRepository struct {
	db *gorm.DB
}

func NewSubscriptionGormRepository(db *gorm.DB) *SubscriptionGormRepository {
	return &SubscriptionGormRepository{db: db}
}

func (r *SubscriptionGormRepository) InitSchema(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&subscriptionModel{})
}

func (r *SubscriptionGormRepository) Create(ctx context.Context, sub *domain.Subscription) error {
	if sub.ID == "" {
		sub.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = now
	}
	sub.UpdatedAt = now
	if sub.Status == "" {
		sub.Status = domain.SubscriptionActive
	}

	model := toSubscriptionModel(sub)
	result := r.db.WithContext(ctx).Create(&model)
	if result.Error != nil {
		if isDuplicateKey(result.Error) {
			return domain.ErrDuplicateSubscription
		}
		return result.Error
	}
	return nil
}

func (r *SubscriptionGormRepository) GetByID(ctx context.Context, id string) (*domain.Subscription, error) {
	var m subscriptionModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, domain.ErrSubscriptionNotFound
		}
		return nil, err
	}
	return fromSubscriptionModel(m), nil
}

func (r *SubscriptionGormRepository) Delete(ctx context.Context, id string) (*domain.Subscription, error) {
	sub, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	result := r.db.WithContext(ctx).Delete(&subscriptionModel{}, "id = ?", id)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, domain.ErrSubscriptionNotFound
	}
	return sub, nil
}

func (r *SubscriptionGormRepository) ListByAccount(ctx context.Context, accountID domain.AccountID) ([]*domain.Subscription, error) {
	var models []subscriptionModel
	err := r.db.WithContext(ctx).
		Where("account_id = ?", int64(accountID)).
		Order("created_at asc").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return fromSubscriptionModels(models), nil
}

func (r *SubscriptionGormRepository) ListAll(ctx context.Context) ([]*domain.Subscription, error) {
	var models []subscriptionModel
	if err := r.db.WithContext(ctx).Order("created_at asc").Find(&models).Error; err != nil {
		return nil, err
	}
	return fromSubscriptionModels(models), nil
}

func (r *SubscriptionGormRepository) CountActive(ctx context.Context, accountID domain.AccountID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&subscriptionModel{}).
		Where("account_id = ? AND status = ?", int64(accountID), string(domain.SubscriptionActive)).
		Count(&count).Error
	return count, err
}

func (r *SubscriptionGormRepository) ActiveAccounts(ctx context.Context) ([]domain.AccountID, error) {
	var ids []int64
	err := r.db.WithContext(ctx).
		Model(&subscriptionModel{}).
		Where("status = ?", string(domain.SubscriptionActive)).
		Distinct("account_id").
		Pluck("account_id", &ids).Error
	if err != nil {
		return nil, err
	}
	accounts := make([]domain.AccountID, len(ids))
	for i, id := range ids {
		accounts[i] = domain.AccountID(id)
	}
	return accounts, nil
}

func fromSubscriptionModels(models []subscriptionModel) []*domain.Subscription {
	subs := make([]*domain.Subscription, 0, len(models))
	for _, m := range models {
		subs = append(subs, fromSubscriptionModel(m))
	}
	return subs
}
