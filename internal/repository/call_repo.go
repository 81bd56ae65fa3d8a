package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-chat-gateway/internal/models"
)

// CallRepository persists private call attempts.
type CallRepository interface {
	Create(ctx context.Context, call *models.Call) error
	FindByID(ctx context.Context, id uint) (models.Call, error)
	FindActiveByRoom(ctx context.Context, roomID uint) (models.Call, error)
	UpdateStatus(ctx context.Context, id uint, from, to models.CallStatus) error
}

type callRepository struct {
	db *gorm.DB
}

// NewCallRepository constructs a call repository backed by GORM.
func NewCallRepository(db *gorm.DB) CallRepository {
	return &callRepository{db: db}
}

// Create inserts a new call. The partial unique index on active calls turns a
// racing second insert into ErrActiveCallExists.
func (r *callRepository) Create(ctx context.Context, call *models.Call) error {
	if call.Status == "" {
		call.Status = models.CallStatusRinging
	}
	err := r.db.WithContext(ctx).Create(call).Error
	if isUniqueViolation(err) {
		return ErrActiveCallExists
	}
	return err
}

func (r *callRepository) FindByID(ctx context.Context, id uint) (models.Call, error) {
	var call models.Call
	if err := r.db.WithContext(ctx).First(&call, id).Error; err != nil {
		return models.Call{}, err
	}
	return call, nil
}

func (r *callRepository) FindActiveByRoom(ctx context.Context, roomID uint) (models.Call, error) {
	var call models.Call
	err := r.db.WithContext(ctx).
		Where("room_id = ? AND status IN ?", roomID, models.ActiveCallStatuses).
		Order("id DESC").
		First(&call).Error
	if err != nil {
		return models.Call{}, err
	}
	return call, nil
}

// UpdateStatus moves the call from one status to another only if it is still in
// the expected status.
func (r *callRepository) UpdateStatus(ctx context.Context, id uint, from, to models.CallStatus) error {
	result := r.db.WithContext(ctx).
		Model(&models.Call{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{
			"status":     to,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrStaleCallStatus
	}
	return nil
}
