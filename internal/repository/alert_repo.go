package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"guard-watch/backend/internal/model"
	pkgerrors "guard-watch/backend/pkg/errors"
)

// AlertListFilter 告警列表查询条件
type AlertListFilter struct {
	SiteID   string
	ShiftID  string
	Reason   model.AlertReason
	OpenOnly bool
}

// AlertRepository 告警数据访问接口
// (shift_id, reason, window_start) 三元组唯一，Create 对并发竞争到的
// 重复插入返回 pkgerrors.ErrDuplicate，调用方按良性幂等命中处理
type AlertRepository interface {
	Create(ctx context.Context, alert *model.Alert) error
	GetByID(ctx context.Context, id string) (*model.Alert, error)
	// ExistsForSlot 判断某槽位是否已有告警（worker 先查后插的"查"）
	ExistsForSlot(ctx context.Context, shiftID string, reason model.AlertReason, windowStart time.Time) (bool, error)
	// GetLatestOpen 取班次最近一条未处置告警（签到自动销警用）
	GetLatestOpen(ctx context.Context, shiftID string, reason model.AlertReason) (*model.Alert, error)
	Update(ctx context.Context, alert *model.Alert) error
	List(ctx context.Context, filter AlertListFilter, offset, limit int) ([]model.Alert, int64, error)
}

type alertRepo struct {
	db *gorm.DB
}

// NewAlertRepo 创建 AlertRepository 实现
func NewAlertRepo(db *gorm.DB) AlertRepository {
	return &alertRepo{db: db}
}

func (r *alertRepo) Create(ctx context.Context, alert *model.Alert) error {
	err := r.db.WithContext(ctx).Create(alert).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return pkgerrors.ErrDuplicate
	}
	return err
}

func (r *alertRepo) GetByID(ctx context.Context, id string) (*model.Alert, error) {
	var alert model.Alert
	err := r.db.WithContext(ctx).
		Preload("Shift").
		Preload("Shift.Guard").
		Preload("Site").
		Where("alert_id = ?", id).
		First(&alert).Error
	if err != nil {
		return nil, err
	}
	return &alert, nil
}

func (r *alertRepo) ExistsForSlot(ctx context.Context, shiftID string, reason model.AlertReason, windowStart time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Alert{}).
		Where("shift_id = ? AND reason = ? AND window_start = ?", shiftID, reason, windowStart).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *alertRepo) GetLatestOpen(ctx context.Context, shiftID string, reason model.AlertReason) (*model.Alert, error) {
	var alert model.Alert
	err := r.db.WithContext(ctx).
		Where("shift_id = ? AND reason = ? AND resolved_at IS NULL", shiftID, reason).
		Order("window_start DESC").
		First(&alert).Error
	if err != nil {
		return nil, err
	}
	return &alert, nil
}

func (r *alertRepo) Update(ctx context.Context, alert *model.Alert) error {
	return r.db.WithContext(ctx).
		Model(alert).
		Where("alert_id = ?", alert.AlertID).
		Updates(map[string]interface{}{
			"acknowledged_at": alert.AcknowledgedAt,
			"acknowledged_by": alert.AcknowledgedBy,
			"resolved_at":     alert.ResolvedAt,
			"resolved_by_id":  alert.ResolvedByID,
			"resolution_type": alert.ResolutionType,
			"resolution_note": alert.ResolutionNote,
		}).Error
}

func (r *alertRepo) List(ctx context.Context, filter AlertListFilter, offset, limit int) ([]model.Alert, int64, error) {
	var alerts []model.Alert
	var total int64

	db := r.db.WithContext(ctx).Model(&model.Alert{})
	if filter.SiteID != "" {
		db = db.Where("site_id = ?", filter.SiteID)
	}
	if filter.ShiftID != "" {
		db = db.Where("shift_id = ?", filter.ShiftID)
	}
	if filter.Reason != "" {
		db = db.Where("reason = ?", filter.Reason)
	}
	if filter.OpenOnly {
		db = db.Where("resolved_at IS NULL")
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := db.Preload("Shift").Preload("Shift.Guard").Preload("Site").
		Offset(offset).Limit(limit).
		Order("created_at DESC").
		Find(&alerts).Error
	return alerts, total, err
}
