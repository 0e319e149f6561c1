package repository

import (
	"context"

	"gorm.io/gorm"

	"guard-watch/backend/internal/model"
)

// SiteRepository 驻点数据访问接口
type SiteRepository interface {
	Create(ctx context.Context, site *model.Site) error
	GetByID(ctx context.Context, id string) (*model.Site, error)
	List(ctx context.Context) ([]model.Site, error)
}

// ShiftTypeRepository 班次类型数据访问接口
type ShiftTypeRepository interface {
	Create(ctx context.Context, shiftType *model.ShiftType) error
	GetByID(ctx context.Context, id string) (*model.ShiftType, error)
	List(ctx context.Context) ([]model.ShiftType, error)
}

// ── Site Repository 实现 ──

type siteRepo struct {
	db *gorm.DB
}

// NewSiteRepo 创建 SiteRepository 实现
func NewSiteRepo(db *gorm.DB) SiteRepository {
	return &siteRepo{db: db}
}

func (r *siteRepo) Create(ctx context.Context, site *model.Site) error {
	return r.db.WithContext(ctx).Create(site).Error
}

func (r *siteRepo) GetByID(ctx context.Context, id string) (*model.Site, error) {
	var site model.Site
	err := r.db.WithContext(ctx).
		Where("site_id = ?", id).
		First(&site).Error
	if err != nil {
		return nil, err
	}
	return &site, nil
}

func (r *siteRepo) List(ctx context.Context) ([]model.Site, error) {
	var sites []model.Site
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("name ASC").
		Find(&sites).Error
	return sites, err
}

// ── ShiftType Repository 实现 ──

type shiftTypeRepo struct {
	db *gorm.DB
}

// NewShiftTypeRepo 创建 ShiftTypeRepository 实现
func NewShiftTypeRepo(db *gorm.DB) ShiftTypeRepository {
	return &shiftTypeRepo{db: db}
}

func (r *shiftTypeRepo) Create(ctx context.Context, shiftType *model.ShiftType) error {
	return r.db.WithContext(ctx).Create(shiftType).Error
}

func (r *shiftTypeRepo) GetByID(ctx context.Context, id string) (*model.ShiftType, error) {
	var shiftType model.ShiftType
	err := r.db.WithContext(ctx).
		Where("shift_type_id = ?", id).
		First(&shiftType).Error
	if err != nil {
		return nil, err
	}
	return &shiftType, nil
}

func (r *shiftTypeRepo) List(ctx context.Context) ([]model.ShiftType, error) {
	var shiftTypes []model.ShiftType
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("start_time ASC").
		Find(&shiftTypes).Error
	return shiftTypes, err
}
