package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"guard-watch/backend/internal/model"
	pkgerrors "guard-watch/backend/pkg/errors"
)

// AttendanceRepository 到岗考勤数据访问接口
type AttendanceRepository interface {
	// Create 插入考勤记录；同班次已存在时返回 pkgerrors.ErrDuplicate
	Create(ctx context.Context, attendance *model.Attendance) error
	GetByShift(ctx context.Context, shiftID string) (*model.Attendance, error)
	// UpdateStatus 告警处置改判考勤状态（late / absent），唯一允许的变更
	UpdateStatus(ctx context.Context, attendanceID, status string) error
}

// CheckinRepository 定时签到数据访问接口（只追加）
type CheckinRepository interface {
	Create(ctx context.Context, checkin *model.Checkin) error
	ListByShift(ctx context.Context, shiftID string) ([]model.Checkin, error)
}

// ── Attendance Repository 实现 ──

type attendanceRepo struct {
	db *gorm.DB
}

// NewAttendanceRepo 创建 AttendanceRepository 实现
func NewAttendanceRepo(db *gorm.DB) AttendanceRepository {
	return &attendanceRepo{db: db}
}

func (r *attendanceRepo) Create(ctx context.Context, attendance *model.Attendance) error {
	err := r.db.WithContext(ctx).Create(attendance).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return pkgerrors.ErrDuplicate
	}
	return err
}

func (r *attendanceRepo) GetByShift(ctx context.Context, shiftID string) (*model.Attendance, error) {
	var attendance model.Attendance
	err := r.db.WithContext(ctx).
		Where("shift_id = ?", shiftID).
		First(&attendance).Error
	if err != nil {
		return nil, err
	}
	return &attendance, nil
}

func (r *attendanceRepo) UpdateStatus(ctx context.Context, attendanceID, status string) error {
	return r.db.WithContext(ctx).
		Model(&model.Attendance{}).
		Where("attendance_id = ?", attendanceID).
		Update("status", status).Error
}

// ── Checkin Repository 实现 ──

type checkinRepo struct {
	db *gorm.DB
}

// NewCheckinRepo 创建 CheckinRepository 实现
func NewCheckinRepo(db *gorm.DB) CheckinRepository {
	return &checkinRepo{db: db}
}

func (r *checkinRepo) Create(ctx context.Context, checkin *model.Checkin) error {
	return r.db.WithContext(ctx).Create(checkin).Error
}

func (r *checkinRepo) ListByShift(ctx context.Context, shiftID string) ([]model.Checkin, error) {
	var checkins []model.Checkin
	err := r.db.WithContext(ctx).
		Where("shift_id = ?", shiftID).
		Order("at ASC").
		Find(&checkins).Error
	return checkins, err
}
