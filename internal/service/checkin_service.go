package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"guard-watch/backend/config"
	"guard-watch/backend/internal/dto"
	"guard-watch/backend/internal/model"
	"guard-watch/backend/internal/repository"
	pkgerrors "guard-watch/backend/pkg/errors"
	"guard-watch/backend/pkg/geo"
)

// ── 签到/考勤模块业务错误 ──

var (
	ErrNotAssignedGuard = errors.New("仅班次指派的保安可执行此操作")
	ErrShiftNotActive   = errors.New("班次不在进行时段内")
	ErrCheckinTooLate   = errors.New("本槽位签到已截止，请等待下一槽位")
	ErrAlreadyCheckedIn = errors.New("本槽位已签到")
	ErrAttendanceExists = errors.New("该班次已有考勤记录")
	ErrLocationRequired = errors.New("已启用围栏校验，必须上报定位")
	ErrSiteNoCoordinate = errors.New("驻点未配置坐标，无法执行围栏校验")
)

// GeofenceError 围栏校验失败：距离超出阈值
type GeofenceError struct {
	DistanceMeters float64
	LimitMeters    float64
}

func (e *GeofenceError) Error() string {
	return fmt.Sprintf("距离驻点 %.0fm，超出围栏阈值 %.0fm", e.DistanceMeters, e.LimitMeters)
}

// CheckinService 签到/考勤业务接口
type CheckinService interface {
	// Checkin 定时签到：满足当前槽位、更新心跳、清零漏检计数、自动销警
	Checkin(ctx context.Context, shiftID, guardID string, req *dto.CheckinRequest) (*dto.CheckinResponse, error)
	// Attendance 到岗考勤：每班次一次，含地理围栏校验
	Attendance(ctx context.Context, shiftID, guardID string, req *dto.AttendanceRequest) (*dto.AttendanceResponse, error)
}

type checkinService struct {
	cfg       *config.Config
	repo      *repository.Repository
	publisher EventPublisher
	logger    *zap.Logger
}

// NewCheckinService 创建 CheckinService 实例
func NewCheckinService(
	cfg *config.Config,
	repo *repository.Repository,
	publisher EventPublisher,
	logger *zap.Logger,
) CheckinService {
	return &checkinService{
		cfg:       cfg,
		repo:      repo,
		publisher: publisher,
		logger:    logger,
	}
}

func (s *checkinService) Checkin(ctx context.Context, shiftID, guardID string, req *dto.CheckinRequest) (*dto.CheckinResponse, error) {
	now := time.Now()

	shift, err := s.repo.Shift.GetByID(ctx, shiftID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrShiftNotFound
		}
		s.logger.Error("查询班次失败", zap.Error(err))
		return nil, err
	}

	// 1. 身份：仅指派保安本人可签到
	if shift.GuardID == nil || *shift.GuardID != guardID {
		return nil, ErrNotAssignedGuard
	}

	// 2. 班次必须在进行时段内且非终态
	if shift.IsTerminal() || !shift.WithinWindow(now) {
		return nil, ErrShiftNotActive
	}

	// 3. 时间窗裁决 — 与 worker 评估共用同一计算函数
	interval := time.Duration(shift.RequiredCheckinIntervalMins) * time.Minute
	grace := time.Duration(shift.GraceMinutes) * time.Minute
	win := ComputeWindow(shift.StartsAt, interval, grace, now, shift.LastHeartbeatAt)

	switch win.Status {
	case WindowCompleted:
		return nil, ErrAlreadyCheckedIn
	case WindowLate:
		return nil, ErrCheckinTooLate
	}

	// 4. 落库：签到记录 + 班次心跳 + 自动销警，单事务
	source := req.Source
	if source == "" {
		source = "app"
	}
	checkin := &model.Checkin{
		ShiftID: shiftID,
		GuardID: guardID,
		At:      now,
		// 严格时间窗下不存在"迟到签到"：窗口外直接拒绝
		Status: model.CheckinStatusOnTime,
		Source: source,
	}
	if req.Location != nil {
		checkin.Latitude = &req.Location.Lat
		checkin.Longitude = &req.Location.Lng
	}

	var resolvedAlert *model.Alert
	err = s.repo.Transaction(ctx, func(txRepo *repository.Repository) error {
		if err := txRepo.Checkin.Create(ctx, checkin); err != nil {
			return err
		}

		status := shift.Status
		if status == model.ShiftStatusScheduled {
			status = model.ShiftStatusInProgress
		}
		if err := txRepo.Shift.ApplyHeartbeat(ctx, shiftID, now, model.CheckinStatusOnTime, status); err != nil {
			return err
		}

		// 最近一条未处置的漏检告警随本次签到自动销警
		alert, err := txRepo.Alert.GetLatestOpen(ctx, shiftID, model.AlertReasonMissedCheckin)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		resolutionType := "auto"
		alert.ResolvedAt = &now
		alert.ResolvedByID = &guardID
		alert.ResolutionType = &resolutionType
		if err := txRepo.Alert.Update(ctx, alert); err != nil {
			return err
		}
		resolvedAlert = alert
		return nil
	})
	if err != nil {
		s.logger.Error("签到事务失败", zap.String("shift_id", shiftID), zap.Error(err))
		return nil, err
	}

	// 5. 事务提交后尽力通知，失败只记日志
	if resolvedAlert != nil && s.publisher != nil {
		payload := map[string]interface{}{
			"type":     EventAlertUpdated,
			"alert_id": resolvedAlert.AlertID,
			"shift_id": shiftID,
			"reason":   string(resolvedAlert.Reason),
		}
		if err := s.publisher.Publish(ctx, ChannelSiteAlerts(shift.SiteID), payload); err != nil {
			s.logger.Warn("发布销警事件失败", zap.Error(err))
		}
	}

	return &dto.CheckinResponse{
		Checkin: dto.CheckinBrief{
			ID:      checkin.CheckinID,
			ShiftID: shiftID,
			At:      now.Format(time.RFC3339),
			Status:  checkin.Status,
			Source:  checkin.Source,
		},
		NextDueAt: win.NextSlotStart.Format(time.RFC3339),
		Status:    model.CheckinStatusOnTime,
	}, nil
}

func (s *checkinService) Attendance(ctx context.Context, shiftID, guardID string, req *dto.AttendanceRequest) (*dto.AttendanceResponse, error) {
	now := time.Now()

	shift, err := s.repo.Shift.GetByID(ctx, shiftID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrShiftNotFound
		}
		s.logger.Error("查询班次失败", zap.Error(err))
		return nil, err
	}

	if shift.GuardID == nil || *shift.GuardID != guardID {
		return nil, ErrNotAssignedGuard
	}
	if shift.IsTerminal() || now.After(shift.EndsAt) {
		return nil, ErrShiftNotActive
	}
	if shift.Attendance != nil {
		return nil, ErrAttendanceExists
	}

	attendance := &model.Attendance{
		ShiftID: shiftID,
		GuardID: guardID,
		At:      now,
		Status:  model.AttendanceStatusPresent,
	}

	// 地理围栏：阈值配置为 0 时关闭
	if limit := s.cfg.Checkin.MaxDistanceMeters; limit > 0 {
		if req.Location == nil {
			return nil, ErrLocationRequired
		}
		if shift.Site == nil || shift.Site.Latitude == nil || shift.Site.Longitude == nil {
			return nil, ErrSiteNoCoordinate
		}
		distance := geo.HaversineMeters(
			req.Location.Lat, req.Location.Lng,
			*shift.Site.Latitude, *shift.Site.Longitude,
		)
		if distance > limit {
			return nil, &GeofenceError{DistanceMeters: distance, LimitMeters: limit}
		}
		attendance.DistanceMeters = &distance
	}
	if req.Location != nil {
		attendance.Latitude = &req.Location.Lat
		attendance.Longitude = &req.Location.Lng
	}

	err = s.repo.Transaction(ctx, func(txRepo *repository.Repository) error {
		if err := txRepo.Attendance.Create(ctx, attendance); err != nil {
			if errors.Is(err, pkgerrors.ErrDuplicate) {
				return ErrAttendanceExists
			}
			return err
		}
		if shift.Status == model.ShiftStatusScheduled {
			return txRepo.Shift.UpdateStatus(ctx, shiftID, model.ShiftStatusInProgress)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrAttendanceExists) {
			return nil, err
		}
		s.logger.Error("考勤事务失败", zap.String("shift_id", shiftID), zap.Error(err))
		return nil, err
	}

	return &dto.AttendanceResponse{
		Attendance: dto.AttendanceBrief{
			ID:             attendance.AttendanceID,
			ShiftID:        shiftID,
			At:             now.Format(time.RFC3339),
			Status:         attendance.Status,
			DistanceMeters: attendance.DistanceMeters,
		},
	}, nil
}
