package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"guard-watch/backend/internal/dto"
	"guard-watch/backend/internal/model"
	"guard-watch/backend/internal/repository"
)

// ── 告警模块业务错误 ──

var (
	ErrAlertNotFound        = errors.New("告警不存在")
	ErrAlertAlreadyResolved = errors.New("告警已处置")
)

// AlertService 告警业务接口
type AlertService interface {
	// Resolve 管理员处置告警：resolve 判定违规成立，forgive 豁免。
	// missed_attendance 告警处置会联动改判考勤状态：resolve→absent，forgive→late；
	// missed_checkin 告警的 forgive 仅记录处置方式，不回冲漏检计数。
	Resolve(ctx context.Context, alertID, adminID string, req *dto.ResolveAlertRequest) (*dto.AlertResponse, error)
	Acknowledge(ctx context.Context, alertID, adminID string) (*dto.AlertResponse, error)
	List(ctx context.Context, req *dto.AlertListRequest) ([]dto.AlertResponse, int64, error)
	Get(ctx context.Context, alertID string) (*dto.AlertResponse, error)
}

type alertService struct {
	repo      *repository.Repository
	publisher EventPublisher
	logger    *zap.Logger
}

// NewAlertService 创建 AlertService 实例
func NewAlertService(repo *repository.Repository, publisher EventPublisher, logger *zap.Logger) AlertService {
	return &alertService{repo: repo, publisher: publisher, logger: logger}
}

func (s *alertService) Resolve(ctx context.Context, alertID, adminID string, req *dto.ResolveAlertRequest) (*dto.AlertResponse, error) {
	alert, err := s.repo.Alert.GetByID(ctx, alertID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAlertNotFound
		}
		s.logger.Error("查询告警失败", zap.Error(err))
		return nil, err
	}
	if !alert.IsOpen() {
		return nil, ErrAlertAlreadyResolved
	}

	now := time.Now()
	alert.ResolvedAt = &now
	alert.ResolvedByID = &adminID
	alert.ResolutionType = &req.Outcome
	if req.Note != "" {
		alert.ResolutionNote = &req.Note
	}

	err = s.repo.Transaction(ctx, func(txRepo *repository.Repository) error {
		if err := txRepo.Alert.Update(ctx, alert); err != nil {
			return err
		}

		// 告警原因为封闭枚举，新增值必须在此显式处理
		switch alert.Reason {
		case model.AlertReasonMissedAttendance:
			// resolve 判定缺岗 → absent；forgive 视为迟到 → late
			status := model.AttendanceStatusAbsent
			if req.Outcome == model.AlertResolutionForgive {
				status = model.AttendanceStatusLate
			}
			return s.adjudicateAttendance(ctx, txRepo, alert, status, adminID, now)
		case model.AlertReasonMissedCheckin:
			// 漏检计数保持原样：resolve 保留影响，forgive 只改告警记录
			return nil
		default:
			s.logger.Error("未知告警原因", zap.String("reason", string(alert.Reason)))
			return nil
		}
	})
	if err != nil {
		s.logger.Error("处置告警事务失败", zap.String("alert_id", alertID), zap.Error(err))
		return nil, err
	}

	s.publishAlertEvent(ctx, EventAlertUpdated, alert)

	resp := toAlertResponse(alert)
	return &resp, nil
}

// adjudicateAttendance 按处置结论改判考勤状态。
// 人员从未到岗时并无考勤记录，此时补插一条终审状态的记录作为裁定结果。
func (s *alertService) adjudicateAttendance(ctx context.Context, txRepo *repository.Repository, alert *model.Alert, status, adminID string, now time.Time) error {
	attendance, err := txRepo.Attendance.GetByShift(ctx, alert.ShiftID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		guardID := adminID
		if alert.Shift != nil && alert.Shift.GuardID != nil {
			guardID = *alert.Shift.GuardID
		}
		return txRepo.Attendance.Create(ctx, &model.Attendance{
			ShiftID: alert.ShiftID,
			GuardID: guardID,
			At:      now,
			Status:  status,
		})
	}
	return txRepo.Attendance.UpdateStatus(ctx, attendance.AttendanceID, status)
}

func (s *alertService) Acknowledge(ctx context.Context, alertID, adminID string) (*dto.AlertResponse, error) {
	alert, err := s.repo.Alert.GetByID(ctx, alertID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAlertNotFound
		}
		return nil, err
	}

	if alert.AcknowledgedAt == nil {
		now := time.Now()
		alert.AcknowledgedAt = &now
		alert.AcknowledgedBy = &adminID
		if err := s.repo.Alert.Update(ctx, alert); err != nil {
			s.logger.Error("确认告警失败", zap.Error(err))
			return nil, err
		}
		s.publishAlertEvent(ctx, EventAlertUpdated, alert)
	}

	resp := toAlertResponse(alert)
	return &resp, nil
}

func (s *alertService) List(ctx context.Context, req *dto.AlertListRequest) ([]dto.AlertResponse, int64, error) {
	filter := repository.AlertListFilter{
		SiteID:   req.SiteID,
		ShiftID:  req.ShiftID,
		Reason:   model.AlertReason(req.Reason),
		OpenOnly: req.OpenOnly,
	}

	alerts, total, err := s.repo.Alert.List(ctx, filter, req.Offset(), req.Limit())
	if err != nil {
		s.logger.Error("查询告警列表失败", zap.Error(err))
		return nil, 0, err
	}

	result := make([]dto.AlertResponse, 0, len(alerts))
	for i := range alerts {
		result = append(result, toAlertResponse(&alerts[i]))
	}
	return result, total, nil
}

func (s *alertService) Get(ctx context.Context, alertID string) (*dto.AlertResponse, error) {
	alert, err := s.repo.Alert.GetByID(ctx, alertID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAlertNotFound
		}
		return nil, err
	}
	resp := toAlertResponse(alert)
	return &resp, nil
}

func (s *alertService) publishAlertEvent(ctx context.Context, eventType string, alert *model.Alert) {
	if s.publisher == nil {
		return
	}
	payload := map[string]interface{}{
		"type":     eventType,
		"alert_id": alert.AlertID,
		"shift_id": alert.ShiftID,
		"reason":   string(alert.Reason),
	}
	if err := s.publisher.Publish(ctx, ChannelSiteAlerts(alert.SiteID), payload); err != nil {
		s.logger.Warn("发布告警事件失败", zap.Error(err))
	}
}

func toAlertResponse(alert *model.Alert) dto.AlertResponse {
	resp := dto.AlertResponse{
		ID:          alert.AlertID,
		ShiftID:     alert.ShiftID,
		SiteID:      alert.SiteID,
		Reason:      string(alert.Reason),
		Severity:    alert.Severity,
		WindowStart: alert.WindowStart.Format(time.RFC3339),
		CreatedAt:   alert.CreatedAt.Format(time.RFC3339),
	}
	if alert.AcknowledgedAt != nil {
		v := alert.AcknowledgedAt.Format(time.RFC3339)
		resp.AcknowledgedAt = &v
		resp.AcknowledgedBy = alert.AcknowledgedBy
	}
	if alert.ResolvedAt != nil {
		v := alert.ResolvedAt.Format(time.RFC3339)
		resp.ResolvedAt = &v
		resp.ResolvedByID = alert.ResolvedByID
		resp.ResolutionType = alert.ResolutionType
		resp.ResolutionNote = alert.ResolutionNote
	}
	if alert.Site != nil {
		resp.Site = &dto.SiteBrief{ID: alert.Site.SiteID, Name: alert.Site.Name}
	}
	if alert.Shift != nil && alert.Shift.Guard != nil {
		resp.Guard = &dto.GuardBrief{ID: alert.Shift.Guard.GuardID, Name: alert.Shift.Guard.Name}
	}
	return resp
}
