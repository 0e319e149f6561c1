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

// ── 班次模块业务错误 ──

var (
	ErrShiftNotFound      = errors.New("班次不存在")
	ErrShiftTimingInvalid = errors.New("班次时长必须是签到间隔的整数倍且不少于2个槽位")
	ErrShiftGraceInvalid  = errors.New("宽限期必须大于0且小于签到间隔")
)

// ShiftService 班次业务接口
type ShiftService interface {
	// GetWindow 计算班次当前签到时间窗（客户端倒计时展示）
	GetWindow(ctx context.Context, shiftID string) (*dto.ShiftWindowResponse, error)
	// ListMine 查询某人员的班次
	ListMine(ctx context.Context, guardID string, from, until time.Time) ([]dto.ShiftResponse, error)
	Get(ctx context.Context, shiftID string) (*dto.ShiftResponse, error)
}

type shiftService struct {
	repo   *repository.Repository
	logger *zap.Logger
}

// NewShiftService 创建 ShiftService 实例
func NewShiftService(repo *repository.Repository, logger *zap.Logger) ShiftService {
	return &shiftService{repo: repo, logger: logger}
}

// ValidateShiftTiming 校验班次时间不变式：
// 时长必须恰好是签到间隔的整数倍且至少容纳 2 个槽位；宽限期须落在 (0, 间隔) 内。
// 班次的创建与导入发生在外部排班系统，本服务只读班次；
// 导出此函数是为了让该写入路径与本引擎共用同一套校验规则。
func ValidateShiftTiming(startsAt, endsAt time.Time, intervalMins, graceMins int) error {
	if !endsAt.After(startsAt) {
		return ErrShiftTimingInvalid
	}
	if intervalMins <= 0 {
		return ErrShiftTimingInvalid
	}
	interval := time.Duration(intervalMins) * time.Minute
	duration := endsAt.Sub(startsAt)
	if duration%interval != 0 {
		return ErrShiftTimingInvalid
	}
	if duration/interval < 2 {
		return ErrShiftTimingInvalid
	}
	if graceMins <= 0 || time.Duration(graceMins)*time.Minute >= interval {
		return ErrShiftGraceInvalid
	}
	return nil
}

// ResolveShiftBounds 由班次日期与班次类型时刻解析绝对起止时间戳。
// 结束时刻不晚于开始时刻视为跨夜班，结束日顺延一天。
// 与 ValidateShiftTiming 同为外部排班写入路径导出。
func ResolveShiftBounds(date time.Time, shiftType *model.ShiftType, loc *time.Location) (time.Time, time.Time, error) {
	start, err := parseClock(shiftType.StartTime)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := parseClock(shiftType.EndTime)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}

	startsAt := time.Date(date.Year(), date.Month(), date.Day(), start.Hour(), start.Minute(), 0, 0, loc)
	endsAt := time.Date(date.Year(), date.Month(), date.Day(), end.Hour(), end.Minute(), 0, 0, loc)
	if !endsAt.After(startsAt) {
		endsAt = endsAt.AddDate(0, 0, 1)
	}
	return startsAt, endsAt, nil
}

// parseClock 解析 HH:MM 或 HH:MM:SS 格式的当日时刻
func parseClock(value string) (time.Time, error) {
	if len(value) > 5 {
		value = value[:5]
	}
	return time.Parse("15:04", value)
}

func (s *shiftService) GetWindow(ctx context.Context, shiftID string) (*dto.ShiftWindowResponse, error) {
	shift, err := s.repo.Shift.GetByID(ctx, shiftID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrShiftNotFound
		}
		s.logger.Error("查询班次失败", zap.Error(err))
		return nil, err
	}

	win := ComputeWindow(
		shift.StartsAt,
		time.Duration(shift.RequiredCheckinIntervalMins)*time.Minute,
		time.Duration(shift.GraceMinutes)*time.Minute,
		time.Now(),
		shift.LastHeartbeatAt,
	)

	return &dto.ShiftWindowResponse{
		ShiftID:          shift.ShiftID,
		Status:           string(win.Status),
		SlotIndex:        win.SlotIndex,
		CurrentSlotStart: win.CurrentSlotStart.Format(time.RFC3339),
		CurrentSlotEnd:   win.CurrentSlotEnd.Format(time.RFC3339),
		NextSlotStart:    win.NextSlotStart.Format(time.RFC3339),
		RemainingMs:      win.Remaining.Milliseconds(),
	}, nil
}

func (s *shiftService) ListMine(ctx context.Context, guardID string, from, until time.Time) ([]dto.ShiftResponse, error) {
	shifts, err := s.repo.Shift.ListByGuard(ctx, guardID, from, until)
	if err != nil {
		s.logger.Error("查询人员班次失败", zap.Error(err))
		return nil, err
	}

	result := make([]dto.ShiftResponse, 0, len(shifts))
	for i := range shifts {
		result = append(result, toShiftResponse(&shifts[i]))
	}
	return result, nil
}

func (s *shiftService) Get(ctx context.Context, shiftID string) (*dto.ShiftResponse, error) {
	shift, err := s.repo.Shift.GetByID(ctx, shiftID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrShiftNotFound
		}
		return nil, err
	}
	resp := toShiftResponse(shift)
	return &resp, nil
}

func toShiftResponse(shift *model.Shift) dto.ShiftResponse {
	resp := dto.ShiftResponse{
		ID:                          shift.ShiftID,
		ShiftDate:                   shift.ShiftDate.Format("2006-01-02"),
		StartsAt:                    shift.StartsAt.Format(time.RFC3339),
		EndsAt:                      shift.EndsAt.Format(time.RFC3339),
		RequiredCheckinIntervalMins: shift.RequiredCheckinIntervalMins,
		GraceMinutes:                shift.GraceMinutes,
		Status:                      shift.Status,
		CheckInStatus:               shift.CheckInStatus,
		MissedCount:                 shift.MissedCount,
	}
	if shift.LastHeartbeatAt != nil {
		hb := shift.LastHeartbeatAt.Format(time.RFC3339)
		resp.LastHeartbeatAt = &hb
	}
	if shift.Site != nil {
		resp.Site = &dto.SiteBrief{ID: shift.Site.SiteID, Name: shift.Site.Name}
	}
	if shift.Guard != nil {
		resp.Guard = &dto.GuardBrief{ID: shift.Guard.GuardID, Name: shift.Guard.Name}
	}
	if shift.ShiftType != nil {
		resp.ShiftType = &dto.ShiftTypeBrief{
			ID:        shift.ShiftType.ShiftTypeID,
			Name:      shift.ShiftType.Name,
			StartTime: shift.ShiftType.StartTime,
			EndTime:   shift.ShiftType.EndTime,
		}
	}
	if shift.Attendance != nil {
		resp.Attendance = &dto.AttendanceBrief{
			ID:             shift.Attendance.AttendanceID,
			ShiftID:        shift.Attendance.ShiftID,
			At:             shift.Attendance.At.Format(time.RFC3339),
			Status:         shift.Attendance.Status,
			DistanceMeters: shift.Attendance.DistanceMeters,
		}
	}
	return resp
}
