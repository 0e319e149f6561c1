package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"guard-watch/backend/config"
	"guard-watch/backend/internal/dto"
	"guard-watch/backend/internal/model"
	"guard-watch/backend/internal/repository"
)

func newCheckinFixture(shift *model.Shift, maxDistance float64) (CheckinService, *mockShiftRepo, *mockCheckinRepo, *mockAttendanceRepo, *mockAlertRepo, *eventRecorder) {
	shiftRepo := newMockShiftRepo(shift)
	checkinRepo := &mockCheckinRepo{}
	attendanceRepo := newMockAttendanceRepo()
	alertRepo := &mockAlertRepo{}
	recorder := &eventRecorder{}

	repo := &repository.Repository{
		Shift:      shiftRepo,
		Checkin:    checkinRepo,
		Attendance: attendanceRepo,
		Alert:      alertRepo,
	}
	cfg := &config.Config{
		Checkin: config.CheckinConfig{
			MaxDistanceMeters:      maxDistance,
			AttendanceGraceMinutes: 5,
		},
	}
	svc := NewCheckinService(cfg, repo, recorder, zap.NewNop())
	return svc, shiftRepo, checkinRepo, attendanceRepo, alertRepo, recorder
}

// activeShift 当前处于槽位 1 开放窗口内的班次（槽位起点 2 分钟前，宽限 5 分钟）
func activeShift() *model.Shift {
	guardID := "guard-1"
	start := time.Now().Add(-22 * time.Minute)
	return &model.Shift{
		ShiftID:                     "shift-1",
		SiteID:                      "site-1",
		GuardID:                     &guardID,
		StartsAt:                    start,
		EndsAt:                      start.Add(8 * time.Hour),
		RequiredCheckinIntervalMins: 20,
		GraceMinutes:                5,
		Status:                      model.ShiftStatusScheduled,
		CheckInStatus:               "pending",
		MissedCount:                 2,
		Site:                        &model.Site{SiteID: "site-1", Name: "东门岗"},
	}
}

func TestCheckinSatisfiesSlotAndResolvesAlert(t *testing.T) {
	shift := activeShift()
	svc, _, checkinRepo, _, alertRepo, recorder := newCheckinFixture(shift, 0)

	// 槽位 0 的漏检告警仍未处置，签到应将其自动销警
	alertRepo.alerts = append(alertRepo.alerts, &model.Alert{
		AlertID:     "alert-1",
		ShiftID:     shift.ShiftID,
		SiteID:      shift.SiteID,
		Reason:      model.AlertReasonMissedCheckin,
		WindowStart: shift.StartsAt,
	})

	resp, err := svc.Checkin(context.Background(), shift.ShiftID, "guard-1", &dto.CheckinRequest{})
	if err != nil {
		t.Fatalf("签到失败: %v", err)
	}

	if len(checkinRepo.created) != 1 {
		t.Fatalf("签到记录数 = %d, 期望 1", len(checkinRepo.created))
	}
	if checkinRepo.created[0].Status != model.CheckinStatusOnTime {
		t.Errorf("签到状态 = %s, 期望 on_time", checkinRepo.created[0].Status)
	}
	if checkinRepo.created[0].Source != "app" {
		t.Errorf("默认来源 = %s, 期望 app", checkinRepo.created[0].Source)
	}

	// 心跳已写入、漏检计数清零、班次进入 in_progress
	if shift.LastHeartbeatAt == nil {
		t.Fatal("心跳时间未写入")
	}
	if shift.MissedCount != 0 {
		t.Errorf("漏检计数 = %d, 期望清零", shift.MissedCount)
	}
	if shift.Status != model.ShiftStatusInProgress {
		t.Errorf("班次状态 = %s, 期望 in_progress", shift.Status)
	}

	// 告警随签到自动销警，处置人为保安本人
	alert := alertRepo.alerts[0]
	if alert.ResolvedAt == nil {
		t.Fatal("告警未销警")
	}
	if alert.ResolvedByID == nil || *alert.ResolvedByID != "guard-1" {
		t.Error("销警处置人应为签到保安")
	}
	if alert.ResolutionType == nil || *alert.ResolutionType != "auto" {
		t.Error("销警处置方式应为 auto")
	}
	if len(recorder.events) != 1 || recorder.events[0].payload["type"] != EventAlertUpdated {
		t.Errorf("期望 1 条 alert_updated 事件, 实际 %v", recorder.events)
	}

	// next_due_at 为下一槽位起点
	wantNext := shift.StartsAt.Add(40 * time.Minute).Format(time.RFC3339)
	if resp.NextDueAt != wantNext {
		t.Errorf("next_due_at = %s, 期望 %s", resp.NextDueAt, wantNext)
	}
}

func TestCheckinRejectsWrongGuard(t *testing.T) {
	shift := activeShift()
	svc, _, checkinRepo, _, _, _ := newCheckinFixture(shift, 0)

	_, err := svc.Checkin(context.Background(), shift.ShiftID, "guard-2", &dto.CheckinRequest{})
	if !errors.Is(err, ErrNotAssignedGuard) {
		t.Fatalf("err = %v, 期望 ErrNotAssignedGuard", err)
	}
	if len(checkinRepo.created) != 0 {
		t.Fatal("越权签到不应落库")
	}
}

func TestCheckinRejectsTerminalShift(t *testing.T) {
	shift := activeShift()
	shift.Status = model.ShiftStatusCancelled
	svc, _, _, _, _, _ := newCheckinFixture(shift, 0)

	_, err := svc.Checkin(context.Background(), shift.ShiftID, "guard-1", &dto.CheckinRequest{})
	if !errors.Is(err, ErrShiftNotActive) {
		t.Fatalf("err = %v, 期望 ErrShiftNotActive", err)
	}
}

func TestCheckinRejectsAfterGraceExpiry(t *testing.T) {
	shift := activeShift()
	// 槽位 0 宽限截止于开始后 5 分钟，10 分钟前开始且从未签到 → 已过期
	start := time.Now().Add(-10 * time.Minute)
	shift.StartsAt = start
	shift.EndsAt = start.Add(8 * time.Hour)
	svc, _, checkinRepo, _, _, _ := newCheckinFixture(shift, 0)

	_, err := svc.Checkin(context.Background(), shift.ShiftID, "guard-1", &dto.CheckinRequest{})
	if !errors.Is(err, ErrCheckinTooLate) {
		t.Fatalf("err = %v, 期望 ErrCheckinTooLate", err)
	}
	if len(checkinRepo.created) != 0 {
		t.Fatal("过期签到不应落库")
	}
}

func TestCheckinRejectsSatisfiedSlot(t *testing.T) {
	shift := activeShift()
	hb := time.Now().Add(-1 * time.Minute) // 心跳已落在当前槽位内
	shift.LastHeartbeatAt = &hb
	svc, _, _, _, _, _ := newCheckinFixture(shift, 0)

	_, err := svc.Checkin(context.Background(), shift.ShiftID, "guard-1", &dto.CheckinRequest{})
	if !errors.Is(err, ErrAlreadyCheckedIn) {
		t.Fatalf("err = %v, 期望 ErrAlreadyCheckedIn", err)
	}
}

func TestCheckinWithoutOpenAlert(t *testing.T) {
	shift := activeShift()
	svc, _, _, _, alertRepo, recorder := newCheckinFixture(shift, 0)

	_, err := svc.Checkin(context.Background(), shift.ShiftID, "guard-1", &dto.CheckinRequest{Source: "web"})
	if err != nil {
		t.Fatalf("签到失败: %v", err)
	}
	if alertRepo.updates != 0 {
		t.Error("无未处置告警时不应触发销警")
	}
	if len(recorder.events) != 0 {
		t.Error("无销警时不应发布事件")
	}
}

// ── 到岗考勤 ──

// 驻点坐标（雅加达市中心附近），纬度 0.00045° ≈ 50m
const (
	siteLat = -6.2000
	siteLng = 106.8166
)

func fencedShift() *model.Shift {
	shift := activeShift()
	lat, lng := siteLat, siteLng
	shift.Site.Latitude = &lat
	shift.Site.Longitude = &lng
	return shift
}

func TestAttendanceWithinFence(t *testing.T) {
	shift := fencedShift()
	svc, shiftRepo, _, attendanceRepo, _, _ := newCheckinFixture(shift, 100)

	resp, err := svc.Attendance(context.Background(), shift.ShiftID, "guard-1", &dto.AttendanceRequest{
		Location: &dto.LocationPayload{Lat: siteLat + 0.00045, Lng: siteLng},
	})
	if err != nil {
		t.Fatalf("考勤失败: %v", err)
	}

	att := attendanceRepo.byShift[shift.ShiftID]
	if att == nil {
		t.Fatal("考勤记录未创建")
	}
	if att.Status != model.AttendanceStatusPresent {
		t.Errorf("考勤状态 = %s, 期望 present", att.Status)
	}
	if att.DistanceMeters == nil || *att.DistanceMeters > 100 || *att.DistanceMeters < 10 {
		t.Errorf("距离记录异常: %v", att.DistanceMeters)
	}
	if resp.Attendance.DistanceMeters == nil {
		t.Error("响应缺少距离")
	}
	// scheduled 班次随考勤进入 in_progress
	if len(shiftRepo.statusUpdates) != 1 || shiftRepo.statusUpdates[0] != model.ShiftStatusInProgress {
		t.Errorf("班次状态更新 = %v, 期望 [in_progress]", shiftRepo.statusUpdates)
	}
}

func TestAttendanceOutsideFence(t *testing.T) {
	shift := fencedShift()
	svc, _, _, attendanceRepo, _, _ := newCheckinFixture(shift, 100)

	// 纬度偏移 0.00135° ≈ 150m，超出 100m 阈值
	_, err := svc.Attendance(context.Background(), shift.ShiftID, "guard-1", &dto.AttendanceRequest{
		Location: &dto.LocationPayload{Lat: siteLat + 0.00135, Lng: siteLng},
	})

	var fenceErr *GeofenceError
	if !errors.As(err, &fenceErr) {
		t.Fatalf("err = %v, 期望 GeofenceError", err)
	}
	if fenceErr.LimitMeters != 100 {
		t.Errorf("阈值 = %.0f, 期望 100", fenceErr.LimitMeters)
	}
	if fenceErr.DistanceMeters <= 100 {
		t.Errorf("距离 = %.0f, 期望 > 100", fenceErr.DistanceMeters)
	}
	if len(attendanceRepo.byShift) != 0 {
		t.Fatal("围栏外考勤不应落库")
	}
}

func TestAttendanceRequiresLocationWhenFenced(t *testing.T) {
	shift := fencedShift()
	svc, _, _, _, _, _ := newCheckinFixture(shift, 100)

	_, err := svc.Attendance(context.Background(), shift.ShiftID, "guard-1", &dto.AttendanceRequest{})
	if !errors.Is(err, ErrLocationRequired) {
		t.Fatalf("err = %v, 期望 ErrLocationRequired", err)
	}
}

func TestAttendanceFenceDisabledByZeroThreshold(t *testing.T) {
	shift := activeShift() // 驻点未配置坐标
	svc, _, _, attendanceRepo, _, _ := newCheckinFixture(shift, 0)

	_, err := svc.Attendance(context.Background(), shift.ShiftID, "guard-1", &dto.AttendanceRequest{})
	if err != nil {
		t.Fatalf("阈值为 0 时应跳过围栏校验: %v", err)
	}
	att := attendanceRepo.byShift[shift.ShiftID]
	if att == nil {
		t.Fatal("考勤记录未创建")
	}
	if att.DistanceMeters != nil {
		t.Error("围栏关闭时不应记录距离")
	}
}

func TestAttendanceAtMostOnce(t *testing.T) {
	shift := activeShift()
	shift.Attendance = &model.Attendance{AttendanceID: "att-1", ShiftID: shift.ShiftID}
	svc, _, _, _, _, _ := newCheckinFixture(shift, 0)

	_, err := svc.Attendance(context.Background(), shift.ShiftID, "guard-1", &dto.AttendanceRequest{})
	if !errors.Is(err, ErrAttendanceExists) {
		t.Fatalf("err = %v, 期望 ErrAttendanceExists", err)
	}
}

func TestAttendanceDuplicateInsertMapsToExists(t *testing.T) {
	// 关联未预加载但数据库唯一约束命中时，同样归一为 ErrAttendanceExists
	shift := activeShift()
	svc, _, _, attendanceRepo, _, _ := newCheckinFixture(shift, 0)
	attendanceRepo.byShift[shift.ShiftID] = &model.Attendance{AttendanceID: "att-0", ShiftID: shift.ShiftID}

	_, err := svc.Attendance(context.Background(), shift.ShiftID, "guard-1", &dto.AttendanceRequest{})
	if !errors.Is(err, ErrAttendanceExists) {
		t.Fatalf("err = %v, 期望 ErrAttendanceExists", err)
	}
}
