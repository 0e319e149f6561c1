package service

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"guard-watch/backend/internal/model"
	"guard-watch/backend/internal/repository"
	pkgerrors "guard-watch/backend/pkg/errors"
)

// 手写 mock，仅覆盖被测路径，其余方法按零值返回

// ── 班次 ──

type mockShiftRepo struct {
	shifts        map[string]*model.Shift
	heartbeats    []time.Time
	statusUpdates []string
}

func newMockShiftRepo(shifts ...*model.Shift) *mockShiftRepo {
	m := &mockShiftRepo{shifts: make(map[string]*model.Shift)}
	for _, s := range shifts {
		m.shifts[s.ShiftID] = s
	}
	return m
}

func (m *mockShiftRepo) Create(ctx context.Context, shift *model.Shift) error {
	m.shifts[shift.ShiftID] = shift
	return nil
}

func (m *mockShiftRepo) GetByID(ctx context.Context, id string) (*model.Shift, error) {
	if s, ok := m.shifts[id]; ok {
		return s, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockShiftRepo) ListActiveWindow(ctx context.Context, now time.Time) ([]model.Shift, error) {
	return nil, nil
}

func (m *mockShiftRepo) ListLightStates(ctx context.Context, ids []string) ([]repository.ShiftLightState, error) {
	return nil, nil
}

func (m *mockShiftRepo) ListUpcoming(ctx context.Context, from, until time.Time) ([]model.Shift, error) {
	return nil, nil
}

func (m *mockShiftRepo) ListByGuard(ctx context.Context, guardID string, from, until time.Time) ([]model.Shift, error) {
	var out []model.Shift
	for _, s := range m.shifts {
		if s.GuardID != nil && *s.GuardID == guardID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *mockShiftRepo) ApplyHeartbeat(ctx context.Context, shiftID string, at time.Time, checkInStatus, status string) error {
	s, ok := m.shifts[shiftID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	m.heartbeats = append(m.heartbeats, at)
	s.LastHeartbeatAt = &at
	s.CheckInStatus = checkInStatus
	s.Status = status
	s.MissedCount = 0
	return nil
}

func (m *mockShiftRepo) IncrementMissed(ctx context.Context, shiftID string) error {
	if s, ok := m.shifts[shiftID]; ok {
		s.MissedCount++
	}
	return nil
}

func (m *mockShiftRepo) UpdateStatus(ctx context.Context, shiftID, status string) error {
	s, ok := m.shifts[shiftID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	s.Status = status
	m.statusUpdates = append(m.statusUpdates, status)
	return nil
}

// ── 签到记录 ──

type mockCheckinRepo struct {
	created []model.Checkin
}

func (m *mockCheckinRepo) Create(ctx context.Context, checkin *model.Checkin) error {
	checkin.CheckinID = fmt.Sprintf("checkin-%d", len(m.created)+1)
	m.created = append(m.created, *checkin)
	return nil
}

func (m *mockCheckinRepo) ListByShift(ctx context.Context, shiftID string) ([]model.Checkin, error) {
	return m.created, nil
}

// ── 考勤 ──

type mockAttendanceRepo struct {
	byShift map[string]*model.Attendance
	updates map[string]string // attendanceID → 最终状态
}

func newMockAttendanceRepo() *mockAttendanceRepo {
	return &mockAttendanceRepo{
		byShift: make(map[string]*model.Attendance),
		updates: make(map[string]string),
	}
}

func (m *mockAttendanceRepo) Create(ctx context.Context, attendance *model.Attendance) error {
	if _, ok := m.byShift[attendance.ShiftID]; ok {
		return pkgerrors.ErrDuplicate
	}
	attendance.AttendanceID = fmt.Sprintf("att-%d", len(m.byShift)+1)
	m.byShift[attendance.ShiftID] = attendance
	return nil
}

func (m *mockAttendanceRepo) GetByShift(ctx context.Context, shiftID string) (*model.Attendance, error) {
	if a, ok := m.byShift[shiftID]; ok {
		return a, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockAttendanceRepo) UpdateStatus(ctx context.Context, attendanceID, status string) error {
	m.updates[attendanceID] = status
	for _, a := range m.byShift {
		if a.AttendanceID == attendanceID {
			a.Status = status
		}
	}
	return nil
}

// ── 告警 ──

type mockAlertRepo struct {
	alerts  []*model.Alert
	updates int
}

func (m *mockAlertRepo) Create(ctx context.Context, alert *model.Alert) error {
	for _, a := range m.alerts {
		if a.ShiftID == alert.ShiftID && a.Reason == alert.Reason && a.WindowStart.Equal(alert.WindowStart) {
			return pkgerrors.ErrDuplicate
		}
	}
	alert.AlertID = fmt.Sprintf("alert-%d", len(m.alerts)+1)
	m.alerts = append(m.alerts, alert)
	return nil
}

func (m *mockAlertRepo) GetByID(ctx context.Context, id string) (*model.Alert, error) {
	for _, a := range m.alerts {
		if a.AlertID == id {
			return a, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockAlertRepo) ExistsForSlot(ctx context.Context, shiftID string, reason model.AlertReason, windowStart time.Time) (bool, error) {
	for _, a := range m.alerts {
		if a.ShiftID == shiftID && a.Reason == reason && a.WindowStart.Equal(windowStart) {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockAlertRepo) GetLatestOpen(ctx context.Context, shiftID string, reason model.AlertReason) (*model.Alert, error) {
	var latest *model.Alert
	for _, a := range m.alerts {
		if a.ShiftID != shiftID || a.Reason != reason || !a.IsOpen() {
			continue
		}
		if latest == nil || a.WindowStart.After(latest.WindowStart) {
			latest = a
		}
	}
	if latest == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return latest, nil
}

func (m *mockAlertRepo) Update(ctx context.Context, alert *model.Alert) error {
	m.updates++
	for i, a := range m.alerts {
		if a.AlertID == alert.AlertID {
			m.alerts[i] = alert
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (m *mockAlertRepo) List(ctx context.Context, filter repository.AlertListFilter, offset, limit int) ([]model.Alert, int64, error) {
	var out []model.Alert
	for _, a := range m.alerts {
		if filter.OpenOnly && !a.IsOpen() {
			continue
		}
		out = append(out, *a)
	}
	return out, int64(len(out)), nil
}

// ── 事件采集 ──

type eventRecord struct {
	channel string
	payload map[string]interface{}
}

type eventRecorder struct {
	events []eventRecord
}

func (r *eventRecorder) Publish(ctx context.Context, channel string, payload map[string]interface{}) error {
	r.events = append(r.events, eventRecord{channel: channel, payload: payload})
	return nil
}
