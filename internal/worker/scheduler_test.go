package worker

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"guard-watch/backend/config"
	"guard-watch/backend/internal/model"
	"guard-watch/backend/internal/repository"
	"guard-watch/backend/internal/service"
	pkgerrors "guard-watch/backend/pkg/errors"
)

// ── 测试替身 ──

type stubLocker struct {
	deny      bool
	lost      bool
	locks     int
	refreshes int
	unlocks   int
}

func (l *stubLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if l.deny {
		return "", nil
	}
	l.locks++
	return "tok", nil
}

func (l *stubLocker) RefreshLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	l.refreshes++
	return !l.lost, nil
}

func (l *stubLocker) Unlock(ctx context.Context, key, token string) error {
	l.unlocks++
	return nil
}

type capturedEvent struct {
	channel string
	payload map[string]interface{}
}

type stubPublisher struct {
	mu     sync.Mutex
	events []capturedEvent
}

func (p *stubPublisher) Publish(ctx context.Context, channel string, payload map[string]interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, capturedEvent{channel: channel, payload: payload})
	return nil
}

func (p *stubPublisher) byType(eventType string) []capturedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []capturedEvent
	for _, e := range p.events {
		if e.payload["type"] == eventType {
			out = append(out, e)
		}
	}
	return out
}

type fakeShiftRepo struct {
	shifts      []model.Shift
	incremented []string
	listCalls   int
	lightCalls  int
}

func (r *fakeShiftRepo) Create(ctx context.Context, shift *model.Shift) error { return nil }

func (r *fakeShiftRepo) GetByID(ctx context.Context, id string) (*model.Shift, error) {
	for i := range r.shifts {
		if r.shifts[i].ShiftID == id {
			return &r.shifts[i], nil
		}
	}
	return nil, fmt.Errorf("shift %s 不存在", id)
}

func (r *fakeShiftRepo) ListActiveWindow(ctx context.Context, now time.Time) ([]model.Shift, error) {
	r.listCalls++
	var out []model.Shift
	for _, s := range r.shifts {
		if s.GuardID != nil && !now.Before(s.StartsAt) && !now.After(s.EndsAt) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *fakeShiftRepo) ListLightStates(ctx context.Context, ids []string) ([]repository.ShiftLightState, error) {
	r.lightCalls++
	var out []repository.ShiftLightState
	for _, id := range ids {
		for i := range r.shifts {
			s := &r.shifts[i]
			if s.ShiftID == id {
				out = append(out, repository.ShiftLightState{
					ShiftID:         s.ShiftID,
					Status:          s.Status,
					CheckInStatus:   s.CheckInStatus,
					LastHeartbeatAt: s.LastHeartbeatAt,
					MissedCount:     s.MissedCount,
					Attendance:      s.Attendance,
				})
			}
		}
	}
	return out, nil
}

func (r *fakeShiftRepo) ListUpcoming(ctx context.Context, from, until time.Time) ([]model.Shift, error) {
	return nil, nil
}

func (r *fakeShiftRepo) ListByGuard(ctx context.Context, guardID string, from, until time.Time) ([]model.Shift, error) {
	return nil, nil
}

func (r *fakeShiftRepo) ApplyHeartbeat(ctx context.Context, shiftID string, at time.Time, checkInStatus, status string) error {
	return nil
}

func (r *fakeShiftRepo) IncrementMissed(ctx context.Context, shiftID string) error {
	r.incremented = append(r.incremented, shiftID)
	for i := range r.shifts {
		if r.shifts[i].ShiftID == shiftID {
			r.shifts[i].MissedCount++
		}
	}
	return nil
}

func (r *fakeShiftRepo) UpdateStatus(ctx context.Context, shiftID, status string) error { return nil }

type fakeAlertRepo struct {
	alerts []model.Alert
	seq    int
}

func (r *fakeAlertRepo) Create(ctx context.Context, alert *model.Alert) error {
	for _, a := range r.alerts {
		if a.ShiftID == alert.ShiftID && a.Reason == alert.Reason && a.WindowStart.Equal(alert.WindowStart) {
			return pkgerrors.ErrDuplicate
		}
	}
	r.seq++
	alert.AlertID = fmt.Sprintf("alert-%d", r.seq)
	r.alerts = append(r.alerts, *alert)
	return nil
}

func (r *fakeAlertRepo) GetByID(ctx context.Context, id string) (*model.Alert, error) {
	for i := range r.alerts {
		if r.alerts[i].AlertID == id {
			a := r.alerts[i]
			return &a, nil
		}
	}
	return nil, fmt.Errorf("alert %s 不存在", id)
}

func (r *fakeAlertRepo) ExistsForSlot(ctx context.Context, shiftID string, reason model.AlertReason, windowStart time.Time) (bool, error) {
	for _, a := range r.alerts {
		if a.ShiftID == shiftID && a.Reason == reason && a.WindowStart.Equal(windowStart) {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeAlertRepo) GetLatestOpen(ctx context.Context, shiftID string, reason model.AlertReason) (*model.Alert, error) {
	return nil, nil
}

func (r *fakeAlertRepo) Update(ctx context.Context, alert *model.Alert) error { return nil }

func (r *fakeAlertRepo) List(ctx context.Context, filter repository.AlertListFilter, offset, limit int) ([]model.Alert, int64, error) {
	return nil, 0, nil
}

// ── 构造辅助 ──

func newWorkerConfig() *config.Config {
	return &config.Config{
		Checkin: config.CheckinConfig{
			AttendanceGraceMinutes: 5,
		},
		Worker: config.WorkerConfig{
			TickInterval:     5 * time.Second,
			LockTTL:          60 * time.Second,
			FullSyncInterval: 30 * time.Second,
			UpcomingInterval: 60 * time.Second,
			AttentionLead:    60 * time.Second,
		},
	}
}

func newTestScheduler(shiftRepo *fakeShiftRepo, alertRepo *fakeAlertRepo) (*Scheduler, *stubLocker, *stubPublisher) {
	locker := &stubLocker{}
	publisher := &stubPublisher{}
	repo := &repository.Repository{Shift: shiftRepo, Alert: alertRepo}
	s := NewScheduler(newWorkerConfig(), repo, locker, publisher, zap.NewNop())
	return s, locker, publisher
}

func testShift(start time.Time) model.Shift {
	guardID := "guard-1"
	return model.Shift{
		ShiftID:                     "shift-1",
		SiteID:                      "site-1",
		GuardID:                     &guardID,
		ShiftTypeID:                 "type-1",
		StartsAt:                    start,
		EndsAt:                      start.Add(8 * time.Hour),
		RequiredCheckinIntervalMins: 20,
		GraceMinutes:                2,
		Status:                      model.ShiftStatusInProgress,
		CheckInStatus:               "pending",
		Site:                        &model.Site{SiteID: "site-1", Name: "东门岗"},
		Guard:                       &model.Guard{GuardID: "guard-1", Name: "张三"},
	}
}

// ── 用例 ──

func TestTickCreatesAlertsForOverdueShift(t *testing.T) {
	start := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	now := start.Add(30 * time.Minute) // 槽位 1（20:20）宽限期已过，且从未到岗

	shiftRepo := &fakeShiftRepo{shifts: []model.Shift{testShift(start)}}
	alertRepo := &fakeAlertRepo{}
	s, locker, publisher := newTestScheduler(shiftRepo, alertRepo)

	s.tick(context.Background(), now)

	if locker.locks != 1 || locker.unlocks != 1 {
		t.Fatalf("锁获取/释放次数 = %d/%d, 期望 1/1", locker.locks, locker.unlocks)
	}
	if len(alertRepo.alerts) != 2 {
		t.Fatalf("告警数 = %d, 期望 2（考勤 + 签到）", len(alertRepo.alerts))
	}

	var attendance, checkin *model.Alert
	for i := range alertRepo.alerts {
		switch alertRepo.alerts[i].Reason {
		case model.AlertReasonMissedAttendance:
			attendance = &alertRepo.alerts[i]
		case model.AlertReasonMissedCheckin:
			checkin = &alertRepo.alerts[i]
		}
	}
	if attendance == nil || checkin == nil {
		t.Fatal("缺少考勤或签到告警")
	}
	if !attendance.WindowStart.Equal(start) {
		t.Errorf("考勤告警 windowStart = %v, 期望班次开始 %v", attendance.WindowStart, start)
	}
	if !checkin.WindowStart.Equal(start.Add(20 * time.Minute)) {
		t.Errorf("签到告警 windowStart = %v, 期望槽位起点 %v", checkin.WindowStart, start.Add(20*time.Minute))
	}
	if attendance.Severity != model.AlertSeverityCritical {
		t.Errorf("考勤告警级别 = %s, 期望 critical", attendance.Severity)
	}

	// 漏检计数只因签到告警递增，考勤告警不计
	if len(shiftRepo.incremented) != 1 {
		t.Fatalf("IncrementMissed 调用次数 = %d, 期望 1", len(shiftRepo.incremented))
	}

	created := publisher.byType(service.EventAlertCreated)
	if len(created) != 2 {
		t.Fatalf("alert_created 事件数 = %d, 期望 2", len(created))
	}
	wantChannel := service.ChannelSiteAlerts("site-1")
	for _, e := range created {
		if e.channel != wantChannel {
			t.Errorf("事件频道 = %s, 期望 %s", e.channel, wantChannel)
		}
	}
}

func TestTickAlertCreationIsIdempotent(t *testing.T) {
	start := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	now := start.Add(30 * time.Minute)

	shiftRepo := &fakeShiftRepo{shifts: []model.Shift{testShift(start)}}
	alertRepo := &fakeAlertRepo{}
	s, _, publisher := newTestScheduler(shiftRepo, alertRepo)

	s.tick(context.Background(), now)
	s.tick(context.Background(), now.Add(5*time.Second))
	s.tick(context.Background(), now.Add(10*time.Second))

	if len(alertRepo.alerts) != 2 {
		t.Fatalf("重复 tick 后告警数 = %d, 期望仍为 2", len(alertRepo.alerts))
	}
	if len(shiftRepo.incremented) != 1 {
		t.Fatalf("IncrementMissed 调用次数 = %d, 期望 1", len(shiftRepo.incremented))
	}
	if n := len(publisher.byType(service.EventAlertCreated)); n != 2 {
		t.Fatalf("alert_created 事件数 = %d, 期望 2", n)
	}
}

func TestTickCreatesOneAlertPerMissedSlot(t *testing.T) {
	start := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)

	shiftRepo := &fakeShiftRepo{shifts: []model.Shift{testShift(start)}}
	alertRepo := &fakeAlertRepo{}
	s, _, _ := newTestScheduler(shiftRepo, alertRepo)

	// 保安全程未签到，worker 从班次开始逐 tick 推进到 T+42 分钟：
	// 槽位 0（20:00，宽限至 20:02）与槽位 1（20:20，宽限至 20:22）先后错过
	ctx := context.Background()
	for now := start; !now.After(start.Add(42 * time.Minute)); now = now.Add(5 * time.Second) {
		s.tick(ctx, now)
	}

	var checkins []model.Alert
	for _, a := range alertRepo.alerts {
		if a.Reason == model.AlertReasonMissedCheckin {
			checkins = append(checkins, a)
		}
	}
	if len(checkins) != 2 {
		t.Fatalf("签到告警数 = %d, 期望 2（每个错过的槽位各一条）", len(checkins))
	}
	if !checkins[0].WindowStart.Equal(start) {
		t.Errorf("首条告警 windowStart = %v, 期望槽位 0 起点 %v", checkins[0].WindowStart, start)
	}
	if !checkins[1].WindowStart.Equal(start.Add(20 * time.Minute)) {
		t.Errorf("第二条告警 windowStart = %v, 期望槽位 1 起点 %v", checkins[1].WindowStart, start.Add(20*time.Minute))
	}

	// 第二个槽位的告警不得触碰第一条：首条应保持未确认、未处置
	if checkins[0].AcknowledgedAt != nil || checkins[0].ResolvedAt != nil {
		t.Error("首条告警在后续槽位告警创建后被改动")
	}

	if len(shiftRepo.incremented) != 2 {
		t.Fatalf("IncrementMissed 调用次数 = %d, 期望 2", len(shiftRepo.incremented))
	}
	if got := shiftRepo.shifts[0].MissedCount; got != 2 {
		t.Errorf("漏检计数 = %d, 期望 2", got)
	}

	// 考勤宽限（5 分钟）同样错过，额外且仅有一条考勤告警
	if total := len(alertRepo.alerts); total != 3 {
		t.Errorf("告警总数 = %d, 期望 3（2 条签到 + 1 条考勤）", total)
	}
}

func TestTickAbortsWhenLockLostAfterSync(t *testing.T) {
	start := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	now := start.Add(30 * time.Minute)

	shiftRepo := &fakeShiftRepo{shifts: []model.Shift{testShift(start)}}
	alertRepo := &fakeAlertRepo{}
	s, locker, _ := newTestScheduler(shiftRepo, alertRepo)
	locker.lost = true

	s.tick(context.Background(), now)

	if locker.refreshes != 1 {
		t.Fatalf("续期调用次数 = %d, 期望 1", locker.refreshes)
	}
	// 锁被其他副本接管后不得再评估，即便班次已逾期
	if len(alertRepo.alerts) != 0 {
		t.Fatalf("失锁后仍创建了 %d 条告警", len(alertRepo.alerts))
	}
	if locker.unlocks != 1 {
		t.Errorf("释放调用次数 = %d, 期望 1（defer 兜底）", locker.unlocks)
	}
}

func TestTickSendsAttentionOncePerSlot(t *testing.T) {
	start := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	shift := testShift(start)
	shift.Attendance = &model.Attendance{AttendanceID: "att-1", ShiftID: shift.ShiftID, At: start, Status: model.AttendanceStatusPresent}

	shiftRepo := &fakeShiftRepo{shifts: []model.Shift{shift}}
	alertRepo := &fakeAlertRepo{}
	s, _, publisher := newTestScheduler(shiftRepo, alertRepo)

	// 槽位 1 截止 20:22，20:21:30 剩余 30s，进入临期提醒窗口
	now := start.Add(21*time.Minute + 30*time.Second)
	s.tick(context.Background(), now)

	notices := publisher.byType(service.EventAlertAttention)
	if len(notices) != 1 {
		t.Fatalf("临期提醒数 = %d, 期望 1", len(notices))
	}
	if idx := notices[0].payload["slot_index"]; idx != 1 {
		t.Errorf("slot_index = %v, 期望 1", idx)
	}

	// 同槽位内重复 tick 不再提醒
	s.tick(context.Background(), now.Add(5*time.Second))
	if n := len(publisher.byType(service.EventAlertAttention)); n != 1 {
		t.Fatalf("重复 tick 后临期提醒数 = %d, 期望仍为 1", n)
	}
}

func TestTickClearsAttentionAfterHeartbeat(t *testing.T) {
	start := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	shift := testShift(start)
	shift.Attendance = &model.Attendance{AttendanceID: "att-1", ShiftID: shift.ShiftID, At: start, Status: model.AttendanceStatusPresent}

	shiftRepo := &fakeShiftRepo{shifts: []model.Shift{shift}}
	alertRepo := &fakeAlertRepo{}
	s, _, publisher := newTestScheduler(shiftRepo, alertRepo)

	now := start.Add(21*time.Minute + 30*time.Second)
	s.tick(context.Background(), now)
	if n := len(publisher.byType(service.EventAlertAttention)); n != 1 {
		t.Fatalf("临期提醒数 = %d, 期望 1", n)
	}

	// 保安在截止前完成签到，下一轮应广播解除
	hb := start.Add(21*time.Minute + 40*time.Second)
	shiftRepo.shifts[0].LastHeartbeatAt = &hb
	s.tick(context.Background(), now.Add(15*time.Second))

	cleared := publisher.byType(service.EventAlertCleared)
	if len(cleared) != 1 {
		t.Fatalf("解除事件数 = %d, 期望 1", len(cleared))
	}
	if idx := cleared[0].payload["slot_index"]; idx != 1 {
		t.Errorf("解除事件 slot_index = %v, 期望 1", idx)
	}
	if len(alertRepo.alerts) != 0 {
		t.Fatalf("临期提醒不应落库，告警数 = %d", len(alertRepo.alerts))
	}
}

func TestAttendanceAttentionUsesReservedIndex(t *testing.T) {
	start := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	shiftRepo := &fakeShiftRepo{shifts: []model.Shift{testShift(start)}}
	alertRepo := &fakeAlertRepo{}
	s, _, publisher := newTestScheduler(shiftRepo, alertRepo)

	// 到岗截止 20:05，20:04:30 剩余 30s
	now := start.Add(4*time.Minute + 30*time.Second)
	s.tick(context.Background(), now)

	notices := publisher.byType(service.EventAlertAttention)
	if len(notices) != 1 {
		t.Fatalf("临期提醒数 = %d, 期望 1", len(notices))
	}
	if idx := notices[0].payload["slot_index"]; idx != attendanceSlotIndex {
		t.Errorf("slot_index = %v, 期望 %d", idx, attendanceSlotIndex)
	}
	if len(alertRepo.alerts) != 0 {
		t.Fatalf("截止前不应落库告警，告警数 = %d", len(alertRepo.alerts))
	}
}

func TestFullSyncPreservesAttentionState(t *testing.T) {
	start := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	shift := testShift(start)
	shift.Attendance = &model.Attendance{AttendanceID: "att-1", ShiftID: shift.ShiftID, At: start, Status: model.AttendanceStatusPresent}

	shiftRepo := &fakeShiftRepo{shifts: []model.Shift{shift}}
	alertRepo := &fakeAlertRepo{}
	s, _, publisher := newTestScheduler(shiftRepo, alertRepo)

	now := start.Add(21*time.Minute + 30*time.Second)
	s.tick(context.Background(), now)
	if n := len(publisher.byType(service.EventAlertAttention)); n != 1 {
		t.Fatalf("临期提醒数 = %d, 期望 1", n)
	}

	// 强制下一轮走全量同步，提醒状态必须随缓存项保留，不得重复提醒
	s.lastFullSyncAt = time.Time{}
	s.tick(context.Background(), now.Add(5*time.Second))

	if shiftRepo.listCalls < 2 {
		t.Fatalf("全量同步次数 = %d, 期望 >= 2", shiftRepo.listCalls)
	}
	if n := len(publisher.byType(service.EventAlertAttention)); n != 1 {
		t.Fatalf("全量同步后临期提醒数 = %d, 期望仍为 1", n)
	}
}

func TestLightSyncMergesVolatileFields(t *testing.T) {
	start := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	shiftRepo := &fakeShiftRepo{shifts: []model.Shift{testShift(start)}}
	alertRepo := &fakeAlertRepo{}
	s, _, _ := newTestScheduler(shiftRepo, alertRepo)

	now := start.Add(1 * time.Minute)
	s.tick(context.Background(), now) // 首轮全量

	// API 侧写入心跳与考勤，轻量同步应将其合并进缓存
	hb := start.Add(90 * time.Second)
	shiftRepo.shifts[0].LastHeartbeatAt = &hb
	shiftRepo.shifts[0].Attendance = &model.Attendance{AttendanceID: "att-1", ShiftID: "shift-1", At: hb, Status: model.AttendanceStatusPresent}
	shiftRepo.shifts[0].CheckInStatus = "checked_in"

	s.tick(context.Background(), now.Add(5*time.Second))

	if shiftRepo.lightCalls != 1 {
		t.Fatalf("轻量同步次数 = %d, 期望 1", shiftRepo.lightCalls)
	}
	entry := s.cache["shift-1"]
	if entry == nil {
		t.Fatal("缓存中缺少 shift-1")
	}
	if entry.shift.LastHeartbeatAt == nil || !entry.shift.LastHeartbeatAt.Equal(hb) {
		t.Error("心跳时间未合并进缓存")
	}
	if entry.shift.Attendance == nil {
		t.Error("考勤记录未合并进缓存")
	}
}

func TestTickSkipsWhenLockHeldElsewhere(t *testing.T) {
	start := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	shiftRepo := &fakeShiftRepo{shifts: []model.Shift{testShift(start)}}
	alertRepo := &fakeAlertRepo{}
	s, locker, publisher := newTestScheduler(shiftRepo, alertRepo)
	locker.deny = true

	s.tick(context.Background(), start.Add(30*time.Minute))

	if shiftRepo.listCalls != 0 {
		t.Fatalf("锁被占用时不应同步，listCalls = %d", shiftRepo.listCalls)
	}
	if len(alertRepo.alerts) != 0 || len(publisher.events) != 0 {
		t.Fatal("锁被占用时不应产生任何告警或事件")
	}
}

func TestFullSyncBroadcastsActiveShiftsBySite(t *testing.T) {
	start := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	shift := testShift(start)
	shift.Attendance = &model.Attendance{AttendanceID: "att-1", ShiftID: shift.ShiftID, At: start, Status: model.AttendanceStatusPresent}
	hb := start.Add(1 * time.Minute)
	shift.LastHeartbeatAt = &hb

	shiftRepo := &fakeShiftRepo{shifts: []model.Shift{shift}}
	alertRepo := &fakeAlertRepo{}
	s, _, publisher := newTestScheduler(shiftRepo, alertRepo)

	s.tick(context.Background(), start.Add(2*time.Minute))

	var snapshots []capturedEvent
	for _, e := range publisher.events {
		if e.channel == service.ChannelActiveShifts {
			snapshots = append(snapshots, e)
		}
	}
	if len(snapshots) != 1 {
		t.Fatalf("在岗快照数 = %d, 期望 1", len(snapshots))
	}
	sites, ok := snapshots[0].payload["sites"].([]map[string]interface{})
	if !ok || len(sites) != 1 {
		t.Fatalf("快照驻点分组异常: %v", snapshots[0].payload["sites"])
	}
}
