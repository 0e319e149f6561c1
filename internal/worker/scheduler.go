package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"guard-watch/backend/config"
	"guard-watch/backend/internal/model"
	"guard-watch/backend/internal/repository"
	"guard-watch/backend/internal/service"
	pkgerrors "guard-watch/backend/pkg/errors"
)

// Locker 分布式互斥锁抽象（生产实现为 pkg/redis.Client）
// 多副本部署时每个 tick 只允许一个副本执行评估；TTL 远大于 tick 周期，
// 持锁者崩溃后锁自动过期，下一副本接管
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, error)
	RefreshLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key, token string) error
}

const schedulerLockKey = "worker:scheduler:lock"

// lastAttentionIndexSent 的取值约定：
// attentionNone 表示尚未发过临期提醒；attendanceSlotIndex(-1) 预留给到岗考勤；
// >=0 为签到槽位索引
const (
	attentionNone       = -2
	attendanceSlotIndex = -1
)

// cacheEntry 班次缓存项
// 临期提醒状态必须随缓存项携带，全量重同步时仅为仍然在册的班次显式保留，
// 避免游离的 id→index 映射在缓存替换后残留脏数据
type cacheEntry struct {
	shift                  *model.Shift
	lastAttentionIndexSent int
}

// Scheduler 调度 worker：固定周期评估所有进行中班次的签到/考勤义务，
// 创建与清除告警，广播看板快照
type Scheduler struct {
	cfg       *config.Config
	repo      *repository.Repository
	locker    Locker
	publisher service.EventPublisher
	logger    *zap.Logger

	// 缓存为本副本私有，不跨副本共享
	cache          map[string]*cacheEntry
	lastFullSyncAt time.Time
	lastUpcomingAt time.Time
}

// NewScheduler 创建调度 worker
func NewScheduler(
	cfg *config.Config,
	repo *repository.Repository,
	locker Locker,
	publisher service.EventPublisher,
	logger *zap.Logger,
) *Scheduler {
	return &Scheduler{
		cfg:       cfg,
		repo:      repo,
		locker:    locker,
		publisher: publisher,
		logger:    logger,
		cache:     make(map[string]*cacheEntry),
	}
}

// Run 启动 tick 循环，直到 ctx 取消。
// 关闭是协作式的：当前 tick 跑完才退出，不做 tick 中途打断。
func (w *Scheduler) Run(ctx context.Context) {
	w.logger.Info("调度 worker 启动",
		zap.Duration("tick", w.cfg.Worker.TickInterval),
		zap.Duration("lock_ttl", w.cfg.Worker.LockTTL),
	)

	for {
		start := time.Now()
		w.tick(ctx, start)

		// tick 超时则零休眠立即开始下一轮
		sleep := w.cfg.Worker.TickInterval - time.Since(start)
		if sleep < 0 {
			sleep = 0
		}
		select {
		case <-ctx.Done():
			w.logger.Info("调度 worker 退出")
			return
		case <-time.After(sleep):
		}
	}
}

// tick 单轮评估。任何环节出错都不能让 worker 直接挂掉，
// 锁必须释放以便其他副本/下一轮接续。
func (w *Scheduler) tick(ctx context.Context, now time.Time) {
	token, err := w.locker.TryLock(ctx, schedulerLockKey, w.cfg.Worker.LockTTL)
	if err != nil {
		w.logger.Warn("获取调度锁失败，跳过本轮", zap.Error(err))
		return
	}
	if token == "" {
		// 其他副本活跃，本轮完全跳过
		return
	}
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("tick 评估 panic", zap.Any("panic", r))
		}
		if err := w.locker.Unlock(ctx, schedulerLockKey, token); err != nil {
			w.logger.Warn("释放调度锁失败", zap.Error(err))
		}
	}()

	fullSync := len(w.cache) == 0 || now.Sub(w.lastFullSyncAt) >= w.cfg.Worker.FullSyncInterval
	if fullSync {
		if err := w.fullSync(ctx, now); err != nil {
			w.logger.Error("全量同步失败", zap.Error(err))
			return
		}
	} else {
		if err := w.lightSync(ctx); err != nil {
			w.logger.Error("轻量同步失败", zap.Error(err))
			return
		}
	}

	// 同步阶段含 DB 查询，可能吃掉可观的锁存续时间；评估前续期一次。
	// 锁已被其他副本接管则放弃本轮，续期出错时锁 TTL 仍远大于 tick 周期，继续评估
	if ok, err := w.locker.RefreshLock(ctx, schedulerLockKey, token, w.cfg.Worker.LockTTL); err != nil {
		w.logger.Warn("调度锁续期失败", zap.Error(err))
	} else if !ok {
		w.logger.Warn("调度锁已失效，放弃本轮评估")
		return
	}

	for _, entry := range w.cache {
		// 单个班次评估出错不得中断其余班次
		w.evaluateIsolated(ctx, now, entry)
	}

	if fullSync {
		w.broadcastActiveShifts(ctx)
	}
	if now.Sub(w.lastUpcomingAt) >= w.cfg.Worker.UpcomingInterval {
		w.broadcastUpcomingShifts(ctx, now)
		w.lastUpcomingAt = now
	}
}

// ── 缓存同步 ──

// fullSync 全量重建缓存：查询所有进行时段内、已排人的班次（含全部关联），
// 并为重同步后仍存在的班次保留临期提醒状态
func (w *Scheduler) fullSync(ctx context.Context, now time.Time) error {
	shifts, err := w.repo.Shift.ListActiveWindow(ctx, now)
	if err != nil {
		return err
	}

	next := make(map[string]*cacheEntry, len(shifts))
	for i := range shifts {
		shift := &shifts[i]
		entry := &cacheEntry{shift: shift, lastAttentionIndexSent: attentionNone}
		if old, ok := w.cache[shift.ShiftID]; ok {
			entry.lastAttentionIndexSent = old.lastAttentionIndexSent
		}
		next[shift.ShiftID] = entry
	}

	w.cache = next
	w.lastFullSyncAt = now
	w.logger.Debug("全量同步完成", zap.Int("shifts", len(next)))
	return nil
}

// lightSync 轻量同步：只拉取缓存中班次的易变字段并原地合并，
// 避免每 5 秒重复 join 驻点/人员/类型
func (w *Scheduler) lightSync(ctx context.Context) error {
	ids := make([]string, 0, len(w.cache))
	for id := range w.cache {
		ids = append(ids, id)
	}

	states, err := w.repo.Shift.ListLightStates(ctx, ids)
	if err != nil {
		return err
	}

	for _, st := range states {
		entry, ok := w.cache[st.ShiftID]
		if !ok {
			continue
		}
		entry.shift.Status = st.Status
		entry.shift.CheckInStatus = st.CheckInStatus
		entry.shift.LastHeartbeatAt = st.LastHeartbeatAt
		entry.shift.MissedCount = st.MissedCount
		entry.shift.Attendance = st.Attendance
	}
	return nil
}

// ── 班次评估 ──

func (w *Scheduler) evaluateIsolated(ctx context.Context, now time.Time, entry *cacheEntry) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("班次评估 panic",
				zap.String("shift_id", entry.shift.ShiftID),
				zap.Any("panic", r),
			)
		}
	}()
	if err := w.evaluate(ctx, now, entry); err != nil {
		w.logger.Error("班次评估失败",
			zap.String("shift_id", entry.shift.ShiftID),
			zap.Error(err),
		)
	}
}

func (w *Scheduler) evaluate(ctx context.Context, now time.Time, entry *cacheEntry) error {
	shift := entry.shift

	// 已终态或已过结束时刻的班次不再评估，等全量同步将其移出缓存
	if shift.IsTerminal() || now.After(shift.EndsAt) {
		return nil
	}

	w.clearStaleAttention(ctx, now, entry)

	if err := w.evaluateAttendance(ctx, now, entry); err != nil {
		return err
	}
	return w.evaluateCheckin(ctx, now, entry)
}

// clearStaleAttention 已发出的临期提醒在义务被满足或槽位已过后广播解除并遗忘
func (w *Scheduler) clearStaleAttention(ctx context.Context, now time.Time, entry *cacheEntry) {
	warned := entry.lastAttentionIndexSent
	if warned == attentionNone {
		return
	}
	shift := entry.shift

	cleared := false
	if warned == attendanceSlotIndex {
		deadline := shift.StartsAt.Add(w.attendanceGrace())
		cleared = shift.Attendance != nil || now.After(deadline)
	} else {
		interval := time.Duration(shift.RequiredCheckinIntervalMins) * time.Minute
		warnedSlotStart := shift.StartsAt.Add(time.Duration(warned) * interval)
		heartbeatOK := shift.LastHeartbeatAt != nil && !shift.LastHeartbeatAt.Before(warnedSlotStart)
		slotPassed := now.After(warnedSlotStart.Add(time.Duration(shift.GraceMinutes) * time.Minute))
		cleared = heartbeatOK || slotPassed
	}

	if cleared {
		w.publishAttention(ctx, service.EventAlertCleared, shift, warned, 0)
		entry.lastAttentionIndexSent = attentionNone
	}
}

// evaluateAttendance 到岗义务：班次开始后固定宽限期内须有考勤记录，
// 与签到间隔无关
func (w *Scheduler) evaluateAttendance(ctx context.Context, now time.Time, entry *cacheEntry) error {
	shift := entry.shift
	if shift.Attendance != nil {
		return nil
	}

	deadline := shift.StartsAt.Add(w.attendanceGrace())

	if now.Before(deadline) {
		remaining := deadline.Sub(now)
		if remaining <= w.cfg.Worker.AttentionLead && entry.lastAttentionIndexSent != attendanceSlotIndex {
			w.publishAttention(ctx, service.EventAlertAttention, shift, attendanceSlotIndex, remaining)
			entry.lastAttentionIndexSent = attendanceSlotIndex
		}
		return nil
	}

	// 宽限期已过且无考勤 → 落库告警，windowStart 取班次开始时刻
	return w.createAlert(ctx, entry, model.AlertReasonMissedAttendance, shift.StartsAt, false)
}

// evaluateCheckin 签到义务：时间窗计算与签到接口共用同一函数
func (w *Scheduler) evaluateCheckin(ctx context.Context, now time.Time, entry *cacheEntry) error {
	shift := entry.shift
	interval := time.Duration(shift.RequiredCheckinIntervalMins) * time.Minute
	grace := time.Duration(shift.GraceMinutes) * time.Minute

	win := service.ComputeWindow(shift.StartsAt, interval, grace, now, shift.LastHeartbeatAt)

	// 告警原因为封闭枚举，评估分支必须穷尽时间窗状态
	switch win.Status {
	case service.WindowLate:
		return w.createAlert(ctx, entry, model.AlertReasonMissedCheckin, win.CurrentSlotStart, true)
	case service.WindowOpen:
		if win.Remaining <= w.cfg.Worker.AttentionLead && entry.lastAttentionIndexSent != win.SlotIndex {
			w.publishAttention(ctx, service.EventAlertAttention, shift, win.SlotIndex, win.Remaining)
			entry.lastAttentionIndexSent = win.SlotIndex
		}
		return nil
	case service.WindowEarly, service.WindowCompleted:
		return nil
	default:
		return fmt.Errorf("未知时间窗状态: %s", win.Status)
	}
}

// ── 告警创建 ──

// createAlert 幂等创建告警：先查后插，(shift, reason, windowStart) 唯一约束
// 兜底并发竞争。插入、漏检计数递增、关联回读在同一事务内完成；
// 事件发布在事务提交后尽力执行，失败不回滚告警。
func (w *Scheduler) createAlert(ctx context.Context, entry *cacheEntry, reason model.AlertReason, windowStart time.Time, incrementMissed bool) error {
	shift := entry.shift

	exists, err := w.repo.Alert.ExistsForSlot(ctx, shift.ShiftID, reason, windowStart)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	severity := model.AlertSeverityWarning
	if reason == model.AlertReasonMissedAttendance {
		severity = model.AlertSeverityCritical
	}

	var created *model.Alert
	err = w.repo.Transaction(ctx, func(txRepo *repository.Repository) error {
		alert := &model.Alert{
			ShiftID:     shift.ShiftID,
			SiteID:      shift.SiteID,
			Reason:      reason,
			Severity:    severity,
			WindowStart: windowStart,
		}
		if err := txRepo.Alert.Create(ctx, alert); err != nil {
			if errors.Is(err, pkgerrors.ErrDuplicate) {
				// 其他副本/并发评估已创建，良性幂等命中
				return nil
			}
			return err
		}
		if incrementMissed {
			if err := txRepo.Shift.IncrementMissed(ctx, shift.ShiftID); err != nil {
				return err
			}
		}
		full, err := txRepo.Alert.GetByID(ctx, alert.AlertID)
		if err != nil {
			return err
		}
		created = full
		return nil
	})
	if err != nil {
		return err
	}
	if created == nil {
		return nil
	}

	if incrementMissed {
		shift.MissedCount++
	}

	w.logger.Info("创建告警",
		zap.String("shift_id", shift.ShiftID),
		zap.String("reason", string(reason)),
		zap.Time("window_start", windowStart),
	)

	if w.publisher != nil {
		payload := map[string]interface{}{
			"type":  service.EventAlertCreated,
			"alert": alertPayload(created),
		}
		if err := w.publisher.Publish(ctx, service.ChannelSiteAlerts(shift.SiteID), payload); err != nil {
			w.logger.Warn("发布告警事件失败", zap.Error(err))
		}
	}
	return nil
}

// ── 事件广播 ──

// publishAttention 广播临期提醒/解除（不落库的瞬态事件）
func (w *Scheduler) publishAttention(ctx context.Context, eventType string, shift *model.Shift, slotIndex int, remaining time.Duration) {
	if w.publisher == nil {
		return
	}
	payload := map[string]interface{}{
		"type":       eventType,
		"shift_id":   shift.ShiftID,
		"slot_index": slotIndex,
	}
	if eventType == service.EventAlertAttention {
		payload["remaining_ms"] = remaining.Milliseconds()
	}
	if err := w.publisher.Publish(ctx, service.ChannelSiteAlerts(shift.SiteID), payload); err != nil {
		w.logger.Warn("发布临期提醒失败", zap.Error(err))
	}
}

// broadcastActiveShifts 按驻点分组广播在岗班次快照（每次全量同步后）
func (w *Scheduler) broadcastActiveShifts(ctx context.Context) {
	if w.publisher == nil {
		return
	}

	bySite := make(map[string][]map[string]interface{})
	siteInfo := make(map[string]map[string]interface{})
	for _, entry := range w.cache {
		shift := entry.shift
		bySite[shift.SiteID] = append(bySite[shift.SiteID], shiftPayload(shift))
		if shift.Site != nil {
			siteInfo[shift.SiteID] = map[string]interface{}{
				"id":   shift.Site.SiteID,
				"name": shift.Site.Name,
			}
		}
	}

	groups := make([]map[string]interface{}, 0, len(bySite))
	for siteID, shifts := range bySite {
		site := siteInfo[siteID]
		if site == nil {
			site = map[string]interface{}{"id": siteID}
		}
		groups = append(groups, map[string]interface{}{
			"site":   site,
			"shifts": shifts,
		})
	}

	payload := map[string]interface{}{"sites": groups}
	if err := w.publisher.Publish(ctx, service.ChannelActiveShifts, payload); err != nil {
		w.logger.Warn("广播在岗班次失败", zap.Error(err))
	}
}

// broadcastUpcomingShifts 广播未来 24h 内开始的班次（独立 60s 节拍）
func (w *Scheduler) broadcastUpcomingShifts(ctx context.Context, now time.Time) {
	if w.publisher == nil {
		return
	}

	shifts, err := w.repo.Shift.ListUpcoming(ctx, now, now.Add(24*time.Hour))
	if err != nil {
		w.logger.Error("查询未来班次失败", zap.Error(err))
		return
	}

	list := make([]map[string]interface{}, 0, len(shifts))
	for i := range shifts {
		list = append(list, shiftPayload(&shifts[i]))
	}

	payload := map[string]interface{}{"shifts": list}
	if err := w.publisher.Publish(ctx, service.ChannelUpcomingShifts, payload); err != nil {
		w.logger.Warn("广播未来班次失败", zap.Error(err))
	}
}

func (w *Scheduler) attendanceGrace() time.Duration {
	return time.Duration(w.cfg.Checkin.AttendanceGraceMinutes) * time.Minute
}

// ── 事件载荷 ──

func shiftPayload(shift *model.Shift) map[string]interface{} {
	p := map[string]interface{}{
		"id":              shift.ShiftID,
		"site_id":         shift.SiteID,
		"starts_at":       shift.StartsAt.Format(time.RFC3339),
		"ends_at":         shift.EndsAt.Format(time.RFC3339),
		"status":          shift.Status,
		"check_in_status": shift.CheckInStatus,
		"missed_count":    shift.MissedCount,
	}
	if shift.Guard != nil {
		p["guard"] = map[string]interface{}{"id": shift.Guard.GuardID, "name": shift.Guard.Name}
	}
	if shift.ShiftType != nil {
		p["shift_type"] = map[string]interface{}{"id": shift.ShiftType.ShiftTypeID, "name": shift.ShiftType.Name}
	}
	if shift.Attendance != nil {
		p["attendance"] = map[string]interface{}{
			"id":     shift.Attendance.AttendanceID,
			"at":     shift.Attendance.At.Format(time.RFC3339),
			"status": shift.Attendance.Status,
		}
	}
	return p
}

func alertPayload(alert *model.Alert) map[string]interface{} {
	p := map[string]interface{}{
		"id":           alert.AlertID,
		"shift_id":     alert.ShiftID,
		"site_id":      alert.SiteID,
		"reason":       string(alert.Reason),
		"severity":     alert.Severity,
		"window_start": alert.WindowStart.Format(time.RFC3339),
	}
	if alert.Shift != nil && alert.Shift.Guard != nil {
		p["guard"] = map[string]interface{}{
			"id":   alert.Shift.Guard.GuardID,
			"name": alert.Shift.Guard.Name,
		}
	}
	return p
}
