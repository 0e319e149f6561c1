package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"guard-watch/backend/config"
	"guard-watch/backend/internal/repository"
)

// DailyMarker 每日任务幂等标记（生产实现为 pkg/redis.Client）
// 返回 false 表示当日任务已被某个副本执行过
type DailyMarker interface {
	MarkDailyDone(ctx context.Context, task, date string) (bool, error)
}

const (
	maintenanceLockKey  = "worker:maintenance:lock"
	taskGuardActivation = "guard-activation"
)

// Maintenance 维护 worker：低频扫描人员在职区间，停用不在职的账号。
// 每小时醒来一次，但每日标记保证任务一天只真正跑一次。
type Maintenance struct {
	cfg    *config.Config
	repo   *repository.Repository
	locker Locker
	marker DailyMarker
	logger *zap.Logger

	interval time.Duration
}

// NewMaintenance 创建维护 worker
func NewMaintenance(
	cfg *config.Config,
	repo *repository.Repository,
	locker Locker,
	marker DailyMarker,
	logger *zap.Logger,
) *Maintenance {
	return &Maintenance{
		cfg:      cfg,
		repo:     repo,
		locker:   locker,
		marker:   marker,
		logger:   logger,
		interval: time.Hour,
	}
}

// Run 启动维护循环，直到 ctx 取消。启动时立即执行一次再进入节拍。
func (m *Maintenance) Run(ctx context.Context) {
	m.logger.Info("维护 worker 启动", zap.Duration("interval", m.interval))

	m.tick(ctx, time.Now())

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("维护 worker 退出")
			return
		case now := <-ticker.C:
			m.tick(ctx, now)
		}
	}
}

func (m *Maintenance) tick(ctx context.Context, now time.Time) {
	token, err := m.locker.TryLock(ctx, maintenanceLockKey, m.cfg.Worker.LockTTL)
	if err != nil {
		m.logger.Warn("获取维护锁失败，跳过本轮", zap.Error(err))
		return
	}
	if token == "" {
		return
	}
	defer func() {
		if err := m.locker.Unlock(ctx, maintenanceLockKey, token); err != nil {
			m.logger.Warn("释放维护锁失败", zap.Error(err))
		}
	}()

	date := now.Format("2006-01-02")
	fresh, err := m.marker.MarkDailyDone(ctx, taskGuardActivation, date)
	if err != nil {
		m.logger.Warn("写入每日标记失败", zap.Error(err))
		return
	}
	if !fresh {
		// 当日已由某个副本完成
		return
	}

	if err := m.deactivateExpiredGuards(ctx, now); err != nil {
		m.logger.Error("人员在职区间扫描失败", zap.Error(err))
	}
}

// deactivateExpiredGuards 扫描所有启用中的人员，
// 停用入职日期未到或离职日期已过的账号
func (m *Maintenance) deactivateExpiredGuards(ctx context.Context, now time.Time) error {
	guards, err := m.repo.Guard.ListActive(ctx)
	if err != nil {
		return err
	}

	deactivated := 0
	for i := range guards {
		guard := &guards[i]
		if guard.EffectiveActive(now) {
			continue
		}
		if err := m.repo.Guard.SetActive(ctx, guard.GuardID, false); err != nil {
			m.logger.Error("停用人员失败",
				zap.String("guard_id", guard.GuardID),
				zap.Error(err),
			)
			continue
		}
		deactivated++
		m.logger.Info("人员已停用",
			zap.String("guard_id", guard.GuardID),
			zap.String("employee_no", guard.EmployeeNo),
		)
	}

	m.logger.Info("人员在职区间扫描完成",
		zap.Int("scanned", len(guards)),
		zap.Int("deactivated", deactivated),
	)
	return nil
}
