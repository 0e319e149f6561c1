package service

import "context"

// EventPublisher 事件发布抽象（生产实现为 pkg/redis.Client）
// 发布失败不回滚任何数据库写入：数据库是唯一事实来源，事件只是尽力通知
type EventPublisher interface {
	Publish(ctx context.Context, channel string, payload map[string]interface{}) error
}

// ── 频道 ──

const (
	// ChannelActiveShifts 在岗班次看板快照
	ChannelActiveShifts = "dashboard:active-shifts"
	// ChannelUpcomingShifts 未来 24h 班次看板
	ChannelUpcomingShifts = "dashboard:upcoming-shifts"
)

// ChannelSiteAlerts 驻点告警频道
func ChannelSiteAlerts(siteID string) string {
	return "alerts:site:" + siteID
}

// ── 事件类型 ──

const (
	EventAlertCreated   = "alert_created"
	EventAlertUpdated   = "alert_updated"
	EventAlertAttention = "alert_attention" // 临期提醒（不落库）
	EventAlertCleared   = "alert_cleared"   // 临期提醒解除（不落库）
)
