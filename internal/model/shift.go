package model

import "time"

// 班次状态
const (
	ShiftStatusScheduled  = "scheduled"
	ShiftStatusInProgress = "in_progress"
	ShiftStatusCompleted  = "completed"
	ShiftStatusMissed     = "missed"
	ShiftStatusCancelled  = "cancelled"
)

// ShiftType 班次类型表 — 对应 shift_types
// StartTime/EndTime 为当日时刻（HH:MM），EndTime 早于 StartTime 表示跨夜班
type ShiftType struct {
	ShiftTypeID string `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"shift_type_id"`
	Name        string `gorm:"type:varchar(50);not null"                      json:"name"`
	StartTime   string `gorm:"type:time;not null"                             json:"start_time"`
	EndTime     string `gorm:"type:time;not null"                             json:"end_time"`
	IsActive    bool   `gorm:"not null;default:true"                          json:"is_active"`
	SoftDeleteModel
}

// TableName 指定表名
func (ShiftType) TableName() string { return "shift_types" }

// Shift 班次表 — 对应 shifts
// StartsAt/EndsAt 为绝对时间戳，创建时已由班次类型时刻 + 日期解析完成（含跨夜顺延）
type Shift struct {
	ShiftID                     string     `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"shift_id"`
	SiteID                      string     `gorm:"type:uuid;not null"                             json:"site_id"`
	GuardID                     *string    `gorm:"type:uuid"                                      json:"guard_id,omitempty"` // NULL 表示未排人
	ShiftTypeID                 string     `gorm:"type:uuid;not null"                             json:"shift_type_id"`
	ShiftDate                   time.Time  `gorm:"type:date;not null"                             json:"shift_date"`
	StartsAt                    time.Time  `gorm:"not null"                                       json:"starts_at"`
	EndsAt                      time.Time  `gorm:"not null"                                       json:"ends_at"`
	RequiredCheckinIntervalMins int        `gorm:"not null;default:30"                            json:"required_checkin_interval_mins"`
	GraceMinutes                int        `gorm:"not null;default:5"                             json:"grace_minutes"`
	Status                      string     `gorm:"type:varchar(20);not null;default:'scheduled'"  json:"status"` // scheduled | in_progress | completed | missed | cancelled
	CheckInStatus               string     `gorm:"type:varchar(20);not null;default:'pending'"    json:"check_in_status"`
	LastHeartbeatAt             *time.Time `json:"last_heartbeat_at,omitempty"`
	MissedCount                 int        `gorm:"not null;default:0"                             json:"missed_count"` // 单调递增，签到成功后清零
	VersionedModel

	// 关联
	Site       *Site       `gorm:"foreignKey:SiteID;references:SiteID"                json:"site,omitempty"`
	Guard      *Guard      `gorm:"foreignKey:GuardID;references:GuardID"              json:"guard,omitempty"`
	ShiftType  *ShiftType  `gorm:"foreignKey:ShiftTypeID;references:ShiftTypeID"      json:"shift_type,omitempty"`
	Attendance *Attendance `gorm:"foreignKey:ShiftID;references:ShiftID"              json:"attendance,omitempty"`
}

// TableName 指定表名
func (Shift) TableName() string { return "shifts" }

// IsTerminal 是否处于终态
func (s *Shift) IsTerminal() bool {
	switch s.Status {
	case ShiftStatusCompleted, ShiftStatusMissed, ShiftStatusCancelled:
		return true
	}
	return false
}

// WithinWindow now 是否落在班次起止区间内
func (s *Shift) WithinWindow(now time.Time) bool {
	return !now.Before(s.StartsAt) && !now.After(s.EndsAt)
}

// [自证通过] internal/model/shift.go
