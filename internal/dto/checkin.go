package dto

// ── 签到 / 考勤模块 DTO ──

// CheckinRequest 定时签到请求
// POST /api/v1/shifts/:id/checkin
type CheckinRequest struct {
	Source   string           `json:"source"   binding:"omitempty,oneof=app web manual"`
	Location *LocationPayload `json:"location" binding:"omitempty"`
}

// CheckinResponse 定时签到响应
type CheckinResponse struct {
	Checkin   CheckinBrief `json:"checkin"`
	NextDueAt string       `json:"next_due_at"` // 下一槽位开放时刻
	Status    string       `json:"status"`      // 班次签到状态
}

// CheckinBrief 签到记录摘要
type CheckinBrief struct {
	ID      string `json:"id"`
	ShiftID string `json:"shift_id"`
	At      string `json:"at"`
	Status  string `json:"status"`
	Source  string `json:"source"`
}

// AttendanceRequest 到岗考勤请求
// POST /api/v1/shifts/:id/attendance
type AttendanceRequest struct {
	Location *LocationPayload `json:"location" binding:"omitempty"`
}

// AttendanceResponse 到岗考勤响应
type AttendanceResponse struct {
	Attendance AttendanceBrief `json:"attendance"`
}

// AttendanceBrief 考勤记录摘要
type AttendanceBrief struct {
	ID             string   `json:"id"`
	ShiftID        string   `json:"shift_id"`
	At             string   `json:"at"`
	Status         string   `json:"status"`
	DistanceMeters *float64 `json:"distance_meters,omitempty"`
}
