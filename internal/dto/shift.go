package dto

// ── 班次模块 DTO ──

// ShiftResponse 班次响应
type ShiftResponse struct {
	ID                          string           `json:"id"`
	Site                        *SiteBrief       `json:"site,omitempty"`
	Guard                       *GuardBrief      `json:"guard,omitempty"`
	ShiftType                   *ShiftTypeBrief  `json:"shift_type,omitempty"`
	ShiftDate                   string           `json:"shift_date"`
	StartsAt                    string           `json:"starts_at"`
	EndsAt                      string           `json:"ends_at"`
	RequiredCheckinIntervalMins int              `json:"required_checkin_interval_mins"`
	GraceMinutes                int              `json:"grace_minutes"`
	Status                      string           `json:"status"`
	CheckInStatus               string           `json:"check_in_status"`
	LastHeartbeatAt             *string          `json:"last_heartbeat_at,omitempty"`
	MissedCount                 int              `json:"missed_count"`
	Attendance                  *AttendanceBrief `json:"attendance,omitempty"`
}

// ShiftTypeBrief 班次类型摘要
type ShiftTypeBrief struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// ShiftWindowResponse 班次当前签到时间窗（客户端倒计时展示用）
type ShiftWindowResponse struct {
	ShiftID          string `json:"shift_id"`
	Status           string `json:"status"` // early | open | completed | late
	SlotIndex        int    `json:"slot_index"`
	CurrentSlotStart string `json:"current_slot_start"`
	CurrentSlotEnd   string `json:"current_slot_end"`
	NextSlotStart    string `json:"next_slot_start"`
	RemainingMs      int64  `json:"remaining_ms"`
}

// MyShiftsRequest 我的班次查询参数
type MyShiftsRequest struct {
	From string `form:"from" binding:"omitempty,datetime=2006-01-02"`
	To   string `form:"to"   binding:"omitempty,datetime=2006-01-02"`
}
