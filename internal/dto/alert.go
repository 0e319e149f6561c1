package dto

// ── 告警模块 DTO ──

// ResolveAlertRequest 告警处置请求
// POST /api/v1/alerts/:id/resolve
type ResolveAlertRequest struct {
	Outcome string `json:"outcome" binding:"required,oneof=resolve forgive"`
	Note    string `json:"note"    binding:"omitempty,max=500"`
}

// AlertListRequest 告警列表查询参数
type AlertListRequest struct {
	SiteID   string `form:"site_id"  binding:"omitempty,uuid"`
	ShiftID  string `form:"shift_id" binding:"omitempty,uuid"`
	Reason   string `form:"reason"   binding:"omitempty,oneof=missed_attendance missed_checkin"`
	OpenOnly bool   `form:"open_only"`
	PaginationRequest
}

// AlertResponse 告警响应
type AlertResponse struct {
	ID             string      `json:"id"`
	ShiftID        string      `json:"shift_id"`
	SiteID         string      `json:"site_id"`
	Site           *SiteBrief  `json:"site,omitempty"`
	Guard          *GuardBrief `json:"guard,omitempty"`
	Reason         string      `json:"reason"`
	Severity       string      `json:"severity"`
	WindowStart    string      `json:"window_start"`
	AcknowledgedAt *string     `json:"acknowledged_at,omitempty"`
	AcknowledgedBy *string     `json:"acknowledged_by,omitempty"`
	ResolvedAt     *string     `json:"resolved_at,omitempty"`
	ResolvedByID   *string     `json:"resolved_by_id,omitempty"`
	ResolutionType *string     `json:"resolution_type,omitempty"`
	ResolutionNote *string     `json:"resolution_note,omitempty"`
	CreatedAt      string      `json:"created_at"`
}

// SiteBrief 驻点摘要
type SiteBrief struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// GuardBrief 人员摘要
type GuardBrief struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
