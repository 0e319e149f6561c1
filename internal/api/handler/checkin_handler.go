package handler

import (
	"errors"
	"fmt"
	"io"

	"github.com/gin-gonic/gin"

	"guard-watch/backend/internal/dto"
	"guard-watch/backend/internal/service"
	"guard-watch/backend/pkg/response"
)

// CheckinHandler 签到/考勤模块 HTTP 处理器
type CheckinHandler struct {
	checkinSvc service.CheckinService
}

// NewCheckinHandler 创建 CheckinHandler
func NewCheckinHandler(checkinSvc service.CheckinService) *CheckinHandler {
	return &CheckinHandler{checkinSvc: checkinSvc}
}

// Checkin 定时签到
// POST /api/v1/shifts/:id/checkin
func (h *CheckinHandler) Checkin(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	var req dto.CheckinRequest
	// 所有字段均可选，空请求体等价于空对象
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	result, err := h.checkinSvc.Checkin(c.Request.Context(), c.Param("id"), userID, &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrShiftNotFound):
			response.NotFound(c, 12001, "班次不存在")
		case errors.Is(err, service.ErrNotAssignedGuard):
			response.Forbidden(c, 13001, "仅班次指派的保安可签到")
		case errors.Is(err, service.ErrShiftNotActive):
			response.Conflict(c, 13002, "班次不在进行时段内")
		case errors.Is(err, service.ErrCheckinTooLate):
			response.Conflict(c, 13003, "本槽位签到已截止，请等待下一槽位")
		case errors.Is(err, service.ErrAlreadyCheckedIn):
			response.Conflict(c, 13004, "本槽位已签到")
		default:
			response.InternalError(c)
		}
		return
	}

	response.Created(c, result)
}

// Attendance 到岗考勤
// POST /api/v1/shifts/:id/attendance
func (h *CheckinHandler) Attendance(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	var req dto.AttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	result, err := h.checkinSvc.Attendance(c.Request.Context(), c.Param("id"), userID, &req)
	if err != nil {
		var fenceErr *service.GeofenceError
		switch {
		case errors.Is(err, service.ErrShiftNotFound):
			response.NotFound(c, 12001, "班次不存在")
		case errors.Is(err, service.ErrNotAssignedGuard):
			response.Forbidden(c, 13001, "仅班次指派的保安可考勤")
		case errors.Is(err, service.ErrShiftNotActive):
			response.Conflict(c, 13002, "班次不在进行时段内")
		case errors.Is(err, service.ErrAttendanceExists):
			response.Conflict(c, 13005, "该班次已有考勤记录")
		case errors.Is(err, service.ErrLocationRequired):
			response.BadRequest(c, 13006, "已启用围栏校验，必须上报定位")
		case errors.Is(err, service.ErrSiteNoCoordinate):
			response.Conflict(c, 13007, "驻点未配置坐标，请联系管理员")
		case errors.As(err, &fenceErr):
			response.BadRequest(c, 13008, fmt.Sprintf(
				"距离驻点 %.0f 米，超出 %.0f 米围栏阈值", fenceErr.DistanceMeters, fenceErr.LimitMeters))
		default:
			response.InternalError(c)
		}
		return
	}

	response.Created(c, result)
}
