package handler

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"

	"guard-watch/backend/internal/dto"
	"guard-watch/backend/internal/service"
	"guard-watch/backend/pkg/response"
)

// ShiftHandler 班次模块 HTTP 处理器
type ShiftHandler struct {
	shiftSvc service.ShiftService
}

// NewShiftHandler 创建 ShiftHandler
func NewShiftHandler(shiftSvc service.ShiftService) *ShiftHandler {
	return &ShiftHandler{shiftSvc: shiftSvc}
}

// GetWindow 查询班次当前签到时间窗（客户端倒计时）
// GET /api/v1/shifts/:id/window
func (h *ShiftHandler) GetWindow(c *gin.Context) {
	result, err := h.shiftSvc.GetWindow(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrShiftNotFound) {
			response.NotFound(c, 12001, "班次不存在")
			return
		}
		response.InternalError(c)
		return
	}

	response.OK(c, result)
}

// ListMine 查询当前登录人员的班次
// GET /api/v1/shifts/my?from=2026-03-01&to=2026-03-07
func (h *ShiftHandler) ListMine(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	var req dto.MyShiftsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	// 缺省查询最近一周到未来一周
	now := time.Now()
	from := now.AddDate(0, 0, -7)
	until := now.AddDate(0, 0, 7)
	if req.From != "" {
		from, _ = time.Parse("2006-01-02", req.From)
	}
	if req.To != "" {
		parsed, _ := time.Parse("2006-01-02", req.To)
		until = parsed.AddDate(0, 0, 1) // 含当日
	}
	if !until.After(from) {
		response.BadRequest(c, 12002, "查询区间无效")
		return
	}

	result, err := h.shiftSvc.ListMine(c.Request.Context(), userID, from, until)
	if err != nil {
		response.InternalError(c)
		return
	}

	response.OK(c, result)
}

// Get 查询单个班次详情
// GET /api/v1/shifts/:id
func (h *ShiftHandler) Get(c *gin.Context) {
	result, err := h.shiftSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrShiftNotFound) {
			response.NotFound(c, 12001, "班次不存在")
			return
		}
		response.InternalError(c)
		return
	}

	response.OK(c, result)
}
