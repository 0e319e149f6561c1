package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"guard-watch/backend/internal/dto"
	"guard-watch/backend/internal/service"
	"guard-watch/backend/pkg/response"
)

// AlertHandler 告警模块 HTTP 处理器
type AlertHandler struct {
	alertSvc service.AlertService
}

// NewAlertHandler 创建 AlertHandler
func NewAlertHandler(alertSvc service.AlertService) *AlertHandler {
	return &AlertHandler{alertSvc: alertSvc}
}

// List 查询告警列表（支持驻点/班次/原因/未处置过滤）
// GET /api/v1/alerts
func (h *AlertHandler) List(c *gin.Context) {
	var req dto.AlertListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	list, total, err := h.alertSvc.List(c.Request.Context(), &req)
	if err != nil {
		response.InternalError(c)
		return
	}

	response.OKPage(c, list, total, req.Page, req.Limit())
}

// Get 查询告警详情
// GET /api/v1/alerts/:id
func (h *AlertHandler) Get(c *gin.Context) {
	result, err := h.alertSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrAlertNotFound) {
			response.NotFound(c, 14001, "告警不存在")
			return
		}
		response.InternalError(c)
		return
	}

	response.OK(c, result)
}

// Acknowledge 确认告警（幂等）
// POST /api/v1/alerts/:id/acknowledge
func (h *AlertHandler) Acknowledge(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	result, err := h.alertSvc.Acknowledge(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		if errors.Is(err, service.ErrAlertNotFound) {
			response.NotFound(c, 14001, "告警不存在")
			return
		}
		response.InternalError(c)
		return
	}

	response.OK(c, result)
}

// Resolve 处置告警：resolve 判定违规成立 / forgive 豁免
// POST /api/v1/alerts/:id/resolve
func (h *AlertHandler) Resolve(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	var req dto.ResolveAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	result, err := h.alertSvc.Resolve(c.Request.Context(), c.Param("id"), userID, &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAlertNotFound):
			response.NotFound(c, 14001, "告警不存在")
		case errors.Is(err, service.ErrAlertAlreadyResolved):
			response.Conflict(c, 14002, "告警已处置")
		default:
			response.InternalError(c)
		}
		return
	}

	response.OK(c, result)
}
