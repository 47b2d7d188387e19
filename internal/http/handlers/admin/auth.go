package admin

import (
	"time"

	handlershared "github.com/dujiao-next/bookshop/internal/http/handlers/shared"
	"github.com/dujiao-next/bookshop/internal/http/response"
	"github.com/dujiao-next/bookshop/internal/service"

	"github.com/gin-gonic/gin"
)

// LoginRequest 登录请求
type LoginRequest struct {
	Username       string                              `json:"username" binding:"required"`
	Password       string                              `json:"password" binding:"required"`
	CaptchaPayload handlershared.CaptchaPayloadRequest `json:"captcha_payload"`
}

// LoginResponse 登录响应
type LoginResponse struct {
	Token     string                 `json:"token"`
	User      map[string]interface{} `json:"user"`
	ExpiresAt string                 `json:"expires_at"`
}

// GetCaptcha 获取登录图片验证码
func (h *Handler) GetCaptcha(c *gin.Context) {
	if !h.CaptchaService.Enabled() {
		response.Success(c, gin.H{"enabled": false})
		return
	}
	challenge, err := h.CaptchaService.GenerateImageChallenge()
	if err != nil {
		respondError(c, response.CodeInternal, "failed to generate captcha", err)
		return
	}
	response.Success(c, gin.H{
		"enabled":      true,
		"captcha_id":   challenge.CaptchaID,
		"image_base64": challenge.ImageBase64,
	})
}

// AdminLogin 管理员登录
func (h *Handler) AdminLogin(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", nil)
		return
	}

	admin, token, expiresAt, err := h.AuthService.Login(c.Request.Context(), service.LoginInput{
		Username: req.Username,
		Password: req.Password,
		Captcha:  req.CaptchaPayload.ToServicePayload(),
	})
	if err != nil {
		requestLog(c).Infow("admin_login_rejected", "username", req.Username, "client_ip", c.ClientIP(), "reason", err.Error())
		respondServiceError(c, err, "login failed")
		return
	}
	requestLog(c).Infow("admin_login_succeeded", "admin_id", admin.ID, "client_ip", c.ClientIP())
	response.Success(c, LoginResponse{
		Token: token,
		User: map[string]interface{}{
			"id":       admin.ID,
			"username": admin.Username,
			"is_super": admin.IsSuper,
		},
		ExpiresAt: expiresAt.Format(time.RFC3339),
	})
}

// GetCurrentAdmin 当前登录管理员与角色
func (h *Handler) GetCurrentAdmin(c *gin.Context) {
	id, ok := getAdminID(c)
	if !ok {
		return
	}
	admin, err := h.AdminRepo.GetByID(id)
	if err != nil {
		respondError(c, response.CodeInternal, "failed to load admin", err)
		return
	}
	if admin == nil {
		respondError(c, response.CodeNotFound, "admin not found", nil)
		return
	}
	roles, err := h.AuthzService.AdminRoles(id)
	if err != nil {
		requestLog(c).Warnw("admin_roles_load_failed", "admin_id", id, "error", err)
		roles = []string{}
	}
	response.Success(c, gin.H{
		"id":       admin.ID,
		"username": admin.Username,
		"is_super": admin.IsSuper,
		"roles":    roles,
	})
}

// UpdatePasswordRequest 修改密码请求
type UpdatePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

// UpdateAdminPassword 修改管理员密码，旧令牌随之失效
func (h *Handler) UpdateAdminPassword(c *gin.Context) {
	id, ok := getAdminID(c)
	if !ok {
		return
	}

	var req UpdatePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", nil)
		return
	}

	if err := h.AuthService.ChangePassword(c.Request.Context(), id, req.OldPassword, req.NewPassword); err != nil {
		respondServiceError(c, err, "failed to change password")
		return
	}
	response.Success(c, nil)
}
