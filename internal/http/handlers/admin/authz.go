package admin

import (
	"errors"

	"github.com/dujiao-next/bookshop/internal/authz"
	handlershared "github.com/dujiao-next/bookshop/internal/http/handlers/shared"
	"github.com/dujiao-next/bookshop/internal/http/response"

	"github.com/gin-gonic/gin"
)

// SetAdminRolesRequest 设置管理员角色请求
type SetAdminRolesRequest struct {
	Roles []string `json:"roles"`
}

// ListRoles 预置角色及其策略
func (h *Handler) ListRoles(c *gin.Context) {
	seeds := authz.BuiltinRoleSeeds()
	result := make([]gin.H, 0, len(seeds))
	for _, seed := range seeds {
		policies, err := h.AuthzService.RolePolicies(seed.Role)
		if err != nil {
			respondError(c, response.CodeInternal, "failed to load roles", err)
			return
		}
		result = append(result, gin.H{"role": seed.Role, "policies": policies})
	}
	response.Success(c, result)
}

// GetAdminRoles 管理员角色
func (h *Handler) GetAdminRoles(c *gin.Context) {
	id, ok := handlershared.ParseUintParam(c, "id")
	if !ok {
		return
	}
	roles, err := h.AuthzService.AdminRoles(id)
	if err != nil {
		respondError(c, response.CodeInternal, "failed to load admin roles", err)
		return
	}
	response.Success(c, gin.H{"admin_id": id, "roles": roles})
}

// SetAdminRoles 覆盖管理员角色，仅超级管理员可操作
func (h *Handler) SetAdminRoles(c *gin.Context) {
	if !isSuperAdmin(c) {
		response.Forbidden(c, "only super admins can assign roles")
		return
	}
	id, ok := handlershared.ParseUintParam(c, "id")
	if !ok {
		return
	}
	var req SetAdminRolesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", nil)
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
	if err := h.AuthzService.SetAdminRoles(id, req.Roles); err != nil {
		if errors.Is(err, authz.ErrUnavailable) {
			respondError(c, response.CodeServiceUnavailable, "authorization is unavailable", err)
			return
		}
		respondError(c, response.CodeBadRequest, err.Error(), nil)
		return
	}
	roles, _ := h.AuthzService.AdminRoles(id)
	requestLog(c).Infow("admin_roles_updated", "admin_id", id, "roles", roles)
	response.Success(c, gin.H{"admin_id": id, "roles": roles})
}
