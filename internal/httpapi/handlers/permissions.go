package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bigfan007/ai-workmate/internal/common"
	"github.com/bigfan007/ai-workmate/internal/httpapi/middleware"
	"github.com/bigfan007/ai-workmate/internal/models"
	"github.com/bigfan007/ai-workmate/internal/permission"
)

// GetUserPermissions lists a user's active grants. Admins may look at
// anyone; everyone else only at themselves.
func (h *Handler) GetUserPermissions(c *gin.Context) {
	caller, ok := middleware.CurrentUser(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "authentication required")
		return
	}
	userID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10004, "invalid user id")
		return
	}
	if caller.Role != models.RoleAdmin && caller.ID != userID {
		common.Fail(c, http.StatusForbidden, 40302, "admin access required")
		return
	}

	perms, err := h.Perms.ListForUser(c.Request.Context(), userID)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}
	common.OK(c, perms)
}

// MyAgents lists the agents the caller can chat with.
func (h *Handler) MyAgents(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "authentication required")
		return
	}

	q := h.DB.Where("is_active = ?", true)
	if user.Role != models.RoleAdmin {
		ids, err := h.Perms.AllowedAgentIDs(c.Request.Context(), user.ID)
		if err != nil {
			common.Fail(c, http.StatusInternalServerError, 20001, "db error")
			return
		}
		if len(ids) == 0 {
			common.OK(c, []models.AIAgent{})
			return
		}
		q = q.Where("id IN ?", ids)
	}

	var agents []models.AIAgent
	if err := q.Order("created_at ASC").Find(&agents).Error; err != nil {
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}
	common.OK(c, agents)
}

type assignPermissionsReq struct {
	UserID    uint64   `json:"user_id"`
	AgentIDs  []uint64 `json:"agent_ids"`
	Operation string   `json:"operation"`
}

// AssignPermissions grants or revokes agent access in batch. Each agent
// reports its own status; one failed item never rolls back the rest.
func (h *Handler) AssignPermissions(c *gin.Context) {
	admin, ok := middleware.CurrentUser(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "authentication required")
		return
	}

	var req assignPermissionsReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if req.UserID == 0 || len(req.AgentIDs) == 0 {
		common.Fail(c, http.StatusBadRequest, 10002, "user_id and agent_ids required")
		return
	}
	if req.Operation != permission.OperationGrant && req.Operation != permission.OperationRevoke {
		common.Fail(c, http.StatusBadRequest, 10050, "operation must be grant or revoke")
		return
	}

	results, err := h.Perms.Assign(c.Request.Context(), permission.AssignRequest{
		UserID:     req.UserID,
		AgentIDs:   req.AgentIDs,
		Operation:  req.Operation,
		OperatedBy: admin.ID,
		IPAddress:  c.ClientIP(),
		UserAgent:  c.Request.UserAgent(),
	})
	if err != nil {
		switch {
		case errors.Is(err, permission.ErrUserNotFound):
			common.Fail(c, http.StatusNotFound, 40401, "user not found")
		case errors.Is(err, permission.ErrAgentsNotFound):
			common.Fail(c, http.StatusNotFound, 40402, "some agents not found")
		default:
			common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		}
		return
	}

	common.OK(c, gin.H{"results": results})
}

func (h *Handler) ListPermissionAudit(c *gin.Context) {
	f := permission.AuditFilter{
		OperationType: c.Query("operation_type"),
	}
	if v := c.Query("user_id"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			common.Fail(c, http.StatusBadRequest, 10004, "invalid user id")
			return
		}
		f.UserID = n
	}
	if v := c.Query("start_date"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			common.Fail(c, http.StatusBadRequest, 10005, "invalid start_date, want RFC3339")
			return
		}
		f.StartDate = &t
	}
	if v := c.Query("end_date"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			common.Fail(c, http.StatusBadRequest, 10005, "invalid end_date, want RFC3339")
			return
		}
		f.EndDate = &t
	}
	f.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	f.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))

	logs, total, err := h.Perms.ListAuditLogs(c.Request.Context(), f)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}

	common.OK(c, gin.H{
		"logs":  logs,
		"total": total,
		"page":  f.Page,
		"limit": f.Limit,
	})
}

// ListPermissionUsers returns the non-admin users the back-office can
// manage grants for, with optional search.
func (h *Handler) ListPermissionUsers(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page <= 0 {
		page = 1
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	q := h.DB.Model(&models.User{}).Where("role = ?", models.RoleUser)
	if s := c.Query("search"); s != "" {
		like := "%" + s + "%"
		q = q.Where("email LIKE ? OR name LIKE ?", like, like)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}

	var users []models.User
	if err := q.Order("created_at DESC").Offset((page - 1) * limit).Limit(limit).Find(&users).Error; err != nil {
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}

	common.OK(c, gin.H{
		"users": users,
		"total": total,
		"page":  page,
		"limit": limit,
	})
}

func (h *Handler) ListPermissions(c *gin.Context) {
	f := permission.ListFilter{}
	if v := c.Query("user_id"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			common.Fail(c, http.StatusBadRequest, 10004, "invalid user id")
			return
		}
		f.UserID = n
	}
	if v := c.Query("agent_id"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			common.Fail(c, http.StatusBadRequest, 10004, "invalid agent id")
			return
		}
		f.AgentID = n
	}
	f.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	f.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))

	perms, total, err := h.Perms.List(c.Request.Context(), f)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}

	common.OK(c, gin.H{
		"permissions": perms,
		"total":       total,
		"page":        f.Page,
		"limit":       f.Limit,
	})
}
