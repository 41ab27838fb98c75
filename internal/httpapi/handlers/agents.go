package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/bigfan007/ai-workmate/internal/common"
	"github.com/bigfan007/ai-workmate/internal/httpapi/middleware"
	"github.com/bigfan007/ai-workmate/internal/models"
)

// ListAgents returns the active agents visible to the caller. Admins see
// every active agent; everyone else only sees agents they hold a grant for.
func (h *Handler) ListAgents(c *gin.Context) {
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

func (h *Handler) GetAgent(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "authentication required")
		return
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10004, "invalid agent id")
		return
	}

	var agent models.AIAgent
	if err := h.DB.Where("id = ? AND is_active = ?", id, true).First(&agent).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40402, "agent not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}

	allowed, err := h.Perms.CanAccessAgent(c.Request.Context(), user, agent.ID)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}
	if !allowed {
		common.Fail(c, http.StatusForbidden, 40303, "no permission for this agent")
		return
	}

	common.OK(c, agent)
}

// GetAgentIframeURL returns the embed URL for iframe-mode agents.
func (h *Handler) GetAgentIframeURL(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "authentication required")
		return
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10004, "invalid agent id")
		return
	}

	var agent models.AIAgent
	if err := h.DB.Where("id = ? AND is_active = ?", id, true).First(&agent).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40402, "agent not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}

	allowed, err := h.Perms.CanAccessAgent(c.Request.Context(), user, agent.ID)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}
	if !allowed {
		common.Fail(c, http.StatusForbidden, 40303, "no permission for this agent")
		return
	}

	if agent.IntegrationType != models.IntegrationIframe || agent.ChatbotURL == "" {
		common.Fail(c, http.StatusBadRequest, 10030, "agent does not support iframe embedding")
		return
	}

	common.OK(c, gin.H{
		"iframe_url": agent.ChatbotURL,
	})
}
