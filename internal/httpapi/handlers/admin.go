package handlers

import (
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bigfan007/ai-workmate/internal/adminops"
	"github.com/bigfan007/ai-workmate/internal/common"
	"github.com/bigfan007/ai-workmate/internal/models"
	"github.com/bigfan007/ai-workmate/internal/plan"
)

func (h *Handler) AdminStats(c *gin.Context) {
	stats, err := h.Admin.DashboardStats(c.Request.Context())
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}
	common.OK(c, stats)
}

// AdminListUsers pages through all accounts with their subscription rows
// attached, optionally filtered by an email/name search.
func (h *Handler) AdminListUsers(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page <= 0 {
		page = 1
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	q := h.DB.Model(&models.User{})
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

	ids := make([]uint64, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	subsByUser := make(map[uint64]models.Subscription, len(ids))
	if len(ids) > 0 {
		var subs []models.Subscription
		if err := h.DB.Where("user_id IN ?", ids).Find(&subs).Error; err != nil {
			common.Fail(c, http.StatusInternalServerError, 20001, "db error")
			return
		}
		for _, s := range subs {
			subsByUser[s.UserID] = s
		}
	}

	out := make([]gin.H, 0, len(users))
	for _, u := range users {
		row := gin.H{"user": u}
		if s, ok := subsByUser[u.ID]; ok {
			row["subscription"] = s
		} else {
			row["subscription"] = nil
		}
		out = append(out, row)
	}

	common.OK(c, gin.H{
		"users": out,
		"total": total,
		"page":  page,
		"limit": limit,
	})
}

type updateSubscriptionReq struct {
	PlanType string `json:"plan_type"`
}

// AdminUpdateUserSubscription force-sets a user's plan from the
// back-office, resetting the usage counter to the new plan's quota.
func (h *Handler) AdminUpdateUserSubscription(c *gin.Context) {
	userID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10004, "invalid user id")
		return
	}

	var req updateSubscriptionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if !plan.Valid(req.PlanType) {
		common.Fail(c, http.StatusBadRequest, 10040, "invalid plan_type")
		return
	}
	p, _ := plan.ByID(req.PlanType)

	var user models.User
	if err := h.DB.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40401, "user not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}

	now := time.Now()
	var sub models.Subscription
	err = h.DB.Where("user_id = ?", userID).First(&sub).Error
	switch {
	case err == nil:
		err = h.DB.Model(&sub).Updates(map[string]any{
			"plan_type":   req.PlanType,
			"status":      models.SubscriptionActive,
			"usage_count": 0,
			"usage_limit": p.UsageLimit,
			"start_date":  &now,
		}).Error
	case errors.Is(err, gorm.ErrRecordNotFound):
		sub = models.Subscription{
			UserID:     userID,
			PlanType:   req.PlanType,
			Status:     models.SubscriptionActive,
			UsageLimit: p.UsageLimit,
			StartDate:  &now,
		}
		err = h.DB.Create(&sub).Error
	}
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}

	common.OK(c, sub)
}

// AdminDeleteUser removes an account and every row hanging off it,
// reporting per-table counts.
func (h *Handler) AdminDeleteUser(c *gin.Context) {
	userID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10004, "invalid user id")
		return
	}

	stats, err := h.Admin.DeleteUser(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, adminops.ErrNotFound) {
			common.Fail(c, http.StatusNotFound, 40401, "user not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}
	common.OK(c, stats)
}

func (h *Handler) AdminListOrders(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page <= 0 {
		page = 1
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	q := h.DB.Model(&models.Order{})
	if s := c.Query("status"); s != "" {
		q = q.Where("status = ?", s)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}

	var orders []models.Order
	if err := q.Order("created_at DESC").Offset((page - 1) * limit).Limit(limit).Find(&orders).Error; err != nil {
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}

	common.OK(c, gin.H{
		"orders": orders,
		"total":  total,
		"page":   page,
		"limit":  limit,
	})
}

func (h *Handler) AdminListAgents(c *gin.Context) {
	var agents []models.AIAgent
	if err := h.DB.Order("created_at ASC").Find(&agents).Error; err != nil {
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}
	common.OK(c, agents)
}

type agentReq struct {
	Name            string   `json:"name"`
	Description     string   `json:"description"`
	AvatarURL       string   `json:"avatar_url"`
	IntegrationType string   `json:"integration_type"`
	APIEndpoint     string   `json:"api_endpoint"`
	APIKey          string   `json:"api_key"`
	ChatbotURL      string   `json:"chatbot_url"`
	DeepSeekAPIKey  string   `json:"deepseek_api_key"`
	DeepSeekModel   string   `json:"deepseek_model"`
	SystemPrompt    string   `json:"system_prompt"`
	Temperature     *float64 `json:"temperature"`
	MaxTokens       *int     `json:"max_tokens"`
	RequiredPlan    string   `json:"required_plan"`
	IsActive        *bool    `json:"is_active"`
}

func validIntegrationType(t string) bool {
	switch t {
	case models.IntegrationAPI, models.IntegrationIframe, models.IntegrationDeepSeek:
		return true
	}
	return false
}

func (h *Handler) AdminCreateAgent(c *gin.Context) {
	var req agentReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "name required")
		return
	}
	if req.IntegrationType == "" {
		req.IntegrationType = models.IntegrationAPI
	}
	if !validIntegrationType(req.IntegrationType) {
		common.Fail(c, http.StatusBadRequest, 10031, "integration_type must be api, iframe or deepseek")
		return
	}
	if req.RequiredPlan == "" {
		req.RequiredPlan = plan.Free
	}
	if !plan.Valid(req.RequiredPlan) {
		common.Fail(c, http.StatusBadRequest, 10040, "invalid required_plan")
		return
	}

	agent := models.AIAgent{
		Name:            req.Name,
		Description:     req.Description,
		AvatarURL:       req.AvatarURL,
		IntegrationType: req.IntegrationType,
		APIEndpoint:     req.APIEndpoint,
		APIKey:          req.APIKey,
		ChatbotURL:      req.ChatbotURL,
		DeepSeekAPIKey:  req.DeepSeekAPIKey,
		DeepSeekModel:   req.DeepSeekModel,
		SystemPrompt:    req.SystemPrompt,
		RequiredPlan:    req.RequiredPlan,
		IsActive:        true,
	}
	if req.Temperature != nil {
		agent.Temperature = *req.Temperature
	} else {
		agent.Temperature = 0.7
	}
	if req.MaxTokens != nil {
		agent.MaxTokens = *req.MaxTokens
	} else {
		agent.MaxTokens = 2048
	}
	if req.IsActive != nil {
		agent.IsActive = *req.IsActive
	}

	if err := h.DB.Create(&agent).Error; err != nil {
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}
	common.Created(c, agent)
}

func (h *Handler) AdminUpdateAgent(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10004, "invalid agent id")
		return
	}

	var agent models.AIAgent
	if err := h.DB.First(&agent, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40402, "agent not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}

	var req agentReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	if req.Name != "" {
		agent.Name = strings.TrimSpace(req.Name)
	}
	if req.Description != "" {
		agent.Description = req.Description
	}
	if req.AvatarURL != "" {
		agent.AvatarURL = req.AvatarURL
	}
	if req.IntegrationType != "" {
		if !validIntegrationType(req.IntegrationType) {
			common.Fail(c, http.StatusBadRequest, 10031, "integration_type must be api, iframe or deepseek")
			return
		}
		agent.IntegrationType = req.IntegrationType
	}
	if req.APIEndpoint != "" {
		agent.APIEndpoint = req.APIEndpoint
	}
	if req.APIKey != "" {
		agent.APIKey = req.APIKey
	}
	if req.ChatbotURL != "" {
		agent.ChatbotURL = req.ChatbotURL
	}
	if req.DeepSeekAPIKey != "" {
		agent.DeepSeekAPIKey = req.DeepSeekAPIKey
	}
	if req.DeepSeekModel != "" {
		agent.DeepSeekModel = req.DeepSeekModel
	}
	if req.SystemPrompt != "" {
		agent.SystemPrompt = req.SystemPrompt
	}
	if req.Temperature != nil {
		agent.Temperature = *req.Temperature
	}
	if req.MaxTokens != nil {
		agent.MaxTokens = *req.MaxTokens
	}
	if req.RequiredPlan != "" {
		if !plan.Valid(req.RequiredPlan) {
			common.Fail(c, http.StatusBadRequest, 10040, "invalid required_plan")
			return
		}
		agent.RequiredPlan = req.RequiredPlan
	}
	if req.IsActive != nil {
		agent.IsActive = *req.IsActive
	}

	if err := h.DB.Save(&agent).Error; err != nil {
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}
	common.OK(c, agent)
}

// AdminDeleteAgent removes an agent and everything referencing it,
// reporting per-table counts.
func (h *Handler) AdminDeleteAgent(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10004, "invalid agent id")
		return
	}

	stats, err := h.Admin.DeleteAgent(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, adminops.ErrNotFound) {
			common.Fail(c, http.StatusNotFound, 40402, "agent not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}
	common.OK(c, stats)
}

func (h *Handler) AdminToggleAgent(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10004, "invalid agent id")
		return
	}

	var agent models.AIAgent
	if err := h.DB.First(&agent, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40402, "agent not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}

	if err := h.DB.Model(&agent).Update("is_active", !agent.IsActive).Error; err != nil {
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}
	agent.IsActive = !agent.IsActive
	common.OK(c, agent)
}

func (h *Handler) AdminAgentStats(c *gin.Context) {
	stats, err := h.Admin.AgentUsageStats(c.Request.Context())
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}
	common.OK(c, stats)
}

const maxAvatarBytes = 2 << 20 // 2MB

var avatarExts = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true,
}

// AdminUploadAvatar stores an agent avatar image under the upload dir
// with a random filename and returns its public path.
func (h *Handler) AdminUploadAvatar(c *gin.Context) {
	file, err := c.FormFile("avatar")
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10060, "avatar file required")
		return
	}
	if file.Size > maxAvatarBytes {
		common.Fail(c, http.StatusBadRequest, 10061, "avatar must be at most 2MB")
		return
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	if !avatarExts[ext] {
		common.Fail(c, http.StatusBadRequest, 10062, "avatar must be an image (jpg, png, gif, webp)")
		return
	}

	name := uuid.NewString() + ext
	dst := filepath.Join(h.Cfg.UploadDir, name)
	if err := c.SaveUploadedFile(file, dst); err != nil {
		common.Fail(c, http.StatusInternalServerError, 50030, "failed to store avatar")
		return
	}

	common.OK(c, gin.H{
		"url": "/uploads/avatars/" + name,
	})
}
