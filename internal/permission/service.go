package permission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/bigfan007/ai-workmate/internal/models"
	"github.com/bigfan007/ai-workmate/internal/plan"
)

// Per-item statuses of a batch assign call. A batch may partially
// succeed; each agent reports its own outcome.
const (
	StatusGranted          = "granted"
	StatusRevoked          = "revoked"
	StatusAlreadyGranted   = "already_granted"
	StatusPlanInsufficient = "plan_insufficient"
	StatusError            = "error"
)

const (
	OperationGrant  = "grant"
	OperationRevoke = "revoke"
)

type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// HasActiveGrant reports whether an active allow-list row exists for the
// (user, agent) pair.
func (s *Service) HasActiveGrant(ctx context.Context, userID, agentID uint64) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.UserAgentPermission{}).
		Where("user_id = ? AND agent_id = ? AND is_active = ?", userID, agentID, true).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// CanAccessAgent is the grant check with the admin bypass applied.
func (s *Service) CanAccessAgent(ctx context.Context, user *models.User, agentID uint64) (bool, error) {
	if user.Role == models.RoleAdmin {
		return true, nil
	}
	return s.HasActiveGrant(ctx, user.ID, agentID)
}

// AllowedAgentIDs returns the ids of all agents the user holds an active
// grant for.
func (s *Service) AllowedAgentIDs(ctx context.Context, userID uint64) ([]uint64, error) {
	var ids []uint64
	err := s.db.WithContext(ctx).Model(&models.UserAgentPermission{}).
		Where("user_id = ? AND is_active = ?", userID, true).
		Pluck("agent_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *Service) ListForUser(ctx context.Context, userID uint64) ([]models.UserAgentPermission, error) {
	var perms []models.UserAgentPermission
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND is_active = ?", userID, true).
		Order("granted_at DESC").
		Find(&perms).Error
	if err != nil {
		return nil, err
	}
	return perms, nil
}

type AssignRequest struct {
	UserID     uint64
	AgentIDs   []uint64
	Operation  string // grant | revoke
	OperatedBy uint64
	IPAddress  string
	UserAgent  string
}

type AssignItem struct {
	AgentID uint64 `json:"agent_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrAgentsNotFound = errors.New("some agents not found")
)

// Assign grants or revokes a batch of agent permissions for one user.
// Grants additionally require the user's plan tier to cover the agent's
// required tier; a shortfall yields a plan_insufficient item instead of
// failing the batch.
func (s *Service) Assign(ctx context.Context, req AssignRequest) ([]AssignItem, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, req.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	var agents []models.AIAgent
	if err := s.db.WithContext(ctx).Where("id IN ?", req.AgentIDs).Find(&agents).Error; err != nil {
		return nil, err
	}
	if len(agents) != len(req.AgentIDs) {
		return nil, ErrAgentsNotFound
	}
	byID := make(map[uint64]models.AIAgent, len(agents))
	for _, a := range agents {
		byID[a.ID] = a
	}

	userPlan := plan.Free
	var sub models.Subscription
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", req.UserID, models.SubscriptionActive).
		First(&sub).Error
	switch {
	case err == nil:
		userPlan = sub.PlanType
	case errors.Is(err, gorm.ErrRecordNotFound):
		// no active subscription, treated as free
	default:
		return nil, err
	}

	results := make([]AssignItem, 0, len(req.AgentIDs))
	auditLogs := make([]models.PermissionAuditLog, 0, len(req.AgentIDs))

	for _, agentID := range req.AgentIDs {
		agent := byID[agentID]

		var item AssignItem
		switch req.Operation {
		case OperationGrant:
			item = s.grantOne(ctx, req, &user, &agent, userPlan)
		case OperationRevoke:
			item = s.revokeOne(ctx, req, &agent)
		}
		results = append(results, item)

		opType := req.Operation
		if len(req.AgentIDs) > 1 {
			opType = "batch_" + req.Operation
		}
		details, _ := json.Marshal(map[string]string{
			"agent_name": agent.Name,
			"user_name":  user.Name,
			"user_email": user.Email,
			"status":     item.Status,
		})
		auditLogs = append(auditLogs, models.PermissionAuditLog{
			UserID:           req.UserID,
			AgentID:          agentID,
			OperatedBy:       req.OperatedBy,
			OperationType:    opType,
			OperationDetails: string(details),
			IPAddress:        req.IPAddress,
			UserAgent:        req.UserAgent,
		})
	}

	// best effort, an audit failure never fails the batch
	if len(auditLogs) > 0 {
		_ = s.db.WithContext(ctx).Create(&auditLogs).Error
	}

	return results, nil
}

func (s *Service) grantOne(ctx context.Context, req AssignRequest, user *models.User, agent *models.AIAgent, userPlan string) AssignItem {
	if !plan.Satisfies(userPlan, agent.RequiredPlan) {
		return AssignItem{
			AgentID: agent.ID,
			Status:  StatusPlanInsufficient,
			Message: fmt.Sprintf("%s requires the %s plan, user is on %s", agent.Name, agent.RequiredPlan, userPlan),
		}
	}

	existing, err := s.HasActiveGrant(ctx, req.UserID, agent.ID)
	if err != nil {
		return AssignItem{AgentID: agent.ID, Status: StatusError, Message: "failed to check existing permission"}
	}
	if existing {
		return AssignItem{
			AgentID: agent.ID,
			Status:  StatusAlreadyGranted,
			Message: fmt.Sprintf("user already has access to %s", agent.Name),
		}
	}

	perm := models.UserAgentPermission{
		UserID:    req.UserID,
		AgentID:   agent.ID,
		IsActive:  true,
		GrantedBy: req.OperatedBy,
	}
	if err := s.db.WithContext(ctx).Create(&perm).Error; err != nil {
		return AssignItem{AgentID: agent.ID, Status: StatusError, Message: "failed to grant permission"}
	}
	return AssignItem{
		AgentID: agent.ID,
		Status:  StatusGranted,
		Message: fmt.Sprintf("granted access to %s", agent.Name),
	}
}

func (s *Service) revokeOne(ctx context.Context, req AssignRequest, agent *models.AIAgent) AssignItem {
	now := time.Now()
	err := s.db.WithContext(ctx).Model(&models.UserAgentPermission{}).
		Where("user_id = ? AND agent_id = ? AND is_active = ?", req.UserID, agent.ID, true).
		Updates(map[string]any{
			"is_active":  false,
			"revoked_at": &now,
		}).Error
	if err != nil {
		return AssignItem{AgentID: agent.ID, Status: StatusError, Message: "failed to revoke permission"}
	}
	return AssignItem{
		AgentID: agent.ID,
		Status:  StatusRevoked,
		Message: fmt.Sprintf("revoked access to %s", agent.Name),
	}
}

type AuditFilter struct {
	UserID        uint64
	OperationType string
	StartDate     *time.Time
	EndDate       *time.Time
	Page          int
	Limit         int
}

// ListAuditLogs returns audit records newest first, with total count for
// pagination.
func (s *Service) ListAuditLogs(ctx context.Context, f AuditFilter) ([]models.PermissionAuditLog, int64, error) {
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 20
	}

	q := s.db.WithContext(ctx).Model(&models.PermissionAuditLog{})
	if f.UserID > 0 {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.OperationType != "" {
		q = q.Where("operation_type = ?", f.OperationType)
	}
	if f.StartDate != nil {
		q = q.Where("created_at >= ?", *f.StartDate)
	}
	if f.EndDate != nil {
		q = q.Where("created_at <= ?", *f.EndDate)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var logs []models.PermissionAuditLog
	err := q.Order("created_at DESC").
		Offset((f.Page - 1) * f.Limit).
		Limit(f.Limit).
		Find(&logs).Error
	if err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}

type ListFilter struct {
	UserID  uint64
	AgentID uint64
	Page    int
	Limit   int
}

// List returns active permission rows for the back-office, newest first.
func (s *Service) List(ctx context.Context, f ListFilter) ([]models.UserAgentPermission, int64, error) {
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 20
	}

	q := s.db.WithContext(ctx).Model(&models.UserAgentPermission{}).Where("is_active = ?", true)
	if f.UserID > 0 {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.AgentID > 0 {
		q = q.Where("agent_id = ?", f.AgentID)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var perms []models.UserAgentPermission
	err := q.Order("granted_at DESC").
		Offset((f.Page - 1) * f.Limit).
		Limit(f.Limit).
		Find(&perms).Error
	if err != nil {
		return nil, 0, err
	}
	return perms, total, nil
}
