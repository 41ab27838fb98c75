package adminops

import (
	"context"
	"time"

	"github.com/bigfan007/ai-workmate/internal/models"
)

// DashboardStats is the back-office overview block.
type DashboardStats struct {
	TotalUsers          int64 `json:"total_users"`
	ActiveSubscriptions int64 `json:"active_subscriptions"`
	NewUsersThisMonth   int64 `json:"new_users_this_month"`
	TotalRevenue        int64 `json:"total_revenue"`
	TotalConversations  int64 `json:"total_conversations"`
	TotalMessages       int64 `json:"total_messages"`
}

func (s *Service) DashboardStats(ctx context.Context) (*DashboardStats, error) {
	out := &DashboardStats{}
	db := s.db.WithContext(ctx)

	if err := db.Model(&models.User{}).Count(&out.TotalUsers).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Subscription{}).
		Where("status = ?", models.SubscriptionActive).
		Count(&out.ActiveSubscriptions).Error; err != nil {
		return nil, err
	}

	now := time.Now()
	startOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	if err := db.Model(&models.User{}).
		Where("created_at >= ?", startOfMonth).
		Count(&out.NewUsersThisMonth).Error; err != nil {
		return nil, err
	}

	var revenue *int64
	if err := db.Model(&models.Order{}).
		Where("status = ?", models.OrderCompleted).
		Select("SUM(amount)").
		Scan(&revenue).Error; err != nil {
		return nil, err
	}
	if revenue != nil {
		out.TotalRevenue = *revenue
	}

	if err := db.Model(&models.Conversation{}).Count(&out.TotalConversations).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Message{}).Count(&out.TotalMessages).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// AgentUsage is per-agent conversation and message volume.
type AgentUsage struct {
	ID                uint64 `json:"id"`
	Name              string `json:"name"`
	IsActive          bool   `json:"is_active"`
	ConversationCount int64  `json:"conversation_count"`
	MessageCount      int64  `json:"message_count"`
}

func (s *Service) AgentUsageStats(ctx context.Context) ([]AgentUsage, error) {
	db := s.db.WithContext(ctx)

	var agents []models.AIAgent
	if err := db.Select("id", "name", "is_active").Find(&agents).Error; err != nil {
		return nil, err
	}

	out := make([]AgentUsage, 0, len(agents))
	for _, a := range agents {
		u := AgentUsage{ID: a.ID, Name: a.Name, IsActive: a.IsActive}

		if err := db.Model(&models.Conversation{}).
			Where("agent_id = ?", a.ID).
			Count(&u.ConversationCount).Error; err != nil {
			return nil, err
		}

		var convIDs []uint64
		if err := db.Model(&models.Conversation{}).
			Where("agent_id = ?", a.ID).
			Pluck("id", &convIDs).Error; err != nil {
			return nil, err
		}
		if len(convIDs) > 0 {
			if err := db.Model(&models.Message{}).
				Where("conversation_id IN ?", convIDs).
				Count(&u.MessageCount).Error; err != nil {
				return nil, err
			}
		}

		out = append(out, u)
	}
	return out, nil
}
