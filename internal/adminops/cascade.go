package adminops

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/bigfan007/ai-workmate/internal/models"
)

var ErrNotFound = errors.New("record not found")

type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// UserDeleteStats counts the rows removed by a user cascade delete.
type UserDeleteStats struct {
	Permissions   int64 `json:"permissions"`
	AuditLogs     int64 `json:"audit_logs"`
	Messages      int64 `json:"messages"`
	Conversations int64 `json:"conversations"`
	Orders        int64 `json:"orders"`
	Subscriptions int64 `json:"subscriptions"`
	User          int64 `json:"user"`
	Total         int64 `json:"total"`
}

// DeleteUser removes a user and every dependent row inside one
// transaction, in dependency order. A failing step names itself and
// rolls everything back.
func (s *Service) DeleteUser(ctx context.Context, userID uint64) (*UserDeleteStats, error) {
	stats := &UserDeleteStats{}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error

		if stats.Permissions, err = deleteWhere(tx, &models.UserAgentPermission{}, "user_id = ?", userID); err != nil {
			return fmt.Errorf("delete permissions: %w", err)
		}
		if stats.AuditLogs, err = deleteWhere(tx, &models.PermissionAuditLog{}, "user_id = ?", userID); err != nil {
			return fmt.Errorf("delete audit logs: %w", err)
		}

		var convIDs []uint64
		if err := tx.Model(&models.Conversation{}).Where("user_id = ?", userID).Pluck("id", &convIDs).Error; err != nil {
			return fmt.Errorf("list conversations: %w", err)
		}
		if len(convIDs) > 0 {
			if stats.Messages, err = deleteWhere(tx, &models.Message{}, "conversation_id IN ?", convIDs); err != nil {
				return fmt.Errorf("delete messages: %w", err)
			}
		}
		if stats.Conversations, err = deleteWhere(tx, &models.Conversation{}, "user_id = ?", userID); err != nil {
			return fmt.Errorf("delete conversations: %w", err)
		}
		if stats.Orders, err = deleteWhere(tx, &models.Order{}, "user_id = ?", userID); err != nil {
			return fmt.Errorf("delete orders: %w", err)
		}
		if stats.Subscriptions, err = deleteWhere(tx, &models.Subscription{}, "user_id = ?", userID); err != nil {
			return fmt.Errorf("delete subscriptions: %w", err)
		}
		if stats.User, err = deleteWhere(tx, &models.User{}, "id = ?", userID); err != nil {
			return fmt.Errorf("delete user: %w", err)
		}
		if stats.User == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	stats.Total = stats.Permissions + stats.AuditLogs + stats.Messages +
		stats.Conversations + stats.Orders + stats.Subscriptions + stats.User
	return stats, nil
}

// AgentDeleteStats counts the rows removed by an agent cascade delete.
type AgentDeleteStats struct {
	Messages      int64 `json:"messages"`
	Conversations int64 `json:"conversations"`
	Permissions   int64 `json:"permissions"`
	AuditLogs     int64 `json:"audit_logs"`
	Agent         int64 `json:"agent"`
	Total         int64 `json:"total"`
}

// DeleteAgent removes an agent and every dependent row inside one
// transaction.
func (s *Service) DeleteAgent(ctx context.Context, agentID uint64) (*AgentDeleteStats, error) {
	stats := &AgentDeleteStats{}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error

		var convIDs []uint64
		if err := tx.Model(&models.Conversation{}).Where("agent_id = ?", agentID).Pluck("id", &convIDs).Error; err != nil {
			return fmt.Errorf("list conversations: %w", err)
		}
		if len(convIDs) > 0 {
			if stats.Messages, err = deleteWhere(tx, &models.Message{}, "conversation_id IN ?", convIDs); err != nil {
				return fmt.Errorf("delete messages: %w", err)
			}
		}
		if stats.Conversations, err = deleteWhere(tx, &models.Conversation{}, "agent_id = ?", agentID); err != nil {
			return fmt.Errorf("delete conversations: %w", err)
		}
		if stats.Permissions, err = deleteWhere(tx, &models.UserAgentPermission{}, "agent_id = ?", agentID); err != nil {
			return fmt.Errorf("delete permissions: %w", err)
		}
		if stats.AuditLogs, err = deleteWhere(tx, &models.PermissionAuditLog{}, "agent_id = ?", agentID); err != nil {
			return fmt.Errorf("delete audit logs: %w", err)
		}
		if stats.Agent, err = deleteWhere(tx, &models.AIAgent{}, "id = ?", agentID); err != nil {
			return fmt.Errorf("delete agent: %w", err)
		}
		if stats.Agent == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	stats.Total = stats.Messages + stats.Conversations + stats.Permissions +
		stats.AuditLogs + stats.Agent
	return stats, nil
}

func deleteWhere(tx *gorm.DB, model any, cond string, args ...any) (int64, error) {
	res := tx.Where(cond, args...).Delete(model)
	return res.RowsAffected, res.Error
}
