package chat

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/bigfan007/ai-workmate/internal/models"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) CreateConversation(ctx context.Context, c *models.Conversation) error {
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *Repo) GetConversation(ctx context.Context, id uint64) (*models.Conversation, error) {
	var c models.Conversation
	if err := r.db.WithContext(ctx).First(&c, id).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// ListConversations returns the user's conversations, newest activity
// first. agentID of zero means no agent filter.
func (r *Repo) ListConversations(ctx context.Context, userID, agentID uint64) ([]models.Conversation, error) {
	q := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC")
	if agentID > 0 {
		q = q.Where("agent_id = ?", agentID)
	}

	var convs []models.Conversation
	if err := q.Find(&convs).Error; err != nil {
		return nil, err
	}
	return convs, nil
}

func (r *Repo) TouchConversation(ctx context.Context, id uint64) error {
	return r.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("id = ?", id).
		Update("updated_at", gorm.Expr("CURRENT_TIMESTAMP")).Error
}

func (r *Repo) InsertMessage(ctx context.Context, m *models.Message) error {
	return r.db.WithContext(ctx).Create(m).Error
}

// ListMessages returns a conversation's messages in ASC creation order.
func (r *Repo) ListMessages(ctx context.Context, conversationID uint64) ([]models.Message, error) {
	var msgs []models.Message
	if err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("id ASC").
		Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

// DeleteConversation removes the conversation and its messages in one
// transaction.
func (r *Repo) DeleteConversation(ctx context.Context, id uint64) (deletedMessages int64, err error) {
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("conversation_id = ?", id).Delete(&models.Message{})
		if res.Error != nil {
			return res.Error
		}
		deletedMessages = res.RowsAffected
		return tx.Delete(&models.Conversation{}, id).Error
	})
	return deletedMessages, err
}

func (r *Repo) GetAgent(ctx context.Context, id uint64) (*models.AIAgent, error) {
	var a models.AIAgent
	if err := r.db.WithContext(ctx).First(&a, id).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *Repo) GetSubscription(ctx context.Context, userID uint64) (*models.Subscription, error) {
	var s models.Subscription
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *Repo) IncrementUsage(ctx context.Context, userID uint64) error {
	return r.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("user_id = ?", userID).
		Update("usage_count", gorm.Expr("usage_count + 1")).Error
}

// Job CRUD

func (r *Repo) GetJobByID(ctx context.Context, id string) (*models.ChatJob, error) {
	var j models.ChatJob
	if err := r.db.WithContext(ctx).First(&j, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &j, nil
}

func (r *Repo) UpdateJobStatusRunning(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&models.ChatJob{}).
		Where("id = ? AND status = ?", id, models.ChatJobQueued).
		Update("status", models.ChatJobRunning).Error
}

func (r *Repo) MarkJobSucceeded(ctx context.Context, id string, assistantMsgID uint64) error {
	return r.db.WithContext(ctx).Model(&models.ChatJob{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":            models.ChatJobSucceeded,
			"result_message_id": assistantMsgID,
			"error":             nil,
		}).Error
}

func (r *Repo) MarkJobFailed(ctx context.Context, id string, errMsg string) error {
	return r.db.WithContext(ctx).Model(&models.ChatJob{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":            models.ChatJobFailed,
			"error":             errMsg,
			"result_message_id": nil,
		}).Error
}

func (r *Repo) getJobByUserAndIdempotencyKey(ctx context.Context, userID uint64, key string) (*models.ChatJob, error) {
	var job models.ChatJob
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND idempotency_key = ?", userID, key).
		First(&job).Error
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// CreateJobOrGetExisting tries to create a job, but if (user_id,
// idempotency_key) already exists it returns the existing job and
// existed=true instead.
func (r *Repo) CreateJobOrGetExisting(ctx context.Context, job *models.ChatJob) (*models.ChatJob, bool, error) {
	if job.IdempotencyKey == nil || *job.IdempotencyKey == "" {
		job.IdempotencyKey = nil
		if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
			return nil, false, err
		}
		return job, false, nil
	}

	err := r.db.WithContext(ctx).Create(job).Error
	if err == nil {
		return job, false, nil
	}

	existing, getErr := r.getJobByUserAndIdempotencyKey(ctx, job.UserID, *job.IdempotencyKey)
	if getErr == nil {
		return existing, true, nil
	}

	if errors.Is(getErr, gorm.ErrRecordNotFound) {
		return nil, false, err
	}
	return nil, false, getErr
}
