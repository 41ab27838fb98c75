package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/bigfan007/ai-workmate/internal/agentcall"
	"github.com/bigfan007/ai-workmate/internal/models"
	"github.com/bigfan007/ai-workmate/internal/permission"
)

var (
	ErrAgentNotFound        = errors.New("agent not found or inactive")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrNoPermission         = errors.New("no permission for this agent")
	ErrUsageLimit           = errors.New("usage limit reached")
	ErrEmptyContent         = errors.New("message content is empty")
)

// BridgeError reports a failed provider call. The user's own message was
// already persisted, so the caller can still return it.
type BridgeError struct {
	UserMessage *models.Message
	Err         error
}

func (e *BridgeError) Error() string { return e.Err.Error() }
func (e *BridgeError) Unwrap() error { return e.Err }

type Service struct {
	repo   *Repo
	bridge *agentcall.Bridge
	perms  *permission.Service
}

func NewService(repo *Repo, bridge *agentcall.Bridge, perms *permission.Service) *Service {
	return &Service{repo: repo, bridge: bridge, perms: perms}
}

// CreateConversation starts a conversation with an agent. The agent must
// be active; non-admin users additionally need an active grant.
func (s *Service) CreateConversation(ctx context.Context, user *models.User, agentID uint64, title string) (*models.Conversation, *models.AIAgent, error) {
	agent, err := s.repo.GetAgent(ctx, agentID)
	if err != nil || !agent.IsActive {
		return nil, nil, ErrAgentNotFound
	}

	allowed, err := s.perms.CanAccessAgent(ctx, user, agentID)
	if err != nil {
		return nil, nil, err
	}
	if !allowed {
		return nil, nil, ErrNoPermission
	}

	if strings.TrimSpace(title) == "" {
		title = fmt.Sprintf("Chat with %s", agent.Name)
	}

	conv := &models.Conversation{
		UserID:  user.ID,
		AgentID: agentID,
		Title:   title,
	}
	if err := s.repo.CreateConversation(ctx, conv); err != nil {
		return nil, nil, err
	}
	return conv, agent, nil
}

func (s *Service) ListConversations(ctx context.Context, userID, agentID uint64) ([]models.Conversation, error) {
	return s.repo.ListConversations(ctx, userID, agentID)
}

// GetConversation loads a conversation owned by the user, its agent and
// full message history.
func (s *Service) GetConversation(ctx context.Context, userID, id uint64) (*models.Conversation, *models.AIAgent, []models.Message, error) {
	conv, err := s.ownedConversation(ctx, userID, id)
	if err != nil {
		return nil, nil, nil, err
	}

	agent, err := s.repo.GetAgent(ctx, conv.AgentID)
	if err != nil {
		return nil, nil, nil, err
	}

	msgs, err := s.repo.ListMessages(ctx, conv.ID)
	if err != nil {
		return nil, nil, nil, err
	}
	return conv, agent, msgs, nil
}

func (s *Service) ownedConversation(ctx context.Context, userID, id uint64) (*models.Conversation, error) {
	conv, err := s.repo.GetConversation(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}
	if conv.UserID != userID {
		// hide existence
		return nil, ErrConversationNotFound
	}
	return conv, nil
}

// SendMessage persists the user's message, calls the agent's provider and
// persists the assistant reply. A provider failure returns a BridgeError
// carrying the already-saved user message.
func (s *Service) SendMessage(ctx context.Context, user *models.User, conversationID uint64, content string) (*models.Message, *models.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, nil, ErrEmptyContent
	}

	conv, err := s.ownedConversation(ctx, user.ID, conversationID)
	if err != nil {
		return nil, nil, err
	}

	allowed, err := s.perms.CanAccessAgent(ctx, user, conv.AgentID)
	if err != nil {
		return nil, nil, err
	}
	if !allowed {
		return nil, nil, ErrNoPermission
	}

	agent, err := s.repo.GetAgent(ctx, conv.AgentID)
	if err != nil {
		return nil, nil, err
	}

	// usage cap, checked before anything is written or sent
	if err := s.checkUsage(ctx, user); err != nil {
		return nil, nil, err
	}

	userMsg := &models.Message{
		ConversationID: conv.ID,
		Role:           models.MessageRoleUser,
		Content:        content,
	}
	if err := s.repo.InsertMessage(ctx, userMsg); err != nil {
		return nil, nil, err
	}

	reply, err := s.bridge.Reply(ctx, agent, content)
	if err != nil {
		return userMsg, nil, &BridgeError{UserMessage: userMsg, Err: err}
	}

	aiMsg := &models.Message{
		ConversationID: conv.ID,
		Role:           models.MessageRoleAssistant,
		Content:        reply,
		Status:         "success",
	}
	if err := s.repo.InsertMessage(ctx, aiMsg); err != nil {
		return userMsg, nil, err
	}

	_ = s.repo.TouchConversation(ctx, conv.ID)
	_ = s.repo.IncrementUsage(ctx, user.ID)

	return userMsg, aiMsg, nil
}

// checkUsage rejects when the user's subscription is exhausted. Users
// without a subscription row (admins seeded outside registration) are
// not capped.
func (s *Service) checkUsage(ctx context.Context, user *models.User) error {
	sub, err := s.repo.GetSubscription(ctx, user.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	if sub.UsageCount >= sub.UsageLimit {
		return ErrUsageLimit
	}
	return nil
}

// DeleteConversation removes an owned conversation and its messages.
func (s *Service) DeleteConversation(ctx context.Context, userID, id uint64) (*models.Conversation, int64, error) {
	conv, err := s.ownedConversation(ctx, userID, id)
	if err != nil {
		return nil, 0, err
	}

	deleted, err := s.repo.DeleteConversation(ctx, conv.ID)
	if err != nil {
		return nil, 0, err
	}
	return conv, deleted, nil
}

// EnqueueMessage persists the user's message and records a queued job for
// the worker. The caller publishes the job id after a successful create.
func (s *Service) EnqueueMessage(ctx context.Context, user *models.User, conversationID uint64, content, jobID string, idempotencyKey *string) (*models.ChatJob, bool, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, false, ErrEmptyContent
	}

	conv, err := s.ownedConversation(ctx, user.ID, conversationID)
	if err != nil {
		return nil, false, err
	}

	allowed, err := s.perms.CanAccessAgent(ctx, user, conv.AgentID)
	if err != nil {
		return nil, false, err
	}
	if !allowed {
		return nil, false, ErrNoPermission
	}

	if err := s.checkUsage(ctx, user); err != nil {
		return nil, false, err
	}

	userMsg := &models.Message{
		ConversationID: conv.ID,
		Role:           models.MessageRoleUser,
		Content:        content,
	}
	if err := s.repo.InsertMessage(ctx, userMsg); err != nil {
		return nil, false, err
	}

	job := &models.ChatJob{
		ID:             jobID,
		UserID:         user.ID,
		ConversationID: conv.ID,
		Prompt:         content,
		IdempotencyKey: idempotencyKey,
		Status:         models.ChatJobQueued,
	}
	return s.repo.CreateJobOrGetExisting(ctx, job)
}

func (s *Service) GetJob(ctx context.Context, jobID string) (*models.ChatJob, error) {
	return s.repo.GetJobByID(ctx, jobID)
}

// ProcessJob is the worker-side handler: generate the assistant reply for
// a queued job and record the outcome on the job row.
func (s *Service) ProcessJob(ctx context.Context, jobID string) error {
	_ = s.repo.UpdateJobStatusRunning(ctx, jobID)

	job, err := s.repo.GetJobByID(ctx, jobID)
	if err != nil {
		return err
	}

	conv, err := s.repo.GetConversation(ctx, job.ConversationID)
	if err != nil {
		_ = s.repo.MarkJobFailed(ctx, jobID, "conversation no longer exists")
		return err
	}

	agent, err := s.repo.GetAgent(ctx, conv.AgentID)
	if err != nil {
		_ = s.repo.MarkJobFailed(ctx, jobID, "agent no longer exists")
		return err
	}

	reply, err := s.bridge.Reply(ctx, agent, job.Prompt)
	if err != nil {
		_ = s.repo.MarkJobFailed(ctx, jobID, err.Error())
		return err
	}

	aiMsg := &models.Message{
		ConversationID: conv.ID,
		Role:           models.MessageRoleAssistant,
		Content:        reply,
		Status:         "success",
	}
	if err := s.repo.InsertMessage(ctx, aiMsg); err != nil {
		_ = s.repo.MarkJobFailed(ctx, jobID, "failed to store assistant reply")
		return err
	}

	_ = s.repo.TouchConversation(ctx, conv.ID)
	_ = s.repo.IncrementUsage(ctx, job.UserID)

	return s.repo.MarkJobSucceeded(ctx, jobID, aiMsg.ID)
}
