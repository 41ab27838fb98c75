package chat

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/bigfan007/ai-workmate/internal/agentcall"
	"github.com/bigfan007/ai-workmate/internal/models"
	"github.com/bigfan007/ai-workmate/internal/permission"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(gormsqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	err = db.AutoMigrate(
		&models.User{},
		&models.Subscription{},
		&models.AIAgent{},
		&models.UserAgentPermission{},
		&models.Conversation{},
		&models.Message{},
		&models.ChatJob{},
	)
	if err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// fakeProvider answers like a workflow-style agent backend.
func fakeProvider(t *testing.T, answer string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat-messages" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"answer":"` + answer + `"}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

type fixture struct {
	db    *gorm.DB
	svc   *Service
	user  *models.User
	agent *models.AIAgent
}

func newFixture(t *testing.T, endpoint string) *fixture {
	t.Helper()
	db := openTestDB(t)

	user := &models.User{Email: "alice@test.com", Name: "Alice", PasswordHash: "x", Role: models.RoleUser}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	now := time.Now()
	sub := &models.Subscription{
		UserID:     user.ID,
		PlanType:   "free",
		Status:     models.SubscriptionActive,
		UsageLimit: 10,
		StartDate:  &now,
	}
	if err := db.Create(sub).Error; err != nil {
		t.Fatalf("create subscription: %v", err)
	}
	agent := &models.AIAgent{
		Name:            "Helper",
		IntegrationType: models.IntegrationAPI,
		APIEndpoint:     endpoint,
		APIKey:          "test-key",
		RequiredPlan:    "free",
		IsActive:        true,
	}
	if err := db.Create(agent).Error; err != nil {
		t.Fatalf("create agent: %v", err)
	}
	if err := db.Create(&models.UserAgentPermission{
		UserID:    user.ID,
		AgentID:   agent.ID,
		IsActive:  true,
		GrantedBy: 999,
	}).Error; err != nil {
		t.Fatalf("create permission: %v", err)
	}

	bridge := agentcall.New("", 5*time.Second)
	svc := NewService(NewRepo(db), bridge, permission.NewService(db))
	return &fixture{db: db, svc: svc, user: user, agent: agent}
}

func TestSendMessage_WritesUserAndAssistant(t *testing.T) {
	srv := fakeProvider(t, "hello there")
	f := newFixture(t, srv.URL)
	ctx := context.Background()

	conv, _, err := f.svc.CreateConversation(ctx, f.user, f.agent.ID, "")
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	if conv.Title != "Chat with Helper" {
		t.Fatalf("unexpected default title: %q", conv.Title)
	}

	userMsg, aiMsg, err := f.svc.SendMessage(ctx, f.user, conv.ID, "Hello")
	if err != nil {
		t.Fatalf("send message: %v", err)
	}
	if userMsg.Role != models.MessageRoleUser || userMsg.Content != "Hello" {
		t.Fatalf("unexpected user msg: role=%q content=%q", userMsg.Role, userMsg.Content)
	}
	if aiMsg.Role != models.MessageRoleAssistant || aiMsg.Content != "hello there" {
		t.Fatalf("unexpected assistant msg: role=%q content=%q", aiMsg.Role, aiMsg.Content)
	}

	var msgs []models.Message
	if err := f.db.Where("conversation_id = ?", conv.ID).Order("id ASC").Find(&msgs).Error; err != nil {
		t.Fatalf("query messages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != models.MessageRoleUser || msgs[1].Role != models.MessageRoleAssistant {
		t.Fatalf("unexpected message order: %q then %q", msgs[0].Role, msgs[1].Role)
	}

	var sub models.Subscription
	if err := f.db.Where("user_id = ?", f.user.ID).First(&sub).Error; err != nil {
		t.Fatalf("query subscription: %v", err)
	}
	if sub.UsageCount != 1 {
		t.Fatalf("expected usage_count 1, got %d", sub.UsageCount)
	}
}

func TestSendMessage_RequiresActiveGrant(t *testing.T) {
	srv := fakeProvider(t, "ok")
	f := newFixture(t, srv.URL)
	ctx := context.Background()

	conv, _, err := f.svc.CreateConversation(ctx, f.user, f.agent.ID, "t")
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}

	// revoke the grant, the existing conversation goes dark too
	if err := f.db.Model(&models.UserAgentPermission{}).
		Where("user_id = ? AND agent_id = ?", f.user.ID, f.agent.ID).
		Update("is_active", false).Error; err != nil {
		t.Fatalf("revoke: %v", err)
	}

	_, _, err = f.svc.SendMessage(ctx, f.user, conv.ID, "Hello")
	if !errors.Is(err, ErrNoPermission) {
		t.Fatalf("expected ErrNoPermission, got %v", err)
	}
}

func TestSendMessage_UsageLimitBlocksBeforeWrite(t *testing.T) {
	srv := fakeProvider(t, "ok")
	f := newFixture(t, srv.URL)
	ctx := context.Background()

	conv, _, err := f.svc.CreateConversation(ctx, f.user, f.agent.ID, "t")
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}

	if err := f.db.Model(&models.Subscription{}).
		Where("user_id = ?", f.user.ID).
		Update("usage_count", 10).Error; err != nil {
		t.Fatalf("exhaust quota: %v", err)
	}

	_, _, err = f.svc.SendMessage(ctx, f.user, conv.ID, "Hello")
	if !errors.Is(err, ErrUsageLimit) {
		t.Fatalf("expected ErrUsageLimit, got %v", err)
	}

	var cnt int64
	if err := f.db.Model(&models.Message{}).Where("conversation_id = ?", conv.ID).Count(&cnt).Error; err != nil {
		t.Fatalf("count messages: %v", err)
	}
	if cnt != 0 {
		t.Fatalf("expected no messages written, got %d", cnt)
	}
}

func TestSendMessage_BridgeFailureKeepsUserMessage(t *testing.T) {
	// a 4xx from the provider fails without retrying
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"bad request"}`, http.StatusBadRequest)
	}))
	t.Cleanup(bad.Close)

	f := newFixture(t, bad.URL)
	ctx := context.Background()

	conv, _, err := f.svc.CreateConversation(ctx, f.user, f.agent.ID, "t")
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}

	_, _, err = f.svc.SendMessage(ctx, f.user, conv.ID, "Hello")
	var bridgeErr *BridgeError
	if !errors.As(err, &bridgeErr) {
		t.Fatalf("expected BridgeError, got %v", err)
	}
	if bridgeErr.UserMessage == nil || bridgeErr.UserMessage.Content != "Hello" {
		t.Fatalf("expected saved user message in error, got %+v", bridgeErr.UserMessage)
	}

	var msgs []models.Message
	if err := f.db.Where("conversation_id = ?", conv.ID).Find(&msgs).Error; err != nil {
		t.Fatalf("query messages: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Role != models.MessageRoleUser {
		t.Fatalf("expected only the user message persisted, got %d", len(msgs))
	}

	var sub models.Subscription
	if err := f.db.Where("user_id = ?", f.user.ID).First(&sub).Error; err != nil {
		t.Fatalf("query subscription: %v", err)
	}
	if sub.UsageCount != 0 {
		t.Fatalf("failed send must not consume quota, got usage_count=%d", sub.UsageCount)
	}
}

func TestCreateConversation_InactiveAgent(t *testing.T) {
	srv := fakeProvider(t, "ok")
	f := newFixture(t, srv.URL)
	ctx := context.Background()

	if err := f.db.Model(f.agent).Update("is_active", false).Error; err != nil {
		t.Fatalf("deactivate agent: %v", err)
	}

	_, _, err := f.svc.CreateConversation(ctx, f.user, f.agent.ID, "t")
	if !errors.Is(err, ErrAgentNotFound) {
		t.Fatalf("expected ErrAgentNotFound, got %v", err)
	}
}

func TestGetConversation_HidesOtherUsers(t *testing.T) {
	srv := fakeProvider(t, "ok")
	f := newFixture(t, srv.URL)
	ctx := context.Background()

	conv, _, err := f.svc.CreateConversation(ctx, f.user, f.agent.ID, "t")
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}

	_, _, _, err = f.svc.GetConversation(ctx, f.user.ID+1, conv.ID)
	if !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("expected ErrConversationNotFound, got %v", err)
	}
}

func TestDeleteConversation_RemovesMessages(t *testing.T) {
	srv := fakeProvider(t, "ok")
	f := newFixture(t, srv.URL)
	ctx := context.Background()

	conv, _, err := f.svc.CreateConversation(ctx, f.user, f.agent.ID, "t")
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	if _, _, err := f.svc.SendMessage(ctx, f.user, conv.ID, "Hello"); err != nil {
		t.Fatalf("send message: %v", err)
	}

	_, deleted, err := f.svc.DeleteConversation(ctx, f.user.ID, conv.ID)
	if err != nil {
		t.Fatalf("delete conversation: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("expected 2 deleted messages, got %d", deleted)
	}

	_, _, _, err = f.svc.GetConversation(ctx, f.user.ID, conv.ID)
	if !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("expected ErrConversationNotFound after delete, got %v", err)
	}
}

func TestEnqueueMessage_IdempotencyKeyReturnsExistingJob(t *testing.T) {
	srv := fakeProvider(t, "ok")
	f := newFixture(t, srv.URL)
	ctx := context.Background()

	conv, _, err := f.svc.CreateConversation(ctx, f.user, f.agent.ID, "t")
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}

	key := "req-123"
	job1, existed, err := f.svc.EnqueueMessage(ctx, f.user, conv.ID, "Hello", "01JOBAAAAAAAAAAAAAAAAAAAAA", &key)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if existed {
		t.Fatalf("first enqueue must not report an existing job")
	}

	job2, existed, err := f.svc.EnqueueMessage(ctx, f.user, conv.ID, "Hello", "01JOBBBBBBBBBBBBBBBBBBBBBB", &key)
	if err != nil {
		t.Fatalf("second enqueue: %v", err)
	}
	if !existed {
		t.Fatalf("second enqueue with the same key must report an existing job")
	}
	if job2.ID != job1.ID {
		t.Fatalf("expected the original job back, got %s want %s", job2.ID, job1.ID)
	}
}

func TestProcessJob_MarksSucceeded(t *testing.T) {
	srv := fakeProvider(t, "async answer")
	f := newFixture(t, srv.URL)
	ctx := context.Background()

	conv, _, err := f.svc.CreateConversation(ctx, f.user, f.agent.ID, "t")
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}

	job, _, err := f.svc.EnqueueMessage(ctx, f.user, conv.ID, "Hello", "01JOBCCCCCCCCCCCCCCCCCCCCC", nil)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	if err := f.svc.ProcessJob(ctx, job.ID); err != nil {
		t.Fatalf("process job: %v", err)
	}

	got, err := f.svc.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if got.Status != models.ChatJobSucceeded {
		t.Fatalf("expected succeeded, got %s", got.Status)
	}
	if got.ResultMessageID == nil {
		t.Fatalf("expected result message id to be set")
	}

	var msg models.Message
	if err := f.db.First(&msg, *got.ResultMessageID).Error; err != nil {
		t.Fatalf("load result message: %v", err)
	}
	if msg.Role != models.MessageRoleAssistant || msg.Content != "async answer" {
		t.Fatalf("unexpected result message: role=%q content=%q", msg.Role, msg.Content)
	}
}
