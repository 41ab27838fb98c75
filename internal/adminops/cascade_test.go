package adminops

import (
	"context"
	"errors"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/bigfan007/ai-workmate/internal/models"
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
		&models.Order{},
		&models.PermissionAuditLog{},
	)
	if err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// seedWorld creates a user with one agent, one conversation holding two
// messages, plus a grant, audit log, order and subscription.
func seedWorld(t *testing.T, db *gorm.DB) (*models.User, *models.AIAgent) {
	t.Helper()

	user := &models.User{Email: "bob@test.com", Name: "Bob", PasswordHash: "x", Role: models.RoleUser}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	agent := &models.AIAgent{Name: "Writer", IntegrationType: models.IntegrationAPI, RequiredPlan: "free", IsActive: true}
	if err := db.Create(agent).Error; err != nil {
		t.Fatalf("create agent: %v", err)
	}

	now := time.Now()
	if err := db.Create(&models.Subscription{UserID: user.ID, PlanType: "free", Status: models.SubscriptionActive, UsageLimit: 10, StartDate: &now}).Error; err != nil {
		t.Fatalf("create subscription: %v", err)
	}
	if err := db.Create(&models.UserAgentPermission{UserID: user.ID, AgentID: agent.ID, IsActive: true, GrantedBy: 1}).Error; err != nil {
		t.Fatalf("create permission: %v", err)
	}
	if err := db.Create(&models.PermissionAuditLog{UserID: user.ID, AgentID: agent.ID, OperatedBy: 1, OperationType: "grant"}).Error; err != nil {
		t.Fatalf("create audit log: %v", err)
	}
	if err := db.Create(&models.Order{UserID: user.ID, PlanType: "professional", Amount: 99, Status: models.OrderCompleted}).Error; err != nil {
		t.Fatalf("create order: %v", err)
	}

	conv := &models.Conversation{UserID: user.ID, AgentID: agent.ID, Title: "t"}
	if err := db.Create(conv).Error; err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	for _, role := range []string{models.MessageRoleUser, models.MessageRoleAssistant} {
		if err := db.Create(&models.Message{ConversationID: conv.ID, Role: role, Content: "hi"}).Error; err != nil {
			t.Fatalf("create message: %v", err)
		}
	}

	return user, agent
}

func TestDeleteUser_CascadesAndCounts(t *testing.T) {
	db := openTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	user, agent := seedWorld(t, db)

	stats, err := svc.DeleteUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("delete user: %v", err)
	}

	if stats.Permissions != 1 || stats.AuditLogs != 1 || stats.Messages != 2 ||
		stats.Conversations != 1 || stats.Orders != 1 || stats.Subscriptions != 1 || stats.User != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.Total != 8 {
		t.Fatalf("expected total 8, got %d", stats.Total)
	}

	// the user and everything hanging off them is gone
	var users, convs, msgs int64
	db.Model(&models.User{}).Count(&users)
	db.Model(&models.Conversation{}).Count(&convs)
	db.Model(&models.Message{}).Count(&msgs)
	if users != 0 || convs != 0 || msgs != 0 {
		t.Fatalf("expected empty tables, users=%d convs=%d msgs=%d", users, convs, msgs)
	}

	// the agent survives a user delete
	var agents int64
	db.Model(&models.AIAgent{}).Count(&agents)
	if agents != 1 {
		t.Fatalf("agent must survive user delete, got %d", agents)
	}
	_ = agent
}

func TestDeleteUser_NotFound(t *testing.T) {
	db := openTestDB(t)
	svc := NewService(db)

	_, err := svc.DeleteUser(context.Background(), 12345)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteAgent_CascadesAndCounts(t *testing.T) {
	db := openTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	user, agent := seedWorld(t, db)

	stats, err := svc.DeleteAgent(ctx, agent.ID)
	if err != nil {
		t.Fatalf("delete agent: %v", err)
	}

	if stats.Messages != 2 || stats.Conversations != 1 || stats.Permissions != 1 ||
		stats.AuditLogs != 1 || stats.Agent != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	// the user and their subscription survive an agent delete
	var users, subs int64
	db.Model(&models.User{}).Count(&users)
	db.Model(&models.Subscription{}).Count(&subs)
	if users != 1 || subs != 1 {
		t.Fatalf("user must survive agent delete, users=%d subs=%d", users, subs)
	}
	_ = user

	var agents int64
	db.Model(&models.AIAgent{}).Count(&agents)
	if agents != 0 {
		t.Fatalf("agent must be gone, got %d", agents)
	}
}

func TestDeleteAgent_NotFound(t *testing.T) {
	db := openTestDB(t)
	svc := NewService(db)

	_, err := svc.DeleteAgent(context.Background(), 777)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
