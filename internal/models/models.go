package models

import "time"

// Role values stored on users.role.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type User struct {
	ID           uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Email        string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Name         string    `gorm:"type:varchar(64);not null" json:"name"`
	PasswordHash string    `gorm:"type:varchar(128);not null" json:"-"`
	Role         string    `gorm:"type:varchar(16);not null;default:user" json:"role"`
	AvatarURL    string    `gorm:"type:varchar(512)" json:"avatar_url"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (User) TableName() string { return "users" }

const (
	SubscriptionActive    = "active"
	SubscriptionCancelled = "cancelled"
)

type Subscription struct {
	ID         uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID     uint64     `gorm:"uniqueIndex;not null" json:"user_id"`
	PlanType   string     `gorm:"type:varchar(16);not null;default:free" json:"plan_type"`
	Status     string     `gorm:"type:varchar(16);not null;default:active" json:"status"`
	UsageCount int        `gorm:"not null;default:0" json:"usage_count"`
	UsageLimit int        `gorm:"not null;default:10" json:"usage_limit"`
	StartDate  *time.Time `json:"start_date"`
	EndDate    *time.Time `json:"end_date"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (Subscription) TableName() string { return "subscriptions" }

// Integration modes for an agent. The mode selects which config columns
// matter and which outbound call path is taken.
const (
	IntegrationAPI      = "api"
	IntegrationIframe   = "iframe"
	IntegrationDeepSeek = "deepseek"
)

type AIAgent struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string `gorm:"type:varchar(64);not null" json:"name"`
	Description string `gorm:"type:text" json:"description"`
	AvatarURL   string `gorm:"type:varchar(512)" json:"avatar_url"`

	IntegrationType string `gorm:"type:varchar(16);not null;default:api" json:"integration_type"`

	// api mode (workflow-style provider)
	APIEndpoint string `gorm:"type:varchar(512)" json:"api_endpoint"`
	APIKey      string `gorm:"type:varchar(255)" json:"api_key,omitempty"`

	// iframe mode
	ChatbotURL string `gorm:"type:varchar(512)" json:"chatbot_url"`

	// deepseek mode (completion-style provider)
	DeepSeekAPIKey string  `gorm:"type:varchar(255)" json:"deepseek_api_key,omitempty"`
	DeepSeekModel  string  `gorm:"type:varchar(64)" json:"deepseek_model"`
	SystemPrompt   string  `gorm:"type:text" json:"system_prompt"`
	Temperature    float64 `gorm:"default:0.7" json:"temperature"`
	MaxTokens      int     `gorm:"default:2048" json:"max_tokens"`

	RequiredPlan string    `gorm:"type:varchar(16);not null;default:free" json:"required_plan"`
	IsActive     bool      `gorm:"not null;default:true;index" json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (AIAgent) TableName() string { return "ai_agents" }

type UserAgentPermission struct {
	ID        uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    uint64     `gorm:"not null;index:idx_perm_user_agent,priority:1" json:"user_id"`
	AgentID   uint64     `gorm:"not null;index:idx_perm_user_agent,priority:2" json:"agent_id"`
	IsActive  bool       `gorm:"not null;default:true;index" json:"is_active"`
	GrantedBy uint64     `gorm:"not null" json:"granted_by"`
	GrantedAt time.Time  `gorm:"autoCreateTime" json:"granted_at"`
	RevokedAt *time.Time `json:"revoked_at"`
	UpdatedAt time.Time  `json:"-"`
}

func (UserAgentPermission) TableName() string { return "user_agent_permissions" }

type Conversation struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    uint64    `gorm:"not null;index" json:"user_id"`
	AgentID   uint64    `gorm:"not null;index" json:"agent_id"`
	Title     string    `gorm:"type:varchar(255);not null" json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Conversation) TableName() string { return "conversations" }

const (
	MessageRoleUser      = "user"
	MessageRoleAssistant = "assistant"
)

type Message struct {
	ID             uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	ConversationID uint64    `gorm:"not null;index" json:"conversation_id"`
	Role           string    `gorm:"type:varchar(16);not null" json:"role"`
	Content        string    `gorm:"type:text;not null" json:"content"`
	Status         string    `gorm:"type:varchar(16)" json:"status,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

func (Message) TableName() string { return "messages" }

const (
	OrderPending   = "pending"
	OrderCompleted = "completed"
)

type Order struct {
	ID            uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID        uint64     `gorm:"not null;index" json:"user_id"`
	PlanType      string     `gorm:"type:varchar(16);not null" json:"plan_type"`
	Amount        int        `gorm:"not null" json:"amount"`
	Status        string     `gorm:"type:varchar(16);not null;default:pending;index" json:"status"`
	PaymentMethod string     `gorm:"type:varchar(32)" json:"payment_method"`
	PaidAt        *time.Time `json:"paid_at"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func (Order) TableName() string { return "orders" }

type PermissionAuditLog struct {
	ID               uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID           uint64    `gorm:"not null;index" json:"user_id"`
	AgentID          uint64    `gorm:"not null;index" json:"agent_id"`
	OperatedBy       uint64    `gorm:"not null" json:"operated_by"`
	OperationType    string    `gorm:"type:varchar(32);not null;index" json:"operation_type"`
	OperationDetails string    `gorm:"type:text" json:"operation_details"`
	IPAddress        string    `gorm:"type:varchar(64)" json:"ip_address"`
	UserAgent        string    `gorm:"type:varchar(255)" json:"user_agent"`
	CreatedAt        time.Time `json:"created_at"`
}

func (PermissionAuditLog) TableName() string { return "permission_audit_logs" }

type ChatJobStatus string

const (
	ChatJobQueued    ChatJobStatus = "queued"
	ChatJobRunning   ChatJobStatus = "running"
	ChatJobSucceeded ChatJobStatus = "succeeded"
	ChatJobFailed    ChatJobStatus = "failed"
)

type ChatJob struct {
	ID string `gorm:"primaryKey;size:26" json:"id"` // ULID length

	UserID         uint64 `gorm:"not null;index;index:uniq_job_user_idempo,unique,priority:1" json:"-"`
	ConversationID uint64 `gorm:"index;not null" json:"conversation_id"`

	Prompt string `gorm:"type:text;not null" json:"-"`

	IdempotencyKey *string `gorm:"type:varchar(128);index:uniq_job_user_idempo,unique,priority:2" json:"-"`

	Status ChatJobStatus `gorm:"type:varchar(16);index;not null" json:"status"`

	// Filled when succeeded
	ResultMessageID *uint64 `gorm:"index" json:"result_message_id"`

	// Filled when failed
	Error *string `gorm:"type:text" json:"error"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (ChatJob) TableName() string { return "chat_jobs" }
