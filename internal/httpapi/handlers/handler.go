package handlers

import (
	"time"

	"gorm.io/gorm"

	"github.com/bigfan007/ai-workmate/internal/adminops"
	"github.com/bigfan007/ai-workmate/internal/agentcall"
	"github.com/bigfan007/ai-workmate/internal/chat"
	"github.com/bigfan007/ai-workmate/internal/config"
	"github.com/bigfan007/ai-workmate/internal/email"
	"github.com/bigfan007/ai-workmate/internal/permission"
	"github.com/bigfan007/ai-workmate/internal/store/rabbitmq"
	"github.com/bigfan007/ai-workmate/internal/store/redisstore"
)

// Handler carries the shared dependencies for every HTTP endpoint.
type Handler struct {
	DB     *gorm.DB
	Cfg    config.Config
	Codes  *redisstore.Store
	Mailer *email.Sender
	Rabbit *rabbitmq.Publisher // nil when async chat is disabled

	Chat  *chat.Service
	Perms *permission.Service
	Admin *adminops.Service

	startedAt time.Time
}

func NewHandler(db *gorm.DB, cfg config.Config, codes *redisstore.Store, mailer *email.Sender, rabbit *rabbitmq.Publisher) *Handler {
	perms := permission.NewService(db)
	bridge := agentcall.New(cfg.DeepSeekEndpoint, time.Duration(cfg.BridgeTimeoutSec)*time.Second)
	return &Handler{
		DB:        db,
		Cfg:       cfg,
		Codes:     codes,
		Mailer:    mailer,
		Rabbit:    rabbit,
		Chat:      chat.NewService(chat.NewRepo(db), bridge, perms),
		Perms:     perms,
		Admin:     adminops.NewService(db),
		startedAt: time.Now(),
	}
}
