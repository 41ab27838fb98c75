package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/bigfan007/ai-workmate/internal/common"
	"github.com/bigfan007/ai-workmate/internal/config"
	"github.com/bigfan007/ai-workmate/internal/email"
	"github.com/bigfan007/ai-workmate/internal/httpapi/handlers"
	"github.com/bigfan007/ai-workmate/internal/httpapi/middleware"
	"github.com/bigfan007/ai-workmate/internal/store/rabbitmq"
	"github.com/bigfan007/ai-workmate/internal/store/redisstore"
)

func NewRouter(db *gorm.DB, cfg config.Config, codes *redisstore.Store, mailer *email.Sender, rabbit *rabbitmq.Publisher) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestID())

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	h := handlers.NewHandler(db, cfg, codes, mailer, rabbit)

	// uploaded agent avatars
	r.Static("/uploads/avatars", cfg.UploadDir)

	api := r.Group("/api")

	api.GET("/health", h.Health)

	authn := api.Group("/auth")
	{
		authn.POST("/register", h.Register)
		authn.POST("/login", h.Login)
		authn.POST("/logout", h.Logout)
		authn.POST("/send-verification-code", h.SendVerificationCode)
		authn.GET("/me", middleware.AuthRequired(db, cfg.JWTSecret), h.Me)
	}

	// pricing page is public
	api.GET("/subscriptions/plans", h.ListPlans)

	authed := api.Group("/")
	authed.Use(middleware.AuthRequired(db, cfg.JWTSecret))
	{
		authed.GET("/agents", h.ListAgents)
		authed.GET("/agents/:id", h.GetAgent)
		authed.GET("/agents/:id/iframe-url", h.GetAgentIframeURL)

		authed.GET("/conversations", h.ListConversations)
		authed.POST("/conversations", h.CreateConversation)
		authed.GET("/conversations/:id", h.GetConversation)
		authed.POST("/conversations/:id/messages", h.SendMessage)
		authed.POST("/conversations/:id/messages/async", h.SendMessageAsync)
		authed.DELETE("/conversations/:id", h.DeleteConversation)
		authed.GET("/jobs/:job_id", h.GetChatJob)

		authed.GET("/subscriptions/current", h.CurrentSubscription)
		authed.POST("/subscriptions/orders", h.CreateOrder)
		authed.POST("/subscriptions/payment/callback", h.PaymentCallback)
		authed.POST("/subscriptions/cancel", h.CancelSubscription)

		authed.GET("/permissions/user-agents", h.MyAgents)
		authed.GET("/permissions/users/:id", h.GetUserPermissions)
	}

	adminPerms := api.Group("/permissions")
	adminPerms.Use(middleware.AuthRequired(db, cfg.JWTSecret), middleware.AdminRequired())
	{
		adminPerms.POST("/assign", h.AssignPermissions)
		adminPerms.GET("/audit", h.ListPermissionAudit)
		adminPerms.GET("/users", h.ListPermissionUsers)
		adminPerms.GET("/list", h.ListPermissions)
	}

	admin := api.Group("/admin")
	admin.Use(middleware.AuthRequired(db, cfg.JWTSecret), middleware.AdminRequired())
	{
		admin.GET("/stats", h.AdminStats)
		admin.GET("/users", h.AdminListUsers)
		admin.PUT("/users/:id/subscription", h.AdminUpdateUserSubscription)
		admin.DELETE("/users/:id", h.AdminDeleteUser)
		admin.GET("/orders", h.AdminListOrders)

		admin.GET("/agents", h.AdminListAgents)
		admin.POST("/agents", h.AdminCreateAgent)
		admin.GET("/agents/stats", h.AdminAgentStats)
		admin.PUT("/agents/:id", h.AdminUpdateAgent)
		admin.DELETE("/agents/:id", h.AdminDeleteAgent)
		admin.PATCH("/agents/:id/toggle", h.AdminToggleAgent)

		admin.POST("/upload/avatar", h.AdminUploadAvatar)
	}

	return r
}
