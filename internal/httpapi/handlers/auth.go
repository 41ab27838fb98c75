package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/bigfan007/ai-workmate/internal/auth"
	"github.com/bigfan007/ai-workmate/internal/common"
	"github.com/bigfan007/ai-workmate/internal/email"
	"github.com/bigfan007/ai-workmate/internal/httpapi/middleware"
	"github.com/bigfan007/ai-workmate/internal/models"
	"github.com/bigfan007/ai-workmate/internal/plan"
)

// emailDomainAllowed checks the address against the configured allow-list.
func (h *Handler) emailDomainAllowed(email string) bool {
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return false
	}
	domain := strings.ToLower(email[at+1:])
	for _, d := range strings.Split(h.Cfg.AllowedEmailDomains, ",") {
		if domain == strings.TrimSpace(strings.ToLower(d)) {
			return true
		}
	}
	return false
}

type sendCodeReq struct {
	Email string `json:"email"`
}

func (h *Handler) SendVerificationCode(c *gin.Context) {
	var req sendCodeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "email required")
		return
	}
	if !h.emailDomainAllowed(req.Email) {
		common.Fail(c, http.StatusBadRequest, 10010, "email domain not allowed")
		return
	}

	var cnt int64
	if err := h.DB.Model(&models.User{}).Where("email = ?", req.Email).Count(&cnt).Error; err != nil {
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}
	if cnt > 0 {
		common.Fail(c, http.StatusBadRequest, 10011, "email already registered")
		return
	}

	code, err := email.GenerateCode()
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "failed to generate code")
		return
	}
	if err := h.Codes.SetVerificationCode(c.Request.Context(), req.Email, code); err != nil {
		common.Fail(c, http.StatusInternalServerError, 20001, "redis error")
		return
	}
	if err := h.Mailer.SendVerificationCode(req.Email, code); err != nil {
		common.Fail(c, http.StatusInternalServerError, 50002, "failed to send verification email")
		return
	}

	common.OK(c, gin.H{"message": "verification code sent"})
}

type registerReq struct {
	Email            string `json:"email"`
	Password         string `json:"password"`
	Name             string `json:"name"`
	VerificationCode string `json:"verification_code"`
}

func (h *Handler) Register(c *gin.Context) {
	var req registerReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	req.Name = strings.TrimSpace(req.Name)
	if req.Email == "" || req.Password == "" || req.Name == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "email, password and name required")
		return
	}
	if len(req.Password) < 6 {
		common.Fail(c, http.StatusBadRequest, 10003, "password must be at least 6 characters")
		return
	}
	if !h.emailDomainAllowed(req.Email) {
		common.Fail(c, http.StatusBadRequest, 10010, "email domain not allowed")
		return
	}

	code, err := h.Codes.GetVerificationCode(c.Request.Context(), req.Email)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			common.Fail(c, http.StatusBadRequest, 10020, "verification code expired or not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 20001, "redis error")
		return
	}
	if code != req.VerificationCode {
		common.Fail(c, http.StatusBadRequest, 10021, "invalid verification code")
		return
	}
	_ = h.Codes.DeleteVerificationCode(c.Request.Context(), req.Email)

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20002, "failed to hash password")
		return
	}

	user := models.User{
		Email:        req.Email,
		Name:         req.Name,
		PasswordHash: hash,
		Role:         models.RoleUser,
	}
	// a new account always starts on the free plan
	err = h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		now := time.Now()
		free, _ := plan.ByID(plan.Free)
		return tx.Create(&models.Subscription{
			UserID:     user.ID,
			PlanType:   plan.Free,
			Status:     models.SubscriptionActive,
			UsageLimit: free.UsageLimit,
			StartDate:  &now,
		}).Error
	})
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10004, "failed to create user (maybe email already exists)")
		return
	}

	token, err := auth.SignJWT(user.ID, user.Email, h.Cfg.JWTSecret, time.Duration(h.Cfg.JWTExpiresIn)*time.Hour)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20003, "failed to sign token")
		return
	}

	go func(to, name string) {
		subject := "Welcome to AI Workmate"
		body := "Hello " + name + ",\n\n" +
			"Your AI Workmate account is ready. Sign in and start a conversation\n" +
			"with one of your AI employees.\n\n" +
			"If you did not create this account, please contact support.\n\n" +
			"AI Workmate\n"
		_ = h.Mailer.SendText(to, subject, body)
	}(user.Email, user.Name)

	common.Created(c, gin.H{
		"token": token,
		"user":  user,
	})
}

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) Login(c *gin.Context) {
	var req loginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Password == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "email and password required")
		return
	}

	var user models.User
	if err := h.DB.Where("email = ?", req.Email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusUnauthorized, 40110, "invalid email or password")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}
	if !auth.CheckPassword(req.Password, user.PasswordHash) {
		common.Fail(c, http.StatusUnauthorized, 40110, "invalid email or password")
		return
	}

	token, err := auth.SignJWT(user.ID, user.Email, h.Cfg.JWTSecret, time.Duration(h.Cfg.JWTExpiresIn)*time.Hour)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20003, "failed to sign token")
		return
	}

	common.OK(c, gin.H{
		"token": token,
		"user":  user,
	})
}

// Logout exists for the client's sake; bearer tokens are stateless and
// simply expire.
func (h *Handler) Logout(c *gin.Context) {
	common.OK(c, gin.H{"message": "logged out"})
}

func (h *Handler) Me(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "authentication required")
		return
	}

	var sub models.Subscription
	err := h.DB.Where("user_id = ? AND status = ?", user.ID, models.SubscriptionActive).First(&sub).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}

	resp := gin.H{"user": user}
	if err == nil {
		resp["subscription"] = sub
	} else {
		resp["subscription"] = nil
	}
	common.OK(c, resp)
}
