package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/bigfan007/ai-workmate/internal/common"
	"github.com/bigfan007/ai-workmate/internal/httpapi/middleware"
	"github.com/bigfan007/ai-workmate/internal/models"
	"github.com/bigfan007/ai-workmate/internal/plan"
)

// ListPlans serves the static pricing catalog. No auth required.
func (h *Handler) ListPlans(c *gin.Context) {
	common.OK(c, plan.Catalog)
}

func (h *Handler) CurrentSubscription(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "authentication required")
		return
	}

	var sub models.Subscription
	err := h.DB.Where("user_id = ? AND status = ?", user.ID, models.SubscriptionActive).First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.OK(c, nil)
			return
		}
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}
	common.OK(c, sub)
}

type createOrderReq struct {
	PlanType      string `json:"plan_type"`
	PaymentMethod string `json:"payment_method"`
}

// CreateOrder opens a pending upgrade order. Payment itself is mocked;
// the callback endpoint completes it.
func (h *Handler) CreateOrder(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "authentication required")
		return
	}

	var req createOrderReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if req.PlanType == plan.Free || !plan.Valid(req.PlanType) {
		common.Fail(c, http.StatusBadRequest, 10040, "plan_type must be professional or team")
		return
	}
	p, _ := plan.ByID(req.PlanType)

	order := models.Order{
		UserID:        user.ID,
		PlanType:      req.PlanType,
		Amount:        p.Price,
		Status:        models.OrderPending,
		PaymentMethod: req.PaymentMethod,
	}
	if err := h.DB.Create(&order).Error; err != nil {
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}

	common.Created(c, gin.H{
		"order": order,
		// mock checkout page; a real gateway would return its own URL
		"payment_url": "/payment/mock?order_id=" + strconv.FormatUint(order.ID, 10),
	})
}

type paymentCallbackReq struct {
	OrderID uint64 `json:"order_id"`
}

// PaymentCallback completes a pending order and upgrades the payer's
// subscription: new plan, fresh usage quota, one-month period.
func (h *Handler) PaymentCallback(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "authentication required")
		return
	}

	var req paymentCallbackReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	var order models.Order
	if err := h.DB.Where("id = ? AND user_id = ?", req.OrderID, user.ID).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40405, "order not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}
	if order.Status == models.OrderCompleted {
		common.Fail(c, http.StatusBadRequest, 10041, "order already completed")
		return
	}

	p, _ := plan.ByID(order.PlanType)
	now := time.Now()
	end := now.AddDate(0, 1, 0)

	err := h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&order).Updates(map[string]any{
			"status":  models.OrderCompleted,
			"paid_at": &now,
		}).Error; err != nil {
			return err
		}

		var sub models.Subscription
		err := tx.Where("user_id = ?", user.ID).First(&sub).Error
		switch {
		case err == nil:
			return tx.Model(&sub).Updates(map[string]any{
				"plan_type":   order.PlanType,
				"status":      models.SubscriptionActive,
				"usage_count": 0,
				"usage_limit": p.UsageLimit,
				"start_date":  &now,
				"end_date":    &end,
			}).Error
		case errors.Is(err, gorm.ErrRecordNotFound):
			return tx.Create(&models.Subscription{
				UserID:     user.ID,
				PlanType:   order.PlanType,
				Status:     models.SubscriptionActive,
				UsageLimit: p.UsageLimit,
				StartDate:  &now,
				EndDate:    &end,
			}).Error
		default:
			return err
		}
	})
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}

	var sub models.Subscription
	_ = h.DB.Where("user_id = ?", user.ID).First(&sub).Error
	common.OK(c, gin.H{
		"order":        order,
		"subscription": sub,
	})
}

// CancelSubscription marks the active subscription cancelled. Access
// continues through the paid period; renewal simply stops.
func (h *Handler) CancelSubscription(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "authentication required")
		return
	}

	res := h.DB.Model(&models.Subscription{}).
		Where("user_id = ? AND status = ?", user.ID, models.SubscriptionActive).
		Update("status", models.SubscriptionCancelled)
	if res.Error != nil {
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}
	if res.RowsAffected == 0 {
		common.Fail(c, http.StatusNotFound, 40406, "no active subscription")
		return
	}

	common.OK(c, gin.H{"message": "subscription cancelled"})
}
