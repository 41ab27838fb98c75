package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bigfan007/ai-workmate/internal/common"
)

func (h *Handler) Health(c *gin.Context) {
	common.OK(c, gin.H{
		"status": "ok",
		"uptime": time.Since(h.startedAt).Round(time.Second).String(),
	})
}
