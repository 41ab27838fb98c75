package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/bigfan007/ai-workmate/internal/chat"
	"github.com/bigfan007/ai-workmate/internal/common"
	"github.com/bigfan007/ai-workmate/internal/httpapi/middleware"
)

func (h *Handler) ListConversations(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "authentication required")
		return
	}

	var agentID uint64
	if v := c.Query("agent_id"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			common.Fail(c, http.StatusBadRequest, 10004, "invalid agent id")
			return
		}
		agentID = n
	}

	convs, err := h.Chat.ListConversations(c.Request.Context(), user.ID, agentID)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}
	common.OK(c, convs)
}

type createConversationReq struct {
	AgentID uint64 `json:"agent_id"`
	Title   string `json:"title"`
}

func (h *Handler) CreateConversation(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "authentication required")
		return
	}

	var req createConversationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if req.AgentID == 0 {
		common.Fail(c, http.StatusBadRequest, 10002, "agent_id required")
		return
	}

	conv, agent, err := h.Chat.CreateConversation(c.Request.Context(), user, req.AgentID, req.Title)
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrAgentNotFound):
			common.Fail(c, http.StatusNotFound, 40402, "agent not found")
		case errors.Is(err, chat.ErrNoPermission):
			common.Fail(c, http.StatusForbidden, 40303, "no permission for this agent")
		default:
			common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		}
		return
	}

	common.Created(c, gin.H{
		"conversation": conv,
		"agent":        agent,
	})
}

func (h *Handler) GetConversation(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "authentication required")
		return
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10004, "invalid conversation id")
		return
	}

	conv, agent, msgs, err := h.Chat.GetConversation(c.Request.Context(), user.ID, id)
	if err != nil {
		if errors.Is(err, chat.ErrConversationNotFound) {
			common.Fail(c, http.StatusNotFound, 40403, "conversation not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}

	common.OK(c, gin.H{
		"conversation": conv,
		"agent":        agent,
		"messages":     msgs,
	})
}

type sendMessageReq struct {
	Content string `json:"content"`
}

// SendMessage is the synchronous chat path: the provider is called inline
// and both messages come back in one response. A provider failure still
// returns the saved user message together with the error description.
func (h *Handler) SendMessage(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "authentication required")
		return
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10004, "invalid conversation id")
		return
	}

	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	userMsg, aiMsg, err := h.Chat.SendMessage(c.Request.Context(), user, id, req.Content)
	if err != nil {
		var bridgeErr *chat.BridgeError
		switch {
		case errors.Is(err, chat.ErrEmptyContent):
			common.Fail(c, http.StatusBadRequest, 10002, "content required")
		case errors.Is(err, chat.ErrConversationNotFound):
			common.Fail(c, http.StatusNotFound, 40403, "conversation not found")
		case errors.Is(err, chat.ErrNoPermission):
			common.Fail(c, http.StatusForbidden, 40303, "no permission for this agent")
		case errors.Is(err, chat.ErrUsageLimit):
			common.Fail(c, http.StatusForbidden, 40304, "usage limit reached, please upgrade your plan")
		case errors.As(err, &bridgeErr):
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":    50010,
				"message": bridgeErr.Err.Error(),
				"data": gin.H{
					"user_message": bridgeErr.UserMessage,
				},
			})
		default:
			common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		}
		return
	}

	common.OK(c, gin.H{
		"user_message": userMsg,
		"ai_message":   aiMsg,
	})
}

type sendMessageAsyncReq struct {
	Content string `json:"content"`
}

// SendMessageAsync records a queued chat job and hands it to the worker
// over RabbitMQ. Repeats with the same Idempotency-Key return the
// original job instead of enqueueing again.
func (h *Handler) SendMessageAsync(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "authentication required")
		return
	}
	if h.Rabbit == nil {
		common.Fail(c, http.StatusServiceUnavailable, 50020, "async chat is not available")
		return
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10004, "invalid conversation id")
		return
	}

	var req sendMessageAsyncReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	var idempoKey *string
	if k := strings.TrimSpace(c.GetHeader("Idempotency-Key")); k != "" {
		idempoKey = &k
	}

	jobID, err := common.NewULID()
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "failed to allocate job id")
		return
	}

	job, existed, err := h.Chat.EnqueueMessage(c.Request.Context(), user, id, req.Content, jobID, idempoKey)
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrEmptyContent):
			common.Fail(c, http.StatusBadRequest, 10002, "content required")
		case errors.Is(err, chat.ErrConversationNotFound):
			common.Fail(c, http.StatusNotFound, 40403, "conversation not found")
		case errors.Is(err, chat.ErrNoPermission):
			common.Fail(c, http.StatusForbidden, 40303, "no permission for this agent")
		case errors.Is(err, chat.ErrUsageLimit):
			common.Fail(c, http.StatusForbidden, 40304, "usage limit reached, please upgrade your plan")
		default:
			common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		}
		return
	}

	if !existed {
		if err := h.Rabbit.PublishJob(c.Request.Context(), job.ID); err != nil {
			common.Fail(c, http.StatusInternalServerError, 50021, "failed to enqueue job")
			return
		}
	}

	c.JSON(http.StatusAccepted, gin.H{
		"code":    0,
		"message": "ok",
		"data":    gin.H{"job": job},
	})
}

func (h *Handler) GetChatJob(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "authentication required")
		return
	}

	job, err := h.Chat.GetJob(c.Request.Context(), c.Param("job_id"))
	if err != nil || job.UserID != user.ID {
		common.Fail(c, http.StatusNotFound, 40404, "job not found")
		return
	}
	common.OK(c, job)
}

func (h *Handler) DeleteConversation(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "authentication required")
		return
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10004, "invalid conversation id")
		return
	}

	conv, deletedMsgs, err := h.Chat.DeleteConversation(c.Request.Context(), user.ID, id)
	if err != nil {
		if errors.Is(err, chat.ErrConversationNotFound) {
			common.Fail(c, http.StatusNotFound, 40403, "conversation not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}

	common.OK(c, gin.H{
		"deleted_conversation_id": conv.ID,
		"deleted_messages":        deletedMsgs,
	})
}
