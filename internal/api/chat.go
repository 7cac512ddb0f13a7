package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ollamaweb/internal/models"
	"ollamaweb/internal/relay"
	"ollamaweb/internal/service/store"
)

// clearCommand wipes the user's history instead of going upstream.
const clearCommand = "/clear"

type chatRequest struct {
	ConversationID int64  `json:"conversation_id"`
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
}

// resolveChat validates the request, loads the user profile and the
// context window of an existing conversation.
func (h *Handler) resolveChat(c *gin.Context, userID int64, req *chatRequest) (*models.User, []models.ChatMessage, bool) {
	req.Prompt = strings.TrimSpace(req.Prompt)
	if req.Prompt == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "prompt is required"})
		return nil, nil, false
	}
	if req.ConversationID < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return nil, nil, false
	}

	user, err := h.store.GetUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, nil, false
	}
	if req.Model == "" {
		req.Model = user.DefaultModel
	}

	var history []models.ChatMessage
	if req.ConversationID > 0 {
		conv, err := h.store.Get(c.Request.Context(), userID, req.ConversationID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
				return nil, nil, false
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return nil, nil, false
		}
		history = conv.Messages
	}
	return user, history, true
}

// chat handles one non-streaming turn.
func (h *Handler) chat(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if strings.TrimSpace(req.Prompt) == clearCommand {
		n, err := h.store.DeleteAll(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success":  true,
			"response": "Chat history cleared.",
			"cleared":  n,
		})
		return
	}

	user, history, ok := h.resolveChat(c, userID, &req)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.requestTimeout())
	defer cancel()

	convID, err := h.store.Begin(ctx, userID, req.ConversationID, req.Model, req.Prompt)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	messages := append(append([]models.ChatMessage{}, history...),
		models.ChatMessage{Role: models.RoleUser, Content: req.Prompt})
	resp, err := h.upstreamFor(user).Chat(ctx, req.Model, messages, user.SystemPrompt)
	if err != nil {
		h.finish(ctx, userID, convID, "", false)
		h.upstreamError(c, err)
		return
	}

	h.finish(ctx, userID, convID, resp.Message.Content, true)
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"response": resp.Message.Content,
		"id":       convID,
	})
}

// finish records the assistant reply outside the request deadline so
// a timed-out turn still leaves its row consistent.
func (h *Handler) finish(ctx context.Context, userID, convID int64, content string, complete bool) {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := h.store.Finish(pctx, userID, convID, content, complete); err != nil {
		h.logger.Error("record assistant reply",
			zap.Int64("conversation_id", convID),
			zap.Error(err))
	}
}

// chatStream relays one streaming turn as server-sent events. The
// conversation id travels in the X-History-ID header, written before
// the first byte of the body.
func (h *Handler) chatStream(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	user, history, ok := h.resolveChat(c, userID, &req)
	if !ok {
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.streamTimeout())
	defer cancel()

	sess, err := h.relay.Start(ctx, relay.StartRequest{
		Upstream:       h.upstreamFor(user),
		UserID:         userID,
		ConversationID: req.ConversationID,
		Model:          req.Model,
		History:        history,
		Prompt:         req.Prompt,
		SystemPrompt:   user.SystemPrompt,
	})
	if err != nil {
		h.upstreamError(c, err)
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Writer.Header().Set("X-History-ID", strconv.FormatInt(sess.ConversationID, 10))
	c.Status(http.StatusOK)

	sendEvent := func(payload interface{}) error {
		var data []byte
		switch v := payload.(type) {
		case string:
			data = []byte(v)
		default:
			var err error
			data, err = json.Marshal(v)
			if err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	for ev := range sess.Events {
		if err := sendEvent(ev); err != nil {
			// Client hung up; the relay notices via the context.
			cancel()
			return
		}
	}
	_ = sendEvent("[DONE]")
}

// listHistory returns the most recent conversations, oldest of the
// window first.
func (h *Handler) listHistory(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	limit := h.cfg.HistoryLimit
	if v := c.Query("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}
	list, err := h.store.List(c.Request.Context(), userID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if list == nil {
		list = []models.Conversation{}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "history": list})
}

func (h *Handler) getConversation(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}
	conv, err := h.store.Get(c.Request.Context(), userID, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, conv)
}

type saveChatRequest struct {
	Model    string               `json:"model"`
	Messages []models.ChatMessage `json:"messages"`

	// Flat single-turn alternative to Messages.
	UserMessage string `json:"user_message"`
	LLMResponse string `json:"llm_response"`
}

// saveChat stores a transcript assembled client-side in one shot.
// Accepts either a full messages array or a single user/assistant pair.
func (h *Handler) saveChat(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	var req saveChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if len(req.Messages) == 0 && req.UserMessage != "" {
		req.Messages = []models.ChatMessage{
			{Role: models.RoleUser, Content: req.UserMessage},
			{Role: models.RoleAssistant, Content: req.LLMResponse},
		}
	}
	if len(req.Messages) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "messages are required"})
		return
	}
	for _, msg := range req.Messages {
		switch msg.Role {
		case models.RoleSystem, models.RoleUser, models.RoleAssistant:
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message role"})
			return
		}
	}
	conv, err := h.store.Create(c.Request.Context(), userID, req.Model, req.Messages, true)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "id": conv.ID})
}

func (h *Handler) deleteConversation(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}
	if err := h.store.Delete(c.Request.Context(), userID, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) deleteAllHistory(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	n, err := h.store.DeleteAll(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": n})
}
