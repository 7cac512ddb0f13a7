// Package api wires the HTTP routes to the chat, history and user
// services.
package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ollamaweb/internal/auth"
	"ollamaweb/internal/config"
	"ollamaweb/internal/models"
	"ollamaweb/internal/ollama"
	"ollamaweb/internal/relay"
	"ollamaweb/internal/service/store"
)

// Handler wires HTTP routes to the store, auth and relay services.
type Handler struct {
	store  *store.Service
	auth   *auth.Service
	relay  *relay.Relay
	cfg    config.BasicConfig
	logger *zap.Logger
}

// NewHandler constructs a Handler instance.
func NewHandler(st *store.Service, authService *auth.Service, cfg config.BasicConfig, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		store:  st,
		auth:   authService,
		relay:  relay.New(st, cfg.MaxResponseBytes, logger),
		cfg:    cfg,
		logger: logger,
	}
}

// upstreamFor builds an upstream client for the user's configured
// server address.
func (h *Handler) upstreamFor(user *models.User) *ollama.Client {
	return ollama.NewClient(user.UpstreamURL)
}

func (h *Handler) requestTimeout() time.Duration {
	return time.Duration(h.cfg.RequestTimeout) * time.Minute
}

func (h *Handler) streamTimeout() time.Duration {
	return time.Duration(h.cfg.StreamTimeout) * time.Minute
}

func (h *Handler) authorizedUserID(c *gin.Context) (int64, bool) {
	userID, ok := auth.UserIDFromContext(c)
	if !ok || userID <= 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
		return 0, false
	}
	return userID, true
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api")
	api.GET("/hello", h.hello)
	api.POST("/register", h.registerUser)
	api.POST("/login", h.loginUser)

	authMW := h.auth.Middleware()
	authed := api.Group("")
	authed.Use(authMW, h.auth.CSRFMiddleware())
	authed.POST("/logout", h.logoutUser)
	authed.GET("/user", h.getUser)
	authed.PUT("/user", h.updateUser)

	authed.POST("/chat", h.chat)
	authed.GET("/chat", h.listHistory)
	authed.POST("/chat/stream", h.chatStream)
	authed.POST("/chat/save", h.saveChat)
	authed.GET("/chat/:id", h.getConversation)
	authed.DELETE("/chat/:id", h.deleteConversation)
	authed.DELETE("/chat", h.deleteAllHistory)

	authed.GET("/models", h.listModels)
	authed.POST("/models/info", h.modelInfo)
	authed.GET("/models/status", h.upstreamStatus)

	authed.GET("/templates", h.listTemplates)
	authed.POST("/templates", h.createTemplate)
	authed.PUT("/templates/:id", h.updateTemplate)
	authed.DELETE("/templates/:id", h.deleteTemplate)
}

func (h *Handler) hello(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "hello", "service": "ollamaweb"})
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) registerUser(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	user, err := h.store.RegisterUser(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, store.ErrUsernameTaken) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"id":            user.ID,
		"username":      user.Username,
		"default_model": user.DefaultModel,
		"created_at":    user.CreatedAt,
	})
}

func (h *Handler) loginUser(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	user, err := h.store.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	authToken, err := h.auth.IssueToken(c.Request.Context(), user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue token failed"})
		return
	}
	csrfToken, err := h.auth.NewCSRFToken()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue token failed"})
		return
	}
	h.setAuthCookies(c, authToken, csrfToken)
	c.JSON(http.StatusOK, gin.H{
		"id":         user.ID,
		"username":   user.Username,
		"auth_token": authToken,
	})
}

func (h *Handler) logoutUser(c *gin.Context) {
	if _, ok := h.authorizedUserID(c); !ok {
		return
	}
	if authToken, ok := auth.AuthTokenFromContext(c); ok {
		_ = h.auth.RevokeToken(c.Request.Context(), authToken)
	}
	h.clearAuthCookies(c)
	c.Status(http.StatusNoContent)
}

func (h *Handler) getUser(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	user, err := h.store.GetUser(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, user)
}

type userUpdateRequest struct {
	Password     *string `json:"password"`
	DefaultModel *string `json:"default_model"`
	UpstreamURL  *string `json:"upstream_url"`
	SystemPrompt *string `json:"system_prompt"`
}

func (h *Handler) updateUser(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	var req userUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	user, err := h.store.UpdateUser(c.Request.Context(), userID, store.UserUpdate{
		Password:     req.Password,
		DefaultModel: req.DefaultModel,
		UpstreamURL:  req.UpstreamURL,
		SystemPrompt: req.SystemPrompt,
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Password != nil {
		// Password change invalidates every session, then reissues
		// one for the current client.
		_ = h.auth.RevokeUserTokens(c.Request.Context(), userID)
		if fresh, err := h.auth.IssueToken(c.Request.Context(), userID); err == nil {
			csrfToken, _ := h.auth.NewCSRFToken()
			h.setAuthCookies(c, fresh, csrfToken)
		} else {
			h.logger.Warn("reissue token after password change", zap.Error(err))
		}
	}
	c.JSON(http.StatusOK, user)
}

func (h *Handler) listModels(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	user, err := h.store.GetUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	list, err := h.upstreamFor(user).ListModels(c.Request.Context())
	if err != nil {
		h.upstreamError(c, err)
		return
	}
	if list == nil {
		list = []ollama.ModelInfo{}
	}
	c.JSON(http.StatusOK, gin.H{"models": list})
}

func (h *Handler) modelInfo(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "model name is required"})
		return
	}
	user, err := h.store.GetUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	details, err := h.upstreamFor(user).ShowModel(c.Request.Context(), req.Name)
	if err != nil {
		h.upstreamError(c, err)
		return
	}
	c.JSON(http.StatusOK, details)
}

func (h *Handler) upstreamStatus(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	user, err := h.store.GetUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	available := h.upstreamFor(user).IsAvailable(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"available":    available,
		"upstream_url": user.UpstreamURL,
	})
}

type templateRequest struct {
	Title       string `json:"title"`
	Content     string `json:"content"`
	TargetModel string `json:"target_model"`
}

func (h *Handler) listTemplates(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	list, err := h.store.ListTemplates(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if list == nil {
		list = []models.PromptTemplate{}
	}
	c.JSON(http.StatusOK, gin.H{"templates": list})
}

func (h *Handler) createTemplate(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	var req templateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	tpl, err := h.store.CreateTemplate(c.Request.Context(), userID, req.Title, req.Content, req.TargetModel)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, tpl)
}

func (h *Handler) updateTemplate(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid template id"})
		return
	}
	var req templateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	tpl, err := h.store.UpdateTemplate(c.Request.Context(), userID, id, req.Title, req.Content, req.TargetModel)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "template not found"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, tpl)
}

func (h *Handler) deleteTemplate(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid template id"})
		return
	}
	if err := h.store.DeleteTemplate(c.Request.Context(), userID, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "template not found"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// upstreamError maps upstream client failures onto gateway statuses.
func (h *Handler) upstreamError(c *gin.Context, err error) {
	var ce *ollama.ClientError
	if errors.As(err, &ce) {
		switch ce.Type {
		case ollama.ErrTypeTimeout:
			c.JSON(http.StatusGatewayTimeout, gin.H{"success": false, "message": ce.Message})
			return
		case ollama.ErrTypeConnection:
			c.JSON(http.StatusBadGateway, gin.H{"success": false, "message": "upstream unavailable"})
			return
		case ollama.ErrTypeHTTP:
			if ce.StatusCode == http.StatusNotFound {
				c.JSON(http.StatusNotFound, gin.H{"success": false, "message": ce.Message})
				return
			}
			c.JSON(http.StatusBadGateway, gin.H{"success": false, "message": ce.Message})
			return
		}
	}
	c.JSON(http.StatusBadGateway, gin.H{"success": false, "message": err.Error()})
}

func (h *Handler) setAuthCookies(c *gin.Context, authToken, csrfToken string) {
	ttl := int(h.auth.TokenTTL().Seconds())
	if ttl <= 0 {
		ttl = 3600
	}
	secure := gin.Mode() == gin.ReleaseMode
	setCookie(c, &http.Cookie{
		Name:     h.auth.AuthCookieName(),
		Value:    authToken,
		MaxAge:   ttl,
		Path:     "/",
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	setCookie(c, &http.Cookie{
		Name:     h.auth.CSRFCookieName(),
		Value:    csrfToken,
		MaxAge:   ttl,
		Path:     "/",
		Secure:   secure,
		HttpOnly: false,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Handler) clearAuthCookies(c *gin.Context) {
	for _, name := range []string{h.auth.AuthCookieName(), h.auth.CSRFCookieName()} {
		setCookie(c, &http.Cookie{
			Name:     name,
			Value:    "",
			MaxAge:   -1,
			Path:     "/",
			Secure:   gin.Mode() == gin.ReleaseMode,
			HttpOnly: name == h.auth.AuthCookieName(),
			SameSite: http.SameSiteStrictMode,
		})
	}
}

func setCookie(c *gin.Context, ck *http.Cookie) {
	if ck == nil {
		return
	}
	http.SetCookie(c.Writer, ck)
}
