package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"mindscope/internal/auth"
	"mindscope/internal/models"
	"mindscope/internal/service/account"
	"mindscope/internal/service/analysis"
	"mindscope/internal/service/chats"
	"mindscope/internal/worker"
)

// Multipart uploads above this size are rejected before parsing.
const maxUploadBytes = 32 << 20

// Handler wires HTTP routes to the account, chats, and analysis services.
// Analyze turns are serialized per session through the worker manager.
type Handler struct {
	account *account.Service
	chats   *chats.Service
	auth    *auth.Service
	engine  *analysis.Engine
	workers *worker.Manager
}

// NewHandler constructs a Handler instance.
func NewHandler(accountSvc *account.Service, chatsSvc *chats.Service, authSvc *auth.Service, engine *analysis.Engine, workers *worker.Manager) *Handler {
	return &Handler{
		account: accountSvc,
		chats:   chatsSvc,
		auth:    authSvc,
		engine:  engine,
		workers: workers,
	}
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
	router.GET("/", h.health)
	router.POST("/analyze", h.auth.OptionalMiddleware(), h.analyze)

	api := router.Group("/api")
	api.POST("/users/register", h.registerUser)
	api.POST("/users/login", h.loginUser)

	authMW := h.auth.Middleware()
	api.POST("/users/logout", authMW, h.logoutUser)

	chatRoutes := api.Group("/chats")
	chatRoutes.Use(authMW, h.auth.CSRFMiddleware())
	chatRoutes.GET("", h.listChats)
	chatRoutes.POST("", h.createChat)
	chatRoutes.GET("/:id", h.getChat)
	chatRoutes.PUT("/:id", h.updateChat)
	chatRoutes.DELETE("/:id", h.deleteChat)
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// User create&login interface
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
	user, err := h.account.Register(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"id":         user.ID,
		"username":   user.Username,
		"created_at": user.CreatedAt,
	})
}

func (h *Handler) loginUser(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	user, err := h.account.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
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
		"created_at": user.CreatedAt,
		"auth_token": authToken,
	})
}

func (h *Handler) logoutUser(c *gin.Context) {
	if token, ok := auth.AuthTokenFromContext(c); ok {
		if err := h.auth.RevokeToken(c.Request.Context(), token); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "logout failed"})
			return
		}
	}
	h.clearAuthCookies(c)
	c.Status(http.StatusNoContent)
}

// Analyze interface. Anonymous callers are allowed; a valid bearer token
// only associates the turn with a user for logging.
func (h *Handler) analyze(c *gin.Context) {
	if c.Request.ContentLength > maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "upload too large"})
		return
	}
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart form"})
		return
	}

	in := analysis.Input{
		Text:           formValue(form.Value, "text"),
		AssessmentMode: formValue(form.Value, "is_assessment_mode") == "true",
		SessionID:      formValue(form.Value, "session_id"),
	}
	// assessment_progress is accepted for wire compatibility but the engine
	// recomputes progress from its own session state.
	if raw := formValue(form.Value, "assessment_progress"); raw != "" {
		var progress models.AssessmentProgress
		if err := json.Unmarshal([]byte(raw), &progress); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid assessment_progress"})
			return
		}
	}
	for _, fh := range form.File["files"] {
		att, err := readAttachment(fh)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable upload: " + fh.Filename})
			return
		}
		in.Attachments = append(in.Attachments, att)
	}
	if in.Text == "" && len(in.Attachments) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text or files required"})
		return
	}

	// Serialize turns that share a session; concurrent sessions proceed in
	// parallel up to the manager's global cap.
	key := in.SessionID
	if key == "" {
		key = "anon"
	}
	var (
		result     *analysis.Result
		analyzeErr error
	)
	err = h.workers.Do(c.Request.Context(), key, func(ctx context.Context) {
		result, analyzeErr = h.engine.Analyze(ctx, in)
	})
	if err != nil {
		if errors.Is(err, worker.ErrQueueFull) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "server is busy, please retry"})
			return
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	if analyzeErr != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": analyzeErr.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// Chat persistence interface
type createChatRequest struct {
	Title    string           `json:"title"`
	Messages []models.Message `json:"messages"`
}

type updateChatRequest struct {
	Messages []models.Message `json:"messages"`
}

func (h *Handler) listChats(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	records, err := h.chats.List(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if records == nil {
		records = []models.ChatRecord{}
	}
	c.JSON(http.StatusOK, records)
}

func (h *Handler) createChat(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	var req createChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.Title == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title required"})
		return
	}
	rec, err := h.chats.Create(c.Request.Context(), userID, req.Title, req.Messages)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (h *Handler) getChat(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	chatID, ok := h.pathChatID(c)
	if !ok {
		return
	}
	rec, err := h.chats.Get(c.Request.Context(), userID, chatID)
	if err != nil {
		h.chatError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *Handler) updateChat(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	chatID, ok := h.pathChatID(c)
	if !ok {
		return
	}
	var req updateChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	rec, err := h.chats.Update(c.Request.Context(), userID, chatID, req.Messages)
	if err != nil {
		h.chatError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *Handler) deleteChat(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	chatID, ok := h.pathChatID(c)
	if !ok {
		return
	}
	if err := h.chats.Delete(c.Request.Context(), userID, chatID); err != nil {
		h.chatError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) pathChatID(c *gin.Context) (int64, bool) {
	chatID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || chatID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
		return 0, false
	}
	return chatID, true
}

func (h *Handler) chatError(c *gin.Context, err error) {
	if errors.Is(err, chats.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "chat not found"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func (h *Handler) setAuthCookies(c *gin.Context, authToken, csrfToken string) {
	ttl := int(h.auth.TokenTTL().Seconds())
	if ttl <= 0 {
		ttl = 3600
	}
	secure := gin.Mode() == gin.ReleaseMode
	setCookie(c, &http.Cookie{
		Name:     auth.CookieName,
		Value:    authToken,
		MaxAge:   ttl,
		Path:     "/",
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	setCookie(c, &http.Cookie{
		Name:     auth.CSRFCookieName,
		Value:    csrfToken,
		MaxAge:   ttl,
		Path:     "/",
		Secure:   secure,
		HttpOnly: false,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Handler) clearAuthCookies(c *gin.Context) {
	for _, name := range []string{auth.CookieName, auth.CSRFCookieName} {
		setCookie(c, &http.Cookie{
			Name:     name,
			Value:    "",
			MaxAge:   -1,
			Path:     "/",
			Secure:   gin.Mode() == gin.ReleaseMode,
			HttpOnly: name == auth.CookieName,
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

func formValue(values map[string][]string, key string) string {
	if vs := values[key]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

func readAttachment(fh *multipart.FileHeader) (models.Attachment, error) {
	f, err := fh.Open()
	if err != nil {
		return models.Attachment{}, err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return models.Attachment{}, err
	}
	return models.Attachment{
		Name:     fh.Filename,
		MimeType: fh.Header.Get("Content-Type"),
		Data:     data,
	}, nil
}
