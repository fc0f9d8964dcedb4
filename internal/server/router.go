package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/ree/backend/internal/assistant"
	"github.com/MarcoPoloResearchLab/ree/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/ree/backend/internal/history"
	"github.com/MarcoPoloResearchLab/ree/backend/internal/notes"
	"github.com/MarcoPoloResearchLab/ree/backend/internal/sharing"
	"github.com/MarcoPoloResearchLab/ree/backend/internal/users"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const (
	userIDContextKey   = "ree_user_id"
	usernameContextKey = "ree_username"
	accessTokenQuery   = "access_token"

	defaultHeartbeatInterval = 25 * time.Second
)

var (
	errMissingTokenManager   = errors.New("token manager dependency required")
	errMissingUsersService   = errors.New("users service dependency required")
	errMissingNotesService   = errors.New("notes service dependency required")
	errMissingHistory        = errors.New("history recorder dependency required")
	errMissingAssistant      = errors.New("assistant service dependency required")
	errMissingSharingService = errors.New("sharing service dependency required")
	errInvalidAuthorization  = errors.New("authorization header missing or invalid")
)

// TokenManager issues and validates the JWTs handed to REE clients.
type TokenManager interface {
	IssueTokenPair(ctx context.Context, subject auth.Subject) (auth.TokenPair, error)
	IssueAccessToken(ctx context.Context, subject auth.Subject) (string, int64, error)
	ValidateAccessToken(token string) (auth.Subject, error)
	ValidateRefreshToken(token string) (auth.Subject, error)
}

type Dependencies struct {
	TokenManager      TokenManager
	UsersService      *users.Service
	NotesService      *notes.Service
	History           *history.Recorder
	Assistant         *assistant.Service
	SharingService    *sharing.Service
	Realtime          *RealtimeDispatcher
	AllowedOrigins    []string
	HeartbeatInterval time.Duration
	Clock             func() time.Time
	Logger            *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	switch {
	case deps.TokenManager == nil:
		return nil, errMissingTokenManager
	case deps.UsersService == nil:
		return nil, errMissingUsersService
	case deps.NotesService == nil:
		return nil, errMissingNotesService
	case deps.History == nil:
		return nil, errMissingHistory
	case deps.Assistant == nil:
		return nil, errMissingAssistant
	case deps.SharingService == nil:
		return nil, errMissingSharingService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	realtime := deps.Realtime
	if realtime == nil {
		realtime = NewRealtimeDispatcher()
	}
	heartbeat := deps.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))
	router.Use(corsMiddleware(deps.AllowedOrigins))

	handler := &httpHandler{
		tokens:    deps.TokenManager,
		users:     deps.UsersService,
		notes:     deps.NotesService,
		history:   deps.History,
		assistant: deps.Assistant,
		sharing:   deps.SharingService,
		realtime:  realtime,
		heartbeat: heartbeat,
		clock:     clock,
		logger:    logger,
	}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	public := router.Group("/api/auth")
	public.POST("/register", handler.handleRegister)
	public.POST("/login", handler.handleLogin)
	public.POST("/refresh", handler.handleRefresh)

	protected := router.Group("/api")
	protected.Use(handler.authorizeRequest)

	protected.GET("/auth/me", handler.handleMe)
	protected.POST("/auth/set-password", handler.handleSetPassword)
	protected.DELETE("/auth/users/:id", handler.handleDeleteUser)

	protected.GET("/notes", handler.handleListNotes)
	protected.POST("/notes", handler.handleCreateNote)
	protected.GET("/notes/:id", handler.handleGetNote)
	protected.PUT("/notes/:id", handler.handleReplaceNote)
	protected.PATCH("/notes/:id", handler.handlePatchNote)
	protected.DELETE("/notes/:id", handler.handleDeleteNote)

	protected.POST("/ai/study", handler.handleStudy)
	protected.POST("/ai/project", handler.handleProject)
	protected.POST("/ai/general", handler.handleGeneral)
	protected.POST("/ai/notes", handler.handleNotesAssist)
	protected.GET("/ai/history", handler.handleListHistory)
	protected.DELETE("/ai/history", handler.handleDeleteAllHistory)
	protected.DELETE("/ai/history/:id", handler.handleDeleteHistory)

	protected.POST("/share/links", handler.handleCreateLink)
	protected.GET("/share/links", handler.handleListLinks)
	protected.GET("/share/links/:token", handler.handleLinkDetail)
	protected.POST("/share/links/:token/revoke", handler.handleRevokeLink)
	protected.GET("/share/links/:token/members", handler.handleListMembers)
	protected.DELETE("/share/links/:token/members/:user_id", handler.handleRemoveMember)
	protected.GET("/share/links/:token/chat", handler.handleSharedChat)
	protected.POST("/share/links/:token/chat", handler.handlePostSharedChat)
	protected.GET("/share/links/:token/note", handler.handleSharedNote)
	protected.PUT("/share/links/:token/note", handler.handleUpdateSharedNote)
	protected.POST("/share/links/:token/invite", handler.handleCreateInvite)
	protected.GET("/share/invites", handler.handleListInvites)
	protected.POST("/share/invites/:id", handler.handleRespondInvite)
	protected.GET("/share/stream", handler.handleShareStream)

	return router, nil
}

type httpHandler struct {
	tokens    TokenManager
	users     *users.Service
	notes     *notes.Service
	history   *history.Recorder
	assistant *assistant.Service
	sharing   *sharing.Service
	realtime  *RealtimeDispatcher
	heartbeat time.Duration
	clock     func() time.Time
	logger    *zap.Logger
}

// corsMiddleware allows the configured origins; an empty list or "*" reflects any origin.
func corsMiddleware(origins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Authorization", "Content-Type", "Accept", "Cache-Control"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if allowsAnyOrigin(origins) {
		config.AllowOriginFunc = func(string) bool { return true }
	} else {
		config.AllowOrigins = origins
	}
	return cors.New(config)
}

func allowsAnyOrigin(origins []string) bool {
	if len(origins) == 0 {
		return true
	}
	for _, origin := range origins {
		if origin == "*" {
			return true
		}
	}
	return false
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		logger.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(started)),
		)
	}
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	token, ok := bearerToken(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": errInvalidAuthorization.Error()})
		return
	}
	subject, err := h.tokens.ValidateAccessToken(token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, jwt.ErrTokenExpired) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Given token not valid for any token type"})
		return
	}
	c.Set(userIDContextKey, subject.UserID)
	c.Set(usernameContextKey, subject.Username)
	c.Next()
}

// bearerToken reads the Authorization header. EventSource clients cannot set headers, so the
// stream endpoint also accepts the token as a query parameter.
func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		return token, token != ""
	}
	if header == "" && strings.HasSuffix(c.Request.URL.Path, "/share/stream") {
		token := strings.TrimSpace(c.Query(accessTokenQuery))
		return token, token != ""
	}
	return "", false
}

func callerID(c *gin.Context) uint {
	return c.GetUint(userIDContextKey)
}
