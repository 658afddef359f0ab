package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/suratdinas/backend/internal/auth"
	"github.com/suratdinas/backend/internal/documents"
	"github.com/suratdinas/backend/internal/incoming"
	"github.com/suratdinas/backend/internal/numbering"
	"github.com/suratdinas/backend/internal/reference"
	"github.com/suratdinas/backend/internal/users"
	"go.uber.org/zap"
)

const (
	callerContextKey      = "surat_caller"
	accessTokenQueryParam = "access_token"
	welcomeMessage        = "Welcome to BAPENDA Surat API"
	defaultMaxUploadBytes = 1 << 20
)

var (
	errMissingTokenIssuer   = errors.New("token issuer dependency required")
	errMissingUsers         = errors.New("users service dependency required")
	errMissingReference     = errors.New("reference service dependency required")
	errMissingLetters       = errors.New("letters service dependency required")
	errMissingMemos         = errors.New("memos service dependency required")
	errMissingIncoming      = errors.New("incoming service dependency required")
	errInvalidAuthorization = errors.New("authorization header missing or invalid")
	errAdminRequired        = errors.New("administrator access required")
)

// TokenIssuer issues and validates access tokens.
type TokenIssuer interface {
	Issue(userID string, isAdmin bool, departmentID string) (string, int64, error)
	Validate(token string) (auth.Claims, error)
}

// Dependencies wires the services behind the HTTP API.
type Dependencies struct {
	Tokens         TokenIssuer
	Users          *users.Service
	Reference      *reference.Service
	Letters        *documents.Service
	Memos          *documents.Service
	Incoming       *incoming.Service
	Events         *EventDispatcher
	Location       *time.Location
	Clock          func() time.Time
	Logger         *zap.Logger
	AllowedOrigins []string
	MaxUploadBytes int64
}

// NewHTTPHandler builds the gin engine serving /api.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Tokens == nil {
		return nil, errMissingTokenIssuer
	}
	if deps.Users == nil {
		return nil, errMissingUsers
	}
	if deps.Reference == nil {
		return nil, errMissingReference
	}
	if deps.Letters == nil {
		return nil, errMissingLetters
	}
	if deps.Memos == nil {
		return nil, errMissingMemos
	}
	if deps.Incoming == nil {
		return nil, errMissingIncoming
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	events := deps.Events
	if events == nil {
		events = NewEventDispatcher()
	}
	location := deps.Location
	if location == nil {
		location = numbering.LoadLocation("")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	maxUploadBytes := deps.MaxUploadBytes
	if maxUploadBytes <= 0 {
		maxUploadBytes = defaultMaxUploadBytes
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))
	router.Use(corsMiddleware(deps.AllowedOrigins))

	handler := &httpHandler{
		tokens:         deps.Tokens,
		users:          deps.Users,
		reference:      deps.Reference,
		documents:      map[documents.Kind]*documents.Service{documents.KindLetter: deps.Letters, documents.KindMemo: deps.Memos},
		incoming:       deps.Incoming,
		events:         events,
		location:       location,
		clock:          clock,
		logger:         logger,
		maxUploadBytes: maxUploadBytes,
	}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.GET("", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": welcomeMessage})
	})
	api.POST("/auth/login", handler.handleLogin)

	protected := api.Group("")
	protected.Use(handler.authorizeRequest, handler.limitUploadBody)
	protected.POST("/auth/verify", handler.handleVerify)
	protected.POST("/auth/register", handler.requireAdmin, handler.handleRegister)
	protected.GET("/users", handler.requireAdmin, handler.handleListUsers)
	protected.GET("/users/me", handler.handleProfile)
	protected.GET("/events", handler.handleEventStream)

	handler.registerDocumentRoutes(protected.Group("/letters"), documents.KindLetter)
	handler.registerDocumentRoutes(protected.Group("/notas"), documents.KindMemo)
	handler.registerIncomingRoutes(protected)
	handler.registerDispositionRoutes(protected.Group("/dispositions"))
	for _, kind := range reference.Kinds() {
		handler.registerReferenceRoutes(protected.Group("/"+kind.Path), kind)
	}

	return router, nil
}

type httpHandler struct {
	tokens         TokenIssuer
	users          *users.Service
	reference      *reference.Service
	documents      map[documents.Kind]*documents.Service
	incoming       *incoming.Service
	events         *EventDispatcher
	location       *time.Location
	clock          func() time.Time
	logger         *zap.Logger
	maxUploadBytes int64
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowHeaders:  []string{"Authorization", "Content-Type"},
		ExposeHeaders: []string{"Content-Disposition"},
		MaxAge:        12 * time.Hour,
	}
	origins := make([]string, 0, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	if len(origins) == 0 || containsWildcard(origins) {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = origins
		config.AllowCredentials = true
	}
	return cors.New(config)
}

func containsWildcard(origins []string) bool {
	for _, origin := range origins {
		if origin == "*" {
			return true
		}
	}
	return false
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	// EventSource clients cannot set headers, so the stream may pass the token in the query.
	token, err := auth.BearerToken(c.Request, accessTokenQueryParam)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorPayload{
			Error:   "unauthorized",
			Code:    "auth.missing_token",
			Message: errInvalidAuthorization.Error(),
		})
		return
	}
	claims, err := h.tokens.Validate(token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorPayload{
			Error:   "unauthorized",
			Code:    "auth.invalid_token",
			Message: "token is invalid or expired",
		})
		return
	}
	c.Set(callerContextKey, numbering.Caller{
		UserID:       claims.UserID,
		IsAdmin:      claims.IsAdmin,
		DepartmentID: claims.DepartmentID,
	})
	c.Next()
}

func (h *httpHandler) requireAdmin(c *gin.Context) {
	if !callerFrom(c).IsAdmin {
		c.AbortWithStatusJSON(http.StatusForbidden, errorPayload{
			Error:   "admin_only",
			Code:    "auth.admin_only",
			Message: errAdminRequired.Error(),
		})
		return
	}
	c.Next()
}

func callerFrom(c *gin.Context) numbering.Caller {
	value, ok := c.Get(callerContextKey)
	if !ok {
		return numbering.Caller{}
	}
	caller, _ := value.(numbering.Caller)
	return caller
}
