package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/character-library/backend/internal/characters"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var (
	errMissingCharacterService = errors.New("character service dependency required")
	errMissingHealthChecker    = errors.New("health checker dependency required")
)

// CharacterService is the catalog use-case surface served over HTTP.
type CharacterService interface {
	Create(ctx context.Context, input characters.Input) (characters.Character, error)
	Get(ctx context.Context, id characters.CharacterID) (characters.Character, error)
	List(ctx context.Context) ([]characters.Character, error)
	Update(ctx context.Context, id characters.CharacterID, input characters.Input) (characters.Character, error)
	Delete(ctx context.Context, id characters.CharacterID) error
}

// ImageUploader stores a character image and returns its URL.
type ImageUploader interface {
	Upload(ctx context.Context, characterName string, content io.Reader) (string, error)
}

// HealthChecker reports record store reachability.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// SettingsReader looks up configuration values by key.
type SettingsReader interface {
	Lookup(key string) (string, bool)
}

type Dependencies struct {
	CharacterService CharacterService
	Images           ImageUploader
	Health           HealthChecker
	Settings         SettingsReader
	// QueueMode describes the notification transport reported by /health.
	QueueMode      string
	MetricsHandler http.Handler
	AllowedOrigins []string
	Clock          func() time.Time
	Logger         *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.CharacterService == nil {
		return nil, errMissingCharacterService
	}
	if deps.Health == nil {
		return nil, errMissingHealthChecker
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
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
		characters: deps.CharacterService,
		images:     deps.Images,
		health:     deps.Health,
		settings:   deps.Settings,
		queueMode:  deps.QueueMode,
		clock:      clock,
		logger:     logger,
	}

	router.GET("/health", handler.handleHealth)
	if deps.MetricsHandler != nil {
		router.GET("/metrics", gin.WrapH(deps.MetricsHandler))
	}

	api := router.Group("/api")
	api.GET("/characters", handler.handleListCharacters)
	api.POST("/characters", handler.handleCreateCharacter)
	api.GET("/characters/:id", handler.handleGetCharacter)
	api.PUT("/characters/:id", handler.handleUpdateCharacter)
	api.DELETE("/characters/:id", handler.handleDeleteCharacter)
	if deps.Images != nil {
		api.PUT("/characters/:id/image", handler.handleUploadImage)
	}
	if deps.Settings != nil {
		api.GET("/config/:key", handler.handleGetSetting)
	}

	return router, nil
}

type httpHandler struct {
	characters CharacterService
	images     ImageUploader
	health     HealthChecker
	settings   SettingsReader
	queueMode  string
	clock      func() time.Time
	logger     *zap.Logger
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:  []string{"Content-Type", "Accept"},
		ExposeHeaders: []string{"Location"},
		MaxAge:        12 * time.Hour,
	}
	if len(allowedOrigins) == 0 || containsWildcard(allowedOrigins) {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = allowedOrigins
	}
	return cors.New(cfg)
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
		logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}
