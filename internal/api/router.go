package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/campuswatch/internal/api/handlers"
	"github.com/your-org/campuswatch/internal/api/ws"
	"github.com/your-org/campuswatch/internal/auth"
	"github.com/your-org/campuswatch/internal/queue"
	"github.com/your-org/campuswatch/internal/recognition"
	"github.com/your-org/campuswatch/internal/storage"
	"github.com/your-org/campuswatch/internal/tracking"
	"github.com/your-org/campuswatch/internal/visitor"
)

type RouterConfig struct {
	APIKey   string
	Location string
	DB       *storage.PostgresStore
	MinIO    *storage.MinIOStore
	Producer *queue.Producer
	Hub      *ws.Hub
	Recog    *recognition.Service
	Tracker  *tracking.Tracker
	Visitors *visitor.Service
	// Emotion is nil when the emotion/attribute models are unavailable.
	Emotion handlers.EmotionClassifier
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.Default())

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.DB, cfg.MinIO, cfg.Producer)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 (with auth)
	v1 := r.Group("/v1")
	v1.Use(auth.APIKeyMiddleware(cfg.APIKey))

	// WebSocket
	v1.GET("/ws", cfg.Hub.HandleWS)

	// Identities & enrollment
	identityH := handlers.NewIdentityHandler(cfg.DB, cfg.Recog, cfg.MinIO)
	v1.POST("/identities", identityH.Create)
	v1.GET("/identities", identityH.List)
	v1.GET("/identities/:id", identityH.Get)
	v1.DELETE("/identities/:id", identityH.Delete)
	v1.POST("/identities/:id/face", identityH.Enroll)
	v1.DELETE("/identities/:id/face", identityH.DeleteFace)
	v1.POST("/search", identityH.SearchByFace)
	v1.POST("/gallery/reload", identityH.ReloadGallery)

	// Recognition & presence
	presenceH := handlers.NewPresenceHandler(cfg.DB, cfg.Recog, cfg.Tracker, cfg.Producer, cfg.Location)
	presenceH.Emotion = cfg.Emotion
	v1.POST("/recognize", presenceH.Recognize)
	v1.GET("/identities/:id/presence", presenceH.History)
	v1.GET("/identities/:id/emotions", presenceH.Emotions)
	v1.GET("/presence/recent", presenceH.Recent)

	// Visitors
	visitorH := handlers.NewVisitorHandler(cfg.DB, cfg.Visitors, cfg.Producer, cfg.Location)
	v1.POST("/visitors/check-in", visitorH.CheckIn)
	v1.POST("/visitors/:id/check-out", visitorH.CheckOut)
	v1.GET("/visitors/active", visitorH.Active)
	v1.GET("/visitors/history", visitorH.History)
	v1.GET("/visitors/search", visitorH.Search)
	v1.GET("/visitors/stats", visitorH.Stats)
	v1.POST("/visitors/gallery/reload", visitorH.ReloadGallery)

	return r
}
