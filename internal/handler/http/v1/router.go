package v1

import (
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/shenikar/resqlink/internal/metrics"
	"github.com/shenikar/resqlink/internal/ratelimit"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// endpoints перечисляет публичные маршруты для индекса и ответа 404
var endpoints = []string{
	"POST /api/reports",
	"GET /api/reports",
	"GET /api/reports/:id",
	"PATCH /api/reports/:id/status",
	"PATCH /api/reports/bulk-status",
	"DELETE /api/reports/:id",
	"GET /api/map/live",
	"GET /api/map/bounds",
	"GET /api/dashboard/stats",
	"GET /api/health",
}

// RouterDeps - необязательные части роутера. nil отключает соответствующую функцию.
type RouterDeps struct {
	Metrics *metrics.Metrics
	Limiter *ratelimit.ClientLimiter
}

// RegisterRoutes регистрирует все маршруты API
func (h *Handler) RegisterRoutes(api *gin.RouterGroup) {
	admin := APIKeyAuthMiddleware(h.cfg, h.logger)

	// Маршруты для отчетов о происшествиях
	reports := api.Group("/reports")
	{
		reports.POST("", h.createIncident)
		reports.GET("", h.listIncidents)
		reports.GET("/:id", h.getIncident)
		reports.PATCH("/:id/status", h.updateStatus)
		reports.PATCH("/bulk-status", admin, h.bulkUpdateStatus)
		reports.DELETE("/:id", admin, h.deleteIncident)
	}

	// Маршруты карты
	mapGroup := api.Group("/map")
	{
		mapGroup.GET("/live", h.liveMap)
		mapGroup.GET("/bounds", h.boundsMap)
	}

	api.GET("/dashboard/stats", h.getStats)

	// Маршрут Health-check
	api.GET("/health", h.healthCheck)
}

// NewRouter собирает gin.Engine со всеми middleware и маршрутами
func NewRouter(h *Handler, deps RouterDeps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(h.logger))
	router.Use(cors.New(corsConfig(h.cfg.CORSOrigins)))

	if deps.Metrics != nil {
		router.Use(deps.Metrics.Middleware())
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	api := router.Group("/api")
	if deps.Limiter != nil {
		api.Use(RateLimitMiddleware(deps.Limiter, h.logger))
	}
	h.RegisterRoutes(api)

	// Добавление маршрута для Swagger UI
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	router.GET("/", h.index)
	router.NoRoute(h.notFound)
	return router
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "X-API-Key"},
		ExposeHeaders: []string{"Content-Length", "Retry-After"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	return cfg
}

func (h *Handler) index(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":      "ResQLink incident service",
		"version":   Version,
		"endpoints": endpoints,
		"docs":      "/swagger/index.html",
	})
}

func (h *Handler) notFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{
		"error":              "route not found",
		"path":               c.Request.URL.Path,
		"method":             c.Request.Method,
		"availableEndpoints": endpoints,
	})
}
