package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/andresuchdata/stockrisk/backend-go/internal/api/handlers"
	"github.com/andresuchdata/stockrisk/backend-go/internal/api/middleware"
	"github.com/andresuchdata/stockrisk/backend-go/internal/metrics"
	"github.com/andresuchdata/stockrisk/backend-go/internal/service"
)

type Services struct {
	RiskService   *service.RiskService
	IngestService *service.IngestService
	OrderService  *service.OrderService
	ConfigService *service.ConfigService
}

// RouterOptions carries the server settings the router needs.
type RouterOptions struct {
	AllowedOrigins []string
	MaxUploadMB    int
}

func NewRouter(services *Services, opts RouterOptions) *gin.Engine {
	router := gin.New()

	router.Use(middleware.Logger())
	router.Use(middleware.Recovery())
	router.Use(middleware.Metrics())
	if opts.MaxUploadMB > 0 {
		router.MaxMultipartMemory = int64(opts.MaxUploadMB) << 20
	}

	defaultOrigins := []string{"http://localhost:3000", "http://127.0.0.1:3000"}
	corsConfig := cors.Config{
		AllowOrigins:     defaultOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", handlers.SessionHeader, handlers.UserHeader},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(opts.AllowedOrigins) > 0 {
		normalizedOrigins, allowAll := normalizeAllowedOrigins(opts.AllowedOrigins)
		if allowAll {
			corsConfig.AllowOrigins = nil
			corsConfig.AllowOriginFunc = func(origin string) bool { return true }
		} else if len(normalizedOrigins) > 0 {
			corsConfig.AllowOrigins = normalizedOrigins
		}
	}
	router.Use(cors.New(corsConfig))

	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	apiGroup := router.Group("/api/v1")
	apiGroup.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
	})

	if services == nil {
		return router
	}

	if services.RiskService != nil {
		riskHandler := handlers.NewRiskHandler(services.RiskService, services.OrderService)
		riskGroup := apiGroup.Group("/risk")
		{
			riskGroup.GET("/overview", riskHandler.GetOverview)
			riskGroup.GET("/alerts", riskHandler.GetAlerts)
			riskGroup.GET("/actions", riskHandler.GetActions)
			riskGroup.GET("/reorders", riskHandler.GetReorders)
			riskGroup.GET("/heatmap", riskHandler.GetHeatmap)
			riskGroup.GET("/whatif", riskHandler.GetWhatIf)
			riskGroup.GET("/history", riskHandler.GetHistory)
			riskGroup.GET("/export", riskHandler.ExportReorders)
		}
		apiGroup.GET("/filters", riskHandler.GetFilterOptions)
	}

	if services.IngestService != nil {
		ledgerHandler := handlers.NewLedgerHandler(services.IngestService, opts.MaxUploadMB)
		ledgerGroup := apiGroup.Group("/ledger")
		{
			ledgerGroup.POST("/validate", ledgerHandler.Validate)
			ledgerGroup.POST("/upload", ledgerHandler.Upload)
		}
		apiGroup.GET("/ingest/runs", ledgerHandler.GetRuns)
		apiGroup.GET("/ingest/runs/:id/files", ledgerHandler.GetRunFiles)
		apiGroup.GET("/ingest/stats", ledgerHandler.GetStats)
	}

	if services.ConfigService != nil {
		configHandler := handlers.NewConfigHandler(services.ConfigService)
		configGroup := apiGroup.Group("/config/criticality")
		{
			configGroup.GET("", configHandler.GetCriticality)
			configGroup.PUT("", configHandler.SaveCriticality)
			configGroup.POST("/reset", configHandler.ResetCriticality)
		}
	}

	if services.OrderService != nil {
		orderHandler := handlers.NewOrderHandler(services.OrderService)
		apiGroup.POST("/sessions", orderHandler.CreateSession)
		sessionGroup := apiGroup.Group("/sessions/:id")
		{
			sessionGroup.GET("/ordered", orderHandler.GetOrdered)
			sessionGroup.POST("/ordered", orderHandler.MarkOrdered)
			sessionGroup.DELETE("/ordered", orderHandler.UnmarkOrdered)
		}
		apiGroup.POST("/orders", orderHandler.CreateOrder)
		apiGroup.GET("/actions/recent", orderHandler.GetRecentActions)
	}

	return router
}

func normalizeAllowedOrigins(origins []string) ([]string, bool) {
	var (
		parsed   []string
		allowAll bool
	)
	for _, origin := range origins {
		parts := strings.Split(origin, ",")
		for _, part := range parts {
			trimmed := strings.TrimSpace(part)
			if trimmed == "" {
				continue
			}
			if trimmed == "*" {
				allowAll = true
				continue
			}
			parsed = append(parsed, trimmed)
		}
	}
	return parsed, allowAll
}
