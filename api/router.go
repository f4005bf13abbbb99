package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/offersync/api/handler"
	"github.com/use-agent/offersync/api/middleware"
	"github.com/use-agent/offersync/bridge"
	"github.com/use-agent/offersync/cache"
	"github.com/use-agent/offersync/config"
	"github.com/use-agent/offersync/detector"
	"github.com/use-agent/offersync/extractor"
)

// Deps are the services the routes talk to.
type Deps struct {
	Sync     bridge.Controller
	Relay    *bridge.Relay
	Hub      *bridge.Hub
	Sessions *bridge.SessionBoard
	Registry *extractor.Registry
	Detector *detector.Detector
	Cache    *cache.Cache
	Archive  handler.OfferArchive

	// BrowserUp is nil when no browser is attached.
	BrowserUp func() bool
}

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
//
// Health endpoint is intentionally outside auth so monitoring probes always work.
func NewRouter(d Deps, cfg *config.Config, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	v1 := r.Group("/api/v1")

	// Health, no auth required.
	v1.GET("/health", handler.Health(d.Sync, d.BrowserUp, startTime))

	// Protected group: auth + rate limit.
	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(cfg.RateLimit))

	// Envelope surface for the page-side script
	protected.POST("/messages", handler.Messages(d.Sync, d.Relay))

	// Sync
	protected.POST("/sync/start", handler.StartSync(d.Sync))
	protected.POST("/sync/stop", handler.StopSync(d.Sync))
	protected.POST("/sync/capture", handler.Capture(d.Relay))
	protected.GET("/sync/state", handler.State(d.Sync))
	protected.GET("/sync/events", handler.Events(d.Hub))

	// Extraction and session checks on posted pages
	protected.POST("/extract", handler.Extract(d.Registry, d.Cache))
	protected.POST("/session/check", handler.SessionCheck(d.Detector, d.Sessions))
	protected.GET("/session", handler.Session(d.Sessions))

	// Export
	protected.GET("/export/offers.csv", handler.ExportOffers(d.Sync, d.Archive))

	return r
}
