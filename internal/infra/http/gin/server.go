package ginserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	gin "github.com/gin-gonic/gin"

	"staykeeper/internal/infra/config"
	"staykeeper/internal/infra/obs"
)

type ListingHTTP interface {
	Create(c *gin.Context)
	Patch(c *gin.Context)
	Publish(c *gin.Context)
	Unlist(c *gin.Context)
	Delete(c *gin.Context)
	Book(c *gin.Context)
	Get(c *gin.Context)
	ByOwner(c *gin.Context)
	List(c *gin.Context)
	Availability(c *gin.Context)
}

type CalendarHTTP interface {
	Calendar(c *gin.Context)
}

type Handlers struct {
	Listing             ListingHTTP
	Calendar            CalendarHTTP
	PrincipalMiddleware gin.HandlerFunc
}

func NewServer(cfg config.Config, obsMW obs.Middleware, health obs.HealthHandlers, h Handlers) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           NewRouter(cfg, obsMW, health, h),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// NewRouter builds the gin engine behind NewServer.
func NewRouter(cfg config.Config, obsMW obs.Middleware, health obs.HealthHandlers, h Handlers) *gin.Engine {
	mode := configureGinMode(cfg.Env)
	if obsMW.Logger != nil {
		obsMW.Logger.Info("gin initialized", "mode", mode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(obsMW.RequestID())
	router.Use(obsMW.LoggerMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{
			"Origin", "Content-Type", "Accept",
			IdempotencyKeyHeader, AccountIDHeader, AccountRoleHeader,
		},
		ExposeHeaders: []string{
			"Content-Length",
			"Content-Type",
			obs.RequestIDHeader,
		},
		MaxAge: 12 * time.Hour,
	}))
	if h.PrincipalMiddleware != nil {
		router.Use(h.PrincipalMiddleware)
	}

	router.GET("/livez", health.Livez)
	router.GET("/readyz", health.Readyz)

	api := router.Group("/api/v1")
	if h.Listing != nil {
		group := api.Group("/listings")
		group.GET("", h.Listing.List)
		group.POST("/owners/:ownerId", h.Listing.Create)
		group.GET("/owners/:ownerId", h.Listing.ByOwner)
		group.POST("/book/:id", h.Listing.Book)
		group.GET("/:id", h.Listing.Get)
		group.PATCH("/:id", h.Listing.Patch)
		group.DELETE("/:id", h.Listing.Delete)
		group.POST("/:id/publish", h.Listing.Publish)
		group.POST("/:id/unlist", h.Listing.Unlist)
		group.GET("/:id/availability", h.Listing.Availability)
	}
	if h.Calendar != nil {
		api.GET("/listings/:id/calendar", h.Calendar.Calendar)
	}
	return router
}

func configureGinMode(env string) string {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "debug", "dev", "local":
		gin.SetMode(gin.DebugMode)
		return gin.DebugMode
	case "test", "testing":
		gin.SetMode(gin.TestMode)
		return gin.TestMode
	default:
		gin.SetMode(gin.ReleaseMode)
		return gin.ReleaseMode
	}
}
