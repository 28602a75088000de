package app

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"rental/internal/handler"
	"rental/internal/middleware"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	BookingHandler   *handler.BookingHandler
	DirectoryHandler *handler.DirectoryHandler
	RedisClient      *redis.Client // nil disables idempotent replays
	NewRelicApp      *newrelic.Application
	AllowedOrigins   []string
	Logger           logrus.FieldLogger
}

// NewRouter creates a new Gin router with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(requestLogger(deps.Logger))
	router.Use(cors.New(corsConfig(deps.AllowedOrigins)))

	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/v1")
	v1.Use(middleware.Identity(), middleware.ActorAttributes(), middleware.Idempotency(deps.RedisClient))
	{
		bookings := v1.Group("/bookings")
		{
			bookings.POST("", deps.BookingHandler.Create)
			bookings.GET("", deps.BookingHandler.ListAll)
			bookings.GET("/:id", deps.BookingHandler.Get)
			bookings.PATCH("/:id/trip", deps.BookingHandler.EditTrip)
			bookings.POST("/:id/confirm", deps.BookingHandler.Confirm)
			bookings.POST("/:id/complete", deps.BookingHandler.Complete)
			bookings.POST("/:id/cancel", deps.BookingHandler.Cancel)
			bookings.POST("/:id/pay", deps.BookingHandler.Pay)
			bookings.DELETE("/:id", deps.BookingHandler.Delete)
		}

		customers := v1.Group("/customers")
		{
			customers.GET("/:id/bookings", deps.BookingHandler.ListForCustomer)
			customers.GET("/:id/bookings/active", deps.BookingHandler.ListActiveForCustomer)
		}

		drivers := v1.Group("/drivers")
		{
			drivers.GET("", deps.DirectoryHandler.ListDrivers)
			drivers.GET("/:id/bookings", deps.BookingHandler.ListForDriver)
		}

		v1.GET("/vehicles/:id", deps.DirectoryHandler.GetVehicle)
	}

	return router
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{
			"Origin", "Content-Type",
			middleware.ActorIDHeader, middleware.ActorRoleHeader, middleware.IdempotencyHeader,
		},
		ExposeHeaders: []string{"Idempotent-Replay"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

// requestLogger logs one structured line per request.
func requestLogger(log logrus.FieldLogger) gin.HandlerFunc {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := log.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
			"client":   c.ClientIP(),
		})
		if actor, ok := middleware.ActorFrom(c); ok {
			entry = entry.WithField("actor_id", actor.ID)
		}
		if len(c.Errors) > 0 {
			entry.WithField("errors", c.Errors.String()).Error("request failed")
			return
		}
		entry.Debug("request handled")
	}
}
