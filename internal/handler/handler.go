package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/PatrickKish1/x402-manager-backend/common/errors"
	"github.com/PatrickKish1/x402-manager-backend/common/log"
	"github.com/PatrickKish1/x402-manager-backend/internal/db"
	"github.com/PatrickKish1/x402-manager-backend/internal/validation"
)

type Handler struct {
	db     *db.DB
	engine *validation.Engine
	logger log.Logger
}

func New(database *db.DB, engine *validation.Engine, logger log.Logger) *Handler {
	return &Handler{
		db:     database,
		engine: engine,
		logger: logger,
	}
}

// corsMiddleware handles CORS for individual routes
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")
		c.Writer.Header().Set("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

func (h *Handler) Register(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	group := r.Group("/v1")

	// service
	group.GET("/service", corsMiddleware(), h.ListService)
	group.POST("/service", corsMiddleware(), h.CreateService)

	// usage
	group.GET("/usage", corsMiddleware(), h.ListUsage)

	// validation
	group.POST("/validate", corsMiddleware(), h.Validate)
	group.GET("/validation/:id", corsMiddleware(), h.GetValidation)
	group.GET("/validated/:serviceId", corsMiddleware(), h.GetValidatedService)
	group.POST("/validated/:serviceId/vote", corsMiddleware(), h.Vote)
}

func (h *Handler) handleError(ctx *gin.Context, err error, context string) {
	h.logger.Errorf("Handler error: %v, context: %s", err, context)
	errors.Response(ctx, err)
}
