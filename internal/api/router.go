package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/jengzang/landuse-tree/internal/config"
	"github.com/jengzang/landuse-tree/internal/handler"
	"github.com/jengzang/landuse-tree/internal/middleware"
)

// SetupRouter 设置路由. The returned func stops the router's background
// workers and must be called once the server has shut down.
func SetupRouter(cfg *config.Config, trees *handler.TreeHandler, logger *zap.Logger) (*gin.Engine, func()) {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery(), middleware.Logger(logger))

	// CORS 中间件
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "Context tree API is running",
		})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	limiter := middleware.NewRateLimiter(cfg.RateLimit, time.Minute)

	// API 路由组
	api := r.Group("/api/v1")
	{
		tree := api.Group("/trees")
		{
			tree.GET("", trees.ListTrees)
			tree.GET("/:id", trees.GetTree)
			tree.GET("/:id/nodes", trees.GetTreeNodes)
			tree.POST("", middleware.JWTAuth(cfg.JWTSecret), middleware.RateLimit(limiter), trees.CreateTree)
		}
	}

	return r, limiter.Stop
}
