package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/postpilot/postpilot/internal/orchestrator"
	"github.com/postpilot/postpilot/internal/supervisor"
	"github.com/postpilot/postpilot/pkg/config"
	"github.com/postpilot/postpilot/pkg/metrics"
)

// NewRouter wires the admin and status API
func NewRouter(cfg *config.Config, sup *supervisor.Supervisor, orch *orchestrator.Orchestrator, sink *metrics.PrometheusSink) *gin.Engine {
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestIDMiddleware())
	router.Use(LoggingMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST"},
		AllowHeaders:     []string{"Origin", "Content-Type", "X-Request-ID"},
		ExposeHeaders:    []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/health", func(c *gin.Context) {
		SuccessResponse(c, gin.H{
			"service": "postpilot",
			"status":  "ok",
			"agents":  sup.GetStatistics(),
		})
	})

	if sink != nil {
		router.GET("/metrics", gin.WrapH(sink.Handler()))
	}

	agentHandler := NewAgentHandler(sup)
	taskHandler := NewTaskHandler(orch)

	v1 := router.Group("/api/v1")
	{
		agents := v1.Group("/agents")
		{
			agents.GET("", agentHandler.ListAgents)
			agents.GET("/statistics", agentHandler.GetStatistics)
			agents.GET("/:name/health", agentHandler.GetAgentHealth)
			agents.GET("/:name/metrics", agentHandler.GetAgentMetrics)
			agents.POST("/:name/reset", agentHandler.ResetAgent)
			agents.POST("/:name/circuit", agentHandler.ForceCircuitState)
		}

		tasks := v1.Group("/tasks")
		{
			tasks.POST("", taskHandler.QueueTask)
			tasks.GET("/queue", taskHandler.GetQueue)
			tasks.POST("/queue/process", taskHandler.ProcessQueue)
		}
	}

	return router
}
