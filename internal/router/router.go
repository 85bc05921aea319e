package router

import (
	"depth-test/internal/handler"
	"depth-test/internal/service"

	"github.com/gin-gonic/gin"
)

func SetupRouter(svc *service.ServiceContext) *gin.Engine {
	r := gin.Default()

	// CORS
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// 初始化handlers
	runHandler := handler.NewRunHandler(svc)
	resultHandler := handler.NewResultHandler(svc)

	// API路由
	api := r.Group("/api")
	{
		// 批次相关
		runs := api.Group("/runs")
		{
			runs.GET("", runHandler.ListRuns)
			runs.GET("/:id", runHandler.GetRun)
			runs.GET("/:id/trials", runHandler.GetRunTrials)
			runs.GET("/:id/logs", runHandler.GetRunLogs)
			runs.GET("/:id/stats", runHandler.GetRunStats)
			runs.POST("/run", runHandler.TriggerRun)
		}

		// 结果相关
		results := api.Group("/results")
		{
			results.GET("", resultHandler.ListResults)
			results.GET("/:sample_id", resultHandler.GetResult)
			results.GET("/:sample_id/artifact", resultHandler.GetArtifact)
		}
	}

	return r
}
