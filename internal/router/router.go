package router

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/psds-microservice/helpy/paths"
	"github.com/psds-microservice/ticket-tracker/api"
	"github.com/psds-microservice/ticket-tracker/internal/handler"
	"github.com/psds-microservice/ticket-tracker/internal/middleware"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
)

const PathMetrics = "/metrics"

type Options struct {
	Tickets  *handler.TicketHandler
	Reviews  *handler.ReviewHandler
	Projects *handler.ProjectHandler

	// JWTSecret switches principal resolution from gateway headers to bearer tokens.
	JWTSecret string
	Ready     func(context.Context) error
	Log       *zap.Logger
}

func New(opts Options) http.Handler {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	r := gin.New()
	r.Use(gin.Recovery(), middleware.Metrics(), middleware.Logging(log))
	r.GET(paths.PathHealth, handler.Health)
	r.GET(paths.PathReady, handler.Ready(opts.Ready))
	r.GET(PathMetrics, gin.WrapH(promhttp.Handler()))
	r.GET(paths.PathSwagger, func(c *gin.Context) { c.Redirect(http.StatusFound, paths.PathSwagger+"/") })
	r.GET(paths.PathSwagger+"/*any", func(c *gin.Context) {
		if strings.TrimPrefix(c.Param("any"), "/") == "openapi.json" {
			c.Data(http.StatusOK, "application/json", api.OpenAPISpec)
			return
		}
		if strings.TrimPrefix(c.Param("any"), "/") == "" {
			c.Request.URL.Path = paths.PathSwagger + "/index.html"
			c.Request.RequestURI = paths.PathSwagger + "/index.html"
		}
		ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL(paths.PathSwagger+"/openapi.json"))(c)
	})

	v1 := r.Group("/api/v1", middleware.Principal(opts.JWTSecret))
	if h := opts.Tickets; h != nil {
		v1.GET("/tickets", h.List)
		v1.POST("/tickets", h.Create)
		v1.GET("/tickets/:id", h.Get)
		v1.PUT("/tickets/:id", h.Update)
		v1.DELETE("/tickets/:id", h.Delete)
		v1.PUT("/tickets/:id/status", h.SetStatus)
		v1.PUT("/tickets/:id/express-link", h.SetExpressLink)

		v1.POST("/tickets/:id/todos", h.AddTodo)
		v1.POST("/tickets/:id/todos/suggest", h.SuggestTodos)
		v1.PATCH("/tickets/:id/todos/:index", h.ToggleTodo)
		v1.DELETE("/tickets/:id/todos/:index", h.DeleteTodo)

		v1.POST("/tickets/:id/attachments", h.AddAttachments)
		v1.DELETE("/tickets/:id/attachments/:attachmentId", h.DeleteAttachment)
		v1.GET("/tickets/:id/files/:attachmentId", h.DownloadAttachment)
	}
	if h := opts.Reviews; h != nil {
		v1.GET("/reviews/ticket/:id", h.GetLog)
		v1.POST("/reviews/ticket/:id/comments", h.AddComment)
		v1.GET("/reviews/ticket/:id/comments/:commentId/attachments/:attachmentId", h.DownloadAttachment)
	}
	if h := opts.Projects; h != nil {
		v1.GET("/projects", h.List)
		v1.POST("/projects", h.Create)
		v1.GET("/projects/:id", h.Get)
	}

	return r
}
