package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/ticket-tracker/internal/apierror"
	"github.com/psds-microservice/ticket-tracker/internal/service"
	"go.uber.org/zap"
)

type ProjectHandler struct {
	svc service.ProjectServicer
	log *zap.Logger
}

func NewProjectHandler(svc service.ProjectServicer, log *zap.Logger) *ProjectHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &ProjectHandler{svc: svc, log: log}
}

type createProjectRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

func (h *ProjectHandler) Create(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req createProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierror.Validation(c, "invalid body: name is required")
		return
	}
	pr, err := h.svc.Create(c.Request.Context(), p, req.Name, req.Description)
	if err != nil {
		apierror.FromError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, pr)
}

func (h *ProjectHandler) Get(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	pr, err := h.svc.Get(c.Request.Context(), p, c.Param("id"))
	if err != nil {
		apierror.FromError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, pr)
}

func (h *ProjectHandler) List(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	items, err := h.svc.List(c.Request.Context(), p)
	if err != nil {
		apierror.FromError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"projects": items})
}
