package handler

import (
	"context"
	"mime"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/ticket-tracker/internal/apierror"
	"github.com/psds-microservice/ticket-tracker/internal/kafka"
	"github.com/psds-microservice/ticket-tracker/internal/model"
	"github.com/psds-microservice/ticket-tracker/internal/searchindex"
	"github.com/psds-microservice/ticket-tracker/internal/service"
	"go.uber.org/zap"
)

type TicketHandler struct {
	svc    service.TicketServicer
	notify notifier
	limits service.Limits
	log    *zap.Logger
}

func NewTicketHandler(svc service.TicketServicer, events kafka.TicketEventProducer, search searchindex.Indexer, limits service.Limits, log *zap.Logger) *TicketHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &TicketHandler{
		svc:    svc,
		notify: notifier{events: events, search: search},
		limits: limits.WithDefaults(),
		log:    log,
	}
}

type createTicketRequest struct {
	ProjectID   string  `json:"project_id" binding:"required"`
	Title       string  `json:"title" binding:"required"`
	Description *string `json:"description"`
	AssigneeID  *string `json:"assignee_id"`
	Status      string  `json:"status"`
}

func (h *TicketHandler) Create(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req createTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierror.Validation(c, "invalid body: project_id and title are required")
		return
	}
	t, err := h.svc.Create(c.Request.Context(), p, service.CreateTicketInput{
		ProjectID:   req.ProjectID,
		Title:       req.Title,
		Description: req.Description,
		AssigneeID:  req.AssigneeID,
		Status:      req.Status,
	})
	if err != nil {
		apierror.FromError(c, h.log, err)
		return
	}
	h.notify.ticket(kafka.EventTicketCreated, t)
	c.JSON(http.StatusCreated, t)
}

func (h *TicketHandler) Get(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	t, err := h.svc.Get(c.Request.Context(), p, c.Param("id"))
	if err != nil {
		apierror.FromError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *TicketHandler) List(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	limit, offset := pageParams(c)
	items, total, err := h.svc.List(c.Request.Context(), p, service.ListFilter{
		ProjectID:  query(c, "project", "project_id"),
		Status:     c.Query("status"),
		AssigneeID: query(c, "assignee", "assignee_id"),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		apierror.FromError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"tickets": items,
		"total":   total,
	})
}

type updateTicketRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	AssigneeID  *string `json:"assignee_id,omitempty"`
	Status      *string `json:"status,omitempty"`
}

func (h *TicketHandler) Update(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req updateTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierror.Validation(c, "invalid body")
		return
	}
	t, err := h.svc.Update(c.Request.Context(), p, c.Param("id"), service.TicketPatch{
		Title:       req.Title,
		Description: req.Description,
		AssigneeID:  req.AssigneeID,
		Status:      req.Status,
	})
	if err != nil {
		apierror.FromError(c, h.log, err)
		return
	}
	h.notify.ticket(kafka.EventTicketUpdated, t)
	c.JSON(http.StatusOK, t)
}

type statusRequest struct {
	Status string `json:"status" binding:"required"`
}

func (h *TicketHandler) SetStatus(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierror.Validation(c, "invalid body: status is required")
		return
	}
	t, err := h.svc.SetStatus(c.Request.Context(), p, c.Param("id"), req.Status)
	if err != nil {
		apierror.FromError(c, h.log, err)
		return
	}
	h.notify.ticket(kafka.EventTicketUpdated, t)
	c.JSON(http.StatusOK, t)
}

type expressLinkRequest struct {
	Link *string `json:"express_project_link"`
}

func (h *TicketHandler) SetExpressLink(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req expressLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Link == nil {
		apierror.Validation(c, "invalid body: express_project_link is required")
		return
	}
	t, err := h.svc.SetExpressLink(c.Request.Context(), p, c.Param("id"), *req.Link)
	if err != nil {
		apierror.FromError(c, h.log, err)
		return
	}
	h.notify.ticket(kafka.EventTicketUpdated, t)
	c.JSON(http.StatusOK, t)
}

func (h *TicketHandler) Delete(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id := c.Param("id")
	t, err := h.svc.Get(c.Request.Context(), p, id)
	if err != nil {
		apierror.FromError(c, h.log, err)
		return
	}
	if err := h.svc.Delete(c.Request.Context(), p, id); err != nil {
		apierror.FromError(c, h.log, err)
		return
	}
	h.notify.ticket(kafka.EventTicketDeleted, t)
	c.Status(http.StatusNoContent)
}

// --- checklist ---

type todoRequest struct {
	Text string `json:"text"`
}

func (h *TicketHandler) AddTodo(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req todoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierror.Validation(c, "invalid body")
		return
	}
	t, err := h.svc.AddTodo(c.Request.Context(), p, c.Param("id"), req.Text)
	if err != nil {
		apierror.FromError(c, h.log, err)
		return
	}
	h.notify.ticket(kafka.EventTicketUpdated, t)
	c.JSON(http.StatusCreated, t)
}

func (h *TicketHandler) ToggleTodo(c *gin.Context) {
	h.todoAt(c, h.svc.ToggleTodo)
}

func (h *TicketHandler) DeleteTodo(c *gin.Context) {
	h.todoAt(c, h.svc.DeleteTodo)
}

func (h *TicketHandler) todoAt(c *gin.Context, op func(ctx context.Context, p model.Principal, id string, index int) (*model.Ticket, error)) {
	p, ok := principal(c)
	if !ok {
		return
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		apierror.Validation(c, "checklist index must be an integer")
		return
	}
	t, err := op(c.Request.Context(), p, c.Param("id"), index)
	if err != nil {
		apierror.FromError(c, h.log, err)
		return
	}
	h.notify.ticket(kafka.EventTicketUpdated, t)
	c.JSON(http.StatusOK, t)
}

func (h *TicketHandler) SuggestTodos(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	items, err := h.svc.SuggestTodos(c.Request.Context(), p, c.Param("id"))
	if err != nil {
		apierror.FromError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// --- attachments ---

func (h *TicketHandler) AddAttachments(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	limitBody(c, h.limits.TicketAttachmentMaxBytes)
	form, err := c.MultipartForm()
	if err != nil {
		multipartError(c, err)
		return
	}
	files, err := readUploads(form, h.limits.TicketAttachmentMaxBytes)
	if err != nil {
		apierror.Validation(c, err.Error())
		return
	}
	t, atts, err := h.svc.AddAttachments(c.Request.Context(), p, c.Param("id"), files)
	if err != nil {
		apierror.FromError(c, h.log, err)
		return
	}
	h.notify.ticket(kafka.EventTicketUpdated, t)
	c.JSON(http.StatusCreated, gin.H{"attachments": atts})
}

func (h *TicketHandler) DeleteAttachment(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	t, err := h.svc.DeleteAttachment(c.Request.Context(), p, c.Param("id"), c.Param("attachmentId"))
	if err != nil {
		apierror.FromError(c, h.log, err)
		return
	}
	h.notify.ticket(kafka.EventTicketUpdated, t)
	c.JSON(http.StatusOK, t)
}

func (h *TicketHandler) DownloadAttachment(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	a, err := h.svc.FetchAttachment(c.Request.Context(), p, c.Param("id"), c.Param("attachmentId"))
	if err != nil {
		apierror.FromError(c, h.log, err)
		return
	}
	serveAttachment(c, a)
}

func contentDisposition(filename string) string {
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": filename}); v != "" {
		return v
	}
	return "attachment"
}
