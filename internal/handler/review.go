package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/ticket-tracker/internal/apierror"
	"github.com/psds-microservice/ticket-tracker/internal/kafka"
	"github.com/psds-microservice/ticket-tracker/internal/searchindex"
	"github.com/psds-microservice/ticket-tracker/internal/service"
	"go.uber.org/zap"
)

type ReviewHandler struct {
	svc    service.ReviewServicer
	notify notifier
	limits service.Limits
	log    *zap.Logger
}

func NewReviewHandler(svc service.ReviewServicer, events kafka.TicketEventProducer, search searchindex.Indexer, limits service.Limits, log *zap.Logger) *ReviewHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &ReviewHandler{
		svc:    svc,
		notify: notifier{events: events, search: search},
		limits: limits.WithDefaults(),
		log:    log,
	}
}

func (h *ReviewHandler) GetLog(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	r, err := h.svc.GetLog(c.Request.Context(), p, c.Param("id"))
	if err != nil {
		apierror.FromError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

type statusChangeRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type commentRequest struct {
	Text         string               `json:"text"`
	StatusChange *statusChangeRequest `json:"status_change,omitempty"`
	ApplyStatus  bool                 `json:"apply_status"`
}

// AddComment appends to the review log. With apply_status the ticket moves to
// status_change.to and the comment records the actual previous status.
func (h *ReviewHandler) AddComment(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	req, files, ok := h.bindComment(c)
	if !ok {
		return
	}
	in := service.CommentInput{Text: req.Text, Files: files}
	if req.StatusChange != nil {
		in.StatusChange = &service.StatusChangeInput{From: req.StatusChange.From, To: req.StatusChange.To}
	}
	ticketID := c.Param("id")

	if req.ApplyStatus || queryBool(c, "applyStatus") {
		if req.StatusChange == nil || req.StatusChange.To == "" {
			apierror.Validation(c, "status_change.to is required to apply a status")
			return
		}
		t, comment, err := h.svc.CommentAndTransition(c.Request.Context(), p, ticketID, in, req.StatusChange.To)
		if err != nil {
			apierror.FromError(c, h.log, err)
			return
		}
		h.notify.ticket(kafka.EventTicketUpdated, t)
		h.notify.comment(ticketID, comment)
		c.JSON(http.StatusCreated, gin.H{"ticket": t, "comment": comment})
		return
	}

	comment, err := h.svc.AppendComment(c.Request.Context(), p, ticketID, in)
	if err != nil {
		apierror.FromError(c, h.log, err)
		return
	}
	h.notify.comment(ticketID, comment)
	c.JSON(http.StatusCreated, comment)
}

// bindComment reads either a JSON body or a multipart form with fields text,
// status_from, status_to, apply_status and files.
func (h *ReviewHandler) bindComment(c *gin.Context) (commentRequest, []service.Upload, bool) {
	var req commentRequest
	if !strings.HasPrefix(c.ContentType(), "multipart/") {
		if err := c.ShouldBindJSON(&req); err != nil {
			apierror.Validation(c, "invalid body")
			return req, nil, false
		}
		return req, nil, true
	}

	limitBody(c, h.limits.CommentAttachmentMaxBytes)
	form, err := c.MultipartForm()
	if err != nil {
		multipartError(c, err)
		return req, nil, false
	}
	req.Text = formValue(form.Value, "text")
	from, to := formValue(form.Value, "status_from"), formValue(form.Value, "status_to")
	if from != "" || to != "" {
		req.StatusChange = &statusChangeRequest{From: from, To: to}
	}
	req.ApplyStatus, _ = strconv.ParseBool(formValue(form.Value, "apply_status"))
	files, err := readUploads(form, h.limits.CommentAttachmentMaxBytes)
	if err != nil {
		apierror.Validation(c, err.Error())
		return req, nil, false
	}
	return req, files, true
}

func (h *ReviewHandler) DownloadAttachment(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	a, err := h.svc.FetchAttachment(c.Request.Context(), p, c.Param("id"), c.Param("commentId"), c.Param("attachmentId"))
	if err != nil {
		apierror.FromError(c, h.log, err)
		return
	}
	serveAttachment(c, a)
}

func formValue(values map[string][]string, key string) string {
	if v := values[key]; len(v) > 0 {
		return v[0]
	}
	return ""
}

func queryBool(c *gin.Context, key string) bool {
	v, _ := strconv.ParseBool(c.Query(key))
	return v
}
