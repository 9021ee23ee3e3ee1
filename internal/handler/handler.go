package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/ticket-tracker/internal/apierror"
	"github.com/psds-microservice/ticket-tracker/internal/kafka"
	"github.com/psds-microservice/ticket-tracker/internal/middleware"
	"github.com/psds-microservice/ticket-tracker/internal/model"
	"github.com/psds-microservice/ticket-tracker/internal/searchindex"
	"github.com/psds-microservice/ticket-tracker/internal/service"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
	maxUploadFiles  = 10
	eventTimeout    = 5 * time.Second
)

// notifier fans ticket changes out to Kafka and the search index without
// blocking the response. Either side may be nil.
type notifier struct {
	events kafka.TicketEventProducer
	search searchindex.Indexer
}

func (n notifier) ticket(event string, t *model.Ticket) {
	if t == nil {
		return
	}
	if n.events != nil {
		n.publish(event, kafka.TicketPayload(t))
	}
	if n.search != nil {
		if event == kafka.EventTicketDeleted {
			n.search.RemoveTicketAsync(t.ID)
		} else {
			n.search.IndexTicketAsync(t)
		}
	}
}

func (n notifier) comment(ticketID string, c *model.Comment) {
	if n.events != nil && c != nil {
		n.publish(kafka.EventCommentAdded, kafka.CommentPayload(ticketID, c))
	}
}

func (n notifier) publish(event string, payload map[string]interface{}) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
		defer cancel()
		n.events.ProduceTicketEvent(ctx, event, payload)
	}()
}

// principal returns the caller resolved by middleware.Principal.
func principal(c *gin.Context) (model.Principal, bool) {
	p, ok := middleware.PrincipalFrom(c)
	if !ok {
		apierror.Unauthorized(c, "authentication required")
	}
	return p, ok
}

// query returns the first non-empty query parameter among keys.
func query(c *gin.Context, keys ...string) string {
	for _, k := range keys {
		if v := c.Query(k); v != "" {
			return v
		}
	}
	return ""
}

func pageParams(c *gin.Context) (limit, offset int) {
	limit = defaultPageSize
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
			offset = parsed
		}
	}
	return limit, offset
}

// limitBody caps the request body so a multipart upload of maxUploadFiles
// files of perFile bytes (plus form overhead) still fits.
func limitBody(c *gin.Context, perFile int64) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadFiles*(perFile+1)+1<<20)
}

// readUploads reads the "files" parts. Each file is read up to perFile+1
// bytes so the service can report oversized files by name.
func readUploads(form *multipart.Form, perFile int64) ([]service.Upload, error) {
	headers := form.File["files"]
	if len(headers) > maxUploadFiles {
		return nil, fmt.Errorf("at most %d files per request", maxUploadFiles)
	}
	out := make([]service.Upload, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("open %q: %w", fh.Filename, err)
		}
		data, err := io.ReadAll(io.LimitReader(f, perFile+1))
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("read %q: %w", fh.Filename, err)
		}
		out = append(out, service.Upload{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
		})
	}
	return out, nil
}

// multipartError reports a failed multipart parse as a validation error.
func multipartError(c *gin.Context, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		apierror.Validation(c, "request body too large")
		return
	}
	apierror.Validation(c, "invalid multipart form: "+err.Error())
}

// serveAttachment writes the payload as a download.
func serveAttachment(c *gin.Context, a *model.Attachment) {
	c.Header("Content-Disposition", contentDisposition(a.Filename))
	c.Header("Content-Length", strconv.FormatInt(int64(len(a.Payload)), 10))
	c.Data(http.StatusOK, a.ContentType, a.Payload)
}
