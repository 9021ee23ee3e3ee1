package service

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/psds-microservice/ticket-tracker/internal/authz"
	"github.com/psds-microservice/ticket-tracker/internal/errs"
	"github.com/psds-microservice/ticket-tracker/internal/model"
)

const (
	DefaultTicketAttachmentMaxBytes  int64 = 4 << 20
	DefaultCommentAttachmentMaxBytes int64 = 10 << 20
	maxFilenameLen                         = 255
)

var errSuggesterDisabled = errors.New("checklist suggestions are not configured")

// Limits are the per-call-site upload ceilings.
type Limits struct {
	TicketAttachmentMaxBytes  int64
	CommentAttachmentMaxBytes int64
}

// WithDefaults fills unset limits with the package defaults.
func (l Limits) WithDefaults() Limits {
	if l.TicketAttachmentMaxBytes <= 0 {
		l.TicketAttachmentMaxBytes = DefaultTicketAttachmentMaxBytes
	}
	if l.CommentAttachmentMaxBytes <= 0 {
		l.CommentAttachmentMaxBytes = DefaultCommentAttachmentMaxBytes
	}
	return l
}

// Upload is one file received from the client.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// buildAttachments validates uploads against maxBytes and turns them into
// attachment records. Nothing is stored if any file fails validation.
func buildAttachments(files []Upload, maxBytes int64, now time.Time) ([]model.Attachment, error) {
	if len(files) == 0 {
		return nil, errs.Validation("no files uploaded")
	}
	out := make([]model.Attachment, 0, len(files))
	for _, f := range files {
		name := cleanFilename(f.Filename)
		size := int64(len(f.Data))
		if size == 0 {
			return nil, errs.Validation("file %q is empty", name)
		}
		if size > maxBytes {
			return nil, errs.Validation("file %q exceeds the %d MB limit", name, maxBytes>>20)
		}
		out = append(out, model.Attachment{
			ID:          uuid.NewString(),
			Filename:    name,
			ContentType: contentType(f),
			SizeBytes:   size,
			Payload:     f.Data,
			UploadedAt:  now,
		})
	}
	return out, nil
}

func cleanFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "file"
	}
	if len(name) > maxFilenameLen {
		name = name[len(name)-maxFilenameLen:]
	}
	return name
}

// contentType trusts the client header unless it is missing or generic, in
// which case the payload is sniffed.
func contentType(f Upload) string {
	ct := strings.TrimSpace(f.ContentType)
	if ct == "" || ct == "application/octet-stream" {
		return mimetype.Detect(f.Data).String()
	}
	return ct
}

// AddAttachments stores files on the ticket and returns the ticket with its
// metadata refreshed plus the new attachments, both without payloads.
func (s *TicketService) AddAttachments(ctx context.Context, p model.Principal, id string, files []Upload) (*model.Ticket, []model.Attachment, error) {
	atts, err := buildAttachments(files, s.limits.TicketAttachmentMaxBytes, s.now())
	if err != nil {
		return nil, nil, err
	}
	var out *model.Ticket
	err = s.store.InTx(ctx, func(tx Store) error {
		t, err := s.mutate(ctx, tx, p, id, authz.ActionAddAttachment, func(*model.Ticket) error { return nil })
		if err != nil {
			return err
		}
		if err := tx.AddTicketAttachments(ctx, id, atts); err != nil {
			return s.storeErr("add attachments", err)
		}
		out = t
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	for i := range atts {
		atts[i].Payload = nil
	}
	out.Attachments = append(out.Attachments, atts...)
	return out, atts, nil
}

func (s *TicketService) DeleteAttachment(ctx context.Context, p model.Principal, id, attachmentID string) (*model.Ticket, error) {
	var out *model.Ticket
	err := s.store.InTx(ctx, func(tx Store) error {
		t, err := s.mutate(ctx, tx, p, id, authz.ActionDeleteAttachment, func(t *model.Ticket) error {
			for _, a := range t.Attachments {
				if a.ID == attachmentID {
					return nil
				}
			}
			return errs.NotFound("attachment not found")
		})
		if err != nil {
			return err
		}
		if err := tx.DeleteTicketAttachment(ctx, id, attachmentID); err != nil {
			if errors.Is(err, errs.ErrNotFound) {
				return errs.NotFound("attachment not found")
			}
			return s.storeErr("delete attachment", err)
		}
		kept := t.Attachments[:0]
		for _, a := range t.Attachments {
			if a.ID != attachmentID {
				kept = append(kept, a)
			}
		}
		t.Attachments = kept
		out = t
		return nil
	})
	return out, err
}

// FetchAttachment returns one attachment including its payload.
func (s *TicketService) FetchAttachment(ctx context.Context, p model.Principal, id, attachmentID string) (*model.Attachment, error) {
	if _, err := s.load(ctx, s.store, p, id); err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(attachmentID); err != nil {
		return nil, errs.NotFound("attachment not found")
	}
	a, err := s.store.GetTicketAttachment(ctx, id, attachmentID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, errs.NotFound("attachment not found")
		}
		return nil, s.storeErr("get attachment", err)
	}
	return a, nil
}
