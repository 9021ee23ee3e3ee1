// Package pgstore is the PostgreSQL service.Store built on gorm.
package pgstore

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/psds-microservice/ticket-tracker/internal/errs"
	"github.com/psds-microservice/ticket-tracker/internal/model"
	"github.com/psds-microservice/ticket-tracker/internal/service"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// attachmentMeta is every attachment column except the payload.
var attachmentMeta = []string{"id", "ticket_id", "comment_id", "filename", "content_type", "size_bytes", "uploaded_at"}

type Store struct {
	db *gorm.DB
}

var _ service.Store = (*Store)(nil)

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InTx(ctx context.Context, fn func(service.Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

func metaOnly(db *gorm.DB) *gorm.DB {
	return db.Select(attachmentMeta).Order("uploaded_at ASC, id ASC")
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errs.ErrNotFound
	}
	return err
}

// --- projects ---

func (s *Store) CreateProject(ctx context.Context, p *model.Project) error {
	return s.db.WithContext(ctx).Create(p).Error
}

func (s *Store) GetProject(ctx context.Context, id string) (*model.Project, error) {
	var p model.Project
	if err := s.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (s *Store) ListProjects(ctx context.Context, organizationID string) ([]model.Project, error) {
	items := []model.Project{}
	err := s.db.WithContext(ctx).
		Where("organization_id = ?", organizationID).
		Order("updated_at DESC").
		Find(&items).Error
	return items, err
}

// --- tickets ---

func (s *Store) CreateTicket(ctx context.Context, t *model.Ticket) error {
	return s.db.WithContext(ctx).Omit(clause.Associations).Create(t).Error
}

func (s *Store) GetTicket(ctx context.Context, id string) (*model.Ticket, error) {
	var t model.Ticket
	err := s.db.WithContext(ctx).
		Preload("Attachments", metaOnly).
		First(&t, "id = ?", id).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

func (s *Store) ListTickets(ctx context.Context, f service.TicketFilter) ([]model.Ticket, int64, error) {
	items := []model.Ticket{}
	var total int64
	tx := s.db.WithContext(ctx).Model(&model.Ticket{})
	if f.OrganizationID != "" {
		tx = tx.Where("organization_id = ?", f.OrganizationID)
	}
	if f.ProjectID != "" {
		tx = tx.Where("project_id = ?", f.ProjectID)
	}
	if f.Status != "" {
		tx = tx.Where("status = ?", f.Status)
	}
	if f.AssigneeID != "" {
		tx = tx.Where("assignee_id = ?", f.AssigneeID)
	}
	// Count total before pagination
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if f.Limit > 0 {
		tx = tx.Limit(f.Limit)
	}
	if f.Offset > 0 {
		tx = tx.Offset(f.Offset)
	}
	if err := tx.Preload("Attachments", metaOnly).Order("created_at DESC").Find(&items).Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// UpdateTicket locks the row with SELECT ... FOR UPDATE so concurrent
// read-modify-write cycles on the same ticket are serialized.
func (s *Store) UpdateTicket(ctx context.Context, id string, mutate func(*model.Ticket) error) (*model.Ticket, error) {
	var out model.Ticket
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&out, "id = ?", id).Error; err != nil {
			return notFound(err)
		}
		out.Attachments = []model.Attachment{}
		if err := metaOnly(tx.Where("ticket_id = ?", id)).Find(&out.Attachments).Error; err != nil {
			return err
		}
		if err := mutate(&out); err != nil {
			return err
		}
		return tx.Model(&model.Ticket{}).Where("id = ?", id).Updates(map[string]interface{}{
			"title":                out.Title,
			"description":          out.Description,
			"status":               out.Status,
			"assignee_id":          out.AssigneeID,
			"todos":                out.Todos,
			"express_project_link": out.ExpressProjectLink,
			"updated_at":           out.UpdatedAt,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Store) DeleteTicket(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		reviews := tx.Model(&model.Review{}).Select("id").Where("ticket_id = ?", id)
		comments := tx.Model(&model.Comment{}).Select("id").Where("review_id IN (?)", reviews)
		if err := tx.Where("comment_id IN (?)", comments).Delete(&model.Attachment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("review_id IN (?)", reviews).Delete(&model.Comment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("ticket_id = ?", id).Delete(&model.Review{}).Error; err != nil {
			return err
		}
		if err := tx.Where("ticket_id = ?", id).Delete(&model.Attachment{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&model.Ticket{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errs.ErrNotFound
		}
		return nil
	})
}

func (s *Store) AddTicketAttachments(ctx context.Context, ticketID string, atts []model.Attachment) error {
	if len(atts) == 0 {
		return nil
	}
	var n int64
	db := s.db.WithContext(ctx)
	if err := db.Model(&model.Ticket{}).Where("id = ?", ticketID).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return errs.ErrNotFound
	}
	rows := make([]model.Attachment, len(atts))
	for i, a := range atts {
		a.TicketID = &ticketID
		a.CommentID = nil
		rows[i] = a
	}
	return db.Create(&rows).Error
}

func (s *Store) DeleteTicketAttachment(ctx context.Context, ticketID, attachmentID string) error {
	res := s.db.WithContext(ctx).Where("id = ? AND ticket_id = ?", attachmentID, ticketID).Delete(&model.Attachment{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (s *Store) GetTicketAttachment(ctx context.Context, ticketID, attachmentID string) (*model.Attachment, error) {
	var a model.Attachment
	if err := s.db.WithContext(ctx).First(&a, "id = ? AND ticket_id = ?", attachmentID, ticketID).Error; err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

// --- reviews ---

func (s *Store) EnsureReview(ctx context.Context, ticketID string) (*model.Review, error) {
	db := s.db.WithContext(ctx)
	if err := ensureReview(db, ticketID); err != nil {
		return nil, err
	}
	return loadReview(db, ticketID)
}

// AppendComment locks the review row so positions are assigned without gaps
// or duplicates under concurrent writers.
func (s *Store) AppendComment(ctx context.Context, ticketID string, c *model.Comment) (*model.Review, error) {
	var out *model.Review
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureReview(tx, ticketID); err != nil {
			return err
		}
		var r model.Review
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&r, "ticket_id = ?", ticketID).Error; err != nil {
			return notFound(err)
		}
		var next int
		if err := tx.Model(&model.Comment{}).
			Select("COALESCE(MAX(position), -1) + 1").
			Where("review_id = ?", r.ID).
			Scan(&next).Error; err != nil {
			return err
		}
		c.ReviewID = r.ID
		c.Position = next
		if err := tx.Omit(clause.Associations).Create(c).Error; err != nil {
			return err
		}
		if len(c.Attachments) > 0 {
			for i := range c.Attachments {
				c.Attachments[i].CommentID = &c.ID
				c.Attachments[i].TicketID = nil
			}
			if err := tx.Create(&c.Attachments).Error; err != nil {
				return err
			}
		}
		if err := tx.Model(&r).Update("updated_at", c.CreatedAt).Error; err != nil {
			return err
		}
		loaded, err := loadReview(tx, ticketID)
		if err != nil {
			return err
		}
		out = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) GetCommentAttachment(ctx context.Context, ticketID, commentID, attachmentID string) (*model.Attachment, error) {
	var a model.Attachment
	err := s.db.WithContext(ctx).
		Joins("JOIN review_comments ON review_comments.id = attachments.comment_id").
		Joins("JOIN reviews ON reviews.id = review_comments.review_id").
		Where("attachments.id = ? AND review_comments.id = ? AND reviews.ticket_id = ?", attachmentID, commentID, ticketID).
		First(&a).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

// ensureReview inserts an empty review for ticketID unless one exists. The
// unique index on ticket_id makes concurrent first accesses converge.
func ensureReview(db *gorm.DB, ticketID string) error {
	var n int64
	if err := db.Model(&model.Review{}).Where("ticket_id = ?", ticketID).Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	r := model.Review{ID: uuid.NewString(), TicketID: ticketID}
	return db.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "ticket_id"}}, DoNothing: true}).
		Omit(clause.Associations).
		Create(&r).Error
}

func loadReview(db *gorm.DB, ticketID string) (*model.Review, error) {
	var r model.Review
	err := db.
		Preload("Comments", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("Comments.Attachments", metaOnly).
		First(&r, "ticket_id = ?", ticketID).Error
	if err != nil {
		return nil, notFound(err)
	}
	if r.Comments == nil {
		r.Comments = []model.Comment{}
	}
	return &r, nil
}
