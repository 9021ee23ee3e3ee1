package model

import (
	"time"

	"gorm.io/datatypes"
)

type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "Open"
	TicketStatusInProgress TicketStatus = "InProgress"
	TicketStatusReview     TicketStatus = "Review"
	TicketStatusDone       TicketStatus = "Done"
)

// TicketStatuses lists every status in board order.
var TicketStatuses = []TicketStatus{
	TicketStatusOpen,
	TicketStatusInProgress,
	TicketStatusReview,
	TicketStatusDone,
}

// Valid reports whether s is one of the known ticket statuses.
func (s TicketStatus) Valid() bool {
	for _, v := range TicketStatuses {
		if s == v {
			return true
		}
	}
	return false
}

type Project struct {
	ID             string    `gorm:"type:varchar(64);primaryKey" bson:"_id" json:"id"`
	OrganizationID string    `gorm:"type:varchar(64);index;not null" bson:"organization_id" json:"organization_id"`
	Name           string    `gorm:"type:varchar(255);not null" bson:"name" json:"name"`
	Description    string    `gorm:"type:text" bson:"description" json:"description,omitempty"`
	CreatedBy      string    `gorm:"type:varchar(64);not null" bson:"created_by" json:"created_by"`
	Status         string    `gorm:"type:varchar(32);not null" bson:"status" json:"status"`
	CreatedAt      time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time `bson:"updated_at" json:"updated_at"`
}

// Todo is one checklist line. Clients address todos by position; ID is
// stable across reorders and used by stores only.
type Todo struct {
	ID          string `bson:"id" json:"id"`
	Text        string `bson:"text" json:"text"`
	IsCompleted bool   `bson:"is_completed" json:"is_completed"`
}

// Attachment belongs to either a ticket or a review comment. Payload is never
// serialized to JSON; it is only served through the explicit fetch endpoints.
type Attachment struct {
	ID          string    `gorm:"type:uuid;primaryKey" bson:"id" json:"id"`
	TicketID    *string   `gorm:"type:uuid;index" bson:"-" json:"-"`
	CommentID   *string   `gorm:"type:uuid;index" bson:"-" json:"-"`
	Filename    string    `gorm:"type:varchar(255);not null" bson:"filename" json:"filename"`
	ContentType string    `gorm:"type:varchar(255);not null" bson:"content_type" json:"content_type"`
	SizeBytes   int64     `gorm:"not null" bson:"size_bytes" json:"size_bytes"`
	Payload     []byte    `gorm:"type:bytea" bson:"payload,omitempty" json:"-"`
	UploadedAt  time.Time `gorm:"not null" bson:"uploaded_at" json:"uploaded_at"`
}

type Ticket struct {
	ID                 string                    `gorm:"type:uuid;primaryKey" bson:"_id" json:"id"`
	ProjectID          string                    `gorm:"type:varchar(64);index;not null" bson:"project_id" json:"project_id"`
	OrganizationID     string                    `gorm:"type:varchar(64);index;not null" bson:"organization_id" json:"organization_id"`
	Title              string                    `gorm:"type:varchar(255);not null" bson:"title" json:"title"`
	Description        *string                   `gorm:"type:text" bson:"description,omitempty" json:"description,omitempty"`
	Status             TicketStatus              `gorm:"type:varchar(32);index;not null" bson:"status" json:"status"`
	AssigneeID         *string                   `gorm:"type:varchar(64);index" bson:"assignee_id,omitempty" json:"assignee_id,omitempty"`
	CreatedBy          string                    `gorm:"type:varchar(64);not null" bson:"created_by" json:"created_by"`
	Todos              datatypes.JSONSlice[Todo] `gorm:"type:jsonb;not null" bson:"todos" json:"todos"`
	Attachments        []Attachment              `gorm:"foreignKey:TicketID" bson:"attachments" json:"attachments"`
	ExpressProjectLink *string                   `gorm:"type:text" bson:"express_project_link,omitempty" json:"express_project_link,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// IsAssignee reports whether userID is the ticket's assignee.
func (t *Ticket) IsAssignee(userID string) bool {
	return t.AssigneeID != nil && userID != "" && *t.AssigneeID == userID
}

// StatusChange annotates a comment that narrates a board move.
type StatusChange struct {
	From TicketStatus `bson:"from" json:"from"`
	To   TicketStatus `bson:"to" json:"to"`
}

type Comment struct {
	ID             string        `gorm:"type:uuid;primaryKey" bson:"id" json:"id"`
	ReviewID       string        `gorm:"type:uuid;uniqueIndex:idx_comment_position;not null" bson:"-" json:"-"`
	Position       int           `gorm:"uniqueIndex:idx_comment_position;not null" bson:"-" json:"-"`
	Text           string        `gorm:"type:text;not null" bson:"text" json:"text"`
	AuthorID       string        `gorm:"type:varchar(64);not null" bson:"author_id" json:"author_id"`
	Attachments    []Attachment  `gorm:"foreignKey:CommentID" bson:"attachments" json:"attachments"`
	IsStatusChange bool          `gorm:"not null;default:false" bson:"is_status_change" json:"is_status_change"`
	StatusChange   *StatusChange `gorm:"type:jsonb;serializer:json" bson:"status_change,omitempty" json:"status_change,omitempty"`
	CreatedAt      time.Time     `bson:"created_at" json:"created_at"`
}

func (Comment) TableName() string { return "review_comments" }

type Review struct {
	ID        string    `gorm:"type:uuid;primaryKey" bson:"_id" json:"id"`
	TicketID  string    `gorm:"type:uuid;uniqueIndex;not null" bson:"ticket_id" json:"ticket_id"`
	Comments  []Comment `gorm:"foreignKey:ReviewID" bson:"comments" json:"comments"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// StripPayloads drops attachment bytes so the ticket is safe for list views.
func (t *Ticket) StripPayloads() {
	for i := range t.Attachments {
		t.Attachments[i].Payload = nil
	}
}

// StripPayloads drops attachment bytes from every comment.
func (r *Review) StripPayloads() {
	for i := range r.Comments {
		for j := range r.Comments[i].Attachments {
			r.Comments[i].Attachments[j].Payload = nil
		}
	}
}
