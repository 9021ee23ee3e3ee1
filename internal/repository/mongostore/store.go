// Package mongostore is a service.Store backed by MongoDB. Attachments and
// comments are embedded in their ticket and review documents.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/psds-microservice/ticket-tracker/internal/errs"
	"github.com/psds-microservice/ticket-tracker/internal/model"
	"github.com/psds-microservice/ticket-tracker/internal/service"
)

// ticketDoc carries the optimistic revision next to the ticket fields.
type ticketDoc struct {
	model.Ticket `bson:",inline"`
	Rev          int64 `bson:"rev"`
}

type Store struct {
	projects *mongo.Collection
	tickets  *mongo.Collection
	reviews  *mongo.Collection
}

var _ service.Store = (*Store)(nil)

var (
	ticketMeta = bson.M{"attachments.payload": 0}
	reviewMeta = bson.M{"comments.attachments.payload": 0}
)

func New(db *mongo.Database) *Store {
	return &Store{
		projects: db.Collection("projects"),
		tickets:  db.Collection("tickets"),
		reviews:  db.Collection("reviews"),
	}
}

// Connect dials uri and pings the server.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return client, nil
}

// EnsureIndexes creates the indexes the store relies on. The unique index on
// reviews.ticket_id makes concurrent first accesses converge on one review.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	if _, err := s.reviews.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "ticket_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("reviews index: %w", err)
	}
	if _, err := s.tickets.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "organization_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "assignee_id", Value: 1}}},
	}); err != nil {
		return fmt.Errorf("tickets index: %w", err)
	}
	if _, err := s.projects.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "organization_id", Value: 1}},
	}); err != nil {
		return fmt.Errorf("projects index: %w", err)
	}
	return nil
}

// InTx runs fn directly: writes that span the ticket and review documents are
// not atomic on this backend.
func (s *Store) InTx(_ context.Context, fn func(service.Store) error) error {
	return fn(s)
}

func notFound(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return errs.ErrNotFound
	}
	return err
}

// --- projects ---

func (s *Store) CreateProject(ctx context.Context, p *model.Project) error {
	_, err := s.projects.InsertOne(ctx, p)
	return err
}

func (s *Store) GetProject(ctx context.Context, id string) (*model.Project, error) {
	var p model.Project
	if err := s.projects.FindOne(ctx, bson.M{"_id": id}).Decode(&p); err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (s *Store) ListProjects(ctx context.Context, organizationID string) ([]model.Project, error) {
	cur, err := s.projects.Find(ctx, bson.M{"organization_id": organizationID},
		options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []model.Project{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// --- tickets ---

func (s *Store) CreateTicket(ctx context.Context, t *model.Ticket) error {
	doc := ticketDoc{Ticket: *t}
	if doc.Todos == nil {
		doc.Todos = []model.Todo{}
	}
	if doc.Attachments == nil {
		doc.Attachments = []model.Attachment{}
	}
	_, err := s.tickets.InsertOne(ctx, doc)
	return err
}

func (s *Store) getTicketDoc(ctx context.Context, id string) (*ticketDoc, error) {
	var doc ticketDoc
	err := s.tickets.FindOne(ctx, bson.M{"_id": id}, options.FindOne().SetProjection(ticketMeta)).Decode(&doc)
	if err != nil {
		return nil, notFound(err)
	}
	return &doc, nil
}

func (s *Store) GetTicket(ctx context.Context, id string) (*model.Ticket, error) {
	doc, err := s.getTicketDoc(ctx, id)
	if err != nil {
		return nil, err
	}
	return &doc.Ticket, nil
}

func (s *Store) ListTickets(ctx context.Context, f service.TicketFilter) ([]model.Ticket, int64, error) {
	filter := bson.M{}
	if f.OrganizationID != "" {
		filter["organization_id"] = f.OrganizationID
	}
	if f.ProjectID != "" {
		filter["project_id"] = f.ProjectID
	}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	if f.AssigneeID != "" {
		filter["assignee_id"] = f.AssigneeID
	}
	total, err := s.tickets.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetProjection(ticketMeta)
	if f.Limit > 0 {
		opts.SetLimit(int64(f.Limit))
	}
	if f.Offset > 0 {
		opts.SetSkip(int64(f.Offset))
	}
	cur, err := s.tickets.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cur.Close(ctx)
	var docs []ticketDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, 0, err
	}
	out := make([]model.Ticket, len(docs))
	for i := range docs {
		out[i] = docs[i].Ticket
	}
	return out, total, nil
}

// UpdateTicket writes back only if the revision read is still current; a
// concurrent writer in between yields a Conflict.
func (s *Store) UpdateTicket(ctx context.Context, id string, mutate func(*model.Ticket) error) (*model.Ticket, error) {
	doc, err := s.getTicketDoc(ctx, id)
	if err != nil {
		return nil, err
	}
	t := doc.Ticket
	if err := mutate(&t); err != nil {
		return nil, err
	}
	todos := t.Todos
	if todos == nil {
		todos = []model.Todo{}
	}
	res, err := s.tickets.UpdateOne(ctx,
		bson.M{"_id": id, "rev": doc.Rev},
		bson.M{
			"$set": bson.M{
				"title":                t.Title,
				"description":          t.Description,
				"status":               t.Status,
				"assignee_id":          t.AssigneeID,
				"todos":                todos,
				"express_project_link": t.ExpressProjectLink,
				"updated_at":           t.UpdatedAt,
			},
			"$inc": bson.M{"rev": 1},
		})
	if err != nil {
		return nil, err
	}
	if res.MatchedCount == 0 {
		return nil, errs.Conflict("ticket was modified concurrently, retry the request")
	}
	return &t, nil
}

func (s *Store) DeleteTicket(ctx context.Context, id string) error {
	res, err := s.tickets.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return errs.ErrNotFound
	}
	_, err = s.reviews.DeleteOne(ctx, bson.M{"ticket_id": id})
	return err
}

func (s *Store) AddTicketAttachments(ctx context.Context, ticketID string, atts []model.Attachment) error {
	if len(atts) == 0 {
		return nil
	}
	res, err := s.tickets.UpdateOne(ctx, bson.M{"_id": ticketID},
		bson.M{"$push": bson.M{"attachments": bson.M{"$each": atts}}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteTicketAttachment(ctx context.Context, ticketID, attachmentID string) error {
	res, err := s.tickets.UpdateOne(ctx,
		bson.M{"_id": ticketID, "attachments.id": attachmentID},
		bson.M{"$pull": bson.M{"attachments": bson.M{"id": attachmentID}}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (s *Store) GetTicketAttachment(ctx context.Context, ticketID, attachmentID string) (*model.Attachment, error) {
	var doc struct {
		Attachments []model.Attachment `bson:"attachments"`
	}
	err := s.tickets.FindOne(ctx,
		bson.M{"_id": ticketID, "attachments.id": attachmentID},
		options.FindOne().SetProjection(bson.M{"attachments.$": 1}),
	).Decode(&doc)
	if err != nil {
		return nil, notFound(err)
	}
	if len(doc.Attachments) == 0 {
		return nil, errs.ErrNotFound
	}
	a := doc.Attachments[0]
	a.TicketID = &ticketID
	return &a, nil
}

// --- reviews ---

func (s *Store) EnsureReview(ctx context.Context, ticketID string) (*model.Review, error) {
	now := time.Now().UTC()
	return s.upsertReview(ctx, ticketID, bson.M{
		"$setOnInsert": bson.M{
			"_id":        uuid.NewString(),
			"comments":   []model.Comment{},
			"created_at": now,
			"updated_at": now,
		},
	})
}

func (s *Store) AppendComment(ctx context.Context, ticketID string, c *model.Comment) (*model.Review, error) {
	n, err := s.tickets.CountDocuments(ctx, bson.M{"_id": ticketID})
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, errs.ErrNotFound
	}
	if c.Attachments == nil {
		c.Attachments = []model.Attachment{}
	}
	r, err := s.upsertReview(ctx, ticketID, bson.M{
		"$setOnInsert": bson.M{
			"_id":        uuid.NewString(),
			"created_at": c.CreatedAt,
		},
		"$push": bson.M{"comments": c},
		"$set":  bson.M{"updated_at": c.CreatedAt},
	})
	if err != nil {
		return nil, err
	}
	c.ReviewID = r.ID
	c.Position = len(r.Comments) - 1
	for i := range c.Attachments {
		c.Attachments[i].CommentID = &c.ID
	}
	return r, nil
}

func (s *Store) upsertReview(ctx context.Context, ticketID string, update bson.M) (*model.Review, error) {
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After).
		SetProjection(reviewMeta)
	var r model.Review
	err := s.reviews.FindOneAndUpdate(ctx, bson.M{"ticket_id": ticketID}, update, opts).Decode(&r)
	if mongo.IsDuplicateKeyError(err) {
		// Lost the race to create the review; the winner's document exists now.
		err = s.reviews.FindOneAndUpdate(ctx, bson.M{"ticket_id": ticketID}, update, opts).Decode(&r)
	}
	if err != nil {
		return nil, err
	}
	fillComments(&r)
	return &r, nil
}

func (s *Store) GetCommentAttachment(ctx context.Context, ticketID, commentID, attachmentID string) (*model.Attachment, error) {
	var doc struct {
		Comments []model.Comment `bson:"comments"`
	}
	err := s.reviews.FindOne(ctx,
		bson.M{"ticket_id": ticketID, "comments.id": commentID},
		options.FindOne().SetProjection(bson.M{"comments.$": 1}),
	).Decode(&doc)
	if err != nil {
		return nil, notFound(err)
	}
	for _, c := range doc.Comments {
		if c.ID != commentID {
			continue
		}
		for _, a := range c.Attachments {
			if a.ID == attachmentID {
				a.CommentID = &c.ID
				return &a, nil
			}
		}
	}
	return nil, errs.ErrNotFound
}

// fillComments restores the fields that are implied by document structure.
func fillComments(r *model.Review) {
	if r.Comments == nil {
		r.Comments = []model.Comment{}
	}
	for i := range r.Comments {
		c := &r.Comments[i]
		c.ReviewID = r.ID
		c.Position = i
		if c.Attachments == nil {
			c.Attachments = []model.Attachment{}
		}
		for j := range c.Attachments {
			id := c.ID
			c.Attachments[j].CommentID = &id
		}
	}
}
