package mongostore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/psds-microservice/ticket-tracker/internal/errs"
	"github.com/psds-microservice/ticket-tracker/internal/model"
	"github.com/psds-microservice/ticket-tracker/internal/service"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("skipping integration test: TEST_INTEGRATION is not set")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "docker.io/mongo:7",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForLog("Waiting for connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("start mongo container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "27017")
	if err != nil {
		t.Fatalf("container port: %v", err)
	}
	client, err := Connect(ctx, fmt.Sprintf("mongodb://%s:%s", host, port.Port()))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })

	s := New(client.Database("tickets_test"))
	if err := s.EnsureIndexes(ctx); err != nil {
		t.Fatalf("EnsureIndexes: %v", err)
	}
	return s
}

func seed(t *testing.T, s *Store) *model.Ticket {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Millisecond)
	tk := &model.Ticket{
		ID:             uuid.NewString(),
		ProjectID:      "p1",
		OrganizationID: "org-a",
		Title:          "Logo v2",
		Status:         model.TicketStatusOpen,
		CreatedBy:      "m",
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.CreateTicket(context.Background(), tk); err != nil {
		t.Fatalf("CreateTicket: %v", err)
	}
	return tk
}

func TestUpdateTicket_KeepsAttachments(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	tk := seed(t, s)
	att := model.Attachment{ID: uuid.NewString(), Filename: "a.txt", ContentType: "text/plain", SizeBytes: 3, Payload: []byte("abc"), UploadedAt: time.Now().UTC()}
	if err := s.AddTicketAttachments(ctx, tk.ID, []model.Attachment{att}); err != nil {
		t.Fatalf("AddTicketAttachments: %v", err)
	}

	got, err := s.UpdateTicket(ctx, tk.ID, func(t *model.Ticket) error {
		t.Todos = append(t.Todos, model.Todo{ID: uuid.NewString(), Text: "x"})
		return nil
	})
	if err != nil {
		t.Fatalf("UpdateTicket: %v", err)
	}
	if len(got.Attachments) != 1 || got.Attachments[0].Payload != nil {
		t.Fatalf("attachments = %+v", got.Attachments)
	}
	full, err := s.GetTicketAttachment(ctx, tk.ID, att.ID)
	if err != nil {
		t.Fatalf("GetTicketAttachment: %v", err)
	}
	if string(full.Payload) != "abc" {
		t.Errorf("payload = %q", full.Payload)
	}
}

func TestUpdateTicket_StaleRevisionConflicts(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	tk := seed(t, s)

	_, err := s.UpdateTicket(ctx, tk.ID, func(t *model.Ticket) error {
		// A second writer commits while the first is still mutating.
		if _, err := s.UpdateTicket(ctx, tk.ID, func(t *model.Ticket) error {
			t.Status = model.TicketStatusDone
			return nil
		}); err != nil {
			return err
		}
		t.Title = "stale"
		return nil
	})
	if !errors.Is(err, errs.ErrConflict) {
		t.Fatalf("err = %v, want conflict", err)
	}
	got, _ := s.GetTicket(ctx, tk.ID)
	if got.Title != tk.Title || got.Status != model.TicketStatusDone {
		t.Errorf("ticket = %+v", got)
	}
}

func TestReviewLog(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	tk := seed(t, s)

	r, err := s.EnsureReview(ctx, tk.ID)
	if err != nil {
		t.Fatalf("EnsureReview: %v", err)
	}
	if len(r.Comments) != 0 {
		t.Fatalf("comments = %d", len(r.Comments))
	}

	var last *model.Comment
	for i := 0; i < 3; i++ {
		c := &model.Comment{ID: uuid.NewString(), Text: fmt.Sprintf("c%d", i), AuthorID: "u", CreatedAt: time.Now().UTC()}
		if i == 2 {
			c.Attachments = []model.Attachment{{ID: uuid.NewString(), Filename: "f", ContentType: "text/plain", SizeBytes: 1, Payload: []byte("f"), UploadedAt: time.Now().UTC()}}
		}
		if _, err := s.AppendComment(ctx, tk.ID, c); err != nil {
			t.Fatalf("AppendComment: %v", err)
		}
		last = c
	}
	if last.Position != 2 {
		t.Errorf("position = %d", last.Position)
	}

	r, err = s.EnsureReview(ctx, tk.ID)
	if err != nil {
		t.Fatalf("EnsureReview: %v", err)
	}
	for i, c := range r.Comments {
		if c.Text != fmt.Sprintf("c%d", i) {
			t.Errorf("comment %d = %q", i, c.Text)
		}
		for _, a := range c.Attachments {
			if a.Payload != nil {
				t.Errorf("payload leaked in review read")
			}
		}
	}
	a, err := s.GetCommentAttachment(ctx, tk.ID, last.ID, last.Attachments[0].ID)
	if err != nil {
		t.Fatalf("GetCommentAttachment: %v", err)
	}
	if string(a.Payload) != "f" {
		t.Errorf("payload = %q", a.Payload)
	}

	if err := s.DeleteTicket(ctx, tk.ID); err != nil {
		t.Fatalf("DeleteTicket: %v", err)
	}
	if _, err := s.GetCommentAttachment(ctx, tk.ID, last.ID, last.Attachments[0].ID); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("err = %v", err)
	}
}

func TestListTickets(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		seed(t, s)
	}
	items, total, err := s.ListTickets(ctx, service.TicketFilter{OrganizationID: "org-a", Limit: 2})
	if err != nil {
		t.Fatalf("ListTickets: %v", err)
	}
	if total != 3 || len(items) != 2 {
		t.Errorf("ListTickets = %d/%d", len(items), total)
	}
	items, total, err = s.ListTickets(ctx, service.TicketFilter{OrganizationID: "org-b"})
	if err != nil || total != 0 || len(items) != 0 {
		t.Errorf("other org = %d/%d, %v", len(items), total, err)
	}
}
