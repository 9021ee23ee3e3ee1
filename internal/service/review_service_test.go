package service_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/psds-microservice/ticket-tracker/internal/errs"
	"github.com/psds-microservice/ticket-tracker/internal/lifecycle"
	"github.com/psds-microservice/ticket-tracker/internal/model"
	"github.com/psds-microservice/ticket-tracker/internal/service"
)

func TestGetLog_CreatesEmptyReview(t *testing.T) {
	f := newFixture(t, service.Config{})
	tk := f.ticket(t, "")
	ctx := context.Background()

	r, err := f.reviews.GetLog(ctx, manager, tk.ID)
	if err != nil {
		t.Fatalf("GetLog: %v", err)
	}
	if r.TicketID != tk.ID || r.Comments == nil || len(r.Comments) != 0 {
		t.Fatalf("review = %+v", r)
	}
	again, err := f.reviews.GetLog(ctx, manager, tk.ID)
	if err != nil {
		t.Fatalf("GetLog: %v", err)
	}
	if again.ID != r.ID {
		t.Errorf("second GetLog created a new review: %s != %s", again.ID, r.ID)
	}

	_, err = f.reviews.GetLog(ctx, outsider, tk.ID)
	assertKind(t, err, errs.ErrNotFound)
}

func TestAppendComment_EmptyTextRejected(t *testing.T) {
	f := newFixture(t, service.Config{})
	tk := f.ticket(t, designer.ID)
	ctx := context.Background()

	for _, text := range []string{"", "   \n\t", "<b></b>"} {
		_, err := f.reviews.AppendComment(ctx, designer, tk.ID, service.CommentInput{Text: text})
		assertKind(t, err, errs.ErrValidation)
	}
	comments, err := f.reviews.ListComments(ctx, designer, tk.ID)
	if err != nil {
		t.Fatalf("ListComments: %v", err)
	}
	if len(comments) != 0 {
		t.Fatalf("comments = %d, want 0", len(comments))
	}
}

func TestAppendComment_OrderAndPayloads(t *testing.T) {
	f := newFixture(t, service.Config{})
	tk := f.ticket(t, designer.ID)
	ctx := context.Background()
	png := append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 32)...)

	texts := []string{"first draft", "needs more contrast", "updated"}
	var ids []string
	for i, text := range texts {
		in := service.CommentInput{Text: text}
		if i == 1 {
			in.Files = []service.Upload{{Filename: "mock.png", Data: png}}
		}
		c, err := f.reviews.AppendComment(ctx, manager, tk.ID, in)
		if err != nil {
			t.Fatalf("AppendComment %d: %v", i, err)
		}
		if c.AuthorID != manager.ID {
			t.Errorf("author = %s", c.AuthorID)
		}
		for _, a := range c.Attachments {
			if a.Payload != nil {
				t.Errorf("returned comment carries payload")
			}
		}
		ids = append(ids, c.ID)
	}

	comments, err := f.reviews.ListComments(ctx, designer, tk.ID)
	if err != nil {
		t.Fatalf("ListComments: %v", err)
	}
	if len(comments) != len(texts) {
		t.Fatalf("comments = %d, want %d", len(comments), len(texts))
	}
	for i, c := range comments {
		if c.ID != ids[i] || c.Text != texts[i] {
			t.Errorf("comment %d = %s %q, want %s %q", i, c.ID, c.Text, ids[i], texts[i])
		}
		for _, a := range c.Attachments {
			if a.Payload != nil {
				t.Errorf("comment %d attachment carries payload", i)
			}
		}
	}

	att := comments[1].Attachments
	if len(att) != 1 || att[0].ContentType != "image/png" || att[0].SizeBytes != int64(len(png)) {
		t.Fatalf("attachment metadata = %+v", att)
	}
	got, err := f.reviews.FetchAttachment(ctx, designer, tk.ID, comments[1].ID, att[0].ID)
	if err != nil {
		t.Fatalf("FetchAttachment: %v", err)
	}
	if !bytes.Equal(got.Payload, png) {
		t.Errorf("payload mismatch")
	}
	_, err = f.reviews.FetchAttachment(ctx, designer, tk.ID, comments[0].ID, att[0].ID)
	assertKind(t, err, errs.ErrNotFound)
}

func TestAppendComment_SanitizesMarkup(t *testing.T) {
	f := newFixture(t, service.Config{})
	tk := f.ticket(t, "")
	c, err := f.reviews.AppendComment(context.Background(), admin, tk.ID, service.CommentInput{Text: `ok <script>alert(1)</script>& "go"`})
	if err != nil {
		t.Fatalf("AppendComment: %v", err)
	}
	if c.Text != `ok & "go"` {
		t.Errorf("text = %q", c.Text)
	}
}

func TestAppendComment_EncodedMarkupStaysInert(t *testing.T) {
	f := newFixture(t, service.Config{})
	tk := f.ticket(t, "")
	ctx := context.Background()

	c, err := f.reviews.AppendComment(ctx, admin, tk.ID, service.CommentInput{
		Text: "see &lt;script&gt;alert(1)&lt;/script&gt; &lt;img src=x onerror=alert(2)&gt;done",
	})
	if err != nil {
		t.Fatalf("AppendComment: %v", err)
	}
	if strings.ContainsAny(c.Text, "<>") || strings.Contains(c.Text, "onerror") || strings.Contains(c.Text, "alert") {
		t.Fatalf("text = %q, want markup removed", c.Text)
	}
	if !strings.HasPrefix(c.Text, "see") || !strings.HasSuffix(c.Text, "done") {
		t.Errorf("text = %q", c.Text)
	}

	_, err = f.reviews.AppendComment(ctx, admin, tk.ID, service.CommentInput{
		Text: "&lt;script&gt;alert(1)&lt;/script&gt; &lt;img src=x onerror=alert(2)&gt;",
	})
	assertKind(t, err, errs.ErrValidation)

	c, err = f.reviews.AppendComment(ctx, admin, tk.ID, service.CommentInput{Text: "a &amp;lt;b&amp;gt; c"})
	if err != nil {
		t.Fatalf("AppendComment: %v", err)
	}
	if strings.ContainsAny(c.Text, "<>") {
		t.Errorf("double-encoded text = %q", c.Text)
	}
}

func TestAppendComment_Authorization(t *testing.T) {
	f := newFixture(t, service.Config{})
	tk := f.ticket(t, designer.ID)
	ctx := context.Background()

	_, err := f.reviews.AppendComment(ctx, stranger, tk.ID, service.CommentInput{Text: "hi"})
	assertKind(t, err, errs.ErrForbidden)
	_, err = f.reviews.AppendComment(ctx, outsider, tk.ID, service.CommentInput{Text: "hi"})
	assertKind(t, err, errs.ErrNotFound)
	if _, err := f.reviews.AppendComment(ctx, designer, tk.ID, service.CommentInput{Text: "hi"}); err != nil {
		t.Fatalf("assigned designer: %v", err)
	}
}

func TestAppendComment_AnnotationDoesNotMoveTicket(t *testing.T) {
	f := newFixture(t, service.Config{})
	tk := f.ticket(t, designer.ID)
	ctx := context.Background()

	c, err := f.reviews.AppendComment(ctx, designer, tk.ID, service.CommentInput{
		Text:         "ready when you are",
		StatusChange: &service.StatusChangeInput{From: "InProgress", To: "Review"},
	})
	if err != nil {
		t.Fatalf("AppendComment: %v", err)
	}
	if !c.IsStatusChange || c.StatusChange.From != model.TicketStatusInProgress || c.StatusChange.To != model.TicketStatusReview {
		t.Errorf("annotation = %+v", c.StatusChange)
	}
	got, err := f.tickets.Get(ctx, designer, tk.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != model.TicketStatusOpen {
		t.Errorf("status moved to %s", got.Status)
	}

	_, err = f.reviews.AppendComment(ctx, designer, tk.ID, service.CommentInput{
		Text:         "x",
		StatusChange: &service.StatusChangeInput{From: "Open", To: "Shipped"},
	})
	assertKind(t, err, errs.ErrValidation)
}

func TestCommentAndTransition(t *testing.T) {
	f := newFixture(t, service.Config{})
	tk := f.ticket(t, designer.ID)
	ctx := context.Background()

	got, c, err := f.reviews.CommentAndTransition(ctx, designer, tk.ID, service.CommentInput{Text: "ready for review"}, "Review")
	if err != nil {
		t.Fatalf("CommentAndTransition: %v", err)
	}
	if got.Status != model.TicketStatusReview {
		t.Errorf("status = %s", got.Status)
	}
	if !c.IsStatusChange || c.StatusChange.From != model.TicketStatusOpen || c.StatusChange.To != model.TicketStatusReview {
		t.Errorf("annotation = %+v", c.StatusChange)
	}
	comments, err := f.reviews.ListComments(ctx, designer, tk.ID)
	if err != nil {
		t.Fatalf("ListComments: %v", err)
	}
	if len(comments) != 1 || comments[0].ID != c.ID {
		t.Fatalf("comments = %+v", comments)
	}
}

func TestCommentAndTransition_RejectedTransitionLogsNothing(t *testing.T) {
	f := newFixture(t, service.Config{Transitions: lifecycle.Linear()})
	tk := f.ticket(t, designer.ID)
	ctx := context.Background()

	_, _, err := f.reviews.CommentAndTransition(ctx, designer, tk.ID, service.CommentInput{Text: "ship it"}, "Done")
	assertKind(t, err, errs.ErrValidation)

	_, _, err = f.reviews.CommentAndTransition(ctx, stranger, tk.ID, service.CommentInput{Text: "ship it"}, "InProgress")
	assertKind(t, err, errs.ErrForbidden)

	comments, err := f.reviews.ListComments(ctx, designer, tk.ID)
	if err != nil {
		t.Fatalf("ListComments: %v", err)
	}
	if len(comments) != 0 {
		t.Errorf("comments = %d, want 0", len(comments))
	}
	got, err := f.tickets.Get(ctx, designer, tk.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != model.TicketStatusOpen {
		t.Errorf("status = %s, want Open", got.Status)
	}
}
