package searchindex

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/psds-microservice/ticket-tracker/internal/model"
)

func TestIndexTicket(t *testing.T) {
	var got IndexTicketPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/search/index/ticket" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	desc := "bolder"
	tk := &model.Ticket{ID: "t1", OrganizationID: "org-a", ProjectID: "p1", Title: "Logo", Description: &desc,
		Status: model.TicketStatusOpen, Todos: []model.Todo{{Text: "sketch"}}}
	if err := NewClient(srv.URL, nil).IndexTicket(context.Background(), tk); err != nil {
		t.Fatalf("IndexTicket: %v", err)
	}
	if got.TicketID != "t1" || got.Description != "bolder" || len(got.Todos) != 1 || got.Todos[0] != "sketch" {
		t.Errorf("payload = %+v", got)
	}
}

func TestRemoveTicketAndErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete && r.URL.Path == "/search/index/ticket/t1" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	if err := c.RemoveTicket(context.Background(), "t1"); err != nil {
		t.Errorf("RemoveTicket: %v", err)
	}
	if err := c.IndexTicket(context.Background(), &model.Ticket{ID: "t2"}); err == nil {
		t.Error("expected error on 502")
	}
}

func TestDisabledClientIsNoop(t *testing.T) {
	c := NewClient("", nil)
	if err := c.IndexTicket(context.Background(), &model.Ticket{ID: "t"}); err != nil {
		t.Errorf("IndexTicket: %v", err)
	}
	c.IndexTicketAsync(&model.Ticket{ID: "t"})
	c.RemoveTicketAsync("t")
}
