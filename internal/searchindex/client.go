package searchindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/psds-microservice/ticket-tracker/internal/model"
	"go.uber.org/zap"
)

// Indexer - то, что HTTP-слой использует для синхронизации поиска (для подмены в тестах).
type Indexer interface {
	IndexTicketAsync(t *model.Ticket)
	RemoveTicketAsync(id string)
}

// Client отправляет тикеты в search-service для индексации (best-effort, не блокирует API).
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *zap.Logger
}

// NewClient возвращает клиент. Если baseURL пустой, вызовы - no-op.
func NewClient(baseURL string, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
		log: log.Named("searchindex"),
	}
}

// IndexTicketPayload - тело POST /search/index/ticket.
type IndexTicketPayload struct {
	TicketID       string   `json:"ticket_id"`
	OrganizationID string   `json:"organization_id"`
	ProjectID      string   `json:"project_id"`
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Status         string   `json:"status"`
	AssigneeID     *string  `json:"assignee_id,omitempty"`
	Todos          []string `json:"todos"`
}

func payloadFor(t *model.Ticket) IndexTicketPayload {
	p := IndexTicketPayload{
		TicketID:       t.ID,
		OrganizationID: t.OrganizationID,
		ProjectID:      t.ProjectID,
		Title:          t.Title,
		Status:         string(t.Status),
		AssigneeID:     t.AssigneeID,
		Todos:          make([]string, 0, len(t.Todos)),
	}
	if t.Description != nil {
		p.Description = *t.Description
	}
	for _, td := range t.Todos {
		p.Todos = append(p.Todos, td.Text)
	}
	return p
}

// IndexTicket отправляет тикет в search-service. Вызывать в goroutine после Create/Update.
func (c *Client) IndexTicket(ctx context.Context, t *model.Ticket) error {
	if c.baseURL == "" {
		return nil
	}
	body, err := json.Marshal(payloadFor(t))
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search/index/ticket", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

// RemoveTicket удаляет тикет из индекса.
func (c *Client) RemoveTicket(ctx context.Context, id string) error {
	if c.baseURL == "" {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/search/index/ticket/"+url.PathEscape(id), nil)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	return c.do(req)
}

func (c *Client) do(req *http.Request) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

// IndexTicketAsync вызывает IndexTicket в отдельной горутине (не блокирует ответ API).
func (c *Client) IndexTicketAsync(t *model.Ticket) {
	if c.baseURL == "" || t == nil {
		return
	}
	snapshot := *t
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.IndexTicket(ctx, &snapshot); err != nil {
			c.log.Warn("index ticket", zap.String("ticket_id", snapshot.ID), zap.Error(err))
		}
	}()
}

// RemoveTicketAsync - асинхронный RemoveTicket.
func (c *Client) RemoveTicketAsync(id string) {
	if c.baseURL == "" {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.RemoveTicket(ctx, id); err != nil {
			c.log.Warn("remove ticket", zap.String("ticket_id", id), zap.Error(err))
		}
	}()
}
