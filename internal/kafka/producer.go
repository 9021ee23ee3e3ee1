package kafka

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/psds-microservice/ticket-tracker/internal/model"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Имена событий в топике тикетов.
const (
	EventTicketCreated = "ticket.created"
	EventTicketUpdated = "ticket.updated"
	EventTicketDeleted = "ticket.deleted"
	EventCommentAdded  = "review.comment_added"
)

// TicketEventProducer - интерфейс для отправки событий тикета в Kafka (для подмены моком в тестах).
type TicketEventProducer interface {
	ProduceTicketEvent(ctx context.Context, event string, payload map[string]interface{})
}

// Producer пишет события тикетов в топик Kafka (best-effort, не блокирует API).
type Producer struct {
	writer *kafka.Writer
	topic  string
	log    *zap.Logger
}

// NewProducer создаёт продюсер. Если brokers пустой или topic пустой - методы no-op.
func NewProducer(brokers []string, topic string, log *zap.Logger) *Producer {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("kafka")
	if len(brokers) == 0 || topic == "" {
		return &Producer{log: log}
	}
	return &Producer{
		topic: topic,
		log:   log,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

// Enabled сообщает, настроен ли writer.
func (p *Producer) Enabled() bool {
	return p.writer != nil
}

// ProduceTicketEvent отправляет событие в топик. Ключ сообщения - ticket_id,
// чтобы события одного тикета попадали в одну партицию.
func (p *Producer) ProduceTicketEvent(ctx context.Context, event string, payload map[string]interface{}) {
	if p.writer == nil {
		return
	}
	msg := map[string]interface{}{"event": event, "occurred_at": time.Now().UTC()}
	for k, v := range payload {
		msg[k] = v
	}
	body, err := json.Marshal(msg)
	if err != nil {
		p.log.Warn("marshal ticket event", zap.String("event", event), zap.Error(err))
		return
	}
	var key []byte
	if id, ok := payload["ticket_id"].(string); ok {
		key = []byte(id)
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{Key: key, Value: body}); err != nil {
		p.log.Warn("write ticket event", zap.String("event", event), zap.Error(err))
	}
}

// Close закрывает writer.
func (p *Producer) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

// TicketPayload - поля тикета, которые уходят в событие (без вложений).
func TicketPayload(t *model.Ticket) map[string]interface{} {
	done := 0
	for _, td := range t.Todos {
		if td.IsCompleted {
			done++
		}
	}
	payload := map[string]interface{}{
		"ticket_id":       t.ID,
		"organization_id": t.OrganizationID,
		"project_id":      t.ProjectID,
		"title":           t.Title,
		"status":          string(t.Status),
		"todos_total":     len(t.Todos),
		"todos_done":      done,
		"updated_at":      t.UpdatedAt,
	}
	if t.AssigneeID != nil {
		payload["assignee_id"] = *t.AssigneeID
	}
	if t.Description != nil {
		payload["description"] = *t.Description
	}
	return payload
}

// CommentPayload - событие нового комментария в ревью.
func CommentPayload(ticketID string, c *model.Comment) map[string]interface{} {
	payload := map[string]interface{}{
		"ticket_id":        ticketID,
		"comment_id":       c.ID,
		"author_id":        c.AuthorID,
		"is_status_change": c.IsStatusChange,
		"attachments":      len(c.Attachments),
	}
	if c.StatusChange != nil {
		payload["from"] = string(c.StatusChange.From)
		payload["to"] = string(c.StatusChange.To)
	}
	return payload
}

// ParseBrokers разбивает строку брокеров "host1:9092,host2:9092" на слайс.
func ParseBrokers(s string) []string {
	var out []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
