package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/psds-microservice/ticket-tracker/internal/application"
	"github.com/psds-microservice/ticket-tracker/internal/config"
	"github.com/psds-microservice/ticket-tracker/internal/kafka"
	"github.com/psds-microservice/ticket-tracker/internal/model"
	"github.com/psds-microservice/ticket-tracker/internal/searchindex"
	"github.com/psds-microservice/ticket-tracker/internal/service"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const reindexPageSize = 200

var reindexSearchCmd = &cobra.Command{
	Use:   "reindex-search",
	Short: "Reindex all tickets into search. Prefers Kafka; falls back to HTTP if SEARCH_SERVICE_URL is set.",
	RunE:  runReindexSearch,
}

func runReindexSearch(cmd *cobra.Command, args []string) error {
	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck
	if cfg.StoreDriver == config.StoreDriverMemory {
		return errors.New("reindex-search: the memory store has nothing to reindex")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	var send func(context.Context, *model.Ticket) error
	var via string
	producer := kafka.NewProducer(kafka.ParseBrokers(cfg.KafkaBrokers), cfg.KafkaTopicTicket, log)
	defer producer.Close()
	switch {
	case producer.Enabled():
		via = "kafka"
		send = func(ctx context.Context, t *model.Ticket) error {
			producer.ProduceTicketEvent(ctx, kafka.EventTicketUpdated, kafka.TicketPayload(t))
			return nil
		}
	case cfg.SearchServiceURL != "":
		via = "http"
		send = searchindex.NewClient(cfg.SearchServiceURL, log).IndexTicket
	default:
		log.Info("reindex-search: neither KAFKA_BROKERS nor SEARCH_SERVICE_URL set, nothing to do")
		return nil
	}

	backend, err := application.OpenStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer backend.Close(context.Background()) //nolint:errcheck

	sent, failed := 0, 0
	for offset := 0; ; offset += reindexPageSize {
		page, total, err := backend.Store.ListTickets(ctx, service.TicketFilter{Limit: reindexPageSize, Offset: offset})
		if err != nil {
			return fmt.Errorf("list tickets: %w", err)
		}
		for i := range page {
			if err := send(ctx, &page[i]); err != nil {
				failed++
				log.Warn("reindex ticket", zap.String("ticket_id", page[i].ID), zap.Error(err))
				continue
			}
			sent++
		}
		log.Info("reindex-search: progress", zap.String("via", via), zap.Int("sent", sent), zap.Int64("total", total))
		if len(page) < reindexPageSize {
			break
		}
	}
	log.Info("reindex-search: done", zap.String("via", via), zap.Int("sent", sent), zap.Int("failed", failed))
	return nil
}
