package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/messaging/kafka"
)

const defaultGroupID = "shop-event-monitor"

type config struct {
	brokers    []string
	groupID    string
	topics     []string
	maxRetries int
	useDLQ     bool
	verbose    bool
}

// eventEnvelope — конверт, в котором outbox worker публикует события.
type eventEnvelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
}

func main() {
	logger := log.New()
	logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	cfg, err := readConfig(os.Args[1:])
	if err != nil {
		fail(logger, err)
	}
	if cfg.verbose {
		logger.SetLevel(log.DebugLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger.WithField("component", "event-monitor")); err != nil {
		fail(logger, err)
	}
}

func readConfig(args []string) (config, error) {
	fs := flag.NewFlagSet("event-monitor", flag.ContinueOnError)
	brokers := fs.String("brokers", "", "список Kafka брокеров через запятую (по умолчанию SHOP_KAFKA_BROKERS)")
	groupID := fs.String("group", defaultGroupID, "consumer group id")
	topics := fs.String("topics", kafka.TopicOrderEvents+","+kafka.TopicCatalogEvents, "топики для чтения через запятую")
	maxRetries := fs.Int("max-retries", 3, "сколько раз повторять обработку сообщения")
	useDLQ := fs.Bool("dlq", false, "отправлять нечитаемые сообщения в "+kafka.TopicDeadLetterQueue)
	verbose := fs.Bool("verbose", false, "debug логирование")

	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	rawBrokers := *brokers
	if rawBrokers == "" {
		rawBrokers = os.Getenv("SHOP_KAFKA_BROKERS")
	}

	cfg := config{
		brokers:    parseList(rawBrokers),
		groupID:    *groupID,
		topics:     parseList(*topics),
		maxRetries: *maxRetries,
		useDLQ:     *useDLQ,
		verbose:    *verbose,
	}

	if len(cfg.brokers) == 0 {
		return config{}, fmt.Errorf("kafka brokers are required: pass -brokers or set SHOP_KAFKA_BROKERS")
	}
	if len(cfg.topics) == 0 {
		return config{}, fmt.Errorf("at least one topic is required")
	}
	if cfg.maxRetries < 0 {
		return config{}, fmt.Errorf("max-retries must not be negative")
	}

	return cfg, nil
}

func parseList(raw string) []string {
	var items []string
	for _, item := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

func run(ctx context.Context, cfg config, logger *log.Entry) error {
	var dlqProducer *kafka.Producer
	if cfg.useDLQ {
		producer, err := kafka.NewProducer(cfg.brokers)
		if err != nil {
			return fmt.Errorf("failed to create dlq producer: %w", err)
		}
		defer func() {
			if err := producer.Close(); err != nil {
				logger.WithError(err).Warn("failed to close dlq producer")
			}
		}()
		dlqProducer = producer
	}

	consumer, err := kafka.NewConsumerWithDLQ(cfg.brokers, cfg.groupID, cfg.topics, handleMessage(logger), dlqProducer, cfg.maxRetries)
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	if err := consumer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start consumer: %w", err)
	}

	logger.WithFields(log.Fields{
		"group":  cfg.groupID,
		"topics": cfg.topics,
	}).Info("монитор событий запущен, Ctrl+C для остановки")

	<-ctx.Done()

	if err := consumer.Stop(); err != nil {
		return fmt.Errorf("failed to stop consumer: %w", err)
	}
	return nil
}

// handleMessage возвращает обработчик, который логирует каждое событие.
// Сообщение, которое не удалось разобрать, считается poison message:
// возвращаем ошибку, чтобы сработала retry/DLQ логика consumer-а.
func handleMessage(logger *log.Entry) kafka.MessageHandler {
	return func(_ context.Context, message *sarama.ConsumerMessage) error {
		var envelope eventEnvelope
		if err := json.Unmarshal(message.Value, &envelope); err != nil {
			return fmt.Errorf("failed to decode event envelope: %w", err)
		}

		fields := log.Fields{
			"topic":          message.Topic,
			"partition":      message.Partition,
			"offset":         message.Offset,
			"event_type":     envelope.EventType,
			"aggregate_type": envelope.AggregateType,
			"aggregate_id":   envelope.AggregateID,
		}

		if envelope.AggregateType == "order" && len(envelope.Payload) > 0 {
			event, err := kafka.ParseOrderEvent(&sarama.ConsumerMessage{Value: envelope.Payload})
			if err != nil {
				return fmt.Errorf("failed to decode order event payload: %w", err)
			}
			fields["order_id"] = event.OrderID
			fields["customer_id"] = event.CustomerID
		}

		logger.WithFields(fields).Info("event received")
		return nil
	}
}

func fail(logger *log.Logger, err error) {
	logger.WithError(err).Error("event-monitor failed")
	os.Exit(1)
}
