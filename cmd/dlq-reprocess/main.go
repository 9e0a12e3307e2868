// Команда dlq-reprocess перечитывает shop.dlq и возвращает события обратно
// в рабочие топики. Запись из DLQ может прийти из двух мест: от consumer,
// который исчерпал retry (payload с original_*), или от outbox worker,
// который не смог опубликовать событие (конверт с вложенным dlq-payload).
// По умолчанию утилита работает в dry-run и только печатает кандидатов.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/messaging/kafka"
)

const (
	defaultScanLimit   = 100
	defaultIdleTimeout = 2 * time.Second

	aggregateTypeProduct = "product"
)

type config struct {
	brokers      []string
	sourceTopic  string
	orderTopic   string
	catalogTopic string
	eventType    string
	limit        int
	execute      bool
	fromNewest   bool
	idleTimeout  time.Duration
}

// topicFor повторяет маршрутизацию OutboxTopicPublisher: события каталога
// идут в catalog-топик, всё остальное в order-топик.
func (c config) topicFor(aggregateType string) string {
	if aggregateType == aggregateTypeProduct {
		return c.catalogTopic
	}
	return c.orderTopic
}

// replayCandidate — восстановленное событие, готовое к повторной публикации.
type replayCandidate struct {
	topic     string
	key       string
	value     []byte
	eventType string
}

// consumerRecord — то, что пишет в DLQ consumer (sendToDLQ).
type consumerRecord struct {
	OriginalTopic string `json:"original_topic"`
	OriginalKey   string `json:"original_key"`
	OriginalValue string `json:"original_value"`
}

// workerRecord — вложенный payload DLQ-сообщения от outbox worker.
type workerRecord struct {
	OutboxID      string          `json:"outbox_id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
}

// wireEnvelope — конверт, в котором паблишер кладёт события в топики.
type wireEnvelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at,omitempty"`
}

type clusterClient interface {
	GetOffset(topic string, partition int32, time int64) (int64, error)
	Partitions(topic string) ([]int32, error)
	Close() error
}

type partitionReader interface {
	Messages() <-chan *sarama.ConsumerMessage
	Errors() <-chan *sarama.ConsumerError
	Close() error
}

type partitionSource interface {
	ConsumePartition(topic string, partition int32, offset int64) (partitionReader, error)
	Close() error
}

type republisher interface {
	SendMessage(msg *sarama.ProducerMessage) (partition int32, offset int64, err error)
	Close() error
}

type saramaPartitionSource struct {
	consumer sarama.Consumer
}

func (s saramaPartitionSource) ConsumePartition(topic string, partition int32, offset int64) (partitionReader, error) {
	pc, err := s.consumer.ConsumePartition(topic, partition, offset)
	if err != nil {
		return nil, err
	}
	return pc, nil
}

func (s saramaPartitionSource) Close() error {
	if s.consumer == nil {
		return nil
	}
	return s.consumer.Close()
}

// openKafka подменяется в тестах.
var openKafka = func(cfg config) (clusterClient, partitionSource, republisher, error) {
	consumerConfig := sarama.NewConfig()
	consumerConfig.Consumer.Return.Errors = true

	client, err := sarama.NewClient(cfg.brokers, consumerConfig)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create kafka client: %w", err)
	}

	rawConsumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, nil, nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	source := saramaPartitionSource{consumer: rawConsumer}

	// Producer нужен только в execute-режиме.
	if !cfg.execute {
		return client, source, nil, nil
	}

	producerConfig := sarama.NewConfig()
	producerConfig.Producer.RequiredAcks = sarama.WaitForAll
	producerConfig.Producer.Retry.Max = 5
	producerConfig.Producer.Return.Successes = true
	producerConfig.Producer.Compression = sarama.CompressionSnappy
	producerConfig.Producer.Idempotent = true
	producerConfig.Net.MaxOpenRequests = 1

	producer, err := sarama.NewSyncProducer(cfg.brokers, producerConfig)
	if err != nil {
		_ = source.Close()
		_ = client.Close()
		return nil, nil, nil, fmt.Errorf("create kafka producer: %w", err)
	}

	return client, source, producer, nil
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)

	cfg, err := readConfig()
	if err != nil {
		fail("%v", err)
	}

	if err := run(context.Background(), cfg); err != nil {
		fail("dlq replay failed: %v", err)
	}
}

func readConfig() (config, error) {
	var (
		brokersRaw string
		cfg        config
	)

	flag.StringVar(&brokersRaw, "brokers", "", "Kafka brokers as comma-separated list (fallback: SHOP_KAFKA_BROKERS)")
	flag.StringVar(&cfg.sourceTopic, "source-topic", kafka.TopicDeadLetterQueue, "DLQ source topic")
	flag.StringVar(&cfg.orderTopic, "order-topic", kafka.TopicOrderEvents, "replay target for order events")
	flag.StringVar(&cfg.catalogTopic, "catalog-topic", kafka.TopicCatalogEvents, "replay target for product events")
	flag.StringVar(&cfg.eventType, "event-type", "", "replay only events of this type (empty: all)")
	flag.IntVar(&cfg.limit, "limit", defaultScanLimit, "max number of messages to scan")
	flag.BoolVar(&cfg.execute, "execute", false, "execute replay; default is dry-run")
	flag.BoolVar(&cfg.fromNewest, "from-newest", false, "scan latest messages first (bounded by limit)")
	flag.DurationVar(&cfg.idleTimeout, "idle-timeout", defaultIdleTimeout, "idle timeout per partition")
	flag.Parse()

	if strings.TrimSpace(brokersRaw) == "" {
		brokersRaw = os.Getenv("SHOP_KAFKA_BROKERS")
	}

	cfg.brokers = parseBrokers(brokersRaw)
	if len(cfg.brokers) == 0 {
		return config{}, fmt.Errorf("kafka brokers are required (-brokers or SHOP_KAFKA_BROKERS)")
	}
	if strings.TrimSpace(cfg.sourceTopic) == "" {
		return config{}, fmt.Errorf("source-topic is required")
	}
	if strings.TrimSpace(cfg.orderTopic) == "" || strings.TrimSpace(cfg.catalogTopic) == "" {
		return config{}, fmt.Errorf("order-topic and catalog-topic are required")
	}
	if cfg.limit <= 0 {
		return config{}, fmt.Errorf("limit must be > 0")
	}
	if cfg.idleTimeout <= 0 {
		return config{}, fmt.Errorf("idle-timeout must be > 0")
	}

	return cfg, nil
}

func parseBrokers(raw string) []string {
	chunks := strings.Split(raw, ",")
	brokers := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		if broker := strings.TrimSpace(chunk); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}

func run(ctx context.Context, cfg config) error {
	log.WithFields(log.Fields{
		"source_topic":  cfg.sourceTopic,
		"order_topic":   cfg.orderTopic,
		"catalog_topic": cfg.catalogTopic,
		"event_type":    cfg.eventType,
		"limit":         cfg.limit,
		"execute":       cfg.execute,
	}).Info("starting dlq replay")

	client, source, producer, err := openKafka(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if producer != nil {
			_ = producer.Close()
		}
		if source != nil {
			_ = source.Close()
		}
		if client != nil {
			_ = client.Close()
		}
	}()

	return replayAll(ctx, cfg, client, source, producer)
}

type replayTotals struct {
	scanned  int
	replayed int
	skipped  int
}

func (t *replayTotals) add(other replayTotals) {
	t.scanned += other.scanned
	t.replayed += other.replayed
	t.skipped += other.skipped
}

func replayAll(ctx context.Context, cfg config, client clusterClient, source partitionSource, producer republisher) error {
	if client == nil || source == nil {
		return fmt.Errorf("kafka client and consumer are required")
	}
	if cfg.execute && producer == nil {
		return fmt.Errorf("producer is required in execute mode")
	}

	partitions, err := client.Partitions(cfg.sourceTopic)
	if err != nil {
		return fmt.Errorf("get partitions for topic %s: %w", cfg.sourceTopic, err)
	}
	if len(partitions) == 0 {
		log.WithField("topic", cfg.sourceTopic).Warn("source topic has no partitions")
		return nil
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })

	var totals replayTotals
	for _, partition := range partitions {
		remaining := cfg.limit - totals.scanned
		if remaining <= 0 {
			break
		}

		partial, err := scanPartition(ctx, cfg, client, source, producer, partition, remaining)
		if err != nil {
			return err
		}
		totals.add(partial)
	}

	mode := "dry-run"
	if cfg.execute {
		mode = "execute"
	}
	log.WithFields(log.Fields{
		"mode":     mode,
		"scanned":  totals.scanned,
		"replayed": totals.replayed,
		"skipped":  totals.skipped,
	}).Info("dlq replay finished")

	return nil
}

// scanWindow возвращает диапазон оффсетов партиции для чтения.
// ok=false значит, что в партиции нечего читать.
func scanWindow(client clusterClient, topic string, partition int32, limit int, fromNewest bool) (start, end int64, ok bool, err error) {
	oldest, err := client.GetOffset(topic, partition, sarama.OffsetOldest)
	if err != nil {
		return 0, 0, false, fmt.Errorf("get oldest offset for partition %d: %w", partition, err)
	}
	newest, err := client.GetOffset(topic, partition, sarama.OffsetNewest)
	if err != nil {
		return 0, 0, false, fmt.Errorf("get newest offset for partition %d: %w", partition, err)
	}
	if newest <= oldest {
		return 0, 0, false, nil
	}

	start = oldest
	if fromNewest {
		if start = newest - int64(limit); start < oldest {
			start = oldest
		}
	}
	return start, newest, true, nil
}

func scanPartition(ctx context.Context, cfg config, client clusterClient, source partitionSource, producer republisher, partition int32, limit int) (replayTotals, error) {
	var totals replayTotals
	if limit <= 0 {
		return totals, nil
	}

	start, end, ok, err := scanWindow(client, cfg.sourceTopic, partition, limit, cfg.fromNewest)
	if err != nil || !ok {
		return totals, err
	}

	reader, err := source.ConsumePartition(cfg.sourceTopic, partition, start)
	if err != nil {
		return totals, fmt.Errorf("consume partition %d: %w", partition, err)
	}
	defer func() { _ = reader.Close() }()

	idle := time.NewTimer(cfg.idleTimeout)
	defer idle.Stop()

	for totals.scanned < limit {
		select {
		case <-ctx.Done():
			return totals, ctx.Err()

		case err := <-reader.Errors():
			if err != nil {
				return totals, fmt.Errorf("partition %d consumer error: %w", partition, err)
			}

		case msg, open := <-reader.Messages():
			if !open || msg == nil || msg.Offset >= end {
				return totals, nil
			}
			resetTimer(idle, cfg.idleTimeout)

			totals.scanned++
			if err := handleRecord(cfg, producer, msg, &totals); err != nil {
				return totals, err
			}

			if msg.Offset+1 >= end {
				return totals, nil
			}

		case <-idle.C:
			return totals, nil
		}
	}

	return totals, nil
}

func resetTimer(timer *time.Timer, d time.Duration) {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	timer.Reset(d)
}

func handleRecord(cfg config, producer republisher, msg *sarama.ConsumerMessage, totals *replayTotals) error {
	candidate, skipReason, err := buildCandidate(cfg, msg)
	if err != nil {
		totals.skipped++
		log.WithError(err).WithFields(log.Fields{
			"partition": msg.Partition,
			"offset":    msg.Offset,
		}).Warn("skip malformed dlq record")
		return nil
	}
	if skipReason != "" {
		totals.skipped++
		log.WithFields(log.Fields{
			"partition": msg.Partition,
			"offset":    msg.Offset,
			"reason":    skipReason,
		}).Debug("skip dlq record")
		return nil
	}

	if !cfg.execute {
		log.WithFields(log.Fields{
			"partition":    msg.Partition,
			"offset":       msg.Offset,
			"target_topic": candidate.topic,
			"event_type":   candidate.eventType,
			"key":          candidate.key,
		}).Info("dlq replay candidate")
		totals.replayed++
		return nil
	}

	if err := republish(producer, candidate); err != nil {
		return fmt.Errorf("publish replay message: %w", err)
	}
	totals.replayed++
	return nil
}

func republish(producer republisher, candidate replayCandidate) error {
	if producer == nil {
		return fmt.Errorf("producer is nil")
	}

	_, _, err := producer.SendMessage(&sarama.ProducerMessage{
		Topic:     candidate.topic,
		Key:       sarama.StringEncoder(candidate.key),
		Value:     sarama.ByteEncoder(candidate.value),
		Timestamp: time.Now().UTC(),
	})
	return err
}

// buildCandidate восстанавливает событие из DLQ-записи. Непустой skipReason
// означает, что запись легальна, но к replay не подходит (фильтр, неизвестный
// формат); ошибка — что запись повреждена.
func buildCandidate(cfg config, msg *sarama.ConsumerMessage) (replayCandidate, string, error) {
	if candidate, ok := candidateFromConsumerRecord(cfg, msg.Value); ok {
		if rejected := rejectedByFilter(cfg, candidate.eventType); rejected != "" {
			return replayCandidate{}, rejected, nil
		}
		return candidate, "", nil
	}

	candidate, ok, err := candidateFromWorkerRecord(cfg, msg.Value)
	if err != nil {
		return replayCandidate{}, "", err
	}
	if !ok {
		return replayCandidate{}, "unknown record format", nil
	}
	if rejected := rejectedByFilter(cfg, candidate.eventType); rejected != "" {
		return replayCandidate{}, rejected, nil
	}
	return candidate, "", nil
}

func rejectedByFilter(cfg config, eventType string) string {
	if cfg.eventType != "" && eventType != cfg.eventType {
		return fmt.Sprintf("event type %q filtered out", eventType)
	}
	return ""
}

// candidateFromConsumerRecord разбирает запись, положенную в DLQ consumer-ом:
// исходное сообщение возвращается в топик, откуда пришло.
func candidateFromConsumerRecord(cfg config, raw []byte) (replayCandidate, bool) {
	var record consumerRecord
	if err := json.Unmarshal(raw, &record); err != nil || record.OriginalValue == "" {
		return replayCandidate{}, false
	}

	topic := strings.TrimSpace(record.OriginalTopic)
	if topic == "" {
		topic = cfg.orderTopic
	}

	var original wireEnvelope
	_ = json.Unmarshal([]byte(record.OriginalValue), &original)

	return replayCandidate{
		topic:     topic,
		key:       record.OriginalKey,
		value:     []byte(record.OriginalValue),
		eventType: original.EventType,
	}, true
}

// candidateFromWorkerRecord разбирает запись outbox worker-а: исходное
// событие заново заворачивается в конверт и маршрутизируется по типу
// агрегата, как это делает обычный паблишер.
func candidateFromWorkerRecord(cfg config, raw []byte) (replayCandidate, bool, error) {
	var envelope wireEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil || len(envelope.Payload) == 0 {
		return replayCandidate{}, false, nil
	}

	var record workerRecord
	if err := json.Unmarshal(envelope.Payload, &record); err != nil {
		return replayCandidate{}, false, fmt.Errorf("decode outbox dlq payload: %w", err)
	}
	if len(record.Payload) == 0 {
		return replayCandidate{}, false, fmt.Errorf("outbox dlq payload does not contain original event payload")
	}

	replay := wireEnvelope{
		ID:            firstNonEmpty(record.OutboxID, envelope.ID),
		AggregateType: firstNonEmpty(record.AggregateType, envelope.AggregateType),
		AggregateID:   firstNonEmpty(record.AggregateID, envelope.AggregateID),
		EventType:     firstNonEmpty(record.EventType, envelope.EventType),
		Payload:       record.Payload,
		PublishedAt:   time.Now().UTC(),
	}
	encoded, err := json.Marshal(replay)
	if err != nil {
		return replayCandidate{}, false, fmt.Errorf("encode replay envelope: %w", err)
	}

	key := replay.AggregateID
	if key == "" {
		key = replay.ID
	}

	return replayCandidate{
		topic:     cfg.topicFor(replay.AggregateType),
		key:       key,
		value:     encoded,
		eventType: replay.EventType,
	}, true, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
