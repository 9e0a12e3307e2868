package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/IBM/sarama"
)

func testConfig() config {
	return config{
		sourceTopic:  "shop.dlq",
		orderTopic:   "shop.order.events",
		catalogTopic: "shop.catalog.events",
		idleTimeout:  20 * time.Millisecond,
		limit:        10,
	}
}

func consumerDLQRecord(t *testing.T, topic, key, value string) []byte {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"original_topic": topic,
		"original_key":   key,
		"original_value": value,
	})
	if err != nil {
		t.Fatalf("marshal consumer record failed: %v", err)
	}
	return raw
}

func workerDLQRecord(t *testing.T, aggregateType, aggregateID, eventType string) []byte {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"id":             "outbox-1",
		"aggregate_type": aggregateType,
		"aggregate_id":   aggregateID,
		"event_type":     eventType,
		"payload": map[string]any{
			"outbox_id":      "outbox-1",
			"aggregate_type": aggregateType,
			"aggregate_id":   aggregateID,
			"event_type":     eventType,
			"payload":        map[string]any{"qty": 1},
			"publish_error":  "timeout",
		},
	})
	if err != nil {
		t.Fatalf("marshal worker record failed: %v", err)
	}
	return raw
}

func TestParseBrokers(t *testing.T) {
	brokers := parseBrokers(" broker-1:9092, ,broker-2:9092 ")
	if len(brokers) != 2 || brokers[0] != "broker-1:9092" || brokers[1] != "broker-2:9092" {
		t.Fatalf("unexpected brokers: %+v", brokers)
	}
}

func TestBuildCandidate_ConsumerRecordKeepsOriginalTopic(t *testing.T) {
	raw := consumerDLQRecord(t, "shop.catalog.events", "product-1", `{"event_type":"product.created"}`)

	candidate, skip, err := buildCandidate(testConfig(), &sarama.ConsumerMessage{Value: raw})
	if err != nil {
		t.Fatalf("buildCandidate failed: %v", err)
	}
	if skip != "" {
		t.Fatalf("unexpected skip reason: %s", skip)
	}
	if candidate.topic != "shop.catalog.events" || candidate.key != "product-1" {
		t.Fatalf("unexpected candidate: %+v", candidate)
	}
	if candidate.eventType != "product.created" {
		t.Fatalf("expected event type from original value, got %q", candidate.eventType)
	}
}

func TestBuildCandidate_ConsumerRecordFallsBackToOrderTopic(t *testing.T) {
	raw := consumerDLQRecord(t, "", "order-1", `{"id":"evt-1"}`)

	candidate, skip, err := buildCandidate(testConfig(), &sarama.ConsumerMessage{Value: raw})
	if err != nil || skip != "" {
		t.Fatalf("unexpected result: skip=%q err=%v", skip, err)
	}
	if candidate.topic != "shop.order.events" {
		t.Fatalf("expected order topic fallback, got %s", candidate.topic)
	}
}

func TestBuildCandidate_WorkerRecordRoutesByAggregateType(t *testing.T) {
	cases := []struct {
		aggregateType string
		wantTopic     string
	}{
		{aggregateType: "order", wantTopic: "shop.order.events"},
		{aggregateType: "product", wantTopic: "shop.catalog.events"},
	}

	for _, tc := range cases {
		t.Run(tc.aggregateType, func(t *testing.T) {
			raw := workerDLQRecord(t, tc.aggregateType, tc.aggregateType+"-1", tc.aggregateType+".event")

			candidate, skip, err := buildCandidate(testConfig(), &sarama.ConsumerMessage{Value: raw})
			if err != nil {
				t.Fatalf("buildCandidate failed: %v", err)
			}
			if skip != "" {
				t.Fatalf("unexpected skip reason: %s", skip)
			}
			if candidate.topic != tc.wantTopic {
				t.Fatalf("unexpected topic: got=%s want=%s", candidate.topic, tc.wantTopic)
			}
			if candidate.key != tc.aggregateType+"-1" {
				t.Fatalf("unexpected key: %s", candidate.key)
			}

			var envelope wireEnvelope
			if err := json.Unmarshal(candidate.value, &envelope); err != nil {
				t.Fatalf("replay value must be a valid envelope: %v", err)
			}
			if envelope.ID != "outbox-1" || len(envelope.Payload) == 0 {
				t.Fatalf("unexpected replay envelope: %+v", envelope)
			}
		})
	}
}

func TestBuildCandidate_EventTypeFilter(t *testing.T) {
	cfg := testConfig()
	cfg.eventType = "order.purchased"

	raw := workerDLQRecord(t, "order", "order-1", "order.cancelled")
	_, skip, err := buildCandidate(cfg, &sarama.ConsumerMessage{Value: raw})
	if err != nil {
		t.Fatalf("buildCandidate failed: %v", err)
	}
	if skip == "" {
		t.Fatal("expected filtered-out skip reason")
	}

	raw = workerDLQRecord(t, "order", "order-1", "order.purchased")
	candidate, skip, err := buildCandidate(cfg, &sarama.ConsumerMessage{Value: raw})
	if err != nil || skip != "" {
		t.Fatalf("matching event should pass filter: skip=%q err=%v", skip, err)
	}
	if candidate.eventType != "order.purchased" {
		t.Fatalf("unexpected event type: %s", candidate.eventType)
	}
}

func TestBuildCandidate_WorkerRecordWithoutInnerPayload(t *testing.T) {
	raw, err := json.Marshal(map[string]any{
		"id":             "outbox-1",
		"aggregate_type": "order",
		"event_type":     "order.purchased",
		"payload": map[string]any{
			"outbox_id":  "outbox-1",
			"event_type": "order.purchased",
		},
	})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	_, _, err = buildCandidate(testConfig(), &sarama.ConsumerMessage{Value: raw})
	if err == nil {
		t.Fatal("expected error for missing original event payload")
	}
}

func TestBuildCandidate_UnknownFormatSkipped(t *testing.T) {
	_, skip, err := buildCandidate(testConfig(), &sarama.ConsumerMessage{Value: []byte(`{"foo":"bar"}`)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if skip == "" {
		t.Fatal("expected unknown-format skip reason")
	}
}

func TestFirstNonEmpty(t *testing.T) {
	if got := firstNonEmpty("", "  ", "x", "y"); got != "x" {
		t.Fatalf("unexpected first non-empty value: %q", got)
	}
	if got := firstNonEmpty("", " "); got != "" {
		t.Fatalf("expected empty result, got %q", got)
	}
}

func TestReadConfig_FromFlags(t *testing.T) {
	withFlagArgs(t, []string{
		"-brokers=broker-1:9092,broker-2:9092",
		"-source-topic=shop.dlq",
		"-order-topic=shop.order.events",
		"-catalog-topic=shop.catalog.events",
		"-event-type=order.purchased",
		"-limit=10",
		"-execute=true",
		"-from-newest=true",
		"-idle-timeout=3s",
	}, func() {
		cfg, err := readConfig()
		if err != nil {
			t.Fatalf("readConfig failed: %v", err)
		}
		if len(cfg.brokers) != 2 {
			t.Fatalf("unexpected brokers count: %d", len(cfg.brokers))
		}
		if cfg.eventType != "order.purchased" {
			t.Fatalf("unexpected event-type: %s", cfg.eventType)
		}
		if cfg.limit != 10 || !cfg.execute || !cfg.fromNewest {
			t.Fatalf("unexpected config: %+v", cfg)
		}
		if cfg.idleTimeout != 3*time.Second {
			t.Fatalf("unexpected idle-timeout: %s", cfg.idleTimeout)
		}
	})
}

func TestReadConfig_ValidationErrors(t *testing.T) {
	cases := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "no brokers", args: []string{"-brokers="}, wantErr: "kafka brokers are required"},
		{name: "no source topic", args: []string{"-brokers=b:9092", "-source-topic="}, wantErr: "source-topic is required"},
		{name: "no catalog topic", args: []string{"-brokers=b:9092", "-catalog-topic="}, wantErr: "order-topic and catalog-topic are required"},
		{name: "zero limit", args: []string{"-brokers=b:9092", "-limit=0"}, wantErr: "limit must be > 0"},
		{name: "zero idle timeout", args: []string{"-brokers=b:9092", "-idle-timeout=0s"}, wantErr: "idle-timeout must be > 0"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			withFlagArgs(t, tc.args, func() {
				_, err := readConfig()
				if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
					t.Fatalf("expected %q error, got: %v", tc.wantErr, err)
				}
			})
		})
	}
}

func TestRepublish(t *testing.T) {
	if err := republish(nil, replayCandidate{}); err == nil {
		t.Fatal("expected error for nil producer")
	}

	producer := &republisherStub{}
	err := republish(producer, replayCandidate{topic: "topic", key: "key", value: []byte(`{"x":1}`)})
	if err != nil {
		t.Fatalf("republish failed: %v", err)
	}
	if producer.calls != 1 || producer.lastMsg == nil || producer.lastMsg.Topic != "topic" {
		t.Fatalf("unexpected producer state: calls=%d msg=%+v", producer.calls, producer.lastMsg)
	}

	producer.sendErr = errors.New("send failed")
	if err := republish(producer, replayCandidate{topic: "topic"}); err == nil {
		t.Fatal("expected republish error")
	}
}

func TestScanPartition_DryRun(t *testing.T) {
	client := &clusterClientStub{
		partitions: []int32{0},
		offsets:    map[int32]offsetRange{0: {oldest: 0, newest: 2}},
	}
	source := &partitionSourceStub{
		readers: map[int32]partitionReader{
			0: drainedReader([]*sarama.ConsumerMessage{{
				Partition: 0,
				Offset:    0,
				Value:     consumerDLQRecord(t, "shop.order.events", "order-1", `{"id":"evt-1"}`),
			}}),
		},
	}

	totals, err := scanPartition(context.Background(), testConfig(), client, source, nil, 0, 10)
	if err != nil {
		t.Fatalf("scanPartition failed: %v", err)
	}
	if totals.scanned != 1 || totals.replayed != 1 || totals.skipped != 0 {
		t.Fatalf("unexpected totals: %+v", totals)
	}
	if len(source.calls) != 1 || source.calls[0].offset != 0 {
		t.Fatalf("unexpected consume calls: %+v", source.calls)
	}
}

func TestScanPartition_Execute(t *testing.T) {
	client := &clusterClientStub{offsets: map[int32]offsetRange{0: {oldest: 0, newest: 2}}}
	source := &partitionSourceStub{
		readers: map[int32]partitionReader{
			0: drainedReader([]*sarama.ConsumerMessage{{
				Partition: 0,
				Offset:    0,
				Value:     workerDLQRecord(t, "product", "product-1", "product.created"),
			}}),
		},
	}
	producer := &republisherStub{}

	cfg := testConfig()
	cfg.execute = true

	totals, err := scanPartition(context.Background(), cfg, client, source, producer, 0, 10)
	if err != nil {
		t.Fatalf("scanPartition failed: %v", err)
	}
	if totals.replayed != 1 {
		t.Fatalf("expected replayed=1, got %+v", totals)
	}
	if producer.calls != 1 {
		t.Fatalf("expected one producer call, got %d", producer.calls)
	}
	if producer.lastMsg.Topic != "shop.catalog.events" {
		t.Fatalf("product event must be republished to catalog topic, got %s", producer.lastMsg.Topic)
	}
}

func TestScanPartition_IdleTimeout(t *testing.T) {
	client := &clusterClientStub{offsets: map[int32]offsetRange{0: {oldest: 0, newest: 2}}}

	idleReader := &partitionReaderStub{
		messages: make(chan *sarama.ConsumerMessage),
		errors:   make(chan *sarama.ConsumerError),
	}
	source := &partitionSourceStub{readers: map[int32]partitionReader{0: idleReader}}

	cfg := testConfig()
	cfg.idleTimeout = 10 * time.Millisecond

	totals, err := scanPartition(context.Background(), cfg, client, source, nil, 0, 1)
	if err != nil {
		t.Fatalf("unexpected idle-timeout error: %v", err)
	}
	if totals.scanned != 0 {
		t.Fatalf("expected scanned=0, got %+v", totals)
	}
	close(idleReader.messages)
	close(idleReader.errors)
}

func TestScanWindow(t *testing.T) {
	client := &clusterClientStub{offsets: map[int32]offsetRange{0: {oldest: 5, newest: 50}}}

	start, end, ok, err := scanWindow(client, "shop.dlq", 0, 10, false)
	if err != nil || !ok {
		t.Fatalf("scanWindow failed: ok=%v err=%v", ok, err)
	}
	if start != 5 || end != 50 {
		t.Fatalf("unexpected window: start=%d end=%d", start, end)
	}

	start, _, ok, err = scanWindow(client, "shop.dlq", 0, 10, true)
	if err != nil || !ok {
		t.Fatalf("scanWindow from-newest failed: ok=%v err=%v", ok, err)
	}
	if start != 40 {
		t.Fatalf("expected start=newest-limit, got %d", start)
	}

	empty := &clusterClientStub{offsets: map[int32]offsetRange{0: {oldest: 7, newest: 7}}}
	if _, _, ok, err = scanWindow(empty, "shop.dlq", 0, 10, false); err != nil || ok {
		t.Fatalf("empty partition must report ok=false: ok=%v err=%v", ok, err)
	}
}

func TestReplayAll(t *testing.T) {
	cfg := testConfig()
	cfg.limit = 1

	if err := replayAll(context.Background(), cfg, nil, nil, nil); err == nil {
		t.Fatal("expected missing deps error")
	}

	client := &clusterClientStub{
		partitions: []int32{2, 0},
		offsets: map[int32]offsetRange{
			0: {oldest: 0, newest: 2},
			2: {oldest: 0, newest: 2},
		},
	}
	source := &partitionSourceStub{
		readers: map[int32]partitionReader{
			0: drainedReader([]*sarama.ConsumerMessage{{
				Partition: 0,
				Offset:    0,
				Value:     consumerDLQRecord(t, "shop.order.events", "order-1", `{"id":"evt-1"}`),
			}}),
			2: drainedReader([]*sarama.ConsumerMessage{{
				Partition: 2,
				Offset:    0,
				Value:     consumerDLQRecord(t, "shop.order.events", "order-2", `{"id":"evt-2"}`),
			}}),
		},
	}

	if err := replayAll(context.Background(), cfg, client, source, nil); err != nil {
		t.Fatalf("replayAll failed: %v", err)
	}
	if len(source.calls) != 1 {
		t.Fatalf("expected one partition due limit=1, got calls=%d", len(source.calls))
	}
	if source.calls[0].partition != 0 {
		t.Fatalf("expected first sorted partition=0, got %d", source.calls[0].partition)
	}

	executeCfg := cfg
	executeCfg.execute = true
	if err := replayAll(context.Background(), executeCfg, client, source, nil); err == nil {
		t.Fatal("expected execute mode to require producer")
	}

	emptyClient := &clusterClientStub{partitions: nil}
	if err := replayAll(context.Background(), cfg, emptyClient, source, nil); err != nil {
		t.Fatalf("expected nil error for empty partitions, got %v", err)
	}
}

func TestRun_UsesOpenKafkaHook(t *testing.T) {
	oldHook := openKafka
	defer func() { openKafka = oldHook }()

	cfg := testConfig()
	cfg.limit = 1

	openKafka = func(config) (clusterClient, partitionSource, republisher, error) {
		return nil, nil, nil, errors.New("deps failed")
	}
	if err := run(context.Background(), cfg); err == nil || !strings.Contains(err.Error(), "deps failed") {
		t.Fatalf("expected deps error, got %v", err)
	}

	client := &clusterClientStub{
		partitions: []int32{0},
		offsets:    map[int32]offsetRange{0: {oldest: 0, newest: 2}},
	}
	source := &partitionSourceStub{
		readers: map[int32]partitionReader{
			0: drainedReader([]*sarama.ConsumerMessage{{
				Partition: 0,
				Offset:    0,
				Value:     consumerDLQRecord(t, "shop.order.events", "order-1", `{"id":"evt-1"}`),
			}}),
		},
	}
	producer := &republisherStub{}

	openKafka = func(config) (clusterClient, partitionSource, republisher, error) {
		return client, source, producer, nil
	}
	if err := run(context.Background(), cfg); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !client.closed || !source.closed || !producer.closed {
		t.Fatalf("expected all deps closed: client=%v source=%v producer=%v", client.closed, source.closed, producer.closed)
	}
}

func withFlagArgs(t *testing.T, args []string, fn func()) {
	t.Helper()

	oldArgs := os.Args
	oldCommandLine := flag.CommandLine

	os.Args = append([]string{"dlq-reprocess"}, args...)
	flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ExitOnError)

	defer func() {
		os.Args = oldArgs
		flag.CommandLine = oldCommandLine
	}()

	fn()
}

type offsetRange struct {
	oldest int64
	newest int64
}

type clusterClientStub struct {
	partitions    []int32
	partitionsErr error
	offsets       map[int32]offsetRange
	closed        bool
}

func (s *clusterClientStub) GetOffset(_ string, partition int32, marker int64) (int64, error) {
	r := s.offsets[partition]
	switch marker {
	case sarama.OffsetOldest:
		return r.oldest, nil
	case sarama.OffsetNewest:
		return r.newest, nil
	default:
		return 0, fmt.Errorf("unsupported marker %d", marker)
	}
}

func (s *clusterClientStub) Partitions(string) ([]int32, error) {
	if s.partitionsErr != nil {
		return nil, s.partitionsErr
	}
	return append([]int32(nil), s.partitions...), nil
}

func (s *clusterClientStub) Close() error {
	s.closed = true
	return nil
}

type consumeCall struct {
	partition int32
	offset    int64
}

type partitionSourceStub struct {
	readers map[int32]partitionReader
	calls   []consumeCall
	closed  bool
}

func (s *partitionSourceStub) ConsumePartition(_ string, partition int32, offset int64) (partitionReader, error) {
	s.calls = append(s.calls, consumeCall{partition: partition, offset: offset})
	reader, ok := s.readers[partition]
	if !ok {
		return nil, fmt.Errorf("partition %d not configured", partition)
	}
	return reader, nil
}

func (s *partitionSourceStub) Close() error {
	s.closed = true
	return nil
}

type partitionReaderStub struct {
	messages chan *sarama.ConsumerMessage
	errors   chan *sarama.ConsumerError
	closed   bool
}

func (s *partitionReaderStub) Messages() <-chan *sarama.ConsumerMessage { return s.messages }
func (s *partitionReaderStub) Errors() <-chan *sarama.ConsumerError     { return s.errors }
func (s *partitionReaderStub) Close() error {
	s.closed = true
	return nil
}

// drainedReader отдаёт заготовленные сообщения и сразу закрывает каналы.
func drainedReader(messages []*sarama.ConsumerMessage) *partitionReaderStub {
	msgCh := make(chan *sarama.ConsumerMessage, len(messages))
	errCh := make(chan *sarama.ConsumerError)
	for _, msg := range messages {
		msgCh <- msg
	}
	close(msgCh)
	close(errCh)
	return &partitionReaderStub{messages: msgCh, errors: errCh}
}

type republisherStub struct {
	sendErr error
	calls   int
	closed  bool
	lastMsg *sarama.ProducerMessage
}

func (s *republisherStub) SendMessage(msg *sarama.ProducerMessage) (int32, int64, error) {
	s.calls++
	s.lastMsg = msg
	if s.sendErr != nil {
		return 0, 0, s.sendErr
	}
	return 0, int64(s.calls), nil
}

func (s *republisherStub) Close() error {
	s.closed = true
	return nil
}
