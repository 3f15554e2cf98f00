package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/retailpos/internal/domain"
	"github.com/vladislavdragonenkov/retailpos/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/retailpos/internal/service/outbox"
)

func TestParseBrokers(t *testing.T) {
	brokers := parseBrokers(" broker-1:9092, ,broker-2:9092 ")
	if len(brokers) != 2 {
		t.Fatalf("unexpected brokers count: got=%d want=2", len(brokers))
	}
	if brokers[0] != "broker-1:9092" || brokers[1] != "broker-2:9092" {
		t.Fatalf("unexpected brokers: %+v", brokers)
	}
}

func TestExtractReplayMessage_RoutesByAggregate(t *testing.T) {
	tests := []struct {
		name          string
		aggregateType string
		eventType     string
		wantTopic     string
	}{
		{name: "sale", aggregateType: domain.AggregateSale, eventType: domain.EventSaleCompleted, wantTopic: kafka.TopicSaleEvents},
		{name: "inventory", aggregateType: domain.AggregateInventory, eventType: domain.EventInventoryLowStock, wantTopic: kafka.TopicInventoryEvents},
		{name: "order", aggregateType: domain.AggregateOrder, eventType: domain.EventOrderStatusChanged, wantTopic: kafka.TopicOrderEvents},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := deadLetterMessage(t, 0, 0, tt.aggregateType, "agg-1", tt.eventType)

			got, err := extractReplayMessage(msg, "")
			if err != nil {
				t.Fatalf("extractReplayMessage failed: %v", err)
			}
			if got.topic != tt.wantTopic {
				t.Fatalf("unexpected topic: got=%s want=%s", got.topic, tt.wantTopic)
			}
			if got.key != "agg-1" {
				t.Fatalf("unexpected key: %s", got.key)
			}
			if got.eventType != tt.eventType {
				t.Fatalf("unexpected event type: %s", got.eventType)
			}
		})
	}
}

func TestExtractReplayMessage_RestoresOriginalEvent(t *testing.T) {
	msg := deadLetterMessage(t, 0, 0, domain.AggregateOrder, "order-1", domain.EventOrderStatusChanged)

	got, err := extractReplayMessage(msg, "retail.replay")
	if err != nil {
		t.Fatalf("extractReplayMessage failed: %v", err)
	}
	if got.topic != "retail.replay" {
		t.Fatalf("target topic override must win, got %s", got.topic)
	}

	var envelope kafka.OutboxEnvelope
	if err := json.Unmarshal(got.value, &envelope); err != nil {
		t.Fatalf("replay value must be an outbox envelope: %v", err)
	}
	if envelope.ID != "outbox-order-1" || envelope.AggregateID != "order-1" {
		t.Fatalf("unexpected envelope identity: %+v", envelope)
	}

	var payload domain.OrderStatusChangedPayload
	if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
		t.Fatalf("decode original payload: %v", err)
	}
	if payload.To != domain.OrderStatusCancelled || payload.Reason != "cliente no pagó" {
		t.Fatalf("original payload lost: %+v", payload)
	}
}

func TestExtractReplayMessage_FallsBackToEnvelopeFields(t *testing.T) {
	dead := outbox.DeadLetter{Payload: json.RawMessage(`{"sale_id":"sale-9"}`), PublishError: "timeout"}
	deadRaw, err := json.Marshal(dead)
	if err != nil {
		t.Fatalf("marshal dead letter: %v", err)
	}
	raw, err := json.Marshal(kafka.NewOutboxEnvelope(domain.OutboxMessage{
		ID:            "outbox-9",
		AggregateType: domain.AggregateSale,
		AggregateID:   "sale-9",
		EventType:     domain.EventSaleCompleted,
		Payload:       deadRaw,
	}, time.Now().UTC()))
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}

	got, err := extractReplayMessage(&sarama.ConsumerMessage{Value: raw}, "")
	if err != nil {
		t.Fatalf("extractReplayMessage failed: %v", err)
	}
	if got.topic != kafka.TopicSaleEvents || got.key != "sale-9" || got.eventType != domain.EventSaleCompleted {
		t.Fatalf("unexpected replay message: %+v", got)
	}
}

func TestExtractReplayMessage_Rejects(t *testing.T) {
	missingPayload, err := json.Marshal(map[string]any{
		"id":             "outbox-1",
		"aggregate_type": "order",
		"aggregate_id":   "order-1",
		"event_type":     "order.status_changed",
		"payload": map[string]any{
			"outbox_id":     "outbox-1",
			"publish_error": "timeout",
		},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	tests := []struct {
		name  string
		value []byte
		want  string
	}{
		{name: "empty", value: nil, want: "empty dlq message"},
		{name: "not json", value: []byte("garbage"), want: "decode dlq envelope"},
		{name: "no envelope payload", value: []byte(`{"foo":"bar"}`), want: "no payload"},
		{name: "payload not an object", value: []byte(`{"id":"x","payload":"not-an-object"}`), want: "decode dead letter"},
		{name: "no original payload", value: missingPayload, want: "original event payload"},
		{name: "no event type", value: []byte(`{"id":"x","payload":{"payload":{"a":1}}}`), want: "no event type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := extractReplayMessage(&sarama.ConsumerMessage{Value: tt.value}, "")
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
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
	cfg, err := readConfig([]string{
		"-brokers=broker-1:9092,broker-2:9092",
		"-source-topic=retail.dlq",
		"-target-topic=retail.replay",
		"-event-type=sale.completed",
		"-limit=10",
		"-execute=true",
		"-from-newest=true",
		"-idle-timeout=3s",
	}, envMap(nil))
	if err != nil {
		t.Fatalf("readConfig failed: %v", err)
	}
	if len(cfg.brokers) != 2 {
		t.Fatalf("unexpected brokers count: %d", len(cfg.brokers))
	}
	if cfg.targetTopic != "retail.replay" || cfg.eventType != domain.EventSaleCompleted {
		t.Fatalf("unexpected topics: %+v", cfg)
	}
	if cfg.limit != 10 {
		t.Fatalf("unexpected limit: %d", cfg.limit)
	}
	if !cfg.execute || !cfg.fromNewest {
		t.Fatalf("expected execute and from-newest, got %+v", cfg)
	}
	if cfg.idleTimeout != 3*time.Second {
		t.Fatalf("unexpected idle-timeout: %s", cfg.idleTimeout)
	}
}

func TestReadConfig_Defaults(t *testing.T) {
	cfg, err := readConfig(nil, envMap(map[string]string{brokersEnv: "kafka:9092"}))
	if err != nil {
		t.Fatalf("readConfig failed: %v", err)
	}
	if len(cfg.brokers) != 1 || cfg.brokers[0] != "kafka:9092" {
		t.Fatalf("brokers must come from %s: %+v", brokersEnv, cfg.brokers)
	}
	if cfg.sourceTopic != kafka.TopicDeadLetterQueue {
		t.Fatalf("unexpected source topic: %s", cfg.sourceTopic)
	}
	if cfg.targetTopic != "" {
		t.Fatalf("target topic must default to aggregate routing, got %s", cfg.targetTopic)
	}
	if cfg.execute {
		t.Fatal("dry-run must be the default")
	}
	if cfg.limit != defaultReplayLimit || cfg.idleTimeout != defaultIdleTimeout {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestReadConfig_ValidationErrors(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{args: []string{"-brokers="}, want: "kafka brokers are required"},
		{args: []string{"-brokers=broker:9092", "-source-topic= "}, want: "source-topic is required"},
		{args: []string{"-brokers=broker:9092", "-target-topic=retail.dlq"}, want: "must differ from source-topic"},
		{args: []string{"-brokers=broker:9092", "-limit=0"}, want: "limit must be > 0"},
		{args: []string{"-brokers=broker:9092", "-idle-timeout=0s"}, want: "idle-timeout must be > 0"},
		{args: []string{"-unknown"}, want: "flag provided but not defined"},
	}

	for _, tt := range tests {
		_, err := readConfig(tt.args, envMap(nil))
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Fatalf("args %v: expected %q, got %v", tt.args, tt.want, err)
		}
	}
}

func TestPublishReplay(t *testing.T) {
	if err := publishReplay(nil, replayMessage{}); err == nil {
		t.Fatal("expected error for nil producer")
	}

	producer := &stubReplayProducer{}
	err := publishReplay(producer, replayMessage{topic: kafka.TopicSaleEvents, key: "sale-1", eventType: domain.EventSaleCompleted, value: []byte(`{"x":1}`)})
	if err != nil {
		t.Fatalf("publishReplay failed: %v", err)
	}
	if producer.calls != 1 {
		t.Fatalf("unexpected producer calls: %d", producer.calls)
	}
	if producer.lastMsg == nil || producer.lastMsg.Topic != kafka.TopicSaleEvents {
		t.Fatalf("unexpected last message: %+v", producer.lastMsg)
	}
	if len(producer.lastMsg.Headers) != 1 || string(producer.lastMsg.Headers[0].Key) != kafka.HeaderEventType ||
		string(producer.lastMsg.Headers[0].Value) != domain.EventSaleCompleted {
		t.Fatalf("unexpected headers: %+v", producer.lastMsg.Headers)
	}

	producer.sendErr = errors.New("send failed")
	if err := publishReplay(producer, replayMessage{topic: "topic", key: "key", value: []byte(`{"x":1}`)}); err == nil {
		t.Fatal("expected publishReplay error")
	}
}

func TestProcessPartition_DryRun(t *testing.T) {
	client := &stubOffsetClient{
		partitions: []int32{0},
		offsets:    map[int32]offsetRange{0: {oldest: 0, newest: 2}},
	}
	consumer := &stubPartitionConsumerSource{
		consumers: map[int32]partitionConsumer{
			0: closedPartitionConsumer([]*sarama.ConsumerMessage{
				deadLetterMessage(t, 0, 0, domain.AggregateSale, "sale-1", domain.EventSaleCompleted),
			}),
		},
	}

	cfg := config{sourceTopic: kafka.TopicDeadLetterQueue, idleTimeout: 20 * time.Millisecond}

	stats, err := processPartition(context.Background(), consumer, client, nil, cfg, 0, 10)
	if err != nil {
		t.Fatalf("processPartition failed: %v", err)
	}
	if stats.processed != 1 || stats.replayed != 1 || stats.skipped != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if len(consumer.calls) != 1 || consumer.calls[0].offset != 0 {
		t.Fatalf("unexpected consume calls: %+v", consumer.calls)
	}
}

func TestProcessPartition_Execute(t *testing.T) {
	client := &stubOffsetClient{offsets: map[int32]offsetRange{0: {oldest: 0, newest: 2}}}
	consumer := &stubPartitionConsumerSource{
		consumers: map[int32]partitionConsumer{
			0: closedPartitionConsumer([]*sarama.ConsumerMessage{
				deadLetterMessage(t, 0, 0, domain.AggregateInventory, "inv-1", domain.EventStockAdjusted),
				deadLetterMessage(t, 0, 1, domain.AggregateOrder, "order-1", domain.EventOrderStatusChanged),
			}),
		},
	}
	producer := &stubReplayProducer{}

	cfg := config{sourceTopic: kafka.TopicDeadLetterQueue, execute: true, idleTimeout: 20 * time.Millisecond}

	stats, err := processPartition(context.Background(), consumer, client, producer, cfg, 0, 10)
	if err != nil {
		t.Fatalf("processPartition failed: %v", err)
	}
	if stats.replayed != 2 || stats.processed != 2 {
		t.Fatalf("expected two replayed messages, got %+v", stats)
	}
	if len(producer.topics) != 2 || producer.topics[0] != kafka.TopicInventoryEvents || producer.topics[1] != kafka.TopicOrderEvents {
		t.Fatalf("unexpected replay topics: %v", producer.topics)
	}
}

func TestProcessPartition_EventTypeFilter(t *testing.T) {
	client := &stubOffsetClient{offsets: map[int32]offsetRange{0: {oldest: 0, newest: 2}}}
	consumer := &stubPartitionConsumerSource{
		consumers: map[int32]partitionConsumer{
			0: closedPartitionConsumer([]*sarama.ConsumerMessage{
				deadLetterMessage(t, 0, 0, domain.AggregateSale, "sale-1", domain.EventSaleCompleted),
				deadLetterMessage(t, 0, 1, domain.AggregateOrder, "order-1", domain.EventOrderStatusChanged),
			}),
		},
	}
	producer := &stubReplayProducer{}
	cfg := config{
		sourceTopic: kafka.TopicDeadLetterQueue,
		eventType:   domain.EventOrderStatusChanged,
		execute:     true,
		idleTimeout: 20 * time.Millisecond,
	}

	stats, err := processPartition(context.Background(), consumer, client, producer, cfg, 0, 10)
	if err != nil {
		t.Fatalf("processPartition failed: %v", err)
	}
	if stats.processed != 2 || stats.replayed != 1 || stats.skipped != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if producer.calls != 1 || producer.topics[0] != kafka.TopicOrderEvents {
		t.Fatalf("only order events must be replayed: %v", producer.topics)
	}
}

func TestProcessPartition_FromNewest(t *testing.T) {
	client := &stubOffsetClient{offsets: map[int32]offsetRange{0: {oldest: 3, newest: 10}}}
	consumer := &stubPartitionConsumerSource{
		consumers: map[int32]partitionConsumer{0: closedPartitionConsumer(nil)},
	}
	cfg := config{sourceTopic: kafka.TopicDeadLetterQueue, fromNewest: true, idleTimeout: 20 * time.Millisecond}

	if _, err := processPartition(context.Background(), consumer, client, nil, cfg, 0, 4); err != nil {
		t.Fatalf("processPartition failed: %v", err)
	}
	if len(consumer.calls) != 1 || consumer.calls[0].offset != 6 {
		t.Fatalf("expected start offset 6, got %+v", consumer.calls)
	}

	consumer = &stubPartitionConsumerSource{
		consumers: map[int32]partitionConsumer{0: closedPartitionConsumer(nil)},
	}
	if _, err := processPartition(context.Background(), consumer, client, nil, cfg, 0, 50); err != nil {
		t.Fatalf("processPartition failed: %v", err)
	}
	if consumer.calls[0].offset != 3 {
		t.Fatalf("start offset must not go below oldest, got %d", consumer.calls[0].offset)
	}
}

func TestProcessPartition_EmptyPartition(t *testing.T) {
	client := &stubOffsetClient{offsets: map[int32]offsetRange{0: {oldest: 5, newest: 5}}}
	consumer := &stubPartitionConsumerSource{}
	cfg := config{sourceTopic: kafka.TopicDeadLetterQueue, idleTimeout: 20 * time.Millisecond}

	stats, err := processPartition(context.Background(), consumer, client, nil, cfg, 0, 10)
	if err != nil {
		t.Fatalf("processPartition failed: %v", err)
	}
	if stats != (replayStats{}) || len(consumer.calls) != 0 {
		t.Fatalf("empty partition must not be consumed: stats=%+v calls=%+v", stats, consumer.calls)
	}
}

func TestProcessPartition_ErrorBranches(t *testing.T) {
	cfg := config{sourceTopic: kafka.TopicDeadLetterQueue, execute: true, idleTimeout: 20 * time.Millisecond}

	clientOffsetErr := &stubOffsetClient{offsetErr: map[int32]error{0: errors.New("offset")}}
	if _, err := processPartition(context.Background(), &stubPartitionConsumerSource{}, clientOffsetErr, &stubReplayProducer{}, cfg, 0, 1); err == nil {
		t.Fatal("expected offset error")
	}

	client := &stubOffsetClient{offsets: map[int32]offsetRange{0: {oldest: 0, newest: 2}}}
	consumerErr := &stubPartitionConsumerSource{consumeErr: errors.New("consume")}
	if _, err := processPartition(context.Background(), consumerErr, client, &stubReplayProducer{}, cfg, 0, 1); err == nil {
		t.Fatal("expected consume error")
	}

	pcWithErr := &stubPartitionConsumer{
		messages: make(chan *sarama.ConsumerMessage),
		errors:   make(chan *sarama.ConsumerError, 1),
	}
	pcWithErr.errors <- &sarama.ConsumerError{Err: errors.New("consumer boom")}
	close(pcWithErr.errors)
	consumer := &stubPartitionConsumerSource{consumers: map[int32]partitionConsumer{0: pcWithErr}}
	if _, err := processPartition(context.Background(), consumer, client, &stubReplayProducer{}, cfg, 0, 1); err == nil {
		t.Fatal("expected consumer error branch")
	}
	close(pcWithErr.messages)

	pcBadPayload := closedPartitionConsumer([]*sarama.ConsumerMessage{{
		Partition: 0,
		Offset:    0,
		Value:     []byte(`{"id":"x","payload":"not-an-object"}`),
	}})
	consumer = &stubPartitionConsumerSource{consumers: map[int32]partitionConsumer{0: pcBadPayload}}
	stats, err := processPartition(context.Background(), consumer, client, &stubReplayProducer{}, cfg, 0, 1)
	if err != nil {
		t.Fatalf("unexpected bad-payload error: %v", err)
	}
	if stats.skipped != 1 || stats.processed != 1 {
		t.Fatalf("expected skipped=1, got %+v", stats)
	}

	pcOK := closedPartitionConsumer([]*sarama.ConsumerMessage{
		deadLetterMessage(t, 0, 0, domain.AggregateSale, "sale-1", domain.EventSaleCompleted),
	})
	consumer = &stubPartitionConsumerSource{consumers: map[int32]partitionConsumer{0: pcOK}}
	producer := &stubReplayProducer{sendErr: errors.New("send fail")}
	if _, err := processPartition(context.Background(), consumer, client, producer, cfg, 0, 1); err == nil {
		t.Fatal("expected producer send error")
	}
}

func TestProcessPartition_IdleTimeoutAndContext(t *testing.T) {
	client := &stubOffsetClient{offsets: map[int32]offsetRange{0: {oldest: 0, newest: 2}}}

	idleConsumer := &stubPartitionConsumer{
		messages: make(chan *sarama.ConsumerMessage),
		errors:   make(chan *sarama.ConsumerError),
	}
	consumer := &stubPartitionConsumerSource{consumers: map[int32]partitionConsumer{0: idleConsumer}}
	cfg := config{sourceTopic: kafka.TopicDeadLetterQueue, idleTimeout: 10 * time.Millisecond}

	stats, err := processPartition(context.Background(), consumer, client, nil, cfg, 0, 1)
	if err != nil {
		t.Fatalf("unexpected idle-timeout error: %v", err)
	}
	if stats.processed != 0 {
		t.Fatalf("expected processed=0, got %+v", stats)
	}
	if !idleConsumer.closed {
		t.Fatal("partition consumer must be closed")
	}
	close(idleConsumer.messages)
	close(idleConsumer.errors)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	canceledPC := &stubPartitionConsumer{
		messages: make(chan *sarama.ConsumerMessage),
		errors:   make(chan *sarama.ConsumerError),
	}
	canceledConsumer := &stubPartitionConsumerSource{consumers: map[int32]partitionConsumer{0: canceledPC}}
	if _, err := processPartition(ctx, canceledConsumer, client, nil, cfg, 0, 1); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
	close(canceledPC.messages)
	close(canceledPC.errors)
}

func TestRunReplay(t *testing.T) {
	cfg := config{sourceTopic: kafka.TopicDeadLetterQueue, limit: 1, idleTimeout: 20 * time.Millisecond}

	if _, err := runReplay(context.Background(), cfg, nil, nil, nil); err == nil {
		t.Fatal("expected missing deps error")
	}

	client := &stubOffsetClient{
		partitions: []int32{2, 0},
		offsets: map[int32]offsetRange{
			0: {oldest: 0, newest: 2},
			2: {oldest: 0, newest: 2},
		},
	}
	consumer := &stubPartitionConsumerSource{
		consumers: map[int32]partitionConsumer{
			0: closedPartitionConsumer([]*sarama.ConsumerMessage{
				deadLetterMessage(t, 0, 0, domain.AggregateSale, "sale-1", domain.EventSaleCompleted),
			}),
			2: closedPartitionConsumer([]*sarama.ConsumerMessage{
				deadLetterMessage(t, 2, 0, domain.AggregateSale, "sale-2", domain.EventSaleCompleted),
			}),
		},
	}

	stats, err := runReplay(context.Background(), cfg, client, consumer, nil)
	if err != nil {
		t.Fatalf("runReplay failed: %v", err)
	}
	if stats.processed != 1 || stats.replayed != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if len(consumer.calls) != 1 {
		t.Fatalf("expected one partition due limit=1, got calls=%d", len(consumer.calls))
	}
	if consumer.calls[0].partition != 0 {
		t.Fatalf("expected first sorted partition=0, got %d", consumer.calls[0].partition)
	}

	executeCfg := cfg
	executeCfg.execute = true
	if _, err := runReplay(context.Background(), executeCfg, client, consumer, nil); err == nil {
		t.Fatal("expected execute mode to require producer")
	}

	if _, err := runReplay(context.Background(), cfg, &stubOffsetClient{partitionsErr: errors.New("metadata")}, consumer, nil); err == nil {
		t.Fatal("expected partitions error")
	}

	emptyClient := &stubOffsetClient{partitions: nil}
	if _, err := runReplay(context.Background(), cfg, emptyClient, consumer, nil); err != nil {
		t.Fatalf("expected nil error for empty partitions, got %v", err)
	}
}

func TestRun_UsesDependencies(t *testing.T) {
	oldDeps := newReplayDependencies
	defer func() { newReplayDependencies = oldDeps }()

	cfg := config{sourceTopic: kafka.TopicDeadLetterQueue, limit: 1, idleTimeout: 20 * time.Millisecond}

	newReplayDependencies = func(config) (offsetClient, partitionConsumerSource, replayProducer, error) {
		return nil, nil, nil, errors.New("deps failed")
	}
	if err := run(context.Background(), cfg); err == nil || !strings.Contains(err.Error(), "deps failed") {
		t.Fatalf("expected deps error, got %v", err)
	}

	client := &stubOffsetClient{
		partitions: []int32{0},
		offsets:    map[int32]offsetRange{0: {oldest: 0, newest: 2}},
	}
	consumer := &stubPartitionConsumerSource{
		consumers: map[int32]partitionConsumer{
			0: closedPartitionConsumer([]*sarama.ConsumerMessage{
				deadLetterMessage(t, 0, 0, domain.AggregateOrder, "order-1", domain.EventOrderStatusChanged),
			}),
		},
	}
	producer := &stubReplayProducer{}

	newReplayDependencies = func(config) (offsetClient, partitionConsumerSource, replayProducer, error) {
		return client, consumer, producer, nil
	}
	if err := run(context.Background(), cfg); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !client.closed || !consumer.closed || !producer.closed {
		t.Fatalf("expected all deps to be closed: client=%v consumer=%v producer=%v", client.closed, consumer.closed, producer.closed)
	}
}

func TestMain_SuccessWithStubbedDeps(t *testing.T) {
	oldDeps := newReplayDependencies
	oldArgs := os.Args
	defer func() {
		newReplayDependencies = oldDeps
		os.Args = oldArgs
	}()

	client := &stubOffsetClient{
		partitions: []int32{0},
		offsets:    map[int32]offsetRange{0: {oldest: 0, newest: 2}},
	}
	consumer := &stubPartitionConsumerSource{
		consumers: map[int32]partitionConsumer{
			0: closedPartitionConsumer([]*sarama.ConsumerMessage{
				deadLetterMessage(t, 0, 0, domain.AggregateSale, "sale-1", domain.EventSaleCompleted),
			}),
		},
	}
	newReplayDependencies = func(config) (offsetClient, partitionConsumerSource, replayProducer, error) {
		return client, consumer, nil, nil
	}

	os.Args = []string{"dlq-replay", "-brokers=broker:9092", "-limit=1", "-idle-timeout=50ms"}

	main()

	if !client.closed || !consumer.closed {
		t.Fatal("main must release kafka dependencies")
	}
}

func TestFailExits(t *testing.T) {
	if os.Getenv("DLQ_TEST_FAIL_EXIT") == "1" {
		fail("boom")
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=TestFailExits")
	cmd.Env = append(os.Environ(), "DLQ_TEST_FAIL_EXIT=1")
	err := cmd.Run()
	if err == nil {
		t.Fatal("expected subprocess to exit with error")
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) || exitErr.ExitCode() == 0 {
		t.Fatalf("expected non-zero exit code, got %v", err)
	}
}

// deadLetterMessage собирает сообщение DLQ так же, как его публикует outbox worker.
func deadLetterMessage(t *testing.T, partition int32, offset int64, aggregateType, aggregateID, eventType string) *sarama.ConsumerMessage {
	t.Helper()

	original, err := json.Marshal(domain.OrderStatusChangedPayload{
		OrderID: aggregateID,
		From:    domain.OrderStatusReserved,
		To:      domain.OrderStatusCancelled,
		ActorID: "u-seller",
		Reason:  "cliente no pagó",
	})
	if err != nil {
		t.Fatalf("marshal original payload: %v", err)
	}

	dead, err := json.Marshal(outbox.DeadLetter{
		OutboxID:       "outbox-" + aggregateID,
		AggregateType:  aggregateType,
		AggregateID:    aggregateID,
		EventType:      eventType,
		Payload:        original,
		PublishError:   "kafka: client has run out of available brokers",
		DLQPublishedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("marshal dead letter: %v", err)
	}

	value, err := json.Marshal(kafka.NewOutboxEnvelope(domain.OutboxMessage{
		ID:            "outbox-" + aggregateID,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       dead,
	}, time.Now().UTC()))
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}

	return &sarama.ConsumerMessage{
		Topic:     kafka.TopicDeadLetterQueue,
		Partition: partition,
		Offset:    offset,
		Key:       []byte(aggregateID),
		Value:     value,
	}
}

func envMap(values map[string]string) func(string) string {
	return func(key string) string { return values[key] }
}

type offsetRange struct {
	oldest int64
	newest int64
}

type stubOffsetClient struct {
	partitions    []int32
	partitionsErr error
	offsets       map[int32]offsetRange
	offsetErr     map[int32]error
	closed        bool
}

func (s *stubOffsetClient) GetOffset(_ string, partition int32, marker int64) (int64, error) {
	if err, ok := s.offsetErr[partition]; ok {
		return 0, err
	}

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

func (s *stubOffsetClient) Partitions(string) ([]int32, error) {
	if s.partitionsErr != nil {
		return nil, s.partitionsErr
	}
	return append([]int32(nil), s.partitions...), nil
}

func (s *stubOffsetClient) Close() error {
	s.closed = true
	return nil
}

type consumeCall struct {
	partition int32
	offset    int64
}

type stubPartitionConsumerSource struct {
	consumers  map[int32]partitionConsumer
	consumeErr error
	calls      []consumeCall
	closed     bool
}

func (s *stubPartitionConsumerSource) ConsumePartition(_ string, partition int32, offset int64) (partitionConsumer, error) {
	s.calls = append(s.calls, consumeCall{partition: partition, offset: offset})
	if s.consumeErr != nil {
		return nil, s.consumeErr
	}
	pc, ok := s.consumers[partition]
	if !ok {
		return nil, fmt.Errorf("partition %d not configured", partition)
	}
	return pc, nil
}

func (s *stubPartitionConsumerSource) Close() error {
	s.closed = true
	return nil
}

type stubPartitionConsumer struct {
	messages chan *sarama.ConsumerMessage
	errors   chan *sarama.ConsumerError
	closed   bool
}

func (s *stubPartitionConsumer) Messages() <-chan *sarama.ConsumerMessage { return s.messages }
func (s *stubPartitionConsumer) Errors() <-chan *sarama.ConsumerError     { return s.errors }
func (s *stubPartitionConsumer) Close() error {
	s.closed = true
	return nil
}

func closedPartitionConsumer(messages []*sarama.ConsumerMessage) *stubPartitionConsumer {
	msgCh := make(chan *sarama.ConsumerMessage, len(messages))
	errCh := make(chan *sarama.ConsumerError)
	for _, msg := range messages {
		msgCh <- msg
	}
	close(msgCh)
	close(errCh)
	return &stubPartitionConsumer{messages: msgCh, errors: errCh}
}

type stubReplayProducer struct {
	sendErr error
	calls   int
	closed  bool
	topics  []string
	lastMsg *sarama.ProducerMessage
}

func (s *stubReplayProducer) SendMessage(msg *sarama.ProducerMessage) (int32, int64, error) {
	s.calls++
	s.lastMsg = msg
	s.topics = append(s.topics, msg.Topic)
	if s.sendErr != nil {
		return 0, 0, s.sendErr
	}
	return 0, int64(s.calls), nil
}

func (s *stubReplayProducer) Close() error {
	s.closed = true
	return nil
}
