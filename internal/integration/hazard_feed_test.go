//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/couchcryptid/storm-escape-service/internal/adapter/kafka"
	"github.com/couchcryptid/storm-escape-service/internal/config"
	"github.com/couchcryptid/storm-escape-service/internal/domain"
	"github.com/couchcryptid/storm-escape-service/internal/observability"
	"github.com/couchcryptid/storm-escape-service/internal/pipeline"
	"github.com/couchcryptid/storm-escape-service/internal/watch"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testHazardTopic = "test-hazard-reports"
	testAlertTopic  = "test-alerts"
)

func reportMessage(t *testing.T, id, severity string, lat, lng float64) kafkago.Message {
	t.Helper()
	payload, err := json.Marshal(domain.RawHazardReport{
		ID:       id,
		Lat:      &lat,
		Lng:      &lng,
		Severity: severity,
		Type:     "flood",
	})
	require.NoError(t, err)
	return kafkago.Message{Key: []byte(id), Value: payload}
}

// TestHazardFeedEndToEnd publishes reports, a poison pill and a tombstone,
// then checks the index converges on the expected buffers.
func TestHazardFeedEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testHazardTopic)

	cfg := &config.Config{
		KafkaBrokers:       []string{broker},
		KafkaHazardTopic:   testHazardTopic,
		KafkaGroupID:       fmt.Sprintf("test-feed-%d", time.Now().UnixNano()),
		BatchFlushInterval: 2 * time.Second,
	}

	producer := &kafkago.Writer{Addr: kafkago.TCP(broker), Topic: testHazardTopic}
	t.Cleanup(func() { _ = producer.Close() })

	// Centro de Evacuação Paulista sits inside the "paulista" buffer.
	require.NoError(t, producer.WriteMessages(ctx,
		reportMessage(t, "paulista", "danger", -23.5321, -46.6421),
		reportMessage(t, "warning-only", "warning", -23.5650, -46.6200),
		kafkago.Message{Key: []byte("bad"), Value: []byte("not-json{{{")},
		reportMessage(t, "retracted", "danger", -23.5280, -46.6580),
		kafkago.Message{Key: []byte("retracted")},
	))

	index := domain.NewHazardIndex(domain.DefaultSafeLocations())
	metrics := observability.NewMetricsForTesting()

	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })

	p := pipeline.New(reader, pipeline.NewTransformer(discardLogger()),
		pipeline.NewIndexLoader(index, metrics), discardLogger(), metrics, 50)

	pipelineCtx, pipelineCancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(pipelineCtx) }()

	require.Eventually(t, func() bool {
		return len(index.Snapshot().Reports()) == 2 && !hasReport(index.Snapshot(), "retracted")
	}, 60*time.Second, 200*time.Millisecond)

	pipelineCancel()
	require.NoError(t, <-errCh)

	snap := index.Snapshot()
	require.Len(t, snap.Buffers(), 1)
	assert.Equal(t, "paulista", snap.Buffers()[0].Owner)
	assert.True(t, snap.IsInDanger(domain.Position{Lat: -23.5320, Lon: -46.6420}))

	var ids []string
	for _, loc := range snap.UnblockedSafeLocations() {
		ids = append(ids, loc.ID)
	}
	assert.Equal(t, []string{"2", "3", "4"}, ids)
}

func hasReport(snap *domain.Snapshot, id string) bool {
	for _, r := range snap.Reports() {
		if r.ID == id {
			return true
		}
	}
	return false
}

// TestAlertNotifierPublishes checks that a danger episode reaches the alert
// topic through the kafka notifier.
func TestAlertNotifierPublishes(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testAlertTopic)

	cfg := &config.Config{
		KafkaBrokers:    []string{broker},
		KafkaAlertTopic: testAlertTopic,
	}
	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	index := domain.NewHazardIndex(domain.DefaultSafeLocations())
	index.Upsert(domain.HazardReport{ID: "r-1", Position: domain.Position{Lat: -23.5505, Lon: -46.6333}, Severity: domain.SeverityDanger})

	w := watch.New(index, watch.NewBroker(), discardLogger(), observability.NewMetricsForTesting(),
		watch.WithNotifier(writer))
	evt, alerted := w.Observe(ctx, domain.Position{Lat: -23.5505, Lon: -46.6333})
	require.True(t, alerted)
	require.NoError(t, w.Deliver(ctx, evt))

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testAlertTopic,
		GroupID:     fmt.Sprintf("test-alerts-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	readCtx, readCancel := context.WithTimeout(ctx, 30*time.Second)
	defer readCancel()
	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err)

	var n domain.Notification
	require.NoError(t, json.Unmarshal(msg.Value, &n))
	assert.Equal(t, "high", n.Severity)
	assert.Contains(t, n.Message, "You are in a risk area!")
}
