package kafka

import (
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/storm-escape-service/internal/domain"
)

func TestMapMessageToRawEvent(t *testing.T) {
	now := time.Now()
	msg := kafkago.Message{
		Key:       []byte("3"),
		Value:     []byte(`{"id":"3","lat":-23.5485,"lng":-46.6425,"severity":"danger"}`),
		Topic:     "hazard-reports",
		Partition: 2,
		Offset:    42,
		Time:      now,
		Headers: []kafkago.Header{
			{Key: "source", Value: []byte("report-form")},
		},
	}

	raw := mapMessageToRawEvent(msg)

	assert.Equal(t, []byte("3"), raw.Key)
	assert.JSONEq(t, `{"id":"3","lat":-23.5485,"lng":-46.6425,"severity":"danger"}`, string(raw.Value))
	assert.Equal(t, "hazard-reports", raw.Topic)
	assert.Equal(t, 2, raw.Partition)
	assert.Equal(t, int64(42), raw.Offset)
	assert.Equal(t, now, raw.Timestamp)
	assert.Equal(t, "report-form", raw.Headers["source"])
	assert.False(t, raw.IsTombstone())
}

func TestMapMessageToRawEvent_Tombstone(t *testing.T) {
	raw := mapMessageToRawEvent(kafkago.Message{Key: []byte("3")})
	assert.True(t, raw.IsTombstone())
}

func TestSerializeToMessage(t *testing.T) {
	n := domain.Notification{
		Severity:      "high",
		LocationLabel: "Your location",
		Message:       "You are in a risk area! Nearest safe location: Hospital das Clínicas (1.83 km)",
	}

	msg, err := serializeToMessage(n)
	require.NoError(t, err)

	assert.Nil(t, msg.Key)
	assert.JSONEq(t, `{"severity":"high","location_label":"Your location","message":"You are in a risk area! Nearest safe location: Hospital das Clínicas (1.83 km)"}`, string(msg.Value))
	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "severity", msg.Headers[0].Key)
	assert.Equal(t, []byte("high"), msg.Headers[0].Value)
	assert.Equal(t, "content_type", msg.Headers[1].Key)
}
