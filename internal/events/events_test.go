package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	kafka "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/FairForge/globalfailover/internal/failover"
)

func sampleEvent() failover.Event {
	return failover.Event{
		RunID:        "run-1",
		Kind:         failover.KindFailover,
		Phase:        failover.PhaseFinished,
		Cluster:      "orders",
		SourceRegion: "us-east-1",
		TargetRegion: "us-west-2",
		Outcome:      &failover.Outcome{Identifier: "orders", Result: failover.ResultSucceeded, Polls: 3},
		Time:         time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestEventLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	el := NewEventLogger(zap.New(core), 10)

	require.NoError(t, el.Publish(context.Background(), sampleEvent()))
	el.Close()
	el.Close()

	entries := logs.FilterMessage("event").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, TypeFinished, fields["type"])
	assert.Equal(t, "orders", fields["cluster"])
	assert.Equal(t, "succeeded", fields["status"])
}

func TestEventLogger_DropsWhenFull(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	el := &EventLogger{logger: zap.New(core), buffer: make(chan failover.Event, 1), done: make(chan struct{})}

	require.NoError(t, el.Publish(context.Background(), sampleEvent()))
	require.NoError(t, el.Publish(context.Background(), sampleEvent()))

	assert.Equal(t, 1, logs.FilterMessage("Event buffer full, dropping event").Len())
}

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafkaPublisher(t *testing.T) {
	t.Run("keys messages by cluster", func(t *testing.T) {
		w := &fakeWriter{}
		k := &KafkaPublisher{writer: w, timeout: time.Second}

		require.NoError(t, k.Publish(context.Background(), sampleEvent()))
		require.NoError(t, k.Close())

		require.Len(t, w.msgs, 1)
		msg := w.msgs[0]
		assert.Equal(t, []byte("orders"), msg.Key)
		assert.Equal(t, "type", msg.Headers[0].Key)
		assert.Equal(t, []byte(TypeFinished), msg.Headers[0].Value)

		var decoded failover.Event
		require.NoError(t, json.Unmarshal(msg.Value, &decoded))
		assert.Equal(t, failover.ResultSucceeded, decoded.Outcome.Result)
		assert.True(t, w.closed)
	})

	t.Run("wraps write errors", func(t *testing.T) {
		k := &KafkaPublisher{writer: &fakeWriter{err: errors.New("broker down")}, timeout: time.Second}
		err := k.Publish(context.Background(), sampleEvent())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "broker down")
	})

	t.Run("requires brokers and topic", func(t *testing.T) {
		_, err := NewKafkaPublisher(KafkaConfig{Topic: "failover"})
		assert.Error(t, err)
		_, err = NewKafkaPublisher(KafkaConfig{Brokers: []string{"localhost:9092"}})
		assert.Error(t, err)

		k, err := NewKafkaPublisher(KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "failover"})
		require.NoError(t, err)
		assert.NoError(t, k.Close())
	})
}

func TestFanout(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	var got []string
	ok := PublisherFunc(func(_ context.Context, e failover.Event) error {
		got = append(got, TypeOf(e))
		return nil
	})
	broken := PublisherFunc(func(context.Context, failover.Event) error {
		return errors.New("unreachable")
	})

	f := NewFanout(zap.New(core), broken, ok)
	f.Observe(context.Background(), failover.Event{Phase: failover.PhaseInitiated, Cluster: "orders"})
	f.Observe(context.Background(), sampleEvent())

	assert.Equal(t, []string{TypeInitiated, TypeFinished}, got)
	assert.Equal(t, 2, logs.FilterMessage("failed to publish failover event").Len())
}
