package mq

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/mqworker/internal/config"
	"github.com/gyaneshwarpardhi/mqworker/internal/dispatch"
	"github.com/gyaneshwarpardhi/mqworker/internal/event"
	"github.com/gyaneshwarpardhi/mqworker/internal/plugin"
	"github.com/gyaneshwarpardhi/mqworker/internal/plugin/snmptt"
	"github.com/gyaneshwarpardhi/mqworker/internal/sink"
)

func newPool(t *testing.T, workers, depth int) *dispatch.Pool {
	t.Helper()
	b, err := plugin.NewBuilder("")
	require.NoError(t, err)
	require.NoError(t, b.Register(snmptt.New("")))
	d := dispatch.New(plugin.NewRegistry(b.Build()), time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return dispatch.NewPool(ctx, d, config.DispatchConf{Workers: workers, QueueDepth: depth, EventTimeoutMs: 1000})
}

func TestHandle(t *testing.T) {
	pool := newPool(t, 2, 16)
	rec := &sink.Recorder{}
	c := NewConsumer(pool, rec, config.MQConf{Subject: "eventtask"}, "mozdef.")

	msg := `{"summary": "linkDown WARNING \"Status Events\" sw1 - down", "details": {"program": "snmptt"}}`
	require.NoError(t, c.Handle(context.Background(), []byte(msg)))
	require.NoError(t, c.Handle(context.Background(), []byte(`{"id": "fixed", "summary": "plain"}`)))
	assert.Error(t, c.Handle(context.Background(), []byte(`[1,2]`)))
	assert.Error(t, c.Handle(context.Background(), []byte(`not json`)))
	require.NoError(t, c.Stop())

	msgs := rec.Snapshot()
	require.Len(t, msgs, 2)
	byKey := map[string]sink.Message{}
	for _, m := range msgs {
		assert.Equal(t, "mozdef.events", m.Topic)
		byKey[m.Key] = m
	}
	require.Contains(t, byKey, "fixed")
	delete(byKey, "fixed")
	require.Len(t, byKey, 1)
	for id, m := range byKey {
		assert.NotEmpty(t, id, "an id is assigned")
		var ev event.Event
		require.NoError(t, json.Unmarshal(m.Value, &ev))
		assert.Equal(t, id, ev["id"])
		assert.Equal(t, "sw1", ev["details"].(map[string]interface{})["hostname"])
	}
}

func TestHandleQueueFullDispatchesInline(t *testing.T) {
	pool := newPool(t, 1, 1)
	rec := &sink.Recorder{}
	c := NewConsumer(pool, rec, config.MQConf{}, "")
	for i := 0; i < 50; i++ {
		require.NoError(t, c.Handle(context.Background(), []byte(`{"summary": "x"}`)))
	}
	require.NoError(t, c.Stop())
	assert.Len(t, rec.Snapshot(), 50, "no event is dropped")
}

func TestHandleSinkError(t *testing.T) {
	pool := newPool(t, 1, 4)
	rec := &sink.Recorder{PublishErr: assert.AnError}
	c := NewConsumer(pool, rec, config.MQConf{}, "")
	require.NoError(t, c.Handle(context.Background(), []byte(`{"summary": "x"}`)))
	require.NoError(t, c.Stop())
	assert.Empty(t, rec.Snapshot())
}
