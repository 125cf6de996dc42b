package sink

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gyaneshwarpardhi/mqworker/internal/config"
)

func init() {
	Register("log", func(conf config.SinkConf) (Sink, error) {
		return NewLogSink(log.Logger), nil
	})
}

// LogSink writes each event as one structured log line.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink logs through l.
func NewLogSink(l zerolog.Logger) *LogSink {
	return &LogSink{logger: l}
}

func (s *LogSink) Publish(ctx context.Context, topic, key string, value []byte) error {
	e := s.logger.Info().Str("topic", topic).Str("key", key)
	if json.Valid(value) {
		e = e.RawJSON("event", value)
	} else {
		e = e.Bytes("event", value)
	}
	e.Msg("event published")
	return nil
}

func (s *LogSink) Close() error { return nil }

// Recorder keeps published messages in memory.
type Recorder struct {
	mu         sync.Mutex
	Messages   []Message
	PublishErr error
}

// Message is one recorded publish.
type Message struct {
	Topic string
	Key   string
	Value []byte
}

func (r *Recorder) Publish(ctx context.Context, topic, key string, value []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.PublishErr != nil {
		return r.PublishErr
	}
	r.Messages = append(r.Messages, Message{Topic: topic, Key: key, Value: append([]byte(nil), value...)})
	return nil
}

func (r *Recorder) Close() error { return nil }

// Snapshot returns a copy of the recorded messages.
func (r *Recorder) Snapshot() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.Messages...)
}
