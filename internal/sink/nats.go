package sink

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/gyaneshwarpardhi/mqworker/internal/config"
)

func init() {
	Register("nats", func(conf config.SinkConf) (Sink, error) {
		url := conf.URL
		if url == "" {
			url = nats.DefaultURL
		}
		return NewNatsSink(url)
	})
}

// NatsSink publishes to NATS JetStream, creating one stream per subject.
type NatsSink struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	mu      sync.Mutex
	streams map[string]struct{}
}

// NewNatsSink connects to url and opens a JetStream context.
func NewNatsSink(url string) (*NatsSink, error) {
	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}
	return &NatsSink{nc: nc, js: js, streams: make(map[string]struct{})}, nil
}

func (n *NatsSink) Publish(ctx context.Context, topic, key string, value []byte) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := n.ensureStream(ctx, topic); err != nil {
		return err
	}
	msg := &nats.Msg{
		Subject: topic,
		Data:    value,
		Header:  nats.Header{"key": []string{key}},
	}
	if _, err := n.js.PublishMsg(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

func (n *NatsSink) ensureStream(ctx context.Context, topic string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.streams[topic]; ok {
		return nil
	}
	name := StreamName(topic)
	_, err := n.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      name,
		Subjects:  []string{topic},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    24 * time.Hour,
	})
	if err != nil {
		return fmt.Errorf("failed to ensure stream %s: %w", name, err)
	}
	n.streams[topic] = struct{}{}
	return nil
}

func (n *NatsSink) Close() error {
	if n.nc != nil {
		n.nc.Close()
	}
	return nil
}

// StreamName maps a subject to a valid JetStream stream name.
func StreamName(topic string) string {
	return strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_").Replace(topic)
}
