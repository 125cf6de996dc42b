// Package mq consumes raw events from a NATS queue group and feeds them to
// the dispatch pool, publishing every dispatched event to a sink.
package mq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/gyaneshwarpardhi/mqworker/internal/config"
	"github.com/gyaneshwarpardhi/mqworker/internal/dispatch"
	"github.com/gyaneshwarpardhi/mqworker/internal/event"
	"github.com/gyaneshwarpardhi/mqworker/internal/metrics"
	"github.com/gyaneshwarpardhi/mqworker/internal/sink"
)

// Consumer is one member of the worker queue group.
type Consumer struct {
	pool   *dispatch.Pool
	sink   sink.Sink
	prefix string
	conf   config.MQConf

	nc       *nats.Conn
	sub      *nats.Subscription
	inflight sync.WaitGroup
}

// NewConsumer wires the pool to s. Dispatched events go to prefix + index.
func NewConsumer(pool *dispatch.Pool, s sink.Sink, conf config.MQConf, prefix string) *Consumer {
	return &Consumer{pool: pool, sink: s, prefix: prefix, conf: conf}
}

// Start connects and joins the queue group. Messages are handled until Stop.
func (c *Consumer) Start(ctx context.Context) error {
	url := c.conf.URL
	if url == "" {
		url = nats.DefaultURL
	}
	nc, err := nats.Connect(url,
		nats.Name("mqworker"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	sub, err := nc.QueueSubscribe(c.conf.Subject, c.conf.QueueGroup, func(m *nats.Msg) {
		_ = c.Handle(ctx, m.Data)
	})
	if err != nil {
		nc.Close()
		return fmt.Errorf("subscribe %s: %w", c.conf.Subject, err)
	}
	c.nc, c.sub = nc, sub
	log.Info().
		Str("subject", c.conf.Subject).
		Str("queue_group", c.conf.QueueGroup).
		Msg("consuming events")
	return nil
}

// Handle decodes one message and hands it to the pool. It returns the decode
// error for payloads that are not a JSON object; those are dropped. When the
// queue is full the event is dispatched on the caller's goroutine instead.
func (c *Consumer) Handle(ctx context.Context, data []byte) error {
	ev, err := event.Decode(data)
	if err != nil {
		metrics.EventsDecodeFailed.Inc()
		log.Warn().Err(err).Int("bytes", len(data)).Msg("dropping undecodable message")
		return err
	}
	ev.EnsureID()
	metrics.EventsReceived.WithLabelValues("mq").Inc()

	c.inflight.Add(1)
	done := func(res *dispatch.Result) {
		defer c.inflight.Done()
		c.publish(ctx, res)
	}
	if c.pool.ProcessAsync(ev, event.NewMetadata(), done) {
		return nil
	}
	log.Debug().Str("event_id", ev.ID()).Msg("dispatch queue full, dispatching inline")
	done(c.pool.Dispatcher().Dispatch(ctx, ev))
	return nil
}

func (c *Consumer) publish(ctx context.Context, res *dispatch.Result) {
	if err := sink.Emit(ctx, c.sink, c.prefix, res.Event, res.Metadata); err != nil {
		log.Error().Err(err).Str("event_id", res.EventID).Msg("sink publish failed")
	}
}

// Stop drains the subscription, waits for in-flight events to be published
// and closes the connection.
func (c *Consumer) Stop() error {
	var errs []error
	if c.sub != nil {
		if err := c.sub.Drain(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
			errs = append(errs, err)
		}
		// Drain is asynchronous; the subscription turns invalid once the
		// pending messages have been delivered.
		deadline := time.Now().Add(10 * time.Second)
		for c.sub.IsValid() && time.Now().Before(deadline) {
			time.Sleep(10 * time.Millisecond)
		}
	}
	c.inflight.Wait()
	if c.nc != nil {
		c.nc.Close()
	}
	return errors.Join(errs...)
}
