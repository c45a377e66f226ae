// Package broker implements the Broker Gateway (C4) on top of NATS
// JetStream. The vocabulary it exposes — exchange, queue, priority,
// prefetch, auto-ack-without-requeue — is RabbitMQ-flavored, per the full
// specification, but no AMQP client exists anywhere in the example
// corpus this service was grown from; JetStream is the only message
// broker library available, so each RabbitMQ concept below is mapped onto
// a JetStream primitive instead of implemented natively:
//
//	exchange "{type}.exchange.{env}"  → a JetStream Stream named the same
//	queue "{type}.{step}.{env}"       → a subject, consumed by a durable
//	                                     pull consumer named
//	                                     "{type}-{step}-consumer"
//	durable queue / message persistence → FileStorage + WorkQueuePolicy
//	priority                          → carried as a JSON field on the
//	                                     envelope only; JetStream has no
//	                                     native priority queue, so ordering
//	                                     is not enforced by the consumer
//	prefetch = 1                      → PullMaxWaiting(1) and Fetch(1)
//	auto-ack without requeue          → msg.Ack() unconditionally, even
//	                                     when handler returns an error
//	BatchConsume(..., N)              → a single Fetch(N) then return
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
)

// MessageType is one of the fixed (type, step) pairs the spec supports.
const (
	TypeDiscovered         = "match.discovered"
	TypeTelemetry          = "match.telemetry"
	TypeProcessingTelemetry = "match.processing.telemetry"
	TypeStats              = "match.stats"
)

// Publisher is the subset of Gateway that discovery and worker packages
// depend on, so tests can substitute a fake rather than dial a real
// broker.
type Publisher interface {
	Publish(messageType, step string, payload interface{}, priority string) (bool, error)
}

// Subscriber is the subset of Gateway that worker packages consume from,
// isolated the same way Publisher is so a fake can stand in for tests
// that don't want a live JetStream connection.
type Subscriber interface {
	Consume(ctx context.Context, messageType, step string, handler Handler) error
	BatchConsume(ctx context.Context, messageType, step string, n int, handler Handler) (int, error)
}

// Gateway wraps a JetStream context with the exchange/queue naming
// convention and publish/consume contracts of spec §4.4.
type Gateway struct {
	js  nats.JetStreamContext
	nc  *nats.Conn
	env string
}

// Config configures a Gateway.
type Config struct {
	URL         string
	Environment string
}

// Connect dials NATS and declares the fixed set of exchange streams.
func Connect(cfg Config) (*Gateway, error) {
	nc, err := nats.Connect(cfg.URL, nats.MaxReconnects(-1), nats.ReconnectWait(2*time.Second))
	if err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("acquire jetstream context: %w", err)
	}

	g := &Gateway{js: js, nc: nc, env: cfg.Environment}

	for _, queueName := range []string{TypeDiscovered, TypeTelemetry, TypeProcessingTelemetry, TypeStats} {
		if err := g.declareExchange(queueName); err != nil {
			nc.Close()
			return nil, err
		}
	}

	log.Printf("🚀 broker gateway connected (env=%s)", cfg.Environment)
	return g, nil
}

func (g *Gateway) exchangeName(messageType string) string {
	return fmt.Sprintf("%s.exchange.%s", messageType, g.env)
}

func (g *Gateway) queueSubject(messageType, step string) string {
	return fmt.Sprintf("%s.%s.%s", messageType, step, g.env)
}

// declareExchange ensures the durable, file-backed stream for a message
// type exists, subscribing it to every step subject under that type.
func (g *Gateway) declareExchange(messageType string) error {
	name := g.exchangeName(messageType)
	_, err := g.js.StreamInfo(name)
	if err == nil {
		return nil
	}

	_, err = g.js.AddStream(&nats.StreamConfig{
		Name:      name,
		Subjects:  []string{fmt.Sprintf("%s.*.%s", messageType, g.env)},
		Storage:   nats.FileStorage,
		Retention: nats.WorkQueuePolicy,
	})
	if err != nil {
		return fmt.Errorf("declare exchange %s: %w", name, err)
	}
	return nil
}

// Envelope is the stable-field-order wire format every publish stamps
// {environment, queue_target} into, per spec §4.4.
type Envelope struct {
	Environment string          `json:"environment"`
	QueueTarget string          `json:"queue_target"`
	Priority    string          `json:"priority"`
	Payload     json.RawMessage `json:"payload"`
}

// Publish serializes payload, stamps routing metadata, and publishes to the
// subject for (messageType, step). The returned bool reports whether the
// broker acknowledged routing; a false return is logged but not fatal —
// the ledger row remains the source of truth and a later scan may
// republish.
func (g *Gateway) Publish(messageType, step string, payload interface{}, priority string) (bool, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return false, fmt.Errorf("marshal publish payload: %w", err)
	}

	subject := g.queueSubject(messageType, step)
	env := Envelope{Environment: g.env, QueueTarget: subject, Priority: priority, Payload: raw}

	body, err := json.Marshal(env)
	if err != nil {
		return false, fmt.Errorf("marshal envelope: %w", err)
	}

	ack, err := g.js.Publish(subject, body)
	if err != nil {
		log.Printf("⚠️  publish to %s not acknowledged: %v", subject, err)
		return false, nil
	}
	return ack != nil, nil
}

// Handler processes one message's payload and reports success or a
// descriptive failure. It never causes a requeue — see package doc.
type Handler func(payload json.RawMessage) error

// Consume starts a long-running durable pull consumer with prefetch 1,
// delivering each message exactly once to handler. Acknowledgement is
// unconditional: a handler error is logged and the message is still
// Ack()'d, per the auto-ack-without-requeue policy — callers are expected
// to record the failure against the ledger row themselves inside handler.
// Consume blocks until ctx is cancelled.
func (g *Gateway) Consume(ctx context.Context, messageType, step string, handler Handler) error {
	subject := g.queueSubject(messageType, step)
	durable := fmt.Sprintf("%s-%s-consumer", messageType, step)

	sub, err := g.js.PullSubscribe(subject, durable, nats.PullMaxWaiting(1))
	if err != nil {
		return fmt.Errorf("pull subscribe %s: %w", subject, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		msgs, err := sub.Fetch(1, nats.Context(ctx))
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			continue // nats.ErrTimeout on an empty queue is expected, not an error
		}

		for _, msg := range msgs {
			g.deliverOnce(msg, subject, handler)
		}
	}
}

// BatchConsume drains at most n messages then returns, for scheduled
// aggregators that are not long-running daemons.
func (g *Gateway) BatchConsume(ctx context.Context, messageType, step string, n int, handler Handler) (int, error) {
	subject := g.queueSubject(messageType, step)
	durable := fmt.Sprintf("%s-%s-batch-consumer", messageType, step)

	sub, err := g.js.PullSubscribe(subject, durable, nats.PullMaxWaiting(1))
	if err != nil {
		return 0, fmt.Errorf("pull subscribe %s: %w", subject, err)
	}

	msgs, err := sub.Fetch(n, nats.Context(ctx))
	if err != nil && len(msgs) == 0 {
		return 0, nil
	}

	for _, msg := range msgs {
		g.deliverOnce(msg, subject, handler)
	}
	return len(msgs), nil
}

func (g *Gateway) deliverOnce(msg *nats.Msg, subject string, handler Handler) {
	var env Envelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		log.Printf("⚠️  malformed envelope on %s: %v", subject, err)
		msg.Ack()
		return
	}

	if err := handler(env.Payload); err != nil {
		log.Printf("⚠️  handler failed for %s: %v (ledger records failure; message is not requeued)", subject, err)
	}
	msg.Ack()
}

// Close drains and closes the underlying NATS connection.
func (g *Gateway) Close() {
	g.nc.Close()
}
