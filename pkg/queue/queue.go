// Package queue implements the worker pool and priority queues (C8): a
// direct exchange bound to three durable queues (high, normal, low),
// consumed by an elastic worker pool that always drains high before
// normal before low when idle, acknowledging manually only on a terminal
// ProcessedFile status.
package queue

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/b2bgate/xmlgate/internal/contract"
	xgerrors "github.com/b2bgate/xmlgate/internal/errors"
	"github.com/b2bgate/xmlgate/internal/metrics"
	"github.com/b2bgate/xmlgate/pkg/batch"
	"github.com/b2bgate/xmlgate/pkg/model"
)

// Config names the broker topology and pool sizing, mirroring the
// rabbitmq.* configuration keys.
type Config struct {
	AMQPURL           string
	Exchange          string
	QueueHigh         string
	QueueNormal       string
	QueueLow          string
	Concurrent        int
	MaxConcurrent     int
	ShutdownGrace     time.Duration
	PrefetchMin       int
	PrefetchMax       int
	AllowedExtensions []string // asn.file.storage.allowedExtensions; empty means no restriction
}

// DefaultConfig matches spec.md §6's rabbitmq.* keys' conventional values.
func DefaultConfig() Config {
	return Config{
		Exchange:      "xmlgate.inbound",
		QueueHigh:     "xmlgate.inbound.high",
		QueueNormal:   "xmlgate.inbound.normal",
		QueueLow:      "xmlgate.inbound.low",
		Concurrent:    4,
		MaxConcurrent: 16,
		ShutdownGrace: 30 * time.Second,
		PrefetchMin:   10,
		PrefetchMax:   1000,
	}
}

// wireEnvelope is the JSON-on-the-wire shape from spec.md §6: file_bytes
// base64-encoded, the rest as plain fields.
type wireEnvelope struct {
	FileBytes   string    `json:"file_bytes"`
	FileName    string    `json:"file_name"`
	ClientID    int64     `json:"client_id"`
	InterfaceID int64     `json:"interface_id"`
	Priority    string    `json:"priority"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
}

func decodeEnvelope(body []byte) (model.MessageEnvelope, error) {
	var w wireEnvelope
	if err := json.Unmarshal(body, &w); err != nil {
		return model.MessageEnvelope{}, xgerrors.NewParseError("decoding message envelope", err)
	}
	raw, err := base64.StdEncoding.DecodeString(w.FileBytes)
	if err != nil {
		return model.MessageEnvelope{}, xgerrors.NewParseError("decoding base64 file_bytes", err)
	}
	return model.MessageEnvelope{
		FileBytes:   raw,
		FileName:    w.FileName,
		ClientID:    w.ClientID,
		InterfaceID: w.InterfaceID,
		Priority:    model.Priority(w.Priority),
		EnqueuedAt:  w.EnqueuedAt,
	}, nil
}

// Handler runs one envelope to completion. It is expected never to panic
// and to communicate outcome purely through its error return: the worker
// loop's ack/nack decision is status-driven, not exception-driven.
type Handler interface {
	Process(ctx context.Context, env model.MessageEnvelope) error
}

// HandlerFunc adapts a plain function to Handler, the http.HandlerFunc
// idiom applied to one envelope instead of one request.
type HandlerFunc func(ctx context.Context, env model.MessageEnvelope) error

func (f HandlerFunc) Process(ctx context.Context, env model.MessageEnvelope) error {
	return f(ctx, env)
}

// Pool owns the broker connection and the worker goroutines draining its
// three priority queues.
type Pool struct {
	cfg     Config
	handler Handler
	sizer   *batch.Sizer
	log     *slog.Logger

	conn *amqp.Connection
	ch   *amqp.Channel

	sem      chan struct{}
	wg       sync.WaitGroup
	stopping chan struct{}
	stopOnce sync.Once
}

// Dial connects to the broker and declares the exchange/queues/bindings
// this pool consumes. It does not start consuming until Run is called.
func Dial(cfg Config, handler Handler, sizer *batch.Sizer, log *slog.Logger) (*Pool, error) {
	if log == nil {
		log = slog.Default()
	}
	conn, err := amqp.Dial(cfg.AMQPURL)
	if err != nil {
		return nil, xgerrors.NewPersistenceError("dialing message broker", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, xgerrors.NewPersistenceError("opening broker channel", err)
	}

	if err := declareTopology(ch, cfg); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}

	return &Pool{
		cfg:      cfg,
		handler:  handler,
		sizer:    sizer,
		log:      log,
		conn:     conn,
		ch:       ch,
		sem:      make(chan struct{}, max(cfg.MaxConcurrent, cfg.Concurrent, 1)),
		stopping: make(chan struct{}),
	}, nil
}

func declareTopology(ch *amqp.Channel, cfg Config) error {
	if err := ch.ExchangeDeclare(cfg.Exchange, "direct", true, false, false, false, nil); err != nil {
		return xgerrors.NewPersistenceError("declaring exchange", err)
	}
	routes := map[string]string{
		string(model.PriorityHigh):   cfg.QueueHigh,
		string(model.PriorityNormal): cfg.QueueNormal,
		string(model.PriorityLow):    cfg.QueueLow,
	}
	for routingKey, queueName := range routes {
		if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
			return xgerrors.NewPersistenceError("declaring queue "+queueName, err)
		}
		if err := ch.QueueBind(queueName, routingKey, cfg.Exchange, false, nil); err != nil {
			return xgerrors.NewPersistenceError("binding queue "+queueName, err)
		}
	}
	return nil
}

// Run consumes all three queues until ctx is done or Shutdown is called.
// Prefetch is set from the adaptive batch sizer (§4.8: "prefetch = current
// adaptive batch size, clamped to [prefetch_min, prefetch_max]") and
// refreshed once at start; C9 retuning mid-run takes effect on the next
// Qos call a caller chooses to issue via Requalify.
func (p *Pool) Run(ctx context.Context) error {
	if err := p.Requalify(); err != nil {
		return err
	}

	high, err := p.ch.Consume(p.cfg.QueueHigh, "", false, false, false, false, nil)
	if err != nil {
		return xgerrors.NewPersistenceError("consuming high-priority queue", err)
	}
	normal, err := p.ch.Consume(p.cfg.QueueNormal, "", false, false, false, false, nil)
	if err != nil {
		return xgerrors.NewPersistenceError("consuming normal-priority queue", err)
	}
	low, err := p.ch.Consume(p.cfg.QueueLow, "", false, false, false, false, nil)
	if err != nil {
		return xgerrors.NewPersistenceError("consuming low-priority queue", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-p.stopping:
			return nil
		default:
		}

		// Priority drain: try high first, then normal, then low, each with
		// a non-blocking peek before falling through, so a worker idle on
		// low-priority work picks up a newly arrived high-priority message
		// immediately rather than waiting on its current select arm.
		select {
		case d, ok := <-high:
			if ok {
				p.dispatch(ctx, d)
			}
			continue
		default:
		}
		select {
		case d, ok := <-normal:
			if ok {
				p.dispatch(ctx, d)
			}
			continue
		default:
		}

		select {
		case <-ctx.Done():
			return nil
		case <-p.stopping:
			return nil
		case d, ok := <-high:
			if ok {
				p.dispatch(ctx, d)
			}
		case d, ok := <-normal:
			if ok {
				p.dispatch(ctx, d)
			}
		case d, ok := <-low:
			if ok {
				p.dispatch(ctx, d)
			}
		case <-time.After(100 * time.Millisecond):
			// Re-evaluate the priority order instead of blocking
			// indefinitely on whichever channel happened to be selected.
		}
	}
}

// SetSizer attaches the adaptive batch sizer after Dial, breaking the
// construction cycle between Pool (which the sizer samples) and Sizer
// (which Pool needs for Requalify): callers build Pool first, then a
// Sizer over Pool as its Sampler, then attach it back.
func (p *Pool) SetSizer(sizer *batch.Sizer) {
	p.sizer = sizer
}

// QueueDepth implements batch.Sampler by summing the three priority
// queues' message counts as reported by the broker. A failed inspect on
// one queue is treated as zero depth for that queue rather than aborting
// the whole sample.
func (p *Pool) QueueDepth() int {
	total := 0
	for priority, name := range map[string]string{
		string(model.PriorityHigh):   p.cfg.QueueHigh,
		string(model.PriorityNormal): p.cfg.QueueNormal,
		string(model.PriorityLow):    p.cfg.QueueLow,
	} {
		if q, err := p.ch.QueueInspect(name); err == nil {
			total += q.Messages
			metrics.SetQueueDepth(priority, q.Messages)
		}
	}
	return total
}

// SystemLoad implements batch.Sampler as the fraction of worker slots
// currently occupied, a direct proxy for this pool's own saturation
// rather than host-wide CPU load (no system-load library surfaced in the
// reference corpus; see DESIGN.md).
func (p *Pool) SystemLoad() float64 {
	if cap(p.sem) == 0 {
		return 0
	}
	return float64(len(p.sem)) / float64(cap(p.sem))
}

// Requalify re-applies Qos from the sizer's current batch size, clamped
// to the pool's prefetch bounds.
func (p *Pool) Requalify() error {
	prefetch := p.cfg.PrefetchMin
	if p.sizer != nil {
		prefetch = p.sizer.PrefetchFor(p.cfg.PrefetchMin, p.cfg.PrefetchMax)
	}
	if err := p.ch.Qos(prefetch, 0, false); err != nil {
		return xgerrors.NewPersistenceError("setting consumer prefetch", err)
	}
	return nil
}

// dispatch acquires a worker slot (a goroutine is started per message, so
// the pool grows with demand up to MaxConcurrent slots, one message per
// worker at a time) and runs the handler, acking or nacking
// strictly from its returned error — never from a panic, which would
// leave the message neither acked nor nacked.
func (p *Pool) dispatch(ctx context.Context, d amqp.Delivery) {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		_ = d.Nack(false, false)
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() { <-p.sem }()

		env, err := decodeEnvelope(d.Body)
		if err != nil {
			p.log.Error("queue.message.decode_failed", "error", err)
			_ = d.Nack(false, false)
			return
		}

		if res := contract.ValidateEnvelope(env.FileName, env.FileBytes, p.cfg.AllowedExtensions); !res.OK {
			p.log.Error("queue.message.validation_failed", "file_name", env.FileName, "reason", res.Message)
			_ = d.Nack(false, false)
			return
		}

		if err := p.handler.Process(ctx, env); err != nil {
			p.log.Error("queue.message.process_failed", "file_name", env.FileName, "error", err)
			if requeueable(err) {
				// Timeout/Interrupted leave the ProcessedFile row in
				// PROCESSING rather than a terminal state (the pipeline
				// may still be committing, or was cut short by a
				// graceful shutdown): requeue so another attempt can
				// still reach a terminal status, per testable property
				// §8.1 ("no row remains PROCESSING after the worker
				// acknowledges a message").
				if err := d.Nack(false, true); err != nil {
					p.log.Error("queue.message.nack_failed", "file_name", env.FileName, "error", err)
				}
				return
			}
		}
		// Every other outcome (success, or a terminal ERROR the pipeline
		// orchestrator already recorded for the ProcessedFile row) acks:
		// spec's propagation policy treats error outcomes as terminal,
		// with no broker requeue.
		if err := d.Ack(false); err != nil {
			p.log.Error("queue.message.ack_failed", "file_name", env.FileName, "error", err)
		}
	}()
}

// requeueable reports whether err leaves the ProcessedFile row in a
// non-terminal state (PROCESSING), so the message must go back on the
// queue instead of being permanently discarded by an ack.
func requeueable(err error) bool {
	var ue *xgerrors.UserError
	if !errors.As(err, &ue) {
		return false
	}
	return ue.Kind == xgerrors.KindTimeout || ue.Kind == xgerrors.KindInterrupted
}

// Shutdown stops accepting new deliveries, waits up to ShutdownGrace for
// in-flight handlers to finish, then closes the channel/connection so the
// broker requeues whatever is still unacked.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.stopOnce.Do(func() { close(p.stopping) })

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(p.cfg.ShutdownGrace):
	case <-ctx.Done():
	}

	if err := p.ch.Close(); err != nil {
		return xgerrors.NewPersistenceError("closing broker channel", err)
	}
	if err := p.conn.Close(); err != nil {
		return xgerrors.NewPersistenceError("closing broker connection", err)
	}
	return nil
}

// Publish encodes env and routes it to the queue matching env.Priority.
// Used by tests and by any in-process producer adapter; SFTP/AS2 adapters
// themselves are out of scope.
func (p *Pool) Publish(ctx context.Context, env model.MessageEnvelope) error {
	body, err := json.Marshal(wireEnvelope{
		FileBytes:   base64.StdEncoding.EncodeToString(env.FileBytes),
		FileName:    env.FileName,
		ClientID:    env.ClientID,
		InterfaceID: env.InterfaceID,
		Priority:    string(env.Priority),
		EnqueuedAt:  env.EnqueuedAt,
	})
	if err != nil {
		return xgerrors.NewPersistenceError("encoding message envelope", err)
	}

	routingKey := string(env.Priority)
	if routingKey == "" {
		routingKey = string(model.PriorityNormal)
	}

	return p.ch.PublishWithContext(ctx, p.cfg.Exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
}
