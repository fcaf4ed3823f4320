package notify

import (
	"context"
	"errors"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"orgkit-backend/internal/models"
	"orgkit-backend/internal/natsbus"
)

const (
	durableName     = "orgkit-notifier"
	fetchRetryDelay = 2 * time.Second
)

var errUndecodable = errors.New("undecodable event")

type InviteMailer interface {
	SendInvite(ctx context.Context, event models.EmailInviteRequested) error
}

type JoinNotifier interface {
	SendMemberJoined(ctx context.Context, event models.MemberJoined) error
}

// DeliveryLog is the subset of nats.KeyValue used to remember sent invites.
type DeliveryLog interface {
	Get(key string) (nats.KeyValueEntry, error)
	Put(key string, value []byte) (uint64, error)
}

// Dispatcher routes decoded organization events to their side effects.
type Dispatcher struct {
	mailer     InviteMailer
	notifier   JoinNotifier
	deliveries DeliveryLog
	logger     *zap.Logger
}

func NewDispatcher(mailer InviteMailer, notifier JoinNotifier, deliveries DeliveryLog, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{mailer: mailer, notifier: notifier, deliveries: deliveries, logger: logger}
}

// Handle processes one message. Undecodable payloads return errUndecodable.
func (d *Dispatcher) Handle(ctx context.Context, subject string, data []byte) error {
	switch subject {
	case models.SubjectEmailInviteRequested:
		var event models.EmailInviteRequested
		if err := natsbus.Decode(data, &event); err != nil {
			return errUndecodable
		}
		return d.sendInvite(ctx, event)

	case models.SubjectMemberJoined:
		var event models.MemberJoined
		if err := natsbus.Decode(data, &event); err != nil {
			return errUndecodable
		}
		return d.notifier.SendMemberJoined(ctx, event)

	default:
		d.logger.Debug("ignoring event", zap.String("subject", subject))
		return nil
	}
}

func (d *Dispatcher) sendInvite(ctx context.Context, event models.EmailInviteRequested) error {
	if d.deliveries != nil && event.InviteID != "" {
		if _, err := d.deliveries.Get(event.InviteID); err == nil {
			d.logger.Info("invite email already sent", zap.String("invite_id", event.InviteID))
			return nil
		} else if !errors.Is(err, nats.ErrKeyNotFound) {
			return err
		}
	}

	if err := d.mailer.SendInvite(ctx, event); err != nil {
		return err
	}

	if d.deliveries != nil && event.InviteID != "" {
		if _, err := d.deliveries.Put(event.InviteID, []byte(time.Now().UTC().Format(time.RFC3339))); err != nil {
			d.logger.Warn("failed to record invite delivery",
				zap.String("invite_id", event.InviteID), zap.Error(err))
		}
	}
	return nil
}

// pullSubscription is the part of *nats.Subscription the consume loop uses.
type pullSubscription interface {
	Fetch(batch int, opts ...nats.PullOpt) ([]*nats.Msg, error)
	Drain() error
}

// Consumer pulls organization events from JetStream.
type Consumer struct {
	js         nats.JetStreamContext
	dispatcher *Dispatcher
	logger     *zap.Logger
	sub        pullSubscription
	retryDelay time.Duration
}

func NewConsumer(js nats.JetStreamContext, dispatcher *Dispatcher, logger *zap.Logger) *Consumer {
	return &Consumer{js: js, dispatcher: dispatcher, logger: logger, retryDelay: fetchRetryDelay}
}

// Start begins consuming events from JetStream.
func (c *Consumer) Start(ctx context.Context) error {
	sub, err := c.js.PullSubscribe(
		"orgs.>",
		durableName,
		nats.BindStream(natsbus.StreamName),
		nats.ManualAck(),
		nats.AckWait(30*time.Second),
		nats.MaxDeliver(5),
		nats.MaxAckPending(256),
	)
	if err != nil {
		return err
	}
	c.sub = sub

	go c.consumeLoop(ctx)
	c.logger.Info("notification consumer started", zap.String("durable", durableName))
	return nil
}

func (c *Consumer) consumeLoop(ctx context.Context) {
	sizer := newFetchSizer(16, 4, 128)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msgs, err := c.sub.Fetch(sizer.size, nats.MaxWait(5*time.Second))
		if err != nil && !errors.Is(err, nats.ErrTimeout) {
			c.logger.Warn("fetch error", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.retryDelay):
			}
			continue
		}
		sizer.observe(len(msgs))

		for _, msg := range msgs {
			c.process(ctx, msg)
		}
	}
}

func (c *Consumer) process(ctx context.Context, msg *nats.Msg) {
	err := c.dispatcher.Handle(ctx, msg.Subject, msg.Data)
	switch {
	case errors.Is(err, errUndecodable):
		c.logger.Error("undecodable event, terminating", zap.String("subject", msg.Subject))
		_ = msg.Term()
	case err != nil:
		c.logger.Warn("event handling failed", zap.String("subject", msg.Subject), zap.Error(err))
		_ = msg.NakWithDelay(5 * time.Second)
	default:
		_ = msg.Ack()
	}
}

// Stop gracefully stops the consumer.
func (c *Consumer) Stop() error {
	if c.sub != nil {
		return c.sub.Drain()
	}
	return nil
}

// fetchSizer grows the batch after three full fetches and shrinks it after
// three empty ones.
type fetchSizer struct {
	size, min, max int
	full, empty    int
}

func newFetchSizer(initial, min, max int) *fetchSizer {
	return &fetchSizer{size: initial, min: min, max: max}
}

func (f *fetchSizer) observe(n int) {
	switch {
	case n == 0:
		f.empty++
		f.full = 0
		if f.empty >= 3 && f.size > f.min {
			f.size /= 2
			if f.size < f.min {
				f.size = f.min
			}
			f.empty = 0
		}
	case n == f.size:
		f.full++
		f.empty = 0
		if f.full >= 3 && f.size < f.max {
			f.size *= 2
			if f.size > f.max {
				f.size = f.max
			}
			f.full = 0
		}
	default:
		f.full = 0
		f.empty = 0
	}
}
