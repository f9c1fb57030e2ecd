package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/angelmondragon/storefront-checkout/pkg/enums"
	"github.com/angelmondragon/storefront-checkout/pkg/logger"
	"github.com/angelmondragon/storefront-checkout/pkg/outbox"
	"github.com/angelmondragon/storefront-checkout/pkg/outbox/idempotency"
	"github.com/angelmondragon/storefront-checkout/pkg/outbox/payloads"
	"github.com/angelmondragon/storefront-checkout/pkg/telegram"
)

const (
	orderNotificationConsumer = "telegram-order-notifier"
	channelTelegram           = "telegram"
	defaultSendTimeout        = 15 * time.Second
)

type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *pubsub.Message)) error
}

type sender interface {
	SendMessage(ctx context.Context, text, parseMode string) (int64, error)
}

type claimer interface {
	Claim(ctx context.Context, consumer, eventID string) (bool, error)
	Finish(ctx context.Context, consumer, eventID, outcome string) error
	State(ctx context.Context, consumer, eventID string) (idempotency.State, string, error)
}

type payloadDecoder interface {
	Decode(eventType enums.OutboxEventType, version int, payload json.RawMessage) (interface{}, error)
}

type deliveryObserver interface {
	IncDelivery(channel, result string)
}

// ConsumerParams wires the order notification consumer.
type ConsumerParams struct {
	Subscription receiver
	Sender       sender
	Claims       claimer
	Decoders     payloadDecoder
	Metrics      deliveryObserver
	Logger       *logger.Logger
	// MaxAttempts bounds in-call send attempts. Messages are never redelivered.
	MaxAttempts int
}

// Consumer turns order_created events into operator chat messages. Delivery is
// at most once: an event is claimed before sending and every message is acked.
type Consumer struct {
	subscription receiver
	sender       sender
	claims       claimer
	decoders     payloadDecoder
	metrics      deliveryObserver
	logg         *logger.Logger
	maxAttempts  int
	backoff      time.Duration
}

// NewConsumer builds the order notification consumer.
func NewConsumer(params ConsumerParams) (*Consumer, error) {
	if params.Subscription == nil {
		return nil, fmt.Errorf("orders subscription required")
	}
	if params.Sender == nil {
		return nil, fmt.Errorf("notification sender required")
	}
	if params.Claims == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if params.Decoders == nil {
		return nil, fmt.Errorf("payload decoders required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	attempts := params.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	return &Consumer{
		subscription: params.Subscription,
		sender:       params.Sender,
		claims:       params.Claims,
		decoders:     params.Decoders,
		metrics:      params.Metrics,
		logg:         params.Logger,
		maxAttempts:  attempts,
		backoff:      500 * time.Millisecond,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg.ID, msg.Attributes, msg.Data)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	nack   bool
	sent   bool
	reason string
}

func (c *Consumer) process(ctx context.Context, messageID string, attrs map[string]string, data []byte) processResult {
	eventType := enums.OutboxEventType(attrs["event_type"])
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": messageID,
		"event_type": eventType,
	})

	if eventType != enums.EventOrderCreated {
		c.logg.Debug(logCtx, "skipping event not handled by order notifier")
		return processResult{reason: "ignored"}
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		return c.finish(processResult{reason: "invalid"})
	}
	logCtx = c.logg.WithField(logCtx, "event_id", envelope.EventID)

	version := envelope.Version
	if version == 0 {
		version = 1
	}
	decoded, err := c.decoders.Decode(eventType, version, envelope.Data)
	if err != nil {
		c.logg.Error(logCtx, "failed to decode order payload", err)
		return c.finish(processResult{reason: "invalid"})
	}
	event, ok := decoded.(*payloads.OrderCreatedEvent)
	if !ok {
		c.logg.Error(logCtx, "unexpected payload type", fmt.Errorf("got %T", decoded))
		return c.finish(processResult{reason: "invalid"})
	}
	logCtx = c.logg.WithOrderID(logCtx, event.OrderID.String())

	claimed, err := c.claims.Claim(ctx, orderNotificationConsumer, envelope.EventID)
	if err != nil {
		// Nothing was sent yet, so redelivery cannot duplicate the message.
		c.logg.Error(logCtx, "idempotency claim failed", err)
		return c.finish(processResult{nack: true, reason: "claim_failed"})
	}
	if !claimed {
		c.logDuplicate(ctx, logCtx, envelope.EventID)
		return c.finish(processResult{reason: "duplicate"})
	}

	result := processResult{sent: true, reason: "sent"}
	if err := c.send(ctx, FormatOrder(*event)); err != nil {
		c.logg.Error(logCtx, "order notification failed", err)
		result = processResult{reason: "failed"}
	} else {
		c.logg.Info(logCtx, "order notification sent")
	}
	if err := c.claims.Finish(ctx, orderNotificationConsumer, envelope.EventID, result.reason); err != nil {
		c.logg.Warn(c.logg.WithField(logCtx, "error", err.Error()), "could not record notification outcome")
	}
	return c.finish(result)
}

func (c *Consumer) logDuplicate(ctx, logCtx context.Context, eventID string) {
	state, outcome, err := c.claims.State(ctx, orderNotificationConsumer, eventID)
	if err != nil {
		c.logg.Info(logCtx, "order notification already claimed")
		return
	}
	c.logg.Info(c.logg.WithFields(logCtx, map[string]any{
		"claim_state":   string(state),
		"claim_outcome": outcome,
	}), "order notification already claimed")
}

func (c *Consumer) send(ctx context.Context, text string) error {
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		sendCtx, cancel := context.WithTimeout(ctx, defaultSendTimeout)
		_, err := c.sender.SendMessage(sendCtx, text, telegram.ParseModeMarkdown)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		if telegram.IsPermanent(err) || attempt == c.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.backoff * time.Duration(attempt)):
		}
	}
	return lastErr
}

func (c *Consumer) finish(result processResult) processResult {
	if c.metrics != nil && result.reason != "" {
		c.metrics.IncDelivery(channelTelegram, result.reason)
	}
	return result
}
