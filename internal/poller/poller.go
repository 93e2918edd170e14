package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	minBackoff = 200 * time.Millisecond
	maxBackoff = 10 * time.Second
)

var (
	errMissingUserID     = errors.New("missing user_id")
	errMissingCheckoutID = errors.New("missing checkout_id")
)

// CheckoutHandler reacts to a completed checkout. It may see the same
// checkoutID more than once.
type CheckoutHandler interface {
	CheckoutCompleted(ctx context.Context, userID, checkoutID string) error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type checkoutEvent struct {
	CheckoutID string `json:"checkout_id"`
	UserID     string `json:"user_id"`
}

type Config struct {
	Brokers []string
	Topic   string
	GroupID string
}

// Poller consumes the checkout outbox topic and empties the basket of every
// user whose checkout completed. Offsets are committed only after the
// basket was cleared, so events are processed at least once.
type Poller struct {
	reader  messageReader
	handler CheckoutHandler
	logger  *zap.Logger
}

func NewPoller(handler CheckoutHandler, logger *zap.Logger, cfg Config) *Poller {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MaxBytes: 10e6, // 10MB
	})
	return newPoller(reader, handler, logger)
}

func newPoller(reader messageReader, handler CheckoutHandler, logger *zap.Logger) *Poller {
	return &Poller{
		reader:  reader,
		handler: handler,
		logger:  logger.With(zap.String("component", "checkout_poller")),
	}
}

// Run blocks until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	backoff := minBackoff
	for {
		m, err := p.reader.FetchMessage(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			p.logger.Error("error reading message", zap.Error(err))
			if !sleep(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff)
			continue
		}
		backoff = minBackoff

		if !p.process(ctx, m) {
			return
		}
		if err := p.reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			p.logger.Error("failed to commit offset",
				zap.Int("partition", m.Partition), zap.Int64("offset", m.Offset), zap.Error(err))
		}
	}
}

func (p *Poller) Close() {
	if err := p.reader.Close(); err != nil {
		p.logger.Error("error closing reader", zap.Error(err))
	}
}

// process handles one message, retrying failures until they succeed or ctx
// ends. Malformed messages are logged and skipped. It reports false when ctx
// ended first.
func (p *Poller) process(ctx context.Context, m kafka.Message) bool {
	event, err := parseEvent(m.Value)
	if err != nil {
		p.logger.Warn("skipping malformed checkout event",
			zap.Int64("offset", m.Offset), zap.Error(err))
		return true
	}

	backoff := minBackoff
	for {
		err := p.handler.CheckoutCompleted(ctx, event.UserID, event.CheckoutID)
		if err == nil {
			p.logger.Info("basket cleared after checkout",
				zap.String("checkout_id", event.CheckoutID), zap.String("user_id", event.UserID))
			return true
		}
		if ctx.Err() != nil {
			return false
		}

		p.logger.Warn("failed to clear basket, retrying",
			zap.String("checkout_id", event.CheckoutID),
			zap.String("user_id", event.UserID),
			zap.Duration("backoff", backoff),
			zap.Error(err))
		if !sleep(ctx, backoff) {
			return false
		}
		backoff = nextBackoff(backoff)
	}
}

func parseEvent(value []byte) (checkoutEvent, error) {
	var event checkoutEvent
	if err := json.Unmarshal(value, &event); err != nil {
		return event, fmt.Errorf("error parsing message: %w", err)
	}
	if event.UserID == "" {
		return event, errMissingUserID
	}
	if event.CheckoutID == "" {
		return event, errMissingCheckoutID
	}
	return event, nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func nextBackoff(d time.Duration) time.Duration {
	if d *= 2; d > maxBackoff {
		return maxBackoff
	}
	return d
}
