// Package notify turns order events into customer notifications stored in
// Redis.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	kafkax "github.com/ariefcatur/go-pcparts-orders/internal/kafka"
	"github.com/ariefcatur/go-pcparts-orders/internal/orders"
	"github.com/ariefcatur/go-pcparts-orders/internal/redisx"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	kafkago "github.com/segmentio/kafka-go"
)

type Notification struct {
	EventID   string    `json:"event_id"`
	OrderID   string    `json:"order_id"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

type Service struct {
	Redis       redis.Cmdable
	ServiceName string
}

// HandleOrderEvent is installed as the consumer handler.
func (s *Service) HandleOrderEvent(ctx context.Context, m kafkago.Message) error {
	env, err := kafkax.DecodeEnvelope(m.Value)
	if err != nil {
		// Undecodable messages will never succeed; drop them.
		log.Error().Err(err).Int64("offset", m.Offset).Msg("skipping malformed event")
		return nil
	}

	var (
		userID string
		n      Notification
	)
	switch env.EventType {
	case orders.EventOrderPlaced:
		p, err := kafkax.UnwrapPayload[orders.OrderPlacedPayload](env.Payload)
		if err != nil {
			return err
		}
		userID = p.UserID
		n = Notification{
			OrderID: p.OrderID,
			Message: fmt.Sprintf("Order %s placed: %d item(s), total %s.", p.OrderID, len(p.Items), p.TotalAmount.StringFixed(2)),
		}
	case orders.EventOrderCancelled:
		p, err := kafkax.UnwrapPayload[orders.OrderCancelledPayload](env.Payload)
		if err != nil {
			return err
		}
		userID = p.UserID
		n = Notification{OrderID: p.OrderID, Message: fmt.Sprintf("Order %s was cancelled.", p.OrderID)}
	default:
		return nil // ignore
	}
	n.EventID = env.EventID
	n.Type = env.EventType
	n.CreatedAt = env.OccurredAt

	dkey := fmt.Sprintf(redisx.KeyDedup, s.ServiceName, env.EventID)
	first, err := redisx.Claim(ctx, s.Redis, dkey, redisx.TTLDedup)
	if err != nil {
		return fmt.Errorf("dedup %s: %w", env.EventID, err)
	}
	if !first {
		return nil
	}

	if err := s.push(ctx, userID, n); err != nil {
		// Let a redelivery try again.
		_ = s.Redis.Del(ctx, dkey).Err()
		return err
	}
	log.Debug().Str("user_id", userID).Str("order_id", n.OrderID).Str("event_type", n.Type).Msg("notification stored")
	return nil
}

func (s *Service) push(ctx context.Context, userID string, n Notification) error {
	b, err := json.Marshal(n)
	if err != nil {
		return err
	}
	key := fmt.Sprintf(redisx.KeyNotifications, userID)
	if err := s.Redis.LPush(ctx, key, b).Err(); err != nil {
		return fmt.Errorf("push notification: %w", err)
	}
	if err := s.Redis.LTrim(ctx, key, 0, redisx.MaxNotifications-1).Err(); err != nil {
		return fmt.Errorf("trim notifications: %w", err)
	}
	return nil
}

// List returns the user's most recent notifications, newest first.
func (s *Service) List(ctx context.Context, userID string, limit int) ([]Notification, error) {
	if limit <= 0 || limit > redisx.MaxNotifications {
		limit = redisx.MaxNotifications
	}
	raw, err := s.Redis.LRange(ctx, fmt.Sprintf(redisx.KeyNotifications, userID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	out := make([]Notification, 0, len(raw))
	for _, r := range raw {
		var n Notification
		if err := json.Unmarshal([]byte(r), &n); err != nil {
			log.Warn().Err(err).Str("user_id", userID).Msg("skipping bad notification")
			continue
		}
		out = append(out, n)
	}
	return out, nil
}
