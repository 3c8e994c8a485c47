package alerts

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/danisworo/pos-engine/internal/kafka"
	"github.com/danisworo/pos-engine/internal/pos"
	"github.com/danisworo/pos-engine/internal/redisx"
)

// Service consumes stock alert events and surfaces them to operators.
// Today that means structured log lines an alerting pipeline tails; the
// Redis dedup keeps redelivered events from paging twice.
type Service struct {
	Redis       *redis.Client
	Log         zerolog.Logger
	ServiceName string
}

func (s *Service) HandleStockAlert(ctx context.Context, m kafkago.Message) error {
	var env pos.Envelope
	if err := kafkax.UnmarshalEnvelope(m.Value, &env); err != nil {
		s.Log.Error().Err(err).Msg("bad stock alert envelope, skipping")
		return nil // poison message, commit and move on
	}

	dedupKey := fmt.Sprintf(redisx.KeyDedup, s.ServiceName, env.EventID)
	fresh, err := s.Redis.SetNX(ctx, dedupKey, 1, redisx.TTLDedup).Result()
	if err != nil {
		return err // transient, leave uncommitted for redelivery
	}
	if !fresh {
		return nil
	}

	p, err := kafkax.UnwrapPayload[pos.StockAlertPayload](env.Payload)
	if err != nil {
		s.Log.Error().Err(err).Str("event_id", env.EventID).Msg("bad stock alert payload, skipping")
		return nil
	}

	ev := s.Log.Warn()
	if p.Kind == pos.AlertOversell {
		ev = s.Log.Error()
	}
	ev.Str("kind", string(p.Kind)).
		Str("product_id", p.ProductID).
		Str("product_name", p.ProductName).
		Int("stock", p.Stock).
		Int("threshold", p.Threshold).
		Str("reference_id", p.ReferenceID).
		Msg("stock alert")
	return nil
}
