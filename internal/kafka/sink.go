package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/danisworo/pos-engine/internal/pos"
)

// Sink routes domain events to their Kafka topics through the buffered
// producers. It satisfies pos.EventSink: Emit never blocks and never
// surfaces an error to the caller.
type Sink struct {
	producers map[string]*Producer // event name -> producer
	service   string
	log       zerolog.Logger
}

func NewSink(service string, log zerolog.Logger) *Sink {
	return &Sink{
		producers: make(map[string]*Producer),
		service:   service,
		log:       log,
	}
}

// Route binds an event name to the producer of its topic.
func (s *Sink) Route(event string, p *Producer) { s.producers[event] = p }

func (s *Sink) Emit(ctx context.Context, event, key string, payload any) {
	p, ok := s.producers[event]
	if !ok {
		s.log.Warn().Str("event", event).Msg("no producer route for event")
		return
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		s.log.Error().Err(err).Str("event", event).Msg("marshal event payload")
		return
	}
	env := pos.Envelope{
		EventID:       uuid.NewString(),
		EventType:     event,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      s.service,
		CorrelationID: key,
		Payload:       raw,
	}
	env.TraceID = pos.TraceIDFromContext(ctx)

	p.Publish(pos.PartitionKey(key), MustMarshal(env),
		kafkago.Header{Key: "x-event-type", Value: []byte(event)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
