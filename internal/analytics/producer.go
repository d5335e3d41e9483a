package analytics

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

// Event names.
const (
	EventMovePlayed   = "move_played"
	EventMoveDecided  = "move_decided"
	EventGameFinished = "game_finished"
)

// Event is the envelope written to the topic.
type Event struct {
	Event     string         `json:"event"`
	Payload   map[string]any `json:"payload"`
	Timestamp time.Time      `json:"timestamp"`
}

// Decision describes one engine search.
type Decision struct {
	SessionID string  `json:"sessionId,omitempty"`
	Board     string  `json:"board"`
	Side      string  `json:"side"`
	Strategy  string  `json:"strategy"`
	Ply       int     `json:"ply"`
	Column    int     `json:"column"`
	Value     float64 `json:"value"`
	Nodes     int     `json:"nodes"`
	Leaves    int     `json:"leaves"`
	Cutoffs   int     `json:"cutoffs"`
	Millis    float64 `json:"millis"`
}

func (d Decision) payload() map[string]any {
	return map[string]any{
		"sessionId": d.SessionID,
		"board":     d.Board,
		"side":      d.Side,
		"strategy":  d.Strategy,
		"ply":       d.Ply,
		"column":    d.Column,
		"value":     d.Value,
		"nodes":     d.Nodes,
		"leaves":    d.Leaves,
		"cutoffs":   d.Cutoffs,
		"millis":    d.Millis,
	}
}

type Producer struct {
	writer *kafka.Writer
}

func NewProducer(brokers []string, topic string) *Producer {
	if len(brokers) == 0 || topic == "" {
		return nil
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
	return &Producer{writer: writer}
}

// Publish writes one event keyed by key. A nil producer drops it.
func (p *Producer) Publish(ctx context.Context, key, event string, payload map[string]any) {
	if p == nil || p.writer == nil {
		return
	}
	data, err := json.Marshal(Event{Event: event, Payload: payload, Timestamp: time.Now().UTC()})
	if err != nil {
		log.Warn().Err(err).Str("event", event).Msg("analytics-encode-failed")
		return
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: data})
	if err != nil {
		log.Warn().Err(err).Str("event", event).Msg("kafka-publish-failed")
	}
}

// Decided publishes an engine decision.
func (p *Producer) Decided(ctx context.Context, d Decision) {
	p.Publish(ctx, d.SessionID, EventMoveDecided, d.payload())
}

func (p *Producer) Close() {
	if p == nil || p.writer == nil {
		return
	}
	_ = p.writer.Close()
}
