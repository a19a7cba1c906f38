package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"ms-auctions/internal/config"
	"ms-auctions/internal/logger"
	"ms-auctions/internal/models"
)

// Producer streams auction lifecycle events. All Publish methods are
// fire-and-forget: a broker outage is logged but never fails the
// operation that produced the event.
type Producer struct {
	Writer *kafka.Writer
	Topics config.TopicConfig
	logger *logger.Logger
}

func NewProducer(cfg config.KafkaConfig, log *logger.Logger) *Producer {
	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers:      cfg.Brokers,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 50 * time.Millisecond,
	})
	return &Producer{Writer: writer, Topics: cfg.Topics, logger: log}
}

func (p *Producer) publish(topic, key string, payload any) {
	msgBytes, err := json.Marshal(payload)
	if err != nil {
		p.logger.Error("KAFKA", fmt.Sprintf("Failed to marshal event for %s: %v", topic, err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = p.Writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: msgBytes,
	})
	if err != nil {
		p.logger.Error("KAFKA", fmt.Sprintf("Failed to publish to %s: %v", topic, err))
		return
	}
	p.logger.Info("KAFKA", fmt.Sprintf("Published to %s: %s", topic, string(msgBytes)))
}

// PublishPriceUpdate streams a bid-driven price movement.
func (p *Producer) PublishPriceUpdate(ev models.PriceUpdateEvent) {
	p.publish(p.Topics.PriceUpdated, ev.AuctionID, ev)
}

// PublishAuctionStatus streams a sweep-driven open or close transition.
func (p *Producer) PublishAuctionStatus(ev models.AuctionStatusEvent) {
	topic := p.Topics.AuctionOpened
	if ev.Status == models.AuctionClosed {
		topic = p.Topics.AuctionClosed
	}
	p.publish(topic, ev.AuctionID, ev)
}

// PublishOrderCreated streams a materialized auction order.
func (p *Producer) PublishOrderCreated(order models.Order) {
	p.publish(p.Topics.OrderCreated, order.ID, order)
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}
