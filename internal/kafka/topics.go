package kafka

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"ms-auctions/internal/config"
	"ms-auctions/internal/logger"
)

// EnsureTopicsExist creates the auction event topics if the broker does
// not have them yet. Failures on individual topics are logged and
// skipped so one bad topic never blocks startup.
func EnsureTopicsExist(cfg config.KafkaConfig, log *logger.Logger) error {
	conn, err := kafka.Dial("tcp", cfg.Brokers[0])
	if err != nil {
		return fmt.Errorf("failed to dial broker: %w", err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("failed to find controller: %w", err)
	}
	controllerConn, err := kafka.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return fmt.Errorf("failed to dial controller: %w", err)
	}
	defer controllerConn.Close()

	topics := []string{
		cfg.Topics.PriceUpdated,
		cfg.Topics.AuctionOpened,
		cfg.Topics.AuctionClosed,
		cfg.Topics.OrderCreated,
	}
	for _, topic := range topics {
		err := controllerConn.CreateTopics(kafka.TopicConfig{
			Topic:             topic,
			NumPartitions:     1,
			ReplicationFactor: 1,
		})
		if err != nil {
			if strings.Contains(err.Error(), "already exists") {
				continue
			}
			log.Error("KAFKA", fmt.Sprintf("Failed to create topic %s: %v", topic, err))
			continue
		}
		log.Info("KAFKA", fmt.Sprintf("Created topic: %s", topic))
	}

	// Give the broker a moment to propagate metadata.
	time.Sleep(1 * time.Second)
	return nil
}
