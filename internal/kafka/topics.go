package kafka

import (
	"log"
	"net"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
)

// Waiting-list lifecycle topics. Consumers (notification and UI services)
// are external to this service.
const (
	TopicOfferGranted    = "waitlist.offer.granted"
	TopicOfferExpired    = "waitlist.offer.expired"
	TopicEntryReleased   = "waitlist.entry.released"
	TopicTicketPurchased = "waitlist.ticket.purchased"
)

// RequiredTopics lists every topic this service publishes to.
func RequiredTopics() []string {
	return []string{
		TopicOfferGranted,
		TopicOfferExpired,
		TopicEntryReleased,
		TopicTicketPurchased,
	}
}

// EnsureTopicsExist creates the given topics if the broker does not already
// have them.
func EnsureTopicsExist(brokers []string, topics []string) error {
	conn, err := kafka.Dial("tcp", brokers[0])
	if err != nil {
		return err
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return err
	}
	controllerConn, err := kafka.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return err
	}
	defer controllerConn.Close()

	for _, topic := range topics {
		topicConfigs := []kafka.TopicConfig{
			{
				Topic:             topic,
				NumPartitions:     1,
				ReplicationFactor: 1,
			},
		}

		if err := controllerConn.CreateTopics(topicConfigs...); err != nil {
			if err.Error() == "kafka server: topic already exists" {
				continue
			}
			log.Printf("Error creating topic %s: %v", topic, err)
		} else {
			log.Printf("Created topic: %s", topic)
		}
	}

	// Give the broker a moment to settle new topics.
	time.Sleep(1 * time.Second)
	return nil
}
