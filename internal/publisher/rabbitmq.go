package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"estate_sync/internal/domain"
)

type RabbitMQ struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	exchange   string
	routingKey string
	logger     *slog.Logger
}

type Config struct {
	URL        string
	Exchange   string
	RoutingKey string
	QueueName  string
}

func NewRabbitMQ(cfg Config, logger *slog.Logger) (*RabbitMQ, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		cfg.Exchange,
		"direct",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	q, err := ch.QueueDeclare(
		cfg.QueueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}

	err = ch.QueueBind(
		q.Name,
		cfg.RoutingKey,
		cfg.Exchange,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("bind queue: %w", err)
	}

	logger = logger.With("source", "rabbitmq")
	logger.Info("connected to rabbitmq",
		"exchange", cfg.Exchange,
		"queue", cfg.QueueName,
		"routing_key", cfg.RoutingKey,
	)

	return &RabbitMQ{
		conn:       conn,
		channel:    ch,
		exchange:   cfg.Exchange,
		routingKey: cfg.RoutingKey,
		logger:     logger,
	}, nil
}

// ListingMessage is the JSON body of one published listing event.
type ListingMessage struct {
	Action     domain.ListingAction `json:"action"`
	ExternalID int64                `json:"externalId"`
	Listing    *ListingSnapshot     `json:"listing,omitempty"`
	Timestamp  time.Time            `json:"timestamp"`
}

// ListingSnapshot carries the filterable fields of a created or updated
// listing. Consumers load the full record from the database.
type ListingSnapshot struct {
	ID                  int64                  `json:"id"`
	Title               string                 `json:"title"`
	Status              domain.ListingStatus   `json:"status"`
	PropertyType        domain.PropertyType    `json:"propertyType"`
	TransactionType     domain.TransactionType `json:"transactionType"`
	Price               *float64               `json:"price,omitempty"`
	Currency            string                 `json:"currency"`
	City                *string                `json:"city,omitempty"`
	District            *string                `json:"district,omitempty"`
	Geohash             *string                `json:"geohash,omitempty"`
	ExternalLastUpdated time.Time              `json:"externalLastUpdated"`
}

func newMessage(event domain.ListingEvent, now time.Time) ListingMessage {
	msg := ListingMessage{
		Action:     event.Action,
		ExternalID: event.ExternalID,
		Timestamp:  now,
	}
	if l := event.Listing; l != nil && event.Action != domain.ListingArchived {
		msg.Listing = &ListingSnapshot{
			ID:                  l.ID,
			Title:               l.Title,
			Status:              l.Status,
			PropertyType:        l.PropertyType,
			TransactionType:     l.TransactionType,
			Price:               l.Price,
			Currency:            l.Currency,
			City:                l.City,
			District:            l.District,
			Geohash:             l.Geohash,
			ExternalLastUpdated: l.ExternalLastUpdated,
		}
	}
	return msg
}

func (r *RabbitMQ) Publish(ctx context.Context, event domain.ListingEvent) error {
	body, err := json.Marshal(newMessage(event, time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	err = r.channel.PublishWithContext(
		ctx,
		r.exchange,
		r.routingKey,
		false,
		false,
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Type:         string(event.Action),
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}

	r.logger.Debug("published listing event",
		"external_id", event.ExternalID,
		"action", event.Action,
	)

	return nil
}

func (r *RabbitMQ) Close() error {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
