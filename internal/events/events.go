// Package events publishes order lifecycle notifications for downstream
// consumers such as fulfilment and analytics.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/safar/stockorder/internal/models"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
)

type Publisher interface {
	PublishOrderCreated(ctx context.Context, order models.Order) error
}

// OrderCreated is the wire form of a committed order.
type OrderCreated struct {
	OrderID   int64           `json:"order_id"`
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Total     decimal.Decimal `json:"total"`
	Date      time.Time       `json:"date"`
}

func NewOrderCreated(order models.Order) OrderCreated {
	return OrderCreated{
		OrderID:   order.ID,
		ProductID: order.ProductID,
		Quantity:  order.Quantity,
		Total:     order.Total,
		Date:      order.Date,
	}
}

// MessageWriter is the subset of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer MessageWriter
}

func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           10 * time.Millisecond,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

func NewKafkaPublisher(writer MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: writer}
}

// PublishOrderCreated keys messages by order id so redeliveries of the same
// order land on the same partition.
func (p *KafkaPublisher) PublishOrderCreated(ctx context.Context, order models.Order) error {
	value, err := json.Marshal(NewOrderCreated(order))
	if err != nil {
		return fmt.Errorf("encode order created: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatInt(order.ID, 10)),
		Value: value,
		Time:  order.Date,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte("order.created")},
		},
	})
	if err != nil {
		return fmt.Errorf("publish order %d: %w", order.ID, err)
	}

	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

type NopPublisher struct{}

func (NopPublisher) PublishOrderCreated(context.Context, models.Order) error { return nil }
