// Package notify carries object-created notifications over Kafka.
//
// Messages use the S3 event notification format, which is also what MinIO
// publishes to a Kafka target: a JSON object with a "Records" array.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/segmentio/kafka-go"
)

const ObjectCreatedPut = "ObjectCreated:Put"

// HandlerFunc processes one decoded notification.
type HandlerFunc func(ctx context.Context, ev events.S3Event) error

// Decode parses a notification payload.
func Decode(payload []byte) (events.S3Event, error) {
	var ev events.S3Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return events.S3Event{}, fmt.Errorf("notify.Decode: %w", err)
	}
	if len(ev.Records) == 0 {
		return events.S3Event{}, errors.New("notify.Decode: no records")
	}
	return ev, nil
}

// NewObjectCreated builds the notification S3 would send for a new object.
// The key is form-encoded, as the processor expects.
func NewObjectCreated(region, bucket, key string, size int64, at time.Time) events.S3Event {
	return events.S3Event{Records: []events.S3EventRecord{{
		EventVersion: "2.1",
		EventSource:  "aws:s3",
		AWSRegion:    region,
		EventTime:    at.UTC(),
		EventName:    ObjectCreatedPut,
		S3: events.S3Entity{
			SchemaVersion: "1.0",
			Bucket:        events.S3Bucket{Name: bucket},
			Object:        events.S3Object{Key: url.QueryEscape(key), Size: size},
		},
	}}}
}

// Publisher writes notifications to a topic.
type Publisher struct {
	writer *kafka.Writer
}

func NewPublisher(broker, topic string) *Publisher {
	return &Publisher{writer: &kafka.Writer{
		Addr:     kafka.TCP(broker),
		Topic:    topic,
		Balancer: &kafka.Hash{},
	}}
}

// Publish sends ev keyed by the first record's object key, so notifications
// for one object stay on one partition.
func (p *Publisher) Publish(ctx context.Context, ev events.S3Event) error {
	const op = "notify.Publish"

	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	var key []byte
	if len(ev.Records) > 0 {
		key = []byte(ev.Records[0].S3.Object.Key)
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{Key: key, Value: value}); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

const commitTimeout = 10 * time.Second

// messageReader is the part of *kafka.Reader the consumer uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads notifications as part of a consumer group.
type Consumer struct {
	reader  messageReader
	handler HandlerFunc
}

func NewConsumer(broker, topic, groupID string, handler HandlerFunc) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers: []string{broker},
			Topic:   topic,
			GroupID: groupID,
		}),
		handler: handler,
	}
}

// Run handles messages one at a time until ctx is cancelled. Offsets are
// committed after the handler returns, whatever its result: redelivery is
// left to whoever re-publishes the notification. Cancelling ctx only stops
// the fetch; a message already fetched is handled and committed in full.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.reader.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			log.Printf("notify: error reading message: %v", err)
			continue
		}

		c.handle(ctx, msg)
		c.commit(ctx, msg)
	}
}

func (c *Consumer) commit(ctx context.Context, msg kafka.Message) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
	defer cancel()

	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		log.Printf("notify: commit offset %d: %v", msg.Offset, err)
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) {
	// The pipeline deletes the original last; stopping halfway would leave
	// a resized copy with no gallery row.
	ctx = context.WithoutCancel(ctx)

	ev, err := Decode(msg.Value)
	if err != nil {
		log.Printf("notify: dropping message at offset %d: %v", msg.Offset, err)
		return
	}
	if err := c.handler(ctx, ev); err != nil {
		log.Printf("notify: error processing message at offset %d: %v", msg.Offset, err)
	}
}
