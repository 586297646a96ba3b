package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/segmentio/kafka-go"
)

// Trimmed copy of what MinIO publishes to a Kafka target.
const minioPayload = `{
  "EventName": "s3:ObjectCreated:Put",
  "Key": "wildlens/uploads/1700000000000-0a1b.png",
  "Records": [{
    "eventVersion": "2.0",
    "eventSource": "minio:s3",
    "awsRegion": "",
    "eventTime": "2024-05-01T10:00:00.000Z",
    "eventName": "s3:ObjectCreated:Put",
    "s3": {
      "s3SchemaVersion": "1.0",
      "configurationId": "Config",
      "bucket": {"name": "wildlens", "arn": "arn:aws:s3:::wildlens"},
      "object": {"key": "uploads%2F1700000000000-0a1b.png", "size": 2048, "contentType": "image/png"}
    }
  }]
}`

func TestDecodeMinioPayload(t *testing.T) {
	ev, err := Decode([]byte(minioPayload))
	if err != nil {
		t.Fatal(err)
	}
	if len(ev.Records) != 1 {
		t.Fatalf("records = %d", len(ev.Records))
	}
	r := ev.Records[0]
	if r.S3.Bucket.Name != "wildlens" || r.S3.Object.Key != "uploads%2F1700000000000-0a1b.png" {
		t.Errorf("record = %+v", r.S3)
	}
	if r.EventName != "s3:ObjectCreated:Put" {
		t.Errorf("event name = %q", r.EventName)
	}
}

func TestDecodeRejects(t *testing.T) {
	for name, payload := range map[string]string{
		"invalid json": `{"Records": [`,
		"no records":   `{"Records": []}`,
	} {
		if _, err := Decode([]byte(payload)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestNewObjectCreatedRoundTrip(t *testing.T) {
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	ev := NewObjectCreated("eu-west-1", "wildlens", "uploads/a b.png", 42, at)

	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	r := got.Records[0]
	if r.EventName != ObjectCreatedPut || r.AWSRegion != "eu-west-1" || r.S3.Bucket.Name != "wildlens" {
		t.Errorf("record = %+v", r)
	}
	if r.S3.Object.Key != "uploads%2Fa+b.png" {
		t.Errorf("key = %q, want form encoding", r.S3.Object.Key)
	}
	if !r.EventTime.Equal(at) {
		t.Errorf("event time = %v", r.EventTime)
	}
}

func TestConsumerHandle(t *testing.T) {
	var got []events.S3Event
	c := &Consumer{handler: func(_ context.Context, ev events.S3Event) error {
		got = append(got, ev)
		return errors.New("processing failed")
	}}

	c.handle(context.Background(), kafka.Message{Value: []byte("not json")})
	if len(got) != 0 {
		t.Fatal("handler called for undecodable message")
	}

	c.handle(context.Background(), kafka.Message{Value: []byte(minioPayload)})
	if len(got) != 1 || got[0].Records[0].S3.Bucket.Name != "wildlens" {
		t.Errorf("handler calls = %+v", got)
	}
}

type fakeReader struct {
	msgs      []kafka.Message
	committed []kafka.Message
	commitErr error // ctx.Err() seen by CommitMessages
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if err := ctx.Err(); err != nil {
		return kafka.Message{}, err
	}
	if len(r.msgs) == 0 {
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	msg := r.msgs[0]
	r.msgs = r.msgs[1:]
	return msg, nil
}

func (r *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	r.commitErr = ctx.Err()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

func TestConsumerRunFinishesMessageAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := &fakeReader{msgs: []kafka.Message{{Offset: 7, Value: []byte(minioPayload)}}}
	var steps []string
	c := &Consumer{reader: reader, handler: func(hctx context.Context, _ events.S3Event) error {
		steps = append(steps, "resize")
		cancel() // shutdown arrives mid-pipeline
		if err := hctx.Err(); err != nil {
			return err
		}
		steps = append(steps, "insert", "delete")
		return nil
	}}

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if len(steps) != 3 {
		t.Errorf("handler stopped early, steps = %v", steps)
	}
	if len(reader.committed) != 1 || reader.committed[0].Offset != 7 {
		t.Errorf("committed = %+v", reader.committed)
	}
	if reader.commitErr != nil {
		t.Errorf("commit ran with a done context: %v", reader.commitErr)
	}
	if !reader.closed {
		t.Error("reader not closed")
	}
}
