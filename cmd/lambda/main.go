// Command lambda runs the image processor as an AWS Lambda function
// subscribed to the bucket's s3:ObjectCreated notifications.
package main

import (
	"context"
	"encoding/json"
	"log"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"wildlens/internal/models"
	"wildlens/internal/objectstore"
	"wildlens/internal/processor"
	"wildlens/internal/storage"
)

const lambdaMaxConns = 2

// Response mirrors what the function reports back to the invoker.
type Response struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

type handler struct {
	proc *processor.Processor
}

// Invoke never returns an error: a failed outcome is reported in the
// response so the platform does not retry on its own.
func (h *handler) Invoke(ctx context.Context, ev events.S3Event) (Response, error) {
	outcomes, err := h.proc.HandleEvent(ctx, ev)
	if err != nil {
		return respond(500, map[string]string{"message": "Error processing image.", "error": err.Error()}), nil
	}
	return fromOutcomes(outcomes), nil
}

func fromOutcomes(outcomes []processor.Outcome) Response {
	for _, o := range outcomes {
		if o.Status == processor.StatusFailed {
			msg := string(o.Stage)
			if o.Err != nil {
				msg = o.Err.Error()
			}
			return respond(500, map[string]any{
				"message":        "Error processing image.",
				"error":          msg,
				"stage":          o.Stage,
				"resizedKey":     o.ResizedKey,
				"resizedWritten": o.ResizedWritten,
			})
		}
	}

	if len(outcomes) == 1 && outcomes[0].Status == processor.StatusSkipped {
		return Response{StatusCode: 200, Body: "Skipped: " + outcomes[0].Reason + "."}
	}

	results := make([]map[string]any, 0, len(outcomes))
	for _, o := range outcomes {
		results = append(results, map[string]any{
			"key":        o.SourceKey,
			"status":     o.Status,
			"newUrl":     o.URL,
			"newImageId": o.ImageID,
		})
	}
	return respond(200, map[string]any{
		"message": "Image processed, added to gallery, and original deleted.",
		"results": results,
	})
}

func respond(status int, body any) Response {
	data, err := json.Marshal(body)
	if err != nil {
		return Response{StatusCode: 500, Body: err.Error()}
	}
	return Response{StatusCode: status, Body: string(data)}
}

func main() {
	cfg, err := models.LoadConfig(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if _, ok := os.LookupEnv("DB_MAX_CONNS"); !ok {
		cfg.Database.MaxConns = lambdaMaxConns
	}

	ctx := context.Background()

	// Created once per execution environment and reused across invocations.
	db, err := storage.Connect(ctx, cfg.Database.DSN(), cfg.Database.MaxConns)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	store, err := objectstore.New(ctx, cfg.ObjectStore)
	if err != nil {
		log.Fatalf("failed to init object store: %v", err)
	}

	h := &handler{proc: processor.New(store, db, cfg.Resize.MaxWidth, cfg.Resize.JPEGQuality)}
	lambda.Start(h.Invoke)
}
