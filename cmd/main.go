package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"wildlens/internal/models"
	"wildlens/internal/notify"
	"wildlens/internal/objectstore"
	"wildlens/internal/processor"
	"wildlens/internal/server"
	"wildlens/internal/storage"
)

func main() {
	cfgPath := "config.yaml"
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		cfgPath = p
	}
	cfg, err := models.LoadConfig(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := storage.NewStorage(ctx, cfg.Database.DSN(), cfg.Database.MaxConns)
	if err != nil {
		log.Fatalf("failed to init storage: %v", err)
	}
	defer db.Close()
	if err := db.Ping(ctx); err != nil {
		log.Printf("warning: database not reachable: %v", err)
	}

	store, err := objectstore.New(ctx, cfg.ObjectStore)
	if err != nil {
		log.Fatalf("failed to init object store: %v", err)
	}

	var publisher server.Publisher
	consumerDone := make(chan struct{})
	if cfg.Kafka.Broker != "" && cfg.Kafka.Topic != "" {
		if cfg.Notify.PublishOnUpload {
			p := notify.NewPublisher(cfg.Kafka.Broker, cfg.Kafka.Topic)
			defer p.Close()
			publisher = p
		}

		proc := processor.New(store, db, cfg.Resize.MaxWidth, cfg.Resize.JPEGQuality)
		consumer := notify.NewConsumer(cfg.Kafka.Broker, cfg.Kafka.Topic, cfg.Kafka.GroupID,
			func(ctx context.Context, ev events.S3Event) error {
				outcomes, err := proc.HandleEvent(ctx, ev)
				for _, o := range outcomes {
					log.Printf("processed %s/%s: %s %s", o.Bucket, o.SourceKey, o.Status, o.Stage)
				}
				return err
			})
		go func() {
			defer close(consumerDone)
			if err := consumer.Run(ctx); err != nil {
				log.Printf("consumer stopped: %v", err)
			}
		}()
	} else {
		log.Println("kafka not configured, uploads will not be processed by this instance")
		close(consumerDone)
	}

	srv := server.NewServer(cfg, store, db, publisher)

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	// Graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		log.Printf("forced shutdown: %v", err)
	}

	cancel()
	<-consumerDone
	log.Println("server stopped")
}
