package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/cravier/sweetshop/internal/config"
	"github.com/cravier/sweetshop/internal/events"
	kafkax "github.com/cravier/sweetshop/internal/kafka"
	"github.com/cravier/sweetshop/internal/postgres"
	"github.com/cravier/sweetshop/internal/reconciler"
	"github.com/cravier/sweetshop/internal/redisx"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	svc := &reconciler.Service{
		Store:       reconciler.NewPGIncidentStore(db),
		Redis:       rdb,
		ServiceName: cfg.ServiceName + "-reconciler",
	}

	group := getenv("RECONCILER_GROUP", "reconciler-svc")
	workers := mustAtoi(os.Getenv("RECONCILER_WORKERS"), 4)
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, group, events.TopicCheckoutIncomplete, workers)

	go func() {
		log.Printf("reconciler consumer started: group=%s topic=%s workers=%d",
			group, events.TopicCheckoutIncomplete, workers)
		if err := cons.Start(ctx, svc.HandleCheckoutIncomplete); err != nil {
			log.Printf("consumer exit: %v", err)
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down reconciler...")
	cancel()
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func mustAtoi(s string, def int) int {
	if s == "" {
		return def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}
