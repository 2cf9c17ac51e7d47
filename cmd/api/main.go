package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/cravier/sweetshop/internal/auth"
	"github.com/cravier/sweetshop/internal/catalog"
	"github.com/cravier/sweetshop/internal/checkout"
	"github.com/cravier/sweetshop/internal/config"
	"github.com/cravier/sweetshop/internal/events"
	"github.com/cravier/sweetshop/internal/httpx"
	"github.com/cravier/sweetshop/internal/inventory"
	kafkax "github.com/cravier/sweetshop/internal/kafka"
	"github.com/cravier/sweetshop/internal/orders"
	"github.com/cravier/sweetshop/internal/postgres"
	"github.com/cravier/sweetshop/internal/redisx"
	"github.com/cravier/sweetshop/internal/users"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := postgres.RunMigrations(cfg.PostgresDSN, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	pCompleted := kafkax.NewProducer(cfg.KafkaBrokers, events.TopicCheckoutCompleted, 1024)
	pCompleted.Start(ctx)
	pIncomplete := kafkax.NewProducer(cfg.KafkaBrokers, events.TopicCheckoutIncomplete, 1024)
	pIncomplete.Start(ctx)
	pRestocked := kafkax.NewProducer(cfg.KafkaBrokers, events.TopicStockRestocked, 1024)
	pRestocked.Start(ctx)

	userRepo := users.NewPGRepo(db)
	sweetRepo := catalog.NewPGRepo(db)
	orderStore := orders.NewPGStore(db)
	ledger := inventory.NewPGLedger(db)

	tokens := auth.NewTokens(cfg.JWTSecret, cfg.TokenTTL)
	authSvc := &auth.Service{Repo: userRepo, Tokens: tokens, AdminEmail: cfg.AdminEmail}

	coordinator := &checkout.Coordinator{
		Ledger:     ledger,
		Catalog:    sweetRepo,
		Orders:     orderStore,
		Idem:       checkout.NewRedisIdemCache(rdb),
		Completed:  pCompleted,
		Incomplete: pIncomplete,
		Service:    cfg.ServiceName,
		Timeout:    cfg.CheckoutTimeout,
	}

	router := httpx.NewRouter()
	authn := httpx.Authenticator(tokens, userRepo)

	(&httpx.AuthHandler{Auth: authSvc}).Register(router)
	(&httpx.SweetsHandler{
		Repo:        sweetRepo,
		Ledger:      ledger,
		Coordinator: coordinator,
		Restocked:   pRestocked,
		Service:     cfg.ServiceName,
	}).Register(router, authn, httpx.RequireAdmin)
	(&httpx.OrdersHandler{Coordinator: coordinator, Store: orderStore}).Register(router, authn)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		log.Printf("HTTP listening at %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)

	for _, p := range []*kafkax.Producer{pCompleted, pIncomplete, pRestocked} {
		p.Close()
	}
	cancel()
	for _, p := range []*kafkax.Producer{pCompleted, pIncomplete, pRestocked} {
		p.WaitClosed()
	}
}
