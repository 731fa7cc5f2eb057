package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"FlowBackend/internal/config"
	"FlowBackend/internal/db"
	"FlowBackend/internal/flow"
	internalhttp "FlowBackend/internal/http"
	"FlowBackend/internal/notify"
	"FlowBackend/internal/services"
	"FlowBackend/internal/store"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.Connect(ctx, cfg.DB.DSN)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer pool.Close()

	st := store.New(pool)
	gateway := flow.NewClient(cfg.Flow.APIURL, cfg.Flow.APIKey, cfg.Flow.SecretKey)

	mailer := &notify.Mailer{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		User:     cfg.SMTP.User,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	}
	dispatcher := notify.NewDispatcher(mailer, 64)
	go dispatcher.Run(ctx)

	checkout := &services.CheckoutService{
		Store:           st,
		Gateway:         gateway,
		Notifier:        dispatcher,
		PublicBaseURL:   cfg.URLs.PublicBaseURL,
		DownloadBaseURL: cfg.URLs.DownloadBaseURL,
		ProductFile:     cfg.Product.File,
		ProductSubject:  cfg.Product.Subject,
		ProductCurrency: cfg.Product.Currency,
		ProductAmount:   cfg.Product.Amount,
	}

	h := internalhttp.NewHandler(checkout, cfg.Flow.APIURL, cfg.URLs.PublicBaseURL, cfg.URLs.DownloadBaseURL)
	srv := internalhttp.NewServer(h)

	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: srv.Router,
	}

	go func() {
		log.Printf("api listening on %s", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = httpServer.Shutdown(ctxShutdown)
	cancel()
}
