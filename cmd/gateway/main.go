package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"cleargate.io/internal/admission"
	"cleargate.io/internal/config"
	"cleargate.io/internal/credpool"
	"cleargate.io/internal/directory"
	"cleargate.io/internal/httpapi"
	"cleargate.io/internal/obs"
	"cleargate.io/internal/proxy"
	"cleargate.io/internal/token"
)

var version = "0.3.1"

func main() {
	obs.Init()
	obs.InitBuildInfo(version, os.Getenv("CLEARGATE_COMMIT"))

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	db, err := sql.Open("pgx", cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	table, err := admission.LoadTable(cfg.RoutesPath)
	if err != nil {
		log.Fatalf("route table: %v", err)
	}

	tokens, err := token.NewService(cfg.AuthSecret,
		token.WithAccessTTL(cfg.AccessTTL),
		token.WithRefreshTTL(cfg.RefreshTTL),
	)
	if err != nil {
		log.Fatalf("token service: %v", err)
	}

	api := httpapi.New(cfg, tokens,
		directory.NewPGStore(db),
		table,
		proxy.New(table),
		credpool.NewPGStore(db),
		version,
	)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		// WriteTimeout stays unset; proxied responses can outlive any fixed deadline.
		IdleTimeout: 60 * time.Second,
	}

	log.Printf("Starting cleargate %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	_ = db.Close()
	log.Println("Stopped")
}
