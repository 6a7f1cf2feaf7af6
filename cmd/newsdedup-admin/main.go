package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	newsdedup "github.com/aakash-priyadarshi/news-duplication-system"
	"github.com/aakash-priyadarshi/news-duplication-system/internal/config"
)

func main() {
	configPath := flag.String("config", "./config.yaml", "config file path")
	addr := flag.String("addr", ":8080", "listen address")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "newsdedup-admin: %v\n", err)
		os.Exit(1)
	}

	engine, err := newsdedup.NewEngine(cfg, config.DefaultFetchSettings())
	if err != nil {
		fmt.Fprintf(os.Stderr, "newsdedup-admin: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	mux := newRouter(engine)

	srv := &http.Server{
		Addr:         *addr,
		Handler:      logging(recovery(mux)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGINT/SIGTERM
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Printf("newsdedup-admin: listening on %s", *addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("newsdedup-admin: %v", err)
		}
	}()

	<-done
	log.Println("newsdedup-admin: shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("newsdedup-admin: shutdown error: %v", err)
	}
	log.Println("newsdedup-admin: stopped")
}
