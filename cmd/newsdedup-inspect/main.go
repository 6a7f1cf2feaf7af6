// newsdedup-inspect is a standalone stdio inspection server for the dedup
// pipeline. It connects directly to the SQLite database and serves
// read-only queries plus a poll_now trigger over JSON-RPC on stdin/stdout.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	newsdedup "github.com/aakash-priyadarshi/news-duplication-system"
	"github.com/aakash-priyadarshi/news-duplication-system/internal/config"
)

func main() {
	configPath := flag.String("config", "./config.yaml", "config file path")
	poll := flag.Bool("poll", false, "run a background fetch+dedup loop")
	pollInterval := flag.Duration("poll-interval", 5*time.Minute, "background poll interval")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	engine, err := newsdedup.NewEngine(cfg, config.DefaultFetchSettings())
	if err != nil {
		log.Fatalf("create engine: %v", err)
	}
	defer engine.Close()

	srv := newServer(engine)
	if *poll {
		srv.poller = newPoller(engine, *pollInterval)
		srv.poller.start(context.Background())
		defer srv.poller.stop()
	}

	if err := srv.run(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
