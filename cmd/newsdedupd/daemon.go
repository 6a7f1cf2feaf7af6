package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func daemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run the full pipeline on a timer",
		Long: `Continuously fetch feeds, dedup-check new articles, and dispatch alerts
on the roster's refresh interval. An hourly maintenance pass merges adjacent
clusters, prunes expired records, and garbage-collects the cooldown index.
On SIGINT/SIGTERM it stops scheduling cycles, cancels the in-flight cycle
and waits for it to return; the cancelled cycle does not finish its
remaining feeds or dedup batches.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := newEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			if _, err := os.Stat(feedsPath); err == nil {
				count, err := engine.ImportFeeds(feedsPath)
				if err != nil {
					return err
				}
				log.Printf("daemon: imported %d feed(s) from %s", count, feedsPath)
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

			scheduler := engine.NewScheduler()
			schedDone := make(chan struct{})
			go func() {
				scheduler.Run(ctx)
				close(schedDone)
			}()

			maintenance := time.NewTicker(time.Hour)
			defer maintenance.Stop()

			log.Printf("daemon: started")
			for {
				select {
				case <-sig:
					log.Println("daemon: received shutdown signal, draining")
					cancel()
					<-schedDone
					log.Println("daemon: stopped")
					return nil
				case <-maintenance.C:
					if err := engine.RunMaintenance(); err != nil {
						log.Printf("daemon: maintenance: %v", err)
					}
				}
			}
		},
	}
}
