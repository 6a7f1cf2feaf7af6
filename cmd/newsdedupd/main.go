package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	newsdedup "github.com/aakash-priyadarshi/news-duplication-system"
	"github.com/aakash-priyadarshi/news-duplication-system/internal/config"
	"github.com/aakash-priyadarshi/news-duplication-system/internal/output"
)

var (
	configPath   string
	feedsPath    string
	cfg          *config.Config
	outputFormat string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "newsdedupd",
		Short: "News deduplication pipeline: ingest feeds, suppress duplicate stories, dispatch alerts",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(configPath)
			return err
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "./config.yaml", "config file path")
	rootCmd.PersistentFlags().StringVar(&feedsPath, "feeds", "./feeds.toml", "feed roster path")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "format", "f", "human", "output format: json, text, human")

	rootCmd.AddCommand(fetchCmd())
	rootCmd.AddCommand(dedupCmd())
	rootCmd.AddCommand(alertsCmd())
	rootCmd.AddCommand(feedsCmd())
	rootCmd.AddCommand(duplicatesCmd())
	rootCmd.AddCommand(clustersCmd())
	rootCmd.AddCommand(daemonCmd())
	rootCmd.AddCommand(initConfigCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newEngine opens the engine with the roster's fetch settings when the
// roster file exists.
func newEngine() (*newsdedup.Engine, error) {
	settings := config.DefaultFetchSettings()
	if doc, err := config.LoadFeeds(feedsPath); err == nil {
		settings = doc.Settings
	}
	return newsdedup.NewEngine(cfg, settings)
}

func fetchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch",
		Short: "Run one fetch cycle over all enabled feeds and dedup-check the new articles",
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := output.NewFormatter(output.Format(outputFormat))

			engine, err := newEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			ctx := context.Background()
			fetch, err := engine.RunFetchCycle(ctx)
			if err != nil {
				return fmt.Errorf("fetch cycle: %w", err)
			}

			result, err := engine.DrainDedup(ctx)
			if err != nil {
				formatter.Warning("dedup drain: %v", err)
			}
			if result == nil {
				result = &newsdedup.DedupResult{}
			}

			fmt.Printf("Fetched %d/%d feeds, %d new articles (%d exact duplicates)\n",
				fetch.FeedsDownloaded, fetch.FeedsTotal, fetch.NewArticles, fetch.ExactDuplicates)
			return formatter.OutputDedupResult(result.Processed, result.Duplicates, result.Uniques)
		},
	}
}

func dedupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dedup",
		Short: "Process pending articles through the dedup engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := output.NewFormatter(output.Format(outputFormat))

			engine, err := newEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			result, err := engine.DrainDedup(context.Background())
			if err != nil {
				return err
			}
			return formatter.OutputDedupResult(result.Processed, result.Duplicates, result.Uniques)
		},
	}
}

func alertsCmd() *cobra.Command {
	var limit int
	var resendID int64

	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "List recent alerts, or resend a failed one with --resend",
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := output.NewFormatter(output.Format(outputFormat))

			engine, err := newEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			if resendID > 0 {
				alert, err := engine.ResendAlert(context.Background(), resendID)
				if err != nil {
					return fmt.Errorf("resend alert %d: %w", resendID, err)
				}
				fmt.Printf("Alert %d re-dispatched, status %s (resend #%d)\n", alert.ID, alert.Status, alert.ResendCount)
				return nil
			}

			alerts, err := engine.ListAlerts(limit, 0)
			if err != nil {
				return err
			}
			return formatter.OutputAlertList(alerts)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of alerts to show")
	cmd.Flags().Int64Var(&resendID, "resend", 0, "alert ID to re-dispatch to its failed channels")
	return cmd
}

func feedsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feeds",
		Short: "Manage the feed roster",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all feeds with their runtime counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := output.NewFormatter(output.Format(outputFormat))

			engine, err := newEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			feeds, err := engine.ListFeeds()
			if err != nil {
				return err
			}
			return formatter.OutputFeedList(feeds)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "import [roster.toml]",
		Short: "Import a TOML feed roster (defaults to --feeds path)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := feedsPath
			if len(args) == 1 {
				path = args[0]
			}

			engine, err := newEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			count, err := engine.ImportFeeds(path)
			if err != nil {
				return err
			}
			fmt.Printf("Imported %d feed(s) from %s\n", count, path)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "enable <feed-id>",
		Short: "Enable a feed",
		Args:  cobra.ExactArgs(1),
		RunE:  setEnabledRunE(true),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "disable <feed-id>",
		Short: "Disable a feed",
		Args:  cobra.ExactArgs(1),
		RunE:  setEnabledRunE(false),
	})

	return cmd
}

func setEnabledRunE(enabled bool) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		feedID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid feed ID: %w", err)
		}

		engine, err := newEngine()
		if err != nil {
			return err
		}
		defer engine.Close()

		if err := engine.SetFeedEnabled(feedID, enabled); err != nil {
			return err
		}
		state := "enabled"
		if !enabled {
			state = "disabled"
		}
		fmt.Printf("Feed %d %s\n", feedID, state)
		return nil
	}
}

func duplicatesCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "duplicates",
		Short: "List detected duplicate links",
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := output.NewFormatter(output.Format(outputFormat))

			engine, err := newEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			links, err := engine.ListDuplicates(limit, 0)
			if err != nil {
				return err
			}
			return formatter.OutputDuplicateList(links)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of links to show")
	return cmd
}

func clustersCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "clusters",
		Short: "List story clusters",
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := output.NewFormatter(output.Format(outputFormat))

			engine, err := newEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			clusters, err := engine.ListClusters(limit, 0)
			if err != nil {
				return err
			}
			return formatter.OutputClusterList(clusters)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of clusters to show")
	return cmd
}

func initConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-config",
		Short: "Create a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := filepath.Dir(configPath)
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("failed to create config directory: %w", err)
			}
			if _, err := os.Stat(configPath); err == nil {
				return fmt.Errorf("config file already exists: %s", configPath)
			}

			data, err := yaml.Marshal(config.DefaultConfig())
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			if err := os.WriteFile(configPath, data, 0644); err != nil {
				return fmt.Errorf("failed to write config: %w", err)
			}

			fmt.Printf("Created default config at %s\n", configPath)
			return nil
		},
	}
}
