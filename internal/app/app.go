package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/slack-go/slack"
	"github.com/spf13/cobra"

	"labeler/internal/config"
	"labeler/internal/documents"
	"labeler/internal/history"
	"labeler/internal/httpx"
	"labeler/internal/labelfile"
	"labeler/internal/progress"
	"labeler/internal/review"
	"labeler/internal/server"
	"labeler/internal/storage"
	"labeler/internal/suggest"
)

var configPath string

func Main() {
	rootCmd := &cobra.Command{
		Use:   "labeler",
		Short: "Manual category labeling for funding-call documents",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if configPath != "" {
				os.Setenv("CONFIG_PATH", configPath)
			}
		},
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default config.yaml or $CONFIG_PATH)")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(progressCmd())
	rootCmd.AddCommand(suggestCmd())
	rootCmd.AddCommand(exportCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() config.Config {
	cfg := config.LoadConfig()
	appliedHTTPTimeout := httpx.ConfigureExternalHTTPClient(cfg.ExternalHTTPTimeoutSeconds)
	log.Printf(
		"Config loaded. Reviewer=%s DataDir=%s ManifestRoot=%s Clusters=%d GitHub=%t History=%s Slack=%t Suggestions=%t Timezone=%s ExternalHTTPTimeout=%s",
		cfg.Reviewer,
		cfg.DataDir,
		cfg.ManifestRoot,
		len(cfg.Clusters),
		cfg.GitHubConfigured(),
		cfg.HistoryDBPath,
		cfg.SlackConfigured(),
		cfg.SuggestionsEnabled(),
		cfg.Timezone,
		appliedHTTPTimeout,
	)
	return cfg
}

func newSuggester(cfg config.Config) (*suggest.Suggester, error) {
	if !cfg.SuggestionsEnabled() {
		return nil, nil
	}
	var guide *suggest.Guide
	if cfg.LLMGuidePath != "" {
		g, err := suggest.LoadGuide(cfg.LLMGuidePath)
		if err != nil {
			return nil, err
		}
		guide = g
	}
	return suggest.New(cfg.AnthropicAPIKey, cfg.LLMModel, guide, httpx.Client()), nil
}

func serveCmd() *cobra.Command {
	var cluster string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the labeling session over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var recorder history.Recorder = history.Nop{}
			if cfg.HistoryDBPath != "" {
				hs, err := history.Open(cfg.HistoryDBPath)
				if err != nil {
					return fmt.Errorf("open history: %w", err)
				}
				defer hs.Close()
				log.Printf("History database initialized at %s", cfg.HistoryDBPath)
				recorder = hs
			}

			resolver := documents.NewResolver(cfg.DataDir, cfg.ManifestRoot, cfg.Clusters)
			sess, err := review.New(ctx, review.Options{
				Reviewer: cfg.Reviewer,
				Store:    storage.New(cfg),
				Resolver: resolver,
				Recorder: recorder,
			})
			if err != nil {
				return err
			}
			if cluster != "" {
				if err := sess.SelectCluster(cluster); err != nil {
					return err
				}
			}

			sug, err := newSuggester(cfg)
			if err != nil {
				return err
			}
			var suggester server.Suggester
			if sug != nil {
				suggester = sug
			}

			srv := &http.Server{
				Addr:              cfg.ListenAddr,
				Handler:           server.New(sess, resolver.Clusters(), suggester).Routes(),
				ReadHeaderTimeout: 10 * time.Second,
			}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()

			log.Printf("Labeling session for %s listening on %s", cfg.Reviewer, cfg.ListenAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			log.Println("Server stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&cluster, "cluster", "", "cluster to open on start")
	return cmd
}

func progressCmd() *cobra.Command {
	var post, schedule bool

	cmd := &cobra.Command{
		Use:   "progress",
		Short: "Summarize labeling progress per cluster",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			store := storage.New(cfg)
			resolver := documents.NewResolver(cfg.DataDir, cfg.ManifestRoot, cfg.Clusters)

			if (post || schedule) && !cfg.SlackConfigured() {
				return fmt.Errorf("posting progress needs slack_bot_token and slack_channel_id")
			}
			var api *slack.Client
			if cfg.SlackConfigured() {
				api = slack.New(cfg.SlackBotToken, slack.OptionHTTPClient(httpx.Client()))
			}

			digest := func(ctx context.Context) {
				report, err := progress.Load(ctx, cfg.Reviewer, store, resolver)
				if err != nil {
					log.Printf("progress load error: %v", err)
					return
				}
				if err := progress.Post(api, cfg.SlackChannelID, report); err != nil {
					log.Printf("progress post error: %v", err)
				}
			}

			if schedule {
				if cfg.ProgressSchedule == "" {
					return fmt.Errorf("--schedule needs progress_schedule (or PROGRESS_SCHEDULE)")
				}
				ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
				defer stop()
				if err := progress.StartScheduler(ctx, cfg.ProgressSchedule, cfg.Location, digest); err != nil {
					return err
				}
				<-ctx.Done()
				return nil
			}

			report, err := progress.Load(cmd.Context(), cfg.Reviewer, store, resolver)
			if err != nil {
				return err
			}
			fmt.Println(progress.Format(report))
			if post {
				return progress.Post(api, cfg.SlackChannelID, report)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&post, "post", false, "also post the summary to Slack")
	cmd.Flags().BoolVar(&schedule, "schedule", false, "post the summary on progress_schedule until interrupted")
	return cmd
}

func suggestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "suggest [cluster] [call-id]",
		Short: "Ask the LLM which labels fit one document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			sug, err := newSuggester(cfg)
			if err != nil {
				return err
			}
			if sug == nil {
				return fmt.Errorf("suggestions need anthropic_api_key (or ANTHROPIC_API_KEY)")
			}

			resolver := documents.NewResolver(cfg.DataDir, cfg.ManifestRoot, cfg.Clusters)
			docs, err := resolver.Resolve(args[0])
			if err != nil {
				return err
			}
			for _, doc := range docs {
				if doc.Key != args[1] {
					continue
				}
				s, err := sug.Suggest(cmd.Context(), doc.Key, documents.Content(doc))
				if err != nil {
					return err
				}
				fmt.Printf("%s: %v\n", s.CallID, s.Labels)
				if s.Reason != "" {
					fmt.Printf("Reason: %s\n", s.Reason)
				}
				return nil
			}
			return fmt.Errorf("document %s not found in cluster %s", args[1], args[0])
		},
	}
}

func exportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Write the reviewer's label file to stdout",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			labels, err := storage.New(cfg).Load(cmd.Context(), cfg.Reviewer)
			if err != nil {
				return err
			}
			data, err := labelfile.Encode(labels)
			if err != nil {
				return err
			}
			_, err = os.Stdout.Write(data)
			return err
		},
	}
}
