package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/atlas-civic/budget-tracker/internal/common"
	"github.com/atlas-civic/budget-tracker/internal/export"
	"github.com/atlas-civic/budget-tracker/internal/llm"
	"github.com/atlas-civic/budget-tracker/internal/pipeline"
	"github.com/atlas-civic/budget-tracker/internal/repository"
	"github.com/atlas-civic/budget-tracker/internal/server"
	"github.com/atlas-civic/budget-tracker/internal/workflow"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "budgetd",
		Short: "Municipal budget transparency backend",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")
	root.AddCommand(serveCmd(), exportCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, _ := zap.NewProduction()
			defer func() { _ = logger.Sync() }()

			cfg, err := common.LoadConfig(configPath)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, cleanup, err := buildApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			errCh := make(chan error, 1)
			go func() { errCh <- app.Start(cfg.Server.Addr) }()

			select {
			case <-ctx.Done():
				logger.Info("shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return app.Stop(shutdownCtx)
			case err := <-errCh:
				return err
			}
		},
	}
}

func exportCmd() *cobra.Command {
	var uid, out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a user's budget entries to an XLSX file",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, _ := zap.NewProduction()
			defer func() { _ = logger.Sync() }()

			cfg, err := common.LoadConfig(configPath)
			if err != nil {
				return err
			}

			ctx := context.Background()
			aggregates, _, cleanup, err := openRepositories(ctx, cfg, newSlog())
			if err != nil {
				return err
			}
			defer cleanup()

			svc := export.NewService(aggregates, newSlog())
			data, err := svc.ExportEntriesXLSX(ctx, uid)
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			logger.Info("exported entries", zap.String("uid", uid), zap.String("path", out))
			return nil
		},
	}
	cmd.Flags().StringVar(&uid, "uid", "", "user id to export")
	cmd.Flags().StringVar(&out, "out", "budget-entries.xlsx", "output file path")
	_ = cmd.MarkFlagRequired("uid")
	return cmd
}

func newSlog() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, nil))
}

// openRepositories picks the backend by DSN: a postgres:// URL opens a pgx
// pool, anything else is an embedded SQLite file.
func openRepositories(ctx context.Context, cfg *common.Config, log *slog.Logger) (repository.AggregateRepository, repository.JobRepository, func(), error) {
	if repository.IsPostgresDSN(cfg.Database.DSN) {
		pool, err := repository.OpenPostgres(ctx, cfg.Database, log)
		if err != nil {
			return nil, nil, nil, err
		}
		return repository.NewPGAggregateRepository(pool, log),
			repository.NewPGJobRepository(pool, log),
			pool.Close, nil
	}

	db, err := repository.OpenSQLite(cfg.Database.DSN, log)
	if err != nil {
		return nil, nil, nil, err
	}
	return repository.NewSQLiteAggregateRepository(db, log),
		repository.NewSQLiteJobRepository(db, log),
		func() { _ = db.Close() }, nil
}

func buildApp(ctx context.Context, cfg *common.Config, logger *zap.Logger) (*server.Server, func(), error) {
	log := newSlog()

	aggregates, jobs, cleanup, err := openRepositories(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}

	client := workflow.NewClient(cfg.Engine.BaseURL, nil, log)
	poller := workflow.NewPoller(client, log)

	var creds workflow.CredentialProvider
	if cfg.Engine.APIKey != "" {
		creds = workflow.StaticKey(cfg.Engine.APIKey)
	} else {
		creds = &workflow.KeyPair{
			BaseURL:   cfg.Engine.BaseURL,
			KeyID:     cfg.Engine.KeyID,
			KeySecret: cfg.Engine.KeySecret,
		}
	}

	chat := &llm.Client{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Logger:      log,
	}

	documents := pipeline.NewDocumentService(client, poller, creds, aggregates, jobs, pipeline.DocumentConfig{
		PollDelay: cfg.Engine.DocumentDelay,
		Timeout:   cfg.Engine.DocumentTimeout,
	}, log)
	sentiment := pipeline.NewSentimentService(client, poller, creds, pipeline.SentimentConfig{
		PollDelay:   cfg.Engine.SentimentDelay,
		MaxAttempts: cfg.Engine.MaxAttempts,
	}, log)
	assistant := pipeline.NewAssistantService(client, poller, creds, chat, pipeline.AssistantConfig{
		PollDelay:   cfg.Engine.SimilarityDelay,
		MaxAttempts: cfg.Engine.MaxAttempts,
	}, log)
	embeddings := pipeline.NewEmbeddingService(client, creds, pipeline.EmbeddingConfig{
		ChunkSize: cfg.Engine.ChunkSize,
	}, log)
	exporter := export.NewService(aggregates, log)

	return server.NewServer(documents, sentiment, assistant, embeddings, exporter, chat, logger), cleanup, nil
}
