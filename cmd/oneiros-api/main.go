package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oneiroslab/oneiros/backend/internal/analyst"
	"github.com/oneiroslab/oneiros/backend/internal/auth"
	"github.com/oneiroslab/oneiros/backend/internal/capture"
	"github.com/oneiroslab/oneiros/backend/internal/config"
	"github.com/oneiroslab/oneiros/backend/internal/credentials"
	"github.com/oneiroslab/oneiros/backend/internal/database"
	"github.com/oneiroslab/oneiros/backend/internal/journal"
	"github.com/oneiroslab/oneiros/backend/internal/logging"
	"github.com/oneiroslab/oneiros/backend/internal/server"
	"github.com/oneiroslab/oneiros/backend/internal/session"
	"github.com/oneiroslab/oneiros/backend/internal/storage"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "oneiros-api",
		Short: "Oneiros dream journal backend service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("storage-driver", defaults.GetString("storage.driver"), "Journal storage driver (sqlite, snapshot)")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("snapshot-path", defaults.GetString("storage.snapshot_path"), "Snapshot slot path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("gemini-text-model", defaults.GetString("gemini.text_model"), "Model for transcription, analysis and chat")
	cmd.PersistentFlags().String("gemini-image-model", defaults.GetString("gemini.image_model"), "Model for dream illustrations")
	cmd.PersistentFlags().Int("token-ttl-minutes", defaults.GetInt("auth.token_ttl_minutes"), "Session token TTL in minutes")
	cmd.PersistentFlags().String("signing-secret", "", "Session token signing secret (overrides env)")
	cmd.PersistentFlags().String("client-secret", "", "Client secret exchanged for session tokens (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "storage.driver", "storage-driver")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "storage.snapshot_path", "snapshot-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "gemini.text_model", "gemini-text-model")
	bindFlag(cmd, "gemini.image_model", "gemini-image-model")
	bindFlag(cmd, "auth.token_ttl_minutes", "token-ttl-minutes")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
	bindFlag(cmd, "auth.client_secret", "client-secret")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	store, closeStore, err := openStore(appConfig, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	journalService, err := journal.NewService(ctx, journal.ServiceConfig{
		Store:      store,
		Clock:      time.Now,
		IDProvider: journal.NewUUIDProvider(),
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	gate := credentials.NewKeyholder(appConfig.GeminiAPIKey, logger)

	provider, err := analyst.NewGemini(analyst.GeminiConfig{
		Gate:       gate,
		TextModel:  appConfig.TextModel,
		ImageModel: appConfig.ImageModel,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	dispatcher := server.NewEventDispatcher()

	orchestrator, err := capture.NewOrchestrator(capture.Config{
		Journal:  journalService,
		Provider: provider,
		Gate:     gate,
		Events:   dispatcher,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	sessionTracker, err := session.NewTracker(func(recordID string) bool {
		_, ok := journalService.GetRecord(ctx, recordID)
		return ok
	})
	if err != nil {
		return err
	}

	tokenManager := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        "oneiros-auth",
		Audience:      "oneiros-api",
		TokenTTL:      appConfig.TokenTTL,
	})

	handler, err := server.NewHTTPHandler(server.Dependencies{
		TokenManager: tokenManager,
		Capture:      orchestrator,
		Journal:      journalService,
		Gate:         gate,
		Session:      sessionTracker,
		Events:       dispatcher,
		ClientSecret: appConfig.ClientSecret,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func openStore(appConfig config.AppConfig, logger *zap.Logger) (journal.Store, func(), error) {
	switch appConfig.StorageDriver {
	case config.StorageDriverSnapshot:
		store, err := storage.NewSnapshotStore(appConfig.SnapshotPath, logger)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	default:
		db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
		if err != nil {
			return nil, nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, nil, err
		}
		store, err := storage.NewSQLiteStore(db, logger)
		if err != nil {
			sqlDB.Close()
			return nil, nil, err
		}
		return store, func() { sqlDB.Close() }, nil
	}
}
