package main

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/suratdinas/backend/internal/auth"
	"github.com/suratdinas/backend/internal/config"
	"github.com/suratdinas/backend/internal/database"
	"github.com/suratdinas/backend/internal/documents"
	"github.com/suratdinas/backend/internal/incoming"
	"github.com/suratdinas/backend/internal/logging"
	"github.com/suratdinas/backend/internal/numbering"
	"github.com/suratdinas/backend/internal/reference"
	"github.com/suratdinas/backend/internal/server"
	"github.com/suratdinas/backend/internal/storage"
	"github.com/suratdinas/backend/internal/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const shutdownTimeout = 10 * time.Second

var (
	cfgFile string
	envFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "surat-api",
		Short: "Surat and Nota Dinas correspondence backend",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(newMigrateCommand(), newSeedCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to a dotenv file loaded before the environment is read")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-driver", defaults.GetString("database.driver"), "Database driver (sqlite, postgres, mysql)")
	cmd.PersistentFlags().String("database-dsn", defaults.GetString("database.dsn"), "Database DSN or SQLite path")
	cmd.PersistentFlags().String("upload-dir", defaults.GetString("storage.upload_dir"), "Directory attachments are stored in")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-encoding", defaults.GetString("log.encoding"), "Log encoding (json, console)")
	cmd.PersistentFlags().String("signing-secret", "", "Access token signing secret (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.driver", "database-driver")
	bindFlag(cmd, "database.dsn", "database-dsn")
	bindFlag(cmd, "storage.upload_dir", "upload-dir")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "log.encoding", "log-encoding")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}

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

// runtime holds what every command needs: configuration, a logger and an
// open, migrated database.
type runtime struct {
	config config.AppConfig
	logger *zap.Logger
	db     *gorm.DB
}

func openRuntime() (*runtime, func(), error) {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, nil, err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogEncoding)
	if err != nil {
		return nil, nil, err
	}

	db, err := database.Open(database.Config{
		Driver: appConfig.DatabaseDriver,
		DSN:    appConfig.DatabaseDSN,
		Logger: logger,
	})
	if err != nil {
		_ = logger.Sync()
		return nil, nil, err
	}
	if err := database.Migrate(db, logger); err != nil {
		_ = logger.Sync()
		return nil, nil, err
	}

	closeFn := func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
		_ = logger.Sync()
	}
	return &runtime{config: appConfig, logger: logger, db: db}, closeFn, nil
}

func runServer(ctx context.Context) error {
	rt, closeRuntime, err := openRuntime()
	if err != nil {
		return err
	}
	defer closeRuntime()
	appConfig := rt.config
	logger := rt.logger

	policy := numbering.NewPolicy(appConfig.EditWindowDays, appConfig.Timezone)
	allocator := numbering.NewAllocator()
	store, err := storage.NewLocal(storage.LocalConfig{Dir: appConfig.UploadDir})
	if err != nil {
		return err
	}

	tokenIssuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        appConfig.TokenIssuer,
		TokenTTL:      appConfig.TokenTTL,
	})
	if err != nil {
		return err
	}

	userService, err := users.NewService(users.ServiceConfig{Database: rt.db, Logger: logger})
	if err != nil {
		return err
	}
	referenceService, err := reference.NewService(reference.ServiceConfig{Database: rt.db, Logger: logger})
	if err != nil {
		return err
	}
	documentServices, err := newDocumentServices(rt, allocator, policy, store)
	if err != nil {
		return err
	}
	incomingService, err := incoming.NewService(incoming.ServiceConfig{
		Database:  rt.db,
		Allocator: allocator,
		Policy:    policy,
		Store:     store,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Tokens:         tokenIssuer,
		Users:          userService,
		Reference:      referenceService,
		Letters:        documentServices[documents.KindLetter],
		Memos:          documentServices[documents.KindMemo],
		Incoming:       incomingService,
		Events:         server.NewEventDispatcher(),
		Location:       policy.Location,
		Logger:         logger,
		AllowedOrigins: appConfig.AllowedOrigins,
		MaxUploadBytes: appConfig.MaxUploadBytes,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("address", appConfig.HTTPAddress),
			zap.String("database_driver", appConfig.DatabaseDriver),
			zap.String("timezone", policy.Location.String()),
		)
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info("server shutting down")
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// newDocumentServices builds one service per outgoing document kind. Each
// service tags its own log lines with the kind.
func newDocumentServices(rt *runtime, allocator *numbering.Allocator, policy numbering.Policy, store storage.Store) (map[documents.Kind]*documents.Service, error) {
	services := make(map[documents.Kind]*documents.Service, 2)
	for _, kind := range []documents.Kind{documents.KindLetter, documents.KindMemo} {
		service, err := documents.NewService(documents.ServiceConfig{
			Database:  rt.db,
			Kind:      kind,
			Allocator: allocator,
			Policy:    policy,
			Store:     store,
			Logger:    rt.logger,
		})
		if err != nil {
			return nil, err
		}
		services[kind] = service
	}
	return services, nil
}
