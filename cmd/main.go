package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rinnai_bridge/internal/handlers"
	"rinnai_bridge/internal/logger"
	"rinnai_bridge/internal/repository"
	"rinnai_bridge/internal/server"
	"rinnai_bridge/internal/service"
	"rinnai_bridge/internal/transport"

	"github.com/spf13/viper"
)

func main() {
	// load config.yml first so the log level comes from it
	if err := loadConfig(); err != nil {
		logger.Get(logger.InfoLevel).Fatalw("error reading config", "err", err)
	}

	log := logger.Get(viper.GetString("log.level"))

	// open DB
	db, err := openDB(log)
	if err != nil {
		log.Fatalw("failed to init sqlite", "err", err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			log.Fatalw("failed to close sqlite", "err", cerr)
		}
	}()

	// wire dependencies
	repos := repository.NewRepository(db)
	cloud := transport.NewClient(transport.Config{
		Username:       viper.GetString("rinnai.username"),
		Password:       viper.GetString("rinnai.password"),
		APIBase:        viper.GetString("rinnai.api_base"),
		BrokerURL:      viper.GetString("rinnai.broker_url"),
		ConnectTimeout: viper.GetDuration("rinnai.connect_timeout"),
		TokenTTL:       viper.GetDuration("rinnai.token_ttl"),
	}, log)
	services := service.NewService(repos, cloud, log, service.Config{
		PollInterval:   viper.GetDuration("rinnai.poll_interval"),
		Staleness:      viper.GetDuration("rinnai.staleness"),
		SettleDelay:    viper.GetDuration("rinnai.settle_delay"),
		AuthSigningKey: viper.GetString("auth.signing_key"),
	})
	apiHandler := handlers.NewHandler(services, log)

	// context for background goroutines
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// start the reconciliation loop (via composed service)
	go func() {
		if err := services.Reconciler.Run(ctx); err != nil && ctx.Err() == nil {
			log.Errorw("reconciler stopped", "err", err)
		}
	}()

	// start HTTP server
	srv := &server.Server{}
	runHTTPServer(srv, viper.GetString("port"), apiHandler, log)

	// graceful shutdown
	waitForShutdown(cancel, srv, cloud, log)
}

func loadConfig() error {
	viper.AddConfigPath("configs") // configs/config.yml
	viper.SetConfigName("config")
	return viper.ReadInConfig()
}

// openDB initializes the SQLite database using configuration.
func openDB(log *logger.Logger) (*sql.DB, error) {
	dbPath := viper.GetString("db.path")
	if dbPath == "" {
		log.Infow("db.path not set in config; using default file", "default", "app.db")
		dbPath = "app.db"
	}
	return repository.InitDB(dbPath)
}

// runHTTPServer runs the HTTP server in a separate goroutine.
func runHTTPServer(srv *server.Server, port string, handler *handlers.Handler, log *logger.Logger) {
	go func() {
		if port == "" {
			port = "8080"
		}
		if err := srv.Run(port, handler.InitRoutes()); err != nil {
			log.Fatalw("error starting server", "err", err)
		}
	}()
}

// waitForShutdown listens for termination signals and performs graceful shutdown.
func waitForShutdown(cancel context.CancelFunc, srv *server.Server, cloud *transport.Client, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("shutting down server...")

	// stop background goroutines
	cancel()

	// allow in-flight requests to complete
	ctx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := cloud.Close(ctx); err != nil {
		log.Errorw("error closing vendor connection", "err", err)
	}
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalw("server forced to shutdown", "err", err)
	}
}
