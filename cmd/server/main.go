/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the ledger and reservation server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, environment, then flags)
  2. Initialize logger and metrics
  3. Open the record store (memory, sqlite or postgres)
  4. Build the Concurrency-Safe Writer and the services
  5. Configure HTTP router
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS (override environment):
  -port    HTTP server port (PORT, default: 8080)
  -driver  Store driver: memory | sqlite | postgres (DB_DRIVER, default: sqlite)
  -db      SQLite database path (DB_PATH, default: ledger.db)
           Use ":memory:" for in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (SERVER_SHUTDOWN_TIMEOUT)
  3. Close database connection
  4. Exit

EXAMPLES:
  ./server -db="./data/ledger.db"
  ./server -driver=memory -port=3000
  DB_DRIVER=postgres DATABASE_URL=postgres://... ./server

SEE ALSO:
  - config/config.go: Environment variables
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go, store/postgres/postgres.go: Store implementations
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/M7sN2/AsilSys-sub001/api"
	"github.com/M7sN2/AsilSys-sub001/config"
	"github.com/M7sN2/AsilSys-sub001/generic"
	"github.com/M7sN2/AsilSys-sub001/generic/store"
	"github.com/M7sN2/AsilSys-sub001/logging"
	"github.com/M7sN2/AsilSys-sub001/metrics"
	"github.com/M7sN2/AsilSys-sub001/store/postgres"
	"github.com/M7sN2/AsilSys-sub001/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	// Flags
	port := flag.Int("port", cfg.Server.Port, "HTTP server port")
	driver := flag.String("driver", cfg.Database.Driver, "Store driver: memory, sqlite or postgres")
	dbPath := flag.String("db", cfg.Database.Path, "SQLite database path")
	flag.Parse()
	cfg.Server.Port = *port
	cfg.Database.Driver = *driver
	cfg.Database.Path = *dbPath
	if err := cfg.Validate(); err != nil {
		logrus.Fatalf("Invalid configuration: %v", err)
	}

	log := logging.New(cfg.Logging)

	// Initialize store
	st, closer, err := openStore(context.Background(), cfg.Database)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize store")
	}
	defer closer.Close()

	m := metrics.New()
	writer := generic.NewWriter(st,
		generic.WithMaxAttempts(cfg.Writer.MaxAttempts),
		generic.WithTolerance(cfg.Writer.Tolerance),
		generic.WithObserver(m),
		generic.WithLogger(log),
	)

	handler := api.NewHandler(writer, log)
	router := api.NewRouter(handler, api.RouterOptions{
		CORSOrigins: cfg.Server.CORSOrigins,
		Metrics:     m,
		Logger:      log,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.WithFields(logrus.Fields{
			"port":   cfg.Server.Port,
			"driver": cfg.Database.Driver,
		}).Info("Server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("Server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Fatal("Server forced to shutdown")
	}

	log.Info("Server stopped")
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// openStore selects the record store named by the driver.
func openStore(ctx context.Context, db config.DatabaseConfig) (generic.Store, io.Closer, error) {
	switch db.Driver {
	case config.DriverMemory:
		return store.NewMemory(), nopCloser{}, nil
	case config.DriverSQLite:
		s, err := sqlite.New(db.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case config.DriverPostgres:
		pool, err := postgres.NewPool(ctx, db.URL)
		if err != nil {
			return nil, nil, err
		}
		s, err := postgres.New(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		return s, s, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", db.Driver)
	}
}
