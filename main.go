package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/invertfield/internal/api"
	"github.com/banshee-data/invertfield/internal/config"
	"github.com/banshee-data/invertfield/internal/db"
	"github.com/banshee-data/invertfield/internal/invert"
	"github.com/banshee-data/invertfield/internal/monitoring"
	"github.com/banshee-data/invertfield/internal/version"
)

var (
	listen     = flag.String("listen", ":8080", "Listen address")
	dbFile     = flag.String("db", "invertfield.db", "SQLite database for recorded runs (empty disables recording)")
	configPath = flag.String("config", "", "Inversion config JSON applied beneath every request's overrides")
	verbose    = flag.Bool("v", false, "Log per-iteration residual norms")
)

// newHandler mounts the inversion API and the admin debugging routes.
func newHandler(database *db.DB, base *config.InversionConfig) (http.Handler, error) {
	mux := http.NewServeMux()

	// admin routes are reachable from loopback or over Tailscale only
	if database != nil {
		if err := database.AttachAdminRoutes(mux); err != nil {
			return nil, fmt.Errorf("failed to attach admin routes: %w", err)
		}
	}

	mux.Handle("/api/", api.NewServer(database, base).ServeMux())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprintf(w, "ok %s\n", version.String())
	})

	return api.LoggingMiddleware(mux), nil
}

func main() {
	flag.Parse()

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	diag := monitoring.Writer()
	if !*verbose {
		diag = nil
	}
	invert.SetLogWriters(monitoring.Writer(), diag, nil)
	log.Print(version.String())

	base := config.EmptyInversionConfig()
	if *configPath != "" {
		cfg, err := config.LoadInversionConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		base = cfg
	}

	var database *db.DB
	if *dbFile != "" {
		var err error
		database, err = db.NewDB(*dbFile)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer database.Close()
	}

	handler, err := newHandler(database, base)
	if err != nil {
		log.Fatal(err)
	}

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	wg.Add(1)
	go func() {
		defer wg.Done()

		server := &http.Server{
			Addr:    *listen,
			Handler: handler,
		}

		go func() {
			log.Printf("listening on %s", *listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}

		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
