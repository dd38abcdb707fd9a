// vdatum-api serves vertical datum transformations over HTTP. Configuration
// comes from the environment: VDATUM_PATH points at the grid distribution,
// VDATUM_LISTEN sets the bind address, VDATUM_AUDIT_DB optionally enables
// the sqlite job trail.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/coastalmapping/vdatum/internal/api"
	"github.com/coastalmapping/vdatum/internal/storage/sqlite"
	"github.com/coastalmapping/vdatum/internal/vdatum/gridshift"
	"github.com/coastalmapping/vdatum/internal/vdatum/registry"
	"github.com/coastalmapping/vdatum/internal/vdatum/transform"
	"github.com/coastalmapping/vdatum/internal/version"
)

type config struct {
	Listen     string `env:"VDATUM_LISTEN" envDefault:":8080"`
	VdatumPath string `env:"VDATUM_PATH,required"`
	AuditDB    string `env:"VDATUM_AUDIT_DB"`
}

func main() {
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}

	reg, err := registry.Load(cfg.VdatumPath)
	if err != nil {
		log.Fatalf("failed to load grid distribution: %v", err)
	}
	tr := transform.New(reg, gridshift.NewGTXShifter(reg.BasePath()))

	var db *sqlite.DB
	if cfg.AuditDB != "" {
		db, err = sqlite.NewDB(cfg.AuditDB)
		if err != nil {
			log.Fatalf("failed to open audit database: %v", err)
		}
		defer db.Close()
	}

	server := api.NewServer(reg, tr, db)
	httpServer := &http.Server{
		Addr:    cfg.Listen,
		Handler: api.LoggingMiddleware(server.ServeMux()),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}()

	log.Printf("vdatum-api %s listening on %s (distribution %s, %d regions)",
		version.Version, cfg.Listen, reg.Version(), len(reg.Regions()))
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server failed: %v", err)
	}
}
