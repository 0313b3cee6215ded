package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Protocol-Lattice/stroke-agent/pkg/config"
	"github.com/Protocol-Lattice/stroke-agent/pkg/httpapi"
	"github.com/Protocol-Lattice/stroke-agent/pkg/runtime"
)

func main() {
	configPath := flag.String("config", "", "Path to a strokebot YAML config file")
	addr := flag.String("addr", "", "Listen address (overrides server.addr)")
	release := flag.Bool("release", false, "Run gin in release mode")
	flag.Parse()

	if *release {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	logger := log.New(os.Stderr, "strokebot-server: ", log.LstdFlags)
	opts, err := runtime.OptionsFromConfig(cfg, logger)
	if err != nil {
		log.Fatalf("configure runtime: %v", err)
	}
	rt, err := runtime.New(ctx, opts...)
	if err != nil {
		log.Fatalf("start runtime: %v", err)
	}
	defer rt.Close()

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           httpapi.NewRouter(rt, httpapi.Options{AllowOrigins: cfg.Server.AllowOrigins}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Printf("shutdown: %v", err)
		}
	}()

	logger.Printf("listening on %s", cfg.Server.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("serve: %v", err)
	}
}
