// Command sqkvd runs the sqkv store behind a TCP line protocol and an
// HTTP health/stats endpoint, loading the latest snapshot at startup
// and saving a final one on shutdown.
//
// Configuration is read entirely from the environment; see
// internal/config for the full list of SQKV_* variables.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mariusromeiser/sqkv"
	"github.com/mariusromeiser/sqkv/internal/config"
	"github.com/mariusromeiser/sqkv/internal/metrics"
	"github.com/mariusromeiser/sqkv/internal/proto"
	"github.com/mariusromeiser/sqkv/internal/server"
)

// logFatal is a variable so tests can intercept a fatal startup error
// without terminating the test process.
var logFatal = log.Fatalf

func main() {
	cfg, err := config.Load()
	if err != nil {
		logFatal("sqkvd: %v", err)
		return
	}

	router := sqkv.NewRouter(sqkv.RouterConfig{
		ShardCount:       cfg.ShardCount,
		CapacityPerShard: cfg.ShardCapacity,
		MaxKeyBytes:      cfg.MaxKeyBytes,
		MaxValueBytes:    cfg.MaxValueBytes,
	}, sqkv.SystemClock{})

	snapshotMgr, err := sqkv.NewSnapshotManager(cfg.SnapshotDir, sqkv.SystemClock{})
	if err != nil {
		logFatal("sqkvd: %v", err)
		return
	}

	if loaded, err := snapshotMgr.LoadLatestSnapshot(router); err != nil {
		log.Printf("sqkvd: failed to load latest snapshot: %v", err)
	} else if loaded {
		log.Printf("sqkvd: restored state from latest snapshot")
	}

	sweeper := sqkv.NewBackgroundSweeper(router)
	if err := sweeper.Start(cfg.SweepIntervalMillis); err != nil {
		logFatal("sqkvd: starting sweeper: %v", err)
		return
	}

	if err := snapshotMgr.StartPeriodic(router, cfg.SnapshotIntervalSeconds); err != nil {
		logFatal("sqkvd: starting periodic snapshot: %v", err)
		return
	}

	tcpServer := &server.Server{
		Addr: cfg.ListenAddr,
		Dispatcher: &proto.Dispatcher{
			Router:   router,
			Snapshot: snapshotMgr,
		},
	}
	go func() {
		log.Printf("sqkvd: listening on %s", cfg.ListenAddr)
		if err := tcpServer.ListenAndServe(); err != nil {
			logFatal("sqkvd: tcp listener: %v", err)
		}
	}()

	httpServer := &http.Server{
		Addr:              cfg.MetricsListenAddr,
		Handler:           metrics.Handler(router),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Printf("sqkvd: metrics listening on %s", cfg.MetricsListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logFatal("sqkvd: metrics listener: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Printf("sqkvd: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := tcpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("sqkvd: tcp server shutdown: %v", err)
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("sqkvd: metrics server shutdown: %v", err)
	}
	if err := snapshotMgr.StopPeriodic(); err != nil {
		log.Printf("sqkvd: stopping periodic snapshot: %v", err)
	}
	if err := sweeper.Stop(); err != nil {
		log.Printf("sqkvd: stopping sweeper: %v", err)
	}

	if _, err := snapshotMgr.SaveSnapshot(router); err != nil {
		log.Printf("sqkvd: final snapshot save failed: %v", err)
	}

	log.Printf("sqkvd: stopped")
}
