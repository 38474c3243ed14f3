// Command device runs a check-in station. Codes are read from stdin, one per
// line, optionally followed by the path of a photo to attach.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"olympia/src/client"
	"olympia/src/config"
	"olympia/src/db"
	"olympia/src/offline"
	"olympia/src/scanner"
	"olympia/src/syncmgr"
	"os"
	"os/signal"
	"path"
	"strings"
	"syscall"
	"time"

	"github.com/covalenthq/lumberjack"
	"github.com/go-co-op/gocron/v2"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func initLogger(logPath string) {
	os.MkdirAll(path.Dir(logPath), 0o755)
	log.SetOutput(&lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    50,
		MaxBackups: 3,
		MaxAge:     30,
		Compress:   true,
	})
}

func serveMetrics(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[Metrics] server stopped: %s\n", err.Error())
		}
	}()
	return srv
}

func refreshSnapshot(ctx context.Context, api *client.RedemptionClient, cache *offline.Cache, eventID uint) {
	event, tickets, err := api.Snapshot(ctx, eventID)
	if err != nil {
		log.Printf("[Snapshot] refresh of event %d failed: %s\n", eventID, err.Error())
		return
	}
	if err := cache.PutEvent(ctx, *event, tickets); err != nil {
		log.Printf("[Snapshot] could not cache event %d: %s\n", eventID, err.Error())
		return
	}
	log.Printf("[Snapshot] cached %d ticket(s) of event %d\n", len(tickets), eventID)
}

func describe(res *scanner.Result) string {
	switch {
	case res.Queued:
		return fmt.Sprintf("%s saved offline (#%d)", res.Code, res.LocalID)
	case res.Outcome == client.Redeemed:
		return fmt.Sprintf("%s checked in", res.Code)
	case res.Outcome == client.AlreadyRedeemed:
		at := "earlier"
		if res.Server != nil && res.Server.CheckInTime != nil {
			at = res.Server.CheckInTime.Local().Format(time.Kitchen)
		}
		return fmt.Sprintf("%s already checked in (%s)", res.Code, at)
	default:
		msg := ""
		if res.Server != nil {
			msg = res.Server.Message
		}
		return fmt.Sprintf("%s rejected: %s", res.Code, msg)
	}
}

func main() {
	cfg, err := config.LoadDeviceConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %s\n", err.Error())
		os.Exit(1)
	}
	initLogger(cfg.LogPath)

	store, err := db.OpenLocal(cfg.StorePath)
	if err != nil {
		log.Fatalf("Failed to open local store: %s", err)
	}
	if err := offline.Migrate(store); err != nil {
		log.Fatalf("error migration: %s", err.Error())
	}
	queue := offline.NewQueue(store)
	cache := offline.NewCache(store)

	api := client.NewRedemptionClient(cfg.APIBaseURL, cfg.Token, &http.Client{Timeout: cfg.RequestTimeout})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sched, err := gocron.NewScheduler()
	if err != nil {
		log.Fatalf("Error initializing Scheduler: %s", err)
	}
	manager := syncmgr.NewManager(queue, api, syncmgr.Options{
		Interval:    cfg.SyncInterval,
		RetryDelay:  cfg.RetryDelay,
		MaxRetries:  cfg.MaxRetries,
		Concurrency: cfg.Concurrency,
		Scheduler:   sched,
	})
	unsubscribe := manager.Subscribe(func(status syncmgr.Status, stats syncmgr.Stats) {
		fmt.Printf("sync %s: %d/%d synced, %d rejected, %d failed\n",
			status, stats.Successful, stats.Total, stats.Rejected, stats.Failed)
	})
	defer unsubscribe()
	if err := manager.Start(ctx); err != nil {
		log.Fatalf("Failed to start sync: %s", err)
	}

	monitor := scanner.NewMonitor(api, cfg.ProbeInterval, manager.SetOnline)
	if err := monitor.Start(ctx, sched); err != nil {
		log.Fatalf("Failed to start connectivity monitor: %s", err)
	}
	sched.Start()

	if cfg.EventID != 0 {
		go refreshSnapshot(ctx, api, cache, cfg.EventID)
	}
	var metrics *http.Server
	if cfg.MetricsAddr != "" {
		metrics = serveMetrics(cfg.MetricsAddr)
	}

	sc := scanner.New(api, queue, manager, scanner.Options{
		OperatorID: cfg.OperatorID,
		EventID:    cfg.EventID,
		Timeout:    cfg.RequestTimeout,
		Cache:      cache,
	})

	lines := make(chan string)
	go func() {
		defer close(lines)
		in := bufio.NewScanner(os.Stdin)
		for in.Scan() {
			lines <- in.Text()
		}
	}()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case line, ok := <-lines:
			if !ok {
				break loop
			}
			fields := strings.Fields(line)
			if len(fields) == 0 {
				continue
			}
			switch fields[0] {
			case ":sync":
				if !manager.Sync(ctx) {
					fmt.Println("sync already running")
				}
				continue
			case ":status":
				n, _ := manager.PendingCount(ctx)
				fmt.Printf("online=%v sync=%s pending=%d\n", manager.Online(), manager.Status(), n)
				continue
			}
			var photo []byte
			if len(fields) > 1 {
				if photo, err = os.ReadFile(fields[1]); err != nil {
					fmt.Printf("cannot read photo %s: %s\n", fields[1], err.Error())
					continue
				}
			}
			res, err := sc.Scan(ctx, fields[0], photo)
			if err != nil {
				fmt.Printf("scan failed: %s\n", err.Error())
				continue
			}
			fmt.Println(describe(res))
		}
	}

	log.Println("Shutting down device...")
	monitor.Stop()
	if err := manager.Stop(); err != nil {
		log.Printf("Sync shutdown error: %s\n", err.Error())
	}
	if err := sched.Shutdown(); err != nil {
		log.Printf("Scheduler shutdown error: %s\n", err.Error())
	}
	if metrics != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		metrics.Shutdown(shutdownCtx)
	}
	if sqlDB, err := store.DB(); err == nil {
		sqlDB.Close()
	}
}
