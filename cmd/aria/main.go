package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariadne-ai/aria/internal/attention"
	"github.com/ariadne-ai/aria/internal/config"
	"github.com/ariadne-ai/aria/internal/convo"
	"github.com/ariadne-ai/aria/internal/httpapi"
	"github.com/ariadne-ai/aria/internal/intent"
	"github.com/ariadne-ai/aria/internal/live"
	"github.com/ariadne-ai/aria/internal/observability"
	"github.com/ariadne-ai/aria/internal/reliability"
	"github.com/ariadne-ai/aria/internal/respcache"
	"github.com/ariadne-ai/aria/internal/store"
)

const (
	connectRetryBase = 500 * time.Millisecond
	connectRetryCap  = 30 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	st, err := store.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("store init failed: %v", err)
	}
	defer st.Close()

	client := live.NewClient(live.Config{
		APIKey:             cfg.GeminiAPIKey,
		BaseURL:            cfg.LiveWSBaseURL,
		Model:              cfg.LiveModel,
		Voice:              cfg.LiveVoice,
		SystemInstruction:  cfg.SystemInstruction,
		ResponseModalities: cfg.ResponseModalities,
		ConnectTimeout:     cfg.ConnectTimeout,
		ConnectPoll:        cfg.ConnectPoll,
	})

	classifier := intent.NewClassifier()
	classifier.SetCacheObserver(func(hit bool) {
		if hit {
			metrics.ClassifierCache.WithLabelValues("hit").Inc()
		} else {
			metrics.ClassifierCache.WithLabelValues("miss").Inc()
		}
	})

	responses := respcache.New(cfg.ResponseCacheTTL)

	orchestrator := convo.NewOrchestrator(client, classifier, responses, convo.Options{
		Store:      st,
		Metrics:    metrics,
		EmbedBatch: cfg.EmbedBatchSize,
	})

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()

	go connectLoop(runCtx, orchestrator)

	engine := attention.NewEngine(
		attention.Config{
			Interval:  cfg.AttentionInterval,
			MaxItems:  cfg.AttentionMaxItems,
			Threshold: cfg.AttentionThreshold,
			Boosts: map[attention.ItemType]float64{
				attention.ItemMissedCall:       cfg.BoostMissedCall,
				attention.ItemPaymentDue:       cfg.BoostPaymentDue,
				attention.ItemCalendarReminder: cfg.BoostCalendarRemind,
			},
		},
		st,
		metrics,
		attention.NewMailSource(st, cfg.AttentionLookback),
		attention.NewCalendarSource(st, cfg.AttentionLookback),
		attention.NewFinanceSource(st, cfg.AttentionLookback),
		attention.NewShoppingSource(st, cfg.AttentionLookback),
	)
	engine.Start(runCtx)
	defer engine.Stop()

	api := httpapi.New(cfg, orchestrator, engine, metrics)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	runCancel()
	orchestrator.Disconnect()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}

// connectLoop supervises the live session: it connects with exponential
// backoff and reconnects after a remote drop. A missing credential is
// permanent; the HTTP surface stays up (attention list, metrics) and text
// turns fail fast until a key is provided.
func connectLoop(ctx context.Context, orchestrator *convo.Orchestrator) {
	for {
		for attempt := 0; ; attempt++ {
			err := orchestrator.Connect(ctx)
			if err == nil {
				log.Printf("live session connected")
				break
			}
			if errors.Is(err, live.ErrMissingCredential) {
				log.Printf("live session disabled: %v", err)
				return
			}
			wait := reliability.ExponentialBackoff(attempt, connectRetryBase, connectRetryCap)
			log.Printf("live connect attempt %d failed: %v (retrying in %s)", attempt+1, err, wait)
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
		}

		for orchestrator.State() == live.StateActive {
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
		}
		log.Printf("live session dropped, reconnecting")
	}
}
