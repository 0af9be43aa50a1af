package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/tinyland-inc/lupos/cmd/lupos/internal"
	"github.com/tinyland-inc/lupos/pkg/bus"
	"github.com/tinyland-inc/lupos/pkg/channels"
	"github.com/tinyland-inc/lupos/pkg/logger"
)

const readyTimeout = 30 * time.Second

func gatewayCmd(debug bool) error {
	if debug {
		logger.SetLevel(logger.DEBUG)
		fmt.Println("🔍 Debug mode enabled")
	}

	cfg, err := internal.LoadConfig()
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	if debug {
		cfg.Generation.Debug = true
	}
	if !cfg.Discord.Enabled {
		return errors.New("discord is not enabled; set discord.enabled and discord.token")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	rt, err := internal.NewRuntime(ctx, cfg, reg)
	if err != nil {
		return fmt.Errorf("error creating runtime: %w", err)
	}

	msgBus := bus.NewMessageBus(0)
	discord, err := channels.NewDiscordChannel(cfg.Discord, cfg.Generation.RecentMessages, rt.Persona.Reactions, msgBus)
	if err != nil {
		return err
	}
	if err := discord.Start(ctx); err != nil {
		return err
	}

	select {
	case <-discord.Ready():
	case <-time.After(readyTimeout):
		_ = discord.Stop(ctx)
		return errors.New("discord session did not become ready")
	}
	self := discord.Self()
	fmt.Printf("✓ Logged in to Discord as %s\n", self.DisplayName())

	resp := rt.NewResponder(self, discord)

	var wg sync.WaitGroup
	for i := range cfg.Pipeline.Workers {
		w := newWorker(resp, rt.Dispatcher, discord)
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.run(ctx, i, msgBus)
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		deliver(ctx, msgBus, map[string]channels.Channel{discord.Name(): discord})
	}()

	if cfg.News.Enabled {
		news := newNewsScheduler(cfg.News.Cron, discord.Name(), cfg.News.ChannelID, resp, msgBus)
		wg.Add(1)
		go func() {
			defer wg.Done()
			news.run(ctx)
		}()
		fmt.Printf("✓ News digest scheduled (%s)\n", cfg.News.Cron)
	}

	backends := make([]string, 0)
	for _, b := range rt.Dispatcher.Backends() {
		backends = append(backends, string(b))
	}
	health := newHealthServer(cfg.Gateway.Host, cfg.Gateway.Port, internal.Build().String(), backends,
		[]channels.Channel{discord}, reg)
	go func() {
		if err := health.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorCF("health", "Health server error", map[string]any{"error": err.Error()})
		}
	}()
	fmt.Printf("✓ Health and metrics at http://%s:%d/health and /metrics\n", cfg.Gateway.Host, cfg.Gateway.Port)
	fmt.Println("Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	fmt.Println("\nShutting down...")
	cancel()
	_ = health.Stop(context.Background())
	if err := discord.Stop(context.Background()); err != nil {
		logger.WarnCF("discord", "Close failed", map[string]any{"error": err.Error()})
	}
	msgBus.Close()
	wg.Wait()
	logger.Sync()
	fmt.Println("✓ Gateway stopped")

	return nil
}
