package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/k64z/cardfarmer/bot"
	"github.com/k64z/cardfarmer/platform"
	"github.com/k64z/cardfarmer/registry"
	"github.com/k64z/cardfarmer/steamcards"
)

// newPlatformClient is the seam a deployment links a concrete PlatformClient
// through. This module fixes the wire-level contract (package platform) but
// not its CM-protocol internals (spec.md §1); without one wired in here, a
// configured bot fails to start with a clear error rather than silently
// doing nothing.
var newPlatformClient = func(cfg bot.Config) (platform.Client, error) {
	return nil, errors.New("no concrete platform.Client implementation is linked into this build")
}

func main() {
	configDir := flag.String("config-dir", "config", "directory containing one <botName>.xml file per bot")
	connectThrottle := flag.Duration("connect-throttle", 0, "minimum spacing between bot connect attempts (0 disables)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx, logger, *configDir, *connectThrottle); err != nil {
		logger.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configDir string, connectThrottle time.Duration) error {
	entries, err := os.ReadDir(configDir)
	if err != nil {
		return fmt.Errorf("read config dir %s: %w", configDir, err)
	}

	reg := registry.New()

	var throttle *rate.Limiter
	if connectThrottle > 0 {
		throttle = rate.NewLimiter(rate.Every(connectThrottle), 1)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".xml") {
			continue
		}
		names = append(names, strings.TrimSuffix(entry.Name(), ".xml"))
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, name := range names {
		name := name
		g.Go(func() error {
			if err := startBot(gctx, logger, reg, configDir, name, throttle); err != nil {
				logger.Error("bot failed to start", "bot", name, "err", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("all configured bots processed", "count", reg.Count())

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	return reg.ShutdownAll(shutdownCtx)
}

func startBot(ctx context.Context, logger *slog.Logger, reg *registry.BotRegistry, configDir, name string, throttle *rate.Limiter) error {
	cfgPath := filepath.Join(configDir, name+".xml")
	cfg, err := bot.LoadConfig(cfgPath, logger)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if !cfg.Enabled {
		logger.Info("bot disabled, skipping", "bot", name)
		return nil
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return fmt.Errorf("new cookiejar: %w", err)
	}
	webClient, err := steamcards.New(
		steamcards.WithHTTPClient(&http.Client{Jar: jar}),
		steamcards.WithAPIKey(cfg.SteamApiKey),
	)
	if err != nil {
		return fmt.Errorf("new steamcards client: %w", err)
	}

	platformClient, err := newPlatformClient(cfg)
	if err != nil {
		return fmt.Errorf("new platform client: %w", err)
	}

	b := bot.New(name, cfg, reg, platformClient, webClient,
		bot.WithLogger(logger),
		bot.WithConnectThrottle(throttle),
		bot.WithSentryPath(filepath.Join(filepath.Dir(cfgPath), name+".bin")),
	)

	if !reg.InsertIfAbsent(name, b) {
		return fmt.Errorf("duplicate bot name %q", name)
	}

	return b.Start(ctx)
}
