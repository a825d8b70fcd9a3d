// Package command implements the master-chat command dispatcher: CD-key
// recognition, the multi-key redeem fan-out, and the !-prefixed command
// table (spec.md §4.4).
package command

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/k64z/cardfarmer/registry"
)

type config struct {
	logger    *slog.Logger
	createBot func(ctx context.Context, name string) error
	restart   func()
}

// Option configures a Handler.
type Option func(*config)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithCreateBotFunc wires !start <name> to a bot-construction callback; the
// command handler has no way to build a Bot itself (that needs a config
// directory and platform/web collaborators only the process entrypoint has).
func WithCreateBotFunc(fn func(ctx context.Context, name string) error) Option {
	return func(c *config) { c.createBot = fn }
}

// WithRestartFunc wires !restart to a process-level restart callback.
func WithRestartFunc(fn func()) Option {
	return func(c *config) { c.restart = fn }
}

// Handler parses and dispatches master chat messages for one bot.
type Handler struct {
	registry  *registry.BotRegistry
	local     registry.Bot
	logger    *slog.Logger
	createBot func(ctx context.Context, name string) error
	restart   func()
}

// New constructs a Handler bound to a specific bot's perspective: commands
// with no explicit bot name target local.
func New(reg *registry.BotRegistry, local registry.Bot, opts ...Option) *Handler {
	cfg := config{logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Handler{
		registry:  reg,
		local:     local,
		logger:    cfg.logger,
		createBot: cfg.createBot,
		restart:   cfg.restart,
	}
}

// IsValidCdKey reports whether s has the shape of a Steam CD key: length 17
// or 29, with a dash at every offset in {5, 11, 17, 23} that falls within s.
func IsValidCdKey(s string) bool {
	if len(s) != 17 && len(s) != 29 {
		return false
	}
	for _, i := range []int{5, 11, 17, 23} {
		if i >= len(s) {
			continue
		}
		if s[i] != '-' {
			return false
		}
	}
	return true
}

// Handle parses message from sender and returns a reply (possibly empty) and
// whether the caller should send it. Callers must already have verified
// sender is the configured master; Handle does not re-check authorization.
func (h *Handler) Handle(ctx context.Context, message string) (reply string, shouldReply bool) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", false
	}

	if IsValidCdKey(message) {
		if err := h.local.RedeemKey(ctx, message); err != nil {
			h.logger.Error("redeem key", "err", err)
		}
		return "", false
	}

	if looksLikeMultiRedeem(message) {
		return h.handleMultiRedeem(ctx, message), true
	}

	if !strings.HasPrefix(message, "!") {
		return "", false
	}

	return h.dispatch(ctx, message)
}

// looksLikeMultiRedeem reports whether message is a newline-separated list
// of "-"-prefixed keys (spec.md §4.4).
func looksLikeMultiRedeem(message string) bool {
	lines := strings.Split(message, "\n")
	found := false
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "-") || !IsValidCdKey(strings.TrimPrefix(line, "-")) {
			return false
		}
		found = true
	}
	return found
}

// handleMultiRedeem fans a newline-separated key list out across the
// registry in order, one key per bot. It clamps at
// min(len(bots), len(keys)) — spec.md §9 flags the un-clamped version as a
// latent indexing bug — and reports any excess keys as undeliverable rather
// than dropping them silently.
func (h *Handler) handleMultiRedeem(ctx context.Context, message string) string {
	var keys []string
	for _, line := range strings.Split(message, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		keys = append(keys, strings.TrimPrefix(line, "-"))
	}

	bots := h.registry.Snapshot()
	n := len(bots)
	if len(keys) < n {
		n = len(keys)
	}

	replies := make([]string, 0, n+1)
	for i := 0; i < n; i++ {
		result, err := bots[i].RedeemAsync(ctx, keys[i])
		if err != nil {
			replies = append(replies, fmt.Sprintf("%s: error: %v", bots[i].Name(), err))
			continue
		}
		replies = append(replies, fmt.Sprintf("%s: %s", bots[i].Name(), result))
	}
	if len(keys) > n {
		replies = append(replies, fmt.Sprintf("%d key(s) undeliverable: not enough bots in registry", len(keys)-n))
	}

	return strings.Join(replies, "\n")
}

func (h *Handler) dispatch(ctx context.Context, message string) (string, bool) {
	fields := strings.Fields(message)
	cmd := strings.ToLower(fields[0])
	args := fields[1:]

	switch cmd {
	case "!exit":
		go h.registry.ShutdownAll(context.Background())
		return "", false

	case "!farm":
		b, err := h.resolveBot(args, 0)
		if err != nil {
			return err.Error(), true
		}
		b.StartFarming(ctx)
		return fmt.Sprintf("%s: farming started", b.Name()), true

	case "!restart":
		if h.restart == nil {
			return "restart is not wired up", true
		}
		go h.restart()
		return "restarting", true

	case "!status":
		return h.handleStatus(args), true

	case "!start":
		if len(args) == 0 {
			return "usage: !start <name>", true
		}
		if h.createBot == nil {
			return "bot creation is not wired up", true
		}
		if err := h.createBot(ctx, args[0]); err != nil {
			return fmt.Sprintf("that bot instance failed to start: %v", err), true
		}
		return fmt.Sprintf("%s started", args[0]), true

	case "!stop":
		b, err := h.resolveBot(args, 0)
		if err != nil {
			return err.Error(), true
		}
		if err := b.Shutdown(ctx); err != nil {
			return fmt.Sprintf("%s: failed to stop: %v", b.Name(), err), true
		}
		return fmt.Sprintf("%s: stopped", b.Name()), true

	case "!redeem":
		return h.handleRedeem(ctx, args)

	case "!loot":
		b, err := h.resolveBot(args, 0)
		if err != nil {
			return err.Error(), true
		}
		b.TriggerLootCheck()
		return fmt.Sprintf("%s: loot check triggered", b.Name()), true

	default:
		return fmt.Sprintf("unknown command %q", cmd), true
	}
}

// resolveBot returns the bot named by args[nameIndex] if present, otherwise
// the handler's local bot.
func (h *Handler) resolveBot(args []string, nameIndex int) (registry.Bot, error) {
	if len(args) <= nameIndex {
		return h.local, nil
	}
	b, ok := h.registry.Get(args[nameIndex])
	if !ok {
		return nil, fmt.Errorf("unknown bot %q", args[nameIndex])
	}
	return b, nil
}

func (h *Handler) handleStatus(args []string) string {
	if len(args) == 0 {
		return formatSummary(h.local)
	}
	if strings.EqualFold(args[0], "all") {
		bots := h.registry.Snapshot()
		lines := make([]string, 0, len(bots))
		for _, b := range bots {
			lines = append(lines, formatSummary(b))
		}
		return strings.Join(lines, "\n")
	}
	b, ok := h.registry.Get(args[0])
	if !ok {
		return fmt.Sprintf("unknown bot %q", args[0])
	}
	return formatSummary(b)
}

func formatSummary(b registry.Bot) string {
	s := b.Summary()
	return fmt.Sprintf("%s: farming=%v paused=%v remaining=%d playing=%v",
		b.Name(), s.NowFarming, s.Paused, s.GamesRemaining, s.CurrentlyPlaying)
}

// handleRedeem implements !redeem <key> (silent, local bot) and
// !redeem <name> <key> (named bot, replies with the correlated result).
func (h *Handler) handleRedeem(ctx context.Context, args []string) (string, bool) {
	switch len(args) {
	case 1:
		if err := h.local.RedeemKey(ctx, args[0]); err != nil {
			h.logger.Error("redeem key", "err", err)
		}
		return "", false
	case 2:
		b, ok := h.registry.Get(args[0])
		if !ok {
			return fmt.Sprintf("unknown bot %q", args[0]), true
		}
		result, err := b.RedeemAsync(ctx, args[1])
		if err != nil {
			return fmt.Sprintf("%s answer: error: %v", b.Name(), err), true
		}
		return fmt.Sprintf("%s answer: %s", b.Name(), result), true
	default:
		return "usage: !redeem <key> | !redeem <name> <key>", true
	}
}
