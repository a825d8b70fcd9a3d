// Package registry implements BotRegistry: the process-wide, concurrency-safe
// {name -> Bot} map that anchors "all bots" commands and coordinated
// shutdown. It depends only on cardsfarmer (for the Summary type a bot
// reports), never on the bot package itself, so a Bot can hold a direct
// reference to its own registry without an import cycle.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/k64z/cardfarmer/cardsfarmer"
)

// Bot is the contract BotRegistry and CommandHandler need from a per-account
// session supervisor. bot.Bot implements this interface.
type Bot interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Shutdown(ctx context.Context) error
	StartFarming(ctx context.Context)
	Summary() cardsfarmer.Summary
	RedeemKey(ctx context.Context, key string) error
	RedeemAsync(ctx context.Context, key string) (string, error)
	SendMasterChat(ctx context.Context, message string) error
	TriggerLootCheck()
}

// BotRegistry is the process-wide {name -> Bot} map (spec.md §4.3).
// insertIfAbsent/remove are atomic; iteration (Snapshot) is consistent at
// the instant it is taken but may miss a concurrently inserted entry.
type BotRegistry struct {
	mu   sync.Mutex
	bots map[string]Bot
}

// New returns an empty BotRegistry.
func New() *BotRegistry {
	return &BotRegistry{bots: make(map[string]Bot)}
}

// InsertIfAbsent inserts b under name iff no entry already exists for that
// name, returning whether it inserted.
func (r *BotRegistry) InsertIfAbsent(name string, b Bot) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.bots[name]; exists {
		return false
	}
	r.bots[name] = b
	return true
}

// Remove deletes the entry for name, if present.
func (r *BotRegistry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.bots, name)
}

// Get returns the bot registered under name, and whether it exists.
func (r *BotRegistry) Get(name string) (Bot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bots[name]
	return b, ok
}

// Count returns the number of registered bots.
func (r *BotRegistry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.bots)
}

// Snapshot returns every currently registered bot, ordered by name for
// deterministic iteration (e.g. multi-key redeem fan-out, "!status all").
func (r *BotRegistry) Snapshot() []Bot {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.bots))
	for name := range r.bots {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Bot, 0, len(names))
	for _, name := range names {
		out = append(out, r.bots[name])
	}
	return out
}

// ShutdownAll invokes Shutdown on every currently registered bot concurrently
// and awaits all of them, returning the first error encountered (if any).
func (r *BotRegistry) ShutdownAll(ctx context.Context) error {
	bots := r.Snapshot()

	g, gctx := errgroup.WithContext(ctx)
	for _, b := range bots {
		b := b
		g.Go(func() error {
			if err := b.Shutdown(gctx); err != nil {
				return fmt.Errorf("shutdown %s: %w", b.Name(), err)
			}
			return nil
		})
	}
	return g.Wait()
}
