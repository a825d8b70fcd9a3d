// Package cardsfarmer implements the per-bot farming scheduler: the simple
// and complex play-loop algorithms, badge-page scraping, and the
// reset-event/semaphore concurrency primitives that drive a farming round.
package cardsfarmer

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/k64z/cardfarmer/game"
	"github.com/k64z/cardfarmer/platform"
	"github.com/k64z/cardfarmer/webclient"
)

// HoursToBump is the play-hours threshold (spec.md §4.2) at or above which a
// restricted-account game is considered "bumped" and farmed solo.
const HoursToBump = 2.0

// FarmingOrder selects the display/iteration order GamesToFarm is sorted
// into each time the farming loop reads it.
type FarmingOrder int

const (
	// FarmingOrderUnordered applies no farming preference; games are taken in
	// ascending app id order.
	FarmingOrderUnordered FarmingOrder = iota
	// FarmingOrderCardsDescending farms the highest-card-count games first.
	FarmingOrderCardsDescending
	// FarmingOrderHoursAscending farms the least-played games first.
	FarmingOrderHoursAscending
)

// Summary is a point-in-time snapshot of a CardsFarmer's state, rendered by
// the !status chat command.
type Summary struct {
	NowFarming       bool
	Paused           bool
	GamesRemaining   int
	CurrentlyPlaying []uint32
}

type config struct {
	logger                     *slog.Logger
	farmingOrder               FarmingOrder
	maxGamesPlayedConcurrently int
	farmingDelay               time.Duration
	maxFarmingTime             time.Duration
	cardDropsRestricted        bool
	blacklist                  map[uint32]struct{}
	allowList                  map[uint32]struct{}
	onFarmingFinished          func(success bool)
}

// Option configures a CardsFarmer.
type Option func(*config)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithFarmingOrder sets the order GamesToFarm is sorted into when read.
func WithFarmingOrder(o FarmingOrder) Option {
	return func(c *config) { c.farmingOrder = o }
}

// WithMaxGamesPlayedConcurrently bounds how many titles FarmMultiple plays
// at once under the complex algorithm.
func WithMaxGamesPlayedConcurrently(n int) Option {
	return func(c *config) { c.maxGamesPlayedConcurrently = n }
}

// WithFarmingDelay sets how long each FarmSolo/FarmMultiple iteration waits
// on the reset event before re-checking progress.
func WithFarmingDelay(d time.Duration) Option {
	return func(c *config) { c.farmingDelay = d }
}

// WithMaxFarmingTime bounds how long FarmSolo keeps playing a single game.
// FarmMultiple is not bounded by it.
func WithMaxFarmingTime(d time.Duration) Option {
	return func(c *config) { c.maxFarmingTime = d }
}

// WithCardDropsRestricted selects the complex algorithm (spec.md §4.2).
func WithCardDropsRestricted(v bool) Option {
	return func(c *config) { c.cardDropsRestricted = v }
}

// WithBlacklist sets the excluded app ids.
func WithBlacklist(appIDs []uint32) Option {
	return func(c *config) {
		c.blacklist = make(map[uint32]struct{}, len(appIDs))
		for _, id := range appIDs {
			c.blacklist[id] = struct{}{}
		}
	}
}

// WithAllowList sets app ids known to misreport a zero card count.
func WithAllowList(appIDs []uint32) Option {
	return func(c *config) {
		c.allowList = make(map[uint32]struct{}, len(appIDs))
		for _, id := range appIDs {
			c.allowList[id] = struct{}{}
		}
	}
}

// WithFarmingFinishedHandler sets the callback invoked when a farming round
// ends: with true when nothing is left to farm, with false when the round
// was aborted or a badge rescan failed.
func WithFarmingFinishedHandler(fn func(success bool)) Option {
	return func(c *config) { c.onFarmingFinished = fn }
}

// CardsFarmer is the per-bot farming scheduler and play-loop state machine.
type CardsFarmer struct {
	platformClient platform.Client
	webClient      webclient.Client
	logger         *slog.Logger

	farmingOrder               FarmingOrder
	maxGamesPlayedConcurrently int
	farmingDelay               time.Duration
	maxFarmingTime             time.Duration
	cardDropsRestricted        bool
	blacklist                  map[uint32]struct{}
	allowList                  map[uint32]struct{}
	onFarmingFinished          func(success bool)

	mu                  sync.Mutex
	gamesToFarm         *game.Set
	currentGamesFarming *game.Set
	nowFarming          bool
	keepFarming         bool
	paused              bool
	stickyPause         bool

	farmResetEvent   *resetEvent
	farmingSemaphore *semaphore.Weighted
}

// New constructs a CardsFarmer wired to a platform and web collaborator.
func New(platformClient platform.Client, webClient webclient.Client, opts ...Option) *CardsFarmer {
	cfg := config{
		logger:                     slog.Default(),
		farmingOrder:               FarmingOrderUnordered,
		maxGamesPlayedConcurrently: 32,
		farmingDelay:               10 * time.Minute,
		maxFarmingTime:             4 * time.Hour,
		blacklist:                  map[uint32]struct{}{303700: {}, 335590: {}, 368020: {}},
		allowList:                  map[uint32]struct{}{},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &CardsFarmer{
		platformClient:             platformClient,
		webClient:                  webClient,
		logger:                     cfg.logger,
		farmingOrder:               cfg.farmingOrder,
		maxGamesPlayedConcurrently: cfg.maxGamesPlayedConcurrently,
		farmingDelay:               cfg.farmingDelay,
		maxFarmingTime:             cfg.maxFarmingTime,
		cardDropsRestricted:        cfg.cardDropsRestricted,
		blacklist:                  cfg.blacklist,
		allowList:                  cfg.allowList,
		onFarmingFinished:          cfg.onFarmingFinished,
		gamesToFarm:                game.NewSet(),
		currentGamesFarming:        game.NewSet(),
		farmResetEvent:             newResetEvent(),
		farmingSemaphore:           semaphore.NewWeighted(1),
	}
}

// NowFarming reports whether a farming round is currently in progress.
func (f *CardsFarmer) NowFarming() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nowFarming
}

// Summary returns a snapshot for the !status command.
func (f *CardsFarmer) Summary() Summary {
	f.mu.Lock()
	defer f.mu.Unlock()

	playing := make([]uint32, 0, f.currentGamesFarming.Len())
	for _, g := range f.currentGamesFarming.Slice() {
		playing = append(playing, g.AppID)
	}
	sort.Slice(playing, func(i, j int) bool { return playing[i] < playing[j] })

	return Summary{
		NowFarming:       f.nowFarming,
		Paused:           f.paused,
		GamesRemaining:   f.gamesToFarm.Len(),
		CurrentlyPlaying: playing,
	}
}

// StartFarming begins a farming round, unless one is already running or the
// farmer is paused. It does not check whether the bot is logged on.
func (f *CardsFarmer) StartFarming(ctx context.Context) {
	f.mu.Lock()
	if f.nowFarming || f.paused {
		f.mu.Unlock()
		return
	}
	f.mu.Unlock()

	if err := f.farmingSemaphore.Acquire(ctx, 1); err != nil {
		return
	}

	f.mu.Lock()
	if f.nowFarming || f.paused {
		f.mu.Unlock()
		f.farmingSemaphore.Release(1)
		return
	}
	f.mu.Unlock()

	anything, err := f.IsAnythingToFarm(ctx)
	if err != nil {
		f.logger.Error("badge scan failed", "err", err)
		f.farmingSemaphore.Release(1)
		return
	}

	f.mu.Lock()
	f.nowFarming = true
	f.keepFarming = true
	remaining := f.gamesToFarm.Len()
	f.mu.Unlock()
	f.logger.Info("starting farming round", "games_remaining", remaining)

	f.farmingSemaphore.Release(1)

	if !anything {
		f.finishRound(true)
		return
	}

	go f.runRound(ctx)
}

// runRound drives the simple/complex play loop until nothing is left to
// farm or the round is aborted by StopFarming.
func (f *CardsFarmer) runRound(ctx context.Context) {
	success := true

	for {
		if !f.drainGamesToFarm(ctx) {
			success = false
			break
		}

		anything, err := f.IsAnythingToFarm(ctx)
		if err != nil {
			f.logger.Error("badge rescan failed", "err", err)
			success = false
			break
		}
		if !anything {
			break
		}
	}

	f.finishRound(success)
}

func (f *CardsFarmer) finishRound(success bool) {
	f.mu.Lock()
	f.nowFarming = false
	f.mu.Unlock()

	if f.onFarmingFinished != nil {
		f.onFarmingFinished(success)
	}
}

// drainGamesToFarm runs one pass of the simple or complex sub-algorithm over
// the current GamesToFarm set. Returns false if the round was aborted.
func (f *CardsFarmer) drainGamesToFarm(ctx context.Context) bool {
	if f.cardDropsRestricted {
		return f.drainComplex(ctx)
	}
	return f.drainSimple(ctx)
}

// sortedGamesToFarm returns the current GamesToFarm contents ordered per the
// configured FarmingOrder. game.Set is map-backed (unordered storage), so
// determinism for "first(GamesToFarm)" and the complex algorithm's
// highest-hours pick comes from sorting on each read rather than from
// insertion order.
func (f *CardsFarmer) sortedGamesToFarm() []*game.Game {
	f.mu.Lock()
	games := f.gamesToFarm.Slice()
	f.mu.Unlock()

	switch f.farmingOrder {
	case FarmingOrderCardsDescending:
		sort.Slice(games, func(i, j int) bool { return games[i].CardsRemaining > games[j].CardsRemaining })
	case FarmingOrderHoursAscending:
		sort.Slice(games, func(i, j int) bool { return games[i].HoursPlayed < games[j].HoursPlayed })
	default:
		sort.Slice(games, func(i, j int) bool { return games[i].AppID < games[j].AppID })
	}
	return games
}

func (f *CardsFarmer) drainSimple(ctx context.Context) bool {
	for {
		games := f.sortedGamesToFarm()
		if len(games) == 0 {
			return true
		}

		g := games[0]
		if !f.FarmSolo(ctx, g) {
			return false
		}
	}
}

func (f *CardsFarmer) drainComplex(ctx context.Context) bool {
	for {
		games := f.sortedGamesToFarm()
		if len(games) == 0 {
			return true
		}

		var solo []*game.Game
		for _, g := range games {
			if g.HoursPlayed >= HoursToBump {
				solo = append(solo, g)
			}
		}
		if len(games) == 1 {
			solo = games
		}

		if len(solo) > 0 {
			for _, g := range solo {
				if !f.FarmSolo(ctx, g) {
					return false
				}
			}
			continue
		}

		sort.Slice(games, func(i, j int) bool { return games[i].HoursPlayed > games[j].HoursPlayed })
		n := f.maxGamesPlayedConcurrently
		if n > len(games) {
			n = len(games)
		}
		picked := games[:n]
		if !f.FarmMultiple(ctx, picked) {
			return false
		}
	}
}

// FarmSolo plays one game until it drains, the round is aborted, or
// MaxFarmingTime elapses. Returns keepFarming's value at exit.
func (f *CardsFarmer) FarmSolo(ctx context.Context, g *game.Game) bool {
	if err := f.platformClient.PlayGames(ctx, []uint32{g.AppID}); err != nil {
		f.logger.Error("play game failed", "appid", g.AppID, "err", err)
	}

	f.mu.Lock()
	f.currentGamesFarming = game.NewSet()
	f.currentGamesFarming.Add(g)
	f.mu.Unlock()

	deadline := time.Now().Add(f.maxFarmingTime)

	for {
		f.mu.Lock()
		keepFarming := f.keepFarming
		f.mu.Unlock()
		if !keepFarming {
			return false
		}
		if time.Now().After(deadline) {
			break
		}

		waitStart := time.Now()
		f.farmResetEvent.Wait(ctx, f.farmingDelay)
		g.HoursPlayed += float32(time.Since(waitStart).Minutes()) / 60

		should, err := f.ShouldFarm(ctx, g)
		if err != nil {
			continue // fetch failure: treat as "keep farming, try again"
		}
		if !should {
			f.mu.Lock()
			f.gamesToFarm.Remove(g.AppID)
			f.mu.Unlock()
			break
		}
	}

	f.mu.Lock()
	keepFarming := f.keepFarming
	f.currentGamesFarming = game.NewSet()
	f.mu.Unlock()
	return keepFarming
}

// FarmMultiple plays several games concurrently (complex algorithm's
// bump-hours phase) until the highest-played game in the set reaches
// HoursToBump, or until the reset event is pulsed, so the caller re-plans.
// Returns keepFarming's value at exit.
func (f *CardsFarmer) FarmMultiple(ctx context.Context, games []*game.Game) bool {
	appIDs := make([]uint32, len(games))
	for i, g := range games {
		appIDs[i] = g.AppID
	}
	if err := f.platformClient.PlayGames(ctx, appIDs); err != nil {
		f.logger.Error("play games failed", "appids", appIDs, "err", err)
	}

	f.mu.Lock()
	f.currentGamesFarming = game.NewSet()
	for _, g := range games {
		f.currentGamesFarming.Add(g)
	}
	f.mu.Unlock()

	for {
		f.mu.Lock()
		keepFarming := f.keepFarming
		f.mu.Unlock()
		if !keepFarming {
			return false
		}

		maxHours := float32(0)
		for _, g := range games {
			if g.HoursPlayed > maxHours {
				maxHours = g.HoursPlayed
			}
		}
		if maxHours >= HoursToBump {
			break
		}

		waitStart := time.Now()
		pulsed := f.farmResetEvent.Wait(ctx, f.farmingDelay)
		elapsedHours := float32(time.Since(waitStart).Minutes()) / 60
		for _, g := range games {
			g.HoursPlayed += elapsedHours
		}
		if pulsed {
			break
		}
	}

	f.mu.Lock()
	keepFarming := f.keepFarming
	f.currentGamesFarming = game.NewSet()
	f.mu.Unlock()
	return keepFarming
}

// ShouldFarm re-fetches a game's per-title card page and reports whether it
// still has remaining drops. A non-nil error means the fetch failed and the
// caller should treat this as "keep going, try again later".
func (f *CardsFarmer) ShouldFarm(ctx context.Context, g *game.Game) (bool, error) {
	doc, err := f.webClient.GetCardPage(ctx, g.AppID)
	if err != nil {
		return false, fmt.Errorf("fetch card page for %d: %w", g.AppID, err)
	}

	remaining, ok := parseCardsRemaining(doc)
	if !ok {
		return false, fmt.Errorf("parse card page for %d: no progress node found", g.AppID)
	}

	g.CardsRemaining = uint16(remaining)
	return remaining > 0, nil
}

// IsAnythingToFarm scrapes the badge pages, repopulates GamesToFarm, and
// reports whether any game remains. The FarmingOrder is applied when
// GamesToFarm is read (sortedGamesToFarm), not here.
func (f *CardsFarmer) IsAnythingToFarm(ctx context.Context) (bool, error) {
	first, err := f.webClient.GetBadgePage(ctx, 1)
	if err != nil {
		return false, fmt.Errorf("fetch badge page 1: %w", err)
	}

	lastPage := parseLastPage(first)

	newSet := game.NewSet()
	for _, g := range parseBadgePage(first, f.blacklist, f.allowList) {
		newSet.Add(g)
	}

	var mu sync.Mutex
	if lastPage > 1 {
		g, gctx := errgroup.WithContext(ctx)
		for page := 2; page <= lastPage; page++ {
			page := page
			g.Go(func() error {
				doc, err := f.webClient.GetBadgePage(gctx, page)
				if err != nil {
					return fmt.Errorf("fetch badge page %d: %w", page, err)
				}
				games := parseBadgePage(doc, f.blacklist, f.allowList)
				mu.Lock()
				for _, gm := range games {
					newSet.Add(gm)
				}
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return false, err
		}
	}

	f.mu.Lock()
	f.gamesToFarm = newSet
	remaining := f.gamesToFarm.Len()
	f.mu.Unlock()

	return remaining > 0, nil
}

// StopFarming signals the current round to abort and waits (bounded) for it
// to observe the signal.
func (f *CardsFarmer) StopFarming(ctx context.Context) {
	if err := f.farmingSemaphore.Acquire(ctx, 1); err != nil {
		return
	}
	f.mu.Lock()
	f.keepFarming = false
	f.mu.Unlock()
	f.farmResetEvent.Pulse()
	f.farmingSemaphore.Release(1)

	for i := 0; i < 5; i++ {
		f.mu.Lock()
		nowFarming := f.nowFarming
		f.mu.Unlock()
		if !nowFarming {
			return
		}
		time.Sleep(time.Second)
	}

	f.mu.Lock()
	if f.nowFarming {
		f.logger.Warn("StopFarming timed out waiting for round to exit; forcing nowFarming false")
		f.nowFarming = false
	}
	f.mu.Unlock()
}

// Pause suspends farming. sticky pauses can only be cleared by an explicit
// Resume(userAction=true).
func (f *CardsFarmer) Pause(sticky bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paused = true
	if sticky {
		f.stickyPause = true
	}
}

// Resume clears a pause and starts a farming round if one is not already
// running. userAction must be true to clear a sticky pause.
func (f *CardsFarmer) Resume(ctx context.Context, userAction bool) {
	f.mu.Lock()
	if f.stickyPause && !userAction {
		f.mu.Unlock()
		return
	}
	f.paused = false
	f.stickyPause = false
	nowFarming := f.nowFarming
	f.mu.Unlock()

	if !nowFarming {
		f.StartFarming(ctx)
	}
}

// OnNewGameAdded starts a round if idle, or restarts the current round to
// re-plan if the complex algorithm is active and any game is still below
// HoursToBump.
func (f *CardsFarmer) OnNewGameAdded(ctx context.Context) {
	f.mu.Lock()
	nowFarming := f.nowFarming
	restricted := f.cardDropsRestricted
	f.mu.Unlock()

	if !nowFarming {
		f.StartFarming(ctx)
		return
	}

	if restricted {
		f.mu.Lock()
		belowThreshold := false
		for _, g := range f.gamesToFarm.Slice() {
			if g.HoursPlayed < HoursToBump {
				belowThreshold = true
				break
			}
		}
		f.mu.Unlock()
		if belowThreshold {
			f.farmResetEvent.Pulse()
		}
	}
}

// OnNewItemsNotification shortens the current wait window while farming.
// When no round is running it does nothing; no loot check is performed.
func (f *CardsFarmer) OnNewItemsNotification() {
	f.mu.Lock()
	nowFarming := f.nowFarming
	f.mu.Unlock()

	if nowFarming {
		f.farmResetEvent.Pulse()
	}
}

// OnDisconnected fire-and-forgets a StopFarming.
func (f *CardsFarmer) OnDisconnected() {
	go f.StopFarming(context.Background())
}
