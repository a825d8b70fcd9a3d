// Package bot implements the per-account session supervisor: connection
// lifecycle, the platform callback handlers, the sentry blob, and the glue
// between PlatformClient, WebClient, CardsFarmer, and CommandHandler
// (spec.md §4.1).
package bot

import (
	"context"
	"crypto/sha1"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/k64z/cardfarmer/cardsfarmer"
	"github.com/k64z/cardfarmer/command"
	"github.com/k64z/cardfarmer/platform"
	"github.com/k64z/cardfarmer/registry"
	"github.com/k64z/cardfarmer/steamid"
	"github.com/k64z/cardfarmer/steamtotp"
	"github.com/k64z/cardfarmer/webclient"
)

// ErrRedeemTimeout is returned by RedeemAsync when no PurchaseResponse
// arrives before the correlation deadline (spec.md §9 flags the missing
// timeout as a latent bug; this package arms one).
var ErrRedeemTimeout = errors.New("bot: timed out waiting for purchase response")

const defaultRedeemTimeout = 30 * time.Second

// statisticsGroupClanID is the well-known Steam group chat joined when a
// bot's Statistics config key is enabled (spec.md §6), mirroring the public
// community group real farming bots report card-drop activity to.
const statisticsGroupClanID = steamid.SteamID(103582791453366509)

type bootConfig struct {
	logger          *slog.Logger
	connectThrottle *rate.Limiter
	sentryPath      string
	redeemTimeout   time.Duration
}

// Option configures a Bot.
type Option func(*bootConfig)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *bootConfig) { c.logger = l }
}

// WithConnectThrottle sets the process-global connect-rate limiter shared
// across every bot in the registry.
func WithConnectThrottle(l *rate.Limiter) Option {
	return func(c *bootConfig) { c.connectThrottle = l }
}

// WithSentryPath sets the path to this bot's <botName>.bin sentry blob.
func WithSentryPath(path string) Option {
	return func(c *bootConfig) { c.sentryPath = path }
}

// WithRedeemTimeout overrides the default 30s redeem-correlation timeout.
func WithRedeemTimeout(d time.Duration) Option {
	return func(c *bootConfig) { c.redeemTimeout = d }
}

// Bot is the per-account session supervisor.
type Bot struct {
	name     string
	cfg      Config
	masterID steamid.SteamID

	platformClient platform.Client
	webClient      webclient.Client
	farmer         *cardsfarmer.CardsFarmer
	cmdHandler     *command.Handler
	registry       *registry.BotRegistry

	logger          *slog.Logger
	connectThrottle *rate.Limiter
	loginCooldown   time.Duration
	redeemTimeout   time.Duration
	sentryPath      string

	mu             sync.Mutex
	running        bool
	answerDirectly bool
	pendingRedeem  chan platform.PurchaseResponseEvent
	sentryBlob     []byte
	twoFactorCode  string

	redeemMu sync.Mutex

	wg       sync.WaitGroup
	pumpDone chan struct{}
}

// New constructs a Bot and registers its platform callback handlers. The
// caller is responsible for inserting the returned Bot into reg.
func New(name string, cfg Config, reg *registry.BotRegistry, platformClient platform.Client, webClient webclient.Client, opts ...Option) *Bot {
	bc := bootConfig{
		logger:        slog.Default(),
		redeemTimeout: defaultRedeemTimeout,
	}
	for _, opt := range opts {
		opt(&bc)
	}

	loginCooldown := 25 * time.Minute
	if cfg.LoginCooldownMinutes > 0 {
		loginCooldown = time.Duration(cfg.LoginCooldownMinutes) * time.Minute
	}

	b := &Bot{
		name:            name,
		cfg:             cfg,
		masterID:        steamid.FromSteamID64(cfg.SteamMasterID),
		platformClient:  platformClient,
		webClient:       webClient,
		registry:        reg,
		logger:          bc.logger,
		connectThrottle: bc.connectThrottle,
		loginCooldown:   loginCooldown,
		redeemTimeout:   bc.redeemTimeout,
		sentryPath:      bc.sentryPath,
		answerDirectly:  true,
	}

	b.farmer = cardsfarmer.New(platformClient, webClient,
		cardsfarmer.WithLogger(bc.logger),
		cardsfarmer.WithCardDropsRestricted(cfg.CardDropsRestricted),
		cardsfarmer.WithBlacklist(cfg.Blacklist),
		cardsfarmer.WithFarmingFinishedHandler(b.onFarmingFinished),
	)

	b.cmdHandler = command.New(reg, b, command.WithLogger(bc.logger))

	b.registerCallbacks()

	return b
}

// Name returns the bot's configured name, used as its registry key.
func (b *Bot) Name() string { return b.name }

// Summary returns the underlying CardsFarmer's status snapshot.
func (b *Bot) Summary() cardsfarmer.Summary { return b.farmer.Summary() }

// StartFarming delegates to the underlying CardsFarmer.
func (b *Bot) StartFarming(ctx context.Context) { b.farmer.StartFarming(ctx) }

// TriggerLootCheck pulses the farmer's new-items path, the delegated hook
// spec.md §4.2 names but does not otherwise make reachable; the !loot
// command (SPEC_FULL.md §6) is what calls this.
func (b *Bot) TriggerLootCheck() { b.farmer.OnNewItemsNotification() }

// RedeemKey issues a redeem without waiting for the result; if answerDirectly
// is currently true (the default, no RedeemAsync in flight), the eventual
// PurchaseResponse is reported to the master via chat as usual.
func (b *Bot) RedeemKey(ctx context.Context, key string) error {
	return b.platformClient.RedeemKey(ctx, key)
}

// SendMasterChat sends a chat line to the configured master.
func (b *Bot) SendMasterChat(ctx context.Context, message string) error {
	return b.platformClient.SendChatMessage(ctx, b.masterID, message)
}

// RedeemAsync issues a redeem and correlates it with the next
// PurchaseResponse, returning a formatted summary of the result. Concurrent
// calls on the same bot are serialized by redeemMu (spec.md §5: "concurrent
// redeem correlations on the same bot are UNSAFE").
func (b *Bot) RedeemAsync(ctx context.Context, key string) (string, error) {
	b.redeemMu.Lock()
	defer b.redeemMu.Unlock()

	ch := make(chan platform.PurchaseResponseEvent, 1)
	b.mu.Lock()
	b.answerDirectly = false
	b.pendingRedeem = ch
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.answerDirectly = true
		b.pendingRedeem = nil
		b.mu.Unlock()
	}()

	if err := b.platformClient.RedeemKey(ctx, key); err != nil {
		return "", fmt.Errorf("redeem key: %w", err)
	}

	timer := time.NewTimer(b.redeemTimeout)
	defer timer.Stop()

	select {
	case evt := <-ch:
		return formatPurchaseResult(evt), nil
	case <-timer.C:
		return "", ErrRedeemTimeout
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func formatPurchaseResult(evt platform.PurchaseResponseEvent) string {
	return fmt.Sprintf("Status: %s | Items: %s", evt.Result, strings.Join(evt.Items, ", "))
}

// Start idempotently brings the bot's session up: rate-limits via the
// process-global connect-throttle, connects, and spawns the callback pump.
func (b *Bot) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return nil
	}
	b.running = true
	b.mu.Unlock()

	if b.connectThrottle != nil {
		if err := b.connectThrottle.Wait(ctx); err != nil {
			return fmt.Errorf("connect throttle: %w", err)
		}
	}

	if err := b.platformClient.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	b.pumpDone = make(chan struct{})
	b.wg.Add(1)
	go b.pumpLoop()

	return nil
}

// Stop cooperatively tears the session down: stops farming, disconnects,
// and joins the callback pump. Safe to call when already stopped.
func (b *Bot) Stop(ctx context.Context) error {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return nil
	}
	b.running = false
	done := b.pumpDone
	b.mu.Unlock()

	b.farmer.StopFarming(ctx)

	err := b.platformClient.Disconnect(ctx)

	if done != nil {
		close(done)
		b.wg.Wait()
	}

	if err != nil {
		return fmt.Errorf("disconnect: %w", err)
	}
	return nil
}

// Shutdown stops the bot then deregisters it from the registry.
func (b *Bot) Shutdown(ctx context.Context) error {
	err := b.Stop(ctx)
	if b.registry != nil {
		b.registry.Remove(b.name)
	}
	return err
}

func (b *Bot) onFarmingFinished(success bool) {
	if success && b.cfg.ShutdownOnFarmingFinished {
		go b.Shutdown(context.Background())
	}
}

// pumpLoop is the per-bot callback pump: a blocking wait-for-callbacks loop
// with a 500ms tick (spec.md §5), modeled on steamclient.Client's
// ticker-driven heartbeat goroutine. It drains platform callbacks serially,
// so handlers on this bot never interleave with each other.
func (b *Bot) pumpLoop() {
	defer b.wg.Done()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-b.pumpDone:
			return
		case <-ticker.C:
			if err := b.platformClient.RunCallbacks(context.Background()); err != nil {
				b.logger.Error("run callbacks", "bot", b.name, "err", err)
			}
		}
	}
}

func (b *Bot) buildCredentials() platform.Credentials {
	b.mu.Lock()
	twoFactor := b.twoFactorCode
	blob := append([]byte(nil), b.sentryBlob...)
	b.mu.Unlock()

	creds := platform.Credentials{
		AccountName:   b.cfg.SteamLogin,
		Password:      b.cfg.SteamPassword,
		TwoFactorCode: twoFactor,
	}
	if len(blob) > 0 {
		sum := sha1.Sum(blob)
		creds.SentrySHA1 = sum[:]
	}
	return creds
}

func (b *Bot) registerCallbacks() {
	b.platformClient.OnConnected(b.handleConnected)
	b.platformClient.OnDisconnected(b.handleDisconnected)
	b.platformClient.OnLoggedOn(b.handleLoggedOn)
	b.platformClient.OnLoggedOff(b.handleLoggedOff)
	b.platformClient.OnFriendsList(b.handleFriendsList)
	b.platformClient.OnChatMessage(b.handleChatMessage)
	b.platformClient.OnMachineAuth(b.handleMachineAuth)
	b.platformClient.OnNotification(b.handleNotification)
	b.platformClient.OnPurchaseResponse(b.handlePurchaseResponse)
}

func (b *Bot) handleConnected(evt platform.ConnectedEvent) {
	if evt.Result != platform.LogOnResultOK {
		b.logger.Warn("connect failed", "bot", b.name, "result", evt.Result)
		return
	}
	if err := b.platformClient.LogOn(context.Background(), b.buildCredentials()); err != nil {
		b.logger.Error("logon", "bot", b.name, "err", err)
	}
}

func (b *Bot) handleDisconnected(evt platform.DisconnectEvent) {
	b.mu.Lock()
	running := b.running
	b.mu.Unlock()
	if !running {
		return
	}

	b.farmer.OnDisconnected()

	go func() {
		ctx := context.Background()
		if b.connectThrottle != nil {
			if err := b.connectThrottle.Wait(ctx); err != nil {
				return
			}
		}
		if err := b.platformClient.Connect(ctx); err != nil {
			b.logger.Error("reconnect", "bot", b.name, "err", err)
		}
	}()
}

func (b *Bot) handleLoggedOn(evt platform.LoggedOnEvent) {
	switch evt.Result {
	case platform.LogOnResultOK:
		if b.cfg.SteamNickname != "null" && b.cfg.SteamNickname != "" {
			if err := b.platformClient.SetPersonaName(context.Background(), b.cfg.SteamNickname); err != nil {
				b.logger.Error("set persona name", "bot", b.name, "err", err)
			}
		}
		if b.cfg.SteamMasterClanID != 0 {
			clanID := steamid.FromSteamID64(b.cfg.SteamMasterClanID)
			if err := b.platformClient.JoinChat(context.Background(), clanID); err != nil {
				b.logger.Error("join master clan chat", "bot", b.name, "err", err)
			}
		}
		if b.cfg.Statistics {
			if err := b.platformClient.JoinChat(context.Background(), statisticsGroupClanID); err != nil {
				b.logger.Error("join statistics group", "bot", b.name, "err", err)
			}
		}
		b.farmer.StartFarming(context.Background())

	case platform.LogOnResultAccountLogonDenied:
		b.logger.Warn("email steam guard code required; interactive capture is delegated to the host", "bot", b.name)

	case platform.LogOnResultAccountLoginDeniedNeedTwoFactor:
		if b.cfg.SteamSharedSecret != "" && b.cfg.SteamSharedSecret != "null" {
			code, err := steamtotp.GenerateAuthCode(b.cfg.SteamSharedSecret, 0)
			if err != nil {
				b.logger.Error("generate steam guard code", "bot", b.name, "err", err)
				return
			}
			b.mu.Lock()
			b.twoFactorCode = code
			b.mu.Unlock()
			go func() {
				if err := b.platformClient.LogOn(context.Background(), b.buildCredentials()); err != nil {
					b.logger.Error("logon retry with steam guard code", "bot", b.name, "err", err)
				}
			}()
		} else {
			b.logger.Warn("two-factor code required; interactive capture is delegated to the host", "bot", b.name)
		}

	case platform.LogOnResultInvalidPassword:
		go func() {
			ctx := context.Background()
			_ = b.Stop(ctx)
			time.Sleep(b.loginCooldown)
			_ = b.Start(ctx)
		}()

	case platform.LogOnResultServiceUnavailable, platform.LogOnResultTimeout, platform.LogOnResultTryAnotherCM:
		go func() {
			ctx := context.Background()
			_ = b.Stop(ctx)
			_ = b.Start(ctx)
		}()

	default:
		b.logger.Error("fatal logon result, shutting down", "bot", b.name, "result", evt.Result)
		go b.Shutdown(context.Background())
	}
}

func (b *Bot) handleLoggedOff(evt platform.LoggedOffEvent) {
	b.logger.Info("logged off", "bot", b.name, "result", evt.Result)
}

func (b *Bot) handleFriendsList(evt platform.FriendsListEvent) {
	ctx := context.Background()
	for _, fr := range evt.Friends {
		switch {
		case fr.ClanInvite:
			if err := b.platformClient.RemoveFriend(ctx, fr.SteamID); err != nil {
				b.logger.Error("decline clan invite", "bot", b.name, "err", err)
			}
		case fr.SteamID == b.masterID:
			if err := b.platformClient.AcceptFriend(ctx, fr.SteamID); err != nil {
				b.logger.Error("accept master friend request", "bot", b.name, "err", err)
			}
		default:
			if err := b.platformClient.RemoveFriend(ctx, fr.SteamID); err != nil {
				b.logger.Error("remove non-master friend", "bot", b.name, "err", err)
			}
		}
	}
}

func (b *Bot) handleChatMessage(evt platform.ChatMessageEvent) {
	if evt.Sender != b.masterID {
		return
	}
	ctx := context.Background()
	reply, shouldReply := b.cmdHandler.Handle(ctx, evt.Message)
	if shouldReply && reply != "" {
		if err := b.platformClient.SendChatMessage(ctx, b.masterID, reply); err != nil {
			b.logger.Error("send chat reply", "bot", b.name, "err", err)
		}
	}
}

func (b *Bot) handleMachineAuth(evt platform.MachineAuthEvent) {
	b.mu.Lock()
	end := evt.Chunk.Offset + int64(len(evt.Chunk.Data))
	if int64(len(b.sentryBlob)) < end {
		grown := make([]byte, end)
		copy(grown, b.sentryBlob)
		b.sentryBlob = grown
	}
	copy(b.sentryBlob[evt.Chunk.Offset:], evt.Chunk.Data)
	blob := append([]byte(nil), b.sentryBlob...)
	b.mu.Unlock()

	if b.sentryPath != "" {
		if err := os.WriteFile(b.sentryPath, blob, 0o600); err != nil {
			b.logger.Error("persist sentry blob", "bot", b.name, "err", err)
		}
	}

	hash := sha1.Sum(blob)
	resp := platform.MachineAuthResponse{
		JobID:        evt.Chunk.JobID,
		FileName:     evt.Chunk.FileName,
		BytesWritten: int64(len(evt.Chunk.Data)),
		FileSize:     evt.Chunk.FileSize,
		Offset:       evt.Chunk.Offset,
		Result:       platform.LogOnResultOK,
		SHA1:         hash,
	}
	if err := b.platformClient.AckMachineAuth(context.Background(), resp); err != nil {
		b.logger.Error("ack machine auth", "bot", b.name, "err", err)
	}
}

func (b *Bot) handleNotification(evt platform.NotificationEvent) {
	switch evt.Kind {
	case platform.NotificationTrading:
		// Delegated to the trading submodule, out of scope here (spec.md §1).
	case platform.NotificationItems:
		b.farmer.OnNewItemsNotification()
	}
}

func (b *Bot) handlePurchaseResponse(evt platform.PurchaseResponseEvent) {
	b.mu.Lock()
	answerDirectly := b.answerDirectly
	pending := b.pendingRedeem
	b.mu.Unlock()

	if !answerDirectly && pending != nil {
		select {
		case pending <- evt:
		default:
		}
	} else if err := b.platformClient.SendChatMessage(context.Background(), b.masterID, formatPurchaseResult(evt)); err != nil {
		b.logger.Error("send purchase response chat", "bot", b.name, "err", err)
	}

	if evt.Result == platform.LogOnResultOK {
		b.farmer.StartFarming(context.Background())
	}
}

var _ registry.Bot = (*Bot)(nil)
