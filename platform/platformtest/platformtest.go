// Package platformtest provides an in-memory platform.Client double for
// driving Bot and CardsFarmer tests deterministically, the way
// steamclient's hand-constructed test fixtures drive callback handlers
// without a live connection.
package platformtest

import (
	"context"
	"sync"

	"github.com/k64z/cardfarmer/platform"
	"github.com/k64z/cardfarmer/steamid"
)

// Fake is a test double for platform.Client. Tests call the Fire* methods to
// simulate server-pushed events and inspect the Calls log to assert which
// imperative operations a Bot issued.
type Fake struct {
	mu    sync.Mutex
	Calls []string

	PlayedAppIDs []uint32
	RedeemedKeys []string

	onConnected        func(platform.ConnectedEvent)
	onDisconnected     func(platform.DisconnectEvent)
	onLoggedOn         func(platform.LoggedOnEvent)
	onLoggedOff        func(platform.LoggedOffEvent)
	onFriendsList      func(platform.FriendsListEvent)
	onChatMessage      func(platform.ChatMessageEvent)
	onMachineAuth      func(platform.MachineAuthEvent)
	onNotification     func(platform.NotificationEvent)
	onPurchaseResponse func(platform.PurchaseResponseEvent)
}

// New returns a ready-to-use Fake.
func New() *Fake {
	return &Fake{}
}

func (f *Fake) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, call)
}

// CallCount returns the number of recorded calls so far. Safe to call
// concurrently with a Bot or CardsFarmer driving this Fake from another
// goroutine, unlike reading Calls directly.
func (f *Fake) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Calls)
}

func (f *Fake) Connect(ctx context.Context) error {
	f.record("Connect")
	return nil
}

func (f *Fake) Disconnect(ctx context.Context) error {
	f.record("Disconnect")
	return nil
}

func (f *Fake) LogOn(ctx context.Context, creds platform.Credentials) error {
	f.record("LogOn")
	return nil
}

func (f *Fake) RunCallbacks(ctx context.Context) error {
	return nil
}

func (f *Fake) SetPersonaName(ctx context.Context, name string) error {
	f.record("SetPersonaName:" + name)
	return nil
}

func (f *Fake) JoinChat(ctx context.Context, clanID steamid.SteamID) error {
	f.record("JoinChat")
	return nil
}

func (f *Fake) AcceptFriend(ctx context.Context, target steamid.SteamID) error {
	f.record("AcceptFriend")
	return nil
}

func (f *Fake) RemoveFriend(ctx context.Context, target steamid.SteamID) error {
	f.record("RemoveFriend")
	return nil
}

func (f *Fake) SendChatMessage(ctx context.Context, target steamid.SteamID, message string) error {
	f.record("SendChatMessage:" + message)
	return nil
}

func (f *Fake) PlayGames(ctx context.Context, appIDs []uint32) error {
	f.mu.Lock()
	f.PlayedAppIDs = append([]uint32(nil), appIDs...)
	f.mu.Unlock()
	f.record("PlayGames")
	return nil
}

func (f *Fake) RedeemKey(ctx context.Context, key string) error {
	f.mu.Lock()
	f.RedeemedKeys = append(f.RedeemedKeys, key)
	f.mu.Unlock()
	f.record("RedeemKey:" + key)
	return nil
}

func (f *Fake) AckMachineAuth(ctx context.Context, resp platform.MachineAuthResponse) error {
	f.record("AckMachineAuth")
	return nil
}

func (f *Fake) OnConnected(fn func(platform.ConnectedEvent)) { f.onConnected = fn }
func (f *Fake) OnDisconnected(fn func(platform.DisconnectEvent)) { f.onDisconnected = fn }
func (f *Fake) OnLoggedOn(fn func(platform.LoggedOnEvent)) { f.onLoggedOn = fn }
func (f *Fake) OnLoggedOff(fn func(platform.LoggedOffEvent)) { f.onLoggedOff = fn }
func (f *Fake) OnFriendsList(fn func(platform.FriendsListEvent)) { f.onFriendsList = fn }
func (f *Fake) OnChatMessage(fn func(platform.ChatMessageEvent)) { f.onChatMessage = fn }
func (f *Fake) OnMachineAuth(fn func(platform.MachineAuthEvent)) { f.onMachineAuth = fn }
func (f *Fake) OnNotification(fn func(platform.NotificationEvent)) { f.onNotification = fn }
func (f *Fake) OnPurchaseResponse(fn func(platform.PurchaseResponseEvent)) { f.onPurchaseResponse = fn }

// FireConnected simulates a Connected callback.
func (f *Fake) FireConnected(evt platform.ConnectedEvent) {
	if f.onConnected != nil {
		f.onConnected(evt)
	}
}

// FireDisconnected simulates a Disconnected callback.
func (f *Fake) FireDisconnected(evt platform.DisconnectEvent) {
	if f.onDisconnected != nil {
		f.onDisconnected(evt)
	}
}

// FireLoggedOn simulates a LoggedOn callback.
func (f *Fake) FireLoggedOn(evt platform.LoggedOnEvent) {
	if f.onLoggedOn != nil {
		f.onLoggedOn(evt)
	}
}

// FireLoggedOff simulates a LoggedOff callback.
func (f *Fake) FireLoggedOff(evt platform.LoggedOffEvent) {
	if f.onLoggedOff != nil {
		f.onLoggedOff(evt)
	}
}

// FireFriendsList simulates a FriendsList callback.
func (f *Fake) FireFriendsList(evt platform.FriendsListEvent) {
	if f.onFriendsList != nil {
		f.onFriendsList(evt)
	}
}

// FireChatMessage simulates an incoming ChatMessage callback.
func (f *Fake) FireChatMessage(evt platform.ChatMessageEvent) {
	if f.onChatMessage != nil {
		f.onChatMessage(evt)
	}
}

// FireMachineAuth simulates a MachineAuth callback.
func (f *Fake) FireMachineAuth(evt platform.MachineAuthEvent) {
	if f.onMachineAuth != nil {
		f.onMachineAuth(evt)
	}
}

// FireNotification simulates a delegated Notification callback.
func (f *Fake) FireNotification(evt platform.NotificationEvent) {
	if f.onNotification != nil {
		f.onNotification(evt)
	}
}

// FirePurchaseResponse simulates a PurchaseResponse callback.
func (f *Fake) FirePurchaseResponse(evt platform.PurchaseResponseEvent) {
	if f.onPurchaseResponse != nil {
		f.onPurchaseResponse(evt)
	}
}

var _ platform.Client = (*Fake)(nil)
