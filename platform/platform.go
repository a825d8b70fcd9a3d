// Package platform declares the PlatformClient capability: the wire-level
// contract a connection/authentication/chat collaborator must satisfy for a
// Bot to drive it. It intentionally says nothing about how that contract is
// fulfilled (CM protocol, websockets, framing) — that is explicitly out of
// scope and left to a concrete implementation elsewhere.
package platform

import (
	"context"

	"github.com/k64z/cardfarmer/steamid"
)

// LogOnResult mirrors the handful of EResult values a Bot's LoggedOn handler
// must branch on (spec.md §4.1). Values match steamstore's EResult numbering
// so a real implementation can pass platform results through unmodified.
type LogOnResult int32

const (
	LogOnResultOK                              LogOnResult = 1
	LogOnResultFail                            LogOnResult = 2
	LogOnResultNoConnection                    LogOnResult = 3
	LogOnResultInvalidPassword                 LogOnResult = 5
	LogOnResultServiceUnavailable              LogOnResult = 20
	LogOnResultTimeout                         LogOnResult = 16
	LogOnResultAccountLogonDenied              LogOnResult = 63
	LogOnResultAccountLoginDeniedNeedTwoFactor LogOnResult = 85
	LogOnResultTryAnotherCM                    LogOnResult = 48
)

func (r LogOnResult) String() string {
	switch r {
	case LogOnResultOK:
		return "OK"
	case LogOnResultFail:
		return "Fail"
	case LogOnResultNoConnection:
		return "NoConnection"
	case LogOnResultInvalidPassword:
		return "InvalidPassword"
	case LogOnResultServiceUnavailable:
		return "ServiceUnavailable"
	case LogOnResultTimeout:
		return "Timeout"
	case LogOnResultAccountLogonDenied:
		return "AccountLogonDenied"
	case LogOnResultAccountLoginDeniedNeedTwoFactor:
		return "AccountLoginDeniedNeedTwoFactor"
	case LogOnResultTryAnotherCM:
		return "TryAnotherCM"
	default:
		return "Unknown"
	}
}

// ConnectedEvent carries the result of an attempted connect.
type ConnectedEvent struct {
	Result LogOnResult
}

// DisconnectEvent describes an unexpected session drop.
type DisconnectEvent struct {
	Err error
}

// LoggedOnEvent carries the result of a logon attempt.
type LoggedOnEvent struct {
	Result LogOnResult
}

// LoggedOffEvent carries the reason the session ended.
type LoggedOffEvent struct {
	Result LogOnResult
}

// FriendRelationship mirrors steamclient's relationship enum.
type FriendRelationship int32

const (
	RelationshipNone             FriendRelationship = 0
	RelationshipRequestRecipient FriendRelationship = 2
	RelationshipFriend           FriendRelationship = 3
)

// Friend describes one entry of a FriendsList callback.
type Friend struct {
	SteamID      steamid.SteamID
	Relationship FriendRelationship
	ClanInvite   bool
}

// FriendsListEvent carries the current set of relationship changes.
type FriendsListEvent struct {
	Friends []Friend
}

// ChatMessageEvent carries an incoming chat line.
type ChatMessageEvent struct {
	Sender  steamid.SteamID
	Message string
}

// MachineAuthChunk carries one fragment of a sentry-blob write request.
type MachineAuthChunk struct {
	JobID    uint64
	FileName string
	Data     []byte
	Offset   int64
	FileSize int64
}

// MachineAuthEvent wraps the chunk delivered by a MachineAuth callback.
type MachineAuthEvent struct {
	Chunk MachineAuthChunk
}

// MachineAuthResponse is sent back after a sentry chunk has been persisted.
type MachineAuthResponse struct {
	JobID        uint64
	FileName     string
	BytesWritten int64
	FileSize     int64
	Offset       int64
	Result       LogOnResult
	SHA1         [20]byte
}

// NotificationKind identifies the delegated-notification variants a Bot must
// route (trading is out of scope; only the kind tag crosses this boundary).
type NotificationKind int32

const (
	NotificationTrading NotificationKind = iota
	NotificationItems
)

// NotificationEvent carries an out-of-band platform notification.
type NotificationEvent struct {
	Kind NotificationKind
}

// PurchaseResponseEvent carries the result of a previously issued RedeemKey.
type PurchaseResponseEvent struct {
	Result LogOnResult
	Items  []string
}

// Credentials bundles everything LogOn needs, including the interactively- or
// TOTP-supplied second factor.
type Credentials struct {
	AccountName   string
	Password      string
	AuthCode      string
	TwoFactorCode string
	SentrySHA1    []byte
}

// Client is the capability contract a Bot drives. A concrete implementation
// owns the wire protocol; this package fixes only the shape callers need.
type Client interface {
	// Connect establishes the underlying session. The result of the attempt
	// is reported asynchronously through the ConnectedEvent callback.
	Connect(ctx context.Context) error
	// Disconnect tears the session down. Safe to call when not connected.
	Disconnect(ctx context.Context) error
	// LogOn authenticates using the given credentials.
	LogOn(ctx context.Context, creds Credentials) error
	// RunCallbacks drains and dispatches any callbacks queued since the last
	// call, returning once the queue is empty. Non-blocking.
	RunCallbacks(ctx context.Context) error

	// SetPersonaName sets the display name shown to friends.
	SetPersonaName(ctx context.Context, name string) error
	// JoinChat joins a clan chat room.
	JoinChat(ctx context.Context, clanID steamid.SteamID) error
	// AcceptFriend accepts a pending friend request.
	AcceptFriend(ctx context.Context, target steamid.SteamID) error
	// RemoveFriend removes an existing friend or declines a pending request.
	RemoveFriend(ctx context.Context, target steamid.SteamID) error
	// SendChatMessage sends a line of chat to a user.
	SendChatMessage(ctx context.Context, target steamid.SteamID, message string) error

	// PlayGames tells Steam which app ids are currently "in game". An empty
	// slice stops playing.
	PlayGames(ctx context.Context, appIDs []uint32) error
	// RedeemKey activates a CD key; the result arrives via PurchaseResponse.
	RedeemKey(ctx context.Context, key string) error
	// AckMachineAuth replies to a MachineAuth chunk once it has been durably
	// written.
	AckMachineAuth(ctx context.Context, resp MachineAuthResponse) error

	// OnConnected registers the connect-result callback.
	OnConnected(fn func(ConnectedEvent))
	// OnDisconnected registers the disconnect callback.
	OnDisconnected(fn func(DisconnectEvent))
	// OnLoggedOn registers the logon-result callback.
	OnLoggedOn(fn func(LoggedOnEvent))
	// OnLoggedOff registers the logged-off callback.
	OnLoggedOff(fn func(LoggedOffEvent))
	// OnFriendsList registers the friends-list-change callback.
	OnFriendsList(fn func(FriendsListEvent))
	// OnChatMessage registers the incoming-chat-message callback.
	OnChatMessage(fn func(ChatMessageEvent))
	// OnMachineAuth registers the sentry-chunk callback.
	OnMachineAuth(fn func(MachineAuthEvent))
	// OnNotification registers the delegated-notification callback.
	OnNotification(fn func(NotificationEvent))
	// OnPurchaseResponse registers the redeem-result callback.
	OnPurchaseResponse(fn func(PurchaseResponseEvent))
}
