package command_test

import (
	"context"
	"testing"

	"github.com/k64z/cardfarmer/cardsfarmer"
	"github.com/k64z/cardfarmer/command"
	"github.com/k64z/cardfarmer/registry"
)

type fakeBot struct {
	name         string
	redeemedKeys []string
	asyncResult  string
	asyncErr     error
	farmStarted  bool
	lootTriggered bool
}

func (f *fakeBot) Name() string                    { return f.name }
func (f *fakeBot) Start(ctx context.Context) error { return nil }
func (f *fakeBot) Stop(ctx context.Context) error  { return nil }
func (f *fakeBot) Shutdown(ctx context.Context) error { return nil }
func (f *fakeBot) StartFarming(ctx context.Context)   { f.farmStarted = true }
func (f *fakeBot) Summary() cardsfarmer.Summary       { return cardsfarmer.Summary{GamesRemaining: 2} }
func (f *fakeBot) RedeemKey(ctx context.Context, key string) error {
	f.redeemedKeys = append(f.redeemedKeys, key)
	return nil
}
func (f *fakeBot) RedeemAsync(ctx context.Context, key string) (string, error) {
	f.redeemedKeys = append(f.redeemedKeys, key)
	return f.asyncResult, f.asyncErr
}
func (f *fakeBot) SendMasterChat(ctx context.Context, message string) error { return nil }
func (f *fakeBot) TriggerLootCheck()                                       { f.lootTriggered = true }

func TestIsValidCdKey(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"ABCDE-FGHIJ-KLMNO", true},               // len 17
		{"ABCDE-FGHIJ-KLMNO-PQRST-UVWXY", true},    // len 29
		{"not-a-key", false},
		{"ABCDEXFGHIJXKLMNO", false}, // wrong separator
		{"", false},
	}
	for _, tt := range tests {
		if got := command.IsValidCdKey(tt.key); got != tt.want {
			t.Errorf("IsValidCdKey(%q) = %v, want %v", tt.key, got, tt.want)
		}
	}
}

func TestHandleWholeMessageKeyRedeemsSilently(t *testing.T) {
	local := &fakeBot{name: "local"}
	h := command.New(registry.New(), local)

	reply, shouldReply := h.Handle(context.Background(), "ABCDE-FGHIJ-KLMNO")
	if shouldReply {
		t.Error("direct key redemption should not reply")
	}
	if reply != "" {
		t.Errorf("reply = %q, want empty", reply)
	}
	if len(local.redeemedKeys) != 1 || local.redeemedKeys[0] != "ABCDE-FGHIJ-KLMNO" {
		t.Errorf("redeemedKeys = %v", local.redeemedKeys)
	}
}

func TestHandleFarmCommand(t *testing.T) {
	local := &fakeBot{name: "local"}
	h := command.New(registry.New(), local)

	reply, shouldReply := h.Handle(context.Background(), "!farm")
	if !shouldReply {
		t.Fatal("expected a reply")
	}
	if !local.farmStarted {
		t.Error("expected StartFarming to be called")
	}
	if reply == "" {
		t.Error("expected non-empty reply")
	}
}

func TestHandleRedeemNamedBot(t *testing.T) {
	local := &fakeBot{name: "local"}
	other := &fakeBot{name: "botA", asyncResult: "Status: OK | Items: Pack"}
	reg := registry.New()
	reg.InsertIfAbsent("botA", other)

	h := command.New(reg, local)
	reply, shouldReply := h.Handle(context.Background(), "!redeem botA ABCDE-FGHIJ-KLMNO")
	if !shouldReply {
		t.Fatal("expected a reply")
	}
	want := "botA answer: Status: OK | Items: Pack"
	if reply != want {
		t.Errorf("reply = %q, want %q", reply, want)
	}
}

func TestHandleRedeemUnknownBot(t *testing.T) {
	local := &fakeBot{name: "local"}
	h := command.New(registry.New(), local)

	reply, shouldReply := h.Handle(context.Background(), "!redeem ghost ABCDE-FGHIJ-KLMNO")
	if !shouldReply {
		t.Fatal("expected a reply")
	}
	if reply != `unknown bot "ghost"` {
		t.Errorf("reply = %q", reply)
	}
}

func TestMultiRedeemClampsExcessKeys(t *testing.T) {
	local := &fakeBot{name: "local"}
	botA := &fakeBot{name: "botA", asyncResult: "ok"}
	reg := registry.New()
	reg.InsertIfAbsent("botA", botA)

	h := command.New(reg, local)
	message := "-ABCDE-FGHIJ-KLMNO\n-PQRST-UVWXY-ZABCD"
	reply, shouldReply := h.Handle(context.Background(), message)
	if !shouldReply {
		t.Fatal("expected a reply")
	}
	if len(botA.redeemedKeys) != 1 {
		t.Fatalf("expected exactly one key delivered to the single registered bot, got %v", botA.redeemedKeys)
	}
	if !containsSubstring(reply, "undeliverable") {
		t.Errorf("reply = %q, want it to report the undeliverable excess key", reply)
	}
}

func containsSubstring(haystack, needle string) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}

func TestHandleIgnoresNonCommandNonKeyText(t *testing.T) {
	local := &fakeBot{name: "local"}
	h := command.New(registry.New(), local)

	reply, shouldReply := h.Handle(context.Background(), "hello there")
	if shouldReply || reply != "" {
		t.Errorf("expected no reply for plain chat text, got (%q, %v)", reply, shouldReply)
	}
}
