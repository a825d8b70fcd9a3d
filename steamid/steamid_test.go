package steamid_test

import (
	"testing"

	"github.com/k64z/cardfarmer/steamid"
)

func TestFromSteamID64(t *testing.T) {
	got := steamid.FromSteamID64(76561197960287930)
	if got != 76561197960287930 {
		t.Errorf("got %d, want %d", got, 76561197960287930)
	}
}

func TestAccountIDAndString(t *testing.T) {
	sid := steamid.SteamID(76561197960287930)

	if got, want := sid.AccountID(), uint32(22202); got != want {
		t.Errorf("AccountID() = %d, want %d", got, want)
	}
	if got, want := sid.String(), "76561197960287930"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestIsValid(t *testing.T) {
	if steamid.SteamID(0).IsValid() {
		t.Error("zero SteamID should be invalid")
	}
	if !steamid.FromSteamID64(76561197960287930).IsValid() {
		t.Error("non-zero SteamID should be valid")
	}
}
