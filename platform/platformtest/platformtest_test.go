package platformtest_test

import (
	"context"
	"testing"

	"github.com/k64z/cardfarmer/platform"
	"github.com/k64z/cardfarmer/platform/platformtest"
)

func TestFakeRecordsPlayGames(t *testing.T) {
	f := platformtest.New()

	if err := f.PlayGames(context.Background(), []uint32{440, 730}); err != nil {
		t.Fatalf("PlayGames: %v", err)
	}

	if len(f.PlayedAppIDs) != 2 || f.PlayedAppIDs[0] != 440 || f.PlayedAppIDs[1] != 730 {
		t.Errorf("PlayedAppIDs = %v, want [440 730]", f.PlayedAppIDs)
	}
}

func TestFakeFiresRegisteredCallbacks(t *testing.T) {
	f := platformtest.New()

	var got platform.LoggedOnEvent
	fired := false
	f.OnLoggedOn(func(evt platform.LoggedOnEvent) {
		fired = true
		got = evt
	})

	f.FireLoggedOn(platform.LoggedOnEvent{Result: platform.LogOnResultOK})

	if !fired {
		t.Fatal("OnLoggedOn handler was not invoked")
	}
	if got.Result != platform.LogOnResultOK {
		t.Errorf("Result = %v, want OK", got.Result)
	}
}

func TestFakeFireWithNoHandlerIsNoop(t *testing.T) {
	f := platformtest.New()
	f.FireLoggedOn(platform.LoggedOnEvent{Result: platform.LogOnResultFail}) // must not panic
}
